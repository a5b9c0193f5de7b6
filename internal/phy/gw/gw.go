// Package gw contains hand-defined Go structures and a small binary
// wire format for talking to an external LoRa concentrator daemon over
// ZeroMQ, in the spirit of a ChirpStack-Concentratord-style API —
// manually written rather than generated from a .proto file, since the
// mesh frame this core carries (16-byte header + ciphertext, §6) has
// no existing protobuf schema to codegen from.
package gw

import (
	"encoding/binary"
	"fmt"
	"math"
)

// UplinkFrame is one received frame plus its RF metadata.
type UplinkFrame struct {
	PhyPayload []byte
	Frequency  uint32
	Rssi       int32
	Snr        float32
}

// DownlinkFrame is one frame to transmit plus the modulation
// parameters to transmit it with.
type DownlinkFrame struct {
	DownlinkID      uint32
	PhyPayload      []byte
	Frequency       uint32
	Power           int32
	Bandwidth       uint32
	SpreadingFactor uint32
	CodingRate      uint8
}

// DownlinkAck reports the concentrator's acceptance/rejection of a
// downlink request.
type DownlinkAck struct {
	DownlinkID uint32
	OK         bool
	Reason     string
}

// MarshalDownlinkFrame serializes a downlink frame using a simple
// fixed binary layout:
//
//	4 bytes  downlink_id
//	4 bytes  frequency
//	4 bytes  power (signed)
//	4 bytes  bandwidth
//	4 bytes  spreading_factor
//	1 byte   coding_rate
//	2 bytes  payload length
//	N bytes  payload
func MarshalDownlinkFrame(dl *DownlinkFrame) ([]byte, error) {
	if len(dl.PhyPayload) > 0xFFFF {
		return nil, fmt.Errorf("gw: payload too large: %d bytes", len(dl.PhyPayload))
	}
	buf := make([]byte, 23+len(dl.PhyPayload))
	binary.LittleEndian.PutUint32(buf[0:4], dl.DownlinkID)
	binary.LittleEndian.PutUint32(buf[4:8], dl.Frequency)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(dl.Power))
	binary.LittleEndian.PutUint32(buf[12:16], dl.Bandwidth)
	binary.LittleEndian.PutUint32(buf[16:20], dl.SpreadingFactor)
	buf[20] = dl.CodingRate
	binary.LittleEndian.PutUint16(buf[21:23], uint16(len(dl.PhyPayload)))
	copy(buf[23:], dl.PhyPayload)
	return buf, nil
}

// UnmarshalUplinkFrame parses an uplink event frame:
//
//	4 bytes  frequency
//	4 bytes  rssi (signed)
//	4 bytes  snr (float32 bits)
//	2 bytes  payload length
//	N bytes  payload
func UnmarshalUplinkFrame(buf []byte) (*UplinkFrame, error) {
	if len(buf) < 14 {
		return nil, fmt.Errorf("gw: uplink frame too short: %d bytes", len(buf))
	}
	freq := binary.LittleEndian.Uint32(buf[0:4])
	rssi := int32(binary.LittleEndian.Uint32(buf[4:8]))
	snr := math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12]))
	plen := int(binary.LittleEndian.Uint16(buf[12:14]))
	if len(buf) < 14+plen {
		return nil, fmt.Errorf("gw: uplink frame payload truncated")
	}
	payload := make([]byte, plen)
	copy(payload, buf[14:14+plen])
	return &UplinkFrame{PhyPayload: payload, Frequency: freq, Rssi: rssi, Snr: snr}, nil
}

// UnmarshalDownlinkAck parses a downlink acknowledgment:
//
//	4 bytes  downlink_id
//	1 byte   ok (0/1)
//	N bytes  reason (remainder, UTF-8)
func UnmarshalDownlinkAck(buf []byte) (*DownlinkAck, error) {
	if len(buf) < 5 {
		return nil, fmt.Errorf("gw: downlink ack too short: %d bytes", len(buf))
	}
	return &DownlinkAck{
		DownlinkID: binary.LittleEndian.Uint32(buf[0:4]),
		OK:         buf[4] != 0,
		Reason:     string(buf[5:]),
	}, nil
}
