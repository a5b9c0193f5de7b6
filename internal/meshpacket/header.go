// Package meshpacket implements the mesh frame header codec, the
// channel cipher, and the phase-typed packet decode pipeline.
package meshpacket

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of the on-air frame header in bytes.
const HeaderSize = 16

// BroadcastAddr is the destination sentinel meaning "all nodes".
const BroadcastAddr uint32 = 0xFFFFFFFF

// MaxHopCount is the largest value hop_start/hop_limit may carry.
const MaxHopCount = 7

// Header is the fixed-size, little-endian frame header shared by every
// on-air mesh frame.
type Header struct {
	Destination uint32
	Source      uint32
	PacketID    uint32
	HopLimit    uint8
	HopStart    uint8
	WantAck     bool
	ViaMQTT     bool
	ChannelHash uint8
	NextHop     uint8
	RelayNode   uint8
}

// Encode serializes the header into a 16-byte little-endian buffer.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Destination)
	binary.LittleEndian.PutUint32(buf[4:8], h.Source)
	binary.LittleEndian.PutUint32(buf[8:12], h.PacketID)
	buf[12] = packFlags(h.HopLimit, h.HopStart, h.WantAck, h.ViaMQTT)
	buf[13] = h.ChannelHash
	buf[14] = h.NextHop
	buf[15] = h.RelayNode
	return buf
}

// DecodeHeader parses a 16-byte header from the front of buf. It fails
// if buf is shorter than HeaderSize or the hop invariant hop_limit <=
// hop_start <= 7 does not hold.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("meshpacket: header too short: %d bytes", len(buf))
	}

	hopLimit, hopStart, wantAck, viaMQTT := unpackFlags(buf[12])
	if hopStart > MaxHopCount || hopLimit > hopStart {
		return nil, fmt.Errorf("meshpacket: invalid hop flags: limit=%d start=%d", hopLimit, hopStart)
	}

	h := &Header{
		Destination: binary.LittleEndian.Uint32(buf[0:4]),
		Source:      binary.LittleEndian.Uint32(buf[4:8]),
		PacketID:    binary.LittleEndian.Uint32(buf[8:12]),
		HopLimit:    hopLimit,
		HopStart:    hopStart,
		WantAck:     wantAck,
		ViaMQTT:     viaMQTT,
		ChannelHash: buf[13],
		NextHop:     buf[14],
		RelayNode:   buf[15],
	}
	return h, nil
}

// packFlags packs hop_limit, hop_start, want_ack, and via_mqtt into the
// single flags byte: [7:5] hop_limit, [4:2] hop_start, [1] want_ack, [0] via_mqtt.
func packFlags(hopLimit, hopStart uint8, wantAck, viaMQTT bool) byte {
	var flags byte
	flags |= (hopLimit & 0x7) << 5
	flags |= (hopStart & 0x7) << 2
	if wantAck {
		flags |= 1 << 1
	}
	if viaMQTT {
		flags |= 1
	}
	return flags
}

func unpackFlags(flags byte) (hopLimit, hopStart uint8, wantAck, viaMQTT bool) {
	hopLimit = (flags >> 5) & 0x7
	hopStart = (flags >> 2) & 0x7
	wantAck = flags&(1<<1) != 0
	viaMQTT = flags&1 != 0
	return
}

// Nonce derives the 16-byte, zero-padded cipher nonce for a frame: bytes
// 0-3 are packet_id little-endian, bytes 4-7 are source little-endian,
// bytes 8-15 are zero. This layout is bit-exact and required for
// interoperability with other mesh implementations.
func Nonce(packetID, source uint32) [16]byte {
	var nonce [16]byte
	binary.LittleEndian.PutUint32(nonce[0:4], packetID)
	binary.LittleEndian.PutUint32(nonce[4:8], source)
	return nonce
}

// IsValidSource reports whether source is usable as a packet's source
// address (neither the zero value nor the broadcast sentinel).
func IsValidSource(source uint32) bool {
	return source != 0 && source != BroadcastAddr
}
