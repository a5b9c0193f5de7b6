package meshpacket

import (
	"encoding/binary"
	"fmt"
)

// Port identifies the application-layer protocol carried in a
// DecodedPacket's payload.
type Port uint8

// Port values relevant to relay policy. Meshtastic defines a much
// larger port space; this core only needs to recognize the ports the
// relay engine's admission whitelist consults.
const (
	PortUnknown     Port = 0
	PortTextMessage Port = 1
	PortRouting     Port = 5
	PortPosition    Port = 3
	PortNodeInfo    Port = 4
	PortTelemetry   Port = 67
)

// payloadHeaderSize is the size, in bytes, of the fixed fields that
// precede a payload's variable-length data.
const payloadHeaderSize = 18

// Payload is the structured application-layer record decoded from a
// packet's plaintext.
type Payload struct {
	Port         Port
	Data         []byte
	WantResponse bool
	Dest         uint32
	Source       uint32
	RequestID    uint32
	ReplyID      uint32
}

// Encode serializes the payload into its wire representation: a
// fixed-size envelope followed by the raw data bytes.
func (p *Payload) Encode() []byte {
	buf := make([]byte, payloadHeaderSize+len(p.Data))
	buf[0] = uint8(p.Port)
	if p.WantResponse {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint32(buf[2:6], p.Dest)
	binary.LittleEndian.PutUint32(buf[6:10], p.Source)
	binary.LittleEndian.PutUint32(buf[10:14], p.RequestID)
	binary.LittleEndian.PutUint32(buf[14:18], p.ReplyID)
	copy(buf[payloadHeaderSize:], p.Data)
	return buf
}

// DecodePayload parses a plaintext buffer into a structured Payload.
// It fails when the buffer is shorter than the fixed envelope.
func DecodePayload(buf []byte) (*Payload, error) {
	if len(buf) < payloadHeaderSize {
		return nil, fmt.Errorf("meshpacket: payload too short: %d bytes", len(buf))
	}
	data := make([]byte, len(buf)-payloadHeaderSize)
	copy(data, buf[payloadHeaderSize:])
	return &Payload{
		Port:         Port(buf[0]),
		WantResponse: buf[1] != 0,
		Dest:         binary.LittleEndian.Uint32(buf[2:6]),
		Source:       binary.LittleEndian.Uint32(buf[6:10]),
		RequestID:    binary.LittleEndian.Uint32(buf[10:14]),
		ReplyID:      binary.LittleEndian.Uint32(buf[14:18]),
		Data:         data,
	}, nil
}
