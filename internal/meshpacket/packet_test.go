package meshpacket

import (
	"bytes"
	"testing"
)

// TestRoundtripEncryptDecode mirrors the literal S1 scenario: a header
// with src=0x11223344, dst=broadcast, id=7, hop_start=hop_limit=3,
// want_ack=0, channel_hash=8, carrying a TextMessage "hi" payload,
// encrypted with the 1-byte key [0x01].
func TestRoundtripEncryptDecode(t *testing.T) {
	header := Header{
		Destination: BroadcastAddr,
		Source:      0x11223344,
		PacketID:    7,
		HopLimit:    3,
		HopStart:    3,
		WantAck:     false,
		ChannelHash: 8,
	}
	payload := Payload{Port: PortTextMessage, Data: []byte("hi")}
	decoded := &DecodedPacket{Header: header, RSSI: -80, SNR: 6, Payload: payload}

	key, err := NewChannelKey([]byte{0x01}, header.ChannelHash)
	if err != nil {
		t.Fatalf("NewChannelKey: %v", err)
	}
	cipher, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	wire, err := decoded.Encode(cipher)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(wire) > MaxFrameSize {
		t.Fatalf("frame too large: %d bytes", len(wire))
	}

	enc, err := FromBytes(wire, -80, 6)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	dec, err := enc.Decrypt(cipher)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	got, err := dec.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Payload.Port != PortTextMessage {
		t.Fatalf("port = %v, want %v", got.Payload.Port, PortTextMessage)
	}
	if !bytes.Equal(got.Payload.Data, []byte("hi")) {
		t.Fatalf("data = %q, want %q", got.Payload.Data, "hi")
	}
	if got.Header != header {
		t.Fatalf("header mismatch: got %+v, want %+v", got.Header, header)
	}
}

func TestDecryptNilCipher(t *testing.T) {
	e := &EncryptedPacket{}
	if _, err := e.Decrypt(nil); err == nil {
		t.Fatal("expected error for nil cipher")
	}
}
