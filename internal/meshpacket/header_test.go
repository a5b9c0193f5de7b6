package meshpacket

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Destination: BroadcastAddr, Source: 0x11223344, PacketID: 7, HopLimit: 3, HopStart: 3, WantAck: false, ViaMQTT: false, ChannelHash: 8},
		{Destination: 0x0A0B0C0D, Source: 0xDEADBEEF, PacketID: 42, HopLimit: 2, HopStart: 5, WantAck: true, ViaMQTT: true, ChannelHash: 0, NextHop: 0x12, RelayNode: 0x34},
		{Destination: 1, Source: 2, PacketID: 3, HopLimit: 0, HopStart: 0},
		{Destination: 1, Source: 2, PacketID: 3, HopLimit: 7, HopStart: 7},
	}

	for i, h := range cases {
		h := h
		t.Run(string(rune('A'+i)), func(t *testing.T) {
			buf := h.Encode()
			if len(buf) != HeaderSize {
				t.Fatalf("encoded header length = %d, want %d", len(buf), HeaderSize)
			}
			got, err := DecodeHeader(buf)
			if err != nil {
				t.Fatalf("DecodeHeader: %v", err)
			}
			if *got != h {
				t.Fatalf("roundtrip mismatch: got %+v, want %+v", *got, h)
			}
		})
	}
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	if err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestDecodeHeaderInvalidHopInvariant(t *testing.T) {
	h := Header{HopLimit: 5, HopStart: 3}
	buf := h.Encode()
	if _, err := DecodeHeader(buf); err == nil {
		t.Fatal("expected error when hop_limit > hop_start")
	}
}

func TestNonceLayout(t *testing.T) {
	n := Nonce(0x01020304, 0x0A0B0C0D)
	want := [16]byte{0x04, 0x03, 0x02, 0x01, 0x0D, 0x0C, 0x0B, 0x0A, 0, 0, 0, 0, 0, 0, 0, 0}
	if n != want {
		t.Fatalf("nonce = %x, want %x", n, want)
	}
}

func TestIsValidSource(t *testing.T) {
	if IsValidSource(0) || IsValidSource(BroadcastAddr) {
		t.Fatal("reserved source values must be invalid")
	}
	if !IsValidSource(1) {
		t.Fatal("ordinary source value must be valid")
	}
}
