package meshpacket

import (
	"bytes"
	"testing"
)

func TestCipherTransformIsInvolution(t *testing.T) {
	key, err := NewChannelKey([]byte{0x01}, 8)
	if err != nil {
		t.Fatalf("NewChannelKey: %v", err)
	}
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	original := []byte("the quick brown fox")
	nonce := Nonce(7, 0x11223344)

	buf := append([]byte(nil), original...)
	c.Transform(buf, nonce)
	if bytes.Equal(buf, original) {
		t.Fatal("transform did not change the buffer")
	}
	c.Transform(buf, nonce)
	if !bytes.Equal(buf, original) {
		t.Fatalf("transform is not its own inverse: got %x, want %x", buf, original)
	}
}

func TestNewChannelKeyRejectsBadLength(t *testing.T) {
	if _, err := NewChannelKey([]byte{1, 2, 3}, 0); err == nil {
		t.Fatal("expected error for unsupported key length")
	}
}

func TestNewChannelKeySizes(t *testing.T) {
	for _, n := range []int{1, 16, 32} {
		material := make([]byte, n)
		if _, err := NewChannelKey(material, 0); err != nil {
			t.Fatalf("NewChannelKey(%d bytes): %v", n, err)
		}
	}
}
