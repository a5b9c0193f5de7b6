package meshpacket

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// DefaultKeySize is the length, in bytes, of a full channel key.
const DefaultKeySize = 16

// defaultKey is the Meshtastic "unencrypted"/default channel key used
// whenever a channel is configured with a single override byte rather
// than full key material.
var defaultKey = [DefaultKeySize]byte{
	0xd4, 0xf1, 0xbb, 0x3a, 0x20, 0x29, 0x07, 0x59,
	0xf0, 0xbc, 0xff, 0xab, 0xcf, 0x4e, 0x69, 0x01,
}

// ChannelKey holds the material for a channel's symmetric cipher. A
// one-byte key overrides only the least-significant byte of the
// default 16-byte key; 16- and 32-byte keys (AES-128/AES-256) are used
// as provided.
type ChannelKey struct {
	material []byte
	selector uint8
}

// NewChannelKey builds a ChannelKey from raw material. Supported
// lengths are 1, 16, and 32 bytes; any other length is a
// key-construction error.
func NewChannelKey(material []byte, selector uint8) (*ChannelKey, error) {
	switch len(material) {
	case 1:
		key := defaultKey
		key[DefaultKeySize-1] = material[0]
		return &ChannelKey{material: key[:], selector: selector}, nil
	case 16, 32:
		full := make([]byte, len(material))
		copy(full, material)
		return &ChannelKey{material: full, selector: selector}, nil
	default:
		return nil, fmt.Errorf("meshpacket: unsupported channel key length: %d", len(material))
	}
}

// Cipher is the keyed, self-inverse stream-cipher transform over a
// channel's payload. It uses the AES block cipher purely as a
// keystream generator (CTR mode), which is its own inverse under XOR —
// encrypt and decrypt are the same operation.
type Cipher struct {
	block cipher.Block
}

// NewCipher constructs a Cipher from channel key material. Fails only
// when the material cannot construct an AES block cipher (a
// key-construction error, per the channel cipher's contract).
func NewCipher(key *ChannelKey) (*Cipher, error) {
	block, err := aes.NewCipher(key.material)
	if err != nil {
		return nil, fmt.Errorf("meshpacket: channel cipher key rejected: %w", err)
	}
	return &Cipher{block: block}, nil
}

// Transform performs the in-place symmetric stream-cipher XOR over buf
// using nonce as the CTR counter block. Calling Transform twice with
// the same nonce restores the original buffer: the operation is its
// own inverse, so the same method serves as both encrypt and decrypt.
func (c *Cipher) Transform(buf []byte, nonce [16]byte) {
	stream := cipher.NewCTR(c.block, nonce[:])
	stream.XORKeyStream(buf, buf)
}
