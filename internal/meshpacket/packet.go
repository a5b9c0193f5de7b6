package meshpacket

import "fmt"

// MaxFrameSize is the largest on-air frame this implementation accepts,
// header included.
const MaxFrameSize = 256

// EncryptedPacket is a frame that has been header-parsed but not yet
// decrypted. It can only be produced by FromBytes and can only be
// advanced to a DecryptedPacket via Decrypt — the type system prevents
// skipping the decrypt step.
type EncryptedPacket struct {
	Header     Header
	RSSI       int8
	SNR        int8
	Ciphertext []byte
}

// DecryptedPacket is the plaintext form of a frame, produced only by
// EncryptedPacket.Decrypt. It is transient: callers decode it into a
// DecodedPacket and discard it.
type DecryptedPacket struct {
	Header    Header
	RSSI      int8
	SNR       int8
	Plaintext []byte
}

// DecodedPacket is the fully parsed, application-level record that is
// the sole unit published onto the packet bus.
type DecodedPacket struct {
	Header  Header
	RSSI    int8
	SNR     int8
	Payload Payload
}

// FromBytes parses a received frame into an EncryptedPacket. It fails
// on a short buffer or an invalid header (including the hop_limit <=
// hop_start <= 7 invariant).
func FromBytes(buf []byte, rssi, snr int8) (*EncryptedPacket, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("meshpacket: frame too short: %d bytes", len(buf))
	}
	header, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	ciphertext := make([]byte, len(buf)-HeaderSize)
	copy(ciphertext, buf[HeaderSize:])
	return &EncryptedPacket{
		Header:     *header,
		RSSI:       rssi,
		SNR:        snr,
		Ciphertext: ciphertext,
	}, nil
}

// Decrypt applies the channel cipher to the ciphertext in place and
// returns the resulting DecryptedPacket. It fails only when the cipher
// itself could not be constructed from key — key-construction errors
// are the caller's responsibility to surface before calling Decrypt,
// but Decrypt re-validates defensively since a nil cipher would panic
// on Transform.
func (e *EncryptedPacket) Decrypt(c *Cipher) (*DecryptedPacket, error) {
	if c == nil {
		return nil, fmt.Errorf("meshpacket: decrypt called with nil cipher")
	}
	plaintext := make([]byte, len(e.Ciphertext))
	copy(plaintext, e.Ciphertext)
	nonce := Nonce(e.Header.PacketID, e.Header.Source)
	c.Transform(plaintext, nonce)
	return &DecryptedPacket{
		Header:    e.Header,
		RSSI:      e.RSSI,
		SNR:       e.SNR,
		Plaintext: plaintext,
	}, nil
}

// Decode parses the plaintext into a structured DecodedPacket. It
// fails on a malformed payload.
func (d *DecryptedPacket) Decode() (*DecodedPacket, error) {
	payload, err := DecodePayload(d.Plaintext)
	if err != nil {
		return nil, err
	}
	return &DecodedPacket{
		Header:  d.Header,
		RSSI:    d.RSSI,
		SNR:     d.SNR,
		Payload: *payload,
	}, nil
}

// Encode re-serializes a DecodedPacket's header and re-encrypts its
// payload with the given cipher, producing the bytes that would be
// transmitted on the air. Used by the relay engine and radio task when
// retransmitting: the wire bytes it produces are identical to a fresh
// encrypt of the same (header, payload), regardless of whether a
// retransmission re-derives the plaintext or replays stored ciphertext.
func (p *DecodedPacket) Encode(c *Cipher) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("meshpacket: encode called with nil cipher")
	}
	plaintext := p.Payload.Encode()
	nonce := Nonce(p.Header.PacketID, p.Header.Source)
	c.Transform(plaintext, nonce)

	buf := make([]byte, HeaderSize+len(plaintext))
	copy(buf[:HeaderSize], p.Header.Encode())
	copy(buf[HeaderSize:], plaintext)
	return buf, nil
}
