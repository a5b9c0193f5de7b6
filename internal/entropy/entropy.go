// Package entropy wraps a real entropy source behind the external
// "fill(buf)" collaborator contract, used by the relay engine's
// jitter computation and by boot-time node-ID derivation.
package entropy

import "crypto/rand"

// Source is the entropy collaborator contract: fill buf with random
// bytes, failing only if the underlying source is exhausted or
// unavailable.
type Source interface {
	Fill(buf []byte) error
}

// Crypto is the production Source, backed by crypto/rand. This is the
// hardware-equivalent entropy source the relay engine's jitter
// computation must use instead of a clock-seeded pseudo-random
// sequence (see the jitter RNG defect corrected from the original
// firmware).
type Crypto struct{}

// Fill implements Source.
func (Crypto) Fill(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// Uint32 draws a uniformly distributed uint32 from src.
func Uint32(src Source) (uint32, error) {
	var buf [4]byte
	if err := src.Fill(buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}
