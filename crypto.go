// Crypto provides the randomness used by the logon and world handshakes.
//
// The sessions draw every random value (SRP6 private ephemeral, world
// local challenge) through a Crypto so tests can substitute a deterministic
// source. Hashing lives in crypto_hash.go, the key exchange in srp6.go and
// the session cipher in auth_crypt.go.

package go_realmd

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Crypto wraps a random source.
type Crypto struct {
	rng io.Reader
}

// NewCrypto creates a new Crypto instance backed by crypto/rand.
func NewCrypto() *Crypto {
	return &Crypto{
		rng: rand.Reader,
	}
}

// NewCryptoWithRand creates a Crypto reading from rng.
func NewCryptoWithRand(rng io.Reader) *Crypto {
	if rng == nil {
		return NewCrypto()
	}
	return &Crypto{rng: rng}
}

// Reader returns the underlying random source.
func (c *Crypto) Reader() io.Reader {
	return c.rng
}

// RandomBytes returns n random bytes.
func (c *Crypto) RandomBytes(n int) ([]byte, error) {
	p := make([]byte, n)
	if _, err := io.ReadFull(c.rng, p); err != nil {
		return nil, fmt.Errorf("realmd: failed to generate %d random bytes: %w", n, err)
	}
	return p, nil
}
