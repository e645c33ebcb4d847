package go_realmd

import (
	"crypto/rc4"
	"fmt"
)

// ARC4 is a keyed RC4 keystream. It is not safe for concurrent use.
type ARC4 struct {
	c *rc4.Cipher
}

// NewARC4 keys a new stream. Keys must be 1..256 bytes.
func NewARC4(key []byte) (*ARC4, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoParameter, err)
	}
	return &ARC4{c: c}, nil
}

// Drop discards n bytes of keystream.
func (a *ARC4) Drop(n int) {
	discard := make([]byte, n)
	a.c.XORKeyStream(discard, discard)
}

// Process xors p with the keystream in place.
func (a *ARC4) Process(p []byte) {
	a.c.XORKeyStream(p, p)
}
