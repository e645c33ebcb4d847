package go_realmd

import (
	"crypto/hmac"
	"crypto/sha1"
	"fmt"
	"hash"
)

// Digest is a SHA-1 sized digest.
type Digest [SHA1_DIGEST_LENGTH]byte

// Hash is an incremental digest. Update may be called any number of times;
// Finalize is called once and the Hash is unusable afterwards. Every digest
// computation constructs a new Hash.
type Hash struct {
	h         hash.Hash
	finalized bool
}

// NewHash wraps a hash constructor.
func NewHash(fn func() hash.Hash) *Hash {
	return &Hash{h: fn()}
}

// NewSHA1 returns an incremental SHA-1.
func NewSHA1() *Hash {
	return NewHash(sha1.New)
}

// NewHMACSHA1 returns an incremental HMAC-SHA1 keyed with key.
func NewHMACSHA1(key []byte) *Hash {
	return &Hash{h: hmac.New(sha1.New, key)}
}

// Update feeds parts into the digest in order.
func (h *Hash) Update(parts ...[]byte) error {
	if h.finalized {
		return fmt.Errorf("%w: update after finalize", ErrCryptoParameter)
	}
	for _, p := range parts {
		h.h.Write(p)
	}
	return nil
}

// UpdateString feeds the bytes of s into the digest.
func (h *Hash) UpdateString(s string) error {
	return h.Update([]byte(s))
}

// Finalize returns the digest. A second call fails with ErrCryptoParameter.
func (h *Hash) Finalize() ([]byte, error) {
	if h.finalized {
		return nil, fmt.Errorf("%w: hash already finalized", ErrCryptoParameter)
	}
	h.finalized = true
	return h.h.Sum(nil), nil
}

// Size returns the digest length in bytes.
func (h *Hash) Size() int {
	return h.h.Size()
}

// SHA1Sum returns SHA1(parts[0] ‖ parts[1] ‖ ...).
func SHA1Sum(parts ...[]byte) Digest {
	return NewSHA1().sum(parts)
}

// HMACSHA1Sum returns HMAC-SHA1(key, parts[0] ‖ parts[1] ‖ ...).
func HMACSHA1Sum(key []byte, parts ...[]byte) Digest {
	return NewHMACSHA1(key).sum(parts)
}

// sum feeds parts into a fresh SHA-1 sized Hash and finalizes it.
func (h *Hash) sum(parts [][]byte) (d Digest) {
	for _, p := range parts {
		h.h.Write(p)
	}
	h.finalized = true
	copy(d[:], h.h.Sum(nil))
	return
}
