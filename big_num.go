package go_realmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// BigNum is an arbitrary-precision integer. Values are immutable: every
// arithmetic method returns a new BigNum. Byte conversions use little-endian
// order, the order big numbers travel in on the logon wire.
type BigNum struct {
	n *big.Int
}

// NewBigNum returns a BigNum holding zero.
func NewBigNum() BigNum {
	return BigNum{n: new(big.Int)}
}

// BigNumFromUint64 returns a BigNum holding v.
func BigNumFromUint64(v uint64) BigNum {
	return BigNum{n: new(big.Int).SetUint64(v)}
}

// BigNumFromBytes interprets p as an unsigned little-endian integer.
func BigNumFromBytes(p []byte) BigNum {
	be := make([]byte, len(p))
	for i, c := range p {
		be[len(p)-1-i] = c
	}
	return BigNum{n: new(big.Int).SetBytes(be)}
}

// BigNumFromHex parses a big-endian hexadecimal string.
func BigNumFromHex(s string) (BigNum, error) {
	n, ok := new(big.Int).SetString(strings.TrimPrefix(s, "0x"), 16)
	if !ok {
		return BigNum{}, fmt.Errorf("%w: invalid hex number %q", ErrInvalidArgument, s)
	}
	return BigNum{n: n}, nil
}

// RandomBigNum reads an unsigned number of the given bit length from rng.
func RandomBigNum(rng io.Reader, bits int) (BigNum, error) {
	if bits <= 0 || bits%8 != 0 {
		return BigNum{}, fmt.Errorf("%w: random size must be a positive multiple of 8 bits, got %d", ErrInvalidArgument, bits)
	}
	p := make([]byte, bits/8)
	if _, err := io.ReadFull(rng, p); err != nil {
		return BigNum{}, fmt.Errorf("realmd: failed to read random bytes: %w", err)
	}
	return BigNumFromBytes(p), nil
}

func (b BigNum) int() *big.Int {
	if b.n == nil {
		return new(big.Int)
	}
	return b.n
}

func (b BigNum) Add(o BigNum) BigNum { return BigNum{n: new(big.Int).Add(b.int(), o.int())} }
func (b BigNum) Sub(o BigNum) BigNum { return BigNum{n: new(big.Int).Sub(b.int(), o.int())} }
func (b BigNum) Mul(o BigNum) BigNum { return BigNum{n: new(big.Int).Mul(b.int(), o.int())} }

// Div returns the truncated quotient b / o.
func (b BigNum) Div(o BigNum) (BigNum, error) {
	if o.IsZero() {
		return BigNum{}, fmt.Errorf("%w: division by zero", ErrCryptoParameter)
	}
	return BigNum{n: new(big.Int).Quo(b.int(), o.int())}, nil
}

// Mod returns b mod o in [0, |o|).
func (b BigNum) Mod(o BigNum) (BigNum, error) {
	if o.IsZero() {
		return BigNum{}, fmt.Errorf("%w: modulus is zero", ErrCryptoParameter)
	}
	return BigNum{n: new(big.Int).Mod(b.int(), o.int())}, nil
}

// ModExp returns b^exponent mod modulus, always in [0, modulus).
// A zero or negative modulus fails with ErrCryptoParameter.
func (b BigNum) ModExp(exponent, modulus BigNum) (BigNum, error) {
	if modulus.Sign() <= 0 {
		return BigNum{}, fmt.Errorf("%w: modulus must be positive", ErrCryptoParameter)
	}
	if exponent.Sign() < 0 {
		return BigNum{}, fmt.Errorf("%w: negative exponent", ErrCryptoParameter)
	}
	base := new(big.Int).Mod(b.int(), modulus.int())
	return BigNum{n: new(big.Int).Exp(base, exponent.int(), modulus.int())}, nil
}

// Bytes returns the minimal little-endian encoding. Zero encodes as a single zero byte.
func (b BigNum) Bytes() []byte {
	be := b.int().Bytes()
	if len(be) == 0 {
		return []byte{0}
	}
	le := make([]byte, len(be))
	for i, c := range be {
		le[len(be)-1-i] = c
	}
	return le
}

// ToBytes returns the little-endian encoding zero-padded to width bytes.
// Negative values and values wider than width fail with ErrBufferOverflow.
func (b BigNum) ToBytes(width int) ([]byte, error) {
	if b.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative number has no unsigned encoding", ErrBufferOverflow)
	}
	be := b.int().Bytes()
	if len(be) > width {
		return nil, fmt.Errorf("%w: %d-byte number does not fit %d bytes", ErrBufferOverflow, len(be), width)
	}
	le := make([]byte, width)
	for i, c := range be {
		le[len(be)-1-i] = c
	}
	return le, nil
}

func (b BigNum) Cmp(o BigNum) int { return b.int().Cmp(o.int()) }
func (b BigNum) Sign() int        { return b.int().Sign() }
func (b BigNum) IsZero() bool     { return b.int().Sign() == 0 }

// Hex returns the big-endian hexadecimal form, uppercase.
func (b BigNum) Hex() string {
	return strings.ToUpper(b.int().Text(16))
}

func (b BigNum) String() string {
	return b.int().String()
}

// hexBytes decodes a hex string, for fixed constants only.
func hexBytes(s string) []byte {
	p, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return p
}
