package go_realmd

import (
	"crypto/subtle"
	"fmt"
	"io"
	"strings"
)

// SessionKey is the 40-byte secret shared with the server after a
// successful key exchange. It is copied, never shared, between sessions.
type SessionKey [SESSION_KEY_LENGTH]byte

// SRP6 is the client half of the logon key exchange for one login attempt.
//
// All byte values are little-endian, the order in which the logon server
// sends and expects them. After Generate succeeds A, ClientProof, CRCHash,
// SessionKey and ServerProof are available; the private ephemeral and the
// password derived values are not retained.
type SRP6 struct {
	nBytes []byte
	gBytes []byte
	n      BigNum
	g      BigNum
	k      BigNum

	rng         io.Reader
	versionHash Digest

	generated bool
	a         [EPHEMERAL_KEY_LENGTH]byte
	m1        Digest
	m2        Digest
	crc       Digest
	key       SessionKey
}

// NewSRP6 creates a key exchange over the server supplied prime N and
// generator g, both as received on the wire. Randomness comes from crypto/rand.
func NewSRP6(n, g []byte) (*SRP6, error) {
	return NewSRP6WithRand(n, g, nil)
}

// NewSRP6WithRand is NewSRP6 with an explicit random source for the private ephemeral.
func NewSRP6WithRand(n, g []byte, rng io.Reader) (*SRP6, error) {
	if len(n) == 0 || len(n) > EPHEMERAL_KEY_LENGTH {
		return nil, fmt.Errorf("%w: N must be 1..%d bytes, got %d", ErrCryptoParameter, EPHEMERAL_KEY_LENGTH, len(n))
	}
	if len(g) == 0 {
		return nil, fmt.Errorf("%w: empty generator", ErrCryptoParameter)
	}
	s := &SRP6{
		nBytes: append([]byte(nil), n...),
		gBytes: append([]byte(nil), g...),
		n:      BigNumFromBytes(n),
		g:      BigNumFromBytes(g),
		k:      BigNumFromUint64(SRP6_MULTIPLIER),
		rng:    NewCryptoWithRand(rng).Reader(),
	}
	if s.n.Cmp(BigNumFromUint64(2)) <= 0 {
		return nil, fmt.Errorf("%w: N too small", ErrCryptoParameter)
	}
	if s.g.Sign() <= 0 || s.g.Cmp(s.n) >= 0 {
		return nil, fmt.Errorf("%w: generator out of range", ErrCryptoParameter)
	}
	return s, nil
}

// SetVersionHash sets the game build digest mixed into the crc hash.
// Without it the crc hash is computed over 20 zero bytes.
func (s *SRP6) SetVersionHash(d Digest) {
	s.versionHash = d
}

// VersionHash derives the crc hash input from the challenge's crc salt and a
// digest of the game client files.
func VersionHash(crcSalt, gameDigest []byte) Digest {
	return HMACSHA1Sum(crcSalt, gameDigest)
}

// Generate runs the exchange for username and password against the server's
// salt and public ephemeral B. Username and password are uppercased first.
// A wrong password is not detected here; it yields a proof the server rejects.
func (s *SRP6) Generate(salt, b []byte, username, password string) error {
	if len(salt) != SALT_LENGTH {
		return fmt.Errorf("%w: salt must be %d bytes, got %d", ErrCryptoParameter, SALT_LENGTH, len(salt))
	}
	if len(b) != EPHEMERAL_KEY_LENGTH {
		return fmt.Errorf("%w: B must be %d bytes, got %d", ErrCryptoParameter, EPHEMERAL_KEY_LENGTH, len(b))
	}
	username = strings.ToUpper(username)
	password = strings.ToUpper(password)

	B := BigNumFromBytes(b)
	if rem, _ := B.Mod(s.n); rem.IsZero() {
		return fmt.Errorf("%w: B mod N is zero", ErrCryptoParameter)
	}

	credentials := SHA1Sum([]byte(username + ":" + password))
	xDigest := SHA1Sum(salt, credentials[:])
	x := BigNumFromBytes(xDigest[:])

	var a, A BigNum
	for {
		var err error
		if a, err = RandomBigNum(s.rng, SRP6_PRIVATE_BITS); err != nil {
			return err
		}
		if A, err = s.g.ModExp(a, s.n); err != nil {
			return err
		}
		if !A.IsZero() {
			break
		}
	}
	aBytes, err := A.ToBytes(EPHEMERAL_KEY_LENGTH)
	if err != nil {
		return err
	}

	uDigest := SHA1Sum(aBytes, b)
	u := BigNumFromBytes(uDigest[:])

	gx, err := s.g.ModExp(x, s.n)
	if err != nil {
		return err
	}
	base, err := B.Sub(s.k.Mul(gx)).Mod(s.n)
	if err != nil {
		return err
	}
	S, err := base.ModExp(a.Add(u.Mul(x)), s.n)
	if err != nil {
		return err
	}
	sBytes, err := S.ToBytes(EPHEMERAL_KEY_LENGTH)
	if err != nil {
		return err
	}
	key := interleaveSessionKey(sBytes)

	hn := SHA1Sum(s.nBytes)
	hg := SHA1Sum(s.gBytes)
	for i := range hn {
		hn[i] ^= hg[i]
	}
	hi := SHA1Sum([]byte(username))

	copy(s.a[:], aBytes)
	s.key = key
	s.m1 = SHA1Sum(hn[:], hi[:], salt, aBytes, b, key[:])
	s.m2 = SHA1Sum(aBytes, s.m1[:], key[:])
	s.crc = SHA1Sum(aBytes, s.versionHash[:])
	s.generated = true
	return nil
}

// interleaveSessionKey expands the 32-byte shared secret S into the 40-byte
// session key: the even and odd bytes of S are hashed separately and the two
// digests interleaved. Leading zero bytes of S, rounded up to an even count,
// are left out of both halves.
func interleaveSessionKey(s []byte) (key SessionKey) {
	half := len(s) / 2
	even := make([]byte, half)
	odd := make([]byte, half)
	for i := 0; i < half; i++ {
		even[i] = s[2*i]
		odd[i] = s[2*i+1]
	}
	skip := 0
	for skip < len(s) && s[skip] == 0 {
		skip++
	}
	if skip&1 == 1 {
		skip++
	}
	skip /= 2

	he := SHA1Sum(even[skip:])
	ho := SHA1Sum(odd[skip:])
	for i := 0; i < SHA1_DIGEST_LENGTH; i++ {
		key[2*i] = he[i]
		key[2*i+1] = ho[i]
	}
	return
}

// A returns the client public ephemeral, 32 bytes little-endian.
func (s *SRP6) A() ([]byte, error) {
	if !s.generated {
		return nil, ErrNotInitialized
	}
	return append([]byte(nil), s.a[:]...), nil
}

// ClientProof returns M1.
func (s *SRP6) ClientProof() (Digest, error) {
	if !s.generated {
		return Digest{}, ErrNotInitialized
	}
	return s.m1, nil
}

// CRCHash returns the client build verification hash.
func (s *SRP6) CRCHash() (Digest, error) {
	if !s.generated {
		return Digest{}, ErrNotInitialized
	}
	return s.crc, nil
}

// SessionKey returns a copy of K.
func (s *SRP6) SessionKey() (SessionKey, error) {
	if !s.generated {
		return SessionKey{}, ErrNotInitialized
	}
	return s.key, nil
}

// ServerProof returns the M2 the server must answer with.
func (s *SRP6) ServerProof() (Digest, error) {
	if !s.generated {
		return Digest{}, ErrNotInitialized
	}
	return s.m2, nil
}

// VerifyServerProof compares the server's M2 against the expected value in constant time.
func (s *SRP6) VerifyServerProof(m2 []byte) bool {
	return s.generated && subtle.ConstantTimeCompare(s.m2[:], m2) == 1
}
