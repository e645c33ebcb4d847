package go_realmd

import (
	"bytes"
	"strings"
)

// Test fixtures shared by the key exchange and session tests.
var (
	testPrime     = hexBytes("b79b3e2a87823cab8f5ebfbf8eb10108535006298b5badbd5b53e1895e644b89")
	testGenerator = []byte{7}
	testSalt      = make([]byte, SALT_LENGTH)
)

// sequenceReader yields (i*7+3) & 0xff for i = 0, 1, 2...
type sequenceReader struct{ i int }

func (r *sequenceReader) Read(p []byte) (int, error) {
	for j := range p {
		p[j] = byte(r.i*7 + 3)
		r.i++
	}
	return len(p), nil
}

// srpServer is the server half of the key exchange, used to check the client
// against an independent computation.
type srpServer struct {
	n, g, k, v, b BigNum
	nBytes        []byte
	gBytes        []byte
	salt          []byte
	bPub          []byte
	username      string
}

func newSRPServer(n, g, salt []byte, username, password string, private []byte) *srpServer {
	s := &srpServer{
		n:        BigNumFromBytes(n),
		g:        BigNumFromBytes(g),
		k:        BigNumFromUint64(SRP6_MULTIPLIER),
		b:        BigNumFromBytes(private),
		nBytes:   n,
		gBytes:   g,
		salt:     salt,
		username: strings.ToUpper(username),
	}
	h := SHA1Sum([]byte(s.username + ":" + strings.ToUpper(password)))
	x := SHA1Sum(salt, h[:])
	s.v, _ = s.g.ModExp(BigNumFromBytes(x[:]), s.n)
	gb, _ := s.g.ModExp(s.b, s.n)
	B, _ := s.k.Mul(s.v).Add(gb).Mod(s.n)
	s.bPub, _ = B.ToBytes(EPHEMERAL_KEY_LENGTH)
	return s
}

// verify checks the client proof and returns the session key and server proof.
func (s *srpServer) verify(a, m1 []byte) (SessionKey, Digest, bool) {
	A := BigNumFromBytes(a)
	ud := SHA1Sum(a, s.bPub)
	u := BigNumFromBytes(ud[:])
	vu, _ := s.v.ModExp(u, s.n)
	S, _ := A.Mul(vu).ModExp(s.b, s.n)
	sBytes, _ := S.ToBytes(EPHEMERAL_KEY_LENGTH)
	key := interleaveSessionKey(sBytes)

	hn := SHA1Sum(s.nBytes)
	hg := SHA1Sum(s.gBytes)
	for i := range hn {
		hn[i] ^= hg[i]
	}
	hi := SHA1Sum([]byte(s.username))
	expected := SHA1Sum(hn[:], hi[:], s.salt, a, s.bPub, key[:])
	if !bytes.Equal(expected[:], m1) {
		return SessionKey{}, Digest{}, false
	}
	return key, SHA1Sum(a, m1, key[:]), true
}

// serverPrivate is a fixed server private ephemeral: bytes 50..81.
func serverPrivate() []byte {
	p := make([]byte, 32)
	for i := range p {
		p[i] = byte(50 + i)
	}
	return p
}
