package go_realmd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// testConfig returns a configuration with timeouts suited to loopback tests.
func testConfig() ClientConfig {
	cfg := DefaultConfig()
	cfg.PollTimeout = 10 * time.Millisecond
	cfg.RealmPollInterval = 20 * time.Millisecond
	cfg.DialTimeout = time.Second
	cfg.ResponseTimeout = 2 * time.Second
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session goroutine did not exit")
	}
}

// encodeRealmList builds a realm list payload as the logon server sends it.
func encodeRealmList(realms []Realm) ([]byte, error) {
	payload := NewByteBuffer()
	payload.WriteUint32(0)
	payload.WriteUint16(uint16(len(realms)))
	for _, r := range realms {
		e := NewRealmEntry()
		locked := uint64(0)
		if r.Locked {
			locked = 1
		}
		if err := firstError(
			e.Type.SetUint(uint64(r.Type)),
			e.Locked.SetUint(locked),
			e.Flags.SetUint(uint64(r.Flags)),
			e.Name.SetString(r.Name),
			e.Address.SetString(r.Address),
			e.Population.SetFloat(r.Population),
			e.Characters.SetUint(uint64(r.Characters)),
			e.Category.SetUint(uint64(r.Category)),
			e.ID.SetUint(uint64(r.ID)),
		); err != nil {
			return nil, err
		}
		if err := e.SaveBuffer(payload); err != nil {
			return nil, err
		}
		if !r.HasBuildInfo() {
			continue
		}
		b := NewRealmBuildEntry()
		if err := firstError(
			b.Major.SetUint(uint64(r.Version.Major())),
			b.Minor.SetUint(uint64(r.Version.Minor())),
			b.Patch.SetUint(uint64(r.Version.Patch())),
			b.Build.SetUint(uint64(r.Build)),
		); err != nil {
			return nil, err
		}
		if err := b.SaveBuffer(payload); err != nil {
			return nil, err
		}
	}
	payload.WriteUint16(0x0010)
	return payload.Bytes(), nil
}

// fakeLogonServer answers one logon connection: challenge, proof and any
// number of realm list requests.
type fakeLogonServer struct {
	password        string
	realms          []Realm
	challengeStatus uint8
	securityFlags   uint8

	ln   net.Listener
	conn net.Conn
	srp  *srpServer
	wg   sync.WaitGroup

	mu            sync.Mutex
	challenge     []byte
	key           SessionKey
	realmRequests int
}

func startFakeLogonServer(t *testing.T, f *fakeLogonServer) *fakeLogonServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	f.ln = ln
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		f.serve(conn)
	}()
	t.Cleanup(func() {
		ln.Close()
		f.mu.Lock()
		if f.conn != nil {
			f.conn.Close()
		}
		f.mu.Unlock()
		f.wg.Wait()
	})
	return f
}

func (f *fakeLogonServer) addr() string {
	return f.ln.Addr().String()
}

func (f *fakeLogonServer) challengeRequest() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.challenge...)
}

func (f *fakeLogonServer) sessionKey() SessionKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}

func (f *fakeLogonServer) realmListRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.realmRequests
}

func (f *fakeLogonServer) serve(conn net.Conn) {
	cmd := make([]byte, 1)
	for {
		if _, err := io.ReadFull(conn, cmd); err != nil {
			return
		}
		var err error
		switch cmd[0] {
		case AUTH_CMD_LOGON_CHALLENGE:
			err = f.handleChallenge(conn)
		case AUTH_CMD_LOGON_PROOF:
			err = f.handleProof(conn)
		case AUTH_CMD_REALM_LIST:
			err = f.handleRealmList(conn)
		default:
			err = fmt.Errorf("unexpected command 0x%02X", cmd[0])
		}
		if err != nil {
			return
		}
	}
}

func (f *fakeLogonServer) handleChallenge(conn net.Conn) error {
	hdr := make([]byte, 3)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return err
	}
	rest := make([]byte, binary.LittleEndian.Uint16(hdr[1:]))
	if _, err := io.ReadFull(conn, rest); err != nil {
		return err
	}
	if len(rest) < LOGON_CHALLENGE_FIXED_SIZE {
		return fmt.Errorf("short challenge")
	}
	account := string(rest[LOGON_CHALLENGE_FIXED_SIZE : LOGON_CHALLENGE_FIXED_SIZE+int(rest[LOGON_CHALLENGE_FIXED_SIZE-1])])

	f.mu.Lock()
	f.challenge = append(append([]byte{AUTH_CMD_LOGON_CHALLENGE}, hdr...), rest...)
	f.mu.Unlock()
	f.srp = newSRPServer(testPrime, testGenerator, testSalt, account, f.password, serverPrivate())

	out := NewByteBuffer()
	out.WriteUint8(AUTH_CMD_LOGON_CHALLENGE)
	out.WriteUint8(0)
	out.WriteUint8(f.challengeStatus)
	if f.challengeStatus == AUTH_RESULT_SUCCESS {
		out.Write(f.srp.bPub)
		out.WriteBlock(testGenerator)
		out.WriteBlock(testPrime)
		out.Write(testSalt)
		out.Write(make([]byte, CRC_SALT_LENGTH))
		out.WriteUint8(f.securityFlags)
		if f.securityFlags&SECURITY_FLAG_PIN != 0 {
			out.Write(make([]byte, PIN_CHALLENGE_SIZE))
		}
		if f.securityFlags&SECURITY_FLAG_MATRIX != 0 {
			out.Write(make([]byte, MATRIX_CHALLENGE_SIZE))
		}
		if f.securityFlags&SECURITY_FLAG_TOKEN != 0 {
			out.Write(make([]byte, TOKEN_CHALLENGE_SIZE))
		}
	}
	_, err := conn.Write(out.Bytes())
	return err
}

func (f *fakeLogonServer) handleProof(conn net.Conn) error {
	p := make([]byte, EPHEMERAL_KEY_LENGTH+2*SHA1_DIGEST_LENGTH+2)
	if _, err := io.ReadFull(conn, p); err != nil {
		return err
	}
	if f.srp == nil {
		return fmt.Errorf("proof before challenge")
	}
	a := p[:EPHEMERAL_KEY_LENGTH]
	m1 := p[EPHEMERAL_KEY_LENGTH : EPHEMERAL_KEY_LENGTH+SHA1_DIGEST_LENGTH]

	key, m2, ok := f.srp.verify(a, m1)
	if !ok {
		_, err := conn.Write([]byte{AUTH_CMD_LOGON_PROOF, AUTH_RESULT_INCORRECT_PASSWORD, 0, 0})
		return err
	}
	f.mu.Lock()
	f.key = key
	f.mu.Unlock()

	out := NewByteBuffer()
	out.WriteUint8(AUTH_CMD_LOGON_PROOF)
	out.WriteUint8(AUTH_RESULT_SUCCESS)
	out.Write(m2[:])
	out.WriteUint32(0x00800000)
	out.WriteUint32(0)
	out.WriteUint16(0)
	_, err := conn.Write(out.Bytes())
	return err
}

func (f *fakeLogonServer) handleRealmList(conn net.Conn) error {
	if _, err := io.ReadFull(conn, make([]byte, 4)); err != nil {
		return err
	}
	f.mu.Lock()
	f.realmRequests++
	f.mu.Unlock()

	payload, err := encodeRealmList(f.realms)
	if err != nil {
		return err
	}
	out := NewByteBuffer()
	out.WriteUint8(AUTH_CMD_REALM_LIST)
	out.WriteUint16(uint16(len(payload)))
	out.Write(payload)
	_, err = conn.Write(out.Bytes())
	return err
}

// worldAuth is what the fake world server saw in CMSG_AUTH_SESSION.
type worldAuth struct {
	account string
	build   uint32
	realmID uint32
	addons  *AddonInfo
	valid   bool
}

type worldPacket struct {
	opcode uint16
	body   []byte
}

// fakeWorldServer answers one world connection. It sends the challenge,
// checks the auth session against the key received on keys, answers with
// results in order and then echoes pings and records every packet.
type fakeWorldServer struct {
	ln      net.Listener
	seed    [4]byte
	results []uint8
	keys    chan SessionKey
	auth    chan worldAuth
	packets chan worldPacket
	wg      sync.WaitGroup

	writeMu sync.Mutex
	conn    net.Conn
	crypt   *AuthCrypt
}

func newFakeWorldServer(t *testing.T, results ...uint8) *fakeWorldServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if len(results) == 0 {
		results = []uint8{WORLD_AUTH_OK}
	}
	f := &fakeWorldServer{
		ln:      ln,
		seed:    [4]byte{0xDE, 0xAD, 0xBE, 0xEF},
		results: results,
		keys:    make(chan SessionKey, 1),
		auth:    make(chan worldAuth, 1),
		packets: make(chan worldPacket, 16),
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		f.writeMu.Lock()
		f.conn = conn
		f.writeMu.Unlock()
		f.serve(conn)
	}()
	t.Cleanup(func() {
		ln.Close()
		f.writeMu.Lock()
		if f.conn != nil {
			f.conn.Close()
		}
		f.writeMu.Unlock()
		close(f.keys)
		f.wg.Wait()
	})
	return f
}

func (f *fakeWorldServer) addr() string {
	return f.ln.Addr().String()
}

func (f *fakeWorldServer) serve(conn net.Conn) {
	key, ok := <-f.keys
	if !ok {
		return
	}
	crypt, err := newServerAuthCrypt(key)
	if err != nil {
		return
	}

	challenge, err := packWorld(&AuthChallengeBody{One: 1, Seed: f.seed})
	if err != nil {
		return
	}
	if err := f.push(SMSG_AUTH_CHALLENGE, challenge); err != nil {
		return
	}

	opcode, payload, err := f.readPacket(conn, nil)
	if err != nil || opcode != CMSG_AUTH_SESSION {
		return
	}
	req := NewAuthSessionRequest()
	in := NewByteBufferFrom(payload)
	if err := req.LoadBuffer(in); err != nil {
		return
	}
	addons, _ := DecodeAddonInfo(in.Unread())
	digest := AuthSessionDigest(req.Account.Text(), req.LocalChallenge.Bytes(), f.seed[:], key)
	f.auth <- worldAuth{
		account: req.Account.Text(),
		build:   uint32(req.Build.Uint()),
		realmID: uint32(req.RealmID.Uint()),
		addons:  addons,
		valid:   bytes.Equal(digest[:], req.Digest.Bytes()),
	}

	f.writeMu.Lock()
	f.crypt = crypt
	f.writeMu.Unlock()
	for _, result := range f.results {
		if err := f.push(SMSG_AUTH_RESPONSE, []byte{result, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}); err != nil {
			return
		}
	}

	for {
		opcode, body, err := f.readPacket(conn, crypt)
		if err != nil {
			return
		}
		if opcode == CMSG_PING && len(body) >= 4 {
			if err := f.push(SMSG_PONG, body[:4]); err != nil {
				return
			}
		}
		select {
		case f.packets <- worldPacket{opcode: opcode, body: body}:
		default:
		}
	}
}

// readPacket reads one client packet, decrypting its header when crypt is set.
func (f *fakeWorldServer) readPacket(conn net.Conn, crypt *AuthCrypt) (uint16, []byte, error) {
	header := make([]byte, CLIENT_HEADER_SIZE)
	if _, err := io.ReadFull(conn, header); err != nil {
		return 0, nil, err
	}
	if crypt != nil {
		if err := crypt.DecryptRecv(header); err != nil {
			return 0, nil, err
		}
	}
	opcode, size, err := ParseClientHeader(header)
	if err != nil {
		return 0, nil, err
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(conn, body); err != nil {
		return 0, nil, err
	}
	return opcode, body, nil
}

// push writes one server packet, encrypting the header once the session is keyed.
func (f *fakeWorldServer) push(opcode uint16, body []byte) error {
	header, err := EncodeServerHeader(opcode, len(body))
	if err != nil {
		return err
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if f.conn == nil {
		return ErrNotConnected
	}
	if f.crypt != nil {
		if err := f.crypt.EncryptSend(header); err != nil {
			return err
		}
	}
	_, err = f.conn.Write(append(header, body...))
	return err
}

// silentListener accepts connections and never answers.
func silentListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var conns []net.Conn
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		wg.Wait()
		mu.Lock()
		for _, c := range conns {
			c.Close()
		}
		mu.Unlock()
	})
	return ln.Addr().String()
}
