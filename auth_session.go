package go_realmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// AuthState is the position of an AuthSession in the logon exchange.
type AuthState int32

const (
	AuthStateInvalid AuthState = iota
	AuthStateChallenge
	AuthStateLogonProof
	AuthStateRealmList
	AuthStateFailed
	AuthStateClosed
)

func (s AuthState) String() string {
	switch s {
	case AuthStateInvalid:
		return "invalid"
	case AuthStateChallenge:
		return "challenge"
	case AuthStateLogonProof:
		return "logon_proof"
	case AuthStateRealmList:
		return "realm_list"
	case AuthStateFailed:
		return "failed"
	case AuthStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type credentials struct {
	username string
	password string
}

// AuthSession runs the logon exchange against one logon server:
// challenge, proof, then periodic realm list polling until Close.
//
// The connection is owned by the session goroutine started by Connect.
// Other goroutines only read published state (realms, session key, state)
// through the accessors, which copy values out under a read lock.
type AuthSession struct {
	cfg     ClientConfig
	crypto  *Crypto
	tcp     Tcp
	metrics MetricsCollector

	mu       sync.RWMutex
	state    AuthState
	err      error
	realms   []Realm
	key      SessionKey
	hasKey   bool
	username string

	login     chan credentials
	loggingIn atomic.Bool
	running   atomic.Bool
	connected atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	doneOnce  sync.Once
	wg        sync.WaitGroup
}

// NewAuthSession creates a session for the given client configuration.
func NewAuthSession(cfg ClientConfig) (*AuthSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AuthSession{
		cfg:     cfg,
		crypto:  NewCrypto(),
		metrics: nopMetrics{},
		login:   make(chan credentials, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// SetMetrics installs a metrics collector. Call before Connect.
func (s *AuthSession) SetMetrics(m MetricsCollector) {
	if m == nil {
		m = nopMetrics{}
	}
	s.metrics = m
}

// SetCrypto replaces the random source used for the key exchange. Call before Connect.
func (s *AuthSession) SetCrypto(c *Crypto) {
	if c != nil {
		s.crypto = c
	}
}

// Connect dials the logon server and starts the session goroutine. An empty
// address uses the configured AuthAddress. The context bounds the dial only.
func (s *AuthSession) Connect(ctx context.Context, address string) error {
	if address == "" {
		address = s.cfg.AuthAddress
	}
	select {
	case <-s.stop:
		return ErrSessionClosed
	default:
	}
	if !s.connected.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}
	if err := s.tcp.Init(address, DEFAULT_AUTH_PORT); err != nil {
		s.connected.Store(false)
		return err
	}
	if err := s.tcp.Connect(ctx, s.cfg.DialTimeout); err != nil {
		s.connected.Store(false)
		s.metrics.IncrementError("network")
		return err
	}
	Info("Connected to logon server %s", s.tcp.Address())
	s.metrics.SetConnectionState(AUTH_SESSION_NAME, AuthStateInvalid.String())

	s.running.Store(true)
	s.wg.Add(1)
	go s.run()
	return nil
}

// Login starts the logon exchange. It only hands the credentials to the
// session goroutine; progress is observed through State and Err.
func (s *AuthSession) Login(username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: empty username or password", ErrInvalidArgument)
	}
	if len(username) > MAX_BLOCK_LENGTH {
		return fmt.Errorf("%w: username longer than %d bytes", ErrInvalidArgument, MAX_BLOCK_LENGTH)
	}
	if s.State() == AuthStateClosed || s.State() == AuthStateFailed {
		return ErrSessionClosed
	}
	if !s.loggingIn.CompareAndSwap(false, true) {
		return ErrLoginInProgress
	}
	s.login <- credentials{username: strings.ToUpper(username), password: password}
	return nil
}

// State returns the current state.
func (s *AuthSession) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that stopped the session, or nil.
func (s *AuthSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Done is closed when the session goroutine has exited.
func (s *AuthSession) Done() <-chan struct{} {
	return s.done
}

// Realms returns a copy of the latest realm list.
func (s *AuthSession) Realms() []Realm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Realm(nil), s.realms...)
}

// Realm returns one realm of the latest realm list.
func (s *AuthSession) Realm(id uint8) (Realm, error) {
	r, ok := FindRealm(s.Realms(), id)
	if !ok {
		return Realm{}, fmt.Errorf("%w: %d", ErrUnknownRealm, id)
	}
	return r, nil
}

// SessionKey returns a copy of the session key once the proof was accepted.
func (s *AuthSession) SessionKey() (SessionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasKey {
		return SessionKey{}, ErrNoSessionKey
	}
	return s.key, nil
}

// Username returns the account name in the form sent to the server.
func (s *AuthSession) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// ConnectToRealm opens a world session to a realm of the current list,
// handing it a copy of the session key.
func (s *AuthSession) ConnectToRealm(ctx context.Context, id uint8) (*WorldSession, error) {
	realm, err := s.Realm(id)
	if err != nil {
		return nil, err
	}
	key, err := s.SessionKey()
	if err != nil {
		return nil, err
	}
	ws, err := NewWorldSession(s.cfg, s.Username(), key, realm)
	if err != nil {
		return nil, err
	}
	ws.SetMetrics(s.metrics)
	if err := ws.Connect(ctx); err != nil {
		return nil, err
	}
	return ws, nil
}

// Close stops the session goroutine and waits for it to exit. The goroutine
// notices the request at its next poll timeout.
func (s *AuthSession) Close() error {
	s.running.Store(false)
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.doneOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	if s.state != AuthStateFailed {
		s.state = AuthStateClosed
	}
	s.mu.Unlock()
	return nil
}

func (s *AuthSession) setState(state AuthState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	log.WithField("session", AUTH_SESSION_NAME).WithField("state", state.String()).Debug("State transition")
	s.metrics.SetConnectionState(AUTH_SESSION_NAME, state.String())
}

func (s *AuthSession) run() {
	defer s.wg.Done()
	defer s.doneOnce.Do(func() { close(s.done) })
	defer s.tcp.Disconnect()

	err := s.process()
	if err == nil || errors.Is(err, ErrSessionClosed) {
		s.setState(AuthStateClosed)
		return
	}

	state := s.State()
	s.mu.Lock()
	s.err = NewSessionError(AUTH_SESSION_NAME, state.String(), err)
	s.mu.Unlock()
	s.metrics.IncrementError(errorCategory(err))
	Error("Auth session stopped in state %s: %v", state, err)
	s.setState(AuthStateFailed)
}

func (s *AuthSession) process() error {
	var creds credentials
	select {
	case creds = <-s.login:
	case <-s.stop:
		return nil
	}

	s.setState(AuthStateChallenge)
	srp, err := s.challenge(creds)
	creds.password = ""
	if err != nil {
		return err
	}

	s.setState(AuthStateLogonProof)
	if err := s.proof(srp, creds.username); err != nil {
		return err
	}

	s.setState(AuthStateRealmList)
	for s.running.Load() {
		if err := s.pollRealmList(); err != nil {
			return err
		}
		select {
		case <-s.stop:
			return nil
		case <-time.After(s.cfg.RealmPollInterval):
		}
	}
	return nil
}

// challenge sends the logon challenge, decodes the response and runs the key exchange.
func (s *AuthSession) challenge(creds credentials) (*SRP6, error) {
	req := NewLogonChallengeRequest()
	if err := firstError(
		req.Command.SetUint(uint64(AUTH_CMD_LOGON_CHALLENGE)),
		req.Protocol.SetUint(uint64(AUTH_PROTOCOL_VERSION)),
		req.Size.SetUint(uint64(LOGON_CHALLENGE_FIXED_SIZE+len(creds.username))),
		req.Game.SetString(s.cfg.Game),
		req.Major.SetUint(uint64(s.cfg.Version.Major())),
		req.Minor.SetUint(uint64(s.cfg.Version.Minor())),
		req.Patch.SetUint(uint64(s.cfg.Version.Patch())),
		req.Build.SetUint(uint64(s.cfg.Build)),
		req.Platform.SetString(s.cfg.Platform),
		req.OS.SetString(s.cfg.OS),
		req.Locale.SetString(s.cfg.Locale),
		req.Timezone.SetUint(uint64(s.cfg.Timezone)),
		req.IP.SetUint(uint64(s.cfg.IP)),
		req.Account.SetString(creds.username),
	); err != nil {
		return nil, err
	}
	started := time.Now()
	if err := s.send(req.Packet, AUTH_CMD_LOGON_CHALLENGE); err != nil {
		return nil, err
	}

	buf := NewByteBuffer()
	if err := s.awaitResponse(buf, LOGON_CHALLENGE_HEAD_SIZE); err != nil {
		return nil, err
	}
	head := NewLogonChallengeResponseHead()
	if err := s.decode(head.Packet, buf); err != nil {
		return nil, err
	}
	if err := expectCommand(head.Command, AUTH_CMD_LOGON_CHALLENGE); err != nil {
		return nil, err
	}
	if status := uint8(head.Status.Uint()); status != AUTH_RESULT_SUCCESS {
		return nil, fmt.Errorf("%w: logon challenge: %w", ErrAuthenticationFailed,
			NewProtocolError(AuthResultName(status), int(status), true))
	}

	// g and N are length-prefixed, so the body arrives in three reads.
	if err := s.receive(buf, EPHEMERAL_KEY_LENGTH+1); err != nil {
		return nil, err
	}
	if err := s.receive(buf, int(lastByte(buf))+1); err != nil {
		return nil, err
	}
	if err := s.receive(buf, int(lastByte(buf))+SALT_LENGTH+CRC_SALT_LENGTH+1); err != nil {
		return nil, err
	}
	body := NewLogonChallengeResponseBody()
	if err := s.decode(body.Packet, buf); err != nil {
		return nil, err
	}
	if err := s.securityChallenges(buf, uint8(body.SecurityFlags.Uint())); err != nil {
		return nil, err
	}
	s.metrics.RecordRoundTrip(AUTH_SESSION_NAME, uint16(AUTH_CMD_LOGON_CHALLENGE), time.Since(started))

	srp, err := NewSRP6WithRand(body.N.Bytes(), body.G.Bytes(), s.crypto.Reader())
	if err != nil {
		return nil, err
	}
	if len(s.cfg.VersionHash) != 0 {
		srp.SetVersionHash(VersionHash(body.CRCSalt.Bytes(), s.cfg.VersionHash))
	}
	if err := srp.Generate(body.Salt.Bytes(), body.B.Bytes(), creds.username, creds.password); err != nil {
		return nil, err
	}
	return srp, nil
}

// securityChallenges decodes the two-factor extensions announced by flags.
// The client has no source for any of them, so a non-zero flag set aborts.
func (s *AuthSession) securityChallenges(buf *ByteBuffer, flags uint8) error {
	if flags == 0 {
		return nil
	}
	extras := []struct {
		flag   uint8
		size   int
		packet *Packet
	}{
		{SECURITY_FLAG_PIN, PIN_CHALLENGE_SIZE, NewPinChallenge().Packet},
		{SECURITY_FLAG_MATRIX, MATRIX_CHALLENGE_SIZE, NewMatrixChallenge().Packet},
		{SECURITY_FLAG_TOKEN, TOKEN_CHALLENGE_SIZE, NewTokenChallenge().Packet},
	}
	for _, e := range extras {
		if flags&e.flag == 0 {
			continue
		}
		if err := s.receive(buf, e.size); err != nil {
			return err
		}
		if err := s.decode(e.packet, buf); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: server requires security flags 0x%02X", ErrAuthenticationFailed, flags)
}

// proof sends the client proof and verifies the server proof.
func (s *AuthSession) proof(srp *SRP6, username string) error {
	a, err := srp.A()
	if err != nil {
		return err
	}
	m1, _ := srp.ClientProof()
	crc, _ := srp.CRCHash()

	req := NewLogonProofRequest()
	if err := firstError(
		req.Command.SetUint(uint64(AUTH_CMD_LOGON_PROOF)),
		req.A.SetBytes(a),
		req.ClientProof.SetBytes(m1[:]),
		req.CRCHash.SetBytes(crc[:]),
		req.NumberOfKeys.SetUint(0),
		req.SecurityFlags.SetUint(0),
	); err != nil {
		return err
	}
	started := time.Now()
	if err := s.send(req.Packet, AUTH_CMD_LOGON_PROOF); err != nil {
		return err
	}

	buf := NewByteBuffer()
	if err := s.awaitResponse(buf, LOGON_PROOF_HEAD_SIZE); err != nil {
		return err
	}
	head := NewLogonProofResponseHead()
	if err := s.decode(head.Packet, buf); err != nil {
		return err
	}
	if err := expectCommand(head.Command, AUTH_CMD_LOGON_PROOF); err != nil {
		return err
	}
	if status := uint8(head.Status.Uint()); status != AUTH_RESULT_SUCCESS {
		return fmt.Errorf("%w: logon proof: %w", ErrAuthenticationFailed,
			NewProtocolError(AuthResultName(status), int(status), true))
	}

	if err := s.receive(buf, LOGON_PROOF_BODY_SIZE); err != nil {
		return err
	}
	body := NewLogonProofResponseBody()
	if err := s.decode(body.Packet, buf); err != nil {
		return err
	}
	s.metrics.RecordRoundTrip(AUTH_SESSION_NAME, uint16(AUTH_CMD_LOGON_PROOF), time.Since(started))
	if !srp.VerifyServerProof(body.ServerProof.Bytes()) {
		return fmt.Errorf("%w: server proof mismatch", ErrAuthenticationFailed)
	}

	key, err := srp.SessionKey()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.key = key
	s.hasKey = true
	s.username = username
	s.mu.Unlock()
	Info("Logged in as %s", username)
	return nil
}

// pollRealmList requests the realm list once and publishes the result.
func (s *AuthSession) pollRealmList() error {
	req := NewRealmListRequest()
	if err := firstError(
		req.Command.SetUint(uint64(AUTH_CMD_REALM_LIST)),
		req.Unknown.SetUint(0),
	); err != nil {
		return err
	}
	started := time.Now()
	if err := s.send(req.Packet, AUTH_CMD_REALM_LIST); err != nil {
		return err
	}

	buf := NewByteBuffer()
	if err := s.awaitResponse(buf, REALM_LIST_HEADER_SIZE); err != nil {
		return err
	}
	header := NewRealmListHeader()
	if err := s.decode(header.Packet, buf); err != nil {
		return err
	}
	if err := expectCommand(header.Command, AUTH_CMD_REALM_LIST); err != nil {
		return err
	}

	payload := NewByteBuffer()
	if err := s.receive(payload, int(header.Size.Uint())); err != nil {
		return err
	}
	realms, err := decodeRealmList(payload)
	if err != nil {
		return err
	}
	s.metrics.RecordRoundTrip(AUTH_SESSION_NAME, uint16(AUTH_CMD_REALM_LIST), time.Since(started))

	s.mu.Lock()
	s.realms = realms
	s.mu.Unlock()
	Debug("Realm list updated, %d realms", len(realms))
	return nil
}

// decodeRealmList parses the realm list payload that follows the header.
func decodeRealmList(payload *ByteBuffer) ([]Realm, error) {
	bodyHeader := NewRealmListBodyHeader()
	if err := bodyHeader.LoadBuffer(payload); err != nil {
		return nil, err
	}
	count := int(bodyHeader.Count.Uint())
	realms := make([]Realm, 0, count)
	for i := 0; i < count; i++ {
		entry := NewRealmEntry()
		if err := entry.LoadBuffer(payload); err != nil {
			return nil, err
		}
		var build *RealmBuildEntry
		if uint8(entry.Flags.Uint())&REALM_FLAG_SPECIFY_BUILD != 0 {
			build = NewRealmBuildEntry()
			if err := build.LoadBuffer(payload); err != nil {
				return nil, err
			}
		}
		realms = append(realms, realmFromEntry(entry, build))
	}
	if _, err := payload.ReadUint16(); err != nil {
		return nil, fmt.Errorf("realm list trailer: %w", err)
	}
	return realms, nil
}

func (s *AuthSession) send(p *Packet, command uint8) error {
	buf := NewByteBuffer()
	if err := p.SaveBuffer(buf); err != nil {
		return err
	}
	dumpPacket("send", p)
	n, err := s.tcp.Send(buf)
	s.metrics.AddBytesSent(uint64(n))
	if err != nil {
		return err
	}
	s.metrics.IncrementPacketSent(AUTH_SESSION_NAME, uint16(command))
	return nil
}

// awaitResponse waits for the first byte of a response in PollTimeout slices,
// so Close is observed, then reads the rest of the first n bytes.
func (s *AuthSession) awaitResponse(buf *ByteBuffer, n int) error {
	deadline := time.Now().Add(s.cfg.ResponseTimeout)
	for {
		if !s.running.Load() {
			return ErrSessionClosed
		}
		ok, err := s.tcp.Poll(buf, s.cfg.PollTimeout)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: no response within %s", ErrConnectionClosed, s.cfg.ResponseTimeout)
		}
	}
	s.metrics.AddBytesReceived(1)
	return s.receive(buf, n-1)
}

func (s *AuthSession) receive(buf *ByteBuffer, n int) error {
	if n <= 0 {
		return nil
	}
	i, err := s.tcp.ReceiveWithin(buf, n, s.cfg.ResponseTimeout)
	s.metrics.AddBytesReceived(uint64(i))
	return err
}

func (s *AuthSession) decode(p *Packet, buf *ByteBuffer) error {
	if err := p.LoadBuffer(buf); err != nil {
		return err
	}
	dumpPacket("recv", p)
	if cmd := p.Field("command"); cmd != nil {
		s.metrics.IncrementPacketReceived(AUTH_SESSION_NAME, uint16(cmd.Uint()))
	}
	return nil
}

func expectCommand(f *Field, want uint8) error {
	if got := uint8(f.Uint()); got != want {
		return fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrUnexpectedCommand, got, want)
	}
	return nil
}

func lastByte(buf *ByteBuffer) byte {
	p := buf.Bytes()
	return p[len(p)-1]
}

// errorCategory maps an error to the metrics category it is counted under.
func errorCategory(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return "auth"
	case errors.Is(err, ErrCryptoParameter), errors.Is(err, ErrNotInitialized):
		return "crypto"
	case errors.Is(err, ErrConnectionClosed), errors.Is(err, ErrNotConnected):
		return "network"
	default:
		return "protocol"
	}
}
