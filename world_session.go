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

// WorldState is the position of a WorldSession in the world handshake.
type WorldState int32

const (
	WorldStateInvalid WorldState = iota
	WorldStateAuthChallenge
	WorldStateAuthenticating
	WorldStateReady
	WorldStateFailed
	WorldStateClosed
)

func (s WorldState) String() string {
	switch s {
	case WorldStateInvalid:
		return "invalid"
	case WorldStateAuthChallenge:
		return "auth_challenge"
	case WorldStateAuthenticating:
		return "authenticating"
	case WorldStateReady:
		return "ready"
	case WorldStateFailed:
		return "failed"
	case WorldStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// WORLD_SEND_QUEUE_SIZE is the number of outbound packets Send can queue.
const WORLD_SEND_QUEUE_SIZE = 64

// CommandHandler handles one inbound world packet. body holds exactly the
// packet body. Errors for which IsFatal is true stop the session.
type CommandHandler func(opcode uint16, body *ByteBuffer) error

type outgoingPacket struct {
	opcode  uint16
	payload []byte
}

// WorldSession is the connection to one world server. The first inbound
// packet is the plain SMSG_AUTH_CHALLENGE; the session answers with
// CMSG_AUTH_SESSION and keys its AuthCrypt right after, so every later
// header in both directions is encrypted.
//
// Packets are read, dispatched and written only by the session goroutine.
type WorldSession struct {
	cfg      ClientConfig
	username string
	key      SessionKey
	realm    Realm

	crypto    *Crypto
	authCrypt *AuthCrypt
	tcp       Tcp
	metrics   MetricsCollector
	handlers  map[uint16]CommandHandler

	mu         sync.RWMutex
	state      WorldState
	err        error
	pingSerial uint32
	pingSentAt time.Time

	outgoing  chan outgoingPacket
	running   atomic.Bool
	connected atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	doneOnce  sync.Once
	wg        sync.WaitGroup
}

// NewWorldSession creates a session to realm for an account whose logon
// produced key. The key is copied.
func NewWorldSession(cfg ClientConfig, username string, key SessionKey, realm Realm) (*WorldSession, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: empty username", ErrInvalidArgument)
	}
	if key == (SessionKey{}) {
		return nil, ErrNoSessionKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &WorldSession{
		cfg:       cfg,
		username:  strings.ToUpper(username),
		key:       key,
		realm:     realm,
		crypto:    NewCrypto(),
		authCrypt: NewAuthCrypt(),
		metrics:   nopMetrics{},
		outgoing:  make(chan outgoingPacket, WORLD_SEND_QUEUE_SIZE),
		ready:     make(chan struct{}),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.handlers = map[uint16]CommandHandler{
		SMSG_AUTH_CHALLENGE: s.handleAuthChallenge,
		SMSG_AUTH_RESPONSE:  s.handleAuthResponse,
		SMSG_PONG:           s.handlePong,
	}
	return s, nil
}

// SetMetrics installs a metrics collector. Call before Connect.
func (s *WorldSession) SetMetrics(m MetricsCollector) {
	if m == nil {
		m = nopMetrics{}
	}
	s.metrics = m
}

// SetCrypto replaces the random source of the local challenge. Call before Connect.
func (s *WorldSession) SetCrypto(c *Crypto) {
	if c != nil {
		s.crypto = c
	}
}

// HandleCommand registers a handler for an opcode. Handlers are fixed once
// Connect was called, and the handshake opcodes cannot be replaced.
func (s *WorldSession) HandleCommand(opcode uint16, fn CommandHandler) error {
	if fn == nil {
		return fmt.Errorf("%w: nil handler", ErrInvalidArgument)
	}
	switch opcode {
	case SMSG_AUTH_CHALLENGE, SMSG_AUTH_RESPONSE:
		return fmt.Errorf("%w: opcode 0x%03X is handled by the session", ErrInvalidArgument, opcode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected.Load() {
		return ErrAlreadyConnected
	}
	s.handlers[opcode] = fn
	return nil
}

// Realm returns the realm this session connects to.
func (s *WorldSession) Realm() Realm {
	return s.realm
}

// Connect dials the realm address and starts the session goroutine.
// The context bounds the dial only.
func (s *WorldSession) Connect(ctx context.Context) error {
	select {
	case <-s.stop:
		return ErrSessionClosed
	default:
	}
	if !s.connected.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}
	if err := s.tcp.Init(s.realm.Address, DEFAULT_WORLD_PORT); err != nil {
		s.connected.Store(false)
		return err
	}
	if err := s.tcp.Connect(ctx, s.cfg.DialTimeout); err != nil {
		s.connected.Store(false)
		s.metrics.IncrementError("network")
		return err
	}
	Info("Connected to realm %s", s.realm)

	s.running.Store(true)
	s.setState(WorldStateAuthChallenge)
	s.wg.Add(1)
	go s.run()
	return nil
}

// Send queues a packet. It is written by the session goroutine once the
// session is ready, with its header encrypted.
func (s *WorldSession) Send(opcode uint16, payload []byte) error {
	if len(payload)+4 > 0xffff {
		return fmt.Errorf("%w: payload of %d bytes", ErrBufferOverflow, len(payload))
	}
	select {
	case <-s.stop:
		return ErrSessionClosed
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	pkt := outgoingPacket{opcode: opcode, payload: append([]byte(nil), payload...)}
	select {
	case <-s.stop:
		return ErrSessionClosed
	case <-s.done:
		return ErrSessionClosed
	case s.outgoing <- pkt:
		return nil
	}
}

// Ping queues a CMSG_PING. The matching SMSG_PONG is recorded as a round trip.
func (s *WorldSession) Ping(latency uint32) error {
	s.mu.Lock()
	s.pingSerial++
	serial := s.pingSerial
	s.mu.Unlock()

	body, err := packWorld(&PingBody{Serial: serial, Latency: latency})
	if err != nil {
		return err
	}
	return s.Send(CMSG_PING, body)
}

// State returns the current state.
func (s *WorldSession) State() WorldState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready reports whether the server accepted the session.
func (s *WorldSession) Ready() bool {
	return s.State() == WorldStateReady
}

// WaitReady blocks until the session is ready, stops, or ctx ends.
func (s *WorldSession) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the error that stopped the session, or nil.
func (s *WorldSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Done is closed when the session goroutine has exited.
func (s *WorldSession) Done() <-chan struct{} {
	return s.done
}

// Close stops the session goroutine and waits for it to exit.
func (s *WorldSession) Close() error {
	s.running.Store(false)
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.doneOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	if s.state != WorldStateFailed {
		s.state = WorldStateClosed
	}
	s.mu.Unlock()
	return nil
}

func (s *WorldSession) setState(state WorldState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	log.WithField("session", WORLD_SESSION_NAME).WithField("state", state.String()).Debug("State transition")
	s.metrics.SetConnectionState(WORLD_SESSION_NAME, state.String())
	if state == WorldStateReady {
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

func (s *WorldSession) run() {
	defer s.wg.Done()
	defer s.doneOnce.Do(func() { close(s.done) })
	defer s.tcp.Disconnect()

	err := s.process()
	if err == nil || errors.Is(err, ErrSessionClosed) {
		s.setState(WorldStateClosed)
		return
	}

	state := s.State()
	s.mu.Lock()
	s.err = NewSessionError(WORLD_SESSION_NAME, state.String(), err)
	s.mu.Unlock()
	s.metrics.IncrementError(errorCategory(err))
	Error("World session stopped in state %s: %v", state, err)
	s.setState(WorldStateFailed)
}

func (s *WorldSession) process() error {
	for s.running.Load() {
		if s.State() == WorldStateReady {
			if err := s.flush(); err != nil {
				return err
			}
		}
		opcode, body, ok, err := s.receivePacket()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := s.dispatch(opcode, body); err != nil {
			return err
		}
	}
	return nil
}

// receivePacket reads one packet. It returns ok=false when nothing arrived
// within PollTimeout. Header bytes are decrypted only once AuthCrypt is keyed.
func (s *WorldSession) receivePacket() (opcode uint16, body *ByteBuffer, ok bool, err error) {
	header := NewByteBuffer()
	if ok, err = s.tcp.Poll(header, s.cfg.PollTimeout); err != nil || !ok {
		return 0, nil, false, err
	}
	if err = s.decryptHeader(header.Bytes()); err != nil {
		return
	}
	first := header.Len()
	if err = s.receive(header, serverHeaderLength(header.Bytes()[0])-1); err != nil {
		return
	}
	if err = s.decryptHeader(header.Bytes()[first:]); err != nil {
		return
	}
	opcode, size, err := ParseServerHeader(header.Bytes())
	if err != nil {
		return 0, nil, false, err
	}

	body = NewByteBuffer()
	if err = s.receive(body, size); err != nil {
		return
	}
	s.metrics.AddBytesReceived(uint64(header.Len() + size))
	s.metrics.IncrementPacketReceived(WORLD_SESSION_NAME, opcode)
	Debug("[recv 0x%03X] %d bytes", opcode, size)
	return opcode, body, true, nil
}

func (s *WorldSession) decryptHeader(p []byte) error {
	if !s.authCrypt.IsInitialized() {
		return nil
	}
	return s.authCrypt.DecryptRecv(p)
}

func (s *WorldSession) receive(buf *ByteBuffer, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := s.tcp.ReceiveWithin(buf, n, s.cfg.ResponseTimeout)
	return err
}

// dispatch runs the handler of opcode. Unknown opcodes are skipped.
func (s *WorldSession) dispatch(opcode uint16, body *ByteBuffer) error {
	s.mu.RLock()
	handler, ok := s.handlers[opcode]
	s.mu.RUnlock()
	if !ok {
		Debug("Skipping unhandled opcode 0x%03X (%d bytes)", opcode, body.Len())
		return nil
	}
	if err := handler(opcode, body); err != nil {
		if IsFatal(err) {
			return err
		}
		Warning("Handler for opcode 0x%03X failed: %v", opcode, err)
		s.metrics.IncrementError(errorCategory(err))
	}
	return nil
}

// flush writes every queued packet.
func (s *WorldSession) flush() error {
	for {
		select {
		case pkt := <-s.outgoing:
			if err := s.write(pkt.opcode, pkt.payload); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// write sends one packet, encrypting the header once AuthCrypt is keyed.
func (s *WorldSession) write(opcode uint16, payload []byte) error {
	header, err := EncodeClientHeader(opcode, len(payload))
	if err != nil {
		return err
	}
	if s.authCrypt.IsInitialized() {
		if err := s.authCrypt.EncryptSend(header); err != nil {
			return err
		}
	}
	if opcode == CMSG_PING {
		s.mu.Lock()
		s.pingSentAt = time.Now()
		s.mu.Unlock()
	}
	n, err := s.tcp.SendBytes(append(header, payload...))
	s.metrics.AddBytesSent(uint64(n))
	if err != nil {
		return err
	}
	s.metrics.IncrementPacketSent(WORLD_SESSION_NAME, opcode)
	Debug("[send 0x%03X] %d bytes", opcode, len(payload))
	return nil
}

func (s *WorldSession) handleAuthChallenge(opcode uint16, body *ByteBuffer) error {
	if s.State() != WorldStateAuthChallenge {
		return fmt.Errorf("%w: auth challenge in state %s", ErrUnexpectedCommand, s.State())
	}
	var challenge AuthChallengeBody
	if err := unpackWorld(body.Unread(), &challenge); err != nil {
		return err
	}

	localChallenge, err := s.crypto.RandomBytes(4)
	if err != nil {
		return err
	}
	digest := AuthSessionDigest(s.username, localChallenge, challenge.Seed[:], s.key)

	req := NewAuthSessionRequest()
	if err := firstError(
		req.Build.SetUint(uint64(s.cfg.Build)),
		req.LoginServerID.SetUint(0),
		req.Account.SetString(s.username),
		req.LoginServerType.SetUint(0),
		req.LocalChallenge.SetBytes(localChallenge),
		req.RegionID.SetUint(0),
		req.BattlegroupID.SetUint(0),
		req.RealmID.SetUint(uint64(s.realm.ID)),
		req.DosResponse.SetUint(0),
		req.Digest.SetBytes(digest[:]),
	); err != nil {
		return err
	}
	buf := NewByteBuffer()
	if err := req.SaveBuffer(buf); err != nil {
		return err
	}
	addons := &AddonInfo{Addons: s.cfg.Addons}
	addonBlock, err := addons.Encode()
	if err != nil {
		return err
	}
	buf.Write(addonBlock)
	dumpPacket("send", req.Packet, "digest")

	// The auth session itself goes out in the clear; everything after is keyed.
	if err := s.write(CMSG_AUTH_SESSION, buf.Bytes()); err != nil {
		return err
	}
	if err := s.authCrypt.Init(s.key); err != nil {
		return err
	}
	s.setState(WorldStateAuthenticating)
	return nil
}

func (s *WorldSession) handleAuthResponse(opcode uint16, body *ByteBuffer) error {
	if s.State() != WorldStateAuthenticating {
		return fmt.Errorf("%w: auth response in state %s", ErrUnexpectedCommand, s.State())
	}
	var resp AuthResponseBody
	if err := unpackWorld(body.Unread(), &resp); err != nil {
		return err
	}
	switch resp.Result {
	case WORLD_AUTH_OK:
		Info("World session on %s ready", s.realm.Name)
		s.setState(WorldStateReady)
		return nil
	case WORLD_AUTH_WAIT_QUEUE:
		Info("Waiting in queue for %s", s.realm.Name)
		return nil
	default:
		return fmt.Errorf("%w: world auth: %w", ErrAuthenticationFailed,
			NewProtocolError("world server rejected session", int(resp.Result), true))
	}
}

func (s *WorldSession) handlePong(opcode uint16, body *ByteBuffer) error {
	var pong PongBody
	if err := unpackWorld(body.Unread(), &pong); err != nil {
		return NewProtocolError(err.Error(), 0, false)
	}
	s.mu.RLock()
	serial, sentAt := s.pingSerial, s.pingSentAt
	s.mu.RUnlock()
	if pong.Serial == serial && !sentAt.IsZero() {
		s.metrics.RecordRoundTrip(WORLD_SESSION_NAME, CMSG_PING, time.Since(sentAt))
	}
	return nil
}
