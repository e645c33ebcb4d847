package go_realmd

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func testRealmList(worldAddr string) []Realm {
	return []Realm{
		{
			ID: 1, Name: "Icecrown", Address: worldAddr, Population: 1.5, Characters: 2,
			Flags: REALM_FLAG_SPECIFY_BUILD, Version: NewVersion(3, 3, 5), Build: 12340,
		},
		{ID: 2, Name: "Lordaeron", Address: "127.0.0.1:1", Flags: REALM_FLAG_OFFLINE, Type: 1},
	}
}

// TestAuthSession_LoginAndRealmList tests a full logon followed by realm list polling
func TestAuthSession_LoginAndRealmList(t *testing.T) {
	logon := startFakeLogonServer(t, &fakeLogonServer{
		password: "secret",
		realms:   testRealmList("127.0.0.1:8085"),
	})
	metrics := NewInMemoryMetrics()

	s, err := NewAuthSession(testConfig())
	if err != nil {
		t.Fatalf("NewAuthSession() error = %v", err)
	}
	s.SetMetrics(metrics)
	if err := s.Connect(context.Background(), logon.addr()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close()

	if err := s.Login("player", "SeCrEt"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	waitFor(t, "realm list", func() bool { return len(s.Realms()) == 2 })

	if got := s.State(); got != AuthStateRealmList {
		t.Errorf("State() = %s, want realm_list", got)
	}
	if got := s.Username(); got != "PLAYER" {
		t.Errorf("Username() = %q", got)
	}
	key, err := s.SessionKey()
	if err != nil {
		t.Fatalf("SessionKey() error = %v", err)
	}
	if key != logon.sessionKey() {
		t.Error("client and server session keys differ")
	}

	realm, err := s.Realm(1)
	if err != nil {
		t.Fatalf("Realm(1) error = %v", err)
	}
	if realm.Name != "Icecrown" || !realm.HasBuildInfo() || realm.Build != 12340 || realm.Version.String() != "3.3.5" {
		t.Errorf("Realm(1) = %+v", realm)
	}
	if _, err := s.Realm(9); !errors.Is(err, ErrUnknownRealm) {
		t.Errorf("Realm(9) error = %v", err)
	}
	if online := OnlineRealms(s.Realms()); len(online) != 1 {
		t.Errorf("OnlineRealms() = %v", online)
	}

	req := NewLogonChallengeRequest()
	if err := req.LoadBuffer(NewByteBufferFrom(logon.challengeRequest())); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	if req.Account.Text() != "PLAYER" || req.Build.Uint() != 12340 || req.Game.Text() != "WoW" {
		t.Errorf("challenge = %s", req)
	}

	waitFor(t, "second realm list poll", func() bool { return logon.realmListRequests() >= 2 })
	if got := metrics.PacketsReceived(AUTH_SESSION_NAME, uint16(AUTH_CMD_LOGON_PROOF)); got != 1 {
		t.Errorf("proof responses = %d, want 1", got)
	}
	if metrics.BytesSent() == 0 || metrics.BytesReceived() == 0 {
		t.Error("byte counters not updated")
	}

	s.Close()
	waitDone(t, s.Done())
	if got := s.State(); got != AuthStateClosed {
		t.Errorf("State() after Close = %s", got)
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v after a clean close", s.Err())
	}
	if got := metrics.ConnectionState(AUTH_SESSION_NAME); got != "closed" {
		t.Errorf("recorded state = %q", got)
	}
}

// TestAuthSession_WrongPassword tests that a rejected proof fails the session
func TestAuthSession_WrongPassword(t *testing.T) {
	logon := startFakeLogonServer(t, &fakeLogonServer{password: "secret"})
	metrics := NewInMemoryMetrics()

	s, err := NewAuthSession(testConfig())
	if err != nil {
		t.Fatalf("NewAuthSession() error = %v", err)
	}
	s.SetMetrics(metrics)
	if err := s.Connect(context.Background(), logon.addr()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close()
	if err := s.Login("player", "guess"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	waitDone(t, s.Done())

	if got := s.State(); got != AuthStateFailed {
		t.Fatalf("State() = %s, want failed", got)
	}
	err = s.Err()
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("Err() = %v, want ErrAuthenticationFailed", err)
	}
	var sessionErr *SessionError
	if !errors.As(err, &sessionErr) || sessionErr.State != "logon_proof" {
		t.Errorf("failed state = %v", sessionErr)
	}
	var proto *ProtocolError
	if !errors.As(err, &proto) || proto.Code != int(AUTH_RESULT_INCORRECT_PASSWORD) {
		t.Errorf("protocol error = %v", proto)
	}
	if _, err := s.SessionKey(); !errors.Is(err, ErrNoSessionKey) {
		t.Errorf("SessionKey() error = %v", err)
	}
	if got := metrics.Errors("auth"); got != 1 {
		t.Errorf("Errors(auth) = %d, want 1", got)
	}
	if err := s.Login("player", "secret"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Login() after failure error = %v", err)
	}

	s.Close()
	if got := s.State(); got != AuthStateFailed {
		t.Errorf("Close() overwrote failed state with %s", got)
	}
}

// TestAuthSession_ChallengeRejected tests failures reported in the challenge response
func TestAuthSession_ChallengeRejected(t *testing.T) {
	tests := []struct {
		name   string
		status uint8
		flags  uint8
	}{
		{"banned", AUTH_RESULT_FAIL_BANNED, 0},
		{"unknown account", AUTH_RESULT_UNKNOWN_ACCOUNT, 0},
		{"pin required", AUTH_RESULT_SUCCESS, SECURITY_FLAG_PIN},
		{"matrix and token", AUTH_RESULT_SUCCESS, SECURITY_FLAG_MATRIX | SECURITY_FLAG_TOKEN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logon := startFakeLogonServer(t, &fakeLogonServer{
				password:        "x",
				challengeStatus: tt.status,
				securityFlags:   tt.flags,
			})

			s, err := NewAuthSession(testConfig())
			if err != nil {
				t.Fatalf("NewAuthSession() error = %v", err)
			}
			if err := s.Connect(context.Background(), logon.addr()); err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			defer s.Close()
			if err := s.Login("player", "x"); err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			waitDone(t, s.Done())

			err = s.Err()
			if !errors.Is(err, ErrAuthenticationFailed) {
				t.Fatalf("Err() = %v, want ErrAuthenticationFailed", err)
			}
			var sessionErr *SessionError
			if !errors.As(err, &sessionErr) || sessionErr.State != "challenge" {
				t.Errorf("failed state = %v", sessionErr)
			}
			var proto *ProtocolError
			if tt.status != AUTH_RESULT_SUCCESS && (!errors.As(err, &proto) || proto.Code != int(tt.status)) {
				t.Errorf("protocol error = %v, want code %d", proto, tt.status)
			}
		})
	}
}

// TestAuthSession_LoginValidation tests argument and state checks of Login
func TestAuthSession_LoginValidation(t *testing.T) {
	s, err := NewAuthSession(testConfig())
	if err != nil {
		t.Fatalf("NewAuthSession() error = %v", err)
	}

	tests := []struct {
		username, password string
	}{
		{"", "secret"},
		{"player", ""},
		{strings.Repeat("A", MAX_BLOCK_LENGTH+1), "secret"},
	}
	for _, tt := range tests {
		if err := s.Login(tt.username, tt.password); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Login(%.8q, %q) error = %v, want ErrInvalidArgument", tt.username, tt.password, err)
		}
	}

	if err := s.Login("player", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := s.Login("player", "secret"); !errors.Is(err, ErrLoginInProgress) {
		t.Errorf("second Login() error = %v, want ErrLoginInProgress", err)
	}

	s.Close()
	waitDone(t, s.Done())
	if got := s.State(); got != AuthStateClosed {
		t.Errorf("State() = %s, want closed", got)
	}
	if err := s.Connect(context.Background(), "127.0.0.1:3724"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Connect() after Close error = %v", err)
	}
}

// TestAuthSession_ConnectErrors tests dial failures and repeated Connect
func TestAuthSession_ConnectErrors(t *testing.T) {
	cfg := testConfig()
	cfg.AuthAddress = ""
	s, err := NewAuthSession(cfg)
	if err != nil {
		t.Fatalf("NewAuthSession() error = %v", err)
	}
	defer s.Close()

	if err := s.Connect(context.Background(), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Connect(\"\") error = %v, want ErrInvalidArgument", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	closedAddr := ln.Addr().String()
	ln.Close()
	if err := s.Connect(context.Background(), closedAddr); err == nil {
		t.Fatal("Connect() to a closed port succeeded")
	}

	addr := silentListener(t)
	if err := s.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect() after a failed dial error = %v", err)
	}
	if err := s.Connect(context.Background(), addr); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
}

// TestAuthSession_CloseWhileWaiting tests that Close interrupts a pending response
func TestAuthSession_CloseWhileWaiting(t *testing.T) {
	s, err := NewAuthSession(testConfig())
	if err != nil {
		t.Fatalf("NewAuthSession() error = %v", err)
	}
	if err := s.Connect(context.Background(), silentListener(t)); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Login("player", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	waitFor(t, "challenge state", func() bool { return s.State() == AuthStateChallenge })

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close() did not return while a response was pending")
	}
	if got := s.State(); got != AuthStateClosed {
		t.Errorf("State() = %s, want closed", got)
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v", s.Err())
	}
}

// TestAuthSession_InvalidConfig tests that NewAuthSession validates its configuration
func TestAuthSession_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Locale = "english"
	if _, err := NewAuthSession(cfg); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("NewAuthSession() error = %v, want ErrInvalidConfiguration", err)
	}
}

// TestAuthSession_ConnectToRealm tests handing the session key to a world session
func TestAuthSession_ConnectToRealm(t *testing.T) {
	world := newFakeWorldServer(t)
	logon := startFakeLogonServer(t, &fakeLogonServer{
		password: "secret",
		realms:   testRealmList(world.addr()),
	})

	cfg := testConfig()
	cfg.Addons = []AddonEntry{{Name: "Blizzard_AuctionUI", Signed: true, CRC: 0x4C1C776D}}
	s, err := NewAuthSession(cfg)
	if err != nil {
		t.Fatalf("NewAuthSession() error = %v", err)
	}
	if err := s.Connect(context.Background(), logon.addr()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close()

	if _, err := s.ConnectToRealm(context.Background(), 1); !errors.Is(err, ErrUnknownRealm) {
		t.Errorf("ConnectToRealm() before login error = %v, want ErrUnknownRealm", err)
	}
	if err := s.Login("player", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	waitFor(t, "realm list", func() bool { return len(s.Realms()) > 0 })

	world.keys <- logon.sessionKey()
	ws, err := s.ConnectToRealm(context.Background(), 1)
	if err != nil {
		t.Fatalf("ConnectToRealm() error = %v", err)
	}
	defer ws.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}

	auth := <-world.auth
	if !auth.valid {
		t.Error("world server rejected the auth session digest")
	}
	if auth.account != "PLAYER" || auth.realmID != 1 || auth.build != 12340 {
		t.Errorf("auth session = %+v", auth)
	}
	if auth.addons == nil || len(auth.addons.Addons) != 1 || auth.addons.Addons[0].Name != "Blizzard_AuctionUI" {
		t.Errorf("addons = %+v", auth.addons)
	}
	if got := ws.Realm().Name; got != "Icecrown" {
		t.Errorf("Realm() = %q", got)
	}
	if got := s.State(); got != AuthStateRealmList {
		t.Errorf("auth session left realm_list: %s", got)
	}
}

// TestDecodeRealmList tests realm list payload decoding
func TestDecodeRealmList(t *testing.T) {
	realms := testRealmList("127.0.0.1:8085")
	payload, err := encodeRealmList(realms)
	if err != nil {
		t.Fatalf("encodeRealmList() error = %v", err)
	}

	decoded, err := decodeRealmList(NewByteBufferFrom(payload))
	if err != nil {
		t.Fatalf("decodeRealmList() error = %v", err)
	}
	if len(decoded) != len(realms) {
		t.Fatalf("decoded %d realms, want %d", len(decoded), len(realms))
	}
	for i := range realms {
		got, want := decoded[i], realms[i]
		if got.ID != want.ID || got.Name != want.Name || got.Address != want.Address ||
			got.Flags != want.Flags || got.Build != want.Build || got.Population != want.Population {
			t.Errorf("realm %d = %+v, want %+v", i, got, want)
		}
	}

	if _, err := decodeRealmList(NewByteBufferFrom(payload[:len(payload)-2])); !errors.Is(err, ErrBufferUnderrun) {
		t.Errorf("missing trailer error = %v", err)
	}
	if _, err := decodeRealmList(NewByteBufferFrom(payload[:20])); !errors.Is(err, ErrBufferUnderrun) {
		t.Errorf("truncated entry error = %v", err)
	}
}

// TestAuthState_String tests state names
func TestAuthState_String(t *testing.T) {
	names := map[AuthState]string{
		AuthStateInvalid:    "invalid",
		AuthStateChallenge:  "challenge",
		AuthStateLogonProof: "logon_proof",
		AuthStateRealmList:  "realm_list",
		AuthStateFailed:     "failed",
		AuthStateClosed:     "closed",
		AuthState(42):       "state(42)",
	}
	for state, want := range names {
		if got := state.String(); got != want {
			t.Errorf("AuthState(%d).String() = %q, want %q", int32(state), got, want)
		}
	}
}
