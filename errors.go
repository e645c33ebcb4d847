package go_realmd

import (
	"errors"
	"fmt"
)

// Standard Errors
//
// These errors follow Go 1.13+ error wrapping conventions and can be
// checked using errors.Is() and errors.As(). The codec and crypto layers
// return them unwrapped or wrapped with context; the session goroutines
// record them and stop.

var (
	// ErrBufferUnderrun indicates a read needed more bytes than remain in the buffer.
	ErrBufferUnderrun = errors.New("realmd: buffer underrun")

	// ErrBufferOverflow indicates a value does not fit the wire representation
	// (a block longer than its length prefix allows, a number wider than its array).
	ErrBufferOverflow = errors.New("realmd: buffer overflow")

	// ErrFieldOverflow indicates a value wider than a packet field's fixed capacity.
	ErrFieldOverflow = errors.New("realmd: value exceeds field capacity")

	// ErrCryptoParameter indicates invalid key exchange parameters (N, g, B)
	// or misuse of a hash object after it was finalized.
	ErrCryptoParameter = errors.New("realmd: invalid crypto parameter")

	// ErrNotInitialized indicates the session cipher was used before it was keyed.
	ErrNotInitialized = errors.New("realmd: cipher not initialized")

	// ErrConnectionClosed indicates the peer closed the connection or the socket failed.
	// A zero-byte read is reported as this error, never as empty data.
	ErrConnectionClosed = errors.New("realmd: connection closed")

	// ErrNotConnected indicates an operation requires an established connection.
	ErrNotConnected = errors.New("realmd: not connected")

	// ErrAlreadyConnected indicates Connect() was called twice on the same session.
	ErrAlreadyConnected = errors.New("realmd: already connected")

	// ErrAuthenticationFailed indicates the server rejected the login or its proof did not verify.
	ErrAuthenticationFailed = errors.New("realmd: authentication failed")

	// ErrLoginInProgress indicates Login() was called after a login already started.
	ErrLoginInProgress = errors.New("realmd: login already in progress")

	// ErrNoSessionKey indicates the session key is not available yet.
	ErrNoSessionKey = errors.New("realmd: session key not available")

	// ErrUnknownRealm indicates the requested realm is not in the current realm list.
	ErrUnknownRealm = errors.New("realmd: unknown realm")

	// ErrUnexpectedCommand indicates a response carried a different command than the request.
	ErrUnexpectedCommand = errors.New("realmd: unexpected command")

	// ErrSessionClosed indicates an operation was attempted on a closed session.
	ErrSessionClosed = errors.New("realmd: session closed")

	// ErrInvalidConfiguration indicates the client configuration is invalid.
	ErrInvalidConfiguration = errors.New("realmd: invalid configuration")

	// ErrInvalidArgument indicates a nil or invalid argument was passed to a public API method.
	ErrInvalidArgument = errors.New("realmd: invalid argument")
)

// PacketError represents a failure while encoding or decoding a packet.
// It names the packet and, when known, the field that failed.
type PacketError struct {
	Packet    string // Packet schema name
	Field     string // Field name, empty when the failure is not field specific
	Operation string // "save" or "load"
	Err       error  // Underlying error
}

func (e *PacketError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("realmd: packet %s %s failed: %v", e.Packet, e.Operation, e.Err)
	}
	return fmt.Sprintf("realmd: packet %s field %s %s failed: %v", e.Packet, e.Field, e.Operation, e.Err)
}

func (e *PacketError) Unwrap() error {
	return e.Err
}

// NewPacketError creates a PacketError with the given parameters.
func NewPacketError(packet, field, operation string, err error) error {
	return &PacketError{
		Packet:    packet,
		Field:     field,
		Operation: operation,
		Err:       err,
	}
}

// SessionError represents an error that terminated a session state machine.
// It records which session and which state the failure occurred in.
type SessionError struct {
	Session string // "auth" or "world"
	State   string // State name at the time of failure
	Err     error  // Underlying error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("realmd: %s session failed in state %s: %v", e.Session, e.State, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError creates a SessionError with the given parameters.
//
// Example:
//
//	if err := s.handleChallenge(); err != nil {
//	    return NewSessionError("auth", s.State().String(), err)
//	}
func NewSessionError(session, state string, err error) error {
	return &SessionError{
		Session: session,
		State:   state,
		Err:     err,
	}
}

// ProtocolError represents a protocol-level error reported by the server,
// such as a non-success status byte.
type ProtocolError struct {
	Message string // Human-readable error description
	Code    int    // Status code received from the server
	Fatal   bool   // Whether this error terminates the session
}

func (e *ProtocolError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("realmd protocol error (code %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("realmd protocol error: %s", e.Message)
}

// NewProtocolError creates a ProtocolError.
func NewProtocolError(message string, code int, fatal bool) error {
	return &ProtocolError{
		Message: message,
		Code:    code,
		Fatal:   fatal,
	}
}

// IsFatal returns true if the error must terminate the session that observed it.
// Every codec, crypto and transport failure is fatal; only ProtocolErrors
// explicitly marked non-fatal are not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Fatal
	}

	return true
}
