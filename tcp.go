package go_realmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ResolveAddr normalizes a server address to host:port form. Addresses without
// a port get defaultPort; realm addresses from the realm list always carry one.
func ResolveAddr(address, defaultPort string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidArgument)
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		// no port present, treat the whole string as the host
		host = address
		port = defaultPort
	}
	if host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidArgument, address)
	}
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(host, port), nil
}

// Tcp is the stream transport of one session. It is owned by the session
// goroutine; no other goroutine reads from or writes to the connection.
type Tcp struct {
	address string
	conn    net.Conn
}

// Init sets the address Connect will dial.
func (tcp *Tcp) Init(address, defaultPort string) (err error) {
	addr, err := ResolveAddr(address, defaultPort)
	if err == nil {
		tcp.address = addr
	}
	return
}

// Connect dials the configured address. The context bounds the dial only.
func (tcp *Tcp) Connect(ctx context.Context, timeout time.Duration) (err error) {
	if tcp.address == "" {
		return fmt.Errorf("%w: no address configured", ErrNotConnected)
	}
	if tcp.conn != nil {
		return ErrAlreadyConnected
	}
	dialer := net.Dialer{Timeout: timeout}
	Debug("Establishing TCP connection to %s", tcp.address)
	tcp.conn, err = dialer.DialContext(ctx, "tcp", tcp.address)
	if err != nil {
		tcp.conn = nil
		return fmt.Errorf("realmd: failed to dial TCP connection to %s: %w", tcp.address, err)
	}
	return nil
}

// Attach adopts an already established connection.
func (tcp *Tcp) Attach(conn net.Conn) {
	tcp.conn = conn
	if conn != nil && conn.RemoteAddr() != nil {
		tcp.address = conn.RemoteAddr().String()
	}
}

// Send writes the whole buffer to the connection.
func (tcp *Tcp) Send(buf *ByteBuffer) (int, error) {
	return tcp.SendBytes(buf.Bytes())
}

// SendBytes writes p to the connection, looping until every byte is written.
func (tcp *Tcp) SendBytes(p []byte) (int, error) {
	if tcp.conn == nil {
		return 0, ErrNotConnected
	}
	total := 0
	for total < len(p) {
		i, err := tcp.conn.Write(p[total:])
		total += i
		if err != nil {
			return total, fmt.Errorf("%w: write: %v", ErrConnectionClosed, err)
		}
	}
	return total, nil
}

// Receive reads exactly n bytes from the connection and appends them to buf.
// Partial reads are accumulated until n bytes arrived. A zero-byte read or
// EOF before that is reported as ErrConnectionClosed, never as short data.
func (tcp *Tcp) Receive(buf *ByteBuffer, n int) (int, error) {
	if tcp.conn == nil {
		return 0, ErrNotConnected
	}
	chunk := make([]byte, n)
	total := 0
	for total < n {
		i, err := tcp.conn.Read(chunk[total:])
		total += i
		if err != nil {
			if i > 0 && total == n {
				break
			}
			buf.Write(chunk[:total])
			if isTimeout(err) {
				return total, err
			}
			if errors.Is(err, io.EOF) {
				return total, fmt.Errorf("%w: peer closed after %d/%d bytes", ErrConnectionClosed, total, n)
			}
			return total, fmt.Errorf("%w: read: %v", ErrConnectionClosed, err)
		}
		if i == 0 {
			buf.Write(chunk[:total])
			return total, fmt.Errorf("%w: zero-byte read after %d/%d bytes", ErrConnectionClosed, total, n)
		}
	}
	buf.Write(chunk)
	return total, nil
}

// Poll waits up to timeout for the first byte of the next message and appends
// it to buf. It returns false without error when nothing arrived in time, so
// the caller can observe shutdown between messages.
func (tcp *Tcp) Poll(buf *ByteBuffer, timeout time.Duration) (bool, error) {
	if tcp.conn == nil {
		return false, ErrNotConnected
	}
	if err := tcp.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, fmt.Errorf("%w: set deadline: %v", ErrConnectionClosed, err)
	}
	_, err := tcp.Receive(buf, 1)
	tcp.clearDeadline()
	if err != nil {
		if isTimeout(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReceiveWithin is Receive bounded by a deadline. A zero timeout waits forever.
func (tcp *Tcp) ReceiveWithin(buf *ByteBuffer, n int, timeout time.Duration) (int, error) {
	if tcp.conn == nil {
		return 0, ErrNotConnected
	}
	if timeout > 0 {
		if err := tcp.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, fmt.Errorf("%w: set deadline: %v", ErrConnectionClosed, err)
		}
		defer tcp.clearDeadline()
	}
	i, err := tcp.Receive(buf, n)
	if err != nil && isTimeout(err) {
		return i, fmt.Errorf("%w: no response within %s", ErrConnectionClosed, timeout)
	}
	return i, err
}

func (tcp *Tcp) clearDeadline() {
	var zero time.Time
	tcp.conn.SetReadDeadline(zero)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Disconnect closes the connection. It is safe to call more than once.
func (tcp *Tcp) Disconnect() {
	if tcp.conn != nil {
		if tcp.address != "" {
			Debug("Closing connection to %s", tcp.address)
		}
		tcp.conn.Close()
		tcp.conn = nil
	}
}

// IsConnected reports whether a connection is held.
func (tcp *Tcp) IsConnected() bool {
	return tcp.conn != nil
}

// Address returns the host:port this transport dials.
func (tcp *Tcp) Address() string {
	return tcp.address
}
