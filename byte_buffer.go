package go_realmd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/crypto/cryptobyte"
)

// DEFAULT_BUFFER_SIZE is the initial capacity of a ByteBuffer.
const DEFAULT_BUFFER_SIZE = 0x1000

// Endianness selects the byte order used for scalar values.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

func (e Endianness) String() string {
	if e == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// ByteBuffer is the wire codec used by every packet. It owns a growable byte
// sequence and a read cursor:
//   - Write* methods append at the end, scalars in the configured endianness
//   - Read* methods consume from the cursor and fail with ErrBufferUnderrun
//     instead of reading past the end
//   - Reset clears both contents and cursor between messages
//
// The cursor never exceeds Len(). A ByteBuffer is not safe for concurrent use;
// it belongs to the session goroutine that created it.
type ByteBuffer struct {
	endianness Endianness
	order      byteOrder
	data       []byte
	readPos    int
}

// NewByteBuffer creates an empty little-endian ByteBuffer.
func NewByteBuffer() *ByteBuffer {
	return NewByteBufferWithEndianness(LittleEndian)
}

// NewByteBufferWithEndianness creates an empty ByteBuffer using the given scalar byte order.
func NewByteBufferWithEndianness(endianness Endianness) *ByteBuffer {
	b := &ByteBuffer{
		endianness: endianness,
		data:       make([]byte, 0, DEFAULT_BUFFER_SIZE),
	}
	b.setOrder()
	return b
}

// NewByteBufferFrom creates a little-endian ByteBuffer holding a copy of data,
// with the cursor at the beginning.
func NewByteBufferFrom(data []byte) *ByteBuffer {
	b := &ByteBuffer{
		endianness: LittleEndian,
		data:       append(make([]byte, 0, len(data)), data...),
	}
	b.setOrder()
	return b
}

func (b *ByteBuffer) setOrder() {
	if b.endianness == BigEndian {
		b.order = binary.BigEndian
		return
	}
	b.order = binary.LittleEndian
}

// Endianness returns the scalar byte order of the buffer.
func (b *ByteBuffer) Endianness() Endianness {
	return b.endianness
}

// Len returns the total number of bytes held by the buffer.
func (b *ByteBuffer) Len() int {
	return len(b.data)
}

// Remaining returns the number of unread bytes after the cursor.
func (b *ByteBuffer) Remaining() int {
	return len(b.data) - b.readPos
}

// ReadPos returns the cursor position.
func (b *ByteBuffer) ReadPos() int {
	return b.readPos
}

// SetReadPos moves the cursor. Positions outside [0, Len()] fail with ErrBufferUnderrun.
func (b *ByteBuffer) SetReadPos(pos int) error {
	if pos < 0 || pos > len(b.data) {
		return fmt.Errorf("%w: position %d outside buffer of %d bytes", ErrBufferUnderrun, pos, len(b.data))
	}
	b.readPos = pos
	return nil
}

// Bytes returns the buffer contents. The slice aliases the buffer until the next write.
func (b *ByteBuffer) Bytes() []byte {
	return b.data
}

// Unread returns the bytes after the cursor without consuming them.
func (b *ByteBuffer) Unread() []byte {
	return b.data[b.readPos:]
}

// Reset clears the contents and rewinds the cursor, keeping the allocated capacity.
func (b *ByteBuffer) Reset() {
	b.data = b.data[:0]
	b.readPos = 0
}

// Write appends raw bytes. It implements io.Writer and never fails.
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// WriteUint8 appends a single byte.
func (b *ByteBuffer) WriteUint8(v uint8) {
	b.data = append(b.data, v)
}

// WriteUint16 appends a 16-bit value in the buffer's endianness.
func (b *ByteBuffer) WriteUint16(v uint16) {
	b.data = b.order.AppendUint16(b.data, v)
}

// WriteUint32 appends a 32-bit value in the buffer's endianness.
func (b *ByteBuffer) WriteUint32(v uint32) {
	b.data = b.order.AppendUint32(b.data, v)
}

// WriteUint64 appends a 64-bit value in the buffer's endianness.
func (b *ByteBuffer) WriteUint64(v uint64) {
	b.data = b.order.AppendUint64(b.data, v)
}

// WriteFloat32 appends an IEEE-754 single precision value in the buffer's endianness.
func (b *ByteBuffer) WriteFloat32(v float32) {
	b.WriteUint32(math.Float32bits(v))
}

// WriteReversed appends a fixed-size array with its bytes in reverse order.
// Four-character codes are carried this way on the logon wire.
func (b *ByteBuffer) WriteReversed(p []byte) {
	for i := len(p) - 1; i >= 0; i-- {
		b.data = append(b.data, p[i])
	}
}

// WriteBlock appends a length-prefixed block: one length byte followed by the raw bytes.
// Blocks longer than 255 bytes fail with ErrBufferOverflow.
func (b *ByteBuffer) WriteBlock(p []byte) error {
	if len(p) > MAX_BLOCK_LENGTH {
		return fmt.Errorf("%w: block of %d bytes exceeds %d", ErrBufferOverflow, len(p), MAX_BLOCK_LENGTH)
	}
	builder := cryptobyte.NewBuilder(b.data)
	builder.AddUint8LengthPrefixed(func(child *cryptobyte.Builder) {
		child.AddBytes(p)
	})
	out, err := builder.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBufferOverflow, err)
	}
	b.data = out
	return nil
}

// WriteCString appends a null-terminated string. Strings containing a NUL byte
// cannot be represented and fail with ErrInvalidArgument.
func (b *ByteBuffer) WriteCString(s string) error {
	if i := bytes.IndexByte([]byte(s), 0); i >= 0 {
		return fmt.Errorf("%w: string contains NUL at offset %d", ErrInvalidArgument, i)
	}
	b.data = append(b.data, s...)
	b.data = append(b.data, 0)
	return nil
}

// consume advances the cursor by the number of bytes the cryptobyte reader used.
func (b *ByteBuffer) consume(before, after cryptobyte.String) {
	b.readPos += len(before) - len(after)
}

// ReadBytes consumes exactly n raw bytes and returns a copy of them.
func (b *ByteBuffer) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrInvalidArgument, n)
	}
	s := cryptobyte.String(b.Unread())
	var out []byte
	if !s.ReadBytes(&out, n) {
		return nil, fmt.Errorf("%w: need %d bytes, %d remain", ErrBufferUnderrun, n, b.Remaining())
	}
	b.readPos += n
	return append([]byte(nil), out...), nil
}

// Skip advances the cursor by n bytes without copying them.
func (b *ByteBuffer) Skip(n int) error {
	s := cryptobyte.String(b.Unread())
	if n < 0 || !s.Skip(n) {
		return fmt.Errorf("%w: cannot skip %d bytes, %d remain", ErrBufferUnderrun, n, b.Remaining())
	}
	b.readPos += n
	return nil
}

func (b *ByteBuffer) next(n int) ([]byte, error) {
	if b.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, %d remain", ErrBufferUnderrun, n, b.Remaining())
	}
	p := b.data[b.readPos : b.readPos+n]
	b.readPos += n
	return p, nil
}

// ReadUint8 consumes a single byte.
func (b *ByteBuffer) ReadUint8() (uint8, error) {
	p, err := b.next(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadUint16 consumes a 16-bit value in the buffer's endianness.
func (b *ByteBuffer) ReadUint16() (uint16, error) {
	p, err := b.next(2)
	if err != nil {
		return 0, err
	}
	return b.order.Uint16(p), nil
}

// ReadUint32 consumes a 32-bit value in the buffer's endianness.
func (b *ByteBuffer) ReadUint32() (uint32, error) {
	p, err := b.next(4)
	if err != nil {
		return 0, err
	}
	return b.order.Uint32(p), nil
}

// ReadUint64 consumes a 64-bit value in the buffer's endianness.
func (b *ByteBuffer) ReadUint64() (uint64, error) {
	p, err := b.next(8)
	if err != nil {
		return 0, err
	}
	return b.order.Uint64(p), nil
}

// ReadFloat32 consumes an IEEE-754 single precision value.
func (b *ByteBuffer) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadReversed consumes n bytes and returns them in reverse order,
// the counterpart of WriteReversed.
func (b *ByteBuffer) ReadReversed(n int) ([]byte, error) {
	p, err := b.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
	return p, nil
}

// ReadBlock consumes a length-prefixed block and returns a copy of its contents.
func (b *ByteBuffer) ReadBlock() ([]byte, error) {
	before := cryptobyte.String(b.Unread())
	after := before
	var block cryptobyte.String
	if !after.ReadUint8LengthPrefixed(&block) {
		return nil, fmt.Errorf("%w: truncated length-prefixed block", ErrBufferUnderrun)
	}
	b.consume(before, after)
	return append([]byte(nil), block...), nil
}

// ReadCString consumes a null-terminated string. A missing terminator fails
// with ErrBufferUnderrun and leaves the cursor untouched.
func (b *ByteBuffer) ReadCString() (string, error) {
	unread := b.Unread()
	end := bytes.IndexByte(unread, 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string", ErrBufferUnderrun)
	}
	s := cryptobyte.String(unread)
	var str []byte
	if !s.ReadBytes(&str, end) || !s.Skip(1) {
		return "", fmt.Errorf("%w: unterminated string", ErrBufferUnderrun)
	}
	b.consume(cryptobyte.String(unread), s)
	return string(str), nil
}
