package go_realmd

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
)

// FieldKind is the closed set of field encodings used by the protocol.
type FieldKind uint8

const (
	// ScalarKind is a fixed-width number in the buffer's endianness.
	ScalarKind FieldKind = iota
	// ArrayKind is a fixed-size byte array, optionally byte-reversed on the wire.
	ArrayKind
	// BlockKind is a length-prefixed variable block (one length byte, then data).
	BlockKind
	// CStringKind is a null-terminated string.
	CStringKind
)

func (k FieldKind) String() string {
	switch k {
	case ScalarKind:
		return "scalar"
	case ArrayKind:
		return "array"
	case BlockKind:
		return "block"
	case CStringKind:
		return "cstring"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ScalarType identifies the width and interpretation of a scalar field.
type ScalarType uint8

const (
	Uint8 ScalarType = iota
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Float32
)

// Width returns the encoded size in bytes.
func (t ScalarType) Width() int {
	switch t {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	default:
		return 8
	}
}

func (t ScalarType) signed() bool {
	return t == Int8 || t == Int16 || t == Int32
}

func (t ScalarType) String() string {
	return [...]string{"u8", "u16", "u32", "u64", "i8", "i16", "i32", "f32"}[t]
}

// Field is one named, typed slot of a packet. The kind is fixed at construction;
// setters enforce the field's capacity and fail with ErrFieldOverflow rather
// than truncating. Loading never validates semantic ranges.
type Field struct {
	name     string
	kind     FieldKind
	scalar   ScalarType
	size     int
	reversed bool
	num      uint64
	data     []byte
}

// Scalar declares a fixed-width numeric field.
func Scalar(name string, typ ScalarType) *Field {
	return &Field{name: name, kind: ScalarKind, scalar: typ, size: typ.Width()}
}

// Array declares a fixed-size byte array copied to the wire in natural order.
func Array(name string, size int) *Field {
	return &Field{name: name, kind: ArrayKind, size: size, data: make([]byte, size)}
}

// ReversedArray declares a fixed-size byte array that travels byte-reversed.
func ReversedArray(name string, size int) *Field {
	f := Array(name, size)
	f.reversed = true
	return f
}

// Block declares a length-prefixed variable block of at most 255 bytes.
func Block(name string) *Field {
	return &Field{name: name, kind: BlockKind, size: MAX_BLOCK_LENGTH}
}

// CString declares a null-terminated string field.
func CString(name string) *Field {
	return &Field{name: name, kind: CStringKind}
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Kind returns the field encoding.
func (f *Field) Kind() FieldKind { return f.kind }

// Size returns the number of bytes the field occupies on the wire with its current value.
func (f *Field) Size() int {
	switch f.kind {
	case ScalarKind, ArrayKind:
		return f.size
	case BlockKind:
		return 1 + len(f.data)
	default:
		return len(f.data) + 1
	}
}

// SetUint stores an unsigned value in a scalar field.
func (f *Field) SetUint(v uint64) error {
	if f.kind != ScalarKind || f.scalar == Float32 {
		return fmt.Errorf("%w: SetUint on %s field %s", ErrInvalidArgument, f.kind, f.name)
	}
	if f.scalar.signed() {
		if v > math.MaxInt64 {
			return fmt.Errorf("%w: %d does not fit %s field %s", ErrFieldOverflow, v, f.scalar, f.name)
		}
		return f.SetInt(int64(v))
	}
	if width := f.scalar.Width(); width < 8 && v>>(uint(width)*8) != 0 {
		return fmt.Errorf("%w: %d does not fit %s field %s", ErrFieldOverflow, v, f.scalar, f.name)
	}
	f.num = v
	return nil
}

// SetInt stores a signed value in a scalar field.
func (f *Field) SetInt(v int64) error {
	if f.kind != ScalarKind || f.scalar == Float32 {
		return fmt.Errorf("%w: SetInt on %s field %s", ErrInvalidArgument, f.kind, f.name)
	}
	if !f.scalar.signed() {
		if v < 0 {
			return fmt.Errorf("%w: negative %d for %s field %s", ErrFieldOverflow, v, f.scalar, f.name)
		}
		return f.SetUint(uint64(v))
	}
	bits := uint(f.scalar.Width()) * 8
	lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
	if v < lo || v > hi {
		return fmt.Errorf("%w: %d does not fit %s field %s", ErrFieldOverflow, v, f.scalar, f.name)
	}
	f.num = uint64(v) & (1<<bits - 1)
	return nil
}

// SetFloat stores a value in a Float32 scalar field.
func (f *Field) SetFloat(v float32) error {
	if f.kind != ScalarKind || f.scalar != Float32 {
		return fmt.Errorf("%w: SetFloat on non-float field %s", ErrInvalidArgument, f.name)
	}
	f.num = uint64(math.Float32bits(v))
	return nil
}

// SetBytes stores a byte value. Arrays accept up to their size and are
// zero-padded; blocks accept up to 255 bytes; strings reject NUL bytes.
func (f *Field) SetBytes(p []byte) error {
	switch f.kind {
	case ArrayKind:
		if len(p) > f.size {
			return fmt.Errorf("%w: %d bytes for %d-byte field %s", ErrFieldOverflow, len(p), f.size, f.name)
		}
		clear(f.data)
		copy(f.data, p)
	case BlockKind:
		if len(p) > f.size {
			return fmt.Errorf("%w: %d bytes for block field %s", ErrFieldOverflow, len(p), f.name)
		}
		f.data = append(f.data[:0], p...)
	case CStringKind:
		if bytes.IndexByte(p, 0) >= 0 {
			return fmt.Errorf("%w: NUL byte in string field %s", ErrInvalidArgument, f.name)
		}
		f.data = append(f.data[:0], p...)
	default:
		return fmt.Errorf("%w: SetBytes on scalar field %s", ErrInvalidArgument, f.name)
	}
	return nil
}

// SetString is SetBytes for text values.
func (f *Field) SetString(s string) error {
	return f.SetBytes([]byte(s))
}

// Uint returns a scalar field's value as unsigned.
func (f *Field) Uint() uint64 {
	return f.num
}

// Int returns a scalar field's value sign-extended to 64 bits.
func (f *Field) Int() int64 {
	if !f.scalar.signed() {
		return int64(f.num)
	}
	shift := 64 - uint(f.scalar.Width())*8
	return int64(f.num<<shift) >> shift
}

// Float returns a Float32 field's value.
func (f *Field) Float() float32 {
	return math.Float32frombits(uint32(f.num))
}

// Bytes returns a copy of an array, block or string field's value.
func (f *Field) Bytes() []byte {
	return append([]byte(nil), f.data...)
}

// Text returns the value as a string. Arrays are cut at the first NUL byte.
func (f *Field) Text() string {
	if f.kind == ArrayKind {
		if i := bytes.IndexByte(f.data, 0); i >= 0 {
			return string(f.data[:i])
		}
	}
	return string(f.data)
}

// Equal reports whether two fields have the same declaration and value.
func (f *Field) Equal(o *Field) bool {
	return f.name == o.name && f.kind == o.kind && f.scalar == o.scalar &&
		f.size == o.size && f.reversed == o.reversed && f.num == o.num &&
		bytes.Equal(f.data, o.data)
}

// String renders the field value for packet dumps.
func (f *Field) String() string {
	switch f.kind {
	case ScalarKind:
		switch {
		case f.scalar == Float32:
			return fmt.Sprintf("%g", f.Float())
		case f.scalar.signed():
			return fmt.Sprintf("%d", f.Int())
		default:
			return fmt.Sprintf("%d", f.num)
		}
	case CStringKind:
		return fmt.Sprintf("%q", f.data)
	default:
		return hex.EncodeToString(f.data)
	}
}

// save encodes the field at the end of the buffer.
func (f *Field) save(b *ByteBuffer) error {
	switch f.kind {
	case ScalarKind:
		switch f.scalar.Width() {
		case 1:
			b.WriteUint8(uint8(f.num))
		case 2:
			b.WriteUint16(uint16(f.num))
		case 4:
			b.WriteUint32(uint32(f.num))
		default:
			b.WriteUint64(f.num)
		}
	case ArrayKind:
		if f.reversed {
			b.WriteReversed(f.data)
		} else {
			b.Write(f.data)
		}
	case BlockKind:
		return b.WriteBlock(f.data)
	case CStringKind:
		return b.WriteCString(string(f.data))
	}
	return nil
}

// load decodes the field from the buffer cursor.
func (f *Field) load(b *ByteBuffer) (err error) {
	switch f.kind {
	case ScalarKind:
		switch f.scalar.Width() {
		case 1:
			var v uint8
			v, err = b.ReadUint8()
			f.num = uint64(v)
		case 2:
			var v uint16
			v, err = b.ReadUint16()
			f.num = uint64(v)
		case 4:
			var v uint32
			v, err = b.ReadUint32()
			f.num = uint64(v)
		default:
			f.num, err = b.ReadUint64()
		}
	case ArrayKind:
		var p []byte
		if f.reversed {
			p, err = b.ReadReversed(f.size)
		} else {
			p, err = b.ReadBytes(f.size)
		}
		if err == nil {
			f.data = p
		}
	case BlockKind:
		var p []byte
		if p, err = b.ReadBlock(); err == nil {
			f.data = p
		}
	case CStringKind:
		var s string
		if s, err = b.ReadCString(); err == nil {
			f.data = []byte(s)
		}
	}
	return err
}
