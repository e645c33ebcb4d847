package go_realmd

import (
	"fmt"
	"strings"
)

// Packet is an ordered list of fields. The order given to NewPacket is the
// wire format; there is no per-field tag or length other than what a block
// field carries itself. Packets are created fresh for every message.
type Packet struct {
	name   string
	fields []*Field
	index  map[string]*Field
}

// NewPacket declares a packet schema. Field names must be unique within the packet.
func NewPacket(name string, fields ...*Field) *Packet {
	p := &Packet{
		name:   name,
		fields: fields,
		index:  make(map[string]*Field, len(fields)),
	}
	for _, f := range fields {
		if _, dup := p.index[f.name]; dup {
			panic(fmt.Sprintf("realmd: duplicate field %q in packet %s", f.name, name))
		}
		p.index[f.name] = f
	}
	return p
}

// Name returns the schema name used in logs and errors.
func (p *Packet) Name() string {
	return p.name
}

// Field returns the named field, or nil when the schema has no such field.
func (p *Packet) Field(name string) *Field {
	return p.index[name]
}

// Fields returns the fields in wire order.
func (p *Packet) Fields() []*Field {
	return p.fields
}

// Size returns the encoded size of the packet with its current values.
func (p *Packet) Size() int {
	n := 0
	for _, f := range p.fields {
		n += f.Size()
	}
	return n
}

// SaveBuffer appends every field to the buffer in declared order.
func (p *Packet) SaveBuffer(b *ByteBuffer) error {
	for _, f := range p.fields {
		if err := f.save(b); err != nil {
			return NewPacketError(p.name, f.name, "save", err)
		}
	}
	return nil
}

// LoadBuffer decodes every field from the buffer cursor in declared order.
// On failure the cursor is restored and the error names the failing field;
// there is no partial-success decode.
func (p *Packet) LoadBuffer(b *ByteBuffer) error {
	start := b.ReadPos()
	for _, f := range p.fields {
		if err := f.load(b); err != nil {
			b.SetReadPos(start)
			return NewPacketError(p.name, f.name, "load", err)
		}
	}
	return nil
}

// ForEachField calls fn for every field in wire order.
func (p *Packet) ForEachField(fn func(*Field)) {
	for _, f := range p.fields {
		fn(f)
	}
}

// Equal reports whether both packets have the same schema and values.
func (p *Packet) Equal(o *Packet) bool {
	if p.name != o.name || len(p.fields) != len(o.fields) {
		return false
	}
	for i := range p.fields {
		if !p.fields[i].Equal(o.fields[i]) {
			return false
		}
	}
	return true
}

// String renders "name{field: value, ...}" for debug output.
func (p *Packet) String() string {
	var sb strings.Builder
	sb.WriteString(p.name)
	sb.WriteByte('{')
	for i, f := range p.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.name)
		sb.WriteString(": ")
		sb.WriteString(f.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// dumpPacket logs every field of a packet at debug level. Fields listed in
// redact are printed as "<redacted>".
func dumpPacket(direction string, p *Packet, redact ...string) {
	Debug("[%s %s]", direction, p.name)
	p.ForEachField(func(f *Field) {
		for _, r := range redact {
			if f.name == r {
				Debug("  %s: <redacted>", f.name)
				return
			}
		}
		Debug("  %s: %s", f.name, f.String())
	})
}

// firstError returns the first non-nil error, for chains of field setters.
func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
