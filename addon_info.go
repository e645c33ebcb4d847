package go_realmd

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// MAX_ADDON_INFO_SIZE bounds the decompressed addon block a peer may announce.
const MAX_ADDON_INFO_SIZE = 0xfffff

// AddonEntry is one addon reported in the world auth-session packet.
type AddonEntry struct {
	Name    string
	Signed  bool
	CRC     uint32
	URLHash uint32
}

// AddonInfo is the addon block at the end of CMSG_AUTH_SESSION.
type AddonInfo struct {
	Addons       []AddonEntry
	LastModified uint32
}

// Encode returns the block as sent: the uncompressed size followed by the
// zlib-compressed addon list.
func (a *AddonInfo) Encode() ([]byte, error) {
	raw := NewByteBuffer()
	raw.WriteUint32(uint32(len(a.Addons)))
	for _, addon := range a.Addons {
		if err := raw.WriteCString(addon.Name); err != nil {
			return nil, fmt.Errorf("addon %q: %w", addon.Name, err)
		}
		var signed uint8
		if addon.Signed {
			signed = 1
		}
		raw.WriteUint8(signed)
		raw.WriteUint32(addon.CRC)
		raw.WriteUint32(addon.URLHash)
	}
	raw.WriteUint32(a.LastModified)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("realmd: compress addon info: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("realmd: compress addon info: %w", err)
	}

	out := NewByteBuffer()
	out.WriteUint32(uint32(raw.Len()))
	out.Write(compressed.Bytes())
	return out.Bytes(), nil
}

// DecodeAddonInfo parses a block produced by Encode.
func DecodeAddonInfo(p []byte) (*AddonInfo, error) {
	in := NewByteBufferFrom(p)
	size, err := in.ReadUint32()
	if err != nil {
		return nil, err
	}
	if size > MAX_ADDON_INFO_SIZE {
		return nil, fmt.Errorf("%w: addon info of %d bytes", ErrBufferOverflow, size)
	}
	zr, err := zlib.NewReader(bytes.NewReader(in.Unread()))
	if err != nil {
		return nil, fmt.Errorf("realmd: decompress addon info: %w", err)
	}
	defer zr.Close()
	data := make([]byte, size)
	if _, err := io.ReadFull(zr, data); err != nil {
		return nil, fmt.Errorf("%w: decompress addon info: %v", ErrBufferUnderrun, err)
	}

	raw := NewByteBufferFrom(data)
	count, err := raw.ReadUint32()
	if err != nil {
		return nil, err
	}
	info := &AddonInfo{}
	for i := uint32(0); i < count; i++ {
		var entry AddonEntry
		if entry.Name, err = raw.ReadCString(); err != nil {
			return nil, err
		}
		signed, err := raw.ReadUint8()
		if err != nil {
			return nil, err
		}
		entry.Signed = signed != 0
		if entry.CRC, err = raw.ReadUint32(); err != nil {
			return nil, err
		}
		if entry.URLHash, err = raw.ReadUint32(); err != nil {
			return nil, err
		}
		info.Addons = append(info.Addons, entry)
	}
	if info.LastModified, err = raw.ReadUint32(); err != nil {
		return nil, err
	}
	return info, nil
}
