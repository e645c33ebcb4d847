package go_realmd

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"
)

// ServerPacketHeader is the 4-byte header of an inbound world packet. Size
// counts the opcode and the body and is big-endian; the opcode is little-endian.
type ServerPacketHeader struct {
	Size   uint16 `struct:"big"`
	Opcode uint16
}

// serverLargePacketHeader is the 5-byte form used when the body does not fit
// 15 bits. The top bit of the first size byte marks it.
type serverLargePacketHeader struct {
	Size   [3]byte
	Opcode uint16
}

// ClientPacketHeader is the 6-byte header of an outbound world packet.
type ClientPacketHeader struct {
	Size   uint16 `struct:"big"`
	Opcode uint32
}

// AuthChallengeBody is the body of SMSG_AUTH_CHALLENGE.
type AuthChallengeBody struct {
	One   uint32
	Seed  [4]byte
	Seeds [32]byte
}

// AuthResponseBody is the leading part of SMSG_AUTH_RESPONSE. Billing and
// queue details that follow the result are not decoded.
type AuthResponseBody struct {
	Result uint8
}

// PingBody is the body of CMSG_PING.
type PingBody struct {
	Serial  uint32
	Latency uint32
}

// PongBody is the body of SMSG_PONG.
type PongBody struct {
	Serial uint32
}

// packWorld encodes a fixed-layout world structure.
func packWorld(v interface{}) ([]byte, error) {
	p, err := restruct.Pack(binary.LittleEndian, v)
	if err != nil {
		return nil, fmt.Errorf("%w: pack %T: %v", ErrBufferOverflow, v, err)
	}
	return p, nil
}

// unpackWorld decodes a fixed-layout world structure, failing with
// ErrBufferUnderrun when p is shorter than the structure.
func unpackWorld(p []byte, v interface{}) error {
	size, err := restruct.SizeOf(v)
	if err != nil {
		return fmt.Errorf("%w: size of %T: %v", ErrInvalidArgument, v, err)
	}
	if len(p) < size {
		return fmt.Errorf("%w: %T needs %d bytes, got %d", ErrBufferUnderrun, v, size, len(p))
	}
	if err := restruct.Unpack(p[:size], binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%w: unpack %T: %v", ErrBufferUnderrun, v, err)
	}
	return nil
}

// serverHeaderLength returns the header length announced by the first
// (decrypted) header byte.
func serverHeaderLength(first byte) int {
	if first&SERVER_LARGE_HEADER_FLAG != 0 {
		return SERVER_LARGE_HEADER_SIZE
	}
	return SERVER_HEADER_SIZE
}

// ParseServerHeader decodes a 4- or 5-byte inbound header and returns the
// opcode and the body length.
func ParseServerHeader(h []byte) (opcode uint16, bodySize int, err error) {
	var size int
	switch len(h) {
	case SERVER_HEADER_SIZE:
		var hdr ServerPacketHeader
		if err = unpackWorld(h, &hdr); err != nil {
			return
		}
		size, opcode = int(hdr.Size), hdr.Opcode
	case SERVER_LARGE_HEADER_SIZE:
		var hdr serverLargePacketHeader
		if err = unpackWorld(h, &hdr); err != nil {
			return
		}
		size = int(hdr.Size[0]&^SERVER_LARGE_HEADER_FLAG)<<16 | int(hdr.Size[1])<<8 | int(hdr.Size[2])
		opcode = hdr.Opcode
	default:
		return 0, 0, fmt.Errorf("%w: server header of %d bytes", ErrInvalidArgument, len(h))
	}
	if size < 2 {
		return 0, 0, fmt.Errorf("%w: server packet size %d smaller than its opcode", ErrBufferUnderrun, size)
	}
	return opcode, size - 2, nil
}

// EncodeServerHeader builds the inbound header for a body of bodySize bytes,
// using the large form when needed.
func EncodeServerHeader(opcode uint16, bodySize int) ([]byte, error) {
	size := bodySize + 2
	if size > WORLD_MAX_PACKET_SIZE {
		return nil, fmt.Errorf("%w: world packet of %d bytes", ErrBufferOverflow, size)
	}
	if size > 0x7fff {
		return packWorld(&serverLargePacketHeader{
			Size:   [3]byte{byte(size>>16) | SERVER_LARGE_HEADER_FLAG, byte(size >> 8), byte(size)},
			Opcode: opcode,
		})
	}
	return packWorld(&ServerPacketHeader{Size: uint16(size), Opcode: opcode})
}

// EncodeClientHeader builds the outbound header for a body of bodySize bytes.
func EncodeClientHeader(opcode uint16, bodySize int) ([]byte, error) {
	size := bodySize + 4
	if size > 0xffff {
		return nil, fmt.Errorf("%w: client packet of %d bytes", ErrBufferOverflow, size)
	}
	return packWorld(&ClientPacketHeader{Size: uint16(size), Opcode: uint32(opcode)})
}

// ParseClientHeader decodes a 6-byte outbound header and returns the opcode
// and the body length.
func ParseClientHeader(h []byte) (opcode uint16, bodySize int, err error) {
	var hdr ClientPacketHeader
	if err = unpackWorld(h, &hdr); err != nil {
		return 0, 0, err
	}
	if hdr.Size < 4 {
		return 0, 0, fmt.Errorf("%w: client packet size %d smaller than its opcode", ErrBufferUnderrun, hdr.Size)
	}
	return uint16(hdr.Opcode), int(hdr.Size) - 4, nil
}

// AuthSessionRequest is the fixed part of CMSG_AUTH_SESSION. The addon
// block follows it unframed.
type AuthSessionRequest struct {
	*Packet
	Build           *Field
	LoginServerID   *Field
	Account         *Field
	LoginServerType *Field
	LocalChallenge  *Field
	RegionID        *Field
	BattlegroupID   *Field
	RealmID         *Field
	DosResponse     *Field
	Digest          *Field
}

func NewAuthSessionRequest() *AuthSessionRequest {
	r := &AuthSessionRequest{
		Build:           Scalar("build", Uint32),
		LoginServerID:   Scalar("login_server_id", Uint32),
		Account:         CString("account"),
		LoginServerType: Scalar("login_server_type", Uint32),
		LocalChallenge:  Array("local_challenge", 4),
		RegionID:        Scalar("region_id", Uint32),
		BattlegroupID:   Scalar("battlegroup_id", Uint32),
		RealmID:         Scalar("realm_id", Uint32),
		DosResponse:     Scalar("dos_response", Uint64),
		Digest:          Array("digest", SHA1_DIGEST_LENGTH),
	}
	r.Packet = NewPacket("CMSG_AUTH_SESSION",
		r.Build, r.LoginServerID, r.Account, r.LoginServerType, r.LocalChallenge,
		r.RegionID, r.BattlegroupID, r.RealmID, r.DosResponse, r.Digest)
	return r
}

// AuthSessionDigest proves knowledge of the session key to the world server.
func AuthSessionDigest(account string, localChallenge, serverSeed []byte, key SessionKey) Digest {
	return SHA1Sum([]byte(account), make([]byte, 4), localChallenge, serverSeed, key[:])
}
