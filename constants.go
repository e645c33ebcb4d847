package go_realmd

// Logon Protocol Constants
//
// This file contains the constants of the 3.3.5a (build 12340) logon and world
// protocols that the client speaks. Values are fixed by the servers being
// interoperated with; none of them are negotiable at runtime.

// Key and digest lengths
const (
	SESSION_KEY_LENGTH   = 40
	SALT_LENGTH          = 32
	EPHEMERAL_KEY_LENGTH = 32
	SHA1_DIGEST_LENGTH   = 20
	CRC_SALT_LENGTH      = 16
	SRP6_MULTIPLIER      = 3
	SRP6_PRIVATE_BITS    = 256
	ARC4_DROP_LENGTH     = 1024
	FOURCC_LENGTH        = 4
	MAX_BLOCK_LENGTH     = 0xff
)

// Default network endpoints
const (
	DEFAULT_AUTH_PORT  = "3724"
	DEFAULT_WORLD_PORT = "8085"
)

// Logon Command Constants
// The first byte of every logon packet in both directions.
const (
	AUTH_CMD_LOGON_CHALLENGE     uint8 = 0x00
	AUTH_CMD_LOGON_PROOF         uint8 = 0x01
	AUTH_CMD_RECONNECT_CHALLENGE uint8 = 0x02
	AUTH_CMD_RECONNECT_PROOF     uint8 = 0x03
	AUTH_CMD_REALM_LIST          uint8 = 0x10
)

// AUTH_PROTOCOL_VERSION is sent in the challenge request by 3.x clients.
const AUTH_PROTOCOL_VERSION uint8 = 8

// Logon Result Codes
// Carried in the status byte of challenge and proof responses.
const (
	AUTH_RESULT_SUCCESS            uint8 = 0x00
	AUTH_RESULT_FAIL_BANNED        uint8 = 0x03
	AUTH_RESULT_UNKNOWN_ACCOUNT    uint8 = 0x04
	AUTH_RESULT_INCORRECT_PASSWORD uint8 = 0x05
	AUTH_RESULT_ALREADY_ONLINE     uint8 = 0x06
	AUTH_RESULT_NO_TIME            uint8 = 0x07
	AUTH_RESULT_DB_BUSY            uint8 = 0x08
	AUTH_RESULT_VERSION_INVALID    uint8 = 0x09
	AUTH_RESULT_VERSION_UPDATE     uint8 = 0x0A
	AUTH_RESULT_SUSPENDED          uint8 = 0x0C
	AUTH_RESULT_PARENTCONTROL      uint8 = 0x0F
	AUTH_RESULT_LOCKED_ENFORCED    uint8 = 0x10
)

var authResultNames = map[uint8]string{
	AUTH_RESULT_SUCCESS:            "success",
	AUTH_RESULT_FAIL_BANNED:        "banned",
	AUTH_RESULT_UNKNOWN_ACCOUNT:    "unknown account",
	AUTH_RESULT_INCORRECT_PASSWORD: "incorrect password",
	AUTH_RESULT_ALREADY_ONLINE:     "already online",
	AUTH_RESULT_NO_TIME:            "no game time",
	AUTH_RESULT_DB_BUSY:            "database busy",
	AUTH_RESULT_VERSION_INVALID:    "invalid version",
	AUTH_RESULT_VERSION_UPDATE:     "version update required",
	AUTH_RESULT_SUSPENDED:          "suspended",
	AUTH_RESULT_PARENTCONTROL:      "parental control",
	AUTH_RESULT_LOCKED_ENFORCED:    "locked",
}

// AuthResultName returns a readable name for a logon result code.
func AuthResultName(code uint8) string {
	if name, ok := authResultNames[code]; ok {
		return name
	}
	return "unknown"
}

// Security flags of the challenge response (two-factor extensions)
const (
	SECURITY_FLAG_PIN    uint8 = 0x01
	SECURITY_FLAG_MATRIX uint8 = 0x02
	SECURITY_FLAG_TOKEN  uint8 = 0x04
)

// Realm flags
const (
	REALM_FLAG_VERSION_MISMATCH uint8 = 0x01
	REALM_FLAG_OFFLINE          uint8 = 0x02
	REALM_FLAG_SPECIFY_BUILD    uint8 = 0x04
	REALM_FLAG_NEW              uint8 = 0x20
	REALM_FLAG_RECOMMENDED      uint8 = 0x40
	REALM_FLAG_FULL             uint8 = 0x80
)

// World Opcode Constants
const (
	CMSG_PING           uint16 = 0x1DC
	SMSG_PONG           uint16 = 0x1DD
	SMSG_AUTH_CHALLENGE uint16 = 0x1EC
	CMSG_AUTH_SESSION   uint16 = 0x1ED
	SMSG_AUTH_RESPONSE  uint16 = 0x1EE
)

// World header sizes
const (
	SERVER_HEADER_SIZE       = 4
	SERVER_LARGE_HEADER_SIZE = 5
	SERVER_LARGE_HEADER_FLAG = 0x80
	CLIENT_HEADER_SIZE       = 6
	WORLD_MAX_PACKET_SIZE    = 0x7fffff
)

// World authentication result codes (SMSG_AUTH_RESPONSE)
const (
	WORLD_AUTH_OK              uint8 = 0x0C
	WORLD_AUTH_FAILED          uint8 = 0x0D
	WORLD_AUTH_REJECT          uint8 = 0x0E
	WORLD_AUTH_BAD_SERVER      uint8 = 0x0F
	WORLD_AUTH_UNAVAILABLE     uint8 = 0x10
	WORLD_AUTH_SYSTEM_ERROR    uint8 = 0x11
	WORLD_AUTH_BILLING_ERROR   uint8 = 0x12
	WORLD_AUTH_UNKNOWN_ACCOUNT uint8 = 0x15
	WORLD_AUTH_INCORRECT_PASS  uint8 = 0x16
	WORLD_AUTH_WAIT_QUEUE      uint8 = 0x1B
)

// Logger Level Constants
const (
	DEBUG   = 1 << 4
	INFO    = 1 << 5
	WARNING = 1 << 6
	ERROR   = 1 << 7
	FATAL   = 1 << 8
)
