package go_realmd

// Logon packet schemas. Each constructor declares the wire layout once; the
// exported *Field members give typed access to the values.

// LogonChallengeRequest is the first client packet (AUTH_LOGON_CHALLENGE_C).
type LogonChallengeRequest struct {
	*Packet
	Command  *Field
	Protocol *Field
	Size     *Field
	Game     *Field
	Major    *Field
	Minor    *Field
	Patch    *Field
	Build    *Field
	Platform *Field
	OS       *Field
	Locale   *Field
	Timezone *Field
	IP       *Field
	Account  *Field
}

// LOGON_CHALLENGE_FIXED_SIZE is the size of the request after the size field, minus the account name.
const LOGON_CHALLENGE_FIXED_SIZE = 30

func NewLogonChallengeRequest() *LogonChallengeRequest {
	r := &LogonChallengeRequest{
		Command:  Scalar("command", Uint8),
		Protocol: Scalar("protocol_version", Uint8),
		Size:     Scalar("packet_size", Uint16),
		Game:     Array("game_name", FOURCC_LENGTH),
		Major:    Scalar("major_version", Uint8),
		Minor:    Scalar("minor_version", Uint8),
		Patch:    Scalar("patch_version", Uint8),
		Build:    Scalar("build", Uint16),
		Platform: ReversedArray("platform", FOURCC_LENGTH),
		OS:       ReversedArray("os", FOURCC_LENGTH),
		Locale:   ReversedArray("country", FOURCC_LENGTH),
		Timezone: Scalar("timezone", Uint32),
		IP:       Scalar("ip_address", Uint32),
		Account:  Block("login"),
	}
	r.Packet = NewPacket("AUTH_LOGON_CHALLENGE_C",
		r.Command, r.Protocol, r.Size, r.Game, r.Major, r.Minor, r.Patch, r.Build,
		r.Platform, r.OS, r.Locale, r.Timezone, r.IP, r.Account)
	return r
}

// LogonChallengeResponseHead is the part of the challenge response every status carries.
type LogonChallengeResponseHead struct {
	*Packet
	Command  *Field
	Protocol *Field
	Status   *Field
}

const LOGON_CHALLENGE_HEAD_SIZE = 3

func NewLogonChallengeResponseHead() *LogonChallengeResponseHead {
	r := &LogonChallengeResponseHead{
		Command:  Scalar("command", Uint8),
		Protocol: Scalar("protocol_version", Uint8),
		Status:   Scalar("status", Uint8),
	}
	r.Packet = NewPacket("AUTH_LOGON_CHALLENGE_S", r.Command, r.Protocol, r.Status)
	return r
}

// LogonChallengeResponseBody follows the head when the status is success.
type LogonChallengeResponseBody struct {
	*Packet
	B             *Field
	G             *Field
	N             *Field
	Salt          *Field
	CRCSalt       *Field
	SecurityFlags *Field
}

func NewLogonChallengeResponseBody() *LogonChallengeResponseBody {
	r := &LogonChallengeResponseBody{
		B:             Array("B", EPHEMERAL_KEY_LENGTH),
		G:             Block("g"),
		N:             Block("N"),
		Salt:          Array("s", SALT_LENGTH),
		CRCSalt:       Array("crc_salt", CRC_SALT_LENGTH),
		SecurityFlags: Scalar("security_flags", Uint8),
	}
	r.Packet = NewPacket("AUTH_LOGON_CHALLENGE_S_BODY",
		r.B, r.G, r.N, r.Salt, r.CRCSalt, r.SecurityFlags)
	return r
}

// PinChallenge follows the body when SECURITY_FLAG_PIN is set.
type PinChallenge struct {
	*Packet
	GridSeed *Field
	Salt     *Field
}

const PIN_CHALLENGE_SIZE = 20

func NewPinChallenge() *PinChallenge {
	r := &PinChallenge{
		GridSeed: Scalar("pin_grid_seed", Uint32),
		Salt:     Array("pin_salt", 16),
	}
	r.Packet = NewPacket("PIN_CHALLENGE", r.GridSeed, r.Salt)
	return r
}

// MatrixChallenge follows when SECURITY_FLAG_MATRIX is set.
type MatrixChallenge struct {
	*Packet
	Width      *Field
	Height     *Field
	Digits     *Field
	Challenges *Field
	Seed       *Field
}

const MATRIX_CHALLENGE_SIZE = 12

func NewMatrixChallenge() *MatrixChallenge {
	r := &MatrixChallenge{
		Width:      Scalar("width", Uint8),
		Height:     Scalar("height", Uint8),
		Digits:     Scalar("digit_count", Uint8),
		Challenges: Scalar("challenge_count", Uint8),
		Seed:       Scalar("seed", Uint64),
	}
	r.Packet = NewPacket("MATRIX_CHALLENGE", r.Width, r.Height, r.Digits, r.Challenges, r.Seed)
	return r
}

// TokenChallenge follows when SECURITY_FLAG_TOKEN is set.
type TokenChallenge struct {
	*Packet
	Required *Field
}

const TOKEN_CHALLENGE_SIZE = 1

func NewTokenChallenge() *TokenChallenge {
	r := &TokenChallenge{Required: Scalar("token_required", Uint8)}
	r.Packet = NewPacket("TOKEN_CHALLENGE", r.Required)
	return r
}

// LogonProofRequest is AUTH_LOGON_PROOF_C.
type LogonProofRequest struct {
	*Packet
	Command       *Field
	A             *Field
	ClientProof   *Field
	CRCHash       *Field
	NumberOfKeys  *Field
	SecurityFlags *Field
}

func NewLogonProofRequest() *LogonProofRequest {
	r := &LogonProofRequest{
		Command:       Scalar("command", Uint8),
		A:             Array("A", EPHEMERAL_KEY_LENGTH),
		ClientProof:   Array("client_M", SHA1_DIGEST_LENGTH),
		CRCHash:       Array("crc_hash", SHA1_DIGEST_LENGTH),
		NumberOfKeys:  Scalar("number_of_keys", Uint8),
		SecurityFlags: Scalar("security_flags", Uint8),
	}
	r.Packet = NewPacket("AUTH_LOGON_PROOF_C",
		r.Command, r.A, r.ClientProof, r.CRCHash, r.NumberOfKeys, r.SecurityFlags)
	return r
}

// LogonProofResponseHead is the part of the proof response every status carries.
type LogonProofResponseHead struct {
	*Packet
	Command *Field
	Status  *Field
}

const (
	LOGON_PROOF_HEAD_SIZE    = 2
	LOGON_PROOF_BODY_SIZE    = 30
	LOGON_PROOF_FAILURE_TAIL = 2
)

func NewLogonProofResponseHead() *LogonProofResponseHead {
	r := &LogonProofResponseHead{
		Command: Scalar("command", Uint8),
		Status:  Scalar("status", Uint8),
	}
	r.Packet = NewPacket("AUTH_LOGON_PROOF_S", r.Command, r.Status)
	return r
}

// LogonProofResponseBody follows the head when the status is success.
type LogonProofResponseBody struct {
	*Packet
	ServerProof  *Field
	AccountFlags *Field
	SurveyID     *Field
	LoginFlags   *Field
}

func NewLogonProofResponseBody() *LogonProofResponseBody {
	r := &LogonProofResponseBody{
		ServerProof:  Array("server_M", SHA1_DIGEST_LENGTH),
		AccountFlags: Scalar("account_flags", Uint32),
		SurveyID:     Scalar("hardware_survey_id", Uint32),
		LoginFlags:   Scalar("login_flags", Uint16),
	}
	r.Packet = NewPacket("AUTH_LOGON_PROOF_S_BODY",
		r.ServerProof, r.AccountFlags, r.SurveyID, r.LoginFlags)
	return r
}

// RealmListRequest asks for the current realm list.
type RealmListRequest struct {
	*Packet
	Command *Field
	Unknown *Field
}

func NewRealmListRequest() *RealmListRequest {
	r := &RealmListRequest{
		Command: Scalar("command", Uint8),
		Unknown: Scalar("unknown", Uint32),
	}
	r.Packet = NewPacket("REALM_LIST_C", r.Command, r.Unknown)
	return r
}

// RealmListHeader carries the size of the realm list payload that follows.
type RealmListHeader struct {
	*Packet
	Command *Field
	Size    *Field
}

const REALM_LIST_HEADER_SIZE = 3

func NewRealmListHeader() *RealmListHeader {
	r := &RealmListHeader{
		Command: Scalar("command", Uint8),
		Size:    Scalar("packet_size", Uint16),
	}
	r.Packet = NewPacket("REALM_LIST_S", r.Command, r.Size)
	return r
}

// RealmListBodyHeader opens the realm list payload.
type RealmListBodyHeader struct {
	*Packet
	Unknown *Field
	Count   *Field
}

func NewRealmListBodyHeader() *RealmListBodyHeader {
	r := &RealmListBodyHeader{
		Unknown: Scalar("unknown", Uint32),
		Count:   Scalar("number_of_realms", Uint16),
	}
	r.Packet = NewPacket("REALM_LIST_S_BODY", r.Unknown, r.Count)
	return r
}

// RealmEntry is one realm record of the realm list.
type RealmEntry struct {
	*Packet
	Type       *Field
	Locked     *Field
	Flags      *Field
	Name       *Field
	Address    *Field
	Population *Field
	Characters *Field
	Category   *Field
	ID         *Field
}

func NewRealmEntry() *RealmEntry {
	r := &RealmEntry{
		Type:       Scalar("type", Uint8),
		Locked:     Scalar("locked", Uint8),
		Flags:      Scalar("flags", Uint8),
		Name:       CString("name"),
		Address:    CString("server_socket"),
		Population: Scalar("population_level", Float32),
		Characters: Scalar("number_of_characters", Uint8),
		Category:   Scalar("category", Uint8),
		ID:         Scalar("realm_id", Uint8),
	}
	r.Packet = NewPacket("REALM_ENTRY",
		r.Type, r.Locked, r.Flags, r.Name, r.Address, r.Population,
		r.Characters, r.Category, r.ID)
	return r
}

// RealmBuildEntry follows a realm entry whose flags include REALM_FLAG_SPECIFY_BUILD.
type RealmBuildEntry struct {
	*Packet
	Major *Field
	Minor *Field
	Patch *Field
	Build *Field
}

func NewRealmBuildEntry() *RealmBuildEntry {
	r := &RealmBuildEntry{
		Major: Scalar("major_version", Uint8),
		Minor: Scalar("minor_version", Uint8),
		Patch: Scalar("patch_version", Uint8),
		Build: Scalar("build", Uint16),
	}
	r.Packet = NewPacket("REALM_BUILD", r.Major, r.Minor, r.Patch, r.Build)
	return r
}
