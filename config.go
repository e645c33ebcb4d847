package go_realmd

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const defaultConfigFile = "realmd.toml"

// ClientConfig holds the client identity sent to the logon server and the
// session tunables. The zero value is not usable; start from DefaultConfig.
type ClientConfig struct {
	Game     string
	Version  Version
	Build    uint16
	Platform string
	OS       string
	Locale   string
	Timezone uint32
	IP       uint32

	// AuthAddress is the logon server host[:port] used when Connect gets an empty address.
	AuthAddress string

	RealmPollInterval time.Duration
	PollTimeout       time.Duration
	DialTimeout       time.Duration
	ResponseTimeout   time.Duration

	// VersionHash is the game client digest fed into the crc hash. Zero when unset.
	VersionHash []byte

	Addons []AddonEntry
}

// DefaultConfig returns the configuration of an enUS 3.3.5a Windows client.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Game:              "WoW",
		Version:           NewVersion(3, 3, 5),
		Build:             12340,
		Platform:          "x86",
		OS:                "Win",
		Locale:            "enUS",
		RealmPollInterval: time.Second,
		PollTimeout:       250 * time.Millisecond,
		DialTimeout:       10 * time.Second,
		ResponseTimeout:   30 * time.Second,
	}
}

type fileConfig struct {
	Game              string      `toml:"game"`
	Version           string      `toml:"version"`
	Build             int64       `toml:"build"`
	Platform          string      `toml:"platform"`
	OS                string      `toml:"os"`
	Locale            string      `toml:"locale"`
	Timezone          int64       `toml:"timezone"`
	IP                string      `toml:"ip"`
	AuthAddress       string      `toml:"auth_address"`
	RealmPollInterval string      `toml:"realm_poll_interval"`
	PollTimeout       string      `toml:"poll_timeout"`
	DialTimeout       string      `toml:"dial_timeout"`
	ResponseTimeout   string      `toml:"response_timeout"`
	VersionHash       string      `toml:"version_hash"`
	Addons            []fileAddon `toml:"addon"`
}

type fileAddon struct {
	Name    string `toml:"name"`
	Signed  bool   `toml:"signed"`
	CRC     int64  `toml:"crc"`
	URLHash int64  `toml:"url_hash"`
}

// LoadConfig reads a TOML file over DefaultConfig. Keys absent from the file keep their defaults.
func LoadConfig(path string) (ClientConfig, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		Warning("Ignoring unknown config keys in %s: %v", path, undecoded)
	}

	if meta.IsDefined("game") {
		cfg.Game = strings.TrimSpace(raw.Game)
	}
	if meta.IsDefined("version") {
		if cfg.Version, err = ParseVersion(strings.TrimSpace(raw.Version)); err != nil {
			return ClientConfig{}, err
		}
	}
	if meta.IsDefined("build") {
		if raw.Build <= 0 || raw.Build > 0xffff {
			return ClientConfig{}, fmt.Errorf("%w: build %d out of range", ErrInvalidConfiguration, raw.Build)
		}
		cfg.Build = uint16(raw.Build)
	}
	if meta.IsDefined("platform") {
		cfg.Platform = strings.TrimSpace(raw.Platform)
	}
	if meta.IsDefined("os") {
		cfg.OS = strings.TrimSpace(raw.OS)
	}
	if meta.IsDefined("locale") {
		cfg.Locale = strings.TrimSpace(raw.Locale)
	}
	if meta.IsDefined("timezone") {
		if raw.Timezone < 0 || raw.Timezone > 0xffffffff {
			return ClientConfig{}, fmt.Errorf("%w: timezone %d out of range", ErrInvalidConfiguration, raw.Timezone)
		}
		cfg.Timezone = uint32(raw.Timezone)
	}
	if meta.IsDefined("ip") {
		if cfg.IP, err = parseIPv4(raw.IP); err != nil {
			return ClientConfig{}, err
		}
	}
	if meta.IsDefined("auth_address") {
		cfg.AuthAddress = strings.TrimSpace(raw.AuthAddress)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"realm_poll_interval", raw.RealmPollInterval, &cfg.RealmPollInterval},
		{"poll_timeout", raw.PollTimeout, &cfg.PollTimeout},
		{"dial_timeout", raw.DialTimeout, &cfg.DialTimeout},
		{"response_timeout", raw.ResponseTimeout, &cfg.ResponseTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return ClientConfig{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfiguration, d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("version_hash") {
		if cfg.VersionHash, err = hex.DecodeString(strings.TrimSpace(raw.VersionHash)); err != nil {
			return ClientConfig{}, fmt.Errorf("%w: parse version_hash: %v", ErrInvalidConfiguration, err)
		}
	}

	for _, a := range raw.Addons {
		if a.CRC < 0 || a.CRC > 0xffffffff || a.URLHash < 0 || a.URLHash > 0xffffffff {
			return ClientConfig{}, fmt.Errorf("%w: addon %q checksum out of range", ErrInvalidConfiguration, a.Name)
		}
		cfg.Addons = append(cfg.Addons, AddonEntry{
			Name:    a.Name,
			Signed:  a.Signed,
			CRC:     uint32(a.CRC),
			URLHash: uint32(a.URLHash),
		})
	}

	return cfg, cfg.Validate()
}

// LoadDefaultConfig loads $REALMD_HOME/$REALMD_CONF (default "realmd.toml").
// A missing file yields DefaultConfig.
func LoadDefaultConfig() (ClientConfig, error) {
	conf := os.Getenv("REALMD_CONF")
	if len(conf) == 0 {
		conf = defaultConfigFile
	}
	path := filepath.Join(os.Getenv("REALMD_HOME"), conf)
	Debug("Loading config file %s", path)
	cfg, err := LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		Debug("Config file %s not found, using defaults", path)
		return DefaultConfig(), nil
	}
	return cfg, err
}

// Validate checks the values that end up in fixed-size wire fields.
func (c *ClientConfig) Validate() error {
	if c.Game == "" {
		return fmt.Errorf("%w: empty game name", ErrInvalidConfiguration)
	}
	fourCCs := []struct{ name, value string }{
		{"game", c.Game},
		{"platform", c.Platform},
		{"os", c.OS},
		{"locale", c.Locale},
	}
	for _, f := range fourCCs {
		if len(f.value) > FOURCC_LENGTH {
			return fmt.Errorf("%w: %s %q longer than %d bytes", ErrInvalidConfiguration, f.name, f.value, FOURCC_LENGTH)
		}
	}
	if len(c.Game) == FOURCC_LENGTH {
		return fmt.Errorf("%w: game name %q leaves no room for its terminator", ErrInvalidConfiguration, c.Game)
	}
	if c.Build == 0 {
		return fmt.Errorf("%w: build must be non-zero", ErrInvalidConfiguration)
	}
	if c.RealmPollInterval <= 0 || c.PollTimeout <= 0 || c.DialTimeout <= 0 || c.ResponseTimeout <= 0 {
		return fmt.Errorf("%w: intervals and timeouts must be positive", ErrInvalidConfiguration)
	}
	if len(c.VersionHash) != 0 && len(c.VersionHash) != SHA1_DIGEST_LENGTH {
		return fmt.Errorf("%w: version hash must be %d bytes, got %d", ErrInvalidConfiguration, SHA1_DIGEST_LENGTH, len(c.VersionHash))
	}
	return nil
}

// parseIPv4 converts a dotted quad to the value sent in the challenge,
// first octet in the lowest byte.
func parseIPv4(s string) (uint32, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !addr.Is4() {
		return 0, fmt.Errorf("%w: invalid IPv4 address %q", ErrInvalidConfiguration, s)
	}
	octets := addr.As4()
	return binary.LittleEndian.Uint32(octets[:]), nil
}
