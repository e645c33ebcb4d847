package go_realmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// TestDefaultConfig tests that the defaults describe a valid 3.3.5a client.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Build != 12340 || cfg.Version.String() != "3.3.5" {
		t.Errorf("default client = %s build %d", cfg.Version, cfg.Build)
	}
	if cfg.Locale != "enUS" || cfg.Game != "WoW" {
		t.Errorf("default identity = %s %s", cfg.Game, cfg.Locale)
	}
}

// TestLoadConfig tests overlaying a TOML file on the defaults.
func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "client.toml", `
locale = "deDE"
ip = "10.0.0.1"
auth_address = "logon.example.org"
realm_poll_interval = "5s"
response_timeout = "2s"
version_hash = "000102030405060708090a0b0c0d0e0f10111213"

[[addon]]
name = "Blizzard_AuctionUI"
signed = true
crc = 1276933997

[[addon]]
name = "Recount"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Locale != "deDE" {
		t.Errorf("Locale = %q", cfg.Locale)
	}
	if cfg.Game != "WoW" || cfg.Build != 12340 {
		t.Errorf("unset keys lost their defaults: %s build %d", cfg.Game, cfg.Build)
	}
	if cfg.IP != 0x0100000A {
		t.Errorf("IP = %#x, want first octet in the low byte", cfg.IP)
	}
	if cfg.AuthAddress != "logon.example.org" {
		t.Errorf("AuthAddress = %q", cfg.AuthAddress)
	}
	if cfg.RealmPollInterval != 5*time.Second || cfg.ResponseTimeout != 2*time.Second {
		t.Errorf("durations = %s, %s", cfg.RealmPollInterval, cfg.ResponseTimeout)
	}
	if cfg.PollTimeout != DefaultConfig().PollTimeout {
		t.Errorf("PollTimeout = %s", cfg.PollTimeout)
	}
	if len(cfg.VersionHash) != SHA1_DIGEST_LENGTH || cfg.VersionHash[19] != 0x13 {
		t.Errorf("VersionHash = %x", cfg.VersionHash)
	}
	if len(cfg.Addons) != 2 {
		t.Fatalf("got %d addons, want 2", len(cfg.Addons))
	}
	if a := cfg.Addons[0]; a.Name != "Blizzard_AuctionUI" || !a.Signed || a.CRC != 1276933997 {
		t.Errorf("addon[0] = %+v", a)
	}
	if a := cfg.Addons[1]; a.Signed || a.CRC != 0 {
		t.Errorf("addon[1] = %+v", a)
	}
}

// TestLoadConfig_Invalid tests rejection of out of range and malformed values.
func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"build zero", `build = 0`},
		{"build too large", `build = 70000`},
		{"negative timezone", `timezone = -1`},
		{"bad version", `version = "3.3"`},
		{"bad ip", `ip = "::1"`},
		{"bad duration", `poll_timeout = "soon"`},
		{"zero duration", `dial_timeout = "0s"`},
		{"short version hash", `version_hash = "0102"`},
		{"bad version hash", `version_hash = "zz"`},
		{"long locale", `locale = "english"`},
		{"four byte game", `game = "WoWX"`},
		{"addon crc range", "[[addon]]\nname = \"x\"\ncrc = -5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "client.toml", tt.content)
			_, err := LoadConfig(path)
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("LoadConfig() error = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

// TestLoadConfig_Malformed tests a file that is not TOML.
func TestLoadConfig_Malformed(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "client.toml", "locale = ")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() succeeded on malformed TOML")
	}
}

// TestLoadDefaultConfig tests the environment driven lookup.
func TestLoadDefaultConfig(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("REALMD_HOME", t.TempDir())
		t.Setenv("REALMD_CONF", "")
		cfg, err := LoadDefaultConfig()
		if err != nil {
			t.Fatalf("LoadDefaultConfig() error = %v", err)
		}
		if cfg.Locale != DefaultConfig().Locale {
			t.Errorf("Locale = %q", cfg.Locale)
		}
	})

	t.Run("named file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "custom.toml", `locale = "frFR"`)
		t.Setenv("REALMD_HOME", dir)
		t.Setenv("REALMD_CONF", "custom.toml")
		cfg, err := LoadDefaultConfig()
		if err != nil {
			t.Fatalf("LoadDefaultConfig() error = %v", err)
		}
		if cfg.Locale != "frFR" {
			t.Errorf("Locale = %q", cfg.Locale)
		}
	})

	t.Run("default file name", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "realmd.toml", `build = 8606`)
		t.Setenv("REALMD_HOME", dir)
		t.Setenv("REALMD_CONF", "")
		cfg, err := LoadDefaultConfig()
		if err != nil {
			t.Fatalf("LoadDefaultConfig() error = %v", err)
		}
		if cfg.Build != 8606 {
			t.Errorf("Build = %d", cfg.Build)
		}
	})
}
