// Package config holds user-level preferences stored in ~/.pulseboard.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/pulseboard/pulseboard/internal/pushover"
)

// DefaultPort is the port the server binds and clients dial when
// nothing else is configured.
const DefaultPort = 9475

// Settings holds user-level preferences stored in
// ~/.pulseboard/config.json. Flags override these at every layer.
type Settings struct {
	ServerURL string `json:"server_url,omitempty"` // dashboard default server
	Password  string `json:"password,omitempty"`   // WebSocket handshake credential
	AuthToken string `json:"auth_token,omitempty"` // REST bearer token
	DBPath    string `json:"db_path,omitempty"`    // server database location

	Pushover pushover.Config `json:"pushover,omitempty"` // server-side push alerts
}

// Dir returns the global pulseboard config directory (~/.pulseboard),
// creating it if needed.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dir := filepath.Join(home, ".pulseboard")
	os.MkdirAll(dir, 0755)
	return dir
}

// LogDir returns the directory debug logs are written to.
func LogDir() string {
	return filepath.Join(Dir(), "logs")
}

// DefaultDBPath returns the server database path used when none is
// configured.
func DefaultDBPath() string {
	return filepath.Join(Dir(), "pulseboard.db")
}

func configPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads ~/.pulseboard/config.json, returning empty settings if the
// file is absent.
func Load() (*Settings, error) {
	data, err := os.ReadFile(configPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, err
	}

	var cfg Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the settings to ~/.pulseboard/config.json.
func Save(cfg *Settings) error {
	if cfg == nil {
		cfg = &Settings{}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(configPath(), data, 0600)
}
