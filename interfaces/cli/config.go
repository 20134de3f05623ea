package cli

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds the terminal client settings
type Config struct {
	ServerURL string `toml:"server_url"` // websocket endpoint, e.g. ws://localhost:8080/ws
	APIURL    string `toml:"api_url"`    // REST root, e.g. http://localhost:8080
	ExportURL string `toml:"export_url"` // optional separate export service
	Username  string `toml:"username"`
	UserID    string `toml:"user_id"`
}

// DefaultConfig returns the settings for a local collabd
func DefaultConfig() *Config {
	return &Config{
		ServerURL: "ws://localhost:8080/ws",
		APIURL:    "http://localhost:8080",
	}
}

// ConfigDir returns the dclass config directory
func ConfigDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "dclass")
}

// DefaultConfigPath is where LoadConfig looks when no path is given
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating the directory
func SaveConfig(path string, cfg *Config) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
