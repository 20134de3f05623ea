package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE", "")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 90*time.Second, cfg.EvictAfter())
}

func TestLoadConfig_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dclass.yaml")
	writeFile(t, path, `
server_address: ":9000"
log_level: debug
storage: dynamodb
dynamodb_table: diagrams
heartbeat_interval: 10s
allowed_origins: ["http://localhost:3000"]
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ServerAddress)
	assert.Equal(t, "warn", cfg.LogLevel, "environment wins over the file")
	assert.Equal(t, StorageDynamoDB, cfg.Storage)
	assert.Equal(t, "diagrams", cfg.DynamoDBTable)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{
			name:    "production needs invite secret",
			mutate:  func(c *Config) { c.Environment = "production" },
			wantErr: true,
			errMsg:  "INVITE_SECRET",
		},
		{
			name:    "dynamodb needs a table",
			mutate:  func(c *Config) { c.Storage = StorageDynamoDB; c.DynamoDBTable = "" },
			wantErr: true,
			errMsg:  "DYNAMODB_TABLE",
		},
		{
			name:    "unknown storage",
			mutate:  func(c *Config) { c.Storage = "postgres" },
			wantErr: true,
			errMsg:  "unknown STORAGE",
		},
		{
			name:    "heartbeat must be positive",
			mutate:  func(c *Config) { c.HeartbeatInterval = 0 },
			wantErr: true,
			errMsg:  "HEARTBEAT_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWatcher_ReloadsLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dclass.yaml")
	writeFile(t, path, "log_level: info\n")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Stop()

	levels := make(chan string, 4)
	w.OnChange(func(c *Config) { levels <- c.LogLevel })
	w.Start()

	writeFile(t, path, "log_level: debug\n")

	select {
	case level := <-levels:
		assert.Equal(t, "debug", level)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
	assert.Equal(t, "debug", w.Current().LogLevel)
}

func TestWatcher_KeepsConfigOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dclass.yaml")
	writeFile(t, path, "log_level: warn\n")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Stop()

	writeFile(t, path, "log_level: [unterminated\n")
	w.reload()

	assert.Equal(t, "warn", w.Current().LogLevel)
}
