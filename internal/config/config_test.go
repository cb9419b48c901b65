package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
environment:
  log_level: debug
storage:
  positions_dir: data/positions
  archive_dir: data/archive
imports:
  transactions_dir: exports/transactions
  positions_csv: exports/positions.csv
tracking:
  db_path: data/tracking.db
dashboard:
  listen_addr: 0.0.0.0:9000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Environment.LogLevel)
	assert.Equal(t, "data/positions", cfg.Storage.PositionsDir)
	assert.Equal(t, "data/archive", cfg.Storage.ArchiveDir)
	assert.Equal(t, "exports/positions.csv", cfg.Imports.PositionsCSV)
	assert.Equal(t, "0.0.0.0:9000", cfg.Dashboard.ListenAddr)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "environment: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Environment.LogLevel)
	assert.Equal(t, "positions", cfg.Storage.PositionsDir)
	assert.Equal(t, "archive", cfg.Storage.ArchiveDir)
	assert.Equal(t, "data/tracking.db", cfg.Tracking.DBPath)
	assert.Equal(t, "127.0.0.1:8080", cfg.Dashboard.ListenAddr)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("JOURNAL_DATA", "/var/journal")
	cfg, err := Load(writeConfig(t, `
storage:
  positions_dir: ${JOURNAL_DATA}/positions
  archive_dir: ${JOURNAL_DATA}/archive
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/journal/positions", cfg.Storage.PositionsDir)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "storge:\n  positions_dir: x\n"))
	assert.Error(t, err)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"bad log level", func(c *Config) { c.Environment.LogLevel = "verbose" }, true},
		{"same dirs", func(c *Config) {
			c.Storage.PositionsDir = "data"
			c.Storage.ArchiveDir = "data"
		}, true},
		{"listen addr without port", func(c *Config) { c.Dashboard.ListenAddr = "localhost" }, true},
		{"defaults pass", func(c *Config) {}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
