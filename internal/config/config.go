// Package config provides configuration management for the trade journal.
package config

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding keys are unset.
const (
	defaultPositionsDir  = "positions"
	defaultArchiveDir    = "archive"
	defaultTrackingDB    = "data/tracking.db"
	defaultDashboardAddr = "127.0.0.1:8080"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Storage     StorageConfig     `yaml:"storage"`
	Imports     ImportConfig      `yaml:"imports"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// StorageConfig defines where position records live.
type StorageConfig struct {
	PositionsDir string `yaml:"positions_dir"` // open positions
	ArchiveDir   string `yaml:"archive_dir"`   // closed positions
}

// ImportConfig defines where broker exports are read from.
type ImportConfig struct {
	TransactionsDir string `yaml:"transactions_dir"` // transaction history CSVs
	PositionsCSV    string `yaml:"positions_csv"`    // live positions export
}

// TrackingConfig defines the tracking database settings.
type TrackingConfig struct {
	DBPath string `yaml:"db_path"`
}

// DashboardConfig defines the dashboard server settings.
type DashboardConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch c.Environment.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}

	if c.Storage.PositionsDir == c.Storage.ArchiveDir {
		return fmt.Errorf("storage.positions_dir and storage.archive_dir must differ")
	}

	if c.Dashboard.ListenAddr != "" && !strings.Contains(c.Dashboard.ListenAddr, ":") {
		return fmt.Errorf("dashboard.listen_addr must be host:port")
	}

	return nil
}

// applyDefaults fills in unset values.
func (c *Config) applyDefaults() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Storage.PositionsDir == "" {
		c.Storage.PositionsDir = defaultPositionsDir
	}
	if c.Storage.ArchiveDir == "" {
		c.Storage.ArchiveDir = defaultArchiveDir
	}
	if c.Tracking.DBPath == "" {
		c.Tracking.DBPath = defaultTrackingDB
	}
	if c.Dashboard.ListenAddr == "" {
		c.Dashboard.ListenAddr = defaultDashboardAddr
	}
}
