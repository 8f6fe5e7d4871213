package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	// Application
	App AppConfig `yaml:"app" json:"app" mapstructure:"app"`

	// Data Sources
	Sources SourcesConfig `yaml:"sources" json:"sources" mapstructure:"sources"`

	// Remote sync
	Sync SyncConfig `yaml:"sync" json:"sync" mapstructure:"sync"`

	// Checkpoint persistence
	Checkpoints CheckpointsConfig `yaml:"checkpoints" json:"checkpoints" mapstructure:"checkpoints"`
}

// AppConfig contains general application settings
type AppConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file" mapstructure:"log_file"`
}

// SourcesConfig selects which vendor tools are scanned
type SourcesConfig struct {
	Enabled []string `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
}

// SyncConfig contains remote upload settings
type SyncConfig struct {
	Server    string        `yaml:"server" json:"server" mapstructure:"server"`
	APIKey    string        `yaml:"api_key" json:"api_key" mapstructure:"api_key"`
	BatchSize int           `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
}

// CheckpointsConfig locates the local checkpoint store
type CheckpointsConfig struct {
	Dir string `yaml:"dir" json:"dir" mapstructure:"dir"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel: "info",
		},
		Sources: SourcesConfig{
			Enabled: []string{"claude-code", "opencode", "cursor"},
		},
		Sync: SyncConfig{
			BatchSize: 500,
			Timeout:   30 * time.Second,
		},
		Checkpoints: CheckpointsConfig{
			Dir: defaultCheckpointDir(),
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.App.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.App.LogLevel)
	}

	if len(c.Sources.Enabled) == 0 {
		return fmt.Errorf("no sources enabled")
	}

	if c.Sync.BatchSize < 0 {
		return fmt.Errorf("sync batch size cannot be negative")
	}

	if c.Checkpoints.Dir == "" {
		return fmt.Errorf("checkpoint directory cannot be empty")
	}

	return nil
}

// SyncEnabled reports whether a remote server is configured.
func (c *Config) SyncEnabled() bool {
	return c.Sync.Server != ""
}

func defaultCheckpointDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".codetally", "checkpoints")
	}
	return filepath.Join(homeDir, ".local", "share", "codetally", "checkpoints")
}

// ConfigPaths returns the default configuration file locations in
// order of precedence.
func ConfigPaths() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(homeDir, ".config", "codetally", "config.yaml"),
		filepath.Join(homeDir, ".codetally.yaml"),
	}
}
