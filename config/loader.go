package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the given file (or the default
// locations when cfgFile is empty), layered over DefaultConfig, with
// CODETALLY_* environment variables overriding both.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Every key needs a default registered, even an empty one, or
	// AutomaticEnv will not surface its environment override through
	// Unmarshal.
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")
	v.SetDefault("sources.enabled", DefaultConfig().Sources.Enabled)
	v.SetDefault("sync.server", "")
	v.SetDefault("sync.api_key", "")
	v.SetDefault("sync.batch_size", DefaultConfig().Sync.BatchSize)
	v.SetDefault("sync.timeout", DefaultConfig().Sync.Timeout)
	v.SetDefault("checkpoints.dir", defaultCheckpointDir())

	v.SetEnvPrefix("CODETALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	} else {
		for _, path := range ConfigPaths() {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			break
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
