package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Load reads configuration from config.toml, looked up in the user config
// directory and the working directory. A missing file is not an error; every
// value has a default.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath("$HOME/.config/resonata/")
	viper.AddConfigPath(".")

	defaults := DefaultConfig()
	viper.SetDefault("library.path", defaults.Library.Path)
	viper.SetDefault("library.save_debounce_ms", defaults.Library.SaveDebounceMs)
	viper.SetDefault("import.batch_size", defaults.Import.BatchSize)
	viper.SetDefault("import.batch_pause_ms", defaults.Import.BatchPauseMs)
	viper.SetDefault("import.completion_hold_ms", defaults.Import.CompletionHoldMs)
	viper.SetDefault("playback.volume", defaults.Playback.Volume)
	viper.SetDefault("cache.artwork_max_entries", defaults.Cache.ArtworkMaxEntries)
	viper.SetDefault("cache.scan_db_path", defaults.Cache.ScanDBPath)
	viper.SetDefault("log.debug", defaults.Log.Debug)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Playback.Volume < 0 || cfg.Playback.Volume > 1 {
		return nil, fmt.Errorf("playback.volume must be in [0,1], got %v", cfg.Playback.Volume)
	}

	return &cfg, nil
}
