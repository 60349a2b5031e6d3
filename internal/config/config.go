// Package config loads application configuration.
package config

import "time"

// Config represents the complete application configuration.
type Config struct {
	Library  LibraryConfig  `mapstructure:"library"`
	Import   ImportConfig   `mapstructure:"import"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

// LibraryConfig covers playlist persistence.
type LibraryConfig struct {
	Path           string `mapstructure:"path"`             // playlist document path; empty uses the per-user default
	SaveDebounceMs int    `mapstructure:"save_debounce_ms"` // delay before a scheduled save runs
}

// ImportConfig covers the import pipeline.
type ImportConfig struct {
	BatchSize        int `mapstructure:"batch_size"`
	BatchPauseMs     int `mapstructure:"batch_pause_ms"`
	CompletionHoldMs int `mapstructure:"completion_hold_ms"`
}

// PlaybackConfig covers the player.
type PlaybackConfig struct {
	Volume float64 `mapstructure:"volume"` // initial volume in [0,1]
}

// CacheConfig covers the artwork and scan caches.
type CacheConfig struct {
	ArtworkMaxEntries int    `mapstructure:"artwork_max_entries"`
	ScanDBPath        string `mapstructure:"scan_db_path"` // empty disables the scan cache
}

// LogConfig covers logging.
type LogConfig struct {
	Debug bool `mapstructure:"debug"`
}

// GetSaveDebounce returns the save debounce as a time.Duration.
func (l *LibraryConfig) GetSaveDebounce() time.Duration {
	return time.Duration(l.SaveDebounceMs) * time.Millisecond
}

// GetBatchPause returns the inter-batch pause as a time.Duration.
func (i *ImportConfig) GetBatchPause() time.Duration {
	return time.Duration(i.BatchPauseMs) * time.Millisecond
}

// GetCompletionHold returns the completion hold as a time.Duration.
func (i *ImportConfig) GetCompletionHold() time.Duration {
	return time.Duration(i.CompletionHoldMs) * time.Millisecond
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			SaveDebounceMs: 100,
		},
		Import: ImportConfig{
			BatchSize:        10,
			BatchPauseMs:     50,
			CompletionHoldMs: 800,
		},
		Playback: PlaybackConfig{
			Volume: 0.7,
		},
		Cache: CacheConfig{
			ArtworkMaxEntries: 100,
		},
	}
}
