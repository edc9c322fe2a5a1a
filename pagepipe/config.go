// CLAUDE:SUMMARY Configuration struct and defaults for the pagepipe merge/split pipeline; loaded as the pipeline section of pagesmith.yaml.
package pagepipe

import "log/slog"

// Config configures the pipeline.
type Config struct {
	// MaxFileSize is the largest accepted input document (default: 100 MiB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// MaxInputs caps the number of documents in one merge (default: 50).
	MaxInputs int `json:"max_inputs" yaml:"max_inputs"`

	// DefaultTargetMB is the size-split target used when a caller gives none (default: 2.0).
	DefaultTargetMB float64 `json:"default_target_mb" yaml:"default_target_mb"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.MaxInputs <= 0 {
		c.MaxInputs = 50
	}
	if c.DefaultTargetMB <= 0 {
		c.DefaultTargetMB = 2.0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
