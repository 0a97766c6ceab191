// Package config handles neurotool configuration loading and management.
package config

import "time"

// Config holds all settings.
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Decode  DecodeConfig  `yaml:"decode"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// SourceConfig controls how input files are fetched.
type SourceConfig struct {
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	MaxBytes    int64         `yaml:"max_bytes"` // 0 = unlimited
}

// DecodeConfig holds decoder options.
type DecodeConfig struct {
	AllowIsolatedVertices bool `yaml:"allow_isolated_vertices"`
}

// ExportConfig holds render bundle output settings.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	JSON    bool   `yaml:"json"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			HTTPTimeout: 30 * time.Second,
			MaxBytes:    1 << 30,
		},
		Decode: DecodeConfig{
			AllowIsolatedVertices: false,
		},
		Export: ExportConfig{
			OutputDir: ".",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
