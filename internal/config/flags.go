package config

import (
	"flag"
	"time"
)

// Flags holds command-line overrides bound to a FlagSet.
type Flags struct {
	Config        string
	Debug         bool
	Quiet         bool
	Timeout       time.Duration
	OutputDir     string
	AllowIsolated bool
}

// BindFlags registers the common options on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&f.Quiet, "quiet", false, "Only log errors")
	fs.DurationVar(&f.Timeout, "timeout", 0, "HTTP fetch timeout")
	fs.StringVar(&f.OutputDir, "out", "", "Output directory for exported bundles")
	fs.BoolVar(&f.AllowIsolated, "allow-isolated", false, "Accept surface vertices that belong to no face")
	return f
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Quiet {
		cfg.Logging.Level = "error"
	}
	if f.Timeout > 0 {
		cfg.Source.HTTPTimeout = f.Timeout
	}
	if f.OutputDir != "" {
		cfg.Export.OutputDir = f.OutputDir
	}
	if f.AllowIsolated {
		cfg.Decode.AllowIsolatedVertices = true
	}
}
