package app

import (
	"errors"
	"fmt"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PatchPath string // .hcl file or directory

	SampleRate  int
	BlockSize   int
	Driver      string // "oto" or "headless"
	Watch       bool
	MIDI        bool
	MonitorPort int // 0 disables the monitor server

	LogFormat string
	LogLevel  string
}

// NewConfig validates cfg and fills the defaults a zero value implies.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PatchPath == "" {
		return nil, errors.New("PatchPath is a required configuration field and cannot be empty")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.SampleRate < 8000 || cfg.SampleRate > 192000 {
		return nil, fmt.Errorf("sample rate %d is outside the supported 8000-192000 range", cfg.SampleRate)
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 256
	}
	if cfg.BlockSize < 16 || cfg.BlockSize > 8192 {
		return nil, fmt.Errorf("block size %d is outside the supported 16-8192 range", cfg.BlockSize)
	}
	if cfg.Driver == "" {
		cfg.Driver = "oto"
	}
	if cfg.Driver != "oto" && cfg.Driver != "headless" {
		return nil, fmt.Errorf("unknown audio driver %q", cfg.Driver)
	}
	return &cfg, nil
}
