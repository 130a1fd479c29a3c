// Package config loads the optional cdbflash configuration file. Flags
// override anything set here.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Update    UpdateConfig    `yaml:"update"`
}

// TransportConfig selects the register adapter.
type TransportConfig struct {
	Port      string `yaml:"port"`
	Baud      int    `yaml:"baud"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// UpdateConfig tunes the update lifecycle. Settle delay and poll timing are
// independent so protocol correctness stays decoupled from bus latency.
type UpdateConfig struct {
	Retries        int    `yaml:"retries"`
	SettleMs       int    `yaml:"settle_ms"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	MaxPolls       int    `yaml:"max_polls"`
	Password       uint32 `yaml:"password"`
	HeaderSize     int    `yaml:"header_size"`
	Paging         string `yaml:"paging"` // "fixed" or "auto"
	Inline         bool   `yaml:"inline"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Baud:      115200,
			TimeoutMs: 2000,
		},
		Update: UpdateConfig{
			Retries:        3,
			SettleMs:       2000,
			PollIntervalMs: 1000,
			MaxPolls:       10,
			HeaderSize:     8,
			Paging:         "fixed",
		},
	}
}

// Load reads and validates a configuration file, layering it over defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
