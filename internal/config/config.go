// Package config loads the daemon's YAML configuration file: the zone
// definitions plus the optional location and aggregator sections.
package config

import (
	"fmt"
	"os"

	"lightzone/internal/aggregator"
	"lightzone/internal/zone"

	"gopkg.in/yaml.v3"
)

// Location holds coordinates for the sun-position darkness fallback
type Location struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// Config is the top-level configuration file structure
type Config struct {
	Zones      []zone.Config      `yaml:"zones"`
	Aggregator *aggregator.Config `yaml:"aggregator"`
	Location   *Location          `yaml:"location"`
}

// Load reads and validates the configuration file. Any invalid zone is
// fatal; the daemon should not start half-configured.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if len(cfg.Zones) == 0 {
		return nil, fmt.Errorf("config defines no zones")
	}

	seen := make(map[string]bool, len(cfg.Zones))
	for i := range cfg.Zones {
		if err := cfg.Zones[i].Validate(); err != nil {
			return nil, err
		}
		name := cfg.Zones[i].Name
		if seen[name] {
			return nil, fmt.Errorf("duplicate zone name %q", name)
		}
		seen[name] = true
	}

	return &cfg, nil
}

// AggregatorZones returns the zone names the aggregator should watch,
// defaulting to every configured zone.
func (c *Config) AggregatorZones() []string {
	if c.Aggregator != nil && len(c.Aggregator.Zones) > 0 {
		return c.Aggregator.Zones
	}
	names := make([]string, 0, len(c.Zones))
	for _, z := range c.Zones {
		names = append(names, z.Name)
	}
	return names
}
