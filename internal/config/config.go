// Package config provides configuration management for netfabric.
//
// Config file locations (priority order):
//  1. $NETFABRIC_CONFIG
//  2. ./netfabric.yaml
//  3. ~/.config/netfabric/config.yaml
//  4. /etc/netfabric/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"netfabric/internal/identity"
)

// Config is the root configuration structure
type Config struct {
	Version   int             `yaml:"version"`
	Listen    string          `yaml:"listen"`
	Database  DatabaseConfig  `yaml:"database"`
	IPAM      IPAMConfig      `yaml:"ipam,omitempty"`
	Discovery DiscoveryConfig `yaml:"discovery,omitempty"`
}

// DatabaseConfig holds event store settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// IPAMConfig names the parent blocks operators may allocate from.
// An empty list places no restriction.
type IPAMConfig struct {
	Parents []string `yaml:"parents,omitempty"`
}

// DiscoveryConfig holds nmap discovery settings
type DiscoveryConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Targets  []string `yaml:"targets,omitempty"`
	Interval Duration `yaml:"interval,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty"`
}

// Duration wraps time.Duration for human-readable YAML ("5m", "30s")
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the wrapped time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		Listen:   ":3000",
		Database: DatabaseConfig{Path: "./netfabric.db"},
		Discovery: DiscoveryConfig{
			Interval: Duration(5 * time.Minute),
			Timeout:  Duration(30 * time.Second),
		},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Listen == "" {
		c.Listen = ":3000"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./netfabric.db"
	}
	if c.Discovery.Interval == 0 {
		c.Discovery.Interval = Duration(5 * time.Minute)
	}
	if c.Discovery.Timeout == 0 {
		c.Discovery.Timeout = Duration(30 * time.Second)
	}
}

// Validate rejects configs that would fail later in confusing ways.
func (c *Config) Validate() error {
	for _, p := range c.IPAM.Parents {
		if _, err := identity.ParseSubnet(p); err != nil {
			return fmt.Errorf("ipam parent %q: %w", p, err)
		}
	}
	for _, t := range c.Discovery.Targets {
		if _, err := identity.ParseSubnet(t); err != nil {
			return fmt.Errorf("discovery target %q: %w", t, err)
		}
	}
	if c.Discovery.Enabled && len(c.Discovery.Targets) == 0 {
		return fmt.Errorf("discovery enabled with no targets")
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Listen: %s, Database: %s\n", c.Listen, c.Database.Path)
	if c.Discovery.Enabled {
		summary += fmt.Sprintf("Discovery: every %s across %d targets", c.Discovery.Interval.Duration(), len(c.Discovery.Targets))
	} else {
		summary += "Discovery: disabled"
	}
	return summary
}
