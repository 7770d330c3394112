// Package config provides configuration management for the camera bridge.
//
// Settings come from a YAML file, then environment variables override
// individual fields so container deployments can run without a file.
//
// Config file locations (priority order):
//  1. $CAMERABRIDGE_CONFIG
//  2. ./camerabridge.yaml
//  3. $XDG_CONFIG_HOME/camerabridge/config.yaml
//  4. ~/.config/camerabridge/config.yaml
//  5. /etc/camerabridge/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"camerabridge/internal/adapter"
)

const (
	// MinSecretLength is the shortest accepted token signing secret
	MinSecretLength = 32
	// MaxChannelsLimit caps how many DVR channels are ever probed
	MaxChannelsLimit = adapter.MaxProbeChannels
	// DefaultSubnet is swept when nothing else is configured or detected
	DefaultSubnet = "192.168.1.0/24"
	// SubnetAuto asks the bootstrap probes to pick the sweep subnet
	SubnetAuto = "auto"

	defaultSecret = "change-this-secret-key-in-production-min-32-chars"
)

// Load finds and loads the config file, or returns defaults if none found.
// Environment overrides are applied in both cases.
func Load() (*Config, string, error) {
	path := FindConfigPath()

	var cfg *Config
	if path == "" {
		cfg = DefaultConfig()
	} else {
		loaded, _, err := LoadFromPath(path)
		if err != nil {
			return nil, path, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, path, fmt.Errorf("apply environment: %w", err)
	}
	return cfg, path, nil
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return cfg, path, nil
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

	return os.WriteFile(path, data, 0600)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Addr:         ":3000",
			CORSOrigins:  []string{"*"},
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Auth: AuthConfig{
			Secret:   defaultSecret,
			TokenTTL: Duration(60 * time.Second),
		},
		DVR: DVRConfig{
			Username:    "admin",
			Port:        554,
			MaxChannels: 16,
		},
		Discovery: DiscoveryConfig{
			Auto:     true,
			Interval: Duration(5 * time.Minute),
			SADP:     MethodToggle{Enabled: true, Timeout: Duration(5 * time.Second)},
			ONVIF:    MethodToggle{Enabled: true, Timeout: Duration(10 * time.Second)},
			MDNS:     MethodToggle{Enabled: true, Timeout: Duration(5 * time.Second)},
			Sweep: SweepConfig{
				Enabled:     true,
				Subnet:      DefaultSubnet,
				Engine:      "tcp",
				Concurrency: 64,
				DialTimeout: Duration(300 * time.Millisecond),
				Nmap: NmapConfig{
					Timeout:     Duration(5 * time.Minute),
					HostTimeout: Duration(10 * time.Second),
				},
			},
		},
		Health: HealthConfig{
			Enabled:     true,
			Interval:    Duration(time.Minute),
			Timeout:     Duration(2 * time.Second),
			Concurrency: 16,
		},
		Engine: EngineConfig{
			URL:     "http://localhost:1984",
			Timeout: Duration(5 * time.Second),
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   "./data/cameras.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	def := DefaultConfig()

	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Auth.Secret == "" {
		c.Auth.Secret = def.Auth.Secret
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = def.Auth.TokenTTL
	}
	if c.DVR.Port == 0 {
		c.DVR.Port = def.DVR.Port
	}
	if c.DVR.MaxChannels <= 0 {
		c.DVR.MaxChannels = def.DVR.MaxChannels
	}
	if c.DVR.MaxChannels > MaxChannelsLimit {
		c.DVR.MaxChannels = MaxChannelsLimit
	}
	if c.Discovery.SADP.Timeout == 0 {
		c.Discovery.SADP.Timeout = def.Discovery.SADP.Timeout
	}
	if c.Discovery.ONVIF.Timeout == 0 {
		c.Discovery.ONVIF.Timeout = def.Discovery.ONVIF.Timeout
	}
	if c.Discovery.MDNS.Timeout == 0 {
		c.Discovery.MDNS.Timeout = def.Discovery.MDNS.Timeout
	}
	if c.Discovery.Sweep.Subnet == "" {
		c.Discovery.Sweep.Subnet = def.Discovery.Sweep.Subnet
	}
	if c.Discovery.Sweep.Engine == "" {
		c.Discovery.Sweep.Engine = def.Discovery.Sweep.Engine
	}
	if c.Discovery.Sweep.Concurrency <= 0 {
		c.Discovery.Sweep.Concurrency = def.Discovery.Sweep.Concurrency
	}
	if c.Discovery.Sweep.DialTimeout == 0 {
		c.Discovery.Sweep.DialTimeout = def.Discovery.Sweep.DialTimeout
	}
	if c.Discovery.Sweep.Nmap.Timeout == 0 {
		c.Discovery.Sweep.Nmap.Timeout = def.Discovery.Sweep.Nmap.Timeout
	}
	if c.Discovery.Sweep.Nmap.HostTimeout == 0 {
		c.Discovery.Sweep.Nmap.HostTimeout = def.Discovery.Sweep.Nmap.HostTimeout
	}
	if c.Health.Interval == 0 {
		c.Health.Interval = def.Health.Interval
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = def.Health.Timeout
	}
	if c.Health.Concurrency <= 0 {
		c.Health.Concurrency = def.Health.Concurrency
	}
	if c.Engine.URL == "" {
		c.Engine.URL = def.Engine.URL
	}
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = def.Engine.Timeout
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Validate reports settings the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if len(c.Auth.Secret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("auth.secret must be at least %d characters", MinSecretLength))
	}
	if c.Auth.TokenTTL.Duration() <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Discovery.Auto && c.Discovery.Interval.Duration() < 0 {
		errs = append(errs, errors.New("discovery.interval must not be negative"))
	}
	switch c.Discovery.Sweep.Engine {
	case "tcp", "nmap":
	default:
		errs = append(errs, fmt.Errorf("discovery.sweep.engine %q is not tcp or nmap", c.Discovery.Sweep.Engine))
	}
	if c.Discovery.Sweep.Enabled && !strings.EqualFold(c.Discovery.Sweep.Subnet, SubnetAuto) {
		if err := adapter.ValidateSubnet(c.Discovery.Sweep.Subnet); err != nil {
			errs = append(errs, fmt.Errorf("discovery.sweep.subnet: %w", err))
		}
	}
	switch c.Storage.Driver {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not file or sqlite", c.Storage.Driver))
	}
	if c.Health.Enabled && c.Health.Interval.Duration() <= 0 {
		errs = append(errs, errors.New("health.interval must be positive"))
	}
	if c.Engine.Timeout.Duration() <= 0 {
		errs = append(errs, errors.New("engine.timeout must be positive"))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy safe to print or serve
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	if out.Auth.Secret != "" {
		out.Auth.Secret = "***"
	}
	if out.DVR.Password != "" {
		out.DVR.Password = "***"
	}
	return &out
}

// UsesDefaultSecret reports whether the shipped placeholder secret is in use
func (c *Config) UsesDefaultSecret() bool {
	return c.Auth.Secret == defaultSecret
}
