package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	DVR       DVRConfig       `yaml:"dvr"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Health    HealthConfig    `yaml:"health"`
	Engine    EngineConfig    `yaml:"engine"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	CORSOrigins  []string `yaml:"cors_origins,omitempty"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// AuthConfig holds access token settings
type AuthConfig struct {
	Secret   string   `yaml:"secret"`
	TokenTTL Duration `yaml:"token_ttl"`
}

// DVRConfig describes the recorder whose channels are probed directly
type DVRConfig struct {
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	IP          string `yaml:"ip,omitempty"`
	Port        int    `yaml:"port"`
	MaxChannels int    `yaml:"max_channels"`
}

// DiscoveryConfig controls the scanners and the periodic scheduler
type DiscoveryConfig struct {
	Auto     bool         `yaml:"auto"`
	Interval Duration     `yaml:"interval"`
	SADP     MethodToggle `yaml:"sadp"`
	ONVIF    MethodToggle `yaml:"onvif"`
	MDNS     MethodToggle `yaml:"mdns"`
	Sweep    SweepConfig  `yaml:"sweep"`
}

// MethodToggle enables a scanner and bounds its listening window
type MethodToggle struct {
	Enabled bool     `yaml:"enabled"`
	Timeout Duration `yaml:"timeout"`
}

// SweepConfig controls the subnet port sweep
type SweepConfig struct {
	Enabled     bool       `yaml:"enabled"`
	Subnet      string     `yaml:"subnet"`
	Engine      string     `yaml:"engine"` // tcp or nmap
	Concurrency int        `yaml:"concurrency"`
	DialTimeout Duration   `yaml:"dial_timeout"`
	Nmap        NmapConfig `yaml:"nmap"`
}

// NmapConfig tunes the nmap sweep engine
type NmapConfig struct {
	Path        string   `yaml:"path"`       // empty searches PATH
	PingHosts   bool     `yaml:"ping_hosts"` // DVRs often drop ICMP, so hosts are assumed up by default
	Timeout     Duration `yaml:"timeout"`
	HostTimeout Duration `yaml:"host_timeout"`
}

// HealthConfig controls the periodic reachability check of registered cameras
type HealthConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Interval    Duration `yaml:"interval"`
	Timeout     Duration `yaml:"timeout"`
	Concurrency int      `yaml:"concurrency"`
}

// EngineConfig points at the delegated media engine
type EngineConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

// StorageConfig selects the snapshot store
type StorageConfig struct {
	Driver string `yaml:"driver"` // file or sqlite
	Path   string `yaml:"path"`
}

// LogConfig controls zap output
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration wraps time.Duration for YAML unmarshaling
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

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
