// Package config provides file, environment, and flag based configuration
// for the storjcloud client.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the client.
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// APIConfig holds dashboard API client configuration.
type APIConfig struct {
	// Token is the bearer token issued by the dashboard.
	Token string `mapstructure:"token" yaml:"token"`
	// URL is the dashboard site, used for human-facing hints.
	URL string `mapstructure:"url" yaml:"url"`
	// Endpoint is the REST API base. Empty means URL + "/api/v1".
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DiscoveryConfig holds node discovery configuration.
type DiscoveryConfig struct {
	FromDocker bool   `mapstructure:"from_docker" yaml:"from_docker"`
	DockerHost string `mapstructure:"docker_host" yaml:"docker_host"`
	// CommonPorts are scanned when no explicit ports are given.
	CommonPorts []int `mapstructure:"common_ports" yaml:"common_ports"`
	// PortRange is the [start, end] inclusive range for range scans.
	PortRange []int         `mapstructure:"port_range" yaml:"port_range"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SyncConfig holds sync daemon configuration.
type SyncConfig struct {
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
	BatchSize int           `mapstructure:"batch_size" yaml:"batch_size"`
	// RetryFailed is accepted for config compatibility; nodes that fail a
	// cycle are always re-attempted on the next one.
	RetryFailed  bool          `mapstructure:"retry_failed" yaml:"retry_failed"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	// StatusAddr enables the local daemon status endpoint when non-empty,
	// e.g. "127.0.0.1:9431".
	StatusAddr string `mapstructure:"status_addr" yaml:"status_addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// Default returns the configuration used when no file, environment, or flag
// overrides are present.
func Default() *Config {
	return &Config{
		API: APIConfig{
			URL:     "https://storj.cloud",
			Timeout: 30 * time.Second,
		},
		Discovery: DiscoveryConfig{
			FromDocker:  true,
			DockerHost:  "unix:///var/run/docker.sock",
			CommonPorts: []int{14000, 14001, 14002, 14003, 14004, 14005},
			PortRange:   []int{14000, 14010},
			Timeout:     5 * time.Second,
		},
		Sync: SyncConfig{
			Interval:     5 * time.Minute,
			BatchSize:    10,
			RetryFailed:  true,
			ProbeTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers the default values on a viper instance so partial
// config files and environment overrides merge onto them.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("api.token", d.API.Token)
	v.SetDefault("api.url", d.API.URL)
	v.SetDefault("api.endpoint", d.API.Endpoint)
	v.SetDefault("api.timeout", d.API.Timeout)

	v.SetDefault("discovery.from_docker", d.Discovery.FromDocker)
	v.SetDefault("discovery.docker_host", d.Discovery.DockerHost)
	v.SetDefault("discovery.common_ports", d.Discovery.CommonPorts)
	v.SetDefault("discovery.port_range", d.Discovery.PortRange)
	v.SetDefault("discovery.timeout", d.Discovery.Timeout)

	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("sync.batch_size", d.Sync.BatchSize)
	v.SetDefault("sync.retry_failed", d.Sync.RetryFailed)
	v.SetDefault("sync.probe_timeout", d.Sync.ProbeTimeout)
	v.SetDefault("sync.status_addr", d.Sync.StatusAddr)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.json", d.Logging.JSON)
}

// FromViper unmarshals and validates the effective configuration.
func FromViper(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.API.URL == "" && c.API.Endpoint == "" {
		return fmt.Errorf("api.url or api.endpoint is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery.timeout must be positive")
	}
	if len(c.Discovery.PortRange) != 2 {
		return fmt.Errorf("discovery.port_range must be [start, end]")
	}
	if c.Discovery.PortRange[0] > c.Discovery.PortRange[1] {
		return fmt.Errorf("discovery.port_range start exceeds end")
	}
	for _, p := range append(append([]int{}, c.Discovery.CommonPorts...), c.Discovery.PortRange...) {
		if p < 1 || p > 65535 {
			return fmt.Errorf("port %d out of range", p)
		}
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be at least 1")
	}
	if c.Sync.ProbeTimeout <= 0 {
		return fmt.Errorf("sync.probe_timeout must be positive")
	}
	if _, err := parseLevelName(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// APIEndpoint returns the REST base URL, deriving it from the dashboard URL
// when no explicit endpoint is configured.
func (c *Config) APIEndpoint() string {
	if c.API.Endpoint != "" {
		return strings.TrimRight(c.API.Endpoint, "/")
	}
	return strings.TrimRight(c.API.URL, "/") + "/api/v1"
}

func parseLevelName(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug", "info", "warn", "warning", "error":
		return s, nil
	default:
		return "", fmt.Errorf("unknown logging.level %q", s)
	}
}
