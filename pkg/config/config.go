// Package config handles configuration loading from environment variables and files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults
const (
	DefaultPollingInterval = 60 * time.Second
	DefaultMaxCycles       = 3600
	DefaultConsumerName    = "queue:work"
	DefaultStoragePath     = "quasar-stat.db"
)

// Queue types
const (
	QueueLaravel = "laravel"
	QueueRedis   = "redis"
)

// Config holds all configuration for the stat supervisor
type Config struct {
	// Service identification (heartbeat only)
	Service string
	Name    string

	// Application is the instance lock key. Zero disables the lock.
	Application int64

	// ParentPID is watched by the liveness monitor. Zero disables it.
	ParentPID int32

	// PollingInterval drives the queue count snapshot. The liveness
	// monitor runs at twice this interval.
	PollingInterval time.Duration

	// ConsumerInterval drives the consumer scan; zero means PollingInterval.
	ConsumerInterval time.Duration

	// ConsumerName is matched against process command lines.
	ConsumerName string

	// MaxCycles caps a run to this many one-second cycles (3600, about an
	// hour, by default). The process manager is expected to restart us.
	MaxCycles int

	// Transport Redis (heartbeats to Zenith). Empty disables the heartbeat.
	TransportRedisURL string

	// Monitor Redis (for inspecting local app queues)
	MonitorRedisURL string

	// Heartbeat interval (default: 10s)
	Interval time.Duration

	// Queue monitoring configuration
	Queues []QueueConfig

	Lock    LockConfig
	Storage StorageConfig

	// MetricsAddr serves Prometheus metrics when set (e.g. ":9108").
	MetricsAddr string

	LogLevel string
}

// QueueConfig represents a queue to monitor
type QueueConfig struct {
	Name   string // Queue name
	Type   string // Type: "redis", "laravel"
	Prefix string // Optional key prefix
}

// LockConfig selects the instance lock implementation
type LockConfig struct {
	Driver string // "file", "redis" or "none"
	Dir    string // file locks only; defaults to the OS temp dir
}

// StorageConfig selects where snapshots are persisted
type StorageConfig struct {
	Driver string // "sqlite" or "none"
	Path   string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		PollingInterval: DefaultPollingInterval,
		ConsumerName:    DefaultConsumerName,
		MaxCycles:       DefaultMaxCycles,
		Interval:        10 * time.Second,
		Queues:          []QueueConfig{},
		Lock:            LockConfig{Driver: "file"},
		Storage:         StorageConfig{Driver: "sqlite", Path: DefaultStoragePath},
		LogLevel:        "info",
	}
}

// Load creates a Config from environment variables
func Load() *Config {
	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML file over the defaults, then applies the
// environment on top. An empty path behaves like Load.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.mergeYAML(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("QUASAR_SERVICE"); v != "" {
		c.Service = v
	}

	if v := os.Getenv("QUASAR_NAME"); v != "" {
		c.Name = v
	}

	if v := os.Getenv("QUASAR_APPLICATION"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Application = n
		}
	}

	if v := os.Getenv("QUASAR_PARENT_PID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			c.ParentPID = int32(n)
		}
	}

	if d, ok := envSeconds("QUASAR_POLLING_INTERVAL"); ok {
		c.PollingInterval = d
	}
	if d, ok := envSeconds("QUASAR_CONSUMER_INTERVAL"); ok {
		c.ConsumerInterval = d
	}
	if v := os.Getenv("QUASAR_CONSUMER_NAME"); v != "" {
		c.ConsumerName = v
	}

	if v := os.Getenv("QUASAR_MAX_CYCLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxCycles = n
		}
	}

	// Redis URLs
	if v := os.Getenv("QUASAR_TRANSPORT_REDIS_URL"); v != "" {
		c.TransportRedisURL = v
	} else if v := os.Getenv("QUASAR_REDIS_URL"); v != "" {
		// Legacy shorthand
		c.TransportRedisURL = v
	}

	if v := os.Getenv("QUASAR_MONITOR_REDIS_URL"); v != "" {
		c.MonitorRedisURL = v
	}

	if d, ok := envSeconds("QUASAR_INTERVAL"); ok {
		c.Interval = d
	}

	// Queue monitoring (comma-separated: name:type,name:type)
	// Example: QUASAR_QUEUES=default:laravel,emails:redis
	if v := os.Getenv("QUASAR_QUEUES"); v != "" {
		c.Queues = append(c.Queues, parseQueues(v)...)
	}

	if v := os.Getenv("QUASAR_LOCK_DRIVER"); v != "" {
		c.Lock.Driver = v
	}
	if v := os.Getenv("QUASAR_LOCK_DIR"); v != "" {
		c.Lock.Dir = v
	}
	if v := os.Getenv("QUASAR_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("QUASAR_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("QUASAR_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("QUASAR_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func envSeconds(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// parseQueues parses queue configuration string
// Format: "name:type,name:type" or "name" (defaults to laravel)
func parseQueues(s string) []QueueConfig {
	queues := []QueueConfig{}

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		segments := strings.Split(part, ":")
		for i := range segments {
			segments[i] = strings.TrimSpace(segments[i])
		}
		if segments[0] == "" {
			continue
		}

		qc := QueueConfig{
			Name: segments[0],
			Type: QueueLaravel,
		}

		if len(segments) >= 2 && segments[1] != "" {
			qc.Type = segments[1]
		}

		if len(segments) >= 3 {
			qc.Prefix = strings.Join(segments[2:], ":")
		}

		queues = append(queues, qc)
	}

	return queues
}

// MonitorInterval is the liveness check period: twice the polling interval.
func (c *Config) MonitorInterval() time.Duration {
	return 2 * c.PollingInterval
}

// ConsumerScanInterval returns ConsumerInterval, or PollingInterval when
// unset.
func (c *Config) ConsumerScanInterval() time.Duration {
	if c.ConsumerInterval > 0 {
		return c.ConsumerInterval
	}
	return c.PollingInterval
}

// LockRedisURL is the Redis used by the redis lock driver.
func (c *Config) LockRedisURL() string {
	if c.MonitorRedisURL != "" {
		return c.MonitorRedisURL
	}
	return c.TransportRedisURL
}

// LockTTL outlives the longest expected run. A cycle is the one-second wait
// plus callback time, so the budget is doubled before adding a margin.
func (c *Config) LockTTL() time.Duration {
	return 2*time.Duration(c.MaxCycles)*time.Second + 5*time.Minute
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PollingInterval < time.Second {
		return &ConfigError{Field: "PollingInterval", Message: "polling interval must be at least 1 second"}
	}
	if c.ConsumerInterval != 0 && c.ConsumerInterval < time.Second {
		return &ConfigError{Field: "ConsumerInterval", Message: "consumer interval must be at least 1 second"}
	}
	if c.MaxCycles <= 0 {
		return &ConfigError{Field: "MaxCycles", Message: "max cycles must be positive"}
	}
	if c.Application < 0 {
		return &ConfigError{Field: "Application", Message: "application id must not be negative"}
	}
	if c.ParentPID < 0 {
		return &ConfigError{Field: "ParentPID", Message: "parent pid must not be negative"}
	}
	if c.TransportRedisURL != "" {
		if c.Service == "" {
			return &ConfigError{Field: "Service", Message: "service name is required for heartbeats (set QUASAR_SERVICE)"}
		}
		if c.Interval < time.Second {
			return &ConfigError{Field: "Interval", Message: "heartbeat interval must be at least 1 second"}
		}
	}
	if len(c.Queues) > 0 && c.MonitorRedisURL == "" {
		return &ConfigError{Field: "MonitorRedisURL", Message: "monitor Redis URL is required to inspect queues"}
	}

	switch strings.ToLower(c.Lock.Driver) {
	case "", "none", "file":
	case "redis":
		if c.LockRedisURL() == "" {
			return &ConfigError{Field: "Lock.Driver", Message: "redis lock requires a monitor or transport Redis URL"}
		}
	default:
		return &ConfigError{Field: "Lock.Driver", Message: fmt.Sprintf("unknown lock driver %q", c.Lock.Driver)}
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "", "none":
	case "sqlite", "sqlite3":
		if c.Storage.Path == "" {
			return &ConfigError{Field: "Storage.Path", Message: "sqlite storage requires a path"}
		}
	default:
		return &ConfigError{Field: "Storage.Driver", Message: fmt.Sprintf("unknown storage driver %q", c.Storage.Driver)}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}
