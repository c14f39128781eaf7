package config

import (
	"bytes"
	"errors"
	"io"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// fileConfig is the on-disk shape. Intervals are whole seconds.
type fileConfig struct {
	Service           string            `yaml:"service"`
	Name              string            `yaml:"name"`
	Application       int64             `yaml:"application"`
	ParentPID         int32             `yaml:"parent_pid"`
	PollingInterval   int               `yaml:"polling_interval"`
	ConsumerInterval  int               `yaml:"consumer_interval"`
	ConsumerName      string            `yaml:"consumer_name"`
	MaxCycles         int               `yaml:"max_cycles"`
	TransportRedisURL string            `yaml:"transport_redis_url"`
	MonitorRedisURL   string            `yaml:"monitor_redis_url"`
	Interval          int               `yaml:"interval"`
	Queues            []fileQueueConfig `yaml:"queues"`
	Lock              struct {
		Driver string `yaml:"driver"`
		Dir    string `yaml:"dir"`
	} `yaml:"lock"`
	Storage struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"storage"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

type fileQueueConfig struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Prefix string `yaml:"prefix"`
}

// mergeYAML overlays the non-zero values of a YAML document. Unknown keys
// are rejected so typos do not silently fall back to defaults.
func (c *Config) mergeYAML(data []byte) error {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	setString(&c.Service, fc.Service)
	setString(&c.Name, fc.Name)
	if fc.Application != 0 {
		c.Application = fc.Application
	}
	if fc.ParentPID != 0 {
		c.ParentPID = fc.ParentPID
	}
	setSeconds(&c.PollingInterval, fc.PollingInterval)
	setSeconds(&c.ConsumerInterval, fc.ConsumerInterval)
	setString(&c.ConsumerName, fc.ConsumerName)
	if fc.MaxCycles != 0 {
		c.MaxCycles = fc.MaxCycles
	}
	setString(&c.TransportRedisURL, fc.TransportRedisURL)
	setString(&c.MonitorRedisURL, fc.MonitorRedisURL)
	setSeconds(&c.Interval, fc.Interval)
	for _, q := range fc.Queues {
		if q.Name == "" {
			continue
		}
		qc := QueueConfig{Name: q.Name, Type: q.Type, Prefix: q.Prefix}
		if qc.Type == "" {
			qc.Type = QueueLaravel
		}
		c.Queues = append(c.Queues, qc)
	}
	setString(&c.Lock.Driver, fc.Lock.Driver)
	setString(&c.Lock.Dir, fc.Lock.Dir)
	setString(&c.Storage.Driver, fc.Storage.Driver)
	setString(&c.Storage.Path, fc.Storage.Path)
	setString(&c.MetricsAddr, fc.MetricsAddr)
	setString(&c.LogLevel, fc.LogLevel)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setSeconds(dst *time.Duration, seconds int) {
	if seconds != 0 {
		*dst = time.Duration(seconds) * time.Second
	}
}
