// Package config loads, validates and watches the dmflow config file.
// YAML files are coerced to JSON so one strict decoder serves both
// formats; unknown keys are rejected early instead of being silently
// ignored.
package config

import (
	"fmt"
	"strings"
	"time"

	"dmflow/internal/notify"
	"dmflow/internal/provider"
	"dmflow/internal/schedule"
	"dmflow/internal/storage"
	"dmflow/pkg/logx"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	API       APIConfig       `json:"api"`
	Provider  ProviderConfig  `json:"provider"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./dmflow_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8090"
	// CORSOrigins enables CORS for the listed origins; empty disables it.
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// ProviderConfig configures the Graph API send boundary. The access
// token and sender id normally come from the environment; file values
// take precedence when present.
type ProviderConfig struct {
	BaseURL     string `json:"base_url,omitempty"`
	Version     string `json:"version,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	SenderID    string `json:"sender_id,omitempty"`
	Timeout     string `json:"timeout,omitempty"` // Go duration string
}

type SchedulerConfig struct {
	// Tick is the promotion interval as a Go duration string.
	// Defaults to "1s".
	Tick string `json:"tick,omitempty"`
	// LogRetention bounds the activity log. Defaults to 200.
	LogRetention int `json:"log_retention,omitempty"`
}

type NotifierConfig struct {
	Enabled    bool `json:"enabled"`
	RatePerSec int  `json:"rate_per_sec,omitempty"`
	QueueSize  int  `json:"queue_size,omitempty"`
}

// ---- Conversions into domain configs ----

func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

func (c *StorageConfig) Storage() (storage.Config, error) {
	if c == nil {
		return storage.Config{}, nil
	}
	busy, err := ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: c.Driver, Path: c.Path, BusyTimeout: busy}, nil
}

func (c ProviderConfig) Provider() (provider.Config, error) {
	timeout, err := ParseDurationField("provider.timeout", c.Timeout)
	if err != nil {
		return provider.Config{}, err
	}
	return provider.Config{
		BaseURL:     c.BaseURL,
		Version:     c.Version,
		AccessToken: c.AccessToken,
		SenderID:    c.SenderID,
		Timeout:     timeout,
	}.FromEnv(), nil
}

func (c SchedulerConfig) Schedule() (schedule.Config, error) {
	tick, err := ParseDurationOrDefault("scheduler.tick", c.Tick, time.Second)
	if err != nil {
		return schedule.Config{}, err
	}
	return schedule.Config{Tick: tick}, nil
}

func (c *NotifierConfig) Notify() notify.Config {
	if c == nil {
		return notify.Config{}
	}
	return notify.Config{RatePerSec: c.RatePerSec, Buffer: c.QueueSize}
}

// Validate rejects configs that cannot produce a working process. It
// only checks shape; credentials are verified where they are used.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := c.Scheduler.Schedule(); err != nil {
		return err
	}
	if c.Scheduler.LogRetention < 0 {
		return fmt.Errorf("scheduler.log_retention must be >= 0")
	}
	if _, err := c.Storage.Storage(); err != nil {
		return err
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
	}
	if _, err := c.Provider.Provider(); err != nil {
		return err
	}
	if c.API.Enabled {
		for _, field := range []struct{ path, raw string }{
			{"api.read_timeout", c.API.ReadTimeout},
			{"api.write_timeout", c.API.WriteTimeout},
			{"api.idle_timeout", c.API.IdleTimeout},
		} {
			if _, err := ParseDurationField(field.path, field.raw); err != nil {
				return err
			}
		}
	}
	if c.Notifier != nil && c.Notifier.RatePerSec < 0 {
		return fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	return nil
}
