// Package config holds tokdash configuration.
package config

import (
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

// Config is the root configuration shared by the CLI and the server.
type Config struct {
	// Timezone names the location used for day boundaries ("" or "Local" for the system zone).
	Timezone string                          `yaml:"timezone"`
	Server   Server                          `yaml:"server"`
	Cache    Cache                           `yaml:"cache"`
	Pricing  Pricing                         `yaml:"pricing"`
	Scan     Scan                            `yaml:"scan"`
	Logging  Logging                         `yaml:"logging"`
	Rate     Rate                            `yaml:"rate"`
	Sources  map[model.SourceID]SourceConfig `yaml:"sources"`
}

// Server holds HTTP server settings.
type Server struct {
	Bind           string        `yaml:"bind"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Cache holds result cache settings.
type Cache struct {
	TTL      time.Duration `yaml:"ttl"`
	MemoSize int64         `yaml:"memo_size"`
}

// Pricing holds pricing table settings.
type Pricing struct {
	// File is a tokdash or LiteLLM pricing JSON file; empty uses the embedded table.
	File       string        `yaml:"file"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// Scan holds source scanning settings.
type Scan struct {
	Concurrency int `yaml:"concurrency"`
}

// Logging holds structured logging settings.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Rate holds per-IP rate limiting settings for the HTTP API.
type Rate struct {
	RequestsPerSecond float64 `yaml:"rps"`
	Burst             int     `yaml:"burst"`
}

// SourceConfig configures one usage source.
type SourceConfig struct {
	Enabled *bool    `yaml:"enabled,omitempty"`
	Root    string   `yaml:"root,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"` // fallback only: applications to ignore
}

// IsEnabled reports whether the source is enabled; sources are enabled unless disabled explicitly.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Server: Server{
			Bind:           "127.0.0.1",
			Port:           55423,
			RequestTimeout: 30 * time.Second,
		},
		Cache: Cache{
			TTL:      2 * time.Minute,
			MemoSize: 4096,
		},
		Pricing: Pricing{
			StaleAfter: 30 * 24 * time.Hour,
		},
		Scan: Scan{
			Concurrency: 4,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Sources: map[model.SourceID]SourceConfig{
			model.SourceFallback: {Exclude: []string{string(model.SourceOpenClaw)}},
		},
	}
}

// Source returns the configuration of id, or the zero value when unset.
func (c *Config) Source(id model.SourceID) SourceConfig {
	return c.Sources[id]
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
