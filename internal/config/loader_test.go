package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Cache.TTL != 2*time.Minute {
		t.Errorf("expected cache ttl 2m, got %v", cfg.Cache.TTL)
	}
	if cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("expected loopback bind, got %s", cfg.Server.Bind)
	}
	if !cfg.Source(model.SourceCodex).IsEnabled() {
		t.Error("sources should be enabled by default")
	}
	if got := cfg.Source(model.SourceFallback).Exclude; len(got) != 1 || got[0] != "openclaw" {
		t.Errorf("fallback exclude = %v", got)
	}
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "tokdash.yaml")

	content := `
timezone: UTC
server:
  port: 9090
cache:
  ttl: 30s
sources:
  codex:
    root: /data/codex
  openclaw:
    enabled: false
logging:
  level: debug
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("expected ttl 30s, got %v", cfg.Cache.TTL)
	}
	if cfg.Source(model.SourceCodex).Root != "/data/codex" {
		t.Errorf("codex root = %q", cfg.Source(model.SourceCodex).Root)
	}
	if cfg.Source(model.SourceOpenClaw).IsEnabled() {
		t.Error("openclaw should be disabled")
	}
	// Unchanged fields keep defaults
	if cfg.Scan.Concurrency != 4 {
		t.Errorf("expected default concurrency, got %d", cfg.Scan.Concurrency)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, "/nonexistent/path.yaml"); err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TOKDASH_PORT", "7070")
	t.Setenv("TOKDASH_CACHE_TTL", "120")
	t.Setenv("TOKDASH_LOG_FORMAT", "json")
	t.Setenv("TOKDASH_CLAUDE_ROOT", "/tmp/claude")
	t.Setenv("TOKDASH_GEMINI_CLI_ENABLED", "false")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 120*time.Second {
		t.Errorf("plain seconds should parse, got %v", cfg.Cache.TTL)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json format, got %s", cfg.Logging.Format)
	}
	if cfg.Source(model.SourceClaude).Root != "/tmp/claude" {
		t.Errorf("claude root = %q", cfg.Source(model.SourceClaude).Root)
	}
	if cfg.Source(model.SourceGeminiCLI).IsEnabled() {
		t.Error("gemini_cli should be disabled by env")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"ttl", func(c *Config) { c.Cache.TTL = -time.Second }},
		{"concurrency", func(c *Config) { c.Scan.Concurrency = 0 }},
		{"format", func(c *Config) { c.Logging.Format = "xml" }},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"source", func(c *Config) { c.Sources["cursor"] = SourceConfig{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			if err := validate(&cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSetAndSave(t *testing.T) {
	cfg := Defaults()
	if err := Set(&cfg, "cache.ttl", "5m"); err != nil {
		t.Fatal(err)
	}
	if err := Set(&cfg, "sources.codex.enabled", "false"); err != nil {
		t.Fatal(err)
	}
	if err := Set(&cfg, "server.port", "not-a-number"); err == nil {
		t.Error("expected error for bad port")
	}
	if cfg.Server.Port != 55423 {
		t.Errorf("failed Set changed port to %d", cfg.Server.Port)
	}
	if err := Set(&cfg, "nope", "1"); err == nil {
		t.Error("expected error for unknown key")
	}

	path := filepath.Join(t.TempDir(), "cfg", "tokdash.yaml")
	if err := Save(&cfg, path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Cache.TTL != 5*time.Minute || loaded.Source(model.SourceCodex).IsEnabled() {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}
