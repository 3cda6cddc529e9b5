package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name in the user's home directory.
const DefaultFile = ".tokdash.yaml"

// Path returns the config file path: $TOKDASH_CONFIG, else ~/.tokdash.yaml.
func Path() (string, error) {
	if p := os.Getenv("TOKDASH_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultFile), nil
}

// Load returns the Config at Path using the hierarchy: defaults < YAML < ENV.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// LoadFile returns defaults overlaid with the YAML file only, ignoring the
// environment. Used when the result is written back to path.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Timezone, "TOKDASH_TIMEZONE")
	setString(&cfg.Server.Bind, "TOKDASH_BIND")
	setInt(&cfg.Server.Port, "TOKDASH_PORT")
	setDuration(&cfg.Server.RequestTimeout, "TOKDASH_REQUEST_TIMEOUT")
	setDuration(&cfg.Cache.TTL, "TOKDASH_CACHE_TTL")
	setString(&cfg.Pricing.File, "TOKDASH_PRICING_FILE")
	setDuration(&cfg.Pricing.StaleAfter, "TOKDASH_PRICING_STALE_AFTER")
	setInt(&cfg.Scan.Concurrency, "TOKDASH_SCAN_CONCURRENCY")
	setString(&cfg.Logging.Level, "TOKDASH_LOG_LEVEL")
	setString(&cfg.Logging.Format, "TOKDASH_LOG_FORMAT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "TOKDASH_RATE_RPS")
	setInt(&cfg.Rate.Burst, "TOKDASH_RATE_BURST")

	// Sources: TOKDASH_<SOURCE>_ROOT, TOKDASH_<SOURCE>_ENABLED
	for _, id := range model.AllSources {
		prefix := "TOKDASH_" + strings.ToUpper(string(id)) + "_"
		sc := cfg.Sources[id]
		setString(&sc.Root, prefix+"ROOT")
		if v := os.Getenv(prefix + "ENABLED"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				sc.Enabled = &b
			}
		}
		if sc.Root != "" || sc.Enabled != nil || sc.Exclude != nil {
			if cfg.Sources == nil {
				cfg.Sources = make(map[model.SourceID]SourceConfig)
			}
			cfg.Sources[id] = sc
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// setDuration accepts Go duration strings ("90s", "2m") or plain seconds.
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}

// validate checks that required fields have sensible values.
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Cache.TTL < 0 {
		return errors.New("cache.ttl must not be negative")
	}
	if cfg.Cache.MemoSize < 1 {
		return errors.New("cache.memo_size must be >= 1")
	}
	if cfg.Scan.Concurrency < 1 {
		return errors.New("scan.concurrency must be >= 1")
	}
	if cfg.Rate.RequestsPerSecond <= 0 || cfg.Rate.Burst < 1 {
		return errors.New("rate.rps must be > 0 and rate.burst >= 1")
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	for id := range cfg.Sources {
		if _, err := model.ParseSourceID(string(id)); err != nil {
			return fmt.Errorf("sources: %w", err)
		}
	}
	return nil
}

// Save writes cfg as YAML to path, readable only by the owner.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Set assigns a single dotted key, e.g. "cache.ttl" or "sources.codex.root".
// cfg is left unchanged when the value is invalid.
func Set(cfg *Config, key, value string) error {
	next := *cfg
	next.Sources = make(map[model.SourceID]SourceConfig, len(cfg.Sources))
	for id, sc := range cfg.Sources {
		next.Sources[id] = sc
	}

	if err := set(&next, key, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := validate(&next); err != nil {
		return err
	}
	*cfg = next
	return nil
}

func set(cfg *Config, key, value string) error {
	parts := strings.Split(key, ".")
	if len(parts) == 3 && parts[0] == "sources" {
		id, err := model.ParseSourceID(parts[1])
		if err != nil {
			return err
		}
		sc := cfg.Sources[id]
		switch parts[2] {
		case "root":
			sc.Root = value
		case "enabled":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			sc.Enabled = &b
		case "exclude":
			sc.Exclude = splitList(value)
		default:
			return errUnknownKey
		}
		cfg.Sources[id] = sc
		return nil
	}

	var err error
	switch key {
	case "timezone":
		cfg.Timezone = value
	case "server.bind":
		cfg.Server.Bind = value
	case "server.port":
		cfg.Server.Port, err = strconv.Atoi(value)
	case "server.request_timeout":
		cfg.Server.RequestTimeout, err = time.ParseDuration(value)
	case "cache.ttl":
		cfg.Cache.TTL, err = time.ParseDuration(value)
	case "cache.memo_size":
		cfg.Cache.MemoSize, err = strconv.ParseInt(value, 10, 64)
	case "pricing.file":
		cfg.Pricing.File = value
	case "pricing.stale_after":
		cfg.Pricing.StaleAfter, err = time.ParseDuration(value)
	case "scan.concurrency":
		cfg.Scan.Concurrency, err = strconv.Atoi(value)
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.format":
		cfg.Logging.Format = value
	case "rate.rps":
		cfg.Rate.RequestsPerSecond, err = strconv.ParseFloat(value, 64)
	case "rate.burst":
		cfg.Rate.Burst, err = strconv.Atoi(value)
	default:
		return errUnknownKey
	}
	return err
}

var errUnknownKey = errors.New("unknown config key")

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
