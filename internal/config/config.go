// Package config loads service configuration from a JSON config file and
// UPLIFT_* environment variables. Environment variables override file
// values; secrets (database key, model API key) are env-only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Supabase SupabaseConfig
	Gemini   GeminiConfig
	Storage  StorageConfig
	Refresh  RefreshConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
	// AuthToken guards the management endpoints when non-empty.
	AuthToken string
}

type SupabaseConfig struct {
	URL string
	Key string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type StorageConfig struct {
	DataDir string
}

type RefreshConfig struct {
	Freshness      string
	ErrorFreshness string
	Retention      string
	Interval       string
	Timezone       string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Refresh: RefreshConfig{
			Freshness:      "10m",
			ErrorFreshness: "1m",
			Retention:      "168h",
			Interval:       "30m",
			Timezone:       "Asia/Kolkata",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "uplift-data"
		}
	}
	return filepath.Join(dir, "uplift")
}

// Load reads configuration from the config file at
// $XDG_CONFIG_HOME/uplift/config.json with UPLIFT_* environment overrides,
// and validates that the required secrets are present.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b *fileBackend) (Config, error) {
	cfg := defaults()

	applyBackend(&cfg, b)
	applyEnvOverrides(&cfg)

	if cfg.Supabase.URL == "" || cfg.Supabase.Key == "" {
		return Config{}, fmt.Errorf("missing required config: Supabase credentials. " +
			"Set UPLIFT_SUPABASE_URL and UPLIFT_SUPABASE_KEY")
	}
	if cfg.Gemini.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: Gemini API key. " +
			"Set UPLIFT_GEMINI_API_KEY")
	}

	return cfg, nil
}

// Duration parses a duration config value, falling back to fallback with a
// warning when the value does not parse.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse duration %q: %v. Using %s.\n", value, err, fallback)
		return fallback
	}
	return d
}

// Location resolves a timezone name, falling back to UTC with a warning.
func Location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] unknown timezone %q: %v. Using UTC.\n", name, err)
		return time.UTC
	}
	return loc
}

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key    string
	typ    keyType
	env    string
	secret bool
	apply  func(cfg *Config, v any)
	// extract reads the current value back out; nil for secrets.
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "UPLIFT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.auth_token", typ: kString, env: "UPLIFT_SERVER_AUTH_TOKEN",
		secret: true,
		apply:  func(cfg *Config, v any) { cfg.Server.AuthToken = v.(string) },
	},
	{
		key: "supabase.url", typ: kString, env: "UPLIFT_SUPABASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Supabase.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Supabase.URL },
	},
	{
		key: "supabase.key", typ: kString, env: "UPLIFT_SUPABASE_KEY",
		secret: true,
		apply:  func(cfg *Config, v any) { cfg.Supabase.Key = v.(string) },
	},
	{
		key: "gemini.api_key", typ: kString, env: "UPLIFT_GEMINI_API_KEY",
		secret: true,
		apply:  func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
	},
	{
		key: "gemini.model", typ: kString, env: "UPLIFT_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "storage.data_dir", typ: kString, env: "UPLIFT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "refresh.freshness", typ: kString, env: "UPLIFT_REFRESH_FRESHNESS",
		apply:   func(cfg *Config, v any) { cfg.Refresh.Freshness = v.(string) },
		extract: func(cfg Config) any { return cfg.Refresh.Freshness },
	},
	{
		key: "refresh.error_freshness", typ: kString, env: "UPLIFT_REFRESH_ERROR_FRESHNESS",
		apply:   func(cfg *Config, v any) { cfg.Refresh.ErrorFreshness = v.(string) },
		extract: func(cfg Config) any { return cfg.Refresh.ErrorFreshness },
	},
	{
		key: "refresh.retention", typ: kString, env: "UPLIFT_REFRESH_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Refresh.Retention = v.(string) },
		extract: func(cfg Config) any { return cfg.Refresh.Retention },
	},
	{
		key: "refresh.interval", typ: kString, env: "UPLIFT_REFRESH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Refresh.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Refresh.Interval },
	},
	{
		key: "refresh.timezone", typ: kString, env: "UPLIFT_REFRESH_TIMEZONE",
		apply:   func(cfg *Config, v any) { cfg.Refresh.Timezone = v.(string) },
		extract: func(cfg Config) any { return cfg.Refresh.Timezone },
	},
	{
		key: "log.level", typ: kString, env: "UPLIFT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b *fileBackend) {
	for _, s := range specs {
		if s.secret {
			continue // secrets never come from the config file
		}
		switch s.typ {
		case kString:
			if v, ok := b.getString(s.key); ok {
				s.apply(cfg, v)
			}
		case kInt:
			if v, ok := b.getInt(s.key); ok {
				s.apply(cfg, v)
			}
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
