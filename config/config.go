// Package config loads workflowctl's runtime configuration from a YAML file,
// overlaid with environment variables, the way C360Studio-semspec's own
// config package layers a DefaultConfig under a validated file load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration for the workflow execution
// core: which providers are reachable, where state is persisted, and how
// aggressively to rate-limit a user.
type Config struct {
	Server      ServerConfig                `yaml:"server"`
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Redis       RedisConfig                 `yaml:"redis"`
	Postgres    PostgresConfig              `yaml:"postgres"`
	SQLite      SQLiteConfig                `yaml:"sqlite"`
	NATS        NATSConfig                  `yaml:"nats"`
	Templates   TemplatesConfig             `yaml:"templates"`
	Limits      LimitsConfig                `yaml:"limits"`
}

// ServerConfig configures the Control API's own listening surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ProviderConfig holds one LLM provider's credentials, keyed by provider
// name ("openai", "anthropic", "google") in Config.Providers.
type ProviderConfig struct {
	APIKey string `yaml:"apiKey"`
}

// RedisConfig configures the blueprint cache and Limiter's shared counters.
// Addr empty means both fall back to an in-process-only implementation.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig configures the persistence and retrieval backends when
// SQLite isn't in use. DSN empty means postgres-backed components are
// skipped at wiring time.
type PostgresConfig struct {
	DSN                string `yaml:"dsn"`
	EmbeddingDimension int    `yaml:"embeddingDimension"`
}

// SQLiteConfig configures the single-file persistence backend, the default
// for a local/dev run of workflowctl.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// NATSConfig configures the audit log subscriber's NATS connection. URL
// empty disables the audit subscriber entirely.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// TemplatesConfig points at the directory of named workflow templates the
// Preparation Service resolves `{kind: template}` sources against.
type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

// LimitsConfig configures the Limiter's concurrency and budget caps.
type LimitsConfig struct {
	MaxConcurrentRunsPerUser int           `yaml:"maxConcurrentRunsPerUser"`
	DailyTokenBudget         int           `yaml:"dailyTokenBudget"`
	MaxBlueprintNodes        int           `yaml:"maxBlueprintNodes"`
	NodeTimeout              time.Duration `yaml:"nodeTimeout"`
}

// Default returns a Config with sensible values for a local, single-process
// run: SQLite persistence, no Redis, no NATS, templates under templates/builtin.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Addr: ":8080"},
		Providers: map[string]ProviderConfig{},
		SQLite:    SQLiteConfig{Path: "workflow.db"},
		Templates: TemplatesConfig{Dir: "templates/builtin"},
		Limits: LimitsConfig{
			MaxConcurrentRunsPerUser: 4,
			DailyTokenBudget:         200_000,
			MaxBlueprintNodes:        200,
			NodeTimeout:              60 * time.Second,
		},
	}
}

// Load reads path (if non-empty and present) over Default(), then applies
// environment overrides. Missing files are not an error — callers running
// entirely off environment variables pass an empty path.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays a handful of environment variables on top of the
// file-loaded config, the same precedence C360Studio-semspec's CLI flags
// take over its config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		setProviderKey(cfg, "openai", v)
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		setProviderKey(cfg, "anthropic", v)
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		setProviderKey(cfg, "google", v)
	}
	if v := os.Getenv("WORKFLOW_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("WORKFLOW_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("WORKFLOW_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("WORKFLOW_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("WORKFLOW_DAILY_TOKEN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.DailyTokenBudget = n
		}
	}
}

func setProviderKey(cfg *Config, provider, key string) {
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	pc := cfg.Providers[provider]
	pc.APIKey = key
	cfg.Providers[provider] = pc
}

// Validate checks the invariants workflowctl's wiring depends on.
func (c *Config) Validate() error {
	if c.Limits.MaxConcurrentRunsPerUser < 0 {
		return fmt.Errorf("limits.maxConcurrentRunsPerUser must be >= 0")
	}
	if c.Limits.DailyTokenBudget < 0 {
		return fmt.Errorf("limits.dailyTokenBudget must be >= 0")
	}
	if c.SQLite.Path == "" && c.Postgres.DSN == "" {
		return fmt.Errorf("either sqlite.path or postgres.dsn must be set")
	}
	return nil
}
