package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup and treated as immutable afterwards.
type Config struct {
	MaxConnections         int
	ConnectTimeout         time.Duration
	QueryTimeout           time.Duration
	IdleTimeout            time.Duration
	MaxQueryLength         int
	DefaultRowLimit        int
	MaxRowLimit            int
	AllowInformationSchema bool
	LogLevel               string
	LogQueries             bool
	HTTPAddr               string
	AuditDBPath            string
}

// Defaults mirror the limits the gateway was designed around: ten live
// connections, 100-row default result pages, 10k character queries.
func Defaults() *Config {
	return &Config{
		MaxConnections:         10,
		ConnectTimeout:         30 * time.Second,
		QueryTimeout:           60 * time.Second,
		IdleTimeout:            60 * time.Minute,
		MaxQueryLength:         10000,
		DefaultRowLimit:        100,
		MaxRowLimit:            1000,
		AllowInformationSchema: true,
		LogLevel:               "info",
		LogQueries:             true,
		HTTPAddr:               ":8080",
		AuditDBPath:            "dbgateway-audit.db",
	}
}

// Load reads configuration from the environment, optionally seeded from a
// .env file. Missing variables fall back to defaults; malformed numeric
// values are an error rather than a silent fallback.
func Load() (*Config, error) {
	// A .env file is a convenience for local runs, not a requirement.
	_ = godotenv.Load()

	cfg := Defaults()

	var err error
	if cfg.MaxConnections, err = envInt("DBGW_MAX_CONNECTIONS", cfg.MaxConnections); err != nil {
		return nil, err
	}
	if cfg.MaxQueryLength, err = envInt("DBGW_MAX_QUERY_LENGTH", cfg.MaxQueryLength); err != nil {
		return nil, err
	}
	if cfg.DefaultRowLimit, err = envInt("DBGW_DEFAULT_ROW_LIMIT", cfg.DefaultRowLimit); err != nil {
		return nil, err
	}
	if cfg.MaxRowLimit, err = envInt("DBGW_MAX_ROW_LIMIT", cfg.MaxRowLimit); err != nil {
		return nil, err
	}

	if cfg.ConnectTimeout, err = envSeconds("DBGW_CONNECT_TIMEOUT_SECONDS", cfg.ConnectTimeout); err != nil {
		return nil, err
	}
	if cfg.QueryTimeout, err = envSeconds("DBGW_QUERY_TIMEOUT_SECONDS", cfg.QueryTimeout); err != nil {
		return nil, err
	}
	idleMin, err := envInt("DBGW_IDLE_TIMEOUT_MINUTES", int(cfg.IdleTimeout/time.Minute))
	if err != nil {
		return nil, err
	}
	cfg.IdleTimeout = time.Duration(idleMin) * time.Minute

	cfg.AllowInformationSchema = envBool("DBGW_ALLOW_INFORMATION_SCHEMA", cfg.AllowInformationSchema)
	cfg.LogQueries = envBool("DBGW_LOG_QUERIES", cfg.LogQueries)

	if v := os.Getenv("DBGW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("DBGW_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("DBGW_AUDIT_DB_PATH"); v != "" {
		cfg.AuditDBPath = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxConnections < 1 {
		return fmt.Errorf("DBGW_MAX_CONNECTIONS must be at least 1, got %d", c.MaxConnections)
	}
	if c.DefaultRowLimit < 1 || c.DefaultRowLimit > c.MaxRowLimit {
		return fmt.Errorf("DBGW_DEFAULT_ROW_LIMIT must be in [1, %d], got %d", c.MaxRowLimit, c.DefaultRowLimit)
	}
	if c.MaxQueryLength < 1 {
		return fmt.Errorf("DBGW_MAX_QUERY_LENGTH must be positive, got %d", c.MaxQueryLength)
	}
	return nil
}

// Redacted returns the configuration as a map for the export tool.
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"max_connections":          c.MaxConnections,
		"connect_timeout_seconds":  int(c.ConnectTimeout / time.Second),
		"query_timeout_seconds":    int(c.QueryTimeout / time.Second),
		"idle_timeout_minutes":     int(c.IdleTimeout / time.Minute),
		"max_query_length":         c.MaxQueryLength,
		"default_row_limit":        c.DefaultRowLimit,
		"max_row_limit":            c.MaxRowLimit,
		"allow_information_schema": c.AllowInformationSchema,
		"log_level":                c.LogLevel,
		"log_queries":              c.LogQueries,
	}
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", name, v)
	}
	return n, nil
}

func envSeconds(name string, def time.Duration) (time.Duration, error) {
	n, err := envInt(name, int(def/time.Second))
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func envBool(name string, def bool) bool {
	v := strings.ToLower(os.Getenv(name))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}
