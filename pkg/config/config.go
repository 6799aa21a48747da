// Package config holds Grafito's open-time configuration.
//
// Configuration is a plain struct with defaults; LoadFromEnv overlays
// GRAFITO_* environment variables, and the CLI additionally reads a
// grafito.yaml file.
//
// Environment variables:
//   - GRAFITO_CYPHER_MAX_HOPS: default upper bound for unbounded
//     variable-length patterns (default 15)
//   - GRAFITO_DEFAULT_TOP_K: default k for vector search (default 10)
//   - GRAFITO_JOURNAL_MODE: SQLite journal mode (default WAL)
//   - GRAFITO_APOC_CACHE_DIR: response cache for apoc.load.* GETs
//     (consumed by the load procedures, listed here for discoverability)
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the full open-time configuration.
type Config struct {
	// CypherMaxHops clamps unbounded variable-length patterns.
	CypherMaxHops int `yaml:"cypher_max_hops"`
	// DefaultTopK is the default k for vector search.
	DefaultTopK int `yaml:"default_top_k"`
	// JournalMode is the SQLite journal mode; WAL is recommended.
	JournalMode string `yaml:"journal_mode"`
	// BusyTimeoutMS is the writer-lock wait in milliseconds.
	BusyTimeoutMS int `yaml:"busy_timeout_ms"`
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		CypherMaxHops: 15,
		DefaultTopK:   10,
		JournalMode:   "WAL",
		BusyTimeoutMS: 5000,
	}
}

// LoadFromEnv overlays GRAFITO_* environment variables onto the defaults.
func LoadFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if v := os.Getenv("GRAFITO_CYPHER_MAX_HOPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("GRAFITO_CYPHER_MAX_HOPS must be a positive integer, got %q", v)
		}
		cfg.CypherMaxHops = n
	}
	if v := os.Getenv("GRAFITO_DEFAULT_TOP_K"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("GRAFITO_DEFAULT_TOP_K must be a positive integer, got %q", v)
		}
		cfg.DefaultTopK = n
	}
	if v := os.Getenv("GRAFITO_JOURNAL_MODE"); v != "" {
		cfg.JournalMode = v
	}
	if v := os.Getenv("GRAFITO_BUSY_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("GRAFITO_BUSY_TIMEOUT_MS must be a non-negative integer, got %q", v)
		}
		cfg.BusyTimeoutMS = n
	}
	return cfg, nil
}

// Validate rejects impossible settings.
func (c Config) Validate() error {
	if c.CypherMaxHops <= 0 {
		return fmt.Errorf("cypher_max_hops must be positive")
	}
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("default_top_k must be positive")
	}
	switch c.JournalMode {
	case "WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "OFF", "wal", "delete", "truncate", "persist", "memory", "off":
	default:
		return fmt.Errorf("unknown journal mode %q", c.JournalMode)
	}
	return nil
}
