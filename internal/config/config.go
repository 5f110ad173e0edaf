// Package config loads service configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_sec"`
}

// SessionConfig configures session token issuance.
type SessionConfig struct {
	Secret  string `yaml:"secret"`
	TTLDays int    `yaml:"ttl_days"`
}

// TTL returns the configured token validity window.
func (c SessionConfig) TTL() time.Duration {
	days := c.TTLDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// LedgerConfig configures the external append-only ledger endpoint.
type LedgerConfig struct {
	NodeURL       string  `yaml:"node_url"`
	AuthToken     string  `yaml:"auth_token"`
	GasPrice      float64 `yaml:"gas_price"`
	SubmitTimeout int     `yaml:"submit_timeout_sec"`
	Workers       int     `yaml:"workers"`
	QueueSize     int     `yaml:"queue_size"`
}

// StorageConfig configures the image object store.
type StorageConfig struct {
	BaseURL   string `yaml:"base_url"`
	PublicURL string `yaml:"public_url"`
	Bucket    string `yaml:"bucket"`
	AuthToken string `yaml:"auth_token"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from path (optional) and applies environment
// overrides. Required values missing after both passes are an error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required (MEMEFEED_DATABASE_DSN)")
	}
	if cfg.Session.Secret == "" {
		return nil, fmt.Errorf("session secret is required (MEMEFEED_SESSION_SECRET)")
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3100,
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 30,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Session: SessionConfig{TTLDays: 30},
		Ledger: LedgerConfig{
			NodeURL:       "http://localhost:26658",
			GasPrice:      0.002,
			SubmitTimeout: 10,
			Workers:       4,
			QueueSize:     256,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MEMEFEED_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MEMEFEED_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("MEMEFEED_SESSION_SECRET"); v != "" {
		cfg.Session.Secret = v
	}
	if v := os.Getenv("MEMEFEED_LEDGER_NODE_URL"); v != "" {
		cfg.Ledger.NodeURL = v
	}
	if v := os.Getenv("MEMEFEED_LEDGER_AUTH_TOKEN"); v != "" {
		cfg.Ledger.AuthToken = v
	}
	if v := os.Getenv("MEMEFEED_STORAGE_BASE_URL"); v != "" {
		cfg.Storage.BaseURL = v
	}
	if v := os.Getenv("MEMEFEED_STORAGE_PUBLIC_URL"); v != "" {
		cfg.Storage.PublicURL = v
	}
	if v := os.Getenv("MEMEFEED_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("MEMEFEED_STORAGE_AUTH_TOKEN"); v != "" {
		cfg.Storage.AuthToken = v
	}
	if v := os.Getenv("MEMEFEED_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MEMEFEED_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
