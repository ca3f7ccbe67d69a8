/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment
// variables, optionally overlaid by a YAML file (SEMESTRA_CONFIG_FILE).
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string

	DBBackend DatabaseBackend
	DBDSN     string

	JWTSigningKey string
	MetricsBind   string

	// Auto-schedule loop
	AutoScheduleInterval time.Duration
	AutoScheduleHorizon  time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// NATS event fan-out
	NATSEnabled bool
	NATSURL     string
}

// Load reads environment variables, applies the YAML overlay and
// defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("SEMESTRA_ENV", "development"),
		HTTPBind:    getEnv("SEMESTRA_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("SEMESTRA_HTTP_PORT", 8080),
		BaseURL:     getEnv("SEMESTRA_BASE_URL", ""),

		DBBackend: DatabaseBackend(getEnv("SEMESTRA_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:     getEnv("SEMESTRA_DB_DSN", ""),

		JWTSigningKey: getEnv("SEMESTRA_JWT_SIGNING_KEY", ""),
		MetricsBind:   getEnv("SEMESTRA_METRICS_BIND", "127.0.0.1:9000"),

		AutoScheduleInterval: time.Duration(getEnvInt("SEMESTRA_AUTOSCHEDULE_INTERVAL_SECONDS", 300)) * time.Second,
		AutoScheduleHorizon:  time.Duration(getEnvInt("SEMESTRA_AUTOSCHEDULE_HORIZON_DAYS", 14)) * 24 * time.Hour,

		TracingEnabled:    getEnvBool("SEMESTRA_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("SEMESTRA_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("SEMESTRA_TRACING_SAMPLE_RATE", 1.0),

		LeaderElectionEnabled: getEnvBool("SEMESTRA_LEADER_ELECTION_ENABLED", false),
		RedisAddr:             getEnv("SEMESTRA_REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("SEMESTRA_REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("SEMESTRA_REDIS_DB", 0),
		InstanceID:            getEnv("SEMESTRA_INSTANCE_ID", ""),

		NATSEnabled: getEnvBool("SEMESTRA_NATS_ENABLED", false),
		NATSURL:     getEnv("SEMESTRA_NATS_URL", "nats://localhost:4222"),
	}

	if path := os.Getenv("SEMESTRA_CONFIG_FILE"); path != "" {
		if err := applyFileOverlay(cfg, path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SEMESTRA_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("SEMESTRA_JWT_SIGNING_KEY must be provided")
	}

	if strings.EqualFold(cfg.Environment, "production") && len(cfg.JWTSigningKey) < 32 {
		return nil, fmt.Errorf("SEMESTRA_JWT_SIGNING_KEY must be at least 32 bytes in production")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
