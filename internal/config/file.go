/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileOverlay mirrors the subset of Config that may be set from a YAML
// file. Environment variables win only when the file omits a key.
type fileOverlay struct {
	Environment *string `yaml:"environment"`
	HTTPBind    *string `yaml:"http_bind"`
	HTTPPort    *int    `yaml:"http_port"`
	BaseURL     *string `yaml:"base_url"`

	DBBackend *string `yaml:"db_backend"`
	DBDSN     *string `yaml:"db_dsn"`

	JWTSigningKey *string `yaml:"jwt_signing_key"`
	MetricsBind   *string `yaml:"metrics_bind"`

	AutoScheduleIntervalSeconds *int `yaml:"autoschedule_interval_seconds"`
	AutoScheduleHorizonDays     *int `yaml:"autoschedule_horizon_days"`

	RedisAddr   *string `yaml:"redis_addr"`
	NATSEnabled *bool   `yaml:"nats_enabled"`
	NATSURL     *string `yaml:"nats_url"`
}

// applyFileOverlay merges a YAML config file into cfg. File values take
// precedence over environment defaults for the keys they set.
func applyFileOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("yaml unmarshal: %w", err)
	}

	if overlay.Environment != nil {
		cfg.Environment = *overlay.Environment
	}
	if overlay.HTTPBind != nil {
		cfg.HTTPBind = *overlay.HTTPBind
	}
	if overlay.HTTPPort != nil {
		cfg.HTTPPort = *overlay.HTTPPort
	}
	if overlay.BaseURL != nil {
		cfg.BaseURL = *overlay.BaseURL
	}
	if overlay.DBBackend != nil {
		cfg.DBBackend = DatabaseBackend(*overlay.DBBackend)
	}
	if overlay.DBDSN != nil {
		cfg.DBDSN = *overlay.DBDSN
	}
	if overlay.JWTSigningKey != nil {
		cfg.JWTSigningKey = *overlay.JWTSigningKey
	}
	if overlay.MetricsBind != nil {
		cfg.MetricsBind = *overlay.MetricsBind
	}
	if overlay.AutoScheduleIntervalSeconds != nil {
		cfg.AutoScheduleInterval = time.Duration(*overlay.AutoScheduleIntervalSeconds) * time.Second
	}
	if overlay.AutoScheduleHorizonDays != nil {
		cfg.AutoScheduleHorizon = time.Duration(*overlay.AutoScheduleHorizonDays) * 24 * time.Hour
	}
	if overlay.RedisAddr != nil {
		cfg.RedisAddr = *overlay.RedisAddr
	}
	if overlay.NATSEnabled != nil {
		cfg.NATSEnabled = *overlay.NATSEnabled
	}
	if overlay.NATSURL != nil {
		cfg.NATSURL = *overlay.NATSURL
	}

	return nil
}
