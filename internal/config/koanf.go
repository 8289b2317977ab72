// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/historiographus/config.yaml",
	"/etc/historiographus/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are
// layered first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        4841, // one above the OPC UA registration port
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Storage: StorageConfig{
			DataDir:          "/data",
			ArchiveMaxMemory: "1GB",
			RetentionDays:    0,
		},
		Historian: HistorianConfig{
			ConnectTimeout:    10 * time.Second,
			ReadTimeout:       30 * time.Second,
			MaxSamplesPerRead: 10000,
			ReadsPerSecond:    10,
		},
		Collector: CollectorConfig{
			Enabled:         true,
			DefaultInterval: time.Minute,
			InsertBatchSize: 500,
		},
		Report: ReportConfig{
			GenerationTimeout:  2 * time.Minute,
			ArchiveCoverageMin: 0.9,
			MaxSectionSamples:  50000,
		},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			CheckInterval:     time.Minute,
			MaxConcurrentRuns: 2,
		},
		Security: SecurityConfig{
			AuthMode:        AuthModeJWT,
			JWTSecret:       "",
			SessionTimeout:  24 * time.Hour,
			AdminUsername:   "",
			AdminPassword:   "",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML (if found)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port, JWT_SECRET -> security.jwt_secret, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, honoring CONFIG_PATH first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are config paths parsed as comma-separated slices
// when they arrive as strings from env vars.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated strings to slices for the
// known slice fields. YAML-sourced slices pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - DATA_DIR -> storage.data_dir
//   - JWT_SECRET -> security.jwt_secret
//   - SCHEDULER_ENABLED -> scheduler.enabled
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":   "server.host",
		"http_port":   "server.port",
		"environment": "server.environment",

		// Storage
		"data_dir":           "storage.data_dir",
		"archive_path":       "storage.archive_path",
		"reports_dir":        "storage.reports_dir",
		"archive_max_memory": "storage.archive_max_memory",
		"retention_days":     "storage.retention_days",

		// Historian
		"historian_connect_timeout": "historian.connect_timeout",
		"historian_read_timeout":    "historian.read_timeout",
		"historian_max_samples":     "historian.max_samples_per_read",
		"historian_reads_per_sec":   "historian.reads_per_second",

		// Collector
		"collector_enabled":  "collector.enabled",
		"collector_interval": "collector.default_interval",

		// Report
		"report_timeout":      "report.generation_timeout",
		"report_max_samples":  "report.max_section_samples",
		"report_coverage_min": "report.archive_coverage_min",

		// Scheduler
		"scheduler_enabled":        "scheduler.enabled",
		"scheduler_check_interval": "scheduler.check_interval",
		"scheduler_max_concurrent": "scheduler.max_concurrent_runs",

		// Security
		"auth_mode":          "security.auth_mode",
		"jwt_secret":         "security.jwt_secret",
		"session_timeout":    "security.session_timeout",
		"admin_username":     "security.admin_username",
		"admin_password":     "security.admin_password",
		"rate_limit_reqs":    "security.rate_limit_reqs",
		"rate_limit_window":  "security.rate_limit_window",
		"disable_rate_limit": "security.rate_limit_disabled",
		"cors_origins":       "security.cors_origins",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown env vars are discarded to avoid polluting the config tree.
	return ""
}
