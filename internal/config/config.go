// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package config provides configuration management for the application.
// Configuration is loaded via Koanf v2 with layered sources, highest
// priority last: built-in defaults, optional YAML file, environment
// variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Auth modes accepted by Security.AuthMode.
const (
	AuthModeJWT   = "jwt"
	AuthModeBasic = "basic"
	AuthModeNone  = "none"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Historian HistorianConfig `koanf:"historian"`
	Collector CollectorConfig `koanf:"collector"`
	Report    ReportConfig    `koanf:"report"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// StorageConfig holds on-disk state locations.
type StorageConfig struct {
	// DataDir is the root for JSON stores, the archive, and reports.
	DataDir string `koanf:"data_dir"`

	// ArchivePath overrides the DuckDB archive location.
	// Empty means DataDir/archive.duckdb.
	ArchivePath string `koanf:"archive_path"`

	// ReportsDir overrides the generated-report directory.
	// Empty means DataDir/reports.
	ReportsDir string `koanf:"reports_dir"`

	// ArchiveMaxMemory caps DuckDB memory usage, e.g. "1GB".
	ArchiveMaxMemory string `koanf:"archive_max_memory"`

	// RetentionDays purges archive samples older than this.
	// Zero disables purging.
	RetentionDays int `koanf:"retention_days"`
}

// EndpointsPath returns the endpoint store file path.
func (s *StorageConfig) EndpointsPath() string {
	return filepath.Join(s.DataDir, "endpoints.json")
}

// UsersPath returns the user store file path.
func (s *StorageConfig) UsersPath() string {
	return filepath.Join(s.DataDir, "users.json")
}

// SchedulesPath returns the schedule store file path.
func (s *StorageConfig) SchedulesPath() string {
	return filepath.Join(s.DataDir, "schedules.json")
}

// EffectiveArchivePath returns the DuckDB archive path.
func (s *StorageConfig) EffectiveArchivePath() string {
	if s.ArchivePath != "" {
		return s.ArchivePath
	}
	return filepath.Join(s.DataDir, "archive.duckdb")
}

// EffectiveReportsDir returns the generated-report directory.
func (s *StorageConfig) EffectiveReportsDir() string {
	if s.ReportsDir != "" {
		return s.ReportsDir
	}
	return filepath.Join(s.DataDir, "reports")
}

// HistorianConfig holds OPC UA client settings shared by all endpoints.
type HistorianConfig struct {
	// ConnectTimeout bounds session establishment per endpoint.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	// ReadTimeout bounds a single history or current-value read.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// MaxSamplesPerRead caps how many raw samples one history read
	// returns before continuation points are followed.
	MaxSamplesPerRead int `koanf:"max_samples_per_read"`

	// ReadsPerSecond rate-limits history reads per endpoint.
	// Zero disables the limiter.
	ReadsPerSecond float64 `koanf:"reads_per_second"`
}

// CollectorConfig holds sampling collector settings.
type CollectorConfig struct {
	Enabled bool `koanf:"enabled"`

	// DefaultInterval applies to endpoints without their own interval.
	DefaultInterval time.Duration `koanf:"default_interval"`

	// InsertBatchSize is the archive batch size for collected samples.
	InsertBatchSize int `koanf:"insert_batch_size"`
}

// ReportConfig holds report generation settings.
type ReportConfig struct {
	// GenerationTimeout bounds one report generation end to end.
	GenerationTimeout time.Duration `koanf:"generation_timeout"`

	// ArchiveCoverageMin is the fraction of the requested window that
	// must be present in the archive before a live historian read is
	// skipped. Range 0..1.
	ArchiveCoverageMin float64 `koanf:"archive_coverage_min"`

	// MaxSectionSamples caps the samples fetched per section tag.
	MaxSectionSamples int `koanf:"max_section_samples"`
}

// SchedulerConfig holds report scheduler settings.
type SchedulerConfig struct {
	Enabled bool `koanf:"enabled"`

	// CheckInterval is how often due schedules are looked up.
	CheckInterval time.Duration `koanf:"check_interval"`

	// MaxConcurrentRuns bounds schedule executions in flight.
	MaxConcurrentRuns int `koanf:"max_concurrent_runs"`
}

// SecurityConfig holds authentication and HTTP hardening settings.
type SecurityConfig struct {
	// AuthMode is jwt (default), basic, or none.
	AuthMode string `koanf:"auth_mode"`

	// JWTSecret signs tokens and derives the credential encryption key.
	// Must be at least 32 characters unless AuthMode is none.
	JWTSecret string `koanf:"jwt_secret"`

	SessionTimeout time.Duration `koanf:"session_timeout"`

	// AdminUsername/AdminPassword bootstrap the first admin account.
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Environment, "development")
}

// Validation errors.
var (
	ErrInvalidPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidAuthMode  = errors.New("auth mode must be jwt, basic, or none")
	ErrJWTSecretTooWeak = errors.New("jwt secret must be at least 32 characters")
	ErrMissingDataDir   = errors.New("storage data_dir is required")
)

// Validate checks the configuration for consistency. It is called by
// Load after all layers are merged.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}

	switch c.Security.AuthMode {
	case AuthModeJWT, AuthModeBasic, AuthModeNone:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidAuthMode, c.Security.AuthMode)
	}

	// The JWT secret also keys credential encryption, so it is required
	// for endpoint credential storage even under basic auth.
	if c.Security.AuthMode != AuthModeNone && len(c.Security.JWTSecret) < 32 {
		return ErrJWTSecretTooWeak
	}

	if c.Storage.DataDir == "" {
		return ErrMissingDataDir
	}

	if c.Security.AdminPassword != "" {
		if err := ValidatePassword(c.Security.AdminPassword, c.Security.AdminUsername); err != nil {
			return fmt.Errorf("admin password: %w", err)
		}
	}

	if c.Report.ArchiveCoverageMin < 0 || c.Report.ArchiveCoverageMin > 1 {
		return fmt.Errorf("report archive_coverage_min must be in [0,1], got %v", c.Report.ArchiveCoverageMin)
	}

	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"server.timeout", c.Server.Timeout},
		{"historian.connect_timeout", c.Historian.ConnectTimeout},
		{"historian.read_timeout", c.Historian.ReadTimeout},
		{"collector.default_interval", c.Collector.DefaultInterval},
		{"report.generation_timeout", c.Report.GenerationTimeout},
		{"scheduler.check_interval", c.Scheduler.CheckInterval},
	} {
		if d.v <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.v)
		}
	}

	return nil
}
