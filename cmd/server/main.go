// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package main is the entry point for the Historiographus server.
//
// Historiographus collects time-series samples from OPC UA historians
// into a local DuckDB archive and generates PDF/DOCX reports with
// charts and statistics, on demand and on cron schedules.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables and config file via Koanf v2
//  2. Stores: JSON-backed endpoint, user, and schedule stores
//  3. Archive: DuckDB sample archive with retention sweeping
//  4. Historian client: OPC UA reads with circuit breakers and rate limits
//  5. Report pipeline: chart rendering, statistics, PDF/DOCX output
//  6. Supervisor tree: collector, scheduler, websocket hub, HTTP server
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml),
// built-in defaults.
//
// For JWT authentication (default):
//   - JWT_SECRET: 32+ character secret for token signing; also derives
//     the endpoint credential encryption key
//   - ADMIN_USERNAME / ADMIN_PASSWORD: bootstrap admin account
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server drains in-flight requests, the collector and scheduler finish
// or abandon their current cycle, and the archive is closed last.
//
// # Example Usage
//
// Development without authentication:
//
//	export AUTH_MODE=none
//	export DATA_DIR=./data
//	./historiographus
//
// Production with JWT:
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export ADMIN_USERNAME=admin
//	export ADMIN_PASSWORD=secure-password
//	export DATA_DIR=/var/lib/historiographus
//	./historiographus
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/historiographus/internal/api"
	"github.com/tomtom215/historiographus/internal/archive"
	"github.com/tomtom215/historiographus/internal/auth"
	"github.com/tomtom215/historiographus/internal/collector"
	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/historian"
	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/report"
	"github.com/tomtom215/historiographus/internal/report/scheduler"
	"github.com/tomtom215/historiographus/internal/store"
	"github.com/tomtom215/historiographus/internal/supervisor"
	"github.com/tomtom215/historiographus/internal/supervisor/services"
	ws "github.com/tomtom215/historiographus/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("data_dir", cfg.Storage.DataDir).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("collector", cfg.Collector.Enabled).
		Bool("scheduler", cfg.Scheduler.Enabled).
		Msg("Starting Historiographus")

	if err := os.MkdirAll(cfg.Storage.DataDir, 0750); err != nil {
		logging.Fatal().Err(err).Str("dir", cfg.Storage.DataDir).Msg("Failed to create data directory")
	}

	// Endpoint credentials are encrypted with a key derived from the JWT
	// secret. In none mode the secret may be absent; an ephemeral one
	// keeps the server usable but stored credentials will not survive a
	// restart.
	secret := cfg.Security.JWTSecret
	if secret == "" {
		secret = uuid.New().String() + uuid.New().String()
		logging.Warn().Msg("JWT_SECRET not set: endpoint credentials will not be readable after restart")
	}
	encryptor, err := config.NewCredentialEncryptor(secret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize credential encryption")
	}

	endpoints, err := store.NewEndpointStore(cfg.Storage.EndpointsPath(), encryptor)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open endpoint store")
	}
	users, err := store.NewUserStore(cfg.Storage.UsersPath())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open user store")
	}
	schedules, err := store.NewScheduleStore(cfg.Storage.SchedulesPath())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open schedule store")
	}

	if cfg.Security.AdminUsername != "" && cfg.Security.AdminPassword != "" {
		if err := users.EnsureAdmin(cfg.Security.AdminUsername, cfg.Security.AdminPassword); err != nil {
			logging.Fatal().Err(err).Msg("Failed to bootstrap admin account")
		}
	}

	arc, err := archive.Open(cfg.Storage.EffectiveArchivePath(), cfg.Storage.ArchiveMaxMemory)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open sample archive")
	}
	defer func() {
		if err := arc.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing archive")
		}
	}()
	logging.Info().Str("path", cfg.Storage.EffectiveArchivePath()).Msg("Sample archive opened")

	client := historian.NewClient(cfg.Historian)
	hub := ws.NewHub()

	registry, err := report.NewRegistry(cfg.Storage.EffectiveReportsDir())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open report registry")
	}
	generator := report.NewGenerator(cfg.Report, cfg.Collector.DefaultInterval,
		endpoints, arc, client, registry, hub)

	var jwtManager *auth.JWTManager
	switch cfg.Security.AuthMode {
	case config.AuthModeJWT:
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		logging.Info().Msg("JWT authentication enabled")
	case config.AuthModeBasic:
		logging.Info().Msg("Basic authentication enabled")
		logging.Warn().Msg("Basic Auth transmits credentials with each request. Use HTTPS in production!")
	case config.AuthModeNone:
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: Authentication is DISABLED (AUTH_MODE=none)")
		logging.Warn().Msg("  All endpoints are publicly accessible without authentication!")
		logging.Warn().Msg("  NEVER use AUTH_MODE=none in production or on public networks!")
		logging.Warn().Msg("============================================================")
	}
	lockout := auth.NewLockoutManager(auth.DefaultLockoutConfig())
	authn := auth.NewAuthenticator(&cfg.Security, jwtManager, users, lockout)

	sched := scheduler.New(cfg.Scheduler, schedules, generator, hub, models.ShadowUsername)

	handler := api.NewHandler(api.Dependencies{
		Config:    cfg,
		Endpoints: endpoints,
		Users:     users,
		Schedules: schedules,
		Archive:   arc,
		Historian: client,
		Registry:  registry,
		Generator: generator,
		Trigger:   sched,
		Hub:       hub,
		JWT:       jwtManager,
		Lockout:   lockout,
	})
	router := api.NewRouter(handler, authn)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())

	if cfg.Collector.Enabled {
		coll := collector.New(cfg.Collector, endpoints, client, arc, hub)
		tree.AddDataService(services.NewRunnerService("collector", coll))
	} else {
		logging.Info().Msg("Sample collector disabled")
	}
	tree.AddDataService(services.NewRunnerService("archive-retention",
		archive.NewRetention(arc, cfg.Storage.RetentionDays)))

	tree.AddReportingService(services.NewHubService(hub))
	if cfg.Scheduler.Enabled {
		tree.AddReportingService(services.NewRunnerService("scheduler", sched))
	} else {
		logging.Info().Msg("Report scheduler disabled")
	}

	tree.AddAPIService(services.NewRunnerService("lockout-janitor", lockout))
	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Server starting")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down")
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree exited with error")
		}
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("Supervisor tree failed")
			cancel()
			os.Exit(1)
		}
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	logging.Info().Msg("Shutdown complete")
}
