// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package api implements the HTTP surface: authentication, endpoint and
// user management, sample queries, report generation and download, and
// schedule administration. All responses use the models.APIResponse
// envelope.
package api

import (
	"context"
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/historiographus/internal/archive"
	"github.com/tomtom215/historiographus/internal/auth"
	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/report"
	"github.com/tomtom215/historiographus/internal/store"
	"github.com/tomtom215/historiographus/internal/websocket"
)

// HistorianClient is the subset of the OPC UA client the API needs.
type HistorianClient interface {
	TestConnection(ctx context.Context, ep models.Endpoint) error
	Browse(ctx context.Context, ep models.Endpoint, root string) ([]models.BrowsedTag, error)
	ReadCurrent(ctx context.Context, ep models.Endpoint, tags []string) ([]models.Sample, error)
}

// ReportGenerator runs the on-demand report pipeline.
type ReportGenerator interface {
	Generate(ctx context.Context, spec models.ReportSpec, generatedBy string) (models.ReportRecord, error)
}

// ScheduleTrigger starts a schedule outside its cron cadence.
type ScheduleTrigger interface {
	TriggerNow(ctx context.Context, id string) error
}

// Dependencies bundles everything the handlers reach into.
type Dependencies struct {
	Config    *config.Config
	Endpoints *store.EndpointStore
	Users     *store.UserStore
	Schedules *store.ScheduleStore
	Archive   *archive.Archive
	Historian HistorianClient
	Registry  *report.Registry
	Generator ReportGenerator
	Trigger   ScheduleTrigger
	Hub       *websocket.Hub
	JWT       *auth.JWTManager
	Lockout   *auth.LockoutManager
}

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	cfg       *config.Config
	endpoints *store.EndpointStore
	users     *store.UserStore
	schedules *store.ScheduleStore
	archive   *archive.Archive
	historian HistorianClient
	registry  *report.Registry
	generator ReportGenerator
	trigger   ScheduleTrigger
	hub       *websocket.Hub
	jwt       *auth.JWTManager
	lockout   *auth.LockoutManager
	upgrader  gorillaws.Upgrader
	startedAt time.Time
}

// NewHandler creates the API handler set.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		cfg:       deps.Config,
		endpoints: deps.Endpoints,
		users:     deps.Users,
		schedules: deps.Schedules,
		archive:   deps.Archive,
		historian: deps.Historian,
		registry:  deps.Registry,
		generator: deps.Generator,
		trigger:   deps.Trigger,
		hub:       deps.Hub,
		jwt:       deps.JWT,
		lockout:   deps.Lockout,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(deps.Config.Security.CORSOrigins),
		},
		startedAt: time.Now(),
	}
}

// originChecker allows the configured CORS origins plus same-origin
// requests (no Origin header).
func originChecker(origins []string) func(r *http.Request) bool {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		return allowed[origin]
	}
}

// handleHealth returns service health.
//
// Method: GET
// Path: /api/v1/health
// Authentication: none
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"ws_clients":     h.hub.GetClientCount(),
	}, start)
}

// handleWebSocket upgrades the connection and attaches the client to
// the broadcast hub.
//
// Method: GET
// Path: /api/v1/ws
// Authentication: required (cookie works for browser clients)
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
