// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/historiographus/internal/auth"
	"github.com/tomtom215/historiographus/internal/middleware"
)

// NewRouter wires the chi router: global middleware, the unauthenticated
// surface (health, metrics, login), and the authenticated API with
// admin-only mutation groups.
func NewRouter(h *Handler, authn *auth.Authenticator) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	sec := &h.cfg.Security
	if len(sec.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   sec.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if !sec.RateLimitDisabled {
		reqs := sec.RateLimitReqs
		if reqs <= 0 {
			reqs = 100
		}
		window := sec.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(reqs, window))
	}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/v1/health", h.handleHealth)

	// Login gets its own tight limit on top of the global one; it is the
	// only unauthenticated endpoint that touches the user store.
	r.With(httprate.LimitByIP(10, time.Minute)).
		Post("/api/v1/auth/login", h.handleLogin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authn.Middleware)

		r.Get("/auth/me", h.handleMe)
		r.Post("/auth/logout", h.handleLogout)
		r.Put("/auth/password", h.handleChangePassword)
		r.Get("/ws", h.handleWebSocket)

		r.Route("/endpoints", func(r chi.Router) {
			r.Get("/", h.handleListEndpoints)
			r.Get("/{id}", h.handleGetEndpoint)
			r.With(auth.RequireAdmin).Post("/", h.handleCreateEndpoint)
			r.With(auth.RequireAdmin).Put("/{id}", h.handleUpdateEndpoint)
			r.With(auth.RequireAdmin).Delete("/{id}", h.handleDeleteEndpoint)
			r.With(auth.RequireAdmin).Post("/test", h.handleTestEndpoint)
			r.With(auth.RequireAdmin).Post("/{id}/browse", h.handleBrowseEndpoint)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/", h.handleListUsers)
			r.Get("/{id}", h.handleGetUser)
			r.Post("/", h.handleCreateUser)
			r.Put("/{id}", h.handleUpdateUser)
			r.Delete("/{id}", h.handleDeleteUser)
		})

		r.Route("/samples", func(r chi.Router) {
			r.Get("/", h.handleQuerySamples)
			r.Get("/current", h.handleCurrentSamples)
		})

		r.Get("/stats/preview", h.handleStatsPreview)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.handleListReports)
			r.Post("/", h.handleGenerateReport)
			r.Get("/{id}", h.handleGetReport)
			r.Get("/{id}/download", h.handleDownloadReport)
			r.With(auth.RequireAdmin).Delete("/{id}", h.handleDeleteReport)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.handleListSchedules)
			r.Get("/{id}", h.handleGetSchedule)
			r.With(auth.RequireAdmin).Post("/", h.handleCreateSchedule)
			r.With(auth.RequireAdmin).Put("/{id}", h.handleUpdateSchedule)
			r.With(auth.RequireAdmin).Delete("/{id}", h.handleDeleteSchedule)
			r.With(auth.RequireAdmin).Post("/{id}/trigger", h.handleTriggerSchedule)
		})
	})

	return r
}
