// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package supervisor builds the suture supervision tree that keeps the
// long-running services alive: the sampling collector, the report
// scheduler, the websocket hub, and the HTTP server.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/historiographus/internal/logging"
)

// TreeConfig holds supervisor tree configuration. Zero values fall
// back to suture's defaults.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig matches suture's built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the application supervision hierarchy, organized in three
// layers for failure isolation:
//
//   - data: sampling collector and archive maintenance
//   - reporting: websocket hub and report scheduler
//   - api: HTTP server
//
// A crashing collector restarts without taking down the API, and vice
// versa.
type Tree struct {
	root      *suture.Supervisor
	data      *suture.Supervisor
	reporting *suture.Supervisor
	api       *suture.Supervisor
	config    TreeConfig
}

// NewTree creates the supervision tree. Events are logged through the
// zerolog-backed slog adapter.
func NewTree(config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}

	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("historiographus", rootSpec)
	data := suture.New("data-layer", childSpec)
	reporting := suture.New("reporting-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(data)
	root.Add(reporting)
	root.Add(api)

	return &Tree{
		root:      root,
		data:      data,
		reporting: reporting,
		api:       api,
		config:    config,
	}
}

// AddDataService adds a service to the data layer (collector, archive
// retention).
func (t *Tree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.data.Add(svc)
}

// AddReportingService adds a service to the reporting layer (websocket
// hub, scheduler).
func (t *Tree) AddReportingService(svc suture.Service) suture.ServiceToken {
	return t.reporting.Add(svc)
}

// AddAPIService adds a service to the API layer (HTTP server).
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until the context is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree on a background goroutine and returns
// the channel that yields the terminal error.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that ignored shutdown within
// the configured timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
