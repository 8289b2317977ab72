// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package services adapts the application's long-running components to
// the suture.Service interface. Each wrapper depends on a small
// interface rather than the concrete component, which keeps the
// supervisor layer import-free of the domain packages.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Runner matches components whose Run method blocks until the context
// is cancelled. Satisfied by collector.Collector and
// scheduler.Scheduler.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerService supervises any context-driven run loop under a stable
// name.
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService wraps a run loop as a supervised service.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.Run(ctx)
}

// String implements fmt.Stringer for supervisor event logs.
func (s *RunnerService) String() string {
	return s.name
}

// ContextHub matches *websocket.Hub's run method.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService supervises the websocket hub.
type HubService struct {
	hub ContextHub
}

// NewHubService wraps the websocket hub as a supervised service.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer.
func (s *HubService) String() string {
	return "websocket-hub"
}

// HTTPServer matches *http.Server's lifecycle methods.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService bridges http.Server's blocking ListenAndServe to
// suture's context-driven Serve, with graceful shutdown on
// cancellation.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps an HTTP server as a supervised service.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is the normal
// shutdown signal and is not treated as a failure.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// The run context is already cancelled, so shutdown gets its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer.
func (s *HTTPService) String() string {
	return "http-server"
}
