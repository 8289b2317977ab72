// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context) error {
	close(r.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestRunnerService(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{})}
	svc := NewRunnerService("collector", runner)

	if svc.String() != "collector" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("runner not started")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

// fakeHTTPServer simulates ListenAndServe/Shutdown sequencing.
type fakeHTTPServer struct {
	listenErr error
	closed    chan struct{}
	shutdowns int
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{closed: make(chan struct{})}
}

func (s *fakeHTTPServer) ListenAndServe() error {
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.closed
	return http.ErrServerClosed
}

func (s *fakeHTTPServer) Shutdown(context.Context) error {
	s.shutdowns++
	close(s.closed)
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := newFakeHTTPServer()
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	// Let ListenAndServe start.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	if server.shutdowns != 1 {
		t.Errorf("Shutdown called %d times, want 1", server.shutdowns)
	}
}

func TestHTTPServiceListenFailure(t *testing.T) {
	server := newFakeHTTPServer()
	server.listenErr = errors.New("address already in use")
	svc := NewHTTPService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve() error = %v, want listen failure", err)
	}
}
