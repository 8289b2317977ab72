// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// lockoutAt returns a manager with a frozen clock the test can advance.
func lockoutAt(cfg *LockoutConfig) (*LockoutManager, *time.Time) {
	m := NewLockoutManager(cfg)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestLockoutTriggersAfterMaxAttempts(t *testing.T) {
	m, _ := lockoutAt(&LockoutConfig{
		MaxAttempts:     3,
		LockoutDuration: 10 * time.Minute,
	})

	for i := 0; i < 2; i++ {
		m.RecordFailure("alice", "")
		if locked, _ := m.CheckLocked("alice", ""); locked {
			t.Fatalf("locked after %d attempts", i+1)
		}
	}

	m.RecordFailure("alice", "")
	locked, remaining := m.CheckLocked("alice", "")
	if !locked {
		t.Fatal("not locked after max attempts")
	}
	if remaining != 10*time.Minute {
		t.Errorf("remaining = %v, want 10m", remaining)
	}
}

func TestLockoutExpires(t *testing.T) {
	m, now := lockoutAt(&LockoutConfig{
		MaxAttempts:     1,
		LockoutDuration: 10 * time.Minute,
	})

	m.RecordFailure("alice", "")
	if locked, _ := m.CheckLocked("alice", ""); !locked {
		t.Fatal("not locked")
	}

	*now = now.Add(10*time.Minute + time.Second)
	if locked, _ := m.CheckLocked("alice", ""); locked {
		t.Error("still locked after duration elapsed")
	}
}

func TestLockoutExponentialBackoff(t *testing.T) {
	m, now := lockoutAt(&LockoutConfig{
		MaxAttempts:              1,
		LockoutDuration:          10 * time.Minute,
		EnableExponentialBackoff: true,
		MaxLockoutDuration:       25 * time.Minute,
	})

	wants := []time.Duration{
		10 * time.Minute, // first lockout
		20 * time.Minute, // doubled
		25 * time.Minute, // capped
		25 * time.Minute, // stays capped
	}
	for i, want := range wants {
		m.RecordFailure("alice", "")
		locked, remaining := m.CheckLocked("alice", "")
		if !locked {
			t.Fatalf("lockout %d: not locked", i+1)
		}
		if remaining != want {
			t.Errorf("lockout %d: remaining = %v, want %v", i+1, remaining, want)
		}
		*now = now.Add(want + time.Second)
	}
}

func TestLockoutSuccessClearsFailuresNotBackoff(t *testing.T) {
	m, now := lockoutAt(&LockoutConfig{
		MaxAttempts:              2,
		LockoutDuration:          10 * time.Minute,
		EnableExponentialBackoff: true,
		MaxLockoutDuration:       time.Hour,
	})

	// First lockout.
	m.RecordFailure("alice", "")
	m.RecordFailure("alice", "")
	*now = now.Add(11 * time.Minute)

	// Success resets the attempt counter...
	m.RecordSuccess("alice", "")
	m.RecordFailure("alice", "")
	if locked, _ := m.CheckLocked("alice", ""); locked {
		t.Fatal("locked after single failure following success")
	}

	// ...but the next lockout still doubles.
	m.RecordFailure("alice", "")
	_, remaining := m.CheckLocked("alice", "")
	if remaining != 20*time.Minute {
		t.Errorf("remaining = %v, want 20m (backoff survives success)", remaining)
	}
}

func TestLockoutTracksByIP(t *testing.T) {
	m, _ := lockoutAt(&LockoutConfig{
		MaxAttempts:     2,
		LockoutDuration: 10 * time.Minute,
		TrackByIP:       true,
	})

	// Two different usernames from the same IP lock the IP.
	m.RecordFailure("alice", "10.0.0.9")
	m.RecordFailure("bob", "10.0.0.9")

	if locked, _ := m.CheckLocked("carol", "10.0.0.9"); !locked {
		t.Error("IP not locked after spraying usernames")
	}
	if locked, _ := m.CheckLocked("carol", "10.0.0.10"); locked {
		t.Error("unrelated IP locked")
	}
}

func TestLockoutCleanup(t *testing.T) {
	m, now := lockoutAt(DefaultLockoutConfig())

	m.RecordFailure("alice", "")
	m.RecordFailure("bob", "")
	if removed := m.Cleanup(time.Hour); removed != 0 {
		t.Errorf("Cleanup() removed %d fresh entries", removed)
	}

	*now = now.Add(2 * time.Hour)
	if removed := m.Cleanup(time.Hour); removed != 2 {
		t.Errorf("Cleanup() = %d, want 2", removed)
	}
}

func TestLockoutRunSweepsIdleEntries(t *testing.T) {
	m, now := lockoutAt(&LockoutConfig{
		MaxAttempts:     5,
		LockoutDuration: 10 * time.Minute,
		CleanupInterval: 5 * time.Millisecond,
		IdleExpiry:      time.Hour,
	})

	m.RecordFailure("alice", "")
	m.RecordFailure("bob", "")
	*now = now.Add(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		m.mu.Lock()
		remaining := len(m.entries)
		m.mu.Unlock()
		if remaining == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("janitor left %d idle entries", remaining)
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
