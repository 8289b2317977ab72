// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/historiographus/internal/logging"
)

// LockoutConfig holds configuration for the login lockout system.
type LockoutConfig struct {
	// MaxAttempts is the number of failed attempts before lockout.
	MaxAttempts int

	// LockoutDuration is the base lockout period.
	LockoutDuration time.Duration

	// EnableExponentialBackoff doubles the lockout period on each
	// subsequent lockout.
	EnableExponentialBackoff bool

	// MaxLockoutDuration caps the lockout period under backoff.
	MaxLockoutDuration time.Duration

	// TrackByIP also tracks failed attempts per source IP, which blunts
	// username-spraying from a single host.
	TrackByIP bool

	// CleanupInterval is the janitor sweep cadence.
	CleanupInterval time.Duration

	// IdleExpiry drops unlocked entries that have been idle this long.
	IdleExpiry time.Duration
}

// DefaultLockoutConfig returns sensible defaults.
func DefaultLockoutConfig() *LockoutConfig {
	return &LockoutConfig{
		MaxAttempts:              5,
		LockoutDuration:          15 * time.Minute,
		EnableExponentialBackoff: true,
		MaxLockoutDuration:       24 * time.Hour,
		TrackByIP:                true,
		CleanupInterval:          10 * time.Minute,
		IdleExpiry:               time.Hour,
	}
}

// lockoutEntry tracks failed attempts for one subject (username or IP).
type lockoutEntry struct {
	failedAttempts int
	lockoutCount   int
	lockedUntil    time.Time
	lastAttempt    time.Time
}

// LockoutManager tracks failed logins in memory. State resets on
// restart, which is acceptable: the window it protects is minutes, not
// days.
type LockoutManager struct {
	cfg *LockoutConfig

	mu      sync.Mutex
	entries map[string]*lockoutEntry
	now     func() time.Time
}

// NewLockoutManager creates a lockout manager.
func NewLockoutManager(cfg *LockoutConfig) *LockoutManager {
	if cfg == nil {
		cfg = DefaultLockoutConfig()
	}
	return &LockoutManager{
		cfg:     cfg,
		entries: make(map[string]*lockoutEntry),
		now:     time.Now,
	}
}

// subjects returns the tracking keys for an attempt.
func (m *LockoutManager) subjects(username, ip string) []string {
	subjects := []string{"user:" + username}
	if m.cfg.TrackByIP && ip != "" {
		subjects = append(subjects, "ip:"+ip)
	}
	return subjects
}

// CheckLocked reports whether the username or source IP is currently
// locked out, and for how much longer.
func (m *LockoutManager) CheckLocked(username, ip string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var remaining time.Duration
	for _, subject := range m.subjects(username, ip) {
		entry, ok := m.entries[subject]
		if !ok {
			continue
		}
		if now.Before(entry.lockedUntil) {
			if d := entry.lockedUntil.Sub(now); d > remaining {
				remaining = d
			}
		}
	}
	return remaining > 0, remaining
}

// RecordFailure registers a failed login. When the failure count
// reaches MaxAttempts, the subject is locked out; repeated lockouts
// double the duration up to the configured cap.
func (m *LockoutManager) RecordFailure(username, ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, subject := range m.subjects(username, ip) {
		entry, ok := m.entries[subject]
		if !ok {
			entry = &lockoutEntry{}
			m.entries[subject] = entry
		}
		entry.failedAttempts++
		entry.lastAttempt = now

		if entry.failedAttempts < m.cfg.MaxAttempts {
			continue
		}

		duration := m.cfg.LockoutDuration
		if m.cfg.EnableExponentialBackoff {
			for i := 0; i < entry.lockoutCount; i++ {
				duration *= 2
				if duration >= m.cfg.MaxLockoutDuration {
					duration = m.cfg.MaxLockoutDuration
					break
				}
			}
		}

		entry.lockoutCount++
		entry.lockedUntil = now.Add(duration)
		entry.failedAttempts = 0

		logging.Warn().
			Str("subject", subject).
			Dur("duration", duration).
			Int("lockout_count", entry.lockoutCount).
			Msg("Login lockout triggered")
	}
}

// RecordSuccess clears the failure count for the username and IP. The
// lockout count survives so a successful guess between lockouts does
// not reset the backoff.
func (m *LockoutManager) RecordSuccess(username, ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, subject := range m.subjects(username, ip) {
		if entry, ok := m.entries[subject]; ok {
			entry.failedAttempts = 0
		}
	}
}

// Cleanup drops entries that are unlocked and idle. Run periodically to
// bound memory under spray attacks.
func (m *LockoutManager) Cleanup(idleFor time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for subject, entry := range m.entries {
		if now.Before(entry.lockedUntil) {
			continue
		}
		if now.Sub(entry.lastAttempt) > idleFor {
			delete(m.entries, subject)
			removed++
		}
	}
	return removed
}

// Run sweeps idle entries on the configured cadence until the context
// is cancelled, bounding memory under a username or IP spray. Shaped
// for use as a supervised service.
func (m *LockoutManager) Run(ctx context.Context) error {
	interval := m.cfg.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	idleFor := m.cfg.IdleExpiry
	if idleFor <= 0 {
		idleFor = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := m.Cleanup(idleFor); removed > 0 {
				logging.Info().Int("count", removed).Msg("Cleaned up idle lockout entries")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer for debug logging without exposing
// entry details.
func (m *LockoutManager) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("LockoutManager(%d tracked subjects)", len(m.entries))
}
