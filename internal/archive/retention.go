// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package archive

import (
	"context"
	"time"

	"github.com/tomtom215/historiographus/internal/logging"
)

const retentionSweepInterval = time.Hour

// Retention purges samples older than the configured horizon. With
// retention disabled the loop just idles so the supervisor slot stays
// occupied.
type Retention struct {
	archive       *Archive
	retentionDays int
	interval      time.Duration
}

// NewRetention creates the retention sweeper. retentionDays <= 0
// disables purging.
func NewRetention(archive *Archive, retentionDays int) *Retention {
	return &Retention{
		archive:       archive,
		retentionDays: retentionDays,
		interval:      retentionSweepInterval,
	}
}

// Run sweeps hourly until the context is cancelled.
func (r *Retention) Run(ctx context.Context) error {
	if r.retentionDays <= 0 {
		logging.Info().Msg("Archive retention disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	logging.Info().Int("retention_days", r.retentionDays).Msg("Archive retention started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			r.sweep(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Retention) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -r.retentionDays)
	purged, err := r.archive.Purge(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Time("cutoff", cutoff).Msg("Archive purge failed")
		return
	}
	if purged > 0 {
		logging.Info().Int64("samples", purged).Time("cutoff", cutoff).Msg("Archive purge completed")
	}
}
