// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package collector polls enabled endpoints for current tag values and
// feeds them into the sample archive. The archive is what keeps report
// generation off the OPC UA servers for already-seen time ranges.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/historiographus/internal/archive"
	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/metrics"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/store"
)

// CurrentReader reads current tag values from an endpoint. Implemented
// by historian.Client.
type CurrentReader interface {
	ReadCurrent(ctx context.Context, ep models.Endpoint, tags []string) ([]models.Sample, error)
}

// Broadcaster pushes freshly collected samples to live subscribers.
// Implemented by the WebSocket hub; nil disables broadcasting.
type Broadcaster interface {
	BroadcastSamples(samples []models.Sample)
}

// tickInterval is the due-check granularity. Endpoint intervals below
// this are effectively rounded up.
const tickInterval = time.Second

// Collector runs the polling loop.
type Collector struct {
	cfg         config.CollectorConfig
	endpoints   *store.EndpointStore
	reader      CurrentReader
	archive     *archive.Archive
	broadcaster Broadcaster

	mu      sync.Mutex
	nextDue map[string]time.Time
}

// New creates a collector. broadcaster may be nil.
func New(cfg config.CollectorConfig, endpoints *store.EndpointStore, reader CurrentReader, arch *archive.Archive, broadcaster Broadcaster) *Collector {
	return &Collector{
		cfg:         cfg,
		endpoints:   endpoints,
		reader:      reader,
		archive:     arch,
		broadcaster: broadcaster,
		nextDue:     make(map[string]time.Time),
	}
}

// Run executes the polling loop until the context is canceled. It is
// shaped for use as a supervised service.
func (c *Collector) Run(ctx context.Context) error {
	logging.Info().Dur("default_interval", c.cfg.DefaultInterval).Msg("Collector started")

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Collector stopped")
			return ctx.Err()
		case now := <-ticker.C:
			c.pollDue(ctx, now)
		}
	}
}

// pollDue polls every enabled endpoint whose interval has elapsed. The
// endpoint list is re-read each cycle so configuration changes take
// effect without a restart.
func (c *Collector) pollDue(ctx context.Context, now time.Time) {
	endpoints, err := c.endpoints.ListEnabled()
	if err != nil {
		logging.Error().Err(err).Msg("Collector failed to list endpoints")
		return
	}

	seen := make(map[string]struct{}, len(endpoints))
	for _, ep := range endpoints {
		seen[ep.ID] = struct{}{}
		if len(ep.Tags) == 0 {
			continue
		}
		if !c.due(ep, now) {
			continue
		}
		c.pollEndpoint(ctx, ep)
	}

	// Drop scheduling state for endpoints that were disabled or deleted.
	c.mu.Lock()
	for id := range c.nextDue {
		if _, ok := seen[id]; !ok {
			delete(c.nextDue, id)
		}
	}
	c.mu.Unlock()
}

// due reports whether the endpoint should be polled now, and if so
// advances its next-due time.
func (c *Collector) due(ep models.Endpoint, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, ok := c.nextDue[ep.ID]
	if ok && now.Before(next) {
		return false
	}
	c.nextDue[ep.ID] = now.Add(ep.Interval(c.cfg.DefaultInterval))
	return true
}

// pollEndpoint reads all configured tags once and archives the result.
func (c *Collector) pollEndpoint(ctx context.Context, ep models.Endpoint) {
	tags := make([]string, len(ep.Tags))
	for i, t := range ep.Tags {
		tags[i] = t.NodeID
	}

	samples, err := c.reader.ReadCurrent(ctx, ep, tags)
	if err != nil {
		metrics.CollectorPollsTotal.WithLabelValues(ep.ID, "error").Inc()
		logging.Warn().Err(err).Str("endpoint_id", ep.ID).Str("endpoint", ep.Name).Msg("Poll failed")
		return
	}
	if len(samples) == 0 {
		metrics.CollectorPollsTotal.WithLabelValues(ep.ID, "empty").Inc()
		return
	}

	if err := c.storeSamples(ctx, samples); err != nil {
		metrics.CollectorPollsTotal.WithLabelValues(ep.ID, "error").Inc()
		logging.Error().Err(err).Str("endpoint_id", ep.ID).Msg("Failed to archive samples")
		return
	}
	metrics.CollectorPollsTotal.WithLabelValues(ep.ID, "success").Inc()

	if c.broadcaster != nil {
		c.broadcaster.BroadcastSamples(samples)
	}
}

// storeSamples writes samples to the archive in configured batch sizes.
func (c *Collector) storeSamples(ctx context.Context, samples []models.Sample) error {
	batch := c.cfg.InsertBatchSize
	if batch <= 0 {
		batch = len(samples)
	}
	for start := 0; start < len(samples); start += batch {
		end := start + batch
		if end > len(samples) {
			end = len(samples)
		}
		if err := c.archive.InsertBatch(ctx, samples[start:end]); err != nil {
			return err
		}
	}
	return nil
}
