// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package metrics defines the Prometheus instrumentation for the
// application: archive queries, API requests, historian reads and
// circuit breaker state, report generation, scheduler runs, and
// WebSocket connections.
//
// All collectors are registered with the default registry via promauto
// at package initialization and exposed on /metrics.
package metrics
