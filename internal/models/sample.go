// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package models defines the domain types shared across the application:
// historian samples, data-source endpoints, users, reports, and the
// standard API response envelope.
package models

import "time"

// Quality classifies a historian sample, following the OPC UA status
// code severity buckets.
type Quality string

const (
	QualityGood      Quality = "good"
	QualityUncertain Quality = "uncertain"
	QualityBad       Quality = "bad"
)

// Sample is a single time-stamped value read from a historian tag.
type Sample struct {
	EndpointID string    `json:"endpoint_id"`
	Tag        string    `json:"tag"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
	Quality    Quality   `json:"quality"`
}

// TagSeries is an ordered run of samples for one tag, as fetched for a
// report section or a samples query. Samples are ascending by timestamp.
type TagSeries struct {
	EndpointID string   `json:"endpoint_id"`
	Tag        string   `json:"tag"`
	Alias      string   `json:"alias,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	Samples    []Sample `json:"samples"`
}

// Label returns the display name for the series: the alias when
// configured, otherwise the raw tag node ID.
func (s *TagSeries) Label() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Tag
}

// AggregateBucket is one time bucket produced by the archive's
// bucketed aggregation query.
type AggregateBucket struct {
	BucketStart time.Time `json:"bucket_start"`
	Avg         float64   `json:"avg"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Count       int64     `json:"count"`
}

// TagRef names a historian tag on an endpoint, with optional display
// metadata used in charts and report tables.
type TagRef struct {
	NodeID string `json:"node_id" validate:"required"`
	Alias  string `json:"alias,omitempty"`
	Unit   string `json:"unit,omitempty"`
}
