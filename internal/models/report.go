// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package models

import "time"

// Report output formats.
const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"
)

// ReportSection describes one section of a report: a set of tags on one
// endpoint over the report's time range, rendered as a chart and/or a
// statistics table.
type ReportSection struct {
	Title      string   `json:"title,omitempty"`
	EndpointID string   `json:"endpoint_id" validate:"required"`
	Tags       []string `json:"tags" validate:"required,min=1,max=6"`

	// BucketSeconds resamples the series before charting. Zero keeps
	// raw resolution.
	BucketSeconds int `json:"bucket_seconds" validate:"min=0,max=604800"`

	IncludeChart bool `json:"include_chart"`
	IncludeStats bool `json:"include_stats"`
}

// ReportSpec is the full description of a report to generate.
type ReportSpec struct {
	Title    string          `json:"title" validate:"required,min=1,max=200"`
	Format   string          `json:"format" validate:"required,oneof=pdf docx"`
	Start    time.Time       `json:"start" validate:"required"`
	End      time.Time       `json:"end" validate:"required"`
	Sections []ReportSection `json:"sections" validate:"required,min=1,max=20,dive"`
}

// Window returns the report time range duration.
func (s *ReportSpec) Window() time.Duration {
	return s.End.Sub(s.Start)
}

// ReportRecord is the registry entry for a generated document.
type ReportRecord struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Format      string     `json:"format"`
	Filename    string     `json:"filename"`
	SizeBytes   int64      `json:"size_bytes"`
	GeneratedAt time.Time  `json:"generated_at"`
	GeneratedBy string     `json:"generated_by,omitempty"`
	Spec        ReportSpec `json:"spec"`
}

// Schedule run statuses.
const (
	ScheduleStatusOK      = "ok"
	ScheduleStatusFailed  = "failed"
	ScheduleStatusRunning = "running"
)

// Schedule is a cron-driven report generation job.
//
// RangeSeconds defines the rolling window: each run reports on
// [now-RangeSeconds, now].
type Schedule struct {
	ID      string `json:"id"`
	Name    string `json:"name" validate:"required,min=1,max=128"`
	Cron    string `json:"cron" validate:"required"`
	Enabled bool   `json:"enabled"`

	Format       string          `json:"format" validate:"required,oneof=pdf docx"`
	RangeSeconds int             `json:"range_seconds" validate:"required,min=60,max=31536000"`
	Sections     []ReportSection `json:"sections" validate:"required,min=1,max=20,dive"`

	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SpecAt materializes the schedule into a concrete report spec for a
// run at the given time.
func (s *Schedule) SpecAt(now time.Time) ReportSpec {
	return ReportSpec{
		Title:    s.Name,
		Format:   s.Format,
		Start:    now.Add(-time.Duration(s.RangeSeconds) * time.Second),
		End:      now,
		Sections: s.Sections,
	}
}
