// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package report implements the generation pipeline: fetch time series
// for each section (archive first, live historian read as fallback),
// compute statistics, render charts, and assemble the result into a PDF
// or DOCX document tracked by the on-disk registry.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/historiographus/internal/archive"
	"github.com/tomtom215/historiographus/internal/chart"
	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/metrics"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/stats"
	"github.com/tomtom215/historiographus/internal/store"
)

// Generation errors.
var (
	ErrInvalidWindow     = errors.New("report window end must be after start")
	ErrUnsupportedFormat = errors.New("unsupported report format")
	ErrNoSectionData     = errors.New("no section produced any data")
)

// HistoryReader reads raw history from a historian endpoint. Satisfied
// by historian.Client.
type HistoryReader interface {
	ReadHistory(ctx context.Context, ep models.Endpoint, tag string, start, end time.Time, maxSamples int) ([]models.Sample, error)
}

// Notifier receives completion events for connected UI clients.
// Satisfied by websocket.Hub; nil disables notifications.
type Notifier interface {
	BroadcastReportCompleted(record models.ReportRecord, duration time.Duration)
}

// Generator runs the report pipeline.
type Generator struct {
	cfg             config.ReportConfig
	defaultInterval time.Duration
	endpoints       *store.EndpointStore
	archive         *archive.Archive
	reader          HistoryReader
	registry        *Registry
	notifier        Notifier
}

// NewGenerator wires the pipeline. defaultInterval is the collector's
// default sampling interval, used to judge archive coverage.
func NewGenerator(cfg config.ReportConfig, defaultInterval time.Duration, endpoints *store.EndpointStore, arc *archive.Archive, reader HistoryReader, registry *Registry, notifier Notifier) *Generator {
	return &Generator{
		cfg:             cfg,
		defaultInterval: defaultInterval,
		endpoints:       endpoints,
		archive:         arc,
		reader:          reader,
		registry:        registry,
		notifier:        notifier,
	}
}

// document is the intermediate form handed to the PDF and DOCX writers.
type document struct {
	Spec        models.ReportSpec
	GeneratedAt time.Time
	GeneratedBy string
	Sections    []renderedSection
}

// renderedSection holds one section's chart and statistics. Notes carry
// per-tag problems (no data, fetch failures) that the document surfaces
// instead of failing the whole report.
type renderedSection struct {
	Title    string
	ChartPNG []byte
	Stats    []tagStats
	Notes    []string
}

type tagStats struct {
	Label   string
	Unit    string
	Summary stats.Summary
	Trend   *stats.Trend
}

// Generate runs the full pipeline for one spec and registers the
// resulting document. Sections with failing tags degrade to notes; the
// report only fails when no section yields any data at all.
func (g *Generator) Generate(ctx context.Context, spec models.ReportSpec, generatedBy string) (models.ReportRecord, error) {
	started := time.Now()
	record, err := g.generate(ctx, spec, generatedBy)
	duration := time.Since(started)

	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.RecordReportGeneration(spec.Format, result, duration)

	if err != nil {
		logging.Error().Err(err).Str("title", spec.Title).Str("format", spec.Format).
			Dur("duration", duration).Msg("Report generation failed")
		return models.ReportRecord{}, err
	}

	logging.Info().Str("report_id", record.ID).Str("title", record.Title).
		Str("format", record.Format).Int64("size_bytes", record.SizeBytes).
		Dur("duration", duration).Msg("Report generated")

	if g.notifier != nil {
		g.notifier.BroadcastReportCompleted(record, duration)
	}
	return record, nil
}

func (g *Generator) generate(ctx context.Context, spec models.ReportSpec, generatedBy string) (models.ReportRecord, error) {
	if !spec.End.After(spec.Start) {
		return models.ReportRecord{}, ErrInvalidWindow
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.GenerationTimeout)
	defer cancel()

	doc := document{
		Spec:        spec,
		GeneratedAt: time.Now().UTC(),
		GeneratedBy: generatedBy,
	}

	anyData := false
	for i, section := range spec.Sections {
		rendered, hasData := g.buildSection(ctx, spec, section, i)
		anyData = anyData || hasData
		doc.Sections = append(doc.Sections, rendered)

		if err := ctx.Err(); err != nil {
			return models.ReportRecord{}, fmt.Errorf("report generation timed out: %w", err)
		}
	}
	if !anyData {
		return models.ReportRecord{}, ErrNoSectionData
	}

	var (
		data []byte
		err  error
	)
	switch spec.Format {
	case models.FormatPDF:
		data, err = renderPDF(doc)
	case models.FormatDOCX:
		data, err = renderDOCX(doc)
	default:
		return models.ReportRecord{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, spec.Format)
	}
	if err != nil {
		return models.ReportRecord{}, fmt.Errorf("failed to assemble %s document: %w", spec.Format, err)
	}

	return g.registry.Save(spec, data, generatedBy)
}

// buildSection fetches, summarizes, and charts one section. The second
// return reports whether any tag produced samples.
func (g *Generator) buildSection(ctx context.Context, spec models.ReportSpec, section models.ReportSection, index int) (renderedSection, bool) {
	rendered := renderedSection{Title: section.Title}
	if rendered.Title == "" {
		rendered.Title = fmt.Sprintf("Section %d", index+1)
	}

	ep, err := g.endpoints.GetWithCredentials(section.EndpointID)
	if err != nil {
		rendered.Notes = append(rendered.Notes, fmt.Sprintf("endpoint %s: %v", section.EndpointID, err))
		return rendered, false
	}

	var series []models.TagSeries
	for _, tag := range section.Tags {
		samples, err := g.fetchTagSamples(ctx, ep, tag, spec.Start, spec.End)
		if err != nil {
			rendered.Notes = append(rendered.Notes, fmt.Sprintf("%s: %v", tag, err))
			continue
		}
		if len(samples) == 0 {
			rendered.Notes = append(rendered.Notes, fmt.Sprintf("%s: no samples in window", tag))
			continue
		}

		ts := models.TagSeries{EndpointID: ep.ID, Tag: tag, Samples: samples}
		if ref, ok := ep.TagRefByNodeID(tag); ok {
			ts.Alias = ref.Alias
			ts.Unit = ref.Unit
		}
		series = append(series, ts)

		if section.IncludeStats {
			st := tagStats{Label: ts.Label(), Unit: ts.Unit}
			if summary, err := stats.Summarize(samples); err == nil {
				st.Summary = summary
			} else {
				rendered.Notes = append(rendered.Notes, fmt.Sprintf("%s: %v", ts.Label(), err))
				continue
			}
			if trend, err := stats.FitTrend(samples); err == nil {
				st.Trend = &trend
			}
			rendered.Stats = append(rendered.Stats, st)
		}
	}

	if section.IncludeChart && len(series) > 0 {
		chartSeries := series
		if section.BucketSeconds > 0 {
			chartSeries = resampleSeries(series, time.Duration(section.BucketSeconds)*time.Second)
		}

		unit := ""
		if len(chartSeries) == 1 {
			unit = chartSeries[0].Unit
		}
		png, err := chart.RenderPNG(chartSeries, chart.Options{
			Title:      rendered.Title,
			YAxisLabel: unit,
			ShowTrend:  len(chartSeries) == 1,
			ShowMinMax: true,
		})
		if err != nil {
			rendered.Notes = append(rendered.Notes, fmt.Sprintf("chart: %v", err))
		} else {
			rendered.ChartPNG = png
		}
	}

	return rendered, len(series) > 0
}

// fetchTagSamples prefers the local archive when its coverage of the
// window meets the configured threshold; otherwise it reads live
// history and backfills the archive. A failed live read degrades to
// whatever the archive holds.
func (g *Generator) fetchTagSamples(ctx context.Context, ep models.Endpoint, tag string, start, end time.Time) ([]models.Sample, error) {
	interval := ep.Interval(g.defaultInterval)

	coverage, err := g.archive.Coverage(ctx, ep.ID, tag, start, end, interval)
	if err != nil {
		logging.Warn().Err(err).Str("endpoint_id", ep.ID).Str("tag", tag).
			Msg("Archive coverage check failed, forcing live read")
		coverage = 0
	}

	if coverage >= g.cfg.ArchiveCoverageMin {
		return g.archive.QueryRange(ctx, ep.ID, tag, start, end, g.cfg.MaxSectionSamples)
	}

	samples, readErr := g.reader.ReadHistory(ctx, ep, tag, start, end, g.cfg.MaxSectionSamples)
	if readErr != nil {
		logging.Warn().Err(readErr).Str("endpoint_id", ep.ID).Str("tag", tag).
			Float64("coverage", coverage).Msg("Live history read failed, falling back to archive")
		archived, qErr := g.archive.QueryRange(ctx, ep.ID, tag, start, end, g.cfg.MaxSectionSamples)
		if qErr != nil || len(archived) == 0 {
			return nil, fmt.Errorf("history read failed: %w", readErr)
		}
		return archived, nil
	}

	// Backfill so the next report over this window stays local.
	if len(samples) > 0 {
		if err := g.archive.InsertBatch(ctx, samples); err != nil {
			logging.Warn().Err(err).Str("endpoint_id", ep.ID).Str("tag", tag).
				Msg("Archive backfill failed")
		}
	}
	return samples, nil
}

// resampleSeries reduces each series to per-bucket averages for
// charting. Series that cannot be resampled are kept raw.
func resampleSeries(series []models.TagSeries, bucket time.Duration) []models.TagSeries {
	out := make([]models.TagSeries, 0, len(series))
	for _, ts := range series {
		buckets, err := stats.Resample(ts.Samples, bucket)
		if err != nil || len(buckets) == 0 {
			out = append(out, ts)
			continue
		}
		resampled := ts
		resampled.Samples = make([]models.Sample, len(buckets))
		for i, b := range buckets {
			resampled.Samples[i] = models.Sample{
				EndpointID: ts.EndpointID,
				Tag:        ts.Tag,
				Timestamp:  b.BucketStart,
				Value:      b.Avg,
				Quality:    models.QualityGood,
			}
		}
		out = append(out, resampled)
	}
	return out
}
