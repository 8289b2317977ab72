// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package archive

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/historiographus/internal/models"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(":memory:", "")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func seedSamples(t *testing.T, a *Archive, endpointID, tag string, start time.Time, step time.Duration, values ...float64) {
	t.Helper()
	samples := make([]models.Sample, len(values))
	for i, v := range values {
		samples[i] = models.Sample{
			EndpointID: endpointID,
			Tag:        tag,
			Timestamp:  start.Add(time.Duration(i) * step),
			Value:      v,
			Quality:    models.QualityGood,
		}
	}
	if err := a.InsertBatch(context.Background(), samples); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
}

func TestArchiveInsertAndQueryRange(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	seedSamples(t, a, "ep-1", "ns=2;s=Temp", start, time.Minute, 1, 2, 3, 4, 5)
	// A different tag must not bleed into the query.
	seedSamples(t, a, "ep-1", "ns=2;s=Pressure", start, time.Minute, 100)

	got, err := a.QueryRange(ctx, "ep-1", "ns=2;s=Temp", start, start.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("QueryRange() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("QueryRange() returned %d samples, want 5", len(got))
	}
	if got[0].Value != 1 || got[4].Value != 5 {
		t.Errorf("samples out of order: first=%v last=%v", got[0].Value, got[4].Value)
	}
	if got[0].Quality != models.QualityGood {
		t.Errorf("quality = %q, want good", got[0].Quality)
	}

	// Window end is exclusive.
	partial, err := a.QueryRange(ctx, "ep-1", "ns=2;s=Temp", start, start.Add(2*time.Minute), 0)
	if err != nil {
		t.Fatalf("QueryRange() error = %v", err)
	}
	if len(partial) != 2 {
		t.Errorf("exclusive-end window returned %d samples, want 2", len(partial))
	}

	// Limit applies.
	limited, err := a.QueryRange(ctx, "ep-1", "ns=2;s=Temp", start, start.Add(time.Hour), 3)
	if err != nil {
		t.Fatalf("QueryRange() error = %v", err)
	}
	if len(limited) != 3 {
		t.Errorf("limited query returned %d samples, want 3", len(limited))
	}
}

func TestArchiveInsertBatchEmpty(t *testing.T) {
	a := newTestArchive(t)
	if err := a.InsertBatch(context.Background(), nil); err != nil {
		t.Errorf("InsertBatch(nil) error = %v", err)
	}
}

func TestArchiveAggregate(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	seedSamples(t, a, "ep-1", "tag", start, time.Minute, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	buckets, err := a.Aggregate(ctx, "ep-1", "tag", start, start.Add(time.Hour), 5*time.Minute)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("Aggregate() returned %d buckets, want 2", len(buckets))
	}
	if !buckets[0].BucketStart.Equal(start) {
		t.Errorf("first bucket start = %v, want %v", buckets[0].BucketStart, start)
	}
	if buckets[0].Avg != 3 || buckets[0].Count != 5 {
		t.Errorf("first bucket avg/count = %v/%d, want 3/5", buckets[0].Avg, buckets[0].Count)
	}
	if buckets[1].Min != 6 || buckets[1].Max != 10 {
		t.Errorf("second bucket min/max = %v/%v, want 6/10", buckets[1].Min, buckets[1].Max)
	}
}

func TestArchiveAggregateExcludesBadQuality(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	samples := []models.Sample{
		{EndpointID: "ep-1", Tag: "tag", Timestamp: start, Value: 10, Quality: models.QualityGood},
		{EndpointID: "ep-1", Tag: "tag", Timestamp: start.Add(time.Minute), Value: 9999, Quality: models.QualityBad},
	}
	if err := a.InsertBatch(ctx, samples); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	buckets, err := a.Aggregate(ctx, "ep-1", "tag", start, start.Add(time.Hour), 5*time.Minute)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(buckets) != 1 || buckets[0].Max != 10 {
		t.Errorf("buckets = %+v, bad-quality sample leaked into aggregate", buckets)
	}
}

func TestArchiveCoverage(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)

	// 5 of the 10 expected one-minute slots are filled.
	seedSamples(t, a, "ep-1", "tag", start, time.Minute, 1, 2, 3, 4, 5)

	cov, err := a.Coverage(ctx, "ep-1", "tag", start, end, time.Minute)
	if err != nil {
		t.Fatalf("Coverage() error = %v", err)
	}
	if cov < 0.45 || cov > 0.55 {
		t.Errorf("Coverage() = %v, want ~0.5", cov)
	}

	// Unknown tag has zero coverage.
	cov, err = a.Coverage(ctx, "ep-1", "unknown", start, end, time.Minute)
	if err != nil {
		t.Fatalf("Coverage() error = %v", err)
	}
	if cov != 0 {
		t.Errorf("Coverage(unknown) = %v, want 0", cov)
	}

	// Degenerate windows report zero without erroring.
	cov, err = a.Coverage(ctx, "ep-1", "tag", end, start, time.Minute)
	if err != nil || cov != 0 {
		t.Errorf("Coverage(inverted) = %v, %v; want 0, nil", cov, err)
	}
}

func TestArchiveLatestTimestamp(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	ts, err := a.LatestTimestamp(ctx, "ep-1", "tag")
	if err != nil {
		t.Fatalf("LatestTimestamp() error = %v", err)
	}
	if !ts.IsZero() {
		t.Errorf("LatestTimestamp() empty archive = %v, want zero", ts)
	}

	seedSamples(t, a, "ep-1", "tag", start, time.Minute, 1, 2, 3)

	ts, err = a.LatestTimestamp(ctx, "ep-1", "tag")
	if err != nil {
		t.Fatalf("LatestTimestamp() error = %v", err)
	}
	want := start.Add(2 * time.Minute)
	if !ts.Equal(want) {
		t.Errorf("LatestTimestamp() = %v, want %v", ts, want)
	}
}

func TestArchivePurgeAndDeleteEndpoint(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	seedSamples(t, a, "ep-1", "tag", start, time.Minute, 1, 2, 3, 4)
	seedSamples(t, a, "ep-2", "tag", start, time.Minute, 1)

	n, err := a.Purge(ctx, start.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Purge() removed %d samples, want 3", n)
	}

	if err := a.DeleteEndpoint(ctx, "ep-1"); err != nil {
		t.Fatalf("DeleteEndpoint() error = %v", err)
	}
	got, err := a.QueryRange(ctx, "ep-1", "tag", start, start.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("QueryRange() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("samples remain after DeleteEndpoint: %d", len(got))
	}
}

func TestArchiveClosed(t *testing.T) {
	a := newTestArchive(t)
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a.InsertBatch(context.Background(), []models.Sample{{}}); err != ErrClosed {
		t.Errorf("InsertBatch() after close error = %v, want ErrClosed", err)
	}
	// Double close is safe.
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
