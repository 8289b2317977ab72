// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package stats computes the statistical summaries that appear in
// report tables: descriptive statistics, percentiles, data quality
// ratios, and a least-squares trend over a sample window.
package stats

import (
	"errors"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tomtom215/historiographus/internal/models"
)

// ErrNotEnoughSamples is returned when a computation needs more data
// than the window contains.
var ErrNotEnoughSamples = errors.New("not enough samples")

// Summary holds the descriptive statistics for one tag over a window.
// Quality-bad samples are excluded from the numeric statistics but
// counted toward GoodRatio.
type Summary struct {
	Count     int       `json:"count"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"std_dev"`
	P5        float64   `json:"p5"`
	P50       float64   `json:"p50"`
	P95       float64   `json:"p95"`
	First     float64   `json:"first"`
	Last      float64   `json:"last"`
	FirstAt   time.Time `json:"first_at"`
	LastAt    time.Time `json:"last_at"`
	GoodRatio float64   `json:"good_ratio"`
}

// Summarize computes a Summary over the samples. Samples need not be
// sorted. Returns ErrNotEnoughSamples when no good-quality samples
// remain after filtering.
func Summarize(samples []models.Sample) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrNotEnoughSamples
	}

	good := make([]models.Sample, 0, len(samples))
	for _, s := range samples {
		if s.Quality != models.QualityBad {
			good = append(good, s)
		}
	}
	if len(good) == 0 {
		return Summary{}, ErrNotEnoughSamples
	}

	sort.Slice(good, func(i, j int) bool { return good[i].Timestamp.Before(good[j].Timestamp) })

	values := make([]float64, len(good))
	for i, s := range good {
		values[i] = s.Value
	}

	// Percentile estimation requires sorted values; keep the
	// time-ordered copy for first/last.
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}

	return Summary{
		Count:     len(good),
		Min:       floats.Min(sorted),
		Max:       floats.Max(sorted),
		Mean:      mean,
		StdDev:    std,
		P5:        stat.Quantile(0.05, stat.Empirical, sorted, nil),
		P50:       stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P95:       stat.Quantile(0.95, stat.Empirical, sorted, nil),
		First:     good[0].Value,
		Last:      good[len(good)-1].Value,
		FirstAt:   good[0].Timestamp,
		LastAt:    good[len(good)-1].Timestamp,
		GoodRatio: float64(len(good)) / float64(len(samples)),
	}, nil
}

// Trend is the ordinary least-squares fit of value against time.
// SlopePerHour is the fitted change per hour; RSquared is the fraction
// of variance the fit explains.
type Trend struct {
	SlopePerHour float64 `json:"slope_per_hour"`
	Intercept    float64 `json:"intercept"`
	RSquared     float64 `json:"r_squared"`
}

// FitTrend fits a line through the good-quality samples. At least two
// samples with distinct timestamps are required.
func FitTrend(samples []models.Sample) (Trend, error) {
	xs := make([]float64, 0, len(samples))
	ys := make([]float64, 0, len(samples))

	var origin time.Time
	for _, s := range samples {
		if s.Quality == models.QualityBad {
			continue
		}
		if origin.IsZero() {
			origin = s.Timestamp
		}
		xs = append(xs, s.Timestamp.Sub(origin).Hours())
		ys = append(ys, s.Value)
	}
	if len(xs) < 2 {
		return Trend{}, ErrNotEnoughSamples
	}

	distinct := false
	for _, x := range xs[1:] {
		if x != xs[0] {
			distinct = true
			break
		}
	}
	if !distinct {
		return Trend{}, ErrNotEnoughSamples
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, intercept, slope)

	return Trend{SlopePerHour: slope, Intercept: intercept, RSquared: r2}, nil
}

// Resample buckets samples into fixed windows of the given width,
// producing per-bucket average, minimum, maximum, and count. Buckets
// with no good-quality samples are omitted. Bucket starts are aligned
// to the epoch.
func Resample(samples []models.Sample, bucket time.Duration) ([]models.AggregateBucket, error) {
	if bucket <= 0 {
		return nil, errors.New("bucket width must be positive")
	}
	if len(samples) == 0 {
		return nil, nil
	}

	type acc struct {
		sum, min, max float64
		count         int
	}
	buckets := make(map[int64]*acc)

	for _, s := range samples {
		if s.Quality == models.QualityBad {
			continue
		}
		start := s.Timestamp.Truncate(bucket).Unix()
		a, ok := buckets[start]
		if !ok {
			buckets[start] = &acc{sum: s.Value, min: s.Value, max: s.Value, count: 1}
			continue
		}
		a.sum += s.Value
		a.count++
		if s.Value < a.min {
			a.min = s.Value
		}
		if s.Value > a.max {
			a.max = s.Value
		}
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]models.AggregateBucket, 0, len(keys))
	for _, k := range keys {
		a := buckets[k]
		out = append(out, models.AggregateBucket{
			BucketStart: time.Unix(k, 0).UTC(),
			Avg:         a.sum / float64(a.count),
			Min:         a.min,
			Max:         a.max,
			Count:       int64(a.count),
		})
	}
	return out, nil
}
