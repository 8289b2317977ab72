// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

// Package chart renders time-series line charts as PNG images for
// embedding in generated reports.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/stats"
)

const (
	// DefaultWidth and DefaultHeight fit the printable area of an A4
	// portrait page at the report's image scale.
	DefaultWidth  = 900
	DefaultHeight = 360

	// MaxSeries bounds the series per chart; more become unreadable.
	MaxSeries = 6
)

var (
	ErrNoSeries         = errors.New("no series to render")
	ErrTooManySeries    = errors.New("too many series for one chart")
	ErrNoRenderableData = errors.New("no renderable data points")
)

// seriesPalette is applied to series in order.
var seriesPalette = []drawing.Color{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 255},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 255},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 255},
	{R: 0xd6, G: 0x27, B: 0x28, A: 255},
	{R: 0x94, G: 0x67, B: 0xbd, A: 255},
	{R: 0x8c, G: 0x56, B: 0x4b, A: 255},
}

// Options controls a single chart rendering.
type Options struct {
	Title  string
	Width  int
	Height int

	// YAxisLabel annotates the value axis, typically the unit.
	YAxisLabel string

	// ShowTrend overlays a dashed least-squares trend line when the
	// chart holds exactly one series.
	ShowTrend bool

	// ShowMinMax labels the lowest and highest good-quality points
	// across all plotted series.
	ShowMinMax bool
}

func (o *Options) applyDefaults() {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
}

// RenderPNG renders the series as a line chart and returns PNG bytes.
// Bad-quality samples are skipped. Series with fewer than two good
// samples are dropped; if none survive, ErrNoRenderableData is returned.
func RenderPNG(series []models.TagSeries, opts Options) ([]byte, error) {
	if len(series) == 0 {
		return nil, ErrNoSeries
	}
	if len(series) > MaxSeries {
		return nil, fmt.Errorf("%w: got %d, max %d", ErrTooManySeries, len(series), MaxSeries)
	}
	opts.applyDefaults()

	var chartSeries []gochart.Series
	for i, ts := range series {
		xs, ys := seriesPoints(ts.Samples)
		if len(xs) < 2 {
			continue
		}
		color := seriesPalette[i%len(seriesPalette)]
		chartSeries = append(chartSeries, gochart.TimeSeries{
			Name:    ts.Label(),
			XValues: xs,
			YValues: ys,
			Style: gochart.Style{
				StrokeColor: color,
				StrokeWidth: 1.5,
			},
		})
	}
	if len(chartSeries) == 0 {
		return nil, ErrNoRenderableData
	}

	if opts.ShowTrend && len(series) == 1 {
		if trendSeries := buildTrendSeries(series[0].Samples); trendSeries != nil {
			chartSeries = append(chartSeries, trendSeries)
		}
	}

	if opts.ShowMinMax {
		if ann := buildMinMaxSeries(series); ann != nil {
			chartSeries = append(chartSeries, ann)
		}
	}

	graph := gochart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeValueFormatterWithFormat("01-02 15:04"),
		},
		YAxis: gochart.YAxis{
			Name: opts.YAxisLabel,
		},
		Series: chartSeries,
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// seriesPoints extracts plottable points, skipping bad-quality samples.
func seriesPoints(samples []models.Sample) ([]time.Time, []float64) {
	xs := make([]time.Time, 0, len(samples))
	ys := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Quality == models.QualityBad {
			continue
		}
		xs = append(xs, s.Timestamp)
		ys = append(ys, s.Value)
	}
	return xs, ys
}

// buildMinMaxSeries locates the extreme good-quality points across all
// series and returns an annotation series labelling them, or nil when
// nothing is plottable.
func buildMinMaxSeries(series []models.TagSeries) gochart.Series {
	var (
		found      bool
		minX, maxX time.Time
		minV, maxV float64
	)
	for _, ts := range series {
		xs, ys := seriesPoints(ts.Samples)
		for i, y := range ys {
			if !found || y < minV {
				minV, minX = y, xs[i]
			}
			if !found || y > maxV {
				maxV, maxX = y, xs[i]
			}
			found = true
		}
	}
	if !found {
		return nil
	}

	gray := drawing.Color{R: 0x66, G: 0x66, B: 0x66, A: 255}
	return gochart.AnnotationSeries{
		Annotations: []gochart.Value2{
			{XValue: gochart.TimeToFloat64(minX), YValue: minV, Label: fmt.Sprintf("min %.4g", minV)},
			{XValue: gochart.TimeToFloat64(maxX), YValue: maxV, Label: fmt.Sprintf("max %.4g", maxV)},
		},
		Style: gochart.Style{
			StrokeColor: gray,
			FontColor:   gray,
		},
	}
}

// buildTrendSeries fits a trend line and returns a dashed two-point
// series spanning the sample window, or nil when no fit is possible.
func buildTrendSeries(samples []models.Sample) gochart.Series {
	trend, err := stats.FitTrend(samples)
	if err != nil {
		return nil
	}

	xs, _ := seriesPoints(samples)
	if len(xs) < 2 {
		return nil
	}
	first, last := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x.Before(first) {
			first = x
		}
		if x.After(last) {
			last = x
		}
	}

	span := last.Sub(first).Hours()
	return gochart.TimeSeries{
		Name:    "trend",
		XValues: []time.Time{first, last},
		YValues: []float64{trend.Intercept, trend.Intercept + trend.SlopePerHour*span},
		Style: gochart.Style{
			StrokeColor:     drawing.Color{R: 0x66, G: 0x66, B: 0x66, A: 255},
			StrokeWidth:     1.0,
			StrokeDashArray: []float64{4.0, 4.0},
		},
	}
}
