// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package report

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/historiographus/internal/archive"
	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/store"
)

// fakeReader serves canned history and counts invocations.
type fakeReader struct {
	samples []models.Sample
	err     error
	calls   int
}

func (f *fakeReader) ReadHistory(_ context.Context, ep models.Endpoint, tag string, start, end time.Time, _ int) ([]models.Sample, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Sample, len(f.samples))
	for i, s := range f.samples {
		s.EndpointID = ep.ID
		s.Tag = tag
		out[i] = s
	}
	return out, nil
}

type pipelineFixture struct {
	gen      *Generator
	registry *Registry
	archive  *archive.Archive
	reader   *fakeReader
	endpoint models.Endpoint
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	enc, err := config.NewCredentialEncryptor("test-secret-with-at-least-32-characters!")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error = %v", err)
	}
	endpoints, err := store.NewEndpointStore(filepath.Join(t.TempDir(), "endpoints.json"), enc)
	if err != nil {
		t.Fatalf("NewEndpointStore() error = %v", err)
	}
	ep, err := endpoints.Create(models.Endpoint{
		Name:    "boiler",
		URL:     "opc.tcp://historian:4840",
		Enabled: true,
		Tags: []models.TagRef{
			{NodeID: "ns=2;s=Temp", Alias: "Boiler Temp", Unit: "C"},
		},
	})
	if err != nil {
		t.Fatalf("Create endpoint: %v", err)
	}

	arc, err := archive.Open(":memory:", "")
	if err != nil {
		t.Fatalf("archive.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = arc.Close() })

	registry, err := NewRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	reader := &fakeReader{}
	cfg := config.ReportConfig{
		GenerationTimeout:  30 * time.Second,
		ArchiveCoverageMin: 0.5,
		MaxSectionSamples:  100000,
	}
	return &pipelineFixture{
		gen:      NewGenerator(cfg, 10*time.Second, endpoints, arc, reader, registry, nil),
		registry: registry,
		archive:  arc,
		reader:   reader,
		endpoint: ep,
	}
}

func hourlyWindow() (time.Time, time.Time) {
	start := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	return start, start.Add(time.Hour)
}

// samplesEvery builds a sample per interval across the window.
func samplesEvery(endpointID, tag string, start, end time.Time, interval time.Duration) []models.Sample {
	var out []models.Sample
	v := 20.0
	for ts := start; ts.Before(end); ts = ts.Add(interval) {
		out = append(out, models.Sample{
			EndpointID: endpointID,
			Tag:        tag,
			Timestamp:  ts,
			Value:      v,
			Quality:    models.QualityGood,
		})
		v += 0.01
	}
	return out
}

func (f *pipelineFixture) spec(format string) models.ReportSpec {
	start, end := hourlyWindow()
	return models.ReportSpec{
		Title:  "Boiler Hourly",
		Format: format,
		Start:  start,
		End:    end,
		Sections: []models.ReportSection{
			{
				Title:        "Boiler Temperature",
				EndpointID:   f.endpoint.ID,
				Tags:         []string{"ns=2;s=Temp"},
				IncludeChart: true,
				IncludeStats: true,
			},
		},
	}
}

func TestGenerateFromArchive(t *testing.T) {
	f := newPipelineFixture(t)
	start, end := hourlyWindow()

	samples := samplesEvery(f.endpoint.ID, "ns=2;s=Temp", start, end, 10*time.Second)
	if err := f.archive.InsertBatch(context.Background(), samples); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	record, err := f.gen.Generate(context.Background(), f.spec(models.FormatPDF), "alice")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if f.reader.calls != 0 {
		t.Errorf("live reads = %d, want 0 when archive coverage suffices", f.reader.calls)
	}
	if record.GeneratedBy != "alice" {
		t.Errorf("GeneratedBy = %q", record.GeneratedBy)
	}

	file, _, err := f.registry.Open(record.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer file.Close()
	head := make([]byte, 5)
	if _, err := file.Read(head); err != nil {
		t.Fatalf("reading document: %v", err)
	}
	if !bytes.HasPrefix(head, []byte("%PDF-")) {
		t.Errorf("document does not start with PDF header: %q", head)
	}
}

func TestGenerateFallsBackToLiveRead(t *testing.T) {
	f := newPipelineFixture(t)
	start, end := hourlyWindow()

	// Archive empty, so the pipeline must read live history.
	f.reader.samples = samplesEvery("", "", start, end, time.Minute)

	if _, err := f.gen.Generate(context.Background(), f.spec(models.FormatPDF), ""); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if f.reader.calls != 1 {
		t.Errorf("live reads = %d, want 1", f.reader.calls)
	}

	// The live read is backfilled into the archive.
	archived, err := f.archive.QueryRange(context.Background(), f.endpoint.ID, "ns=2;s=Temp", start, end, 0)
	if err != nil {
		t.Fatalf("QueryRange() error = %v", err)
	}
	if len(archived) != len(f.reader.samples) {
		t.Errorf("backfilled samples = %d, want %d", len(archived), len(f.reader.samples))
	}
}

func TestGenerateDOCX(t *testing.T) {
	f := newPipelineFixture(t)
	start, end := hourlyWindow()
	f.reader.samples = samplesEvery("", "", start, end, time.Minute)

	record, err := f.gen.Generate(context.Background(), f.spec(models.FormatDOCX), "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	file, _, err := f.registry.Open(record.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer file.Close()
	head := make([]byte, 2)
	if _, err := file.Read(head); err != nil {
		t.Fatalf("reading document: %v", err)
	}
	// DOCX is a zip container.
	if string(head) != "PK" {
		t.Errorf("document does not start with zip header: %q", head)
	}
}

func TestGenerateInvalidWindow(t *testing.T) {
	f := newPipelineFixture(t)
	spec := f.spec(models.FormatPDF)
	spec.End = spec.Start

	if _, err := f.gen.Generate(context.Background(), spec, ""); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("Generate() error = %v, want ErrInvalidWindow", err)
	}
}

func TestGenerateNoData(t *testing.T) {
	f := newPipelineFixture(t)
	f.reader.err = errors.New("endpoint unreachable")

	if _, err := f.gen.Generate(context.Background(), f.spec(models.FormatPDF), ""); !errors.Is(err, ErrNoSectionData) {
		t.Errorf("Generate() error = %v, want ErrNoSectionData", err)
	}
}

func TestGenerateUnsupportedFormat(t *testing.T) {
	f := newPipelineFixture(t)
	start, end := hourlyWindow()
	f.reader.samples = samplesEvery("", "", start, end, time.Minute)

	spec := f.spec("odt")
	if _, err := f.gen.Generate(context.Background(), spec, ""); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Generate() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestResampleSeries(t *testing.T) {
	start, _ := hourlyWindow()
	series := []models.TagSeries{{
		EndpointID: "ep-1",
		Tag:        "ns=2;s=Temp",
		Samples:    samplesEvery("ep-1", "ns=2;s=Temp", start, start.Add(10*time.Minute), 10*time.Second),
	}}

	out := resampleSeries(series, time.Minute)
	if len(out) != 1 {
		t.Fatalf("series count = %d", len(out))
	}
	if len(out[0].Samples) != 10 {
		t.Errorf("resampled to %d buckets, want 10", len(out[0].Samples))
	}
}
