// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/historiographus/internal/models"
)

// ErrReportNotFound is returned when a report ID is not in the registry.
var ErrReportNotFound = errors.New("report not found")

const indexFilename = "index.json"

// Registry tracks generated report documents on disk. Documents live as
// files in the registry directory; metadata lives in an index file that
// is rewritten atomically on every mutation.
type Registry struct {
	mu      sync.Mutex
	dir     string
	records map[string]models.ReportRecord
}

// NewRegistry opens the registry rooted at dir, creating it if needed.
func NewRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	r := &Registry{
		dir:     dir,
		records: make(map[string]models.ReportRecord),
	}

	data, err := os.ReadFile(filepath.Join(dir, indexFilename))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh registry.
	case err != nil:
		return nil, fmt.Errorf("failed to read report index: %w", err)
	default:
		var records []models.ReportRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to parse report index: %w", err)
		}
		for _, rec := range records {
			r.records[rec.ID] = rec
		}
	}

	return r, nil
}

// Save stores a generated document and registers it. The document file
// is removed again if the index cannot be persisted.
func (r *Registry) Save(spec models.ReportSpec, data []byte, generatedBy string) (models.ReportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := models.ReportRecord{
		ID:          uuid.NewString(),
		Title:       spec.Title,
		Format:      spec.Format,
		SizeBytes:   int64(len(data)),
		GeneratedAt: time.Now().UTC(),
		GeneratedBy: generatedBy,
		Spec:        spec,
	}
	record.Filename = documentFilename(spec.Title, record.GeneratedAt, record.ID, spec.Format)

	path := filepath.Join(r.dir, record.Filename)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return models.ReportRecord{}, fmt.Errorf("failed to write report document: %w", err)
	}

	r.records[record.ID] = record
	if err := r.persistLocked(); err != nil {
		delete(r.records, record.ID)
		_ = os.Remove(path)
		return models.ReportRecord{}, err
	}

	return record, nil
}

// Get returns the record for a report ID.
func (r *Registry) Get(id string) (models.ReportRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return models.ReportRecord{}, ErrReportNotFound
	}
	return record, nil
}

// List returns all records, newest first.
func (r *Registry) List() []models.ReportRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]models.ReportRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].GeneratedAt.Equal(records[j].GeneratedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].GeneratedAt.After(records[j].GeneratedAt)
	})
	return records
}

// Open returns the document file for streaming to a download response.
// The caller closes the file.
func (r *Registry) Open(id string) (*os.File, models.ReportRecord, error) {
	record, err := r.Get(id)
	if err != nil {
		return nil, models.ReportRecord{}, err
	}

	f, err := os.Open(filepath.Join(r.dir, record.Filename))
	if err != nil {
		return nil, models.ReportRecord{}, fmt.Errorf("failed to open report document: %w", err)
	}
	return f, record, nil
}

// Delete removes a report's document and index entry.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return ErrReportNotFound
	}

	delete(r.records, id)
	if err := r.persistLocked(); err != nil {
		r.records[id] = record
		return err
	}

	// Index is authoritative; a leftover file is only wasted space.
	if err := os.Remove(filepath.Join(r.dir, record.Filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove report document: %w", err)
	}
	return nil
}

// persistLocked rewrites the index with temp-file-and-rename so a crash
// mid-write never corrupts it. Caller must hold the mutex.
func (r *Registry) persistLocked() error {
	records := make([]models.ReportRecord, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report index: %w", err)
	}

	path := filepath.Join(r.dir, indexFilename)
	tmp, err := os.CreateTemp(r.dir, indexFilename+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace report index: %w", err)
	}
	return nil
}

// documentFilename builds a filesystem-safe name like
// weekly-boiler-report-20260824T120000Z-1f0a8c2d.pdf. The record ID
// prefix keeps same-title documents generated in the same second from
// sharing a file.
func documentFilename(title string, at time.Time, id, format string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '-', r == '_', r == '.':
			return '-'
		default:
			return -1
		}
	}, title)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "report"
	}
	if len(slug) > 64 {
		slug = slug[:64]
	}
	uniq := strings.ReplaceAll(id, "-", "")
	if len(uniq) > 8 {
		uniq = uniq[:8]
	}
	return fmt.Sprintf("%s-%s-%s.%s", slug, at.Format("20060102T150405Z"), uniq, format)
}
