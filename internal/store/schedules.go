// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/historiographus/internal/models"
)

// ScheduleStore persists cron-driven report schedules.
type ScheduleStore struct {
	mu        sync.RWMutex
	path      string
	schedules map[string]models.Schedule
}

// NewScheduleStore loads the schedule store from path.
func NewScheduleStore(path string) (*ScheduleStore, error) {
	s := &ScheduleStore{
		path:      path,
		schedules: make(map[string]models.Schedule),
	}

	var list []models.Schedule
	if _, err := loadJSON(path, &list); err != nil {
		return nil, err
	}
	for _, sc := range list {
		// A run interrupted by shutdown must not pin "running" forever.
		if sc.LastStatus == models.ScheduleStatusRunning {
			sc.LastStatus = models.ScheduleStatusFailed
			sc.LastError = "interrupted by restart"
		}
		s.schedules[sc.ID] = sc
	}
	return s, nil
}

// Create stores a new schedule.
func (s *ScheduleStore) Create(sc models.Schedule) (models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.schedules {
		if strings.EqualFold(existing.Name, sc.Name) {
			return models.Schedule{}, fmt.Errorf("schedule %q: %w", sc.Name, ErrDuplicateName)
		}
	}

	now := time.Now().UTC()
	sc.ID = uuid.New().String()
	sc.CreatedAt = now
	sc.UpdatedAt = now
	sc.LastRunAt = nil
	sc.LastStatus = ""
	sc.LastError = ""

	s.schedules[sc.ID] = sc
	if err := s.persistLocked(); err != nil {
		delete(s.schedules, sc.ID)
		return models.Schedule{}, err
	}
	return sc, nil
}

// Get returns a schedule by ID.
func (s *ScheduleStore) Get(id string) (models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.schedules[id]
	if !ok {
		return models.Schedule{}, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	return sc, nil
}

// List returns all schedules sorted by name.
func (s *ScheduleStore) List() []models.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListEnabled returns the enabled schedules sorted by name.
func (s *ScheduleStore) ListEnabled() []models.Schedule {
	all := s.List()
	out := all[:0]
	for _, sc := range all {
		if sc.Enabled {
			out = append(out, sc)
		}
	}
	return out
}

// Update replaces the mutable fields of a schedule, preserving its run
// history.
func (s *ScheduleStore) Update(id string, sc models.Schedule) (models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.schedules[id]
	if !ok {
		return models.Schedule{}, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	for otherID, other := range s.schedules {
		if otherID != id && strings.EqualFold(other.Name, sc.Name) {
			return models.Schedule{}, fmt.Errorf("schedule %q: %w", sc.Name, ErrDuplicateName)
		}
	}

	sc.ID = existing.ID
	sc.CreatedAt = existing.CreatedAt
	sc.UpdatedAt = time.Now().UTC()
	sc.LastRunAt = existing.LastRunAt
	sc.LastStatus = existing.LastStatus
	sc.LastError = existing.LastError
	sc.NextRunAt = existing.NextRunAt

	s.schedules[id] = sc
	if err := s.persistLocked(); err != nil {
		s.schedules[id] = existing
		return models.Schedule{}, err
	}
	return sc, nil
}

// Delete removes a schedule.
func (s *ScheduleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	delete(s.schedules, id)
	if err := s.persistLocked(); err != nil {
		s.schedules[id] = existing
		return err
	}
	return nil
}

// MarkRunning records the start of a run. Returns false without
// mutating when the schedule is already running, which prevents
// overlapping executions of the same schedule.
func (s *ScheduleStore) MarkRunning(id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.schedules[id]
	if !ok {
		return false, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	if existing.LastStatus == models.ScheduleStatusRunning {
		return false, nil
	}

	updated := existing
	at = at.UTC()
	updated.LastRunAt = &at
	updated.LastStatus = models.ScheduleStatusRunning
	updated.LastError = ""

	s.schedules[id] = updated
	if err := s.persistLocked(); err != nil {
		s.schedules[id] = existing
		return false, err
	}
	return true, nil
}

// MarkFinished records the outcome of a run and the next due time.
func (s *ScheduleStore) MarkFinished(id string, runErr error, nextRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}

	updated := existing
	if runErr != nil {
		updated.LastStatus = models.ScheduleStatusFailed
		updated.LastError = runErr.Error()
	} else {
		updated.LastStatus = models.ScheduleStatusOK
		updated.LastError = ""
	}
	if !nextRun.IsZero() {
		next := nextRun.UTC()
		updated.NextRunAt = &next
	}

	s.schedules[id] = updated
	if err := s.persistLocked(); err != nil {
		s.schedules[id] = existing
		return err
	}
	return nil
}

// SetNextRun records the next due time without touching run history.
// Used when a schedule is first picked up and has no due time yet.
func (s *ScheduleStore) SetNextRun(id string, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}

	updated := existing
	nextUTC := next.UTC()
	updated.NextRunAt = &nextUTC

	s.schedules[id] = updated
	if err := s.persistLocked(); err != nil {
		s.schedules[id] = existing
		return err
	}
	return nil
}

// persistLocked writes the store file. Callers hold the write lock.
func (s *ScheduleStore) persistLocked() error {
	list := make([]models.Schedule, 0, len(s.schedules))
	for _, sc := range s.schedules {
		list = append(list, sc)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return saveJSONAtomic(s.path, list)
}
