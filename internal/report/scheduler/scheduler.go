// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/logging"
	"github.com/tomtom215/historiographus/internal/metrics"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/store"
)

// ErrAlreadyRunning is returned by TriggerNow when the schedule has a
// run in flight.
var ErrAlreadyRunning = errors.New("schedule is already running")

// Generator produces a report document from a spec. Satisfied by
// report.Generator.
type Generator interface {
	Generate(ctx context.Context, spec models.ReportSpec, generatedBy string) (models.ReportRecord, error)
}

// Notifier receives schedule run events for connected UI clients.
// Satisfied by websocket.Hub; nil disables notifications.
type Notifier interface {
	BroadcastScheduleRun(schedule models.Schedule, status, errMsg string)
}

// Scheduler executes report schedules when their cron expressions fire.
// Runs are attributed to the shadow service account and bounded by a
// concurrency semaphore.
type Scheduler struct {
	cfg       config.SchedulerConfig
	schedules *store.ScheduleStore
	generator Generator
	notifier  Notifier
	runAs     string

	sem chan struct{}
	wg  sync.WaitGroup

	// runCtx outlives any single HTTP request; manually triggered runs
	// execute under it so they are not aborted when the handler returns.
	// It is cancelled when Run's context ends.
	runCtx context.Context
	stop   context.CancelFunc

	// now is swapped in tests.
	now func() time.Time
}

// New creates the scheduler. runAs is the username recorded as the
// generator of scheduled reports.
func New(cfg config.SchedulerConfig, schedules *store.ScheduleStore, generator Generator, notifier Notifier, runAs string) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 2
	}
	runCtx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:       cfg,
		schedules: schedules,
		generator: generator,
		notifier:  notifier,
		runAs:     runAs,
		sem:       make(chan struct{}, cfg.MaxConcurrentRuns),
		runCtx:    runCtx,
		stop:      stop,
		now:       time.Now,
	}
}

// Run executes the scheduling loop until the context is cancelled. It
// waits for in-flight runs before returning, so the supervisor gets a
// clean stop.
func (s *Scheduler) Run(ctx context.Context) error {
	logging.Info().
		Dur("check_interval", s.cfg.CheckInterval).
		Int("max_concurrent_runs", s.cfg.MaxConcurrentRuns).
		Msg("Report scheduler started")

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	s.checkDue(ctx)

	for {
		select {
		case <-ticker.C:
			s.checkDue(ctx)
		case <-ctx.Done():
			// Cancel manually triggered runs too, then drain.
			s.stop()
			s.wg.Wait()
			logging.Info().Msg("Report scheduler stopped")
			return ctx.Err()
		}
	}
}

// checkDue starts a run for every enabled schedule whose due time has
// passed. Schedules seen for the first time get a due time computed
// instead of running immediately.
func (s *Scheduler) checkDue(ctx context.Context) {
	now := s.now()

	for _, sc := range s.schedules.ListEnabled() {
		if sc.NextRunAt == nil {
			next, err := NextRun(sc.Cron, now)
			if err != nil || next.IsZero() {
				logging.Error().Err(err).Str("schedule_id", sc.ID).Str("cron", sc.Cron).
					Msg("Schedule has unusable cron expression")
				continue
			}
			if err := s.schedules.SetNextRun(sc.ID, next); err != nil {
				logging.Error().Err(err).Str("schedule_id", sc.ID).Msg("Failed to store next run time")
			}
			continue
		}

		if sc.NextRunAt.After(now) {
			continue
		}
		s.startRun(ctx, sc, now)
	}
}

// startRun claims the schedule and executes it on a worker goroutine.
func (s *Scheduler) startRun(ctx context.Context, sc models.Schedule, now time.Time) {
	claimed, err := s.schedules.MarkRunning(sc.ID, now)
	if err != nil {
		logging.Error().Err(err).Str("schedule_id", sc.ID).Msg("Failed to claim schedule run")
		return
	}
	if !claimed {
		logging.Warn().Str("schedule_id", sc.ID).Str("name", sc.Name).
			Msg("Skipping schedule run, previous run still in flight")
		metrics.SchedulerRunsTotal.WithLabelValues("skipped").Inc()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-ctx.Done():
			s.finish(sc, ctx.Err(), now)
			return
		}

		s.execute(ctx, sc, now)
	}()
}

func (s *Scheduler) execute(ctx context.Context, sc models.Schedule, now time.Time) {
	logging.Info().Str("schedule_id", sc.ID).Str("name", sc.Name).Msg("Executing report schedule")

	_, err := s.generator.Generate(ctx, sc.SpecAt(now), s.runAs)
	s.finish(sc, err, now)
}

// finish records the run outcome, advances the due time, and notifies.
func (s *Scheduler) finish(sc models.Schedule, runErr error, ranAt time.Time) {
	next, nextErr := NextRun(sc.Cron, s.now())
	if nextErr != nil {
		logging.Error().Err(nextErr).Str("schedule_id", sc.ID).Str("cron", sc.Cron).
			Msg("Failed to compute next run time")
	}

	if err := s.schedules.MarkFinished(sc.ID, runErr, next); err != nil {
		logging.Error().Err(err).Str("schedule_id", sc.ID).Msg("Failed to record schedule run outcome")
	}

	status := models.ScheduleStatusOK
	errMsg := ""
	if runErr != nil {
		status = models.ScheduleStatusFailed
		errMsg = runErr.Error()
		logging.Error().Err(runErr).Str("schedule_id", sc.ID).Str("name", sc.Name).
			Msg("Schedule run failed")
	} else {
		logging.Info().Str("schedule_id", sc.ID).Str("name", sc.Name).
			Time("next_run", next).Msg("Schedule run completed")
	}
	metrics.SchedulerRunsTotal.WithLabelValues(status).Inc()

	if s.notifier != nil {
		s.notifier.BroadcastScheduleRun(sc, status, errMsg)
	}
}

// TriggerNow runs a schedule immediately, outside its cron cadence.
// Used by the API's manual trigger. The run still claims the schedule,
// so it cannot overlap a cron-driven run.
//
// The caller's context only covers the claim; the generation itself
// runs under the scheduler's lifetime context so it survives the HTTP
// response that requested it.
func (s *Scheduler) TriggerNow(ctx context.Context, id string) error {
	sc, err := s.schedules.Get(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now()
	claimed, err := s.schedules.MarkRunning(sc.ID, now)
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("schedule %s: %w", id, ErrAlreadyRunning)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-s.runCtx.Done():
			s.finish(sc, s.runCtx.Err(), now)
			return
		}

		s.execute(s.runCtx, sc, now)
	}()
	return nil
}
