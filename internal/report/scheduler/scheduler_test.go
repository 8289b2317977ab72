// Historiographus - Industrial Historian Reporting and Document Generation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/historiographus

package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/historiographus/internal/config"
	"github.com/tomtom215/historiographus/internal/models"
	"github.com/tomtom215/historiographus/internal/store"
)

// fakeGenerator records generation calls.
type fakeGenerator struct {
	mu      sync.Mutex
	specs   []models.ReportSpec
	users   []string
	ctxErrs []error
	started chan struct{}
	err     error
}

func (g *fakeGenerator) Generate(ctx context.Context, spec models.ReportSpec, generatedBy string) (models.ReportRecord, error) {
	g.mu.Lock()
	g.specs = append(g.specs, spec)
	g.users = append(g.users, generatedBy)
	started := g.started
	g.mu.Unlock()

	if started != nil {
		<-started
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	if g.err != nil {
		return models.ReportRecord{}, g.err
	}
	return models.ReportRecord{ID: "r-1", Title: spec.Title}, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.specs)
}

func (g *fakeGenerator) contextErr(i int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctxErrs[i]
}

type schedulerFixture struct {
	sched     *Scheduler
	store     *store.ScheduleStore
	generator *fakeGenerator
	setNow    func(time.Time)
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	st, err := store.NewScheduleStore(filepath.Join(t.TempDir(), "schedules.json"))
	if err != nil {
		t.Fatalf("NewScheduleStore() error = %v", err)
	}

	gen := &fakeGenerator{}
	sched := New(config.SchedulerConfig{
		Enabled:           true,
		CheckInterval:     time.Minute,
		MaxConcurrentRuns: 2,
	}, st, gen, nil, models.ShadowUsername)

	var mu sync.Mutex
	cur := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	sched.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return cur
	}

	return &schedulerFixture{
		sched:     sched,
		store:     st,
		generator: gen,
		setNow: func(at time.Time) {
			mu.Lock()
			cur = at
			mu.Unlock()
		},
	}
}

func (f *schedulerFixture) createSchedule(t *testing.T, name string) models.Schedule {
	t.Helper()
	sc, err := f.store.Create(models.Schedule{
		Name:         name,
		Cron:         "* * * * *",
		Enabled:      true,
		Format:       models.FormatPDF,
		RangeSeconds: 3600,
		Sections: []models.ReportSection{
			{EndpointID: "ep-1", Tags: []string{"ns=2;s=Temp"}, IncludeChart: true},
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return sc
}

func TestCheckDueSeedsNextRunWithoutExecuting(t *testing.T) {
	f := newSchedulerFixture(t)
	sc := f.createSchedule(t, "hourly")

	f.sched.checkDue(context.Background())
	f.sched.wg.Wait()

	if f.generator.callCount() != 0 {
		t.Errorf("generator called %d times on first sighting, want 0", f.generator.callCount())
	}

	got, err := f.store.Get(sc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.NextRunAt == nil {
		t.Fatal("NextRunAt not seeded")
	}
	want := time.Date(2026, 8, 24, 10, 1, 0, 0, time.UTC)
	if !got.NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, want)
	}
}

func TestCheckDueExecutesDueSchedule(t *testing.T) {
	f := newSchedulerFixture(t)
	sc := f.createSchedule(t, "hourly")

	f.sched.checkDue(context.Background())
	f.setNow(time.Date(2026, 8, 24, 10, 2, 0, 0, time.UTC))
	f.sched.checkDue(context.Background())
	f.sched.wg.Wait()

	if f.generator.callCount() != 1 {
		t.Fatalf("generator called %d times, want 1", f.generator.callCount())
	}
	spec := f.generator.specs[0]
	if spec.Title != "hourly" {
		t.Errorf("spec title = %q", spec.Title)
	}
	if got := spec.End.Sub(spec.Start); got != time.Hour {
		t.Errorf("spec window = %v, want 1h", got)
	}
	if f.generator.users[0] != models.ShadowUsername {
		t.Errorf("generated by %q, want shadow account", f.generator.users[0])
	}

	got, err := f.store.Get(sc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastStatus != models.ScheduleStatusOK {
		t.Errorf("LastStatus = %q, want ok", got.LastStatus)
	}
	if got.NextRunAt == nil || !got.NextRunAt.After(f.sched.now()) {
		t.Errorf("NextRunAt = %v, want advanced past now", got.NextRunAt)
	}
}

func TestCheckDueRecordsFailure(t *testing.T) {
	f := newSchedulerFixture(t)
	sc := f.createSchedule(t, "hourly")
	f.generator.err = errors.New("historian unreachable")

	f.sched.checkDue(context.Background())
	f.setNow(time.Date(2026, 8, 24, 10, 2, 0, 0, time.UTC))
	f.sched.checkDue(context.Background())
	f.sched.wg.Wait()

	got, err := f.store.Get(sc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastStatus != models.ScheduleStatusFailed {
		t.Errorf("LastStatus = %q, want failed", got.LastStatus)
	}
	if got.LastError != "historian unreachable" {
		t.Errorf("LastError = %q", got.LastError)
	}
	if got.NextRunAt == nil || !got.NextRunAt.After(f.sched.now()) {
		t.Error("failed run did not advance NextRunAt")
	}
}

func TestCheckDueSkipsRunningSchedule(t *testing.T) {
	f := newSchedulerFixture(t)
	sc := f.createSchedule(t, "hourly")

	f.sched.checkDue(context.Background())
	if _, err := f.store.MarkRunning(sc.ID, f.sched.now()); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	f.setNow(time.Date(2026, 8, 24, 10, 2, 0, 0, time.UTC))
	f.sched.checkDue(context.Background())
	f.sched.wg.Wait()

	if f.generator.callCount() != 0 {
		t.Errorf("generator called %d times for a running schedule, want 0", f.generator.callCount())
	}
}

func TestCheckDueIgnoresDisabled(t *testing.T) {
	f := newSchedulerFixture(t)
	sc := f.createSchedule(t, "hourly")
	sc.Enabled = false
	if _, err := f.store.Update(sc.ID, sc); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	f.sched.checkDue(context.Background())
	f.setNow(time.Date(2026, 8, 24, 10, 2, 0, 0, time.UTC))
	f.sched.checkDue(context.Background())
	f.sched.wg.Wait()

	if f.generator.callCount() != 0 {
		t.Errorf("generator called %d times for a disabled schedule, want 0", f.generator.callCount())
	}
}

func TestTriggerNow(t *testing.T) {
	f := newSchedulerFixture(t)
	sc := f.createSchedule(t, "on-demand")

	if err := f.sched.TriggerNow(context.Background(), sc.ID); err != nil {
		t.Fatalf("TriggerNow() error = %v", err)
	}
	f.sched.wg.Wait()

	if f.generator.callCount() != 1 {
		t.Fatalf("generator called %d times, want 1", f.generator.callCount())
	}

	got, err := f.store.Get(sc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastStatus != models.ScheduleStatusOK {
		t.Errorf("LastStatus = %q, want ok", got.LastStatus)
	}
}

func TestTriggerNowOutlivesCallerContext(t *testing.T) {
	f := newSchedulerFixture(t)
	sc := f.createSchedule(t, "on-demand")

	gate := make(chan struct{})
	f.generator.started = gate

	ctx, cancel := context.WithCancel(context.Background())
	if err := f.sched.TriggerNow(ctx, sc.ID); err != nil {
		t.Fatalf("TriggerNow() error = %v", err)
	}

	// The HTTP handler responds 202 and its request context dies while
	// the run is still in flight.
	cancel()
	close(gate)
	f.sched.wg.Wait()

	if f.generator.callCount() != 1 {
		t.Fatalf("generator called %d times, want 1", f.generator.callCount())
	}
	if err := f.generator.contextErr(0); err != nil {
		t.Errorf("run context error = %v, want nil", err)
	}

	got, err := f.store.Get(sc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastStatus != models.ScheduleStatusOK {
		t.Errorf("LastStatus = %q, want ok", got.LastStatus)
	}
}

func TestTriggerNowUnknownSchedule(t *testing.T) {
	f := newSchedulerFixture(t)
	if err := f.sched.TriggerNow(context.Background(), "no-such-id"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("TriggerNow() error = %v, want ErrNotFound", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newSchedulerFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sched.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
