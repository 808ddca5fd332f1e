package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rpaflow/fleetcore/pkg/models"
)

func TestCheckMissedRuns(t *testing.T) {
	s := New(newCountingTrigger().trigger)
	now := time.Now()

	stale := &models.Schedule{
		ID: "stale", Type: models.ScheduleTypeInterval, WorkflowID: "wf",
		Interval: time.Hour,
		CatchUp:  &models.CatchUpConfig{Enabled: true, WindowHours: 1},
	}
	fresh := &models.Schedule{
		ID: "fresh", Type: models.ScheduleTypeInterval, WorkflowID: "wf",
		Interval: time.Hour,
		CatchUp:  &models.CatchUpConfig{Enabled: true, WindowHours: 1},
	}
	noCatchUp := &models.Schedule{
		ID: "plain", Type: models.ScheduleTypeInterval, WorkflowID: "wf",
		Interval: time.Hour,
	}
	for _, sched := range []*models.Schedule{stale, fresh, noCatchUp} {
		if err := s.AddSchedule(sched); err != nil {
			t.Fatalf("AddSchedule failed: %v", err)
		}
	}

	// LastRun is owned by the scheduler; set it directly for the test.
	s.mu.Lock()
	s.schedules["stale"].LastRun = now.Add(-2 * time.Hour)
	s.schedules["fresh"].LastRun = now.Add(-10 * time.Minute)
	s.schedules["plain"].LastRun = now.Add(-2 * time.Hour)
	s.mu.Unlock()

	missed := s.CheckMissedRuns()
	if len(missed) != 1 || missed[0].ID != "stale" {
		t.Fatalf("Expected only the stale schedule, got %+v", missed)
	}
}

func TestExecuteCatchUpSequential(t *testing.T) {
	trigger := newCountingTrigger()
	s := New(trigger.trigger)

	sched := &models.Schedule{
		ID: "s1", Type: models.ScheduleTypeInterval, WorkflowID: "wf",
		Interval: time.Hour,
		CatchUp:  &models.CatchUpConfig{Enabled: true, WindowHours: 6, Sequential: true},
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}
	s.mu.Lock()
	s.schedules["s1"].LastRun = time.Now().Add(-3*time.Hour - time.Minute)
	s.mu.Unlock()

	n, err := s.ExecuteCatchUp("s1")
	if err != nil {
		t.Fatalf("ExecuteCatchUp failed: %v", err)
	}
	// Hourly occurrences since the last run ~3h ago.
	if n != 3 {
		t.Errorf("Expected 3 replayed runs, got %d", n)
	}
	if trigger.calls.Load() != 3 {
		t.Errorf("Expected 3 trigger invocations, got %d", trigger.calls.Load())
	}
	if trigger.catchUps.Load() != 3 {
		t.Errorf("Replayed runs must carry catch_up=true, got %d", trigger.catchUps.Load())
	}

	records, err := s.History().ListBySchedule("s1", time.Time{})
	if err != nil {
		t.Fatalf("History lookup failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 run records, got %d", len(records))
	}
	for _, r := range records {
		if !r.CatchUp {
			t.Error("Run record should be flagged as catch-up")
		}
	}
}

func TestExecuteCatchUpRespectsMaxRuns(t *testing.T) {
	trigger := newCountingTrigger()
	s := New(trigger.trigger)

	sched := &models.Schedule{
		ID: "s1", Type: models.ScheduleTypeInterval, WorkflowID: "wf",
		Interval: 10 * time.Minute,
		CatchUp:  &models.CatchUpConfig{Enabled: true, WindowHours: 12, MaxRuns: 4, Sequential: true},
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}
	s.mu.Lock()
	s.schedules["s1"].LastRun = time.Now().Add(-6 * time.Hour)
	s.mu.Unlock()

	n, err := s.ExecuteCatchUp("s1")
	if err != nil {
		t.Fatalf("ExecuteCatchUp failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected max_runs to cap replays at 4, got %d", n)
	}
}

func TestExecuteCatchUpHonorsMaxInstances(t *testing.T) {
	release := make(chan struct{})
	blocking := func(ctx context.Context, tc *models.TriggerContext) error {
		<-release
		return nil
	}
	s := New(blocking)

	sched := &models.Schedule{
		ID: "s1", Type: models.ScheduleTypeInterval, WorkflowID: "wf",
		Interval:     time.Hour,
		MaxInstances: 1,
		CatchUp:      &models.CatchUpConfig{Enabled: true, WindowHours: 6},
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}
	s.mu.Lock()
	s.schedules["s1"].LastRun = time.Now().Add(-3*time.Hour - time.Minute)
	s.mu.Unlock()

	// Three occurrences are due but only one inflight slot exists, so
	// concurrent replay launches one run and skips the rest.
	n, err := s.ExecuteCatchUp("s1")
	if err != nil {
		t.Fatalf("ExecuteCatchUp failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected max_instances to cap concurrent replays at 1, got %d", n)
	}

	close(release)
	s.wg.Wait()

	s.mu.Lock()
	inflight := s.inflight["s1"]
	runs := s.schedules["s1"].RunCount
	s.mu.Unlock()
	if inflight != 0 {
		t.Errorf("Inflight slot not released after replay, got %d", inflight)
	}
	if runs != 1 {
		t.Errorf("Expected exactly 1 replayed run, got %d", runs)
	}
}

// Concurrent catch-up requests for one schedule: replays update the
// last run while other requests enumerate missed occurrences, so both
// sides must go through the scheduler lock.
func TestExecuteCatchUpConcurrentCalls(t *testing.T) {
	trigger := newCountingTrigger()
	s := New(trigger.trigger)

	sched := &models.Schedule{
		ID: "s1", Type: models.ScheduleTypeInterval, WorkflowID: "wf",
		Interval: time.Hour,
		CatchUp:  &models.CatchUpConfig{Enabled: true, WindowHours: 6, Sequential: true},
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}
	s.mu.Lock()
	s.schedules["s1"].LastRun = time.Now().Add(-3*time.Hour - time.Minute)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ExecuteCatchUp("s1"); err != nil {
				t.Errorf("ExecuteCatchUp failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if trigger.calls.Load() == 0 {
		t.Error("Expected at least one replayed run")
	}
}

func TestExecuteCatchUpErrors(t *testing.T) {
	s := New(newCountingTrigger().trigger)

	if _, err := s.ExecuteCatchUp("missing"); err == nil {
		t.Error("Unknown schedule should error")
	}

	plain := &models.Schedule{
		ID: "plain", Type: models.ScheduleTypeInterval, WorkflowID: "wf", Interval: time.Hour,
	}
	if err := s.AddSchedule(plain); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}
	if _, err := s.ExecuteCatchUp("plain"); err == nil {
		t.Error("Schedule without catch-up config should error")
	}

	paused := &models.Schedule{
		ID: "paused", Type: models.ScheduleTypeInterval, WorkflowID: "wf", Interval: time.Hour,
		CatchUp: &models.CatchUpConfig{Enabled: true, WindowHours: 1},
	}
	if err := s.AddSchedule(paused); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}
	if err := s.PauseSchedule("paused"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if _, err := s.ExecuteCatchUp("paused"); err == nil {
		t.Error("Paused schedule should not catch up")
	}
}

func TestMissedOccurrencesOneTime(t *testing.T) {
	s := New(newCountingTrigger().trigger)
	now := time.Now()

	sched := &models.Schedule{
		Type:  models.ScheduleTypeOneTime,
		RunAt: now.Add(-30 * time.Minute),
	}
	config := models.CatchUpConfig{Enabled: true, WindowHours: 1}

	got := s.missedOccurrences(sched, time.Time{}, nil, config, now)
	if len(got) != 1 || !got[0].Equal(sched.RunAt) {
		t.Errorf("Expected the missed one-time occurrence, got %v", got)
	}

	// Already ran: nothing to replay.
	lastRun := now.Add(-20 * time.Minute)
	if got := s.missedOccurrences(sched, lastRun, nil, config, now); len(got) != 0 {
		t.Errorf("One-time schedule that already ran must not replay, got %v", got)
	}

	// Outside the window: too old to replay.
	sched.RunAt = now.Add(-2 * time.Hour)
	if got := s.missedOccurrences(sched, time.Time{}, nil, config, now); len(got) != 0 {
		t.Errorf("Occurrence outside the window must not replay, got %v", got)
	}
}
