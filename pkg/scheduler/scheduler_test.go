package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rpaflow/fleetcore/pkg/models"
)

// countingTrigger records invocations and returns a configurable error.
type countingTrigger struct {
	calls    atomic.Int64
	catchUps atomic.Int64
	err      error
	fired    chan *models.TriggerContext
}

func newCountingTrigger() *countingTrigger {
	return &countingTrigger{fired: make(chan *models.TriggerContext, 32)}
}

func (c *countingTrigger) trigger(ctx context.Context, tc *models.TriggerContext) error {
	c.calls.Add(1)
	if tc.CatchUp {
		c.catchUps.Add(1)
	}
	select {
	case c.fired <- tc:
	default:
	}
	return c.err
}

func (c *countingTrigger) wait(t *testing.T) *models.TriggerContext {
	t.Helper()
	select {
	case tc := <-c.fired:
		return tc
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for trigger")
		return nil
	}
}

func TestAddScheduleDefaults(t *testing.T) {
	s := New(newCountingTrigger().trigger)
	sched := &models.Schedule{
		Type:       models.ScheduleTypeCron,
		WorkflowID: "wf-1",
		CronExpr:   "daily",
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	if sched.ID == "" {
		t.Error("Expected a generated ID")
	}
	if sched.MaxInstances != 3 {
		t.Errorf("Expected default max_instances 3, got %d", sched.MaxInstances)
	}
	if sched.MaxConsecutiveFailures != 5 {
		t.Errorf("Expected default max_consecutive_failures 5, got %d", sched.MaxConsecutiveFailures)
	}
	if sched.Status != models.ScheduleStatusActive {
		t.Errorf("Expected active status, got %s", sched.Status)
	}
	if sched.NextRun.IsZero() {
		t.Error("Cron schedule should have a computed next run")
	}
}

func TestAddScheduleValidation(t *testing.T) {
	s := New(newCountingTrigger().trigger)

	tests := []struct {
		name  string
		sched *models.Schedule
	}{
		{"missing workflow", &models.Schedule{Type: models.ScheduleTypeCron, CronExpr: "daily"}},
		{"malformed cron", &models.Schedule{Type: models.ScheduleTypeCron, WorkflowID: "wf", CronExpr: "not a cron"}},
		{"zero interval", &models.Schedule{Type: models.ScheduleTypeInterval, WorkflowID: "wf"}},
		{"one_time without run_at", &models.Schedule{Type: models.ScheduleTypeOneTime, WorkflowID: "wf"}},
		{"event without name", &models.Schedule{Type: models.ScheduleTypeEvent, WorkflowID: "wf"}},
		{"dependency without upstreams", &models.Schedule{Type: models.ScheduleTypeDependency, WorkflowID: "wf"}},
		{"unknown type", &models.Schedule{Type: "lunar", WorkflowID: "wf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.AddSchedule(tt.sched); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestAddScheduleRejectsDependencyCycle(t *testing.T) {
	s := New(newCountingTrigger().trigger)

	a := &models.Schedule{
		ID: "a", Type: models.ScheduleTypeDependency, WorkflowID: "wf",
		Dependency: &models.DependencyConfig{DependsOn: []string{"b"}},
	}
	if err := s.AddSchedule(a); err != nil {
		t.Fatalf("AddSchedule(a) failed: %v", err)
	}

	b := &models.Schedule{
		ID: "b", Type: models.ScheduleTypeDependency, WorkflowID: "wf",
		Dependency: &models.DependencyConfig{DependsOn: []string{"a"}},
	}
	if err := s.AddSchedule(b); err == nil {
		t.Fatal("Schedule closing a dependency cycle should be rejected")
	}
	if _, ok := s.GetSchedule("b"); ok {
		t.Error("Rejected schedule must not be registered")
	}
}

func TestScheduleStatusTransitions(t *testing.T) {
	s := New(newCountingTrigger().trigger)
	sched := &models.Schedule{ID: "s1", Type: models.ScheduleTypeInterval, WorkflowID: "wf", Interval: time.Hour}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	if err := s.PauseSchedule("s1"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if got, _ := s.GetSchedule("s1"); got.Status != models.ScheduleStatusPaused {
		t.Errorf("Expected paused, got %s", got.Status)
	}

	// Paused schedules cannot pause again.
	if err := s.PauseSchedule("s1"); err == nil {
		t.Error("Pausing a paused schedule should fail")
	}

	if err := s.ResumeSchedule("s1"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	got, _ := s.GetSchedule("s1")
	if got.Status != models.ScheduleStatusActive {
		t.Errorf("Expected active, got %s", got.Status)
	}
	if got.ConsecutiveFailures != 0 {
		t.Errorf("Resume should reset consecutive failures, got %d", got.ConsecutiveFailures)
	}

	if err := s.DisableSchedule("s1"); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if err := s.ResumeSchedule("s1"); err != nil {
		t.Fatalf("Re-enable from disabled failed: %v", err)
	}
}

func TestConsecutiveFailuresMoveScheduleToError(t *testing.T) {
	trigger := newCountingTrigger()
	trigger.err = errors.New("robot pool exhausted")
	s := New(trigger.trigger)

	sched := &models.Schedule{
		ID: "s1", Type: models.ScheduleTypeInterval, WorkflowID: "wf",
		Interval: time.Hour, MaxConsecutiveFailures: 2,
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	s.runPipeline(sched, time.Now(), false, "", nil)
	if got, _ := s.GetSchedule("s1"); got.Status != models.ScheduleStatusActive {
		t.Fatalf("One failure should not disable the schedule, got %s", got.Status)
	}

	s.runPipeline(sched, time.Now(), false, "", nil)
	got, _ := s.GetSchedule("s1")
	if got.Status != models.ScheduleStatusError {
		t.Errorf("Expected error status after 2 consecutive failures, got %s", got.Status)
	}
	if got.FailureCount != 2 || got.ConsecutiveFailures != 2 {
		t.Errorf("Expected 2 failures, got failure_count=%d consecutive=%d",
			got.FailureCount, got.ConsecutiveFailures)
	}

	// An errored schedule no longer passes the status gate.
	before := trigger.calls.Load()
	s.runPipeline(sched, time.Now(), false, "", nil)
	if trigger.calls.Load() != before {
		t.Error("Errored schedule must not fire")
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	trigger := newCountingTrigger()
	trigger.err = errors.New("transient")
	s := New(trigger.trigger)

	sched := &models.Schedule{
		ID: "s1", Type: models.ScheduleTypeInterval, WorkflowID: "wf",
		Interval: time.Hour, MaxConsecutiveFailures: 3,
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	s.runPipeline(sched, time.Now(), false, "", nil)
	s.runPipeline(sched, time.Now(), false, "", nil)
	trigger.err = nil
	s.runPipeline(sched, time.Now(), false, "", nil)

	got, _ := s.GetSchedule("s1")
	if got.ConsecutiveFailures != 0 {
		t.Errorf("Success should reset the failure streak, got %d", got.ConsecutiveFailures)
	}
	if got.Status != models.ScheduleStatusActive {
		t.Errorf("Schedule should still be active, got %s", got.Status)
	}
}

func TestTriggerPanicCountsAsFailure(t *testing.T) {
	s := New(func(ctx context.Context, tc *models.TriggerContext) error {
		panic("boom")
	})
	sched := &models.Schedule{ID: "s1", Type: models.ScheduleTypeInterval, WorkflowID: "wf", Interval: time.Hour}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	s.runPipeline(sched, time.Now(), false, "", nil)

	got, _ := s.GetSchedule("s1")
	if got.FailureCount != 1 {
		t.Errorf("Panicking trigger should count as a failure, got %d", got.FailureCount)
	}

	records, err := s.History().ListBySchedule("s1", time.Time{})
	if err != nil {
		t.Fatalf("History lookup failed: %v", err)
	}
	if len(records) != 1 || records[0].Success {
		t.Errorf("Expected one failed run record, got %+v", records)
	}
}

func TestOneTimeScheduleExpiresAfterRun(t *testing.T) {
	trigger := newCountingTrigger()
	s := New(trigger.trigger)
	sched := &models.Schedule{
		ID: "s1", Type: models.ScheduleTypeOneTime, WorkflowID: "wf",
		RunAt: time.Now().Add(time.Hour),
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	s.runPipeline(sched, sched.RunAt, false, "", nil)

	got, _ := s.GetSchedule("s1")
	if got.Status != models.ScheduleStatusExpired {
		t.Errorf("One-time schedule should expire after firing, got %s", got.Status)
	}

	// Expired is terminal.
	if err := s.ResumeSchedule("s1"); err == nil {
		t.Error("Resuming an expired schedule should fail")
	}
}

func TestRateLimitGateSkips(t *testing.T) {
	trigger := newCountingTrigger()
	s := New(trigger.trigger)
	sched := &models.Schedule{
		ID: "s1", Type: models.ScheduleTypeInterval, WorkflowID: "wf", Interval: time.Hour,
		RateLimit: &models.RateLimitConfig{MaxExecutions: 1, Window: time.Hour},
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	s.runPipeline(sched, time.Now(), false, "", nil)
	s.runPipeline(sched, time.Now(), false, "", nil)

	if n := trigger.calls.Load(); n != 1 {
		t.Errorf("Rate limit of 1/hour should allow exactly one firing, got %d", n)
	}
	// The skipped occurrence is not a failure.
	if got, _ := s.GetSchedule("s1"); got.FailureCount != 0 {
		t.Errorf("Rate-limited skip must not count as failure, got %d", got.FailureCount)
	}
}

func TestConditionGate(t *testing.T) {
	trigger := newCountingTrigger()
	s := New(trigger.trigger)

	var attempts atomic.Int64
	sched := &models.Schedule{
		ID: "s1", Type: models.ScheduleTypeInterval, WorkflowID: "wf", Interval: time.Hour,
		Conditional: &models.ConditionalConfig{
			Predicate: func(ctx context.Context) (bool, error) {
				// Fails first, passes on the retry.
				return attempts.Add(1) >= 2, nil
			},
			RetryCount:    1,
			RetryInterval: time.Millisecond,
		},
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	s.runPipeline(sched, time.Now(), false, "", nil)

	if attempts.Load() != 2 {
		t.Errorf("Expected 2 predicate attempts, got %d", attempts.Load())
	}
	if trigger.calls.Load() != 1 {
		t.Errorf("Condition passing on retry should fire the trigger, got %d calls", trigger.calls.Load())
	}
}

func TestConditionGateExhaustsRetries(t *testing.T) {
	trigger := newCountingTrigger()
	s := New(trigger.trigger)
	sched := &models.Schedule{
		ID: "s1", Type: models.ScheduleTypeInterval, WorkflowID: "wf", Interval: time.Hour,
		Conditional: &models.ConditionalConfig{
			Predicate:  func(ctx context.Context) (bool, error) { return false, nil },
			RetryCount: 2,
		},
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	s.runPipeline(sched, time.Now(), false, "", nil)

	if trigger.calls.Load() != 0 {
		t.Error("Failed condition must skip the occurrence")
	}
	if got, _ := s.GetSchedule("s1"); got.RunCount != 0 {
		t.Errorf("Skipped occurrence must not count as a run, got %d", got.RunCount)
	}
}

func TestTriggerEventFiresMatchingSchedules(t *testing.T) {
	trigger := newCountingTrigger()
	s := New(trigger.trigger)

	matching := &models.Schedule{
		ID: "on-file", Type: models.ScheduleTypeEvent, WorkflowID: "wf-1", EventName: "file_arrived",
	}
	other := &models.Schedule{
		ID: "on-close", Type: models.ScheduleTypeEvent, WorkflowID: "wf-2", EventName: "month_close",
	}
	paused := &models.Schedule{
		ID: "paused", Type: models.ScheduleTypeEvent, WorkflowID: "wf-3", EventName: "file_arrived",
	}
	for _, sched := range []*models.Schedule{matching, other, paused} {
		if err := s.AddSchedule(sched); err != nil {
			t.Fatalf("AddSchedule failed: %v", err)
		}
	}
	if err := s.PauseSchedule("paused"); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	payload := map[string]interface{}{"path": "/inbox/report.csv"}
	if n := s.TriggerEvent("file_arrived", payload); n != 1 {
		t.Fatalf("Expected 1 schedule fired, got %d", n)
	}

	tc := trigger.wait(t)
	if tc.Schedule.ID != "on-file" {
		t.Errorf("Expected on-file to fire, got %s", tc.Schedule.ID)
	}
	if tc.Event != "file_arrived" {
		t.Errorf("Expected event name in trigger context, got %q", tc.Event)
	}
	if tc.Payload["path"] != "/inbox/report.csv" {
		t.Errorf("Expected event payload to pass through, got %v", tc.Payload)
	}

	if n := s.TriggerEvent("no_such_event", nil); n != 0 {
		t.Errorf("Unknown event should fire nothing, got %d", n)
	}
}

func TestNotifyCompletionFiresDependencySchedule(t *testing.T) {
	trigger := newCountingTrigger()
	s := New(trigger.trigger)

	dep := &models.Schedule{
		ID: "report", Type: models.ScheduleTypeDependency, WorkflowID: "wf-report",
		Dependency: &models.DependencyConfig{DependsOn: []string{"extract"}, SuccessOnly: true},
	}
	if err := s.AddSchedule(dep); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	// A failed upstream does not satisfy success_only.
	s.NotifyCompletion("extract", false)
	select {
	case tc := <-trigger.fired:
		t.Fatalf("Dependency fired on upstream failure: %+v", tc)
	case <-time.After(50 * time.Millisecond):
	}

	s.NotifyCompletion("extract", true)
	tc := trigger.wait(t)
	if tc.Schedule.ID != "report" {
		t.Errorf("Expected dependency schedule to fire, got %s", tc.Schedule.ID)
	}
}

func TestGetUpcomingRuns(t *testing.T) {
	s := New(newCountingTrigger().trigger)

	interval := &models.Schedule{
		ID: "every-10m", Name: "every-10m", Type: models.ScheduleTypeInterval,
		WorkflowID: "wf", Interval: 10 * time.Minute,
	}
	once := &models.Schedule{
		ID: "once", Name: "once", Type: models.ScheduleTypeOneTime,
		WorkflowID: "wf-reports", RunAt: time.Now().Add(15 * time.Minute),
	}
	event := &models.Schedule{
		ID: "evt", Name: "evt", Type: models.ScheduleTypeEvent,
		WorkflowID: "wf", EventName: "never",
	}
	for _, sched := range []*models.Schedule{interval, once, event} {
		if err := s.AddSchedule(sched); err != nil {
			t.Fatalf("AddSchedule failed: %v", err)
		}
	}

	runs := s.GetUpcomingRuns(35*time.Minute, 0, "")
	// Interval at +10m, +20m, +30m plus the one-time at +15m.
	if len(runs) != 4 {
		t.Fatalf("Expected 4 upcoming runs, got %d: %+v", len(runs), runs)
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].At.Before(runs[i-1].At) {
			t.Errorf("Upcoming runs not sorted: %v after %v", runs[i].At, runs[i-1].At)
		}
	}
	if runs[1].ScheduleID != "once" {
		t.Errorf("Expected the one-time run second, got %s", runs[1].ScheduleID)
	}

	limited := s.GetUpcomingRuns(35*time.Minute, 2, "")
	if len(limited) != 2 {
		t.Errorf("Expected limit to cap results at 2, got %d", len(limited))
	}

	filtered := s.GetUpcomingRuns(35*time.Minute, 0, "wf-reports")
	if len(filtered) != 1 || filtered[0].ScheduleID != "once" {
		t.Errorf("Expected workflow filter to return only the one-time run, got %+v", filtered)
	}
	if got := s.GetUpcomingRuns(35*time.Minute, 0, "wf-unknown"); len(got) != 0 {
		t.Errorf("Unknown workflow should project no runs, got %+v", got)
	}
}

func TestGetDependencyGraph(t *testing.T) {
	s := New(newCountingTrigger().trigger)

	for _, id := range []string{"extract", "transform"} {
		if err := s.AddSchedule(&models.Schedule{
			ID: id, Type: models.ScheduleTypeInterval, WorkflowID: "wf", Interval: time.Hour,
		}); err != nil {
			t.Fatalf("AddSchedule failed: %v", err)
		}
	}
	if err := s.AddSchedule(&models.Schedule{
		ID: "load", Type: models.ScheduleTypeDependency, WorkflowID: "wf",
		Dependency: &models.DependencyConfig{DependsOn: []string{"extract", "transform"}, RequireAll: true},
	}); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	graph := s.GetDependencyGraph()
	if len(graph) != 1 {
		t.Fatalf("Expected only dependency schedules in the graph, got %+v", graph)
	}
	deps := graph["load"]
	if len(deps) != 2 || deps[0] != "extract" || deps[1] != "transform" {
		t.Errorf("Expected load -> [extract transform], got %v", deps)
	}

	// The returned map is a copy; mutating it must not leak back.
	graph["load"][0] = "tampered"
	if again := s.GetDependencyGraph(); again["load"][0] != "extract" {
		t.Errorf("GetDependencyGraph must return copies, got %v", again["load"])
	}
}

func TestGetSLAReportPerSchedule(t *testing.T) {
	s := New(newCountingTrigger().trigger)

	tracked := &models.Schedule{
		ID: "tracked", Name: "tracked", Type: models.ScheduleTypeInterval,
		WorkflowID: "wf", Interval: time.Hour,
		SLA: &models.SLAConfig{TargetSuccessRate: 90},
	}
	plain := &models.Schedule{
		ID: "plain", Name: "plain", Type: models.ScheduleTypeInterval,
		WorkflowID: "wf", Interval: time.Hour,
	}
	for _, sched := range []*models.Schedule{tracked, plain} {
		if err := s.AddSchedule(sched); err != nil {
			t.Fatalf("AddSchedule failed: %v", err)
		}
	}
	seedRuns(t, s.History(), "tracked", time.Second, []bool{true, true})
	seedRuns(t, s.History(), "plain", time.Second, []bool{true, false})

	// A single schedule is reported even without an SLA config.
	report, err := s.GetSLAReport("plain", 0)
	if err != nil {
		t.Fatalf("GetSLAReport failed: %v", err)
	}
	if len(report) != 1 || report[0].ScheduleID != "plain" {
		t.Fatalf("Expected a single-entry report for plain, got %+v", report)
	}
	if report[0].Runs != 2 || report[0].Failures != 1 {
		t.Errorf("Expected 2 runs with 1 failure, got %+v", report[0])
	}

	// The window override replaces the default rolling window.
	report, err = s.GetSLAReport("tracked", 48*time.Hour)
	if err != nil {
		t.Fatalf("GetSLAReport with window failed: %v", err)
	}
	if report[0].Status != SLAStatusOK {
		t.Errorf("Expected OK over the widened window, got %s", report[0].Status)
	}
	if got := time.Since(report[0].WindowStart); got < 47*time.Hour {
		t.Errorf("Window override not applied, window start only %v ago", got)
	}

	if _, err := s.GetSLAReport("missing", 0); err == nil {
		t.Error("Unknown schedule id should error")
	}

	// Without an id the report keeps its SLA-config-only scope.
	all, err := s.GetSLAReport("", 0)
	if err != nil {
		t.Fatalf("GetSLAReport failed: %v", err)
	}
	if len(all) != 1 || all[0].ScheduleID != "tracked" {
		t.Errorf("Fleet-wide report should only cover SLA-configured schedules, got %+v", all)
	}
}

func TestStartStop(t *testing.T) {
	trigger := newCountingTrigger()
	s := New(trigger.trigger, WithConfig(&Config{
		TickInterval:                  10 * time.Millisecond,
		SLAWindow:                     time.Hour,
		HistoryRetention:              time.Hour,
		PruneInterval:                 time.Hour,
		DefaultMaxInstances:           3,
		DefaultMaxConsecutiveFailures: 5,
	}))

	sched := &models.Schedule{
		ID: "fast", Type: models.ScheduleTypeInterval, WorkflowID: "wf",
		Interval: 20 * time.Millisecond,
	}
	if err := s.AddSchedule(sched); err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	s.Start()
	if !s.IsRunning() {
		t.Fatal("Scheduler should report running after Start")
	}
	trigger.wait(t)
	s.Stop(true)
	if s.IsRunning() {
		t.Error("Scheduler should report stopped after Stop")
	}
	if trigger.calls.Load() == 0 {
		t.Error("Interval schedule should have fired at least once")
	}
}
