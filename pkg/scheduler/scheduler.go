package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/rpaflow/fleetcore/pkg/calendar"
	"github.com/rpaflow/fleetcore/pkg/history"
	"github.com/rpaflow/fleetcore/pkg/models"
)

// Config holds scheduler tuning knobs.
type Config struct {
	TickInterval                  time.Duration // how often due schedules are evaluated
	SLAWindow                     time.Duration // rolling window for compliance reports
	HistoryRetention              time.Duration // how long run records are kept
	PruneInterval                 time.Duration // how often old run records are pruned
	DefaultMaxInstances           int           // concurrent overlapping runs per schedule
	DefaultMaxConsecutiveFailures int           // failures before a schedule goes to error status
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TickInterval:                  1 * time.Second,
		SLAWindow:                     24 * time.Hour,
		HistoryRetention:              7 * 24 * time.Hour,
		PruneInterval:                 1 * time.Hour,
		DefaultMaxInstances:           3,
		DefaultMaxConsecutiveFailures: 5,
	}
}

// UpcomingRun is one projected future firing.
type UpcomingRun struct {
	ScheduleID string    `json:"schedule_id"`
	Name       string    `json:"name"`
	WorkflowID string    `json:"workflow_id"`
	At         time.Time `json:"at"`
}

// Scheduler owns the trigger loop: it evaluates every schedule's gate
// pipeline on a fixed tick and invokes the trigger callback once per
// qualifying tick. Schedule objects are owned here; callers mutate
// them only through scheduler methods.
type Scheduler struct {
	mu        sync.Mutex
	schedules map[string]*models.Schedule
	crons     map[string]cronv3.Schedule
	limiters  map[string]*slidingWindow
	inflight  map[string]int

	trigger   models.TriggerFunc
	calendars *calendar.Registry
	deps      *DependencyTracker
	history   history.Store
	sla       *SLAMonitor
	config    *Config

	running bool
	execCtx context.Context
	cancel  context.CancelFunc
	stopCh  chan struct{}
	doneCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithCalendars sets the calendar registry consulted by schedules that
// respect business hours.
func WithCalendars(reg *calendar.Registry) Option {
	return func(s *Scheduler) { s.calendars = reg }
}

// WithHistory sets the run history store backing SLA reports and
// catch-up accounting.
func WithHistory(store history.Store) Option {
	return func(s *Scheduler) { s.history = store }
}

// WithConfig overrides the default configuration.
func WithConfig(config *Config) Option {
	return func(s *Scheduler) { s.config = config }
}

// New creates a scheduler around the given trigger callback.
func New(trigger models.TriggerFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		schedules: make(map[string]*models.Schedule),
		crons:     make(map[string]cronv3.Schedule),
		limiters:  make(map[string]*slidingWindow),
		inflight:  make(map[string]int),
		trigger:   trigger,
		deps:      NewDependencyTracker(),
		config:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.calendars == nil {
		s.calendars = calendar.NewRegistry()
	}
	if s.history == nil {
		s.history = history.NewMemoryStore()
	}
	s.sla = NewSLAMonitor(s.history, s.config.SLAWindow)
	return s
}

// Calendars returns the registry schedules resolve their calendar_id
// against.
func (s *Scheduler) Calendars() *calendar.Registry {
	return s.calendars
}

// History returns the run history store.
func (s *Scheduler) History() history.Store {
	return s.history
}

// SLAReport evaluates compliance for every schedule carrying an SLA
// config, over the default rolling window.
func (s *Scheduler) SLAReport() ([]*ScheduleSLA, error) {
	return s.GetSLAReport("", 0)
}

// GetSLAReport evaluates compliance. With a schedule id it evaluates
// just that schedule, whether or not it carries an SLA config; a
// positive window overrides the default rolling window.
func (s *Scheduler) GetSLAReport(scheduleID string, window time.Duration) ([]*ScheduleSLA, error) {
	monitor := s.sla
	if window > 0 {
		monitor = NewSLAMonitor(s.history, window)
	}
	if scheduleID != "" {
		sched, ok := s.GetSchedule(scheduleID)
		if !ok {
			return nil, fmt.Errorf("schedule %s not found", scheduleID)
		}
		sla, err := monitor.Evaluate(sched)
		if err != nil {
			return nil, err
		}
		return []*ScheduleSLA{sla}, nil
	}
	return monitor.Report(s.List())
}

// AddSchedule validates and registers a schedule. Invalid definitions
// (malformed cron, dependency cycle, missing fields) are rejected with
// an error, never silently accepted.
func (s *Scheduler) AddSchedule(sched *models.Schedule) error {
	if sched.ID == "" {
		sched.ID = uuid.New().String()
	}
	if sched.Name == "" {
		sched.Name = sched.ID
	}
	if sched.WorkflowID == "" {
		return fmt.Errorf("schedule %s: workflow id is required", sched.ID)
	}
	if sched.MaxInstances <= 0 {
		sched.MaxInstances = s.config.DefaultMaxInstances
	}
	if sched.MaxConsecutiveFailures <= 0 {
		sched.MaxConsecutiveFailures = s.config.DefaultMaxConsecutiveFailures
	}
	if sched.Status == "" {
		sched.Status = models.ScheduleStatusActive
	}
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = time.Now()
	}

	var cronSched cronv3.Schedule
	now := time.Now()
	switch sched.Type {
	case models.ScheduleTypeCron:
		parsed, err := ParseCron(sched.CronExpr)
		if err != nil {
			log.Printf("[Scheduler] Rejecting schedule %s: %v", sched.Name, err)
			return err
		}
		cronSched = parsed
		sched.NextRun = parsed.Next(now)
	case models.ScheduleTypeInterval:
		if sched.Interval <= 0 {
			return fmt.Errorf("schedule %s: interval must be positive", sched.ID)
		}
		sched.NextRun = now.Add(sched.Interval)
	case models.ScheduleTypeOneTime:
		if sched.RunAt.IsZero() {
			return fmt.Errorf("schedule %s: one_time schedule needs run_at", sched.ID)
		}
		sched.NextRun = sched.RunAt
	case models.ScheduleTypeEvent:
		if sched.EventName == "" {
			return fmt.Errorf("schedule %s: event schedule needs event_name", sched.ID)
		}
	case models.ScheduleTypeDependency:
		if sched.Dependency == nil || len(sched.Dependency.DependsOn) == 0 {
			return fmt.Errorf("schedule %s: dependency schedule needs depends_on", sched.ID)
		}
	default:
		return fmt.Errorf("schedule %s: unknown type %q", sched.ID, sched.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sched.ID]; exists {
		return fmt.Errorf("schedule %s already exists", sched.ID)
	}

	// Dependency cycles are rejected before the schedule activates.
	if sched.Type == models.ScheduleTypeDependency {
		graph := s.dependencyGraphLocked()
		graph[sched.ID] = sched.Dependency.DependsOn
		if ok, cycle := ValidateDependencyGraph(graph); !ok {
			log.Printf("[Scheduler] Rejecting schedule %s: dependency cycle %v", sched.Name, cycle)
			return fmt.Errorf("schedule %s: dependency cycle: %v", sched.ID, cycle)
		}
	}

	s.schedules[sched.ID] = sched
	if cronSched != nil {
		s.crons[sched.ID] = cronSched
	}
	if sched.RateLimit != nil && sched.RateLimit.MaxExecutions > 0 {
		s.limiters[sched.ID] = newSlidingWindow(sched.RateLimit.MaxExecutions, sched.RateLimit.Window)
	}

	log.Printf("[Scheduler] Added schedule %s (%s, type=%s, workflow=%s)",
		sched.Name, sched.ID, sched.Type, sched.WorkflowID)
	return nil
}

// RemoveSchedule unregisters a schedule.
func (s *Scheduler) RemoveSchedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s not found", id)
	}
	delete(s.schedules, id)
	delete(s.crons, id)
	delete(s.limiters, id)
	s.deps.Reset(id)

	log.Printf("[Scheduler] Removed schedule %s (%s)", sched.Name, id)
	return nil
}

// PauseSchedule moves a schedule to paused status.
func (s *Scheduler) PauseSchedule(id string) error {
	return s.transition(id, models.ScheduleStatusPaused)
}

// ResumeSchedule moves a paused (or errored) schedule back to active
// and recomputes its next run so it does not immediately fire for
// missed ticks.
func (s *Scheduler) ResumeSchedule(id string) error {
	if err := s.transition(id, models.ScheduleStatusActive); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s not found", id)
	}
	sched.ConsecutiveFailures = 0
	now := time.Now()
	switch sched.Type {
	case models.ScheduleTypeCron:
		sched.NextRun = s.crons[id].Next(now)
	case models.ScheduleTypeInterval:
		sched.NextRun = now.Add(sched.Interval)
	}
	return nil
}

// DisableSchedule moves a schedule to disabled status.
func (s *Scheduler) DisableSchedule(id string) error {
	return s.transition(id, models.ScheduleStatusDisabled)
}

func (s *Scheduler) transition(id string, to models.ScheduleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s not found", id)
	}
	if err := models.ValidateScheduleTransition(sched.Status, to); err != nil {
		return err
	}
	log.Printf("[Scheduler] Schedule %s: %s -> %s", sched.Name, sched.Status, to)
	sched.Status = to
	return nil
}

// GetSchedule returns a copy of the schedule.
func (s *Scheduler) GetSchedule(id string) (*models.Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, false
	}
	cp := *sched
	return &cp, true
}

// List returns copies of all schedules, sorted by name.
func (s *Scheduler) List() []*models.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		cp := *sched
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins the tick loop and the history prune loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.execCtx, s.cancel = context.WithCancel(context.Background())
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	log.Printf("[Scheduler] Starting (tick: %v, %d schedules)", s.config.TickInterval, len(s.schedules))
	go s.tickLoop()
	go s.pruneLoop()
}

// Stop halts the tick loop. With wait=true it blocks until in-flight
// executions finish (bounded by a 10s timeout); with wait=false it
// cancels them immediately.
func (s *Scheduler) Stop(wait bool) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	doneCh := s.doneCh
	cancel := s.cancel
	s.mu.Unlock()

	log.Println("[Scheduler] Stopping...")
	close(stopCh)
	<-doneCh

	if !wait {
		cancel()
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		log.Println("[Scheduler] Stopped")
	case <-time.After(10 * time.Second):
		cancel()
		log.Println("[Scheduler] Stop timed out waiting for in-flight runs, cancelled")
	}
}

// IsRunning reports whether the tick loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// stopRequested is true once Stop has been called on a started
// scheduler. A scheduler that was never started is not stopping.
func (s *Scheduler) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return false
	}
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Scheduler) tickLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Scheduler) pruneLoop() {
	ticker := time.NewTicker(s.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.config.HistoryRetention)
			if n, err := s.history.Prune(cutoff); err != nil {
				log.Printf("[Scheduler] History prune failed: %v", err)
			} else if n > 0 {
				log.Printf("[Scheduler] Pruned %d run records older than %v", n, s.config.HistoryRetention)
			}
		}
	}
}

// tick collects due schedules and launches their gate pipelines.
func (s *Scheduler) tick(now time.Time) {
	type dueRun struct {
		sched       *models.Schedule
		scheduledAt time.Time
	}
	var due []dueRun

	s.mu.Lock()
	for id, sched := range s.schedules {
		if !models.IsSchedulable(sched.Status) {
			continue
		}
		if sched.NextRun.IsZero() || sched.NextRun.After(now) {
			continue
		}

		scheduledAt := sched.NextRun

		// Misfire: the occurrence is older than the grace period,
		// typically after downtime. Skip it rather than firing late.
		if sched.MisfireGrace > 0 && now.Sub(scheduledAt) > sched.MisfireGrace {
			log.Printf("[Scheduler] Schedule %s misfired (due %v, grace %v), skipping occurrence",
				sched.Name, scheduledAt.Format(time.RFC3339), sched.MisfireGrace)
			s.advanceNextRunLocked(sched, id, now)
			continue
		}

		if s.inflight[id] >= sched.MaxInstances {
			log.Printf("[Scheduler] Schedule %s at max instances (%d), skipping occurrence",
				sched.Name, sched.MaxInstances)
			s.advanceNextRunLocked(sched, id, now)
			continue
		}

		s.advanceNextRunLocked(sched, id, now)
		s.inflight[id]++
		due = append(due, dueRun{sched: sched, scheduledAt: scheduledAt})
	}
	s.mu.Unlock()

	for _, d := range due {
		s.wg.Add(1)
		go func(sched *models.Schedule, scheduledAt time.Time) {
			defer s.wg.Done()
			defer s.decInflight(sched.ID)
			s.runPipeline(sched, scheduledAt, false, "", nil)
		}(d.sched, d.scheduledAt)
	}
}

func (s *Scheduler) advanceNextRunLocked(sched *models.Schedule, id string, now time.Time) {
	switch sched.Type {
	case models.ScheduleTypeCron:
		sched.NextRun = s.crons[id].Next(now)
	case models.ScheduleTypeInterval:
		sched.NextRun = now.Add(sched.Interval)
	case models.ScheduleTypeOneTime:
		sched.NextRun = time.Time{}
	}
}

func (s *Scheduler) decInflight(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] > 0 {
		s.inflight[id]--
	}
}

// TriggerEvent fires every active event schedule registered for the
// event name and returns how many were launched. Each firing runs the
// full gate pipeline.
func (s *Scheduler) TriggerEvent(eventName string, payload map[string]interface{}) int {
	now := time.Now()

	s.mu.Lock()
	var matched []*models.Schedule
	for id, sched := range s.schedules {
		if sched.Type != models.ScheduleTypeEvent || sched.EventName != eventName {
			continue
		}
		if !models.IsSchedulable(sched.Status) {
			continue
		}
		if s.inflight[id] >= sched.MaxInstances {
			log.Printf("[Scheduler] Event schedule %s at max instances, skipping", sched.Name)
			continue
		}
		s.inflight[id]++
		matched = append(matched, sched)
	}
	s.mu.Unlock()

	for _, sched := range matched {
		s.wg.Add(1)
		go func(sched *models.Schedule) {
			defer s.wg.Done()
			defer s.decInflight(sched.ID)
			s.runPipeline(sched, now, false, eventName, payload)
		}(sched)
	}
	if len(matched) > 0 {
		log.Printf("[Scheduler] Event %q fired %d schedule(s)", eventName, len(matched))
	}
	return len(matched)
}

// NotifyCompletion records a completion in the dependency tracker and
// evaluates dependency-type schedules waiting on it. External systems
// call this when a triggered job finishes; the scheduler also calls it
// for its own runs.
func (s *Scheduler) NotifyCompletion(scheduleID string, success bool) {
	now := time.Now()
	s.deps.Complete(scheduleID, success, now)

	s.mu.Lock()
	var ready []*models.Schedule
	for id, sched := range s.schedules {
		if sched.Type != models.ScheduleTypeDependency || !models.IsSchedulable(sched.Status) {
			continue
		}
		if !dependsOn(sched.Dependency, scheduleID) {
			continue
		}
		if !s.deps.Satisfied(sched.Dependency) {
			continue
		}
		if s.inflight[id] >= sched.MaxInstances {
			continue
		}
		s.inflight[id]++
		ready = append(ready, sched)
	}
	s.mu.Unlock()

	for _, sched := range ready {
		s.wg.Add(1)
		go func(sched *models.Schedule) {
			defer s.wg.Done()
			defer s.decInflight(sched.ID)
			s.runPipeline(sched, now, false, "", nil)
		}(sched)
	}
}

func dependsOn(config *models.DependencyConfig, scheduleID string) bool {
	if config == nil {
		return false
	}
	for _, dep := range config.DependsOn {
		if dep == scheduleID {
			return true
		}
	}
	return false
}

// runPipeline evaluates the gates for one occurrence and executes the
// trigger if they all pass. Gate failures skip the occurrence; only
// trigger failures count against the schedule's health.
func (s *Scheduler) runPipeline(sched *models.Schedule, scheduledAt time.Time, catchUp bool, event string, payload map[string]interface{}) {
	s.mu.Lock()
	ctx := s.execCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	// Gate 1: status. Re-checked here because the schedule may have
	// been paused between the tick and this goroutine running.
	s.mu.Lock()
	active := models.IsSchedulable(sched.Status)
	limiter := s.limiters[sched.ID]
	s.mu.Unlock()
	if !active {
		return
	}

	// Gate 2: sliding-window rate limit.
	if limiter != nil {
		ok, wait := limiter.Allow(time.Now())
		for !ok {
			if sched.RateLimit == nil || !sched.RateLimit.QueueOverflow {
				log.Printf("[Scheduler] Schedule %s rate-limited, skipping occurrence", sched.Name)
				return
			}
			if !s.sleep(ctx, wait) {
				return
			}
			ok, wait = limiter.Allow(time.Now())
		}
	}

	// Gate 3: business hours.
	if sched.RespectBusinessHours && sched.CalendarID != "" {
		cal, found := s.calendars.Get(sched.CalendarID)
		if !found {
			log.Printf("[Scheduler] Schedule %s references unknown calendar %q, skipping", sched.Name, sched.CalendarID)
			return
		}
		if ok, reason := cal.CanExecute(time.Now(), sched.WorkflowID); !ok {
			log.Printf("[Scheduler] Schedule %s outside business hours (%s), skipping", sched.Name, reason)
			return
		}
	}

	// Gate 4: conditional predicate, with bounded retries within this
	// tick.
	if sched.Conditional != nil && sched.Conditional.Predicate != nil {
		if !s.checkCondition(ctx, sched) {
			return
		}
	}

	// Gate 5: dependency satisfaction for non-dependency schedules
	// that still declare upstreams.
	if sched.Type != models.ScheduleTypeDependency && sched.Dependency != nil {
		if !s.deps.Satisfied(sched.Dependency) {
			log.Printf("[Scheduler] Schedule %s dependencies not satisfied, skipping", sched.Name)
			return
		}
	}

	// Gate 6: execute.
	s.execute(ctx, sched, scheduledAt, catchUp, event, payload)
}

func (s *Scheduler) checkCondition(ctx context.Context, sched *models.Schedule) bool {
	cond := sched.Conditional
	attempts := cond.RetryCount + 1
	for i := 0; i < attempts; i++ {
		ok, err := cond.Predicate(ctx)
		if err != nil {
			log.Printf("[Scheduler] Schedule %s condition error: %v", sched.Name, err)
		} else if ok {
			return true
		}
		if i < attempts-1 && cond.RetryInterval > 0 {
			if !s.sleep(ctx, cond.RetryInterval) {
				return false
			}
		}
	}
	log.Printf("[Scheduler] Schedule %s condition not met after %d attempt(s), skipping", sched.Name, attempts)
	return false
}

func (s *Scheduler) execute(ctx context.Context, sched *models.Schedule, scheduledAt time.Time, catchUp bool, event string, payload map[string]interface{}) {
	if payload == nil {
		payload = sched.Payload
	}
	tc := &models.TriggerContext{
		Schedule:    sched,
		ScheduledAt: scheduledAt,
		FiredAt:     time.Now(),
		CatchUp:     catchUp,
		Event:       event,
		Payload:     payload,
	}

	start := time.Now()
	err := s.invokeTrigger(ctx, tc)
	duration := time.Since(start)
	success := err == nil

	record := &history.RunRecord{
		ID:          uuid.New().String(),
		ScheduleID:  sched.ID,
		WorkflowID:  sched.WorkflowID,
		ScheduledAt: scheduledAt,
		StartedAt:   start,
		Duration:    duration,
		Success:     success,
		CatchUp:     catchUp,
	}
	if err != nil {
		record.Error = err.Error()
	}
	if herr := s.history.Append(record); herr != nil {
		log.Printf("[Scheduler] Failed to record run for %s: %v", sched.Name, herr)
	}

	s.mu.Lock()
	sched.RunCount++
	sched.LastRun = start
	if success {
		sched.SuccessCount++
		sched.ConsecutiveFailures = 0
	} else {
		sched.FailureCount++
		sched.ConsecutiveFailures++
		log.Printf("[Scheduler] Schedule %s trigger failed (%d consecutive): %v",
			sched.Name, sched.ConsecutiveFailures, err)
		if sched.ConsecutiveFailures >= sched.MaxConsecutiveFailures &&
			models.ValidateScheduleTransition(sched.Status, models.ScheduleStatusError) == nil {
			sched.Status = models.ScheduleStatusError
			log.Printf("[Scheduler] Schedule %s disabled after %d consecutive failures",
				sched.Name, sched.ConsecutiveFailures)
		}
	}
	if sched.Type == models.ScheduleTypeOneTime &&
		models.ValidateScheduleTransition(sched.Status, models.ScheduleStatusExpired) == nil {
		sched.Status = models.ScheduleStatusExpired
	}
	s.mu.Unlock()

	// Completion always feeds the dependency graph, success or not.
	s.NotifyCompletion(sched.ID, success)
}

// invokeTrigger calls the user callback. Panics are caught and counted
// as failures, never propagated.
func (s *Scheduler) invokeTrigger(ctx context.Context, tc *models.TriggerContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trigger panicked: %v", r)
		}
	}()
	return s.trigger(ctx, tc)
}

// sleep waits for d unless the scheduler is cancelled first.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// GetUpcomingRuns projects firings within the window, at most limit
// entries, soonest first. A non-empty workflowID restricts the
// projection to that workflow's schedules. Event and dependency
// schedules have no projectable time and are omitted.
func (s *Scheduler) GetUpcomingRuns(within time.Duration, limit int, workflowID string) []UpcomingRun {
	now := time.Now()
	horizon := now.Add(within)

	s.mu.Lock()
	defer s.mu.Unlock()

	var runs []UpcomingRun
	for id, sched := range s.schedules {
		if !models.IsSchedulable(sched.Status) {
			continue
		}
		if workflowID != "" && sched.WorkflowID != workflowID {
			continue
		}
		switch sched.Type {
		case models.ScheduleTypeCron:
			next := s.crons[id].Next(now)
			for !next.IsZero() && next.Before(horizon) {
				runs = append(runs, UpcomingRun{ScheduleID: id, Name: sched.Name, WorkflowID: sched.WorkflowID, At: next})
				next = s.crons[id].Next(next)
			}
		case models.ScheduleTypeInterval:
			next := sched.NextRun
			for !next.IsZero() && next.Before(horizon) {
				runs = append(runs, UpcomingRun{ScheduleID: id, Name: sched.Name, WorkflowID: sched.WorkflowID, At: next})
				next = next.Add(sched.Interval)
			}
		case models.ScheduleTypeOneTime:
			if !sched.NextRun.IsZero() && sched.NextRun.Before(horizon) {
				runs = append(runs, UpcomingRun{ScheduleID: id, Name: sched.Name, WorkflowID: sched.WorkflowID, At: sched.NextRun})
			}
		}
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].At.Before(runs[j].At) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}

// GetDependencyGraph returns the depends-on adjacency map of all
// registered dependency schedules. The returned map and slices are
// copies.
func (s *Scheduler) GetDependencyGraph() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	graph := make(map[string][]string)
	for id, deps := range s.dependencyGraphLocked() {
		graph[id] = append([]string(nil), deps...)
	}
	return graph
}

// dependencyGraphLocked builds the depends-on adjacency map from the
// registered dependency schedules. Caller holds s.mu.
func (s *Scheduler) dependencyGraphLocked() map[string][]string {
	graph := make(map[string][]string)
	for id, sched := range s.schedules {
		if sched.Type == models.ScheduleTypeDependency && sched.Dependency != nil {
			graph[id] = sched.Dependency.DependsOn
		}
	}
	return graph
}
