package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/rpaflow/fleetcore/pkg/models"
)

// CheckMissedRuns returns the active catch-up-enabled schedules whose
// last run is older than their catch-up window.
func (s *Scheduler) CheckMissedRuns() []*models.Schedule {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var missed []*models.Schedule
	for _, sched := range s.schedules {
		if sched.CatchUp == nil || !sched.CatchUp.Enabled {
			continue
		}
		if !models.IsSchedulable(sched.Status) {
			continue
		}
		window := time.Duration(sched.CatchUp.WindowHours) * time.Hour
		if window <= 0 {
			continue
		}
		reference := sched.LastRun
		if reference.IsZero() {
			reference = sched.CreatedAt
		}
		if now.Sub(reference) > window {
			cp := *sched
			missed = append(missed, &cp)
		}
	}
	return missed
}

// ExecuteCatchUp replays occurrences missed within the schedule's
// catch-up window, up to its max-runs cap. Replayed executions carry
// catch_up=true in the trigger context so callers can distinguish
// them. Returns the number of replays launched.
func (s *Scheduler) ExecuteCatchUp(scheduleID string) (int, error) {
	s.mu.Lock()
	sched, ok := s.schedules[scheduleID]
	if !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("schedule %s not found", scheduleID)
	}
	if sched.CatchUp == nil || !sched.CatchUp.Enabled {
		s.mu.Unlock()
		return 0, fmt.Errorf("schedule %s has no catch-up config", scheduleID)
	}
	if !models.IsSchedulable(sched.Status) {
		s.mu.Unlock()
		return 0, fmt.Errorf("schedule %s is not active", scheduleID)
	}
	config := *sched.CatchUp
	lastRun := sched.LastRun
	cronSched := s.crons[scheduleID]
	s.mu.Unlock()

	now := time.Now()
	occurrences := s.missedOccurrences(sched, lastRun, cronSched, config, now)
	if len(occurrences) == 0 {
		return 0, nil
	}

	log.Printf("[Scheduler] Catch-up for %s: replaying %d missed run(s)", sched.Name, len(occurrences))

	if config.Sequential {
		launched := 0
		for _, at := range occurrences {
			// Catch-up loops stop promptly on scheduler shutdown.
			if s.stopRequested() {
				break
			}
			if !s.acquireSlot(sched) {
				continue
			}
			s.runPipeline(sched, at, true, "", nil)
			s.decInflight(sched.ID)
			launched++
		}
		return launched, nil
	}

	launched := 0
	for _, at := range occurrences {
		if s.stopRequested() {
			break
		}
		if !s.acquireSlot(sched) {
			continue
		}
		s.wg.Add(1)
		go func(at time.Time) {
			defer s.wg.Done()
			defer s.decInflight(sched.ID)
			s.runPipeline(sched, at, true, "", nil)
		}(at)
		launched++
	}
	return launched, nil
}

// acquireSlot claims an inflight slot for a catch-up replay so replays
// honor the same max-instances cap as regular ticks.
func (s *Scheduler) acquireSlot(sched *models.Schedule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[sched.ID] >= sched.MaxInstances {
		log.Printf("[Scheduler] Catch-up for %s at max instances (%d), skipping occurrence",
			sched.Name, sched.MaxInstances)
		return false
	}
	s.inflight[sched.ID]++
	return true
}

// missedOccurrences enumerates scheduled times between the window start
// (or the last run, whichever is later) and now, capped at max runs.
// lastRun is snapshotted by the caller under s.mu; the schedule's own
// field may move concurrently while replays execute.
func (s *Scheduler) missedOccurrences(sched *models.Schedule, lastRun time.Time, cronSched cronv3.Schedule, config models.CatchUpConfig, now time.Time) []time.Time {
	windowStart := now.Add(-time.Duration(config.WindowHours) * time.Hour)
	from := windowStart
	if lastRun.After(from) {
		from = lastRun
	}

	maxRuns := config.MaxRuns
	if maxRuns <= 0 {
		maxRuns = 10
	}

	var out []time.Time
	switch sched.Type {
	case models.ScheduleTypeCron:
		if cronSched == nil {
			return nil
		}
		next := cronSched.Next(from)
		for !next.IsZero() && next.Before(now) && len(out) < maxRuns {
			out = append(out, next)
			next = cronSched.Next(next)
		}
	case models.ScheduleTypeInterval:
		if sched.Interval <= 0 {
			return nil
		}
		next := from.Add(sched.Interval)
		for next.Before(now) && len(out) < maxRuns {
			out = append(out, next)
			next = next.Add(sched.Interval)
		}
	case models.ScheduleTypeOneTime:
		if !sched.RunAt.IsZero() && sched.RunAt.After(windowStart) &&
			sched.RunAt.Before(now) && lastRun.IsZero() {
			out = append(out, sched.RunAt)
		}
	}
	return out
}

// RunCatchUpAll replays missed runs for every schedule CheckMissedRuns
// reports, stopping early on shutdown. Returns total replays launched.
func (s *Scheduler) RunCatchUpAll(ctx context.Context) int {
	total := 0
	for _, sched := range s.CheckMissedRuns() {
		select {
		case <-ctx.Done():
			return total
		default:
		}
		if s.stopRequested() {
			return total
		}
		n, err := s.ExecuteCatchUp(sched.ID)
		if err != nil {
			log.Printf("[Scheduler] Catch-up for %s failed: %v", sched.Name, err)
			continue
		}
		total += n
	}
	return total
}
