package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/rpaflow/fleetcore/pkg/history"
	"github.com/rpaflow/fleetcore/pkg/models"
)

// seedRuns appends n records for the schedule, newest last. outcomes[i]
// is the success flag of the i-th (oldest-first) run.
func seedRuns(t *testing.T, store history.Store, scheduleID string, duration time.Duration, outcomes []bool) {
	t.Helper()
	base := time.Now().Add(-time.Duration(len(outcomes)) * time.Minute)
	for i, ok := range outcomes {
		record := &history.RunRecord{
			ID:         fmt.Sprintf("%s-%d", scheduleID, i),
			ScheduleID: scheduleID,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			Duration:   duration,
			Success:    ok,
		}
		if err := store.Append(record); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
}

func slaSchedule(id string, target float64, maxAvg time.Duration) *models.Schedule {
	return &models.Schedule{
		ID:   id,
		Name: id,
		SLA:  &models.SLAConfig{TargetSuccessRate: target, MaxAvgDuration: maxAvg},
	}
}

func TestSLAEvaluateStatuses(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []bool
		target   float64
		want     SLAStatus
	}{
		{"all successes well above target", []bool{true, true, true, true, true, true, true, true, true, true}, 90, SLAStatusOK},
		{"exactly at target is at risk", []bool{true, true, true, true, true, true, true, true, true, false}, 90, SLAStatusAtRisk},
		{"below target is breached", []bool{true, true, true, true, true, true, true, true, false, false}, 90, SLAStatusBreached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := history.NewMemoryStore()
			seedRuns(t, store, "s1", time.Second, tt.outcomes)

			monitor := NewSLAMonitor(store, 24*time.Hour)
			sla, err := monitor.Evaluate(slaSchedule("s1", tt.target, 0))
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if sla.Status != tt.want {
				t.Errorf("Expected status %s, got %s (rate %.1f%%)", tt.want, sla.Status, sla.SuccessRate)
			}
		})
	}
}

func TestSLADurationBreach(t *testing.T) {
	store := history.NewMemoryStore()
	seedRuns(t, store, "s1", 5*time.Minute, []bool{true, true, true})

	monitor := NewSLAMonitor(store, 24*time.Hour)
	sla, err := monitor.Evaluate(slaSchedule("s1", 50, time.Minute))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if sla.Status != SLAStatusBreached {
		t.Errorf("Average duration above the cap should be BREACHED, got %s", sla.Status)
	}
	if sla.AvgDuration != 5*time.Minute {
		t.Errorf("Expected 5m average duration, got %v", sla.AvgDuration)
	}
}

func TestSLANoData(t *testing.T) {
	monitor := NewSLAMonitor(history.NewMemoryStore(), 24*time.Hour)
	sla, err := monitor.Evaluate(slaSchedule("s1", 99, 0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if sla.Status != SLAStatusNoData {
		t.Errorf("Expected NO_DATA without history, got %s", sla.Status)
	}
	if sla.Runs != 0 {
		t.Errorf("Expected 0 runs, got %d", sla.Runs)
	}
}

func TestSLAStreak(t *testing.T) {
	store := history.NewMemoryStore()
	seedRuns(t, store, "s1", time.Second, []bool{true, true, false, false, false})

	monitor := NewSLAMonitor(store, 24*time.Hour)
	sla, err := monitor.Evaluate(slaSchedule("s1", 0, 0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if sla.CurrentStreak != -3 {
		t.Errorf("Expected streak -3 for three trailing failures, got %d", sla.CurrentStreak)
	}
	if sla.Failures != 3 {
		t.Errorf("Expected 3 failures, got %d", sla.Failures)
	}
}

func TestSLAReportSkipsUnconfigured(t *testing.T) {
	store := history.NewMemoryStore()
	seedRuns(t, store, "with-sla", time.Second, []bool{true})
	seedRuns(t, store, "without-sla", time.Second, []bool{true})

	monitor := NewSLAMonitor(store, 24*time.Hour)
	report, err := monitor.Report([]*models.Schedule{
		slaSchedule("with-sla", 90, 0),
		{ID: "without-sla", Name: "without-sla"},
	})
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if len(report) != 1 || report[0].ScheduleID != "with-sla" {
		t.Errorf("Report should only include schedules with an SLA config, got %+v", report)
	}
}
