package scheduler

import (
	"time"

	"github.com/rpaflow/fleetcore/pkg/history"
	"github.com/rpaflow/fleetcore/pkg/models"
)

// SLAStatus classifies a schedule's compliance.
type SLAStatus string

const (
	SLAStatusOK       SLAStatus = "OK"
	SLAStatusAtRisk   SLAStatus = "AT_RISK"
	SLAStatusBreached SLAStatus = "BREACHED"
	SLAStatusNoData   SLAStatus = "NO_DATA"
)

// ScheduleSLA is one schedule's compliance snapshot over the rolling
// window.
type ScheduleSLA struct {
	ScheduleID        string        `json:"schedule_id"`
	Name              string        `json:"name"`
	Status            SLAStatus     `json:"status"`
	SuccessRate       float64       `json:"success_rate"` // percent
	TargetSuccessRate float64       `json:"target_success_rate"`
	AvgDuration       time.Duration `json:"avg_duration"`
	MaxAvgDuration    time.Duration `json:"max_avg_duration"`
	Runs              int           `json:"runs"`
	Failures          int           `json:"failures"`
	CurrentStreak     int           `json:"current_streak"` // positive: successes, negative: failures
	WindowStart       time.Time     `json:"window_start"`
}

// defaultRiskMargin is how many percentage points above the target the
// success rate may sit before being flagged AT_RISK.
const defaultRiskMargin = 2.0

// SLAMonitor computes per-schedule compliance from the run history.
type SLAMonitor struct {
	history history.Store
	window  time.Duration
}

// NewSLAMonitor creates a monitor over the given history store with a
// rolling window.
func NewSLAMonitor(store history.Store, window time.Duration) *SLAMonitor {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &SLAMonitor{history: store, window: window}
}

// Evaluate computes the compliance snapshot for one schedule. Schedules
// without an SLA config get a snapshot with zero thresholds and status
// derived only from run data presence.
func (m *SLAMonitor) Evaluate(s *models.Schedule) (*ScheduleSLA, error) {
	since := time.Now().Add(-m.window)
	records, err := m.history.ListBySchedule(s.ID, since)
	if err != nil {
		return nil, err
	}

	sla := &ScheduleSLA{
		ScheduleID:  s.ID,
		Name:        s.Name,
		Runs:        len(records),
		WindowStart: since,
	}
	if s.SLA != nil {
		sla.TargetSuccessRate = s.SLA.TargetSuccessRate
		sla.MaxAvgDuration = s.SLA.MaxAvgDuration
	}

	if len(records) == 0 {
		sla.Status = SLAStatusNoData
		return sla, nil
	}

	var successes int
	var totalDuration time.Duration
	for _, r := range records {
		if r.Success {
			successes++
		} else {
			sla.Failures++
		}
		totalDuration += r.Duration
	}
	sla.SuccessRate = float64(successes) / float64(len(records)) * 100
	sla.AvgDuration = totalDuration / time.Duration(len(records))
	sla.CurrentStreak = streak(records)
	sla.Status = m.classify(s.SLA, sla)
	return sla, nil
}

// Report evaluates every given schedule that carries an SLA config.
func (m *SLAMonitor) Report(schedules []*models.Schedule) ([]*ScheduleSLA, error) {
	var out []*ScheduleSLA
	for _, s := range schedules {
		if s.SLA == nil {
			continue
		}
		sla, err := m.Evaluate(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sla)
	}
	return out, nil
}

func (m *SLAMonitor) classify(config *models.SLAConfig, sla *ScheduleSLA) SLAStatus {
	if config == nil {
		return SLAStatusOK
	}
	if config.MaxAvgDuration > 0 && sla.AvgDuration > config.MaxAvgDuration {
		return SLAStatusBreached
	}
	if config.TargetSuccessRate > 0 {
		if sla.SuccessRate < config.TargetSuccessRate {
			return SLAStatusBreached
		}
		margin := config.RiskMargin
		if margin <= 0 {
			margin = defaultRiskMargin
		}
		if sla.SuccessRate < config.TargetSuccessRate+margin {
			return SLAStatusAtRisk
		}
	}
	return SLAStatusOK
}

// streak counts consecutive same-outcome runs from the newest record
// backwards. Positive for successes, negative for failures.
func streak(records []*history.RunRecord) int {
	if len(records) == 0 {
		return 0
	}
	last := records[len(records)-1].Success
	n := 0
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Success != last {
			break
		}
		n++
	}
	if !last {
		return -n
	}
	return n
}
