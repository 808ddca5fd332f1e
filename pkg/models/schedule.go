package models

import (
	"context"
	"time"
)

// ScheduleType represents the kind of trigger a schedule defines
type ScheduleType string

const (
	ScheduleTypeCron       ScheduleType = "cron"
	ScheduleTypeInterval   ScheduleType = "interval"
	ScheduleTypeOneTime    ScheduleType = "one_time"
	ScheduleTypeEvent      ScheduleType = "event"
	ScheduleTypeDependency ScheduleType = "dependency"
)

// ScheduleStatus represents the lifecycle status of a schedule
type ScheduleStatus string

const (
	ScheduleStatusActive   ScheduleStatus = "active"
	ScheduleStatusPaused   ScheduleStatus = "paused"
	ScheduleStatusDisabled ScheduleStatus = "disabled"
	ScheduleStatusError    ScheduleStatus = "error"
	ScheduleStatusExpired  ScheduleStatus = "expired" // one-time schedule that has fired
)

// RateLimitConfig caps how often a schedule may fire within a sliding window.
type RateLimitConfig struct {
	MaxExecutions int           `json:"max_executions"`
	Window        time.Duration `json:"window"`
	QueueOverflow bool          `json:"queue_overflow"` // sleep until the next slot instead of skipping
}

// DependencyConfig describes which schedules must complete before this
// one may fire.
type DependencyConfig struct {
	DependsOn   []string `json:"depends_on"`
	RequireAll  bool     `json:"require_all"`
	SuccessOnly bool     `json:"success_only"`
}

// ConditionFunc is a caller-supplied predicate gate evaluated before a
// schedule fires.
type ConditionFunc func(ctx context.Context) (bool, error)

// ConditionalConfig gates execution on a predicate, retried a bounded
// number of times within a single tick before giving up.
type ConditionalConfig struct {
	Predicate     ConditionFunc `json:"-"`
	RetryCount    int           `json:"retry_count"`
	RetryInterval time.Duration `json:"retry_interval"`
}

// CatchUpConfig controls replay of executions missed during downtime.
type CatchUpConfig struct {
	Enabled     bool `json:"enabled"`
	WindowHours int  `json:"window_hours"`
	MaxRuns     int  `json:"max_runs"`
	Sequential  bool `json:"sequential"`
}

// SLAConfig holds the compliance thresholds tracked per schedule.
type SLAConfig struct {
	TargetSuccessRate float64       `json:"target_success_rate"`   // percent, e.g. 99.0
	MaxAvgDuration    time.Duration `json:"max_avg_duration"`
	RiskMargin        float64       `json:"risk_margin,omitempty"` // percentage points above target treated as AT_RISK
}

// Schedule is one trigger definition owned by the scheduler. All
// mutation goes through the scheduler; status changes must pass the
// transition table in fsm.go.
type Schedule struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Type       ScheduleType  `json:"type"`
	WorkflowID string        `json:"workflow_id"`
	CronExpr   string        `json:"cron_expr,omitempty"`  // literal 5-field expression or a known alias
	Interval   time.Duration `json:"interval,omitempty"`
	RunAt      time.Time     `json:"run_at,omitempty"`     // one_time schedules
	EventName  string        `json:"event_name,omitempty"` // event schedules
	CalendarID string        `json:"calendar_id,omitempty"`

	RespectBusinessHours bool               `json:"respect_business_hours"`
	RateLimit            *RateLimitConfig   `json:"rate_limit,omitempty"`
	Dependency           *DependencyConfig  `json:"dependency,omitempty"`
	Conditional          *ConditionalConfig `json:"conditional,omitempty"`
	CatchUp              *CatchUpConfig     `json:"catch_up,omitempty"`
	SLA                  *SLAConfig         `json:"sla,omitempty"`

	MaxInstances           int           `json:"max_instances,omitempty"`            // concurrent overlapping runs, default 3
	MisfireGrace           time.Duration `json:"misfire_grace,omitempty"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures,omitempty"` // default 5

	Status              ScheduleStatus `json:"status"`
	RunCount            int            `json:"run_count"`
	SuccessCount        int            `json:"success_count"`
	FailureCount        int            `json:"failure_count"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	LastRun             time.Time      `json:"last_run,omitempty"`
	NextRun             time.Time      `json:"next_run,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`

	Payload map[string]interface{} `json:"payload,omitempty"`
}

// TriggerContext is what the scheduler hands to the trigger callback.
type TriggerContext struct {
	Schedule    *Schedule              `json:"schedule"`
	ScheduledAt time.Time              `json:"scheduled_at"`
	FiredAt     time.Time              `json:"fired_at"`
	CatchUp     bool                   `json:"catch_up"`
	Event       string                 `json:"event,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// TriggerFunc is the external job-submission path, invoked once per
// qualifying tick. Errors are caught and counted, never propagated.
type TriggerFunc func(ctx context.Context, tc *TriggerContext) error
