package models

import (
	"time"
)

// AffinityLevel governs how strongly a job's execution must stick to a
// robot that holds its prior state.
type AffinityLevel string

const (
	AffinityNone    AffinityLevel = "none"    // ignore state entirely
	AffinitySoft    AffinityLevel = "soft"    // prefer state holders, fall back freely
	AffinityHard    AffinityLevel = "hard"    // require a state holder (first run excepted)
	AffinitySession AffinityLevel = "session" // pin the whole chain to one robot
)

// StateType classifies a unit of recoverable execution state.
type StateType string

const (
	StateTypeBrowserSession StateType = "browser_session"
	StateTypeFilesystem     StateType = "filesystem"
	StateTypeMemoryCache    StateType = "memory_cache"
	StateTypeApplication    StateType = "application"
)

// RobotState is one unit of recoverable state a robot holds for a workflow.
// Instances are owned by the affinity manager; external code must not
// mutate them directly.
type RobotState struct {
	ID             string    `json:"id"`
	RobotID        string    `json:"robot_id"`
	WorkflowID     string    `json:"workflow_id"`
	Type           StateType `json:"type"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	SizeBytes      int64     `json:"size_bytes,omitempty"`
	Migratable     bool      `json:"migratable"`
}

// IsExpired reports whether the state is past its expiry. Expired state
// is invisible to every query except cleanup.
func (s *RobotState) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// WorkflowSession pins a workflow's chain of related jobs to one robot.
type WorkflowSession struct {
	ID             string        `json:"id"`
	WorkflowID     string        `json:"workflow_id"`
	RobotID        string        `json:"robot_id"`
	ChainID        string        `json:"chain_id,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	JobCount       int           `json:"job_count"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
}

// IsExpired reports whether the session has been idle past its timeout.
func (s *WorkflowSession) IsExpired(now time.Time) bool {
	return now.Sub(s.LastActivityAt) > s.IdleTimeout
}

// AffinityDecision is the outcome of a robot selection under an
// affinity policy.
type AffinityDecision struct {
	RobotID           string        `json:"robot_id,omitempty"`
	Level             AffinityLevel `json:"level"`
	MigrationRequired bool          `json:"migration_required,omitempty"`
	SourceRobotID     string        `json:"source_robot_id,omitempty"`
	Requeue           bool          `json:"requeue,omitempty"`
	RetryAfter        time.Duration `json:"retry_after,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}
