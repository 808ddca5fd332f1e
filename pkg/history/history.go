package history

import (
	"errors"
	"time"
)

// RunRecord is one schedule execution outcome kept for SLA reporting
// and catch-up accounting.
type RunRecord struct {
	ID          string        `json:"id"`
	ScheduleID  string        `json:"schedule_id"`
	WorkflowID  string        `json:"workflow_id,omitempty"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
	CatchUp     bool          `json:"catch_up"`
	Error       string        `json:"error,omitempty"`
}

// Store persists run records. Implementations: memory, sqlite,
// postgres.
type Store interface {
	Append(record *RunRecord) error
	ListBySchedule(scheduleID string, since time.Time) ([]*RunRecord, error)
	ListAll(since time.Time) ([]*RunRecord, error)
	Prune(olderThan time.Time) (int, error)
	Close() error
}

var ErrUnsupportedBackend = errors.New("unsupported history backend")

// Config selects and configures a history backend.
type Config struct {
	Backend string // "memory", "sqlite" or "postgres"
	DSN     string // connection string / file path
}

// NewStore creates a store from configuration. The memory backend is
// the default.
func NewStore(config Config) (Store, error) {
	switch config.Backend {
	case "memory", "":
		return NewMemoryStore(), nil
	case "sqlite":
		path := config.DSN
		if path == "" {
			path = "fleetcore-history.db"
		}
		return NewSQLiteStore(path)
	case "postgres", "postgresql":
		return NewPostgresStore(config.DSN)
	default:
		return nil, ErrUnsupportedBackend
	}
}
