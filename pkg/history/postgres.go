package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is the PostgreSQL-backed run history for multi-node
// deployments.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL and ensures the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_records (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL,
		workflow_id TEXT,
		scheduled_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		duration_ns BIGINT NOT NULL,
		success BOOLEAN NOT NULL,
		catch_up BOOLEAN NOT NULL DEFAULT FALSE,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_run_records_schedule ON run_records(schedule_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_run_records_started ON run_records(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append inserts one run record.
func (s *PostgresStore) Append(record *RunRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO run_records (id, schedule_id, workflow_id, scheduled_at, started_at, duration_ns, success, catch_up, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.ScheduleID, record.WorkflowID,
		record.ScheduledAt.UTC(), record.StartedAt.UTC(),
		record.Duration.Nanoseconds(), record.Success, record.CatchUp, record.Error)
	if err != nil {
		return fmt.Errorf("failed to append run record: %w", err)
	}
	return nil
}

// ListBySchedule returns one schedule's records since the cut-off,
// oldest first.
func (s *PostgresStore) ListBySchedule(scheduleID string, since time.Time) ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, schedule_id, workflow_id, scheduled_at, started_at, duration_ns, success, catch_up, error
		FROM run_records WHERE schedule_id = $1 AND started_at >= $2
		ORDER BY started_at ASC`, scheduleID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListAll returns every record since the cut-off, oldest first.
func (s *PostgresStore) ListAll(since time.Time) ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, schedule_id, workflow_id, scheduled_at, started_at, duration_ns, success, catch_up, error
		FROM run_records WHERE started_at >= $1
		ORDER BY started_at ASC`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Prune deletes records started before the cut-off.
func (s *PostgresStore) Prune(olderThan time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM run_records WHERE started_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
