package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the SQLite-backed run history.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite history database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// WAL plus a busy timeout keeps the single-writer case responsive.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS run_records (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL,
		workflow_id TEXT,
		scheduled_at DATETIME NOT NULL,
		started_at DATETIME NOT NULL,
		duration_ns INTEGER NOT NULL,
		success BOOLEAN NOT NULL,
		catch_up BOOLEAN NOT NULL DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_run_records_schedule ON run_records(schedule_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_run_records_started ON run_records(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append inserts one run record.
func (s *SQLiteStore) Append(record *RunRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO run_records (id, schedule_id, workflow_id, scheduled_at, started_at, duration_ns, success, catch_up, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
func (s *SQLiteStore) ListBySchedule(scheduleID string, since time.Time) ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, schedule_id, workflow_id, scheduled_at, started_at, duration_ns, success, catch_up, error
		FROM run_records WHERE schedule_id = ? AND started_at >= ?
		ORDER BY started_at ASC`, scheduleID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListAll returns every record since the cut-off, oldest first.
func (s *SQLiteStore) ListAll(since time.Time) ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, schedule_id, workflow_id, scheduled_at, started_at, duration_ns, success, catch_up, error
		FROM run_records WHERE started_at >= ?
		ORDER BY started_at ASC`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Prune deletes records started before the cut-off.
func (s *SQLiteStore) Prune(olderThan time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM run_records WHERE started_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]*RunRecord, error) {
	var out []*RunRecord
	for rows.Next() {
		var r RunRecord
		var workflowID, errMsg sql.NullString
		var durationNS int64
		if err := rows.Scan(&r.ID, &r.ScheduleID, &workflowID, &r.ScheduledAt, &r.StartedAt,
			&durationNS, &r.Success, &r.CatchUp, &errMsg); err != nil {
			return nil, err
		}
		r.WorkflowID = workflowID.String
		r.Error = errMsg.String
		r.Duration = time.Duration(durationNS)
		out = append(out, &r)
	}
	return out, rows.Err()
}
