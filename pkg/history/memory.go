package history

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-memory run history, suitable for embedding and
// tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*RunRecord
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores a copy of the record.
func (s *MemoryStore) Append(record *RunRecord) error {
	cp := *record

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, &cp)
	return nil
}

// ListBySchedule returns records for one schedule started at or after
// since, oldest first.
func (s *MemoryStore) ListBySchedule(scheduleID string, since time.Time) ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*RunRecord
	for _, r := range s.records {
		if r.ScheduleID != scheduleID || r.StartedAt.Before(since) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sortRecords(out)
	return out, nil
}

// ListAll returns every record started at or after since, oldest first.
func (s *MemoryStore) ListAll(since time.Time) ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*RunRecord
	for _, r := range s.records {
		if r.StartedAt.Before(since) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sortRecords(out)
	return out, nil
}

// Prune drops records started before the cut-off and returns the count
// removed.
func (s *MemoryStore) Prune(olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if r.StartedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func sortRecords(records []*RunRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
}
