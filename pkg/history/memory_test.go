package history

import (
	"testing"
	"time"
)

func record(id, scheduleID string, startedAt time.Time, success bool) *RunRecord {
	return &RunRecord{
		ID:         id,
		ScheduleID: scheduleID,
		StartedAt:  startedAt,
		Duration:   time.Second,
		Success:    success,
	}
}

func TestMemoryStoreListOrdering(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()

	// Appended out of order; listings come back oldest first.
	for _, r := range []*RunRecord{
		record("r2", "s1", now.Add(-1*time.Hour), true),
		record("r1", "s1", now.Add(-2*time.Hour), false),
		record("r3", "s2", now.Add(-30*time.Minute), true),
	} {
		if err := store.Append(r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := store.ListBySchedule("s1", time.Time{})
	if err != nil {
		t.Fatalf("ListBySchedule failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r1" || got[1].ID != "r2" {
		t.Errorf("Expected [r1 r2] oldest first, got %+v", got)
	}

	all, err := store.ListAll(time.Time{})
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(all) != 3 || all[2].ID != "r3" {
		t.Errorf("Expected 3 records with r3 newest, got %+v", all)
	}

	// The since filter cuts old records.
	recent, err := store.ListBySchedule("s1", now.Add(-90*time.Minute))
	if err != nil {
		t.Fatalf("ListBySchedule failed: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "r2" {
		t.Errorf("Expected only r2 within 90m, got %+v", recent)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	original := record("r1", "s1", time.Now(), true)
	if err := store.Append(original); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Mutating the caller's record or a listed record must not change
	// the stored data.
	original.Success = false
	got, _ := store.ListAll(time.Time{})
	if !got[0].Success {
		t.Error("Store must keep its own copy of appended records")
	}
	got[0].Success = false
	again, _ := store.ListAll(time.Time{})
	if !again[0].Success {
		t.Error("Listed records must be copies")
	}
}

func TestMemoryStorePrune(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.Append(record("old", "s1", now.Add(-48*time.Hour), true))
	store.Append(record("new", "s1", now.Add(-1*time.Hour), true))

	removed, err := store.Prune(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 record pruned, got %d", removed)
	}

	got, _ := store.ListAll(time.Time{})
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("Expected only the recent record, got %+v", got)
	}
}
