package affinity

import (
	"context"
	"errors"
	"testing"

	"github.com/rpaflow/fleetcore/pkg/models"
)

func TestMigrateStatePartialSuccess(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RegisterState("robot-a", "wf-1", models.StateTypeBrowserSession, 0, true, 0)
	m.RegisterState("robot-a", "wf-1", models.StateTypeFilesystem, 0, true, 0)

	m.RegisterMigrationHandler(models.StateTypeBrowserSession,
		func(ctx context.Context, source, target string, st *models.RobotState) error {
			return nil
		})
	m.RegisterMigrationHandler(models.StateTypeFilesystem,
		func(ctx context.Context, source, target string, st *models.RobotState) error {
			return errors.New("copy interrupted")
		})

	migrated, failed, err := m.MigrateState(context.Background(), "wf-1", "robot-a", "robot-b", nil)
	if err != nil {
		t.Fatalf("MigrateState failed: %v", err)
	}
	if migrated != 1 || failed != 1 {
		t.Errorf("Expected migrated=1 failed=1, got migrated=%d failed=%d", migrated, failed)
	}

	// The successful item moved; the failed one stayed put.
	if !m.HasValidState("wf-1", "robot-b") {
		t.Error("Target should hold the migrated state")
	}
	if !m.HasValidState("wf-1", "robot-a") {
		t.Error("Source should retain the state whose migration failed")
	}
	for _, st := range m.StatesFor("wf-1", "robot-a") {
		if st.Type == models.StateTypeBrowserSession {
			t.Error("Migrated state must no longer be on the source")
		}
	}
}

func TestMigrateStateMissingHandlerCountsAsFailure(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RegisterState("robot-a", "wf-1", models.StateTypeApplication, 0, true, 0)

	migrated, failed, err := m.MigrateState(context.Background(), "wf-1", "robot-a", "robot-b", nil)
	if err != nil {
		t.Fatalf("MigrateState failed: %v", err)
	}
	if migrated != 0 || failed != 1 {
		t.Errorf("Expected migrated=0 failed=1 without a handler, got migrated=%d failed=%d", migrated, failed)
	}
}

func TestMigrateStateTypeFilter(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RegisterState("robot-a", "wf-1", models.StateTypeBrowserSession, 0, true, 0)
	m.RegisterState("robot-a", "wf-1", models.StateTypeFilesystem, 0, true, 0)

	handled := 0
	handler := func(ctx context.Context, source, target string, st *models.RobotState) error {
		handled++
		return nil
	}
	m.RegisterMigrationHandler(models.StateTypeBrowserSession, handler)
	m.RegisterMigrationHandler(models.StateTypeFilesystem, handler)

	migrated, failed, err := m.MigrateState(context.Background(), "wf-1", "robot-a", "robot-b",
		[]models.StateType{models.StateTypeBrowserSession})
	if err != nil {
		t.Fatalf("MigrateState failed: %v", err)
	}
	if migrated != 1 || failed != 0 || handled != 1 {
		t.Errorf("Type filter should migrate only browser state, got migrated=%d failed=%d handled=%d",
			migrated, failed, handled)
	}
}

func TestMigrateStateSkipsNonMigratable(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.RegisterState("robot-a", "wf-1", models.StateTypeFilesystem, 0, false, 0)

	if _, _, err := m.MigrateState(context.Background(), "wf-1", "robot-a", "robot-b", nil); err == nil {
		t.Error("Migration with no migratable candidates should error")
	}
}
