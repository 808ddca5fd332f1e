package affinity

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rpaflow/fleetcore/pkg/models"
)

// MigrationHandler transfers one unit of state between robots. The
// embedding application registers one per state type it knows how to
// move (e.g. copying browser cookies).
type MigrationHandler func(ctx context.Context, sourceRobot, targetRobot string, state *models.RobotState) error

// RegisterMigrationHandler installs the handler for a state type,
// replacing any previous one.
func (m *Manager) RegisterMigrationHandler(stateType models.StateType, handler MigrationHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[stateType] = handler
}

// MigrateState moves a workflow's state from one robot to another,
// invoking the registered handler per item. types narrows the
// migration to specific state types; nil migrates everything
// migratable. Individual failures do not abort the remaining items;
// the counts of migrated and failed items are returned.
func (m *Manager) MigrateState(ctx context.Context, workflowID, sourceRobot, targetRobot string, types []models.StateType) (migrated, failed int, err error) {
	now := time.Now()

	typeSet := make(map[models.StateType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	// Snapshot candidates and handlers under the lock, run handlers
	// outside it: handlers may block on network I/O.
	m.mu.RLock()
	var candidates []*models.RobotState
	for _, st := range m.states[workflowID][sourceRobot] {
		if st.IsExpired(now) || !st.Migratable {
			continue
		}
		if len(typeSet) > 0 && !typeSet[st.Type] {
			continue
		}
		cp := *st
		candidates = append(candidates, &cp)
	}
	handlers := make(map[models.StateType]MigrationHandler, len(m.handlers))
	for t, h := range m.handlers {
		handlers[t] = h
	}
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return 0, 0, fmt.Errorf("no migratable state for workflow %s on robot %s", workflowID, sourceRobot)
	}

	for _, st := range candidates {
		handler, ok := handlers[st.Type]
		if !ok {
			log.Printf("[Affinity] No migration handler for state type %s (state %s)", st.Type, st.ID)
			failed++
			continue
		}
		if herr := handler(ctx, sourceRobot, targetRobot, st); herr != nil {
			log.Printf("[Affinity] Migration of state %s (%s) failed: %v", st.ID, st.Type, herr)
			failed++
			continue
		}

		// Re-register on the target and drop from the source in one
		// critical section so readers never see the state on both.
		m.mu.Lock()
		m.removeLocked(sourceRobot, workflowID, map[string]bool{st.ID: true})
		moved := *st
		moved.RobotID = targetRobot
		moved.LastAccessedAt = time.Now()
		m.registerLocked(&moved)
		m.mu.Unlock()
		migrated++
	}

	log.Printf("[Affinity] Migration %s: %s -> %s (migrated=%d, failed=%d)",
		workflowID, sourceRobot, targetRobot, migrated, failed)
	return migrated, failed, nil
}
