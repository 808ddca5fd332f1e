package affinity

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpaflow/fleetcore/pkg/models"
	"github.com/rpaflow/fleetcore/pkg/retry"
)

// RobotScorer ranks candidate robots when affinity gives no preference.
// Higher is better.
type RobotScorer func(robot *models.RobotInfo) float64

// Config holds affinity manager configuration
type Config struct {
	SweepInterval      time.Duration // background expiry sweep cadence
	DefaultStateTTL    time.Duration // TTL applied when RegisterState gets none
	DefaultIdleTimeout time.Duration // session idle timeout when none given
	MaxQueueAttempts   int           // HARD affinity queue-and-retry cap
	Backoff            retry.Config  // backoff schedule for queued HARD jobs
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		SweepInterval:      30 * time.Second,
		DefaultStateTTL:    time.Hour,
		DefaultIdleTimeout: 30 * time.Minute,
		MaxQueueAttempts:   5,
		Backoff:            retry.DefaultConfig(),
	}
}

// Manager tracks which robots hold recoverable execution state per
// workflow and which robot a session chain is pinned to. All mutable
// registries are guarded by one mutex; readers never observe a
// half-updated record.
type Manager struct {
	mu sync.RWMutex

	// workflow id -> robot id -> states held by that robot
	states   map[string]map[string][]*models.RobotState
	sessions map[string]*models.WorkflowSession // workflow id -> active session
	attempts map[string]int                     // job id -> HARD queue attempts
	handlers map[models.StateType]MigrationHandler

	config Config
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewManager creates a state affinity manager. Call Start to run the
// background expiry sweep.
func NewManager(config Config) *Manager {
	if config.SweepInterval <= 0 {
		config.SweepInterval = 30 * time.Second
	}
	if config.MaxQueueAttempts <= 0 {
		config.MaxQueueAttempts = 5
	}
	if config.DefaultStateTTL <= 0 {
		config.DefaultStateTTL = time.Hour
	}
	if config.DefaultIdleTimeout <= 0 {
		config.DefaultIdleTimeout = 30 * time.Minute
	}
	if config.Backoff.MaxRetries == 0 {
		config.Backoff = retry.DefaultConfig()
	}
	return &Manager{
		states:   make(map[string]map[string][]*models.RobotState),
		sessions: make(map[string]*models.WorkflowSession),
		attempts: make(map[string]int),
		handlers: make(map[models.StateType]MigrationHandler),
		config:   config,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background expiry sweep loop.
func (m *Manager) Start() {
	log.Printf("[Affinity] Expiry sweep started (interval: %v)", m.config.SweepInterval)
	go m.sweepLoop()
}

// Stop terminates the sweep loop.
func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.doneCh
	log.Println("[Affinity] Stopped")
}

func (m *Manager) sweepLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			states, sessions := m.CleanupExpired()
			if states > 0 || sessions > 0 {
				log.Printf("[Affinity] Sweep reclaimed %d states, %d sessions", states, sessions)
			}
		case <-m.stopCh:
			return
		}
	}
}

// CleanupExpired removes expired state and session records. Expired
// entries are already invisible to queries; this only reclaims memory.
func (m *Manager) CleanupExpired() (states, sessions int) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for wf, byRobot := range m.states {
		for robotID, list := range byRobot {
			kept := list[:0]
			for _, st := range list {
				if st.IsExpired(now) {
					states++
					continue
				}
				kept = append(kept, st)
			}
			if len(kept) == 0 {
				delete(byRobot, robotID)
			} else {
				byRobot[robotID] = kept
			}
		}
		if len(byRobot) == 0 {
			delete(m.states, wf)
		}
	}

	for wf, sess := range m.sessions {
		if sess.IsExpired(now) {
			delete(m.sessions, wf)
			sessions++
		}
	}
	return states, sessions
}

// RegisterState records that a robot holds recoverable state for a
// workflow. A zero ttl uses the configured default.
func (m *Manager) RegisterState(robotID, workflowID string, stateType models.StateType, sizeBytes int64, migratable bool, ttl time.Duration) *models.RobotState {
	if ttl <= 0 {
		ttl = m.config.DefaultStateTTL
	}
	now := time.Now()
	state := &models.RobotState{
		ID:             uuid.New().String(),
		RobotID:        robotID,
		WorkflowID:     workflowID,
		Type:           stateType,
		CreatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(ttl),
		SizeBytes:      sizeBytes,
		Migratable:     migratable,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerLocked(state)
	return state
}

func (m *Manager) registerLocked(state *models.RobotState) {
	byRobot, ok := m.states[state.WorkflowID]
	if !ok {
		byRobot = make(map[string][]*models.RobotState)
		m.states[state.WorkflowID] = byRobot
	}
	byRobot[state.RobotID] = append(byRobot[state.RobotID], state)
}

// RemoveState drops all state a robot holds for a workflow.
func (m *Manager) RemoveState(robotID, workflowID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(robotID, workflowID, nil)
}

// removeLocked removes states for robot+workflow, optionally filtered
// by state id set; returns the number removed.
func (m *Manager) removeLocked(robotID, workflowID string, ids map[string]bool) int {
	byRobot, ok := m.states[workflowID]
	if !ok {
		return 0
	}
	list, ok := byRobot[robotID]
	if !ok {
		return 0
	}

	removed := 0
	kept := list[:0]
	for _, st := range list {
		if ids == nil || ids[st.ID] {
			removed++
			continue
		}
		kept = append(kept, st)
	}
	if len(kept) == 0 {
		delete(byRobot, robotID)
	} else {
		byRobot[robotID] = kept
	}
	if len(byRobot) == 0 {
		delete(m.states, workflowID)
	}
	return removed
}

// HasValidState reports whether a robot currently holds unexpired state
// for a workflow. Implements the engine's AffinityChecker.
func (m *Manager) HasValidState(workflowID, robotID string) bool {
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, st := range m.states[workflowID][robotID] {
		if !st.IsExpired(now) {
			return true
		}
	}
	return false
}

// StatesFor returns copies of the live (unexpired) states a robot holds
// for a workflow.
func (m *Manager) StatesFor(workflowID, robotID string) []*models.RobotState {
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.RobotState
	for _, st := range m.states[workflowID][robotID] {
		if st.IsExpired(now) {
			continue
		}
		cp := *st
		out = append(out, &cp)
	}
	return out
}

// stateHoldersLocked returns robot ids holding live state for the
// workflow. Caller must hold at least a read lock.
func (m *Manager) stateHoldersLocked(workflowID string, now time.Time) map[string]bool {
	holders := make(map[string]bool)
	for robotID, list := range m.states[workflowID] {
		for _, st := range list {
			if !st.IsExpired(now) {
				holders[robotID] = true
				break
			}
		}
	}
	return holders
}

// migratableHolderLocked returns a robot id holding live migratable
// state for the workflow, excluding the given set.
func (m *Manager) migratableHolderLocked(workflowID string, exclude map[string]bool, now time.Time) string {
	for robotID, list := range m.states[workflowID] {
		if exclude[robotID] {
			continue
		}
		for _, st := range list {
			if !st.IsExpired(now) && st.Migratable {
				return robotID
			}
		}
	}
	return ""
}

// SelectRobot applies one affinity level's decision tree over the
// supplied robot snapshots. jobID is required for HARD affinity so
// queue attempts can be tracked per job.
func (m *Manager) SelectRobot(workflowID string, level models.AffinityLevel, robots []*models.RobotInfo, jobID string, scorer RobotScorer) (*models.AffinityDecision, error) {
	switch level {
	case models.AffinityNone, "":
		return m.selectNone(workflowID, robots, scorer)
	case models.AffinitySoft:
		return m.selectSoft(workflowID, robots, scorer)
	case models.AffinityHard:
		return m.selectHard(workflowID, robots, jobID, scorer)
	case models.AffinitySession:
		return m.selectSession(workflowID, robots, scorer)
	default:
		return nil, fmt.Errorf("unknown affinity level: %s", level)
	}
}

func (m *Manager) selectNone(workflowID string, robots []*models.RobotInfo, scorer RobotScorer) (*models.AffinityDecision, error) {
	best := bestAvailable(robots, nil, scorer)
	if best == nil {
		return nil, fmt.Errorf("no available robots for workflow %s", workflowID)
	}
	return &models.AffinityDecision{
		RobotID: best.ID,
		Level:   models.AffinityNone,
		Reason:  "state ignored",
	}, nil
}

func (m *Manager) selectSoft(workflowID string, robots []*models.RobotInfo, scorer RobotScorer) (*models.AffinityDecision, error) {
	now := time.Now()

	m.mu.RLock()
	holders := m.stateHoldersLocked(workflowID, now)
	m.mu.RUnlock()

	if best := bestAvailable(robots, holders, scorer); best != nil {
		return &models.AffinityDecision{
			RobotID: best.ID,
			Level:   models.AffinitySoft,
			Reason:  "robot holds valid state",
		}, nil
	}

	// No available robot has state. Fall back to any available robot,
	// flagging a migration opportunity when an unavailable holder's
	// state could move.
	fallback := bestAvailable(robots, nil, scorer)
	if fallback == nil {
		return nil, fmt.Errorf("no available robots for workflow %s", workflowID)
	}

	available := make(map[string]bool, len(robots))
	for _, r := range robots {
		if r.IsAvailable() {
			available[r.ID] = true
		}
	}

	m.mu.RLock()
	source := m.migratableHolderLocked(workflowID, available, now)
	m.mu.RUnlock()

	decision := &models.AffinityDecision{
		RobotID: fallback.ID,
		Level:   models.AffinitySoft,
		Reason:  "no available robot holds state",
	}
	if source != "" {
		decision.MigrationRequired = true
		decision.SourceRobotID = source
		decision.Reason = fmt.Sprintf("migratable state held by unavailable robot %s", source)
	}
	return decision, nil
}

func (m *Manager) selectHard(workflowID string, robots []*models.RobotInfo, jobID string, scorer RobotScorer) (*models.AffinityDecision, error) {
	now := time.Now()

	m.mu.Lock()
	holders := m.stateHoldersLocked(workflowID, now)

	if len(holders) == 0 {
		// First-run exception: a workflow with no prior state anywhere
		// may start on any available robot.
		delete(m.attempts, jobID)
		m.mu.Unlock()

		best := bestAvailable(robots, nil, scorer)
		if best == nil {
			return nil, fmt.Errorf("no available robots for workflow %s", workflowID)
		}
		return &models.AffinityDecision{
			RobotID: best.ID,
			Level:   models.AffinityHard,
			Reason:  "first run, no prior state",
		}, nil
	}

	// State exists somewhere; only its holders qualify.
	var pick *models.RobotInfo
	for _, r := range robots {
		if r.IsAvailable() && holders[r.ID] {
			if pick == nil || (scorer != nil && scorer(r) > scorer(pick)) {
				pick = r
			}
		}
	}
	if pick != nil {
		delete(m.attempts, jobID)
		m.mu.Unlock()
		return &models.AffinityDecision{
			RobotID: pick.ID,
			Level:   models.AffinityHard,
			Reason:  "robot holds required state",
		}, nil
	}

	// All holders unavailable: queue with exponential backoff per job.
	m.attempts[jobID]++
	attempt := m.attempts[jobID]
	m.mu.Unlock()

	if attempt > m.config.MaxQueueAttempts {
		m.mu.Lock()
		delete(m.attempts, jobID)
		m.mu.Unlock()
		return nil, &models.SessionAffinityError{
			WorkflowID: workflowID,
			Reason:     fmt.Sprintf("state holders unavailable after %d queue attempts", m.config.MaxQueueAttempts),
		}
	}

	wait := m.config.Backoff.BackoffFor(attempt - 1)
	log.Printf("[Affinity] Job %s queued for workflow %s (attempt %d/%d, retry in %v)",
		jobID, workflowID, attempt, m.config.MaxQueueAttempts, wait)
	return &models.AffinityDecision{
		Level:      models.AffinityHard,
		Requeue:    true,
		RetryAfter: wait,
		Reason:     "state holders unavailable, queued for retry",
	}, nil
}

func (m *Manager) selectSession(workflowID string, robots []*models.RobotInfo, scorer RobotScorer) (*models.AffinityDecision, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[workflowID]
	if ok && sess.IsExpired(now) {
		delete(m.sessions, workflowID)
		ok = false
	}

	if ok {
		// Sessions are never silently migrated.
		for _, r := range robots {
			if r.ID == sess.RobotID && r.IsAvailable() {
				sess.LastActivityAt = now
				sess.JobCount++
				return &models.AffinityDecision{
					RobotID: sess.RobotID,
					Level:   models.AffinitySession,
					Reason:  fmt.Sprintf("pinned by session %s", sess.ID),
				}, nil
			}
		}
		return nil, &models.SessionAffinityError{
			WorkflowID: workflowID,
			RobotID:    sess.RobotID,
			Reason:     "session-pinned robot unavailable",
		}
	}

	// No session yet: start one on the best candidate, preferring
	// robots that already hold state.
	holders := m.stateHoldersLocked(workflowID, now)
	pick := bestAvailable(robots, holders, scorer)
	if pick == nil {
		pick = bestAvailable(robots, nil, scorer)
	}
	if pick == nil {
		return nil, &models.SessionAffinityError{
			WorkflowID: workflowID,
			Reason:     "no available robots to start session",
		}
	}

	sess = &models.WorkflowSession{
		ID:             uuid.New().String(),
		WorkflowID:     workflowID,
		RobotID:        pick.ID,
		StartedAt:      now,
		LastActivityAt: now,
		JobCount:       1,
		IdleTimeout:    m.config.DefaultIdleTimeout,
	}
	m.sessions[workflowID] = sess

	log.Printf("[Affinity] Session %s started for workflow %s on robot %s", sess.ID, workflowID, pick.ID)
	return &models.AffinityDecision{
		RobotID: pick.ID,
		Level:   models.AffinitySession,
		Reason:  fmt.Sprintf("session %s started", sess.ID),
	}, nil
}

// Session returns a copy of the active session for a workflow, if any.
func (m *Manager) Session(workflowID string) (*models.WorkflowSession, bool) {
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[workflowID]
	if !ok || sess.IsExpired(now) {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

// EndSession explicitly destroys the session for a workflow.
func (m *Manager) EndSession(workflowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[workflowID]; !ok {
		return false
	}
	delete(m.sessions, workflowID)
	return true
}

// TouchSession refreshes session activity, extending its idle window.
func (m *Manager) TouchSession(workflowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[workflowID]
	if !ok || sess.IsExpired(time.Now()) {
		return false
	}
	sess.LastActivityAt = time.Now()
	return true
}

// bestAvailable picks the best available robot, restricted to the
// holder set when given. Without a scorer the first match wins, which
// keeps decisions deterministic for a fixed input order.
func bestAvailable(robots []*models.RobotInfo, restrict map[string]bool, scorer RobotScorer) *models.RobotInfo {
	var best *models.RobotInfo
	var bestScore float64
	for _, r := range robots {
		if !r.IsAvailable() {
			continue
		}
		if restrict != nil && !restrict[r.ID] {
			continue
		}
		if scorer == nil {
			return r
		}
		s := scorer(r)
		if best == nil || s > bestScore {
			best = r
			bestScore = s
		}
	}
	return best
}
