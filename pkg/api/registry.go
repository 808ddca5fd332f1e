package api

import (
	"sort"
	"sync"
	"time"

	"github.com/rpaflow/fleetcore/pkg/models"
)

// RobotRegistry tracks robot presence from heartbeats. Snapshots read
// from here feed the assignment engine; robots past the heartbeat
// timeout are reported offline.
type RobotRegistry struct {
	mu      sync.RWMutex
	robots  map[string]*models.RobotInfo
	timeout time.Duration
}

// NewRobotRegistry creates a registry with the given heartbeat timeout.
func NewRobotRegistry(timeout time.Duration) *RobotRegistry {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &RobotRegistry{
		robots:  make(map[string]*models.RobotInfo),
		timeout: timeout,
	}
}

// Update stores the latest snapshot for a robot.
func (r *RobotRegistry) Update(info *models.RobotInfo) {
	cp := *info
	cp.LastHeartbeat = time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.robots[cp.ID] = &cp
}

// Get returns a copy of one robot's latest snapshot.
func (r *RobotRegistry) Get(id string) (*models.RobotInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.robots[id]
	if !ok {
		return nil, false
	}
	cp := *info
	r.applyTimeout(&cp)
	return &cp, true
}

// Remove deregisters a robot.
func (r *RobotRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.robots[id]
	delete(r.robots, id)
	return ok
}

// Snapshot returns copies of all robots, sorted by id for stable
// assignment input order. Stale robots are marked offline.
func (r *RobotRegistry) Snapshot() []*models.RobotInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.RobotInfo, 0, len(r.robots))
	for _, info := range r.robots {
		cp := *info
		r.applyTimeout(&cp)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *RobotRegistry) applyTimeout(info *models.RobotInfo) {
	if time.Since(info.LastHeartbeat) > r.timeout {
		info.Status = models.RobotStatusOffline
	}
}
