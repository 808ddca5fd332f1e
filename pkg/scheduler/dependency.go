package scheduler

import (
	"sync"
	"time"

	"github.com/rpaflow/fleetcore/pkg/models"
)

// completion is the last recorded outcome of one schedule.
type completion struct {
	Success bool
	At      time.Time
}

// DependencyTracker records schedule completions and answers whether a
// dependency config is currently satisfied.
type DependencyTracker struct {
	mu          sync.RWMutex
	completions map[string]completion
}

// NewDependencyTracker creates an empty tracker.
func NewDependencyTracker() *DependencyTracker {
	return &DependencyTracker{completions: make(map[string]completion)}
}

// Complete records an outcome for a schedule. Later outcomes replace
// earlier ones.
func (t *DependencyTracker) Complete(scheduleID string, success bool, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completions[scheduleID] = completion{Success: success, At: at}
}

// Satisfied reports whether the dependency config's upstreams have
// completed. RequireAll demands every upstream; otherwise one is
// enough. SuccessOnly counts only successful completions.
func (t *DependencyTracker) Satisfied(config *models.DependencyConfig) bool {
	if config == nil || len(config.DependsOn) == 0 {
		return true
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	satisfied := 0
	for _, dep := range config.DependsOn {
		c, ok := t.completions[dep]
		if !ok {
			continue
		}
		if config.SuccessOnly && !c.Success {
			continue
		}
		satisfied++
	}
	if config.RequireAll {
		return satisfied == len(config.DependsOn)
	}
	return satisfied > 0
}

// Reset forgets a schedule's completion record.
func (t *DependencyTracker) Reset(scheduleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.completions, scheduleID)
}

// ValidateDependencyGraph checks the depends-on graph for cycles. On
// failure it returns false and one offending cycle path, e.g.
// ["a", "b", "a"].
func ValidateDependencyGraph(graph map[string][]string) (bool, []string) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(graph))

	var path []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		state[node] = visiting
		path = append(path, node)

		for _, dep := range graph[node] {
			switch state[dep] {
			case visiting:
				// Cut the path down to the loop and close it.
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), dep)
				return false
			case unvisited:
				if !visit(dep) {
					return false
				}
			}
		}

		path = path[:len(path)-1]
		state[node] = done
		return true
	}

	for node := range graph {
		if state[node] == unvisited {
			if !visit(node) {
				return false, cycle
			}
		}
	}
	return true, nil
}
