package scheduler

import (
	"testing"
	"time"

	"github.com/rpaflow/fleetcore/pkg/models"
)

func TestDependencyTrackerSatisfied(t *testing.T) {
	tracker := NewDependencyTracker()
	now := time.Now()

	config := &models.DependencyConfig{
		DependsOn:  []string{"a", "b"},
		RequireAll: true,
	}
	if tracker.Satisfied(config) {
		t.Error("No completions recorded, require_all should not be satisfied")
	}

	tracker.Complete("a", true, now)
	if tracker.Satisfied(config) {
		t.Error("Only one of two upstreams completed, require_all should not be satisfied")
	}

	tracker.Complete("b", false, now)
	if !tracker.Satisfied(config) {
		t.Error("Both upstreams completed, require_all should be satisfied")
	}

	config.SuccessOnly = true
	if tracker.Satisfied(config) {
		t.Error("Upstream b failed, success_only should not be satisfied")
	}

	tracker.Complete("b", true, now)
	if !tracker.Satisfied(config) {
		t.Error("Both upstreams succeeded, success_only should be satisfied")
	}
}

func TestDependencyTrackerAnyMode(t *testing.T) {
	tracker := NewDependencyTracker()
	config := &models.DependencyConfig{DependsOn: []string{"a", "b"}}

	if tracker.Satisfied(config) {
		t.Error("Nothing completed, should not be satisfied")
	}
	tracker.Complete("b", true, time.Now())
	if !tracker.Satisfied(config) {
		t.Error("One upstream completed, any-mode should be satisfied")
	}

	tracker.Reset("b")
	if tracker.Satisfied(config) {
		t.Error("After reset the completion should be forgotten")
	}
}

func TestDependencyTrackerEmptyConfig(t *testing.T) {
	tracker := NewDependencyTracker()
	if !tracker.Satisfied(nil) {
		t.Error("Nil config is always satisfied")
	}
	if !tracker.Satisfied(&models.DependencyConfig{}) {
		t.Error("Empty depends_on is always satisfied")
	}
}

func TestValidateDependencyGraph(t *testing.T) {
	ok, cycle := ValidateDependencyGraph(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": nil,
	})
	if !ok {
		t.Errorf("Acyclic graph reported a cycle: %v", cycle)
	}

	ok, cycle = ValidateDependencyGraph(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	})
	if ok {
		t.Fatal("Cycle a->b->c->a not detected")
	}
	if len(cycle) != 4 || cycle[0] != cycle[len(cycle)-1] {
		t.Errorf("Cycle path should close on its starting node, got %v", cycle)
	}
}

func TestValidateDependencyGraphSelfLoop(t *testing.T) {
	ok, cycle := ValidateDependencyGraph(map[string][]string{"a": {"a"}})
	if ok {
		t.Fatal("Self-loop not detected")
	}
	if len(cycle) != 2 || cycle[0] != "a" || cycle[1] != "a" {
		t.Errorf("Expected cycle [a a], got %v", cycle)
	}
}
