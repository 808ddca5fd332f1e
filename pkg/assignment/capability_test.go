package assignment

import (
	"testing"

	"github.com/rpaflow/fleetcore/pkg/models"
)

func TestVersionSatisfies(t *testing.T) {
	tests := []struct {
		installed  string
		constraint string
		want       bool
	}{
		{"7.5", ">=7.0", true},
		{"7.5", ">=7.5", true},
		{"7.4", ">=7.5", false},
		{"8.0", ">7.5", true},
		{"7.5", ">7.5", false},
		{"7.5", "<=7.5", true},
		{"7.6", "<=7.5", false},
		{"7.4", "<7.5", true},
		{"7.5", "<7.5", false},
		{"7.5", "7.5", true},
		{"7.5", "7.4", false},
		{"1", "1.0", true},
		{"10.2", ">=9.9", true},
		{"2.10", ">2.9", true},
	}

	for _, tt := range tests {
		if got := VersionSatisfies(tt.installed, tt.constraint); got != tt.want {
			t.Errorf("VersionSatisfies(%q, %q) = %v, want %v", tt.installed, tt.constraint, got, tt.want)
		}
	}
}

func TestCanRobotSatisfyJobResources(t *testing.T) {
	robot := &models.RobotInfo{
		ID:                "r1",
		Name:              "r1",
		Status:            models.RobotStatusAvailable,
		MaxConcurrentJobs: 2,
		Capabilities: map[string]models.Capability{
			"memory_mb": {Type: models.CapabilityTypeResource, Name: "memory_mb", Value: 8192},
			"cpu_cores": {Type: models.CapabilityTypeResource, Name: "cpu_cores", Value: 4},
		},
	}

	if ok, reason := CanRobotSatisfyJob(robot, &models.JobRequirements{MinMemoryMB: 4096, MinCPUCores: 2}); !ok {
		t.Errorf("Robot should satisfy resource minimums: %s", reason)
	}
	if ok, _ := CanRobotSatisfyJob(robot, &models.JobRequirements{MinMemoryMB: 16384}); ok {
		t.Error("Robot should fail the memory minimum")
	}
	if ok, _ := CanRobotSatisfyJob(robot, &models.JobRequirements{MinCPUCores: 8}); ok {
		t.Error("Robot should fail the CPU minimum")
	}
}

func TestCanRobotSatisfyJobVersionConstraint(t *testing.T) {
	robot := &models.RobotInfo{
		ID:                "r1",
		Name:              "r1",
		Status:            models.RobotStatusAvailable,
		MaxConcurrentJobs: 2,
		Capabilities: map[string]models.Capability{
			"sap": {Type: models.CapabilityTypeApplication, Name: "sap", Version: "7.5"},
		},
	}

	req := &models.JobRequirements{
		RequiredCapabilities: []models.CapabilityRequirement{
			{Type: models.CapabilityTypeApplication, Name: "sap", Version: ">=7.0"},
		},
	}
	if ok, reason := CanRobotSatisfyJob(robot, req); !ok {
		t.Errorf("Version 7.5 should satisfy >=7.0: %s", reason)
	}

	req.RequiredCapabilities[0].Version = ">=8.0"
	if ok, _ := CanRobotSatisfyJob(robot, req); ok {
		t.Error("Version 7.5 should not satisfy >=8.0")
	}

	// Type must match exactly, not just the name.
	req.RequiredCapabilities[0] = models.CapabilityRequirement{
		Type: models.CapabilityTypeFeature, Name: "sap",
	}
	if ok, _ := CanRobotSatisfyJob(robot, req); ok {
		t.Error("Capability lookup must match type and name")
	}
}
