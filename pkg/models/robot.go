package models

import (
	"time"
)

// RobotStatus represents the reported status of a robot
type RobotStatus string

const (
	RobotStatusAvailable   RobotStatus = "available"
	RobotStatusBusy        RobotStatus = "busy"
	RobotStatusOffline     RobotStatus = "offline"
	RobotStatusMaintenance RobotStatus = "maintenance"
)

// CapabilityType classifies what kind of capability a robot declares
type CapabilityType string

const (
	CapabilityTypeApplication CapabilityType = "application" // installed automation target, e.g. "sap", "chrome"
	CapabilityTypeFeature     CapabilityType = "feature"     // runtime feature, e.g. "ocr", "browser_automation"
	CapabilityTypeResource    CapabilityType = "resource"    // numeric resource, e.g. "memory_mb", "cpu_cores"
)

// Capability is one entry in a robot's capability map.
// Application and feature capabilities carry a Version; resource
// capabilities carry a numeric Value.
type Capability struct {
	Type    CapabilityType `json:"type"`
	Name    string         `json:"name"`
	Version string         `json:"version,omitempty"`
	Value   float64        `json:"value,omitempty"`
}

// RobotInfo is a point-in-time snapshot of one worker's capacity and
// capabilities. Snapshots are supplied fresh on every assignment call
// and are never mutated by the engine.
type RobotInfo struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	Status            RobotStatus           `json:"status"`
	CPUPercent        float64               `json:"cpu_percent"`
	MemoryPercent     float64               `json:"memory_percent"`
	CurrentJobs       int                   `json:"current_jobs"`
	MaxConcurrentJobs int                   `json:"max_concurrent_jobs"`
	Tags              []string              `json:"tags,omitempty"`
	Environment       string                `json:"environment,omitempty"` // "production", "staging", "development"
	Capabilities      map[string]Capability `json:"capabilities,omitempty"`
	NetworkZone       string                `json:"network_zone,omitempty"`
	LastHeartbeat     time.Time             `json:"last_heartbeat,omitempty"`
}

// IsAvailable reports whether the robot can accept another job right now.
func (r *RobotInfo) IsAvailable() bool {
	if r.Status != RobotStatusAvailable {
		return false
	}
	if r.MaxConcurrentJobs <= 0 {
		return false
	}
	return r.CurrentJobs < r.MaxConcurrentJobs
}

// Utilization returns the job-slot utilization in [0,1].
func (r *RobotInfo) Utilization() float64 {
	if r.MaxConcurrentJobs <= 0 {
		return 1.0
	}
	return float64(r.CurrentJobs) / float64(r.MaxConcurrentJobs)
}

// HasTag reports whether the robot carries the given tag.
func (r *RobotInfo) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CapabilityRequirement is one hard capability constraint of a job.
// Version is an optional constraint string: ">=1.2", ">1.0", "<=2",
// "<3.1" or a bare version for an exact match.
type CapabilityRequirement struct {
	Type    CapabilityType `json:"type"`
	Name    string         `json:"name"`
	Version string         `json:"version,omitempty"`
}

// JobRequirements describes what a job needs from the fleet.
type JobRequirements struct {
	WorkflowID           string                  `json:"workflow_id"`
	WorkflowName         string                  `json:"workflow_name,omitempty"`
	RequiredTags         []string                `json:"required_tags,omitempty"`
	PreferredTags        []string                `json:"preferred_tags,omitempty"`
	RequiredCapabilities []CapabilityRequirement `json:"required_capabilities,omitempty"`
	MinMemoryMB          float64                 `json:"min_memory_mb,omitempty"`
	MinCPUCores          float64                 `json:"min_cpu_cores,omitempty"`
	Environment          string                  `json:"environment,omitempty"` // empty or "default" means no gate
	RequiresState        bool                    `json:"requires_state"`
	Priority             int                     `json:"priority,omitempty"`
}

// AlternativeRobot is a runner-up entry kept for observability.
type AlternativeRobot struct {
	RobotID string  `json:"robot_id"`
	Score   float64 `json:"score"`
}

// AssignmentResult is the outcome of one assignment decision.
// The Breakdown values always sum to Score.
type AssignmentResult struct {
	RobotID      string             `json:"robot_id"`
	Score        float64            `json:"score"`
	Breakdown    map[string]float64 `json:"breakdown"`
	Alternatives []AlternativeRobot `json:"alternatives,omitempty"`
	DecisionTime time.Duration      `json:"decision_time"`
}
