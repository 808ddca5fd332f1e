package telemetry

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/rpaflow/fleetcore/pkg/models"
)

// Collector samples host load and builds RobotInfo snapshots for the
// local robot. The assignment engine never caches these; callers take
// a fresh snapshot per assignment.
type Collector struct {
	robotID     string
	environment string
	zone        string
	tags        []string
	maxJobs     int
}

// NewCollector creates a collector for the local robot.
func NewCollector(robotID, environment, zone string, tags []string, maxJobs int) *Collector {
	if robotID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "robot-unknown"
		}
		robotID = hostname
	}
	if maxJobs <= 0 {
		maxJobs = 1
	}
	return &Collector{
		robotID:     robotID,
		environment: environment,
		zone:        zone,
		tags:        tags,
		maxJobs:     maxJobs,
	}
}

// Snapshot samples CPU and memory and returns a RobotInfo with the
// base resource capabilities filled in. currentJobs is supplied by the
// caller, which owns execution tracking.
func (c *Collector) Snapshot(currentJobs int) (*models.RobotInfo, error) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		return nil, fmt.Errorf("failed to sample cpu: %w", err)
	}

	vmem, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to sample memory: %w", err)
	}

	cores, err := cpu.Counts(true)
	if err != nil || cores <= 0 {
		cores = 1
	}

	info := &models.RobotInfo{
		ID:                c.robotID,
		Name:              c.robotID,
		Status:            models.RobotStatusAvailable,
		CPUPercent:        cpuPercent[0],
		MemoryPercent:     vmem.UsedPercent,
		CurrentJobs:       currentJobs,
		MaxConcurrentJobs: c.maxJobs,
		Environment:       c.environment,
		NetworkZone:       c.zone,
		Tags:              append([]string{}, c.tags...),
		Capabilities: map[string]models.Capability{
			"memory_mb": {Type: models.CapabilityTypeResource, Name: "memory_mb", Value: float64(vmem.Total / (1024 * 1024))},
			"cpu_cores": {Type: models.CapabilityTypeResource, Name: "cpu_cores", Value: float64(cores)},
		},
		LastHeartbeat: time.Now(),
	}
	return info, nil
}
