package assignment

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rpaflow/fleetcore/pkg/models"
)

// Resource capability names checked against JobRequirements minimums.
const (
	capMemoryMB = "memory_mb"
	capCPUCores = "cpu_cores"
)

// CanRobotSatisfyJob checks every hard constraint of a job against one
// robot. The returned string is the first rejection reason, empty on
// success.
func CanRobotSatisfyJob(robot *models.RobotInfo, req *models.JobRequirements) (bool, string) {
	if !robot.IsAvailable() {
		return false, fmt.Sprintf("robot %s is not available (status=%s, jobs=%d/%d)",
			robot.Name, robot.Status, robot.CurrentJobs, robot.MaxConcurrentJobs)
	}

	for _, rc := range req.RequiredCapabilities {
		cap, ok := lookupCapability(robot, rc)
		if !ok {
			return false, fmt.Sprintf("robot %s lacks capability %s/%s", robot.Name, rc.Type, rc.Name)
		}
		if rc.Version != "" && !VersionSatisfies(cap.Version, rc.Version) {
			return false, fmt.Sprintf("robot %s capability %s version %s does not satisfy %s",
				robot.Name, rc.Name, cap.Version, rc.Version)
		}
	}

	if req.Environment != "" && req.Environment != "default" && robot.Environment != req.Environment {
		return false, fmt.Sprintf("robot %s is in environment %s, job requires %s",
			robot.Name, robot.Environment, req.Environment)
	}

	if req.MinMemoryMB > 0 {
		if mem, ok := resourceValue(robot, capMemoryMB); !ok || mem < req.MinMemoryMB {
			return false, fmt.Sprintf("robot %s does not meet minimum memory %.0f MB", robot.Name, req.MinMemoryMB)
		}
	}
	if req.MinCPUCores > 0 {
		if cores, ok := resourceValue(robot, capCPUCores); !ok || cores < req.MinCPUCores {
			return false, fmt.Sprintf("robot %s does not meet minimum CPU cores %.1f", robot.Name, req.MinCPUCores)
		}
	}

	return true, ""
}

// lookupCapability finds a capability by exact type+name match.
func lookupCapability(robot *models.RobotInfo, rc models.CapabilityRequirement) (models.Capability, bool) {
	for _, cap := range robot.Capabilities {
		if cap.Type == rc.Type && cap.Name == rc.Name {
			return cap, true
		}
	}
	return models.Capability{}, false
}

func resourceValue(robot *models.RobotInfo, name string) (float64, bool) {
	for _, cap := range robot.Capabilities {
		if cap.Type == models.CapabilityTypeResource && cap.Name == name {
			return cap.Value, true
		}
	}
	return 0, false
}

// VersionSatisfies evaluates a semver-style constraint against an
// installed version. Supported operators: >=, >, <=, <; anything else
// is an exact match.
func VersionSatisfies(installed, constraint string) bool {
	constraint = strings.TrimSpace(constraint)
	switch {
	case strings.HasPrefix(constraint, ">="):
		return compareVersions(installed, strings.TrimSpace(constraint[2:])) >= 0
	case strings.HasPrefix(constraint, "<="):
		return compareVersions(installed, strings.TrimSpace(constraint[2:])) <= 0
	case strings.HasPrefix(constraint, ">"):
		return compareVersions(installed, strings.TrimSpace(constraint[1:])) > 0
	case strings.HasPrefix(constraint, "<"):
		return compareVersions(installed, strings.TrimSpace(constraint[1:])) < 0
	default:
		return compareVersions(installed, constraint) == 0
	}
}

// compareVersions compares dotted numeric versions segment by segment.
// Missing segments count as zero; non-numeric segments fall back to
// string comparison.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		sa, sb := "0", "0"
		if i < len(as) && as[i] != "" {
			sa = as[i]
		}
		if i < len(bs) && bs[i] != "" {
			sb = bs[i]
		}

		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		if errA == nil && errB == nil {
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if sa != sb {
			if sa < sb {
				return -1
			}
			return 1
		}
	}
	return 0
}
