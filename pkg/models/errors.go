package models

import (
	"fmt"
	"strings"
)

// NoCapableRobotError is returned when zero robots survive hard
// filtering for a job. It carries the unmet capability names so the
// submission layer can report what the fleet is missing.
type NoCapableRobotError struct {
	WorkflowID          string
	MissingCapabilities []string
}

func (e *NoCapableRobotError) Error() string {
	if len(e.MissingCapabilities) == 0 {
		return fmt.Sprintf("no capable robot for workflow %s", e.WorkflowID)
	}
	return fmt.Sprintf("no capable robot for workflow %s (unmet: %s)",
		e.WorkflowID, strings.Join(e.MissingCapabilities, ", "))
}

// SessionAffinityError is returned when a SESSION-pinned robot is
// unavailable, or when HARD affinity exhausts its queue attempts.
// It is never auto-retried by this core.
type SessionAffinityError struct {
	WorkflowID string
	RobotID    string
	Reason     string
}

func (e *SessionAffinityError) Error() string {
	if e.RobotID != "" {
		return fmt.Sprintf("session affinity failed for workflow %s on robot %s: %s",
			e.WorkflowID, e.RobotID, e.Reason)
	}
	return fmt.Sprintf("session affinity failed for workflow %s: %s", e.WorkflowID, e.Reason)
}
