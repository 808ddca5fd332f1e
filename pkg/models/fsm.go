package models

import (
	"fmt"
)

// validScheduleTransitions maps from-status to allowed to-statuses.
// Status transitions are the only legal way to pause, resume or
// disable a schedule.
var validScheduleTransitions = map[ScheduleStatus]map[ScheduleStatus]bool{
	ScheduleStatusActive: {
		ScheduleStatusPaused:   true, // Active → Paused (operator pauses)
		ScheduleStatusDisabled: true, // Active → Disabled (operator removes from rotation)
		ScheduleStatusError:    true, // Active → Error (consecutive-failure limit reached)
		ScheduleStatusExpired:  true, // Active → Expired (one-time schedule fired)
	},
	ScheduleStatusPaused: {
		ScheduleStatusActive:   true, // Paused → Active (operator resumes)
		ScheduleStatusDisabled: true, // Paused → Disabled
	},
	ScheduleStatusError: {
		ScheduleStatusActive:   true, // Error → Active (operator resets after fixing the cause)
		ScheduleStatusDisabled: true, // Error → Disabled
	},
	ScheduleStatusDisabled: {
		ScheduleStatusActive: true, // Disabled → Active (re-enable)
	},
	// Terminal state
	ScheduleStatusExpired: {},
}

// ValidateScheduleTransition checks whether a schedule status change is legal.
func ValidateScheduleTransition(from, to ScheduleStatus) error {
	allowed, exists := validScheduleTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid schedule transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalScheduleStatus returns true if no further transitions are allowed.
func IsTerminalScheduleStatus(status ScheduleStatus) bool {
	return status == ScheduleStatusExpired
}

// IsSchedulable returns true if the schedule may be considered for firing.
func IsSchedulable(status ScheduleStatus) bool {
	return status == ScheduleStatusActive
}
