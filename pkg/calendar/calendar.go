package calendar

import (
	"fmt"
	"sync"
	"time"
)

// DayHours is the working window for one weekday, as minutes from
// midnight. A zero-value entry means the day is non-working.
type DayHours struct {
	StartMinute int `json:"start_minute" yaml:"start_minute"`
	EndMinute   int `json:"end_minute" yaml:"end_minute"`
}

// BlackoutPeriod is an explicit window during which execution is
// forbidden regardless of working hours. Recurring periods repeat
// annually (month/day boundaries of Start/End). An empty WorkflowIDs
// list applies the blackout to every workflow.
type BlackoutPeriod struct {
	Name        string    `json:"name" yaml:"name"`
	Start       time.Time `json:"start" yaml:"start"`
	End         time.Time `json:"end" yaml:"end"`
	Recurring   bool      `json:"recurring" yaml:"recurring"`
	WorkflowIDs []string  `json:"workflow_ids,omitempty" yaml:"workflow_ids,omitempty"`
}

// BusinessCalendar answers whether a point in time is a working moment
// for a workflow. Holiday dates are computed per year and cached; the
// cache is invalidated whenever holidays are mutated.
type BusinessCalendar struct {
	ID   string
	Name string

	mu                sync.RWMutex
	location          *time.Location
	workingHours      map[time.Weekday]DayHours
	holidays          []Holiday
	blackouts         []BlackoutPeriod
	customNonWorking  map[string]bool // "2006-01-02" keys
	allowWeekends     bool
	allowOutsideHours bool

	holidayCache map[int]map[string]string // year -> date key -> holiday name
}

// New creates a calendar with Monday-Friday 09:00-17:00 defaults.
func New(id, name string) *BusinessCalendar {
	hours := make(map[time.Weekday]DayHours)
	for wd := time.Monday; wd <= time.Friday; wd++ {
		hours[wd] = DayHours{StartMinute: 9 * 60, EndMinute: 17 * 60}
	}
	return &BusinessCalendar{
		ID:               id,
		Name:             name,
		location:         time.Local,
		workingHours:     hours,
		customNonWorking: make(map[string]bool),
		holidayCache:     make(map[int]map[string]string),
	}
}

// SetLocation sets the calendar's timezone.
func (c *BusinessCalendar) SetLocation(loc *time.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.location = loc
}

// SetWorkingHours sets the working window for one weekday. Zero start
// and end mark the day non-working.
func (c *BusinessCalendar) SetWorkingHours(day time.Weekday, startMinute, endMinute int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if startMinute == 0 && endMinute == 0 {
		delete(c.workingHours, day)
		return
	}
	c.workingHours[day] = DayHours{StartMinute: startMinute, EndMinute: endMinute}
}

// SetAllowWeekends permits execution on weekends.
func (c *BusinessCalendar) SetAllowWeekends(allow bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowWeekends = allow
}

// SetAllowOutsideHours permits execution outside the working window.
func (c *BusinessCalendar) SetAllowOutsideHours(allow bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowOutsideHours = allow
}

// AddHoliday registers a holiday rule and invalidates the year cache.
func (c *BusinessCalendar) AddHoliday(h Holiday) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holidays = append(c.holidays, h)
	c.holidayCache = make(map[int]map[string]string)
}

// RemoveHoliday deletes holidays by name and invalidates the cache.
func (c *BusinessCalendar) RemoveHoliday(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.holidays[:0]
	removed := false
	for _, h := range c.holidays {
		if h.Name == name {
			removed = true
			continue
		}
		kept = append(kept, h)
	}
	c.holidays = kept
	if removed {
		c.holidayCache = make(map[int]map[string]string)
	}
	return removed
}

// AddBlackout registers a blackout period.
func (c *BusinessCalendar) AddBlackout(b BlackoutPeriod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blackouts = append(c.blackouts, b)
}

// AddNonWorkingDate marks a single calendar date non-working.
func (c *BusinessCalendar) AddNonWorkingDate(date time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.customNonWorking[date.Format("2006-01-02")] = true
}

// CanExecute reports whether t is a working moment for the workflow.
// Checks short-circuit in order: blackout, holiday, custom non-working
// date, weekend, working-hours window. The reason string is empty when
// execution is allowed.
func (c *BusinessCalendar) CanExecute(t time.Time, workflowID string) (bool, string) {
	// Full lock: the holiday year cache fills lazily on reads.
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canExecuteLocked(t, workflowID)
}

func (c *BusinessCalendar) canExecuteLocked(t time.Time, workflowID string) (bool, string) {
	local := t.In(c.location)

	if name := c.blackoutAtLocked(local, workflowID); name != "" {
		return false, fmt.Sprintf("blackout period %q in effect", name)
	}

	dateKey := local.Format("2006-01-02")
	if name := c.holidayOnLocked(local.Year(), dateKey); name != "" {
		return false, fmt.Sprintf("holiday: %s", name)
	}

	if c.customNonWorking[dateKey] {
		return false, fmt.Sprintf("non-working date %s", dateKey)
	}

	weekday := local.Weekday()
	if !c.allowWeekends && (weekday == time.Saturday || weekday == time.Sunday) {
		return false, fmt.Sprintf("weekend (%s)", weekday)
	}

	if !c.allowOutsideHours {
		hours, ok := c.workingHours[weekday]
		if !ok {
			return false, fmt.Sprintf("no working hours configured for %s", weekday)
		}
		minute := local.Hour()*60 + local.Minute()
		if minute < hours.StartMinute || minute >= hours.EndMinute {
			return false, fmt.Sprintf("outside working hours (%02d:%02d-%02d:%02d)",
				hours.StartMinute/60, hours.StartMinute%60, hours.EndMinute/60, hours.EndMinute%60)
		}
	}

	return true, ""
}

// blackoutAtLocked returns the name of a blackout covering t, if any.
func (c *BusinessCalendar) blackoutAtLocked(t time.Time, workflowID string) string {
	for _, b := range c.blackouts {
		if len(b.WorkflowIDs) > 0 && workflowID != "" && !containsString(b.WorkflowIDs, workflowID) {
			continue
		}
		if len(b.WorkflowIDs) > 0 && workflowID == "" {
			continue
		}

		start, end := b.Start, b.End
		if b.Recurring {
			// Shift the window into t's year, handling year-crossing
			// windows like Dec 24 - Jan 2.
			start = time.Date(t.Year(), b.Start.Month(), b.Start.Day(), b.Start.Hour(), b.Start.Minute(), 0, 0, c.location)
			end = time.Date(t.Year(), b.End.Month(), b.End.Day(), b.End.Hour(), b.End.Minute(), 0, 0, c.location)
			if end.Before(start) {
				if t.Month() >= b.Start.Month() {
					end = end.AddDate(1, 0, 0)
				} else {
					start = start.AddDate(-1, 0, 0)
				}
			}
		}
		if !t.Before(start) && !t.After(end) {
			return b.Name
		}
	}
	return ""
}

// NextWorkingTime walks forward from `from` (default now) looking for
// the next moment the workflow may execute, jumping to each day's
// start-of-hours rather than scanning minute by minute. Returns the
// zero time when nothing qualifies within maxDaysAhead.
func (c *BusinessCalendar) NextWorkingTime(from time.Time, workflowID string, maxDaysAhead int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if from.IsZero() {
		from = time.Now()
	}
	if maxDaysAhead <= 0 {
		maxDaysAhead = 30
	}

	local := from.In(c.location)
	if ok, _ := c.canExecuteLocked(local, workflowID); ok {
		return local
	}

	for offset := 0; offset <= maxDaysAhead; offset++ {
		day := local.AddDate(0, 0, offset)
		hours, ok := c.workingHours[day.Weekday()]
		if !ok && !c.allowOutsideHours {
			continue
		}

		candidate := time.Date(day.Year(), day.Month(), day.Day(),
			hours.StartMinute/60, hours.StartMinute%60, 0, 0, c.location)
		if candidate.Before(local) {
			// Today's window already started; the current moment was
			// rejected above, so only a later day can qualify.
			continue
		}
		if ok, _ := c.canExecuteLocked(candidate, workflowID); ok {
			return candidate
		}
	}
	return time.Time{}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
