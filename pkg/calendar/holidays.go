package calendar

import (
	"time"
)

// HolidayKind selects how a holiday's date is computed.
type HolidayKind string

const (
	// HolidayFixed is a literal month/day, optionally observed on the
	// nearest weekday when it falls on a weekend.
	HolidayFixed HolidayKind = "fixed"
	// HolidayFloating is an nth-weekday-of-month rule. Negative
	// occurrences count from the end of the month (-1 = last).
	HolidayFloating HolidayKind = "floating"
	// HolidayCustom is a literal stored date, the only kind that is
	// not computed.
	HolidayCustom HolidayKind = "custom"
)

// Holiday is a computed non-working day rule.
type Holiday struct {
	Name       string       `json:"name" yaml:"name"`
	Kind       HolidayKind  `json:"kind" yaml:"kind"`
	Month      time.Month   `json:"month,omitempty" yaml:"month,omitempty"`
	Day        int          `json:"day,omitempty" yaml:"day,omitempty"`               // fixed
	Weekday    time.Weekday `json:"weekday,omitempty" yaml:"weekday,omitempty"`       // floating
	Occurrence int          `json:"occurrence,omitempty" yaml:"occurrence,omitempty"` // floating; negative = from month end
	Date       time.Time    `json:"date,omitempty" yaml:"date,omitempty"`             // custom
	Observance bool         `json:"observance,omitempty" yaml:"observance,omitempty"` // fixed only
}

// resolve computes the holiday's date for a year. Returns the zero
// time when the rule does not produce a date that year.
func (h Holiday) resolve(year int, loc *time.Location) time.Time {
	switch h.Kind {
	case HolidayFixed:
		d := time.Date(year, h.Month, h.Day, 0, 0, 0, 0, loc)
		if h.Observance {
			switch d.Weekday() {
			case time.Saturday:
				d = d.AddDate(0, 0, -1) // observed Friday
			case time.Sunday:
				d = d.AddDate(0, 0, 1) // observed Monday
			}
		}
		return d
	case HolidayFloating:
		return nthWeekdayOfMonth(year, h.Month, h.Weekday, h.Occurrence, loc)
	case HolidayCustom:
		if h.Date.Year() != year {
			return time.Time{}
		}
		return time.Date(year, h.Date.Month(), h.Date.Day(), 0, 0, 0, 0, loc)
	default:
		return time.Time{}
	}
}

// nthWeekdayOfMonth returns the nth occurrence of a weekday in a month.
// Negative n counts from the end (-1 = last occurrence).
func nthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, n int, loc *time.Location) time.Time {
	if n == 0 {
		return time.Time{}
	}

	if n > 0 {
		first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		offset := (int(weekday) - int(first.Weekday()) + 7) % 7
		d := first.AddDate(0, 0, offset+(n-1)*7)
		if d.Month() != month {
			return time.Time{}
		}
		return d
	}

	// Count backwards from the last day of the month.
	last := time.Date(year, month+1, 1, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7
	d := last.AddDate(0, 0, -offset-(-n-1)*7)
	if d.Month() != month {
		return time.Time{}
	}
	return d
}

// holidayOnLocked returns the holiday name falling on the given date
// key, computing and caching the year's holiday table on first use.
// Caller must hold the write lock: the cache fills lazily.
func (c *BusinessCalendar) holidayOnLocked(year int, dateKey string) string {
	table, ok := c.holidayCache[year]
	if !ok {
		table = make(map[string]string, len(c.holidays))
		for _, h := range c.holidays {
			d := h.resolve(year, c.location)
			if d.IsZero() {
				continue
			}
			table[d.Format("2006-01-02")] = h.Name
		}
		c.holidayCache[year] = table
	}
	return table[dateKey]
}

// Holidays returns the calendar's holiday dates for a year.
func (c *BusinessCalendar) Holidays(year int) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]string)
	for _, h := range c.holidays {
		d := h.resolve(year, c.location)
		if d.IsZero() {
			continue
		}
		out[d.Format("2006-01-02")] = h.Name
	}
	return out
}
