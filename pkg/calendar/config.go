package calendar

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HoursConfig is the YAML shape of one weekday's working window.
type HoursConfig struct {
	Day   string `yaml:"day"`   // "monday".."sunday"
	Start string `yaml:"start"` // "09:00"
	End   string `yaml:"end"`   // "17:30"
}

// Config is the YAML definition of one business calendar.
type Config struct {
	ID                string           `yaml:"id"`
	Name              string           `yaml:"name"`
	Timezone          string           `yaml:"timezone,omitempty"`
	AllowWeekends     bool             `yaml:"allow_weekends,omitempty"`
	AllowOutsideHours bool             `yaml:"allow_outside_hours,omitempty"`
	WorkingHours      []HoursConfig    `yaml:"working_hours,omitempty"`
	Holidays          []Holiday        `yaml:"holidays,omitempty"`
	Blackouts         []BlackoutPeriod `yaml:"blackouts,omitempty"`
	NonWorkingDates   []string         `yaml:"non_working_dates,omitempty"` // "2006-01-02"
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// FromConfig builds a calendar from a parsed Config.
func FromConfig(cfg Config) (*BusinessCalendar, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("calendar id is required")
	}

	c := New(cfg.ID, cfg.Name)

	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
		c.SetLocation(loc)
	}

	if len(cfg.WorkingHours) > 0 {
		// Explicit hours replace the Monday-Friday default wholesale.
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			c.SetWorkingHours(wd, 0, 0)
		}
		for _, h := range cfg.WorkingHours {
			wd, ok := weekdayNames[h.Day]
			if !ok {
				return nil, fmt.Errorf("unknown weekday %q", h.Day)
			}
			start, err := parseClock(h.Start)
			if err != nil {
				return nil, fmt.Errorf("working hours for %s: %w", h.Day, err)
			}
			end, err := parseClock(h.End)
			if err != nil {
				return nil, fmt.Errorf("working hours for %s: %w", h.Day, err)
			}
			if end <= start {
				return nil, fmt.Errorf("working hours for %s: end %s not after start %s", h.Day, h.End, h.Start)
			}
			c.SetWorkingHours(wd, start, end)
		}
	}

	c.SetAllowWeekends(cfg.AllowWeekends)
	c.SetAllowOutsideHours(cfg.AllowOutsideHours)

	for _, h := range cfg.Holidays {
		c.AddHoliday(h)
	}
	for _, b := range cfg.Blackouts {
		c.AddBlackout(b)
	}
	for _, d := range cfg.NonWorkingDates {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("invalid non-working date %q: %w", d, err)
		}
		c.AddNonWorkingDate(parsed)
	}

	return c, nil
}

// LoadFile parses a YAML file holding one or more calendar definitions.
func LoadFile(path string) ([]*BusinessCalendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar file: %w", err)
	}

	var file struct {
		Calendars []Config `yaml:"calendars"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse calendar file %s: %w", path, err)
	}

	out := make([]*BusinessCalendar, 0, len(file.Calendars))
	for _, cfg := range file.Calendars {
		c, err := FromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("calendar %q: %w", cfg.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// parseClock converts "HH:MM" to minutes from midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}
