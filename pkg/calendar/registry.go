package calendar

import (
	"sync"
)

// Registry holds the calendars schedules reference by id.
type Registry struct {
	mu        sync.RWMutex
	calendars map[string]*BusinessCalendar
}

// NewRegistry creates an empty calendar registry.
func NewRegistry() *Registry {
	return &Registry{calendars: make(map[string]*BusinessCalendar)}
}

// Register adds or replaces a calendar under its id.
func (r *Registry) Register(c *BusinessCalendar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calendars[c.ID] = c
}

// Get returns the calendar registered under id.
func (r *Registry) Get(id string) (*BusinessCalendar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.calendars[id]
	return c, ok
}

// IDs returns the registered calendar ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.calendars))
	for id := range r.calendars {
		ids = append(ids, id)
	}
	return ids
}
