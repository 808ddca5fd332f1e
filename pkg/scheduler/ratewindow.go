package scheduler

import (
	"sync"
	"time"
)

// slidingWindow enforces at most max firings per rolling window. Unlike
// a token bucket it never lets a burst exceed max within any window of
// the configured length.
type slidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	fired  []time.Time
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{max: max, window: window}
}

// Allow records a firing at now if the window has room. When it does
// not, it returns false and how long until the oldest firing ages out.
func (w *slidingWindow) Allow(now time.Time) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	if len(w.fired) < w.max {
		w.fired = append(w.fired, now)
		return true, 0
	}
	wait := w.fired[0].Add(w.window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return false, wait
}

func (w *slidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.fired) && !w.fired[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.fired = append(w.fired[:0], w.fired[i:]...)
	}
}
