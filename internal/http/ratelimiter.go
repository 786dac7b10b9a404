package httpapi

import (
	"sync"
	"time"
)

// WindowLimiter admits at most limit operations in any trailing window and tells
// refused callers when the oldest admission leaves the window.
type WindowLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu       sync.Mutex
	admitted []time.Time
}

// NewWindowLimiter returns a limiter; a non-positive window or limit admits everything.
func NewWindowLimiter(window time.Duration, limit int, clock func() time.Time) *WindowLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &WindowLimiter{window: window, limit: limit, now: clock}
}

// Reserve admits one operation or reports how long until the next admission is possible.
func (l *WindowLimiter) Reserve() (bool, time.Duration) {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	//1.- Forget admissions that left the window; admitted stays in time order.
	now := l.now()
	cutoff := now.Add(-l.window)
	drop := 0
	for drop < len(l.admitted) && !l.admitted[drop].After(cutoff) {
		drop++
	}
	l.admitted = append(l.admitted[:0], l.admitted[drop:]...)

	if len(l.admitted) >= l.limit {
		return false, l.admitted[0].Add(l.window).Sub(now)
	}
	l.admitted = append(l.admitted, now)
	return true, 0
}
