// ABOUTME: Injectable clock so timer-driven sync code can be tested deterministically
// ABOUTME: Real delegates to the time package; Fake advances only when told to

package clock

import "time"

// Clock abstracts the time operations the sync engine relies on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a Timer that delivers on C once d has elapsed.
	NewTimer(d time.Duration) *Timer
}

// Timer is a one-shot timer. Read from C; call Stop to release it early.
type Timer struct {
	C <-chan time.Time

	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns false if it already
// fired or was stopped.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	return t.stopFunc()
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) *Timer {
	t := time.NewTimer(d)
	return &Timer{C: t.C, stopFunc: t.Stop}
}
