// Package clock abstracts the timers the sync agent depends on: reconnect
// backoff, pending-sync expiry and the stale-task sweep. Production code
// uses Real(); tests drive a Fake forward explicitly.
package clock

import "time"

type Clock interface {
	Now() time.Time

	// AfterFunc calls f in its own goroutine (real) or synchronously
	// from Advance (fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop cancels the call. It reports false when the timer already fired
// or was stopped before.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}
