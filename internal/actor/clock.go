package actor

import "time"

// Clock provides a testable time source.
//
// Reducers should remain deterministic and must not call a Clock directly.
// Runtimes use Clock and inject timestamps via inputs.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback created by Clock.AfterFunc.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// RealClock is a production Clock implementation backed by the time package.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NowMs converts a clock reading to unix milliseconds.
func NowMs(c Clock) int64 {
	return c.Now().UnixMilli()
}
