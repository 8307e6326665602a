package recovery

import "errors"

var (
	// ErrStaleSnapshot marks a reconnect forced on foreground because the
	// last successful exchange is older than the staleness threshold.
	ErrStaleSnapshot = errors.New("recovery: stale snapshot")
	// ErrInterruptedReconnect marks a reconnect forced by a persisted
	// snapshot whose previous attempt never completed.
	ErrInterruptedReconnect = errors.New("recovery: interrupted reconnect")
)

// Reconnect reasons recorded in State.Reason.
const (
	reasonRequested      = "session requested"
	reasonNoSession      = "update without session"
	reasonNotConnected   = "not connected"
	reasonRetry          = "retry"
	reasonProbeFailed    = "probe failed"
	reasonDispatchFailed = "dispatch failed"
	reasonOpenRefused    = "session creation refused"
	reasonOpenFailed     = "open failed"
	reasonWelcomeFailed  = "welcome failed"
)
