package recovery

import (
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
)

// RequestSession returns a command asking for a display session. It is a
// no-op when a connected session already exists.
func RequestSession(nowMs int64) actor.Input {
	return cmdRequestSession{NowMs: nowMs}
}

// Update returns a command that pushes env to the display, or queues it and
// starts recovery when the display is not connected.
func Update(env wire.Envelope, nowMs int64) actor.Input {
	return cmdUpdate{Env: env, NowMs: nowMs}
}

// SetDisplayContext returns a command replacing the welcome context.
func SetDisplayContext(ctx DisplayContext) actor.Input {
	return cmdSetDisplayContext{Context: ctx}
}

// CloseSession returns a command that closes the display and stops
// recovery until the next RequestSession.
func CloseSession(nowMs int64) actor.Input {
	return cmdCloseSession{NowMs: nowMs}
}

// Shutdown returns a command that closes the display for good. reply, if
// non-nil, is closed once the command has been handled.
func Shutdown(reply chan struct{}) actor.Input {
	return cmdShutdown{Reply: reply}
}

// ProbeTick returns the event delivered on each liveness interval.
func ProbeTick(nowMs int64) actor.Input {
	return evProbeTick{NowMs: nowMs}
}

// Foreground returns the event for the application becoming visible.
func Foreground(nowMs int64) actor.Input {
	return evForeground{NowMs: nowMs}
}

// Background returns the event for the application being hidden.
func Background(nowMs int64) actor.Input {
	return evBackground{NowMs: nowMs}
}
