// Package liveness classifies the display session as connected or
// disconnected.
//
// The classification is a best-effort, time-bounded belief: a probe only
// proves the surface can still be addressed, not that the remote page is
// processing messages.
package liveness

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// DefaultInterval is the probe period used when none is configured.
const DefaultInterval = 5 * time.Second

// Target is what the monitor probes. display.Session implements it.
type Target interface {
	IsOpenAndReachable() bool
	Send(ctx context.Context, env wire.Envelope) error
}

// connectedSetter is implemented by targets that mirror the flag.
type connectedSetter interface {
	SetConnected(bool)
}

// Monitor caches the last liveness classification of a Target.
type Monitor struct {
	target Target
	clock  actor.Clock

	connected   atomic.Bool
	lastSuccess atomic.Int64
}

// NewMonitor returns a monitor for target.
func NewMonitor(target Target, clock actor.Clock) *Monitor {
	if clock == nil {
		clock = actor.RealClock{}
	}
	return &Monitor{target: target, clock: clock}
}

// Probe runs the local reachability check and then sends a ping. Either
// failing classifies the session disconnected. There is no wait for a reply.
func (m *Monitor) Probe(ctx context.Context) bool {
	if !m.target.IsOpenAndReachable() {
		logger.Debugf("liveness: surface not reachable")
		m.MarkDisconnected()
		return false
	}
	if err := m.target.Send(ctx, wire.NewPing()); err != nil {
		logger.Debugf("liveness: ping failed: %v", err)
		m.MarkDisconnected()
		return false
	}
	m.MarkConnected(m.clock.Now())
	return true
}

// Connected returns the cached classification.
func (m *Monitor) Connected() bool { return m.connected.Load() }

// LastSuccess returns the time of the last successful probe or welcome, or
// the zero time.
func (m *Monitor) LastSuccess() time.Time {
	ms := m.lastSuccess.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// MarkDisconnected downgrades the classification.
func (m *Monitor) MarkDisconnected() {
	m.connected.Store(false)
	if s, ok := m.target.(connectedSetter); ok {
		s.SetConnected(false)
	}
}

// MarkConnected records a successful exchange at the given time.
func (m *Monitor) MarkConnected(at time.Time) {
	m.connected.Store(true)
	m.lastSuccess.Store(at.UnixMilli())
	if s, ok := m.target.(connectedSetter); ok {
		s.SetConnected(true)
	}
}
