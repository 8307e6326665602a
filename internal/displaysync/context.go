// Package displaysync bundles the display session, liveness monitor,
// recovery coordinator and update dispatcher behind one explicitly owned
// object.
//
// A Context is created by the screen that drives the customer display,
// started once, and disposed when that screen is torn down. Dispose cancels
// the probe schedule and the visibility subscription so nothing keeps
// probing a session the application has abandoned.
package displaysync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/display"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/liveness"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/recovery"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/storage"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/visibility"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
	"github.com/uber-go/tally"
)

// shutdownTimeout bounds how long Dispose waits for the loop to close the
// session.
const shutdownTimeout = 2 * time.Second

// ErrMissingHost is returned by New without a display host.
var ErrMissingHost = errors.New("displaysync: missing display host")

// Deps are the external collaborators of a Context.
type Deps struct {
	Host display.Host
	// Store persists the recovery snapshot. Defaults to memory.
	Store storage.Store
	// Visibility reports foreground/background transitions. Optional.
	Visibility visibility.Source
	// Clock defaults to the real clock.
	Clock actor.Clock
	// Stats defaults to a no-op scope.
	Stats tally.Scope
}

// Context is the display synchronization context.
type Context struct {
	Dispatcher

	opts    Options
	clock   actor.Clock
	vis     visibility.Source
	session *display.Session
	monitor *liveness.Monitor
	runtime *recovery.Runtime
	loop    *actor.Actor[recovery.State]

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	started      bool
	disposed     bool
	stopSchedule func()
	unsubscribe  func()
}

// New wires a Context. It does not open anything until Start.
func New(deps Deps, opts Options) (*Context, error) {
	if deps.Host == nil {
		return nil, ErrMissingHost
	}
	opts = opts.withDefaults()

	clock := deps.Clock
	if clock == nil {
		clock = actor.RealClock{}
	}
	stats := deps.Stats
	if stats == nil {
		stats = tally.NoopScope
	}

	session := display.NewSession(deps.Host, opts.Geometry)
	monitor := liveness.NewMonitor(session, clock)
	runtime := recovery.NewRuntime(recovery.RuntimeConfig{
		Session:     session,
		Monitor:     monitor,
		Store:       deps.Store,
		Clock:       clock,
		Stats:       stats,
		OpenTimeout: opts.OpenTimeout,
	})

	initial := recovery.NewState(opts.policy())
	initial.Context = opts.DisplayContext

	loop := actor.New(initial, recovery.Reduce, runtime, actor.WithHooks(loopHooks(stats)))

	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		opts:    opts,
		clock:   clock,
		vis:     deps.Visibility,
		session: session,
		monitor: monitor,
		runtime: runtime,
		loop:    loop,
		ctx:     ctx,
		cancel:  cancel,
	}
	c.Dispatcher = Dispatcher{enqueue: loop.Enqueue, clock: clock}
	return c, nil
}

func loopHooks(stats tally.Scope) actor.Hooks[recovery.State] {
	drops := stats.SubScope("recovery").Counter("input_dropped")
	return actor.Hooks[recovery.State]{
		OnInput: func(in actor.Input) {
			if logger.Enabled(logger.LevelTrace) {
				logger.Tracef("display: input %T", in)
			}
		},
		OnTransition: func(prev, next recovery.State, _ actor.Input) {
			if prev.FSM != next.FSM {
				logger.Debugf("display: %s -> %s (gen %d, %s)", prev.FSM, next.FSM, next.Gen, next.Reason)
			}
		},
		OnDrop: func(in actor.Input, err error) {
			drops.Inc(1)
			logger.Debugf("display: dropped %T: %v", in, err)
		},
		OnPanic: func(r any) {
			logger.Errorf("display: coordinator panic: %v", r)
		},
	}
}

// Start launches the loop, the probe schedule and the visibility
// subscription. Repeated calls have no effect.
func (c *Context) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return fmt.Errorf("displaysync: context disposed")
	}
	if c.started {
		return nil
	}
	c.started = true

	c.loop.Start()
	c.stopSchedule = liveness.Schedule(c.ctx, c.clock, c.opts.ProbeInterval, func(now time.Time) {
		_ = c.loop.Enqueue(recovery.ProbeTick(now.UnixMilli()))
	})
	if c.vis != nil {
		c.unsubscribe = c.vis.Subscribe(func(s visibility.State) {
			switch s {
			case visibility.Foreground:
				c.Foreground()
			case visibility.Background:
				c.Background()
			}
		})
	}
	if c.opts.AutoOpen {
		_ = c.loop.Enqueue(recovery.RequestSession(c.nowMs()))
	}
	return nil
}

func (c *Context) nowMs() int64 { return c.clock.Now().UnixMilli() }

// RequestSession asks for a display session, e.g. when the operator enters
// the main sales screen. It is a no-op while a connected session exists.
func (c *Context) RequestSession() {
	_ = c.loop.Enqueue(recovery.RequestSession(c.nowMs()))
}

// Foreground reports that the application became visible.
func (c *Context) Foreground() {
	_ = c.loop.Enqueue(recovery.Foreground(c.nowMs()))
}

// Background reports that the application was hidden.
func (c *Context) Background() {
	_ = c.loop.Enqueue(recovery.Background(c.nowMs()))
}

// SetDisplayContext replaces what new surfaces are welcomed with.
func (c *Context) SetDisplayContext(dc recovery.DisplayContext) {
	_ = c.loop.Enqueue(recovery.SetDisplayContext(dc))
}

// CloseDisplay closes the customer display on operator request. Recovery
// stays off until the next RequestSession or Update.
func (c *Context) CloseDisplay() {
	_ = c.loop.Enqueue(recovery.CloseSession(c.nowMs()))
}

// Status returns a snapshot of the coordinator.
func (c *Context) Status() Status {
	return statusFrom(c.loop.State(), c.session.HandleID())
}

// Dispose stops everything the context started and closes the display.
// It is safe to call more than once.
func (c *Context) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	started := c.started
	stopSchedule, unsubscribe := c.stopSchedule, c.unsubscribe
	c.mu.Unlock()

	if stopSchedule != nil {
		stopSchedule()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	c.cancel()

	if started {
		reply := make(chan struct{})
		if err := c.loop.Enqueue(recovery.Shutdown(reply)); err == nil {
			t := time.NewTimer(shutdownTimeout)
			select {
			case <-reply:
			case <-t.C:
				logger.Warnf("display: shutdown timed out")
			}
			t.Stop()
		}
	}

	c.loop.Stop()
	<-c.loop.Done()
	_ = c.session.Close()
}
