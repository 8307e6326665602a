package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/display"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/liveness"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/storage"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
	"github.com/uber-go/tally"
)

// DefaultOpenTimeout bounds a single surface open.
const DefaultOpenTimeout = 10 * time.Second

// RuntimeConfig wires a Runtime to its collaborators.
type RuntimeConfig struct {
	Session     *display.Session
	Monitor     *liveness.Monitor
	Store       storage.Store
	Clock       actor.Clock
	Stats       tally.Scope
	OpenTimeout time.Duration
}

// Runtime interprets coordinator effects.
//
// It never mutates coordinator state. Outcomes are reported through emit.
// Sends, probes and snapshot I/O run on the loop goroutine so that envelopes
// reach the transport in call order. Opens run in their own goroutine and may
// finish after a newer attempt has started; the generation they carry lets
// the reducer discard them.
type Runtime struct {
	session     *display.Session
	monitor     *liveness.Monitor
	store       storage.Store
	clock       actor.Clock
	stats       tally.Scope
	openTimeout time.Duration

	mu      sync.Mutex
	timers  map[string]actor.Timer
	stopped bool

	wg sync.WaitGroup
}

// NewRuntime returns a runtime for cfg.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	clock := cfg.Clock
	if clock == nil {
		clock = actor.RealClock{}
	}
	stats := cfg.Stats
	if stats == nil {
		stats = tally.NoopScope
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}
	store := cfg.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &Runtime{
		session:     cfg.Session,
		monitor:     cfg.Monitor,
		store:       store,
		clock:       clock,
		stats:       stats.SubScope("recovery"),
		openTimeout: timeout,
		timers:      make(map[string]actor.Timer),
	}
}

// HandleEffects implements actor.Runtime.
func (r *Runtime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch e := eff.(type) {
		case effSaveSnapshot:
			r.saveSnapshot(ctx, e)
		case effLoadSnapshot:
			r.loadSnapshot(ctx, emit)
		case effOpenSession:
			r.openSession(ctx, e, emit)
		case effCloseSession:
			r.closeSession(e)
		case effSend:
			r.send(ctx, e, emit)
		case effSendWelcome:
			r.sendWelcome(ctx, e, emit)
		case effProbe:
			r.probe(ctx, e, emit)
		case effStartTimer:
			r.startTimer(ctx, e, emit)
		case effCancelTimer:
			r.cancelTimer(e)
		case effNoteDropped:
			r.stats.Counter("update_dropped").Inc(int64(e.Count))
			logger.Warnf("display: dropped %d update(s)", e.Count)
		case effReply:
			if e.Reply != nil {
				close(e.Reply)
			}
		default:
			// Unknown effect: ignore.
		}
	}
}

// Stop implements actor.Runtime. It cancels timers and waits for in-flight
// opens, which observe the cancelled loop context.
func (r *Runtime) Stop() {
	r.mu.Lock()
	r.stopped = true
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runtime) nowMs() int64 { return r.clock.Now().UnixMilli() }

func (r *Runtime) setConnectedGauge(v bool) {
	g := 0.0
	if v {
		g = 1
	}
	r.stats.Gauge("connected").Update(g)
}
