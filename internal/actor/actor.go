// Package actor provides the single-threaded event loop the display
// synchronization subsystem runs on.
//
// The model mirrors a cooperative UI event loop:
//   - One goroutine (the loop) owns all mutable state.
//   - A pure reducer maps (state, input) to the next state plus effects.
//   - A runtime interprets effects and feeds observations back as inputs.
//
// Interleaved triggers (a probe tick and a foreground event arriving together)
// are therefore always reduced one after another, never concurrently.
package actor

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrStopped is returned by Enqueue once the actor has been stopped.
	ErrStopped = errors.New("actor stopped")
	// ErrMailboxFull is returned by Enqueue when the mailbox has no room.
	ErrMailboxFull = errors.New("actor mailbox full")
)

// defaultMailboxSize bounds the number of inputs waiting to be reduced.
const defaultMailboxSize = 256

// Input is an item delivered to an actor mailbox.
//
// Inputs are either commands (requests from callers) or events (observations
// emitted by the runtime).
type Input interface {
	isActorInput()
}

// Effect is a declarative side-effect produced by a reducer.
//
// Effects are data. The Runtime executes them and reports outcomes back to the
// mailbox as new inputs.
type Effect interface {
	isActorEffect()
}

// ReducerFunc is a pure state transition function.
//
// Reducers must not perform I/O, spawn goroutines, read clocks or generate
// random identifiers; timestamps and ids travel inside inputs.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects and emits follow-up inputs back to the actor.
type Runtime interface {
	// HandleEffects executes effects in order on the loop goroutine. Blocking
	// work must be moved to a goroutine that reports back through emit.
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))

	// Stop releases background work. It may be called multiple times.
	Stop()
}

// Hooks provide optional observability into an actor's execution.
type Hooks[S any] struct {
	// OnInput is called after an input is dequeued, before reducing.
	OnInput func(input Input)
	// OnTransition is called after the reduced state has been applied.
	OnTransition func(prev S, next S, input Input)
	// OnEffects is called before effects are handed to the Runtime.
	OnEffects func(effects []Effect)
	// OnDrop is called when Enqueue rejects an input.
	OnDrop func(input Input, err error)
	// OnPanic is called when the loop panics. If nil, the panic propagates.
	OnPanic func(recovered any)
}

// Actor runs a single-threaded event loop that owns state of type S.
type Actor[S any] struct {
	reduce  ReducerFunc[S]
	runtime Runtime
	hooks   Hooks[S]

	mu     sync.Mutex
	state  S
	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks attaches hooks for observability.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithMailboxSize sets the actor mailbox buffer size.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n > 0 {
			a.inbox = make(chan Input, n)
		}
	}
}

// New creates an actor with initial state, reducer and runtime.
func New[S any](initial S, reducer ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce:  reducer,
		runtime: runtime,
		state:   initial,
		inbox:   make(chan Input, defaultMailboxSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the loop goroutine. Repeated calls have no effect.
func (a *Actor[S]) Start() {
	a.startOnce.Do(func() {
		a.mu.Lock()
		a.started = true
		a.mu.Unlock()
		go a.loop()
	})
}

// Stop cancels the loop and stops the runtime. Safe to call multiple times,
// including on an actor that was never started.
func (a *Actor[S]) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
		a.mu.Lock()
		started := a.started
		a.mu.Unlock()
		if !started {
			// Mark the loop as never running so Done() callers do not hang.
			a.startOnce.Do(func() { close(a.done) })
		}
		if a.runtime != nil {
			a.runtime.Stop()
		}
	})
}

// Done returns a channel that closes when the loop exits.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// Enqueue delivers an input without blocking.
func (a *Actor[S]) Enqueue(input Input) error {
	if input == nil {
		return nil
	}
	if a.ctx.Err() != nil {
		a.dropped(input, ErrStopped)
		return ErrStopped
	}
	select {
	case a.inbox <- input:
		return nil
	default:
		a.dropped(input, ErrMailboxFull)
		return ErrMailboxFull
	}
}

func (a *Actor[S]) dropped(input Input, err error) {
	if a.hooks.OnDrop != nil {
		a.hooks.OnDrop(input, err)
	}
}

// State returns a copy of the current state for observability and tests.
func (a *Actor[S]) State() S {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actor[S]) loop() {
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			if a.hooks.OnPanic != nil {
				a.hooks.OnPanic(r)
				return
			}
			panic(r)
		}
	}()

	emit := func(in Input) {
		_ = a.Enqueue(in)
	}

	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox:
			a.step(in, emit)
		}
	}
}

func (a *Actor[S]) step(in Input, emit func(Input)) {
	if a.hooks.OnInput != nil {
		a.hooks.OnInput(in)
	}

	a.mu.Lock()
	prev := a.state
	a.mu.Unlock()

	next, effects := a.reduce(prev, in)

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	if a.hooks.OnTransition != nil {
		a.hooks.OnTransition(prev, next, in)
	}
	if len(effects) == 0 {
		return
	}
	if a.hooks.OnEffects != nil {
		a.hooks.OnEffects(effects)
	}
	if a.runtime != nil {
		a.runtime.HandleEffects(a.ctx, effects, emit)
	}
}
