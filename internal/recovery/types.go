// Package recovery is the state machine that keeps a customer display
// session alive.
//
// All decisions are made by a pure reducer running on an actor loop. The
// Runtime turns the reducer's effects into calls on the display session, the
// liveness monitor and the snapshot store, and reports outcomes back as
// events. Because everything funnels through one loop, a probe failure and a
// foreground event arriving together are reduced one after the other, and the
// Attempting flag makes the second one a no-op.
package recovery

import (
	"encoding/json"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/storage"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
)

// FSMState is the coordinator state.
type FSMState string

const (
	// StateIdle means no display session is wanted.
	StateIdle FSMState = "Idle"
	// StateStable means the session is open and the last probe succeeded.
	StateStable FSMState = "Stable"
	// StateReconnecting means a session is wanted but not yet usable.
	StateReconnecting FSMState = "Reconnecting"
	// StateClosed means the coordinator has been shut down.
	StateClosed FSMState = "Closed"
)

// Visibility is the last application visibility reported by the host.
type Visibility string

const (
	VisibilityUnknown    Visibility = ""
	VisibilityForeground Visibility = "foreground"
	VisibilityBackground Visibility = "background"
)

// DefaultMaxPending bounds the updates held while no session is usable.
const DefaultMaxPending = 32

// timerSettle is the named timer armed after a surface opens.
const timerSettle = "settle"

// Policy holds the tunables of the state machine, in milliseconds.
type Policy struct {
	// StalenessMs is how long a "connected" belief survives without a
	// successful exchange before a foreground event forces a reconnect.
	// It is a heuristic for "the host was probably suspended", not a
	// guarantee.
	StalenessMs int64
	// SettleMs is the delay between a surface opening and the welcome.
	SettleMs int64
	// MaxPending caps queued updates. The oldest are dropped first.
	MaxPending int
}

// DisplayContext is what a fresh surface is greeted with.
type DisplayContext struct {
	DisplayName string
	Screen      wire.Screen
	Transaction json.RawMessage
}

// State is the loop-owned state of the coordinator.
type State struct {
	FSM    FSMState
	Policy Policy

	// Gen increments on every reconnect attempt and on close. Runtime
	// results carry the generation they were started for so stale ones can
	// be ignored.
	Gen int64
	// EpochGen is Gen as of the last explicit close. Results from before it
	// belong to a session the operator closed.
	EpochGen int64
	// Attempting is set while an open/settle/welcome cycle is in flight and
	// guards against starting a second one.
	Attempting bool
	// SettleArmed is set between a successful open and the settle timer.
	SettleArmed bool
	// Connected is the coordinator's liveness belief.
	Connected bool

	Visibility  Visibility
	LastAliveMs int64
	HandleID    string

	Context DisplayContext

	// Pending holds updates accepted while not connected, in call order.
	Pending []wire.Envelope
	// NextSeq is stamped on the next dispatched envelope.
	NextSeq uint64

	// Reason describes why the last reconnect started or stalled.
	Reason     string
	Reconnects int64
	Dropped    int64
}

// NewState returns the initial Idle state.
func NewState(p Policy) State {
	if p.MaxPending <= 0 {
		p.MaxPending = DefaultMaxPending
	}
	return State{FSM: StateIdle, Policy: p, NextSeq: 1}
}

// Inputs

// cmdRequestSession asks for a display session.
type cmdRequestSession struct {
	actor.InputBase
	NowMs int64
}

// cmdUpdate pushes an envelope to the display.
type cmdUpdate struct {
	actor.InputBase
	Env   wire.Envelope
	NowMs int64
}

// cmdSetDisplayContext replaces what the next welcome will carry.
type cmdSetDisplayContext struct {
	actor.InputBase
	Context DisplayContext
}

// cmdCloseSession closes the display on operator request.
type cmdCloseSession struct {
	actor.InputBase
	NowMs int64
}

// cmdShutdown stops the coordinator. Reply is closed once handled.
type cmdShutdown struct {
	actor.InputBase
	Reply chan struct{}
}

// evProbeTick is delivered by the liveness schedule.
type evProbeTick struct {
	actor.InputBase
	NowMs int64
}

// evProbeResult reports a finished probe.
type evProbeResult struct {
	actor.InputBase
	Gen   int64
	OK    bool
	NowMs int64
}

// evForeground reports the application came to the foreground.
type evForeground struct {
	actor.InputBase
	NowMs int64
}

// evBackground reports the application went to the background.
type evBackground struct {
	actor.InputBase
	NowMs int64
}

// evSnapshotLoaded carries the persisted snapshot read after foregrounding.
type evSnapshotLoaded struct {
	actor.InputBase
	Snapshot storage.RecoverySnapshot
	Found    bool
	Err      error
	NowMs    int64
}

// evSessionOpened reports a surface opened for Gen.
type evSessionOpened struct {
	actor.InputBase
	Gen      int64
	HandleID string
	NowMs    int64
}

// evOpenFailed reports that opening a surface for Gen failed.
type evOpenFailed struct {
	actor.InputBase
	Gen     int64
	Err     error
	Refused bool
}

// evTimerFired reports a named timer fired.
type evTimerFired struct {
	actor.InputBase
	Name  string
	NowMs int64
}

// evWelcomeSent reports the welcome for Gen was dispatched.
type evWelcomeSent struct {
	actor.InputBase
	Gen   int64
	NowMs int64
}

// evWelcomeFailed reports the welcome for Gen could not be dispatched.
type evWelcomeFailed struct {
	actor.InputBase
	Gen int64
	Err error
}

// evDispatchFailed reports a failed envelope send.
type evDispatchFailed struct {
	actor.InputBase
	Gen   int64
	Env   wire.Envelope
	Retry bool
	Err   error
	NowMs int64
}

// Effects

// effSaveSnapshot persists a snapshot.
type effSaveSnapshot struct {
	actor.EffectBase
	Snapshot storage.RecoverySnapshot
}

// effLoadSnapshot reads the snapshot and emits evSnapshotLoaded.
type effLoadSnapshot struct {
	actor.EffectBase
}

// effOpenSession opens a surface and emits evSessionOpened or evOpenFailed.
type effOpenSession struct {
	actor.EffectBase
	Gen int64
}

// effCloseSession closes the owned surface. A non-empty HandleID only closes
// that surface, and leaves the session's liveness alone.
type effCloseSession struct {
	actor.EffectBase
	HandleID string
}

// effSend dispatches an envelope. Retry marks updates that may be queued for
// one more attempt after a reconnect.
type effSend struct {
	actor.EffectBase
	Gen   int64
	Env   wire.Envelope
	Retry bool
}

// effSendWelcome builds and dispatches the welcome for Gen.
type effSendWelcome struct {
	actor.EffectBase
	Gen     int64
	Seq     uint64
	Context DisplayContext
	NowMs   int64
}

// effProbe runs one liveness probe and emits evProbeResult.
type effProbe struct {
	actor.EffectBase
	Gen int64
}

// effStartTimer arms a named timer, replacing one with the same name.
type effStartTimer struct {
	actor.EffectBase
	Name    string
	AfterMs int64
}

// effCancelTimer disarms a named timer.
type effCancelTimer struct {
	actor.EffectBase
	Name string
}

// effNoteDropped records updates that will never be delivered.
type effNoteDropped struct {
	actor.EffectBase
	Count int
}

// effReply closes a reply channel.
type effReply struct {
	actor.EffectBase
	Reply chan struct{}
}
