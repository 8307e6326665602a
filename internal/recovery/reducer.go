package recovery

import (
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/storage"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
)

// Reduce is the coordinator reducer.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	switch in := input.(type) {
	case cmdRequestSession:
		return reduceRequestSession(state, in)
	case cmdUpdate:
		return reduceUpdate(state, in)
	case cmdSetDisplayContext:
		state.Context = in.Context
		return state, nil
	case cmdCloseSession:
		return reduceCloseSession(state, in)
	case cmdShutdown:
		return reduceShutdown(state, in)
	case evProbeTick:
		return reduceProbeTick(state, in)
	case evProbeResult:
		return reduceProbeResult(state, in)
	case evForeground:
		return reduceForeground(state, in)
	case evBackground:
		state.Visibility = VisibilityBackground
		return state, nil
	case evSnapshotLoaded:
		return reduceSnapshotLoaded(state, in)
	case evSessionOpened:
		return reduceSessionOpened(state, in)
	case evOpenFailed:
		return reduceOpenFailed(state, in)
	case evTimerFired:
		return reduceTimerFired(state, in)
	case evWelcomeSent:
		return reduceWelcomeSent(state, in)
	case evWelcomeFailed:
		return reduceWelcomeFailed(state, in)
	case evDispatchFailed:
		return reduceDispatchFailed(state, in)
	default:
		return state, nil
	}
}

// beginReconnect enters Reconnecting and starts exactly one open. It is a
// no-op while an attempt is already in flight.
func beginReconnect(state State, nowMs int64, reason string) (State, []actor.Effect) {
	if state.Attempting || state.FSM == StateClosed {
		return state, nil
	}
	state.FSM = StateReconnecting
	state.Attempting = true
	state.SettleArmed = false
	state.Connected = false
	state.HandleID = ""
	state.Gen++
	state.Reason = reason
	state.Reconnects++

	return state, []actor.Effect{
		effCancelTimer{Name: timerSettle},
		effSaveSnapshot{Snapshot: storage.RecoverySnapshot{
			SavedAtMs:               nowMs,
			LastKnownContext:        string(state.Context.Screen),
			ForceReconnectRequested: true,
		}},
		effCloseSession{},
		effOpenSession{Gen: state.Gen},
	}
}

func reduceRequestSession(state State, cmd cmdRequestSession) (State, []actor.Effect) {
	if state.FSM == StateStable && state.Connected {
		return state, nil
	}
	return beginReconnect(state, cmd.NowMs, reasonRequested)
}

func reduceUpdate(state State, cmd cmdUpdate) (State, []actor.Effect) {
	if state.FSM == StateClosed {
		state.Dropped++
		return state, []actor.Effect{effNoteDropped{Count: 1}}
	}
	if state.FSM == StateStable && state.Connected {
		env := cmd.Env.WithSeq(state.NextSeq).WithSentAt(cmd.NowMs)
		state.NextSeq++
		return state, []actor.Effect{effSend{Gen: state.Gen, Env: env, Retry: true}}
	}

	var effects []actor.Effect
	state, effects = enqueuePending(state, cmd.Env)

	reason := reasonNotConnected
	if state.FSM == StateIdle {
		reason = reasonNoSession
	}
	var more []actor.Effect
	state, more = beginReconnect(state, cmd.NowMs, reason)
	return state, append(effects, more...)
}

// enqueuePending appends env, dropping the oldest entries beyond the cap.
func enqueuePending(state State, env wire.Envelope) (State, []actor.Effect) {
	pending := make([]wire.Envelope, 0, len(state.Pending)+1)
	pending = append(pending, state.Pending...)
	pending = append(pending, env)

	dropped := 0
	if over := len(pending) - state.Policy.MaxPending; state.Policy.MaxPending > 0 && over > 0 {
		dropped = over
		pending = pending[over:]
	}
	state.Pending = pending
	if dropped == 0 {
		return state, nil
	}
	state.Dropped += int64(dropped)
	return state, []actor.Effect{effNoteDropped{Count: dropped}}
}

func reduceProbeTick(state State, ev evProbeTick) (State, []actor.Effect) {
	switch state.FSM {
	case StateStable:
		return state, []actor.Effect{effProbe{Gen: state.Gen}}
	case StateReconnecting:
		return beginReconnect(state, ev.NowMs, reasonRetry)
	default:
		return state, nil
	}
}

func reduceProbeResult(state State, ev evProbeResult) (State, []actor.Effect) {
	if ev.Gen != state.Gen || state.FSM != StateStable {
		return state, nil
	}
	if ev.OK {
		state.Connected = true
		state.LastAliveMs = ev.NowMs
		return state, nil
	}
	state.Connected = false
	return beginReconnect(state, ev.NowMs, reasonProbeFailed)
}

func reduceForeground(state State, ev evForeground) (State, []actor.Effect) {
	if state.Visibility == VisibilityForeground {
		return state, nil
	}
	state.Visibility = VisibilityForeground
	if state.FSM == StateClosed {
		return state, nil
	}
	return state, []actor.Effect{effLoadSnapshot{}}
}

func reduceSnapshotLoaded(state State, ev evSnapshotLoaded) (State, []actor.Effect) {
	if state.FSM == StateClosed {
		return state, nil
	}
	found := ev.Found && ev.Err == nil
	force := found && ev.Snapshot.ForceReconnectRequested

	if state.FSM == StateIdle {
		if force {
			return beginReconnect(state, ev.NowMs, ErrInterruptedReconnect.Error())
		}
		return state, nil
	}

	lastAlive := state.LastAliveMs
	if found && ev.Snapshot.SavedAtMs > lastAlive {
		lastAlive = ev.Snapshot.SavedAtMs
	}
	stale := ev.NowMs-lastAlive > state.Policy.StalenessMs

	switch {
	case force:
		return beginReconnect(state, ev.NowMs, ErrInterruptedReconnect.Error())
	case stale:
		return beginReconnect(state, ev.NowMs, ErrStaleSnapshot.Error())
	case state.FSM == StateReconnecting || !state.Connected:
		return beginReconnect(state, ev.NowMs, reasonNotConnected)
	default:
		return state, nil
	}
}

func reduceSessionOpened(state State, ev evSessionOpened) (State, []actor.Effect) {
	if ev.Gen != state.Gen || state.FSM != StateReconnecting || !state.Attempting {
		// Orphan surface from a superseded attempt.
		return state, []actor.Effect{effCloseSession{HandleID: ev.HandleID}}
	}
	state.HandleID = ev.HandleID
	state.SettleArmed = true
	return state, []actor.Effect{effStartTimer{Name: timerSettle, AfterMs: state.Policy.SettleMs}}
}

func reduceOpenFailed(state State, ev evOpenFailed) (State, []actor.Effect) {
	if ev.Gen != state.Gen || state.FSM != StateReconnecting {
		return state, nil
	}
	state.Attempting = false
	state.Reason = reasonOpenFailed
	if ev.Refused {
		state.Reason = reasonOpenRefused
	}
	return state, nil
}

func reduceTimerFired(state State, ev evTimerFired) (State, []actor.Effect) {
	if ev.Name != timerSettle || !state.SettleArmed {
		return state, nil
	}
	state.SettleArmed = false
	if state.FSM != StateReconnecting || !state.Attempting {
		return state, nil
	}
	seq := state.NextSeq
	state.NextSeq++
	return state, []actor.Effect{effSendWelcome{
		Gen:     state.Gen,
		Seq:     seq,
		Context: state.Context,
		NowMs:   ev.NowMs,
	}}
}

func reduceWelcomeSent(state State, ev evWelcomeSent) (State, []actor.Effect) {
	if ev.Gen != state.Gen || state.FSM != StateReconnecting {
		return state, nil
	}
	state.FSM = StateStable
	state.Attempting = false
	state.Connected = true
	state.LastAliveMs = ev.NowMs
	state.Reason = ""

	effects := []actor.Effect{effSaveSnapshot{Snapshot: storage.RecoverySnapshot{
		SavedAtMs:        ev.NowMs,
		LastKnownContext: string(state.Context.Screen),
	}}}
	for _, env := range state.Pending {
		effects = append(effects, effSend{
			Gen: state.Gen,
			Env: env.WithSeq(state.NextSeq).WithSentAt(ev.NowMs),
		})
		state.NextSeq++
	}
	state.Pending = nil
	return state, effects
}

func reduceWelcomeFailed(state State, ev evWelcomeFailed) (State, []actor.Effect) {
	if ev.Gen != state.Gen || state.FSM != StateReconnecting {
		return state, nil
	}
	state.Attempting = false
	state.Reason = reasonWelcomeFailed
	return state, nil
}

func reduceDispatchFailed(state State, ev evDispatchFailed) (State, []actor.Effect) {
	if state.FSM == StateClosed || state.FSM == StateIdle || ev.Gen <= state.EpochGen {
		return state, nil
	}

	// Reported after a newer attempt started. A retryable update still gets
	// its one replay on whatever session is current.
	if ev.Gen != state.Gen {
		if !ev.Retry {
			return state, nil
		}
		if state.FSM == StateStable && state.Connected {
			env := ev.Env.WithSeq(state.NextSeq).WithSentAt(ev.NowMs)
			state.NextSeq++
			return state, []actor.Effect{effSend{Gen: state.Gen, Env: env}}
		}
		return enqueuePending(state, ev.Env)
	}

	var effects []actor.Effect
	if ev.Retry {
		state, effects = enqueuePending(state, ev.Env)
	}
	if state.FSM != StateStable {
		return state, effects
	}
	state.Connected = false
	var more []actor.Effect
	state, more = beginReconnect(state, ev.NowMs, reasonDispatchFailed)
	return state, append(effects, more...)
}

func reduceCloseSession(state State, cmd cmdCloseSession) (State, []actor.Effect) {
	if state.FSM == StateClosed {
		return state, nil
	}
	dropped := len(state.Pending)
	state.FSM = StateIdle
	state.Gen++
	state.EpochGen = state.Gen
	state.Attempting = false
	state.SettleArmed = false
	state.Connected = false
	state.HandleID = ""
	state.Pending = nil
	state.Reason = ""

	effects := []actor.Effect{
		effCancelTimer{Name: timerSettle},
		effCloseSession{},
		effSaveSnapshot{Snapshot: storage.RecoverySnapshot{
			SavedAtMs:        cmd.NowMs,
			LastKnownContext: string(state.Context.Screen),
		}},
	}
	if dropped > 0 {
		state.Dropped += int64(dropped)
		effects = append(effects, effNoteDropped{Count: dropped})
	}
	return state, effects
}

func reduceShutdown(state State, cmd cmdShutdown) (State, []actor.Effect) {
	if state.FSM == StateClosed {
		return state, []actor.Effect{effReply{Reply: cmd.Reply}}
	}
	state.FSM = StateClosed
	state.Gen++
	state.Attempting = false
	state.SettleArmed = false
	state.Connected = false
	state.HandleID = ""
	state.Pending = nil
	return state, []actor.Effect{
		effCancelTimer{Name: timerSettle},
		effCloseSession{},
		effReply{Reply: cmd.Reply},
	}
}
