package recovery

import (
	"errors"
	"testing"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/storage"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{StalenessMs: 30_000, SettleMs: 1_500, MaxPending: 4}

func countEffects[T actor.Effect](effects []actor.Effect) int {
	n := 0
	for _, eff := range effects {
		if _, ok := eff.(T); ok {
			n++
		}
	}
	return n
}

func effectsOf[T actor.Effect](effects []actor.Effect) []T {
	var out []T
	for _, eff := range effects {
		if e, ok := eff.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

func stateUpdate(t *testing.T, screen wire.Screen) wire.Envelope {
	t.Helper()
	env, err := wire.NewStateUpdate(screen, nil)
	require.NoError(t, err)
	return env
}

// stableState walks a fresh state through one full reconnect cycle.
func stableState(t *testing.T, nowMs int64) State {
	t.Helper()
	s := NewState(testPolicy)
	s, _ = Reduce(s, RequestSession(nowMs))
	s, _ = Reduce(s, evSessionOpened{Gen: s.Gen, HandleID: "surface-1", NowMs: nowMs})
	s, _ = Reduce(s, evTimerFired{Name: timerSettle, NowMs: nowMs})
	s, _ = Reduce(s, evWelcomeSent{Gen: s.Gen, NowMs: nowMs})
	require.Equal(t, StateStable, s.FSM)
	require.True(t, s.Connected)
	return s
}

func TestRequestSessionStartsReconnect(t *testing.T) {
	s := NewState(testPolicy)
	next, effects := Reduce(s, RequestSession(1000))

	require.Equal(t, StateReconnecting, next.FSM)
	require.True(t, next.Attempting)
	require.Equal(t, int64(1), next.Gen)
	require.Len(t, effects, 4)
	require.Equal(t, effCancelTimer{Name: timerSettle}, effects[0])
	require.Equal(t, effSaveSnapshot{Snapshot: storage.RecoverySnapshot{
		SavedAtMs:               1000,
		ForceReconnectRequested: true,
	}}, effects[1])
	require.Equal(t, effCloseSession{}, effects[2])
	require.Equal(t, effOpenSession{Gen: 1}, effects[3])
}

func TestRequestSessionWhenStableIsNoop(t *testing.T) {
	s := stableState(t, 0)
	next, effects := Reduce(s, RequestSession(10))
	require.Empty(t, effects)
	require.Equal(t, s.Gen, next.Gen)
}

func TestReconnectCycleSendsSingleWelcome(t *testing.T) {
	s := NewState(testPolicy)
	s, _ = Reduce(s, SetDisplayContext(DisplayContext{DisplayName: "Caffè Roma", Screen: wire.ScreenIdle}))
	s, _ = Reduce(s, RequestSession(0))

	s, effects := Reduce(s, evSessionOpened{Gen: s.Gen, HandleID: "surface-1"})
	require.Equal(t, []actor.Effect{effStartTimer{Name: timerSettle, AfterMs: 1500}}, effects)

	s, effects = Reduce(s, evTimerFired{Name: timerSettle, NowMs: 1500})
	welcomes := effectsOf[effSendWelcome](effects)
	require.Len(t, welcomes, 1)
	require.Equal(t, "Caffè Roma", welcomes[0].Context.DisplayName)
	require.Equal(t, uint64(1), welcomes[0].Seq)

	// A duplicate timer event does not produce a second welcome.
	s, effects = Reduce(s, evTimerFired{Name: timerSettle, NowMs: 1600})
	require.Empty(t, effects)

	s, effects = Reduce(s, evWelcomeSent{Gen: s.Gen, NowMs: 1600})
	require.Equal(t, StateStable, s.FSM)
	require.False(t, s.Attempting)
	require.Equal(t, int64(1600), s.LastAliveMs)
	saves := effectsOf[effSaveSnapshot](effects)
	require.Len(t, saves, 1)
	require.False(t, saves[0].Snapshot.ForceReconnectRequested)
}

func TestDuplicateTriggersOpenOnce(t *testing.T) {
	s := stableState(t, 0)

	// A failed probe and a stale foreground resume reduced back to back.
	s, _ = Reduce(s, Background(1000))
	var all []actor.Effect
	s, all = actor.Steps(s, Reduce,
		evProbeResult{Gen: s.Gen, OK: false, NowMs: 60_000},
		Foreground(60_000),
		evSnapshotLoaded{Snapshot: storage.RecoverySnapshot{SavedAtMs: 0}, Found: true, NowMs: 60_000},
		ProbeTick(60_001),
		RequestSession(60_002),
		Update(stateUpdate(t, wire.ScreenSalePreview), 60_003),
	)

	require.Equal(t, 1, countEffects[effOpenSession](all))
	require.Equal(t, StateReconnecting, s.FSM)
	require.Equal(t, reasonProbeFailed, s.Reason)
}

func TestStaleSnapshotOnForegroundOpensExactlyOnce(t *testing.T) {
	s := stableState(t, 0)
	s, _ = Reduce(s, Background(5_000))

	s, effects := Reduce(s, Foreground(50_000))
	require.Equal(t, []actor.Effect{effLoadSnapshot{}}, effects)

	var all []actor.Effect
	s, all = actor.Steps(s, Reduce,
		evSnapshotLoaded{Snapshot: storage.RecoverySnapshot{SavedAtMs: 0}, Found: true, NowMs: 50_000},
		Foreground(50_001),
		evSessionOpened{Gen: s.Gen + 1, HandleID: "surface-2", NowMs: 50_100},
		evTimerFired{Name: timerSettle, NowMs: 51_600},
		evWelcomeSent{Gen: s.Gen + 1, NowMs: 51_600},
	)

	require.Equal(t, 1, countEffects[effOpenSession](all))
	require.Equal(t, StateStable, s.FSM)
	require.Equal(t, int64(2), s.Reconnects)
}

func TestFreshForegroundDoesNotReconnect(t *testing.T) {
	s := stableState(t, 10_000)
	s, _ = Reduce(s, Background(12_000))
	s, _ = Reduce(s, Foreground(20_000))

	next, effects := Reduce(s, evSnapshotLoaded{Snapshot: storage.RecoverySnapshot{SavedAtMs: 10_000}, Found: true, NowMs: 20_000})
	require.Empty(t, effects)
	require.Equal(t, StateStable, next.FSM)
}

func TestForegroundWithoutBackgroundIsIgnored(t *testing.T) {
	s := stableState(t, 0)
	s, effects := Reduce(s, Foreground(1))
	require.Len(t, effects, 1)

	_, effects = Reduce(s, Foreground(2))
	require.Empty(t, effects)
}

func TestInterruptedReconnectResumesFromIdle(t *testing.T) {
	s := NewState(testPolicy)
	s, _ = Reduce(s, Foreground(100))

	next, effects := Reduce(s, evSnapshotLoaded{
		Snapshot: storage.RecoverySnapshot{SavedAtMs: 90, ForceReconnectRequested: true},
		Found:    true,
		NowMs:    100,
	})
	require.Equal(t, 1, countEffects[effOpenSession](effects))
	require.Equal(t, ErrInterruptedReconnect.Error(), next.Reason)

	// Without the flag an idle context stays idle.
	next, effects = Reduce(s, evSnapshotLoaded{Snapshot: storage.RecoverySnapshot{SavedAtMs: 0}, Found: true, NowMs: 100})
	require.Empty(t, effects)
	require.Equal(t, StateIdle, next.FSM)
}

func TestWelcomeBeforePendingUpdates(t *testing.T) {
	s := stableState(t, 0)
	first := stateUpdate(t, wire.ScreenSalePreview)
	second := stateUpdate(t, wire.ScreenSaleProcessing)

	s, effects := Reduce(s, evProbeResult{Gen: s.Gen, OK: false, NowMs: 5_000})
	require.Equal(t, 1, countEffects[effOpenSession](effects))

	s, _ = Reduce(s, Update(first, 5_100))
	s, _ = Reduce(s, Update(second, 5_200))
	require.Len(t, s.Pending, 2)

	s, _ = Reduce(s, evSessionOpened{Gen: s.Gen, HandleID: "surface-2"})
	s, effects = Reduce(s, evTimerFired{Name: timerSettle, NowMs: 7_000})
	welcome := effectsOf[effSendWelcome](effects)
	require.Len(t, welcome, 1)

	s, effects = Reduce(s, evWelcomeSent{Gen: s.Gen, NowMs: 7_000})
	sends := effectsOf[effSend](effects)
	require.Len(t, sends, 2)
	require.Equal(t, first.ID, sends[0].Env.ID)
	require.Equal(t, second.ID, sends[1].Env.ID)
	require.Greater(t, sends[0].Env.Seq, welcome[0].Seq)
	require.Greater(t, sends[1].Env.Seq, sends[0].Env.Seq)
	require.False(t, sends[0].Retry)
	require.Empty(t, s.Pending)
}

func TestUpdateWhenConnectedIsSentWithSeq(t *testing.T) {
	s := stableState(t, 0)
	env := stateUpdate(t, wire.ScreenCustomerSelected)

	s, effects := Reduce(s, Update(env, 42))
	sends := effectsOf[effSend](effects)
	require.Len(t, sends, 1)
	require.True(t, sends[0].Retry)
	require.Equal(t, int64(42), sends[0].Env.SentAtMs)

	_, effects = Reduce(s, Update(env, 43))
	require.Equal(t, sends[0].Env.Seq+1, effectsOf[effSend](effects)[0].Env.Seq)
}

func TestUpdateWithoutSessionTriggersRecovery(t *testing.T) {
	s := NewState(testPolicy)
	next, effects := Reduce(s, Update(stateUpdate(t, wire.ScreenSalePreview), 0))
	require.Equal(t, StateReconnecting, next.FSM)
	require.Equal(t, reasonNoSession, next.Reason)
	require.Len(t, next.Pending, 1)
	require.Equal(t, 1, countEffects[effOpenSession](effects))
}

func TestPendingIsCapped(t *testing.T) {
	s := NewState(testPolicy)
	var all []actor.Effect
	var sent []wire.Envelope
	for i := 0; i < 6; i++ {
		env := stateUpdate(t, wire.ScreenSalePreview)
		sent = append(sent, env)
		var effects []actor.Effect
		s, effects = Reduce(s, Update(env, int64(i)))
		all = append(all, effects...)
	}
	require.Len(t, s.Pending, 4)
	require.Equal(t, sent[2].ID, s.Pending[0].ID)
	require.Equal(t, int64(2), s.Dropped)
	require.Equal(t, 2, countEffects[effNoteDropped](all))
}

func TestRetryableDispatchFailureQueuesAndReconnects(t *testing.T) {
	s := stableState(t, 0)
	env := stateUpdate(t, wire.ScreenSalePreview).WithSeq(9)

	next, effects := Reduce(s, evDispatchFailed{Gen: s.Gen, Env: env, Retry: true, Err: errors.New("boom"), NowMs: 10})
	require.Equal(t, StateReconnecting, next.FSM)
	require.Len(t, next.Pending, 1)
	require.Equal(t, 1, countEffects[effOpenSession](effects))

	// A retryable failure reported after the reconnect started still queues.
	late, effects := Reduce(next, evDispatchFailed{Gen: s.Gen, Env: stateUpdate(t, wire.ScreenIdle), Retry: true, NowMs: 11})
	require.Len(t, late.Pending, 2)
	require.Zero(t, countEffects[effOpenSession](effects))

	// Once stable again, a late retryable failure is resent right away.
	stable := stableState(t, 0)
	stable.Gen = 5
	_, effects = Reduce(stable, evDispatchFailed{Gen: 4, Env: env, Retry: true, NowMs: 12})
	resent := effectsOf[effSend](effects)
	require.Len(t, resent, 1)
	require.False(t, resent[0].Retry)
	require.Equal(t, int64(5), resent[0].Gen)

	// The replayed attempt is not queued a second time.
	next, effects = Reduce(s, evDispatchFailed{Gen: s.Gen, Env: env, Retry: false, NowMs: 10})
	require.Empty(t, next.Pending)
	require.Equal(t, 1, countEffects[effOpenSession](effects))
}

func TestStaleGenerationResultsIgnored(t *testing.T) {
	s := stableState(t, 0)

	next, effects := Reduce(s, evProbeResult{Gen: s.Gen - 1, OK: false})
	require.Empty(t, effects)
	require.Equal(t, StateStable, next.FSM)

	next, effects = Reduce(s, evDispatchFailed{Gen: s.Gen - 1, Retry: true})
	require.Empty(t, effects)
	require.Empty(t, next.Pending)

	// A surface opened for an older attempt is closed, not adopted.
	_, effects = Reduce(s, evSessionOpened{Gen: s.Gen - 1, HandleID: "late"})
	require.Equal(t, []actor.Effect{effCloseSession{HandleID: "late"}}, effects)
}

func TestFailedAttemptRetriesOnNextTrigger(t *testing.T) {
	s := NewState(testPolicy)
	s, _ = Reduce(s, RequestSession(0))
	gen := s.Gen

	s, effects := Reduce(s, evOpenFailed{Gen: gen, Refused: true, Err: errors.New("blocked")})
	require.Empty(t, effects)
	require.Equal(t, StateReconnecting, s.FSM)
	require.False(t, s.Attempting)
	require.Equal(t, reasonOpenRefused, s.Reason)

	s, effects = Reduce(s, ProbeTick(5_000))
	require.Equal(t, []effOpenSession{{Gen: gen + 1}}, effectsOf[effOpenSession](effects))
	require.Equal(t, gen+1, s.Gen)

	s, _ = Reduce(s, evSessionOpened{Gen: s.Gen})
	s, _ = Reduce(s, evTimerFired{Name: timerSettle})
	s, effects = Reduce(s, evWelcomeFailed{Gen: s.Gen})
	require.Empty(t, effects)
	require.False(t, s.Attempting)
	require.Equal(t, reasonWelcomeFailed, s.Reason)
}

func TestCloseSessionReturnsToIdle(t *testing.T) {
	s := NewState(testPolicy)
	s, _ = Reduce(s, Update(stateUpdate(t, wire.ScreenSalePreview), 0))

	s, effects := Reduce(s, CloseSession(100))
	require.Equal(t, StateIdle, s.FSM)
	require.Empty(t, s.Pending)
	require.Equal(t, 1, countEffects[effCloseSession](effects))
	require.Equal(t, 1, countEffects[effNoteDropped](effects))

	// The late open result is discarded and its surface closed.
	_, effects = Reduce(s, evSessionOpened{Gen: s.Gen - 1})
	require.Equal(t, 1, countEffects[effCloseSession](effects))

	// Failures from before the close are not replayed.
	_, effects = Reduce(s, evDispatchFailed{Gen: s.Gen - 1, Retry: true})
	require.Empty(t, effects)

	// Probe ticks do nothing while idle.
	_, effects = Reduce(s, ProbeTick(5_000))
	require.Empty(t, effects)
}

func TestShutdown(t *testing.T) {
	s := stableState(t, 0)
	reply := make(chan struct{})

	s, effects := Reduce(s, Shutdown(reply))
	require.Equal(t, StateClosed, s.FSM)
	require.Equal(t, effReply{Reply: reply}, effects[len(effects)-1])

	_, effects = Reduce(s, RequestSession(1))
	require.Empty(t, effects)

	_, effects = Reduce(s, Update(stateUpdate(t, wire.ScreenIdle), 1))
	require.Equal(t, []actor.Effect{effNoteDropped{Count: 1}}, effects)

	_, effects = Reduce(s, Shutdown(nil))
	require.Equal(t, []actor.Effect{effReply{}}, effects)
}
