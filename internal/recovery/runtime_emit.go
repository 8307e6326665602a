package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/display"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

func (r *Runtime) saveSnapshot(ctx context.Context, eff effSaveSnapshot) {
	if err := r.store.Save(ctx, eff.Snapshot); err != nil {
		logger.Warnf("display: save recovery snapshot: %v", err)
	}
}

func (r *Runtime) loadSnapshot(ctx context.Context, emit func(actor.Input)) {
	snap, ok, err := r.store.Load(ctx)
	if err != nil {
		logger.Warnf("display: load recovery snapshot: %v", err)
	}
	emit(evSnapshotLoaded{Snapshot: snap, Found: ok, Err: err, NowMs: r.nowMs()})
}

// openSession opens a surface without blocking the loop.
func (r *Runtime) openSession(ctx context.Context, eff effOpenSession, emit func(actor.Input)) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	r.stats.Counter("reconnect_attempt").Inc(1)
	logger.Infof("display: opening surface (gen %d)", eff.Gen)

	go func() {
		defer r.wg.Done()

		openCtx, cancel := context.WithTimeout(ctx, r.openTimeout)
		defer cancel()

		id, err := r.session.Open(openCtx)
		if errors.Is(err, display.ErrOpenSuperseded) {
			logger.Debugf("display: open surface (gen %d) superseded", eff.Gen)
			emit(evOpenFailed{Gen: eff.Gen, Err: err})
			return
		}
		if err != nil {
			refused := display.IsRefused(err)
			if refused {
				r.stats.Counter("reconnect_refused").Inc(1)
			}
			logger.Warnf("display: open surface (gen %d): %v", eff.Gen, err)
			emit(evOpenFailed{Gen: eff.Gen, Err: err, Refused: refused})
			return
		}
		emit(evSessionOpened{Gen: eff.Gen, HandleID: id, NowMs: r.nowMs()})
	}()
}

func (r *Runtime) closeSession(eff effCloseSession) {
	if eff.HandleID != "" {
		_ = r.session.CloseHandle(eff.HandleID)
		return
	}
	r.monitor.MarkDisconnected()
	r.setConnectedGauge(false)
	_ = r.session.Close()
}

func (r *Runtime) send(ctx context.Context, eff effSend, emit func(actor.Input)) {
	err := r.session.Send(ctx, eff.Env)
	if err == nil {
		r.stats.Counter("update_sent").Inc(1)
		logger.Tracef("display: sent %s seq=%d", eff.Env.Kind, eff.Env.Seq)
		return
	}
	r.dispatchFailed(err)
	emit(evDispatchFailed{Gen: eff.Gen, Env: eff.Env, Retry: eff.Retry, Err: err, NowMs: r.nowMs()})
}

func (r *Runtime) sendWelcome(ctx context.Context, eff effSendWelcome, emit func(actor.Input)) {
	env, err := wire.NewWelcome(wire.WelcomePayload{
		DisplayName: eff.Context.DisplayName,
		Screen:      eff.Context.Screen,
		Transaction: eff.Context.Transaction,
	})
	if err != nil {
		emit(evWelcomeFailed{Gen: eff.Gen, Err: err})
		return
	}
	env = env.WithSeq(eff.Seq).WithSentAt(eff.NowMs)

	if err := r.session.Send(ctx, env); err != nil {
		r.dispatchFailed(err)
		logger.Warnf("display: welcome (gen %d): %v", eff.Gen, err)
		emit(evWelcomeFailed{Gen: eff.Gen, Err: err})
		return
	}
	now := r.clock.Now()
	r.monitor.MarkConnected(now)
	r.setConnectedGauge(true)
	r.stats.Counter("reconnect_success").Inc(1)
	logger.Infof("display: surface %s ready (gen %d)", r.session.HandleID(), eff.Gen)
	emit(evWelcomeSent{Gen: eff.Gen, NowMs: now.UnixMilli()})
}

func (r *Runtime) dispatchFailed(err error) {
	r.stats.Counter("dispatch_error").Inc(1)
	r.monitor.MarkDisconnected()
	r.setConnectedGauge(false)
	var dErr *display.DispatchError
	if errors.As(err, &dErr) {
		logger.Debugf("display: %v", dErr)
	}
}

func (r *Runtime) probe(ctx context.Context, eff effProbe, emit func(actor.Input)) {
	ok := r.monitor.Probe(ctx)
	if ok {
		r.stats.Counter("probe_success").Inc(1)
	} else {
		r.stats.Counter("probe_failure").Inc(1)
		logger.Infof("display: probe failed, reconnecting")
	}
	r.setConnectedGauge(ok)
	emit(evProbeResult{Gen: eff.Gen, OK: ok, NowMs: r.nowMs()})
}

// startTimer schedules a single named timer and emits evTimerFired when it fires.
func (r *Runtime) startTimer(ctx context.Context, eff effStartTimer, emit func(actor.Input)) {
	if eff.Name == "" {
		return
	}
	after := time.Duration(eff.AfterMs) * time.Millisecond

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if prev := r.timers[eff.Name]; prev != nil {
		prev.Stop()
	}
	r.timers[eff.Name] = r.clock.AfterFunc(after, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		emit(evTimerFired{Name: eff.Name, NowMs: r.nowMs()})
	})
}

// cancelTimer cancels a previously started named timer.
func (r *Runtime) cancelTimer(eff effCancelTimer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.timers[eff.Name]; t != nil {
		t.Stop()
		delete(r.timers, eff.Name)
	}
}
