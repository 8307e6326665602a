package actor_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor/actortest"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	actor.InputBase
	n int
}

type testEffect struct {
	actor.EffectBase
	n int
}

func sumReducer(state int, input actor.Input) (int, []actor.Effect) {
	ev, ok := input.(testEvent)
	if !ok {
		return state, nil
	}
	return state + ev.n, []actor.Effect{testEffect{n: ev.n}}
}

func TestActorProcessesInputsSequentially(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	a := actor.New[int](0, sumReducer, rt)
	a.Start()
	defer a.Stop()

	for i := 1; i <= 5; i++ {
		require.NoError(t, a.Enqueue(testEvent{n: i}))
	}

	require.Eventually(t, func() bool { return a.State() == 15 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(rt.Effects()) == 5 }, 2*time.Second, 5*time.Millisecond)

	effects := rt.Effects()
	for i, eff := range effects {
		require.Equal(t, i+1, eff.(testEffect).n)
	}
}

func TestActorEnqueueAfterStop(t *testing.T) {
	t.Parallel()

	rt := &actortest.FakeRuntime{}
	var drops atomic.Int32
	a := actor.New[int](0, sumReducer, rt, actor.WithHooks(actor.Hooks[int]{
		OnDrop: func(actor.Input, error) { drops.Add(1) },
	}))
	a.Start()
	a.Stop()
	a.Stop()

	<-a.Done()
	require.ErrorIs(t, a.Enqueue(testEvent{n: 1}), actor.ErrStopped)
	require.Equal(t, int32(1), drops.Load())
	require.Equal(t, 1, rt.Stopped())
}

func TestActorMailboxFull(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, sumReducer, nil, actor.WithMailboxSize[int](1))
	defer a.Stop()

	require.NoError(t, a.Enqueue(testEvent{n: 1}))
	require.ErrorIs(t, a.Enqueue(testEvent{n: 2}), actor.ErrMailboxFull)
}

func TestActorStopWithoutStart(t *testing.T) {
	t.Parallel()

	a := actor.New[int](0, sumReducer, nil)
	a.Stop()

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}

func TestActorPanicHook(t *testing.T) {
	t.Parallel()

	recovered := make(chan any, 1)
	reducer := func(int, actor.Input) (int, []actor.Effect) { panic("boom") }
	a := actor.New[int](0, reducer, nil, actor.WithHooks(actor.Hooks[int]{
		OnPanic: func(r any) { recovered <- r },
	}))
	a.Start()
	defer a.Stop()

	require.NoError(t, a.Enqueue(testEvent{n: 1}))
	select {
	case r := <-recovered:
		require.Equal(t, "boom", r)
	case <-time.After(2 * time.Second):
		t.Fatal("panic hook not invoked")
	}
}

func TestSteps(t *testing.T) {
	t.Parallel()

	state, effs := actor.Steps(0, sumReducer, testEvent{n: 2}, testEvent{n: 3})
	require.Equal(t, 5, state)
	require.Len(t, effs, 2)
}

func TestFakeClockAdvanceFiresInOrder(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0)
	c := actortest.NewFakeClock(start)

	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() {
		fired = append(fired, "a")
		c.AfterFunc(500*time.Millisecond, func() { fired = append(fired, "a2") })
	})
	stopped := c.AfterFunc(1500*time.Millisecond, func() { fired = append(fired, "x") })
	require.True(t, stopped.Stop())
	require.False(t, stopped.Stop())

	c.Advance(3 * time.Second)
	require.Equal(t, []string{"a", "a2", "b"}, fired)
	require.Equal(t, start.Add(3*time.Second), c.Now())
	require.Zero(t, c.Pending())
}

func TestFakeClockSetDoesNotFire(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0)
	c := actortest.NewFakeClock(start)
	fired := false
	c.AfterFunc(time.Second, func() { fired = true })

	c.Set(start.Add(time.Minute))
	require.False(t, fired)
	require.Equal(t, 1, c.Pending())

	c.Advance(0)
	require.True(t, fired)
}
