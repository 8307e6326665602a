package visibility

import (
	"context"
	"testing"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor/actortest"
	"github.com/stretchr/testify/require"
)

type scriptedTTY struct {
	state State
	ok    bool
}

func (s *scriptedTTY) probe() (State, bool) { return s.state, s.ok }

func TestJobControlEmitsChangesOnly(t *testing.T) {
	tty := &scriptedTTY{state: Foreground, ok: true}
	j := newJobControl(tty.probe)
	var got []State
	j.Subscribe(func(s State) { got = append(got, s) })

	_, changed := j.Check()
	require.False(t, changed, "first sample is the baseline")

	tty.state = Background
	s, changed := j.Check()
	require.True(t, changed)
	require.Equal(t, Background, s)

	_, changed = j.Check()
	require.False(t, changed)

	tty.state = Foreground
	j.Check()
	require.Equal(t, []State{Background, Foreground}, got)
}

func TestJobControlWithoutTerminal(t *testing.T) {
	tty := &scriptedTTY{}
	j := newJobControl(tty.probe)
	var got []State
	j.Subscribe(func(s State) { got = append(got, s) })

	j.Check()
	j.Check()
	require.Empty(t, got)
}

func TestJobControlRunSamplesOnSchedule(t *testing.T) {
	clock := actortest.NewFakeClock(time.Unix(1_700_000_000, 0))
	tty := &scriptedTTY{state: Foreground, ok: true}
	j := newJobControl(tty.probe)
	var got []State
	j.Subscribe(func(s State) { got = append(got, s) })

	stop := j.Run(context.Background(), clock, time.Second)
	defer stop()

	tty.state = Background
	clock.Advance(time.Second)
	require.Equal(t, []State{Background}, got)

	stop()
	tty.state = Foreground
	clock.Advance(5 * time.Second)
	require.Equal(t, []State{Background}, got)
}
