package visibility

import (
	"context"
	"sync"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/liveness"
)

// JobControl reports Foreground while the process group owns its
// controlling terminal and Background once the shell moves it away
// (Ctrl+Z followed by bg, or a launch with &).
type JobControl struct {
	*Manual

	probe func() (State, bool)

	mu   sync.Mutex
	last State
}

// NewJobControl watches the controlling terminal. On platforms without job
// control, or without a terminal, it never emits.
func NewJobControl() *JobControl {
	return newJobControl(ttyState)
}

func newJobControl(probe func() (State, bool)) *JobControl {
	return &JobControl{Manual: NewManual(), probe: probe}
}

// Check samples the terminal and emits the state when it changed since the
// previous sample. The first sample only records the baseline.
func (j *JobControl) Check() (State, bool) {
	s, ok := j.probe()
	if !ok {
		return "", false
	}
	j.mu.Lock()
	prev := j.last
	j.last = s
	j.mu.Unlock()

	if prev == "" || prev == s {
		return s, false
	}
	j.Set(s)
	return s, true
}

// Run samples every interval on clock until ctx ends or stop is called.
func (j *JobControl) Run(ctx context.Context, clock actor.Clock, interval time.Duration) (stop func()) {
	j.Check()
	return liveness.Schedule(ctx, clock, interval, func(time.Time) { j.Check() })
}
