package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
)

// Schedule calls tick every interval on clock until ctx is cancelled or the
// returned stop func is called. Ticks never overlap: the next one is armed
// after tick returns. Timers do not fire while the host is suspended, so a
// long sleep shows up as one late tick rather than a burst.
func Schedule(ctx context.Context, clock actor.Clock, interval time.Duration, tick func(now time.Time)) (stop func()) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	var (
		mu      sync.Mutex
		timer   actor.Timer
		stopped bool
	)

	var arm func()
	arm = func() {
		timer = clock.AfterFunc(interval, func() {
			mu.Lock()
			if stopped {
				mu.Unlock()
				return
			}
			mu.Unlock()

			tick(clock.Now())

			mu.Lock()
			defer mu.Unlock()
			if !stopped {
				arm()
			}
		})
	}

	halt := func() {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		stopped = true
		if timer != nil {
			timer.Stop()
		}
	}

	mu.Lock()
	arm()
	mu.Unlock()

	release := context.AfterFunc(ctx, halt)
	return func() {
		release()
		halt()
	}
}
