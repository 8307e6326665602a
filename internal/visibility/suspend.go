package visibility

import (
	"context"
	"sync"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/liveness"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// DefaultMinGap is the wall-clock excess over monotonic time treated as a
// host suspension.
const DefaultMinGap = 10 * time.Second

// Reading pairs a wall-clock time with a monotonic duration.
type Reading struct {
	Wall time.Time
	Mono time.Duration
}

var processStart = time.Now()

// SystemReading samples the host clocks. The monotonic clock does not
// advance while the host is suspended; the wall clock does.
func SystemReading() Reading {
	return Reading{Wall: time.Now().Round(0), Mono: time.Since(processStart)}
}

// SuspendDetector turns host suspensions into a Background then Foreground
// pair, for hosts that do not report visibility themselves.
type SuspendDetector struct {
	*Manual

	minGap time.Duration
	read   func() Reading

	mu   sync.Mutex
	last Reading
	have bool
}

// NewSuspendDetector returns a detector sampling read. A nil read uses
// SystemReading.
func NewSuspendDetector(minGap time.Duration, read func() Reading) *SuspendDetector {
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	if read == nil {
		read = SystemReading
	}
	return &SuspendDetector{Manual: NewManual(), minGap: minGap, read: read}
}

// Check samples the clocks and reports whether a suspension was detected
// since the previous sample.
func (d *SuspendDetector) Check() bool {
	r := d.read()

	d.mu.Lock()
	if !d.have {
		d.last, d.have = r, true
		d.mu.Unlock()
		return false
	}
	wall := r.Wall.Sub(d.last.Wall)
	mono := r.Mono - d.last.Mono
	d.last = r
	d.mu.Unlock()

	gap := wall - mono
	if gap <= d.minGap {
		return false
	}
	logger.Infof("visibility: host was suspended for ~%s", gap.Round(time.Second))
	d.Set(Background)
	d.Set(Foreground)
	return true
}

// Run samples every interval on clock until ctx ends or stop is called.
func (d *SuspendDetector) Run(ctx context.Context, clock actor.Clock, interval time.Duration) (stop func()) {
	d.Check()
	return liveness.Schedule(ctx, clock, interval, func(time.Time) { d.Check() })
}
