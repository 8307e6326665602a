package displaysync

import (
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/display"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/liveness"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/recovery"
)

const (
	// DefaultStalenessThreshold is how long a connected belief is trusted
	// across a background/foreground cycle. It is a heuristic standing in
	// for "the host was probably suspended".
	DefaultStalenessThreshold = 30 * time.Second
	// DefaultSettleDelay gives a fresh surface time to boot before the
	// welcome is sent.
	DefaultSettleDelay = 1500 * time.Millisecond
)

// DefaultGeometry is the fixed form factor of the customer screen.
var DefaultGeometry = display.Geometry{Width: 1024, Height: 600, Chromeless: true}

// Options tune a Context.
type Options struct {
	Geometry           display.Geometry
	ProbeInterval      time.Duration
	StalenessThreshold time.Duration
	SettleDelay        time.Duration
	OpenTimeout        time.Duration
	MaxPending         int

	// DisplayContext seeds the welcome sent to every new surface.
	DisplayContext recovery.DisplayContext
	// AutoOpen requests a session as soon as the context starts.
	AutoOpen bool
}

// DefaultOptions returns the reference tunables.
func DefaultOptions() Options {
	return Options{
		Geometry:           DefaultGeometry,
		ProbeInterval:      liveness.DefaultInterval,
		StalenessThreshold: DefaultStalenessThreshold,
		SettleDelay:        DefaultSettleDelay,
		OpenTimeout:        recovery.DefaultOpenTimeout,
		MaxPending:         recovery.DefaultMaxPending,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Geometry == (display.Geometry{}) {
		o.Geometry = d.Geometry
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = d.ProbeInterval
	}
	if o.StalenessThreshold <= 0 {
		o.StalenessThreshold = d.StalenessThreshold
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = d.SettleDelay
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = d.OpenTimeout
	}
	if o.MaxPending <= 0 {
		o.MaxPending = d.MaxPending
	}
	return o
}

func (o Options) policy() recovery.Policy {
	return recovery.Policy{
		StalenessMs: o.StalenessThreshold.Milliseconds(),
		SettleMs:    o.SettleDelay.Milliseconds(),
		MaxPending:  o.MaxPending,
	}
}
