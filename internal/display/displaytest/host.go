// Package displaytest provides an in-memory display host for tests.
package displaytest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/display"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
)

// ErrTransport is returned by surfaces configured to fail.
var ErrTransport = errors.New("displaytest: transport failure")

// Host is a fake display.Host that counts open and close calls.
type Host struct {
	mu       sync.Mutex
	opens    int
	closes   int
	refuse   bool
	panicky  bool
	gate     chan struct{}
	waiting  int
	surfaces []*Surface
}

var _ display.Host = (*Host)(nil)

// NewHost returns an empty fake host.
func NewHost() *Host { return &Host{} }

// OpenSurface implements display.Host.
func (h *Host) OpenSurface(ctx context.Context, geom display.Geometry) (display.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	gate := h.gate
	if gate != nil {
		h.waiting++
	}
	h.mu.Unlock()
	if gate != nil {
		var err error
		select {
		case <-gate:
		case <-ctx.Done():
			err = ctx.Err()
		}
		h.mu.Lock()
		h.waiting--
		h.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.opens++
	if h.refuse {
		return nil, fmt.Errorf("%w: popup blocked", display.ErrSessionCreationRefused)
	}
	s := &Surface{
		host:      h,
		id:        fmt.Sprintf("surface-%d", h.opens),
		geom:      geom,
		failAfter: -1,
		panicky:   h.panicky,
	}
	h.surfaces = append(h.surfaces, s)
	return s, nil
}

// HoldOpens makes OpenSurface wait until release is called or its context
// ends. Opens count only once they get through.
func (h *Host) HoldOpens() (release func()) {
	gate := make(chan struct{})
	h.mu.Lock()
	h.gate = gate
	h.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if h.gate == gate {
				h.gate = nil
			}
			h.mu.Unlock()
			close(gate)
		})
	}
}

// Refuse makes subsequent opens fail with ErrSessionCreationRefused.
func (h *Host) Refuse(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refuse = v
}

// PanicOnPost makes surfaces opened from now on panic inside Post.
func (h *Host) PanicOnPost(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.panicky = v
}

// Waiting returns how many opens are held by HoldOpens.
func (h *Host) Waiting() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waiting
}

// Opens returns the number of OpenSurface calls.
func (h *Host) Opens() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens
}

// Closes returns the number of Surface.Close calls across all surfaces.
func (h *Host) Closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

// Live returns how many opened surfaces are not closed.
func (h *Host) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.surfaces {
		if !s.closed {
			n++
		}
	}
	return n
}

// Surfaces returns every surface opened so far.
func (h *Host) Surfaces() []*Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Surface, len(h.surfaces))
	copy(out, h.surfaces)
	return out
}

// Last returns the most recently opened surface, or nil.
func (h *Host) Last() *Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.surfaces) == 0 {
		return nil
	}
	return h.surfaces[len(h.surfaces)-1]
}

// Surface is a fake display.Surface recording every posted envelope.
type Surface struct {
	host *Host
	id   string
	geom display.Geometry

	// Guarded by host.mu.
	closed    bool
	posts     []wire.Envelope
	failAfter int
	panicky   bool
}

// ID implements display.Surface.
func (s *Surface) ID() string { return s.id }

// Geometry returns the geometry the surface was opened with.
func (s *Surface) Geometry() display.Geometry { return s.geom }

// Closed implements display.Surface.
func (s *Surface) Closed() bool {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	return s.closed
}

// Post implements display.Surface.
func (s *Surface) Post(_ context.Context, env wire.Envelope) error {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	if s.panicky {
		panic("displaytest: post panic")
	}
	if s.failAfter == 0 {
		return ErrTransport
	}
	if s.failAfter > 0 {
		s.failAfter--
	}
	s.posts = append(s.posts, env)
	return nil
}

// Close implements display.Surface.
func (s *Surface) Close() error {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	s.host.closes++
	s.closed = true
	return nil
}

// FailAfter makes Post fail once n more posts have succeeded. Negative
// values disable failures.
func (s *Surface) FailAfter(n int) {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	s.failAfter = n
}

// CloseByUser marks the surface closed without counting a Close call.
func (s *Surface) CloseByUser() {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	s.closed = true
}

// Posts returns the envelopes delivered to this surface.
func (s *Surface) Posts() []wire.Envelope {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	out := make([]wire.Envelope, len(s.posts))
	copy(out, s.posts)
	return out
}

// Kinds returns the kinds of delivered envelopes, in order.
func (s *Surface) Kinds() []wire.Kind {
	posts := s.Posts()
	out := make([]wire.Kind, len(posts))
	for i, p := range posts {
		out[i] = p.Kind
	}
	return out
}

// CountKind returns how many delivered envelopes have kind k.
func (s *Surface) CountKind(k wire.Kind) int {
	n := 0
	for _, kind := range s.Kinds() {
		if kind == k {
			n++
		}
	}
	return n
}
