package display

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// Session owns at most one display surface.
//
// The surface handle never leaves this type; other components only observe
// the derived liveness flag and the handle id.
type Session struct {
	host Host
	geom Geometry

	// mu guards surface and epoch. It is never held across host calls.
	// epoch advances on every Open and Close; an open whose epoch is no
	// longer current discards its surface instead of installing it.
	mu      sync.Mutex
	surface Surface
	epoch   uint64

	connected atomic.Bool
}

// NewSession returns a session that opens surfaces on host with geom.
func NewSession(host Host, geom Geometry) *Session {
	return &Session{host: host, geom: geom}
}

// Open replaces any live surface with a freshly opened one and returns its id.
//
// On refusal the error wraps ErrSessionCreationRefused and no handle is owned.
// When Open or Close is called again before the host answers, the new surface
// is closed and the error is ErrOpenSuperseded.
func (s *Session) Open(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	prev := s.takeLocked()
	s.mu.Unlock()
	closeSurface(prev)

	surface, err := s.host.OpenSurface(ctx, s.geom)
	switch {
	case err != nil && IsRefused(err):
		return "", err
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrSessionCreationRefused, err)
	case surface == nil:
		return "", ErrSessionCreationRefused
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		logger.Debugf("display: discarding surface %s from superseded open", surface.ID())
		closeSurface(surface)
		return "", ErrOpenSuperseded
	}
	s.surface = surface
	s.mu.Unlock()

	logger.Debugf("display: opened surface %s", surface.ID())
	return surface.ID(), nil
}

// IsOpenAndReachable is a local check: a handle is owned and does not report
// itself closed. It says nothing about whether the remote page is responsive.
func (s *Session) IsOpenAndReachable() bool {
	s.mu.Lock()
	surface := s.surface
	s.mu.Unlock()
	return surface != nil && !surface.Closed()
}

// HandleID returns the id of the owned surface, or "" if none.
func (s *Session) HandleID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surface == nil {
		return ""
	}
	return s.surface.ID()
}

// Close closes and releases the owned surface and abandons any open still in
// flight. Closing an absent session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	s.epoch++
	surface := s.takeLocked()
	s.mu.Unlock()
	return closeSurface(surface)
}

// CloseHandle closes the owned surface only if its id is id. Opens in flight
// are not affected.
func (s *Session) CloseHandle(id string) error {
	s.mu.Lock()
	if s.surface == nil || s.surface.ID() != id {
		s.mu.Unlock()
		return nil
	}
	surface := s.takeLocked()
	s.mu.Unlock()
	return closeSurface(surface)
}

func (s *Session) takeLocked() Surface {
	surface := s.surface
	if surface != nil {
		s.surface = nil
		s.connected.Store(false)
	}
	return surface
}

func closeSurface(surface Surface) error {
	if surface == nil || surface.Closed() {
		return nil
	}
	if err := surface.Close(); err != nil {
		logger.Warnf("display: close surface %s: %v", surface.ID(), err)
		return err
	}
	logger.Debugf("display: closed surface %s", surface.ID())
	return nil
}

// Send posts env to the owned surface. It returns ErrNoSession when no
// surface is owned, and a *DispatchError for any transport failure.
func (s *Session) Send(ctx context.Context, env wire.Envelope) (err error) {
	s.mu.Lock()
	surface := s.surface
	s.mu.Unlock()

	if surface == nil {
		return ErrNoSession
	}
	if surface.Closed() {
		return &DispatchError{SurfaceID: surface.ID(), Kind: env.Kind, Err: ErrSurfaceClosed}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &DispatchError{SurfaceID: surface.ID(), Kind: env.Kind, Err: fmt.Errorf("transport panic: %v", r)}
		}
	}()
	if postErr := surface.Post(ctx, env); postErr != nil {
		return &DispatchError{SurfaceID: surface.ID(), Kind: env.Kind, Err: postErr}
	}
	return nil
}

// Connected returns the last liveness classification.
func (s *Session) Connected() bool { return s.connected.Load() }

// SetConnected records a liveness classification.
func (s *Session) SetConnected(v bool) { s.connected.Store(v) }
