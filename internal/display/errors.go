package display

import (
	"errors"
	"fmt"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
)

var (
	// ErrSessionCreationRefused is returned when the host declines to open a
	// surface.
	ErrSessionCreationRefused = errors.New("display: session creation refused")
	// ErrNoSession is returned by Send when no surface is owned.
	ErrNoSession = errors.New("display: no session")
	// ErrSurfaceClosed is wrapped in a DispatchError when the surface already
	// reports itself closed.
	ErrSurfaceClosed = errors.New("display: surface closed")
	// ErrOpenSuperseded is returned by Open when a later Open or Close made
	// the opened surface unwanted.
	ErrOpenSuperseded = errors.New("display: open superseded")
)

// DispatchError reports a failed envelope dispatch.
type DispatchError struct {
	SurfaceID string
	Kind      wire.Kind
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s to surface %s: %v", e.Kind, e.SurfaceID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// IsRefused reports whether err means the host refused to open a surface.
func IsRefused(err error) bool {
	return errors.Is(err, ErrSessionCreationRefused)
}
