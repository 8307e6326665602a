// Package display owns the lifecycle of the customer-facing display surface.
//
// A Host creates surfaces; a Session owns at most one of them at a time and is
// the only component that ever touches it.
package display

import (
	"context"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
)

// Geometry describes where and how a surface should be opened.
type Geometry struct {
	Width  int
	Height int
	X      int
	Y      int
	// Chromeless suppresses toolbars, menus and window decorations.
	Chromeless bool
	// URL is the page the surface should load. Hosts may ignore it.
	URL string
}

// Wire converts g into its hub representation.
func (g Geometry) Wire() wire.SurfaceGeometry {
	return wire.SurfaceGeometry{
		Width:      g.Width,
		Height:     g.Height,
		X:          g.X,
		Y:          g.Y,
		Chromeless: g.Chromeless,
		URL:        g.URL,
	}
}

// Host is the environment able to open display surfaces.
type Host interface {
	// OpenSurface requests a new surface. Implementations return an error
	// wrapping ErrSessionCreationRefused when the environment declines.
	OpenSurface(ctx context.Context, geom Geometry) (Surface, error)
}

// Surface is an opened display surface.
type Surface interface {
	// ID identifies the surface in logs.
	ID() string
	// Closed reports synchronously whether the surface has been closed by
	// its user, the OS or the transport.
	Closed() bool
	// Post delivers an envelope without waiting for any acknowledgment.
	Post(ctx context.Context, env wire.Envelope) error
	// Close requests the surface to close.
	Close() error
}
