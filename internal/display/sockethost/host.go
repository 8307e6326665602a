package sockethost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/display"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// ErrHubDisconnected is returned when the hub connection is down.
var ErrHubDisconnected = errors.New("hub disconnected")

// Host opens display surfaces through the hub. It satisfies display.Host.
type Host struct {
	conn  Conn
	newID func() string

	mu       sync.Mutex
	surfaces map[string]*surface
}

// NewHost creates a Host over an established connection. Inbound hub events
// must be routed to SurfaceClosed and Disconnected.
func NewHost(conn Conn) *Host {
	return &Host{
		conn:     conn,
		newID:    uuid.NewString,
		surfaces: make(map[string]*surface),
	}
}

// DialHost connects to the hub as an operator.
func DialHost(cfg DialConfig) (*Host, error) {
	h := &Host{newID: uuid.NewString, surfaces: make(map[string]*surface)}
	conn, err := dial(cfg, map[string]func(args ...any){
		wire.EventSurfaceClosed: func(args ...any) {
			raw, _ := splitAck(args)
			var ref wire.SurfaceRef
			if err := decodeAny(raw, &ref); err != nil {
				return
			}
			h.SurfaceClosed(ref)
		},
		"disconnect": func(args ...any) {
			h.Disconnected(disconnectReason(args))
		},
	})
	if err != nil {
		return nil, err
	}
	h.conn = conn
	return h, nil
}

// OpenSurface asks the terminal's display agent for a new surface.
func (h *Host) OpenSurface(ctx context.Context, geom display.Geometry) (display.Surface, error) {
	if !h.conn.Connected() {
		return nil, fmt.Errorf("%w: %w", display.ErrSessionCreationRefused, ErrHubDisconnected)
	}

	id := h.newID()
	args, err := h.conn.Request(ctx, wire.EventSurfaceOpen, wire.SurfaceOpenRequest{
		SurfaceID: id,
		Geometry:  geom.Wire(),
	})
	if err != nil {
		// A late ack would leave an orphan window on the display.
		h.conn.Emit(wire.EventSurfaceClose, wire.SurfaceRef{SurfaceID: id, Reason: "open abandoned"})
		return nil, fmt.Errorf("%w: %w", display.ErrSessionCreationRefused, err)
	}

	var ack wire.SurfaceOpenAck
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty ack", display.ErrSessionCreationRefused)
	}
	if err := decodeAny(args[0], &ack); err != nil {
		return nil, fmt.Errorf("%w: malformed ack: %w", display.ErrSessionCreationRefused, err)
	}
	if !ack.OK {
		return nil, fmt.Errorf("%w: %s", display.ErrSessionCreationRefused, ack.Reason)
	}
	if ack.SurfaceID != "" {
		id = ack.SurfaceID
	}

	s := &surface{id: id, host: h}
	h.mu.Lock()
	h.surfaces[id] = s
	h.mu.Unlock()
	logger.Debugf("Opened surface %s", id)
	return s, nil
}

// SurfaceClosed marks a surface closed after the hub reported it gone.
func (h *Host) SurfaceClosed(ref wire.SurfaceRef) {
	h.mu.Lock()
	s := h.surfaces[ref.SurfaceID]
	delete(h.surfaces, ref.SurfaceID)
	h.mu.Unlock()
	if s != nil {
		logger.Infof("Surface %s closed by hub: %s", ref.SurfaceID, ref.Reason)
		s.closed.Store(true)
	}
}

// Disconnected marks every surface closed; the hub drops them with the socket.
func (h *Host) Disconnected(reason string) {
	h.mu.Lock()
	surfaces := h.surfaces
	h.surfaces = make(map[string]*surface)
	h.mu.Unlock()
	for _, s := range surfaces {
		s.closed.Store(true)
	}
	logger.Warnf("Hub connection lost (%s), %d surface(s) closed", reason, len(surfaces))
}

// Close drops the hub connection.
func (h *Host) Close() {
	h.Disconnected("host closed")
	h.conn.Close()
}

func (h *Host) forget(id string) {
	h.mu.Lock()
	delete(h.surfaces, id)
	h.mu.Unlock()
}

type surface struct {
	id     string
	host   *Host
	closed atomic.Bool
}

func (s *surface) ID() string { return s.id }

func (s *surface) Closed() bool { return s.closed.Load() }

func (s *surface) Post(_ context.Context, env wire.Envelope) error {
	if s.closed.Load() {
		return display.ErrSurfaceClosed
	}
	if !s.host.conn.Connected() {
		return ErrHubDisconnected
	}
	s.host.conn.Emit(wire.EventEnvelope, wire.EnvelopeMessage{SurfaceID: s.id, Envelope: env})
	return nil
}

func (s *surface) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.host.forget(s.id)
	if s.host.conn.Connected() {
		s.host.conn.Emit(wire.EventSurfaceClose, wire.SurfaceRef{SurfaceID: s.id, Reason: "closed by operator"})
	}
	return nil
}
