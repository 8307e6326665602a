package sockethost

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// Renderer draws surfaces on the customer-facing screen.
type Renderer interface {
	Open(id string, geom wire.SurfaceGeometry) error
	Render(id string, env wire.Envelope)
	Close(id string, reason string)
}

type agentSurface struct {
	geom    wire.SurfaceGeometry
	lastSeq uint64
}

// Agent is the display side of the hub: it opens surfaces on request and
// renders the envelopes addressed to them.
type Agent struct {
	conn     Conn
	renderer Renderer

	mu       sync.Mutex
	surfaces map[string]*agentSurface
}

// NewAgent creates an agent over an established connection.
func NewAgent(conn Conn, renderer Renderer) *Agent {
	return &Agent{
		conn:     conn,
		renderer: renderer,
		surfaces: make(map[string]*agentSurface),
	}
}

// DialAgent connects to the hub as a display.
func DialAgent(cfg DialConfig, renderer Renderer) (*Agent, error) {
	a := &Agent{renderer: renderer, surfaces: make(map[string]*agentSurface)}
	conn, err := dial(cfg, map[string]func(args ...any){
		wire.EventSurfaceOpen: func(args ...any) {
			raw, ack := splitAck(args)
			var req wire.SurfaceOpenRequest
			if err := decodeAny(raw, &req); err != nil {
				if ack != nil {
					ack(wire.SurfaceOpenAck{OK: false, Reason: "invalid request"})
				}
				return
			}
			res := a.HandleOpen(req)
			if ack != nil {
				ack(res)
			}
		},
		wire.EventEnvelope: func(args ...any) {
			raw, _ := splitAck(args)
			var msg wire.EnvelopeMessage
			if err := decodeAny(raw, &msg); err != nil {
				logger.Warnf("Malformed envelope: %v", err)
				return
			}
			a.HandleEnvelope(msg)
		},
		wire.EventSurfaceClose: func(args ...any) {
			raw, _ := splitAck(args)
			var ref wire.SurfaceRef
			if err := decodeAny(raw, &ref); err != nil {
				return
			}
			a.HandleClose(ref)
		},
		"disconnect": func(args ...any) {
			a.Disconnected(disconnectReason(args))
		},
	})
	if err != nil {
		return nil, err
	}
	a.conn = conn
	return a, nil
}

// HandleOpen opens a surface for the hub.
func (a *Agent) HandleOpen(req wire.SurfaceOpenRequest) wire.SurfaceOpenAck {
	if req.SurfaceID == "" {
		return wire.SurfaceOpenAck{OK: false, Reason: "missing surface id"}
	}
	if err := a.renderer.Open(req.SurfaceID, req.Geometry); err != nil {
		logger.Warnf("Refusing surface %s: %v", req.SurfaceID, err)
		return wire.SurfaceOpenAck{OK: false, Reason: err.Error()}
	}
	a.mu.Lock()
	a.surfaces[req.SurfaceID] = &agentSurface{geom: req.Geometry}
	a.mu.Unlock()
	return wire.SurfaceOpenAck{OK: true, SurfaceID: req.SurfaceID}
}

// HandleEnvelope renders an envelope. State updates older than the last one
// rendered on the surface are dropped; a welcome resets the sequence.
func (a *Agent) HandleEnvelope(msg wire.EnvelopeMessage) {
	env := msg.Envelope
	if err := env.Validate(); err != nil {
		logger.Warnf("Dropping envelope for %s: %v", msg.SurfaceID, err)
		return
	}

	a.mu.Lock()
	s := a.surfaces[msg.SurfaceID]
	if s == nil {
		a.mu.Unlock()
		logger.Debugf("Envelope for unknown surface %s", msg.SurfaceID)
		a.conn.Emit(wire.EventSurfaceClosed, wire.SurfaceRef{SurfaceID: msg.SurfaceID, Reason: "unknown surface"})
		return
	}
	switch env.Kind {
	case wire.KindPing:
		a.mu.Unlock()
		return
	case wire.KindWelcome:
		s.lastSeq = env.Seq
	case wire.KindStateUpdate:
		if env.Seq != 0 && env.Seq <= s.lastSeq {
			a.mu.Unlock()
			logger.Debugf("Dropping stale update seq=%d (last %d) on %s", env.Seq, s.lastSeq, msg.SurfaceID)
			return
		}
		s.lastSeq = env.Seq
	}
	a.mu.Unlock()

	a.renderer.Render(msg.SurfaceID, env)
}

// HandleClose closes a surface at the operator's request.
func (a *Agent) HandleClose(ref wire.SurfaceRef) {
	if a.drop(ref.SurfaceID) {
		a.renderer.Close(ref.SurfaceID, ref.Reason)
	}
}

// CloseSurface closes a surface locally, e.g. because the window was closed
// by hand, and tells the operator.
func (a *Agent) CloseSurface(id, reason string) {
	if !a.drop(id) {
		return
	}
	a.renderer.Close(id, reason)
	a.conn.Emit(wire.EventSurfaceClosed, wire.SurfaceRef{SurfaceID: id, Reason: reason})
}

// Surfaces returns the ids of open surfaces.
func (a *Agent) Surfaces() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.surfaces))
	for id := range a.surfaces {
		out = append(out, id)
	}
	return out
}

// Disconnected closes every surface; the hub forgets them with the socket.
func (a *Agent) Disconnected(reason string) {
	a.mu.Lock()
	surfaces := a.surfaces
	a.surfaces = make(map[string]*agentSurface)
	a.mu.Unlock()
	for id := range surfaces {
		a.renderer.Close(id, reason)
	}
	logger.Warnf("Hub connection lost (%s)", reason)
}

// Close drops the hub connection.
func (a *Agent) Close() {
	a.Disconnected("agent closed")
	a.conn.Close()
}

func (a *Agent) drop(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.surfaces[id]; !ok {
		return false
	}
	delete(a.surfaces, id)
	return true
}

// WriterRenderer prints surface activity as text lines.
type WriterRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterRenderer renders to w.
func NewWriterRenderer(w io.Writer) *WriterRenderer {
	return &WriterRenderer{w: w}
}

func (r *WriterRenderer) Open(id string, geom wire.SurfaceGeometry) error {
	r.printf("[%s] open %dx%d+%d+%d chromeless=%t\n", id, geom.Width, geom.Height, geom.X, geom.Y, geom.Chromeless)
	return nil
}

func (r *WriterRenderer) Render(id string, env wire.Envelope) {
	switch env.Kind {
	case wire.KindWelcome:
		p, err := env.Welcome()
		if err != nil {
			r.printf("[%s] welcome: %v\n", id, err)
			return
		}
		r.printf("[%s] welcome %q screen=%s\n", id, p.DisplayName, p.Screen)
	case wire.KindStateUpdate:
		p, err := env.StateUpdate()
		if err != nil {
			r.printf("[%s] update: %v\n", id, err)
			return
		}
		r.printf("[%s] #%d %s %s\n", id, env.Seq, p.Screen, compact(p.Data))
	}
}

func (r *WriterRenderer) Close(id string, reason string) {
	r.printf("[%s] closed: %s\n", id, reason)
}

func (r *WriterRenderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.w, format, args...)
}

func compact(data json.RawMessage) string {
	if len(data) == 0 {
		return "{}"
	}
	return string(data)
}
