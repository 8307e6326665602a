package hub

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
	"github.com/uber-go/tally"
)

// DefaultOpenTimeout bounds how long the hub waits for a display to ack a
// surface:open request.
const DefaultOpenTimeout = 5 * time.Second

var (
	// ErrNoDisplay is returned when a terminal has no display attached.
	ErrNoDisplay = errors.New("no display attached")
	// ErrUnknownSurface is returned when an operator addresses a surface it
	// does not own.
	ErrUnknownSurface = errors.New("unknown surface")
)

// Peer is one connected socket as seen by the registry.
type Peer interface {
	ID() string
	Emit(event string, payload any)
	// Request emits event and calls reply with the ack arguments or an error
	// once timeout elapses.
	Request(event string, payload any, timeout time.Duration, reply func(args []any, err error))
	Disconnect()
}

type terminal struct {
	operators map[string]Peer
	display   Peer
	// surfaces maps surface id to the owning operator peer id.
	surfaces map[string]string
}

func newTerminal() *terminal {
	return &terminal{
		operators: make(map[string]Peer),
		surfaces:  make(map[string]string),
	}
}

func (t *terminal) empty() bool {
	return t.display == nil && len(t.operators) == 0
}

// TerminalStatus summarizes what is attached to a terminal.
type TerminalStatus struct {
	Terminal        string   `json:"terminal"`
	DisplayAttached bool     `json:"displayAttached"`
	Operators       int      `json:"operators"`
	Surfaces        []string `json:"surfaces"`
}

// Registry tracks operators, displays and surface ownership per terminal.
//
// It never touches sockets directly; all traffic goes through Peer.
type Registry struct {
	mu          sync.Mutex
	terminals   map[string]*terminal
	peerTerm    map[string]string
	openTimeout time.Duration

	stats     tally.Scope
	operators tally.Gauge
	displays  tally.Gauge
	relayed   tally.Counter
	refused   tally.Counter
}

// NewRegistry creates an empty registry reporting to stats.
func NewRegistry(stats tally.Scope, openTimeout time.Duration) *Registry {
	if stats == nil {
		stats = tally.NoopScope
	}
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}
	return &Registry{
		terminals:   make(map[string]*terminal),
		peerTerm:    make(map[string]string),
		openTimeout: openTimeout,
		stats:       stats,
		operators:   stats.Gauge("hub_operators"),
		displays:    stats.Gauge("hub_displays"),
		relayed:     stats.Counter("hub_relayed"),
		refused:     stats.Counter("hub_open_refused"),
	}
}

func (r *Registry) terminalLocked(id string) *terminal {
	t, ok := r.terminals[id]
	if !ok {
		t = newTerminal()
		r.terminals[id] = t
	}
	return t
}

// AddOperator attaches an operator peer to a terminal.
func (r *Registry) AddOperator(terminalID string, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.terminalLocked(terminalID)
	t.operators[p.ID()] = p
	r.peerTerm[p.ID()] = terminalID
	r.updateGaugesLocked()
}

// AddDisplay attaches a display peer to a terminal. A previously attached
// display is disconnected and its surfaces are reported closed.
func (r *Registry) AddDisplay(terminalID string, p Peer) {
	r.mu.Lock()
	t := r.terminalLocked(terminalID)
	prev := t.display
	var notices []notice
	if prev != nil && prev.ID() != p.ID() {
		notices = r.dropSurfacesLocked(t, "display replaced")
		delete(r.peerTerm, prev.ID())
	}
	t.display = p
	r.peerTerm[p.ID()] = terminalID
	r.updateGaugesLocked()
	r.mu.Unlock()

	deliver(notices)
	if prev != nil && prev.ID() != p.ID() {
		logger.Infof("Display replaced on terminal %s (%s -> %s)", terminalID, prev.ID(), p.ID())
		prev.Disconnect()
	}
}

// Remove detaches a peer. Surfaces served by a removed display are reported
// closed to their operators; surfaces owned by a removed operator are closed
// on the display.
func (r *Registry) Remove(peerID, reason string) {
	r.mu.Lock()
	terminalID, ok := r.peerTerm[peerID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.peerTerm, peerID)
	t := r.terminals[terminalID]

	var notices []notice
	if t.display != nil && t.display.ID() == peerID {
		t.display = nil
		notices = r.dropSurfacesLocked(t, "display disconnected: "+reason)
	} else if _, ok := t.operators[peerID]; ok {
		delete(t.operators, peerID)
		for surfaceID, owner := range t.surfaces {
			if owner != peerID {
				continue
			}
			delete(t.surfaces, surfaceID)
			if t.display != nil {
				notices = append(notices, notice{
					peer:  t.display,
					event: wire.EventSurfaceClose,
					ref:   wire.SurfaceRef{SurfaceID: surfaceID, Reason: "operator disconnected"},
				})
			}
		}
	}
	if t.empty() {
		delete(r.terminals, terminalID)
	}
	r.updateGaugesLocked()
	r.mu.Unlock()

	deliver(notices)
}

// OpenSurface forwards an operator's open request to the terminal display.
// done is called exactly once with the outcome.
func (r *Registry) OpenSurface(operatorID string, req wire.SurfaceOpenRequest, done func(wire.SurfaceOpenAck)) {
	r.mu.Lock()
	terminalID := r.peerTerm[operatorID]
	t := r.terminals[terminalID]
	if t == nil || t.display == nil {
		r.mu.Unlock()
		r.refused.Inc(1)
		done(wire.SurfaceOpenAck{OK: false, Reason: ErrNoDisplay.Error()})
		return
	}
	if _, ok := t.operators[operatorID]; !ok {
		r.mu.Unlock()
		r.refused.Inc(1)
		done(wire.SurfaceOpenAck{OK: false, Reason: "not an operator"})
		return
	}
	display := t.display
	r.mu.Unlock()

	display.Request(wire.EventSurfaceOpen, req, r.openTimeout, func(args []any, err error) {
		if err != nil {
			r.refused.Inc(1)
			done(wire.SurfaceOpenAck{OK: false, Reason: err.Error()})
			return
		}
		var ack wire.SurfaceOpenAck
		if len(args) == 0 || decodeAny(args[0], &ack) != nil {
			r.refused.Inc(1)
			done(wire.SurfaceOpenAck{OK: false, Reason: "malformed display ack"})
			return
		}
		if !ack.OK {
			r.refused.Inc(1)
			done(ack)
			return
		}
		if ack.SurfaceID == "" {
			ack.SurfaceID = req.SurfaceID
		}

		r.mu.Lock()
		t := r.terminals[terminalID]
		attached := t != nil && t.display != nil && t.display.ID() == display.ID()
		ownerAlive := t != nil && t.operators[operatorID] != nil
		if attached && ownerAlive {
			t.surfaces[ack.SurfaceID] = operatorID
		}
		r.mu.Unlock()

		if !attached || !ownerAlive {
			r.refused.Inc(1)
			if attached {
				display.Emit(wire.EventSurfaceClose, wire.SurfaceRef{SurfaceID: ack.SurfaceID, Reason: "operator disconnected"})
			}
			done(wire.SurfaceOpenAck{OK: false, Reason: "peer detached during open"})
			return
		}
		logger.Debugf("Surface %s opened on terminal %s", ack.SurfaceID, terminalID)
		done(ack)
	})
}

// CloseSurface closes a surface owned by operatorID.
func (r *Registry) CloseSurface(operatorID string, ref wire.SurfaceRef) error {
	r.mu.Lock()
	t, err := r.ownedLocked(operatorID, ref.SurfaceID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	delete(t.surfaces, ref.SurfaceID)
	display := t.display
	r.mu.Unlock()

	if display != nil {
		display.Emit(wire.EventSurfaceClose, ref)
	}
	return nil
}

// Relay forwards an envelope from operatorID to the display serving the
// surface. When the surface is gone the operator is told so it can recover.
func (r *Registry) Relay(operatorID string, msg wire.EnvelopeMessage) error {
	r.mu.Lock()
	t, err := r.ownedLocked(operatorID, msg.SurfaceID)
	var display, operator Peer
	if err == nil {
		display = t.display
	} else if tt := r.terminals[r.peerTerm[operatorID]]; tt != nil {
		operator = tt.operators[operatorID]
	}
	r.mu.Unlock()

	if err != nil {
		if operator != nil {
			operator.Emit(wire.EventSurfaceClosed, wire.SurfaceRef{SurfaceID: msg.SurfaceID, Reason: err.Error()})
		}
		return err
	}
	display.Emit(wire.EventEnvelope, msg)
	r.relayed.Inc(1)
	logger.Tracef("Relayed %s seq=%d to surface %s", msg.Envelope.Kind, msg.Envelope.Seq, msg.SurfaceID)
	return nil
}

// SurfaceClosed records that a display closed one of its surfaces, usually
// because the customer-facing window was closed by hand.
func (r *Registry) SurfaceClosed(displayID string, ref wire.SurfaceRef) {
	r.mu.Lock()
	t := r.terminals[r.peerTerm[displayID]]
	if t == nil || t.display == nil || t.display.ID() != displayID {
		r.mu.Unlock()
		return
	}
	owner, ok := t.surfaces[ref.SurfaceID]
	delete(t.surfaces, ref.SurfaceID)
	operator := t.operators[owner]
	r.mu.Unlock()

	if ok && operator != nil {
		operator.Emit(wire.EventSurfaceClosed, ref)
	}
}

// Status reports what is attached to terminalID.
func (r *Registry) Status(terminalID string) TerminalStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := TerminalStatus{Terminal: terminalID, Surfaces: []string{}}
	t := r.terminals[terminalID]
	if t == nil {
		return st
	}
	st.DisplayAttached = t.display != nil
	st.Operators = len(t.operators)
	for id := range t.surfaces {
		st.Surfaces = append(st.Surfaces, id)
	}
	sort.Strings(st.Surfaces)
	return st
}

func (r *Registry) ownedLocked(operatorID, surfaceID string) (*terminal, error) {
	t := r.terminals[r.peerTerm[operatorID]]
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSurface, surfaceID)
	}
	if owner, ok := t.surfaces[surfaceID]; !ok || owner != operatorID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSurface, surfaceID)
	}
	if t.display == nil {
		return nil, ErrNoDisplay
	}
	return t, nil
}

func (r *Registry) dropSurfacesLocked(t *terminal, reason string) []notice {
	var out []notice
	for surfaceID, owner := range t.surfaces {
		delete(t.surfaces, surfaceID)
		if op := t.operators[owner]; op != nil {
			out = append(out, notice{
				peer:  op,
				event: wire.EventSurfaceClosed,
				ref:   wire.SurfaceRef{SurfaceID: surfaceID, Reason: reason},
			})
		}
	}
	return out
}

func (r *Registry) updateGaugesLocked() {
	var ops, displays int
	for _, t := range r.terminals {
		ops += len(t.operators)
		if t.display != nil {
			displays++
		}
	}
	r.operators.Update(float64(ops))
	r.displays.Update(float64(displays))
}

// notice is a message delivered after the registry lock is released.
type notice struct {
	peer  Peer
	event string
	ref   wire.SurfaceRef
}

func deliver(notices []notice) {
	for _, n := range notices {
		n.peer.Emit(n.event, n.ref)
	}
}
