// Package wire defines the typed messages exchanged between the operator
// terminal and the customer display, plus the hub event payloads that carry
// them.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies the shape of an envelope payload.
type Kind string

const (
	// KindWelcome greets a freshly opened surface with the display context.
	KindWelcome Kind = "welcome"
	// KindPing is a liveness probe. It carries no payload.
	KindPing Kind = "ping"
	// KindStateUpdate pushes the current transaction state to the display.
	KindStateUpdate Kind = "state-update"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindWelcome, KindPing, KindStateUpdate:
		return true
	}
	return false
}

var (
	// ErrUnknownKind is returned when decoding an envelope with an unknown kind.
	ErrUnknownKind = errors.New("wire: unknown envelope kind")
	// ErrMissingPayload is returned when a welcome or state update has no payload.
	ErrMissingPayload = errors.New("wire: missing payload")
)

// Envelope is the unit of transfer between the two surfaces.
//
// Envelopes are values. Methods that change a field return a modified copy.
type Envelope struct {
	// ID uniquely identifies this envelope for log correlation.
	ID string `json:"id"`
	// Kind selects the payload shape.
	Kind Kind `json:"kind"`
	// Seq increases monotonically per operator context. Zero means unsequenced.
	Seq uint64 `json:"seq,omitempty"`
	// SentAtMs is the dispatch time in unix milliseconds.
	SentAtMs int64 `json:"sentAt,omitempty"`
	// Payload is forwarded opaquely.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewPing returns a ping envelope.
func NewPing() Envelope {
	return Envelope{ID: uuid.NewString(), Kind: KindPing}
}

// NewWelcome returns a welcome envelope carrying p.
func NewWelcome(p WelcomePayload) (Envelope, error) {
	return newWithPayload(KindWelcome, p)
}

// NewStateUpdate returns a state update for the given screen. data is
// forwarded to the display as-is and may be nil.
func NewStateUpdate(screen Screen, data json.RawMessage) (Envelope, error) {
	return newWithPayload(KindStateUpdate, StateUpdatePayload{Screen: screen, Data: data})
}

func newWithPayload(kind Kind, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Envelope{ID: uuid.NewString(), Kind: kind, Payload: raw}, nil
}

// WithSeq returns a copy of e stamped with seq.
func (e Envelope) WithSeq(seq uint64) Envelope {
	e.Seq = seq
	return e
}

// WithSentAt returns a copy of e stamped with the dispatch time.
func (e Envelope) WithSentAt(ms int64) Envelope {
	e.SentAtMs = ms
	return e
}

// Validate checks the kind and that payload-bearing kinds have a payload.
func (e Envelope) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	if e.Kind != KindPing && len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingPayload, e.Kind)
	}
	return nil
}

// Encode serializes e to JSON.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses and validates an envelope.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// Welcome decodes the payload of a welcome envelope.
func (e Envelope) Welcome() (WelcomePayload, error) {
	var p WelcomePayload
	if e.Kind != KindWelcome {
		return p, fmt.Errorf("envelope kind is %s, not %s", e.Kind, KindWelcome)
	}
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// StateUpdate decodes the payload of a state update envelope.
func (e Envelope) StateUpdate() (StateUpdatePayload, error) {
	var p StateUpdatePayload
	if e.Kind != KindStateUpdate {
		return p, fmt.Errorf("envelope kind is %s, not %s", e.Kind, KindStateUpdate)
	}
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}
