package wire

// SocketPath is the HTTP path the hub serves Socket.IO on.
const SocketPath = "/v1/display"

// Hub event names.
const (
	// EventSurfaceOpen is emitted by the operator to ask the display for a
	// new surface. The ack carries SurfaceOpenAck.
	EventSurfaceOpen = "surface:open"
	// EventSurfaceClose is emitted by the operator to close a surface.
	EventSurfaceClose = "surface:close"
	// EventEnvelope carries an EnvelopeMessage from operator to display.
	EventEnvelope = "envelope"
	// EventSurfaceClosed notifies the operator that a surface went away.
	EventSurfaceClosed = "surface:closed"
)

// Roles carried in hub join tokens.
const (
	RoleOperator = "operator"
	RoleDisplay  = "display"
)

// SurfaceGeometry is the requested size and position of a display surface.
type SurfaceGeometry struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Chromeless bool   `json:"chromeless"`
	URL        string `json:"url,omitempty"`
}

// SurfaceOpenRequest is the payload of EventSurfaceOpen.
type SurfaceOpenRequest struct {
	SurfaceID string          `json:"surfaceId"`
	Geometry  SurfaceGeometry `json:"geometry"`
}

// SurfaceOpenAck is the ack returned for EventSurfaceOpen.
type SurfaceOpenAck struct {
	OK        bool   `json:"ok"`
	SurfaceID string `json:"surfaceId,omitempty"`
	// Reason explains a refusal.
	Reason string `json:"reason,omitempty"`
}

// SurfaceRef names a surface in close/closed events.
type SurfaceRef struct {
	SurfaceID string `json:"surfaceId"`
	Reason    string `json:"reason,omitempty"`
}

// EnvelopeMessage is the payload of EventEnvelope.
type EnvelopeMessage struct {
	SurfaceID string   `json:"surfaceId"`
	Envelope  Envelope `json:"envelope"`
}
