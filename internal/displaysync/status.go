package displaysync

import (
	"time"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/recovery"
)

// Status is a point-in-time view of the display link.
type Status struct {
	State        recovery.FSMState `json:"state"`
	Connected    bool              `json:"connected"`
	Reconnecting bool              `json:"reconnecting"`
	Visibility   string            `json:"visibility,omitempty"`
	SurfaceID    string            `json:"surfaceId,omitempty"`
	Pending      int               `json:"pending"`
	Reconnects   int64             `json:"reconnects"`
	Dropped      int64             `json:"dropped"`
	Reason       string            `json:"reason,omitempty"`
	LastAliveAt  time.Time         `json:"lastAliveAt,omitempty"`
}

// Summary is a one-word description for operator hints.
func (s Status) Summary() string {
	switch {
	case s.State == recovery.StateClosed:
		return "closed"
	case s.State == recovery.StateIdle:
		return "off"
	case s.Connected:
		return "connected"
	case s.State == recovery.StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

func statusFrom(st recovery.State, surfaceID string) Status {
	s := Status{
		State:        st.FSM,
		Connected:    st.FSM == recovery.StateStable && st.Connected,
		Reconnecting: st.FSM == recovery.StateReconnecting && st.Attempting,
		Visibility:   string(st.Visibility),
		SurfaceID:    surfaceID,
		Pending:      len(st.Pending),
		Reconnects:   st.Reconnects,
		Dropped:      st.Dropped,
		Reason:       st.Reason,
	}
	if st.LastAliveMs > 0 {
		s.LastAliveAt = time.UnixMilli(st.LastAliveMs)
	}
	return s
}
