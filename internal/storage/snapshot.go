// Package storage persists the small amount of state the display
// synchronization subsystem needs across a full process suspension.
package storage

import "context"

// RecoverySnapshot is written whenever a reconnect starts and cleared once it
// completes. Reads and writes are whole-value.
type RecoverySnapshot struct {
	// SavedAtMs is the unix-millisecond time of the last write.
	SavedAtMs int64 `json:"savedAtMs"`
	// LastKnownContext names what the operator was showing. Diagnostic only.
	LastKnownContext string `json:"lastKnownContext,omitempty"`
	// ForceReconnectRequested is set right before a reconnect attempt so that
	// an attempt interrupted by suspension is retried on the next wake.
	ForceReconnectRequested bool `json:"forceReconnectRequested"`
}

// Store is a durable key-value slot holding one RecoverySnapshot.
type Store interface {
	// Load returns the stored snapshot. ok is false when nothing is stored.
	Load(ctx context.Context) (snap RecoverySnapshot, ok bool, err error)
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap RecoverySnapshot) error
}
