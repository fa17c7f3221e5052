package ports

import (
	"peerlens/internal/core/domain"
)

// ConnectionHandle is an opaque reference to a transport-layer connection
// held by the registry for routing. The underlying connection is owned by
// the component that accepted it; the registry only sends and closes.
type ConnectionHandle interface {
	// Send delivers one signaling message to the peer behind the handle.
	Send(msg domain.SignalMessage) error

	// Close tears down the underlying connection. Safe to call twice.
	Close() error
}

// SessionRegistry stores at most one producer and one consumer handle per
// session. Implementations must serialize mutation per session and preserve
// FIFO delivery order for routed messages within a session.
type SessionRegistry interface {
	Register(id domain.SessionID, role domain.Role, h ConnectionHandle) domain.RegistrationOutcome
	Route(id domain.SessionID, from domain.Role, msg domain.SignalMessage) domain.RouteResult
	// Unregister reports whether h actually occupied a slot; a stale handle
	// already evicted by a re-registration removes nothing.
	Unregister(id domain.SessionID, h ConnectionHandle) bool

	// Sessions returns a presence snapshot for diagnostics.
	Sessions() []domain.SessionPresence
}
