package domain

import "time"

type SessionID string

// Role identifies which side of a session a connection belongs to.
type Role string

const (
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
)

// Valid reports whether the role is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleProducer || r == RoleConsumer
}

// Counterpart returns the opposite role within a session.
func (r Role) Counterpart() Role {
	if r == RoleProducer {
		return RoleConsumer
	}
	return RoleProducer
}

// RegistrationOutcome describes the state of a session after a Register call.
type RegistrationOutcome struct {
	// Replaced is true when a prior handle occupied the same role and was
	// evicted. This is the reconnect case, not an error.
	Replaced bool

	// BothPresent is true when the session now holds a producer and a
	// consumer.
	BothPresent bool
}

// RouteResult describes the outcome of routing a message to a counterpart.
type RouteResult int

const (
	Delivered RouteResult = iota
	NoCounterpart
)

func (r RouteResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case NoCounterpart:
		return "no_counterpart"
	default:
		return "unknown"
	}
}

// SessionPresence is the diagnostics view of a session: which roles have
// joined and when. It carries no connection handles.
type SessionPresence struct {
	ID              SessionID `json:"id"`
	ProducerJoined  bool      `json:"producer_joined"`
	ConsumerJoined  bool      `json:"consumer_joined"`
	LastRegistered  time.Time `json:"last_registered"`
}
