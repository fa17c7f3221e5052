package domain

// ConnectivityState is the internal lifecycle state of a peer connection.
type ConnectivityState int

const (
	StateIdle ConnectivityState = iota
	StateNegotiating
	StateConnected
	StateDegraded
	StateDisconnected
)

func (s ConnectivityState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnectivityStatus is the coarse status exposed to callers. Internal
// sub-states (Degraded, retry counters) never cross this boundary.
type ConnectivityStatus string

const (
	StatusDisconnected ConnectivityStatus = "disconnected"
	StatusConnecting   ConnectivityStatus = "connecting"
	StatusConnected    ConnectivityStatus = "connected"
)

// Status collapses an internal state into the externally visible status.
func (s ConnectivityState) Status() ConnectivityStatus {
	switch s {
	case StateNegotiating:
		return StatusConnecting
	case StateConnected, StateDegraded:
		return StatusConnected
	default:
		return StatusDisconnected
	}
}

// TransportSignal is a connectivity signal reported by the underlying media
// transport.
type TransportSignal int

const (
	TransportConnecting TransportSignal = iota
	TransportConnected
	TransportFailed
	TransportDisconnected
)

func (t TransportSignal) String() string {
	switch t {
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportFailed:
		return "failed"
	case TransportDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
