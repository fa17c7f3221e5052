package ports

import "peerlens/internal/core/domain"

// RelayObserver receives relay events for monitoring. Implementations must
// be cheap and non-blocking.
type RelayObserver interface {
	PeerRegistered(role domain.Role, replaced bool)
	PeerUnregistered(role domain.Role)
	MessageRouted(t domain.SignalType)
	MessageDropped(t domain.SignalType)
	NegotiateNowEmitted()
}

// NopRelayObserver discards all events.
type NopRelayObserver struct{}

func (NopRelayObserver) PeerRegistered(domain.Role, bool) {}
func (NopRelayObserver) PeerUnregistered(domain.Role)     {}
func (NopRelayObserver) MessageRouted(domain.SignalType)  {}
func (NopRelayObserver) MessageDropped(domain.SignalType) {}
func (NopRelayObserver) NegotiateNowEmitted()             {}
