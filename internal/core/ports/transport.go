package ports

import (
	"context"
	"encoding/json"

	"peerlens/internal/core/domain"
)

// MediaTransport abstracts the real-time transport a peer rides on. Blobs
// are opaque session descriptions and candidates; the lifecycle machine
// never inspects them.
type MediaTransport interface {
	// CreateOffer produces a local description blob to send to the
	// counterpart (initiator side).
	CreateOffer(ctx context.Context) (json.RawMessage, error)

	// AcceptOffer applies the remote offer and returns the answer blob
	// (passive side).
	AcceptOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)

	// AcceptAnswer applies the remote answer (initiator side).
	AcceptAnswer(ctx context.Context, answer json.RawMessage) error

	// AddCandidate applies one connectivity-path candidate. Must only be
	// called after a remote description has been applied.
	AddCandidate(candidate json.RawMessage) error

	// RestartConnectivity renegotiates transport-level connectivity in
	// place and returns the restart offer to send to the counterpart.
	RestartConnectivity(ctx context.Context) (json.RawMessage, error)

	// Close tears the transport down. Safe to call twice.
	Close() error
}

// SignalSender writes messages to the signaling channel.
type SignalSender interface {
	Send(msg domain.SignalMessage) error
}
