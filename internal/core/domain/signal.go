package domain

import "encoding/json"

// SignalType enumerates the messages carried over the signaling channel.
type SignalType string

const (
	SignalJoin           SignalType = "join"
	SignalOffer          SignalType = "offer"
	SignalAnswer         SignalType = "answer"
	SignalICECandidate   SignalType = "ice-candidate"
	SignalNegotiateNow   SignalType = "negotiate-now"
	SignalAnalysisResult SignalType = "analysis-result"
)

// SignalMessage is the envelope exchanged over the signaling channel. The
// blobs are opaque to the relay; it only inspects Type and Role.
type SignalMessage struct {
	Type      SignalType      `json:"type"`
	Role      Role            `json:"role,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NegotiateNow builds the instruction the relay sends to the initiator once
// both roles are present in a session.
func NegotiateNow() SignalMessage {
	return SignalMessage{Type: SignalNegotiateNow}
}
