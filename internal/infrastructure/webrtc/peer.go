package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"peerlens/internal/core/domain"

	pion "github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// PeerTransport adapts a pion PeerConnection to ports.MediaTransport. The
// lifecycle machine never sees pion types; descriptions and candidates cross
// the boundary as opaque JSON blobs.
type PeerTransport struct {
	pc   *pion.PeerConnection
	role domain.Role

	onLocalCandidate  func(candidate json.RawMessage)
	onTransportSignal func(sig domain.TransportSignal)

	closeOnce sync.Once
	logger    *zap.SugaredLogger
}

// NewPeerTransport creates the underlying peer connection. The consumer side
// opens a data channel for analysis traffic so the SDP carries a media
// section even before tracks exist.
func NewPeerTransport(iceServers []pion.ICEServer, role domain.Role, logger *zap.Logger) (*PeerTransport, error) {
	pc, err := pion.NewPeerConnection(pion.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	t := &PeerTransport{
		pc:     pc,
		role:   role,
		logger: logger.Sugar(),
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil || t.onLocalCandidate == nil {
			return
		}
		blob, err := json.Marshal(c.ToJSON())
		if err != nil {
			t.logger.Warnw("marshal local candidate", "error", err)
			return
		}
		t.onLocalCandidate(blob)
	})

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		t.logger.Infow("peer connection state", "state", state.String())
		if t.onTransportSignal == nil {
			return
		}
		switch state {
		case pion.PeerConnectionStateConnecting:
			t.onTransportSignal(domain.TransportConnecting)
		case pion.PeerConnectionStateConnected:
			t.onTransportSignal(domain.TransportConnected)
		case pion.PeerConnectionStateFailed:
			t.onTransportSignal(domain.TransportFailed)
		case pion.PeerConnectionStateDisconnected, pion.PeerConnectionStateClosed:
			t.onTransportSignal(domain.TransportDisconnected)
		}
	})

	if role == domain.RoleConsumer {
		if _, err := pc.CreateDataChannel("analysis", nil); err != nil {
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
	}

	return t, nil
}

// OnLocalCandidate registers the callback for trickled local candidates.
func (t *PeerTransport) OnLocalCandidate(fn func(candidate json.RawMessage)) {
	t.onLocalCandidate = fn
}

// OnTransportSignal registers the connectivity signal callback.
func (t *PeerTransport) OnTransportSignal(fn func(sig domain.TransportSignal)) {
	t.onTransportSignal = fn
}

// OnTrack exposes remote track arrival for the bandwidth sampler.
func (t *PeerTransport) OnTrack(fn func(track *pion.TrackRemote, receiver *pion.RTPReceiver)) {
	t.pc.OnTrack(fn)
}

// PeerConnection exposes the raw connection for stats collection.
func (t *PeerTransport) PeerConnection() *pion.PeerConnection {
	return t.pc
}

func (t *PeerTransport) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(offer)
}

func (t *PeerTransport) AcceptOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error) {
	var sd pion.SessionDescription
	if err := json.Unmarshal(offer, &sd); err != nil {
		return nil, fmt.Errorf("unmarshal offer: %w", err)
	}
	if err := t.pc.SetRemoteDescription(sd); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(answer)
}

func (t *PeerTransport) AcceptAnswer(ctx context.Context, answer json.RawMessage) error {
	var sd pion.SessionDescription
	if err := json.Unmarshal(answer, &sd); err != nil {
		return fmt.Errorf("unmarshal answer: %w", err)
	}
	if err := t.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *PeerTransport) AddCandidate(candidate json.RawMessage) error {
	var init pion.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("unmarshal candidate: %w", err)
	}
	if err := t.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// RestartConnectivity renegotiates ICE in place and returns the restart
// offer for the counterpart.
func (t *PeerTransport) RestartConnectivity(ctx context.Context) (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(&pion.OfferOptions{ICERestart: true})
	if err != nil {
		return nil, fmt.Errorf("create restart offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(offer)
}

func (t *PeerTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.pc.Close()
	})
	return err
}
