package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"peerlens/internal/core/domain"
	"peerlens/internal/core/ports"

	"go.uber.org/zap"
)

// RelayService forwards negotiation messages between the two peers of a
// session and decides who initiates negotiation. The relay, not the peers,
// designates the initiator: once both roles are present it instructs the
// consumer to create the offer, which removes the simultaneous-offer race.
type RelayService struct {
	registry ports.SessionRegistry
	presence ports.PresenceRepository
	observer ports.RelayObserver

	// settleWindow absorbs near-simultaneous joins before the both-present
	// check is evaluated.
	settleWindow time.Duration

	mu      sync.Mutex
	pending map[domain.SessionID]*time.Timer

	logger *zap.SugaredLogger
}

func NewRelayService(
	registry ports.SessionRegistry,
	presence ports.PresenceRepository,
	observer ports.RelayObserver,
	settleWindow time.Duration,
	logger *zap.Logger,
) *RelayService {
	if observer == nil {
		observer = ports.NopRelayObserver{}
	}
	return &RelayService{
		registry:     registry,
		presence:     presence,
		observer:     observer,
		settleWindow: settleWindow,
		pending:      make(map[domain.SessionID]*time.Timer),
		logger:       logger.Sugar(),
	}
}

// HandleJoin registers the handle and, when the session becomes complete,
// schedules the negotiate-now instruction for the consumer.
func (s *RelayService) HandleJoin(ctx context.Context, id domain.SessionID, role domain.Role, h ports.ConnectionHandle) error {
	if !role.Valid() {
		return domain.NewNegotiationError(fmt.Errorf("%w: %q", domain.ErrInvalidRole, role))
	}

	outcome := s.registry.Register(id, role, h)
	s.observer.PeerRegistered(role, outcome.Replaced)
	s.logger.Infow("peer joined",
		"session_id", id,
		"role", role,
		"replaced", outcome.Replaced,
		"both_present", outcome.BothPresent,
	)

	if s.presence != nil {
		if err := s.presence.SetJoined(ctx, id, role); err != nil {
			s.logger.Warnw("presence update failed", "session_id", id, "error", err)
		}
	}

	if outcome.BothPresent {
		s.scheduleNegotiateNow(id)
	}
	return nil
}

// scheduleNegotiateNow arms a settle timer for the session. Triggers that
// land while a timer is armed collapse into the pending one, so a burst of
// registrations emits a single instruction.
func (s *RelayService) scheduleNegotiateNow(id domain.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, armed := s.pending[id]; armed {
		return
	}
	s.pending[id] = time.AfterFunc(s.settleWindow, func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		s.emitNegotiateNow(id)
	})
}

// emitNegotiateNow sends negotiate-now to the consumer. Routing "from" the
// producer targets the consumer slot; a session that lost a role during the
// settle window drops the instruction silently.
func (s *RelayService) emitNegotiateNow(id domain.SessionID) {
	res := s.registry.Route(id, domain.RoleProducer, domain.NegotiateNow())
	if res != domain.Delivered {
		s.logger.Debugw("negotiate-now dropped, session no longer complete", "session_id", id)
		s.observer.MessageDropped(domain.SignalNegotiateNow)
		return
	}
	s.observer.NegotiateNowEmitted()
	s.logger.Infow("negotiate-now emitted", "session_id", id)
}

// HandleMessage routes one inbound negotiation message to the counterpart.
// Malformed messages and missing counterparts are absorbed: they are
// expected transient states, logged and never surfaced to the sender.
func (s *RelayService) HandleMessage(ctx context.Context, id domain.SessionID, from domain.Role, msg domain.SignalMessage) {
	switch msg.Type {
	case domain.SignalOffer, domain.SignalAnswer, domain.SignalICECandidate, domain.SignalAnalysisResult:
	case domain.SignalJoin:
		// join is handled at connection setup; a repeated join is malformed
		s.logger.Debugw("unexpected join on established channel", "session_id", id, "role", from)
		return
	default:
		s.logger.Debugw("malformed message dropped", "session_id", id, "role", from, "type", msg.Type)
		s.observer.MessageDropped(msg.Type)
		return
	}

	switch s.registry.Route(id, from, msg) {
	case domain.Delivered:
		s.observer.MessageRouted(msg.Type)
	case domain.NoCounterpart:
		s.logger.Debugw("no counterpart yet, message dropped", "session_id", id, "role", from, "type", msg.Type)
		s.observer.MessageDropped(msg.Type)
	}
}

// HandleDisconnect removes the handle from the session. A stale handle,
// already evicted by a re-registration, changes nothing: presence and
// monitoring reflect the live replacement.
func (s *RelayService) HandleDisconnect(ctx context.Context, id domain.SessionID, role domain.Role, h ports.ConnectionHandle) {
	if !s.registry.Unregister(id, h) {
		return
	}
	s.observer.PeerUnregistered(role)
	s.logger.Infow("peer disconnected", "session_id", id, "role", role)

	if s.presence != nil {
		if err := s.presence.SetLeft(ctx, id, role); err != nil {
			s.logger.Warnw("presence update failed", "session_id", id, "error", err)
		}
	}
}

// Sessions exposes the registry's presence snapshot for diagnostics.
func (s *RelayService) Sessions() []domain.SessionPresence {
	return s.registry.Sessions()
}
