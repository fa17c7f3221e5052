package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"peerlens/internal/core/domain"
	"peerlens/internal/core/ports"
	"peerlens/pkg/retry"

	"go.uber.org/zap"
)

// candidateFailureLimit is how many candidate-apply failures are tolerated
// before a connectivity restart is issued.
const candidateFailureLimit = 3

// LifecycleService is the per-participant connection state machine. It owns
// local transport-health state, drives retries and restarts, and exposes a
// single coarse connectivity status to its caller; internal sub-states and
// counters never cross the boundary.
type LifecycleService struct {
	role      domain.Role
	transport ports.MediaTransport
	signaler  ports.SignalSender

	reconnectPolicy retry.Policy
	failureLimit    int

	mu                sync.Mutex
	state             domain.ConnectivityState
	remoteDescApplied bool
	pendingCandidates []json.RawMessage
	candidateFailures int
	restartIssued     bool

	logger *zap.SugaredLogger
}

// LifecycleOption tweaks construction defaults.
type LifecycleOption func(*LifecycleService)

// WithCandidateFailureLimit overrides the candidate failure tolerance.
func WithCandidateFailureLimit(limit int) LifecycleOption {
	return func(s *LifecycleService) {
		if limit > 0 {
			s.failureLimit = limit
		}
	}
}

// WithReconnectPolicy overrides the signaling reconnection policy.
func WithReconnectPolicy(p retry.Policy) LifecycleOption {
	return func(s *LifecycleService) { s.reconnectPolicy = p }
}

func NewLifecycleService(role domain.Role, transport ports.MediaTransport, signaler ports.SignalSender, logger *zap.Logger, opts ...LifecycleOption) *LifecycleService {
	s := &LifecycleService{
		role:      role,
		transport: transport,
		signaler:  signaler,
		reconnectPolicy: retry.Policy{
			MaxAttempts: 5,
			BaseDelay:   2 * time.Second,
		},
		failureLimit: candidateFailureLimit,
		state:        domain.StateIdle,
		logger:       logger.Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the externally visible connectivity status.
func (s *LifecycleService) Status() domain.ConnectivityStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status()
}

// HandleSignal processes one message from the signaling channel according to
// the peer's role: the consumer creates the offer when instructed, the
// producer answers offers passively.
func (s *LifecycleService) HandleSignal(ctx context.Context, msg domain.SignalMessage) error {
	switch msg.Type {
	case domain.SignalNegotiateNow:
		if s.role != domain.RoleConsumer {
			s.logger.Debugw("negotiate-now ignored by producer")
			return nil
		}
		return s.beginNegotiation(ctx)

	case domain.SignalOffer:
		return s.handleOffer(ctx, msg.Offer)

	case domain.SignalAnswer:
		return s.handleAnswer(ctx, msg.Answer)

	case domain.SignalICECandidate:
		s.AddCandidate(ctx, msg.Candidate)
		return nil

	default:
		// analysis-result and anything unexpected is not lifecycle traffic
		return nil
	}
}

// beginNegotiation moves Idle→Negotiating and sends the local offer.
func (s *LifecycleService) beginNegotiation(ctx context.Context) error {
	s.mu.Lock()
	if s.state == domain.StateDisconnected {
		s.mu.Unlock()
		return domain.ErrTerminal
	}
	s.state = domain.StateNegotiating
	s.mu.Unlock()

	offer, err := s.transport.CreateOffer(ctx)
	if err != nil {
		return domain.NewTransportError(fmt.Errorf("create offer: %w", err))
	}
	if err := s.signaler.Send(domain.SignalMessage{Type: domain.SignalOffer, Role: s.role, Offer: offer}); err != nil {
		return domain.NewTransportError(fmt.Errorf("send offer: %w", err))
	}
	s.logger.Infow("negotiation started", "role", s.role)
	return nil
}

func (s *LifecycleService) handleOffer(ctx context.Context, offer json.RawMessage) error {
	s.mu.Lock()
	if s.state == domain.StateDisconnected {
		s.mu.Unlock()
		return domain.ErrTerminal
	}
	s.state = domain.StateNegotiating
	s.mu.Unlock()

	answer, err := s.transport.AcceptOffer(ctx, offer)
	if err != nil {
		return domain.NewTransportError(fmt.Errorf("accept offer: %w", err))
	}
	s.onRemoteDescriptionApplied()

	if err := s.signaler.Send(domain.SignalMessage{Type: domain.SignalAnswer, Role: s.role, Answer: answer}); err != nil {
		return domain.NewTransportError(fmt.Errorf("send answer: %w", err))
	}
	return nil
}

func (s *LifecycleService) handleAnswer(ctx context.Context, answer json.RawMessage) error {
	if err := s.transport.AcceptAnswer(ctx, answer); err != nil {
		return domain.NewTransportError(fmt.Errorf("accept answer: %w", err))
	}
	s.onRemoteDescriptionApplied()
	return nil
}

// onRemoteDescriptionApplied replays buffered candidates in arrival order.
// Candidates must never touch the transport before the remote description
// is set; that is an invalid-sequence condition.
func (s *LifecycleService) onRemoteDescriptionApplied() {
	s.mu.Lock()
	s.remoteDescApplied = true
	buffered := s.pendingCandidates
	s.pendingCandidates = nil
	s.mu.Unlock()

	for _, c := range buffered {
		s.applyCandidate(context.Background(), c)
	}
}

// AddCandidate applies the candidate, or buffers it when the remote
// description has not been applied yet.
func (s *LifecycleService) AddCandidate(ctx context.Context, candidate json.RawMessage) {
	s.mu.Lock()
	if !s.remoteDescApplied {
		s.pendingCandidates = append(s.pendingCandidates, candidate)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.applyCandidate(ctx, candidate)
}

// applyCandidate applies one candidate and drives the failure policy: the
// failure that pushes the counter past the limit triggers a single
// connectivity restart; a second breach, or a restart that itself fails,
// falls back to full teardown.
func (s *LifecycleService) applyCandidate(ctx context.Context, candidate json.RawMessage) {
	err := s.transport.AddCandidate(candidate)
	if err == nil {
		return
	}

	// the restart claim happens in the same critical section as the counter
	// breach check, so concurrent breaching failures cannot both win it
	s.mu.Lock()
	s.candidateFailures++
	failures := s.candidateFailures
	breached := failures > s.failureLimit
	secondBreach := breached && s.restartIssued
	if breached && !secondBreach {
		s.restartIssued = true
		s.candidateFailures = 0
	}
	s.mu.Unlock()

	s.logger.Warnw("candidate apply failed", "failures", failures, "error", err)

	if !breached {
		return
	}

	if secondBreach {
		s.logger.Warnw("candidate failures persist after restart, tearing down")
		s.teardown()
		return
	}

	s.logger.Infow("issuing connectivity restart")
	restartOffer, rerr := s.transport.RestartConnectivity(ctx)
	if rerr != nil {
		s.logger.Errorw("connectivity restart failed, tearing down", "error", rerr)
		s.teardown()
		return
	}
	if s.signaler != nil {
		if serr := s.signaler.Send(domain.SignalMessage{Type: domain.SignalOffer, Role: s.role, Offer: restartOffer}); serr != nil {
			s.logger.Warnw("restart offer send failed", "error", serr)
		}
	}
}

// teardown closes the transport and re-initializes from Idle.
func (s *LifecycleService) teardown() {
	if err := s.transport.Close(); err != nil {
		s.logger.Debugw("transport close", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = domain.StateIdle
	s.remoteDescApplied = false
	s.pendingCandidates = nil
	s.candidateFailures = 0
	s.restartIssued = false
}

// OnTransportSignal maps a transport connectivity signal onto the machine.
func (s *LifecycleService) OnTransportSignal(sig domain.TransportSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.StateDisconnected {
		return
	}

	switch sig {
	case domain.TransportConnecting:
		s.state = domain.StateNegotiating
	case domain.TransportConnected:
		s.state = domain.StateConnected
		s.candidateFailures = 0
		s.restartIssued = false
	case domain.TransportFailed:
		s.state = domain.StateDegraded
	case domain.TransportDisconnected:
		s.state = domain.StateDisconnected
	}
	s.logger.Debugw("transport signal", "signal", sig, "state", s.state)
}

// RunReconnect drives the signaling-channel reconnection policy: every dial
// waits out an exponential 2^attempt backoff first, and a hard cap bounds
// the total dial count. Exhausting the cap moves the machine to terminal
// Disconnected; no further automatic retries happen until Reinitialize is
// called.
func (s *LifecycleService) RunReconnect(ctx context.Context, dial func(ctx context.Context) error) error {
	err := retry.Run(ctx, s.reconnectPolicy, func(attempt int) error {
		s.logger.Infow("signaling reconnect attempt", "attempt", attempt)
		return dial(ctx)
	})
	if err != nil {
		var exhausted *retry.ErrExhausted
		if errors.As(err, &exhausted) {
			s.mu.Lock()
			s.state = domain.StateDisconnected
			s.mu.Unlock()
			s.logger.Errorw("signaling reconnection exhausted, machine is terminal", "attempts", exhausted.Attempts)
		}
		return err
	}
	return nil
}

// Reinitialize returns a terminally disconnected machine to Idle. It is the
// only way out of Disconnected.
func (s *LifecycleService) Reinitialize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = domain.StateIdle
	s.remoteDescApplied = false
	s.pendingCandidates = nil
	s.candidateFailures = 0
	s.restartIssued = false
}
