package services

import (
	"sync"
	"time"

	"peerlens/internal/core/domain"
	"peerlens/internal/core/ports"

	"go.uber.org/zap"
)

// session holds the two role slots of one pairing. All mutation and routing
// for a session happens under its own lock; sessions share no state, so
// cross-session operations never contend.
type session struct {
	mu             sync.Mutex
	producer       ports.ConnectionHandle
	consumer       ports.ConnectionHandle
	lastRegistered time.Time
}

func (s *session) slot(role domain.Role) *ports.ConnectionHandle {
	if role == domain.RoleProducer {
		return &s.producer
	}
	return &s.consumer
}

func (s *session) empty() bool {
	return s.producer == nil && s.consumer == nil
}

// RegistryService is the in-memory session registry: at most one producer
// and one consumer handle per session id.
type RegistryService struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*session
	logger   *zap.SugaredLogger
}

func NewRegistryService(logger *zap.Logger) *RegistryService {
	return &RegistryService{
		sessions: make(map[domain.SessionID]*session),
		logger:   logger.Sugar(),
	}
}

// Register stores the handle under (id, role). A live handle already
// occupying the role is evicted and closed: duplicate-role registration is
// the reconnect case, not an error.
func (r *RegistryService) Register(id domain.SessionID, role domain.Role, h ports.ConnectionHandle) domain.RegistrationOutcome {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		sess = &session{}
		r.sessions[id] = sess
	}
	sess.mu.Lock()
	r.mu.Unlock()
	defer sess.mu.Unlock()

	slot := sess.slot(role)
	replaced := *slot != nil
	if replaced {
		if err := (*slot).Close(); err != nil {
			r.logger.Debugw("closing evicted handle", "session_id", id, "role", role, "error", err)
		}
		r.logger.Infow("evicted prior handle on re-registration", "session_id", id, "role", role)
	}
	*slot = h
	sess.lastRegistered = time.Now()

	return domain.RegistrationOutcome{
		Replaced:    replaced,
		BothPresent: sess.producer != nil && sess.consumer != nil,
	}
}

// Route delivers msg to the counterpart of from. A missing counterpart is a
// partial session, not a failure: the message is dropped silently. Delivery
// happens under the session lock, which serializes sends and preserves FIFO
// order per session.
func (r *RegistryService) Route(id domain.SessionID, from domain.Role, msg domain.SignalMessage) domain.RouteResult {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.RUnlock()
		return domain.NoCounterpart
	}
	sess.mu.Lock()
	r.mu.RUnlock()
	defer sess.mu.Unlock()

	target := *sess.slot(from.Counterpart())
	if target == nil {
		return domain.NoCounterpart
	}
	if err := target.Send(msg); err != nil {
		r.logger.Debugw("send to counterpart failed", "session_id", id, "from", from, "type", msg.Type, "error", err)
		return domain.NoCounterpart
	}
	return domain.Delivered
}

// Unregister removes the handle from the session if it still occupies a
// slot. Once removed no further messages are routed to it. A session with
// both slots empty is deleted. Returns false for stale handles that were
// already evicted by a re-registration.
func (r *RegistryService) Unregister(id domain.SessionID, h ports.ConnectionHandle) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	sess.mu.Lock()

	removed := false
	if sess.producer == h {
		sess.producer = nil
		removed = true
	}
	if sess.consumer == h {
		sess.consumer = nil
		removed = true
	}
	empty := sess.empty()
	if empty {
		delete(r.sessions, id)
	}
	sess.mu.Unlock()
	r.mu.Unlock()

	if empty {
		r.logger.Infow("session garbage-collected", "session_id", id)
	}
	return removed
}

// Sessions returns a presence snapshot for diagnostics.
func (r *RegistryService) Sessions() []domain.SessionPresence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.SessionPresence, 0, len(r.sessions))
	for id, sess := range r.sessions {
		sess.mu.Lock()
		out = append(out, domain.SessionPresence{
			ID:             id,
			ProducerJoined: sess.producer != nil,
			ConsumerJoined: sess.consumer != nil,
			LastRegistered: sess.lastRegistered,
		})
		sess.mu.Unlock()
	}
	return out
}

var _ ports.SessionRegistry = (*RegistryService)(nil)
