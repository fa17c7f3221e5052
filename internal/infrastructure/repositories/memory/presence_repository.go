package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"peerlens/internal/core/domain"
	"peerlens/internal/core/ports"
)

type MemoryPresenceRepository struct {
	sessions map[domain.SessionID]*domain.SessionPresence
	mu       sync.RWMutex
}

func NewMemoryPresenceRepository() ports.PresenceRepository {
	return &MemoryPresenceRepository{
		sessions: make(map[domain.SessionID]*domain.SessionPresence),
	}
}

func (r *MemoryPresenceRepository) SetJoined(ctx context.Context, id domain.SessionID, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	presence, exists := r.sessions[id]
	if !exists {
		presence = &domain.SessionPresence{ID: id}
		r.sessions[id] = presence
	}

	switch role {
	case domain.RoleProducer:
		presence.ProducerJoined = true
	case domain.RoleConsumer:
		presence.ConsumerJoined = true
	default:
		return domain.ErrInvalidRole
	}
	presence.LastRegistered = time.Now()

	return nil
}

func (r *MemoryPresenceRepository) SetLeft(ctx context.Context, id domain.SessionID, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	presence, exists := r.sessions[id]
	if !exists {
		return nil
	}

	switch role {
	case domain.RoleProducer:
		presence.ProducerJoined = false
	case domain.RoleConsumer:
		presence.ConsumerJoined = false
	default:
		return domain.ErrInvalidRole
	}

	if !presence.ProducerJoined && !presence.ConsumerJoined {
		delete(r.sessions, id)
	}

	return nil
}

func (r *MemoryPresenceRepository) List(ctx context.Context) ([]domain.SessionPresence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.SessionPresence, 0, len(r.sessions))
	for _, presence := range r.sessions {
		out = append(out, *presence)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})

	return out, nil
}
