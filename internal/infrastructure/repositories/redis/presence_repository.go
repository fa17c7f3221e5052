package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"peerlens/internal/core/domain"
	"peerlens/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// presenceTTL bounds how long a stale session record survives a relay
// crash. Live peers refresh it on every registration.
const presenceTTL = 24 * time.Hour

type RedisPresenceRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisPresenceRepository(client *redis.Client) ports.PresenceRepository {
	return &RedisPresenceRepository{
		client: client,
		prefix: "peerlens:session:",
	}
}

func (r *RedisPresenceRepository) sessionKey(id domain.SessionID) string {
	return r.prefix + string(id)
}

func (r *RedisPresenceRepository) indexKey() string {
	return "peerlens:sessions"
}

func (r *RedisPresenceRepository) SetJoined(ctx context.Context, id domain.SessionID, role domain.Role) error {
	if !role.Valid() {
		return domain.ErrInvalidRole
	}

	presence, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if presence == nil {
		presence = &domain.SessionPresence{ID: id}
	}

	switch role {
	case domain.RoleProducer:
		presence.ProducerJoined = true
	case domain.RoleConsumer:
		presence.ConsumerJoined = true
	}
	presence.LastRegistered = time.Now()

	if err := r.save(ctx, presence); err != nil {
		return err
	}

	if err := r.client.SAdd(ctx, r.indexKey(), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to add session to index: %w", err)
	}
	return nil
}

func (r *RedisPresenceRepository) SetLeft(ctx context.Context, id domain.SessionID, role domain.Role) error {
	if !role.Valid() {
		return domain.ErrInvalidRole
	}

	presence, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if presence == nil {
		return nil
	}

	switch role {
	case domain.RoleProducer:
		presence.ProducerJoined = false
	case domain.RoleConsumer:
		presence.ConsumerJoined = false
	}

	if !presence.ProducerJoined && !presence.ConsumerJoined {
		if err := r.client.Del(ctx, r.sessionKey(id)).Err(); err != nil {
			return fmt.Errorf("failed to delete session from Redis: %w", err)
		}
		if err := r.client.SRem(ctx, r.indexKey(), string(id)).Err(); err != nil {
			return fmt.Errorf("failed to remove session from index: %w", err)
		}
		return nil
	}

	return r.save(ctx, presence)
}

func (r *RedisPresenceRepository) List(ctx context.Context) ([]domain.SessionPresence, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions from Redis: %w", err)
	}

	out := make([]domain.SessionPresence, 0, len(ids))
	for _, idStr := range ids {
		presence, err := r.get(ctx, domain.SessionID(idStr))
		if err != nil {
			return nil, err
		}
		if presence == nil {
			// Expired record; drop it from the index.
			r.client.SRem(ctx, r.indexKey(), idStr)
			continue
		}
		out = append(out, *presence)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (r *RedisPresenceRepository) get(ctx context.Context, id domain.SessionID) (*domain.SessionPresence, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var presence domain.SessionPresence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session presence: %w", err)
	}
	return &presence, nil
}

func (r *RedisPresenceRepository) save(ctx context.Context, presence *domain.SessionPresence) error {
	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal session presence: %w", err)
	}
	if err := r.client.Set(ctx, r.sessionKey(presence.ID), data, presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	return nil
}
