package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"roomres/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore shares idempotency records between replicas.
// Entries expire through Redis TTLs, so there is nothing to clean up.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    *logger.Logger
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client: client,
		ttl:    ttl,
		prefix: "idempotency:",
		log:    log,
	}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("Idempotency lookup failed", "error", err)
		}
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		s.log.Warn("Discarding unreadable idempotency record", "error", err)
		return nil, false
	}
	return &cached, true
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, response *CachedResponse) {
	response.CreatedAt = time.Now()
	payload, err := json.Marshal(response)
	if err != nil {
		s.log.Warn("Failed to encode idempotency record", "error", err)
		return
	}
	if err := s.client.Set(ctx, s.prefix+key, payload, s.ttl).Err(); err != nil {
		s.log.Warn("Failed to store idempotency record", "error", err)
	}
}

func (s *RedisIdempotencyStore) Stop() {}
