package signin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-connections/core"
	"github.com/redis/go-redis/v9"
)

// RedisAttemptStore shares attempts across processes. Values are the JSON
// form of the attempt, stored with SET and a TTL.
type RedisAttemptStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisAttemptStore(client redis.UniversalClient, prefix string, ttl time.Duration) (*RedisAttemptStore, error) {
	if client == nil {
		return nil, fmt.Errorf("signin: redis client is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "connections"
	}
	return &RedisAttemptStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func (s *RedisAttemptStore) redisKey(sessionID string) string {
	return fmt.Sprintf("%s:signin:%s", s.prefix, sessionID)
}

func (s *RedisAttemptStore) Save(ctx context.Context, sessionID string, attempt *core.ProviderSignInAttempt) error {
	key, err := normalizeSessionID(sessionID)
	if err != nil {
		return err
	}
	if attempt == nil {
		return fmt.Errorf("signin: attempt is required")
	}
	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("signin: marshal attempt: %w", err)
	}
	if err := s.client.Set(ctx, s.redisKey(key), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("signin: store attempt: %w", err)
	}
	return nil
}

func (s *RedisAttemptStore) Load(ctx context.Context, sessionID string) (*core.ProviderSignInAttempt, error) {
	key, err := normalizeSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	payload, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("signin: load attempt: %w", err)
	}
	attempt := &core.ProviderSignInAttempt{}
	if err := json.Unmarshal(payload, attempt); err != nil {
		return nil, fmt.Errorf("signin: unmarshal attempt: %w", err)
	}
	return attempt, nil
}

func (s *RedisAttemptStore) Delete(ctx context.Context, sessionID string) error {
	key, err := normalizeSessionID(sessionID)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("signin: delete attempt: %w", err)
	}
	return nil
}
