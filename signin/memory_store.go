package signin

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-connections/core"
	"github.com/jellydator/ttlcache/v3"
)

// MemoryAttemptStore keeps attempts in a ttlcache. Entries expire on their
// own; call Stop to end the cleanup loop.
type MemoryAttemptStore struct {
	cache *ttlcache.Cache[string, *core.ProviderSignInAttempt]
}

func NewMemoryAttemptStore(ttl time.Duration) *MemoryAttemptStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *core.ProviderSignInAttempt](ttl),
		ttlcache.WithDisableTouchOnHit[string, *core.ProviderSignInAttempt](),
	)
	go cache.Start()
	return &MemoryAttemptStore{cache: cache}
}

func (s *MemoryAttemptStore) Save(_ context.Context, sessionID string, attempt *core.ProviderSignInAttempt) error {
	key, err := normalizeSessionID(sessionID)
	if err != nil {
		return err
	}
	if attempt == nil {
		return fmt.Errorf("signin: attempt is required")
	}
	s.cache.Set(key, copyAttempt(attempt), ttlcache.DefaultTTL)
	return nil
}

func (s *MemoryAttemptStore) Load(_ context.Context, sessionID string) (*core.ProviderSignInAttempt, error) {
	key, err := normalizeSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, ErrAttemptNotFound
	}
	return copyAttempt(item.Value()), nil
}

func (s *MemoryAttemptStore) Delete(_ context.Context, sessionID string) error {
	key, err := normalizeSessionID(sessionID)
	if err != nil {
		return err
	}
	s.cache.Delete(key)
	return nil
}

func (s *MemoryAttemptStore) Len() int {
	return s.cache.Len()
}

func (s *MemoryAttemptStore) Stop() {
	s.cache.Stop()
}
