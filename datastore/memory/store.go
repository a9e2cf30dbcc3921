package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-connections/datastore"
)

type record struct {
	entity  *datastore.Entity
	version int64
}

// Store is an in-process datastore. Every committed write bumps the version
// of its entity group; transactions fail on commit when a group they read or
// wrote has moved on.
type Store struct {
	mu       sync.RWMutex
	records  map[string]record
	groups   map[string]int64
	sequence int64
}

func New() *Store {
	return &Store{
		records: map[string]record{},
		groups:  map[string]int64{},
	}
}

func (s *Store) Get(_ context.Context, key *datastore.Key) (*datastore.Entity, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.records[key.Encode()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", datastore.ErrNoSuchEntity, key)
	}
	return stored.entity.Clone(), nil
}

func (s *Store) Put(_ context.Context, entity *datastore.Entity) error {
	if entity == nil {
		return fmt.Errorf("memory: entity is required")
	}
	if err := entity.Key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyPut(entity)
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...*datastore.Key) error {
	for _, key := range keys {
		if err := key.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.applyDelete(key)
	}
	return nil
}

func (s *Store) Run(_ context.Context, q datastore.Query) ([]*datastore.Entity, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	candidates := make([]*datastore.Entity, 0, len(s.records))
	for _, stored := range s.records {
		if stored.entity.Key.Kind == q.Kind {
			candidates = append(candidates, stored.entity.Clone())
		}
	}
	s.mu.RUnlock()
	return q.Apply(candidates), nil
}

func (s *Store) BeginTransaction(_ context.Context, opts ...datastore.TxOption) (datastore.Transaction, error) {
	return &transaction{
		store:    s,
		guard:    datastore.NewGroupGuard(datastore.ResolveTxOptions(opts...)),
		versions: map[string]int64{},
		active:   true,
	}, nil
}

// Len reports the number of stored entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) groupVersion(root string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[root]
}

func (s *Store) applyPut(entity *datastore.Entity) {
	s.sequence++
	encoded := entity.Key.Encode()
	s.records[encoded] = record{entity: entity.Clone(), version: s.sequence}
	s.groups[entity.Key.Root().Encode()] = s.sequence
}

func (s *Store) applyDelete(key *datastore.Key) {
	encoded := key.Encode()
	if _, ok := s.records[encoded]; !ok {
		return
	}
	s.sequence++
	delete(s.records, encoded)
	s.groups[key.Root().Encode()] = s.sequence
}

var _ datastore.Datastore = (*Store)(nil)
