package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-connections/datastore"
)

type mutation struct {
	put    *datastore.Entity
	delete *datastore.Key
}

type transaction struct {
	mu       sync.Mutex
	store    *Store
	guard    *datastore.GroupGuard
	versions map[string]int64
	order    []mutation
	active   bool
}

func (t *transaction) Get(ctx context.Context, key *datastore.Key) (*datastore.Entity, error) {
	if err := t.touch(key); err != nil {
		return nil, err
	}
	return t.store.Get(ctx, key)
}

func (t *transaction) Run(ctx context.Context, q datastore.Query) ([]*datastore.Entity, error) {
	if err := datastore.RequireAncestor(q); err != nil {
		return nil, err
	}
	if err := t.touch(q.AncestorKey); err != nil {
		return nil, err
	}
	return t.store.Run(ctx, q)
}

func (t *transaction) Put(_ context.Context, entity *datastore.Entity) error {
	if entity == nil {
		return fmt.Errorf("memory: entity is required")
	}
	if err := t.touch(entity.Key); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = append(t.order, mutation{put: entity.Clone()})
	return nil
}

func (t *transaction) Delete(_ context.Context, keys ...*datastore.Key) error {
	for _, key := range keys {
		if err := t.touch(key); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range keys {
		t.order = append(t.order, mutation{delete: key})
	}
	return nil
}

func (t *transaction) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return datastore.ErrTransactionClosed
	}
	t.active = false

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for root, seen := range t.versions {
		if t.store.groups[root] != seen {
			return fmt.Errorf("%w: entity group %s changed", datastore.ErrConcurrentModification, root)
		}
	}
	for _, m := range t.order {
		switch {
		case m.put != nil:
			t.store.applyPut(m.put)
		case m.delete != nil:
			t.store.applyDelete(m.delete)
		}
	}
	return nil
}

func (t *transaction) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	t.order = nil
	return nil
}

func (t *transaction) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *transaction) touch(key *datastore.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return datastore.ErrTransactionClosed
	}
	first, err := t.guard.Touch(key)
	if err != nil {
		return err
	}
	if first {
		root := key.Root().Encode()
		t.versions[root] = t.store.groupVersion(root)
	}
	return nil
}

var _ datastore.Transaction = (*transaction)(nil)
