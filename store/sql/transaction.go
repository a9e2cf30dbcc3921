package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-connections/datastore"
	"github.com/uptrace/bun"
)

type mutation struct {
	put    *datastore.Entity
	delete *datastore.Key
}

// transaction reads through the store and buffers writes. On commit every
// touched group must still be at the version seen on first touch; groups
// that were written advance by one.
type transaction struct {
	mu       sync.Mutex
	store    *Datastore
	guard    *datastore.GroupGuard
	versions map[string]int64
	written  map[string]struct{}
	order    []mutation
	active   bool
}

func (t *transaction) Get(ctx context.Context, key *datastore.Key) (*datastore.Entity, error) {
	if err := t.touch(ctx, key); err != nil {
		return nil, err
	}
	return t.store.Get(ctx, key)
}

func (t *transaction) Run(ctx context.Context, q datastore.Query) ([]*datastore.Entity, error) {
	if err := datastore.RequireAncestor(q); err != nil {
		return nil, err
	}
	if err := t.touch(ctx, q.AncestorKey); err != nil {
		return nil, err
	}
	return t.store.Run(ctx, q)
}

func (t *transaction) Put(ctx context.Context, entity *datastore.Entity) error {
	if entity == nil {
		return fmt.Errorf("sqlstore: entity is required")
	}
	if err := t.touch(ctx, entity.Key); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markWritten(entity.Key)
	t.order = append(t.order, mutation{put: entity.Clone()})
	return nil
}

func (t *transaction) Delete(ctx context.Context, keys ...*datastore.Key) error {
	for _, key := range keys {
		if err := t.touch(ctx, key); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range keys {
		t.markWritten(key)
		t.order = append(t.order, mutation{delete: key})
	}
	return nil
}

func (t *transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return datastore.ErrTransactionClosed
	}
	t.active = false

	roots := make([]string, 0, len(t.versions))
	for root := range t.versions {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	return t.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, root := range roots {
			seen := t.versions[root]
			if _, written := t.written[root]; written {
				if err := t.store.advanceGroup(ctx, tx, root, seen); err != nil {
					return err
				}
				continue
			}
			current, err := t.store.groupVersion(ctx, tx, root)
			if err != nil {
				return err
			}
			if current != seen {
				return fmt.Errorf("%w: entity group %s changed", datastore.ErrConcurrentModification, root)
			}
		}
		for _, m := range t.order {
			switch {
			case m.put != nil:
				if err := t.store.writeEntity(ctx, tx, m.put); err != nil {
					return err
				}
			case m.delete != nil:
				if err := t.store.deleteEntity(ctx, tx, m.delete); err != nil {
					return err
				}
			}
		}
		return nil
	})
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

func (t *transaction) markWritten(key *datastore.Key) {
	if t.written == nil {
		t.written = map[string]struct{}{}
	}
	t.written[key.Root().Encode()] = struct{}{}
}

func (t *transaction) touch(ctx context.Context, key *datastore.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return datastore.ErrTransactionClosed
	}
	first, err := t.guard.Touch(key)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	root := key.Root().Encode()
	version, err := t.store.groupVersion(ctx, t.store.db, root)
	if err != nil {
		return err
	}
	t.versions[root] = version
	return nil
}
