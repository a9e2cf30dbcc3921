package datastore

import (
	"context"
	"fmt"
)

// MaxCrossGroups bounds the entity groups one cross-group transaction may touch.
const MaxCrossGroups = 25

// Runner executes queries. Both Datastore and Transaction satisfy it.
type Runner interface {
	Run(ctx context.Context, q Query) ([]*Entity, error)
}

// Datastore is a document store with entity-group transactions and
// strongly consistent ancestor queries.
type Datastore interface {
	Runner
	Get(ctx context.Context, key *Key) (*Entity, error)
	Put(ctx context.Context, entity *Entity) error
	Delete(ctx context.Context, keys ...*Key) error
	BeginTransaction(ctx context.Context, opts ...TxOption) (Transaction, error)
}

// Transaction buffers writes until Commit. Rollback is safe to defer and is a
// no-op once the transaction has been committed or rolled back. Run only
// accepts ancestor queries.
type Transaction interface {
	Runner
	Get(ctx context.Context, key *Key) (*Entity, error)
	Put(ctx context.Context, entity *Entity) error
	Delete(ctx context.Context, keys ...*Key) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	IsActive() bool
}

type TxOptions struct {
	CrossGroup bool
}

type TxOption func(*TxOptions)

func WithCrossGroup() TxOption {
	return func(o *TxOptions) {
		o.CrossGroup = true
	}
}

func ResolveTxOptions(opts ...TxOption) TxOptions {
	resolved := TxOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&resolved)
	}
	return resolved
}

// GroupGuard tracks the entity groups a transaction has touched.
type GroupGuard struct {
	limit int
	roots map[string]struct{}
}

func NewGroupGuard(opts TxOptions) *GroupGuard {
	limit := 1
	if opts.CrossGroup {
		limit = MaxCrossGroups
	}
	return &GroupGuard{limit: limit, roots: map[string]struct{}{}}
}

// Touch registers the group of key and reports whether this is its first use.
func (g *GroupGuard) Touch(key *Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	root := key.Root().Encode()
	if _, seen := g.roots[root]; seen {
		return false, nil
	}
	if len(g.roots) >= g.limit {
		return false, fmt.Errorf("%w: limit %d reached with group %s", ErrTooManyEntityGroups, g.limit, root)
	}
	g.roots[root] = struct{}{}
	return true, nil
}

func (g *GroupGuard) Roots() []string {
	out := make([]string, 0, len(g.roots))
	for root := range g.roots {
		out = append(out, root)
	}
	return out
}

// RequireAncestor rejects transactional queries that are not scoped to a group.
func RequireAncestor(q Query) error {
	if q.AncestorKey == nil {
		return fmt.Errorf("%w: queries inside a transaction need an ancestor", ErrInvalidQuery)
	}
	return nil
}
