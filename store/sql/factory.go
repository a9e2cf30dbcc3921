package sqlstore

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const defaultPageSize = 200

// DefaultIndexedProperties are the properties directory lookups filter on.
func DefaultIndexedProperties() []string {
	return []string{core.PropertyProviderID, core.PropertyProviderUserID}
}

func normalizeIndexedProperties(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

type Option func(*Datastore)

// WithPageSize bounds how many rows one List call fetches while scanning a kind.
func WithPageSize(size int) Option {
	return func(s *Datastore) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithIndexedProperties replaces the string properties copied into
// connection_entity_index. Queries without an ancestor are narrowed in SQL
// by equality filters on these properties.
func WithIndexedProperties(names ...string) Option {
	return func(s *Datastore) {
		s.indexed = normalizeIndexedProperties(names)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Datastore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewDatastoreFromPersistence(client *persistence.Client, opts ...Option) (*Datastore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewDatastore(db, opts...)
}

func NewDatastore(db *bun.DB, opts ...Option) (*Datastore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*entityRecord](db, entityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid entity repository wiring: %w", err)
		}
	}
	store := &Datastore{
		db:       db,
		repo:     repo,
		pageSize: defaultPageSize,
		indexed:  normalizeIndexedProperties(DefaultIndexedProperties()),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *persistence.Client:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: persistence client is required")
		}
		return resolveBunDB(typed.DB())
	case *bun.DB:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: bun db is required")
		}
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
