package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goliatone/go-connections/datastore"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Datastore stores entities as rows of connection_entities. Every committed
// write bumps the row of its entity group in connection_entity_groups, which
// is what transactions validate against on commit. String values of the
// indexed properties are mirrored into connection_entity_index.
type Datastore struct {
	db       *bun.DB
	repo     repository.Repository[*entityRecord]
	pageSize int
	indexed  []string
	now      func() time.Time
}

func (s *Datastore) DB() *bun.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *Datastore) Get(ctx context.Context, key *datastore.Key) (*datastore.Entity, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	record, err := s.findRecord(ctx, s.db, key.Encode())
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", datastore.ErrNoSuchEntity, key)
	}
	return record.toEntity()
}

func (s *Datastore) Put(ctx context.Context, entity *datastore.Entity) error {
	if err := s.ready(); err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("sqlstore: entity is required")
	}
	if err := entity.Key.Validate(); err != nil {
		return err
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.bumpGroup(ctx, tx, entity.Key.Root().Encode()); err != nil {
			return err
		}
		return s.writeEntity(ctx, tx, entity)
	})
}

func (s *Datastore) Delete(ctx context.Context, keys ...*datastore.Key) error {
	if err := s.ready(); err != nil {
		return err
	}
	for _, key := range keys {
		if err := key.Validate(); err != nil {
			return err
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, root := range rootsOf(keys) {
			if err := s.bumpGroup(ctx, tx, root); err != nil {
				return err
			}
		}
		for _, key := range keys {
			if err := s.deleteEntity(ctx, tx, key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Run narrows by kind, entity group and indexed property filters in SQL.
// The decoded candidates still go through Query.Apply, which evaluates every
// filter, the ordering and the limit.
func (s *Datastore) Run(ctx context.Context, q datastore.Query) ([]*datastore.Entity, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	criteria := []repository.SelectCriteria{
		repository.SelectBy("kind", "=", q.Kind),
	}
	if q.AncestorKey != nil {
		criteria = append(criteria, repository.SelectBy("root_path", "=", q.AncestorKey.Root().Encode()))
	}
	for _, filter := range q.Filters {
		values, ok := indexedValues(filter, s.indexed)
		if !ok {
			continue
		}
		criteria = append(criteria, s.indexedFilter(q.Kind, filter.Property, values))
	}
	criteria = append(criteria, repository.OrderBy("key_path ASC"))

	candidates := []*datastore.Entity{}
	for offset := 0; ; offset += s.pageSize {
		page := append(append([]repository.SelectCriteria{}, criteria...), repository.SelectPaginate(s.pageSize, offset))
		records, total, err := s.repo.List(ctx, page...)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: list %s entities: %w", q.Kind, err)
		}
		for _, record := range records {
			entity, decodeErr := record.toEntity()
			if decodeErr != nil {
				return nil, decodeErr
			}
			candidates = append(candidates, entity)
		}
		if len(records) < s.pageSize || offset+len(records) >= total {
			break
		}
	}
	return q.Apply(candidates), nil
}

func (s *Datastore) indexedFilter(kind string, name string, values []string) repository.SelectCriteria {
	return repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		matches := s.db.NewSelect().
			Model((*indexRecord)(nil)).
			Column("key_path").
			Where("?TableAlias.kind = ?", kind).
			Where("?TableAlias.name = ?", name).
			Where("?TableAlias.value IN (?)", bun.In(values))
		return q.Where("?TableAlias.key_path IN (?)", matches)
	})
}

func (s *Datastore) BeginTransaction(_ context.Context, opts ...datastore.TxOption) (datastore.Transaction, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return &transaction{
		store:    s,
		guard:    datastore.NewGroupGuard(datastore.ResolveTxOptions(opts...)),
		versions: map[string]int64{},
		active:   true,
	}, nil
}

func (s *Datastore) ready() error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: datastore is not configured")
	}
	return nil
}

func (s *Datastore) findRecord(ctx context.Context, db bun.IDB, keyPath string) (*entityRecord, error) {
	record := &entityRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.key_path = ?", keyPath).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlstore: load %s: %w", keyPath, err)
	}
	return record, nil
}

func (s *Datastore) groupVersion(ctx context.Context, db bun.IDB, root string) (int64, error) {
	record := &groupRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.root_path = ?", root).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("sqlstore: load group %s: %w", root, err)
	}
	return record.Version, nil
}

// bumpGroup advances a group version without checking what it was.
func (s *Datastore) bumpGroup(ctx context.Context, tx bun.Tx, root string) error {
	current, err := s.groupVersion(ctx, tx, root)
	if err != nil {
		return err
	}
	return s.advanceGroup(ctx, tx, root, current)
}

// advanceGroup moves a group from expected to expected+1 and reports a
// concurrent modification when another writer got there first.
func (s *Datastore) advanceGroup(ctx context.Context, tx bun.Tx, root string, expected int64) error {
	now := s.now()
	if expected == 0 {
		res, err := tx.NewInsert().
			Model(&groupRecord{RootPath: root, Version: 1, UpdatedAt: now}).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("sqlstore: create group %s: %w", root, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: entity group %s changed", datastore.ErrConcurrentModification, root)
		}
		return nil
	}
	res, err := tx.NewUpdate().
		Model((*groupRecord)(nil)).
		Set("version = ?", expected+1).
		Set("updated_at = ?", now).
		Where("root_path = ?", root).
		Where("version = ?", expected).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: advance group %s: %w", root, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: entity group %s changed", datastore.ErrConcurrentModification, root)
	}
	return nil
}

func (s *Datastore) writeEntity(ctx context.Context, tx bun.Tx, entity *datastore.Entity) error {
	now := s.now()
	record, err := newEntityRecord(entity, now)
	if err != nil {
		return err
	}
	existing, err := s.findRecord(ctx, tx, record.KeyPath)
	if err != nil {
		return err
	}
	if existing == nil {
		record.ID = uuid.NewString()
		if _, err := s.repo.CreateTx(ctx, tx, record); err != nil {
			return fmt.Errorf("sqlstore: insert %s: %w", record.KeyPath, err)
		}
		return s.writeIndex(ctx, tx, entity)
	}
	_, err = tx.NewUpdate().
		Model((*entityRecord)(nil)).
		Set("properties = ?", record.Properties).
		Set("version = ?", existing.Version+1).
		Set("updated_at = ?", now).
		Where("id = ?", existing.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: update %s: %w", record.KeyPath, err)
	}
	return s.writeIndex(ctx, tx, entity)
}

// writeIndex replaces the index rows of entity.
func (s *Datastore) writeIndex(ctx context.Context, tx bun.Tx, entity *datastore.Entity) error {
	keyPath := entity.Key.Encode()
	if err := s.deleteIndex(ctx, tx, keyPath); err != nil {
		return err
	}
	records := newIndexRecords(entity, s.indexed)
	if len(records) == 0 {
		return nil
	}
	if _, err := tx.NewInsert().Model(&records).Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: index %s: %w", keyPath, err)
	}
	return nil
}

func (s *Datastore) deleteIndex(ctx context.Context, tx bun.Tx, keyPath string) error {
	_, err := tx.NewDelete().
		Model((*indexRecord)(nil)).
		Where("key_path = ?", keyPath).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: drop index of %s: %w", keyPath, err)
	}
	return nil
}

func (s *Datastore) deleteEntity(ctx context.Context, tx bun.Tx, key *datastore.Key) error {
	_, err := tx.NewDelete().
		Model((*entityRecord)(nil)).
		Where("key_path = ?", key.Encode()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: delete %s: %w", key, err)
	}
	return s.deleteIndex(ctx, tx, key.Encode())
}

func rootsOf(keys []*datastore.Key) []string {
	seen := map[string]struct{}{}
	roots := make([]string, 0, len(keys))
	for _, key := range keys {
		root := key.Root().Encode()
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}
