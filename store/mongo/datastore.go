package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goliatone/go-connections/datastore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const defaultConnectTimeout = 10 * time.Second

// Datastore keeps entities in one collection and a version document per
// entity group in another. Writes bump the group version; transactions check
// it on commit.
type Datastore struct {
	client       *mongo.Client
	entities     *mongo.Collection
	groups       *mongo.Collection
	transactions bool
	now          func() time.Time
}

type Option func(*Datastore)

// WithSessionTransactions runs commits and multi-document writes inside a
// server session transaction. It needs a replica set or sharded cluster.
func WithSessionTransactions(enabled bool) Option {
	return func(s *Datastore) {
		s.transactions = enabled
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Datastore) {
		if now != nil {
			s.now = now
		}
	}
}

// Connect dials uri with otel command monitoring, pings the primary and
// returns a datastore over dbName.
func Connect(ctx context.Context, uri string, dbName string, opts ...Option) (*Datastore, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(defaultConnectTimeout).
		SetMonitor(otelmongo.NewMonitor())
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	store, err := New(client.Database(dbName), opts...)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func New(db *mongo.Database, opts ...Option) (*Datastore, error) {
	if db == nil {
		return nil, fmt.Errorf("mongostore: database is required")
	}
	store := &Datastore{
		client:       db.Client(),
		entities:     db.Collection(EntitiesCollection),
		groups:       db.Collection(GroupsCollection),
		transactions: true,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *Datastore) EnsureIndexes(ctx context.Context) error {
	_, err := s.entities.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "ancestors", Value: 1}}},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "root", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: create indexes: %w", err)
	}
	return nil
}

func (s *Datastore) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Datastore) Get(ctx context.Context, key *datastore.Key) (*datastore.Entity, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var doc entityDocument
	err := s.entities.FindOne(ctx, bson.M{"_id": key.Encode()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", datastore.ErrNoSuchEntity, key)
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get %s: %w", key, err)
	}
	return doc.toEntity()
}

func (s *Datastore) Put(ctx context.Context, entity *datastore.Entity) error {
	if entity == nil {
		return fmt.Errorf("mongostore: entity is required")
	}
	if err := entity.Key.Validate(); err != nil {
		return err
	}
	return s.inSession(ctx, func(ctx context.Context) error {
		if err := s.bumpGroup(ctx, entity.Key.Root().Encode()); err != nil {
			return err
		}
		return s.writeEntity(ctx, entity)
	})
}

func (s *Datastore) Delete(ctx context.Context, keys ...*datastore.Key) error {
	for _, key := range keys {
		if err := key.Validate(); err != nil {
			return err
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return s.inSession(ctx, func(ctx context.Context) error {
		for _, root := range rootsOf(keys) {
			if err := s.bumpGroup(ctx, root); err != nil {
				return err
			}
		}
		for _, key := range keys {
			if err := s.deleteEntity(ctx, key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Datastore) Run(ctx context.Context, q datastore.Query) ([]*datastore.Entity, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	cursor, err := s.entities.Find(ctx, buildFilter(q), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: run %s query: %w", q.Kind, err)
	}
	var docs []entityDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: decode %s query: %w", q.Kind, err)
	}
	entities := make([]*datastore.Entity, 0, len(docs))
	for _, doc := range docs {
		entity, err := doc.toEntity()
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return q.Apply(entities), nil
}

func (s *Datastore) BeginTransaction(_ context.Context, opts ...datastore.TxOption) (datastore.Transaction, error) {
	return &transaction{
		store:    s,
		guard:    datastore.NewGroupGuard(datastore.ResolveTxOptions(opts...)),
		versions: map[string]int64{},
		active:   true,
	}, nil
}

func (s *Datastore) inSession(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions || s.client == nil {
		return fn(ctx)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongostore: start session: %w", err)
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *Datastore) groupVersion(ctx context.Context, root string) (int64, error) {
	var doc groupDocument
	err := s.groups.FindOne(ctx, bson.M{"_id": root}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mongostore: read group %s: %w", root, err)
	}
	return doc.Version, nil
}

func (s *Datastore) bumpGroup(ctx context.Context, root string) error {
	_, err := s.groups.UpdateOne(ctx,
		bson.M{"_id": root},
		bson.M{"$inc": bson.M{"version": 1}, "$set": bson.M{"updated_at": s.now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongostore: bump group %s: %w", root, err)
	}
	return nil
}

// advanceGroup moves root from expected to expected+1, failing when another
// writer got there first.
func (s *Datastore) advanceGroup(ctx context.Context, root string, expected int64) error {
	if expected == 0 {
		_, err := s.groups.InsertOne(ctx, groupDocument{ID: root, Version: 1, UpdatedAt: s.now()})
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: entity group %s changed", datastore.ErrConcurrentModification, root)
		}
		if err != nil {
			return fmt.Errorf("mongostore: create group %s: %w", root, err)
		}
		return nil
	}
	result, err := s.groups.UpdateOne(ctx,
		bson.M{"_id": root, "version": expected},
		bson.M{"$inc": bson.M{"version": 1}, "$set": bson.M{"updated_at": s.now()}},
	)
	if err != nil {
		return fmt.Errorf("mongostore: advance group %s: %w", root, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: entity group %s changed", datastore.ErrConcurrentModification, root)
	}
	return nil
}

func (s *Datastore) writeEntity(ctx context.Context, entity *datastore.Entity) error {
	_, err := s.entities.UpdateOne(ctx,
		bson.M{"_id": entity.Key.Encode()},
		bson.M{"$set": entityFields(entity, s.now()), "$inc": bson.M{"version": 1}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongostore: write %s: %w", entity.Key, err)
	}
	return nil
}

func (s *Datastore) deleteEntity(ctx context.Context, key *datastore.Key) error {
	if _, err := s.entities.DeleteOne(ctx, bson.M{"_id": key.Encode()}); err != nil {
		return fmt.Errorf("mongostore: delete %s: %w", key, err)
	}
	return nil
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
