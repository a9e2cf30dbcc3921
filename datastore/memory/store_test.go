package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-connections/datastore"
)

func userKey(name string) *datastore.Key {
	return datastore.NewKey("User", name, nil)
}

func connectionEntity(user string, name string, rank int) *datastore.Entity {
	entity := datastore.NewEntity(datastore.NewKey("UserConnection", name, userKey(user)))
	entity.Set("providerId", "facebook")
	entity.Set("rank", rank)
	return entity
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := New()
	entity := connectionEntity("alice", "c1", 1)

	if err := store.Put(ctx, entity); err != nil {
		t.Fatalf("put: %v", err)
	}
	entity.Set("rank", 99)

	got, err := store.Get(ctx, entity.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Int64("rank") != 1 {
		t.Fatalf("expected stored copy to be isolated from caller mutation, got rank %d", got.Int64("rank"))
	}

	if err := store.Delete(ctx, entity.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, entity.Key); !errors.Is(err, datastore.ErrNoSuchEntity) {
		t.Fatalf("expected no such entity, got %v", err)
	}
}

func TestStore_TransactionCommitAppliesBufferedWrites(t *testing.T) {
	ctx := context.Background()
	store := New()
	tx, err := store.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	entity := connectionEntity("alice", "c1", 1)
	if _, err := tx.Get(ctx, entity.Key); !errors.Is(err, datastore.ErrNoSuchEntity) {
		t.Fatalf("expected absent entity, got %v", err)
	}
	if err := tx.Put(ctx, entity); err != nil {
		t.Fatalf("tx put: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected write to stay buffered before commit")
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected committed entity, got %d", store.Len())
	}
	if tx.IsActive() {
		t.Fatalf("expected transaction to be closed after commit")
	}
	if err := tx.Commit(ctx); !errors.Is(err, datastore.ErrTransactionClosed) {
		t.Fatalf("expected closed transaction error, got %v", err)
	}
}

func TestStore_TransactionDetectsConcurrentModification(t *testing.T) {
	ctx := context.Background()
	store := New()
	first, _ := store.BeginTransaction(ctx)
	second, _ := store.BeginTransaction(ctx)
	defer first.Rollback(ctx)
	defer second.Rollback(ctx)

	key := datastore.NewKey("UserConnection", "c1", userKey("alice"))
	_, _ = first.Get(ctx, key)
	_, _ = second.Get(ctx, key)

	if err := first.Put(ctx, connectionEntity("alice", "c1", 1)); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := second.Put(ctx, connectionEntity("alice", "c1", 2)); err != nil {
		t.Fatalf("second put: %v", err)
	}
	if err := first.Commit(ctx); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := second.Commit(ctx); !errors.Is(err, datastore.ErrConcurrentModification) {
		t.Fatalf("expected concurrent modification, got %v", err)
	}

	stored, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Int64("rank") != 1 {
		t.Fatalf("expected first writer to win, got rank %d", stored.Int64("rank"))
	}
}

func TestStore_TransactionGroupLimits(t *testing.T) {
	ctx := context.Background()
	store := New()

	tx, _ := store.BeginTransaction(ctx)
	defer tx.Rollback(ctx)
	if err := tx.Put(ctx, connectionEntity("alice", "c1", 1)); err != nil {
		t.Fatalf("put alice: %v", err)
	}
	if err := tx.Put(ctx, connectionEntity("bob", "c1", 1)); !errors.Is(err, datastore.ErrTooManyEntityGroups) {
		t.Fatalf("expected group limit error, got %v", err)
	}

	xg, _ := store.BeginTransaction(ctx, datastore.WithCrossGroup())
	defer xg.Rollback(ctx)
	if err := xg.Put(ctx, connectionEntity("alice", "c1", 1)); err != nil {
		t.Fatalf("xg put alice: %v", err)
	}
	if err := xg.Put(ctx, connectionEntity("bob", "c1", 1)); err != nil {
		t.Fatalf("xg put bob: %v", err)
	}
	if err := xg.Commit(ctx); err != nil {
		t.Fatalf("xg commit: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected two entities, got %d", store.Len())
	}
}

func TestStore_TransactionRunRequiresAncestorAndRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	store := New()
	if err := store.Put(ctx, connectionEntity("alice", "c1", 1)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tx, _ := store.BeginTransaction(ctx)
	if _, err := tx.Run(ctx, datastore.NewQuery("UserConnection")); !errors.Is(err, datastore.ErrInvalidQuery) {
		t.Fatalf("expected ancestor requirement, got %v", err)
	}
	results, err := tx.Run(ctx, datastore.NewQuery("UserConnection").Ancestor(userKey("alice")))
	if err != nil {
		t.Fatalf("tx run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if err := tx.Delete(ctx, results[0].Key); err != nil {
		t.Fatalf("tx delete: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected rollback to discard delete")
	}
	if err := tx.Put(ctx, connectionEntity("alice", "c2", 2)); !errors.Is(err, datastore.ErrTransactionClosed) {
		t.Fatalf("expected closed transaction, got %v", err)
	}
}
