package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/goliatone/go-connections/datastore"
)

func TestRepository_RanksAndPrimaryLifecycle(t *testing.T) {
	env := newTestEnv(t)
	repo := env.repository(t, "alice")
	ctx := context.Background()

	mustAdd(t, repo, facebookConnection("fb1"))
	primary, err := repo.GetPrimaryConnection(ctx, testFacebook)
	if err != nil {
		t.Fatalf("get primary: %v", err)
	}
	if primary.Key().ProviderUserID != "fb1" {
		t.Fatalf("expected fb1 primary, got %s", primary.Key())
	}

	mustAdd(t, repo, facebookConnection("fb2"))
	connections, err := repo.FindConnections(ctx, "facebook")
	if err != nil {
		t.Fatalf("find connections: %v", err)
	}
	if got := providerUserIDs(connections); !reflect.DeepEqual(got, []string{"fb1", "fb2"}) {
		t.Fatalf("expected rank order [fb1 fb2], got %v", got)
	}
	for index, providerUserID := range []string{"fb1", "fb2"} {
		record, getErr := env.store.Get(ctx, NewConnectionID("alice", NewConnectionKey("facebook", providerUserID)).DatastoreKey(env.service.Kinds()))
		if getErr != nil {
			t.Fatalf("load record: %v", getErr)
		}
		if rank := record.Int64(PropertyRank); rank != int64(index+1) {
			t.Fatalf("expected rank %d for %s, got %d", index+1, providerUserID, rank)
		}
	}

	primary, err = repo.GetPrimaryConnection(ctx, testFacebook)
	if err != nil {
		t.Fatalf("get primary after second add: %v", err)
	}
	if primary.Key().ProviderUserID != "fb1" {
		t.Fatalf("expected primary to stay fb1, got %s", primary.Key())
	}

	if err := repo.RemoveConnections(ctx, "facebook"); err != nil {
		t.Fatalf("remove connections: %v", err)
	}
	connections, err = repo.FindConnections(ctx, "facebook")
	if err != nil {
		t.Fatalf("find connections after removal: %v", err)
	}
	if len(connections) != 0 {
		t.Fatalf("expected empty partition, got %v", providerUserIDs(connections))
	}
	_, err = repo.GetPrimaryConnection(ctx, testFacebook)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, found, err := repo.FindPrimaryConnection(ctx, testFacebook); err != nil || found {
		t.Fatalf("expected no primary connection, found=%v err=%v", found, err)
	}
}

func TestRepository_RanksArePerProvider(t *testing.T) {
	env := newTestEnv(t)
	repo := env.repository(t, "alice")
	ctx := context.Background()

	mustAdd(t, repo, facebookConnection("fb1"), twitterConnection("tw1"), facebookConnection("fb2"))
	record, err := env.store.Get(ctx, NewConnectionID("alice", NewConnectionKey("twitter", "tw1")).DatastoreKey(env.service.Kinds()))
	if err != nil {
		t.Fatalf("load twitter record: %v", err)
	}
	if rank := record.Int64(PropertyRank); rank != 1 {
		t.Fatalf("expected twitter rank 1, got %d", rank)
	}

	other := env.repository(t, "bob")
	mustAdd(t, other, facebookConnection("fb9"))
	record, err = env.store.Get(ctx, NewConnectionID("bob", NewConnectionKey("facebook", "fb9")).DatastoreKey(env.service.Kinds()))
	if err != nil {
		t.Fatalf("load bob record: %v", err)
	}
	if rank := record.Int64(PropertyRank); rank != 1 {
		t.Fatalf("expected ranks to be scoped per user, got %d", rank)
	}
}

func TestRepository_FindAllConnectionsSeedsRegisteredProviders(t *testing.T) {
	env := newTestEnv(t)
	repo := env.repository(t, "alice")
	ctx := context.Background()

	all, err := repo.FindAllConnections(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 2 || len(all["facebook"]) != 0 || len(all["twitter"]) != 0 {
		t.Fatalf("expected seeded empty lists, got %#v", all)
	}

	mustAdd(t, repo, facebookConnection("fb2"), facebookConnection("fb1"))
	all, err = repo.FindAllConnections(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if got := providerUserIDs(all["facebook"]); !reflect.DeepEqual(got, []string{"fb2", "fb1"}) {
		t.Fatalf("expected rank ordered facebook list, got %v", got)
	}
	if all["twitter"] == nil || len(all["twitter"]) != 0 {
		t.Fatalf("expected empty twitter list, got %#v", all["twitter"])
	}
}

func TestRepository_AddDuplicateFails(t *testing.T) {
	interceptor := newRecordingInterceptor("audit")
	env := newTestEnv(t, WithInterceptor(testFacebook, interceptor))
	repo := env.repository(t, "alice")
	ctx := context.Background()

	mustAdd(t, repo, facebookConnection("fb1"))
	err := repo.AddConnection(ctx, facebookConnection("fb1"))
	if !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("expected ErrDuplicateConnection, got %v", err)
	}
	var dup *DuplicateConnectionError
	if !errors.As(err, &dup) || dup.Key != NewConnectionKey("facebook", "fb1") {
		t.Fatalf("expected typed duplicate error with key, got %#v", err)
	}
	if got := len(interceptor.callsFor("after_create")); got != 1 {
		t.Fatalf("expected after_create once, got %d", got)
	}
	if got := len(interceptor.callsFor("before_create")); got != 2 {
		t.Fatalf("expected before_create twice, got %d", got)
	}
	if env.store.Len() != 1 {
		t.Fatalf("expected one stored record, got %d", env.store.Len())
	}
}

func TestRepository_AddValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	repo := env.repository(t, "alice")

	if err := repo.AddConnection(context.Background(), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for nil connection, got %v", err)
	}
	err := repo.AddConnection(context.Background(), facebookConnection(" "))
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for blank provider user id, got %v", err)
	}
}

func TestRepository_SecretsAreEncryptedAtRest(t *testing.T) {
	env := newTestEnv(t)
	repo := env.repository(t, "alice")
	ctx := context.Background()

	connection := NewDataConnection(testFacebook, ConnectionData{
		ProviderID:     "facebook",
		ProviderUserID: "fb1",
		AccessToken:    StringPtr("plain-token"),
	})
	mustAdd(t, repo, connection)
	if env.encryptor.calls != 1 {
		t.Fatalf("expected only the access token to be encrypted, got %d calls", env.encryptor.calls)
	}

	record, err := env.store.Get(ctx, NewConnectionID("alice", connection.Key()).DatastoreKey(env.service.Kinds()))
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	stored := record.OptionalString(PropertyAccessToken)
	if stored == nil || !strings.HasPrefix(*stored, "enc:") {
		t.Fatalf("expected encrypted access token, got %v", stored)
	}
	if record.OptionalString(PropertySecret) != nil || record.OptionalString(PropertyRefreshToken) != nil {
		t.Fatalf("expected absent secrets to stay absent")
	}

	loaded, err := repo.GetConnection(ctx, connection.Key())
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if !loaded.Data().Equal(connection.Data()) {
		t.Fatalf("expected round trip data, got %#v", loaded.Data())
	}
}

func TestRepository_GetConnectionMissing(t *testing.T) {
	env := newTestEnv(t)
	repo := env.repository(t, "alice")

	_, err := repo.GetConnection(context.Background(), NewConnectionKey("facebook", "nobody"))
	if !errors.Is(err, ErrNoSuchConnection) {
		t.Fatalf("expected ErrNoSuchConnection, got %v", err)
	}
	_, err = repo.GetConnectionByCapability(context.Background(), testFacebook, "nobody")
	if !errors.Is(err, ErrNoSuchConnection) {
		t.Fatalf("expected ErrNoSuchConnection by capability, got %v", err)
	}
}

func TestRepository_UpdateKeepsRankAndRewritesFields(t *testing.T) {
	interceptor := newRecordingInterceptor("audit")
	env := newTestEnv(t, WithInterceptor(testFacebook, interceptor))
	repo := env.repository(t, "alice")
	ctx := context.Background()

	mustAdd(t, repo, facebookConnection("fb1"), facebookConnection("fb2"))
	updated := NewDataConnection(testFacebook, ConnectionData{
		ProviderID:     "facebook",
		ProviderUserID: "fb2",
		DisplayName:    StringPtr("Renamed"),
		AccessToken:    StringPtr("rotated"),
	})
	if err := repo.UpdateConnection(ctx, updated); err != nil {
		t.Fatalf("update connection: %v", err)
	}

	loaded, err := repo.GetConnection(ctx, updated.Key())
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	data := loaded.Data()
	if data.DisplayName == nil || *data.DisplayName != "Renamed" {
		t.Fatalf("expected renamed display name, got %v", data.DisplayName)
	}
	if data.AccessToken == nil || *data.AccessToken != "rotated" {
		t.Fatalf("expected rotated access token, got %v", data.AccessToken)
	}
	if data.Secret != nil || data.ProfileURL != nil || data.ExpireTime != nil {
		t.Fatalf("expected omitted fields to be cleared, got %#v", data)
	}
	record, err := env.store.Get(ctx, NewConnectionID("alice", updated.Key()).DatastoreKey(env.service.Kinds()))
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	if rank := record.Int64(PropertyRank); rank != 2 {
		t.Fatalf("expected rank 2 to be kept, got %d", rank)
	}
	if got := len(interceptor.callsFor("after_update")); got != 1 {
		t.Fatalf("expected one after_update, got %d", got)
	}
}

func TestRepository_UpdateMissingIsNoop(t *testing.T) {
	interceptor := newRecordingInterceptor("audit")
	env := newTestEnv(t, WithInterceptor(testFacebook, interceptor))
	repo := env.repository(t, "alice")

	if err := repo.UpdateConnection(context.Background(), facebookConnection("ghost")); err != nil {
		t.Fatalf("expected no error for missing update, got %v", err)
	}
	if env.store.Len() != 0 {
		t.Fatalf("expected no record to be created")
	}
	if got := interceptor.phases(); !reflect.DeepEqual(got, []string{"before_update"}) {
		t.Fatalf("expected only before_update, got %v", got)
	}
}

func TestRepository_RemoveConnection(t *testing.T) {
	interceptor := newRecordingInterceptor("audit")
	env := newTestEnv(t, WithInterceptor(testFacebook, interceptor))
	repo := env.repository(t, "alice")
	ctx := context.Background()

	mustAdd(t, repo, facebookConnection("fb1"), facebookConnection("fb2"))
	if err := repo.RemoveConnection(ctx, NewConnectionKey("facebook", "ghost")); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if got := len(interceptor.callsFor("before_remove")); got != 0 {
		t.Fatalf("expected no remove interceptors for missing key, got %d", got)
	}

	if err := repo.RemoveConnection(ctx, NewConnectionKey("facebook", "fb1")); err != nil {
		t.Fatalf("remove fb1: %v", err)
	}
	removed := interceptor.callsFor("after_remove")
	if len(removed) != 1 || len(removed[0].keys) != 1 || removed[0].keys[0].ProviderUserID != "fb1" {
		t.Fatalf("expected singleton after_remove for fb1, got %#v", removed)
	}
	if removed[0].user != "alice" {
		t.Fatalf("expected interceptor to receive user id, got %q", removed[0].user)
	}

	connections, err := repo.FindConnections(ctx, "facebook")
	if err != nil {
		t.Fatalf("find connections: %v", err)
	}
	if got := providerUserIDs(connections); !reflect.DeepEqual(got, []string{"fb2"}) {
		t.Fatalf("expected [fb2], got %v", got)
	}
}

func TestRepository_RemovingRankOneLeavesNoPrimary(t *testing.T) {
	env := newTestEnv(t)
	repo := env.repository(t, "alice")
	ctx := context.Background()

	mustAdd(t, repo, facebookConnection("fb1"), facebookConnection("fb2"))
	if err := repo.RemoveConnection(ctx, NewConnectionKey("facebook", "fb1")); err != nil {
		t.Fatalf("remove fb1: %v", err)
	}

	primary, err := repo.GetPrimaryConnection(ctx, testFacebook)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected once rank 1 is gone, got conn=%v err=%v", primary, err)
	}
	if _, found, err := repo.FindPrimaryConnection(ctx, testFacebook); err != nil || found {
		t.Fatalf("expected no primary connection, found=%v err=%v", found, err)
	}

	mustAdd(t, repo, facebookConnection("fb3"))
	record, err := env.store.Get(ctx, NewConnectionID("alice", NewConnectionKey("facebook", "fb3")).DatastoreKey(env.service.Kinds()))
	if err != nil {
		t.Fatalf("load fb3: %v", err)
	}
	if rank := record.Int64(PropertyRank); rank != 3 {
		t.Fatalf("expected ranks to stay uncompacted, got rank %d", rank)
	}
	if _, err := repo.GetPrimaryConnection(ctx, testFacebook); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected still no primary after adding fb3, got %v", err)
	}
}

func TestRepository_RemoveConnectionsInvokesInterceptorsOnce(t *testing.T) {
	interceptor := newRecordingInterceptor("audit")
	env := newTestEnv(t, WithInterceptor(testFacebook, interceptor))
	repo := env.repository(t, "alice")
	ctx := context.Background()

	if err := repo.RemoveConnections(ctx, "facebook"); err != nil {
		t.Fatalf("remove empty partition: %v", err)
	}
	if len(interceptor.phases()) != 0 {
		t.Fatalf("expected no interceptor calls for empty partition, got %v", interceptor.phases())
	}

	mustAdd(t, repo, facebookConnection("fb1"), facebookConnection("fb2"), twitterConnection("tw1"))
	if err := repo.RemoveConnections(ctx, "facebook"); err != nil {
		t.Fatalf("remove connections: %v", err)
	}
	before := interceptor.callsFor("before_remove")
	after := interceptor.callsFor("after_remove")
	if len(before) != 1 || len(after) != 1 {
		t.Fatalf("expected one before and one after remove, got %d/%d", len(before), len(after))
	}
	if len(after[0].keys) != 2 {
		t.Fatalf("expected full collection in after_remove, got %v", after[0].keys)
	}
	all, err := repo.FindAllConnections(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all["facebook"]) != 0 || len(all["twitter"]) != 1 {
		t.Fatalf("expected only twitter to remain, got %#v", all)
	}
}

func TestRepository_BeforeInterceptorVetoesMutation(t *testing.T) {
	interceptor := newRecordingInterceptor("guard")
	interceptor.fail["before_create"] = errors.New("blocked")
	env := newTestEnv(t, WithInterceptor(testFacebook, interceptor))
	repo := env.repository(t, "alice")

	err := repo.AddConnection(context.Background(), facebookConnection("fb1"))
	if err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("expected veto error, got %v", err)
	}
	if env.store.Len() != 0 {
		t.Fatalf("expected nothing to be stored after veto")
	}
	if got := interceptor.phases(); !reflect.DeepEqual(got, []string{"before_create"}) {
		t.Fatalf("expected after_create to be skipped, got %v", got)
	}
}

func TestRepository_AfterInterceptorErrorIsPostCommit(t *testing.T) {
	first := newRecordingInterceptor("first")
	first.fail["after_create"] = errors.New("listener down")
	second := newRecordingInterceptor("second")
	env := newTestEnv(t,
		WithInterceptor(testFacebook, first),
		WithInterceptor(testFacebook, second),
	)
	repo := env.repository(t, "alice")
	ctx := context.Background()

	err := repo.AddConnection(ctx, facebookConnection("fb1"))
	var afterErr *AfterInterceptorError
	if !errors.As(err, &afterErr) {
		t.Fatalf("expected AfterInterceptorError, got %v", err)
	}
	if afterErr.Operation != "create" {
		t.Fatalf("expected create operation, got %q", afterErr.Operation)
	}
	if got := len(second.callsFor("after_create")); got != 1 {
		t.Fatalf("expected every after interceptor to run, got %d", got)
	}
	if _, err := repo.GetConnection(ctx, NewConnectionKey("facebook", "fb1")); err != nil {
		t.Fatalf("expected committed connection, got %v", err)
	}
}

func TestRepository_InterceptorsMatchCapabilityExactly(t *testing.T) {
	twitterOnly := newRecordingInterceptor("twitter")
	env := newTestEnv(t, WithInterceptor(testTwitter, twitterOnly))
	repo := env.repository(t, "alice")

	mustAdd(t, repo, facebookConnection("fb1"))
	if len(twitterOnly.phases()) != 0 {
		t.Fatalf("expected twitter interceptor to ignore facebook, got %v", twitterOnly.phases())
	}
	mustAdd(t, repo, twitterConnection("tw1"))
	if got := twitterOnly.phases(); !reflect.DeepEqual(got, []string{"before_create", "after_create"}) {
		t.Fatalf("expected create hooks for twitter, got %v", got)
	}
}

func TestRepository_FindConnectionsToUsers(t *testing.T) {
	env := newTestEnv(t)
	repo := env.repository(t, "alice")
	ctx := context.Background()

	mustAdd(t, repo, facebookConnection("u1"), twitterConnection("t3"))
	result, err := repo.FindConnectionsToUsers(ctx, map[string][]string{
		"facebook": {"u1", "u2"},
		"twitter":  {"missing"},
	})
	if err != nil {
		t.Fatalf("find connections to users: %v", err)
	}
	facebook, ok := result["facebook"]
	if !ok || len(facebook) != 2 {
		t.Fatalf("expected two facebook slots, got %#v", result)
	}
	if facebook[0] == nil || facebook[0].Key().ProviderUserID != "u1" || facebook[1] != nil {
		t.Fatalf("expected [u1, <nil>], got %v", providerUserIDs(facebook))
	}
	if _, ok := result["twitter"]; ok {
		t.Fatalf("expected providers without matches to be omitted")
	}

	_, err = repo.FindConnectionsToUsers(ctx, map[string][]string{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty input, got %v", err)
	}
}

func TestRepository_ReadsDoNotLeakAcrossUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.repository(t, "alice")
	bob := env.repository(t, "bob")

	mustAdd(t, alice, facebookConnection("fb1"))
	connections, err := bob.FindConnections(ctx, "facebook")
	if err != nil {
		t.Fatalf("find connections: %v", err)
	}
	if len(connections) != 0 {
		t.Fatalf("expected bob to see no connections, got %v", providerUserIDs(connections))
	}
	if err := bob.RemoveConnection(ctx, NewConnectionKey("facebook", "fb1")); err != nil {
		t.Fatalf("remove from bob: %v", err)
	}
	if _, err := alice.GetConnection(ctx, NewConnectionKey("facebook", "fb1")); err != nil {
		t.Fatalf("expected alice connection to survive, got %v", err)
	}
}

func TestRepository_EncryptFailureAbortsAdd(t *testing.T) {
	env := newTestEnv(t)
	env.encryptor.fail = true
	repo := env.repository(t, "alice")

	if err := repo.AddConnection(context.Background(), facebookConnection("fb1")); err == nil {
		t.Fatalf("expected encrypt failure")
	}
	if env.store.Len() != 0 {
		t.Fatalf("expected no record after encrypt failure")
	}
}

func TestRepository_ConcurrentAddIsDetected(t *testing.T) {
	env := newTestEnv(t)
	repo := env.repository(t, "alice")
	ctx := context.Background()

	tx, err := env.store.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	userKey := env.service.Kinds().UserKey("alice")
	if _, err := tx.Run(ctx, datastore.NewQuery(env.service.Kinds().Connection).Ancestor(userKey)); err != nil {
		t.Fatalf("run: %v", err)
	}

	mustAdd(t, repo, facebookConnection("fb1"))
	record := datastore.NewEntity(NewConnectionID("alice", NewConnectionKey("facebook", "fb2")).DatastoreKey(env.service.Kinds()))
	record.Set(PropertyProviderID, "facebook")
	record.Set(PropertyProviderUserID, "fb2")
	record.Set(PropertyRank, int64(1))
	if err := tx.Put(ctx, record); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, datastore.ErrConcurrentModification) {
		t.Fatalf("expected stale rank read to be rejected, got %v", err)
	}
}
