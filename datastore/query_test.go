package datastore

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type sliceRunner struct {
	entities []*Entity
	queries  []Query
}

func (r *sliceRunner) Run(_ context.Context, q Query) ([]*Entity, error) {
	r.queries = append(r.queries, q)
	return q.Apply(r.entities), nil
}

func connectionEntity(user string, provider string, providerUser string, rank int) *Entity {
	key := NewKey("UserConnection", user+"-"+provider+"-"+providerUser, NewKey("User", user, nil))
	entity := NewEntity(key)
	entity.Set("providerId", provider)
	entity.Set("providerUserId", providerUser)
	entity.Set("rank", rank)
	return entity
}

func TestQuery_ApplyFiltersAndSorts(t *testing.T) {
	entities := []*Entity{
		connectionEntity("alice", "twitter", "tw1", 1),
		connectionEntity("alice", "facebook", "fb2", 2),
		connectionEntity("bob", "facebook", "fb9", 1),
		connectionEntity("alice", "facebook", "fb1", 1),
	}

	q := NewQuery("UserConnection").
		Ancestor(NewKey("User", "alice", nil)).
		OrderBy("providerId", Ascending).
		OrderBy("rank", Ascending)

	got := q.Apply(entities)
	want := []string{"fb1", "fb2", "tw1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i, entity := range got {
		if entity.String("providerUserId") != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], entity.String("providerUserId"))
		}
	}
}

func TestQuery_InFilterDescendingLimitKeysOnly(t *testing.T) {
	entities := []*Entity{
		connectionEntity("alice", "facebook", "fb1", 1),
		connectionEntity("alice", "facebook", "fb2", 2),
		connectionEntity("alice", "facebook", "fb3", 3),
	}
	q := NewQuery("UserConnection").
		In("providerUserId", "fb1", "fb3").
		OrderBy("rank", Descending).
		WithLimit(1).
		KeysOnly()

	got := q.Apply(entities)
	if len(got) != 1 {
		t.Fatalf("expected one result, got %d", len(got))
	}
	if got[0].Key.Name != "alice-facebook-fb3" {
		t.Fatalf("expected highest rank key, got %s", got[0].Key.Name)
	}
	if len(got[0].Properties) != 0 {
		t.Fatalf("expected keys-only projection, got %#v", got[0].Properties)
	}
}

func TestQuery_ValidateRejectsBadInput(t *testing.T) {
	cases := []Query{
		NewQuery(""),
		NewQuery("UserConnection").WithLimit(-1),
		{Kind: "UserConnection", Filters: []Filter{{Property: "rank", Operator: "<"}}},
		{Kind: "UserConnection", Filters: []Filter{{Property: "rank", Operator: OperatorEqual}}},
	}
	for i, q := range cases {
		if err := q.Validate(); !errors.Is(err, ErrInvalidQuery) {
			t.Fatalf("case %d: expected invalid query, got %v", i, err)
		}
	}
}

func TestCompareValues_NormalizesNumbers(t *testing.T) {
	if CompareValues(int32(2), int64(2)) != 0 {
		t.Fatalf("expected int32 and int64 to compare equal")
	}
	if CompareValues(float64(1), int64(2)) >= 0 {
		t.Fatalf("expected 1.0 < 2")
	}
	if CompareValues(nil, "a") >= 0 {
		t.Fatalf("expected nil to sort first")
	}
}

func TestQueryForList_MapsInOrderAndHonorsLimit(t *testing.T) {
	runner := &sliceRunner{entities: []*Entity{
		connectionEntity("alice", "facebook", "fb1", 1),
		connectionEntity("alice", "facebook", "fb2", 2),
		connectionEntity("alice", "facebook", "fb3", 3),
	}}
	q := NewQuery("UserConnection").OrderBy("rank", Ascending)

	ids, err := QueryForList(context.Background(), runner, q, func(_ context.Context, e *Entity) (string, error) {
		return e.String("providerUserId"), nil
	}, WithFetchLimit(2))
	if err != nil {
		t.Fatalf("query for list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "fb1" || ids[1] != "fb2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if runner.queries[0].Limit != 2 {
		t.Fatalf("expected fetch limit pushed into query, got %d", runner.queries[0].Limit)
	}
}

func TestQueryForList_PropagatesMapperError(t *testing.T) {
	runner := &sliceRunner{entities: []*Entity{connectionEntity("alice", "facebook", "fb1", 1)}}
	_, err := QueryForList(context.Background(), runner, NewQuery("UserConnection"), func(context.Context, *Entity) (int, error) {
		return 0, fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatalf("expected mapper error")
	}
}

func TestQueryForMap_KeysByEncodedKey(t *testing.T) {
	first := connectionEntity("alice", "facebook", "fb1", 1)
	second := connectionEntity("bob", "facebook", "fb1", 1)
	runner := &sliceRunner{entities: []*Entity{first, second}}

	byKey, err := QueryForMap(context.Background(), runner, NewQuery("UserConnection").KeysOnly(), ParentNameMapper)
	if err != nil {
		t.Fatalf("query for map: %v", err)
	}
	if byKey[first.Key.Encode()] != "alice" || byKey[second.Key.Encode()] != "bob" {
		t.Fatalf("unexpected map: %#v", byKey)
	}

	keys, err := QueryForList(context.Background(), runner, NewQuery("UserConnection"), KeyMapper)
	if err != nil {
		t.Fatalf("query keys: %v", err)
	}
	if len(keys) != 2 || !keys[0].Equal(first.Key) {
		t.Fatalf("unexpected keys: %v", keys)
	}
}
