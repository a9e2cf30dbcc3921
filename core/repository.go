package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-connections/datastore"
)

// Repository is the per-user connection store. Every record lives in the
// entity group rooted at the user's key, so reads are strongly consistent.
type Repository struct {
	userID       string
	userKey      *datastore.Key
	kinds        KindNames
	store        datastore.Datastore
	locator      ProviderLocator
	codec        *ConnectionCodec
	interceptors *InterceptorRegistry
	obs          *observer
}

func (r *Repository) UserID() string {
	if r == nil {
		return ""
	}
	return r.userID
}

func (r *Repository) FindAllConnections(ctx context.Context) (connections map[string][]Connection, err error) {
	startedAt := time.Now().UTC()
	fields := r.fields("")
	ctx, span := r.telemetry().startSpan(ctx, "find_all_connections", fields)
	defer func() {
		r.telemetry().observeOperation(ctx, span, startedAt, "find_all_connections", err, fields)
	}()
	if err := r.ready(); err != nil {
		return nil, err
	}

	connections = make(map[string][]Connection)
	for _, providerID := range r.locator.RegisteredProviderIDs() {
		connections[providerID] = []Connection{}
	}
	q := r.baseQuery().
		OrderBy(PropertyProviderID, datastore.Ascending).
		OrderBy(PropertyRank, datastore.Ascending)
	found, err := datastore.QueryForList(ctx, r.store, q, r.codec.Mapper())
	if err != nil {
		return nil, fmt.Errorf("core: find all connections: %w", err)
	}
	for _, connection := range found {
		providerID := connection.Key().ProviderID
		connections[providerID] = append(connections[providerID], connection)
	}
	return connections, nil
}

func (r *Repository) FindConnections(ctx context.Context, providerID string) (connections []Connection, err error) {
	providerID = strings.TrimSpace(providerID)
	startedAt := time.Now().UTC()
	fields := r.fields(providerID)
	ctx, span := r.telemetry().startSpan(ctx, "find_connections", fields)
	defer func() {
		r.telemetry().observeOperation(ctx, span, startedAt, "find_connections", err, fields)
	}()
	if err := r.ready(); err != nil {
		return nil, err
	}
	if providerID == "" {
		return nil, invalidArgument("provider_id", "provider id is required")
	}
	connections, err = r.listByProvider(ctx, r.store, providerID)
	if err != nil {
		return nil, fmt.Errorf("core: find connections: %w", err)
	}
	return connections, nil
}

func (r *Repository) FindConnectionsByCapability(ctx context.Context, capability Capability) ([]Connection, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	providerID, err := r.locator.ProviderIDFor(capability)
	if err != nil {
		return nil, err
	}
	return r.FindConnections(ctx, providerID)
}

// FindConnectionsToUsers returns, per provider with at least one match, a
// list aligned with the requested provider user ids. Unmatched positions are
// nil.
func (r *Repository) FindConnectionsToUsers(
	ctx context.Context,
	providerUserIDs map[string][]string,
) (result map[string][]Connection, err error) {
	startedAt := time.Now().UTC()
	fields := r.fields("")
	fields["providers"] = len(providerUserIDs)
	ctx, span := r.telemetry().startSpan(ctx, "find_connections_to_users", fields)
	defer func() {
		r.telemetry().observeOperation(ctx, span, startedAt, "find_connections_to_users", err, fields)
	}()
	if err := r.ready(); err != nil {
		return nil, err
	}
	if len(providerUserIDs) == 0 {
		return nil, invalidArgument("provider_user_ids", "unable to execute find: no providerUsers provided")
	}

	providerIDs := make([]string, 0, len(providerUserIDs))
	for providerID := range providerUserIDs {
		providerIDs = append(providerIDs, providerID)
	}
	sort.Strings(providerIDs)

	seen := make(map[string]struct{})
	matches := make([]*datastore.Entity, 0)
	for _, providerID := range providerIDs {
		userIDs := providerUserIDs[providerID]
		if len(userIDs) == 0 {
			continue
		}
		values := make([]any, 0, len(userIDs))
		for _, userID := range userIDs {
			values = append(values, userID)
		}
		q := r.baseQuery().
			Equal(PropertyProviderID, providerID).
			In(PropertyProviderUserID, values...).
			OrderBy(PropertyProviderID, datastore.Ascending).
			OrderBy(PropertyRank, datastore.Ascending)
		entities, runErr := r.store.Run(ctx, q)
		if runErr != nil {
			return nil, fmt.Errorf("core: find connections to users: %w", runErr)
		}
		for _, entity := range entities {
			encoded := entity.Key.Encode()
			if _, dup := seen[encoded]; dup {
				continue
			}
			seen[encoded] = struct{}{}
			matches = append(matches, entity)
		}
	}
	datastore.SortEntities(matches, []datastore.Order{
		{Property: PropertyProviderID, Direction: datastore.Ascending},
		{Property: PropertyRank, Direction: datastore.Ascending},
	})

	result = make(map[string][]Connection)
	for _, entity := range matches {
		connection, mapErr := r.codec.ToConnection(ctx, entity)
		if mapErr != nil {
			return nil, mapErr
		}
		key := connection.Key()
		slots, ok := result[key.ProviderID]
		if !ok {
			slots = make([]Connection, len(providerUserIDs[key.ProviderID]))
			result[key.ProviderID] = slots
		}
		for index, requested := range providerUserIDs[key.ProviderID] {
			if requested == key.ProviderUserID {
				slots[index] = connection
			}
		}
	}
	return result, nil
}

func (r *Repository) GetConnection(ctx context.Context, key ConnectionKey) (connection Connection, err error) {
	startedAt := time.Now().UTC()
	fields := r.keyFields(key)
	ctx, span := r.telemetry().startSpan(ctx, "get_connection", fields)
	defer func() {
		r.telemetry().observeOperation(ctx, span, startedAt, "get_connection", err, fields)
	}()
	if err := r.ready(); err != nil {
		return nil, err
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	q := r.baseQuery().
		Equal(PropertyProviderID, key.ProviderID).
		Equal(PropertyProviderUserID, key.ProviderUserID)
	found, err := datastore.QueryForList(ctx, r.store, q, r.codec.Mapper(), datastore.WithFetchLimit(2))
	if err != nil {
		return nil, fmt.Errorf("core: get connection: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, noSuchConnection(key)
	case 1:
		return found[0], nil
	default:
		r.telemetry().logError(ctx, "more than one connection stored for key", fields)
		return nil, noSuchConnection(key)
	}
}

func (r *Repository) GetConnectionByCapability(
	ctx context.Context,
	capability Capability,
	providerUserID string,
) (Connection, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	providerID, err := r.locator.ProviderIDFor(capability)
	if err != nil {
		return nil, err
	}
	return r.GetConnection(ctx, NewConnectionKey(providerID, providerUserID))
}

// GetPrimaryConnection fails with NotConnected when the user has no
// connection to the provider behind capability.
func (r *Repository) GetPrimaryConnection(ctx context.Context, capability Capability) (Connection, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	providerID, err := r.locator.ProviderIDFor(capability)
	if err != nil {
		return nil, err
	}
	connection, found, err := r.FindPrimaryConnectionByProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notConnected(providerID)
	}
	return connection, nil
}

func (r *Repository) FindPrimaryConnection(ctx context.Context, capability Capability) (Connection, bool, error) {
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	providerID, err := r.locator.ProviderIDFor(capability)
	if err != nil {
		return nil, false, err
	}
	return r.FindPrimaryConnectionByProvider(ctx, providerID)
}

// FindPrimaryConnectionByProvider returns the rank 1 connection. Ranks are not
// compacted, so removing the rank 1 connection leaves the provider without a
// primary.
func (r *Repository) FindPrimaryConnectionByProvider(
	ctx context.Context,
	providerID string,
) (connection Connection, found bool, err error) {
	providerID = strings.TrimSpace(providerID)
	startedAt := time.Now().UTC()
	fields := r.fields(providerID)
	ctx, span := r.telemetry().startSpan(ctx, "find_primary_connection", fields)
	defer func() {
		fields["found"] = found
		r.telemetry().observeOperation(ctx, span, startedAt, "find_primary_connection", err, fields)
	}()
	if err := r.ready(); err != nil {
		return nil, false, err
	}
	if providerID == "" {
		return nil, false, invalidArgument("provider_id", "provider id is required")
	}
	q := r.baseQuery().
		Equal(PropertyProviderID, providerID).
		Equal(PropertyRank, PrimaryRank)
	primary, err := datastore.QueryForList(ctx, r.store, q, r.codec.Mapper(), datastore.WithFetchLimit(1))
	if err != nil {
		return nil, false, fmt.Errorf("core: find primary connection: %w", err)
	}
	if len(primary) == 0 {
		return nil, false, nil
	}
	return primary[0], true, nil
}

// AddConnection stores connection at the next rank for its provider. The
// absence check, the rank read and the insert share one transaction.
func (r *Repository) AddConnection(ctx context.Context, connection Connection) (err error) {
	startedAt := time.Now().UTC()
	key := connectionKeyOf(connection)
	fields := r.keyFields(key)
	ctx, span := r.telemetry().startSpan(ctx, "add_connection", fields)
	defer func() {
		r.telemetry().observeOperation(ctx, span, startedAt, "add_connection", err, fields)
	}()
	if err := r.ready(); err != nil {
		return err
	}
	if connection == nil {
		return invalidArgument("connection", "connection is required")
	}
	if err := key.Validate(); err != nil {
		return err
	}

	capability := connection.Capability()
	if err := r.interceptors.runBefore(capability, "create", func(i ConnectionInterceptor) error {
		return i.BeforeCreate(ctx, r.userID, connection)
	}); err != nil {
		return err
	}

	data := connection.Data()
	data.ProviderID, data.ProviderUserID = key.ProviderID, key.ProviderUserID
	recordKey := NewConnectionID(r.userID, key).DatastoreKey(r.kinds)

	tx, err := r.store.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("core: begin add transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, getErr := tx.Get(ctx, recordKey); getErr == nil {
		return duplicateConnection(key)
	} else if !errors.Is(getErr, datastore.ErrNoSuchEntity) {
		return fmt.Errorf("core: check existing connection: %w", getErr)
	}

	rank, err := r.nextRank(ctx, tx, key.ProviderID)
	if err != nil {
		return err
	}
	fields["rank"] = rank
	record, err := r.codec.NewRecord(ctx, recordKey, data, rank)
	if err != nil {
		return err
	}
	if err := tx.Put(ctx, record); err != nil {
		return fmt.Errorf("core: store connection: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("core: commit add connection: %w", err)
	}

	return r.interceptors.runAfter(capability, "create", func(i ConnectionInterceptor) error {
		return i.AfterCreate(ctx, r.userID, connection)
	})
}

// UpdateConnection rewrites the profile, secrets and expiry of a stored
// connection. Rank and identity are kept. A missing record is logged and
// ignored.
func (r *Repository) UpdateConnection(ctx context.Context, connection Connection) (err error) {
	startedAt := time.Now().UTC()
	key := connectionKeyOf(connection)
	fields := r.keyFields(key)
	ctx, span := r.telemetry().startSpan(ctx, "update_connection", fields)
	defer func() {
		r.telemetry().observeOperation(ctx, span, startedAt, "update_connection", err, fields)
	}()
	if err := r.ready(); err != nil {
		return err
	}
	if connection == nil {
		return invalidArgument("connection", "connection is required")
	}
	if err := key.Validate(); err != nil {
		return err
	}

	capability := connection.Capability()
	if err := r.interceptors.runBefore(capability, "update", func(i ConnectionInterceptor) error {
		return i.BeforeUpdate(ctx, r.userID, connection)
	}); err != nil {
		return err
	}

	recordKey := NewConnectionID(r.userID, key).DatastoreKey(r.kinds)
	tx, err := r.store.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("core: begin update transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := tx.Get(ctx, recordKey)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		fields["updated"] = false
		r.telemetry().logWarn(ctx, "update skipped: no such connection exists", fields)
		return nil
	}
	if err != nil {
		return fmt.Errorf("core: load connection for update: %w", err)
	}

	data := connection.Data()
	data.ProviderID = existing.String(PropertyProviderID)
	data.ProviderUserID = existing.String(PropertyProviderUserID)
	props, err := r.codec.ToProperties(ctx, data, existing.Int64(PropertyRank))
	if err != nil {
		return err
	}
	updated := existing.Clone()
	for name, value := range props {
		updated.Set(name, value)
	}
	if err := tx.Put(ctx, updated); err != nil {
		return fmt.Errorf("core: store updated connection: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("core: commit update connection: %w", err)
	}
	fields["updated"] = true

	return r.interceptors.runAfter(capability, "update", func(i ConnectionInterceptor) error {
		return i.AfterUpdate(ctx, r.userID, connection)
	})
}

// RemoveConnections deletes every connection to providerID in one
// cross-group transaction. Interceptors see the whole collection once.
func (r *Repository) RemoveConnections(ctx context.Context, providerID string) (err error) {
	providerID = strings.TrimSpace(providerID)
	startedAt := time.Now().UTC()
	fields := r.fields(providerID)
	ctx, span := r.telemetry().startSpan(ctx, "remove_connections", fields)
	defer func() {
		r.telemetry().observeOperation(ctx, span, startedAt, "remove_connections", err, fields)
	}()
	if err := r.ready(); err != nil {
		return err
	}
	if providerID == "" {
		return invalidArgument("provider_id", "provider id is required")
	}

	tx, err := r.store.BeginTransaction(ctx, datastore.WithCrossGroup())
	if err != nil {
		return fmt.Errorf("core: begin remove transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	connections, err := r.listByProvider(ctx, tx, providerID)
	if err != nil {
		return fmt.Errorf("core: load connections for removal: %w", err)
	}
	fields["removed"] = len(connections)
	if len(connections) == 0 {
		return nil
	}

	capability := connections[0].Capability()
	if err := r.interceptors.runBefore(capability, "remove", func(i ConnectionInterceptor) error {
		return i.BeforeRemove(ctx, r.userID, connections)
	}); err != nil {
		return err
	}

	keys := make([]*datastore.Key, 0, len(connections))
	for _, connection := range connections {
		keys = append(keys, NewConnectionID(r.userID, connection.Key()).DatastoreKey(r.kinds))
	}
	if err := tx.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("core: delete connections: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("core: commit remove connections: %w", err)
	}

	return r.interceptors.runAfter(capability, "remove", func(i ConnectionInterceptor) error {
		return i.AfterRemove(ctx, r.userID, connections)
	})
}

// RemoveConnection deletes one connection. A missing record is logged and
// ignored without invoking interceptors.
func (r *Repository) RemoveConnection(ctx context.Context, key ConnectionKey) (err error) {
	startedAt := time.Now().UTC()
	fields := r.keyFields(key)
	ctx, span := r.telemetry().startSpan(ctx, "remove_connection", fields)
	defer func() {
		r.telemetry().observeOperation(ctx, span, startedAt, "remove_connection", err, fields)
	}()
	if err := r.ready(); err != nil {
		return err
	}
	if err := key.Validate(); err != nil {
		return err
	}

	recordKey := NewConnectionID(r.userID, key).DatastoreKey(r.kinds)
	tx, err := r.store.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("core: begin remove transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	record, err := tx.Get(ctx, recordKey)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		fields["removed"] = 0
		r.telemetry().logWarn(ctx, "remove skipped: no such connection exists", fields)
		return nil
	}
	if err != nil {
		return fmt.Errorf("core: load connection for removal: %w", err)
	}
	connection, err := r.codec.ToConnection(ctx, record)
	if err != nil {
		return err
	}

	single := []Connection{connection}
	capability := connection.Capability()
	if err := r.interceptors.runBefore(capability, "remove", func(i ConnectionInterceptor) error {
		return i.BeforeRemove(ctx, r.userID, single)
	}); err != nil {
		return err
	}
	if err := tx.Delete(ctx, recordKey); err != nil {
		return fmt.Errorf("core: delete connection: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("core: commit remove connection: %w", err)
	}
	fields["removed"] = 1

	return r.interceptors.runAfter(capability, "remove", func(i ConnectionInterceptor) error {
		return i.AfterRemove(ctx, r.userID, single)
	})
}

func (r *Repository) listByProvider(ctx context.Context, runner datastore.Runner, providerID string) ([]Connection, error) {
	q := r.baseQuery().
		Equal(PropertyProviderID, providerID).
		OrderBy(PropertyRank, datastore.Ascending)
	return datastore.QueryForList(ctx, runner, q, r.codec.Mapper())
}

func (r *Repository) nextRank(ctx context.Context, tx datastore.Transaction, providerID string) (int64, error) {
	q := r.baseQuery().
		Equal(PropertyProviderID, providerID).
		OrderBy(PropertyRank, datastore.Descending).
		WithLimit(1)
	top, err := tx.Run(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("core: compute connection rank: %w", err)
	}
	if len(top) == 0 {
		return PrimaryRank, nil
	}
	return top[0].Int64(PropertyRank) + 1, nil
}

func (r *Repository) baseQuery() datastore.Query {
	return datastore.NewQuery(r.kinds.Connection).Ancestor(r.userKey)
}

func (r *Repository) ready() error {
	if r == nil || r.store == nil || r.codec == nil || r.locator == nil {
		return fmt.Errorf("core: connection repository is not configured")
	}
	return nil
}

func (r *Repository) fields(providerID string) map[string]any {
	fields := map[string]any{"user_id": r.UserID()}
	if providerID != "" {
		fields["provider_id"] = providerID
	}
	return fields
}

func (r *Repository) keyFields(key ConnectionKey) map[string]any {
	fields := r.fields(key.ProviderID)
	if key.ProviderUserID != "" {
		fields["provider_user_id"] = key.ProviderUserID
	}
	return fields
}

func connectionKeyOf(connection Connection) ConnectionKey {
	if connection == nil {
		return ConnectionKey{}
	}
	return connection.Key()
}

func (r *Repository) telemetry() *observer {
	if r == nil {
		return nil
	}
	return r.obs
}
