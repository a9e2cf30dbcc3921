package query

import (
	"context"

	"github.com/goliatone/go-connections/core"
)

type Directory interface {
	core.UsersConnectionRepository
}

type FindAllConnectionsQuery struct {
	directory Directory
}

func NewFindAllConnectionsQuery(directory Directory) *FindAllConnectionsQuery {
	return &FindAllConnectionsQuery{directory: directory}
}

func (q *FindAllConnectionsQuery) Query(
	ctx context.Context,
	msg FindAllConnectionsMessage,
) (map[string][]core.Connection, error) {
	var directory Directory
	if q != nil {
		directory = q.directory
	}
	repo, err := repositoryFor(directory, msg.UserID, msg)
	if err != nil {
		return nil, err
	}
	return repo.FindAllConnections(ctx)
}

type FindConnectionsQuery struct {
	directory Directory
}

func NewFindConnectionsQuery(directory Directory) *FindConnectionsQuery {
	return &FindConnectionsQuery{directory: directory}
}

func (q *FindConnectionsQuery) Query(ctx context.Context, msg FindConnectionsMessage) ([]core.Connection, error) {
	var directory Directory
	if q != nil {
		directory = q.directory
	}
	repo, err := repositoryFor(directory, msg.UserID, msg)
	if err != nil {
		return nil, err
	}
	return repo.FindConnections(ctx, msg.ProviderID)
}

type GetConnectionQuery struct {
	directory Directory
}

func NewGetConnectionQuery(directory Directory) *GetConnectionQuery {
	return &GetConnectionQuery{directory: directory}
}

func (q *GetConnectionQuery) Query(ctx context.Context, msg GetConnectionMessage) (core.Connection, error) {
	var directory Directory
	if q != nil {
		directory = q.directory
	}
	repo, err := repositoryFor(directory, msg.UserID, msg)
	if err != nil {
		return nil, err
	}
	return repo.GetConnection(ctx, msg.Key)
}

type FindPrimaryConnectionQuery struct {
	directory Directory
}

func NewFindPrimaryConnectionQuery(directory Directory) *FindPrimaryConnectionQuery {
	return &FindPrimaryConnectionQuery{directory: directory}
}

func (q *FindPrimaryConnectionQuery) Query(
	ctx context.Context,
	msg FindPrimaryConnectionMessage,
) (PrimaryConnection, error) {
	var directory Directory
	if q != nil {
		directory = q.directory
	}
	repo, err := repositoryFor(directory, msg.UserID, msg)
	if err != nil {
		return PrimaryConnection{}, err
	}
	var (
		connection core.Connection
		found      bool
	)
	if msg.ProviderID != "" {
		connection, found, err = repo.FindPrimaryConnectionByProvider(ctx, msg.ProviderID)
	} else {
		connection, found, err = repo.FindPrimaryConnection(ctx, msg.Capability)
	}
	if err != nil {
		return PrimaryConnection{}, err
	}
	return PrimaryConnection{Connection: connection, Found: found}, nil
}

type FindConnectionsToUsersQuery struct {
	directory Directory
}

func NewFindConnectionsToUsersQuery(directory Directory) *FindConnectionsToUsersQuery {
	return &FindConnectionsToUsersQuery{directory: directory}
}

func (q *FindConnectionsToUsersQuery) Query(
	ctx context.Context,
	msg FindConnectionsToUsersMessage,
) (map[string][]core.Connection, error) {
	var directory Directory
	if q != nil {
		directory = q.directory
	}
	repo, err := repositoryFor(directory, msg.UserID, msg)
	if err != nil {
		return nil, err
	}
	return repo.FindConnectionsToUsers(ctx, msg.ProviderUserIDs)
}

type FindUserIDsWithConnectionQuery struct {
	directory Directory
}

func NewFindUserIDsWithConnectionQuery(directory Directory) *FindUserIDsWithConnectionQuery {
	return &FindUserIDsWithConnectionQuery{directory: directory}
}

func (q *FindUserIDsWithConnectionQuery) Query(
	ctx context.Context,
	msg FindUserIDsWithConnectionMessage,
) ([]string, error) {
	if q == nil || q.directory == nil {
		return nil, queryDependencyError("query: connection directory is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.directory.FindUserIDsWithConnection(ctx, msg.Connection)
}

type FindUserIDsConnectedToQuery struct {
	directory Directory
}

func NewFindUserIDsConnectedToQuery(directory Directory) *FindUserIDsConnectedToQuery {
	return &FindUserIDsConnectedToQuery{directory: directory}
}

func (q *FindUserIDsConnectedToQuery) Query(
	ctx context.Context,
	msg FindUserIDsConnectedToMessage,
) ([]string, error) {
	if q == nil || q.directory == nil {
		return nil, queryDependencyError("query: connection directory is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.directory.FindUserIDsConnectedTo(ctx, msg.ProviderID, msg.ProviderUserIDs)
}

type validator interface {
	Validate() error
}

func repositoryFor(directory Directory, userID string, msg validator) (core.ConnectionRepository, error) {
	if directory == nil {
		return nil, queryDependencyError("query: connection directory is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return directory.CreateConnectionRepository(userID)
}
