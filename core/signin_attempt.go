package core

import (
	"context"
	"fmt"
)

// SessionAttribute is the session key a pending sign-in attempt is kept under.
const SessionAttribute = "connections.signin.attempt"

// ProviderSignInAttempt carries the identity of a provider sign-in that did
// not resolve to a local user. Only the connection data is serialized; the
// locator and directory are supplied again when the attempt is completed.
type ProviderSignInAttempt struct {
	Data ConnectionData `json:"connection"`
}

func NewProviderSignInAttempt(connection Connection) (*ProviderSignInAttempt, error) {
	if connection == nil {
		return nil, invalidArgument("connection", "connection is required")
	}
	return &ProviderSignInAttempt{Data: connection.Data()}, nil
}

// Connection rebuilds the live connection through the locator.
func (a *ProviderSignInAttempt) Connection(_ context.Context, locator ProviderLocator) (Connection, error) {
	if a == nil {
		return nil, fmt.Errorf("core: sign-in attempt is nil")
	}
	if locator == nil {
		return nil, fmt.Errorf("core: provider locator is required")
	}
	if err := a.Data.Key().Validate(); err != nil {
		return nil, err
	}
	factory, err := locator.FactoryFor(a.Data.ProviderID)
	if err != nil {
		return nil, err
	}
	return factory.CreateConnection(a.Data.Clone())
}

// LocatorSource is implemented by directories that own a provider locator.
type LocatorSource interface {
	ProviderLocator() ProviderLocator
}

// AddConnection attaches the attempted connection to userID using the
// directory's locator. A duplicate is reported as DuplicateConnectionError.
func (a *ProviderSignInAttempt) AddConnection(
	ctx context.Context,
	directory UsersConnectionRepository,
	userID string,
) error {
	if directory == nil {
		return fmt.Errorf("core: connection directory is required")
	}
	source, ok := directory.(LocatorSource)
	if !ok {
		return fmt.Errorf("core: connection directory does not expose a provider locator")
	}
	connection, err := a.Connection(ctx, source.ProviderLocator())
	if err != nil {
		return err
	}
	repo, err := directory.CreateConnectionRepository(userID)
	if err != nil {
		return err
	}
	return repo.AddConnection(ctx, connection)
}
