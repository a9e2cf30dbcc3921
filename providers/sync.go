package providers

import (
	"context"
	"fmt"

	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/identity"
	glog "github.com/goliatone/go-logger/glog"
)

// ProfileResolver is satisfied by *identity.Resolver.
type ProfileResolver interface {
	Resolve(ctx context.Context, data core.ConnectionData) (identity.Profile, error)
}

type SyncOption func(*Syncer)

func WithSyncLogger(logger core.Logger) SyncOption {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Syncer refreshes the display fields of stored connections from the
// provider's userinfo endpoint.
type Syncer struct {
	resolver ProfileResolver
	factory  core.ProviderLocator
	logger   core.Logger
}

func NewSyncer(resolver ProfileResolver, locator core.ProviderLocator, opts ...SyncOption) (*Syncer, error) {
	if resolver == nil {
		return nil, fmt.Errorf("providers: profile resolver is required")
	}
	if locator == nil {
		return nil, fmt.Errorf("providers: connection factory locator is required")
	}
	syncer := &Syncer{resolver: resolver, factory: locator}
	for _, opt := range opts {
		if opt != nil {
			opt(syncer)
		}
	}
	syncer.logger = glog.Ensure(syncer.logger)
	return syncer, nil
}

// Sync resolves the profile behind connection and persists the refreshed
// display fields through repo. The updated connection is returned.
func (s *Syncer) Sync(ctx context.Context, repo core.ConnectionRepository, connection core.Connection) (core.Connection, error) {
	if repo == nil {
		return nil, fmt.Errorf("providers: connection repository is required")
	}
	if connection == nil {
		return nil, fmt.Errorf("providers: connection is required")
	}
	data := connection.Data()
	profile, err := s.resolver.Resolve(ctx, data)
	if err != nil {
		s.logger.WithContext(ctx).Warn("profile sync failed",
			"provider_id", data.ProviderID, "provider_user_id", data.ProviderUserID, "error", err)
		return nil, err
	}
	updatedData := identity.ApplyProfile(data, profile)
	if updatedData.Equal(data) {
		return connection, nil
	}
	factory, err := s.factory.FactoryFor(data.ProviderID)
	if err != nil {
		return nil, err
	}
	updated, err := factory.CreateConnection(updatedData)
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateConnection(ctx, updated); err != nil {
		return nil, err
	}
	s.logger.WithContext(ctx).Debug("profile synced",
		"provider_id", data.ProviderID, "provider_user_id", data.ProviderUserID, "user_id", repo.UserID())
	return updated, nil
}
