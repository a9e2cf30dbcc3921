package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// ConnectionFactory builds live connections for one provider.
type ConnectionFactory interface {
	ProviderID() string
	Capability() Capability
	CreateConnection(data ConnectionData) (Connection, error)
}

// ProviderLocator maps provider ids and capability tags to factories.
type ProviderLocator interface {
	ProviderIDFor(capability Capability) (string, error)
	FactoryFor(providerID string) (ConnectionFactory, error)
	RegisteredProviderIDs() []string
}

// TextEncryptor is a reversible text cipher used for secret fields.
type TextEncryptor interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

// ConnectionSignUp provisions a local user for a connection nobody owns yet.
// An empty user id means no user was created.
type ConnectionSignUp interface {
	Execute(ctx context.Context, connection Connection) (string, error)
}

type ConnectionSignUpFunc func(ctx context.Context, connection Connection) (string, error)

func (f ConnectionSignUpFunc) Execute(ctx context.Context, connection Connection) (string, error) {
	if f == nil {
		return "", nil
	}
	return f(ctx, connection)
}

// ConnectionRepository is the per-user view of stored connections.
type ConnectionRepository interface {
	UserID() string
	FindAllConnections(ctx context.Context) (map[string][]Connection, error)
	FindConnections(ctx context.Context, providerID string) ([]Connection, error)
	FindConnectionsByCapability(ctx context.Context, capability Capability) ([]Connection, error)
	FindConnectionsToUsers(ctx context.Context, providerUserIDs map[string][]string) (map[string][]Connection, error)
	GetConnection(ctx context.Context, key ConnectionKey) (Connection, error)
	GetConnectionByCapability(ctx context.Context, capability Capability, providerUserID string) (Connection, error)
	GetPrimaryConnection(ctx context.Context, capability Capability) (Connection, error)
	FindPrimaryConnection(ctx context.Context, capability Capability) (Connection, bool, error)
	FindPrimaryConnectionByProvider(ctx context.Context, providerID string) (Connection, bool, error)
	AddConnection(ctx context.Context, connection Connection) error
	UpdateConnection(ctx context.Context, connection Connection) error
	RemoveConnections(ctx context.Context, providerID string) error
	RemoveConnection(ctx context.Context, key ConnectionKey) error
}

// UsersConnectionRepository resolves provider identities across all users.
type UsersConnectionRepository interface {
	FindUserIDsWithConnection(ctx context.Context, connection Connection) ([]string, error)
	FindUserIDsConnectedTo(ctx context.Context, providerID string, providerUserIDs []string) ([]string, error)
	CreateConnectionRepository(userID string) (ConnectionRepository, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
