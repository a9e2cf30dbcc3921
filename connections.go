// Package connections stores, ranks and looks up the accounts a local user
// has connected at external service providers. The root package re-exports
// the core service so hosts can depend on one import path.
package connections

import "github.com/goliatone/go-connections/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Repository = core.Repository

type Capability = core.Capability
type Connection = core.Connection
type ConnectionData = core.ConnectionData
type ConnectionKey = core.ConnectionKey
type ConnectionFactory = core.ConnectionFactory
type ConnectionInterceptor = core.ConnectionInterceptor
type ConnectionRepository = core.ConnectionRepository
type UsersConnectionRepository = core.UsersConnectionRepository
type ConnectionSignUp = core.ConnectionSignUp
type ConnectionSignUpFunc = core.ConnectionSignUpFunc
type ProviderLocator = core.ProviderLocator
type ProviderRegistry = core.ProviderRegistry
type ProviderSignInAttempt = core.ProviderSignInAttempt
type TextEncryptor = core.TextEncryptor
type InterceptorFuncs = core.InterceptorFuncs
type InterceptorRegistry = core.InterceptorRegistry

var (
	ErrDuplicateConnection = core.ErrDuplicateConnection
	ErrNoSuchConnection    = core.ErrNoSuchConnection
	ErrNotConnected        = core.ErrNotConnected
	ErrInvalidArgument     = core.ErrInvalidArgument
)

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithTracer              = core.WithTracer
	WithErrorFactory        = core.WithErrorFactory
	WithErrorMapper         = core.WithErrorMapper
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithDatastore           = core.WithDatastore
	WithProviderLocator     = core.WithProviderLocator
	WithTextEncryptor       = core.WithTextEncryptor
	WithInterceptorRegistry = core.WithInterceptorRegistry
	WithInterceptor         = core.WithInterceptor
	WithConnectionSignUp    = core.WithConnectionSignUp
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func NewConnectionKey(providerID string, providerUserID string) ConnectionKey {
	return core.NewConnectionKey(providerID, providerUserID)
}

func NewProviderSignInAttempt(connection Connection) (*ProviderSignInAttempt, error) {
	return core.NewProviderSignInAttempt(connection)
}
