package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-connections/datastore"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/otel"
)

// Service is the cross-user connection directory. It resolves provider
// identities to local users and creates per-user repositories.
type Service struct {
	config          Config
	kinds           KindNames
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	store           datastore.Datastore
	locator         ProviderLocator
	encryptor       TextEncryptor
	codec           *ConnectionCodec
	interceptors    *InterceptorRegistry
	signUp          ConnectionSignUp
	obs             *observer
}

type ServiceDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorFactory     ErrorFactory
	ErrorMapper      ErrorMapper
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	Datastore        datastore.Datastore
	ProviderLocator  ProviderLocator
	TextEncryptor    TextEncryptor
	ConnectionSignUp ConnectionSignUp
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("connections", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("connections"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.tracer == nil {
		builder.tracer = otel.Tracer(tracerName)
	}
	if builder.interceptors == nil {
		builder.interceptors = NewInterceptorRegistry()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.store == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: datastore is required"))
	}
	if builder.locator == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: provider locator is required"))
	}
	if builder.encryptor == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: text encryptor is required"))
	}

	return &Service{
		config:          finalConfig,
		kinds:           finalConfig.Kinds(),
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		store:           builder.store,
		locator:         builder.locator,
		encryptor:       builder.encryptor,
		codec:           NewConnectionCodec(builder.encryptor, builder.locator),
		interceptors:    builder.interceptors,
		signUp:          builder.signUp,
		obs: &observer{
			logger:  logger,
			metrics: builder.metricsRecorder,
			tracer:  builder.tracer,
		},
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Kinds() KindNames {
	if s == nil {
		return KindNames{}
	}
	return s.kinds
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:           s.logger,
		LoggerProvider:   s.loggerProvider,
		MetricsRecorder:  s.metricsRecorder,
		ErrorFactory:     s.errorFactory,
		ErrorMapper:      s.errorMapper,
		ConfigProvider:   s.configProvider,
		OptionsResolver:  s.optionsResolver,
		Datastore:        s.store,
		ProviderLocator:  s.locator,
		TextEncryptor:    s.encryptor,
		ConnectionSignUp: s.signUp,
	}
}

func (s *Service) ProviderLocator() ProviderLocator {
	if s == nil {
		return nil
	}
	return s.locator
}

// AddInterceptor registers an interceptor for repositories created after
// this call.
func (s *Service) AddInterceptor(capability Capability, interceptor ConnectionInterceptor) {
	if s == nil {
		return
	}
	s.interceptors.Add(capability, interceptor)
}

// MapError converts err with the configured error mapper.
func (s *Service) MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return MapError(err)
	}
	return s.errorMapper(err)
}

// CreateConnectionRepository returns a repository bound to userID with a
// snapshot of the registered interceptors.
func (s *Service) CreateConnectionRepository(userID string) (ConnectionRepository, error) {
	return s.Repository(userID)
}

// Repository is CreateConnectionRepository returning the concrete type.
func (s *Service) Repository(userID string) (*Repository, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("core: connection service is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalidArgument("user_id", "user id cannot be empty")
	}
	logger := s.logger
	if s.loggerProvider != nil {
		if named := s.loggerProvider.GetLogger("connections.repository"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	return &Repository{
		userID:       userID,
		userKey:      s.kinds.UserKey(userID),
		kinds:        s.kinds,
		store:        s.store,
		locator:      s.locator,
		codec:        s.codec,
		interceptors: s.interceptors.Clone(),
		obs: &observer{
			logger:  logger,
			metrics: s.obs.metrics,
			tracer:  s.obs.tracer,
		},
	}, nil
}

// FindUserIDsWithConnection lists local users owning the connection's
// provider identity. When nobody does and a sign-up is configured, a new
// user is provisioned and given the connection.
func (s *Service) FindUserIDsWithConnection(ctx context.Context, connection Connection) (userIDs []string, err error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("core: connection service is not configured")
	}
	startedAt := time.Now().UTC()
	key := connectionKeyOf(connection)
	fields := map[string]any{
		"provider_id":      key.ProviderID,
		"provider_user_id": key.ProviderUserID,
	}
	ctx, span := s.obs.startSpan(ctx, "find_user_ids_with_connection", fields)
	defer func() {
		fields["matches"] = len(userIDs)
		s.obs.observeOperation(ctx, span, startedAt, "find_user_ids_with_connection", err, fields)
	}()
	if connection == nil {
		return nil, invalidArgument("connection", "connection is required")
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	q := datastore.NewQuery(s.kinds.Connection).
		Equal(PropertyProviderID, key.ProviderID).
		Equal(PropertyProviderUserID, key.ProviderUserID).
		KeysOnly()
	userIDs, err = datastore.QueryForList(ctx, s.store, q, datastore.ParentNameMapper)
	if err != nil {
		return nil, fmt.Errorf("core: find user ids with connection: %w", err)
	}
	if len(userIDs) > 0 || s.signUp == nil {
		return userIDs, nil
	}

	newUserID, err := s.signUp.Execute(ctx, connection)
	if err != nil {
		return nil, fmt.Errorf("core: connection sign up: %w", err)
	}
	newUserID = strings.TrimSpace(newUserID)
	if newUserID == "" {
		return []string{}, nil
	}
	fields["signed_up_user_id"] = newUserID
	repo, err := s.Repository(newUserID)
	if err != nil {
		return nil, err
	}
	if err := repo.AddConnection(ctx, connection); err != nil {
		// The connection is committed once the after interceptors run, so the
		// provisioned user is reported alongside their failure.
		var afterErr *AfterInterceptorError
		if errors.As(err, &afterErr) {
			return []string{newUserID}, err
		}
		return nil, err
	}
	return []string{newUserID}, nil
}

// FindUserIDsConnectedTo returns the distinct local users connected to any
// of providerUserIDs, sorted.
func (s *Service) FindUserIDsConnectedTo(
	ctx context.Context,
	providerID string,
	providerUserIDs []string,
) (userIDs []string, err error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("core: connection service is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id": providerID,
		"requested":   len(providerUserIDs),
	}
	ctx, span := s.obs.startSpan(ctx, "find_user_ids_connected_to", fields)
	defer func() {
		fields["matches"] = len(userIDs)
		s.obs.observeOperation(ctx, span, startedAt, "find_user_ids_connected_to", err, fields)
	}()
	if providerID == "" {
		return nil, invalidArgument("provider_id", "provider id is required")
	}
	if len(providerUserIDs) == 0 {
		return []string{}, nil
	}

	values := make([]any, 0, len(providerUserIDs))
	for _, providerUserID := range providerUserIDs {
		values = append(values, providerUserID)
	}
	q := datastore.NewQuery(s.kinds.Connection).
		Equal(PropertyProviderID, providerID).
		In(PropertyProviderUserID, values...).
		KeysOnly()
	found, err := datastore.QueryForList(ctx, s.store, q, datastore.ParentNameMapper)
	if err != nil {
		return nil, fmt.Errorf("core: find user ids connected to: %w", err)
	}
	return dedupeSorted(found), nil
}

func dedupeSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
