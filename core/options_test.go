package core

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewService_DefaultDependencies(t *testing.T) {
	env := newTestEnv(t)
	deps := env.service.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorFactory == nil {
		t.Fatalf("expected default error factory")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil || deps.OptionsResolver == nil {
		t.Fatalf("expected default config provider and options resolver")
	}
	cfg := env.service.Config()
	if cfg.ServiceName != "connections" || cfg.UserKind != "User" || cfg.ConnectionKind != "UserConnection" {
		t.Fatalf("unexpected default config %#v", cfg)
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	customFactory := func(message string, category ...goerrors.Category) *goerrors.Error {
		return goerrors.New("custom:"+message, category...)
	}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	optionsResolver := &fixedOptionsResolver{cfg: Config{ServiceName: "resolved", UserKind: "Member", ConnectionKind: "Link"}}

	env := newTestEnv(t,
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorFactory(customFactory),
		WithErrorMapper(customMapper),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
	)

	deps := env.service.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolved := deps.LoggerProvider.GetLogger("connections.override"); resolved != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.ConfigProvider != configProvider || deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected config overrides")
	}
	if got := env.service.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	if kinds := env.service.Kinds(); kinds.User != "Member" || kinds.Connection != "Link" {
		t.Fatalf("expected resolved kinds, got %#v", kinds)
	}
	if mapped := env.service.MapError(errors.New("boom")); mapped == nil || mapped.Message != "mapped" {
		t.Fatalf("expected custom mapper, got %#v", mapped)
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"kind_prefix":  "tenant_",
	}})

	env := newTestEnv(t, WithConfigProvider(provider))
	svc, err := NewService(Config{ServiceName: "from-runtime"},
		WithConfigProvider(provider),
		WithDatastore(env.store),
		WithProviderLocator(env.registry),
		WithTextEncryptor(env.encryptor),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.KindPrefix != "tenant_" {
		t.Fatalf("expected config layer kind prefix, got %q", cfg.KindPrefix)
	}
	if cfg.UserKind != "User" {
		t.Fatalf("expected default user kind, got %q", cfg.UserKind)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]Config{
		"blank service": {UserKind: "User", ConnectionKind: "UserConnection"},
		"blank kind":    {ServiceName: "svc", ConnectionKind: "UserConnection"},
		"slash":         {ServiceName: "svc", UserKind: "a/b", ConnectionKind: "UserConnection"},
		"same kinds":    {ServiceName: "svc", UserKind: "User", ConnectionKind: "User"},
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
