package connections

import (
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/providers"
)

// ProviderFactory returns the factory for providerID whose connections carry
// "<providerID>.api" unless a capability is given.
func ProviderFactory(providerID string, capability ...core.Capability) (core.ConnectionFactory, error) {
	var tag core.Capability
	if len(capability) > 0 {
		tag = capability[0]
	}
	factory, err := providers.New(providerID, tag)
	if err != nil {
		return nil, err
	}
	return factory, nil
}

// BuiltinProviders lists the factories for the providers known out of the box.
func BuiltinProviders() []core.ConnectionFactory {
	return providers.Builtins()
}

// NewProviderRegistry registers the built-in providers followed by extra.
func NewProviderRegistry(extra ...core.ConnectionFactory) (*core.ProviderRegistry, error) {
	return providers.NewRegistry(extra...)
}
