package providers

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-connections/core"
)

const (
	Facebook = "facebook"
	Twitter  = "twitter"
	LinkedIn = "linkedin"
	GitHub   = "github"
	Google   = "google"
)

// Factory creates DataConnections for one provider and tags them with the
// provider's API capability.
type Factory struct {
	id         string
	capability core.Capability
}

func New(providerID string, capability core.Capability) (*Factory, error) {
	id := strings.TrimSpace(strings.ToLower(providerID))
	if id == "" {
		return nil, fmt.Errorf("providers: provider id is required")
	}
	if strings.TrimSpace(string(capability)) == "" {
		capability = APICapability(id)
	}
	return &Factory{id: id, capability: capability}, nil
}

// APICapability is the capability tag used by the built-in factories.
func APICapability(providerID string) core.Capability {
	return core.Capability(strings.TrimSpace(strings.ToLower(providerID)) + ".api")
}

func (f *Factory) ProviderID() string { return f.id }

func (f *Factory) Capability() core.Capability { return f.capability }

func (f *Factory) CreateConnection(data core.ConnectionData) (core.Connection, error) {
	if data.ProviderID == "" {
		data.ProviderID = f.id
	}
	if data.ProviderID != f.id {
		return nil, fmt.Errorf("providers: connection data for %q given to %q factory", data.ProviderID, f.id)
	}
	return core.NewDataConnection(f.capability, data), nil
}

// Builtins returns a factory for each provider the module ships with.
func Builtins() []core.ConnectionFactory {
	ids := []string{Facebook, Twitter, LinkedIn, GitHub, Google}
	factories := make([]core.ConnectionFactory, 0, len(ids))
	for _, id := range ids {
		factories = append(factories, &Factory{id: id, capability: APICapability(id)})
	}
	return factories
}

// Register adds factories to registry. With no factories it registers the
// built-ins.
func Register(registry *core.ProviderRegistry, factories ...core.ConnectionFactory) error {
	if registry == nil {
		return fmt.Errorf("providers: registry is required")
	}
	if len(factories) == 0 {
		factories = Builtins()
	}
	for _, factory := range factories {
		if err := registry.Register(factory); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry builds a registry holding the built-ins plus extra.
func NewRegistry(extra ...core.ConnectionFactory) (*core.ProviderRegistry, error) {
	return core.NewProviderRegistry(append(Builtins(), extra...)...)
}
