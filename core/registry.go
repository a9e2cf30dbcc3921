package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderRegistry is the default ProviderLocator.
type ProviderRegistry struct {
	mu           sync.RWMutex
	factories    map[string]ConnectionFactory
	byCapability map[Capability]string
}

func NewProviderRegistry(factories ...ConnectionFactory) (*ProviderRegistry, error) {
	registry := &ProviderRegistry{
		factories:    make(map[string]ConnectionFactory),
		byCapability: make(map[Capability]string),
	}
	for _, factory := range factories {
		if err := registry.Register(factory); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *ProviderRegistry) Register(factory ConnectionFactory) error {
	if r == nil {
		return fmt.Errorf("core: provider registry is nil")
	}
	if factory == nil {
		return fmt.Errorf("core: connection factory is nil")
	}
	id := strings.TrimSpace(factory.ProviderID())
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}
	capability := Capability(strings.TrimSpace(string(factory.Capability())))
	if capability == "" {
		return fmt.Errorf("core: capability is required for provider %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]ConnectionFactory)
		r.byCapability = make(map[Capability]string)
	}
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	if owner, exists := r.byCapability[capability]; exists {
		return fmt.Errorf("core: capability %s already registered by provider %s", capability, owner)
	}
	r.factories[id] = factory
	r.byCapability[capability] = id
	return nil
}

func (r *ProviderRegistry) FactoryFor(providerID string) (ConnectionFactory, error) {
	id := strings.TrimSpace(providerID)
	if r == nil || id == "" {
		return nil, fmt.Errorf("core: provider %q not registered", providerID)
	}
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("core: provider %q not registered", id)
	}
	return factory, nil
}

func (r *ProviderRegistry) ProviderIDFor(capability Capability) (string, error) {
	if r == nil {
		return "", fmt.Errorf("core: no provider registered for capability %q", capability)
	}
	r.mu.RLock()
	id, ok := r.byCapability[capability]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("core: no provider registered for capability %q", capability)
	}
	return id, nil
}

// RegisteredProviderIDs returns ids in lexical order.
func (r *ProviderRegistry) RegisteredProviderIDs() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// StaticConnectionFactory creates DataConnections tagged with Tag.
type StaticConnectionFactory struct {
	ID  string
	Tag Capability
}

func NewStaticConnectionFactory(providerID string, capability Capability) StaticConnectionFactory {
	return StaticConnectionFactory{ID: strings.TrimSpace(providerID), Tag: capability}
}

func (f StaticConnectionFactory) ProviderID() string { return f.ID }

func (f StaticConnectionFactory) Capability() Capability { return f.Tag }

func (f StaticConnectionFactory) CreateConnection(data ConnectionData) (Connection, error) {
	if data.ProviderID != f.ID {
		return nil, fmt.Errorf("core: connection data for provider %q given to factory %q", data.ProviderID, f.ID)
	}
	return NewDataConnection(f.Tag, data), nil
}
