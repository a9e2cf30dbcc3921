package connections

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-connections/core"
)

// ProviderPack groups connection factories a host contributes together.
type ProviderPack struct {
	Name      string
	Factories []core.ConnectionFactory
}

// InterceptorPack attaches interceptors to one capability.
type InterceptorPack struct {
	Name         string
	Capability   core.Capability
	Interceptors []core.ConnectionInterceptor
}

type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks    map[string]ProviderPack
	interceptorPacks map[string]InterceptorPack
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks:    map[string]ProviderPack{},
		interceptorPacks: map[string]InterceptorPack{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("connections: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("connections: provider pack name is required")
	}
	if len(pack.Factories) == 0 {
		return fmt.Errorf("connections: provider pack %q has no factories", name)
	}
	for _, factory := range pack.Factories {
		if factory == nil {
			return fmt.Errorf("connections: provider pack %q contains a nil factory", name)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("connections: provider pack %q already registered", name)
	}
	h.providerPacks[name] = ProviderPack{
		Name:      name,
		Factories: append([]core.ConnectionFactory(nil), pack.Factories...),
	}
	return nil
}

func (h *ExtensionHooks) RegisterInterceptorPack(pack InterceptorPack) error {
	if h == nil {
		return fmt.Errorf("connections: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	capability := core.Capability(strings.TrimSpace(string(pack.Capability)))
	if name == "" {
		return fmt.Errorf("connections: interceptor pack name is required")
	}
	if capability == "" {
		return fmt.Errorf("connections: interceptor pack %q capability is required", name)
	}
	if len(pack.Interceptors) == 0 {
		return fmt.Errorf("connections: interceptor pack %q has no interceptors", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.interceptorPacks[name]; exists {
		return fmt.Errorf("connections: interceptor pack %q already registered", name)
	}
	h.interceptorPacks[name] = InterceptorPack{
		Name:         name,
		Capability:   capability,
		Interceptors: append([]core.ConnectionInterceptor(nil), pack.Interceptors...),
	}
	return nil
}

// ApplyProviderPacks registers every pack factory in pack name order. The
// registry rejects ids or capabilities that are already taken.
func (h *ExtensionHooks) ApplyProviderPacks(registry *core.ProviderRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("connections: registry is required")
	}
	for _, pack := range h.ProviderPacks() {
		for _, factory := range pack.Factories {
			if err := registry.Register(factory); err != nil {
				return fmt.Errorf("connections: provider pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

// ServiceOptions turns the interceptor packs into service options. Packs
// apply in name order and interceptors keep their order within a pack.
func (h *ExtensionHooks) ServiceOptions() []core.Option {
	if h == nil {
		return nil
	}
	var options []core.Option
	for _, pack := range h.InterceptorPacks() {
		for _, interceptor := range pack.Interceptors {
			options = append(options, core.WithInterceptor(pack.Capability, interceptor))
		}
	}
	return options
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ProviderPack, 0, len(h.providerPacks))
	for _, name := range sortedKeys(h.providerPacks) {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:      pack.Name,
			Factories: append([]core.ConnectionFactory(nil), pack.Factories...),
		})
	}
	return out
}

func (h *ExtensionHooks) InterceptorPacks() []InterceptorPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]InterceptorPack, 0, len(h.interceptorPacks))
	for _, name := range sortedKeys(h.interceptorPacks) {
		pack := h.interceptorPacks[name]
		out = append(out, InterceptorPack{
			Name:         pack.Name,
			Capability:   pack.Capability,
			Interceptors: append([]core.ConnectionInterceptor(nil), pack.Interceptors...),
		})
	}
	return out
}

func sortedKeys[T any](values map[string]T) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
