package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ConnectionInterceptor observes mutations of connections for one capability.
// Before hooks may veto a mutation by returning an error.
type ConnectionInterceptor interface {
	BeforeCreate(ctx context.Context, userID string, connection Connection) error
	AfterCreate(ctx context.Context, userID string, connection Connection) error
	BeforeUpdate(ctx context.Context, userID string, connection Connection) error
	AfterUpdate(ctx context.Context, userID string, connection Connection) error
	BeforeRemove(ctx context.Context, userID string, connections []Connection) error
	AfterRemove(ctx context.Context, userID string, connections []Connection) error
}

type (
	ConnectionHook  func(ctx context.Context, userID string, connection Connection) error
	ConnectionsHook func(ctx context.Context, userID string, connections []Connection) error
)

// InterceptorFuncs implements ConnectionInterceptor from optional funcs.
type InterceptorFuncs struct {
	Label          string
	OnBeforeCreate ConnectionHook
	OnAfterCreate  ConnectionHook
	OnBeforeUpdate ConnectionHook
	OnAfterUpdate  ConnectionHook
	OnBeforeRemove ConnectionsHook
	OnAfterRemove  ConnectionsHook
}

func (f InterceptorFuncs) Name() string { return f.Label }

func (f InterceptorFuncs) BeforeCreate(ctx context.Context, userID string, connection Connection) error {
	return callHook(f.OnBeforeCreate, ctx, userID, connection)
}

func (f InterceptorFuncs) AfterCreate(ctx context.Context, userID string, connection Connection) error {
	return callHook(f.OnAfterCreate, ctx, userID, connection)
}

func (f InterceptorFuncs) BeforeUpdate(ctx context.Context, userID string, connection Connection) error {
	return callHook(f.OnBeforeUpdate, ctx, userID, connection)
}

func (f InterceptorFuncs) AfterUpdate(ctx context.Context, userID string, connection Connection) error {
	return callHook(f.OnAfterUpdate, ctx, userID, connection)
}

func (f InterceptorFuncs) BeforeRemove(ctx context.Context, userID string, connections []Connection) error {
	if f.OnBeforeRemove == nil {
		return nil
	}
	return f.OnBeforeRemove(ctx, userID, connections)
}

func (f InterceptorFuncs) AfterRemove(ctx context.Context, userID string, connections []Connection) error {
	if f.OnAfterRemove == nil {
		return nil
	}
	return f.OnAfterRemove(ctx, userID, connections)
}

func callHook(hook ConnectionHook, ctx context.Context, userID string, connection Connection) error {
	if hook == nil {
		return nil
	}
	return hook(ctx, userID, connection)
}

// InterceptorRegistry maps a capability tag to its interceptors in
// registration order. Lookup is an exact tag match.
type InterceptorRegistry struct {
	mu      sync.RWMutex
	entries map[Capability][]ConnectionInterceptor
}

func NewInterceptorRegistry() *InterceptorRegistry {
	return &InterceptorRegistry{entries: make(map[Capability][]ConnectionInterceptor)}
}

func (r *InterceptorRegistry) Add(capability Capability, interceptor ConnectionInterceptor) {
	if r == nil || interceptor == nil {
		return
	}
	capability = normalizeCapability(capability)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[Capability][]ConnectionInterceptor)
	}
	r.entries[capability] = append(r.entries[capability], interceptor)
}

func (r *InterceptorRegistry) AddAll(capability Capability, interceptors ...ConnectionInterceptor) {
	for _, interceptor := range interceptors {
		r.Add(capability, interceptor)
	}
}

func normalizeCapability(capability Capability) Capability {
	return Capability(strings.TrimSpace(string(capability)))
}

// For returns a copy of the interceptors registered for capability.
func (r *InterceptorRegistry) For(capability Capability) []ConnectionInterceptor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.entries[normalizeCapability(capability)]
	out := make([]ConnectionInterceptor, len(list))
	copy(out, list)
	return out
}

func (r *InterceptorRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, list := range r.entries {
		total += len(list)
	}
	return total
}

func (r *InterceptorRegistry) Clone() *InterceptorRegistry {
	clone := NewInterceptorRegistry()
	if r == nil {
		return clone
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for capability, list := range r.entries {
		clone.entries[capability] = append([]ConnectionInterceptor(nil), list...)
	}
	return clone
}

// runBefore stops at the first failing interceptor.
func (r *InterceptorRegistry) runBefore(
	capability Capability,
	operation string,
	call func(ConnectionInterceptor) error,
) error {
	for _, interceptor := range r.For(capability) {
		if err := call(interceptor); err != nil {
			return fmt.Errorf("core: before-%s interceptor %q failed: %w", operation, interceptorName(interceptor), err)
		}
	}
	return nil
}

// runAfter invokes every interceptor and joins their failures.
func (r *InterceptorRegistry) runAfter(
	capability Capability,
	operation string,
	call func(ConnectionInterceptor) error,
) error {
	var joined error
	for _, interceptor := range r.For(capability) {
		if err := call(interceptor); err != nil {
			joined = errors.Join(joined, fmt.Errorf("interceptor %q: %w", interceptorName(interceptor), err))
		}
	}
	if joined == nil {
		return nil
	}
	return &AfterInterceptorError{Operation: operation, Err: joined}
}

func interceptorName(interceptor ConnectionInterceptor) string {
	if named, ok := interceptor.(interface{ Name() string }); ok {
		if name := strings.TrimSpace(named.Name()); name != "" {
			return name
		}
	}
	return fmt.Sprintf("%T", interceptor)
}
