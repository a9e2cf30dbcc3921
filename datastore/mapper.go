package datastore

import (
	"context"
	"fmt"
)

// EntityMapper maps one query result into a domain value.
type EntityMapper[T any] func(ctx context.Context, entity *Entity) (T, error)

type FetchOptions struct {
	Limit int
}

type FetchOption func(*FetchOptions)

// WithFetchLimit caps the number of mapped results. Zero means no limit.
func WithFetchLimit(limit int) FetchOption {
	return func(o *FetchOptions) {
		if limit > 0 {
			o.Limit = limit
		}
	}
}

// QueryForList runs q and maps every result, preserving result order.
func QueryForList[T any](ctx context.Context, runner Runner, q Query, mapper EntityMapper[T], opts ...FetchOption) ([]T, error) {
	if runner == nil {
		return nil, fmt.Errorf("datastore: runner is required")
	}
	if mapper == nil {
		return nil, fmt.Errorf("datastore: entity mapper is required")
	}
	fetch := resolveFetchOptions(opts...)
	if fetch.Limit > 0 && (q.Limit == 0 || fetch.Limit < q.Limit) {
		q = q.WithLimit(fetch.Limit)
	}
	entities, err := runner.Run(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entities))
	for _, entity := range entities {
		mapped, mapErr := mapper(ctx, entity)
		if mapErr != nil {
			return nil, mapErr
		}
		out = append(out, mapped)
	}
	return out, nil
}

// QueryForMap runs q and maps every result keyed by its encoded key.
func QueryForMap[T any](ctx context.Context, runner Runner, q Query, mapper EntityMapper[T], opts ...FetchOption) (map[string]T, error) {
	if mapper == nil {
		return nil, fmt.Errorf("datastore: entity mapper is required")
	}
	type keyed struct {
		key   string
		value T
	}
	pairs, err := QueryForList(ctx, runner, q, func(ctx context.Context, entity *Entity) (keyed, error) {
		value, mapErr := mapper(ctx, entity)
		if mapErr != nil {
			return keyed{}, mapErr
		}
		return keyed{key: entity.Key.Encode(), value: value}, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(pairs))
	for _, pair := range pairs {
		out[pair.key] = pair.value
	}
	return out, nil
}

// KeyMapper maps an entity to its bare identifier.
func KeyMapper(_ context.Context, entity *Entity) (*Key, error) {
	if entity == nil || entity.Key == nil {
		return nil, fmt.Errorf("%w: entity has no key", ErrInvalidKey)
	}
	return entity.Key, nil
}

// ParentNameMapper maps an entity to the name of its parent key.
func ParentNameMapper(_ context.Context, entity *Entity) (string, error) {
	if entity == nil || entity.Key == nil || entity.Key.Parent == nil {
		return "", fmt.Errorf("%w: entity has no parent", ErrInvalidKey)
	}
	return entity.Key.Parent.Name, nil
}

func resolveFetchOptions(opts ...FetchOption) FetchOptions {
	resolved := FetchOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&resolved)
	}
	return resolved
}
