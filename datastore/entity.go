package datastore

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Entity is a keyed bag of scalar properties. Property values are nil,
// string, int64, float64 or bool after normalization.
type Entity struct {
	Key        *Key
	Properties map[string]any
}

func NewEntity(key *Key) *Entity {
	return &Entity{Key: key, Properties: map[string]any{}}
}

func (e *Entity) Set(name string, value any) {
	if e.Properties == nil {
		e.Properties = map[string]any{}
	}
	e.Properties[name] = NormalizeValue(value)
}

func (e *Entity) Property(name string) (any, bool) {
	if e == nil || e.Properties == nil {
		return nil, false
	}
	value, ok := e.Properties[name]
	return value, ok
}

func (e *Entity) String(name string) string {
	value, _ := e.Property(name)
	if typed, ok := value.(string); ok {
		return typed
	}
	return ""
}

// OptionalString returns nil when the property is absent or null.
func (e *Entity) OptionalString(name string) *string {
	value, _ := e.Property(name)
	typed, ok := value.(string)
	if !ok {
		return nil
	}
	return &typed
}

func (e *Entity) Int64(name string) int64 {
	value := e.OptionalInt64(name)
	if value == nil {
		return 0
	}
	return *value
}

func (e *Entity) OptionalInt64(name string) *int64 {
	value, _ := e.Property(name)
	switch typed := NormalizeValue(value).(type) {
	case int64:
		return &typed
	case float64:
		if typed == math.Trunc(typed) {
			converted := int64(typed)
			return &converted
		}
	}
	return nil
}

// Clone returns a deep copy; keys are immutable once built and are shared.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	cloned := &Entity{Key: e.Key, Properties: make(map[string]any, len(e.Properties))}
	for name, value := range e.Properties {
		cloned.Properties[name] = value
	}
	return cloned
}

// NormalizeValue folds the numeric types produced by different drivers and
// decoders into int64 or float64.
func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case *string:
		if typed == nil {
			return nil
		}
		return *typed
	case *int64:
		if typed == nil {
			return nil
		}
		return *typed
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case int64:
		return typed
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case float32:
		return float64(typed)
	case json.Number:
		if parsed, err := strconv.ParseInt(typed.String(), 10, 64); err == nil {
			return parsed
		}
		if parsed, err := typed.Float64(); err == nil {
			return parsed
		}
		return typed.String()
	case string, float64, bool:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}
