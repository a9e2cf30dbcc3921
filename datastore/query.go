package datastore

import (
	"fmt"
	"sort"
	"strings"
)

type FilterOperator string

const (
	OperatorEqual FilterOperator = "="
	OperatorIn    FilterOperator = "in"
)

type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

type Filter struct {
	Property string
	Operator FilterOperator
	Values   []any
}

type Order struct {
	Property  string
	Direction SortDirection
}

// Query selects entities of one kind. All filters are AND-ed.
type Query struct {
	Kind         string
	AncestorKey  *Key
	Filters      []Filter
	Orders       []Order
	Limit        int
	KeysOnlyFlag bool
}

func NewQuery(kind string) Query {
	return Query{Kind: kind}
}

func (q Query) Ancestor(key *Key) Query {
	q.AncestorKey = key
	return q
}

func (q Query) Equal(property string, value any) Query {
	q.Filters = append(cloneFilters(q.Filters), Filter{
		Property: property,
		Operator: OperatorEqual,
		Values:   []any{NormalizeValue(value)},
	})
	return q
}

func (q Query) In(property string, values ...any) Query {
	normalized := make([]any, 0, len(values))
	for _, value := range values {
		normalized = append(normalized, NormalizeValue(value))
	}
	q.Filters = append(cloneFilters(q.Filters), Filter{
		Property: property,
		Operator: OperatorIn,
		Values:   normalized,
	})
	return q
}

func (q Query) OrderBy(property string, direction SortDirection) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Property: property, Direction: direction})
	return q
}

func (q Query) WithLimit(limit int) Query {
	q.Limit = limit
	return q
}

func (q Query) KeysOnly() Query {
	q.KeysOnlyFlag = true
	return q
}

func (q Query) Validate() error {
	if strings.TrimSpace(q.Kind) == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidQuery)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidQuery)
	}
	for _, filter := range q.Filters {
		if strings.TrimSpace(filter.Property) == "" {
			return fmt.Errorf("%w: filter property is required", ErrInvalidQuery)
		}
		switch filter.Operator {
		case OperatorEqual:
			if len(filter.Values) != 1 {
				return fmt.Errorf("%w: equality filter on %q needs one value", ErrInvalidQuery, filter.Property)
			}
		case OperatorIn:
		default:
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, filter.Operator)
		}
	}
	if q.AncestorKey != nil {
		if err := q.AncestorKey.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Matches evaluates kind, ancestor and filters against an entity.
func (q Query) Matches(entity *Entity) bool {
	if entity == nil || entity.Key == nil {
		return false
	}
	if entity.Key.Kind != q.Kind {
		return false
	}
	if q.AncestorKey != nil && !entity.Key.HasAncestor(q.AncestorKey) {
		return false
	}
	for _, filter := range q.Filters {
		value, ok := entity.Property(filter.Property)
		if !ok {
			return false
		}
		if !containsValue(filter.Values, value) {
			return false
		}
	}
	return true
}

// Apply filters, sorts and limits a candidate set. Candidates are not modified.
func (q Query) Apply(candidates []*Entity) []*Entity {
	matched := make([]*Entity, 0, len(candidates))
	for _, entity := range candidates {
		if q.Matches(entity) {
			matched = append(matched, entity)
		}
	}
	SortEntities(matched, q.Orders)
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	if q.KeysOnlyFlag {
		projected := make([]*Entity, 0, len(matched))
		for _, entity := range matched {
			projected = append(projected, NewEntity(entity.Key))
		}
		return projected
	}
	return matched
}

// SortEntities orders by the given properties, using the encoded key as the
// final tie breaker so results are deterministic.
func SortEntities(entities []*Entity, orders []Order) {
	sort.SliceStable(entities, func(i, j int) bool {
		for _, order := range orders {
			left, _ := entities[i].Property(order.Property)
			right, _ := entities[j].Property(order.Property)
			cmp := CompareValues(left, right)
			if cmp == 0 {
				continue
			}
			if order.Direction == Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return entities[i].Key.Encode() < entities[j].Key.Encode()
	})
}

// CompareValues orders nil < bool < numbers < strings.
func CompareValues(left any, right any) int {
	left = NormalizeValue(left)
	right = NormalizeValue(right)
	lr, rr := valueRank(left), valueRank(right)
	if lr != rr {
		if lr < rr {
			return -1
		}
		return 1
	}
	switch typed := left.(type) {
	case bool:
		other := right.(bool)
		switch {
		case typed == other:
			return 0
		case !typed:
			return -1
		default:
			return 1
		}
	case int64, float64:
		l, r := toFloat(left), toFloat(right)
		switch {
		case l < r:
			return -1
		case l > r:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(typed, right.(string))
	}
	return 0
}

func valueRank(value any) int {
	switch value.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func toFloat(value any) float64 {
	switch typed := value.(type) {
	case int64:
		return float64(typed)
	case float64:
		return typed
	}
	return 0
}

func containsValue(values []any, candidate any) bool {
	for _, value := range values {
		if CompareValues(value, candidate) == 0 {
			return true
		}
	}
	return false
}

func cloneFilters(filters []Filter) []Filter {
	return append([]Filter(nil), filters...)
}
