package sqlstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/goliatone/go-connections/datastore"
	"github.com/uptrace/bun"
)

type entityRecord struct {
	bun.BaseModel `bun:"table:connection_entities,alias:ce"`

	ID         string    `bun:"id,pk"`
	KeyPath    string    `bun:"key_path,notnull"`
	Kind       string    `bun:"kind,notnull"`
	RootPath   string    `bun:"root_path,notnull"`
	ParentPath string    `bun:"parent_path,notnull"`
	Properties string    `bun:"properties,notnull"`
	Version    int64     `bun:"version,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type groupRecord struct {
	bun.BaseModel `bun:"table:connection_entity_groups,alias:ceg"`

	RootPath  string    `bun:"root_path,pk"`
	Version   int64     `bun:"version,notnull"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// indexRecord is one string property of an entity, kept so cross-group
// lookups can be answered by connection_entity_index_lookup_idx.
type indexRecord struct {
	bun.BaseModel `bun:"table:connection_entity_index,alias:cei"`

	KeyPath string `bun:"key_path,pk"`
	Name    string `bun:"name,pk"`
	Kind    string `bun:"kind,notnull"`
	Value   string `bun:"value,notnull"`
}

func newIndexRecords(entity *datastore.Entity, names []string) []*indexRecord {
	records := make([]*indexRecord, 0, len(names))
	for _, name := range names {
		value, ok := entity.Property(name)
		if !ok {
			continue
		}
		text, ok := datastore.NormalizeValue(value).(string)
		if !ok {
			continue
		}
		records = append(records, &indexRecord{
			KeyPath: entity.Key.Encode(),
			Name:    name,
			Kind:    entity.Key.Kind,
			Value:   text,
		})
	}
	return records
}

// indexedValues reports the string values of a filter on an indexed
// property. Filters with any non-string value are left to Query.Apply.
func indexedValues(filter datastore.Filter, names []string) ([]string, bool) {
	if len(filter.Values) == 0 || !slices.Contains(names, filter.Property) {
		return nil, false
	}
	values := make([]string, 0, len(filter.Values))
	for _, value := range filter.Values {
		text, ok := datastore.NormalizeValue(value).(string)
		if !ok {
			return nil, false
		}
		values = append(values, text)
	}
	return values, true
}

func newEntityRecord(entity *datastore.Entity, now time.Time) (*entityRecord, error) {
	properties, err := encodeProperties(entity.Properties)
	if err != nil {
		return nil, err
	}
	parentPath := ""
	if entity.Key.Parent != nil {
		parentPath = entity.Key.Parent.Encode()
	}
	return &entityRecord{
		KeyPath:    entity.Key.Encode(),
		Kind:       entity.Key.Kind,
		RootPath:   entity.Key.Root().Encode(),
		ParentPath: parentPath,
		Properties: properties,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (r *entityRecord) toEntity() (*datastore.Entity, error) {
	if r == nil {
		return nil, fmt.Errorf("sqlstore: entity record is nil")
	}
	key, err := datastore.DecodeKey(r.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: decode key %q: %w", r.KeyPath, err)
	}
	properties, err := decodeProperties(r.Properties)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: decode properties of %s: %w", r.KeyPath, err)
	}
	entity := datastore.NewEntity(key)
	for name, value := range properties {
		entity.Set(name, value)
	}
	return entity, nil
}

func encodeProperties(properties map[string]any) (string, error) {
	if len(properties) == 0 {
		return "{}", nil
	}
	normalized := make(map[string]any, len(properties))
	for name, value := range properties {
		normalized[name] = datastore.NormalizeValue(value)
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("sqlstore: encode properties: %w", err)
	}
	return string(payload), nil
}

// decodeProperties keeps integers exact by decoding numbers as json.Number.
func decodeProperties(raw string) (map[string]any, error) {
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
	decoder.UseNumber()
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
