package mongostore

import (
	"fmt"
	"time"

	"github.com/goliatone/go-connections/datastore"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	EntitiesCollection = "connection_entities"
	GroupsCollection   = "connection_entity_groups"
)

// entityDocument keys an entity by its encoded path. Ancestors lists the
// encoded path of every key from the root down to the entity itself, so an
// ancestor query is a single equality match on the array.
type entityDocument struct {
	ID        string    `bson:"_id"`
	Kind      string    `bson:"kind"`
	Root      string    `bson:"root"`
	Ancestors []string  `bson:"ancestors"`
	Props     bson.M    `bson:"props"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type groupDocument struct {
	ID        string    `bson:"_id"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func ancestorPaths(key *datastore.Key) []string {
	chain := key.Ancestors()
	paths := make([]string, 0, len(chain))
	for _, ancestor := range chain {
		paths = append(paths, ancestor.Encode())
	}
	return paths
}

func entityFields(entity *datastore.Entity, now time.Time) bson.M {
	props := bson.M{}
	for name, value := range entity.Properties {
		props[name] = datastore.NormalizeValue(value)
	}
	return bson.M{
		"kind":       entity.Key.Kind,
		"root":       entity.Key.Root().Encode(),
		"ancestors":  ancestorPaths(entity.Key),
		"props":      props,
		"updated_at": now,
	}
}

func (d entityDocument) toEntity() (*datastore.Entity, error) {
	key, err := datastore.DecodeKey(d.ID)
	if err != nil {
		return nil, fmt.Errorf("mongostore: decode key %q: %w", d.ID, err)
	}
	entity := datastore.NewEntity(key)
	for name, value := range d.Props {
		entity.Set(name, datastore.NormalizeValue(value))
	}
	return entity, nil
}

// buildFilter pushes kind, ancestor and property filters down to the server.
// Ordering and limits are applied after decoding so they follow the
// datastore's value comparison rules.
func buildFilter(q datastore.Query) bson.D {
	filter := bson.D{{Key: "kind", Value: q.Kind}}
	if q.AncestorKey != nil {
		filter = append(filter, bson.E{Key: "ancestors", Value: q.AncestorKey.Encode()})
	}
	for _, f := range q.Filters {
		field := "props." + f.Property
		switch f.Operator {
		case datastore.OperatorEqual:
			var value any
			if len(f.Values) > 0 {
				value = f.Values[0]
			}
			filter = append(filter, bson.E{Key: field, Value: value})
		case datastore.OperatorIn:
			values := make(bson.A, 0, len(f.Values))
			for _, v := range f.Values {
				values = append(values, v)
			}
			filter = append(filter, bson.E{Key: field, Value: bson.M{"$in": values}})
		}
	}
	return filter
}
