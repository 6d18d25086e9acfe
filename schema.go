package restless

import (
	"errors"

	"github.com/neuronlabs/uni-db"
)

// ErrNoEndpoint is returned by a URLBuilder when no endpoint is registered
// for the requested collection. The serializer treats it as "omit the link"
// rather than as a failure.
var ErrNoEndpoint = errors.New("no endpoint registered for the collection")

// Computed is a zero-argument producer backing a virtual attribute. When an
// attribute value read off an instance is of this type, the serializer
// invokes it at serialization time and emits the produced value.
type Computed func() (interface{}, error)

// Schema exposes a single model to the serialization core. It is resolved
// once at Serializer/Deserializer construction, never per call, and must be
// immutable afterwards.
type Schema interface {
	// CollectionName returns the stable wire name of the model's resource
	// type - the JSON API 'type'.
	CollectionName() string

	// PrimaryKey returns the name of the model's primary key field.
	PrimaryKey() string

	// AttributeNames enumerates the model's plain attribute fields,
	// including the columns that back to-one relationships. The serializer
	// subtracts the latter using ForeignKeyNames.
	AttributeNames() []string

	// RelationNames enumerates the model's relationship fields.
	RelationNames() []string

	// ForeignKeyNames enumerates the columns backing to-one relationships.
	ForeignKeyNames() []string

	// HasField reports whether the model exposes an attribute, relationship
	// or settable column under the given name.
	HasField(name string) bool

	// IsToMany reports whether the named relationship behaves as a list.
	IsToMany(relation string) bool

	// RelatedSchema resolves the schema of the named relationship's target
	// model.
	RelatedSchema(relation string) (Schema, error)

	// PrimaryKeyValue extracts the primary key value from the instance.
	PrimaryKeyValue(instance interface{}) (interface{}, error)

	// AttributeValue reads the named field off the instance. The returned
	// value may be a Computed producer for virtual attributes.
	AttributeValue(instance interface{}, attribute string) (interface{}, error)

	// RelationValue reads the named relationship off the instance. To-many
	// relationships return a slice of related instances, to-one a single
	// instance or nil.
	RelationValue(instance interface{}, relation string) (interface{}, error)

	// New constructs a fresh instance of the model from the given field
	// values, keyed by field name.
	New(fields map[string]interface{}) (interface{}, error)

	// SetRelationValue assigns resolved related instances onto the instance
	// by relationship name. To-many values arrive as []interface{}.
	SetRelationValue(instance interface{}, relation string, value interface{}) error

	// ParseTemporals replaces textual wire values with proper temporal
	// values for every temporal-typed field present in the map.
	ParseTemporals(fields map[string]interface{}) (map[string]interface{}, error)
}

// Registry resolves the schema registered for an arbitrary instance. It is
// needed when serializing relationship linkage, since a to-many relationship
// may be heterogeneous.
type Registry interface {
	SchemaFor(instance interface{}) (Schema, error)
}

// Session is the persistence handle used to look up related resources while
// resolving relationship linkage. Not-found is signalled with the
// unidb.ErrNoResult prototype and passes through the core unchanged.
type Session interface {
	Get(schema Schema, id string) (interface{}, *unidb.Error)
}

// URLBuilder produces canonical resource and relationship URL strings.
// Implementations report an unregistered collection with ErrNoEndpoint,
// which callers treat as "omit the link".
type URLBuilder interface {
	ResourceURL(collection, id string) (string, error)
	RelationshipURL(collection, id, relation string) (string, error)
	RelatedURL(collection, id, relation string) (string, error)
}
