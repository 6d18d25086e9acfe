package restless

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// attributeBlacklist contains field names that are never exposed as
// attributes regardless of what the schema enumerates.
var attributeBlacklist = map[string]struct{}{
	"_polymorphic_type": {},
}

// selfLinkField is the field-set marker that opts a resource's self link
// into a restricted field set.
const selfLinkField = "self"

// SerializerOptions configure a Serializer at construction time.
type SerializerOptions struct {
	// TypeName overrides the schema's collection name as the wire 'type'.
	TypeName string

	// PrimaryKey overrides the schema's detected primary key field.
	PrimaryKey string

	// Only restricts the serialized fields to the listed names. Mutually
	// exclusive with Exclude. Relationship names listed here are kept as
	// relationships.
	Only []string

	// Exclude removes the listed field names from the output.
	Exclude []string

	// AdditionalAttributes are computed or virtual fields to include beyond
	// the attributes the schema enumerates.
	AdditionalAttributes []string
}

// Serializer turns a domain instance into a JSON API resource object. The
// attribute and relationship sets are analyzed once at construction; a
// constructed Serializer is immutable and safe for concurrent use.
type Serializer struct {
	schema     Schema
	registry   Registry
	urls       URLBuilder
	typeName   string
	primaryKey string
	attributes map[string]struct{}
	relations  map[string]struct{}
	only       map[string]struct{}
}

// NewSerializer builds a Serializer for the model described by schema.
// The registry resolves schemas for related instances and urls builds the
// self/related links; urls may be nil, in which case links are omitted.
func NewSerializer(schema Schema, registry Registry, urls URLBuilder, options *SerializerOptions) (*Serializer, error) {
	if options == nil {
		options = &SerializerOptions{}
	}
	if options.Only != nil && options.Exclude != nil {
		return nil, errors.New("cannot specify both Only and Exclude at the same time")
	}
	if options.Exclude != nil {
		for _, attribute := range options.AdditionalAttributes {
			for _, excluded := range options.Exclude {
				if attribute == excluded {
					return nil, fmt.Errorf("cannot exclude attribute '%s' listed in AdditionalAttributes", attribute)
				}
			}
		}
	}

	s := &Serializer{
		schema:     schema,
		registry:   registry,
		urls:       urls,
		typeName:   options.TypeName,
		primaryKey: options.PrimaryKey,
		attributes: make(map[string]struct{}),
		relations:  make(map[string]struct{}),
	}
	if s.typeName == "" {
		s.typeName = schema.CollectionName()
	}
	if s.primaryKey == "" {
		s.primaryKey = schema.PrimaryKey()
	}

	for _, name := range schema.AttributeNames() {
		s.attributes[name] = struct{}{}
	}
	// Fields share a namespace with 'type' and 'id', so a column under
	// either name can never be an attribute.
	delete(s.attributes, "type")
	delete(s.attributes, "id")

	for _, name := range options.AdditionalAttributes {
		s.attributes[name] = struct{}{}
	}

	for _, name := range schema.RelationNames() {
		s.relations[name] = struct{}{}
	}

	if options.Only != nil {
		s.only = make(map[string]struct{}, len(options.Only))
		for _, name := range options.Only {
			s.only[name] = struct{}{}
		}
		s.attributes = intersect(s.attributes, s.only)
		s.relations = intersect(s.relations, s.only)
	}

	for _, name := range options.Exclude {
		delete(s.attributes, name)
		delete(s.relations, name)
	}

	// Columns backing a to-one relationship are represented only through
	// the relationship itself.
	for _, name := range schema.ForeignKeyNames() {
		delete(s.attributes, name)
	}

	for name := range s.attributes {
		if _, blacklisted := attributeBlacklist[name]; blacklisted || strings.HasPrefix(name, "__") {
			delete(s.attributes, name)
		}
	}

	return s, nil
}

// Serialize returns the resource object for the given instance. A per-call
// 'only' field set narrows the construction-time sets by intersection; it
// can never widen them. The mandatory 'id' and 'type' members are emitted
// regardless of any field set.
func (s *Serializer) Serialize(instance interface{}, only []string) (*ResourceObject, error) {
	var narrowed map[string]struct{}
	if only != nil {
		narrowed = make(map[string]struct{}, len(only))
		for _, name := range only {
			narrowed[name] = struct{}{}
		}
	}

	attributes := make(map[string]interface{})
	for name := range s.attributes {
		if narrowed != nil {
			if _, ok := narrowed[name]; !ok {
				continue
			}
		}
		value, err := s.schema.AttributeValue(instance, name)
		if err != nil {
			return nil, &SerializationError{Instance: instance, Message: err.Error()}
		}
		if produce, ok := value.(Computed); ok {
			value, err = produce()
			if err != nil {
				return nil, &SerializationError{Instance: instance, Message: err.Error()}
			}
		}
		attributes[name] = normalizeTemporal(value)
	}

	id, err := s.primaryKeyString(instance)
	if err != nil {
		return nil, &SerializationError{Instance: instance, Message: err.Error()}
	}

	result := &ResourceObject{ID: id, Type: s.typeName}
	if len(attributes) > 0 {
		result.Attributes = attributes
	}

	relationships := make(map[string]*RelationshipObject)
	for name := range s.relations {
		if narrowed != nil {
			if _, ok := narrowed[name]; !ok {
				continue
			}
		}
		relationship, err := SerializeRelationship(s.registry, s.urls, s.schema, instance, name)
		if err != nil {
			var serr *SerializationError
			if errors.As(err, &serr) {
				serr.Resource = result
				return nil, serr
			}
			return nil, &SerializationError{Instance: instance, Message: err.Error(), Resource: result}
		}
		relationships[name] = relationship
	}
	if len(relationships) > 0 {
		result.Relationships = relationships
	}

	if s.includeSelfLink(narrowed) && s.urls != nil {
		url, err := s.urls.ResourceURL(s.typeName, id)
		switch {
		case err == nil:
			result.Links = &Links{Self: url}
		case errors.Is(err, ErrNoEndpoint):
			// no canonical URL to offer - omit the link
		default:
			return nil, &SerializationError{Instance: instance, Message: err.Error(), Resource: result}
		}
	}

	return result, nil
}

// includeSelfLink reports whether the self link survives the construction
// and per-call field sets. A restricted set must name the self-link marker
// explicitly.
func (s *Serializer) includeSelfLink(narrowed map[string]struct{}) bool {
	if s.only != nil {
		if _, ok := s.only[selfLinkField]; !ok {
			return false
		}
	}
	if narrowed != nil {
		if _, ok := narrowed[selfLinkField]; !ok {
			return false
		}
	}
	return true
}

func (s *Serializer) primaryKeyString(instance interface{}) (string, error) {
	var value interface{}
	var err error
	if s.primaryKey != s.schema.PrimaryKey() {
		value, err = s.schema.AttributeValue(instance, s.primaryKey)
	} else {
		value, err = s.schema.PrimaryKeyValue(instance)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", value), nil
}

// RelationshipSerializer emits the minimal {id, type} resource identifier
// form used inside relationship linkage. It is usable standalone.
type RelationshipSerializer struct {
	registry Registry
}

// NewRelationshipSerializer builds an identifier serializer over the given
// schema registry.
func NewRelationshipSerializer(registry Registry) *RelationshipSerializer {
	return &RelationshipSerializer{registry: registry}
}

// Serialize returns the resource identifier for the instance. A non-empty
// typeOverride replaces the collection name of the instance's schema, which
// matters for heterogeneous to-many relationships.
func (s *RelationshipSerializer) Serialize(instance interface{}, typeOverride string) (*ResourceIdentifier, error) {
	schema, err := s.registry.SchemaFor(instance)
	if err != nil {
		return nil, err
	}
	pk, err := schema.PrimaryKeyValue(instance)
	if err != nil {
		return nil, err
	}
	typeName := typeOverride
	if typeName == "" {
		typeName = schema.CollectionName()
	}
	return &ResourceIdentifier{ID: fmt.Sprintf("%v", pk), Type: typeName}, nil
}

// SerializeRelationship builds the relationship object for one relationship
// of an instance. The self link is built whenever the URL builder can
// resolve it; the related link additionally requires the related model to
// resolve. To-many linkage keeps the relationship's iteration order and an
// empty to-many serializes as an empty list, never null.
func SerializeRelationship(registry Registry, urls URLBuilder, schema Schema, instance interface{}, relation string) (*RelationshipObject, error) {
	result := &RelationshipObject{}

	pk, err := schema.PrimaryKeyValue(instance)
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("%v", pk)

	if urls != nil {
		collection := schema.CollectionName()
		selfURL, err := urls.RelationshipURL(collection, id, relation)
		switch {
		case err == nil:
			result.Links = &Links{Self: selfURL}
		case errors.Is(err, ErrNoEndpoint):
		default:
			return nil, err
		}
		// The related link is offered only when the related model has a
		// resolvable endpoint of its own.
		if _, rerr := schema.RelatedSchema(relation); rerr == nil {
			relatedURL, err := urls.RelatedURL(collection, id, relation)
			switch {
			case err == nil:
				if result.Links == nil {
					result.Links = &Links{}
				}
				result.Links.Related = relatedURL
			case errors.Is(err, ErrNoEndpoint):
			default:
				return nil, err
			}
		}
	}

	value, err := schema.RelationValue(instance, relation)
	if err != nil {
		return nil, err
	}

	identifiers := NewRelationshipSerializer(registry)
	if schema.IsToMany(relation) {
		linkage := ToManyLinkage()
		if !isNilValue(value) {
			related := reflect.ValueOf(value)
			for i := 0; i < related.Len(); i++ {
				identifier, err := identifiers.Serialize(related.Index(i).Interface(), "")
				if err != nil {
					return nil, err
				}
				linkage.Many = append(linkage.Many, identifier)
			}
		}
		result.Data = linkage
		return result, nil
	}

	if isNilValue(value) {
		result.Data = ToOneLinkage(nil)
		return result, nil
	}
	identifier, err := identifiers.Serialize(value, "")
	if err != nil {
		return nil, err
	}
	result.Data = ToOneLinkage(identifier)
	return result, nil
}

// normalizeTemporal rewrites temporal values into their wire form: dates
// and times as ISO-8601 text, durations as a floating-point second count.
func normalizeTemporal(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		return v.Format(time.RFC3339)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.Format(time.RFC3339)
	case time.Duration:
		return v.Seconds()
	}
	return value
}

func intersect(set, keep map[string]struct{}) map[string]struct{} {
	result := make(map[string]struct{})
	for name := range set {
		if _, ok := keep[name]; ok {
			result[name] = struct{}{}
		}
	}
	return result
}

func isNilValue(value interface{}) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		return v.IsNil()
	}
	return false
}
