package restless

// Deserializer turns an inbound JSON API document into a new instance of
// its target model. It validates the document eagerly and fails on the
// first violation; the instance is constructed and its relationships
// assigned only after every check and every linkage lookup has succeeded,
// so a failing document never leaves a partially built instance behind.
type Deserializer struct {
	session                 Session
	schema                  Schema
	allowClientGeneratedIDs bool
}

// NewDeserializer builds a Deserializer for the model described by schema.
// Related resources named in relationship linkage are looked up through the
// session. Client-generated ids are rejected unless allowClientGeneratedIDs
// is set.
func NewDeserializer(session Session, schema Schema, allowClientGeneratedIDs bool) *Deserializer {
	return &Deserializer{
		session:                 session,
		schema:                  schema,
		allowClientGeneratedIDs: allowClientGeneratedIDs,
	}
}

// Deserialize validates the document and returns a new, unpersisted
// instance of the target model. On a contract violation it returns a
// *DeserializationError; a failing related-resource lookup surfaces the
// persistence layer's *unidb.Error unchanged.
func (d *Deserializer) Deserialize(document *Document) (interface{}, error) {
	if document == nil || document.Data == nil {
		return nil, newMissingData("")
	}
	data := document.Data

	if data.Type == nil {
		return nil, newMissingType("")
	}
	if data.ID != nil && !d.allowClientGeneratedIDs {
		return nil, newClientGeneratedID()
	}

	expected := d.schema.CollectionName()
	if *data.Type != expected {
		return nil, newConflictingType("", expected, *data.Type)
	}

	for relation := range data.Relationships {
		if !d.schema.HasField(relation) {
			return nil, newUnknownRelationship(relation)
		}
	}
	for attribute := range data.Attributes {
		if !d.schema.HasField(attribute) {
			return nil, newUnknownAttribute(attribute)
		}
	}

	// Resolve every linkage before constructing the instance, so a single
	// bad relationship never half-attaches the others.
	related := make(map[string]interface{}, len(data.Relationships))
	for relation, input := range data.Relationships {
		if input == nil || !input.HasData {
			return nil, newMissingData(relation)
		}
		relatedSchema, err := d.schema.RelatedSchema(relation)
		if err != nil {
			return nil, err
		}
		value, err := NewRelationshipDeserializer(d.session, relatedSchema, relation).Deserialize(input.Data)
		if err != nil {
			return nil, err
		}
		related[relation] = value
	}

	// Attributes move up to the top-level field map, alongside a client
	// supplied id when one is allowed.
	fields := make(map[string]interface{}, len(data.Attributes)+1)
	for name, value := range data.Attributes {
		fields[name] = value
	}
	if data.ID != nil {
		fields[d.schema.PrimaryKey()] = *data.ID
	}
	fields, err := d.schema.ParseTemporals(fields)
	if err != nil {
		return nil, err
	}

	instance, err := d.schema.New(fields)
	if err != nil {
		return nil, err
	}
	for relation, value := range related {
		if err := d.schema.SetRelationValue(instance, relation, value); err != nil {
			return nil, err
		}
	}
	return instance, nil
}

// RelationshipDeserializer resolves the linkage of a single relationship
// into the related instance or instances. Each value corresponds to one
// relationship of one model; the relation name is carried for error
// messages only.
type RelationshipDeserializer struct {
	session  Session
	schema   Schema
	typeName string
	relation string
}

// NewRelationshipDeserializer builds a linkage resolver for a relationship
// whose target model is described by the related schema.
func NewRelationshipDeserializer(session Session, related Schema, relation string) *RelationshipDeserializer {
	return &RelationshipDeserializer{
		session:  session,
		schema:   related,
		typeName: related.CollectionName(),
		relation: relation,
	}
}

// Deserialize resolves the linkage. A list resolves each element in order
// and returns []interface{} (empty list included); a single identifier
// resolves to one instance; an explicit null resolves to nil, clearing a
// to-one relationship.
func (d *RelationshipDeserializer) Deserialize(linkage *LinkageInput) (interface{}, error) {
	if linkage == nil || linkage.IsNull {
		return nil, nil
	}
	if linkage.IsMany {
		resolved := make([]interface{}, 0, len(linkage.Many))
		for _, identifier := range linkage.Many {
			instance, err := d.deserializeOne(identifier)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, instance)
		}
		return resolved, nil
	}
	return d.deserializeOne(linkage.One)
}

func (d *RelationshipDeserializer) deserializeOne(identifier *IdentifierInput) (interface{}, error) {
	if identifier == nil || identifier.ID == nil {
		return nil, newMissingID(d.relation)
	}
	if identifier.Type == nil {
		return nil, newMissingType(d.relation)
	}
	if *identifier.Type != d.typeName {
		return nil, newConflictingType(d.relation, d.typeName, *identifier.Type)
	}
	instance, dbErr := d.session.Get(d.schema, *identifier.ID)
	if dbErr != nil {
		// not-found and friends belong to the persistence layer - pass
		// them through unwrapped
		return nil, dbErr
	}
	return instance, nil
}
