package restless

import (
	"fmt"
)

// SerializationError is raised when attribute access or a computed value
// producer fails while serializing an instance. Resource carries the
// partially built resource object for diagnostic display, when available.
type SerializationError struct {
	Instance interface{}
	Message  string
	Resource *ResourceObject
}

func (e *SerializationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("failed to serialize instance: %s", e.Message)
	}
	return "failed to serialize instance"
}

// DeserializationCode identifies one kind of deserialization failure. The
// set is closed; every contract violation in the deserializer maps to
// exactly one code.
type DeserializationCode int

const (
	// CodeMissingData - the document or a relationship object lacks 'data'.
	CodeMissingData DeserializationCode = iota
	// CodeMissingType - a resource or linkage object lacks 'type'.
	CodeMissingType
	// CodeMissingID - a linkage object lacks 'id'.
	CodeMissingID
	// CodeClientGeneratedID - the client supplied 'id' when forbidden.
	CodeClientGeneratedID
	// CodeConflictingType - 'type' does not match the expected collection.
	CodeConflictingType
	// CodeUnknownAttribute - an attribute name the schema does not expose.
	CodeUnknownAttribute
	// CodeUnknownRelationship - a relationship name the schema does not expose.
	CodeUnknownRelationship
)

// DeserializationError is the typed failure family raised by the
// Deserializer and the RelationshipDeserializer. Each code carries a fixed
// payload: Relation for violations inside a relationship's linkage object,
// Expected/Given for type conflicts, Field for unknown field names. Detail
// is the client-facing description.
type DeserializationError struct {
	Code     DeserializationCode
	Relation string
	Expected string
	Given    string
	Field    string
	Detail   string
}

func (e *DeserializationError) Error() string {
	return "failed to deserialize object: " + e.Detail
}

func newMissingElement(code DeserializationCode, element, relation string) *DeserializationError {
	e := &DeserializationError{Code: code, Relation: relation}
	if relation == "" {
		e.Detail = fmt.Sprintf("missing %q element", element)
	} else {
		e.Detail = fmt.Sprintf("missing %q element in linkage object for relationship %q", element, relation)
	}
	return e
}

func newMissingData(relation string) *DeserializationError {
	return newMissingElement(CodeMissingData, "data", relation)
}

func newMissingType(relation string) *DeserializationError {
	return newMissingElement(CodeMissingType, "type", relation)
}

func newMissingID(relation string) *DeserializationError {
	return newMissingElement(CodeMissingID, "id", relation)
}

func newClientGeneratedID() *DeserializationError {
	return &DeserializationError{
		Code:   CodeClientGeneratedID,
		Detail: "server does not allow client-generated IDs",
	}
}

func newConflictingType(relation, expected, given string) *DeserializationError {
	e := &DeserializationError{
		Code:     CodeConflictingType,
		Relation: relation,
		Expected: expected,
		Given:    given,
	}
	if relation == "" {
		e.Detail = fmt.Sprintf("expected type %q but got type %q", expected, given)
	} else {
		e.Detail = fmt.Sprintf("expected type %q but got type %q in linkage object for relationship %q",
			expected, given, relation)
	}
	return e
}

func newUnknownAttribute(field string) *DeserializationError {
	return &DeserializationError{
		Code:   CodeUnknownAttribute,
		Field:  field,
		Detail: fmt.Sprintf("model has no attribute %q", field),
	}
}

func newUnknownRelationship(field string) *DeserializationError {
	return &DeserializationError{
		Code:   CodeUnknownRelationship,
		Field:  field,
		Detail: fmt.Sprintf("model has no relationship %q", field),
	}
}
