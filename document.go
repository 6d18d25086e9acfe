package restless

import (
	"bytes"
	"encoding/json"
	"errors"
)

// MediaType is the JSON API content type for requests and responses.
const MediaType = "application/vnd.api+json"

// Links holds the link section of a resource or relationship object.
// Related is set only for relationship objects whose related model has
// a registered endpoint.
type Links struct {
	Self    string `json:"self,omitempty"`
	Related string `json:"related,omitempty"`
}

// ResourceIdentifier is the minimal {type, id} form used to reference
// a resource from within a relationship's linkage.
type ResourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Linkage is the 'data' payload of a relationship object. It is one of:
// null (empty to-one), a single identifier (populated to-one) or an
// ordered list of identifiers (to-many).
//
// The JSON form keeps the cardinality distinction: an empty to-many
// marshals as '[]', an empty to-one as 'null'.
type Linkage struct {
	One    *ResourceIdentifier
	Many   []*ResourceIdentifier
	IsMany bool
}

// ToOneLinkage creates the linkage for a to-one relationship. A nil
// identifier marks the relationship as empty.
func ToOneLinkage(identifier *ResourceIdentifier) *Linkage {
	return &Linkage{One: identifier}
}

// ToManyLinkage creates the linkage for a to-many relationship.
func ToManyLinkage(identifiers ...*ResourceIdentifier) *Linkage {
	if identifiers == nil {
		identifiers = []*ResourceIdentifier{}
	}
	return &Linkage{Many: identifiers, IsMany: true}
}

func (l *Linkage) MarshalJSON() ([]byte, error) {
	if l.IsMany {
		if l.Many == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(l.Many)
	}
	if l.One == nil {
		return []byte("null"), nil
	}
	return json.Marshal(l.One)
}

// RelationshipObject is the wire representation of a single relationship
// of a resource.
type RelationshipObject struct {
	Links *Links   `json:"links,omitempty"`
	Data  *Linkage `json:"data"`
}

// ResourceObject is the canonical JSON API representation of one domain
// instance.
type ResourceObject struct {
	Type          string                         `json:"type"`
	ID            string                         `json:"id"`
	Attributes    map[string]interface{}         `json:"attributes,omitempty"`
	Relationships map[string]*RelationshipObject `json:"relationships,omitempty"`
	Links         *Links                         `json:"links,omitempty"`
}

// SinglePayload wraps one resource object as a document's primary data.
type SinglePayload struct {
	Data *ResourceObject `json:"data"`
}

// ManyPayload wraps a resource collection as a document's primary data.
type ManyPayload struct {
	Data []*ResourceObject `json:"data"`
}

// IdentifierInput is the inbound form of a resource identifier. Absent
// keys stay nil so the deserializer can distinguish a missing element
// from an empty one.
type IdentifierInput struct {
	Type *string `json:"type"`
	ID   *string `json:"id"`
}

// LinkageInput mirrors Linkage on the inbound side.
type LinkageInput struct {
	One    *IdentifierInput
	Many   []*IdentifierInput
	IsMany bool
	IsNull bool
}

func (l *LinkageInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty linkage value")
	}
	if bytes.Equal(data, []byte("null")) {
		l.IsNull = true
		return nil
	}
	if data[0] == '[' {
		l.IsMany = true
		l.Many = []*IdentifierInput{}
		return json.Unmarshal(data, &l.Many)
	}
	l.One = new(IdentifierInput)
	return json.Unmarshal(data, l.One)
}

// RelationshipInput is the inbound form of a relationship entry. HasData
// records whether the 'data' key was present at all, which the JSON API
// specification requires.
type RelationshipInput struct {
	Data    *LinkageInput
	HasData bool
}

func (r *RelationshipInput) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	linkage, ok := raw["data"]
	if !ok {
		return nil
	}
	r.HasData = true
	r.Data = new(LinkageInput)
	return r.Data.UnmarshalJSON(linkage)
}

// ResourceInput is the primary data of an inbound document.
type ResourceInput struct {
	Type          *string                       `json:"type"`
	ID            *string                       `json:"id"`
	Attributes    map[string]interface{}        `json:"attributes"`
	Relationships map[string]*RelationshipInput `json:"relationships"`
}

// Document is the inbound JSON API document consumed by the Deserializer.
type Document struct {
	Data *ResourceInput `json:"data"`
}
