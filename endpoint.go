package restless

import (
	"net/http"
)

type EndpointType int

const (
	UnknownEndpoint EndpointType = iota
	Create
	Get
	List
	Patch
	Delete
)

func (e EndpointType) String() string {
	var op string
	switch e {
	case Create:
		op = "CREATE"
	case Get:
		op = "GET"
	case List:
		op = "LIST"
	case Patch:
		op = "PATCH"
	case Delete:
		op = "DELETE"
	default:
		op = "UNKNOWN"
	}
	return op
}

var (
	FullCRUD = []EndpointType{
		Create,
		Get,
		List,
		Patch,
		Delete,
	}

	ReadOnly = []EndpointType{
		Get,
		List,
	}

	CreateReadUpdate = []EndpointType{
		Create,
		Get,
		List,
		Patch,
	}
)

// Processor is a user callable invoked before or after an endpoint's core
// operation. For preprocessors of write endpoints the deserialized instance
// is passed; read endpoints and postprocessors receive the instance being
// returned, when one exists. A non-nil ErrorObject short-circuits the
// request and is written to the client as-is.
type Processor func(req *http.Request, instance interface{}) *ErrorObject

// Endpoint configures one operation of a model's API.
type Endpoint struct {
	Type EndpointType

	Preprocessors  []Processor
	Postprocessors []Processor

	// CustomHandlerFunc replaces the built-in handler for this endpoint.
	CustomHandlerFunc http.HandlerFunc
}

// NewEndpoints builds plain endpoints for the given types.
func NewEndpoints(types ...EndpointType) []*Endpoint {
	endpoints := make([]*Endpoint, 0, len(types))
	for _, t := range types {
		endpoints = append(endpoints, &Endpoint{Type: t})
	}
	return endpoints
}
