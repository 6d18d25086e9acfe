package restless

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// ErrorObject is the JSON API error object written to clients. The Err*
// package variables are prototypes; handlers copy a prototype and fill in
// the request specific Detail.
type ErrorObject struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
	Status string `json:"status,omitempty"`
	Code   string `json:"code,omitempty"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Status, e.Title, e.Detail)
}

// Copy returns a shallow copy of the prototype safe to customize.
func (e ErrorObject) Copy() *ErrorObject {
	return &e
}

var (
	ErrInvalidJSONDocument = ErrorObject{
		Title:  "Invalid JSON document",
		Detail: "The provided document could not be parsed as JSON",
		Status: "400",
		Code:   "JAPI-001",
	}
	ErrInvalidInput = ErrorObject{
		Title:  "Invalid input",
		Status: "400",
		Code:   "JAPI-002",
	}
	ErrInvalidJSONFieldValue = ErrorObject{
		Title:  "Invalid JSON field value",
		Status: "400",
		Code:   "JAPI-003",
	}
	ErrForbiddenClientID = ErrorObject{
		Title:  "Client-generated ID forbidden",
		Status: "403",
		Code:   "JAPI-004",
	}
	ErrInsufficientAccPerm = ErrorObject{
		Title:  "Insufficient access permission",
		Status: "403",
		Code:   "JAPI-005",
	}
	ErrResourceNotFound = ErrorObject{
		Title:  "Resource not found",
		Status: "404",
		Code:   "JAPI-006",
	}
	ErrEndpointForbidden = ErrorObject{
		Title:  "Endpoint not supported",
		Status: "405",
		Code:   "JAPI-007",
	}
	ErrTypeConflict = ErrorObject{
		Title:  "Conflicting resource type",
		Status: "409",
		Code:   "JAPI-008",
	}
	ErrResourceAlreadyExists = ErrorObject{
		Title:  "Resource already exists",
		Status: "409",
		Code:   "JAPI-009",
	}
	ErrInternalError = ErrorObject{
		Title:  "Internal server error",
		Status: "500",
		Code:   "JAPI-010",
	}
)

type errorsPayload struct {
	Errors []*ErrorObject `json:"errors"`
}

// MarshalErrors writes the given error objects as a JSON API errors
// document. The response status is taken from the first error object;
// a missing or unparsable status falls back to 400 and 500 respectively.
func MarshalErrors(rw http.ResponseWriter, errs ...*ErrorObject) error {
	status := http.StatusBadRequest
	if len(errs) > 0 && errs[0].Status != "" {
		parsed, err := strconv.Atoi(errs[0].Status)
		if err != nil || http.StatusText(parsed) == "" {
			status = http.StatusInternalServerError
		} else {
			status = parsed
		}
	}
	rw.WriteHeader(status)
	if errs == nil {
		errs = []*ErrorObject{}
	}
	return json.NewEncoder(rw).Encode(&errorsPayload{Errors: errs})
}

// ErrorObjectFor maps one typed deserialization failure onto the wire
// error object the HTTP layer should send. The closed code set keeps this
// mapping total.
func ErrorObjectFor(err *DeserializationError) *ErrorObject {
	var proto ErrorObject
	switch err.Code {
	case CodeClientGeneratedID:
		proto = ErrForbiddenClientID
	case CodeConflictingType:
		proto = ErrTypeConflict
	case CodeUnknownAttribute, CodeUnknownRelationship:
		proto = ErrInvalidJSONFieldValue
	default:
		proto = ErrInvalidInput
	}
	errObj := proto.Copy()
	errObj.Detail = err.Detail
	return errObj
}
