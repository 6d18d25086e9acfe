package restless

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/neuronlabs/uni-db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestHandleCreate(t *testing.T) {
	h := prepareHandler(defaultLanguages)
	repo := &MockRepository{}
	h.SetDefaultRepo(repo)
	model := h.ModelHandlers["people"]

	// Case 1:
	// Correct document, the repository accepts the instance.
	rw, req := getHttpPair("POST", "/api/people",
		documentJSON(`{"data": {"type": "people", "attributes": {"name": "Ann"}}}`))
	repo.On("Create", model.Schema, mock.Anything).Once().Return(nil)
	h.HandleCreate(model)(rw, req)

	assert.Equal(t, http.StatusCreated, rw.Code)
	assert.Equal(t, MediaType, rw.Header().Get("Content-Type"))
	assert.Contains(t, rw.Body.String(), `"Ann"`)

	// Case 2:
	// Unparsable body.
	rw, req = getHttpPair("POST", "/api/people", documentJSON(`{"data" := more}`))
	h.HandleCreate(model)(rw, req)
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Contains(t, rw.Body.String(), "JAPI-001")

	// Case 3:
	// Client-generated id.
	rw, req = getHttpPair("POST", "/api/people",
		documentJSON(`{"data": {"type": "people", "id": "5", "attributes": {"name": "Ann"}}}`))
	h.HandleCreate(model)(rw, req)
	assert.Equal(t, http.StatusForbidden, rw.Code)

	// Case 4:
	// Mismatched resource type.
	rw, req = getHttpPair("POST", "/api/people",
		documentJSON(`{"data": {"type": "dogs"}}`))
	h.HandleCreate(model)(rw, req)
	assert.Equal(t, http.StatusConflict, rw.Code)

	// Case 5:
	// Unknown attribute name.
	rw, req = getHttpPair("POST", "/api/people",
		documentJSON(`{"data": {"type": "people", "attributes": {"bogus": 1}}}`))
	h.HandleCreate(model)(rw, req)
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Contains(t, rw.Body.String(), `model has no attribute \"bogus\"`)

	// Case 6:
	// The repository reports a uniqueness conflict.
	rw, req = getHttpPair("POST", "/api/people",
		documentJSON(`{"data": {"type": "people", "attributes": {"name": "Ann"}}}`))
	repo.On("Create", model.Schema, mock.Anything).Once().Return(unidb.ErrUniqueViolation.New())
	h.HandleCreate(model)(rw, req)
	assert.Equal(t, http.StatusConflict, rw.Code)

	repo.AssertExpectations(t)
}

func TestHandleCreatePreprocessor(t *testing.T) {
	h := prepareHandler(defaultLanguages)
	repo := &MockRepository{}
	h.SetDefaultRepo(repo)
	model := h.ModelHandlers["people"]

	model.Create.Preprocessors = []Processor{
		func(req *http.Request, instance interface{}) *ErrorObject {
			errObj := ErrInsufficientAccPerm.Copy()
			errObj.Detail = "creation requires authentication"
			return errObj
		},
	}

	rw, req := getHttpPair("POST", "/api/people",
		documentJSON(`{"data": {"type": "people", "attributes": {"name": "Ann"}}}`))
	h.HandleCreate(model)(rw, req)

	// A failing preprocessor short-circuits before the repository.
	assert.Equal(t, http.StatusForbidden, rw.Code)
	repo.AssertNotCalled(t, "Create")
}

func TestHandleGet(t *testing.T) {
	h := prepareHandler(defaultLanguages)
	repo := &MockRepository{}
	h.SetDefaultRepo(repo)
	model := h.ModelHandlers["people"]

	// Case 1:
	// Existing resource.
	rw, req := getHttpPair("GET", "/api/people/1", nil)
	repo.On("Get", model.Schema, "1").Once().Return(&Person{ID: 1, Name: "Ann"}, nil)
	h.HandleGet(model)(rw, req)

	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "en", rw.Header().Get("Content-Language"))
	assert.Contains(t, rw.Body.String(), `"type":"people"`)
	assert.Contains(t, rw.Body.String(), `"id":"1"`)

	// Case 2:
	// Unknown id.
	rw, req = getHttpPair("GET", "/api/people/404", nil)
	repo.On("Get", model.Schema, "404").Once().Return(nil, unidb.ErrNoResult.New())
	h.HandleGet(model)(rw, req)
	assert.Equal(t, http.StatusNotFound, rw.Code)

	// Case 3:
	// No id segment in the path.
	rw, req = getHttpPair("GET", "/api/people", nil)
	h.HandleGet(model)(rw, req)
	assert.Equal(t, http.StatusInternalServerError, rw.Code)

	// Case 4:
	// Unsupported language requested.
	rw, req = getHttpPair("GET", "/api/people/1", nil)
	req.Header.Set("Accept-Language", "zh")
	h.HandleGet(model)(rw, req)
	assert.Equal(t, http.StatusBadRequest, rw.Code)

	repo.AssertExpectations(t)
}

func TestHandleList(t *testing.T) {
	h := prepareHandler(defaultLanguages)
	repo := &MockRepository{}
	h.SetDefaultRepo(repo)
	model := h.ModelHandlers["people"]

	// Case 1:
	// Two resources.
	rw, req := getHttpPair("GET", "/api/people", nil)
	repo.On("List", model.Schema).Once().
		Return([]*Person{{ID: 1, Name: "Ann"}, {ID: 2, Name: "Bea"}}, nil)
	h.HandleList(model)(rw, req)

	assert.Equal(t, http.StatusOK, rw.Code)
	payload := struct {
		Data []*ResourceObject `json:"data"`
	}{}
	assert.NoError(t, json.Unmarshal(rw.Body.Bytes(), &payload))
	if assert.Len(t, payload.Data, 2) {
		assert.Equal(t, "1", payload.Data[0].ID)
		assert.Equal(t, "2", payload.Data[1].ID)
	}

	// Case 2:
	// Empty collection marshals as an empty list, not null.
	rw, req = getHttpPair("GET", "/api/people", nil)
	repo.On("List", model.Schema).Once().Return([]*Person{}, nil)
	h.HandleList(model)(rw, req)
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Contains(t, rw.Body.String(), `"data":[]`)

	// Case 3:
	// Repository failure.
	rw, req = getHttpPair("GET", "/api/people", nil)
	repo.On("List", model.Schema).Once().Return(nil, unidb.ErrConnection.New())
	h.HandleList(model)(rw, req)
	assert.Equal(t, http.StatusInternalServerError, rw.Code)

	repo.AssertExpectations(t)
}

func TestHandlePatch(t *testing.T) {
	h := prepareHandler(defaultLanguages)
	repo := &MockRepository{}
	h.SetDefaultRepo(repo)
	model := h.ModelHandlers["people"]

	// Case 1:
	// A PATCH document may repeat the resource id in its body.
	rw, req := getHttpPair("PATCH", "/api/people/1",
		documentJSON(`{"data": {"type": "people", "id": "1", "attributes": {"name": "Anna"}}}`))
	repo.On("Patch", model.Schema, mock.Anything, "1").Once().Return(nil)
	h.HandlePatch(model)(rw, req)
	assert.Equal(t, http.StatusNoContent, rw.Code)

	// Case 2:
	// Patching an absent resource.
	rw, req = getHttpPair("PATCH", "/api/people/404",
		documentJSON(`{"data": {"type": "people", "attributes": {"name": "Anna"}}}`))
	repo.On("Patch", model.Schema, mock.Anything, "404").Once().Return(unidb.ErrNoResult.New())
	h.HandlePatch(model)(rw, req)
	assert.Equal(t, http.StatusNotFound, rw.Code)

	// Case 3:
	// Type conflicts are still rejected on PATCH.
	rw, req = getHttpPair("PATCH", "/api/people/1",
		documentJSON(`{"data": {"type": "dogs"}}`))
	h.HandlePatch(model)(rw, req)
	assert.Equal(t, http.StatusConflict, rw.Code)

	repo.AssertExpectations(t)
}

func TestHandleDelete(t *testing.T) {
	h := prepareHandler(defaultLanguages)
	repo := &MockRepository{}
	h.SetDefaultRepo(repo)
	model := h.ModelHandlers["people"]

	// Case 1:
	// Existing resource.
	rw, req := getHttpPair("DELETE", "/api/people/1", nil)
	repo.On("Delete", model.Schema, "1").Once().Return(nil)
	h.HandleDelete(model)(rw, req)
	assert.Equal(t, http.StatusNoContent, rw.Code)

	// Case 2:
	// Absent resource.
	rw, req = getHttpPair("DELETE", "/api/people/404", nil)
	repo.On("Delete", model.Schema, "404").Once().Return(unidb.ErrNoResult.New())
	h.HandleDelete(model)(rw, req)
	assert.Equal(t, http.StatusNotFound, rw.Code)

	repo.AssertExpectations(t)
}

func TestHandleGetRelationship(t *testing.T) {
	h := prepareHandler(defaultLanguages)
	repo := &MockRepository{}
	h.SetDefaultRepo(repo)
	model := h.ModelHandlers["people"]

	// Case 1:
	// A to-many relationship with members.
	ann := &Person{ID: 1, Articles: []*Article{{ID: 10}, {ID: 11}}}
	rw, req := getHttpPair("GET", "/api/people/1/relationships/articles", nil)
	repo.On("Get", model.Schema, "1").Once().Return(ann, nil)
	h.HandleGetRelationship(model)(rw, req)

	assert.Equal(t, http.StatusOK, rw.Code)
	relationship := &struct {
		Links *Links          `json:"links"`
		Data  json.RawMessage `json:"data"`
	}{}
	assert.NoError(t, json.Unmarshal(rw.Body.Bytes(), relationship))
	if assert.NotNil(t, relationship.Links) {
		assert.Equal(t, "/api/people/1/relationships/articles", relationship.Links.Self)
	}
	assert.True(t, strings.HasPrefix(string(relationship.Data), "["))

	// Case 2:
	// An unknown relationship name.
	rw, req = getHttpPair("GET", "/api/people/1/relationships/pets", nil)
	h.HandleGetRelationship(model)(rw, req)
	assert.Equal(t, http.StatusNotFound, rw.Code)

	// Case 3:
	// The owning resource does not exist.
	rw, req = getHttpPair("GET", "/api/people/404/relationships/articles", nil)
	repo.On("Get", model.Schema, "404").Once().Return(nil, unidb.ErrNoResult.New())
	h.HandleGetRelationship(model)(rw, req)
	assert.Equal(t, http.StatusNotFound, rw.Code)

	repo.AssertExpectations(t)
}

func TestEndpointForbidden(t *testing.T) {
	h := prepareHandler(defaultLanguages)
	model := h.ModelHandlers["people"]

	rw, req := getHttpPair("POST", "/api/people", nil)
	h.EndpointForbidden(model, Create)(rw, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rw.Code)
	assert.Contains(t, rw.Body.String(), "CREATE")
	assert.Contains(t, rw.Body.String(), "people")
}

func TestGetLanguage(t *testing.T) {
	h := prepareHandler(defaultLanguages)

	// Case 1:
	// No header defaults to the first supported language.
	rw, req := getHttpPair("GET", "/api/people/1", nil)
	tag, ok := h.GetLanguage(req, rw)
	assert.True(t, ok)
	assert.Equal(t, defaultLanguages[0], tag)

	// Case 2:
	// A supported language is negotiated.
	rw, req = getHttpPair("GET", "/api/people/1", nil)
	req.Header.Set("Accept-Language", "pl")
	tag, ok = h.GetLanguage(req, rw)
	assert.True(t, ok)
	assert.Equal(t, "pl", tag.String())

	// Case 3:
	// With no supported set every request passes untagged.
	h = prepareHandler(nil)
	rw, req = getHttpPair("GET", "/api/people/1", nil)
	req.Header.Set("Accept-Language", "zh")
	_, ok = h.GetLanguage(req, rw)
	assert.True(t, ok)
}

func TestMarshalErrors(t *testing.T) {
	// Case 1:
	// The first error object's status drives the response status.
	rw := httptest.NewRecorder()
	assert.NoError(t, MarshalErrors(rw, ErrResourceNotFound.Copy()))
	assert.Equal(t, http.StatusNotFound, rw.Code)
	assert.Contains(t, rw.Body.String(), `"errors"`)

	// Case 2:
	// No error objects at all still produce a client error document.
	rw = httptest.NewRecorder()
	assert.NoError(t, MarshalErrors(rw))
	assert.Equal(t, http.StatusBadRequest, rw.Code)
	assert.Contains(t, rw.Body.String(), `"errors":[]`)

	// Case 3:
	// An unparsable status is a server bug.
	rw = httptest.NewRecorder()
	custom := &ErrorObject{Title: "strange", Status: "teapot"}
	assert.NoError(t, MarshalErrors(rw, custom))
	assert.Equal(t, http.StatusInternalServerError, rw.Code)

	// Case 4:
	// A missing status stays a client error.
	rw = httptest.NewRecorder()
	assert.NoError(t, MarshalErrors(rw, &ErrorObject{Title: "no status"}))
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestErrorObjectFor(t *testing.T) {
	tests := []struct {
		err    *DeserializationError
		status string
	}{
		{newClientGeneratedID(), "403"},
		{newConflictingType("", "people", "dogs"), "409"},
		{newUnknownAttribute("bogus"), "400"},
		{newUnknownRelationship("pets"), "400"},
		{newMissingData(""), "400"},
		{newMissingType("author"), "400"},
	}
	for _, test := range tests {
		errObj := ErrorObjectFor(test.err)
		assert.Equal(t, test.status, errObj.Status)
		assert.Equal(t, test.err.Detail, errObj.Detail)
	}
}
