package restless

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/kucjac/uni-logger"
	"github.com/neuronlabs/uni-db"
	"golang.org/x/text/language"
)

const (
	headerAcceptLanguage  = "Accept-Language"
	headerContentLanguage = "Content-Language"
)

// ModelHandler bundles everything the endpoints of one model need. The
// Repository may be nil, in which case the APIHandler's default repository
// serves the model.
type ModelHandler struct {
	Schema            Schema
	Serializer        *Serializer
	Deserializer      *Deserializer
	PatchDeserializer *Deserializer
	Repository        Repository

	Create *Endpoint
	Get    *Endpoint
	List   *Endpoint
	Patch  *Endpoint
	Delete *Endpoint
}

// AddEndpoint attaches the endpoint to its slot by type.
func (m *ModelHandler) AddEndpoint(endpoint *Endpoint) error {
	switch endpoint.Type {
	case Create:
		m.Create = endpoint
	case Get:
		m.Get = endpoint
	case List:
		m.List = endpoint
	case Patch:
		m.Patch = endpoint
	case Delete:
		m.Delete = endpoint
	default:
		return errors.New("invalid endpoint type provided")
	}
	return nil
}

// APIHandler dispatches HTTP requests onto the serialization core and the
// model repositories. It owns no per-request state; a configured handler is
// safe for concurrent use.
type APIHandler struct {
	ModelHandlers      map[string]*ModelHandler
	URLs               *BasePathURLBuilder
	DefaultRepository  Repository
	SupportedLanguages []language.Tag

	registry Registry
	log      unilogger.ExtendedLeveledLogger
	dbErrMgr *ErrorManager
	matcher  language.Matcher
}

// NewHandler creates an APIHandler over the given schema registry and URL
// builder. A nil error manager falls back to the default database error
// mapping.
func NewHandler(
	registry Registry,
	urls *BasePathURLBuilder,
	log unilogger.ExtendedLeveledLogger,
	dbErrMgr *ErrorManager,
) *APIHandler {
	if dbErrMgr == nil {
		dbErrMgr = NewErrorManager()
	}
	return &APIHandler{
		ModelHandlers: make(map[string]*ModelHandler),
		URLs:          urls,
		registry:      registry,
		log:           log,
		dbErrMgr:      dbErrMgr,
	}
}

// SetDefaultRepo sets the repository used by models registered without one.
func (h *APIHandler) SetDefaultRepo(repository Repository) {
	h.DefaultRepository = repository
}

// SetLanguages declares the languages the API supports. Requests negotiate
// against this set through the Accept-Language header.
func (h *APIHandler) SetLanguages(tags ...language.Tag) {
	h.SupportedLanguages = tags
	h.matcher = language.NewMatcher(tags)
}

// RegisterModel builds the serializers and deserializers for the model
// described by schema and mounts the given endpoints under its collection
// name.
func (h *APIHandler) RegisterModel(
	schema Schema,
	repository Repository,
	options *SerializerOptions,
	endpoints ...*Endpoint,
) (*ModelHandler, error) {
	var urls URLBuilder
	if h.URLs != nil {
		urls = h.URLs
	}
	serializer, err := NewSerializer(schema, h.registry, urls, options)
	if err != nil {
		return nil, err
	}

	m := &ModelHandler{
		Schema:     schema,
		Serializer: serializer,
		Repository: repository,
	}
	session := &modelSession{handler: h, model: m}
	m.Deserializer = NewDeserializer(session, schema, false)
	m.PatchDeserializer = NewDeserializer(session, schema, true)

	for _, endpoint := range endpoints {
		if err := m.AddEndpoint(endpoint); err != nil {
			return nil, err
		}
	}

	collection := schema.CollectionName()
	h.ModelHandlers[collection] = m
	if h.URLs != nil {
		h.URLs.Register(collection)
	}
	return m, nil
}

// modelSession defers repository resolution to request time, so a default
// repository installed after model registration still serves lookups.
type modelSession struct {
	handler *APIHandler
	model   *ModelHandler
}

func (s *modelSession) Get(schema Schema, id string) (interface{}, *unidb.Error) {
	return s.handler.repositoryFor(s.model).Get(schema, id)
}

func (h *APIHandler) repositoryFor(m *ModelHandler) Repository {
	if m.Repository != nil {
		return m.Repository
	}
	return h.DefaultRepository
}

// HandleCreate responds to POST /<collection>.
func (h *APIHandler) HandleCreate(model *ModelHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		SetContentType(rw)
		document := h.unmarshalDocument(rw, req)
		if document == nil {
			return
		}

		instance, err := model.Deserializer.Deserialize(document)
		if err != nil {
			h.handleDeserializeError(rw, err)
			return
		}

		if model.Create != nil && !h.runProcessors(rw, req, model.Create.Preprocessors, instance) {
			return
		}

		repo := h.repositoryFor(model)
		if dbErr := repo.Create(model.Schema, instance); dbErr != nil {
			h.manageDBError(rw, dbErr)
			return
		}

		if model.Create != nil && !h.runProcessors(rw, req, model.Create.Postprocessors, instance) {
			return
		}

		rw.WriteHeader(http.StatusCreated)
		h.marshalOne(rw, model, instance)
	}
}

// HandleGet responds to GET /<collection>/<id>.
func (h *APIHandler) HandleGet(model *ModelHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		SetContentType(rw)
		id, ok := h.idFromPath(req, model)
		if !ok {
			h.MarshalInternalError(rw)
			return
		}

		tag, ok := h.GetLanguage(req, rw)
		if !ok {
			return
		}
		h.HeaderContentLanguage(rw, tag)

		repo := h.repositoryFor(model)
		instance, dbErr := repo.Get(model.Schema, id)
		if dbErr != nil {
			h.manageDBError(rw, dbErr)
			return
		}

		if model.Get != nil && !h.runProcessors(rw, req, model.Get.Postprocessors, instance) {
			return
		}
		h.marshalOne(rw, model, instance)
	}
}

// HandleList responds to GET /<collection>.
func (h *APIHandler) HandleList(model *ModelHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		SetContentType(rw)
		tag, ok := h.GetLanguage(req, rw)
		if !ok {
			return
		}
		h.HeaderContentLanguage(rw, tag)

		repo := h.repositoryFor(model)
		values, dbErr := repo.List(model.Schema)
		if dbErr != nil {
			h.manageDBError(rw, dbErr)
			return
		}

		collection := reflect.ValueOf(values)
		if collection.Kind() == reflect.Ptr {
			collection = collection.Elem()
		}
		if collection.Kind() != reflect.Slice {
			h.log.Errorf("Repository List for '%s' returned a non-slice value: %T", model.Schema.CollectionName(), values)
			h.MarshalInternalError(rw)
			return
		}

		resources := make([]*ResourceObject, 0, collection.Len())
		for i := 0; i < collection.Len(); i++ {
			instance := collection.Index(i).Interface()
			if model.List != nil && !h.runProcessors(rw, req, model.List.Postprocessors, instance) {
				return
			}
			resource, err := model.Serializer.Serialize(instance, nil)
			if err != nil {
				h.errSerialize(model, err, rw)
				return
			}
			resources = append(resources, resource)
		}
		h.marshalPayload(rw, &ManyPayload{Data: resources})
	}
}

// HandlePatch responds to PATCH /<collection>/<id>. The body id is
// tolerated here, since JSON API PATCH documents carry the resource id.
func (h *APIHandler) HandlePatch(model *ModelHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		SetContentType(rw)
		id, ok := h.idFromPath(req, model)
		if !ok {
			h.MarshalInternalError(rw)
			return
		}

		document := h.unmarshalDocument(rw, req)
		if document == nil {
			return
		}
		instance, err := model.PatchDeserializer.Deserialize(document)
		if err != nil {
			h.handleDeserializeError(rw, err)
			return
		}

		if model.Patch != nil && !h.runProcessors(rw, req, model.Patch.Preprocessors, instance) {
			return
		}

		repo := h.repositoryFor(model)
		if dbErr := repo.Patch(model.Schema, instance, id); dbErr != nil {
			h.manageDBError(rw, dbErr)
			return
		}

		if model.Patch != nil && !h.runProcessors(rw, req, model.Patch.Postprocessors, instance) {
			return
		}
		rw.WriteHeader(http.StatusNoContent)
	}
}

// HandleDelete responds to DELETE /<collection>/<id>.
func (h *APIHandler) HandleDelete(model *ModelHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		SetContentType(rw)
		id, ok := h.idFromPath(req, model)
		if !ok {
			h.MarshalInternalError(rw)
			return
		}

		if model.Delete != nil && !h.runProcessors(rw, req, model.Delete.Preprocessors, nil) {
			return
		}

		repo := h.repositoryFor(model)
		if dbErr := repo.Delete(model.Schema, id); dbErr != nil {
			h.manageDBError(rw, dbErr)
			return
		}
		rw.WriteHeader(http.StatusNoContent)
	}
}

// HandleGetRelationship responds to
// GET /<collection>/<id>/relationships/<relation> with the relationship
// object alone as the document.
func (h *APIHandler) HandleGetRelationship(model *ModelHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		SetContentType(rw)
		id, relation, ok := h.relationshipFromPath(req, model)
		if !ok {
			h.MarshalInternalError(rw)
			return
		}

		found := false
		for _, name := range model.Schema.RelationNames() {
			if name == relation {
				found = true
				break
			}
		}
		if !found {
			h.MarshalErrors(rw, ErrResourceNotFound.Copy())
			return
		}

		repo := h.repositoryFor(model)
		instance, dbErr := repo.Get(model.Schema, id)
		if dbErr != nil {
			h.manageDBError(rw, dbErr)
			return
		}

		var urls URLBuilder
		if h.URLs != nil {
			urls = h.URLs
		}
		relationship, err := SerializeRelationship(h.registry, urls, model.Schema, instance, relation)
		if err != nil {
			h.errSerialize(model, err, rw)
			return
		}
		h.marshalPayload(rw, relationship)
	}
}

// EndpointForbidden answers routes mounted without a configured endpoint.
func (h *APIHandler) EndpointForbidden(model *ModelHandler, endpoint EndpointType) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		SetContentType(rw)
		errObj := ErrEndpointForbidden.Copy()
		errObj.Detail = "endpoint " + endpoint.String() + " is not supported for collection " + model.Schema.CollectionName()
		h.MarshalErrors(rw, errObj)
	}
}

// GetLanguage negotiates the response language against the supported set.
// An Accept-Language value matching none of the supported languages is a
// client error.
func (h *APIHandler) GetLanguage(req *http.Request, rw http.ResponseWriter) (language.Tag, bool) {
	if len(h.SupportedLanguages) == 0 {
		return language.Und, true
	}
	header := req.Header.Get(headerAcceptLanguage)
	if header == "" {
		return h.SupportedLanguages[0], true
	}
	parsed, _, _ := language.ParseAcceptLanguage(header)
	tag, _, confidence := h.matcher.Match(parsed...)
	if confidence == language.No {
		errObj := ErrInvalidInput.Copy()
		errObj.Detail = "the language provided in the Accept-Language header is not supported"
		h.MarshalErrors(rw, errObj)
		return language.Und, false
	}
	return tag, true
}

// HeaderContentLanguage writes the negotiated language back to the client.
func (h *APIHandler) HeaderContentLanguage(rw http.ResponseWriter, tag language.Tag) {
	if tag != language.Und {
		rw.Header().Set(headerContentLanguage, tag.String())
	}
}

// MarshalErrors writes the error objects, logging them at info level.
func (h *APIHandler) MarshalErrors(rw http.ResponseWriter, errs ...*ErrorObject) {
	if err := MarshalErrors(rw, errs...); err != nil {
		h.log.Errorf("Error while marshaling error objects: %v", err)
	}
}

// MarshalInternalError responds with a bare internal error object.
func (h *APIHandler) MarshalInternalError(rw http.ResponseWriter) {
	h.MarshalErrors(rw, ErrInternalError.Copy())
}

func (h *APIHandler) runProcessors(
	rw http.ResponseWriter,
	req *http.Request,
	processors []Processor,
	instance interface{},
) bool {
	for _, process := range processors {
		if errObj := process(req, instance); errObj != nil {
			h.MarshalErrors(rw, errObj)
			return false
		}
	}
	return true
}

func (h *APIHandler) unmarshalDocument(rw http.ResponseWriter, req *http.Request) *Document {
	document := new(Document)
	if err := json.NewDecoder(req.Body).Decode(document); err != nil {
		h.log.Infof("Invalid JSON document for path: '%s' and method: '%s'. Error: %v", req.URL.Path, req.Method, err)
		h.MarshalErrors(rw, ErrInvalidJSONDocument.Copy())
		return nil
	}
	return document
}

func (h *APIHandler) handleDeserializeError(rw http.ResponseWriter, err error) {
	var derr *DeserializationError
	if errors.As(err, &derr) {
		h.MarshalErrors(rw, ErrorObjectFor(derr))
		return
	}
	var dbErr *unidb.Error
	if errors.As(err, &dbErr) {
		h.manageDBError(rw, dbErr)
		return
	}
	h.log.Errorf("Unexpected error while deserializing document: %v", err)
	h.MarshalInternalError(rw)
}

func (h *APIHandler) manageDBError(rw http.ResponseWriter, dbErr *unidb.Error) {
	h.log.Info(dbErr)
	errObj, err := h.dbErrMgr.Handle(dbErr)
	if err != nil {
		h.log.Error(dbErr.Message)
		h.MarshalInternalError(rw)
		return
	}
	h.MarshalErrors(rw, errObj)
}

func (h *APIHandler) marshalOne(rw http.ResponseWriter, model *ModelHandler, instance interface{}) {
	resource, err := model.Serializer.Serialize(instance, nil)
	if err != nil {
		h.errSerialize(model, err, rw)
		return
	}
	h.marshalPayload(rw, &SinglePayload{Data: resource})
}

func (h *APIHandler) marshalPayload(rw http.ResponseWriter, payload interface{}) {
	if err := json.NewEncoder(rw).Encode(payload); err != nil {
		h.log.Errorf("Error while marshaling payload: '%v'. Error: %v", payload, err)
	}
}

func (h *APIHandler) errSerialize(model *ModelHandler, err error, rw http.ResponseWriter) {
	h.log.Errorf("Error while serializing instance of collection: '%s'. Error: %s", model.Schema.CollectionName(), err)
	h.MarshalInternalError(rw)
}

// idFromPath extracts the resource id following the model's collection
// segment in the request path.
func (h *APIHandler) idFromPath(req *http.Request, model *ModelHandler) (string, bool) {
	segments := pathSegments(req.URL.Path)
	collection := model.Schema.CollectionName()
	for i, segment := range segments {
		if segment == collection && i+1 < len(segments) {
			return segments[i+1], true
		}
	}
	return "", false
}

func (h *APIHandler) relationshipFromPath(req *http.Request, model *ModelHandler) (id, relation string, ok bool) {
	segments := pathSegments(req.URL.Path)
	collection := model.Schema.CollectionName()
	for i, segment := range segments {
		if segment == collection && i+3 < len(segments) && segments[i+2] == "relationships" {
			return segments[i+1], segments[i+3], true
		}
	}
	return "", "", false
}

func pathSegments(path string) []string {
	var segments []string
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// SetContentType sets the JSON API media type on the response.
func SetContentType(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", MediaType)
}
