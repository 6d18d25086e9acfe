package restless

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/neuronlabs/uni-db"
	"github.com/kucjac/uni-logger"
	"github.com/stretchr/testify/mock"
	"golang.org/x/text/language"
)

type Person struct {
	ID        int
	Name      string
	BirthDate time.Time
	Articles  []*Article
}

type Article struct {
	ID       int
	Title    string
	ReadTime time.Duration
	AuthorID int
	Author   *Person
}

type testRelation struct {
	toMany  bool
	related func() *testSchema
}

// testSchema is a hand-wired Schema implementation for the fixture models,
// keeping the core tests independent of any real persistence layer.
type testSchema struct {
	collection  string
	primaryKey  string
	attrs       []string
	fks         []string
	relations   map[string]testRelation
	temporal    map[string]string
	getField    func(instance interface{}, name string) interface{}
	pkValue     func(instance interface{}) interface{}
	construct   func(fields map[string]interface{}) interface{}
	setRelation func(instance interface{}, relation string, value interface{})
}

func (s *testSchema) CollectionName() string    { return s.collection }
func (s *testSchema) PrimaryKey() string        { return s.primaryKey }
func (s *testSchema) AttributeNames() []string  { return s.attrs }
func (s *testSchema) ForeignKeyNames() []string { return s.fks }

func (s *testSchema) RelationNames() []string {
	names := make([]string, 0, len(s.relations))
	for name := range s.relations {
		names = append(names, name)
	}
	return names
}

func (s *testSchema) HasField(name string) bool {
	if name == s.primaryKey {
		return true
	}
	for _, attr := range s.attrs {
		if attr == name {
			return true
		}
	}
	for _, fk := range s.fks {
		if fk == name {
			return true
		}
	}
	_, ok := s.relations[name]
	return ok
}

func (s *testSchema) IsToMany(relation string) bool {
	return s.relations[relation].toMany
}

func (s *testSchema) RelatedSchema(relation string) (Schema, error) {
	rel, ok := s.relations[relation]
	if !ok {
		return nil, fmt.Errorf("no relationship %q", relation)
	}
	return rel.related(), nil
}

func (s *testSchema) PrimaryKeyValue(instance interface{}) (interface{}, error) {
	return s.pkValue(instance), nil
}

func (s *testSchema) AttributeValue(instance interface{}, attribute string) (interface{}, error) {
	return s.getField(instance, attribute), nil
}

func (s *testSchema) RelationValue(instance interface{}, relation string) (interface{}, error) {
	return s.getField(instance, relation), nil
}

func (s *testSchema) New(fields map[string]interface{}) (interface{}, error) {
	return s.construct(fields), nil
}

func (s *testSchema) SetRelationValue(instance interface{}, relation string, value interface{}) error {
	s.setRelation(instance, relation, value)
	return nil
}

func (s *testSchema) ParseTemporals(fields map[string]interface{}) (map[string]interface{}, error) {
	for name, kind := range s.temporal {
		value, ok := fields[name]
		if !ok {
			continue
		}
		switch kind {
		case "time":
			text, ok := value.(string)
			if !ok {
				continue
			}
			parsed, err := time.Parse(time.RFC3339, text)
			if err != nil {
				return nil, err
			}
			fields[name] = parsed
		case "duration":
			seconds, ok := value.(float64)
			if !ok {
				continue
			}
			fields[name] = time.Duration(seconds * float64(time.Second))
		}
	}
	return fields, nil
}

func testSchemas() (person, article *testSchema) {
	person = &testSchema{
		collection: "people",
		primaryKey: "id",
		attrs:      []string{"name", "birth_date"},
		temporal:   map[string]string{"birth_date": "time"},
	}
	article = &testSchema{
		collection: "articles",
		primaryKey: "id",
		attrs:      []string{"title", "read_time", "author_id"},
		fks:        []string{"author_id"},
		temporal:   map[string]string{"read_time": "duration"},
	}

	person.relations = map[string]testRelation{
		"articles": {toMany: true, related: func() *testSchema { return article }},
	}
	article.relations = map[string]testRelation{
		"author": {related: func() *testSchema { return person }},
	}

	person.getField = func(instance interface{}, name string) interface{} {
		p := instance.(*Person)
		switch name {
		case "id":
			return p.ID
		case "name":
			return p.Name
		case "birth_date":
			return p.BirthDate
		case "articles":
			return p.Articles
		}
		return nil
	}
	person.pkValue = func(instance interface{}) interface{} { return instance.(*Person).ID }
	person.construct = func(fields map[string]interface{}) interface{} {
		p := &Person{}
		if v, ok := fields["id"]; ok {
			p.ID = intValue(v)
		}
		if v, ok := fields["name"]; ok {
			p.Name = v.(string)
		}
		if v, ok := fields["birth_date"]; ok {
			p.BirthDate = v.(time.Time)
		}
		return p
	}
	person.setRelation = func(instance interface{}, relation string, value interface{}) {
		p := instance.(*Person)
		if relation != "articles" {
			return
		}
		p.Articles = nil
		if value == nil {
			return
		}
		for _, element := range value.([]interface{}) {
			if element != nil {
				p.Articles = append(p.Articles, element.(*Article))
			}
		}
	}

	article.getField = func(instance interface{}, name string) interface{} {
		a := instance.(*Article)
		switch name {
		case "id":
			return a.ID
		case "title":
			return a.Title
		case "read_time":
			return a.ReadTime
		case "author_id":
			return a.AuthorID
		case "author":
			return a.Author
		}
		return nil
	}
	article.pkValue = func(instance interface{}) interface{} { return instance.(*Article).ID }
	article.construct = func(fields map[string]interface{}) interface{} {
		a := &Article{}
		if v, ok := fields["id"]; ok {
			a.ID = intValue(v)
		}
		if v, ok := fields["title"]; ok {
			a.Title = v.(string)
		}
		if v, ok := fields["read_time"]; ok {
			a.ReadTime = v.(time.Duration)
		}
		if v, ok := fields["author_id"]; ok {
			a.AuthorID = intValue(v)
		}
		return a
	}
	article.setRelation = func(instance interface{}, relation string, value interface{}) {
		a := instance.(*Article)
		if relation != "author" {
			return
		}
		if value == nil {
			a.Author = nil
			return
		}
		a.Author = value.(*Person)
	}
	return person, article
}

func intValue(value interface{}) int {
	switch v := value.(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		parsed, _ := strconv.Atoi(v)
		return parsed
	}
	return 0
}

type testRegistry struct {
	schemas map[reflect.Type]Schema
}

func newTestRegistry() *testRegistry {
	person, article := testSchemas()
	return &testRegistry{schemas: map[reflect.Type]Schema{
		reflect.TypeOf(Person{}):  person,
		reflect.TypeOf(Article{}): article,
	}}
}

func (r *testRegistry) SchemaFor(instance interface{}) (Schema, error) {
	t := reflect.TypeOf(instance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	schema, ok := r.schemas[t]
	if !ok {
		return nil, fmt.Errorf("model %q is not registered", t.Name())
	}
	return schema, nil
}

type MockSession struct {
	mock.Mock
}

func (m *MockSession) Get(schema Schema, id string) (interface{}, *unidb.Error) {
	args := m.Called(schema, id)
	if args.Get(1) != nil {
		return nil, args.Get(1).(*unidb.Error)
	}
	return args.Get(0), nil
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Get(schema Schema, id string) (interface{}, *unidb.Error) {
	args := m.Called(schema, id)
	if args.Get(1) != nil {
		return nil, args.Get(1).(*unidb.Error)
	}
	return args.Get(0), nil
}

func (m *MockRepository) List(schema Schema) (interface{}, *unidb.Error) {
	args := m.Called(schema)
	if args.Get(1) != nil {
		return nil, args.Get(1).(*unidb.Error)
	}
	return args.Get(0), nil
}

func (m *MockRepository) Create(schema Schema, instance interface{}) *unidb.Error {
	args := m.Called(schema, instance)
	if args.Get(0) != nil {
		return args.Get(0).(*unidb.Error)
	}
	return nil
}

func (m *MockRepository) Patch(schema Schema, instance interface{}, id string) *unidb.Error {
	args := m.Called(schema, instance, id)
	if args.Get(0) != nil {
		return args.Get(0).(*unidb.Error)
	}
	return nil
}

func (m *MockRepository) Delete(schema Schema, id string) *unidb.Error {
	args := m.Called(schema, id)
	if args.Get(0) != nil {
		return args.Get(0).(*unidb.Error)
	}
	return nil
}

var defaultLanguages = []language.Tag{language.English, language.Polish}

func getHttpPair(method, target string, body io.Reader,
) (rw *httptest.ResponseRecorder, req *http.Request) {
	req = httptest.NewRequest(method, target, body)
	req.Header.Add("Content-Type", MediaType)
	rw = httptest.NewRecorder()
	return
}

// extendedTestLogger adapts *unilogger.LoggerWrapper to the
// unilogger.ExtendedLeveledLogger interface, which additionally requires the
// Debug2/Debug3 method families; they delegate to the wrapper's Debug level.
type extendedTestLogger struct {
	*unilogger.LoggerWrapper
}

func (l *extendedTestLogger) Debug2(format string, args ...interface{}) {
	l.Debugf(format, args...)
}

func (l *extendedTestLogger) Debug3(format string, args ...interface{}) {
	l.Debugf(format, args...)
}

func (l *extendedTestLogger) Debug2f(format string, args ...interface{}) {
	l.Debugf(format, args...)
}

func (l *extendedTestLogger) Debug3f(format string, args ...interface{}) {
	l.Debugf(format, args...)
}

func (l *extendedTestLogger) Debug2ln(args ...interface{}) {
	l.Debugln(args...)
}

func (l *extendedTestLogger) Debug3ln(args ...interface{}) {
	l.Debugln(args...)
}

func prepareHandler(languages []language.Tag) *APIHandler {
	registry := newTestRegistry()
	urls := NewBasePathURLBuilder("/api")
	logger := &extendedTestLogger{unilogger.MustGetLoggerWrapper(unilogger.NewBasicLogger(os.Stderr, "", log.Ldate))}

	h := NewHandler(registry, urls, logger, NewErrorManager())
	for _, schema := range registry.schemas {
		if _, err := h.RegisterModel(schema, nil, nil, NewEndpoints(FullCRUD...)...); err != nil {
			panic(err)
		}
	}
	h.SetLanguages(languages...)
	return h
}

func documentJSON(document string) io.Reader {
	return bytes.NewBufferString(document)
}
