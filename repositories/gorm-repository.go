package repositories

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/neuronlabs/uni-db"
	"github.com/neuronlabs/uni-db/gormconv"

	restless "github.com/ajite/flask-restless-ng"
)

// GORMRegistry derives restless.Schema implementations from gorm model
// metadata. Models must be registered up front; schema analysis happens
// once per model.
type GORMRegistry struct {
	db      *gorm.DB
	schemas map[reflect.Type]*GORMSchema
}

// NewRegistry creates a registry bound to the given gorm database handle.
func NewRegistry(db *gorm.DB) (*GORMRegistry, error) {
	if db == nil {
		return nil, errors.New("nil pointer as an argument provided")
	}
	return &GORMRegistry{db: db, schemas: make(map[reflect.Type]*GORMSchema)}, nil
}

// RegisterModel introspects the model through gorm and stores its schema.
func (r *GORMRegistry) RegisterModel(model interface{}) (*GORMSchema, error) {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.New("invalid model provided - model must be a struct or a pointer to struct")
	}
	if schema, ok := r.schemas[t]; ok {
		return schema, nil
	}

	scope := r.db.NewScope(reflect.New(t).Interface())
	modelStruct := scope.GetModelStruct()

	schema := &GORMSchema{
		registry:   r,
		modelType:  t,
		collection: scope.TableName(),
		fields:     make(map[string]*gorm.StructField),
		relations:  make(map[string]*gorm.StructField),
	}

	for _, field := range modelStruct.StructFields {
		if field.IsIgnored {
			continue
		}
		schema.fields[field.DBName] = field
		switch {
		case field.Relationship != nil:
			schema.relations[field.DBName] = field
			// belongs_to keeps its foreign key on this model; those
			// columns surface only through the relationship
			if field.Relationship.Kind == "belongs_to" {
				schema.foreignKeys = append(schema.foreignKeys, field.Relationship.ForeignDBNames...)
			}
		case field.IsNormal:
			schema.attributes = append(schema.attributes, field.DBName)
			if field.IsPrimaryKey && schema.primaryField == nil {
				schema.primaryField = field
			}
		}
	}
	if schema.primaryField == nil {
		return nil, fmt.Errorf("model '%s' has no primary key field", t.Name())
	}

	r.schemas[t] = schema
	return schema, nil
}

// SchemaFor resolves the registered schema of an arbitrary instance.
func (r *GORMRegistry) SchemaFor(instance interface{}) (restless.Schema, error) {
	t := reflect.TypeOf(instance)
	if t == nil {
		return nil, errors.New("cannot resolve a schema for a nil instance")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return r.schemaForType(t)
}

func (r *GORMRegistry) schemaForType(t reflect.Type) (*GORMSchema, error) {
	schema, ok := r.schemas[t]
	if !ok {
		return nil, fmt.Errorf("model '%s' is not registered", t.Name())
	}
	return schema, nil
}

// GORMSchema implements restless.Schema on top of gorm's model metadata.
// Field names on the wire are the gorm column names.
type GORMSchema struct {
	registry     *GORMRegistry
	modelType    reflect.Type
	collection   string
	primaryField *gorm.StructField
	fields       map[string]*gorm.StructField
	relations    map[string]*gorm.StructField
	attributes   []string
	foreignKeys  []string
}

func (s *GORMSchema) CollectionName() string {
	return s.collection
}

func (s *GORMSchema) PrimaryKey() string {
	return s.primaryField.DBName
}

func (s *GORMSchema) AttributeNames() []string {
	return s.attributes
}

func (s *GORMSchema) RelationNames() []string {
	names := make([]string, 0, len(s.relations))
	for name := range s.relations {
		names = append(names, name)
	}
	return names
}

func (s *GORMSchema) ForeignKeyNames() []string {
	return s.foreignKeys
}

func (s *GORMSchema) HasField(name string) bool {
	_, ok := s.fields[name]
	return ok
}

func (s *GORMSchema) IsToMany(relation string) bool {
	field, ok := s.relations[relation]
	if !ok {
		return false
	}
	kind := field.Relationship.Kind
	return kind == "has_many" || kind == "many_to_many"
}

func (s *GORMSchema) RelatedSchema(relation string) (restless.Schema, error) {
	field, ok := s.relations[relation]
	if !ok {
		return nil, fmt.Errorf("model '%s' has no relationship '%s'", s.modelType.Name(), relation)
	}
	t := field.Struct.Type
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return s.registry.schemaForType(t)
}

func (s *GORMSchema) PrimaryKeyValue(instance interface{}) (interface{}, error) {
	value, err := s.instanceValue(instance)
	if err != nil {
		return nil, err
	}
	return value.FieldByName(s.primaryField.Name).Interface(), nil
}

// AttributeValue reads the named column off the instance. Names without a
// backing column resolve to a zero-argument method of the matching
// exported name, wrapped as a restless.Computed producer.
func (s *GORMSchema) AttributeValue(instance interface{}, attribute string) (interface{}, error) {
	if field, ok := s.fields[attribute]; ok {
		value, err := s.instanceValue(instance)
		if err != nil {
			return nil, err
		}
		return value.FieldByName(field.Name).Interface(), nil
	}

	method := reflect.ValueOf(instance).MethodByName(camelize(attribute))
	if method.IsValid() && method.Type().NumIn() == 0 {
		return restless.Computed(func() (interface{}, error) {
			results := method.Call(nil)
			switch len(results) {
			case 1:
				return results[0].Interface(), nil
			case 2:
				if err, ok := results[1].Interface().(error); ok && err != nil {
					return nil, err
				}
				return results[0].Interface(), nil
			}
			return nil, fmt.Errorf("method '%s' has an unsupported signature", camelize(attribute))
		}), nil
	}
	return nil, fmt.Errorf("model '%s' has no attribute '%s'", s.modelType.Name(), attribute)
}

func (s *GORMSchema) RelationValue(instance interface{}, relation string) (interface{}, error) {
	field, ok := s.relations[relation]
	if !ok {
		return nil, fmt.Errorf("model '%s' has no relationship '%s'", s.modelType.Name(), relation)
	}
	value, err := s.instanceValue(instance)
	if err != nil {
		return nil, err
	}
	return value.FieldByName(field.Name).Interface(), nil
}

func (s *GORMSchema) New(fields map[string]interface{}) (interface{}, error) {
	instance := reflect.New(s.modelType)
	value := instance.Elem()
	for name, fieldValue := range fields {
		field, ok := s.fields[name]
		if !ok {
			return nil, fmt.Errorf("model '%s' has no field '%s'", s.modelType.Name(), name)
		}
		target := value.FieldByName(field.Name)
		coerced, err := coerceValue(target.Type(), fieldValue)
		if err != nil {
			return nil, fmt.Errorf("invalid value for field '%s': %w", name, err)
		}
		target.Set(coerced)
	}
	return instance.Interface(), nil
}

func (s *GORMSchema) SetRelationValue(instance interface{}, relation string, relationValue interface{}) error {
	field, ok := s.relations[relation]
	if !ok {
		return fmt.Errorf("model '%s' has no relationship '%s'", s.modelType.Name(), relation)
	}
	value, err := s.instanceValue(instance)
	if err != nil {
		return err
	}
	target := value.FieldByName(field.Name)

	if s.IsToMany(relation) {
		resolved, ok := relationValue.([]interface{})
		if !ok {
			return fmt.Errorf("expected a list of related instances for relationship '%s'", relation)
		}
		slice := reflect.MakeSlice(target.Type(), 0, len(resolved))
		for _, element := range resolved {
			if element == nil {
				continue
			}
			related, err := coerceValue(target.Type().Elem(), element)
			if err != nil {
				return err
			}
			slice = reflect.Append(slice, related)
		}
		target.Set(slice)
		return nil
	}

	if relationValue == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	related, err := coerceValue(target.Type(), relationValue)
	if err != nil {
		return err
	}
	target.Set(related)
	return nil
}

// ParseTemporals rewrites the textual wire form of every temporal column
// present in the map into its Go value: RFC3339 (or date-only) strings for
// time.Time columns, second counts for time.Duration columns.
func (s *GORMSchema) ParseTemporals(fields map[string]interface{}) (map[string]interface{}, error) {
	for name, fieldValue := range fields {
		field, ok := s.fields[name]
		if !ok {
			continue
		}
		t := field.Struct.Type
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		switch {
		case t == reflect.TypeOf(time.Time{}):
			text, ok := fieldValue.(string)
			if !ok {
				continue
			}
			parsed, err := parseTime(text)
			if err != nil {
				return nil, fmt.Errorf("invalid temporal value for field '%s': %w", name, err)
			}
			fields[name] = parsed
		case t == reflect.TypeOf(time.Duration(0)):
			seconds, ok := fieldValue.(float64)
			if !ok {
				continue
			}
			fields[name] = time.Duration(seconds * float64(time.Second))
		}
	}
	return fields, nil
}

func (s *GORMSchema) instanceValue(instance interface{}) (reflect.Value, error) {
	value := reflect.ValueOf(instance)
	if value.Kind() == reflect.Ptr {
		value = value.Elem()
	}
	if value.Type() != s.modelType {
		return reflect.Value{}, fmt.Errorf("instance of type '%T' does not match model '%s'", instance, s.modelType.Name())
	}
	return value, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
}

func parseTime(text string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var parsed time.Time
		if parsed, err = time.Parse(layout, text); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, err
}

// coerceValue adapts a decoded JSON value to the target field type. JSON
// numbers arrive as float64 and identifiers as strings, so numeric
// conversions and string parsing are both supported.
func coerceValue(target reflect.Type, value interface{}) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(target) {
		return v, nil
	}
	if target.Kind() == reflect.Ptr {
		elem, err := coerceValue(target.Elem(), value)
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}
	if text, ok := value.(string); ok {
		switch target.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			parsed, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(parsed).Convert(target), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			parsed, err := strconv.ParseUint(text, 10, 64)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(parsed).Convert(target), nil
		case reflect.Float32, reflect.Float64:
			parsed, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(parsed).Convert(target), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot assign string to '%s'", target)
	}
	switch v.Kind() {
	case reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v.Type().ConvertibleTo(target) {
			return v.Convert(target), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot assign '%T' to '%s'", value, target)
}

// camelize turns a snake_case wire name into the exported Go name.
func camelize(name string) string {
	parts := strings.Split(name, "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, "")
}

// GORMRepository implements restless.Repository over a gorm database
// handle, converting gorm errors into their unidb prototypes.
type GORMRepository struct {
	db        *gorm.DB
	converter *gormconv.GORMConverter
}

func New(db *gorm.DB) (*GORMRepository, error) {
	repo := &GORMRepository{}
	if err := repo.initialize(db); err != nil {
		return nil, err
	}
	return repo, nil
}

func (g *GORMRepository) initialize(db *gorm.DB) (err error) {
	if db == nil {
		return errors.New("nil pointer as an argument provided")
	}
	g.db = db

	g.converter, err = gormconv.New(db.Dialect().GetName())
	if err != nil {
		return err
	}
	return nil
}

func (g *GORMRepository) Get(schema restless.Schema, id string) (interface{}, *unidb.Error) {
	gs, dbErr := g.gormSchema(schema)
	if dbErr != nil {
		return nil, dbErr
	}
	instance := reflect.New(gs.modelType).Interface()
	err := g.db.Where(fmt.Sprintf("%s = ?", gs.primaryField.DBName), id).First(instance).Error
	if err != nil {
		return nil, g.converter.Convert(err)
	}
	return instance, nil
}

func (g *GORMRepository) List(schema restless.Schema) (interface{}, *unidb.Error) {
	gs, dbErr := g.gormSchema(schema)
	if dbErr != nil {
		return nil, dbErr
	}
	slice := reflect.New(reflect.SliceOf(reflect.PtrTo(gs.modelType)))
	if err := g.db.Find(slice.Interface()).Error; err != nil {
		return nil, g.converter.Convert(err)
	}
	return slice.Elem().Interface(), nil
}

func (g *GORMRepository) Create(schema restless.Schema, instance interface{}) *unidb.Error {
	if err := g.db.Create(instance).Error; err != nil {
		return g.converter.Convert(err)
	}
	return nil
}

func (g *GORMRepository) Patch(schema restless.Schema, instance interface{}, id string) *unidb.Error {
	gs, dbErr := g.gormSchema(schema)
	if dbErr != nil {
		return dbErr
	}
	query := g.db.Model(reflect.New(gs.modelType).Interface()).
		Where(fmt.Sprintf("%s = ?", gs.primaryField.DBName), id).
		Updates(instance)
	if query.Error != nil {
		return g.converter.Convert(query.Error)
	}
	if query.RowsAffected == 0 {
		return unidb.ErrNoResult.New()
	}
	return nil
}

func (g *GORMRepository) Delete(schema restless.Schema, id string) *unidb.Error {
	gs, dbErr := g.gormSchema(schema)
	if dbErr != nil {
		return dbErr
	}
	query := g.db.Where(fmt.Sprintf("%s = ?", gs.primaryField.DBName), id).
		Delete(reflect.New(gs.modelType).Interface())
	if query.Error != nil {
		return g.converter.Convert(query.Error)
	}
	if query.RowsAffected == 0 {
		return unidb.ErrNoResult.New()
	}
	return nil
}

func (g *GORMRepository) gormSchema(schema restless.Schema) (*GORMSchema, *unidb.Error) {
	gs, ok := schema.(*GORMSchema)
	if !ok {
		dbErr := unidb.ErrInternalError.New()
		dbErr.Message = fmt.Sprintf("schema of type '%T' is not backed by gorm", schema)
		return nil, dbErr
	}
	return gs, nil
}
