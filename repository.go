package restless

import (
	"github.com/neuronlabs/uni-db"
)

// Repository performs the persistence operations behind a model's
// endpoints. It extends the Session lookup the deserializer needs with the
// mutating operations the HTTP layer needs. All failures are reported as
// typed *unidb.Error values.
type Repository interface {
	Session

	Create(schema Schema, instance interface{}) *unidb.Error
	List(schema Schema) (interface{}, *unidb.Error)
	Patch(schema Schema, instance interface{}, id string) *unidb.Error
	Delete(schema Schema, id string) *unidb.Error
}
