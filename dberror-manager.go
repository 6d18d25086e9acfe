package restless

import (
	"errors"
	"sync"

	"github.com/neuronlabs/uni-db"
)

// DefaultErrorMap is the default one-to-one mapping of unidb.Error
// prototypes into wire ErrorObjects. An ErrorManager created with
// NewErrorManager starts from this map.
var DefaultErrorMap = map[unidb.Error]ErrorObject{
	unidb.ErrNoResult:                     ErrResourceNotFound,
	unidb.ErrConnection:                   ErrInternalError,
	unidb.ErrCardinalityViolation:         ErrInternalError,
	unidb.ErrDataException:                ErrInvalidInput,
	unidb.ErrIntegrityConstraintViolation: ErrInvalidInput,
	unidb.ErrRestrictViolation:            ErrInvalidInput,
	unidb.ErrNotNullViolation:             ErrInvalidInput,
	unidb.ErrForeignKeyViolation:          ErrInvalidInput,
	unidb.ErrUniqueViolation:              ErrResourceAlreadyExists,
	unidb.ErrCheckViolation:               ErrInvalidInput,
	unidb.ErrTxState:                      ErrInternalError,
	unidb.ErrTxTermination:                ErrInternalError,
	unidb.ErrTxRollback:                   ErrInternalError,
	unidb.ErrTxDone:                       ErrInternalError,
	unidb.ErrAuthorizationFailed:          ErrInsufficientAccPerm,
	unidb.ErrAuthenticationFailed:         ErrInternalError,
	unidb.ErrInvalidSchemaName:            ErrInternalError,
	unidb.ErrInvalidSyntax:                ErrInternalError,
	unidb.ErrInsufficientPrivilege:        ErrInsufficientAccPerm,
	unidb.ErrInsufficientResources:        ErrInternalError,
	unidb.ErrProgramLimitExceeded:         ErrInternalError,
	unidb.ErrSystemError:                  ErrInternalError,
	unidb.ErrInternalError:                ErrInternalError,
	unidb.ErrUnspecifiedError:             ErrInternalError,
}

// ErrorManager resolves typed database errors into the wire ErrorObject
// the HTTP layer responds with. The mapping is replaceable at runtime.
type ErrorManager struct {
	dbToRest map[unidb.Error]ErrorObject
	sync.RWMutex
}

// NewErrorManager creates an ErrorManager preloaded with a copy of
// DefaultErrorMap.
func NewErrorManager() *ErrorManager {
	dbToRest := make(map[unidb.Error]ErrorObject, len(DefaultErrorMap))
	for dberr, apierr := range DefaultErrorMap {
		dbToRest[dberr] = apierr
	}
	return &ErrorManager{dbToRest: dbToRest}
}

// Handle resolves the given database error by its prototype. An error
// without a prototype, or one absent from the mapping, yields a plain
// application error so the caller can respond with an internal error.
func (r *ErrorManager) Handle(dberr *unidb.Error) (*ErrorObject, error) {
	proto, err := dberr.GetPrototype()
	if err != nil {
		return nil, err
	}

	r.RLock()
	apierr, ok := r.dbToRest[proto]
	r.RUnlock()
	if !ok {
		return nil, errors.New("given database error is unrecognised by the error manager")
	}

	return &apierr, nil
}

// LoadCustomErrorMap replaces the whole error mapping.
func (r *ErrorManager) LoadCustomErrorMap(errorMap map[unidb.Error]ErrorObject) {
	r.Lock()
	r.dbToRest = errorMap
	r.Unlock()
}

// UpdateErrorEntry changes a single entry of the error mapping.
func (r *ErrorManager) UpdateErrorEntry(dberr unidb.Error, apierr ErrorObject) {
	r.Lock()
	r.dbToRest[dberr] = apierr
	r.Unlock()
}
