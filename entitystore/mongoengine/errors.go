package mongoengine

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

var ErrNilCollection = errors.New("collection must not be nil")
var ErrUnknownInclude = errors.New("include path has no loader")
var ErrDecodingDocumentFailed = errors.New("decoding document failed")

// mapDBError classifies a driver error. The driver error stays in the chain.
func mapDBError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return errors.Join(entitystore.ErrAlreadyExists, err)
	}

	return errors.Join(entitystore.ErrStorageFailed, err)
}
