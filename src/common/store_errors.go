package common

import (
	"errors"
	"fmt"
)

// StoreErrType enumerates the kinds of errors returned by stores.
type StoreErrType uint32

const (
	// KeyNotFound is returned when a ticket or flight number is unknown.
	KeyNotFound StoreErrType = iota
	// InvalidRecord is returned when a record fails validation before being
	// written.
	InvalidRecord
	// Closed is returned when the store has been closed.
	Closed
)

// StoreErr is the error type returned by stores. It records the table, the key
// and the kind of error.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error ...
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case InvalidRecord:
		m = "Invalid Record"
	case Closed:
		m = "Closed"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is, or wraps, a StoreErr and that it's code
// matches the provided StoreErr code.
func IsStore(err error, t StoreErrType) bool {
	var storeErr StoreErr
	return errors.As(err, &storeErr) && storeErr.errType == t
}
