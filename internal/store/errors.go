package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned (wrapped in *NotFoundError) when a core table or
// build does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidCoreType is returned when a core type cannot name a durable unit.
var ErrInvalidCoreType = errors.New("invalid core type")

// NotFoundError identifies what was missing.
type NotFoundError struct {
	CoreType    string
	MCVersion   string
	CoreVersion string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.CoreVersion != "":
		return fmt.Sprintf("build %s/%s/%s not found", e.CoreType, e.MCVersion, e.CoreVersion)
	case e.MCVersion != "":
		return fmt.Sprintf("core table %s/%s not found", e.CoreType, e.MCVersion)
	default:
		return fmt.Sprintf("core type %s not found", e.CoreType)
	}
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// StorageError reports an I/O failure. The operation that produced it
// committed nothing.
type StorageError struct {
	Op        string
	CoreType  string
	MCVersion string
	Err       error
}

func (e *StorageError) Error() string {
	if e.MCVersion != "" {
		return fmt.Sprintf("storage: %s %s/%s: %v", e.Op, e.CoreType, e.MCVersion, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.CoreType, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
