package storage

import (
	"errors"
	"fmt"
)

// Common client storage errors
var (
	// ErrRecordNotFound indicates that a record is absent from the local store
	ErrRecordNotFound = errors.New("record not found")

	// ErrEntryNotFound indicates that a mutation queue entry was not found
	ErrEntryNotFound = errors.New("queue entry not found")

	// ErrConflictNotFound indicates that no conflict exists for the record
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrStoreLocked indicates that another process holds the database file
	ErrStoreLocked = errors.New("database is in use by another process")
)

// StorageError wraps a failure of the underlying storage engine (disk full,
// corrupted file, encoding failure). It is fatal for the attempted operation
// only; callers may keep using the store.
type StorageError struct {
	Err error
	Op  string
}

// NewStorageError wraps err as a StorageError for operation op
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is (or wraps) a StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
