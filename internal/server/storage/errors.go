package storage

import "errors"

// Common storage errors
var (
	// ErrRecordNotFound indicates that the collection holds no record with the id
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordExists indicates that an insert used an id that is already taken
	ErrRecordExists = errors.New("record already exists")
)
