package data

import (
	"errors"

	"github.com/iudanet/runsync/internal/client/storage"
)

var (
	// ErrNotFound indicates that the record exists neither locally nor on the remote
	ErrNotFound = storage.ErrRecordNotFound

	// ErrNoCollection indicates an empty collection name
	ErrNoCollection = errors.New("collection name is required")
)
