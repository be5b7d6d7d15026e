package storage

import (
	"context"

	"github.com/iudanet/runsync/internal/models"
)

// RecordStorage defines persistence of collection records. Records are
// opaque documents; only their id is interpreted.
type RecordStorage interface {
	// ListRecords returns all records of a collection ordered by id
	// Returns empty slice if the collection is empty or unknown
	ListRecords(ctx context.Context, collection string) ([]*models.Record, error)

	// GetRecord retrieves a record
	// Returns ErrRecordNotFound if it doesn't exist
	GetRecord(ctx context.Context, collection, id string) (*models.Record, error)

	// InsertRecord stores a new record
	// Returns ErrRecordExists if the id is taken
	InsertRecord(ctx context.Context, collection string, record *models.Record) error

	// UpdateRecord replaces an existing record
	// Returns ErrRecordNotFound if it doesn't exist
	UpdateRecord(ctx context.Context, collection string, record *models.Record) error

	// DeleteRecord removes a record
	// Returns ErrRecordNotFound if it doesn't exist
	DeleteRecord(ctx context.Context, collection, id string) error
}
