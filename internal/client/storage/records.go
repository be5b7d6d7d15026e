package storage

import (
	"context"

	"github.com/iudanet/runsync/internal/models"
)

// RecordStorage is the local store: durable records partitioned by collection.
type RecordStorage interface {
	// GetAll returns every record of the collection, in no particular order.
	// Unknown collections yield an empty slice.
	GetAll(ctx context.Context, collection string) ([]*models.Record, error)

	// GetByID retrieves a record
	// Returns ErrRecordNotFound if it doesn't exist
	GetByID(ctx context.Context, collection, id string) (*models.Record, error)

	// Put inserts or replaces the record by its id
	Put(ctx context.Context, collection string, record *models.Record) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Collections lists the names of collections holding records
	Collections(ctx context.Context) ([]string, error)

	// Clear wipes all collections together with shadows, the queue and
	// conflicts. Used for full resets only.
	Clear(ctx context.Context) error
}

// ShadowStorage keeps, per record, the last version known to exist on the
// remote. The reconciliation engine compares it with the current remote
// version to detect divergent edits. Shadows are never shown to callers.
type ShadowStorage interface {
	// GetShadow returns ErrRecordNotFound when no remote version was seen
	GetShadow(ctx context.Context, collection, id string) (*models.Record, error)
	PutShadow(ctx context.Context, collection string, record *models.Record) error
	DeleteShadow(ctx context.Context, collection, id string) error
}
