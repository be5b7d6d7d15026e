package storage

import (
	"context"

	"github.com/iudanet/runsync/internal/models"
)

// ConflictStorage holds conflict records awaiting manual resolution,
// namespaced by collection.
type ConflictStorage interface {
	// SaveConflict stores the conflict, replacing one for the same record
	SaveConflict(ctx context.Context, c *models.Conflict) error

	// GetConflict returns ErrConflictNotFound if the record has no conflict
	GetConflict(ctx context.Context, collection, id string) (*models.Conflict, error)

	// ListConflicts returns the conflicts of one collection
	ListConflicts(ctx context.Context, collection string) ([]*models.Conflict, error)

	// DeleteConflict removes a conflict; absent conflicts are ignored
	DeleteConflict(ctx context.Context, collection, id string) error

	// ConflictCollections returns the sorted names of collections with at
	// least one conflict
	ConflictCollections(ctx context.Context) ([]string, error)
}
