package storage

import (
	"context"
	"time"
)

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SaveLastSyncTime saves the time of the last completed reconciliation pass
	SaveLastSyncTime(ctx context.Context, t time.Time) error

	// GetLastSyncTime retrieves the time of the last completed pass
	// Returns zero time if no pass has completed yet
	GetLastSyncTime(ctx context.Context) (time.Time, error)
}
