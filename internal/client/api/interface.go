package api

import (
	"context"

	"github.com/iudanet/runsync/internal/models"
)

//go:generate moq -out clientapi_mock.go . ClientAPI

// ClientAPI is the remote data endpoint, keyed by collection.
// All failures are *RemoteError.
type ClientAPI interface {
	// FetchAll returns every record of the collection
	FetchAll(ctx context.Context, collection string) ([]*models.Record, error)

	// FetchByID returns a KindNotFound error if the record does not exist
	FetchByID(ctx context.Context, collection, id string) (*models.Record, error)

	// Insert creates the record; the returned version carries the server id
	Insert(ctx context.Context, collection string, record *models.Record) (*models.Record, error)

	// Update replaces the record and returns the stored version
	Update(ctx context.Context, collection, id string, record *models.Record) (*models.Record, error)

	// Delete removes the record
	Delete(ctx context.Context, collection, id string) error

	// Health checks that the remote is reachable
	Health(ctx context.Context) error
}
