package storage

import (
	"context"

	"github.com/iudanet/runsync/internal/models"
)

// QueueStorage is the durable, ordered log behind the mutation queue.
// Entries are keyed by their sequence number, so iteration order is
// enqueue order.
type QueueStorage interface {
	// AppendMutation assigns the next sequence number to m and stores it
	AppendMutation(ctx context.Context, m *models.Mutation) (uint64, error)

	// NextMutation returns the first entry with Seq > after
	// Returns ErrEntryNotFound when there is none
	NextMutation(ctx context.Context, after uint64) (*models.Mutation, error)

	// SaveMutation replaces an existing entry (attempt bookkeeping, state)
	SaveMutation(ctx context.Context, m *models.Mutation) error

	// RemoveMutation deletes an entry; absent entries are ignored
	RemoveMutation(ctx context.Context, seq uint64) error

	// ListMutations returns all entries in sequence order
	ListMutations(ctx context.Context) ([]*models.Mutation, error)

	// LastSeq returns the highest sequence number present, 0 if the queue is empty
	LastSeq(ctx context.Context) (uint64, error)

	// RemapRecordID rewrites every entry for (collection, oldID) to newID,
	// payload id included. Returns the number of rewritten entries.
	RemapRecordID(ctx context.Context, collection, oldID, newID string) (int, error)

	// MoveToDeadLetter atomically removes the entry from the queue and keeps
	// it in the dead-letter list for later inspection
	MoveToDeadLetter(ctx context.Context, m *models.Mutation) error

	// ListDeadLetters returns failed entries in sequence order
	ListDeadLetters(ctx context.Context) ([]*models.Mutation, error)

	// PurgeDeadLetters drops all failed entries and returns how many were removed
	PurgeDeadLetters(ctx context.Context) (int, error)
}
