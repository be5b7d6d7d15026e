package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/runsync/internal/client/storage"
	"github.com/iudanet/runsync/internal/models"
)

// AppendMutation assigns the next sequence number to m and stores it.
// Sequence numbers come from the bucket sequence, so they never repeat even
// after entries are removed.
func (s *Storage) AppendMutation(ctx context.Context, m *models.Mutation) (uint64, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var seq uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}

		next, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		entry := m.Clone()
		entry.Seq = next
		if entry.State == "" {
			entry.State = models.MutationPending
		}
		data, err := encodeValue(entry)
		if err != nil {
			return err
		}
		if err := bucket.Put(seqKey(next), data); err != nil {
			return fmt.Errorf("failed to save entry: %w", err)
		}

		seq = next
		return nil
	})
	if err != nil {
		return 0, wrapErr("append mutation", err)
	}

	m.Seq = seq
	if m.State == "" {
		m.State = models.MutationPending
	}
	return seq, nil
}

// NextMutation returns the first entry with Seq > after
func (s *Storage) NextMutation(ctx context.Context, after uint64) (*models.Mutation, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var entry *models.Mutation
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return storage.ErrEntryNotFound
		}

		k, v := bucket.Cursor().Seek(seqKey(after + 1))
		if k == nil {
			return storage.ErrEntryNotFound
		}

		entry = &models.Mutation{}
		return decodeValue(v, entry)
	})
	if err != nil {
		return nil, wrapErr("next mutation", err)
	}

	return entry, nil
}

// SaveMutation replaces an existing queue entry
// Returns ErrEntryNotFound if the entry was removed meanwhile
func (s *Storage) SaveMutation(ctx context.Context, m *models.Mutation) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := encodeValue(m)
	if err != nil {
		return wrapErr("save mutation", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil || bucket.Get(seqKey(m.Seq)) == nil {
			return storage.ErrEntryNotFound
		}
		return bucket.Put(seqKey(m.Seq), data)
	})

	return wrapErr("save mutation", err)
}

// RemoveMutation deletes a queue entry; absent entries are ignored
func (s *Storage) RemoveMutation(ctx context.Context, seq uint64) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(seqKey(seq))
	})

	return wrapErr("remove mutation", err)
}

// ListMutations returns all queue entries in sequence order
func (s *Storage) ListMutations(ctx context.Context) ([]*models.Mutation, error) {
	return s.listMutations(bucketQueue, "list mutations")
}

// LastSeq returns the highest sequence number in the queue, 0 if empty
func (s *Storage) LastSeq(ctx context.Context) (uint64, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var last uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return nil
		}
		if k, _ := bucket.Cursor().Last(); k != nil {
			last = keySeq(k)
		}
		return nil
	})
	if err != nil {
		return 0, wrapErr("last seq", err)
	}

	return last, nil
}

// RemapRecordID rewrites every entry for (collection, oldID) to newID
func (s *Storage) RemapRecordID(ctx context.Context, collection, oldID, newID string) (int, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	remapped := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return nil
		}

		// Собираем изменения отдельно: модифицировать bucket во время ForEach нельзя
		updates := make(map[uint64][]byte)
		err := bucket.ForEach(func(k, v []byte) error {
			var entry models.Mutation
			if err := decodeValue(v, &entry); err != nil {
				return fmt.Errorf("entry %d: %w", keySeq(k), err)
			}
			if entry.Collection != collection || entry.RecordID != oldID {
				return nil
			}

			entry.RecordID = newID
			if entry.Payload != nil && entry.Payload.ID() == oldID {
				entry.Payload.SetID(newID)
			}
			data, err := encodeValue(&entry)
			if err != nil {
				return err
			}
			updates[keySeq(k)] = data
			return nil
		})
		if err != nil {
			return err
		}

		for seq, data := range updates {
			if err := bucket.Put(seqKey(seq), data); err != nil {
				return fmt.Errorf("failed to save entry %d: %w", seq, err)
			}
		}
		remapped = len(updates)
		return nil
	})
	if err != nil {
		return 0, wrapErr("remap record id", err)
	}

	return remapped, nil
}

// MoveToDeadLetter removes the entry from the queue and stores it in the
// dead-letter bucket in a single transaction
func (s *Storage) MoveToDeadLetter(ctx context.Context, m *models.Mutation) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := encodeValue(m)
	if err != nil {
		return wrapErr("move to dead letter", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		queue := tx.Bucket(bucketQueue)
		dead := tx.Bucket(bucketDeadLetters)
		if queue == nil || dead == nil {
			return fmt.Errorf("queue buckets not found")
		}
		if err := queue.Delete(seqKey(m.Seq)); err != nil {
			return fmt.Errorf("failed to remove entry: %w", err)
		}
		return dead.Put(seqKey(m.Seq), data)
	})

	return wrapErr("move to dead letter", err)
}

// ListDeadLetters returns failed entries in sequence order
func (s *Storage) ListDeadLetters(ctx context.Context) ([]*models.Mutation, error) {
	return s.listMutations(bucketDeadLetters, "list dead letters")
}

// PurgeDeadLetters drops all failed entries
func (s *Storage) PurgeDeadLetters(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	purged := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketDeadLetters); b != nil {
			purged = b.Stats().KeyN
		}
		if err := tx.DeleteBucket(bucketDeadLetters); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("failed to delete bucket: %w", err)
		}
		_, err := tx.CreateBucket(bucketDeadLetters)
		return err
	})
	if err != nil {
		return 0, wrapErr("purge dead letters", err)
	}

	return purged, nil
}

func (s *Storage) listMutations(name []byte, op string) ([]*models.Mutation, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	entries := make([]*models.Mutation, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(name)
		if bucket == nil {
			return nil
		}

		// ForEach обходит ключи в порядке байтов, т.е. в порядке seq
		return bucket.ForEach(func(k, v []byte) error {
			var entry models.Mutation
			if err := decodeValue(v, &entry); err != nil {
				return fmt.Errorf("entry %d: %w", keySeq(k), err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}

	return entries, nil
}
