package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/runsync/internal/client/storage"
	"github.com/iudanet/runsync/internal/models"
)

// SaveConflict stores a conflict under conflicts/<collection>/<id>
func (s *Storage) SaveConflict(ctx context.Context, c *models.Conflict) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if c.ID == "" {
		return fmt.Errorf("save conflict: %w", models.ErrInvalidRecord)
	}

	data, err := encodeValue(c)
	if err != nil {
		return wrapErr("save conflict", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := createNestedBucket(tx, bucketConflicts, c.Collection)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(c.ID), data)
	})

	return wrapErr("save conflict", err)
}

// GetConflict returns the conflict recorded for the record
func (s *Storage) GetConflict(ctx context.Context, collection, id string) (*models.Conflict, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var c *models.Conflict
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := nestedBucket(tx, bucketConflicts, collection)
		if bucket == nil {
			return storage.ErrConflictNotFound
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrConflictNotFound
		}
		c = &models.Conflict{}
		return decodeValue(data, c)
	})
	if err != nil {
		return nil, wrapErr("get conflict", err)
	}

	return c, nil
}

// ListConflicts returns all conflicts of a collection
func (s *Storage) ListConflicts(ctx context.Context, collection string) ([]*models.Conflict, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	conflicts := make([]*models.Conflict, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := nestedBucket(tx, bucketConflicts, collection)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var c models.Conflict
			if err := decodeValue(v, &c); err != nil {
				return fmt.Errorf("conflict %s/%s: %w", collection, k, err)
			}
			conflicts = append(conflicts, &c)
			return nil
		})
	})
	if err != nil {
		return nil, wrapErr("list conflicts", err)
	}

	return conflicts, nil
}

// DeleteConflict removes a conflict; absent conflicts are ignored
func (s *Storage) DeleteConflict(ctx context.Context, collection, id string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := nestedBucket(tx, bucketConflicts, collection)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(id))
	})

	return wrapErr("delete conflict", err)
}

// ConflictCollections returns collections with at least one conflict, sorted
func (s *Storage) ConflictCollections(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		// bbolt хранит ключи отсортированными, поэтому имена уже упорядочены
		names = nonEmptyChildren(tx, bucketConflicts)
		return nil
	})
	if err != nil {
		return nil, wrapErr("conflict collections", err)
	}

	return names, nil
}
