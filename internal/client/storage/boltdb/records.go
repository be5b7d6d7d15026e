package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/runsync/internal/client/storage"
	"github.com/iudanet/runsync/internal/models"
)

// GetAll returns every record of the collection
func (s *Storage) GetAll(ctx context.Context, collection string) ([]*models.Record, error) {
	return s.listRecords(bucketRecords, collection, "get all")
}

// GetByID retrieves a record by collection and id
func (s *Storage) GetByID(ctx context.Context, collection, id string) (*models.Record, error) {
	return s.getRecord(bucketRecords, collection, id, "get")
}

// Put inserts or replaces a record by its id
func (s *Storage) Put(ctx context.Context, collection string, record *models.Record) error {
	return s.putRecord(bucketRecords, collection, record, "put")
}

// Delete removes a record. Absent records are ignored.
func (s *Storage) Delete(ctx context.Context, collection, id string) error {
	return s.deleteRecord(bucketRecords, collection, id, "delete")
}

// Collections lists the collections that hold at least one record
func (s *Storage) Collections(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		names = nonEmptyChildren(tx, bucketRecords)
		return nil
	})
	if err != nil {
		return nil, wrapErr("collections", err)
	}
	return names, nil
}

// GetShadow returns the last version of the record seen on the remote
func (s *Storage) GetShadow(ctx context.Context, collection, id string) (*models.Record, error) {
	return s.getRecord(bucketShadows, collection, id, "get shadow")
}

// PutShadow stores the last version of the record seen on the remote
func (s *Storage) PutShadow(ctx context.Context, collection string, record *models.Record) error {
	return s.putRecord(bucketShadows, collection, record, "put shadow")
}

// DeleteShadow forgets the remote version of the record
func (s *Storage) DeleteShadow(ctx context.Context, collection, id string) error {
	return s.deleteRecord(bucketShadows, collection, id, "delete shadow")
}

func (s *Storage) listRecords(parent []byte, collection, op string) ([]*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	records := make([]*models.Record, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := nestedBucket(tx, parent, collection)
		if bucket == nil {
			// Нет bucket - возвращаем пустой массив
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var record models.Record
			if err := decodeValue(v, &record); err != nil {
				return fmt.Errorf("record %s/%s: %w", collection, k, err)
			}
			records = append(records, &record)
			return nil
		})
	})

	if err != nil {
		return nil, wrapErr(op, err)
	}

	return records, nil
}

func (s *Storage) getRecord(parent []byte, collection, id, op string) (*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var record *models.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := nestedBucket(tx, parent, collection)
		if bucket == nil {
			return storage.ErrRecordNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrRecordNotFound
		}

		record = &models.Record{}
		return decodeValue(data, record)
	})

	if err != nil {
		return nil, wrapErr(op, err)
	}

	return record, nil
}

func (s *Storage) putRecord(parent []byte, collection string, record *models.Record, op string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	data, err := encodeValue(record)
	if err != nil {
		return wrapErr(op, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := createNestedBucket(tx, parent, collection)
		if err != nil {
			return err
		}

		// Сохраняем по ключу ID
		return bucket.Put([]byte(record.ID()), data)
	})

	return wrapErr(op, err)
}

func (s *Storage) deleteRecord(parent []byte, collection, id, op string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := nestedBucket(tx, parent, collection)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(id))
	})

	return wrapErr(op, err)
}
