package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/runsync/internal/client/storage"
)

const (
	keyLastSyncTime = "last_sync_time"
)

// SaveLastSyncTime saves the time of the last completed reconciliation pass
func (s *Storage) SaveLastSyncTime(ctx context.Context, t time.Time) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		// Конвертируем время в bytes (наносекунды Unix)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))

		if err := bucket.Put([]byte(keyLastSyncTime), buf); err != nil {
			return fmt.Errorf("failed to save last sync time: %w", err)
		}

		return nil
	})

	return wrapErr("save last sync time", err)
}

// GetLastSyncTime retrieves the time of the last completed pass
// Returns zero time if no pass has completed yet
func (s *Storage) GetLastSyncTime(ctx context.Context) (time.Time, error) {
	if s.db == nil {
		return time.Time{}, storage.ErrStorageClosed
	}

	var t time.Time

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		buf := bucket.Get([]byte(keyLastSyncTime))
		if buf == nil {
			// Синхронизации еще не было
			return nil
		}

		t = time.Unix(0, int64(binary.BigEndian.Uint64(buf)))
		return nil
	})

	if err != nil {
		return time.Time{}, wrapErr("get last sync time", err)
	}

	return t, nil
}
