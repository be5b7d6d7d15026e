package boltdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/runsync/internal/client/storage"
)

var time1 = time.Date(2026, 4, 12, 9, 30, 0, 0, time.UTC)

func TestSaveAndGetLastSyncTime(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	// Пока время не сохранено, возвращается нулевое
	ts, err := store.GetLastSyncTime(ctx)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	require.NoError(t, store.SaveLastSyncTime(ctx, time1))

	got, err := store.GetLastSyncTime(ctx)
	require.NoError(t, err)
	assert.True(t, time1.Equal(got))
}

func TestGetLastSyncTime_BucketMissing(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	// Удаляем bucket metadata напрямую
	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.DeleteBucket(bucketMetadata)
	})
	require.NoError(t, err)

	_, err = store.GetLastSyncTime(ctx)
	assert.Error(t, err)
	assert.True(t, storage.IsStorageError(err))
	assert.Contains(t, err.Error(), "metadata bucket not found")
}

func TestSaveLastSyncTime_BucketMissing(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.DeleteBucket(bucketMetadata)
	})
	require.NoError(t, err)

	err = store.SaveLastSyncTime(ctx, time1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "metadata bucket not found")
}
