package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/runsync/internal/client/storage"
	"github.com/iudanet/runsync/internal/models"
)

// createTestStorage создает временное BoltDB хранилище, закрываемое по окончании теста
func createTestStorage(t *testing.T) *Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "runsync_test.db")
	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func rec(id string, kv ...any) *models.Record {
	r := models.NewRecord()
	r.SetID(id)
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

func TestNew_Success(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "testdb.db")

	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer func() {
		require.NoError(t, store.Close())
	}()

	// Проверяем что файл БД действительно создан
	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	// Проверяем, что бакеты существуют
	err = store.db.View(func(tx *bbolt.Tx) error {
		for _, b := range topLevelBuckets {
			if tx.Bucket(b) == nil {
				return os.ErrNotExist
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	// Директория вместо файла не может быть открыта как БД
	store, err := New(context.Background(), t.TempDir())
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNew_Locked(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "testdb.db")

	holder, err := New(ctx, dbPath)
	require.NoError(t, err)

	// Пока файл открыт, второе открытие ждет таймаут и сообщает о блокировке
	store, err := New(ctx, dbPath, WithLockTimeout(50*time.Millisecond))
	require.ErrorIs(t, err, storage.ErrStoreLocked)
	assert.Nil(t, store)

	require.NoError(t, holder.Close())
	store, err = New(ctx, dbPath, WithLockTimeout(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "testdb.db")

	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	assert.Nil(t, store.db)

	// Второй вызов Close не должен падать
	assert.NoError(t, store.Close())
}

func TestClosedStorage(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "testdb.db")

	store, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.GetAll(ctx, "registrations")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	err = store.Put(ctx, "registrations", rec("r1"))
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	_, err = store.AppendMutation(ctx, &models.Mutation{})
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	_, err = store.ConflictCollections(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	assert.ErrorIs(t, store.Clear(ctx), storage.ErrStorageClosed)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "testdb.db")

	store, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "registrations", rec("r1", "name", "A")))
	_, err = store.AppendMutation(ctx, &models.Mutation{
		Action: models.ActionCreate, Collection: "registrations", RecordID: "r1",
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = New(ctx, dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	got, err := store.GetByID(ctx, "registrations", "r1")
	require.NoError(t, err)
	assert.True(t, rec("r1", "name", "A").Equal(got))

	entries, err := store.ListMutations(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(1), entries[0].Seq)
}

func TestInitBuckets_CreatesBuckets(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "testdb.db")

	// Открываем БД вручную без создания бакетов
	db, err := bbolt.Open(dbPath, 0600, nil)
	require.NoError(t, err)
	defer db.Close()

	store := &Storage{db: db}
	require.NoError(t, store.initBuckets())

	err = db.View(func(tx *bbolt.Tx) error {
		for _, b := range topLevelBuckets {
			if tx.Bucket(b) == nil {
				return os.ErrNotExist
			}
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.Put(ctx, "registrations", rec("r1")))
	require.NoError(t, store.PutShadow(ctx, "registrations", rec("r1")))
	_, err := store.AppendMutation(ctx, &models.Mutation{Action: models.ActionUpdate, Collection: "registrations", RecordID: "r1"})
	require.NoError(t, err)
	require.NoError(t, store.SaveConflict(ctx, &models.Conflict{ID: "r1", Collection: "registrations"}))
	require.NoError(t, store.SaveLastSyncTime(ctx, time1))

	require.NoError(t, store.Clear(ctx))

	records, err := store.GetAll(ctx, "registrations")
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = store.GetShadow(ctx, "registrations", "r1")
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)

	entries, err := store.ListMutations(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	names, err := store.ConflictCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	ts, err := store.GetLastSyncTime(ctx)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())
}
