package boltdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/runsync/internal/client/storage"
)

var (
	// BoltDB bucket names
	bucketRecords     = []byte("records")      // records/<collection>/<id>
	bucketShadows     = []byte("shadows")      // shadows/<collection>/<id>
	bucketQueue       = []byte("queue")        // queue/<seq>
	bucketDeadLetters = []byte("dead_letters") // dead_letters/<seq>
	bucketConflicts   = []byte("conflicts")    // conflicts/<collection>/<id>
	bucketMetadata    = []byte("metadata")

	topLevelBuckets = [][]byte{
		bucketRecords,
		bucketShadows,
		bucketQueue,
		bucketDeadLetters,
		bucketConflicts,
		bucketMetadata,
	}
)

var _ storage.Store = (*Storage)(nil)

// Storage represents BoltDB storage implementation for client.
// It implements the local store, the queue log and the conflict store;
// every operation runs in its own bbolt transaction.
type Storage struct {
	db *bbolt.DB
}

// DefaultLockTimeout is how long New waits for a file locked by another process
const DefaultLockTimeout = 2 * time.Second

// Option adjusts the bbolt options used by New
type Option func(*bbolt.Options)

// WithLockTimeout sets how long New waits for the file lock
func WithLockTimeout(d time.Duration) Option {
	return func(o *bbolt.Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
// Returns storage.ErrStoreLocked if another process keeps the file open
// longer than the lock timeout.
func New(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	boltOpts := &bbolt.Options{Timeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(boltOpts)
	}

	// Открываем BoltDB; таймаут защищает от зависания, если файл занят другим процессом
	db, err := bbolt.Open(dbPath, 0600, boltOpts)
	if errors.Is(err, bbolt.ErrTimeout) {
		return nil, fmt.Errorf("failed to open boltdb %s: %w", dbPath, storage.ErrStoreLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range topLevelBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// Clear wipes all collections, shadows, the queue, dead letters, conflicts
// and metadata.
func (s *Storage) Clear(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range topLevelBuckets {
			// Удаляем bucket полностью и создаем заново пустой
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return fmt.Errorf("failed to delete %s bucket: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})

	return wrapErr("clear", err)
}

// wrapErr keeps the package sentinel errors intact and turns everything else
// into a StorageError.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrRecordNotFound),
		errors.Is(err, storage.ErrEntryNotFound),
		errors.Is(err, storage.ErrConflictNotFound),
		errors.Is(err, storage.ErrStorageClosed):
		return err
	}
	return storage.NewStorageError(op, err)
}

// nestedBucket returns parent/<name> or nil when either is missing.
func nestedBucket(tx *bbolt.Tx, parent []byte, name string) *bbolt.Bucket {
	p := tx.Bucket(parent)
	if p == nil {
		return nil
	}
	return p.Bucket([]byte(name))
}

// createNestedBucket returns parent/<name>, creating both if needed.
func createNestedBucket(tx *bbolt.Tx, parent []byte, name string) (*bbolt.Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name must not be empty")
	}
	p, err := tx.CreateBucketIfNotExists(parent)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s bucket: %w", parent, err)
	}
	b, err := p.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s/%s bucket: %w", parent, name, err)
	}
	return b, nil
}

// nonEmptyChildren lists nested buckets of parent that hold at least one key.
func nonEmptyChildren(tx *bbolt.Tx, parent []byte) []string {
	p := tx.Bucket(parent)
	if p == nil {
		return nil
	}
	var names []string
	_ = p.ForEach(func(k, v []byte) error {
		if v != nil {
			return nil
		}
		child := p.Bucket(k)
		if child == nil {
			return nil
		}
		if first, _ := child.Cursor().First(); first != nil {
			names = append(names, string(k))
		}
		return nil
	})
	return names
}
