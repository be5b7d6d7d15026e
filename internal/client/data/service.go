package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/iudanet/runsync/internal/client/api"
	"github.com/iudanet/runsync/internal/client/queue"
	"github.com/iudanet/runsync/internal/client/storage"
	syncengine "github.com/iudanet/runsync/internal/client/sync"
	"github.com/iudanet/runsync/internal/models"
)

// Service is the CRUD surface used by callers. Reads and writes go through
// the remote when online and through the local store otherwise; callers
// always see their own writes.
type Service interface {
	List(ctx context.Context, collection string) ([]*models.Record, error)
	Get(ctx context.Context, collection, id string) (*models.Record, error)
	Create(ctx context.Context, collection string, partial *models.Record) (*models.Record, error)
	Update(ctx context.Context, collection, id string, partial *models.Record) (*models.Record, error)
	Remove(ctx context.Context, collection, id string) (bool, error)
}

// Store is the local persistence used by the service
type Store interface {
	storage.RecordStorage
	storage.ShadowStorage
}

// Applier applies a queued entry right away; satisfied by *syncengine.Engine
type Applier interface {
	ApplyNow(ctx context.Context, seq uint64) (queue.Result, error)
}

// Connectivity reports whether the remote is reachable
type Connectivity interface {
	Online() bool
}

// Notifier is told about every local change; satisfied by the coordinator
type Notifier interface {
	Refresh()
}

type service struct {
	remote        api.ClientAPI
	store         Store
	queue         *queue.Queue
	applier       Applier
	conn          Connectivity
	notifier      Notifier
	logger        *slog.Logger
	newID         func() string
	remoteTimeout time.Duration
}

// Option configures the service
type Option func(*service)

// WithNotifier sets the receiver of local change notifications
func WithNotifier(n Notifier) Option {
	return func(s *service) {
		s.notifier = n
	}
}

// WithRemoteTimeout bounds each direct remote call
func WithRemoteTimeout(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.remoteTimeout = d
		}
	}
}

// WithIDGenerator overrides the generator of temporary ids
func WithIDGenerator(gen func() string) Option {
	return func(s *service) {
		s.newID = gen
	}
}

// NewService creates the collection service
func NewService(remote api.ClientAPI, store Store, q *queue.Queue, applier Applier, conn Connectivity, logger *slog.Logger, opts ...Option) Service {
	s := &service{
		remote:        remote,
		store:         store,
		queue:         q,
		applier:       applier,
		conn:          conn,
		logger:        logger,
		newID:         newTempID,
		remoteTimeout: syncengine.DefaultRemoteTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newTempID returns a local id; ULIDs sort by creation time
func newTempID() string {
	return models.TempIDPrefix + strings.ToLower(ulid.Make().String())
}

// List returns the records of a collection. Online the remote copy is
// mirrored into the local store first; records with queued changes keep
// their local version.
func (s *service) List(ctx context.Context, collection string) ([]*models.Record, error) {
	if collection == "" {
		return nil, ErrNoCollection
	}

	if s.conn.Online() {
		var remote []*models.Record
		err := s.call(ctx, func(ctx context.Context) error {
			var err error
			remote, err = s.remote.FetchAll(ctx, collection)
			return err
		})
		if err == nil {
			records, err := s.mirrorAll(ctx, collection, remote)
			if err == nil {
				return records, nil
			}
			s.logger.Warn("Failed to mirror remote records", "collection", collection, "error", err)
		} else {
			s.logger.Warn("Remote list failed, using local copy", "collection", collection, "error", err)
		}
	}

	records, err := s.store.GetAll(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	sortByID(records)
	return records, nil
}

func (s *service) mirrorAll(ctx context.Context, collection string, remote []*models.Record) ([]*models.Record, error) {
	pending, err := s.queue.PendingIDs(ctx, collection)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(remote))
	records := make([]*models.Record, 0, len(remote))
	for _, r := range remote {
		if r.Validate() != nil {
			s.logger.Warn("Skipping remote record without id", "collection", collection)
			continue
		}
		id := r.ID()
		seen[id] = struct{}{}

		if err := s.store.PutShadow(ctx, collection, r); err != nil {
			return nil, err
		}
		if _, ok := pending[id]; ok {
			// Локальные изменения еще не отправлены: показываем их
			local, err := s.store.GetByID(ctx, collection, id)
			if err == nil {
				records = append(records, local)
			} else if !errors.Is(err, storage.ErrRecordNotFound) {
				return nil, err
			}
			continue
		}
		if err := s.store.Put(ctx, collection, r); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	local, err := s.store.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	for _, r := range local {
		id := r.ID()
		if _, ok := seen[id]; ok {
			continue
		}
		if _, ok := pending[id]; ok {
			records = append(records, r)
			continue
		}
		// Запись удалена на сервере и локальных изменений нет
		if err := s.forget(ctx, collection, id); err != nil {
			return nil, err
		}
	}

	sortByID(records)
	return records, nil
}

// Get returns a record or ErrNotFound
func (s *service) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	if collection == "" {
		return nil, ErrNoCollection
	}

	if s.conn.Online() && !models.IsTempID(id) {
		r, err := s.fetch(ctx, collection, id)
		switch {
		case err == nil:
			return s.mirrorOne(ctx, collection, r)
		case api.IsNotFound(err):
			return s.goneRemotely(ctx, collection, id)
		default:
			s.logger.Warn("Remote get failed, using local copy", "collection", collection, "id", id, "error", err)
		}
	}

	return s.local(ctx, collection, id)
}

func (s *service) mirrorOne(ctx context.Context, collection string, r *models.Record) (*models.Record, error) {
	id := r.ID()
	if err := s.store.PutShadow(ctx, collection, r); err != nil {
		return nil, err
	}
	pending, err := s.queue.Pending(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if pending {
		// Ожидающее удаление тоже скрывает запись
		return s.local(ctx, collection, id)
	}
	if err := s.store.Put(ctx, collection, r); err != nil {
		return nil, err
	}
	return r, nil
}

// goneRemotely drops the local copy of a record the remote no longer has,
// unless local changes are still queued for it
func (s *service) goneRemotely(ctx context.Context, collection, id string) (*models.Record, error) {
	pending, err := s.queue.Pending(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if pending {
		return s.local(ctx, collection, id)
	}
	if err := s.forget(ctx, collection, id); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

func (s *service) forget(ctx context.Context, collection, id string) error {
	if err := s.store.Delete(ctx, collection, id); err != nil {
		return err
	}
	return s.store.DeleteShadow(ctx, collection, id)
}

// Create stores a new record. Online the remote assigns the id; offline, or
// when the remote is temporarily unavailable, the record gets a temporary id
// and is queued.
func (s *service) Create(ctx context.Context, collection string, partial *models.Record) (*models.Record, error) {
	if collection == "" {
		return nil, ErrNoCollection
	}
	record := partial.Clone()
	if record == nil {
		record = models.NewRecord()
	}

	if s.conn.Online() {
		body := record.Clone()
		if models.IsTempID(body.ID()) {
			body.Delete(models.FieldID)
		}

		var stored *models.Record
		err := s.call(ctx, func(ctx context.Context) error {
			var err error
			stored, err = s.remote.Insert(ctx, collection, body)
			return err
		})
		if err == nil {
			if err := stored.Validate(); err != nil {
				return nil, fmt.Errorf("remote insert returned no id: %w", err)
			}
			if err := s.store.PutShadow(ctx, collection, stored); err != nil {
				return nil, err
			}
			if err := s.store.Put(ctx, collection, stored); err != nil {
				return nil, err
			}
			s.notify()
			return stored, nil
		}
		if !api.IsTransient(err) {
			return nil, fmt.Errorf("create in %s: %w", collection, err)
		}
		s.logger.Warn("Remote create failed, queued for sync", "collection", collection, "error", err)
	}

	return s.createOffline(ctx, collection, record)
}

func (s *service) createOffline(ctx context.Context, collection string, record *models.Record) (*models.Record, error) {
	if record.ID() == "" {
		record.SetID(s.newID())
	}
	if err := s.store.Put(ctx, collection, record); err != nil {
		return nil, err
	}
	if _, err := s.queue.Enqueue(ctx, models.ActionCreate, collection, record); err != nil {
		if derr := s.store.Delete(ctx, collection, record.ID()); derr != nil {
			s.logger.Error("Failed to roll back local create", "collection", collection, "id", record.ID(), "error", derr)
		}
		return nil, err
	}

	s.notify()
	return record.Clone(), nil
}

// Update writes partial fields on top of the current version. Online the
// change is applied to the remote right away (conflict handling included)
// unless earlier changes for the record are still queued.
func (s *service) Update(ctx context.Context, collection, id string, partial *models.Record) (*models.Record, error) {
	if collection == "" {
		return nil, ErrNoCollection
	}

	current, err := s.current(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	patch := partial.Clone()
	if patch == nil {
		patch = models.NewRecord()
	}
	patch.Delete(models.FieldID)
	next := current.Overlay(patch, nil)

	earlier, err := s.queue.Pending(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, collection, next); err != nil {
		return nil, err
	}
	seq, err := s.queue.Enqueue(ctx, models.ActionUpdate, collection, next, queue.WithChanged(patch.Keys()))
	if err != nil {
		if perr := s.store.Put(ctx, collection, current); perr != nil {
			s.logger.Error("Failed to roll back local update", "collection", collection, "id", id, "error", perr)
		}
		return nil, err
	}
	s.notify()

	if !s.conn.Online() || earlier || models.IsTempID(id) {
		return next, nil
	}

	log := s.logger.With("collection", collection, "id", id, "seq", seq)
	res, err := s.applier.ApplyNow(ctx, seq)
	defer s.notify()

	switch {
	case errors.Is(err, syncengine.ErrBusy):
		log.Debug("Sync in progress, update stays queued")
		return next, nil
	case res == queue.Applied:
		return s.local(ctx, collection, id)
	case res == queue.Conflicted:
		log.Warn("Update conflicts with the remote version, waiting for resolution")
		return next, nil
	case res == queue.Failed && api.IsNotFound(err):
		if ferr := s.forget(ctx, collection, id); ferr != nil {
			log.Error("Failed to remove local record", "error", ferr)
		}
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	case res == queue.Failed:
		s.restore(ctx, collection, id)
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	default:
		log.Warn("Remote update failed, queued for sync", "error", err)
		return next, nil
	}
}

// current returns the version an update builds on: local first, remote if
// the record was never fetched
func (s *service) current(ctx context.Context, collection, id string) (*models.Record, error) {
	r, err := s.store.GetByID(ctx, collection, id)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, storage.ErrRecordNotFound) {
		return nil, err
	}
	if !s.conn.Online() || models.IsTempID(id) {
		return nil, ErrNotFound
	}

	r, err = s.fetch(ctx, collection, id)
	if api.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if err := s.store.PutShadow(ctx, collection, r); err != nil {
		return nil, err
	}
	return r, nil
}

// restore puts back the last remote version after a rejected online update
func (s *service) restore(ctx context.Context, collection, id string) {
	shadow, err := s.store.GetShadow(ctx, collection, id)
	if errors.Is(err, storage.ErrRecordNotFound) {
		err = s.store.Delete(ctx, collection, id)
	} else if err == nil {
		err = s.store.Put(ctx, collection, shadow)
	}
	if err != nil {
		s.logger.Error("Failed to restore local record", "collection", collection, "id", id, "error", err)
	}
}

// Remove deletes a record. Returns false if there was nothing to delete.
func (s *service) Remove(ctx context.Context, collection, id string) (bool, error) {
	if collection == "" {
		return false, ErrNoCollection
	}

	_, err := s.store.GetByID(ctx, collection, id)
	if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
		return false, err
	}
	existed := err == nil

	if models.IsTempID(id) {
		// Запись не доходила до сервера: достаточно забыть ее изменения
		n, err := s.queue.DiscardRecord(ctx, collection, id)
		if err != nil {
			return false, err
		}
		if err := s.store.Delete(ctx, collection, id); err != nil {
			return false, err
		}
		s.notify()
		return existed || n > 0, nil
	}

	pending, err := s.queue.Pending(ctx, collection, id)
	if err != nil {
		return false, err
	}

	if s.conn.Online() && !pending {
		err := s.call(ctx, func(ctx context.Context) error {
			return s.remote.Delete(ctx, collection, id)
		})
		switch {
		case err == nil || api.IsNotFound(err):
			if ferr := s.forget(ctx, collection, id); ferr != nil {
				return false, ferr
			}
			s.notify()
			return existed || err == nil, nil
		case api.IsTransient(err):
			s.logger.Warn("Remote delete failed, queued for sync", "collection", collection, "id", id, "error", err)
		default:
			return false, fmt.Errorf("delete %s/%s: %w", collection, id, err)
		}
	}

	if !existed && !pending {
		return false, nil
	}
	if err := s.store.Delete(ctx, collection, id); err != nil {
		return false, err
	}
	tombstone := models.NewRecord()
	tombstone.SetID(id)
	if _, err := s.queue.Enqueue(ctx, models.ActionDelete, collection, tombstone); err != nil {
		return false, err
	}
	s.notify()
	return true, nil
}

func (s *service) local(ctx context.Context, collection, id string) (*models.Record, error) {
	r, err := s.store.GetByID(ctx, collection, id)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return r, nil
}

func (s *service) fetch(ctx context.Context, collection, id string) (*models.Record, error) {
	var r *models.Record
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.remote.FetchByID(ctx, collection, id)
		return err
	})
	return r, err
}

func (s *service) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *service) notify() {
	if s.notifier != nil {
		s.notifier.Refresh()
	}
}

func sortByID(records []*models.Record) {
	slices.SortFunc(records, func(a, b *models.Record) int {
		return strings.Compare(a.ID(), b.ID())
	})
}
