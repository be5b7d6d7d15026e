package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/runsync/internal/client/api"
	"github.com/iudanet/runsync/internal/client/queue"
	"github.com/iudanet/runsync/internal/client/storage"
	"github.com/iudanet/runsync/internal/models"
)

// DefaultRemoteTimeout bounds every remote call made during reconciliation
const DefaultRemoteTimeout = 15 * time.Second

// Store is the local persistence used by the engine
type Store interface {
	storage.RecordStorage
	storage.ShadowStorage
	storage.ConflictStorage
	storage.MetadataStorage
}

// Engine drains the mutation queue against the remote endpoint and writes
// the outcome back to the local store.
type Engine struct {
	remote        api.ClientAPI
	store         Store
	queue         *queue.Queue
	logger        *slog.Logger
	now           func() time.Time
	trigger       func() bool
	busy          chan struct{} // занят, пока идет проход или прямое применение
	policies      Policies
	remoteTimeout time.Duration
}

// Option configures an Engine
type Option func(*Engine)

// WithPolicies sets per-collection conflict policies
func WithPolicies(p Policies) Option {
	return func(e *Engine) {
		e.policies = p
	}
}

// WithRemoteTimeout bounds each remote call
func WithRemoteTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.remoteTimeout = d
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a reconciliation engine
func NewEngine(remote api.ClientAPI, store Store, q *queue.Queue, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		remote:        remote,
		store:         store,
		queue:         q,
		logger:        logger,
		now:           time.Now,
		busy:          make(chan struct{}, 1),
		policies:      ReferencePolicies(),
		remoteTimeout: DefaultRemoteTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetTrigger installs the function used to request a reconciliation pass
// after a manual conflict resolution, typically Coordinator.SyncNow.
func (e *Engine) SetTrigger(trigger func() bool) {
	e.trigger = trigger
}

// Policies returns the configured conflict policies
func (e *Engine) Policies() Policies {
	return e.policies
}

// PassResult contains reconciliation pass results
type PassResult struct {
	StartedAt time.Time
	queue.Stats
	Duration time.Duration
}

// Reconcile runs one reconciliation pass over the entries queued when it
// starts. Returns ErrBusy if another pass or direct application is running.
func (e *Engine) Reconcile(ctx context.Context) (*PassResult, error) {
	if !e.acquire() {
		return nil, ErrBusy
	}
	defer e.release()

	start := e.now()
	e.logger.Info("Starting reconciliation pass")

	stats, err := e.queue.Drain(ctx, e.process)
	result := &PassResult{Stats: stats, StartedAt: start, Duration: e.now().Sub(start)}
	if err != nil {
		e.logger.Error("Reconciliation pass aborted", "error", err, "applied", stats.Applied)
		return result, fmt.Errorf("reconciliation pass failed: %w", err)
	}

	if err := e.store.SaveLastSyncTime(ctx, e.now()); err != nil {
		e.logger.Warn("Failed to save last sync time", "error", err)
	}

	e.logger.Info("Reconciliation pass completed",
		"applied", stats.Applied,
		"retried", stats.Retried,
		"conflicted", stats.Conflicted,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"duration", result.Duration)

	return result, nil
}

// ApplyNow processes a single queued entry right away. Used by the online
// write path so callers get the remote outcome synchronously. If a pass is
// running the entry stays queued and ErrBusy is returned.
func (e *Engine) ApplyNow(ctx context.Context, seq uint64) (queue.Result, error) {
	if !e.acquire() {
		return queue.Retry, ErrBusy
	}
	defer e.release()

	return e.queue.ProcessEntry(ctx, seq, e.process)
}

func (e *Engine) acquire() bool {
	select {
	case e.busy <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *Engine) release() {
	<-e.busy
}

// Backlog summarises the state the sync status is computed from
type Backlog struct {
	LastSyncTime        time.Time
	ConflictCollections []string
	Pending             int
	Failed              int
}

// Backlog reads pending, failed and conflicted counts from the stores
func (e *Engine) Backlog(ctx context.Context) (Backlog, error) {
	var b Backlog
	var err error

	if b.Pending, err = e.queue.Count(ctx); err != nil {
		return b, err
	}
	failed, err := e.queue.Failed(ctx)
	if err != nil {
		return b, err
	}
	b.Failed = len(failed)

	if b.ConflictCollections, err = e.store.ConflictCollections(ctx); err != nil {
		return b, fmt.Errorf("failed to read conflict collections: %w", err)
	}
	if b.LastSyncTime, err = e.store.GetLastSyncTime(ctx); err != nil {
		return b, fmt.Errorf("failed to read last sync time: %w", err)
	}
	return b, nil
}

func (e *Engine) process(ctx context.Context, m *models.Mutation) (queue.Result, error) {
	switch m.Action {
	case models.ActionCreate:
		return e.applyCreate(ctx, m)
	case models.ActionDelete:
		return e.applyDelete(ctx, m)
	case models.ActionUpdate:
		return e.applyUpdate(ctx, m)
	default:
		return queue.Failed, fmt.Errorf("unknown action %q", m.Action)
	}
}

// applyCreate inserts the record and replaces the local placeholder with the
// server version. Later entries for the placeholder are pointed at the
// server id.
func (e *Engine) applyCreate(ctx context.Context, m *models.Mutation) (queue.Result, error) {
	body := m.Payload.Clone()
	if models.IsTempID(body.ID()) {
		body.Delete(models.FieldID)
	}

	var stored *models.Record
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		stored, err = e.remote.Insert(ctx, m.Collection, body)
		return err
	})
	if err != nil {
		return remoteResult(err), err
	}
	if err := stored.Validate(); err != nil {
		return queue.Failed, fmt.Errorf("remote insert returned no id: %w", err)
	}

	oldID, newID := m.RecordID, stored.ID()
	if newID != oldID {
		if _, err := e.queue.RemapRecordID(ctx, m.Collection, oldID, newID); err != nil {
			return queue.Retry, fmt.Errorf("local write-back: %w", err)
		}
	}

	local := stored
	later, err := e.queue.PendingAfter(ctx, m.Collection, newID, m.Seq)
	if err != nil {
		return queue.Retry, fmt.Errorf("local write-back: %w", err)
	}
	if later {
		// Более поздние изменения еще в очереди: сохраняем локальное содержимое под новым id
		if cur, err := e.store.GetByID(ctx, m.Collection, oldID); err == nil {
			local = stored.Overlay(cur, nil)
		}
	}

	if err := e.store.PutShadow(ctx, m.Collection, stored); err != nil {
		return queue.Retry, fmt.Errorf("local write-back: %w", err)
	}
	if err := e.store.Put(ctx, m.Collection, local); err != nil {
		return queue.Retry, fmt.Errorf("local write-back: %w", err)
	}
	if newID != oldID {
		if err := e.store.Delete(ctx, m.Collection, oldID); err != nil {
			return queue.Retry, fmt.Errorf("local write-back: %w", err)
		}
	}

	e.logger.Info("Record created on remote", "collection", m.Collection, "temp_id", oldID, "id", newID)
	return queue.Applied, nil
}

// applyDelete removes the record remotely. A record that is already gone
// counts as deleted.
func (e *Engine) applyDelete(ctx context.Context, m *models.Mutation) (queue.Result, error) {
	err := e.call(ctx, func(ctx context.Context) error {
		return e.remote.Delete(ctx, m.Collection, m.RecordID)
	})
	if err != nil && !api.IsNotFound(err) {
		return remoteResult(err), err
	}

	if err := e.store.DeleteShadow(ctx, m.Collection, m.RecordID); err != nil {
		return queue.Retry, fmt.Errorf("local write-back: %w", err)
	}
	later, err := e.queue.PendingAfter(ctx, m.Collection, m.RecordID, m.Seq)
	if err != nil {
		return queue.Retry, fmt.Errorf("local write-back: %w", err)
	}
	if !later {
		if err := e.store.Delete(ctx, m.Collection, m.RecordID); err != nil {
			return queue.Retry, fmt.Errorf("local write-back: %w", err)
		}
	}

	return queue.Applied, nil
}

// applyUpdate compares the remote version with the last one the client saw.
// If nobody else changed the record the local version is pushed as is;
// otherwise the collection policy decides.
func (e *Engine) applyUpdate(ctx context.Context, m *models.Mutation) (queue.Result, error) {
	log := e.logger.With("collection", m.Collection, "id", m.RecordID, "seq", m.Seq)
	policy := e.policies.For(m.Collection)

	var remote *models.Record
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		remote, err = e.remote.FetchByID(ctx, m.Collection, m.RecordID)
		return err
	})
	if api.IsNotFound(err) {
		if policy.Strategy == models.StrategyServerWins {
			// Сервер авторитетен: запись удалена там, удаляем и локальную копию
			if derr := e.forget(ctx, m); derr != nil {
				log.Warn("Failed to remove local mirror", "error", derr)
			}
		}
		return queue.Failed, fmt.Errorf("record no longer exists on remote: %w", err)
	}
	if err != nil {
		return remoteResult(err), err
	}

	local := m.Payload
	if remote.Equal(local) {
		// Уже совпадает, отправлять нечего
		return e.mirror(ctx, m, remote)
	}

	shadow, err := e.store.GetShadow(ctx, m.Collection, m.RecordID)
	if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
		return queue.Retry, fmt.Errorf("failed to read shadow: %w", err)
	}
	d := Divergence{Local: local, Remote: remote, Shadow: shadow, Changed: m.Changed}

	var decision Decision
	switch {
	case m.Force:
		decision = ClientWins{}.Resolve(d)
	case shadow != nil && remote.Equal(shadow):
		decision = Decision{Record: local.Clone(), Push: true}
	default:
		decision = ResolverFor(policy).Resolve(d)
		log.Info("Divergent update", "strategy", policy.Strategy)
	}

	if decision.Manual {
		c := &models.Conflict{
			ID:         m.RecordID,
			Collection: m.Collection,
			Local:      local.Clone(),
			Remote:     remote,
			DetectedAt: e.now().UTC(),
			Seq:        m.Seq,
		}
		if err := e.store.SaveConflict(ctx, c); err != nil {
			return queue.Retry, fmt.Errorf("failed to save conflict: %w", err)
		}
		log.Warn("Conflict recorded for manual resolution")
		return queue.Conflicted, nil
	}

	if !decision.Push {
		return e.mirror(ctx, m, decision.Record)
	}

	var stored *models.Record
	err = e.call(ctx, func(ctx context.Context) error {
		var err error
		stored, err = e.remote.Update(ctx, m.Collection, m.RecordID, decision.Record)
		return err
	})
	if err != nil {
		return remoteResult(err), err
	}
	if stored == nil || stored.Validate() != nil {
		stored = decision.Record
	}

	return e.mirror(ctx, m, stored)
}

// mirror records rec as the known remote version and, unless newer local
// edits are still queued, as the local version too.
func (e *Engine) mirror(ctx context.Context, m *models.Mutation, rec *models.Record) (queue.Result, error) {
	if err := e.store.PutShadow(ctx, m.Collection, rec); err != nil {
		return queue.Retry, fmt.Errorf("local write-back: %w", err)
	}

	later, err := e.queue.PendingAfter(ctx, m.Collection, m.RecordID, m.Seq)
	if err != nil {
		return queue.Retry, fmt.Errorf("local write-back: %w", err)
	}
	if later {
		return queue.Applied, nil
	}

	if err := e.store.Put(ctx, m.Collection, rec); err != nil {
		return queue.Retry, fmt.Errorf("local write-back: %w", err)
	}
	return queue.Applied, nil
}

func (e *Engine) forget(ctx context.Context, m *models.Mutation) error {
	if err := e.store.DeleteShadow(ctx, m.Collection, m.RecordID); err != nil {
		return err
	}
	return e.store.Delete(ctx, m.Collection, m.RecordID)
}

// call runs fn under the per-call timeout. Expiry surfaces as a transient error.
func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.remoteTimeout)
	defer cancel()
	return fn(ctx)
}

// remoteResult maps a remote error to the queue outcome
func remoteResult(err error) queue.Result {
	if api.IsPermanent(err) || api.IsNotFound(err) {
		return queue.Failed
	}
	return queue.Retry
}
