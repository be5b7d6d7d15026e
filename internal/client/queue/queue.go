// Package queue implements the durable mutation queue: local changes made
// while the remote was unreachable, replayed strictly in enqueue order.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/runsync/internal/client/storage"
	"github.com/iudanet/runsync/internal/models"
)

// Result tells Drain what to do with an entry after processing it.
type Result int

const (
	// Applied removes the entry from the queue.
	Applied Result = iota
	// Retry keeps the entry and records the failed attempt.
	Retry
	// Conflicted keeps the entry in the conflicted state until it is resolved.
	Conflicted
	// Failed moves the entry to the dead letters.
	Failed
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Retry:
		return "retry"
	case Conflicted:
		return "conflicted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// ProcessFunc handles one entry. The error, if any, is stored as the entry's
// LastError for Retry and Failed results.
type ProcessFunc func(ctx context.Context, m *models.Mutation) (Result, error)

// Stats summarises one Drain call.
type Stats struct {
	Applied    int
	Retried    int
	Conflicted int
	Failed     int
	Skipped    int
}

// Queue is the mutation queue over a QueueStorage.
type Queue struct {
	store       storage.QueueStorage
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxAttempts moves entries to the dead letters after n failed attempts.
// Zero keeps retrying forever.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// New creates a queue backed by store.
func New(store storage.QueueStorage, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EntryOption adjusts an entry before it is enqueued.
type EntryOption func(*models.Mutation)

// WithChanged records which fields the caller changed. Used by merge resolution.
func WithChanged(fields []string) EntryOption {
	return func(m *models.Mutation) {
		m.Changed = append([]string(nil), fields...)
	}
}

// Forced marks the entry to be applied as client-wins regardless of the
// collection strategy.
func Forced() EntryOption {
	return func(m *models.Mutation) {
		m.Force = true
	}
}

// Enqueue appends a mutation and returns its sequence number.
// For deletes only the payload id is kept.
func (q *Queue) Enqueue(ctx context.Context, action models.Action, collection string, payload *models.Record, opts ...EntryOption) (uint64, error) {
	if err := payload.Validate(); err != nil {
		return 0, fmt.Errorf("enqueue %s %s: %w", action, collection, err)
	}

	body := payload.Clone()
	if action == models.ActionDelete {
		body = models.NewRecord()
		body.SetID(payload.ID())
	}

	m := &models.Mutation{
		Action:     action,
		Collection: collection,
		RecordID:   payload.ID(),
		Payload:    body,
		EnqueuedAt: q.now().UTC(),
		State:      models.MutationPending,
	}
	for _, opt := range opts {
		opt(m)
	}

	seq, err := q.store.AppendMutation(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue mutation: %w", err)
	}

	q.logger.Debug("Mutation enqueued",
		"seq", seq,
		"action", action,
		"collection", collection,
		"id", m.RecordID)

	return seq, nil
}

// Drain processes the entries present when the call starts, in sequence
// order. Entries enqueued during the drain wait for the next one.
//
// Once an entry for a record is retried or conflicted, later entries for the
// same record are skipped for the rest of the drain so that the remote never
// sees them out of order. Conflicted entries from earlier drains block their
// record the same way.
func (q *Queue) Drain(ctx context.Context, process ProcessFunc) (Stats, error) {
	var stats Stats

	last, err := q.store.LastSeq(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to read queue tail: %w", err)
	}

	blocked := make(map[models.RecordKey]struct{})
	var after uint64

	for after < last {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		// Читаем по одной записи: обработка может переписать последующие (смена temp id)
		m, err := q.store.NextMutation(ctx, after)
		if errors.Is(err, storage.ErrEntryNotFound) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read queue entry after %d: %w", after, err)
		}
		if m.Seq > last {
			break
		}
		after = m.Seq

		key := m.Key()
		if m.State == models.MutationConflicted {
			blocked[key] = struct{}{}
			stats.Skipped++
			continue
		}
		if _, ok := blocked[key]; ok {
			stats.Skipped++
			continue
		}

		res, perr := process(ctx, m)
		if err := q.settle(ctx, m, res, perr, &stats, blocked); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// ProcessEntry runs process for a single entry with the same bookkeeping as
// Drain. Conflicted entries are not processed again.
func (q *Queue) ProcessEntry(ctx context.Context, seq uint64, process ProcessFunc) (Result, error) {
	if seq == 0 {
		return Retry, storage.ErrEntryNotFound
	}

	m, err := q.store.NextMutation(ctx, seq-1)
	if err == nil && m.Seq != seq {
		err = storage.ErrEntryNotFound
	}
	if err != nil {
		return Retry, fmt.Errorf("failed to read queue entry %d: %w", seq, err)
	}
	if m.State == models.MutationConflicted {
		return Conflicted, nil
	}

	res, perr := process(ctx, m)
	var stats Stats
	if err := q.settle(ctx, m, res, perr, &stats, make(map[models.RecordKey]struct{})); err != nil {
		return res, err
	}
	return res, perr
}

func (q *Queue) settle(ctx context.Context, m *models.Mutation, res Result, perr error, stats *Stats, blocked map[models.RecordKey]struct{}) error {
	log := q.logger.With("seq", m.Seq, "action", m.Action, "collection", m.Collection, "id", m.RecordID)

	switch res {
	case Applied:
		if err := q.store.RemoveMutation(ctx, m.Seq); err != nil {
			return fmt.Errorf("failed to remove applied entry %d: %w", m.Seq, err)
		}
		stats.Applied++
		log.Debug("Mutation applied")

	case Retry:
		now := q.now().UTC()
		m.Attempts++
		m.LastAttemptAt = &now
		m.LastError = errText(perr)
		blocked[m.Key()] = struct{}{}

		if q.maxAttempts > 0 && m.Attempts >= q.maxAttempts {
			if err := q.store.MoveToDeadLetter(ctx, m); err != nil {
				return fmt.Errorf("failed to dead-letter entry %d: %w", m.Seq, err)
			}
			stats.Failed++
			log.Warn("Mutation gave up after max attempts", "attempts", m.Attempts, "error", perr)
			return nil
		}

		if err := q.saveIfPresent(ctx, m); err != nil {
			return err
		}
		stats.Retried++
		log.Info("Mutation will be retried", "attempts", m.Attempts, "error", perr)

	case Conflicted:
		m.State = models.MutationConflicted
		blocked[m.Key()] = struct{}{}
		if err := q.saveIfPresent(ctx, m); err != nil {
			return err
		}
		stats.Conflicted++
		log.Info("Mutation held for manual resolution")

	case Failed:
		now := q.now().UTC()
		m.Attempts++
		m.LastAttemptAt = &now
		m.LastError = errText(perr)
		if err := q.store.MoveToDeadLetter(ctx, m); err != nil {
			return fmt.Errorf("failed to dead-letter entry %d: %w", m.Seq, err)
		}
		stats.Failed++
		log.Warn("Mutation failed permanently", "error", perr)

	default:
		return fmt.Errorf("unknown result %v for entry %d", res, m.Seq)
	}

	return nil
}

// saveIfPresent stores entry bookkeeping; the entry may have been discarded
// by the caller meanwhile.
func (q *Queue) saveIfPresent(ctx context.Context, m *models.Mutation) error {
	err := q.store.SaveMutation(ctx, m)
	if errors.Is(err, storage.ErrEntryNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update entry %d: %w", m.Seq, err)
	}
	return nil
}

// List returns all queued entries in order, conflicted ones included.
func (q *Queue) List(ctx context.Context) ([]*models.Mutation, error) {
	entries, err := q.store.ListMutations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	return entries, nil
}

// Count returns the number of queued entries.
func (q *Queue) Count(ctx context.Context) (int, error) {
	entries, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Pending reports whether any entry for the record is queued.
func (q *Queue) Pending(ctx context.Context, collection, id string) (bool, error) {
	return q.PendingAfter(ctx, collection, id, 0)
}

// PendingAfter reports whether an entry for the record with Seq > after is queued.
func (q *Queue) PendingAfter(ctx context.Context, collection, id string, after uint64) (bool, error) {
	entries, err := q.List(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range entries {
		if m.Seq > after && m.Collection == collection && m.RecordID == id {
			return true, nil
		}
	}
	return false, nil
}

// PendingIDs returns the ids of records in collection that have queued entries.
func (q *Queue) PendingIDs(ctx context.Context, collection string) (map[string]struct{}, error) {
	entries, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{})
	for _, m := range entries {
		if m.Collection == collection {
			ids[m.RecordID] = struct{}{}
		}
	}
	return ids, nil
}

// DiscardRecord removes every queued entry for the record and returns how
// many were dropped.
func (q *Queue) DiscardRecord(ctx context.Context, collection, id string) (int, error) {
	entries, err := q.List(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range entries {
		if m.Collection != collection || m.RecordID != id {
			continue
		}
		if err := q.store.RemoveMutation(ctx, m.Seq); err != nil {
			return n, fmt.Errorf("failed to discard entry %d: %w", m.Seq, err)
		}
		n++
	}

	if n > 0 {
		q.logger.Debug("Queued mutations discarded", "collection", collection, "id", id, "count", n)
	}
	return n, nil
}

// ResolveEntry settles the entry seq with a decided version of its record.
// With push the entry becomes a forced update carrying resolved, otherwise it
// is removed. Later entries for the same record stay queued; their changed
// fields are replayed over resolved so that they no longer carry the
// conflicting snapshot. Returns the record as the replay leaves it, nil if a
// later entry deletes it.
func (q *Queue) ResolveEntry(ctx context.Context, seq uint64, collection string, resolved *models.Record, push bool) (*models.Record, error) {
	entries, err := q.List(ctx)
	if err != nil {
		return nil, err
	}

	var target *models.Mutation
	for _, m := range entries {
		if m.Seq == seq {
			target = m
			break
		}
	}

	id := resolved.ID()
	switch {
	case target == nil && push:
		if _, err := q.Enqueue(ctx, models.ActionUpdate, collection, resolved, Forced()); err != nil {
			return nil, err
		}
		return resolved.Clone(), nil
	case target == nil:
		return resolved.Clone(), nil
	case push:
		id = target.RecordID
		forced := target.Clone()
		forced.Action = models.ActionUpdate
		forced.Payload = resolved.Clone()
		forced.Payload.SetID(id)
		forced.Changed = nil
		forced.Force = true
		forced.State = models.MutationPending
		forced.Attempts = 0
		forced.LastError = ""
		forced.LastAttemptAt = nil
		if err := q.store.SaveMutation(ctx, forced); err != nil {
			return nil, fmt.Errorf("failed to update entry %d: %w", seq, err)
		}
	default:
		id = target.RecordID
		if err := q.store.RemoveMutation(ctx, seq); err != nil {
			return nil, fmt.Errorf("failed to remove entry %d: %w", seq, err)
		}
	}

	current := resolved.Clone()
	current.SetID(id)
	rebased := 0
	for _, m := range entries {
		if m.Seq <= seq || m.Collection != collection || m.RecordID != id {
			continue
		}
		switch m.Action {
		case models.ActionDelete:
			current = nil
			continue
		case models.ActionCreate:
			current = m.Payload.Clone()
			continue
		}

		// Изменения поверх удаления или без списка полей остаются как есть
		if current != nil && len(m.Changed) > 0 {
			next := m.Clone()
			next.Payload = current.Overlay(m.Payload, m.Changed)
			if err := q.saveIfPresent(ctx, next); err != nil {
				return nil, err
			}
			m = next
			rebased++
		}
		current = m.Payload.Clone()
	}

	q.logger.Debug("Queued entry resolved", "seq", seq, "collection", collection, "id", id, "push", push, "rebased", rebased)
	return current, nil
}

// RemapRecordID points queued entries for oldID at newID.
func (q *Queue) RemapRecordID(ctx context.Context, collection, oldID, newID string) (int, error) {
	n, err := q.store.RemapRecordID(ctx, collection, oldID, newID)
	if err != nil {
		return 0, fmt.Errorf("failed to remap %s/%s: %w", collection, oldID, err)
	}
	return n, nil
}

// Failed returns dead-lettered entries.
func (q *Queue) Failed(ctx context.Context) ([]*models.Mutation, error) {
	entries, err := q.store.ListDeadLetters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return entries, nil
}

// PurgeFailed drops all dead-lettered entries.
func (q *Queue) PurgeFailed(ctx context.Context) (int, error) {
	n, err := q.store.PurgeDeadLetters(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead letters: %w", err)
	}
	return n, nil
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
