package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/runsync/internal/client/storage/boltdb"
	"github.com/iudanet/runsync/internal/models"
)

var fixedNow = time.Date(2026, 4, 12, 7, 0, 0, 0, time.UTC)

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(store, logger, opts...)
}

func record(id string, kv ...any) *models.Record {
	r := models.NewRecord()
	r.SetID(id)
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	seq1, err := q.Enqueue(ctx, models.ActionCreate, "registrations", record("temp_1", "name", "A"))
	require.NoError(t, err)
	seq2, err := q.Enqueue(ctx, models.ActionUpdate, "registrations", record("temp_1", "name", "B"), WithChanged([]string{"name"}))
	require.NoError(t, err)
	seq3, err := q.Enqueue(ctx, models.ActionDelete, "registrations", record("r7", "name", "gone"))
	require.NoError(t, err)

	assert.Less(t, seq1, seq2)
	assert.Less(t, seq2, seq3)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, models.ActionCreate, entries[0].Action)
	assert.True(t, fixedNow.Equal(entries[0].EnqueuedAt))
	assert.Equal(t, []string{"name"}, entries[1].Changed)

	// Для delete в payload остается только id
	assert.Equal(t, []string{"id"}, entries[2].Payload.Keys())
	assert.Equal(t, "r7", entries[2].RecordID)
}

func TestEnqueue_InvalidPayload(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), models.ActionCreate, "registrations", models.NewRecord())
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}

func TestDrain_AppliesInOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, models.ActionUpdate, "registrations", record(id))
		require.NoError(t, err)
	}

	var seen []string
	stats, err := q.Drain(ctx, func(ctx context.Context, m *models.Mutation) (Result, error) {
		seen = append(seen, m.RecordID)
		return Applied, nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, 3, stats.Applied)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// Три записи A, B, C; B временно не применяется. A удалена, B и C остаются
// в исходном порядке, у B увеличен счетчик попыток.
func TestDrain_RetryKeepsOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, models.ActionUpdate, "registrations", record(id))
		require.NoError(t, err)
	}

	stats, err := q.Drain(ctx, func(ctx context.Context, m *models.Mutation) (Result, error) {
		if m.RecordID == "b" {
			return Retry, errors.New("connection refused")
		}
		if m.RecordID == "c" {
			return Retry, errors.New("connection refused")
		}
		return Applied, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Applied: 1, Retried: 2}, stats)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].RecordID)
	assert.Equal(t, "c", entries[1].RecordID)
	assert.Less(t, entries[0].Seq, entries[1].Seq)

	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, "connection refused", entries[0].LastError)
	require.NotNil(t, entries[0].LastAttemptAt)
	assert.True(t, fixedNow.Equal(*entries[0].LastAttemptAt))
}

func TestDrain_BlocksLaterEntriesOfRetriedRecord(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, models.ActionUpdate, "registrations", record("a", "v", 1))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.ActionUpdate, "registrations", record("b"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.ActionUpdate, "registrations", record("a", "v", 2))
	require.NoError(t, err)

	calls := 0
	stats, err := q.Drain(ctx, func(ctx context.Context, m *models.Mutation) (Result, error) {
		calls++
		if m.RecordID == "a" {
			return Retry, errors.New("timeout")
		}
		return Applied, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, Stats{Applied: 1, Retried: 1, Skipped: 1}, stats)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[1].Attempts)
}

func TestDrain_ConflictedEntriesAreHeld(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, models.ActionUpdate, "profiles", record("p1"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.ActionUpdate, "profiles", record("p2"))
	require.NoError(t, err)

	stats, err := q.Drain(ctx, func(ctx context.Context, m *models.Mutation) (Result, error) {
		if m.RecordID == "p1" {
			return Conflicted, nil
		}
		return Applied, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Applied: 1, Conflicted: 1}, stats)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.MutationConflicted, entries[0].State)

	// Следующий проход не трогает конфликтную запись
	stats, err = q.Drain(ctx, func(ctx context.Context, m *models.Mutation) (Result, error) {
		t.Fatalf("unexpected call for %s", m.RecordID)
		return Applied, nil
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 1}, stats)
}

func TestDrain_FailedGoesToDeadLetters(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, models.ActionUpdate, "registrations", record("a"))
	require.NoError(t, err)

	stats, err := q.Drain(ctx, func(ctx context.Context, m *models.Mutation) (Result, error) {
		return Failed, errors.New("400 bad request")
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Failed: 1}, stats)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "400 bad request", failed[0].LastError)

	purged, err := q.PurgeFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
}

func TestDrain_MaxAttempts(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, WithMaxAttempts(2))

	_, err := q.Enqueue(ctx, models.ActionUpdate, "registrations", record("a"))
	require.NoError(t, err)

	retry := func(ctx context.Context, m *models.Mutation) (Result, error) {
		return Retry, errors.New("503")
	}

	stats, err := q.Drain(ctx, retry)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Retried)

	stats, err = q.Drain(ctx, retry)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Attempts)
}

func TestDrain_SnapshotBound(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, models.ActionUpdate, "registrations", record("a"))
	require.NoError(t, err)

	stats, err := q.Drain(ctx, func(ctx context.Context, m *models.Mutation) (Result, error) {
		// Запись, добавленная во время прохода, ждет следующего
		_, err := q.Enqueue(ctx, models.ActionUpdate, "registrations", record("late"))
		require.NoError(t, err)
		return Applied, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Applied)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "late", entries[0].RecordID)
}

func TestDrain_ObservesRemap(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, models.ActionCreate, "registrations", record("temp_x"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.ActionUpdate, "registrations", record("temp_x", "name", "B"))
	require.NoError(t, err)

	var ids []string
	_, err = q.Drain(ctx, func(ctx context.Context, m *models.Mutation) (Result, error) {
		ids = append(ids, m.RecordID)
		if m.Action == models.ActionCreate {
			_, err := q.RemapRecordID(ctx, m.Collection, m.RecordID, "srv-1")
			require.NoError(t, err)
		}
		return Applied, nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"temp_x", "srv-1"}, ids)
}

func TestDrain_ContextCanceled(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), models.ActionUpdate, "registrations", record("a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = q.Drain(ctx, func(ctx context.Context, m *models.Mutation) (Result, error) {
		return Applied, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPendingAndDiscard(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, err := q.Enqueue(ctx, models.ActionCreate, "registrations", record("temp_1"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.ActionUpdate, "registrations", record("temp_1"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.ActionUpdate, "events", record("temp_1"))
	require.NoError(t, err)

	pending, err := q.Pending(ctx, "registrations", "temp_1")
	require.NoError(t, err)
	assert.True(t, pending)

	ids, err := q.PendingIDs(ctx, "registrations")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"temp_1": {}}, ids)

	n, err := q.DiscardRecord(ctx, "registrations", "temp_1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err = q.Pending(ctx, "registrations", "temp_1")
	require.NoError(t, err)
	assert.False(t, pending)

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResolveEntry(t *testing.T) {
	tests := []struct {
		want     *models.Record
		name     string
		wantLen  int
		push     bool
		wantHead bool
	}{
		{name: "push replaces entry", push: true, wantLen: 3, wantHead: true, want: record("r1", "name", "B", "bib", "100", "city", "Kazan", "paid", true)},
		{name: "drop removes entry", push: false, wantLen: 2, want: record("r1", "name", "B", "bib", "100", "city", "Kazan", "paid", true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			q := newTestQueue(t)

			seq, err := q.Enqueue(ctx, models.ActionUpdate, "registrations", record("r1", "name", "B", "bib", "200"), WithChanged([]string{"name"}))
			require.NoError(t, err)
			_, err = q.Drain(ctx, func(context.Context, *models.Mutation) (Result, error) { return Conflicted, nil })
			require.NoError(t, err)

			// Правки после конфликта несут старый снимок с bib 200
			_, err = q.Enqueue(ctx, models.ActionUpdate, "registrations", record("r1", "name", "B", "bib", "200", "city", "Kazan"), WithChanged([]string{"city"}))
			require.NoError(t, err)
			_, err = q.Enqueue(ctx, models.ActionUpdate, "registrations", record("r1", "name", "B", "bib", "200", "city", "Kazan", "paid", true), WithChanged([]string{"paid"}))
			require.NoError(t, err)
			_, err = q.Enqueue(ctx, models.ActionUpdate, "events", record("r1", "bib", "200"), WithChanged([]string{"bib"}))
			require.NoError(t, err)

			got, err := q.ResolveEntry(ctx, seq, "registrations", record("r1", "name", "B", "bib", "100"), tt.push)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)

			entries, err := q.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, tt.wantLen+1)

			head := entries[0]
			assert.Equal(t, tt.wantHead, head.Seq == seq)
			if tt.wantHead {
				assert.True(t, head.Force)
				assert.Equal(t, models.MutationPending, head.State)
				assert.Nil(t, head.Changed)
				assert.True(t, record("r1", "name", "B", "bib", "100").Equal(head.Payload))
			}

			last := entries[tt.wantLen-1]
			assert.True(t, tt.want.Equal(last.Payload), "last %s", last.Payload)
			other, _ := entries[tt.wantLen].Payload.Get("bib")
			assert.Equal(t, "200", other)
		})
	}
}

func TestResolveEntry_MissingEntry(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	got, err := q.ResolveEntry(ctx, 42, "registrations", record("r1", "name", "B"), true)
	require.NoError(t, err)
	assert.True(t, record("r1", "name", "B").Equal(got))

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Force)

	_, err = q.ResolveEntry(ctx, 42, "registrations", record("r2"), false)
	require.NoError(t, err)
	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResultString(t *testing.T) {
	tests := []struct {
		result Result
		want   string
	}{
		{Applied, "applied"},
		{Retry, "retry"},
		{Conflicted, "conflicted"},
		{Failed, "failed"},
		{Result(42), "result(42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.result.String())
	}
}

func TestProcessEntry(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	seq1, err := q.Enqueue(ctx, models.ActionUpdate, "registrations", record("a"))
	require.NoError(t, err)
	seq2, err := q.Enqueue(ctx, models.ActionUpdate, "registrations", record("b"))
	require.NoError(t, err)

	var seen []string
	res, err := q.ProcessEntry(ctx, seq2, func(ctx context.Context, m *models.Mutation) (Result, error) {
		seen = append(seen, m.RecordID)
		return Retry, errors.New("offline")
	})
	assert.Equal(t, Retry, res)
	assert.EqualError(t, err, "offline")
	assert.Equal(t, []string{"b"}, seen)

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Attempts)
	assert.Equal(t, 1, entries[1].Attempts)

	later, err := q.PendingAfter(ctx, "registrations", "a", seq1)
	require.NoError(t, err)
	assert.False(t, later)

	require.NoError(t, q.store.RemoveMutation(ctx, seq1))
	_, err = q.ProcessEntry(ctx, seq1, func(ctx context.Context, m *models.Mutation) (Result, error) {
		t.Fatal("must not be called")
		return Applied, nil
	})
	assert.Error(t, err)
}
