package data

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/runsync/internal/client/api/apitest"
	"github.com/iudanet/runsync/internal/client/connectivity"
	"github.com/iudanet/runsync/internal/client/queue"
	"github.com/iudanet/runsync/internal/client/storage/boltdb"
	syncengine "github.com/iudanet/runsync/internal/client/sync"
	"github.com/iudanet/runsync/internal/models"
)

type countingNotifier struct {
	n atomic.Int32
}

func (c *countingNotifier) Refresh() { c.n.Add(1) }

type fixture struct {
	svc      Service
	store    *boltdb.Storage
	queue    *queue.Queue
	engine   *syncengine.Engine
	remote   *apitest.Fake
	conn     *connectivity.ManualSource
	notifier *countingNotifier
}

func newFixture(t *testing.T, online bool, opts ...syncengine.Option) *fixture {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := queue.New(store, logger)
	remote := apitest.NewFake()
	engine := syncengine.NewEngine(remote, store, q, logger, opts...)
	conn := connectivity.NewManualSource(online)
	notifier := &countingNotifier{}

	return &fixture{
		svc:      NewService(remote, store, q, engine, conn, logger, WithNotifier(notifier)),
		store:    store,
		queue:    q,
		engine:   engine,
		remote:   remote,
		conn:     conn,
		notifier: notifier,
	}
}

func rec(id string, kv ...any) *models.Record {
	r := models.NewRecord()
	if id != "" {
		r.SetID(id)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

func field(r *models.Record, key string) any {
	v, _ := r.Get(key)
	return v
}

// synced puts r on the remote and in the local store as if it had been
// fetched earlier
func (f *fixture) synced(t *testing.T, collection string, r *models.Record) {
	t.Helper()
	ctx := context.Background()
	f.remote.Seed(collection, r)
	require.NoError(t, f.store.Put(ctx, collection, r))
	require.NoError(t, f.store.PutShadow(ctx, collection, r))
}

func (f *fixture) queued(t *testing.T) []*models.Mutation {
	t.Helper()
	entries, err := f.queue.List(context.Background())
	require.NoError(t, err)
	return entries
}

func ids(records []*models.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID())
	}
	return out
}

// Офлайн правка видна сразу, до любого обращения к сети
func TestUpdate_OfflineReadYourWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.synced(t, "tickets", rec("t1", "price", 25, "category", "full"))

	updated, err := f.svc.Update(ctx, "tickets", "t1", rec("", "price", 30))
	require.NoError(t, err)
	assert.Equal(t, 30, field(updated, "price"))

	got, err := f.svc.Get(ctx, "tickets", "t1")
	require.NoError(t, err)
	assert.True(t, rec("t1", "price", 30, "category", "full").Equal(got))

	assert.Empty(t, f.remote.Calls())

	entries := f.queued(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionUpdate, entries[0].Action)
	assert.Equal(t, []string{"price"}, entries[0].Changed)
	assert.Positive(t, f.notifier.n.Load())
}

func TestUpdate_OfflineUnknownRecord(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.Update(context.Background(), "tickets", "missing", rec("", "price", 30))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.queued(t))
}

func TestCreate_Offline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	created, err := f.svc.Create(ctx, "registrations", rec("", "runner", "Ann"))
	require.NoError(t, err)
	assert.True(t, models.IsTempID(created.ID()))
	assert.Equal(t, "Ann", field(created, "runner"))

	all, err := f.svc.List(ctx, "registrations")
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID()}, ids(all))

	got, err := f.svc.Get(ctx, "registrations", created.ID())
	require.NoError(t, err)
	assert.True(t, created.Equal(got))

	entries := f.queued(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionCreate, entries[0].Action)
	assert.Equal(t, created.ID(), entries[0].RecordID)
}

func TestCreate_TempIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		created, err := f.svc.Create(ctx, "registrations", rec("", "n", i))
		require.NoError(t, err)
		id := created.ID()
		assert.True(t, strings.HasPrefix(id, models.TempIDPrefix))
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

// После синхронизации временный id заменяется серверным
func TestCreate_OfflineThenReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	created, err := f.svc.Create(ctx, "registrations", rec("", "runner", "Ann"))
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, "registrations", created.ID(), rec("", "bib", 7))
	require.NoError(t, err)

	f.conn.Set(true)
	_, err = f.engine.Reconcile(ctx)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, "registrations")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, models.IsTempID(all[0].ID()))
	assert.True(t, rec(all[0].ID(), "runner", "Ann", "bib", 7).Equal(all[0]))

	_, err = f.svc.Get(ctx, "registrations", created.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemove_Offline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.synced(t, "registrations", rec("r1", "runner", "Ann"))

	removed, err := f.svc.Remove(ctx, "registrations", "r1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = f.svc.Get(ctx, "registrations", "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	entries := f.queued(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionDelete, entries[0].Action)
	assert.NotNil(t, f.remote.Get("registrations", "r1"))

	removed, err = f.svc.Remove(ctx, "registrations", "unknown")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemove_TempRecordDiscardsQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	created, err := f.svc.Create(ctx, "registrations", rec("", "runner", "Ann"))
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, "registrations", created.ID(), rec("", "bib", 7))
	require.NoError(t, err)
	require.Len(t, f.queued(t), 2)

	removed, err := f.svc.Remove(ctx, "registrations", created.ID())
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, f.queued(t))

	// Даже онлайн на сервер ничего не уходит
	f.conn.Set(true)
	_, err = f.engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, f.remote.CountCalls(apitest.OpInsert))
	assert.Zero(t, f.remote.CountCalls(apitest.OpDelete))
}

func TestList_OnlineMirrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	f.remote.Seed("events", rec("e1", "name", "10K"))
	f.remote.Seed("events", rec("e2", "name", "Half"))
	// e3 удалена на сервере, e4 изменена локально и ждет отправки
	require.NoError(t, f.store.Put(ctx, "events", rec("e3", "name", "Old")))
	f.synced(t, "events", rec("e4", "name", "Marathon"))
	f.conn.Set(false)
	_, err := f.svc.Update(ctx, "events", "e4", rec("", "name", "Marathon 2026"))
	require.NoError(t, err)
	f.conn.Set(true)

	all, err := f.svc.List(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e4"}, ids(all))
	assert.Equal(t, "Marathon 2026", field(all[2], "name"))

	local, err := f.store.GetAll(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e4"}, ids(local))

	shadow, err := f.store.GetShadow(ctx, "events", "e1")
	require.NoError(t, err)
	assert.Equal(t, "10K", field(shadow, "name"))
}

func TestList_RemoteFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	require.NoError(t, f.store.Put(ctx, "events", rec("e1", "name", "10K")))

	f.remote.FailNext(apitest.OpFetchAll, apitest.Transient())

	all, err := f.svc.List(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, ids(all))
}

func TestList_NoCollection(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.svc.List(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoCollection)
}

func TestGet_Online(t *testing.T) {
	ctx := context.Background()

	t.Run("mirrors remote version", func(t *testing.T) {
		f := newFixture(t, true)
		f.synced(t, "events", rec("e1", "name", "10K"))
		f.remote.Seed("events", rec("e1", "name", "10K Night Run"))

		got, err := f.svc.Get(ctx, "events", "e1")
		require.NoError(t, err)
		assert.Equal(t, "10K Night Run", field(got, "name"))

		local, err := f.store.GetByID(ctx, "events", "e1")
		require.NoError(t, err)
		assert.True(t, got.Equal(local))
	})

	t.Run("deleted remotely", func(t *testing.T) {
		f := newFixture(t, true)
		f.synced(t, "events", rec("e1", "name", "10K"))
		f.remote.Remove("events", "e1")

		_, err := f.svc.Get(ctx, "events", "e1")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = f.store.GetByID(ctx, "events", "e1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("remote failure falls back", func(t *testing.T) {
		f := newFixture(t, true)
		f.synced(t, "events", rec("e1", "name", "10K"))
		f.remote.FailNext(apitest.OpFetch, apitest.Transient())

		got, err := f.svc.Get(ctx, "events", "e1")
		require.NoError(t, err)
		assert.Equal(t, "10K", field(got, "name"))
	})
}

func TestCreate_Online(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	created, err := f.svc.Create(ctx, "registrations", rec("", "runner", "Ann"))
	require.NoError(t, err)
	assert.Equal(t, "srv-1", created.ID())
	assert.Empty(t, f.queued(t))

	local, err := f.store.GetByID(ctx, "registrations", "srv-1")
	require.NoError(t, err)
	assert.True(t, created.Equal(local))
}

func TestCreate_OnlineErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("transient failure is queued", func(t *testing.T) {
		f := newFixture(t, true)
		f.remote.FailNext(apitest.OpInsert, apitest.Transient())

		created, err := f.svc.Create(ctx, "registrations", rec("", "runner", "Ann"))
		require.NoError(t, err)
		assert.True(t, models.IsTempID(created.ID()))
		assert.Len(t, f.queued(t), 1)
	})

	t.Run("permanent failure is returned", func(t *testing.T) {
		f := newFixture(t, true)
		f.remote.FailNext(apitest.OpInsert, apitest.Permanent())

		_, err := f.svc.Create(ctx, "registrations", rec("", "runner", ""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")

		local, err := f.store.GetAll(ctx, "registrations")
		require.NoError(t, err)
		assert.Empty(t, local)
		assert.Empty(t, f.queued(t))
	})
}

func TestUpdate_Online(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.synced(t, "registrations", rec("r1", "runner", "Ann", "distance", "10K"))

	updated, err := f.svc.Update(ctx, "registrations", "r1", rec("", "distance", "21K"))
	require.NoError(t, err)
	assert.Equal(t, "21K", field(updated, "distance"))
	assert.Equal(t, "Ann", field(updated, "runner"))

	assert.Equal(t, "21K", field(f.remote.Get("registrations", "r1"), "distance"))
	assert.Empty(t, f.queued(t))
}

func TestUpdate_OnlineTransientStaysQueued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.synced(t, "registrations", rec("r1", "distance", "10K"))
	f.remote.FailNext(apitest.OpFetch, apitest.Transient())

	updated, err := f.svc.Update(ctx, "registrations", "r1", rec("", "distance", "21K"))
	require.NoError(t, err)
	assert.Equal(t, "21K", field(updated, "distance"))

	entries := f.queued(t)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, "10K", field(f.remote.Get("registrations", "r1"), "distance"))
}

func TestUpdate_OnlinePermanentRestores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.synced(t, "registrations", rec("r1", "distance", "10K"))
	f.remote.FailNext(apitest.OpUpdate, apitest.Permanent())

	_, err := f.svc.Update(ctx, "registrations", "r1", rec("", "distance", "invalid"))
	require.Error(t, err)

	got, err := f.svc.Get(ctx, "registrations", "r1")
	require.NoError(t, err)
	assert.Equal(t, "10K", field(got, "distance"))
	assert.Empty(t, f.queued(t))
}

func TestUpdate_OnlineDeletedRemotely(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.synced(t, "registrations", rec("r1", "distance", "10K"))
	f.remote.Remove("registrations", "r1")

	_, err := f.svc.Update(ctx, "registrations", "r1", rec("", "distance", "21K"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.store.GetByID(ctx, "registrations", "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// Более ранние изменения в очереди: новое не обгоняет их
func TestUpdate_OnlineBehindQueuedChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.synced(t, "registrations", rec("r1", "distance", "10K"))

	_, err := f.svc.Update(ctx, "registrations", "r1", rec("", "distance", "21K"))
	require.NoError(t, err)

	f.conn.Set(true)
	_, err = f.svc.Update(ctx, "registrations", "r1", rec("", "distance", "42K"))
	require.NoError(t, err)

	assert.Zero(t, f.remote.CountCalls(apitest.OpUpdate))
	assert.Len(t, f.queued(t), 2)

	_, err = f.engine.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42K", field(f.remote.Get("registrations", "r1"), "distance"))
}

func TestUpdate_OnlineManualConflict(t *testing.T) {
	ctx := context.Background()
	policies := syncengine.Policies{
		Collections: map[string]syncengine.Policy{"profiles": {Strategy: models.StrategyManual}},
		Default:     models.StrategyClientWins,
	}
	f := newFixture(t, true, syncengine.WithPolicies(policies))
	f.synced(t, "profiles", rec("p1", "phone", "111", "city", "Kazan"))
	f.remote.Seed("profiles", rec("p1", "phone", "222", "city", "Kazan"))

	updated, err := f.svc.Update(ctx, "profiles", "p1", rec("", "phone", "333"))
	require.NoError(t, err)
	assert.Equal(t, "333", field(updated, "phone"))

	conflicts, err := f.engine.ListConflicts(ctx, "profiles")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "222", field(conflicts[0].Remote, "phone"))
	assert.Equal(t, "333", field(conflicts[0].Local, "phone"))

	entries := f.queued(t)
	require.Len(t, entries, 1)
	assert.Equal(t, models.MutationConflicted, entries[0].State)
}

func TestRemove_Online(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes remote and local", func(t *testing.T) {
		f := newFixture(t, true)
		f.synced(t, "registrations", rec("r1", "runner", "Ann"))

		removed, err := f.svc.Remove(ctx, "registrations", "r1")
		require.NoError(t, err)
		assert.True(t, removed)
		assert.Nil(t, f.remote.Get("registrations", "r1"))
		assert.Empty(t, f.queued(t))

		_, err = f.store.GetShadow(ctx, "registrations", "r1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("already gone", func(t *testing.T) {
		f := newFixture(t, true)

		removed, err := f.svc.Remove(ctx, "registrations", "r1")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("transient failure is queued", func(t *testing.T) {
		f := newFixture(t, true)
		f.synced(t, "registrations", rec("r1", "runner", "Ann"))
		f.remote.FailNext(apitest.OpDelete, apitest.Transient())

		removed, err := f.svc.Remove(ctx, "registrations", "r1")
		require.NoError(t, err)
		assert.True(t, removed)

		// Сервер еще хранит запись, но удаление ожидает отправки
		_, err = f.svc.Get(ctx, "registrations", "r1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotNil(t, f.remote.Get("registrations", "r1"))

		entries := f.queued(t)
		require.Len(t, entries, 1)
		assert.Equal(t, models.ActionDelete, entries[0].Action)
	})

	t.Run("permanent failure is returned", func(t *testing.T) {
		f := newFixture(t, true)
		f.synced(t, "registrations", rec("r1", "runner", "Ann"))
		f.remote.FailNext(apitest.OpDelete, apitest.Permanent())

		_, err := f.svc.Remove(ctx, "registrations", "r1")
		require.Error(t, err)

		local, err := f.store.GetByID(ctx, "registrations", "r1")
		require.NoError(t, err)
		assert.Equal(t, "Ann", field(local, "runner"))
	})
}

func TestService_LocalStorageErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	require.NoError(t, f.store.Close())

	_, err := f.svc.List(ctx, "events")
	assert.Error(t, err)

	_, err = f.svc.Create(ctx, "events", rec("", "name", "10K"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
