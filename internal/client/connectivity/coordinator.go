package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	syncengine "github.com/iudanet/runsync/internal/client/sync"
	"github.com/iudanet/runsync/internal/models"
)

const (
	// DefaultInterval is the period of automatic reconciliation passes
	DefaultInterval = 5 * time.Minute
	// DefaultBusyRetry is the delay before a pass skipped by ErrBusy is retried
	DefaultBusyRetry = 500 * time.Millisecond
)

//go:generate moq -out reconciler_mock.go . Reconciler

// Reconciler is satisfied by *syncengine.Engine
type Reconciler interface {
	Reconcile(ctx context.Context) (*syncengine.PassResult, error)
	Backlog(ctx context.Context) (syncengine.Backlog, error)
}

type passOutcome struct {
	result *syncengine.PassResult
	err    error
}

// Coordinator decides when reconciliation passes run and owns the
// process-wide SyncStatus. All state changes happen on the Run loop;
// other goroutines talk to it through channels.
type Coordinator struct {
	reconciler Reconciler
	source     Source
	logger     *slog.Logger
	background <-chan struct{}
	onPass     func(*syncengine.PassResult, error)

	syncReq  chan chan bool
	refresh  chan struct{}
	passDone chan passOutcome
	done     chan struct{}

	status atomic.Pointer[models.SyncStatus]

	subsMu  sync.Mutex
	subs    map[int]chan models.SyncStatus
	nextSub int

	interval  time.Duration
	busyRetry time.Duration
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithInterval sets the period of automatic passes
func WithInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithBusyRetry sets the delay before a pass that found the engine busy is
// requested again
func WithBusyRetry(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.busyRetry = d
		}
	}
}

// WithBackgroundTrigger requests a pass every time ch fires, e.g. on a
// platform background-execution callback. Without it sync only runs in the
// foreground.
func WithBackgroundTrigger(ch <-chan struct{}) CoordinatorOption {
	return func(c *Coordinator) {
		c.background = ch
	}
}

// WithPassHook is called on the loop goroutine after each pass
func WithPassHook(fn func(*syncengine.PassResult, error)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onPass = fn
	}
}

// NewCoordinator creates a coordinator. Call Run to start it.
func NewCoordinator(reconciler Reconciler, source Source, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		reconciler: reconciler,
		source:     source,
		logger:     logger,
		syncReq:    make(chan chan bool),
		refresh:    make(chan struct{}, 1),
		passDone:   make(chan passOutcome, 1),
		done:       make(chan struct{}),
		subs:       make(map[int]chan models.SyncStatus),
		interval:   DefaultInterval,
		busyRetry:  DefaultBusyRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.status.Store(&models.SyncStatus{})
	return c
}

// Run is the event loop. It returns when ctx is done, after the running
// pass (if any) has finished.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Проход, пропущенный из-за ErrBusy, повторяется по таймеру
	retry := time.NewTimer(c.busyRetry)
	retry.Stop()
	defer retry.Stop()

	var wg sync.WaitGroup
	running := false
	st := c.Status()
	st.Online = c.source.Online()
	c.loadBacklog(ctx, &st)
	c.publish(st)

	start := func(reason string) {
		if running || !st.Online {
			return
		}
		running = true
		st.Syncing = true
		c.publish(st)
		c.logger.Debug("Starting sync", "reason", reason)

		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := c.reconciler.Reconcile(ctx)
			c.passDone <- passOutcome{result: result, err: err}
		}()
	}

	start("startup")

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			st.Syncing = false
			c.publish(st)
			return nil

		case <-c.source.Changes():
			online := c.source.Online()
			if online == st.Online {
				continue
			}
			st.Online = online
			c.publish(st)
			if online {
				c.logger.Info("Connectivity restored")
				start("online")
			} else {
				c.logger.Info("Connectivity lost, automatic sync suspended")
			}

		case <-ticker.C:
			start("interval")

		case <-c.background:
			start("background")

		case <-retry.C:
			start("busy retry")

		case reply := <-c.syncReq:
			ok := st.Online && !running
			start("manual")
			reply <- ok

		case <-c.refresh:
			c.loadBacklog(ctx, &st)
			c.publish(st)

		case out := <-c.passDone:
			running = false
			st.Syncing = false
			switch {
			case errors.Is(out.err, syncengine.ErrBusy):
				c.logger.Debug("Engine busy, pass rescheduled", "delay", c.busyRetry)
				retry.Reset(c.busyRetry)
			case out.err != nil:
				c.logger.Error("Sync failed", "error", out.err)
			}
			c.loadBacklog(ctx, &st)
			c.publish(st)
			if c.onPass != nil {
				c.onPass(out.result, out.err)
			}
		}
	}
}

// SyncNow requests a pass. Returns false and does nothing if a pass is
// already running, the client is offline or the loop has stopped.
func (c *Coordinator) SyncNow() bool {
	reply := make(chan bool, 1)
	select {
	case c.syncReq <- reply:
	case <-c.done:
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-c.done:
		return false
	}
}

// Refresh asks the loop to recompute the backlog counts. Never blocks.
func (c *Coordinator) Refresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Status returns a copy of the current status
func (c *Coordinator) Status() models.SyncStatus {
	return c.status.Load().Clone()
}

// Subscribe returns a channel carrying the latest status. Slow readers only
// miss intermediate values. The returned function cancels the subscription.
func (c *Coordinator) Subscribe() (<-chan models.SyncStatus, func()) {
	ch := make(chan models.SyncStatus, 1)
	ch <- c.Status()

	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (c *Coordinator) publish(st models.SyncStatus) {
	snapshot := st.Clone()
	c.status.Store(&snapshot)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		// Заменяем непрочитанное значение последним
		select {
		case <-ch:
		default:
		}
		ch <- snapshot.Clone()
	}
}

func (c *Coordinator) loadBacklog(ctx context.Context, st *models.SyncStatus) {
	b, err := c.reconciler.Backlog(ctx)
	if errors.Is(err, syncengine.ErrBusy) {
		// Счетчики обновятся после текущего прохода
		c.logger.Debug("Sync backlog not refreshed, engine busy")
		return
	}
	if err != nil {
		c.logger.Warn("Failed to read sync backlog", "error", err)
		return
	}
	st.PendingCount = b.Pending
	st.FailedCount = b.Failed
	st.ConflictCollections = b.ConflictCollections
	st.LastSyncTime = b.LastSyncTime
}
