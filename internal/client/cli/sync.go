package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/runsync/internal/client/connectivity"
	"github.com/iudanet/runsync/internal/client/storage"
	syncengine "github.com/iudanet/runsync/internal/client/sync"
	"github.com/iudanet/runsync/internal/models"
)

type passOutput struct {
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
	Applied    int       `json:"applied"`
	Retried    int       `json:"retried"`
	Conflicted int       `json:"conflicted"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
}

func newSyncCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send queued changes to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app) error {
				if !r.connect(ctx, a).Online() {
					pending, err := a.queue.Count(ctx)
					if err != nil {
						return err
					}
					return fmt.Errorf("server %s is unreachable, %d change(s) remain queued", a.cfg.ServerURL, pending)
				}

				res, err := a.engine.Reconcile(ctx)
				if err != nil {
					return fmt.Errorf("sync failed: %w", err)
				}
				a.logger.Debug("Sync pass finished", "duration", res.Duration)
				// Счетчики демона устарели
				a.nudger.Refresh()

				if !a.text() {
					return a.printJSON(passOutput{
						StartedAt:  res.StartedAt,
						Duration:   res.Duration.String(),
						Applied:    res.Applied,
						Retried:    res.Retried,
						Conflicted: res.Conflicted,
						Failed:     res.Failed,
						Skipped:    res.Skipped,
					})
				}
				return a.render(passTmpl, res)
			})
		},
	}
}

type statusOutput struct {
	Server string `json:"server"`
	models.SyncStatus
}

func newStatusCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and the sync backlog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app) error {
				online := r.connect(ctx, a).Online()
				backlog, err := a.engine.Backlog(ctx)
				if err != nil {
					return err
				}

				out := statusOutput{
					Server: a.cfg.ServerURL,
					SyncStatus: models.SyncStatus{
						LastSyncTime:        backlog.LastSyncTime,
						ConflictCollections: backlog.ConflictCollections,
						PendingCount:        backlog.Pending,
						FailedCount:         backlog.Failed,
						Online:              online,
					},
				}
				if !a.text() {
					return a.printJSON(out)
				}
				return a.render(statusTmpl, out)
			})
		},
	}
}

func newDaemonCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep the local copy in sync until interrupted",
		Long: `Run in the foreground, watching the server connection and
reconciling queued changes when the connection comes back, every
sync_interval, on SIGUSR1 and whenever another runsync command changes
local data. The database is opened only for the duration of a pass, so
other commands keep working while the daemon runs. Stops on SIGINT or
SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if r.opts.Offline {
				return fmt.Errorf("daemon cannot run with --offline")
			}
			a, err := r.prepare(cmd, slog.LevelInfo)
			if err != nil {
				return err
			}
			// Проверяем, что база открывается, до запуска цикла
			check := *a
			if err := r.attach(cmd.Context(), &check, lockTimeout); err != nil {
				return err
			}
			check.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, r, a)
		},
	}
}

// daemonLockTimeout is how long a daemon pass waits for a one-shot command
// to release the database before the pass is rescheduled
const daemonLockTimeout = 200 * time.Millisecond

// session implements connectivity.Reconciler by opening the database for
// each call and closing it afterwards
type session struct {
	r  *runner
	a  *app
	mu sync.Mutex
}

var _ connectivity.Reconciler = (*session)(nil)

// with opens the database, runs fn and closes it. A database held by
// another process is reported as syncengine.ErrBusy.
func (s *session) with(ctx context.Context, fn func(e *syncengine.Engine) error) error {
	a := *s.a
	if err := s.r.attach(ctx, &a, daemonLockTimeout); err != nil {
		if errors.Is(err, storage.ErrStoreLocked) {
			return fmt.Errorf("%w: %w", syncengine.ErrBusy, err)
		}
		return err
	}
	defer a.close()
	return fn(a.engine)
}

func (s *session) Reconcile(ctx context.Context) (*syncengine.PassResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res *syncengine.PassResult
	err := s.with(ctx, func(e *syncengine.Engine) error {
		var err error
		res, err = e.Reconcile(ctx)
		return err
	})
	return res, err
}

// Backlog does not wait for a running pass; the coordinator reloads the
// counts when the pass ends
func (s *session) Backlog(ctx context.Context) (syncengine.Backlog, error) {
	if !s.mu.TryLock() {
		return syncengine.Backlog{}, syncengine.ErrBusy
	}
	defer s.mu.Unlock()

	var b syncengine.Backlog
	err := s.with(ctx, func(e *syncengine.Engine) error {
		var err error
		b, err = e.Backlog(ctx)
		return err
	})
	return b, err
}

func runDaemon(ctx context.Context, r *runner, a *app) error {
	source, err := connectivity.NewWebSocketSource(a.cfg.ServerURL, a.logger)
	if err != nil {
		return err
	}

	background, stopSignals := backgroundSignals()
	defer stopSignals()

	coord := connectivity.NewCoordinator(&session{r: r, a: a}, source, a.logger,
		connectivity.WithInterval(a.cfg.SyncInterval),
		connectivity.WithBackgroundTrigger(background),
	)

	socket := connectivity.SocketPath(a.cfg.DBPath)
	a.logger.Info("Daemon started",
		"server", a.cfg.ServerURL,
		"ws", source.URL(),
		"interval", a.cfg.SyncInterval,
		"socket", socket)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return source.Run(ctx)
	})
	g.Go(func() error {
		return coord.Run(ctx)
	})
	g.Go(func() error {
		return connectivity.ServeNudges(ctx, socket, coord, a.logger)
	})
	g.Go(func() error {
		updates, cancel := coord.Subscribe()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case st := <-updates:
				a.logger.Info("Sync status",
					"online", st.Online,
					"syncing", st.Syncing,
					"pending", st.PendingCount,
					"failed", st.FailedCount,
					"conflicts", st.ConflictCollections,
				)
			}
		}
	})

	err = g.Wait()
	a.logger.Info("Daemon stopped")
	return err
}
