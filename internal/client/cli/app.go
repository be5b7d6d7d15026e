package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/runsync/internal/client/api"
	"github.com/iudanet/runsync/internal/client/config"
	"github.com/iudanet/runsync/internal/client/connectivity"
	"github.com/iudanet/runsync/internal/client/data"
	"github.com/iudanet/runsync/internal/client/iocli"
	"github.com/iudanet/runsync/internal/client/queue"
	"github.com/iudanet/runsync/internal/client/storage/boltdb"
	syncengine "github.com/iudanet/runsync/internal/client/sync"
)

const (
	// probeTimeout bounds the health check of one-shot commands
	probeTimeout = 3 * time.Second
	// lockTimeout is how long a one-shot command waits for a running
	// daemon pass to release the database
	lockTimeout = 10 * time.Second
)

// app holds the components opened for one command
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *boltdb.Storage
	remote   api.ClientAPI
	queue    *queue.Queue
	engine   *syncengine.Engine
	nudger   *connectivity.Nudger
	io       iocli.IO
	format   string
	policies syncengine.Policies
}

// open loads the configuration and opens local storage. The caller must
// call close.
func (r *runner) open(cmd *cobra.Command, level slog.Level) (*app, error) {
	a, err := r.prepare(cmd, level)
	if err != nil {
		return nil, err
	}
	if err := r.attach(cmd.Context(), a, lockTimeout); err != nil {
		return nil, err
	}
	// Изменения, сделанные командой, передаются запущенному демону после закрытия базы
	a.nudger = connectivity.NewNudger(connectivity.SocketPath(a.cfg.DBPath))
	a.engine.SetTrigger(a.nudger.Trigger)
	return a, nil
}

// prepare loads the configuration and builds everything except local storage
func (r *runner) prepare(cmd *cobra.Command, level slog.Level) (*app, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, err
	}
	policies, err := cfg.Policies()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if r.opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	io := iocli.New(cmd.InOrStdin(), cmd.OutOrStdout())
	format := r.opts.Format
	if format == FormatAuto {
		format = FormatJSON
		if io.IsTerminal() {
			format = FormatText
		}
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		remote:   r.deps.newRemote(cfg.ServerURL),
		io:       io,
		format:   format,
		policies: policies,
	}, nil
}

// attach opens the database and the components on top of it, waiting up to
// wait for another process to release the file
func (r *runner) attach(ctx context.Context, a *app, wait time.Duration) error {
	store, err := boltdb.New(ctx, a.cfg.DBPath, boltdb.WithLockTimeout(wait))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	q := queue.New(store, a.logger,
		queue.WithMaxAttempts(a.cfg.MaxAttempts),
		queue.WithClock(r.deps.now),
	)
	a.store = store
	a.queue = q
	a.engine = syncengine.NewEngine(a.remote, store, q, a.logger,
		syncengine.WithPolicies(a.policies),
		syncengine.WithRemoteTimeout(a.cfg.RemoteTimeout),
		syncengine.WithClock(r.deps.now),
	)
	return nil
}

// loadConfig reads the config file and applies flag overrides
func (r *runner) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(r.opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if r.opts.ServerURL != "" {
		cfg.ServerURL = r.opts.ServerURL
	}
	if r.opts.DBPath != "" {
		cfg.DBPath = r.opts.DBPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("Failed to close database", "error", err)
	}
	a.store = nil
}

// withApp runs fn against freshly opened components. Once the database is
// closed a running daemon is told about local changes.
func (r *runner) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := r.open(cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	err = fn(cmd.Context(), a)
	a.close()

	sent, ferr := a.nudger.Flush(cmd.Context())
	if ferr != nil {
		a.logger.Warn("Failed to notify daemon", "error", ferr)
	}
	if sent {
		a.logger.Debug("Daemon notified about local changes")
	}
	return err
}

// connect decides connectivity once for a one-shot command
func (r *runner) connect(ctx context.Context, a *app) connectivity.Source {
	if r.opts.Offline {
		return connectivity.NewManualSource(false)
	}
	probe := connectivity.NewProbeSource(a.remote, probeTimeout, a.logger)
	if !probe.Probe(ctx) {
		a.logger.Info("Server unreachable, working offline", "server", a.cfg.ServerURL)
	}
	return probe
}

// withData runs fn against the collection façade
func (r *runner) withData(cmd *cobra.Command, fn func(ctx context.Context, a *app, svc data.Service) error) error {
	return r.withApp(cmd, func(ctx context.Context, a *app) error {
		opts := []data.Option{
			data.WithRemoteTimeout(a.cfg.RemoteTimeout),
			data.WithNotifier(a.nudger),
		}
		if r.deps.newID != nil {
			opts = append(opts, data.WithIDGenerator(r.deps.newID))
		}
		svc := data.NewService(a.remote, a.store, a.queue, a.engine, r.connect(ctx, a), a.logger, opts...)
		return fn(ctx, a, svc)
	})
}
