package connectivity

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

const (
	nudgeRefresh = "refresh"
	nudgeOK      = "ok"
	nudgeTimeout = time.Second
)

// SocketPath returns the path of the daemon control socket that belongs to
// the database at dbPath
func SocketPath(dbPath string) string {
	return dbPath + ".sock"
}

// Nudger tells a running daemon that the local store changed. Refresh only
// marks the change; Flush delivers it once the caller has released the
// database. It satisfies data.Notifier.
type Nudger struct {
	path  string
	dirty atomic.Bool
}

// NewNudger creates a nudger for the daemon socket at path
func NewNudger(path string) *Nudger {
	return &Nudger{path: path}
}

// Refresh records that the store changed
func (n *Nudger) Refresh() {
	n.dirty.Store(true)
}

// Trigger records the change and reports that no pass was started here.
// Suitable for syncengine.Engine.SetTrigger.
func (n *Nudger) Trigger() bool {
	n.Refresh()
	return false
}

// Flush sends a pending notification. It returns false without error when
// nothing changed or no daemon listens on the socket.
func (n *Nudger) Flush(ctx context.Context) (bool, error) {
	if !n.dirty.Swap(false) {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, nudgeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", n.path)
	if err != nil {
		// Демон не запущен
		return false, nil
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := fmt.Fprintln(conn, nudgeRefresh); err != nil {
		return false, fmt.Errorf("failed to notify daemon: %w", err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read daemon reply: %w", err)
	}
	if strings.TrimSpace(reply) != nudgeOK {
		return false, fmt.Errorf("unexpected daemon reply %q", strings.TrimSpace(reply))
	}
	return true, nil
}

//go:generate moq -out nudgeable_mock.go . Nudgeable

// Nudgeable is satisfied by *Coordinator
type Nudgeable interface {
	Refresh()
	SyncNow() bool
}

// ServeNudges listens on the unix socket at path until ctx is done. Every
// notification refreshes the status of c and requests a pass. A stale socket
// file left by a crashed daemon is replaced; a live one is an error.
func ServeNudges(ctx context.Context, path string, c Nudgeable, logger *slog.Logger) error {
	ln, err := listenUnix(ctx, path)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer func() { _ = os.Remove(path) }()

	logger.Debug("Control socket listening", "path", path)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("control socket: %w", err)
		}
		handleNudge(conn, c, logger)
	}
}

func listenUnix(ctx context.Context, path string) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err == nil {
		return ln, nil
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}

	// Файл есть: если никто не отвечает, это остаток упавшего демона
	var d net.Dialer
	dctx, cancel := context.WithTimeout(ctx, nudgeTimeout)
	defer cancel()
	if conn, derr := d.DialContext(dctx, "unix", path); derr == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("another daemon already listens on %s", path)
	}
	if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", rerr)
	}
	ln, err = lc.Listen(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	return ln, nil
}

func handleNudge(conn net.Conn, c Nudgeable, logger *slog.Logger) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(nudgeTimeout))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		logger.Debug("Failed to read control message", "error", err)
		return
	}
	if msg := strings.TrimSpace(line); msg != nudgeRefresh {
		logger.Debug("Unknown control message", "message", msg)
		return
	}

	c.Refresh()
	started := c.SyncNow()
	logger.Debug("Local change reported", "sync_started", started)
	_, _ = fmt.Fprintln(conn, nudgeOK)
}
