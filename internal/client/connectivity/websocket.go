package connectivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/iudanet/runsync/pkg/api"
)

// WebSocketSource keeps a websocket open to the server. The client is online
// while the socket is connected. The server pings periodically; a silent
// socket is treated as lost.
type WebSocketSource struct {
	dialer      *websocket.Dialer
	logger      *slog.Logger
	changes     notifier
	url         string
	online      atomic.Bool
	minBackoff  time.Duration
	maxBackoff  time.Duration
	readTimeout time.Duration
}

var _ Source = (*WebSocketSource)(nil)

// WebSocketOption configures a WebSocketSource
type WebSocketOption func(*WebSocketSource)

// WithBackoff sets the reconnect delay bounds
func WithBackoff(minDelay, maxDelay time.Duration) WebSocketOption {
	return func(s *WebSocketSource) {
		s.minBackoff = minDelay
		s.maxBackoff = maxDelay
	}
}

// WithReadTimeout sets how long the socket may stay silent
func WithReadTimeout(d time.Duration) WebSocketOption {
	return func(s *WebSocketSource) {
		s.readTimeout = d
	}
}

// NewWebSocketSource creates a source for the server at serverURL
// (http or https; the scheme is switched to ws or wss)
func NewWebSocketSource(serverURL string, logger *slog.Logger, opts ...WebSocketOption) (*WebSocketSource, error) {
	wsURL, err := websocketURL(serverURL)
	if err != nil {
		return nil, err
	}

	s := &WebSocketSource{
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger:      logger,
		changes:     newNotifier(),
		url:         wsURL,
		minBackoff:  time.Second,
		maxBackoff:  time.Minute,
		readTimeout: 45 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme", serverURL)
	}
	u.Path = strings.TrimRight(u.Path, "/") + api.PathWS
	return u.String(), nil
}

// URL returns the websocket endpoint
func (s *WebSocketSource) URL() string {
	return s.url
}

// Run connects and reconnects until ctx is done
func (s *WebSocketSource) Run(ctx context.Context) error {
	for {
		backoff := retry.WithCappedDuration(s.maxBackoff, retry.NewExponential(s.minBackoff))

		conn, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*websocket.Conn, error) {
			conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
			if err != nil {
				s.logger.Debug("Websocket dial failed", "url", s.url, "error", err)
				return nil, retry.RetryableError(err)
			}
			return conn, nil
		})
		if err != nil {
			// Бесконечный backoff завершается только по отмене контекста
			return nil
		}

		s.logger.Info("Connected to server", "url", s.url)
		s.set(true)
		err = s.session(ctx, conn)
		s.set(false)

		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("Connection to server lost", "error", err)
	}
}

// session reads until the socket fails or ctx is done
func (s *WebSocketSource) session(ctx context.Context, conn *websocket.Conn) error {
	defer func() { _ = conn.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
}

func (s *WebSocketSource) set(online bool) {
	if s.online.Swap(online) != online {
		s.changes.notify()
	}
}

func (s *WebSocketSource) Online() bool {
	return s.online.Load()
}

func (s *WebSocketSource) Changes() <-chan struct{} {
	return s.changes.ch
}
