package connectivity

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// HealthChecker is satisfied by api.ClientAPI
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ProbeSource decides connectivity by calling the remote health endpoint.
// One-shot commands probe once; long-running hosts may probe periodically.
type ProbeSource struct {
	checker HealthChecker
	logger  *slog.Logger
	changes notifier
	online  atomic.Bool
	timeout time.Duration
}

var _ Source = (*ProbeSource)(nil)

// NewProbeSource creates an offline source until the first probe
func NewProbeSource(checker HealthChecker, timeout time.Duration, logger *slog.Logger) *ProbeSource {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ProbeSource{
		checker: checker,
		logger:  logger,
		changes: newNotifier(),
		timeout: timeout,
	}
}

// Probe checks the remote once and returns the new state
func (s *ProbeSource) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.checker.Health(ctx)
	online := err == nil
	if err != nil {
		s.logger.Debug("Remote unreachable", "error", err)
	}

	if s.online.Swap(online) != online {
		s.changes.notify()
	}
	return online
}

func (s *ProbeSource) Online() bool {
	return s.online.Load()
}

func (s *ProbeSource) Changes() <-chan struct{} {
	return s.changes.ch
}
