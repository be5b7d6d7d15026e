package connectivity

import (
	"sync/atomic"
)

// Source is a connectivity signal supplied by the host environment.
type Source interface {
	// Online reports the current state
	Online() bool

	// Changes notifies that the state may have changed. Notifications are
	// coalesced: read Online after each one.
	Changes() <-chan struct{}
}

// notifier is a coalescing change signal shared by the sources
type notifier struct {
	ch chan struct{}
}

func newNotifier() notifier {
	return notifier{ch: make(chan struct{}, 1)}
}

func (n notifier) notify() {
	select {
	case n.ch <- struct{}{}:
	default:
		// Уведомление уже ожидает чтения
	}
}

// ManualSource is switched by the host: tests, the --offline flag, or
// platform callbacks.
type ManualSource struct {
	changes notifier
	online  atomic.Bool
}

var _ Source = (*ManualSource)(nil)

// NewManualSource creates a source in the given state
func NewManualSource(online bool) *ManualSource {
	s := &ManualSource{changes: newNotifier()}
	s.online.Store(online)
	return s
}

// Set switches the state and notifies on transitions
func (s *ManualSource) Set(online bool) {
	if s.online.Swap(online) != online {
		s.changes.notify()
	}
}

func (s *ManualSource) Online() bool {
	return s.online.Load()
}

func (s *ManualSource) Changes() <-chan struct{} {
	return s.changes.ch
}
