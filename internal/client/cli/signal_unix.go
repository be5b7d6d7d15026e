//go:build unix

package cli

import (
	"os"
	"os/signal"
	"syscall"
)

// backgroundSignals turns SIGUSR1 into sync requests. The returned stop
// function must be called to release the signal.
func backgroundSignals() (<-chan struct{}, func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigs:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out, func() {
		signal.Stop(sigs)
		close(done)
	}
}
