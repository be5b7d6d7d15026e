//go:build !unix

package cli

// backgroundSignals has no signal to listen to on this platform
func backgroundSignals() (<-chan struct{}, func()) {
	return nil, func() {}
}
