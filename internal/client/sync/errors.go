package sync

import "errors"

var (
	// ErrBusy indicates that a reconciliation pass is already running
	ErrBusy = errors.New("reconciliation already in progress")

	// ErrInvalidChoice indicates an unknown or incomplete conflict resolution choice
	ErrInvalidChoice = errors.New("invalid resolution choice")
)
