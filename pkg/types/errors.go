package types

import "errors"

// Index operation errors.
var (
	// ErrNotFound reports that no identifier or path could be resolved.
	ErrNotFound = errors.New("asset not found")

	// ErrStoreClosed is returned by store operations after Close.
	ErrStoreClosed = errors.New("store is closed")

	// ErrScannerClosed is returned by WaitIdle and Sweep after the scanner
	// is closed.
	ErrScannerClosed = errors.New("scanner is closed")

	// ErrSweepRunning is returned when a sweep is requested while one is
	// already in progress.
	ErrSweepRunning = errors.New("sweep already running")

	// ErrInvalidPath reports a path outside the project root or otherwise
	// unusable as a project-relative asset path.
	ErrInvalidPath = errors.New("invalid asset path")

	// ErrInvalidGUID reports an identifier that is not 32 lowercase hex
	// characters.
	ErrInvalidGUID = errors.New("invalid asset identifier")
)
