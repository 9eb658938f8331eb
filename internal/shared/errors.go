package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrSnapshotUnavailable occurs when the backing store cannot serve a consistent read.
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
)
