package database

import "errors"

var (
	// ErrNotFound is returned when a subject does not exist.
	ErrNotFound = errors.New("subject not found")

	// ErrUnavailable marks failures of the storage backend itself (connection,
	// timeout, I/O). Callers may retry operations that fail with it.
	ErrUnavailable = errors.New("repository unavailable")
)
