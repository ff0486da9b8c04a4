package database

import (
	"context"
)

// SubjectReader provides read access to subjects.
type SubjectReader interface {
	// ListSubjects returns every subject ordered by ascending ID, with descriptors
	// and observations populated.
	ListSubjects(ctx context.Context) ([]Subject, error)
	// GetSubject returns a single subject or ErrNotFound.
	GetSubject(ctx context.Context, id int64) (*Subject, error)
}

// SubjectWriter provides write access to subjects. Subjects are never deleted and
// their observations are never modified.
type SubjectWriter interface {
	SubjectReader

	// CreateSubject stores the subject, its reference descriptor and its first
	// observation atomically and returns the assigned subject ID.
	CreateSubject(ctx context.Context, s NewSubject) (int64, error)

	// AppendObservation appends obs to the subject's history atomically.
	// Returns the stored observation with its ID assigned, or ErrNotFound.
	AppendObservation(ctx context.Context, subjectID int64, obs Observation) (*Observation, error)
}

// WatcherStore persists watch subscriptions keyed by subject ID.
type WatcherStore interface {
	// AddWatch records that watcher follows subjectID. Adding an existing pair is a no-op.
	AddWatch(ctx context.Context, watcher string, subjectID int64) error
	// FindWatchers returns the distinct watchers of subjectID in ascending order.
	FindWatchers(ctx context.Context, subjectID int64) ([]string, error)
}

// Repository is the full storage contract consumed by the engine, registry and handlers.
type Repository interface {
	SubjectWriter
	WatcherStore

	// Close releases the backend's resources.
	Close() error
}
