package database

import (
	"time"

	"github.com/kozaktomas/facewatch/internal/facematch"
)

// AnonymousSubmitter identifies observations submitted without an identity.
const AnonymousSubmitter = "anonymous"

// Subject is a tracked identity. Its Observations are in insertion order,
// which is also chronological order of SubmittedAt.
type Subject struct {
	ID           int64
	Name         string
	Descriptors  []facematch.Descriptor // Reference descriptors, at least the one used at creation
	Observations []Observation
	CreatedAt    time.Time
}

// LastObservation returns the most recently appended observation, or nil.
func (s *Subject) LastObservation() *Observation {
	if len(s.Observations) == 0 {
		return nil
	}
	return &s.Observations[len(s.Observations)-1]
}

// Observation is one sighting of a subject. It is immutable once stored.
type Observation struct {
	ID          int64
	SubjectID   int64
	Location    string
	DateContext string     // Free-form date description supplied by the submitter
	StartDate   *time.Time // Optional start of the submitter's date range
	EndDate     *time.Time // Optional end of the range, nil means open-ended ("present")
	SubmittedAt time.Time  // Server clock at append time
	Note        string
	ImageRef    string // Reference into the external blob store
	Submitter   string
}

// NewSubject holds everything needed to create a subject together with its first observation.
type NewSubject struct {
	Name        string
	Descriptor  facematch.Descriptor
	Observation Observation
}
