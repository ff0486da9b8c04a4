// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Subject naming constants
const (
	// PlaceholderNamePrefix starts the generated name of a subject submitted without one
	PlaceholderNamePrefix = "Subject"

	// PlaceholderTimeLayout formats the server clock inside a placeholder name
	PlaceholderTimeLayout = "20060102T150405"

	// PlaceholderSuffixLength is the number of random hex characters appended to a placeholder name
	PlaceholderSuffixLength = 8
)

// Sighting date constants
const (
	// DateLayout is the calendar date format accepted for start_date and end_date
	DateLayout = "2006-01-02"

	// OpenEndLabel stands in for a missing end date when describing a range
	OpenEndLabel = "present"
)

// Processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) sent to the embedding service
	MaxImageSize = 1920
)

// Lifecycle constants
const (
	// ShutdownTimeout bounds graceful shutdown of the server and the dispatcher
	ShutdownTimeout = 30 * time.Second
)
