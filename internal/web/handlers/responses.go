package handlers

import (
	"time"

	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/matching"
)

// ObservationResponse is one sighting in API responses
type ObservationResponse struct {
	ID          int64     `json:"id"`
	City        string    `json:"city,omitempty"`
	DateContext string    `json:"date_context,omitempty"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	ReviewText  string    `json:"review_text,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty"`
	Submitter   string    `json:"submitter_email"`
}

// SubmissionResponse is the result of a submission
type SubmissionResponse struct {
	Status       matching.Status       `json:"status"`
	SubjectID    int64                 `json:"subject_id,omitempty"`
	SubjectName  string                `json:"subject_name,omitempty"`
	Observations []ObservationResponse `json:"observations"`
	Overlaps     []matching.Overlap    `json:"overlaps,omitempty"`
	Distance     float64               `json:"distance,omitempty"`
}

// SubjectSummary is a subject in list responses
type SubjectSummary struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	ObservationCount int        `json:"observation_count"`
	CreatedAt        time.Time  `json:"created_at"`
	LastSeen         *time.Time `json:"last_seen,omitempty"`
}

// SubjectResponse is a subject with its full history
type SubjectResponse struct {
	SubjectSummary
	Observations []ObservationResponse `json:"observations"`
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(constants.DateLayout)
}

func observationToResponse(o database.Observation) ObservationResponse {
	return ObservationResponse{
		ID:          o.ID,
		City:        o.Location,
		DateContext: o.DateContext,
		StartDate:   formatDate(o.StartDate),
		EndDate:     formatDate(o.EndDate),
		SubmittedAt: o.SubmittedAt,
		ReviewText:  o.Note,
		ImageRef:    o.ImageRef,
		Submitter:   o.Submitter,
	}
}

func observationsToResponse(obs []database.Observation) []ObservationResponse {
	out := make([]ObservationResponse, 0, len(obs))
	for _, o := range obs {
		out = append(out, observationToResponse(o))
	}
	return out
}

// NewSubmissionResponse converts an engine result to its wire form.
func NewSubmissionResponse(res *matching.Result) SubmissionResponse {
	return SubmissionResponse{
		Status:       res.Status,
		SubjectID:    res.SubjectID,
		SubjectName:  res.SubjectName,
		Observations: observationsToResponse(res.Observations),
		Overlaps:     res.Overlaps,
		Distance:     res.Distance,
	}
}

// NewSubjectSummary converts a subject to its list form.
func NewSubjectSummary(s database.Subject) SubjectSummary {
	summary := SubjectSummary{
		ID:               s.ID,
		Name:             s.Name,
		ObservationCount: len(s.Observations),
		CreatedAt:        s.CreatedAt,
	}
	if last := s.LastObservation(); last != nil {
		seen := last.SubmittedAt
		summary.LastSeen = &seen
	}
	return summary
}

// NewSubjectResponse converts a subject to its detailed form including history.
func NewSubjectResponse(s *database.Subject) SubjectResponse {
	return SubjectResponse{
		SubjectSummary: NewSubjectSummary(*s),
		Observations:   observationsToResponse(s.Observations),
	}
}
