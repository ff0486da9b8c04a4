package matching

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/database"
)

// ErrInvalidDate is returned when a submitted date cannot be parsed or the range is inverted.
var ErrInvalidDate = errors.New("invalid date")

// DateRange is an inclusive calendar range. A nil End means open-ended ("present").
// A nil Start means the submitter gave no range at all.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// ParseDateRange parses start and end as 2006-01-02 or RFC 3339. Either may be empty.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if r.Start, err = parseDate(start); err != nil {
		return DateRange{}, fmt.Errorf("start_date: %w", err)
	}
	if r.End, err = parseDate(end); err != nil {
		return DateRange{}, fmt.Errorf("end_date: %w", err)
	}
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return DateRange{}, fmt.Errorf("%w: end_date %s is before start_date %s",
			ErrInvalidDate, r.End.Format(constants.DateLayout), r.Start.Format(constants.DateLayout))
	}
	return r, nil
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(constants.DateLayout, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &day, nil
}

// Overlaps reports whether both ranges are known and intersect. Open ends extend forever.
func (r DateRange) Overlaps(o DateRange) bool {
	if r.Start == nil || o.Start == nil {
		return false
	}
	if r.End != nil && o.Start.After(*r.End) {
		return false
	}
	if o.End != nil && r.Start.After(*o.End) {
		return false
	}
	return true
}

// Label renders the range as "2026-01-02 to 2026-02-01" or "2026-01-02 to present".
func (r DateRange) Label() string {
	if r.Start == nil {
		return ""
	}
	end := constants.OpenEndLabel
	if r.End != nil {
		end = r.End.Format(constants.DateLayout)
	}
	return r.Start.Format(constants.DateLayout) + " to " + end
}

// Overlap flags a prior sighting whose dates intersect the submitter's range.
type Overlap struct {
	City  string `json:"city"`
	Dates string `json:"dates"`
}

// Policy builds observations and enriches matches with overlap information.
// History is never edited: observations are only ever appended.
type Policy struct {
	DetectOverlaps bool
}

// BuildObservation turns a submission into the observation the repository stores.
// now is the server clock at append time; the client never supplies the timestamp.
func (p Policy) BuildObservation(sub Submission, rng DateRange, now time.Time) database.Observation {
	submitter := strings.TrimSpace(sub.Submitter)
	if submitter == "" {
		submitter = database.AnonymousSubmitter
	}
	return database.Observation{
		Location:    strings.TrimSpace(sub.City),
		DateContext: strings.TrimSpace(sub.DateContext),
		StartDate:   rng.Start,
		EndDate:     rng.End,
		SubmittedAt: now.UTC(),
		Note:        sub.Note,
		ImageRef:    sub.ImageRef,
		Submitter:   submitter,
	}
}

// FindOverlaps returns prior observations by other submitters whose date ranges
// intersect rng. Observations by the same identified submitter are not flagged;
// anonymous observations always are.
func (p Policy) FindOverlaps(submitter string, rng DateRange, history []database.Observation) []Overlap {
	if !p.DetectOverlaps || rng.Start == nil {
		return nil
	}

	var overlaps []Overlap
	for _, o := range history {
		if submitter != database.AnonymousSubmitter && o.Submitter == submitter {
			continue
		}
		prior := DateRange{Start: o.StartDate, End: o.EndDate}
		if rng.Overlaps(prior) {
			overlaps = append(overlaps, Overlap{City: o.Location, Dates: prior.Label()})
		}
	}
	return overlaps
}
