package matching

import (
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestParseDateRange(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		wantStart *time.Time
		wantEnd   *time.Time
		wantErr   bool
	}{
		{"empty", "", "", nil, nil, false},
		{"dates", "2026-01-01", "2026-02-01", day("2026-01-01"), day("2026-02-01"), false},
		{"open end", "2026-01-01", "", day("2026-01-01"), nil, false},
		{"rfc3339 truncated to day", "2026-01-01T15:04:05Z", "", day("2026-01-01"), nil, false},
		{"inverted", "2026-02-01", "2026-01-01", nil, nil, true},
		{"garbage", "soon", "", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseDateRange(tt.start, tt.end)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Errorf("error = %v, want ErrInvalidDate", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDateRange() error = %v", err)
			}
			if !sameTime(r.Start, tt.wantStart) || !sameTime(r.End, tt.wantEnd) {
				t.Errorf("range = %v..%v, want %v..%v", r.Start, r.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func TestDateRange_Overlaps(t *testing.T) {
	jan := DateRange{Start: day("2026-01-01"), End: day("2026-01-31")}

	tests := []struct {
		name  string
		other DateRange
		want  bool
	}{
		{"inside", DateRange{Start: day("2026-01-10"), End: day("2026-01-20")}, true},
		{"touching end", DateRange{Start: day("2026-01-31"), End: day("2026-02-05")}, true},
		{"after", DateRange{Start: day("2026-02-01"), End: day("2026-02-05")}, false},
		{"before", DateRange{Start: day("2025-12-01"), End: day("2025-12-31")}, false},
		{"open ended from before", DateRange{Start: day("2025-06-01")}, true},
		{"open ended from after", DateRange{Start: day("2026-03-01")}, false},
		{"no start", DateRange{End: day("2026-01-15")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jan.Overlaps(tt.other); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := tt.other.Overlaps(jan); got != tt.want {
				t.Errorf("Overlaps() reversed = %v, want %v", got, tt.want)
			}
		})
	}

	open := DateRange{Start: day("2026-01-01")}
	if !open.Overlaps(DateRange{Start: day("2030-01-01")}) {
		t.Error("two open-ended ranges always overlap")
	}
}

func TestDateRange_Label(t *testing.T) {
	if got := (DateRange{Start: day("2026-01-01")}).Label(); got != "2026-01-01 to present" {
		t.Errorf("Label() = %q", got)
	}
	if got := (DateRange{Start: day("2026-01-01"), End: day("2026-01-02")}).Label(); got != "2026-01-01 to 2026-01-02" {
		t.Errorf("Label() = %q", got)
	}
	if got := (DateRange{}).Label(); got != "" {
		t.Errorf("Label() = %q, want empty", got)
	}
}

func TestPolicy_BuildObservation(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.FixedZone("CET", 3600))
	obs := Policy{}.BuildObservation(Submission{
		City:      "  Paris ",
		Note:      "near the river",
		ImageRef:  "sightings/1.jpg",
		Submitter: "",
	}, DateRange{Start: day("2026-03-30")}, now)

	if obs.Location != "Paris" {
		t.Errorf("Location = %q, want trimmed Paris", obs.Location)
	}
	if obs.Submitter != database.AnonymousSubmitter {
		t.Errorf("Submitter = %q, want anonymous", obs.Submitter)
	}
	if !obs.SubmittedAt.Equal(now) || obs.SubmittedAt.Location() != time.UTC {
		t.Errorf("SubmittedAt = %v, want %v in UTC", obs.SubmittedAt, now)
	}
	if obs.StartDate == nil || obs.EndDate != nil {
		t.Errorf("range = %v..%v", obs.StartDate, obs.EndDate)
	}
}

func TestPolicy_FindOverlaps(t *testing.T) {
	history := []database.Observation{
		{Location: "Paris", StartDate: day("2026-01-01"), EndDate: day("2026-01-31"), Submitter: "a@x.com"},
		{Location: "Berlin", StartDate: day("2026-01-20"), Submitter: database.AnonymousSubmitter},
		{Location: "Rome", Submitter: "c@x.com"},
		{Location: "Oslo", StartDate: day("2025-01-01"), EndDate: day("2025-02-01"), Submitter: "c@x.com"},
	}
	rng := DateRange{Start: day("2026-01-25")}

	got := Policy{DetectOverlaps: true}.FindOverlaps("b@x.com", rng, history)
	if len(got) != 2 || got[0].City != "Paris" || got[1].City != "Berlin" {
		t.Errorf("FindOverlaps() = %+v, want Paris and Berlin", got)
	}
	if got[1].Dates != "2026-01-20 to present" {
		t.Errorf("Dates = %q", got[1].Dates)
	}

	got = Policy{DetectOverlaps: true}.FindOverlaps("a@x.com", rng, history)
	if len(got) != 1 || got[0].City != "Berlin" {
		t.Errorf("own sightings must be excluded, got %+v", got)
	}

	if got := (Policy{DetectOverlaps: false}).FindOverlaps("b@x.com", rng, history); got != nil {
		t.Errorf("disabled detection returned %+v", got)
	}
	if got := (Policy{DetectOverlaps: true}).FindOverlaps("b@x.com", DateRange{}, history); got != nil {
		t.Errorf("no submitter range returned %+v", got)
	}
}
