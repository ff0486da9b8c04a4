package matching

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/database/memory"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/notify"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	reject bool
}

func (n *recordingNotifier) Publish(ev notify.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return !n.reject
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func mustMatcher(t *testing.T, threshold float64, policy facematch.Policy) facematch.Matcher {
	t.Helper()
	m, err := facematch.NewMatcher(facematch.MetricL2, threshold, policy)
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}
	return m
}

func submit(t *testing.T, e *Engine, sub Submission) *Result {
	t.Helper()
	res, err := e.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return res
}

func TestSubmit_EndToEndScenarios(t *testing.T) {
	store := memory.New()
	n := &recordingNotifier{}
	e := NewEngine(store, n, WithMatcher(mustMatcher(t, 0.6, facematch.PolicyFirst)))

	// Scenario 1: first sighting creates the subject.
	res := submit(t, e, Submission{Descriptor: facematch.Descriptor{0, 0}, Name: "Ann", City: "Paris"})
	if res.Status != StatusNoMatch {
		t.Fatalf("scenario 1 status = %s, want no_match", res.Status)
	}
	if res.SubjectName != "Ann" || len(res.Observations) != 1 {
		t.Fatalf("scenario 1 result = %+v", res)
	}
	annID := res.SubjectID

	// Scenario 2: a close descriptor appends to Ann.
	res = submit(t, e, Submission{Descriptor: facematch.Descriptor{0.01, 0}, City: "Berlin"})
	if res.Status != StatusMatch || res.SubjectID != annID || res.SubjectName != "Ann" {
		t.Fatalf("scenario 2 result = %+v", res)
	}
	if len(res.Observations) != 2 || res.Observations[0].Location != "Paris" || res.Observations[1].Location != "Berlin" {
		t.Fatalf("scenario 2 observations = %+v", res.Observations)
	}
	if res.Distance <= 0 || res.Distance >= 0.6 {
		t.Errorf("scenario 2 distance = %v", res.Distance)
	}
	if n.count() != 1 || n.events[0].SubjectID != annID {
		t.Errorf("expected one match event for Ann, got %+v", n.events)
	}

	// Scenario 4: a far descriptor creates an independent subject.
	res = submit(t, e, Submission{Descriptor: facematch.Descriptor{5, 5}, City: "Rome"})
	if res.Status != StatusNoMatch || res.SubjectID == annID {
		t.Fatalf("scenario 4 result = %+v", res)
	}

	ann, err := store.GetSubject(context.Background(), annID)
	if err != nil {
		t.Fatalf("GetSubject() error = %v", err)
	}
	if len(ann.Observations) != 2 {
		t.Errorf("Ann observations = %d after scenario 4, want 2", len(ann.Observations))
	}
	if n.count() != 1 {
		t.Errorf("no_match must not publish, events = %d", n.count())
	}
}

func TestSubmit_ThresholdIsStrict(t *testing.T) {
	tests := []struct {
		name  string
		probe facematch.Descriptor
		want  Status
	}{
		{"below threshold", facematch.Descriptor{0.4, 0}, StatusMatch},
		{"exactly at threshold", facematch.Descriptor{0.5, 0}, StatusNoMatch},
		{"above threshold", facematch.Descriptor{0.75, 0}, StatusNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			e := NewEngine(store, nil, WithMatcher(mustMatcher(t, 0.5, facematch.PolicyFirst)))
			submit(t, e, Submission{Descriptor: facematch.Descriptor{0, 0}, Name: "Ann"})

			res := submit(t, e, Submission{Descriptor: tt.probe})
			if res.Status != tt.want {
				t.Errorf("status = %s, want %s", res.Status, tt.want)
			}
		})
	}
}

func TestSubmit_CosineZeroDescriptorMatchesItself(t *testing.T) {
	m, err := facematch.NewMatcher(facematch.MetricCosine, 0.5, facematch.PolicyFirst)
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}
	store := memory.New()
	e := NewEngine(store, nil, WithMatcher(m))

	first := submit(t, e, Submission{Descriptor: facematch.Descriptor{0, 0, 0}})
	for i := range 2 {
		res := submit(t, e, Submission{Descriptor: facematch.Descriptor{0, 0, 0}})
		if res.Status != StatusMatch || res.SubjectID != first.SubjectID {
			t.Fatalf("resubmission %d = %s subject %d, want match subject %d", i+1, res.Status, res.SubjectID, first.SubjectID)
		}
	}

	subjects, err := store.ListSubjects(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(subjects) != 1 || len(subjects[0].Observations) != 3 {
		t.Errorf("subjects = %d, want 1 with 3 observations", len(subjects))
	}
}

func TestSubmit_MatchPolicy(t *testing.T) {
	tests := []struct {
		policy facematch.Policy
		want   string
	}{
		{facematch.PolicyFirst, "A"},
		{facematch.PolicyNearest, "B"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			store := memory.New()
			ctx := context.Background()
			if _, err := store.CreateSubject(ctx, database.NewSubject{Name: "A", Descriptor: facematch.Descriptor{0, 0}}); err != nil {
				t.Fatal(err)
			}
			if _, err := store.CreateSubject(ctx, database.NewSubject{Name: "B", Descriptor: facematch.Descriptor{0.3, 0}}); err != nil {
				t.Fatal(err)
			}

			e := NewEngine(store, nil, WithMatcher(mustMatcher(t, 0.6, tt.policy)))
			res := submit(t, e, Submission{Descriptor: facematch.Descriptor{0.25, 0}})
			if res.Status != StatusMatch || res.SubjectName != tt.want {
				t.Errorf("matched %q (%s), want %q", res.SubjectName, res.Status, tt.want)
			}
		})
	}
}

func TestSubmit_SkipsMismatchedCandidates(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	if _, err := store.CreateSubject(ctx, database.NewSubject{Name: "legacy", Descriptor: facematch.Descriptor{0, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateSubject(ctx, database.NewSubject{Name: "Ann", Descriptor: facematch.Descriptor{0, 0}}); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(store, nil)
	res := submit(t, e, Submission{Descriptor: facematch.Descriptor{0.1, 0}})
	if res.Status != StatusMatch || res.SubjectName != "Ann" {
		t.Errorf("result = %+v, want match against Ann", res)
	}
}

func TestSubmit_NoFace(t *testing.T) {
	store := memory.New()
	e := NewEngine(store, nil)

	for _, d := range []facematch.Descriptor{nil, {}} {
		res := submit(t, e, Submission{Descriptor: d, Name: "Ann"})
		if res.Status != StatusNoFace {
			t.Errorf("status = %s, want no_face", res.Status)
		}
	}
	if store.ListCalls() != 0 || store.CreateCalls() != 0 {
		t.Error("no_face must not touch the repository")
	}
}

func TestSubmit_DimensionEnforced(t *testing.T) {
	e := NewEngine(memory.New(), nil, WithDimension(3))

	_, err := e.Submit(context.Background(), Submission{Descriptor: facematch.Descriptor{1, 2}})
	var dimErr *facematch.ErrDimensionMismatch
	if !errors.As(err, &dimErr) {
		t.Fatalf("error = %v, want ErrDimensionMismatch", err)
	}
	if dimErr.Expected != 3 || dimErr.Actual != 2 {
		t.Errorf("mismatch = %+v", dimErr)
	}
}

func TestSubmit_RepositoryUnavailable(t *testing.T) {
	down := fmt.Errorf("%w: connection refused", database.ErrUnavailable)

	t.Run("list fails", func(t *testing.T) {
		store := memory.New()
		store.ListError = down
		e := NewEngine(store, nil)

		_, err := e.Submit(context.Background(), Submission{Descriptor: facematch.Descriptor{0, 0}})
		if !errors.Is(err, ErrRepositoryUnavailable) || !errors.Is(err, database.ErrUnavailable) {
			t.Errorf("error = %v, want ErrRepositoryUnavailable wrapping database.ErrUnavailable", err)
		}
		if store.CreateCalls() != 0 {
			t.Error("no write may follow a failed scan")
		}
	})

	t.Run("create fails", func(t *testing.T) {
		store := memory.New()
		store.CreateError = down
		e := NewEngine(store, nil)

		_, err := e.Submit(context.Background(), Submission{Descriptor: facematch.Descriptor{0, 0}})
		if !errors.Is(err, ErrRepositoryUnavailable) {
			t.Errorf("error = %v, want ErrRepositoryUnavailable", err)
		}
		store.CreateError = nil
		subjects, _ := store.ListSubjects(context.Background())
		if len(subjects) != 0 {
			t.Errorf("failed create left %d subjects", len(subjects))
		}
	})

	t.Run("read back fails after create", func(t *testing.T) {
		store := memory.New()
		store.GetError = down
		e := NewEngine(store, nil)

		res := submit(t, e, Submission{Descriptor: facematch.Descriptor{0, 0}, Name: "Ann", City: "Paris"})
		if res.Status != StatusNoMatch || res.SubjectID == 0 {
			t.Fatalf("result = %+v, want created subject", res)
		}
		if res.SubjectName != "Ann" {
			t.Errorf("SubjectName = %q, want Ann", res.SubjectName)
		}
		if len(res.Observations) != 1 || res.Observations[0].Location != "Paris" {
			t.Errorf("Observations = %+v", res.Observations)
		}
	})

	t.Run("append fails", func(t *testing.T) {
		store := memory.New()
		n := &recordingNotifier{}
		e := NewEngine(store, n)
		submit(t, e, Submission{Descriptor: facematch.Descriptor{0, 0}})

		store.AppendError = down
		_, err := e.Submit(context.Background(), Submission{Descriptor: facematch.Descriptor{0, 0}})
		if !errors.Is(err, ErrRepositoryUnavailable) {
			t.Errorf("error = %v, want ErrRepositoryUnavailable", err)
		}
		if n.count() != 0 {
			t.Error("failed append must not publish")
		}
	})
}

func TestSubmit_RepositoryTimeout(t *testing.T) {
	store := memory.New()
	store.ListDelay = time.Second
	e := NewEngine(store, nil, WithRepositoryTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := e.Submit(context.Background(), Submission{Descriptor: facematch.Descriptor{0, 0}})
	if !errors.Is(err, ErrRepositoryUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want ErrRepositoryUnavailable with deadline exceeded", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Submit took %v, timeout not applied", time.Since(start))
	}
}

func TestSubmit_ServerTimestampAndDefaults(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC)
	e := NewEngine(memory.New(), nil, WithClock(func() time.Time { return fixed }))

	res := submit(t, e, Submission{Descriptor: facematch.Descriptor{0, 0}})

	if !res.Observations[0].SubmittedAt.Equal(fixed) {
		t.Errorf("SubmittedAt = %v, want server clock %v", res.Observations[0].SubmittedAt, fixed)
	}
	if res.Observations[0].Submitter != database.AnonymousSubmitter {
		t.Errorf("Submitter = %q, want %q", res.Observations[0].Submitter, database.AnonymousSubmitter)
	}
	pattern := regexp.MustCompile(`^Subject-20260314T101500-[0-9a-f]{8}$`)
	if !pattern.MatchString(res.SubjectName) {
		t.Errorf("placeholder name %q does not match %s", res.SubjectName, pattern)
	}
}

func TestSubmit_NameGenerator(t *testing.T) {
	e := NewEngine(memory.New(), nil, WithNameGenerator(func(time.Time) string { return "unknown-1" }))
	res := submit(t, e, Submission{Descriptor: facematch.Descriptor{0, 0}, Name: "   "})
	if res.SubjectName != "unknown-1" {
		t.Errorf("SubjectName = %q, want unknown-1", res.SubjectName)
	}
}

func TestSubmit_AppendOnly(t *testing.T) {
	store := memory.New()
	e := NewEngine(store, nil)
	first := submit(t, e, Submission{Descriptor: facematch.Descriptor{0, 0}, City: "Paris", Note: "cafe"})

	before, _ := store.GetSubject(context.Background(), first.SubjectID)
	for _, city := range []string{"Berlin", "Prague", "Vienna"} {
		submit(t, e, Submission{Descriptor: facematch.Descriptor{0.01, 0}, City: city})
	}
	after, _ := store.GetSubject(context.Background(), first.SubjectID)

	if len(after.Observations) != len(before.Observations)+3 {
		t.Fatalf("len = %d, want %d", len(after.Observations), len(before.Observations)+3)
	}
	for i, o := range before.Observations {
		if after.Observations[i].ID != o.ID || after.Observations[i].Location != o.Location || after.Observations[i].Note != o.Note {
			t.Errorf("observation %d changed: before %+v after %+v", i, o, after.Observations[i])
		}
	}
	if len(after.Descriptors) != 1 {
		t.Errorf("appends must not add reference descriptors, got %d", len(after.Descriptors))
	}
}

func TestSubmit_Overlaps(t *testing.T) {
	store := memory.New()
	e := NewEngine(store, nil)
	submit(t, e, Submission{
		Descriptor: facematch.Descriptor{0, 0},
		City:       "Paris",
		StartDate:  "2026-01-01",
		EndDate:    "2026-01-31",
		Submitter:  "a@x.com",
	})

	res := submit(t, e, Submission{
		Descriptor: facematch.Descriptor{0.01, 0},
		City:       "Berlin",
		StartDate:  "2026-01-15",
		Submitter:  "b@x.com",
	})
	if len(res.Overlaps) != 1 {
		t.Fatalf("overlaps = %+v, want one", res.Overlaps)
	}
	if res.Overlaps[0].City != "Paris" || res.Overlaps[0].Dates != "2026-01-01 to 2026-01-31" {
		t.Errorf("overlap = %+v", res.Overlaps[0])
	}

	own := submit(t, e, Submission{
		Descriptor: facematch.Descriptor{0.01, 0},
		City:       "Lyon",
		StartDate:  "2026-01-20",
		Submitter:  "a@x.com",
	})
	for _, o := range own.Overlaps {
		if o.City == "Paris" {
			t.Errorf("own prior sighting flagged as overlap: %+v", own.Overlaps)
		}
	}
}

func TestSubmit_InvalidDate(t *testing.T) {
	e := NewEngine(memory.New(), nil)
	_, err := e.Submit(context.Background(), Submission{Descriptor: facematch.Descriptor{0}, StartDate: "last tuesday"})
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("error = %v, want ErrInvalidDate", err)
	}
}

func TestSubmit_DroppedEventDoesNotFail(t *testing.T) {
	n := &recordingNotifier{reject: true}
	e := NewEngine(memory.New(), n)
	submit(t, e, Submission{Descriptor: facematch.Descriptor{0, 0}})

	res := submit(t, e, Submission{Descriptor: facematch.Descriptor{0, 0}})
	if res.Status != StatusMatch {
		t.Errorf("status = %s, want match", res.Status)
	}
}
