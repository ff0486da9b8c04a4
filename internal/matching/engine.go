// Package matching decides whether a submitted descriptor belongs to a known
// subject and records the sighting.
//
// Candidates are scanned in ascending subject ID order. Under the default policy the
// first candidate under the threshold wins, even if a later one is closer.
//
// Scan, decide and create run inside one engine-wide critical section, so two
// submissions of the same new face cannot both create a subject. Appends to a
// matched subject happen outside it and are serialized per subject only.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
	"github.com/kozaktomas/facewatch/internal/notify"
)

var (
	// ErrRepositoryUnavailable marks a submission that failed on infrastructure.
	// Nothing was written; the caller may retry.
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	// ErrMissingDescriptor is reported when a submission carries no descriptor.
	// Submit turns it into StatusNoFace rather than returning it.
	ErrMissingDescriptor = errors.New("missing descriptor")
)

// Status is the outcome of a submission.
type Status string

const (
	StatusMatch   Status = "match"
	StatusNoMatch Status = "no_match"
	StatusNoFace  Status = "no_face"
)

// Submission is one sighting report.
type Submission struct {
	Descriptor  facematch.Descriptor
	Name        string
	City        string
	DateContext string
	StartDate   string
	EndDate     string
	Note        string
	ImageRef    string
	Submitter   string
}

// Result describes what a submission did.
type Result struct {
	Status       Status
	SubjectID    int64
	SubjectName  string
	Observations []database.Observation // Full history after the submission, oldest first
	Overlaps     []Overlap
	Distance     float64 // Distance to the matched subject, zero otherwise
}

// Notifier receives match events. Publish must not block.
type Notifier interface {
	Publish(ev notify.Event) bool
}

// Engine matches submissions against the repository's subjects.
type Engine struct {
	repo     database.SubjectWriter
	notifier Notifier

	matcher     facematch.Matcher
	dimension   int
	policy      Policy
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
	repoTimeout time.Duration
	newName     func(now time.Time) string

	scanLock    chan struct{}
	subjectLock *keyedLock
}

// NewEngine creates an engine over repo. notifier may be nil.
func NewEngine(repo database.SubjectWriter, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		repo:        repo,
		notifier:    notifier,
		matcher:     facematch.Matcher{Metric: facematch.MetricL2, Threshold: 0.6, Policy: facematch.PolicyFirst},
		policy:      Policy{DetectOverlaps: true},
		logger:      logging.Discard(),
		now:         time.Now,
		repoTimeout: 5 * time.Second,
		newName:     PlaceholderName,
		scanLock:    make(chan struct{}, 1),
		subjectLock: newKeyedLock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Matcher returns the engine's matcher.
func (e *Engine) Matcher() facematch.Matcher {
	return e.matcher
}

// PlaceholderName generates "Subject-20260314T101500-1a2b3c4d" from the clock and a random suffix.
func PlaceholderName(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:constants.PlaceholderSuffixLength]
	return fmt.Sprintf("%s-%s-%s", constants.PlaceholderNamePrefix, now.UTC().Format(constants.PlaceholderTimeLayout), suffix)
}

// Submit matches sub against known subjects and records the sighting.
// Errors are limited to invalid input and ErrRepositoryUnavailable.
func (e *Engine) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if len(sub.Descriptor) == 0 {
		e.logger.Debug("submission without descriptor", "error", ErrMissingDescriptor)
		e.metrics.SubmissionObserved(string(StatusNoFace))
		return &Result{Status: StatusNoFace}, nil
	}
	rng, err := e.validate(sub)
	if err != nil {
		return nil, err
	}

	if err := e.acquireScanLock(ctx); err != nil {
		return nil, err
	}

	candidates, err := e.listSubjects(ctx)
	if err != nil {
		e.releaseScanLock()
		return nil, err
	}

	match, distance := e.scan(sub.Descriptor, candidates)
	if match == nil {
		created, err := e.create(ctx, sub, rng)
		e.releaseScanLock()
		if err != nil {
			return nil, err
		}
		return e.createdResult(ctx, created), nil
	}
	e.releaseScanLock()

	return e.appendTo(ctx, match, distance, sub, rng)
}

// Validate reports whether Submit would reject sub before touching the
// repository. A submission without a descriptor is valid and yields no_face.
func (e *Engine) Validate(sub Submission) error {
	if len(sub.Descriptor) == 0 {
		return nil
	}
	_, err := e.validate(sub)
	return err
}

func (e *Engine) validate(sub Submission) (DateRange, error) {
	if e.dimension > 0 && len(sub.Descriptor) != e.dimension {
		return DateRange{}, &facematch.ErrDimensionMismatch{Expected: e.dimension, Actual: len(sub.Descriptor)}
	}
	return ParseDateRange(sub.StartDate, sub.EndDate)
}

func (e *Engine) acquireScanLock(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.repoTimeout)
	defer cancel()

	select {
	case e.scanLock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for matching lock: %w", ErrRepositoryUnavailable, ctx.Err())
	}
}

func (e *Engine) releaseScanLock() {
	<-e.scanLock
}

// scan returns the winning candidate under the matcher's policy, or nil.
func (e *Engine) scan(probe facematch.Descriptor, candidates []database.Subject) (*database.Subject, float64) {
	var best *database.Subject
	var bestDistance float64

	for i := range candidates {
		c := &candidates[i]
		d, err := e.matcher.BestOf(probe, c.Descriptors)
		if err != nil {
			e.metrics.CandidateSkipped()
			e.logger.Warn("skipping candidate", "subject_id", c.ID, "error", err)
			continue
		}
		if d >= e.matcher.Threshold {
			continue
		}
		if e.matcher.Policy != facematch.PolicyNearest {
			return c, d
		}
		if best == nil || d < bestDistance {
			best, bestDistance = c, d
		}
	}
	return best, bestDistance
}

// create stores a new subject and returns it as written.
func (e *Engine) create(ctx context.Context, sub Submission, rng DateRange) (database.Subject, error) {
	now := e.now()
	name := strings.TrimSpace(sub.Name)
	if name == "" {
		name = e.newName(now)
	}
	obs := e.policy.BuildObservation(sub, rng, now)

	var id int64
	err := e.call(ctx, "create", func(ctx context.Context) error {
		var err error
		id, err = e.repo.CreateSubject(ctx, database.NewSubject{
			Name:        name,
			Descriptor:  sub.Descriptor,
			Observation: obs,
		})
		return err
	})
	if err != nil {
		return database.Subject{}, err
	}

	obs.SubjectID = id
	e.metrics.SubjectCreated()
	e.metrics.SubmissionObserved(string(StatusNoMatch))
	e.logger.Info("subject created", "subject_id", id, "name", name)
	return database.Subject{
		ID:           id,
		Name:         name,
		Descriptors:  []facematch.Descriptor{sub.Descriptor},
		Observations: []database.Observation{obs},
		CreatedAt:    now,
	}, nil
}

// createdResult reads the new subject back. The write already succeeded, so a
// failed read falls back to what was sent.
func (e *Engine) createdResult(ctx context.Context, created database.Subject) *Result {
	subject := &created
	err := e.call(ctx, "get", func(ctx context.Context) error {
		stored, err := e.repo.GetSubject(ctx, created.ID)
		if err == nil {
			subject = stored
		}
		return err
	})
	if err != nil {
		e.logger.Warn("reading created subject", "subject_id", created.ID, "error", err)
	}
	return &Result{
		Status:       StatusNoMatch,
		SubjectID:    subject.ID,
		SubjectName:  subject.Name,
		Observations: subject.Observations,
	}
}

func (e *Engine) appendTo(
	ctx context.Context, match *database.Subject, distance float64, sub Submission, rng DateRange,
) (*Result, error) {
	unlock, err := e.lockSubject(ctx, match.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	obs := e.policy.BuildObservation(sub, rng, e.now())
	var stored *database.Observation
	err = e.call(ctx, "append", func(ctx context.Context) error {
		var err error
		stored, err = e.repo.AppendObservation(ctx, match.ID, obs)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.metrics.SubmissionObserved(string(StatusMatch))
	e.logger.Info("subject matched", "subject_id", match.ID, "name", match.Name, "distance", distance)

	history := e.historyAfterAppend(ctx, match, stored)
	prior := history[:len(history)-1]

	e.publish(match, stored)

	return &Result{
		Status:       StatusMatch,
		SubjectID:    match.ID,
		SubjectName:  match.Name,
		Observations: history,
		Overlaps:     e.policy.FindOverlaps(stored.Submitter, rng, prior),
		Distance:     distance,
	}, nil
}

func (e *Engine) lockSubject(ctx context.Context, id int64) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, e.repoTimeout)
	defer cancel()

	unlock, err := e.subjectLock.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for subject %d: %w", ErrRepositoryUnavailable, id, err)
	}
	return unlock, nil
}

// historyAfterAppend returns the subject's observations ending with stored. It is
// read while the subject lock is held so no concurrent append can interleave.
func (e *Engine) historyAfterAppend(ctx context.Context, match *database.Subject, stored *database.Observation) []database.Observation {
	var current *database.Subject
	err := e.call(ctx, "get", func(ctx context.Context) error {
		var err error
		current, err = e.repo.GetSubject(ctx, match.ID)
		return err
	})
	if err == nil && len(current.Observations) > 0 && current.Observations[len(current.Observations)-1].ID == stored.ID {
		return current.Observations
	}
	if err != nil {
		e.logger.Warn("reading matched subject", "subject_id", match.ID, "error", err)
	}
	history := make([]database.Observation, 0, len(match.Observations)+1)
	history = append(history, match.Observations...)
	return append(history, *stored)
}

func (e *Engine) publish(match *database.Subject, stored *database.Observation) {
	if e.notifier == nil {
		return
	}
	ev := notify.Event{
		ID:          uuid.NewString(),
		SubjectID:   match.ID,
		SubjectName: match.Name,
		Observation: *stored,
	}
	if !e.notifier.Publish(ev) {
		e.logger.Warn("match event dropped", "event_id", ev.ID, "subject_id", match.ID)
	}
}

func (e *Engine) listSubjects(ctx context.Context) ([]database.Subject, error) {
	var subjects []database.Subject
	err := e.call(ctx, "list", func(ctx context.Context) error {
		var err error
		subjects, err = e.repo.ListSubjects(ctx)
		return err
	})
	return subjects, err
}

// call runs one repository operation under the repository timeout and classifies its failure.
func (e *Engine) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.repoTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	e.metrics.RepositoryCall(op, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRepositoryUnavailable, op, err)
	}
	return nil
}
