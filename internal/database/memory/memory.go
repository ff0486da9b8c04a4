// Package memory provides an in-memory implementation of database.Repository.
// It backs the "memory" store and the unit tests of the packages above it.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
)

// Store is an in-memory repository. All reads return deep copies so callers can
// never alter stored history.
type Store struct {
	mu       sync.RWMutex
	subjects map[int64]*database.Subject
	watchers map[int64]map[string]time.Time
	nextID   int64
	nextObs  int64

	// Call tracking
	listCalls   atomic.Int64
	createCalls atomic.Int64
	appendCalls atomic.Int64

	// Error injection
	ListError         error
	GetError          error
	CreateError       error
	AppendError       error
	AddWatchError     error
	FindWatchersError error

	// ListDelay slows ListSubjects down to widen race windows in tests.
	ListDelay time.Duration
}

// New creates an empty store.
func New() *Store {
	return &Store{
		subjects: make(map[int64]*database.Subject),
		watchers: make(map[int64]map[string]time.Time),
	}
}

// ListCalls returns how many times ListSubjects was called.
func (s *Store) ListCalls() int64 { return s.listCalls.Load() }

// CreateCalls returns how many times CreateSubject was called.
func (s *Store) CreateCalls() int64 { return s.createCalls.Load() }

// AppendCalls returns how many times AppendObservation was called.
func (s *Store) AppendCalls() int64 { return s.appendCalls.Load() }

// ListSubjects returns all subjects ordered by ascending ID.
func (s *Store) ListSubjects(ctx context.Context) ([]database.Subject, error) {
	s.listCalls.Add(1)
	if s.ListError != nil {
		return nil, s.ListError
	}
	if s.ListDelay > 0 {
		select {
		case <-time.After(s.ListDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.subjects))
	for id := range s.subjects {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	result := make([]database.Subject, 0, len(ids))
	for _, id := range ids {
		result = append(result, copySubject(s.subjects[id]))
	}
	return result, nil
}

// GetSubject returns a subject by ID.
func (s *Store) GetSubject(ctx context.Context, id int64) (*database.Subject, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	subj, ok := s.subjects[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := copySubject(subj)
	return &c, nil
}

// CreateSubject stores a new subject with its first observation.
func (s *Store) CreateSubject(ctx context.Context, ns database.NewSubject) (int64, error) {
	s.createCalls.Add(1)
	if s.CreateError != nil {
		return 0, s.CreateError
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.nextObs++
	id := s.nextID

	obs := ns.Observation
	obs.ID = s.nextObs
	obs.SubjectID = id

	s.subjects[id] = &database.Subject{
		ID:           id,
		Name:         ns.Name,
		Descriptors:  []facematch.Descriptor{slices.Clone(ns.Descriptor)},
		Observations: []database.Observation{obs},
		CreatedAt:    obs.SubmittedAt,
	}
	return id, nil
}

// AppendObservation appends an observation to an existing subject.
func (s *Store) AppendObservation(ctx context.Context, subjectID int64, obs database.Observation) (*database.Observation, error) {
	s.appendCalls.Add(1)
	if s.AppendError != nil {
		return nil, s.AppendError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subj, ok := s.subjects[subjectID]
	if !ok {
		return nil, database.ErrNotFound
	}

	s.nextObs++
	obs.ID = s.nextObs
	obs.SubjectID = subjectID
	subj.Observations = append(subj.Observations, obs)

	stored := obs
	return &stored, nil
}

// AddWatch records a watch subscription. Repeated calls are no-ops.
func (s *Store) AddWatch(ctx context.Context, watcher string, subjectID int64) error {
	if s.AddWatchError != nil {
		return s.AddWatchError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subjects[subjectID]; !ok {
		return database.ErrNotFound
	}
	set, ok := s.watchers[subjectID]
	if !ok {
		set = make(map[string]time.Time)
		s.watchers[subjectID] = set
	}
	if _, exists := set[watcher]; !exists {
		set[watcher] = time.Now()
	}
	return nil
}

// FindWatchers returns the watchers of a subject in ascending order.
func (s *Store) FindWatchers(ctx context.Context, subjectID int64) ([]string, error) {
	if s.FindWatchersError != nil {
		return nil, s.FindWatchersError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.watchers[subjectID]
	result := make([]string, 0, len(set))
	for w := range set {
		result = append(result, w)
	}
	sort.Strings(result)
	return result, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func copySubject(src *database.Subject) database.Subject {
	dst := *src
	dst.Descriptors = make([]facematch.Descriptor, len(src.Descriptors))
	for i, d := range src.Descriptors {
		dst.Descriptors[i] = slices.Clone(d)
	}
	dst.Observations = make([]database.Observation, len(src.Observations))
	for i, o := range src.Observations {
		dst.Observations[i] = copyObservation(o)
	}
	return dst
}

func copyObservation(o database.Observation) database.Observation {
	if o.StartDate != nil {
		t := *o.StartDate
		o.StartDate = &t
	}
	if o.EndDate != nil {
		t := *o.EndDate
		o.EndDate = &t
	}
	return o
}

var _ database.Repository = (*Store)(nil)
