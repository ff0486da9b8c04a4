// Package watchlist records who wants to hear about which subject.
//
// Subscriptions are keyed by subject ID everywhere. A watch request may name its
// target by ID or by display name; names are resolved to an ID once, when the
// watch is recorded, so the engine and the dispatcher only ever look up by ID.
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
)

var (
	// ErrInvalidWatcher is returned for an empty or malformed watcher address.
	ErrInvalidWatcher = errors.New("invalid watcher")
	// ErrUnknownTarget is returned when no subject matches the watch target.
	ErrUnknownTarget = errors.New("unknown watch target")
	// ErrAmbiguousTarget is returned when a display name matches several subjects.
	ErrAmbiguousTarget = errors.New("ambiguous watch target")
)

// Registry maintains watch subscriptions on top of a WatcherStore.
type Registry struct {
	store    database.WatcherStore
	subjects database.SubjectReader
	logger   *slog.Logger
	timeout  time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTimeout bounds every storage call.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRegistry creates a registry. subjects is used to resolve watch targets.
func NewRegistry(store database.WatcherStore, subjects database.SubjectReader, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		subjects: subjects,
		logger:   logging.Discard(),
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NormalizeWatcher validates a watcher address and returns its canonical form.
func NormalizeWatcher(watcher string) (string, error) {
	watcher = strings.TrimSpace(watcher)
	if watcher == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidWatcher)
	}
	addr, err := mail.ParseAddress(watcher)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidWatcher, watcher, err)
	}
	return strings.ToLower(addr.Address), nil
}

// Watch subscribes watcher to target and returns the resolved subject ID.
// Watching an already watched subject is a no-op.
func (r *Registry) Watch(ctx context.Context, watcher, target string) (int64, error) {
	w, err := NormalizeWatcher(watcher)
	if err != nil {
		return 0, err
	}

	id, err := r.Resolve(ctx, target)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.AddWatch(ctx, w, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return 0, fmt.Errorf("%w: subject %d", ErrUnknownTarget, id)
		}
		return 0, fmt.Errorf("add watch: %w", err)
	}

	r.logger.Info("watch recorded", "watcher", w, "subject_id", id)
	return id, nil
}

// WatchersOf returns the distinct watchers of a subject, sorted.
func (r *Registry) WatchersOf(ctx context.Context, subjectID int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	watchers, err := r.store.FindWatchers(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("find watchers of subject %d: %w", subjectID, err)
	}
	return dedupe(watchers), nil
}

// Resolve maps a watch target to a subject ID. A numeric target is tried as an ID
// first and falls back to a name lookup when no such subject exists.
func (r *Registry) Resolve(ctx context.Context, target string) (int64, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return 0, fmt.Errorf("%w: empty target", ErrUnknownTarget)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if id, err := strconv.ParseInt(target, 10, 64); err == nil && id > 0 {
		_, err := r.subjects.GetSubject(ctx, id)
		switch {
		case err == nil:
			return id, nil
		case !errors.Is(err, database.ErrNotFound):
			return 0, fmt.Errorf("get subject %d: %w", id, err)
		}
	}

	subjects, err := r.subjects.ListSubjects(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subjects: %w", err)
	}

	var matches []int64
	for _, s := range subjects {
		if facematch.SameName(s.Name, target) {
			matches = append(matches, s.ID)
		}
	}

	switch len(matches) {
	case 0:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	case 1:
		return matches[0], nil
	default:
		return 0, fmt.Errorf("%w: %q matches subjects %v", ErrAmbiguousTarget, target, matches)
	}
}

func dedupe(watchers []string) []string {
	out := make([]string, 0, len(watchers))
	for _, w := range watchers {
		out = append(out, strings.ToLower(strings.TrimSpace(w)))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
