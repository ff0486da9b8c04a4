package matching

import (
	"log/slog"
	"time"

	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

// Option configures an Engine.
type Option func(*Engine)

// WithMatcher sets the distance metric, threshold and match policy.
func WithMatcher(m facematch.Matcher) Option {
	return func(e *Engine) {
		e.matcher = m
	}
}

// WithDimension rejects submissions whose descriptor length differs from n. Zero accepts any length.
func WithDimension(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.dimension = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Nil disables recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the server clock used for observation timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRepositoryTimeout bounds every repository call. It also bounds the wait for the matching lock.
func WithRepositoryTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.repoTimeout = d
		}
	}
}

// WithNameGenerator overrides how placeholder names are generated for unnamed subjects.
func WithNameGenerator(gen func(now time.Time) string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newName = gen
		}
	}
}

// WithOverlapDetection toggles flagging of overlapping date ranges on matches.
func WithOverlapDetection(enabled bool) Option {
	return func(e *Engine) {
		e.policy.DetectOverlaps = enabled
	}
}
