// Package metrics exposes Prometheus instrumentation for the matching engine,
// the repository and the notification dispatcher. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "facewatch"

// Metrics holds every collector the service records to.
type Metrics struct {
	submissions       *prometheus.CounterVec
	candidatesSkipped prometheus.Counter
	subjectsCreated   prometheus.Counter
	repositoryLatency *prometheus.HistogramVec
	repositoryErrors  *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	eventsDropped     prometheus.Counter
	queueDepth        prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)

	return &Metrics{
		submissions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "submissions_total",
			Help:      "Submissions processed, by resulting status",
		}, []string{"status"}),
		candidatesSkipped: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "candidates_skipped_total",
			Help:      "Candidates skipped during a scan because their descriptors could not be compared",
		}),
		subjectsCreated: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "subjects_created_total",
			Help:      "Subjects created by no-match submissions",
		}),
		repositoryLatency: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "call_duration_seconds",
			Help:      "Latency of repository calls made by the engine",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		repositoryErrors: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "errors_total",
			Help:      "Failed repository calls made by the engine",
		}, []string{"op"}),
		notifications: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification deliveries, by outcome",
		}, []string{"outcome"}),
		eventsDropped: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_dropped_total",
			Help:      "Match events dropped because the dispatch queue was full or closed",
		}),
		queueDepth: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "queue_depth",
			Help:      "Match events waiting for a dispatch worker",
		}),
	}
}

// SubmissionObserved counts a finished submission by status.
func (m *Metrics) SubmissionObserved(status string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(status).Inc()
}

// CandidateSkipped counts a candidate that could not be compared.
func (m *Metrics) CandidateSkipped() {
	if m == nil {
		return
	}
	m.candidatesSkipped.Inc()
}

// SubjectCreated counts a new subject.
func (m *Metrics) SubjectCreated() {
	if m == nil {
		return
	}
	m.subjectsCreated.Inc()
}

// RepositoryCall records the latency and outcome of one repository call.
func (m *Metrics) RepositoryCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.repositoryLatency.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.repositoryErrors.WithLabelValues(op).Inc()
	}
}

// NotificationSent counts one delivery attempt by outcome ("delivered" or "failed").
func (m *Metrics) NotificationSent(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

// EventDropped counts a match event that never reached a worker.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// SetQueueDepth reports the number of pending events.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
