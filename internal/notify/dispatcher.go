package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// WatcherLookup returns the watchers of a subject.
type WatcherLookup interface {
	WatchersOf(ctx context.Context, subjectID int64) ([]string, error)
}

// Dispatcher fans match events out to watchers. Events are queued by Publish and
// delivered by a fixed pool of workers started with Start.
type Dispatcher struct {
	watchers WatcherLookup
	sender   Sender
	logger   *slog.Logger
	metrics  *metrics.Metrics

	workers       int
	concurrency   int
	sendTimeout   time.Duration
	lookupTimeout time.Duration
	limiter       *rate.Limiter

	queue   chan Event
	mu      sync.RWMutex
	closed  bool
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the number of workers draining the queue.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize bounds the number of pending events.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Event, n)
		}
	}
}

// WithConcurrency bounds parallel sends for one event.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithSendTimeout bounds each individual delivery.
func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

// WithRate limits outbound sends per second across all workers. Zero disables the limit.
func WithRate(perSecond float64) Option {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
		} else {
			d.limiter = nil
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher. Call Start before events are expected to flow.
func NewDispatcher(watchers WatcherLookup, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		watchers:      watchers,
		sender:        sender,
		logger:        logging.Discard(),
		workers:       2,
		concurrency:   4,
		sendTimeout:   10 * time.Second,
		lookupTimeout: 5 * time.Second,
		queue:         make(chan Event, 1024),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the workers. Sends are bound to ctx; Shutdown cancels it if
// draining takes too long.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	for i := range d.workers {
		d.wg.Add(1)
		go d.run(ctx, i)
	}
	d.logger.Info("notification dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
}

func (d *Dispatcher) run(ctx context.Context, id int) {
	defer d.wg.Done()
	for ev := range d.queue {
		d.metrics.SetQueueDepth(len(d.queue))
		report := d.Notify(ctx, ev)
		if report.Attempted() > 0 {
			d.logger.Debug("event dispatched",
				"worker", id,
				"event_id", ev.ID,
				"delivered", len(report.Delivered),
				"failed", len(report.Failed),
			)
		}
	}
}

// Publish queues ev without blocking. It returns false when the queue is full
// or the dispatcher is shut down; the event is then dropped.
func (d *Dispatcher) Publish(ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.metrics.EventDropped()
		return false
	}
	select {
	case d.queue <- ev:
		d.metrics.SetQueueDepth(len(d.queue))
		return true
	default:
		d.metrics.EventDropped()
		d.logger.Warn("dispatch queue full, dropping event", "event_id", ev.ID, "subject_id", ev.SubjectID)
		return false
	}
}

// Shutdown stops accepting events and waits for queued ones to be delivered.
// When ctx expires first, in-flight sends are canceled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

// Notify delivers ev to every distinct watcher of its subject, at most once each.
// Failures are recorded in the report and never returned.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) DeliveryReport {
	report := DeliveryReport{EventID: ev.ID, Failed: map[string]string{}}

	lookupCtx, cancel := context.WithTimeout(ctx, d.lookupTimeout)
	watchers, err := d.watchers.WatchersOf(lookupCtx, ev.SubjectID)
	cancel()
	if err != nil {
		d.logger.Error("looking up watchers", "event_id", ev.ID, "subject_id", ev.SubjectID, "error", err)
		return report
	}
	watchers = distinct(watchers)
	if len(watchers) == 0 {
		return report
	}

	subject, body := Compose(ev)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)
	for _, w := range watchers {
		g.Go(func() error {
			err := d.deliver(ctx, w, subject, body)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[w] = err.Error()
				d.metrics.NotificationSent("failed")
				d.logger.Warn("notification failed", "event_id", ev.ID, "watcher", w, "error", err)
				return nil
			}
			report.Delivered = append(report.Delivered, w)
			d.metrics.NotificationSent("delivered")
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(report.Delivered)
	return report
}

func (d *Dispatcher) deliver(ctx context.Context, to, subject, body string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	return d.sender.Send(ctx, to, subject, body)
}

func distinct(watchers []string) []string {
	out := make([]string, 0, len(watchers))
	for _, w := range watchers {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
