package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/matching"
	"github.com/kozaktomas/facewatch/internal/metrics"
	"github.com/kozaktomas/facewatch/internal/notify"
	"github.com/kozaktomas/facewatch/internal/watchlist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds the collaborators each command wires together.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	repo     database.Repository
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(reg),
		repo:     repo,
	}, nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("closing repository", "error", err)
	}
}

func (a *app) watchlist() *watchlist.Registry {
	return watchlist.NewRegistry(a.repo, a.repo,
		watchlist.WithLogger(a.logger),
		watchlist.WithTimeout(a.cfg.Matching.RepositoryTimeout),
	)
}

func (a *app) dispatcher(watchers notify.WatcherLookup) *notify.Dispatcher {
	n := a.cfg.Notify
	return notify.NewDispatcher(watchers, notify.NewSender(a.cfg.SMTP, a.logger),
		notify.WithWorkers(n.Workers),
		notify.WithQueueSize(n.QueueSize),
		notify.WithSendTimeout(n.SendTimeout),
		notify.WithRate(n.RatePerSec),
		notify.WithConcurrency(n.Concurrency),
		notify.WithLogger(a.logger),
		notify.WithMetrics(a.metrics),
	)
}

func (a *app) engine(notifier matching.Notifier) (*matching.Engine, error) {
	profile, err := a.cfg.Matching.Active()
	if err != nil {
		return nil, err
	}
	matcher, err := profile.Matcher()
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", a.cfg.Matching.Profile, err)
	}

	a.logger.Info("matching profile",
		"profile", a.cfg.Matching.Profile,
		"metric", matcher.Metric,
		"threshold", matcher.Threshold,
		"policy", matcher.Policy,
	)

	return matching.NewEngine(a.repo, notifier,
		matching.WithMatcher(matcher),
		matching.WithDimension(profile.Dimension),
		matching.WithLogger(a.logger),
		matching.WithMetrics(a.metrics),
		matching.WithRepositoryTimeout(a.cfg.Matching.RepositoryTimeout),
	), nil
}

func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
