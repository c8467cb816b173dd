// Package app builds the long-lived services behind the CLI from a loaded
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/build-progress/internal/adapter"
	"github.com/JakeFAU/build-progress/internal/api"
	"github.com/JakeFAU/build-progress/internal/cache"
	"github.com/JakeFAU/build-progress/internal/config"
	"github.com/JakeFAU/build-progress/internal/estimator"
	"github.com/JakeFAU/build-progress/internal/metrics"
	"github.com/JakeFAU/build-progress/internal/progress"
	"github.com/JakeFAU/build-progress/internal/progress/sinks"
	"github.com/JakeFAU/build-progress/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/build-progress/internal/publisher/pubsub"
	"github.com/JakeFAU/build-progress/internal/report"
	"github.com/JakeFAU/build-progress/internal/scan"
	"github.com/JakeFAU/build-progress/internal/telemetry"
	"github.com/JakeFAU/build-progress/internal/tracker"
)

// Options overrides process-level collaborators, mainly for tests.
type Options struct {
	// Output receives reporter lines. Default: os.Stderr
	Output io.Writer
	// Fs backs the local cache and the source scan. Default: the OS filesystem
	Fs afero.Fs
	// Backend replaces the configured cache backend when set.
	Backend *Backend
	// Publisher replaces the Pub/Sub publisher when set. It is used even if
	// pubsub is not configured.
	Publisher publisher.Publisher
}

// App holds the services shared by every command.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	http     *metrics.HTTP
	backend  Backend
	store    *cache.Store
	scanner  *scan.Scanner
	hub      *progress.Hub
	tracker  *tracker.Tracker
	adapter  *adapter.Adapter
	closers  []func()
}

// New wires the application. It fails fast when a configured backend or
// notification topic cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Warn("tracer provider shutdown", zap.Error(err))
			}
		})
	}

	httpMetrics, err := metrics.NewHTTP(a.registry)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("register http metrics: %w", err)
	}
	a.http = httpMetrics

	if opts.Backend != nil {
		a.backend = *opts.Backend
	} else {
		a.backend, err = OpenBackend(ctx, cfg, opts.Fs, logger.Named("cache"))
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}
	a.closers = append(a.closers, a.backend.Close)
	a.store = cache.NewStore(a.backend.Backend, a.backend.Key, logger.Named("cache"))

	a.scanner, err = scan.New(scan.Config{Root: cfg.SourceRoot(), Extensions: cfg.Scan.Extensions}, opts.Fs)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init source scanner: %w", err)
	}

	sinkList, err := a.buildSinks(ctx, opts.Publisher)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.Progress.MaxBatchWait,
		Logger:         logger.Named("progress"),
	}, sinkList...)

	var renderer tracker.Renderer = tracker.NopRenderer{}
	if cfg.Report.Enabled {
		renderer = report.NewReporter(report.Options{Output: opts.Output, Prefix: cfg.Report.Prefix})
	}

	a.tracker = tracker.New(tracker.Config{
		Store:     a.store,
		Counter:   a.scanner,
		Renderer:  renderer,
		Emitter:   a.hub,
		Logger:    logger.Named("tracker"),
		Estimator: []estimator.Option{estimator.WithDependencyMatcher(estimator.MarkerMatcher(cfg.Estimator.DependencyMarkers...))},
	})
	a.adapter = adapter.New(a.tracker, a.http, logger.Named("adapter"))

	logger.Info("build-progress initialized",
		zap.String("project", cfg.Project.Dir),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("source_pattern", a.scanner.Pattern()),
		zap.Bool("notifications", cfg.PubSub.Enabled() || opts.Publisher != nil),
	)
	return a, nil
}

func (a *App) buildSinks(ctx context.Context, pub publisher.Publisher) ([]progress.Sink, error) {
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("register progress metrics: %w", err)
	}
	list := []progress.Sink{sinks.NewLogSink(a.logger.Named("events")), promSink}

	topic := a.cfg.PubSub.TopicName
	if pub == nil && a.cfg.PubSub.Enabled() {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		p, err := pubsubpublisher.Open(ctx, client, topic)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("open pubsub topic: %w", err)
		}
		a.closers = append(a.closers, func() {
			p.Close()
			if err := client.Close(); err != nil {
				a.logger.Warn("close pubsub client", zap.Error(err))
			}
		})
		pub = p
	}
	if pub != nil {
		list = append(list, sinks.NewPublisherSink(pub, topic, a.logger.Named("notify")))
	}
	return list, nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Registry exposes the Prometheus registry shared by all collectors.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Store returns the project's cache record store.
func (a *App) Store() *cache.Store { return a.store }

// Scanner returns the cold-mode source counter.
func (a *App) Scanner() *scan.Scanner { return a.scanner }

// Tracker returns the build tracker.
func (a *App) Tracker() *tracker.Tracker { return a.tracker }

// Adapter returns the hook adapter feeding the tracker.
func (a *App) Adapter() *adapter.Adapter { return a.adapter }

// Handler builds the HTTP hook receiver.
func (a *App) Handler() http.Handler {
	apiKey := ""
	if a.cfg.Auth.Enabled {
		apiKey = a.cfg.Auth.APIKey
	}
	return api.NewServer(api.Deps{
		Hooks:    a.adapter,
		Status:   a.tracker,
		Metrics:  a.http,
		Gatherer: a.Registry(),
		Logger:   a.logger.Named("api"),
		APIKey:   apiKey,
	}).Handler()
}

// Close drains pending progress events, then releases clients in reverse
// order of creation. It is safe to call more than once.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("progress hub did not drain", zap.Error(err))
		}
		a.hub = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
