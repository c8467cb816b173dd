package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/build-progress/internal/progress"
)

// PrometheusSink exports build progress via Prometheus collectors.
type PrometheusSink struct {
	buildsStarted   prometheus.Counter
	buildsCompleted *prometheus.CounterVec
	buildsRunning   prometheus.Gauge
	buildsByMode    *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec
	displayed       prometheus.Gauge
	transforms      prometheus.Counter
	chunks          prometheus.Counter

	running *buildSet
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		buildsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "build_progress_builds_started_total",
			Help: "Builds that have started.",
		}),
		buildsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "build_progress_builds_completed_total",
			Help: "Builds finished, partitioned by result.",
		}, []string{"result"}),
		buildsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "build_progress_builds_running",
			Help: "Builds currently in progress.",
		}),
		buildsByMode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "build_progress_builds_by_mode_total",
			Help: "Builds started, partitioned by estimation mode.",
		}, []string{"mode"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "build_progress_build_duration_seconds",
			Help:    "Wall time per finished build.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		displayed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "build_progress_displayed_ratio",
			Help: "Most recent displayed completion estimate in [0,1].",
		}),
		transforms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "build_progress_transform_events_total",
			Help: "Transform events observed across builds.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "build_progress_chunk_events_total",
			Help: "Rendered chunks observed across builds.",
		}),
		running: newBuildSet(),
	}
	for _, collector := range []prometheus.Collector{
		s.buildsStarted,
		s.buildsCompleted,
		s.buildsRunning,
		s.buildsByMode,
		s.buildDuration,
		s.displayed,
		s.transforms,
		s.chunks,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageBuildStart:
		s.buildsStarted.Inc()
		s.buildsByMode.WithLabelValues(modeLabel(evt.Mode)).Inc()
		if s.running.start(evt.BuildID) {
			s.buildsRunning.Inc()
		}
	case progress.StageTransform:
		s.transforms.Inc()
	case progress.StageChunk:
		s.chunks.Inc()
	case progress.StageBuildDone:
		s.finish(evt, "success")
	case progress.StageBuildError:
		s.finish(evt, "error")
	}
	s.displayed.Set(evt.Percent)
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.buildsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.buildDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.running.complete(evt.BuildID) {
		s.buildsRunning.Dec()
	}
}

// Close implements progress.Sink; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func modeLabel(mode string) string {
	if mode == "" {
		return "unknown"
	}
	return mode
}

type buildSet struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newBuildSet() *buildSet {
	return &buildSet{running: make(map[[16]byte]struct{})}
}

func (b *buildSet) start(id [16]byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.running[id]; ok {
		return false
	}
	b.running[id] = struct{}{}
	return true
}

func (b *buildSet) complete(id [16]byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.running[id]; !ok {
		return false
	}
	delete(b.running, id)
	return true
}
