// Package tracker exposes the four lifecycle entry points a bundler host
// drives during a build: configure, transform, chunk rendered, and close. It
// owns one estimator per build, renders every update, emits progress events,
// and persists the run's totals after a successful build.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/build-progress/internal/cache"
	"github.com/JakeFAU/build-progress/internal/clock"
	"github.com/JakeFAU/build-progress/internal/estimator"
	"github.com/JakeFAU/build-progress/internal/id"
	"github.com/JakeFAU/build-progress/internal/progress"
)

// RecordStore loads and saves the previous build's totals.
type RecordStore interface {
	Lookup(ctx context.Context) (cache.Record, bool)
	Save(ctx context.Context, rec cache.Record) error
}

// FileCounter counts the project's own source files.
type FileCounter interface {
	Count(ctx context.Context) (int, error)
}

// Renderer displays the estimate. Start is called when a build is
// configured, Render for every update and Finish once after a successful
// build.
type Renderer interface {
	Start()
	Render(s estimator.Snapshot)
	Finish(s estimator.Snapshot)
}

// ErrBuildFailed marks a build error reported by the host without detail.
var ErrBuildFailed = errors.New("build failed")

// NopRenderer displays nothing.
type NopRenderer struct{}

// Start does nothing.
func (NopRenderer) Start() {}

// Render does nothing.
func (NopRenderer) Render(estimator.Snapshot) {}

// Finish does nothing.
func (NopRenderer) Finish(estimator.Snapshot) {}

// Config wires the tracker's collaborators. Nil fields fall back to inert
// defaults so tests can supply only what they exercise.
type Config struct {
	Store       RecordStore
	Counter     FileCounter
	Renderer    Renderer
	Emitter     progress.Emitter
	Clock       clock.Clock
	IDs         id.Generator
	Logger      *zap.Logger
	Estimator   []estimator.Option
	SaveTimeout time.Duration
}

const defaultSaveTimeout = 10 * time.Second

// Status is a point-in-time view of the current or last build.
type Status struct {
	BuildID  string
	Active   bool
	Finished bool
	Failed   bool
	Mode     string
	Snapshot estimator.Snapshot
	Elapsed  time.Duration
}

// Tracker is safe for concurrent use, although hosts normally call it from a
// single goroutine.
type Tracker struct {
	mu sync.Mutex

	store    RecordStore
	counter  FileCounter
	renderer Renderer
	emitter  progress.Emitter
	clock    clock.Clock
	ids      id.Generator
	logger   *zap.Logger
	opts     []estimator.Option
	saveWait time.Duration

	est      *estimator.Estimator
	buildID  [16]byte
	started  time.Time
	ended    time.Time
	active   bool
	finished bool
	failed   bool
}

// New builds an idle Tracker.
func New(cfg Config) *Tracker {
	t := &Tracker{
		store:    cfg.Store,
		counter:  cfg.Counter,
		renderer: cfg.Renderer,
		emitter:  cfg.Emitter,
		clock:    cfg.Clock,
		ids:      cfg.IDs,
		logger:   cfg.Logger,
		opts:     append([]estimator.Option(nil), cfg.Estimator...),
		saveWait: cfg.SaveTimeout,
	}
	if t.store == nil {
		t.store = cache.NewStore(nil, "", nil)
	}
	if t.renderer == nil {
		t.renderer = NopRenderer{}
	}
	if t.emitter == nil {
		t.emitter = progress.NopEmitter{}
	}
	if t.clock == nil {
		t.clock = clock.NewSystem()
	}
	if t.ids == nil {
		t.ids = id.New()
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	if t.saveWait <= 0 {
		t.saveWait = defaultSaveTimeout
	}
	return t
}

// OnConfigure starts a build when isBuildCommand is true. Other commands
// leave the tracker idle so later events are ignored. A configure call while
// a build is still open abandons that build without saving.
//
// The returned error only reports a failure to mint a build id; estimation
// is active either way.
func (t *Tracker) OnConfigure(ctx context.Context, isBuildCommand bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active {
		t.logger.Warn("configure received during an open build; abandoning it",
			zap.String("build_id", id.String(t.buildID)))
	}
	t.active = false
	t.finished = false
	t.failed = false
	if !isBuildCommand {
		t.logger.Debug("non-build command; progress tracking disabled")
		return nil
	}

	var idErr error
	t.buildID, idErr = t.ids.NewBuildID()
	if idErr != nil {
		t.logger.Warn("build id unavailable; progress events will be discarded", zap.Error(idErr))
	}
	t.started = t.clock.Now()
	t.ended = time.Time{}

	if rec, ok := t.store.Lookup(ctx); ok && !rec.IsZero() {
		t.est = estimator.NewWarm(rec, t.opts...)
	} else {
		t.est = estimator.NewCold(t.expectedFiles(ctx), t.opts...)
	}
	t.active = true
	t.renderer.Start()

	st := t.est.State()
	t.logger.Info("build started",
		zap.String("build_id", id.String(t.buildID)),
		zap.Stringer("mode", st.Mode),
		zap.Int("expected_files", st.ExpectedFileCount),
		zap.Int("prior_transforms", st.PriorTransformCount),
		zap.Int("prior_chunks", st.PriorChunkCount),
	)
	t.emit(progress.StageBuildStart, "", 0, "")
	return idErr
}

func (t *Tracker) expectedFiles(ctx context.Context) int {
	if t.counter == nil {
		t.logger.Warn("no source counter configured; assuming one file")
		return 1
	}
	n, err := t.counter.Count(ctx)
	if err != nil {
		t.logger.Warn("source scan failed; assuming one file", zap.Error(err))
		return 1
	}
	if n < 1 {
		return 1
	}
	return n
}

// OnTransform records one module transform and renders the resulting
// updates.
func (t *Tracker) OnTransform(moduleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open() {
		return
	}
	for _, snap := range t.est.Transform(moduleID) {
		t.renderer.Render(snap)
	}
	t.emit(progress.StageTransform, moduleID, 0, "")
}

// OnChunkRendered records one rendered output chunk.
func (t *Tracker) OnChunkRendered() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open() {
		return
	}
	for _, snap := range t.est.ChunkRendered() {
		t.renderer.Render(snap)
	}
	t.emit(progress.StageChunk, "", 0, "")
}

// OnBuildClose ends the build. Without a build error the estimate is forced
// to 1, the renderer finishes, and the totals are saved once; a failed save
// is logged and never returned. With a build error nothing is saved, the
// displayed value is left as is, and buildErr is returned unchanged. Closing
// an idle or already closed tracker is a no-op that returns buildErr.
func (t *Tracker) OnBuildClose(ctx context.Context, buildErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open() {
		return buildErr
	}
	t.active = false
	t.ended = t.clock.Now()
	elapsed := t.ended.Sub(t.started)

	if buildErr != nil {
		t.failed = true
		t.logger.Warn("build failed; cache left untouched",
			zap.String("build_id", id.String(t.buildID)),
			zap.Error(buildErr),
		)
		t.emit(progress.StageBuildError, "", elapsed, buildErr.Error())
		return buildErr
	}

	rec := t.est.Complete()
	t.finished = true
	t.renderer.Finish(t.est.Snapshot())

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.saveWait)
	defer cancel()
	if err := t.store.Save(saveCtx, rec); err != nil {
		t.logger.Warn("cache save failed", zap.Error(err))
	}

	t.logger.Info("build finished",
		zap.String("build_id", id.String(t.buildID)),
		zap.Int("transforms", rec.TransformCount),
		zap.Int("chunks", rec.ChunkCount),
		zap.Duration("elapsed", elapsed),
	)
	t.emit(progress.StageBuildDone, "", elapsed, "")
	return nil
}

// Snapshot returns the latest display values and whether a build has been
// started.
func (t *Tracker) Snapshot() (estimator.Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.est == nil {
		return estimator.Snapshot{}, false
	}
	return t.est.Snapshot(), true
}

// Status describes the current or most recent build.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := Status{Active: t.active, Finished: t.finished, Failed: t.failed}
	if t.est == nil {
		return st
	}
	st.BuildID = id.String(t.buildID)
	st.Mode = t.est.Mode().String()
	st.Snapshot = t.est.Snapshot()
	end := t.ended
	if end.IsZero() {
		end = t.clock.Now()
	}
	st.Elapsed = end.Sub(t.started)
	return st
}

// open reports whether events should be applied. Callers hold t.mu.
func (t *Tracker) open() bool {
	return t.active && t.est != nil
}

// emit publishes the current state. Callers hold t.mu.
func (t *Tracker) emit(stage progress.Stage, moduleID string, dur time.Duration, note string) {
	snap := t.est.Snapshot()
	t.emitter.Emit(progress.Event{
		BuildID:    t.buildID,
		TS:         t.clock.Now(),
		Stage:      stage,
		Mode:       snap.Mode.String(),
		ModuleID:   moduleID,
		Percent:    snap.Percent,
		Transforms: snap.TransformCurrent,
		Chunks:     snap.ChunkCurrent,
		Dur:        dur,
		Note:       note,
	})
}
