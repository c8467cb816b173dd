package estimator

import (
	"math"
	"strings"

	"github.com/JakeFAU/build-progress/internal/cache"
)

// Mode identifies the estimation strategy of a run.
type Mode int

const (
	// ModeCold estimates from a source-file count.
	ModeCold Mode = iota
	// ModeWarm estimates from the previous build's totals.
	ModeWarm
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeCold:
		return "cold"
	case ModeWarm:
		return "warm"
	default:
		return "unknown"
	}
}

const (
	coldDirectCeiling  = 0.25
	coldRatchetCeiling = 0.8
	coldCreepCeiling   = 0.65
	coldCreepStep      = 0.001
	coldChunkStep      = 0.005
	chunkCeiling       = 0.95
)

// State is the in-memory accounting of one build invocation.
type State struct {
	Mode                Mode
	ExpectedFileCount   int
	PriorTransformCount int
	PriorChunkCount     int
	TransformedSoFar    int
	TransformEventTotal int
	ChunkEventTotal     int
	Percent             float64
	DisplayedPercent    float64
}

// Snapshot is the value handed to a renderer on each update.
type Snapshot struct {
	Percent          float64
	Mode             Mode
	TransformTotal   int
	TransformCurrent int
	ChunkTotal       int
	ChunkCurrent     int
}

// Option customizes an Estimator.
type Option func(*Estimator)

// WithDependencyMatcher replaces the predicate that decides whether a module
// id refers to a third-party dependency. Cold mode ignores such modules.
func WithDependencyMatcher(fn func(moduleID string) bool) Option {
	return func(e *Estimator) {
		if fn != nil {
			e.isDependency = fn
		}
	}
}

// MarkerMatcher returns a predicate that reports whether a module id contains
// any of the markers, compared case-insensitively. Empty markers are ignored.
func MarkerMatcher(markers ...string) func(string) bool {
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			lowered = append(lowered, m)
		}
	}
	return func(moduleID string) bool {
		id := strings.ToLower(moduleID)
		for _, m := range lowered {
			if strings.Contains(id, m) {
				return true
			}
		}
		return false
	}
}

// strategy implements the mode-specific arithmetic.
type strategy interface {
	transform(e *Estimator, moduleID string) []Snapshot
	chunk(e *Estimator)
}

// Estimator accumulates lifecycle events for one build.
type Estimator struct {
	state        State
	strategy     strategy
	isDependency func(string) bool
}

// NewCold builds a cold-mode estimator. expectedFileCount is floored at 1.
func NewCold(expectedFileCount int, opts ...Option) *Estimator {
	if expectedFileCount < 1 {
		expectedFileCount = 1
	}
	e := newEstimator(opts)
	e.state.Mode = ModeCold
	e.state.ExpectedFileCount = expectedFileCount
	e.strategy = coldStrategy{}
	return e
}

// NewWarm builds a warm-mode estimator from a previous build's totals. A
// record with no events at all would give a zero denominator, so it falls
// back to cold mode with an expected count of 1.
func NewWarm(rec cache.Record, opts ...Option) *Estimator {
	if rec.TransformCount+rec.ChunkCount <= 0 {
		return NewCold(1, opts...)
	}
	e := newEstimator(opts)
	e.state.Mode = ModeWarm
	e.state.PriorTransformCount = rec.TransformCount
	e.state.PriorChunkCount = rec.ChunkCount
	e.strategy = warmStrategy{}
	return e
}

func newEstimator(opts []Option) *Estimator {
	e := &Estimator{isDependency: MarkerMatcher("node_modules")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transform records one transform attempt and returns the snapshots to
// render, in order.
func (e *Estimator) Transform(moduleID string) []Snapshot {
	e.state.TransformEventTotal++
	return e.strategy.transform(e, moduleID)
}

// ChunkRendered records one rendered output chunk and returns the snapshot to
// render.
func (e *Estimator) ChunkRendered() []Snapshot {
	e.state.ChunkEventTotal++
	e.strategy.chunk(e)
	return []Snapshot{e.Snapshot()}
}

// Complete forces the estimate to 1 and returns the totals to persist.
func (e *Estimator) Complete() cache.Record {
	e.state.Percent = 1
	e.state.DisplayedPercent = 1
	return cache.Record{
		TransformCount: e.state.TransformEventTotal,
		ChunkCount:     e.state.ChunkEventTotal,
	}
}

// Snapshot returns the current display values.
func (e *Estimator) Snapshot() Snapshot {
	return Snapshot{
		Percent:          e.state.DisplayedPercent,
		Mode:             e.state.Mode,
		TransformTotal:   e.state.PriorTransformCount,
		TransformCurrent: e.state.TransformEventTotal,
		ChunkTotal:       e.state.PriorChunkCount,
		ChunkCurrent:     e.state.ChunkEventTotal,
	}
}

// State returns a copy of the accounting state.
func (e *Estimator) State() State {
	return e.state
}

// Mode returns the strategy chosen at construction.
func (e *Estimator) Mode() Mode {
	return e.state.Mode
}

// display raises the displayed value to v, clamped to [current, 1].
func (e *Estimator) display(v float64) {
	if v > 1 {
		v = 1
	}
	if v > e.state.DisplayedPercent {
		e.state.DisplayedPercent = v
	}
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

type coldStrategy struct{}

func (coldStrategy) transform(e *Estimator, moduleID string) []Snapshot {
	st := &e.state
	if st.Percent < coldDirectCeiling && !e.isDependency(moduleID) {
		st.TransformedSoFar++
		st.Percent = math.Min(1, round(float64(st.TransformedSoFar)/float64(st.ExpectedFileCount*2), 2))
		if st.Percent < coldRatchetCeiling {
			e.display(st.Percent)
		}
	}
	if st.Percent >= coldDirectCeiling && st.DisplayedPercent <= coldCreepCeiling {
		e.display(round(st.DisplayedPercent+coldCreepStep, 4))
	}
	return []Snapshot{e.Snapshot()}
}

func (coldStrategy) chunk(e *Estimator) {
	if e.state.DisplayedPercent <= chunkCeiling {
		e.display(round(e.state.DisplayedPercent+coldChunkStep, 4))
	}
}

type warmStrategy struct{}

func (w warmStrategy) transform(e *Estimator, _ string) []Snapshot {
	var out []Snapshot
	if e.state.TransformEventTotal == 1 {
		out = append(out, e.Snapshot())
	}
	w.advance(e)
	return append(out, e.Snapshot())
}

func (w warmStrategy) chunk(e *Estimator) {
	if e.state.DisplayedPercent <= chunkCeiling {
		w.advance(e)
	}
}

// advance counts one unit against the combined prior totals. Transforms and
// chunks share the numerator.
func (warmStrategy) advance(e *Estimator) {
	st := &e.state
	st.TransformedSoFar++
	denom := st.PriorTransformCount + st.PriorChunkCount
	st.Percent = math.Min(1, round(float64(st.TransformedSoFar)/float64(denom), 4))
	e.display(st.Percent)
}
