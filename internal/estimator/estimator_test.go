package estimator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/build-progress/internal/cache"
)

func TestColdQuarterAfterHalfTheFiles(t *testing.T) {
	t.Parallel()

	e := NewCold(10)
	for i := 0; i < 5; i++ {
		e.Transform(fmt.Sprintf("/app/src/m%d.ts", i))
	}

	st := e.State()
	require.Equal(t, 5, st.TransformedSoFar)
	require.Equal(t, 0.25, st.Percent)
	// The fifth event crosses the direct ceiling and immediately creeps.
	require.InDelta(t, 0.251, st.DisplayedPercent, 1e-9)
}

func TestColdIgnoresDependencies(t *testing.T) {
	t.Parallel()

	e := NewCold(10)
	e.Transform("/app/node_modules/vue/index.js")
	e.Transform("/app/NODE_MODULES/lodash/lodash.js")
	snaps := e.Transform("/app/src/main.ts")

	st := e.State()
	require.Equal(t, 3, st.TransformEventTotal)
	require.Equal(t, 1, st.TransformedSoFar)
	require.Equal(t, 0.05, st.Percent)
	require.Len(t, snaps, 1)
	require.Equal(t, 0.05, snaps[0].Percent)
	require.Equal(t, 3, snaps[0].TransformCurrent)
}

func TestColdCreepsAfterDirectCeilingAndStops(t *testing.T) {
	t.Parallel()

	e := NewCold(2)
	// 2 files * 2 = 4 units; the first qualifying event reaches 0.25.
	e.Transform("/app/src/a.ts")
	require.Equal(t, 0.25, e.State().Percent)
	require.InDelta(t, 0.251, e.State().DisplayedPercent, 1e-9)

	// Percent stays put; only the display moves, by 0.001 per event, dependency or not.
	e.Transform("/app/node_modules/x.js")
	e.Transform("/app/src/b.ts")
	require.Equal(t, 0.25, e.State().Percent)
	require.Equal(t, 1, e.State().TransformedSoFar)
	require.InDelta(t, 0.253, e.State().DisplayedPercent, 1e-9)

	for i := 0; i < 1000; i++ {
		e.Transform("/app/src/c.ts")
	}
	// Creep stops once the display passes 0.65.
	require.InDelta(t, 0.651, e.State().DisplayedPercent, 1e-9)
}

func TestColdChunkSteps(t *testing.T) {
	t.Parallel()

	e := NewCold(100)
	snaps := e.ChunkRendered()
	require.Len(t, snaps, 1)
	require.InDelta(t, 0.005, snaps[0].Percent, 1e-9)
	require.Equal(t, 1, snaps[0].ChunkCurrent)

	for i := 0; i < 500; i++ {
		e.ChunkRendered()
	}
	// Last step taken from 0.95 lands on 0.955.
	require.InDelta(t, 0.955, e.State().DisplayedPercent, 1e-9)
	require.Equal(t, 501, e.State().ChunkEventTotal)
}

func TestColdFloorsExpectedCount(t *testing.T) {
	t.Parallel()

	e := NewCold(0)
	require.Equal(t, 1, e.State().ExpectedFileCount)
	e.Transform("/app/src/main.ts")
	require.Equal(t, 0.5, e.State().Percent)
	require.InDelta(t, 0.501, e.State().DisplayedPercent, 1e-9)
}

func TestWarmHalfway(t *testing.T) {
	t.Parallel()

	e := NewWarm(cache.Record{TransformCount: 8, ChunkCount: 2})
	require.Equal(t, ModeWarm, e.Mode())

	e.Transform("/app/src/a.ts")
	e.Transform("/app/node_modules/b.js")
	e.Transform("/app/src/c.ts")
	e.ChunkRendered()
	snaps := e.ChunkRendered()

	require.Len(t, snaps, 1)
	require.Equal(t, 0.5, snaps[0].Percent)
	require.Equal(t, Snapshot{
		Percent:          0.5,
		Mode:             ModeWarm,
		TransformTotal:   8,
		TransformCurrent: 3,
		ChunkTotal:       2,
		ChunkCurrent:     2,
	}, snaps[0])
}

func TestWarmFirstTransformEmitsInitialTick(t *testing.T) {
	t.Parallel()

	e := NewWarm(cache.Record{TransformCount: 3, ChunkCount: 1})
	first := e.Transform("/app/src/a.ts")
	require.Len(t, first, 2)
	require.Zero(t, first[0].Percent)
	require.Equal(t, 1, first[0].TransformCurrent)
	require.Equal(t, 0.25, first[1].Percent)

	second := e.Transform("/app/src/b.ts")
	require.Len(t, second, 1)
	require.Equal(t, 0.5, second[0].Percent)
}

func TestWarmChunkGatedAndClamped(t *testing.T) {
	t.Parallel()

	e := NewWarm(cache.Record{TransformCount: 2, ChunkCount: 1})
	for i := 0; i < 5; i++ {
		e.Transform("/app/src/a.ts")
	}
	require.Equal(t, 1.0, e.State().DisplayedPercent)
	require.Equal(t, 1.0, e.State().Percent)

	e.ChunkRendered()
	require.Equal(t, 5, e.State().TransformedSoFar)
	require.Equal(t, 1.0, e.State().DisplayedPercent)
}

func TestWarmDegenerateRecordFallsBackToCold(t *testing.T) {
	t.Parallel()

	e := NewWarm(cache.Record{})
	st := e.State()
	require.Equal(t, ModeCold, st.Mode)
	require.Equal(t, 1, st.ExpectedFileCount)
}

func TestDisplayedNeverDecreases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		est  *Estimator
	}{
		{name: "cold", est: NewCold(7)},
		{name: "warm", est: NewWarm(cache.Record{TransformCount: 40, ChunkCount: 5})},
		{name: "warm undercounted", est: NewWarm(cache.Record{TransformCount: 3, ChunkCount: 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := tt.est.Snapshot().Percent
			check := func(snaps []Snapshot) {
				for _, s := range snaps {
					assert.GreaterOrEqual(t, s.Percent, prev)
					assert.LessOrEqual(t, s.Percent, 1.0)
					prev = s.Percent
				}
			}
			for i := 0; i < 60; i++ {
				id := fmt.Sprintf("/app/src/m%d.vue", i)
				if i%3 == 0 {
					id = fmt.Sprintf("/app/node_modules/dep%d/index.js", i)
				}
				check(tt.est.Transform(id))
				if i%10 == 9 {
					check(tt.est.ChunkRendered())
				}
			}
		})
	}
}

func TestCompleteReturnsEventTotals(t *testing.T) {
	t.Parallel()

	e := NewCold(4)
	e.Transform("/app/src/a.ts")
	e.Transform("/app/node_modules/b.js")
	e.Transform("/app/src/c.ts")
	e.ChunkRendered()

	rec := e.Complete()
	require.Equal(t, cache.Record{TransformCount: 3, ChunkCount: 1}, rec)
	require.Equal(t, 1.0, e.Snapshot().Percent)
	require.Equal(t, 1.0, e.State().Percent)
}

func TestCustomDependencyMatcher(t *testing.T) {
	t.Parallel()

	e := NewCold(10, WithDependencyMatcher(MarkerMatcher("vendor", "")))
	e.Transform("/app/vendor/x.js")
	e.Transform("/app/node_modules/y.js")
	require.Equal(t, 1, e.State().TransformedSoFar)
}

func TestMarkerMatcher(t *testing.T) {
	t.Parallel()

	match := MarkerMatcher("node_modules")
	assert.True(t, match("/a/Node_Modules/b"))
	assert.False(t, match("/a/src/b"))
	assert.False(t, MarkerMatcher()("/a/node_modules/b"))
}

func TestModeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cold", ModeCold.String())
	assert.Equal(t, "warm", ModeWarm.String())
	assert.Equal(t, "unknown", Mode(9).String())
}
