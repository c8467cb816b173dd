package app_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/build-progress/internal/app"
	"github.com/JakeFAU/build-progress/internal/cache"
	"github.com/JakeFAU/build-progress/internal/config"
	"github.com/JakeFAU/build-progress/internal/progress/sinks"
	"github.com/JakeFAU/build-progress/internal/publisher/memory"
	memorystore "github.com/JakeFAU/build-progress/internal/storage/memory"
)

const buildHooks = `{"hook":"config","command":"build"}
{"hook":"transform","id":"/proj/src/main.ts"}
{"hook":"transform","id":"/proj/node_modules/vue/index.js"}
{"hook":"renderChunk"}
{"hook":"buildEnd"}
{"hook":"closeBundle"}
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Project.Dir = "/proj"
	return cfg
}

func projectFs(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for _, name := range []string{"main.ts", "App.vue", "style.css", "README.md"} {
		require.NoError(t, afero.WriteFile(fsys, filepath.Join("/proj/src", name), []byte("x"), 0o644))
	}
	return fsys
}

func TestColdThenWarmRunWithLocalCache(t *testing.T) {
	t.Parallel()

	fsys := projectFs(t)
	var out bytes.Buffer
	a, err := app.New(context.Background(), testConfig(t), zaptest.NewLogger(t), app.Options{Output: &out, Fs: fsys})
	require.NoError(t, err)
	defer a.Close(context.Background())

	count, err := a.Scanner().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, a.Adapter().Consume(context.Background(), strings.NewReader(buildHooks)))
	assert.Contains(t, out.String(), "Complete!")
	assert.NotContains(t, out.String(), "Transforms:")

	data, err := afero.ReadFile(fsys, "/proj/node_modules/.progress/index.json")
	require.NoError(t, err)
	rec, err := cache.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, cache.Record{TransformCount: 2, ChunkCount: 1}, rec)

	out.Reset()
	require.NoError(t, a.Adapter().Consume(context.Background(), strings.NewReader(buildHooks)))
	assert.Contains(t, out.String(), "Transforms: 2/2 | Chunks: 1/1")
	assert.Equal(t, "warm", a.Tracker().Status().Mode)
}

func TestFailedBuildLeavesCacheUntouched(t *testing.T) {
	t.Parallel()

	backend := memorystore.NewStore()
	a, err := app.New(context.Background(), testConfig(t), zaptest.NewLogger(t), app.Options{
		Output:  &bytes.Buffer{},
		Fs:      projectFs(t),
		Backend: &app.Backend{Backend: backend, Key: "proj"},
	})
	require.NoError(t, err)
	defer a.Close(context.Background())

	hooks := strings.Replace(buildHooks, `{"hook":"buildEnd"}`, `{"hook":"buildEnd","error":"syntax error"}`, 1)
	err = a.Adapter().Consume(context.Background(), strings.NewReader(hooks))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
	assert.Zero(t, backend.Writes())
	assert.False(t, a.Store().Exists(context.Background()))
}

func TestBuildSummaryPublishedOnClose(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	a, err := app.New(context.Background(), testConfig(t), zaptest.NewLogger(t), app.Options{
		Output:    &bytes.Buffer{},
		Fs:        projectFs(t),
		Publisher: pub,
	})
	require.NoError(t, err)

	require.NoError(t, a.Adapter().Consume(context.Background(), strings.NewReader(buildHooks)))
	a.Close(context.Background())
	a.Close(context.Background())

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	summary, ok := msgs[0].Payload.(sinks.BuildSummary)
	require.True(t, ok)
	assert.Equal(t, "success", summary.Result)
	assert.Equal(t, 2, summary.Transforms)
	assert.Equal(t, 1, summary.Chunks)
}

func TestRegistryCollectsBuildMetrics(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t), zaptest.NewLogger(t), app.Options{Output: &bytes.Buffer{}, Fs: projectFs(t)})
	require.NoError(t, err)

	require.NoError(t, a.Adapter().Consume(context.Background(), strings.NewReader(buildHooks)))
	a.Close(context.Background())

	n, err := testutil.GatherAndCount(a.Registry(),
		"build_progress_builds_started_total",
		"build_progress_transform_events_total",
		"build_progress_chunk_events_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestReportDisabled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Report.Enabled = false
	var out bytes.Buffer
	a, err := app.New(context.Background(), cfg, zaptest.NewLogger(t), app.Options{Output: &out, Fs: projectFs(t)})
	require.NoError(t, err)
	defer a.Close(context.Background())

	require.NoError(t, a.Adapter().Consume(context.Background(), strings.NewReader(buildHooks)))
	assert.Empty(t, out.String())
}

func TestHandlerServesProgress(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	a, err := app.New(context.Background(), cfg, zaptest.NewLogger(t), app.Options{Output: &bytes.Buffer{}, Fs: projectFs(t)})
	require.NoError(t, err)
	defer a.Close(context.Background())

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/progress")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/hooks", strings.NewReader(`{"hook":"config","command":"build"}`))
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, a.Tracker().Status().Active)
}

func TestOpenBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	local, err := app.OpenBackend(context.Background(), cfg, afero.NewMemMapFs(), nil)
	require.NoError(t, err)
	assert.Equal(t, "index.json", local.Key)
	local.Close()

	cfg.Cache.Backend = config.BackendMemory
	mem, err := app.OpenBackend(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.Len(t, mem.Key, 64)

	cfg.Cache.Backend = "redis"
	_, err = app.OpenBackend(context.Background(), cfg, nil, nil)
	require.Error(t, err)
}
