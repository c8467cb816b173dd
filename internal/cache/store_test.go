package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/build-progress/internal/storage"
	"github.com/JakeFAU/build-progress/internal/storage/local"
	"github.com/JakeFAU/build-progress/internal/storage/memory"
)

func TestLoadWithoutRecordReturnsZero(t *testing.T) {
	t.Parallel()

	store := NewStore(memory.NewStore(), "index.json", nil)
	require.False(t, store.Exists(context.Background()))
	require.Equal(t, Record{}, store.Load(context.Background()))
}

func TestSaveThenLoadInFreshStore(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	backend, err := local.New(local.Config{BaseDir: "/app/node_modules/.progress"}, fsys)
	require.NoError(t, err)

	want := Record{TransformCount: 120, ChunkCount: 9}
	require.NoError(t, NewStore(backend, "index.json", nil).Save(context.Background(), want))

	reopened, err := local.New(local.Config{BaseDir: "/app/node_modules/.progress"}, fsys)
	require.NoError(t, err)
	fresh := NewStore(reopened, "index.json", nil)
	require.True(t, fresh.Exists(context.Background()))
	require.Equal(t, want, fresh.Load(context.Background()))

	raw, err := afero.ReadFile(fsys, "/app/node_modules/.progress/index.json")
	require.NoError(t, err)
	require.JSONEq(t, `{"cacheTransformCount":120,"cacheChunkCount":9}`, string(raw))
}

func TestSaveOverwrites(t *testing.T) {
	t.Parallel()

	backend := memory.NewStore()
	store := NewStore(backend, "k", nil)
	require.NoError(t, store.Save(context.Background(), Record{TransformCount: 5, ChunkCount: 5}))
	require.NoError(t, store.Save(context.Background(), Record{TransformCount: 1}))
	require.Equal(t, Record{TransformCount: 1}, store.Load(context.Background()))
}

func TestMalformedContentIsAbsent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	backend := memory.NewStore()
	require.NoError(t, backend.Write(context.Background(), "k", []byte("not json")))

	store := NewStore(backend, "k", zap.New(core))
	require.False(t, store.Exists(context.Background()))
	require.Equal(t, Record{}, store.Load(context.Background()))
	require.Equal(t, 2, logs.FilterMessage("cache content unusable; treating as absent").Len())
}

func TestReadFailureIsAbsent(t *testing.T) {
	t.Parallel()

	backend := &storage.MockBackend{}
	backend.On("Read", mock.Anything, "k").Return(nil, errors.New("permission denied"))

	store := NewStore(backend, "k", nil)
	rec, ok := store.Lookup(context.Background())
	require.False(t, ok)
	require.Equal(t, Record{}, rec)
	backend.AssertExpectations(t)
}

func TestSaveSurfacesWriteFailure(t *testing.T) {
	t.Parallel()

	backend := &storage.MockBackend{}
	backend.On("Write", mock.Anything, "k", mock.Anything).Return(errors.New("read-only filesystem"))

	err := NewStore(backend, "k", nil).Save(context.Background(), Record{TransformCount: 1})
	require.Error(t, err)
	backend.AssertExpectations(t)
}

func TestNilBackendIsNoOp(t *testing.T) {
	t.Parallel()

	store := NewStore(nil, "k", nil)
	require.NoError(t, store.Save(context.Background(), Record{TransformCount: 1}))
	require.False(t, store.Exists(context.Background()))
	require.Equal(t, "k", store.Key())
}
