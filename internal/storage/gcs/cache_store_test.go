package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *CacheStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(
		context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket", Prefix: "/build-progress/"})
	require.NoError(t, err)
	return store
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck

	_, err = New(client, Config{})
	assert.Error(t, err)
}

func TestObjectNameAndURI(t *testing.T) {
	t.Parallel()

	store := &CacheStore{bucket: "bkt", prefix: "cache"}
	name, err := store.objectName("abc")
	require.NoError(t, err)
	assert.Equal(t, "cache/abc.json", name)
	assert.Equal(t, "gs://bkt/cache/abc.json", store.URI("abc"))

	store.prefix = ""
	name, err = store.objectName("abc")
	require.NoError(t, err)
	assert.Equal(t, "abc.json", name)

	_, err = store.objectName("  ")
	assert.Error(t, err)
}

func TestWriteUploadsObject(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"cacheTransformCount":3,"cacheChunkCount":1}`)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "build-progress/abc.json", r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), string(payload))

		fmt.Fprintln(w, `{ "name": "build-progress/abc.json", "bucket": "test-bucket" }`)
	})

	store := newTestStore(t, handler)
	require.NoError(t, store.Write(context.Background(), "abc", payload))
}

func TestWriteReportsServerError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	store := newTestStore(t, handler)
	assert.Error(t, store.Write(context.Background(), "abc", []byte("{}")))
}
