// Package storage defines the backend interface used to persist the cross-run
// build cache. This abstraction keeps the cache independent of where the
// record lives (the project's dependency directory, a GCS bucket shared by CI
// runners, or a Postgres table).
package storage

import (
	"context"
	"errors"
)

// ErrNotFound signals that no object exists under the requested key. Backends
// must return it (possibly wrapped) so callers can treat absence as a normal
// state rather than a failure.
var ErrNotFound = errors.New("storage object not found")

// Backend reads and writes small opaque payloads by key.
type Backend interface {
	// Read returns the payload stored under key or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write creates the backing location if needed and replaces any prior payload.
	Write(ctx context.Context, key string, data []byte) error
}

// NoOpBackend discards writes and never finds anything. It is useful for
// dry runs where the estimate should always start cold.
type NoOpBackend struct{}

// Read always reports ErrNotFound.
func (NoOpBackend) Read(context.Context, string) ([]byte, error) {
	return nil, ErrNotFound
}

// Write does nothing and always returns nil.
func (NoOpBackend) Write(context.Context, string, []byte) error {
	return nil
}
