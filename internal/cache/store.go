package cache

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/build-progress/internal/storage"
)

// Store loads and saves the Record of one project.
type Store struct {
	backend storage.Backend
	key     string
	logger  *zap.Logger
}

// NewStore binds backend to the project identified by key. For the local
// backend the key is the file name inside the cache directory; remote
// backends use the project hash.
func NewStore(backend storage.Backend, key string, logger *zap.Logger) *Store {
	if backend == nil {
		backend = storage.NoOpBackend{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, key: key, logger: logger}
}

// Key returns the project key the store reads and writes.
func (s *Store) Key() string {
	return s.key
}

// Lookup returns the stored record and whether a usable one was found.
// Read failures and malformed content are logged and reported as absent.
func (s *Store) Lookup(ctx context.Context) (Record, bool) {
	data, err := s.backend.Read(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("cache read failed; treating as absent", zap.String("key", s.key), zap.Error(err))
		}
		return Record{}, false
	}
	rec, err := Decode(data)
	if err != nil {
		s.logger.Warn("cache content unusable; treating as absent", zap.String("key", s.key), zap.Error(err))
		return Record{}, false
	}
	return rec, true
}

// Exists reports whether a usable record is present.
func (s *Store) Exists(ctx context.Context) bool {
	_, ok := s.Lookup(ctx)
	return ok
}

// Load returns the stored record, or the zero Record when none is usable.
func (s *Store) Load(ctx context.Context) Record {
	rec, _ := s.Lookup(ctx)
	return rec
}

// Save replaces the stored record with r.
func (s *Store) Save(ctx context.Context, r Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, s.key, data); err != nil {
		return fmt.Errorf("save cache record: %w", err)
	}
	s.logger.Debug("cache record saved",
		zap.String("key", s.key),
		zap.Int("transforms", r.TransformCount),
		zap.Int("chunks", r.ChunkCount),
	)
	return nil
}
