package app

import (
	"context"
	"fmt"
	"path"

	gcsclient "cloud.google.com/go/storage"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/build-progress/internal/config"
	"github.com/JakeFAU/build-progress/internal/hash"
	"github.com/JakeFAU/build-progress/internal/storage"
	gcsstore "github.com/JakeFAU/build-progress/internal/storage/gcs"
	"github.com/JakeFAU/build-progress/internal/storage/local"
	"github.com/JakeFAU/build-progress/internal/storage/memory"
	"github.com/JakeFAU/build-progress/internal/storage/postgres"
)

// Backend is an opened cache backend plus the key the project's record lives
// under.
type Backend struct {
	storage.Backend
	Key   string
	close func()
}

// Close releases any client held by the backend.
func (b Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// OpenBackend builds the cache backend selected by cfg.Cache.Backend. The
// local backend stores one file per project, so its key is the file name;
// shared backends key records by a digest of the project directory.
func OpenBackend(ctx context.Context, cfg config.Config, fsys afero.Fs, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Cache.Backend {
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: cfg.CacheDir()}, fsys)
		if err != nil {
			return Backend{}, fmt.Errorf("init local cache: %w", err)
		}
		logger.Debug("using local cache backend", zap.String("path", store.Path(cfg.Cache.File)))
		return Backend{Backend: store, Key: cfg.Cache.File}, nil

	case config.BackendMemory:
		key, err := hash.ProjectKey(cfg.Project.Dir)
		if err != nil {
			return Backend{}, err
		}
		logger.Debug("using in-memory cache backend; records do not survive the process")
		return Backend{Backend: memory.NewStore(), Key: key}, nil

	case config.BackendGCS:
		key, err := hash.ProjectKey(cfg.Project.Dir)
		if err != nil {
			return Backend{}, err
		}
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return Backend{}, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.Cache.GCSBucket, Prefix: cfg.Cache.Prefix})
		if err != nil {
			_ = client.Close()
			return Backend{}, fmt.Errorf("init gcs cache: %w", err)
		}
		objectKey := path.Join(key, cfg.Cache.File)
		logger.Debug("using gcs cache backend", zap.String("uri", store.URI(objectKey)))
		return Backend{
			Backend: store,
			Key:     objectKey,
			close: func() {
				if err := client.Close(); err != nil {
					logger.Warn("close gcs client", zap.Error(err))
				}
			},
		}, nil

	case config.BackendPostgres:
		key, err := hash.ProjectKey(cfg.Project.Dir)
		if err != nil {
			return Backend{}, err
		}
		store, err := postgres.NewCacheStore(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.Table,
			MaxConns:        cfg.DB.MaxConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return Backend{}, fmt.Errorf("init postgres cache: %w", err)
		}
		logger.Debug("using postgres cache backend", zap.String("table", cfg.DB.Table))
		return Backend{Backend: store, Key: key, close: store.Close}, nil

	default:
		return Backend{}, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
