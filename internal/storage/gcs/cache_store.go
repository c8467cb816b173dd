// Package gcs provides a cache backend backed by Google Cloud Storage. It lets
// CI runners that start from a clean checkout share the previous build's
// totals through a bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	cachestorage "github.com/JakeFAU/build-progress/internal/storage"
)

const contentType = "application/json"

// Config captures the parameters required to reach the bucket.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

// CacheStore reads and writes cache objects in a GCS bucket.
type CacheStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed cache store.
func New(client *storage.Client, cfg Config) (*CacheStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &CacheStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Read downloads the object for key or returns storage.ErrNotFound.
func (s *CacheStore) Read(ctx context.Context, key string) ([]byte, error) {
	name, err := s.objectName(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", s.bucket, name, cachestorage.ErrNotFound)
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer reader.Close() //nolint:errcheck // read-only handle

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Write uploads data for key, replacing any previous object.
func (s *CacheStore) Write(ctx context.Context, key string, data []byte) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// URI returns the gs:// location for key.
func (s *CacheStore) URI(key string) string {
	name, _ := s.objectName(key)
	return fmt.Sprintf("gs://%s/%s", s.bucket, name)
}

func (s *CacheStore) objectName(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	if s.prefix == "" {
		return key + ".json", nil
	}
	return path.Join(s.prefix, key+".json"), nil
}
