package media

import (
	"context"
	"fmt"
	"time"

	"docsync/internal/config"
	"docsync/internal/docsync"
)

// NewBlobStoreFromConfig creates a BlobStore based on the media config type.
func NewBlobStoreFromConfig(ctx context.Context, cfg config.MediaConfig) (BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem media store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown media type: %s", cfg.Type)
	}
}

// NewRepositoryFromConfig creates the blob store and wraps it in a Repository.
func NewRepositoryFromConfig(ctx context.Context, cfg config.MediaConfig, index docsync.MediaIndex, logger docsync.Logger) (*Repository, BlobStore, error) {
	store, err := NewBlobStoreFromConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	repo := NewRepository(store, index, Options{
		PublicBaseURL: cfg.PublicBaseURL,
		FetchTimeout:  time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
		FetchCacheTTL: time.Duration(cfg.FetchCacheTTLSecs) * time.Second,
	}, logger)
	return repo, store, nil
}
