package media

import (
	"context"
	"errors"
	"io"
)

// ErrBlobNotFound is returned by BlobStore.Get for unknown keys.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore persists mirrored image bytes under content-addressed keys.
// Keys are "<sha256><ext>", so writing the same key twice is a no-op.
type BlobStore interface {
	// Put stores size bytes read from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get writes the blob stored under key to w.
	Get(ctx context.Context, key string, w io.Writer) error

	Exists(ctx context.Context, key string) (bool, error)

	// ValidateSetup checks that the store is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
