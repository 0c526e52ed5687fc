package storage

import (
	"context"
	"io"
)

// BlobInfo describes a stored blob.
type BlobInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// BlobStore defines the interface for blob storage operations. Blobs
// are content-addressed: the key is the sha256 hex of the payload.
type BlobStore interface {
	// Put stores a blob under key.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get opens a blob for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns blob metadata without reading the payload.
	Stat(ctx context.Context, key string) (*BlobInfo, error)

	// Delete removes a blob.
	Delete(ctx context.Context, key string) error

	// Exists checks whether a blob is present.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns the public URL for a blob, if the store has one.
	URL(key string) string

	// EnsureBucket creates the backing bucket if it doesn't exist.
	EnsureBucket(ctx context.Context) error
}
