package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object storage operations used to publish documents
type ObjectStorage interface {
	// EnsureBucket creates the bucket if it does not exist
	EnsureBucket(ctx context.Context) error

	// Upload stores size bytes from reader under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Exists reports whether an object is stored under key
	Exists(ctx context.Context, key string) (bool, error)
}
