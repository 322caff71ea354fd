// Package storage provides object storage abstractions for archive push/pull sync.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrDownloadFailed     = errors.New("download failed")
	ErrDeleteFailed       = errors.New("delete failed")
)

// ObjectStorage abstracts the remote side of archive sync.
// Implementations include S3 and a local filesystem mirror for testing.
// Keys are slash-separated, relative to the bucket or mirror root.
type ObjectStorage interface {
	// Upload copies a local file to the given key.
	Upload(ctx context.Context, file, key string) error

	// UploadMultipart uploads a large file in parts.
	// Returns the ETag of the stored object for validation.
	UploadMultipart(ctx context.Context, file, key string) (string, error)

	// Download copies the object at key to a local file.
	Download(ctx context.Context, key, file string) error

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// ConditionalPut uploads only if the stored object still carries etag.
	// An empty etag asserts nothing and behaves like Upload.
	// Used to fence concurrent manifest pushes.
	ConditionalPut(ctx context.Context, file, key, etag string) error

	// ListObjects returns all keys under the given prefix.
	// Used by pull sync and by manifest reconciliation.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// MultipartUploadConfig holds configuration for multipart uploads.
type MultipartUploadConfig struct {
	// PartSize is the size of each part in bytes (default: 5MB).
	PartSize int64
	// Concurrency is the number of concurrent part uploads (default: 5).
	Concurrency int
}

// DefaultMultipartConfig returns the default multipart upload configuration.
func DefaultMultipartConfig() MultipartUploadConfig {
	return MultipartUploadConfig{
		PartSize:    5 * 1024 * 1024, // 5MB
		Concurrency: 5,
	}
}
