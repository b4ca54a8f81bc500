// Package storage moves trace bundles between the local filesystem and
// object storage, with a size-bounded fetch cache for repeated loads.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the remote side of a bundle archive.
// Implementations cover S3-compatible services and a local filesystem
// backend for tests and offline work.
type ObjectStorage interface {
	// Upload stores a local file under objectPath. Large files may be
	// split into parts transparently.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download fetches objectPath into localPath, creating parent
	// directories as needed. Returns ErrObjectNotFound for absent
	// objects.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting an absent object is not an
	// error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// MultipartConfig holds settings for splitting large uploads.
type MultipartConfig struct {
	// PartSize is the size of each part in bytes (default 8MB).
	// Uploads below this size go up in one piece.
	PartSize int64
}

// DefaultMultipartConfig returns the default multipart settings.
func DefaultMultipartConfig() MultipartConfig {
	return MultipartConfig{
		PartSize: 8 * 1024 * 1024,
	}
}
