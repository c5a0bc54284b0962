// Package storage mirrors generated artifacts into persistent storage.
// It defines the Storage interface (port) and an S3 implementation, plus
// the Mirror that copies a provider-hosted artifact into a Storage.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrArtifactTooLarge is returned when a downloaded artifact exceeds the size limit.
var ErrArtifactTooLarge = errors.New("storage: artifact exceeds size limit")

// Storage defines the interface for persistent artifact storage.
type Storage interface {
	// Upload stores data under key and returns its public URL.
	Upload(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)
}
