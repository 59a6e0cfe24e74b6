// Package storage provides read access to the object stores migration
// scripts are kept in.
package storage

import (
	"context"
	"errors"
	"io"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrListFailed     = errors.New("list failed")
	ErrOpenFailed     = errors.New("open failed")
)

// ObjectStorage abstracts a flat, read-only object namespace.
// Implementations include S3 and the local filesystem (a directory or an
// embedded fs.FS).
type ObjectStorage interface {
	// ListObjects returns the names of every object directly under the
	// store root, relative to it.
	ListObjects(ctx context.Context) ([]string, error)

	// Open returns a reader for the named object. A missing object returns
	// ErrObjectNotFound.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}
