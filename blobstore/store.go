// Package blobstore abstracts the destinations a database backup can be
// written to: a local directory or an S3-compatible object store.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blobstore: blob not found")

// Store is a destination for backup blobs.
type Store interface {
	// Put writes a blob atomically under name, replacing any existing blob.
	Put(ctx context.Context, name string, r io.Reader) error
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns all blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
