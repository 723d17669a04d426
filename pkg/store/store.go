// Package store defines the file store the server reads and writes.
//
// The store is a flat namespace of named byte blobs. Uploads are staged and
// only become visible when committed, so a reader never observes a partially
// written file and the last committed upload of a name wins. A Reader keeps
// serving the content it opened even if the name is replaced or removed
// while it is being read.
package store

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when the requested name has no committed file.
	ErrNotFound = errors.New("file not found")

	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidName is returned for names the backend cannot represent.
	ErrInvalidName = errors.New("invalid file name")

	// ErrFinished is returned by a Writer used after Commit or Abort.
	ErrFinished = errors.New("upload already finished")
)

// Store is a flat file store.
type Store interface {
	// Create starts a staged upload of name. Nothing is visible under name
	// until the returned Writer is committed.
	Create(ctx context.Context, name string) (Writer, error)

	// Open returns a Reader over the committed content of name.
	// Returns ErrNotFound if name has no committed file.
	Open(ctx context.Context, name string) (Reader, error)

	// Remove deletes the committed file for name.
	// Returns ErrNotFound if there is none.
	Remove(ctx context.Context, name string) error

	// HealthCheck verifies the backend is reachable and writable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources. Further calls return ErrClosed.
	Close() error
}

// Writer receives the bytes of a staged upload.
type Writer interface {
	io.Writer

	// Commit atomically publishes the staged bytes under the target name,
	// replacing any previous file.
	Commit() error

	// Abort discards the staged bytes. It is safe to call after Commit, in
	// which case it does nothing.
	Abort() error
}

// Reader streams a committed file.
type Reader interface {
	io.ReadCloser

	// Size returns the total size of the file in bytes.
	Size() uint64
}
