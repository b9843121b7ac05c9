package filestore

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned by Get when no object has the given name.
var ErrNotExist = errors.New("file does not exist")

// FileStore is an interface for storing and retrieving media objects by name.
type FileStore interface {
	// Save stores the content under name.
	// It is idempotent: if an object with the same name already exists, it returns nil.
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) error

	// Get retrieves the content stored under name.
	Get(ctx context.Context, name string) (io.ReadCloser, error)
}
