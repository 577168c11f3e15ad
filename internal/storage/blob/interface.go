// internal/storage/blob/interface.go
package blob

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Read when no object is stored at the path.
var ErrNotExist = errors.New("blob: object does not exist")

// Storage is a flat object store addressed by slash-separated paths.
type Storage interface {
	// Write stores data at path, replacing any previous object.
	Write(ctx context.Context, path string, data []byte) error

	// Read returns the object at path, or ErrNotExist.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns every path under prefix, relative to the store root.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the object at path. Deleting a missing path succeeds.
	Delete(ctx context.Context, path string) error
}
