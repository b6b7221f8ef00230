package artifact

import (
	"context"
	"errors"
)

// Store defines blob operations for generated HTML artifacts. Put is a
// single atomic write; the returned URL is what gets persisted on the
// variant row as its current artifact pointer.
type Store interface {
	Put(ctx context.Context, path string, content []byte) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
	GetURL(ctx context.Context, path string) (string, error)
}

var ErrNotFound = errors.New("artifact not found")
