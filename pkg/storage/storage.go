package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested path does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store is a small key-value style document store. Paths are
// forward-slash-separated and relative to the store root.
type Store interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
