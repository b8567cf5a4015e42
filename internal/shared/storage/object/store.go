package object

import (
	"context"
	"io"
)

// Store saves and reads back export artifacts by key.
type Store interface {
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}
