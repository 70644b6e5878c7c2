package blobstore

import (
	"context"
	"io"
	"time"

	"vinnodrive/internal/hasher"
)

// Staged describes bytes written to scratch space but not yet addressable by digest.
type Staged struct {
	TempKey   string
	Algorithm hasher.Algorithm
	Digest    string
	SizeBytes int64
}

// BlobStore is the byte-storage abstraction used by the dedup coordinator.
//
// Writes are split into Stage (slow, outside any metadata transaction) and
// Promote (a rename, cheap enough to run while the blob row is locked).
type BlobStore interface {
	Stage(ctx context.Context, r io.Reader, alg hasher.Algorithm) (*Staged, error)
	Promote(ctx context.Context, staged *Staged, digest string) (string, error)
	Discard(ctx context.Context, staged *Staged) error

	Trash(ctx context.Context, key string) (string, error)
	Restore(ctx context.Context, trashKey, key string) error

	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Walk(ctx context.Context, fn func(key string, size int64, modTime time.Time) error) error
	PurgeScratch(ctx context.Context, olderThan time.Duration) (int, error)
}
