package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vinnodrive/internal/blobstore"
	"vinnodrive/internal/hasher"
	"vinnodrive/internal/models"
	"vinnodrive/internal/store"
)

// blobOps composes blob rows and physical bytes within one transaction.
type blobOps struct {
	tx     *store.Tx
	bytes  blobstore.BlobStore
	logger *slog.Logger
}

// byteSource yields staged content on demand; it is only called when the
// digest has no blob row yet.
type byteSource func(ctx context.Context) (*blobstore.Staged, error)

// findOrCreate returns the blob for digest, creating it with a zero count
// from the staged bytes when absent. The returned flag reports creation.
func (b blobOps) findOrCreate(ctx context.Context, digest string, size int64, contentType string, alg hasher.Algorithm, source byteSource) (*models.Blob, bool, error) {
	const op = "blob.find_or_create"

	existing, err := b.tx.GetBlob(ctx, digest)
	if err != nil {
		return nil, false, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	staged, err := source(ctx)
	if err != nil {
		return nil, false, err
	}

	blob := &models.Blob{
		Digest:        digest,
		SizeBytes:     size,
		ContentType:   contentType,
		BlobKey:       blobstore.KeyFor(alg, digest),
		HashAlgorithm: string(alg),
	}
	created, err := b.tx.InsertBlobIfAbsent(ctx, blob)
	if err != nil {
		return nil, false, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
	if !created {
		winner, err := b.tx.GetBlob(ctx, digest)
		if err != nil {
			return nil, false, makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}
		if winner == nil {
			return nil, false, makeError(op, KindInvariantViolation, 0, fmt.Errorf("blob %s vanished after insert conflict", digest))
		}
		return winner, false, nil
	}

	key, err := b.bytes.Promote(ctx, staged, digest)
	if err != nil {
		return nil, false, makeError(op, KindStorageIO, 0, fmt.Errorf("promote %s: %w", digest, err))
	}
	b.tx.OnRollback(func() error {
		return b.bytes.Delete(context.WithoutCancel(ctx), key)
	})

	stored, err := b.tx.GetBlob(ctx, digest)
	if err != nil {
		return nil, false, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
	if stored == nil {
		return nil, false, makeError(op, KindInvariantViolation, 0, fmt.Errorf("blob %s missing after create", digest))
	}
	return stored, true, nil
}

// incrementRef raises the count by one and returns the value read back.
func (b blobOps) incrementRef(ctx context.Context, digest string) (int64, error) {
	return b.addRefs(ctx, "blob.increment_ref", digest, 1)
}

// decrementRef lowers the count by one and returns the value read back.
// Going below zero is an invariant violation.
func (b blobOps) decrementRef(ctx context.Context, digest string) (int64, error) {
	return b.addRefs(ctx, "blob.decrement_ref", digest, -1)
}

func (b blobOps) addRefs(ctx context.Context, op, digest string, delta int64) (int64, error) {
	count, err := b.tx.AddBlobRefs(ctx, digest, delta)
	switch {
	case err == nil:
		return count, nil
	case errors.Is(err, store.ErrInvariant), errors.Is(err, store.ErrNotFound):
		return count, makeError(op, KindInvariantViolation, 0, err)
	default:
		return count, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
}

// deleteIfOrphaned removes the blob row and its bytes while the count is zero.
// Bytes are moved aside now and dropped after commit, or put back on rollback.
// Already-missing bytes are not an error.
func (b blobOps) deleteIfOrphaned(ctx context.Context, blob *models.Blob) (bool, error) {
	const op = "blob.delete_if_orphaned"

	deleted, err := b.tx.DeleteBlobIfOrphaned(ctx, blob.Digest)
	if err != nil {
		return false, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
	if !deleted {
		return false, nil
	}

	trashKey, err := b.bytes.Trash(ctx, blob.BlobKey)
	if err != nil {
		return false, makeError(op, KindStorageIO, 0, fmt.Errorf("trash %s: %w", blob.BlobKey, err))
	}
	if trashKey == "" {
		b.logger.Warn("blob bytes already absent", "digest", blob.Digest, "blob_key", blob.BlobKey)
		return true, nil
	}

	key := blob.BlobKey
	b.tx.OnRollback(func() error {
		return b.bytes.Restore(context.WithoutCancel(ctx), trashKey, key)
	})
	b.tx.AfterCommit(func() {
		if err := b.bytes.Delete(context.WithoutCancel(ctx), trashKey); err != nil {
			b.logger.Warn("drop trashed blob bytes failed", "digest", blob.Digest, "trash_key", trashKey, "error", err)
		}
	})
	return true, nil
}
