package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vinnodrive/internal/models"
)

const blobColumns = "digest, size_bytes, content_type, blob_key, hash_algorithm, ref_count, created_at"

// InsertBlobIfAbsent inserts a blob row with a zero reference count unless
// one already exists for the digest. It reports whether this call created it.
func (t *Tx) InsertBlobIfAbsent(ctx context.Context, blob *models.Blob) (bool, error) {
	if blob == nil {
		return false, fmt.Errorf("blob is required")
	}
	blob.Digest = strings.ToLower(strings.TrimSpace(blob.Digest))
	blob.BlobKey = strings.TrimSpace(blob.BlobKey)
	if blob.Digest == "" {
		return false, fmt.Errorf("digest is required")
	}
	if blob.BlobKey == "" {
		return false, fmt.Errorf("blob_key is required")
	}
	if blob.SizeBytes < 0 {
		return false, fmt.Errorf("size_bytes must be >= 0")
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO blobs (digest, size_bytes, content_type, blob_key, hash_algorithm, ref_count, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(digest) DO NOTHING
	`, blob.Digest, blob.SizeBytes, blob.ContentType, blob.BlobKey, blob.HashAlgorithm, formatTime(blob.CreatedAt))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// GetBlob returns one blob by digest inside the transaction, or nil.
func (t *Tx) GetBlob(ctx context.Context, digest string) (*models.Blob, error) {
	return getBlob(ctx, t.tx, digest)
}

// GetBlob returns one blob by digest, or nil.
func (s *Store) GetBlob(ctx context.Context, digest string) (*models.Blob, error) {
	return getBlob(ctx, s.db, digest)
}

// AddBlobRefs applies delta to the stored reference count and returns the
// committed-in-transaction value read back afterwards.
func (t *Tx) AddBlobRefs(ctx context.Context, digest string, delta int64) (int64, error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	res, err := t.tx.ExecContext(ctx,
		"UPDATE blobs SET ref_count = ref_count + ? WHERE digest = ? AND ref_count + ? >= 0",
		delta, digest, delta)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	var count int64
	err = t.tx.QueryRowContext(ctx, "SELECT ref_count FROM blobs WHERE digest = ?", digest).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("blob %s: %w", digest, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return count, fmt.Errorf("blob %s: ref_count %d cannot change by %d: %w", digest, count, delta, ErrInvariant)
	}
	return count, nil
}

// SetBlobRefs overwrites the stored reference count.
func (t *Tx) SetBlobRefs(ctx context.Context, digest string, count int64) error {
	res, err := t.tx.ExecContext(ctx, "UPDATE blobs SET ref_count = ? WHERE digest = ?", count, digest)
	if err != nil {
		return err
	}
	return requireAffected(res, "blob "+digest)
}

// CountBlobRefs counts live references to digest.
func (t *Tx) CountBlobRefs(ctx context.Context, digest string) (int64, error) {
	var count int64
	err := t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM refs WHERE blob_digest = ?", digest).Scan(&count)
	return count, err
}

// DeleteBlobIfOrphaned deletes the blob row only while its count is zero.
func (t *Tx) DeleteBlobIfOrphaned(ctx context.Context, digest string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM blobs WHERE digest = ? AND ref_count = 0", digest)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// BlobKeyExists reports whether any blob row points at key.
func (s *Store) BlobKeyExists(ctx context.Context, key string) (bool, error) {
	return blobKeyExists(ctx, s.db, key)
}

// BlobKeyExists reports whether any blob row points at key, as seen by the
// transaction.
func (t *Tx) BlobKeyExists(ctx context.Context, key string) (bool, error) {
	return blobKeyExists(ctx, t.tx, key)
}

func blobKeyExists(ctx context.Context, q querier, key string) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM blobs WHERE blob_key = ? LIMIT 1", key).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListUnreferencedBlobs returns blobs that no reference points at, oldest first.
func (s *Store) ListUnreferencedBlobs(ctx context.Context, limit int) ([]models.Blob, error) {
	query := `
		SELECT b.digest, b.size_bytes, b.content_type, b.blob_key, b.hash_algorithm, b.ref_count, b.created_at
		FROM blobs b
		WHERE NOT EXISTS (SELECT 1 FROM refs r WHERE r.blob_digest = b.digest)
		ORDER BY b.created_at ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blobs, nil
}

// ListRefCountMismatches returns blobs whose stored count differs from the
// number of live references.
func (s *Store) ListRefCountMismatches(ctx context.Context) ([]models.RefCountMismatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.digest, b.ref_count, COUNT(r.id)
		FROM blobs b
		LEFT JOIN refs r ON r.blob_digest = b.digest
		GROUP BY b.digest, b.ref_count
		HAVING b.ref_count != COUNT(r.id)
		ORDER BY b.digest ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.RefCountMismatch{}
	for rows.Next() {
		var m models.RefCountMismatch
		if err := rows.Scan(&m.Digest, &m.StoredCount, &m.LiveRefCount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func getBlob(ctx context.Context, q querier, digest string) (*models.Blob, error) {
	row := q.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE digest = ?`, strings.ToLower(strings.TrimSpace(digest)))
	return scanBlob(row)
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}
	var createdAt string

	err := scanner.Scan(&blob.Digest, &blob.SizeBytes, &blob.ContentType, &blob.BlobKey, &blob.HashAlgorithm, &blob.RefCount, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsedCreated

	return &blob, nil
}

func requireAffected(res sql.Result, what string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
