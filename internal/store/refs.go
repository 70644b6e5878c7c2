package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vinnodrive/internal/models"
)

const refJoinColumns = `r.id, r.principal_id, r.filename, r.is_primary, r.created_at,
	b.digest, b.size_bytes, b.content_type, b.ref_count, b.blob_key`

// CreateRef inserts one reference row.
func (t *Tx) CreateRef(ctx context.Context, ref *models.Reference) error {
	if ref == nil {
		return fmt.Errorf("reference is required")
	}
	if strings.TrimSpace(ref.ID) == "" {
		return fmt.Errorf("reference id is required")
	}
	if strings.TrimSpace(ref.PrincipalID) == "" {
		return fmt.Errorf("principal id is required")
	}
	if strings.TrimSpace(ref.Digest) == "" {
		return fmt.Errorf("blob digest is required")
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO refs (id, principal_id, blob_digest, filename, is_primary, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ref.ID, ref.PrincipalID, ref.Digest, ref.Filename, boolToInt(ref.IsPrimary), formatTime(ref.CreatedAt))
	return err
}

// DeleteRef deletes the reference owned by principalID and returns the digest
// it pointed at. A reference owned by someone else is reported as not found.
func (t *Tx) DeleteRef(ctx context.Context, id, principalID string) (string, error) {
	var digest string
	err := t.tx.QueryRowContext(ctx,
		"SELECT blob_digest FROM refs WHERE id = ? AND principal_id = ?", id, principalID).Scan(&digest)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("reference %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}

	res, err := t.tx.ExecContext(ctx, "DELETE FROM refs WHERE id = ? AND principal_id = ?", id, principalID)
	if err != nil {
		return "", err
	}
	if err := requireAffected(res, "reference "+id); err != nil {
		return "", err
	}
	return digest, nil
}

// GetRef returns one reference owned by principalID, or nil.
func (t *Tx) GetRef(ctx context.Context, id, principalID string) (*models.Reference, error) {
	return getRef(ctx, t.tx, id, principalID)
}

// GetRef returns one reference owned by principalID, or nil.
func (s *Store) GetRef(ctx context.Context, id, principalID string) (*models.Reference, error) {
	return getRef(ctx, s.db, id, principalID)
}

// ListRefs lists a principal's references newest first with blob metadata.
func (s *Store) ListRefs(ctx context.Context, principalID string) ([]models.Reference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+refJoinColumns+`
		FROM refs r
		JOIN blobs b ON b.digest = r.blob_digest
		WHERE r.principal_id = ?
		ORDER BY r.created_at DESC, r.rowid DESC`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []models.Reference{}
	for rows.Next() {
		ref, err := scanRef(rows)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			refs = append(refs, *ref)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

func getRef(ctx context.Context, q querier, id, principalID string) (*models.Reference, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+refJoinColumns+`
		FROM refs r
		JOIN blobs b ON b.digest = r.blob_digest
		WHERE r.id = ? AND r.principal_id = ?`, id, principalID)
	return scanRef(row)
}

func scanRef(scanner interface {
	Scan(dest ...any) error
}) (*models.Reference, error) {
	ref := models.Reference{}
	var isPrimary int
	var createdAt string

	err := scanner.Scan(
		&ref.ID,
		&ref.PrincipalID,
		&ref.Filename,
		&isPrimary,
		&createdAt,
		&ref.Digest,
		&ref.SizeBytes,
		&ref.ContentType,
		&ref.RefCount,
		&ref.BlobKey,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	ref.IsPrimary = isPrimary != 0
	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	ref.CreatedAt = parsedCreated
	return &ref, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
