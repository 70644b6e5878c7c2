package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vinnodrive/internal/models"
)

const quotaColumns = "principal_id, storage_limit, storage_used, created_at, updated_at"

// EnsureQuota provisions a ledger entry with defaultLimit if none exists.
func (t *Tx) EnsureQuota(ctx context.Context, principalID string, defaultLimit int64) error {
	return ensureQuota(ctx, t.tx, principalID, defaultLimit)
}

// EnsureQuota provisions a ledger entry with defaultLimit if none exists.
func (s *Store) EnsureQuota(ctx context.Context, principalID string, defaultLimit int64) error {
	return ensureQuota(ctx, s.db, principalID, defaultLimit)
}

// GetQuota returns a principal's ledger entry inside the transaction, or nil.
func (t *Tx) GetQuota(ctx context.Context, principalID string) (*models.Quota, error) {
	return getQuota(ctx, t.tx, principalID)
}

// GetQuota returns a principal's ledger entry, or nil.
func (s *Store) GetQuota(ctx context.Context, principalID string) (*models.Quota, error) {
	return getQuota(ctx, s.db, principalID)
}

// HasCapacity reports whether additional bytes fit in the principal's limit.
// A missing entry is measured against defaultLimit with nothing used.
func (t *Tx) HasCapacity(ctx context.Context, principalID string, additional, defaultLimit int64) (bool, error) {
	return hasCapacity(ctx, t.tx, principalID, additional, defaultLimit)
}

// HasCapacity reports whether additional bytes fit in the principal's limit.
// A missing entry is measured against defaultLimit with nothing used.
func (s *Store) HasCapacity(ctx context.Context, principalID string, additional, defaultLimit int64) (bool, error) {
	return hasCapacity(ctx, s.db, principalID, additional, defaultLimit)
}

// AdjustUsage adds delta to storage_used as one store-evaluated update.
func (t *Tx) AdjustUsage(ctx context.Context, principalID string, delta int64) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE quotas SET storage_used = storage_used + ?, updated_at = ? WHERE principal_id = ?",
		delta, formatTime(time.Now()), principalID)
	if err != nil {
		return err
	}
	return requireAffected(res, "quota "+principalID)
}

// OverwriteUsage sets storage_used to an absolute value.
func (t *Tx) OverwriteUsage(ctx context.Context, principalID string, used int64) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE quotas SET storage_used = ?, updated_at = ? WHERE principal_id = ?",
		used, formatTime(time.Now()), principalID)
	if err != nil {
		return err
	}
	return requireAffected(res, "quota "+principalID)
}

// SetLimit changes a principal's storage limit.
func (t *Tx) SetLimit(ctx context.Context, principalID string, limit int64) error {
	if limit < 0 {
		return fmt.Errorf("storage limit must be >= 0")
	}
	res, err := t.tx.ExecContext(ctx,
		"UPDATE quotas SET storage_limit = ?, updated_at = ? WHERE principal_id = ?",
		limit, formatTime(time.Now()), principalID)
	if err != nil {
		return err
	}
	return requireAffected(res, "quota "+principalID)
}

// SumReferencedBytes sums the blob sizes of a principal's live references.
func (t *Tx) SumReferencedBytes(ctx context.Context, principalID string) (int64, error) {
	var total int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(b.size_bytes), 0)
		FROM refs r
		JOIN blobs b ON b.digest = r.blob_digest
		WHERE r.principal_id = ?`, principalID).Scan(&total)
	return total, err
}

// ListPrincipals returns every principal that owns a ledger entry or a reference.
func (s *Store) ListPrincipals(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT principal_id FROM quotas
		UNION
		SELECT principal_id FROM refs
		ORDER BY principal_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	principals := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		principals = append(principals, id)
	}
	return principals, rows.Err()
}

func ensureQuota(ctx context.Context, q querier, principalID string, defaultLimit int64) error {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return fmt.Errorf("principal id is required")
	}
	if defaultLimit < 0 {
		return fmt.Errorf("storage limit must be >= 0")
	}
	now := formatTime(time.Now())
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO quotas (principal_id, storage_limit, storage_used, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
	`, principalID, defaultLimit, now, now)
	return err
}

func getQuota(ctx context.Context, q querier, principalID string) (*models.Quota, error) {
	row := q.QueryRowContext(ctx, `SELECT `+quotaColumns+` FROM quotas WHERE principal_id = ?`, principalID)
	quota := models.Quota{}
	var createdAt, updatedAt string
	err := row.Scan(&quota.PrincipalID, &quota.StorageLimit, &quota.StorageUsed, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if quota.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if quota.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &quota, nil
}

func hasCapacity(ctx context.Context, q querier, principalID string, additional, defaultLimit int64) (bool, error) {
	quota, err := getQuota(ctx, q, principalID)
	if err != nil {
		return false, err
	}
	if quota == nil {
		quota = &models.Quota{PrincipalID: principalID, StorageLimit: defaultLimit}
	}
	return quota.HasCapacity(additional), nil
}
