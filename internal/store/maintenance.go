package store

import "context"

// StoreInfo summarizes the database contents.
type StoreInfo struct {
	SchemaVersion  int   `json:"schema_version" yaml:"schema_version"`
	BlobCount      int64 `json:"blob_count" yaml:"blob_count"`
	RefCount       int64 `json:"ref_count" yaml:"ref_count"`
	PrincipalCount int64 `json:"principal_count" yaml:"principal_count"`
	PhysicalBytes  int64 `json:"physical_bytes" yaml:"physical_bytes"`
	LogicalBytes   int64 `json:"logical_bytes" yaml:"logical_bytes"`
}

// StoreInfo returns row counts and byte totals. Logical bytes count every
// reference; physical bytes count every blob once.
func (s *Store) StoreInfo(ctx context.Context) (*StoreInfo, error) {
	version, err := currentVersion(s.db)
	if err != nil {
		return nil, err
	}
	info := &StoreInfo{SchemaVersion: version}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM blobs").Scan(&info.BlobCount, &info.PhysicalBytes); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(r.id), COALESCE(SUM(b.size_bytes), 0)
		FROM refs r
		JOIN blobs b ON b.digest = r.blob_digest`).Scan(&info.RefCount, &info.LogicalBytes); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT principal_id FROM quotas
			UNION
			SELECT principal_id FROM refs
		)`).Scan(&info.PrincipalCount); err != nil {
		return nil, err
	}
	return info, nil
}
