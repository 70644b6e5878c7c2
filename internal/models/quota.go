package models

import "time"

// Quota is the per-principal storage ledger entry.
type Quota struct {
	PrincipalID  string    `json:"principal_id" yaml:"principal_id"`
	StorageLimit int64     `json:"storage_limit" yaml:"storage_limit"`
	StorageUsed  int64     `json:"storage_used" yaml:"storage_used"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// Remaining returns the bytes still available, never below zero.
func (q Quota) Remaining() int64 {
	if q.StorageUsed >= q.StorageLimit {
		return 0
	}
	return q.StorageLimit - q.StorageUsed
}

// HasCapacity reports whether additional bytes fit under the limit.
func (q Quota) HasCapacity(additional int64) bool {
	return q.StorageUsed+additional <= q.StorageLimit
}

// Stats summarizes a principal's files the way the dashboard shows them.
type Stats struct {
	PrincipalID    string `json:"principal_id" yaml:"principal_id"`
	FileCount      int    `json:"file_count" yaml:"file_count"`
	LogicalBytes   int64  `json:"logical_bytes" yaml:"logical_bytes"`
	DuplicateBytes int64  `json:"duplicate_bytes" yaml:"duplicate_bytes"`
	UniqueBytes    int64  `json:"unique_bytes" yaml:"unique_bytes"`
	StorageLimit   int64  `json:"storage_limit" yaml:"storage_limit"`
	StorageUsed    int64  `json:"storage_used" yaml:"storage_used"`
	RemainingBytes int64  `json:"remaining_bytes" yaml:"remaining_bytes"`
}

// RefCountMismatch describes one blob whose stored count disagrees with its live references.
type RefCountMismatch struct {
	Digest       string `json:"digest" yaml:"digest"`
	StoredCount  int64  `json:"stored_count" yaml:"stored_count"`
	LiveRefCount int64  `json:"live_ref_count" yaml:"live_ref_count"`
}
