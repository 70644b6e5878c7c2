package models

import "time"

// Blob is one physically stored copy of content, identified by its digest.
type Blob struct {
	Digest        string    `json:"digest" yaml:"digest"`
	SizeBytes     int64     `json:"size_bytes" yaml:"size_bytes"`
	ContentType   string    `json:"content_type" yaml:"content_type"`
	BlobKey       string    `json:"blob_key" yaml:"blob_key"`
	HashAlgorithm string    `json:"hash_algorithm" yaml:"hash_algorithm"`
	RefCount      int64     `json:"ref_count" yaml:"ref_count"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
}
