package models

import (
	"strings"
	"time"
)

// Reference is the user-visible pointer from a principal's file entry to a blob.
type Reference struct {
	ID          string    `json:"id" yaml:"id"`
	PrincipalID string    `json:"principal_id" yaml:"principal_id"`
	Filename    string    `json:"filename" yaml:"filename"`
	IsPrimary   bool      `json:"is_primary_uploader" yaml:"is_primary_uploader"`
	CreatedAt   time.Time `json:"upload_timestamp" yaml:"upload_timestamp"`

	// Resolved blob metadata.
	Digest      string `json:"hash" yaml:"hash"`
	SizeBytes   int64  `json:"size" yaml:"size"`
	ContentType string `json:"content_type" yaml:"content_type"`
	RefCount    int64  `json:"ref_count" yaml:"ref_count"`
	BlobKey     string `json:"-" yaml:"-"`
	Locator     string `json:"download_url,omitempty" yaml:"download_url,omitempty"`
	IsShared    bool   `json:"is_shared" yaml:"is_shared"`
	IsDuplicate bool   `json:"is_duplicate" yaml:"is_duplicate"`
}

// Shared reports whether other references point at the same blob.
func (r Reference) Shared() bool {
	return r.RefCount > 1
}

// Duplicate reports whether this reference reuses content someone else uploaded first.
func (r Reference) Duplicate() bool {
	return r.Shared() && !r.IsPrimary
}

// Resolve fills derived presentation fields. baseURL may be empty, in which
// case the locator is the bare blob key.
func (r *Reference) Resolve(baseURL string) {
	r.IsShared = r.Shared()
	r.IsDuplicate = r.Duplicate()
	if r.BlobKey == "" {
		r.Locator = ""
		return
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		r.Locator = r.BlobKey
		return
	}
	r.Locator = baseURL + "/" + strings.TrimLeft(r.BlobKey, "/")
}
