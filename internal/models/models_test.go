package models

import "testing"

func TestReferenceResolve(t *testing.T) {
	ref := Reference{IsPrimary: false, RefCount: 2, BlobKey: "sha256/ab/cd/abcd"}
	ref.Resolve("https://files.example.com/media/")
	if ref.Locator != "https://files.example.com/media/sha256/ab/cd/abcd" {
		t.Fatalf("unexpected locator: %q", ref.Locator)
	}
	if !ref.IsShared || !ref.IsDuplicate {
		t.Fatalf("expected shared duplicate, got %#v", ref)
	}

	primary := Reference{IsPrimary: true, RefCount: 2, BlobKey: "sha256/ab/cd/abcd"}
	primary.Resolve("")
	if primary.Locator != "sha256/ab/cd/abcd" {
		t.Fatalf("expected bare key locator, got %q", primary.Locator)
	}
	if !primary.IsShared || primary.IsDuplicate {
		t.Fatalf("primary uploader must not be a duplicate: %#v", primary)
	}

	single := Reference{RefCount: 1}
	single.Resolve("")
	if single.IsShared || single.IsDuplicate {
		t.Fatalf("single reference must not be shared: %#v", single)
	}
}

func TestQuotaRemaining(t *testing.T) {
	q := Quota{StorageLimit: 100, StorageUsed: 90}
	if q.Remaining() != 10 {
		t.Fatalf("expected 10 remaining, got %d", q.Remaining())
	}
	if q.HasCapacity(50) {
		t.Fatal("50 bytes must not fit in 10 remaining")
	}
	if !q.HasCapacity(10) {
		t.Fatal("exact fit must be allowed")
	}

	over := Quota{StorageLimit: 100, StorageUsed: 120}
	if over.Remaining() != 0 {
		t.Fatalf("expected 0 remaining when over limit, got %d", over.Remaining())
	}
}
