package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vinnodrive/internal/models"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testDigest(seed string) string {
	return strings.Repeat(seed, 64/len(seed))
}

// seedBlob inserts a blob and count references through one transaction.
func seedBlob(t *testing.T, st *Store, digest string, size int64) *models.Blob {
	t.Helper()
	blob := &models.Blob{
		Digest:        digest,
		SizeBytes:     size,
		ContentType:   "text/plain",
		BlobKey:       "sha256/" + digest[0:2] + "/" + digest[2:4] + "/" + digest,
		HashAlgorithm: "sha256",
	}
	err := st.WithTx(context.Background(), func(tx *Tx) error {
		_, err := tx.InsertBlobIfAbsent(context.Background(), blob)
		return err
	})
	if err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	return blob
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenIsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	st.Close()

	st, err = Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer st.Close()

	var fk int
	if err := st.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if fk != 1 {
		t.Fatalf("expected foreign keys on, got %d", fk)
	}
}

func TestTimeFormatSortsLexically(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	whole := formatTime(base)
	frac := formatTime(base.Add(100 * time.Millisecond))
	if !(whole < frac) {
		t.Fatalf("expected %q < %q", whole, frac)
	}

	parsed, err := parseTime(frac)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(base.Add(100 * time.Millisecond)) {
		t.Fatalf("round trip mismatch: %v", parsed)
	}
}

func TestStoreInfo(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	info, err := st.StoreInfo(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.SchemaVersion == 0 {
		t.Fatal("expected non-zero schema version")
	}
	if info.BlobCount != 0 || info.RefCount != 0 {
		t.Fatalf("expected empty store, got %#v", info)
	}

	digest := testDigest("a")
	seedBlob(t, st, digest, 10)
	err = st.WithTx(ctx, func(tx *Tx) error {
		for i, principal := range []string{"alice", "bob"} {
			if err := tx.EnsureQuota(ctx, principal, 100); err != nil {
				return err
			}
			ref := &models.Reference{ID: []string{"r1", "r2"}[i], PrincipalID: principal, Filename: "f", Digest: digest}
			if err := tx.CreateRef(ctx, ref); err != nil {
				return err
			}
			if _, err := tx.AddBlobRefs(ctx, digest, 1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed refs: %v", err)
	}

	info, err = st.StoreInfo(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.BlobCount != 1 || info.PhysicalBytes != 10 {
		t.Fatalf("unexpected blob totals: %#v", info)
	}
	if info.RefCount != 2 || info.LogicalBytes != 20 {
		t.Fatalf("unexpected ref totals: %#v", info)
	}
	if info.PrincipalCount != 2 {
		t.Fatalf("expected 2 principals, got %d", info.PrincipalCount)
	}
}

func TestSQLiteDSNLocksAtBegin(t *testing.T) {
	dsn, err := sqliteDSN("/var/lib/vinno/vinno.db")
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:///var/lib/vinno/vinno.db?") {
		t.Fatalf("unexpected dsn path: %s", dsn)
	}
	for _, want := range []string{"_txlock=immediate", "busy_timeout%285000%29", "foreign_keys%281%29"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %s is missing %s", dsn, want)
		}
	}
}
