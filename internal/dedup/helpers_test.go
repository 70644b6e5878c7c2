package dedup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"vinnodrive/internal/blobstore"
	"vinnodrive/internal/hasher"
	"vinnodrive/internal/models"
	"vinnodrive/internal/store"
)

// faultyFs counts promotions out of scratch space and can fail renames on demand.
type faultyFs struct {
	afero.Fs

	mu          sync.Mutex
	promotions  int
	failPromote bool
	failTrash   bool
}

func (f *faultyFs) Rename(oldname, newname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fromTmp := strings.Contains(filepath.ToSlash(oldname), "/tmp/")
	toTrash := strings.Contains(filepath.ToSlash(newname), "/trash/")
	if fromTmp && f.failPromote {
		return errors.New("injected promote failure")
	}
	if toTrash && f.failTrash {
		return errors.New("injected trash failure")
	}
	if err := f.Fs.Rename(oldname, newname); err != nil {
		return err
	}
	if fromTmp {
		f.promotions++
	}
	return nil
}

func (f *faultyFs) Promotions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.promotions
}

func (f *faultyFs) set(failPromote, failTrash bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPromote = failPromote
	f.failTrash = failTrash
}

type harness struct {
	svc *Coordinator
	st  *store.Store
	cas *blobstore.LocalCAS
	fs  *faultyFs
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "vinno.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fs := &faultyFs{Fs: afero.NewMemMapFs()}
	cas, err := blobstore.NewLocalCAS(fs, "/blobs")
	require.NoError(t, err)

	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	svc, err := NewCoordinator(st, cas, opts)
	require.NoError(t, err)

	return &harness{svc: svc, st: st, cas: cas, fs: fs}
}

func digestOf(t *testing.T, content string) string {
	t.Helper()
	digest, _, err := hasher.Sum(hasher.SHA256, strings.NewReader(content))
	require.NoError(t, err)
	return digest
}

func (h *harness) ingest(t *testing.T, principal, filename, content string) (models.Reference, error) {
	t.Helper()
	return h.svc.Ingest(context.Background(), IngestInput{
		PrincipalID: principal,
		Filename:    filename,
		Digest:      digestOf(t, content),
		SizeBytes:   int64(len(content)),
		ContentType: "text/plain",
		Content:     bytes.NewBufferString(content),
	})
}

func (h *harness) blob(t *testing.T, digest string) *models.Blob {
	t.Helper()
	blob, err := h.st.GetBlob(context.Background(), digest)
	require.NoError(t, err)
	return blob
}

func (h *harness) storedObjects(t *testing.T) []string {
	t.Helper()
	var keys []string
	err := h.cas.Walk(context.Background(), func(key string, _ int64, _ time.Time) error {
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)
	return keys
}

// plantObject writes content under its digest key without a blob row and
// backdates it by age.
func (h *harness) plantObject(t *testing.T, content string, age time.Duration) string {
	t.Helper()
	key := blobstore.KeyFor(hasher.SHA256, digestOf(t, content))
	p := "/blobs/" + key
	require.NoError(t, h.fs.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, afero.WriteFile(h.fs, p, []byte(content), 0o644))
	stamp := time.Now().Add(-age)
	require.NoError(t, h.fs.Chtimes(p, stamp, stamp))
	return key
}

func (h *harness) scratchFiles(t *testing.T) int {
	t.Helper()
	total := 0
	for _, dir := range []string{"/blobs/tmp", "/blobs/trash"} {
		entries, err := afero.ReadDir(h.fs, dir)
		require.NoError(t, err)
		total += len(entries)
	}
	return total
}

// requireConsistent checks the ref count and quota invariants and that
// every blob row has exactly one stored object.
func (h *harness) requireConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	report, err := h.svc.CheckRefCounts(ctx, false)
	require.NoError(t, err)
	require.Empty(t, report.Mismatches)

	principals, err := h.st.ListPrincipals(ctx)
	require.NoError(t, err)
	for _, principal := range principals {
		refs, err := h.svc.List(ctx, principal)
		require.NoError(t, err)
		var sum int64
		for _, ref := range refs {
			sum += ref.SizeBytes
		}
		quota, err := h.svc.Usage(ctx, principal)
		require.NoError(t, err)
		require.Equal(t, sum, quota.StorageUsed, "quota for %s", principal)
	}

	info, err := h.st.StoreInfo(ctx)
	require.NoError(t, err)
	require.Len(t, h.storedObjects(t), int(info.BlobCount))
	require.Zero(t, h.scratchFiles(t))
}
