package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"vinnodrive/internal/hasher"
)

const (
	tmpDir   = "tmp"
	trashDir = "trash"
)

// LocalCAS stores blob bytes in a content-addressed tree on an afero filesystem.
type LocalCAS struct {
	fs   afero.Fs
	root string
}

// NewLocalCAS creates a CAS rooted at root on fs. A nil fs means the OS filesystem.
func NewLocalCAS(fs afero.Fs, root string) (*LocalCAS, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local cas root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{abs, filepath.Join(abs, tmpDir), filepath.Join(abs, trashDir)} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &LocalCAS{fs: fs, root: abs}, nil
}

// KeyFor returns the object key for digest under alg.
func KeyFor(alg hasher.Algorithm, digest string) string {
	if alg == "" {
		alg = hasher.SHA256
	}
	return fmt.Sprintf("%s/%s/%s/%s", alg, digest[0:2], digest[2:4], digest)
}

// Stage streams r into scratch space while hashing it.
func (c *LocalCAS) Stage(ctx context.Context, r io.Reader, alg hasher.Algorithm) (*Staged, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := hasher.New(alg)
	if err != nil {
		return nil, err
	}

	tmp, err := afero.TempFile(c.fs, filepath.Join(c.root, tmpDir), "put-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = c.fs.Remove(tmpPath)
	}

	n, err := io.Copy(io.MultiWriter(tmp, h), &contextReader{ctx: ctx, r: r})
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, err
	}

	return &Staged{
		TempKey:   path.Join(tmpDir, filepath.Base(tmpPath)),
		Algorithm: alg,
		Digest:    hex.EncodeToString(h.Sum(nil)),
		SizeBytes: n,
	}, nil
}

// Promote moves staged bytes to the address of digest and returns the key.
// An object already present at that address is kept and the staged copy dropped.
func (c *LocalCAS) Promote(ctx context.Context, staged *Staged, digest string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("blob store is not configured")
	}
	if staged == nil {
		return "", fmt.Errorf("staged content is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	digest, err := hasher.ValidateDigest(digest)
	if err != nil {
		return "", err
	}

	src, err := c.pathFromKey(staged.TempKey)
	if err != nil {
		return "", err
	}
	key := KeyFor(staged.Algorithm, digest)
	dst := filepath.Join(c.root, filepath.FromSlash(key))
	if err := c.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	if _, err := c.fs.Stat(dst); err == nil {
		_ = c.fs.Remove(src)
		return key, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := c.fs.Rename(src, dst); err != nil {
		if _, statErr := c.fs.Stat(dst); statErr == nil {
			_ = c.fs.Remove(src)
			return key, nil
		}
		return "", err
	}
	return key, nil
}

// Discard drops staged bytes. Already-promoted or missing files are ignored.
func (c *LocalCAS) Discard(ctx context.Context, staged *Staged) error {
	if c == nil || staged == nil || staged.TempKey == "" {
		return nil
	}
	return c.Delete(ctx, staged.TempKey)
}

// Trash moves a live object aside so its removal can still be undone.
// A missing object yields an empty trash key.
func (c *LocalCAS) Trash(ctx context.Context, key string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := c.pathFromKey(key)
	if err != nil {
		return "", err
	}
	trashKey := path.Join(trashDir, uuid.NewString())
	dst := filepath.Join(c.root, filepath.FromSlash(trashKey))
	if err := c.fs.Rename(src, dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		if _, statErr := c.fs.Stat(src); errors.Is(statErr, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return trashKey, nil
}

// Restore moves a trashed object back to key.
func (c *LocalCAS) Restore(ctx context.Context, trashKey, key string) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if strings.TrimSpace(trashKey) == "" {
		return nil
	}
	src, err := c.pathFromKey(trashKey)
	if err != nil {
		return err
	}
	dst, err := c.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := c.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return c.fs.Rename(src, dst)
}

// Open returns a reader for blob key content.
func (c *LocalCAS) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if c == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := c.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	return c.fs.Open(p)
}

// Exists reports whether an object is stored at key.
func (c *LocalCAS) Exists(ctx context.Context, key string) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("blob store is not configured")
	}
	p, err := c.pathFromKey(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(c.fs, p)
}

// Delete removes a blob object. Missing files are ignored.
func (c *LocalCAS) Delete(ctx context.Context, key string) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := c.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := c.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Walk calls fn for every object stored under a digest key. Anything else
// under the root, scratch directories included, is never reported.
func (c *LocalCAS) Walk(ctx context.Context, fn func(key string, size int64, modTime time.Time) error) error {
	if c == nil {
		return fmt.Errorf("blob store is not configured")
	}
	return afero.Walk(c.fs, c.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == c.root {
			return nil
		}
		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			if !isShardDir(strings.Split(rel, "/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsObjectKey(rel) {
			return nil
		}
		return fn(rel, info.Size(), info.ModTime())
	})
}

// IsObjectKey reports whether key has the layout produced by KeyFor.
func IsObjectKey(key string) bool {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || !isShardDir(parts[:3]) {
		return false
	}
	digest, err := hasher.ValidateDigest(parts[3])
	if err != nil || digest != parts[3] {
		return false
	}
	return digest[0:2] == parts[1] && digest[2:4] == parts[2]
}

// isShardDir accepts the directory prefixes of an object key: the algorithm
// name followed by up to two levels of two-character hex shards.
func isShardDir(parts []string) bool {
	if len(parts) == 0 || len(parts) > 3 || parts[0] == "" {
		return false
	}
	if alg, err := hasher.ParseAlgorithm(parts[0]); err != nil || string(alg) != parts[0] {
		return false
	}
	for _, shard := range parts[1:] {
		if len(shard) != 2 {
			return false
		}
		if _, err := hex.DecodeString(shard); err != nil || strings.ToLower(shard) != shard {
			return false
		}
	}
	return true
}

// PurgeScratch removes staged and trashed files older than olderThan.
// Such files are left behind only by interrupted processes.
func (c *LocalCAS) PurgeScratch(ctx context.Context, olderThan time.Duration) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("blob store is not configured")
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, dir := range []string{tmpDir, trashDir} {
		entries, err := afero.ReadDir(c.fs, filepath.Join(c.root, dir))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return removed, err
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			if entry.IsDir() || entry.ModTime().After(cutoff) {
				continue
			}
			if err := c.fs.Remove(filepath.Join(c.root, dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (c *LocalCAS) pathFromKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("blob key must be relative")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || strings.Contains(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key")
	}
	return filepath.Join(c.root, clean), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

var _ BlobStore = (*LocalCAS)(nil)
