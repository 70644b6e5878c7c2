package dedup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"vinnodrive/internal/blobstore"
	"vinnodrive/internal/hasher"
	"vinnodrive/internal/models"
	"vinnodrive/internal/store"
)

// DefaultStorageLimit applies to principals without an explicit limit.
const DefaultStorageLimit int64 = 10 << 20

const (
	DefaultContentType   = "application/octet-stream"
	defaultGCBatchSize   = 500
	defaultScratchMaxAge = 24 * time.Hour
	maxFilenameLength    = 255
	maxContentTypeLength = 100
)

// errBlobVanished means the blob seen before the transaction was purged and
// the upload has not been staged yet. Ingest restages and retries once.
var errBlobVanished = errors.New("blob removed before commit")

// Options tunes coordinator policy.
type Options struct {
	DefaultLimit    int64
	HashAlgorithm   hasher.Algorithm
	VerifyDigest    bool
	MaxSize         int64
	DownloadBaseURL string
	GCBatchSize     int
	ScratchMaxAge   time.Duration
	Logger          *slog.Logger
}

// Coordinator runs ingest, list and remove as single atomic units over the
// metadata store and the byte store.
type Coordinator struct {
	store  *store.Store
	bytes  blobstore.BlobStore
	opts   Options
	logger *slog.Logger
}

// IngestInput carries one upload. Digest and SizeBytes are the caller's
// declared values; Content must yield exactly SizeBytes bytes.
type IngestInput struct {
	PrincipalID string
	Filename    string
	Digest      string
	SizeBytes   int64
	ContentType string
	Content     io.Reader
}

// Content is an open download stream with its metadata.
type Content struct {
	Reader      io.ReadCloser
	SizeBytes   int64
	ContentType string
	Filename    string
	Digest      string
}

// QuotaRepair reports one recomputed ledger entry.
type QuotaRepair struct {
	PrincipalID  string `json:"principal_id" yaml:"principal_id"`
	PreviousUsed int64  `json:"previous_used" yaml:"previous_used"`
	StorageUsed  int64  `json:"storage_used" yaml:"storage_used"`
	Provisioned  bool   `json:"provisioned" yaml:"provisioned"`
}

// Changed reports whether the repair altered the ledger.
func (r QuotaRepair) Changed() bool {
	return r.Provisioned || r.PreviousUsed != r.StorageUsed
}

// RefCountReport lists stored counts that disagree with live references.
type RefCountReport struct {
	Mismatches  []models.RefCountMismatch `json:"mismatches" yaml:"mismatches"`
	Repaired    int                       `json:"repaired" yaml:"repaired"`
	PurgedBlobs int                       `json:"purged_blobs" yaml:"purged_blobs"`
}

// GCResult reports one garbage collection run.
type GCResult struct {
	CandidateCount  int   `json:"candidate_count" yaml:"candidate_count"`
	DeletedCount    int   `json:"deleted_count" yaml:"deleted_count"`
	FailedCount     int   `json:"failed_count" yaml:"failed_count"`
	ReclaimedBytes  int64 `json:"reclaimed_bytes" yaml:"reclaimed_bytes"`
	OrphanFiles     int   `json:"orphan_files" yaml:"orphan_files"`
	OrphanFileBytes int64 `json:"orphan_file_bytes" yaml:"orphan_file_bytes"`
	ScratchPurged   int   `json:"scratch_purged" yaml:"scratch_purged"`
	DryRun          bool  `json:"dry_run" yaml:"dry_run"`
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(st *store.Store, bytes blobstore.BlobStore, opts Options) (*Coordinator, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if bytes == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	alg, err := hasher.ParseAlgorithm(string(opts.HashAlgorithm))
	if err != nil {
		return nil, err
	}
	opts.HashAlgorithm = alg
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultStorageLimit
	}
	if opts.GCBatchSize <= 0 {
		opts.GCBatchSize = defaultGCBatchSize
	}
	if opts.ScratchMaxAge <= 0 {
		opts.ScratchMaxAge = defaultScratchMaxAge
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: st, bytes: bytes, opts: opts, logger: logger}, nil
}

// Ingest stores content for a principal, reusing an existing blob when the
// digest is already known, and returns the new reference.
func (c *Coordinator) Ingest(ctx context.Context, in IngestInput) (models.Reference, error) {
	const op = "ingest"
	var zero models.Reference

	in, err := c.normalizeIngest(in)
	if err != nil {
		return zero, err
	}

	ok, err := c.store.HasCapacity(ctx, in.PrincipalID, in.SizeBytes, c.opts.DefaultLimit)
	if err != nil {
		return zero, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
	if !ok {
		return zero, makeError(op, KindQuotaExceeded, 0, fmt.Errorf("%w: %d bytes do not fit for %s", ErrQuotaExceeded, in.SizeBytes, in.PrincipalID))
	}

	var staged *blobstore.Staged
	defer func() {
		if staged == nil {
			return
		}
		if err := c.bytes.Discard(context.WithoutCancel(ctx), staged); err != nil {
			c.logger.Warn("discard staged bytes failed", "temp_key", staged.TempKey, "error", err)
		}
	}()

	existing, err := c.store.GetBlob(ctx, in.Digest)
	if err != nil {
		return zero, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
	if existing == nil || c.opts.VerifyDigest {
		if staged, err = c.stage(ctx, in); err != nil {
			return zero, err
		}
	}

	ref, err := c.commitIngest(ctx, in, staged)
	if errors.Is(err, errBlobVanished) {
		// Staging reads the whole upload, so it never runs under the write lock.
		c.logger.Debug("blob removed before commit, restaging", "digest", in.Digest)
		if staged, err = c.stage(ctx, in); err != nil {
			return zero, err
		}
		ref, err = c.commitIngest(ctx, in, staged)
	}
	if err != nil {
		return zero, c.fail(op, in.Digest, err)
	}

	ref.Resolve(c.opts.DownloadBaseURL)
	c.logger.Info("ingested",
		"principal", ref.PrincipalID,
		"reference", ref.ID,
		"digest", ref.Digest,
		"size", ref.SizeBytes,
		"primary", ref.IsPrimary,
		"ref_count", ref.RefCount,
	)
	return ref, nil
}

// commitIngest records the reference in one transaction. When the digest has
// no blob row and nothing was staged it returns errBlobVanished without
// writing anything.
func (c *Coordinator) commitIngest(ctx context.Context, in IngestInput, staged *blobstore.Staged) (models.Reference, error) {
	const op = "ingest"
	source := func(context.Context) (*blobstore.Staged, error) {
		if staged == nil {
			return nil, errBlobVanished
		}
		return staged, nil
	}

	var ref models.Reference
	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		ops := blobOps{tx: tx, bytes: c.bytes, logger: c.logger}

		if err := tx.EnsureQuota(ctx, in.PrincipalID, c.opts.DefaultLimit); err != nil {
			return makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}

		blob, created, err := ops.findOrCreate(ctx, in.Digest, in.SizeBytes, in.ContentType, c.opts.HashAlgorithm, source)
		if err != nil {
			return err
		}
		if blob.SizeBytes != in.SizeBytes {
			c.logger.Warn("declared size differs from stored blob", "digest", blob.Digest, "declared", in.SizeBytes, "stored", blob.SizeBytes)
		}

		ok, err := tx.HasCapacity(ctx, in.PrincipalID, blob.SizeBytes, c.opts.DefaultLimit)
		if err != nil {
			return makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}
		if !ok {
			return makeError(op, KindQuotaExceeded, 0, fmt.Errorf("%w: %d bytes do not fit for %s", ErrQuotaExceeded, blob.SizeBytes, in.PrincipalID))
		}

		count, err := ops.incrementRef(ctx, blob.Digest)
		if err != nil {
			return err
		}

		ref = models.Reference{
			ID:          uuid.NewString(),
			PrincipalID: in.PrincipalID,
			Filename:    in.Filename,
			IsPrimary:   created,
			CreatedAt:   time.Now().UTC(),
			Digest:      blob.Digest,
		}
		if err := tx.CreateRef(ctx, &ref); err != nil {
			return makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}

		if err := tx.AdjustUsage(ctx, in.PrincipalID, blob.SizeBytes); err != nil {
			return makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}

		ref.SizeBytes = blob.SizeBytes
		ref.ContentType = blob.ContentType
		ref.RefCount = count
		ref.BlobKey = blob.BlobKey
		return nil
	})
	return ref, err
}

// List returns a principal's references, newest first.
func (c *Coordinator) List(ctx context.Context, principalID string) ([]models.Reference, error) {
	const op = "list"
	principalID, err := normalizePrincipal(op, principalID)
	if err != nil {
		return nil, err
	}
	refs, err := c.store.ListRefs(ctx, principalID)
	if err != nil {
		return nil, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
	for i := range refs {
		refs[i].Resolve(c.opts.DownloadBaseURL)
	}
	return refs, nil
}

// Remove deletes one of the principal's references, releasing quota and
// purging the blob when no references remain. It returns the removed
// reference with the blob's remaining count.
func (c *Coordinator) Remove(ctx context.Context, principalID, refID string) (models.Reference, error) {
	const op = "remove"
	var zero models.Reference

	principalID, err := normalizePrincipal(op, principalID)
	if err != nil {
		return zero, err
	}
	refID, err = normalizeRefID(op, refID)
	if err != nil {
		return zero, err
	}

	var removed models.Reference
	var digest string
	err = c.store.WithTx(ctx, func(tx *store.Tx) error {
		ops := blobOps{tx: tx, bytes: c.bytes, logger: c.logger}

		ref, err := tx.GetRef(ctx, refID, principalID)
		if err != nil {
			return makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}
		if ref == nil {
			return makeError(op, KindNotFound, 0, fmt.Errorf("%w: reference %s", ErrNotFound, refID))
		}
		removed = *ref

		digest, err = tx.DeleteRef(ctx, refID, principalID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return makeError(op, KindNotFound, 0, fmt.Errorf("%w: reference %s", ErrNotFound, refID))
			}
			return makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}

		blob, err := tx.GetBlob(ctx, digest)
		if err != nil {
			return makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}
		if blob == nil {
			return makeError(op, KindInvariantViolation, 0, fmt.Errorf("reference %s points at missing blob %s", refID, digest))
		}

		if err := tx.AdjustUsage(ctx, principalID, -blob.SizeBytes); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return makeError(op, KindInvariantViolation, 0, fmt.Errorf("principal %s holds references without a quota entry", principalID))
			}
			return makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}

		count, err := ops.decrementRef(ctx, digest)
		if err != nil {
			return err
		}
		removed.RefCount = count

		if count <= 0 {
			if _, err := ops.deleteIfOrphaned(ctx, blob); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return zero, c.fail(op, digest, err)
	}

	removed.Resolve(c.opts.DownloadBaseURL)
	c.logger.Info("removed",
		"principal", principalID,
		"reference", refID,
		"digest", removed.Digest,
		"ref_count", removed.RefCount,
		"blob_deleted", removed.RefCount <= 0,
	)
	return removed, nil
}

// Open returns the content behind one of the principal's references.
func (c *Coordinator) Open(ctx context.Context, principalID, refID string) (*Content, error) {
	const op = "open"
	principalID, err := normalizePrincipal(op, principalID)
	if err != nil {
		return nil, err
	}
	refID, err = normalizeRefID(op, refID)
	if err != nil {
		return nil, err
	}

	ref, err := c.store.GetRef(ctx, refID, principalID)
	if err != nil {
		return nil, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
	if ref == nil {
		return nil, makeError(op, KindNotFound, 0, fmt.Errorf("%w: reference %s", ErrNotFound, refID))
	}

	rc, err := c.bytes.Open(ctx, ref.BlobKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, c.fail(op, ref.Digest, makeError(op, KindInvariantViolation, 0, fmt.Errorf("bytes missing for live blob %s", ref.Digest)))
		}
		return nil, makeError(op, KindStorageIO, 0, err)
	}
	return &Content{
		Reader:      rc,
		SizeBytes:   ref.SizeBytes,
		ContentType: ref.ContentType,
		Filename:    ref.Filename,
		Digest:      ref.Digest,
	}, nil
}

// Usage returns the principal's ledger entry. A principal without one is
// reported with the default limit and nothing used.
func (c *Coordinator) Usage(ctx context.Context, principalID string) (models.Quota, error) {
	const op = "usage"
	principalID, err := normalizePrincipal(op, principalID)
	if err != nil {
		return models.Quota{}, err
	}
	quota, err := c.store.GetQuota(ctx, principalID)
	if err != nil {
		return models.Quota{}, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
	if quota == nil {
		return models.Quota{PrincipalID: principalID, StorageLimit: c.opts.DefaultLimit}, nil
	}
	return *quota, nil
}

// Stats summarizes a principal's files. Bytes of references that reuse
// someone else's upload count as saved rather than unique.
func (c *Coordinator) Stats(ctx context.Context, principalID string) (models.Stats, error) {
	refs, err := c.List(ctx, principalID)
	if err != nil {
		return models.Stats{}, err
	}
	quota, err := c.Usage(ctx, principalID)
	if err != nil {
		return models.Stats{}, err
	}

	stats := models.Stats{
		PrincipalID:    quota.PrincipalID,
		StorageLimit:   quota.StorageLimit,
		StorageUsed:    quota.StorageUsed,
		RemainingBytes: quota.Remaining(),
	}
	for _, ref := range refs {
		if ref.SizeBytes > 0 {
			stats.FileCount++
		}
		stats.LogicalBytes += ref.SizeBytes
		if ref.IsDuplicate {
			stats.DuplicateBytes += ref.SizeBytes
		} else {
			stats.UniqueBytes += ref.SizeBytes
		}
	}
	return stats, nil
}

// SetQuota sets a principal's storage limit, provisioning the entry if needed.
func (c *Coordinator) SetQuota(ctx context.Context, principalID string, limit int64) (models.Quota, error) {
	const op = "set_quota"
	principalID, err := normalizePrincipal(op, principalID)
	if err != nil {
		return models.Quota{}, err
	}
	if limit < 0 {
		return models.Quota{}, validationError(op, ErrCodeInvalidArgument, "storage limit must be >= 0")
	}

	var quota *models.Quota
	err = c.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.EnsureQuota(ctx, principalID, c.opts.DefaultLimit); err != nil {
			return err
		}
		if err := tx.SetLimit(ctx, principalID, limit); err != nil {
			return err
		}
		var err error
		quota, err = tx.GetQuota(ctx, principalID)
		return err
	})
	if err != nil {
		return models.Quota{}, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
	if quota.StorageUsed > quota.StorageLimit {
		c.logger.Warn("limit set below current usage", "principal", principalID, "limit", limit, "used", quota.StorageUsed)
	}
	return *quota, nil
}

// RepairQuota recomputes storage_used as the sum of the principal's live
// references and overwrites the ledger. Safe to run at any time.
func (c *Coordinator) RepairQuota(ctx context.Context, principalID string) (QuotaRepair, error) {
	const op = "repair_quota"
	principalID, err := normalizePrincipal(op, principalID)
	if err != nil {
		return QuotaRepair{}, err
	}

	repair := QuotaRepair{PrincipalID: principalID}
	err = c.store.WithTx(ctx, func(tx *store.Tx) error {
		before, err := tx.GetQuota(ctx, principalID)
		if err != nil {
			return err
		}
		if before == nil {
			repair.Provisioned = true
			if err := tx.EnsureQuota(ctx, principalID, c.opts.DefaultLimit); err != nil {
				return err
			}
		} else {
			repair.PreviousUsed = before.StorageUsed
		}

		used, err := tx.SumReferencedBytes(ctx, principalID)
		if err != nil {
			return err
		}
		repair.StorageUsed = used
		return tx.OverwriteUsage(ctx, principalID, used)
	})
	if err != nil {
		return QuotaRepair{}, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}

	if repair.Changed() {
		c.logger.Warn("quota repaired",
			"principal", principalID,
			"previous_used", repair.PreviousUsed,
			"storage_used", repair.StorageUsed,
			"provisioned", repair.Provisioned,
		)
	}
	return repair, nil
}

// RepairAllQuotas repairs every principal that owns a ledger entry or a
// reference. Failures are collected and do not stop the run.
func (c *Coordinator) RepairAllQuotas(ctx context.Context) ([]QuotaRepair, error) {
	principals, err := c.store.ListPrincipals(ctx)
	if err != nil {
		return nil, makeError("repair_quota", KindInternal, ErrCodeStoreFailure, err)
	}

	repairs := make([]QuotaRepair, 0, len(principals))
	var errs error
	for _, principalID := range principals {
		if err := ctx.Err(); err != nil {
			return repairs, err
		}
		repair, err := c.RepairQuota(ctx, principalID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		repairs = append(repairs, repair)
	}
	return repairs, errs
}

// CheckRefCounts reports blobs whose stored count disagrees with their live
// references. With repair set, counts are overwritten and blobs left without
// references are purged.
func (c *Coordinator) CheckRefCounts(ctx context.Context, repair bool) (RefCountReport, error) {
	const op = "check_ref_counts"
	report := RefCountReport{}

	mismatches, err := c.store.ListRefCountMismatches(ctx)
	if err != nil {
		return report, makeError(op, KindInternal, ErrCodeStoreFailure, err)
	}
	report.Mismatches = mismatches
	for _, m := range mismatches {
		c.logger.Warn("ref_count mismatch", "digest", m.Digest, "stored", m.StoredCount, "live", m.LiveRefCount)
	}
	if !repair {
		return report, nil
	}

	var errs error
	for _, m := range mismatches {
		purged, err := c.resetRefCount(ctx, op, m.Digest)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		report.Repaired++
		if purged {
			report.PurgedBlobs++
		}
	}
	return report, errs
}

// GCBlobs reclaims blob rows without references and stored files without a
// blob row. Nothing is deleted unless apply is set.
func (c *Coordinator) GCBlobs(ctx context.Context, batchSize int, apply bool) (GCResult, error) {
	const op = "gc_blobs"
	result := GCResult{DryRun: !apply}
	if batchSize <= 0 {
		batchSize = c.opts.GCBatchSize
	}

	var errs error
	if !apply {
		blobs, err := c.store.ListUnreferencedBlobs(ctx, 0)
		if err != nil {
			return result, makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}
		result.CandidateCount = len(blobs)
		for _, blob := range blobs {
			result.ReclaimedBytes += blob.SizeBytes
		}
	} else {
		failed := map[string]struct{}{}
		for {
			blobs, err := c.store.ListUnreferencedBlobs(ctx, batchSize)
			if err != nil {
				return result, makeError(op, KindInternal, ErrCodeStoreFailure, err)
			}
			progress := false
			for _, blob := range blobs {
				if _, ok := failed[blob.Digest]; ok {
					continue
				}
				result.CandidateCount++
				purged, err := c.resetRefCount(ctx, op, blob.Digest)
				if err != nil {
					failed[blob.Digest] = struct{}{}
					result.FailedCount++
					errs = multierr.Append(errs, err)
					continue
				}
				progress = true
				if purged {
					result.DeletedCount++
					result.ReclaimedBytes += blob.SizeBytes
				}
			}
			if !progress {
				break
			}
		}
	}

	// A file younger than the scratch age may belong to an ingest that has
	// promoted its bytes but not yet committed the blob row.
	cutoff := time.Now().Add(-c.opts.ScratchMaxAge)
	err := c.bytes.Walk(ctx, func(key string, size int64, modTime time.Time) error {
		if modTime.After(cutoff) {
			return nil
		}
		exists, err := c.store.BlobKeyExists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if !apply {
			result.OrphanFiles++
			result.OrphanFileBytes += size
			return nil
		}
		deleted, err := c.deleteOrphanFile(ctx, key)
		if err != nil {
			result.FailedCount++
			errs = multierr.Append(errs, makeError(op, KindStorageIO, 0, fmt.Errorf("delete orphan file %s: %w", key, err)))
			return nil
		}
		if deleted {
			result.OrphanFiles++
			result.OrphanFileBytes += size
		}
		return nil
	})
	if err != nil {
		errs = multierr.Append(errs, makeError(op, KindStorageIO, 0, err))
	}

	if apply {
		purged, err := c.bytes.PurgeScratch(ctx, c.opts.ScratchMaxAge)
		result.ScratchPurged = purged
		if err != nil {
			errs = multierr.Append(errs, makeError(op, KindStorageIO, 0, err))
		}
	}

	c.logger.Info("blob gc finished",
		"dry_run", result.DryRun,
		"candidates", result.CandidateCount,
		"deleted", result.DeletedCount,
		"failed", result.FailedCount,
		"orphan_files", result.OrphanFiles,
		"reclaimed_bytes", result.ReclaimedBytes,
	)
	return result, errs
}

// Info returns store-wide counts.
func (c *Coordinator) Info(ctx context.Context) (*store.StoreInfo, error) {
	info, err := c.store.StoreInfo(ctx)
	if err != nil {
		return nil, makeError("info", KindInternal, ErrCodeStoreFailure, err)
	}
	return info, nil
}

// deleteOrphanFile removes the bytes at key unless a blob row claims them.
// The check and the delete share a write transaction so a concurrent ingest
// cannot commit a row for key in between.
func (c *Coordinator) deleteOrphanFile(ctx context.Context, key string) (bool, error) {
	deleted := false
	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		exists, err := tx.BlobKeyExists(ctx, key)
		if err != nil || exists {
			return err
		}
		if err := c.bytes.Delete(ctx, key); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// resetRefCount sets a blob's count to its live reference count and purges
// it when none remain.
func (c *Coordinator) resetRefCount(ctx context.Context, op, digest string) (bool, error) {
	purged := false
	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		ops := blobOps{tx: tx, bytes: c.bytes, logger: c.logger}
		blob, err := tx.GetBlob(ctx, digest)
		if err != nil {
			return makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}
		if blob == nil {
			return nil
		}
		live, err := tx.CountBlobRefs(ctx, digest)
		if err != nil {
			return makeError(op, KindInternal, ErrCodeStoreFailure, err)
		}
		if live != blob.RefCount {
			if err := tx.SetBlobRefs(ctx, digest, live); err != nil {
				return makeError(op, KindInternal, ErrCodeStoreFailure, err)
			}
		}
		if live > 0 {
			return nil
		}
		purged, err = ops.deleteIfOrphaned(ctx, blob)
		return err
	})
	if err != nil {
		return false, c.fail(op, digest, err)
	}
	return purged, nil
}

func (c *Coordinator) normalizeIngest(in IngestInput) (IngestInput, error) {
	const op = "ingest"

	principalID, err := normalizePrincipal(op, in.PrincipalID)
	if err != nil {
		return in, err
	}
	in.PrincipalID = principalID

	in.Filename = strings.TrimSpace(in.Filename)
	if in.Filename == "" {
		return in, validationError(op, ErrCodeInvalidArgument, "filename is required")
	}
	if utf8.RuneCountInString(in.Filename) > maxFilenameLength {
		return in, validationError(op, ErrCodeInvalidArgument, "filename exceeds %d characters", maxFilenameLength)
	}

	digest, err := hasher.ValidateDigest(in.Digest)
	if err != nil {
		return in, validationError(op, ErrCodeInvalidArgument, "%v", err)
	}
	in.Digest = digest

	if in.SizeBytes < 0 {
		return in, validationError(op, ErrCodeInvalidArgument, "size must be >= 0")
	}
	if c.opts.MaxSize > 0 && in.SizeBytes > c.opts.MaxSize {
		return in, validationError(op, ErrCodeTooLarge, "size %d exceeds maximum %d", in.SizeBytes, c.opts.MaxSize)
	}

	in.ContentType = strings.TrimSpace(in.ContentType)
	if in.ContentType == "" {
		in.ContentType = DefaultContentType
	}
	if len(in.ContentType) > maxContentTypeLength {
		return in, validationError(op, ErrCodeInvalidArgument, "content type exceeds %d characters", maxContentTypeLength)
	}

	if in.Content == nil {
		return in, validationError(op, ErrCodeInvalidArgument, "content is required")
	}
	return in, nil
}

// stage writes the upload to scratch space and checks it against the
// declared size, and the declared digest when verification is on.
func (c *Coordinator) stage(ctx context.Context, in IngestInput) (*blobstore.Staged, error) {
	const op = "ingest"

	staged, err := c.bytes.Stage(ctx, in.Content, c.opts.HashAlgorithm)
	if err != nil {
		return nil, makeError(op, KindStorageIO, 0, fmt.Errorf("stage content: %w", err))
	}
	if staged.SizeBytes != in.SizeBytes {
		_ = c.bytes.Discard(context.WithoutCancel(ctx), staged)
		return nil, validationError(op, ErrCodeSizeMismatch, "declared size %d does not match content length %d", in.SizeBytes, staged.SizeBytes)
	}
	if c.opts.VerifyDigest && staged.Digest != in.Digest {
		_ = c.bytes.Discard(context.WithoutCancel(ctx), staged)
		return nil, validationError(op, ErrCodeDigestMismatch, "declared digest %s does not match content digest %s", in.Digest, staged.Digest)
	}
	return staged, nil
}

// fail classifies err for op and logs invariant violations loudly.
func (c *Coordinator) fail(op, digest string, err error) error {
	err = makeError(op, KindInternal, ErrCodeStoreFailure, err)
	if KindOf(err) == KindInvariantViolation {
		c.logger.Error("invariant violation", "op", op, "digest", digest, "error", err)
	}
	return err
}

func normalizePrincipal(op, principalID string) (string, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return "", validationError(op, ErrCodeInvalidArgument, "principal id is required")
	}
	return principalID, nil
}

// normalizeRefID maps malformed ids to NotFound so callers cannot tell them
// apart from ids that belong to someone else.
func normalizeRefID(op, refID string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(refID))
	if err != nil {
		return "", makeError(op, KindNotFound, 0, fmt.Errorf("%w: reference %s", ErrNotFound, refID))
	}
	return parsed.String(), nil
}

var _ Service = (*Coordinator)(nil)
