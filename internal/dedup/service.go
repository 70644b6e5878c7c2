package dedup

import (
	"context"

	"vinnodrive/internal/models"
	"vinnodrive/internal/store"
)

// Service is the storage core exposed to callers.
type Service interface {
	Ingest(ctx context.Context, in IngestInput) (models.Reference, error)
	List(ctx context.Context, principalID string) ([]models.Reference, error)
	Remove(ctx context.Context, principalID, refID string) (models.Reference, error)
	Open(ctx context.Context, principalID, refID string) (*Content, error)
	Usage(ctx context.Context, principalID string) (models.Quota, error)
	Stats(ctx context.Context, principalID string) (models.Stats, error)
	SetQuota(ctx context.Context, principalID string, limit int64) (models.Quota, error)
	RepairQuota(ctx context.Context, principalID string) (QuotaRepair, error)
	RepairAllQuotas(ctx context.Context) ([]QuotaRepair, error)
	CheckRefCounts(ctx context.Context, repair bool) (RefCountReport, error)
	GCBlobs(ctx context.Context, batchSize int, apply bool) (GCResult, error)
	Info(ctx context.Context) (*store.StoreInfo, error)
}
