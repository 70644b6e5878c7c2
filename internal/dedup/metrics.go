package dedup

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"vinnodrive/internal/models"
	"vinnodrive/internal/store"
)

// InstrumentedService records prometheus metrics around another Service.
type InstrumentedService struct {
	inner Service

	successfulOps *prometheus.CounterVec
	failedOps     *prometheus.CounterVec
	dedupHits     prometheus.Counter
	bytesIngested prometheus.Counter
	bytesSaved    prometheus.Counter
	bytesReleased prometheus.Counter
}

var _ Service = (*InstrumentedService)(nil)

// NewInstrumentedService wraps inner and registers its collectors with registerer.
func NewInstrumentedService(inner Service, registerer prometheus.Registerer) (*InstrumentedService, error) {
	s := &InstrumentedService{
		inner: inner,
		successfulOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vinno",
				Subsystem: "dedup",
				Name:      "successful_ops_total",
				Help:      "No of successful storage core operations partitioned by op",
			},
			[]string{"op"},
		),
		failedOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vinno",
				Subsystem: "dedup",
				Name:      "failed_ops_total",
				Help:      "No of failed storage core operations partitioned by op and error kind",
			},
			[]string{"op", "kind"},
		),
		dedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vinno",
			Subsystem: "dedup",
			Name:      "hits_total",
			Help:      "Ingests that reused an existing blob",
		}),
		bytesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vinno",
			Subsystem: "dedup",
			Name:      "bytes_ingested_total",
			Help:      "Logical bytes accepted by ingest",
		}),
		bytesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vinno",
			Subsystem: "dedup",
			Name:      "bytes_saved_total",
			Help:      "Bytes not written because the blob already existed",
		}),
		bytesReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vinno",
			Subsystem: "dedup",
			Name:      "bytes_released_total",
			Help:      "Logical bytes released by remove",
		}),
	}

	for _, c := range []prometheus.Collector{s.successfulOps, s.failedOps, s.dedupHits, s.bytesIngested, s.bytesSaved, s.bytesReleased} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WriteTextfile writes every metric gathered by g to path in the node
// exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}

func (s *InstrumentedService) observe(op string, err error) {
	if err != nil {
		s.failedOps.With(prometheus.Labels{"op": op, "kind": string(KindOf(err))}).Inc()
		return
	}
	s.successfulOps.With(prometheus.Labels{"op": op}).Inc()
}

func (s *InstrumentedService) Ingest(ctx context.Context, in IngestInput) (models.Reference, error) {
	ref, err := s.inner.Ingest(ctx, in)
	s.observe("ingest", err)
	if err != nil {
		return ref, err
	}
	s.bytesIngested.Add(float64(ref.SizeBytes))
	if !ref.IsPrimary {
		s.dedupHits.Inc()
		s.bytesSaved.Add(float64(ref.SizeBytes))
	}
	return ref, nil
}

func (s *InstrumentedService) List(ctx context.Context, principalID string) ([]models.Reference, error) {
	refs, err := s.inner.List(ctx, principalID)
	s.observe("list", err)
	return refs, err
}

func (s *InstrumentedService) Remove(ctx context.Context, principalID, refID string) (models.Reference, error) {
	ref, err := s.inner.Remove(ctx, principalID, refID)
	s.observe("remove", err)
	if err == nil {
		s.bytesReleased.Add(float64(ref.SizeBytes))
	}
	return ref, err
}

func (s *InstrumentedService) Open(ctx context.Context, principalID, refID string) (*Content, error) {
	content, err := s.inner.Open(ctx, principalID, refID)
	s.observe("open", err)
	return content, err
}

func (s *InstrumentedService) Usage(ctx context.Context, principalID string) (models.Quota, error) {
	quota, err := s.inner.Usage(ctx, principalID)
	s.observe("usage", err)
	return quota, err
}

func (s *InstrumentedService) Stats(ctx context.Context, principalID string) (models.Stats, error) {
	stats, err := s.inner.Stats(ctx, principalID)
	s.observe("stats", err)
	return stats, err
}

func (s *InstrumentedService) SetQuota(ctx context.Context, principalID string, limit int64) (models.Quota, error) {
	quota, err := s.inner.SetQuota(ctx, principalID, limit)
	s.observe("set_quota", err)
	return quota, err
}

func (s *InstrumentedService) RepairQuota(ctx context.Context, principalID string) (QuotaRepair, error) {
	repair, err := s.inner.RepairQuota(ctx, principalID)
	s.observe("repair_quota", err)
	return repair, err
}

func (s *InstrumentedService) RepairAllQuotas(ctx context.Context) ([]QuotaRepair, error) {
	repairs, err := s.inner.RepairAllQuotas(ctx)
	s.observe("repair_all_quotas", err)
	return repairs, err
}

func (s *InstrumentedService) CheckRefCounts(ctx context.Context, repair bool) (RefCountReport, error) {
	report, err := s.inner.CheckRefCounts(ctx, repair)
	s.observe("check_ref_counts", err)
	return report, err
}

func (s *InstrumentedService) GCBlobs(ctx context.Context, batchSize int, apply bool) (GCResult, error) {
	result, err := s.inner.GCBlobs(ctx, batchSize, apply)
	s.observe("gc_blobs", err)
	return result, err
}

func (s *InstrumentedService) Info(ctx context.Context) (*store.StoreInfo, error) {
	info, err := s.inner.Info(ctx)
	s.observe("info", err)
	return info, err
}
