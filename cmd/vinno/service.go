package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"vinnodrive/internal/blobstore"
	"vinnodrive/internal/config"
	"vinnodrive/internal/dedup"
	"vinnodrive/internal/hasher"
	"vinnodrive/internal/store"
)

// withService opens the metadata store and blob root, runs fn against the
// coordinator, and closes both. When metrics.textfile is configured the
// service is instrumented and its counters are flushed after fn returns.
func withService(ctx context.Context, cfg *config.Config, fn func(dedup.Service) error) error {
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if cfg.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if cfg.BlobRoot == "" {
		return fmt.Errorf("blob root is required")
	}
	if err := cfg.CheckPaths(); err != nil {
		return err
	}

	opts, err := coordinatorOptions(cfg)
	if err != nil {
		return err
	}

	logger := slog.Default()
	logger.Debug("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	bs, err := blobstore.NewLocalCAS(nil, cfg.BlobRoot)
	if err != nil {
		return err
	}

	coord, err := dedup.NewCoordinator(st, bs, opts)
	if err != nil {
		return err
	}

	if cfg.Metrics.Textfile == "" {
		return fn(coord)
	}

	registry := prometheus.NewRegistry()
	instrumented, err := dedup.NewInstrumentedService(coord, registry)
	if err != nil {
		return err
	}
	defer func() {
		if writeErr := dedup.WriteTextfile(cfg.Metrics.Textfile, registry); writeErr != nil {
			logger.Warn("write metrics textfile failed", "path", cfg.Metrics.Textfile, "error", writeErr)
		}
	}()
	return fn(instrumented)
}

func coordinatorOptions(cfg *config.Config) (dedup.Options, error) {
	limit, err := cfg.DefaultLimitBytes()
	if err != nil {
		return dedup.Options{}, err
	}
	maxSize, err := cfg.MaxSizeBytes()
	if err != nil {
		return dedup.Options{}, err
	}
	alg, err := hasher.ParseAlgorithm(cfg.HashAlgorithm)
	if err != nil {
		return dedup.Options{}, err
	}
	return dedup.Options{
		DefaultLimit:    limit,
		HashAlgorithm:   alg,
		VerifyDigest:    cfg.Ingest.VerifyDigest,
		MaxSize:         maxSize,
		DownloadBaseURL: cfg.DownloadBaseURL,
		GCBatchSize:     cfg.GC.BatchSize,
		Logger:          slog.Default().With("component", "dedup"),
	}, nil
}
