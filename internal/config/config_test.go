package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.DBPath != "" {
		t.Fatalf("expected empty db path, got %q", cfg.DBPath)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.HashAlgorithm != "sha256" {
		t.Fatalf("expected sha256, got %q", cfg.HashAlgorithm)
	}
	if cfg.GC.BatchSize != DefaultGCBatchSize {
		t.Fatalf("expected gc batch default %d, got %d", DefaultGCBatchSize, cfg.GC.BatchSize)
	}
	limit, err := cfg.DefaultLimitBytes()
	if err != nil {
		t.Fatalf("default limit: %v", err)
	}
	if limit != 10<<20 {
		t.Fatalf("expected 10MiB default limit, got %d", limit)
	}
	maxSize, err := cfg.MaxSizeBytes()
	if err != nil || maxSize != 0 {
		t.Fatalf("expected unlimited max size, got %d (err: %v)", maxSize, err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".vinno.toml")
	if err := os.WriteFile(path, []byte(`db_path = "/data/vinno.db"
log_level = "debug"

[quota]
default_limit = "1GiB"

[ingest]
verify_digest = true
max_size = "512MiB"
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/data/vinno.db" {
		t.Fatalf("expected db_path, got %q", cfg.DBPath)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log_level 'debug', got %q", cfg.LogLevel)
	}
	if !cfg.Ingest.VerifyDigest {
		t.Fatal("expected verify_digest true")
	}
	limit, err := cfg.DefaultLimitBytes()
	if err != nil || limit != 1<<30 {
		t.Fatalf("expected 1GiB, got %d (err: %v)", limit, err)
	}
	maxSize, err := cfg.MaxSizeBytes()
	if err != nil || maxSize != 512<<20 {
		t.Fatalf("expected 512MiB, got %d (err: %v)", maxSize, err)
	}
	if cfg.GC.BatchSize != DefaultGCBatchSize {
		t.Fatalf("expected untouched gc batch size, got %d", cfg.GC.BatchSize)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.vinno.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("defaults should be preserved")
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".vinno.toml")
	if err := os.WriteFile(path, []byte("db_path = \n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestInvalidSizes(t *testing.T) {
	cfg := Default()
	cfg.Quota.DefaultLimit = "lots"
	if _, err := cfg.DefaultLimitBytes(); err == nil {
		t.Fatal("expected error for unparsable limit")
	}
	cfg.Quota.DefaultLimit = "0"
	if _, err := cfg.DefaultLimitBytes(); err == nil {
		t.Fatal("expected error for zero limit")
	}
	cfg.Ingest.MaxSize = "-5"
	if _, err := cfg.MaxSizeBytes(); err == nil {
		t.Fatal("expected error for negative max size")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{
		"db_path",
		"blob_root",
		"log_level",
		"hash_algorithm",
		"download_base_url",
		"quota.default_limit",
		"ingest.verify_digest",
		"ingest.max_size",
		"gc.batch_size",
		"metrics.textfile",
	} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	if IsAllowedKey("invalid") {
		t.Fatal("expected 'invalid' to not be allowed")
	}
}

func TestGetKey(t *testing.T) {
	cfg := Config{
		DBPath:          "/tmp/test.db",
		BlobRoot:        "/tmp/blobs",
		LogLevel:        "info",
		HashAlgorithm:   "blake2b-256",
		DownloadBaseURL: "https://files.example.com/",
		Quota:           QuotaConfig{DefaultLimit: "2GiB"},
		Ingest:          IngestConfig{VerifyDigest: true, MaxSize: "1GiB"},
		GC:              GCConfig{BatchSize: 42},
		Metrics:         MetricsConfig{Textfile: "/var/lib/node_exporter/vinno.prom"},
	}

	cases := map[string]string{
		"db_path":              "/tmp/test.db",
		"blob_root":            "/tmp/blobs",
		"log_level":            "info",
		"hash_algorithm":       "blake2b-256",
		"download_base_url":    "https://files.example.com/",
		"quota.default_limit":  "2GiB",
		"ingest.verify_digest": "true",
		"ingest.max_size":      "1GiB",
		"gc.batch_size":        "42",
		"metrics.textfile":     "/var/lib/node_exporter/vinno.prom",
	}
	for key, want := range cases {
		val, err := cfg.Get(key)
		if err != nil || val != want {
			t.Fatalf("%s: expected %q, got %q (err: %v)", key, want, val, err)
		}
	}
	if _, err := cfg.Get("invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "new.toml")
	if err := SetKey(path, "db_path", "/srv/vinno.db"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/srv/vinno.db" {
		t.Fatalf("expected db_path, got %q", cfg.DBPath)
	}
}

func TestSetKeyUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.toml")
	if err := os.WriteFile(path, []byte("db_path = \"/old.db\"\nblob_root = \"/keep\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := SetKey(path, "db_path", "/new.db"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/new.db" {
		t.Fatalf("expected '/new.db', got %q", cfg.DBPath)
	}
	if cfg.BlobRoot != "/keep" {
		t.Fatalf("expected preserved blob_root '/keep', got %q", cfg.BlobRoot)
	}
}

func TestSetKeyValidatesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	for key, value := range map[string]string{
		"invalid_key":          "value",
		"log_level":            "loud",
		"hash_algorithm":       "md5",
		"gc.batch_size":        "0",
		"ingest.verify_digest": "maybe",
		"quota.default_limit":  "plenty",
	} {
		if err := SetKey(path, key, value); err == nil {
			t.Fatalf("expected error for %s=%s", key, value)
		}
	}
}

func TestSetNestedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested.toml")
	if err := SetKey(path, "gc.batch_size", "321"); err != nil {
		t.Fatalf("set gc.batch_size: %v", err)
	}
	if err := SetKey(path, "quota.default_limit", "5MiB"); err != nil {
		t.Fatalf("set quota.default_limit: %v", err)
	}
	if err := SetKey(path, "ingest.verify_digest", "true"); err != nil {
		t.Fatalf("set ingest.verify_digest: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GC.BatchSize != 321 {
		t.Fatalf("expected gc batch 321, got %d", cfg.GC.BatchSize)
	}
	if cfg.Quota.DefaultLimit != "5MiB" {
		t.Fatalf("expected quota limit 5MiB, got %q", cfg.Quota.DefaultLimit)
	}
	if !cfg.Ingest.VerifyDigest {
		t.Fatal("expected verify_digest true")
	}
}

func TestConfigDirOverridePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, ".vinno.toml") {
		t.Fatalf("unexpected global path %q", globalPath)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)
	if err := os.WriteFile(filepath.Join(dir, ".vinno.toml"), []byte(`db_path = "/from/file.db"
blob_root = "/from/file"
log_level = "info"
`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(dbEnvKey, "/from/env.db")
	t.Setenv(blobRootEnvKey, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/from/env.db" {
		t.Fatalf("expected env db path, got %q", cfg.DBPath)
	}
	if cfg.BlobRoot != "/from/file" {
		t.Fatalf("expected file blob root, got %q", cfg.BlobRoot)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected file log level, got %q", cfg.LogLevel)
	}
}

func TestLoadDefaultsPathsToWorkingDirectory(t *testing.T) {
	t.Setenv(configDirEnvKey, t.TempDir())
	t.Setenv(dbEnvKey, "")
	t.Setenv(blobRootEnvKey, "")

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != filepath.Join(cwd, DefaultDBFileName) {
		t.Fatalf("unexpected db path %q", cfg.DBPath)
	}
	if cfg.BlobRoot != filepath.Join(cwd, DefaultBlobDirName) {
		t.Fatalf("unexpected blob root %q", cfg.BlobRoot)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("unexpected log level %q", cfg.LogLevel)
	}
}

func TestCheckPaths(t *testing.T) {
	cases := []struct {
		db, root string
		ok       bool
	}{
		{"/srv/vinno.db", "/srv/blobs", true},
		{"/srv/blobs-meta/vinno.db", "/srv/blobs", true},
		{"/srv/blobs/vinno.db", "/srv/blobs", false},
		{"/srv/blobs/meta/vinno.db", "/srv/blobs/", false},
		{"/srv/blobs", "/srv/blobs", false},
	}
	for _, tc := range cases {
		cfg := Config{DBPath: tc.db, BlobRoot: tc.root}
		err := cfg.CheckPaths()
		if tc.ok && err != nil {
			t.Fatalf("%s under %s: unexpected error %v", tc.db, tc.root, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s under %s: expected error", tc.db, tc.root)
		}
	}
}
