package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	units "github.com/docker/go-units"

	"vinnodrive/internal/hasher"
)

const (
	DefaultDBFileName    = ".vinno.db"
	DefaultBlobDirName   = ".vinno-blobs"
	DefaultLogLevel      = "warn"
	DefaultHashAlgorithm = string(hasher.SHA256)
	DefaultQuotaLimit    = "10MiB"
	DefaultGCBatchSize   = 500

	configFileName = ".vinno.toml"

	configDirEnvKey = "VINNO_CONFIG_DIR"
	dbEnvKey        = "VINNO_DB"
	blobRootEnvKey  = "VINNO_BLOB_ROOT"
)

// QuotaConfig holds ledger defaults.
type QuotaConfig struct {
	DefaultLimit string `toml:"default_limit"`
}

// IngestConfig holds upload policy.
type IngestConfig struct {
	VerifyDigest bool   `toml:"verify_digest"`
	MaxSize      string `toml:"max_size"`
}

// GCConfig holds blob garbage collection tuning.
type GCConfig struct {
	BatchSize int `toml:"batch_size"`
}

// MetricsConfig selects where metrics are exported.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// Config defines runtime configuration for vinno.
type Config struct {
	DBPath          string        `toml:"db_path"`
	BlobRoot        string        `toml:"blob_root"`
	LogLevel        string        `toml:"log_level"`
	HashAlgorithm   string        `toml:"hash_algorithm"`
	DownloadBaseURL string        `toml:"download_base_url"`
	Quota           QuotaConfig   `toml:"quota"`
	Ingest          IngestConfig  `toml:"ingest"`
	GC              GCConfig      `toml:"gc"`
	Metrics         MetricsConfig `toml:"metrics"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		LogLevel:      DefaultLogLevel,
		HashAlgorithm: DefaultHashAlgorithm,
		Quota:         QuotaConfig{DefaultLimit: DefaultQuotaLimit},
		GC:            GCConfig{BatchSize: DefaultGCBatchSize},
	}
}

// DefaultLimitBytes parses quota.default_limit.
func (c *Config) DefaultLimitBytes() (int64, error) {
	return parseSize("quota.default_limit", c.Quota.DefaultLimit, false)
}

// MaxSizeBytes parses ingest.max_size. Zero means unlimited.
func (c *Config) MaxSizeBytes() (int64, error) {
	return parseSize("ingest.max_size", c.Ingest.MaxSize, true)
}

// CheckPaths rejects a database placed inside the blob root.
func (c *Config) CheckPaths() error {
	db, err := filepath.Abs(c.DBPath)
	if err != nil {
		return err
	}
	root, err := filepath.Abs(c.BlobRoot)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, db)
	if err != nil {
		return nil
	}
	if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("db_path %s must not be inside blob_root %s", c.DBPath, c.BlobRoot)
	}
	return nil
}

func parseSize(key, raw string, allowEmpty bool) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if allowEmpty {
			return 0, nil
		}
		return 0, fmt.Errorf("%s is required", key)
	}
	size, err := units.RAMInBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if size < 0 || (size == 0 && !allowEmpty) {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return size, nil
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

var allowedKeys = []string{
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
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "db_path":
		return c.DBPath, nil
	case "blob_root":
		return c.BlobRoot, nil
	case "log_level":
		return c.LogLevel, nil
	case "hash_algorithm":
		return c.HashAlgorithm, nil
	case "download_base_url":
		return c.DownloadBaseURL, nil
	case "quota.default_limit":
		return c.Quota.DefaultLimit, nil
	case "ingest.verify_digest":
		return strconv.FormatBool(c.Ingest.VerifyDigest), nil
	case "ingest.max_size":
		return c.Ingest.MaxSize, nil
	case "gc.batch_size":
		return strconv.Itoa(c.GC.BatchSize), nil
	case "metrics.textfile":
		return c.Metrics.Textfile, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads the global config file and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	path, err := GlobalPath()
	if err == nil {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if cfg.DBPath == "" || cfg.BlobRoot == "" {
		if cwd, err := os.Getwd(); err == nil {
			if cfg.DBPath == "" {
				cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
			}
			if cfg.BlobRoot == "" {
				cfg.BlobRoot = filepath.Join(cwd, DefaultBlobDirName)
			}
		}
	}

	if dbPath := strings.TrimSpace(os.Getenv(dbEnvKey)); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if blobRoot := strings.TrimSpace(os.Getenv(blobRootEnvKey)); blobRoot != "" {
		cfg.BlobRoot = blobRoot
	}

	cfg.normalizeDefaults()

	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "gc.batch_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "ingest.verify_digest":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "quota.default_limit":
		if _, err := parseSize(key, value, false); err != nil {
			return nil, err
		}
		return value, nil
	case "ingest.max_size":
		if _, err := parseSize(key, value, true); err != nil {
			return nil, err
		}
		return value, nil
	case "log_level":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "warning", "error":
			return strings.ToLower(value), nil
		}
		return nil, fmt.Errorf("%s must be one of debug, info, warn, error", key)
	case "hash_algorithm":
		alg, err := hasher.ParseAlgorithm(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return string(alg), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.HashAlgorithm) == "" {
		c.HashAlgorithm = DefaultHashAlgorithm
	}
	if strings.TrimSpace(c.Quota.DefaultLimit) == "" {
		c.Quota.DefaultLimit = DefaultQuotaLimit
	}
	if c.GC.BatchSize <= 0 {
		c.GC.BatchSize = DefaultGCBatchSize
	}
}
