// Package config loads boot-time configuration from environment variables
// (optionally seeded by a .env file) with a CLI-flag override for the data
// directory, matching the precedence rules operators expect: flag > env >
// default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every boot-time input the control plane needs: where to
// persist derived state, how to reach the upstream geonames mirror, and the
// tunable constants of spec.md §6.
type Config struct {
	Port     int
	LogLevel string
	DevMode  bool

	// DataDir is the root directory for the FCP cache files and the
	// document store's sqlite file.
	DataDir string

	// CatalogPath points at the static country catalog fixture.
	CatalogPath string

	// ProxyHost/ProxyPort configure the forward proxy every upstream
	// request (ZIP download, HEAD validator check) is routed through.
	ProxyHost string
	ProxyPort int

	PopulationMin  int
	RetryLimit     int
	RetryWait      time.Duration
	CacheStaleness time.Duration

	// R2* configure the optional cache/document-store backup service
	// (internal/backup). Empty AccountID disables it entirely.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
}

// Load reads configuration from the environment, optionally seeded by a
// .env file in the working directory, with dataDirFlag (from a CLI flag)
// taking precedence over GEOSEARCH_DATA_DIR when non-empty.
func Load(dataDirFlag string) (*Config, error) {
	// Best-effort: a missing .env is not an error, it just means the
	// environment must already carry everything.
	_ = godotenv.Load()

	cfg := &Config{
		Port:              envInt("GEOSEARCH_PORT", 8080),
		LogLevel:          envString("GEOSEARCH_LOG_LEVEL", "info"),
		DevMode:           envBool("GEOSEARCH_DEV_MODE", false),
		CatalogPath:       envString("GEOSEARCH_CATALOG_PATH", "data/countries.json"),
		ProxyHost:         envString("GEOSEARCH_PROXY_HOST", ""),
		ProxyPort:         envInt("GEOSEARCH_PROXY_PORT", 0),
		PopulationMin:     envInt("GEOSEARCH_POPULATION_MIN", 500),
		RetryLimit:        envInt("GEOSEARCH_RETRY_LIMIT", 3),
		RetryWait:         envDuration("GEOSEARCH_RETRY_WAIT", 5*time.Second),
		CacheStaleness:    envDuration("GEOSEARCH_CACHE_STALENESS", 24*time.Hour),
		R2AccountID:       envString("GEOSEARCH_R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     envString("GEOSEARCH_R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: envString("GEOSEARCH_R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:          envString("GEOSEARCH_R2_BUCKET", ""),
	}

	dataDir := dataDirFlag
	if dataDir == "" {
		dataDir = envString("GEOSEARCH_DATA_DIR", "")
	}
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "geosearch", "data")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory to absolute: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.DataDir = absDataDir

	return cfg, nil
}

// CachesDir is the subdirectory of DataDir holding FCP cache files.
func (c *Config) CachesDir() string {
	return filepath.Join(c.DataDir, "caches")
}

// StorePath is the sqlite document-store file path.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "store.db")
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
