package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	// File layout.
	RawGlob   string // glob matching per-station raw dumps
	OutputDir string // directory receiving corpus and stage artifacts

	// Timestamp normalization.
	TimeFields []string

	// Zone classification.
	StationCatalogPath string // optional CSV override of the built-in catalog
	LongitudeCutoff    float64

	// Station-hour aggregation. Empty means keep every parameter.
	KeepParameters []string

	// Column pruning.
	SparsityThreshold  float64
	DominanceThreshold float64
	PruneKeep          []string

	// Ambient.
	HTTPAddr        string        // empty disables the health/metrics endpoint
	RunInterval     time.Duration // zero means run once and exit
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	// Best effort: absence of a .env file is the normal case in production.
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	runInterval, err := parseDuration("RUN_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	cutoff, err := parseFloat("LONGITUDE_CUTOFF", 11.0)
	if err != nil {
		return nil, err
	}
	sparsity, err := parseThreshold("SPARSITY_THRESHOLD", 0.90)
	if err != nil {
		return nil, err
	}
	dominance, err := parseThreshold("DOMINANCE_THRESHOLD", 0.95)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RawGlob:   envOrDefault("RAW_GLOB", "data/raw/*.txt"),
		OutputDir: envOrDefault("OUTPUT_DIR", "data/out"),

		TimeFields: splitList(envOrDefault("TIME_FIELDS", "from,to,created,calculatedAt,observed")),

		StationCatalogPath: os.Getenv("STATION_CATALOG"),
		LongitudeCutoff:    cutoff,

		KeepParameters: splitList(os.Getenv("KEEP_PARAMETERS")),

		SparsityThreshold:  sparsity,
		DominanceThreshold: dominance,
		PruneKeep: splitList(envOrDefault("PRUNE_KEEP",
			"Timestamp_UTC,wind_speed,radia_glob,temp_dry,mean_cloud_cover,Stations_Reporting_Min")),

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		RunInterval:     runInterval,
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if len(cfg.TimeFields) == 0 {
		return nil, errors.New("TIME_FIELDS must name at least one field")
	}
	if cfg.LongitudeCutoff < -180 || cfg.LongitudeCutoff > 180 {
		return nil, errors.New("LONGITUDE_CUTOFF must be a valid longitude")
	}
	if cfg.RunInterval < 0 {
		return nil, errors.New("RUN_INTERVAL must not be negative")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, errors.New("LOG_FORMAT must be json or text")
	}
	if cfg.ShutdownTimeout <= 0 {
		return nil, errors.New("SHUTDOWN_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// parseThreshold reads a fraction in (0, 1].
func parseThreshold(key string, fallback float64) (float64, error) {
	v, err := parseFloat(key, fallback)
	if err != nil {
		return 0, err
	}
	if v <= 0 || v > 1 {
		return 0, fmt.Errorf("invalid %s: must be in (0, 1]", key)
	}
	return v, nil
}
