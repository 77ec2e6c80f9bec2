// Command preprocess runs the DMI observation preprocessing pipeline:
// merge raw per-station dumps, normalize timestamps to UTC, split by price
// zone, aggregate per station-hour and per region-hour, and prune
// uninformative columns. One-shot by default; set RUN_INTERVAL to re-run on
// a schedule with health and metrics endpoints available via HTTP_ADDR.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	httpadapter "github.com/meteodk/dmi-preprocess/internal/adapter/http"
	"github.com/meteodk/dmi-preprocess/internal/config"
	"github.com/meteodk/dmi-preprocess/internal/domain"
	"github.com/meteodk/dmi-preprocess/internal/observability"
	"github.com/meteodk/dmi-preprocess/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	catalog, err := loadCatalog(cfg, logger)
	if err != nil {
		logger.Error("failed to load station catalog", "error", err)
		os.Exit(1)
	}
	classifier := domain.NewClassifier(catalog, cfg.LongitudeCutoff)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		logger.Error("failed to create output dir", "dir", cfg.OutputDir, "error", err)
		os.Exit(1)
	}

	p := buildPipeline(cfg, classifier, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The health/metrics endpoint serves in both modes; a long one-shot run
	// is still worth scraping.
	srv := startHTTP(cfg, p, logger)

	if cfg.RunInterval == 0 {
		runErr := p.Run(ctx)
		stopHTTP(srv, cfg.ShutdownTimeout, logger)
		if runErr != nil {
			logger.Error("pipeline run failed", "error", runErr)
			os.Exit(1)
		}
		return
	}

	// Scheduled mode: keep re-running the whole pipeline until signalled.
	scheduler := gocron.NewScheduler(time.UTC)
	_, err = scheduler.Every(cfg.RunInterval).SingletonMode().Do(func() {
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduled pipeline run failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("failed to schedule pipeline", "error", err)
		os.Exit(1)
	}
	logger.Info("pipeline scheduled", "interval", cfg.RunInterval)
	scheduler.StartAsync()

	<-ctx.Done()
	logger.Info("shutting down")
	scheduler.Stop()
	stopHTTP(srv, cfg.ShutdownTimeout, logger)
	logger.Info("shutdown complete")
}

// startHTTP serves health, readiness, and metrics when HTTP_ADDR is set.
// Returns nil when the endpoint is disabled.
func startHTTP(cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) *httpadapter.Server {
	if cfg.HTTPAddr == "" {
		return nil
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	return srv
}

func stopHTTP(srv *httpadapter.Server, timeout time.Duration, logger *slog.Logger) {
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}

func loadCatalog(cfg *config.Config, logger *slog.Logger) (*domain.StationCatalog, error) {
	if cfg.StationCatalogPath == "" {
		logger.Info("using built-in station catalog")
		return domain.DefaultCatalog(), nil
	}
	catalog, err := domain.LoadCatalog(cfg.StationCatalogPath)
	if err != nil {
		return nil, err
	}
	logger.Info("station catalog loaded", "path", cfg.StationCatalogPath, "stations", catalog.Len())
	return catalog, nil
}

// buildPipeline composes the stages with explicit input and output file
// sets; no stage discovers another stage's artifacts by naming convention.
func buildPipeline(cfg *config.Config, classifier *domain.Classifier, logger *slog.Logger, metrics *observability.Metrics) *pipeline.Pipeline {
	paths := pipeline.DefaultPaths(cfg.OutputDir)

	stages := []pipeline.Stage{
		pipeline.NewConcatenator(cfg.RawGlob, paths.Corpus, logger, metrics),
		pipeline.NewTimestampNormalizer(paths.Corpus, cfg.TimeFields, logger, metrics),
		pipeline.NewZoneSplitter(paths.Corpus, paths.DK1.Records, paths.DK2.Records, classifier, logger, metrics),
	}
	for _, zone := range []pipeline.ZonePaths{paths.DK1, paths.DK2} {
		stages = append(stages,
			pipeline.NewStationHourAggregator(zone.Records, zone.StationHour, cfg.KeepParameters, logger, metrics),
			pipeline.NewRegionalAggregator(zone.StationHour, zone.Regional, logger, metrics),
			pipeline.NewColumnPruner(zone.Regional, zone.Cleaned, zone.PruneReport,
				cfg.SparsityThreshold, cfg.DominanceThreshold, cfg.PruneKeep, logger, metrics),
		)
	}

	return pipeline.New(logger, metrics, stages...)
}
