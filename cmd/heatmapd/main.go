package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/flywaylab/bird-heatmap-service/internal/adapter/datasource"
	httpadapter "github.com/flywaylab/bird-heatmap-service/internal/adapter/http"
	kafkaadapter "github.com/flywaylab/bird-heatmap-service/internal/adapter/kafka"
	"github.com/flywaylab/bird-heatmap-service/internal/config"
	"github.com/flywaylab/bird-heatmap-service/internal/dataset"
	"github.com/flywaylab/bird-heatmap-service/internal/invalidation"
	"github.com/flywaylab/bird-heatmap-service/internal/observability"
	"github.com/flywaylab/bird-heatmap-service/internal/playback"
	"github.com/flywaylab/bird-heatmap-service/internal/render"
)

// readiness gates /readyz on startup (including the optional dataset
// preload) plus any registered checkers, such as the invalidation
// listener when the feed is enabled.
type readiness struct {
	started atomic.Bool
	checks  []httpadapter.ReadinessChecker
}

func (r *readiness) CheckReadiness(ctx context.Context) error {
	if !r.started.Load() {
		return errors.New("startup not finished")
	}
	for _, check := range r.checks {
		if err := check.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := datasource.NewClient(cfg.DataBaseURL, cfg.DataTimeout, logger)
	store := dataset.NewStore(client, cfg.DatasetCacheSize, logger, metrics)

	// A missing basemap degrades to plain-background frames, never a
	// startup failure.
	var basemap *render.Basemap
	if cfg.BasemapPath != "" {
		basemap, err = render.LoadBasemap(cfg.BasemapPath)
		if err != nil {
			logger.Warn("basemap unavailable, rendering without land polygons",
				"path", cfg.BasemapPath, "error", err)
			basemap = nil
		} else {
			logger.Info("basemap loaded", "path", cfg.BasemapPath)
		}
	}
	renderer := render.NewRenderer(basemap, logger, metrics)

	sessions := playback.NewManager(store, clockwork.NewRealClock(), logger, metrics, playback.Options{
		FrameInterval:  cfg.FrameInterval,
		ResizeDebounce: cfg.ResizeDebounce,
		CanvasWidth:    cfg.CanvasWidth,
		CanvasHeight:   cfg.CanvasHeight,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ready := &readiness{}

	// Invalidation listener (feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS).
	// With the feed enabled, readiness also waits for its first update or
	// idle grace.
	var reader *kafkaadapter.Reader
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		listener := invalidation.New(reader, store, clockwork.NewRealClock(), logger, metrics)
		ready.checks = append(ready.checks, listener)
		go func() {
			if err := listener.Run(ctx); err != nil {
				logger.Error("invalidation listener error", "error", err)
			}
		}()
		logger.Info("invalidation listener enabled",
			"topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	} else {
		logger.Info("invalidation listener disabled")
	}

	srv := httpadapter.NewServer(cfg, store, sessions, renderer, ready, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if cfg.PreloadDatasets {
		logger.Info("preloading datasets", "species", cfg.Species)
		store.Preload(ctx, cfg.Species)
	}
	ready.started.Store(true)
	logger.Info("service ready", "addr", cfg.HTTPAddr)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sessions.CloseAll()
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
