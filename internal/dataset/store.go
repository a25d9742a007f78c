// Package dataset owns the in-memory species dataset store: an LRU cache
// in front of the data source, with explicit invalidation.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flywaylab/bird-heatmap-service/internal/domain"
	"github.com/flywaylab/bird-heatmap-service/internal/observability"
)

// ErrNoData is the fail-closed result for any load failure: network error,
// non-success status, malformed payload, or empty frame list. Callers show
// a "no data available" state; a new selection is the only retry.
var ErrNoData = errors.New("no data available")

// Fetcher retrieves the raw heatmap payload for a species key.
type Fetcher interface {
	FetchHeatmap(ctx context.Context, species string) ([]byte, error)
}

// Store loads, caches, and invalidates species heatmap datasets. Datasets
// are immutable once loaded, so handing the same *domain.Dataset to many
// sessions is safe.
type Store struct {
	fetcher Fetcher
	cache   *lruCache
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStore creates a Store with an LRU cache of at most cacheSize datasets.
func NewStore(fetcher Fetcher, cacheSize int, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		fetcher: fetcher,
		cache:   newLRUCache(cacheSize),
		logger:  logger,
		metrics: metrics,
	}
}

// Get returns the dataset for a species, fetching and parsing on a cache
// miss. Scales are built once here, never per frame. All failures collapse
// into ErrNoData with the cause wrapped alongside.
func (s *Store) Get(ctx context.Context, species string) (*domain.Dataset, error) {
	if ds, ok := s.cache.get(species); ok {
		s.metrics.DatasetCache.WithLabelValues("hit").Inc()
		return ds, nil
	}
	s.metrics.DatasetCache.WithLabelValues("miss").Inc()

	start := time.Now()
	body, err := s.fetcher.FetchHeatmap(ctx, species)
	if err != nil {
		s.metrics.DatasetLoads.WithLabelValues("error").Inc()
		s.logger.Warn("heatmap fetch failed", "species", species, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNoData, err)
	}

	ds, err := domain.ParseDataset(species, body, s.logger)
	if err != nil {
		s.metrics.DatasetLoads.WithLabelValues("error").Inc()
		s.logger.Warn("heatmap payload invalid", "species", species, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrNoData, err)
	}

	s.cache.put(species, ds)
	s.metrics.DatasetLoads.WithLabelValues("success").Inc()
	s.metrics.DatasetLoadDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("dataset loaded",
		"species", species,
		"frames", ds.FrameCount(),
		"color_domain_low", ds.Scales.Color.Min,
		"color_domain_high", ds.Scales.Color.Max,
	)
	return ds, nil
}

// Invalidate evicts a cached dataset so the next Get refetches it.
func (s *Store) Invalidate(species string) {
	s.cache.drop(species)
	s.metrics.Invalidations.Inc()
	s.logger.Info("dataset invalidated", "species", species)
}

// Preload warms the cache for the given species concurrently. Individual
// failures are logged and skipped; preloading never aborts startup.
func (s *Store) Preload(ctx context.Context, species []string) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, key := range species {
		g.Go(func() error {
			if _, err := s.Get(ctx, key); err != nil {
				s.logger.Warn("preload skipped", "species", key, "error", err)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
}
