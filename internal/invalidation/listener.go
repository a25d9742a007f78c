// Package invalidation keeps the dataset cache fresh: it consumes
// rebuild notifications from the update topic and evicts the affected
// species so the next request reloads it.
package invalidation

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/flywaylab/bird-heatmap-service/internal/adapter/kafka"
	"github.com/flywaylab/bird-heatmap-service/internal/observability"
)

// UpdateSource yields dataset rebuild notifications, blocking until one
// arrives or the context ends.
type UpdateSource interface {
	FetchUpdate(ctx context.Context) (kafka.DatasetUpdate, error)
}

// Invalidator drops a cached dataset by species key.
type Invalidator interface {
	Invalidate(species string)
}

// idleReadyGrace is how long a running listener waits on a quiet topic
// before calling itself ready anyway. No updates means nothing went
// stale, so the cache is as fresh as it can be.
const idleReadyGrace = 30 * time.Second

// Listener runs the consume-and-invalidate loop.
type Listener struct {
	source  UpdateSource
	cache   Invalidator
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New creates a Listener over the given update source and cache.
func New(source UpdateSource, cache Invalidator, clk clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Listener {
	return &Listener{
		source:  source,
		cache:   cache,
		clock:   clk,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once the listener has received at least one
// update, or has sat on a quiet topic for the idle grace period. Before
// that it returns an error describing why it is not yet ready.
func (l *Listener) CheckReadiness(_ context.Context) error {
	if !l.ready.Load() {
		return errors.New("invalidation listener has not received any updates yet")
	}
	return nil
}

// Run consumes updates until the context is cancelled. Fetch errors back
// off exponentially from 200ms up to 5s, so a broker outage does not
// turn into a tight retry loop.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info("invalidation listener started")
	l.metrics.ListenerRunning.Set(1)
	defer l.metrics.ListenerRunning.Set(0)

	idle := l.clock.AfterFunc(idleReadyGrace, func() { l.ready.Store(true) })
	defer idle.Stop()

	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("invalidation listener stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !l.processUpdate(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processUpdate handles one fetch-and-invalidate cycle. Returns false if
// the listener should stop.
func (l *Listener) processUpdate(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	update, err := l.source.FetchUpdate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		l.logger.Error("fetch dataset update failed", "error", err)
		return l.backoffOrStop(ctx, backoff, maxBackoff)
	}
	*backoff = 200 * time.Millisecond

	if update.Species == "" {
		l.logger.Warn("dataset update without species key, skipping",
			"topic", update.Topic,
			"partition", update.Partition,
			"offset", update.Offset,
		)
		return true
	}

	l.cache.Invalidate(update.Species)
	l.ready.Store(true)
	l.logger.Info("dataset update applied",
		"species", update.Species,
		"partition", update.Partition,
		"offset", update.Offset,
	)
	return true
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the listener should stop.
func (l *Listener) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !l.sleep(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (l *Listener) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := l.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
