package invalidation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywaylab/bird-heatmap-service/internal/adapter/kafka"
	"github.com/flywaylab/bird-heatmap-service/internal/observability"
)

type fetchResult struct {
	update kafka.DatasetUpdate
	err    error
}

// stubSource feeds scripted fetch results, then blocks until cancel.
type stubSource struct {
	results chan fetchResult
}

func newStubSource(results ...fetchResult) *stubSource {
	ch := make(chan fetchResult, len(results))
	for _, r := range results {
		ch <- r
	}
	return &stubSource{results: ch}
}

func (s *stubSource) FetchUpdate(ctx context.Context) (kafka.DatasetUpdate, error) {
	select {
	case r := <-s.results:
		return r.update, r.err
	case <-ctx.Done():
		return kafka.DatasetUpdate{}, ctx.Err()
	}
}

type recordingCache struct {
	mu      sync.Mutex
	dropped []string
}

func (c *recordingCache) Invalidate(species string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = append(c.dropped, species)
}

func (c *recordingCache) invalidated() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dropped...)
}

func newTestListener(source UpdateSource, cache Invalidator) *Listener {
	return New(source, cache, clockwork.NewRealClock(), slog.Default(), observability.NewMetricsForTesting())
}

func runListener(t *testing.T, l *Listener) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitStopped(t *testing.T, done chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListenerInvalidatesOnUpdate(t *testing.T) {
	cache := &recordingCache{}
	source := newStubSource(
		fetchResult{update: kafka.DatasetUpdate{Species: "redkno", Offset: 3}},
		fetchResult{update: kafka.DatasetUpdate{Species: "barswa", Offset: 4}},
	)
	l := newTestListener(source, cache)

	require.Error(t, l.CheckReadiness(context.Background()))

	cancel, done := runListener(t, l)

	require.Eventually(t, func() bool {
		return len(cache.invalidated()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"redkno", "barswa"}, cache.invalidated())
	assert.NoError(t, l.CheckReadiness(context.Background()))

	cancel()
	waitStopped(t, done)
}

func TestListenerSkipsUpdatesWithoutSpecies(t *testing.T) {
	cache := &recordingCache{}
	source := newStubSource(
		fetchResult{update: kafka.DatasetUpdate{Topic: "heatmap-dataset-updates", Offset: 9}},
		fetchResult{update: kafka.DatasetUpdate{Species: "redkno"}},
	)
	l := newTestListener(source, cache)

	cancel, done := runListener(t, l)

	require.Eventually(t, func() bool {
		return len(cache.invalidated()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"redkno"}, cache.invalidated())

	cancel()
	waitStopped(t, done)
}

func TestListenerRecoversFromFetchErrors(t *testing.T) {
	cache := &recordingCache{}
	source := newStubSource(
		fetchResult{err: errors.New("broker unavailable")},
		fetchResult{update: kafka.DatasetUpdate{Species: "redkno"}},
	)
	l := newTestListener(source, cache)

	cancel, done := runListener(t, l)

	// The first fetch fails; after the backoff the next update lands.
	require.Eventually(t, func() bool {
		return len(cache.invalidated()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitStopped(t, done)
}

func TestListenerIdleGraceMarksReady(t *testing.T) {
	clk := clockwork.NewFakeClock()
	l := New(newStubSource(), &recordingCache{}, clk, slog.Default(), observability.NewMetricsForTesting())

	require.Error(t, l.CheckReadiness(context.Background()))

	cancel, done := runListener(t, l)

	// A quiet topic counts as fresh once the grace period passes.
	ctx, ctxCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer ctxCancel()
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(idleReadyGrace)

	require.Eventually(t, func() bool {
		return l.CheckReadiness(context.Background()) == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitStopped(t, done)
}

func TestListenerStopsOnCancel(t *testing.T) {
	l := newTestListener(newStubSource(), &recordingCache{})

	cancel, done := runListener(t, l)
	cancel()
	waitStopped(t, done)
}

func TestNextBackoffCapped(t *testing.T) {
	b := 200 * time.Millisecond
	maxBackoff := 5 * time.Second
	for i := 0; i < 10; i++ {
		b = nextBackoff(b, maxBackoff)
		assert.LessOrEqual(t, b, maxBackoff)
	}
	assert.Equal(t, maxBackoff, b)
}
