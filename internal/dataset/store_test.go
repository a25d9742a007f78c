package dataset_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flywaylab/bird-heatmap-service/internal/dataset"
	"github.com/flywaylab/bird-heatmap-service/internal/observability"
)

// --- mocks ---

type mockFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	err      error
	calls    int
}

func (m *mockFetcher) FetchHeatmap(_ context.Context, species string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	payload, ok := m.payloads[species]
	if !ok {
		return nil, fmt.Errorf("status 404")
	}
	return payload, nil
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func twoFramePayload() []byte {
	return []byte(`{"frames":[
		{"week":"2024-04-01","cells":[[-60,45,1],[-61,46,2]]},
		{"week":"2024-04-08","cells":[[-59,47,3]]}
	]}`)
}

func newStore(f dataset.Fetcher, size int) *dataset.Store {
	return dataset.NewStore(f, size, slog.Default(), observability.NewMetricsForTesting())
}

// --- tests ---

func TestStore_GetCachesDataset(t *testing.T) {
	fetcher := &mockFetcher{payloads: map[string][]byte{"barswa": twoFramePayload()}}
	store := newStore(fetcher, 4)

	ds1, err := store.Get(context.Background(), "barswa")
	require.NoError(t, err)
	assert.Equal(t, 2, ds1.FrameCount())

	ds2, err := store.Get(context.Background(), "barswa")
	require.NoError(t, err)
	assert.Same(t, ds1, ds2, "second lookup must hit the cache")
	assert.Equal(t, 1, fetcher.callCount())
}

func TestStore_GetFetchError(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("connection refused")}
	store := newStore(fetcher, 4)

	_, err := store.Get(context.Background(), "barswa")
	assert.ErrorIs(t, err, dataset.ErrNoData)
}

func TestStore_GetMalformedPayload(t *testing.T) {
	fetcher := &mockFetcher{payloads: map[string][]byte{"barswa": []byte("not-json{{{")}}
	store := newStore(fetcher, 4)

	_, err := store.Get(context.Background(), "barswa")
	assert.ErrorIs(t, err, dataset.ErrNoData)
}

func TestStore_GetEmptyFrames(t *testing.T) {
	fetcher := &mockFetcher{payloads: map[string][]byte{"barswa": []byte(`{"frames":[]}`)}}
	store := newStore(fetcher, 4)

	_, err := store.Get(context.Background(), "barswa")
	assert.ErrorIs(t, err, dataset.ErrNoData)
}

func TestStore_FailedLoadIsNotCached(t *testing.T) {
	fetcher := &mockFetcher{payloads: map[string][]byte{}}
	store := newStore(fetcher, 4)

	_, err := store.Get(context.Background(), "barswa")
	require.ErrorIs(t, err, dataset.ErrNoData)

	// A later request retries the fetch instead of serving the failure.
	fetcher.mu.Lock()
	fetcher.payloads["barswa"] = twoFramePayload()
	fetcher.mu.Unlock()

	ds, err := store.Get(context.Background(), "barswa")
	require.NoError(t, err)
	assert.Equal(t, 2, ds.FrameCount())
	assert.Equal(t, 2, fetcher.callCount())
}

func TestStore_InvalidateForcesRefetch(t *testing.T) {
	fetcher := &mockFetcher{payloads: map[string][]byte{"barswa": twoFramePayload()}}
	store := newStore(fetcher, 4)

	_, err := store.Get(context.Background(), "barswa")
	require.NoError(t, err)

	store.Invalidate("barswa")

	_, err = store.Get(context.Background(), "barswa")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestStore_LRUEviction(t *testing.T) {
	fetcher := &mockFetcher{payloads: map[string][]byte{
		"a": twoFramePayload(),
		"b": twoFramePayload(),
		"c": twoFramePayload(),
	}}
	store := newStore(fetcher, 2)

	for _, key := range []string{"a", "b", "c"} {
		_, err := store.Get(context.Background(), key)
		require.NoError(t, err)
	}

	// "a" was least recently used and must have been evicted.
	_, err := store.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 4, fetcher.callCount())
}

func TestStore_PreloadSkipsFailures(t *testing.T) {
	fetcher := &mockFetcher{payloads: map[string][]byte{
		"good": twoFramePayload(),
	}}
	store := newStore(fetcher, 4)

	store.Preload(context.Background(), []string{"good", "missing"})

	ds, err := store.Get(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, 2, ds.FrameCount())

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, dataset.ErrNoData)
}
