package datasource

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchHeatmap_Success(t *testing.T) {
	const payload = `{"frames":[{"week":"2024-04-01","cells":[[0,0,1]]}]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/barswa_heatmap.json", r.URL.Path)
		w.Write([]byte(payload)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2*time.Second, slog.Default())
	body, err := client.FetchHeatmap(context.Background(), "barswa")
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(body))
}

func TestFetchHeatmap_TrailingSlashBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/redkno_heatmap.json", r.URL.Path)
		w.Write([]byte(`{}`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/data/", 2*time.Second, slog.Default())
	_, err := client.FetchHeatmap(context.Background(), "redkno")
	require.NoError(t, err)
}

func TestFetchHeatmap_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such species", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 2*time.Second, slog.Default())
	_, err := client.FetchHeatmap(context.Background(), "nosuch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestFetchHeatmap_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // refuse connections

	client := NewClient(srv.URL, 500*time.Millisecond, slog.Default())
	_, err := client.FetchHeatmap(context.Background(), "barswa")
	assert.Error(t, err)
}

func TestFetchHeatmap_EmptySpecies(t *testing.T) {
	client := NewClient("http://localhost:0", time.Second, slog.Default())
	_, err := client.FetchHeatmap(context.Background(), "")
	assert.Error(t, err)
}
