// Package datasource fetches pre-aggregated heatmap JSON files from the
// static data host that the offline pipeline publishes to.
package datasource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client retrieves <speciesKey>_heatmap.json documents over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a data source client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchHeatmap downloads the raw heatmap payload for a species key.
// Any non-200 status is an error; validation of the body happens in the
// domain parser.
func (c *Client) FetchHeatmap(ctx context.Context, species string) ([]byte, error) {
	if species == "" {
		return nil, fmt.Errorf("empty species key")
	}

	u := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(species+"_heatmap.json"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch heatmap for %s: %w", species, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("data host error for %s: status %d: %s", species, resp.StatusCode, snippet)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read heatmap body for %s: %w", species, err)
	}
	return body, nil
}
