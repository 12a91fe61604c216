package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPFeedHandler calls a collector service over HTTP and decodes the counts
// it reports. The concrete scraping lives in the collector; this handler is
// the transport between the orchestrator and it. The endpoint comes from the
// schedule's scraper_config ("endpoint" key) unless a fixed base URL is set.
type HTTPFeedHandler struct {
	client  *http.Client
	baseURL string
}

// NewHTTPFeedHandler builds a handler for one collector endpoint. baseURL may
// be empty, in which case every schedule must carry an "endpoint" in its
// scraper_config. The handler sets no client timeout of its own: the
// orchestrator bounds each run with the schedule's timeout via ctx.
func NewHTTPFeedHandler(baseURL string) *HTTPFeedHandler {
	return &HTTPFeedHandler{client: &http.Client{}, baseURL: baseURL}
}

type collectorResponse struct {
	Processed int     `json:"processed"`
	Created   int     `json:"created"`
	Updated   int     `json:"updated"`
	Error     *string `json:"error"`
}

func (h *HTTPFeedHandler) Run(ctx context.Context, config map[string]any) (Stats, error) {
	endpoint := h.baseURL
	if v, ok := config["endpoint"].(string); ok && v != "" {
		endpoint = v
	}
	if endpoint == "" {
		return Stats{}, fmt.Errorf("scraper_config has no endpoint and no base URL is configured")
	}

	body, err := json.Marshal(config)
	if err != nil {
		return Stats{}, fmt.Errorf("encode scraper config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Stats{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return Stats{}, fmt.Errorf("call collector: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body) // drain so the connection can be reused
		return Stats{}, fmt.Errorf("collector returned status %d", resp.StatusCode)
	}

	var out collectorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Stats{}, fmt.Errorf("decode collector response: %w", err)
	}

	stats := Stats{Processed: out.Processed, Created: out.Created, Updated: out.Updated}
	if out.Error != nil && *out.Error != "" {
		return stats, fmt.Errorf("collector error: %s", *out.Error)
	}
	return stats, nil
}
