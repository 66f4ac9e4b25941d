package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/strataplan/orchestrator/internal/config"
)

// Hit is one structured search result. URL may be empty for providers
// that only return text.
type Hit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Results carries either structured hits or a single raw text blob,
// depending on what the backing provider returned.
type Results struct {
	Hits []Hit
	Raw  string
}

// Flatten renders the results as a single text representation suitable
// for inclusion in research notes.
func (r Results) Flatten() string {
	if len(r.Hits) == 0 {
		return r.Raw
	}
	parts := make([]string, 0, len(r.Hits))
	for _, h := range r.Hits {
		var b strings.Builder
		if h.Title != "" {
			b.WriteString(h.Title)
		}
		if h.Snippet != "" {
			if b.Len() > 0 {
				b.WriteString(": ")
			}
			b.WriteString(h.Snippet)
		}
		if h.URL != "" {
			b.WriteString(" (")
			b.WriteString(h.URL)
			b.WriteString(")")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n")
}

// URLs returns the source URLs present in structured hits, in order.
func (r Results) URLs() []string {
	var urls []string
	for _, h := range r.Hits {
		if h.URL != "" {
			urls = append(urls, h.URL)
		}
	}
	return urls
}

// Client is the web search capability: query in, ranked results out.
type Client interface {
	Search(ctx context.Context, query string) (Results, error)
}

// HTTPClient calls the search sidecar service. Calls are rate limited
// so a research pass cannot exhaust the provider quota.
type HTTPClient struct {
	baseURL    string
	maxResults int
	hc         *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewHTTPClient(cfg config.SearchConfig, logger *zap.Logger) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 4
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		maxResults: cfg.MaxResults,
		hc:         &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger,
	}
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type searchResponse struct {
	Results []Hit  `json:"results"`
	Answer  string `json:"answer"`
}

// Search runs one query against the search service.
func (c *HTTPClient) Search(ctx context.Context, query string) (Results, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Results{}, fmt.Errorf("search rate limit: %w", err)
	}

	body, err := json.Marshal(searchRequest{Query: query, MaxResults: c.maxResults})
	if err != nil {
		return Results{}, fmt.Errorf("encode search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return Results{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return Results{}, fmt.Errorf("search service call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Results{}, fmt.Errorf("search service returned %d: %s", resp.StatusCode, string(raw))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Results{}, fmt.Errorf("decode search response: %w", err)
	}

	c.logger.Debug("Search completed",
		zap.String("query", query),
		zap.Int("hits", len(out.Results)),
	)
	return Results{Hits: out.Results, Raw: out.Answer}, nil
}
