package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"VeilleScanner/internal/domain"
	"VeilleScanner/internal/ports"
)

// Client queries the Hugging Face model hub to verify tracked models.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
}

var _ ports.ModelVerifier = (*Client)(nil)

type modelInfo struct {
	ID           string `json:"id"`
	SHA          string `json:"sha"`
	LastModified string `json:"lastModified"`
	Downloads    int64  `json:"downloads"`
	Likes        int64  `json:"likes"`
	PipelineTag  string `json:"pipeline_tag"`
}

// NewClient creates a reusable HTTP client. A nil limiter disables throttling.
func NewClient(endpoint, apiKey string, limiter *rate.Limiter) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  limiter,
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.http = hc
	}
	return c
}

// Verify fetches model metadata and reports its revision and popularity.
// Changes are left empty so the surveyor can diff against history.
func (c *Client) Verify(ctx context.Context, model domain.TrackedModel) (domain.ModelCheck, error) {
	if model.Identifier == "" {
		return domain.ModelCheck{}, fmt.Errorf("model %s: empty identifier", model.Name)
	}

	var info modelInfo
	if err := c.get(ctx, "/api/models/"+escapeModelID(model.Identifier), &info); err != nil {
		return domain.ModelCheck{}, fmt.Errorf("model %s: %w", model.Name, err)
	}

	version := info.SHA
	if len(version) > 12 {
		version = version[:12]
	}
	if version == "" {
		version = "latest"
	}

	perf := fmt.Sprintf("Downloads: %d, likes: %d", info.Downloads, info.Likes)
	if info.PipelineTag != "" {
		perf += ", task: " + info.PipelineTag
	}
	if info.LastModified != "" {
		perf += ", last modified: " + info.LastModified
	}

	return domain.ModelCheck{Version: version, Performance: perf}, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}

func escapeModelID(id string) string {
	parts := strings.Split(id, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
