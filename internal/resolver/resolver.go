package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"darkbet-backend/internal/market"
	"darkbet-backend/internal/resolution"
)

// Client asks an external evidence service for market outcomes
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a resolver client for the service at base
func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type resolveRequest struct {
	Market market.MarketJSON `json:"market"`
}

type resolveResponse struct {
	Outcome     *bool  `json:"outcome"`
	Undecidable bool   `json:"undecidable"`
	Reasoning   string `json:"reasoning"`
}

// Resolve posts the market to the service and decodes its verdict.
func (c *Client) Resolve(ctx context.Context, m *market.Market) (resolution.Decision, error) {
	body, err := json.Marshal(resolveRequest{Market: m.ToJSON()})
	if err != nil {
		return resolution.Decision{}, fmt.Errorf("resolver: marshal market: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/resolve", bytes.NewReader(body))
	if err != nil {
		return resolution.Decision{}, fmt.Errorf("resolver: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return resolution.Decision{}, fmt.Errorf("resolver: send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return resolution.Decision{}, fmt.Errorf("resolver: unexpected status %d: %s", res.StatusCode, string(respBody))
	}

	var out resolveResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return resolution.Decision{}, fmt.Errorf("resolver: decode response: %w", err)
	}
	if out.Undecidable || out.Outcome == nil {
		return resolution.Decision{Reasoning: out.Reasoning}, nil
	}
	return resolution.Decision{Outcome: out.Outcome, Reasoning: out.Reasoning}, nil
}

// Undecided is used when no resolver service is configured: every expired
// market is closed as undecided so stakes can be refunded.
type Undecided struct{}

func (Undecided) Resolve(context.Context, *market.Market) (resolution.Decision, error) {
	return resolution.Decision{}, fmt.Errorf("no resolver configured: %w", resolution.ErrUndecidable)
}
