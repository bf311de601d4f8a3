package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"darkbet-backend/internal/api"
	"darkbet-backend/internal/auth"
	"darkbet-backend/internal/engine"
	"darkbet-backend/internal/market"
	"darkbet-backend/internal/settlement"
)

// Client talks to the darkbet API on behalf of one account
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Signer  *auth.Signer // required for state-changing calls
	Clock   func() time.Time
}

// New creates a client for the API at base
func New(base string, signer *auth.Signer, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(base, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Signer:  signer,
		Clock:   time.Now,
	}
}

// do sends a request and decodes a successful response into out. API
// errors come back as *market.Error carrying the server's kind.
func (c *Client) do(ctx context.Context, method, path string, signed bool, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signed {
		if c.Signer == nil {
			return market.Errorf(market.KindUnauthorized, "a private key is required for %s %s", method, path)
		}
		if err := c.Signer.SignRequest(req, body, c.Clock()); err != nil {
			return fmt.Errorf("client: sign request: %w", err)
		}
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("client: send request: %w", err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Kind != "" {
			return market.Errorf(apiErr.Kind, "%s", apiErr.Error)
		}
		return fmt.Errorf("client: unexpected status %d: %s", res.StatusCode, truncate(respBody, 256))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

func marketPath(id uint64, suffix string) string {
	return "/api/markets/" + strconv.FormatUint(id, 10) + suffix
}

// CreateMarket opens a new market owned by the signer
func (c *Client) CreateMarket(ctx context.Context, title, description, category string, expiresAt time.Time) (market.MarketJSON, error) {
	var out market.MarketJSON
	err := c.do(ctx, http.MethodPost, "/api/markets", true, api.CreateMarketRequest{
		Title:       title,
		Description: description,
		Category:    category,
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	}, &out)
	return out, err
}

// GetMarket fetches one market
func (c *Client) GetMarket(ctx context.Context, id uint64) (market.MarketJSON, error) {
	var out market.MarketJSON
	err := c.do(ctx, http.MethodGet, marketPath(id, ""), false, nil, &out)
	return out, err
}

// Quote previews a bet without placing it
func (c *Client) Quote(ctx context.Context, id uint64, outcome bool, amount string) (settlement.Quote, error) {
	q := url.Values{}
	q.Set("outcome", strconv.FormatBool(outcome))
	q.Set("amount", amount)
	var out settlement.Quote
	err := c.do(ctx, http.MethodGet, marketPath(id, "/quote?"+q.Encode()), false, nil, &out)
	return out, err
}

// Commit escrows amount (ether) behind a commitment hash
func (c *Client) Commit(ctx context.Context, id uint64, hash, amount string) (engine.PositionJSON, error) {
	var out engine.PositionJSON
	err := c.do(ctx, http.MethodPost, marketPath(id, "/commit"), true,
		api.CommitBetRequest{CommitHash: hash, Amount: amount}, &out)
	return out, err
}

// Reveal opens the signer's commitment
func (c *Client) Reveal(ctx context.Context, id uint64, outcome bool, salt string) (engine.PositionJSON, error) {
	var out engine.PositionJSON
	err := c.do(ctx, http.MethodPost, marketPath(id, "/reveal"), true,
		api.RevealBetRequest{Outcome: outcomeWord(outcome), Salt: salt}, &out)
	return out, err
}

// Resolve settles a market; outcome is "yes", "no" or "undecided"
func (c *Client) Resolve(ctx context.Context, id uint64, outcome, reasoning string) (market.MarketJSON, error) {
	var out market.MarketJSON
	err := c.do(ctx, http.MethodPost, marketPath(id, "/resolve"), true,
		api.ResolveMarketRequest{Outcome: outcome, Reasoning: reasoning}, &out)
	return out, err
}

// Cancel cancels a market before any foreign reveal
func (c *Client) Cancel(ctx context.Context, id uint64) (market.MarketJSON, error) {
	var out market.MarketJSON
	err := c.do(ctx, http.MethodPost, marketPath(id, "/cancel"), true, nil, &out)
	return out, err
}

// Claim pays out the signer's winning bet
func (c *Client) Claim(ctx context.Context, id uint64) (settlement.ClaimJSON, error) {
	var out settlement.ClaimJSON
	err := c.do(ctx, http.MethodPost, marketPath(id, "/claim"), true, nil, &out)
	return out, err
}

// Refund returns the signer's stake when a refund is available
func (c *Client) Refund(ctx context.Context, id uint64) (settlement.ClaimJSON, error) {
	var out settlement.ClaimJSON
	err := c.do(ctx, http.MethodPost, marketPath(id, "/refund"), true, nil, &out)
	return out, err
}

// Deposit credits amount (ether) to the signer's vault balance
func (c *Client) Deposit(ctx context.Context, amount string) (api.BalanceResponse, error) {
	var out api.BalanceResponse
	err := c.do(ctx, http.MethodPost, "/api/deposit", true, api.DepositRequest{Amount: amount}, &out)
	return out, err
}

// Balance fetches the vault balance and positions of addr
func (c *Client) Balance(ctx context.Context, addr string) (api.BalanceResponse, error) {
	var out api.BalanceResponse
	err := c.do(ctx, http.MethodGet, "/api/balance/"+url.PathEscape(addr), false, nil, &out)
	return out, err
}

func outcomeWord(outcome bool) string {
	if outcome {
		return "yes"
	}
	return "no"
}
