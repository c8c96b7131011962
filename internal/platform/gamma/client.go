// Package gamma implements the REST client for the Polymarket Gamma API,
// the external market-metadata service.
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the REST client for the Gamma API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Gamma API client.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// MarketQuery selects which markets a page fetch returns.
type MarketQuery struct {
	Limit      int
	Offset     int
	ClosedOnly bool
	// TokenIDs restricts the response to markets owning the given CLOB token
	// IDs (sent as repeated clob_token_ids parameters).
	TokenIDs []string
}

// GetMarkets returns one page of markets matching the query.
func (c *Client) GetMarkets(ctx context.Context, q MarketQuery) ([]APIMarket, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))
	if q.ClosedOnly {
		params.Set("closed", "true")
	}
	for _, id := range q.TokenIDs {
		params.Add("clob_token_ids", id)
	}

	body, err := c.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("gamma: get markets: %w", err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("gamma: decode markets: %w", err)
	}
	return markets, nil
}

// doGet performs a GET request against the API and returns the response body.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
