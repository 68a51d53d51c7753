package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/absgex/internal/gex"
)

// DefaultBaseURL is the production Polygon REST endpoint.
const DefaultBaseURL = "https://api.polygon.io"

const snapshotPageLimit = 250

// Client talks to the Polygon REST API. Fetches are not retried: failures
// propagate to the caller so a partial chain is never mistaken for a thin
// but complete one.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, ratePerSec int, timeout time.Duration, logger *zap.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:       100,
		MaxConnsPerHost:    10,
		IdleConnTimeout:    90 * time.Second,
		DisableCompression: false,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		logger:  logger,
	}
}

// SnapshotChain fetches the full snapshot options chain for an underlying at
// the given expiration (YYYY-MM-DD), following pagination to completion. A
// page without a next_url ends the walk; any page failure aborts the whole
// fetch.
func (c *Client) SnapshotChain(ctx context.Context, underlying, expiration string) ([]gex.ContractRecord, error) {
	pageURL := fmt.Sprintf("%s/v3/snapshot/options/%s?expiration_date=%s&limit=%d",
		c.baseURL, url.PathEscape(underlying), url.QueryEscape(expiration), snapshotPageLimit)

	var records []gex.ContractRecord
	pages := 0
	for pageURL != "" {
		var page chainPage
		if err := c.getJSON(ctx, pageURL, &page); err != nil {
			return nil, fmt.Errorf("snapshot chain %s/%s page %d: %w", underlying, expiration, pages+1, err)
		}
		for _, result := range page.Results {
			records = append(records, result.toRecord())
		}
		pages++
		pageURL = c.absoluteURL(page.NextURL)
	}

	c.logger.Debug("snapshot chain fetched",
		zap.String("underlying", underlying),
		zap.String("expiration", expiration),
		zap.Int("pages", pages),
		zap.Int("contracts", len(records)),
	)
	return records, nil
}

// LastTrade returns the last trade price for the underlying.
func (c *Client) LastTrade(ctx context.Context, underlying string) (float64, error) {
	u := fmt.Sprintf("%s/v2/last/trade/%s", c.baseURL, url.PathEscape(underlying))

	var resp lastTradeResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return 0, fmt.Errorf("last trade %s: %w", underlying, err)
	}
	if resp.Last.Price <= 0 {
		return 0, &RequestError{StatusCode: http.StatusOK, Body: "last trade returned non-positive price"}
	}
	return resp.Last.Price, nil
}

// NearestExpiration resolves the expiration to treat as 0DTE for the given
// as-of date: the same day when it exists, otherwise the first expiration on
// or after it, otherwise the latest known one.
func (c *Client) NearestExpiration(ctx context.Context, underlying, asof string) (string, error) {
	u := fmt.Sprintf("%s/v3/reference/options/contracts?underlying_ticker=%s&limit=1000&sort=expiration_date&order=asc&as_of=%s",
		c.baseURL, url.QueryEscape(underlying), url.QueryEscape(asof))

	var page referencePage
	if err := c.getJSON(ctx, u, &page); err != nil {
		return "", fmt.Errorf("listing expirations %s: %w", underlying, err)
	}

	seen := make(map[string]bool)
	var exps []string
	for _, contract := range page.Results {
		if contract.ExpirationDate == "" || seen[contract.ExpirationDate] {
			continue
		}
		seen[contract.ExpirationDate] = true
		exps = append(exps, contract.ExpirationDate)
	}
	if len(exps) == 0 {
		return "", ErrNoExpirations
	}

	// Results are sorted ascending by expiration_date; dates in YYYY-MM-DD
	// compare lexicographically.
	for _, exp := range exps {
		if exp >= asof {
			return exp, nil
		}
	}
	return exps[len(exps)-1], nil
}

// getJSON performs one rate-limited GET and decodes the body into out.
// 401/403 become *AuthError carrying the provider body, any other non-200
// becomes *RequestError.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	signed, err := withAPIKey(rawURL, c.apiKey)
	if err != nil {
		return fmt.Errorf("building url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}

	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("reading response: %w", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	case resp.StatusCode != http.StatusOK:
		return &RequestError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// absoluteURL normalizes a next_url pointer, which may be relative or fully
// qualified. Empty stays empty: no pointer means the walk is done.
func (c *Client) absoluteURL(next string) string {
	if next == "" {
		return ""
	}
	if strings.HasPrefix(next, "/") {
		return c.baseURL + next
	}
	return next
}

// withAPIKey signs a request URL with the apiKey query parameter.
func withAPIKey(rawURL, apiKey string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("apiKey", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
