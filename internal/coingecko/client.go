package coingecko

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL      = "https://api.coingecko.com/api/v3"
	defaultAPIKeyHeader = "x-cg-demo-api-key"
	defaultUserAgent    = "callwatch/1.0"
	maxErrorBody        = 512
)

// Options parameterise the CoinGecko client.
type Options struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
	UserAgent    string
}

// Client talks to the CoinGecko v3 REST API.
type Client struct {
	opts    Options
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("coingecko api error (%d) on %s", e.StatusCode, e.Path)
	}
	return fmt.Sprintf("coingecko api error (%d) on %s: %s", e.StatusCode, e.Path, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// NewClient constructs a CoinGecko client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(opts.APIKeyHeader) == "" {
		opts.APIKeyHeader = defaultAPIKeyHeader
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: opts.Timeout},
		logger:  logger.With().Str("component", "coingecko").Logger(),
	}
}

// ContractInfo fetches the full coin payload for a contract on a chain. The
// payload is returned undecoded beyond generic JSON so that callers can
// normalise the nested currency and locale maps themselves.
func (c *Client) ContractInfo(ctx context.Context, chainSlug, address string) (map[string]any, error) {
	chainSlug = strings.TrimSpace(chainSlug)
	address = strings.TrimSpace(address)
	if chainSlug == "" || address == "" {
		return nil, errors.New("chain slug and contract address are required")
	}

	path := "/coins/" + url.PathEscape(chainSlug) + "/contract/" + url.PathEscape(address)
	var payload map[string]any
	if err := c.getJSON(ctx, path, nil, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, fmt.Errorf("empty contract payload for %s on %s", address, chainSlug)
	}
	return payload, nil
}

// Search runs the fuzzy search endpoint and returns the matching coins.
func (c *Client) Search(ctx context.Context, query string) ([]SearchCoin, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}

	var res searchResponse
	if err := c.getJSON(ctx, "/search", url.Values{"query": {query}}, &res); err != nil {
		return nil, err
	}
	return res.Coins, nil
}

// CoinPlatforms fetches the chain slug -> contract address map for a coin id.
// Every optional section of the detail endpoint is switched off.
func (c *Client) CoinPlatforms(ctx context.Context, id string) (map[string]string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("coin id is required")
	}

	params := url.Values{
		"localization":   {"false"},
		"tickers":        {"false"},
		"market_data":    {"false"},
		"community_data": {"false"},
		"developer_data": {"false"},
		"sparkline":      {"false"},
	}

	var res coinDetailResponse
	if err := c.getJSON(ctx, "/coins/"+url.PathEscape(id), params, &res); err != nil {
		return nil, err
	}
	if res.Platforms == nil {
		return map[string]string{}, nil
	}
	return res.Platforms, nil
}

// MarketChart returns the USD price series of a coin over the last days.
func (c *Client) MarketChart(ctx context.Context, id string, days int) ([]PricePoint, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("coin id is required")
	}
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}

	params := url.Values{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(days)},
	}

	var res marketChartResponse
	if err := c.getJSON(ctx, "/coins/"+url.PathEscape(id)+"/market_chart", params, &res); err != nil {
		return nil, err
	}

	points := make([]PricePoint, 0, len(res.Prices))
	for _, pair := range res.Prices {
		if len(pair) != 2 {
			continue
		}
		ms, err := pair[0].Int64()
		if err != nil {
			f, ferr := pair[0].Float64()
			if ferr != nil {
				return nil, fmt.Errorf("parse market chart timestamp %q: %w", pair[0].String(), err)
			}
			ms = int64(f)
		}
		price, err := pair[1].Float64()
		if err != nil {
			return nil, fmt.Errorf("parse market chart price %q: %w", pair[1].String(), err)
		}
		points = append(points, PricePoint{Time: time.UnixMilli(ms).UTC(), PriceUSD: price})
	}
	return points, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dest any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create coingecko request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if c.opts.APIKey != "" {
		req.Header.Set(c.opts.APIKeyHeader, c.opts.APIKey)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("coingecko request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read coingecko response %s: %w", path, err)
	}

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("coingecko request finished")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: truncate(strings.TrimSpace(string(body)), maxErrorBody)}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("decode coingecko response %s: %w", path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
