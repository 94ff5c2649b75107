// Package remote implements types.Service over the game server's
// JSON-over-HTTP protocol.
//
// All endpoints share one invoke helper that waits on the rate limiter,
// performs the call, records its outcome in the stats recorder, and turns
// non-200 responses into a *StatusError.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mesh-intelligence/goldrush/internal/stats"
	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// Compile-time interface check.
var _ types.Service = (*Client)(nil)

// Protocol paths.
const (
	pathExplore  = "/explore"
	pathLicenses = "/licenses"
	pathDig      = "/dig"
	pathCash     = "/cash"
)

// cashContentType matches what the server expects for a bare JSON string.
const cashContentType = "application/json;charset=UTF-8"

// maxBody bounds how much of a response body is read.
const maxBody = 1 << 20

// Config configures a Client.
type Config struct {
	BaseURL string
	// RateLimit is requests per second across all endpoints; 0 disables it.
	RateLimit float64
	// Burst defaults to 1.
	Burst int
	// Timeout is the per-request transport timeout; 0 means none.
	Timeout time.Duration
	// HTTPClient overrides the default client (Timeout is then ignored).
	HTTPClient *http.Client
}

// Client talks to the game server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	rec        *stats.Recorder
}

// NewClient creates a Client. rec may be nil.
func NewClient(cfg Config, rec *stats.Recorder) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if rec == nil {
		rec = stats.NewRecorder(nil)
	}
	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(limit, burst),
		rec:        rec,
	}
}

// BaseURL returns http://address:port.
func BaseURL(address string, port int) string {
	return fmt.Sprintf("http://%s:%d", address, port)
}

// Explore implements types.Service.
func (c *Client) Explore(ctx context.Context, area types.Area) (types.Explore, error) {
	return invoke[types.Explore](ctx, c, stats.OpExplore, http.MethodPost, pathExplore, jsonBody(area))
}

// IssueLicense implements types.Service.
func (c *Client) IssueLicense(ctx context.Context, coins []types.Coin) (types.License, error) {
	op := stats.OpLicensePaid
	if len(coins) == 0 {
		op = stats.OpLicenseFree
		coins = []types.Coin{}
	}
	return invoke[types.License](ctx, c, op, http.MethodPost, pathLicenses, jsonBody(coins))
}

// ListLicenses implements types.Service.
func (c *Client) ListLicenses(ctx context.Context) ([]types.License, error) {
	return invoke[[]types.License](ctx, c, stats.OpLicenseList, http.MethodGet, pathLicenses, nil)
}

// Dig implements types.Service.
func (c *Client) Dig(ctx context.Context, req types.DigRequest) ([]string, error) {
	return invoke[[]string](ctx, c, stats.OpDig, http.MethodPost, pathDig, jsonBody(req))
}

// Cash implements types.Service.
func (c *Client) Cash(ctx context.Context, token string) ([]types.Coin, error) {
	body := jsonBody(token)
	body.contentType = cashContentType
	return invoke[[]types.Coin](ctx, c, stats.OpCash, http.MethodPost, pathCash, body)
}

type requestBody struct {
	value       any
	contentType string
}

func jsonBody(v any) *requestBody {
	return &requestBody{value: v, contentType: "application/json"}
}

// invoke performs one call and records its outcome under op.
func invoke[T any](ctx context.Context, c *Client, op stats.Op, method, path string, body *requestBody) (T, error) {
	var out T

	if err := c.limiter.Wait(ctx); err != nil {
		return out, fmt.Errorf("%s: rate limit: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body.value)
		if err != nil {
			return out, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return out, fmt.Errorf("%s: create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", body.contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.rec.Call(op, stats.StatusTransport, time.Since(start))
		return out, fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	c.rec.Call(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return out, &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if readErr != nil {
		return out, fmt.Errorf("%s: read response: %w", op, readErr)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return out, nil
}
