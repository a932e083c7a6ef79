package mindbody

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kennangle/studio-insights-api/pkg/config"
)

const (
	maxServerRetries = 3
	// Tokens are reissued this long before their tracked expiry so an
	// in-flight page never races an expiring token.
	tokenExpirySlack = 5 * time.Minute
)

// Client talks to the Mindbody public API: user-token auth with local expiry
// tracking, bounded retries, and a per-run call counter for quota telemetry.
type Client struct {
	http      *resty.Client
	cfg       config.MindbodyConfig
	logger    *zap.Logger
	retryWait time.Duration

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time

	callCount atomic.Int64
}

// NewClient builds a configured API client.
func NewClient(cfg config.MindbodyConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Api-Key", cfg.APIKey).
		SetHeader("SiteId", cfg.SiteID).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:      httpClient,
		cfg:       cfg,
		logger:    logger,
		retryWait: time.Second,
	}
}

// PageSize returns the configured page size for paginated fetches.
func (c *Client) PageSize() int {
	return c.cfg.PageSize
}

// CallCount returns the number of API calls issued since the last reset.
func (c *Client) CallCount() int64 {
	return c.callCount.Load()
}

// ResetCallCount zeroes the counter. Called at the start of each job run so
// per-run quota usage is measurable.
func (c *Client) ResetCallCount() {
	c.callCount.Store(0)
}

// getAccessToken returns the cached bearer token, reissuing it when the
// locally tracked expiry (minus slack) has passed.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	c.callCount.Add(1)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"Username": c.cfg.Username, "Password": c.cfg.Password}).
		Post("/usertoken/issue")
	if err != nil {
		return "", c.transportError("/usertoken/issue", err)
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return "", &APIError{Kind: KindAuth, Endpoint: "/usertoken/issue", Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	if resp.IsError() {
		return "", &APIError{Kind: KindRequest, Endpoint: "/usertoken/issue", Status: resp.StatusCode(), Body: string(resp.Body())}
	}

	var token tokenResponse
	if err := json.Unmarshal(resp.Body(), &token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", &APIError{Kind: KindAuth, Endpoint: "/usertoken/issue", Status: resp.StatusCode(), Body: "empty access token"}
	}

	c.token = token.AccessToken
	c.tokenExpiry = time.Now().Add(c.cfg.TokenTTL - tokenExpirySlack)
	c.logger.Sugar().Debugw("issued source api token", "expires_at", c.tokenExpiry)
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.tokenMu.Unlock()
}

// Get issues one authenticated GET and decodes the JSON body into out.
// 5xx and transport failures retry with exponential backoff; a 401 triggers
// a single token refresh and one retry of the original request; 429 and
// timeouts surface immediately with their failure kind.
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string, out interface{}) error {
	refreshed := false
	attempt := 0
	for {
		token, err := c.getAccessToken(ctx)
		if err != nil {
			return err
		}

		c.callCount.Add(1)
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParams(params).
			Get(endpoint)
		if err != nil {
			apiErr := c.transportError(endpoint, err)
			if KindOf(apiErr) == KindTimeout {
				return apiErr
			}
			if attempt < maxServerRetries-1 {
				if err := c.backoff(ctx, attempt); err != nil {
					return err
				}
				attempt++
				continue
			}
			return apiErr
		}

		status := resp.StatusCode()
		switch {
		case status >= 200 && status < 300:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode %s response: %w", endpoint, err)
			}
			return nil
		case status == 401:
			if refreshed {
				return &APIError{Kind: KindAuth, Endpoint: endpoint, Status: status, Body: string(resp.Body())}
			}
			refreshed = true
			c.invalidateToken()
			continue
		case status == 429:
			return &APIError{Kind: KindRateLimit, Endpoint: endpoint, Status: status, Body: string(resp.Body())}
		case status >= 500:
			if attempt < maxServerRetries-1 {
				c.logger.Sugar().Warnw("source api server error, retrying", "endpoint", endpoint, "status", status, "attempt", attempt+1)
				if err := c.backoff(ctx, attempt); err != nil {
					return err
				}
				attempt++
				continue
			}
			return &APIError{Kind: KindServer, Endpoint: endpoint, Status: status, Body: string(resp.Body())}
		default:
			return &APIError{Kind: KindRequest, Endpoint: endpoint, Status: status, Body: string(resp.Body())}
		}
	}
}

// FetchPage fetches one page of records from a paginated list endpoint.
// HasMore is true only when the page held at least one record AND more
// remain past it; an empty page always terminates pagination regardless of
// the reported total, guarding against inconsistent server metadata.
func (c *Client) FetchPage(ctx context.Context, endpoint, resultsKey string, params map[string]string, offset int) (*Page, error) {
	query := make(map[string]string, len(params)+2)
	for k, v := range params {
		query[k] = v
	}
	query["Limit"] = strconv.Itoa(c.cfg.PageSize)
	query["Offset"] = strconv.Itoa(offset)

	var envelope map[string]json.RawMessage
	if err := c.Get(ctx, endpoint, query, &envelope); err != nil {
		return nil, err
	}

	var pagination PaginationResponse
	if raw, ok := envelope["PaginationResponse"]; ok {
		if err := json.Unmarshal(raw, &pagination); err != nil {
			return nil, fmt.Errorf("decode pagination for %s: %w", endpoint, err)
		}
	}

	var results []json.RawMessage
	if raw, ok := envelope[resultsKey]; ok {
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, fmt.Errorf("decode %s results for %s: %w", resultsKey, endpoint, err)
		}
	}

	page := &Page{
		Results:      results,
		TotalResults: pagination.TotalResults,
		NextOffset:   offset,
	}
	if len(results) == 0 {
		return page, nil
	}

	// Never advance by less than the requested page size: some deployments
	// under-fill pages while still reporting the full total, which would
	// otherwise re-fetch overlapping windows forever.
	step := len(results)
	if step < c.cfg.PageSize {
		step = c.cfg.PageSize
	}
	page.NextOffset = offset + step
	page.HasMore = offset+len(results) < pagination.TotalResults
	return page, nil
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.retryWait << attempt
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) transportError(endpoint string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Kind: KindTimeout, Endpoint: endpoint, Err: err}
	}
	return &APIError{Kind: KindServer, Endpoint: endpoint, Err: err}
}
