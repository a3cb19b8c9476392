package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nlindqvist/psarank/internal/metrics"
)

const (
	// DefaultMaxRetries is the default maximum number of retry attempts
	DefaultMaxRetries = 3
	// DefaultBaseRetryDelay is the base delay for exponential backoff
	DefaultBaseRetryDelay = 2 * time.Second
	// DefaultRequestsPerMinute paces requests against one host
	DefaultRequestsPerMinute = 30
	// RateLimitBackoffMultiplier is the multiplier for rate limit backoff (3^n)
	RateLimitBackoffMultiplier = 3

	maxErrorBodyLen = 200
)

// Client issues GET requests with identity rotation, per-host pacing, proxy
// support, and retry with exponential backoff. Timeouts are the caller's
// concern via context deadlines.
type Client struct {
	httpClient        *http.Client
	limiters          *RateLimiterPool
	agents            *agentRing
	collector         *metrics.Collector
	logger            *slog.Logger
	maxRetries        int
	baseRetryDelay    time.Duration
	requestsPerMinute int
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	MaxRetries        int
	BaseRetryDelay    time.Duration
	RequestsPerMinute int
	UserAgents        []string
}

// NewClient creates a transport client. Proxy configuration is taken from
// HTTP_PROXY / HTTPS_PROXY.
func NewClient(logger *slog.Logger, collector *metrics.Collector, opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BaseRetryDelay <= 0 {
		opts.BaseRetryDelay = DefaultBaseRetryDelay
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = DefaultRequestsPerMinute
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = http.ProxyFromEnvironment

	return &Client{
		httpClient:        &http.Client{Transport: t},
		limiters:          NewRateLimiterPool(logger),
		agents:            newAgentRing(opts.UserAgents),
		collector:         collector,
		logger:            logger,
		maxRetries:        opts.MaxRetries,
		baseRetryDelay:    opts.BaseRetryDelay,
		requestsPerMinute: opts.RequestsPerMinute,
	}
}

// Get fetches rawURL and returns the response body. The request is paced by
// the per-host rate limiter and retried with exponential backoff when the
// failure class allows it.
func (c *Client) Get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	host := hostOf(rawURL)

	waitStart := time.Now()
	if err := c.limiters.Wait(ctx, host, c.requestsPerMinute); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	c.collector.RecordRateLimiterWait(host, time.Since(waitStart))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseRetryDelay

			// Rate limit errors get longer delays (3^n: 6s, 18s, 54s)
			var terr *Error
			if errors.As(lastErr, &terr) && terr.Class == ClassRateLimit {
				backoff = time.Duration(math.Pow(RateLimitBackoffMultiplier, float64(attempt))) * c.baseRetryDelay
			}

			jitter := time.Duration(float64(backoff) * 0.1 * (2*float64(time.Now().UnixNano()%100)/100 - 1))
			sleepDuration := backoff + jitter

			if errors.As(lastErr, &terr) {
				c.collector.RecordHTTPRetry(host, string(terr.Class))
			}
			c.logger.Warn("Retrying request",
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"backoff", sleepDuration,
				"url", rawURL)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleepDuration):
			}
		}

		body, err := c.doGet(ctx, rawURL, accept)
		if err == nil {
			return body, nil
		}

		lastErr = err

		var terr *Error
		if !errors.As(err, &terr) || !terr.Retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doGet(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	agent := c.agents.Next()
	req.Header.Set("User-Agent", agent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	c.logger.Debug("HTTP request", "url", rawURL, "user_agent", agent)

	host := hostOf(rawURL)
	start := time.Now()

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.collector.RecordHTTPRequest(host, "error", time.Since(start))
		// Surface cancellation as-is so it is never mistaken for a source failure
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{
			URL:       rawURL,
			Class:     ClassNetwork,
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: true,
			Err:       err,
		}
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	c.collector.RecordHTTPRequest(host, strconv.Itoa(httpResp.StatusCode), time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{
			URL:       rawURL,
			Class:     ClassNetwork,
			Message:   fmt.Sprintf("failed to read response: %v", err),
			Retryable: true,
			Err:       err,
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		class, retryable := classifyStatus(httpResp.StatusCode)
		return nil, &Error{
			URL:        rawURL,
			StatusCode: httpResp.StatusCode,
			Class:      class,
			Message:    snippet(respBody),
			Retryable:  retryable,
		}
	}

	return respBody, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func snippet(body []byte) string {
	if len(body) > maxErrorBodyLen {
		return string(body[:maxErrorBodyLen]) + "..."
	}
	return string(body)
}
