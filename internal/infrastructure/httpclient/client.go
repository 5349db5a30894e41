package httpclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent on every request unless overridden.
const DefaultUserAgent = "DeskShell/1.0"

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Retries is the number of resty retries after a failed attempt.
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RateLimit caps requests per second. Zero means unlimited.
	RateLimit float64
	UserAgent string
	Headers   map[string]string
}

// Client wraps resty with a retryable transport and a rate limiter.
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	mu      sync.RWMutex
}

// New creates a client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 200 * time.Millisecond
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = 2 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	restyClient := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.RetryWaitMin).
		SetRetryMaxWaitTime(opts.RetryWaitMax).
		SetHeader("User-Agent", opts.UserAgent).
		SetTransport(retryClient.HTTPClient.Transport)

	if opts.BaseURL != "" {
		restyClient.SetBaseURL(opts.BaseURL)
	}
	for k, v := range opts.Headers {
		restyClient.SetHeader(k, v)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		Resty:   restyClient,
		Limiter: limiter,
	}
}

// SetHeader adds a default header.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Resty.SetHeader(key, value)
}

// Request waits for the rate limiter and returns a request bound to ctx.
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Resty.R().SetContext(ctx), nil
}

// Probe issues a GET to url and reports an error unless the response is 2xx.
func (c *Client) Probe(ctx context.Context, url string) error {
	req, err := c.Request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.Get(url)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("GET %s: %s", url, resp.Status())
	}
	return nil
}
