package execution

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"unifeed/internal/infra"
)

// ErrCircuitOpen is returned while the endpoint's circuit breaker rejects
// requests.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Client is a thin REST client shared by the adapters. It applies the rate
// limiter before each request and routes outcomes through the circuit
// breaker; signing and URL construction stay with the caller.
type Client struct {
	http    *resty.Client
	limiter *infra.RateLimiter
	breaker *infra.CircuitBreaker
}

// NewClient creates a client for one REST base URL. limiter and breaker may
// be nil to disable either mechanism.
func NewClient(baseURL string, limiter *infra.RateLimiter, breaker *infra.CircuitBreaker) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)

	return &Client{
		http:    http,
		limiter: limiter,
		breaker: breaker,
	}
}

// Get performs a GET and unmarshals the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	_, err := c.Do(ctx, "GET", path, query, nil, nil, out)
	return err
}

// Do performs one request. headers may carry auth material; body, when
// non-nil, is sent as JSON. The raw response body is returned alongside any
// decode into out.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, headers map[string]string, body any, out any) ([]byte, error) {
	if c.limiter != nil {
		c.limiter.Wait()
	}
	if c.breaker != nil && !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if headers != nil {
		req.SetHeaders(headers)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		// Some venues mislabel JSON responses, decode regardless.
		req.SetResult(out).ForceContentType("application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.recordFailure()
		return nil, err
	}
	if resp.IsError() {
		c.recordFailure()
		return resp.Body(), fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode(), resp.String())
	}

	c.recordSuccess()
	return resp.Body(), nil
}

func (c *Client) recordFailure() {
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
}

func (c *Client) recordSuccess() {
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
}
