// Package httpc provides a per-host HTTP session pool for the runtime's
// REST calls (trade adapter order submission, market adapter snapshot
// fetches). Sessions are resty clients, created lazily and cached by
// netloc (scheme://host[:port]) so TCP connections are reused across
// calls to the same exchange.
//
// Fetch itself never retries — retry policy is the caller's decision, not
// the pool's. A caller that wants it calls EnableRetry once during setup,
// which turns on resty's own retry-on-5xx for that host's cached client.
package httpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Pool caches one resty.Client per host.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*resty.Client
	proxy   string
}

// New creates an empty pool. proxy, if non-empty, is applied to every
// session created by the pool (spec's PROXY config key).
func New(proxy string) *Pool {
	return &Pool{
		clients: make(map[string]*resty.Client),
		proxy:   proxy,
	}
}

func (p *Pool) clientFor(rawURL string) (*resty.Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	netloc := u.Scheme + "://" + u.Host

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[netloc]; ok {
		return c, nil
	}

	c := resty.New().SetBaseURL(netloc)
	if p.proxy != "" {
		c.SetProxy(p.proxy)
	}
	p.clients[netloc] = c
	return c, nil
}

// EnableRetry turns on bounded retry-on-5xx for the cached client serving
// rawURL's host: up to 3 retries, 500ms-5s backoff, retrying on transport errors
// or a 5xx response. Callers that need resilient REST calls (order
// placement, account snapshots) opt in once during setup; Fetch itself
// stays retry-free for everyone else.
func (p *Pool) EnableRetry(rawURL string) error {
	c, err := p.clientFor(rawURL)
	if err != nil {
		return err
	}
	c.SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError
		})
	return nil
}

// Fetch issues an HTTP request and returns (status, parsed body, error).
// Parsing prefers structured JSON decode into a map; on decode failure it
// logs a warning and returns the raw response text instead of erroring. An HTTP status
// outside 200-206 is reported as (code, nil, error-with-body-text).
// Transport failures are reported as (0, nil, error).
func (p *Pool) Fetch(ctx context.Context, method, rawURL string, params map[string]string, body any, headers map[string]string, timeout time.Duration) (int, any, error) {
	client, err := p.clientFor(rawURL)
	if err != nil {
		return 0, nil, err
	}

	req := client.R().SetContext(ctx)
	if timeout > 0 {
		req.SetContext(ctx)
		client.SetTimeout(timeout)
	}
	if len(params) > 0 {
		req.SetQueryParams(params)
	}
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, rawURL)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}

	status := resp.StatusCode()
	if status < http.StatusOK || status > 206 {
		return status, nil, fmt.Errorf("%s %s: status %d: %s", method, rawURL, status, resp.String())
	}

	var parsed any
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		slog.Warn("response body is not JSON, returning raw text", "method", method, "url", rawURL, "error", err)
		return status, resp.String(), nil
	}
	return status, parsed, nil
}
