// Package httpclient wraps http.Client with the knobs the forwarders and the
// scrape engine need: a hard timeout, a redirect cap, and a pluggable
// transport (e.g. a uTLS fingerprint transport for direct fetches).
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Config defines the setup for the HTTP client.
type Config struct {
	// Timeout bounds the whole request, including body read. Zero means the
	// 60s default; a hung downstream call never blocks a caller forever.
	Timeout time.Duration
	// MaxRedirects caps redirect following. Negative disables redirects.
	MaxRedirects int
	// Transport overrides the default transport, e.g. for TLS fingerprinting.
	Transport http.RoundTripper
}

// Client is a thin wrapper over http.Client.
type Client struct {
	*http.Client
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	c := &http.Client{Timeout: cfg.Timeout}

	if cfg.MaxRedirects >= 0 {
		maxRedirects := cfg.MaxRedirects
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c}
}

// Do executes req under ctx. The context controls cancellation independently
// of the client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: nil context")
	}

	resp, err := c.Client.Do(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}
