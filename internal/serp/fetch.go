package serp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/fingerprint"
	"github.com/serpdesk/serpdesk/pkg/httpclient"
	"github.com/serpdesk/serpdesk/pkg/useragent"
)

// Fetcher retrieves the raw body of one URL.
type Fetcher interface {
	Fetch(ctx context.Context, target string) ([]byte, error)
}

// ProxyFetcher routes every fetch through the scrape proxy forwarder. The
// target URL travels as the url query parameter; render is forced off since
// metadata extraction only needs server-rendered HTML.
type ProxyFetcher struct {
	BaseURL string // forwarder mount or the scraping API itself
	Token   string // bearer token, when fetching through a forwarder mount
	APIKey  string // api_key parameter, when talking to the scraping API directly
	Client  *httpclient.Client
}

var _ Fetcher = (*ProxyFetcher)(nil)

func NewProxyFetcher(baseURL, token string, client *httpclient.Client) *ProxyFetcher {
	if client == nil {
		client = httpclient.New(httpclient.Config{})
	}
	return &ProxyFetcher{BaseURL: baseURL, Token: token, Client: client}
}

func (f *ProxyFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	q := url.Values{}
	q.Set("url", target)
	q.Set("render", "false")
	if f.APIKey != "" {
		q.Set("api_key", f.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	return readBody(f.Client, ctx, req, "scrapeproxy")
}

// DirectFetcher talks to the target site itself, presenting a browser TLS
// fingerprint and rotating User-Agent strings. Used when no scrape proxy key
// is configured.
type DirectFetcher struct {
	client *httpclient.Client
	pool   *useragent.Pool
}

var _ Fetcher = (*DirectFetcher)(nil)

func NewDirectFetcher(profile fingerprint.Profile, pool *useragent.Pool, timeout time.Duration) (*DirectFetcher, error) {
	transport, err := fingerprint.Transport(profile)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = useragent.NewPool(nil)
	}
	client := httpclient.New(httpclient.Config{
		Timeout:      timeout,
		MaxRedirects: 5,
		Transport:    transport,
	})
	return &DirectFetcher{client: client, pool: pool}, nil
}

func (f *DirectFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.pool.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	return readBody(f.client, ctx, req, "serp")
}

func readBody(client *httpclient.Client, ctx context.Context, req *http.Request, service string) ([]byte, error) {
	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, &apperr.TransportError{Op: "GET " + req.URL.Host, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.TransportError{Op: "read " + req.URL.Host, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.DownstreamError{Service: service, Status: resp.StatusCode, Body: body}
	}
	return body, nil
}
