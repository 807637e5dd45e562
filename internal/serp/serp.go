// Package serp fetches Google result pages, extracts the organic links and
// enriches each linked page with its on-page metadata.
package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/metrics"
	"github.com/serpdesk/serpdesk/internal/storage"
	"github.com/serpdesk/serpdesk/pkg/ratelimit"
)

// MaxResults caps the organic links taken from one result page.
const MaxResults = 10

// ErrNoResults is returned when every selector strategy comes back empty. An
// empty result page is surfaced to the caller, never reported as a successful
// zero-entry scrape.
var ErrNoResults = fmt.Errorf("%w: no organic results in the result page", apperr.ErrNotFound)

// Params selects the Google property and locale for one scrape.
type Params struct {
	Query       string `json:"query"`
	CountryCode string `json:"country_code"`
	TLD         string `json:"tld"`
	Language    string `json:"language"`
}

// Validate reports every blank field at once.
func (p *Params) Validate() error {
	var msgs []string
	if strings.TrimSpace(p.Query) == "" {
		msgs = append(msgs, "query is required")
	}
	if strings.TrimSpace(p.CountryCode) == "" {
		msgs = append(msgs, "country code is required")
	}
	if strings.TrimSpace(p.TLD) == "" {
		msgs = append(msgs, "tld is required")
	}
	if strings.TrimSpace(p.Language) == "" {
		msgs = append(msgs, "language is required")
	}
	if len(msgs) > 0 {
		return &apperr.ValidationError{Messages: msgs}
	}
	return nil
}

// SearchURL builds the Google search URL for the selected TLD and locale.
func (p *Params) SearchURL() string {
	return fmt.Sprintf("https://www.google.%s/search?q=%s&hl=%s&gl=%s",
		strings.TrimSpace(p.TLD),
		url.QueryEscape(strings.TrimSpace(p.Query)),
		url.QueryEscape(strings.TrimSpace(p.Language)),
		url.QueryEscape(strings.TrimSpace(p.CountryCode)))
}

// Heading is one h1..h6 element of an enriched page, in document order.
type Heading struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// OrganicResult is one organic link plus the metadata scraped from the linked
// page. FetchError is set, and the text fields carry placeholders, when the
// page could not be retrieved.
type OrganicResult struct {
	Position    int       `json:"position"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Headings    []Heading `json:"headings,omitempty"`
	FetchError  string    `json:"fetch_error,omitempty"`
}

// Result is one completed scrape.
type Result struct {
	ID        string          `json:"id"`
	Query     string          `json:"query"`
	Params    Params          `json:"params"`
	Timestamp time.Time       `json:"timestamp"`
	Organic   []OrganicResult `json:"organic"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimiter sets the pacing between page enrichment fetches.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithStore enables best-effort persistence of scrape results.
func WithStore(store storage.Store) Option {
	return func(e *Engine) { e.store = store }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine runs scrapes through a Fetcher. Page enrichment is sequential and
// paced by the limiter.
type Engine struct {
	fetcher Fetcher
	limiter *ratelimit.Limiter
	store   storage.Store
	logger  *slog.Logger
}

func New(fetcher Fetcher, opts ...Option) *Engine {
	e := &Engine{
		fetcher: fetcher,
		limiter: ratelimit.New(time.Second, 0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scrape fetches the result page for p, extracts up to MaxResults organic
// links and visits each linked page in order. A page that cannot be fetched
// yields a placeholder entry so the result count always matches the link
// count. When projectID is set and a store is configured the result is
// persisted after the scrape; persistence failure is logged, never returned.
func (e *Engine) Scrape(ctx context.Context, p Params, projectID string) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	target := p.SearchURL()

	html, err := e.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch result page: %w", err)
	}

	links, err := organicLinks(html, MaxResults)
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}

	result := &Result{
		ID:        uuid.NewString(),
		Query:     p.Query,
		Params:    p,
		Timestamp: time.Now().UTC(),
		Organic:   make([]OrganicResult, 0, len(links)),
	}

	for i, link := range links {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		entry := e.visitPage(ctx, link)
		entry.Position = i + 1
		result.Organic = append(result.Organic, entry)
	}

	metrics.ScrapeDuration.Observe(time.Since(started).Seconds())
	e.logger.Info("scrape finished",
		"query", p.Query, "links", len(links), "duration", time.Since(started))

	if projectID != "" && e.store != nil {
		e.persist(ctx, projectID, result)
	}
	return result, nil
}

const (
	placeholderTitle       = "Error fetching page"
	placeholderDescription = "Page content could not be retrieved"
)

func (e *Engine) visitPage(ctx context.Context, link string) OrganicResult {
	html, err := e.fetcher.Fetch(ctx, link)
	if err != nil {
		metrics.PagesScrapedTotal.WithLabelValues("error").Inc()
		e.logger.Warn("page fetch failed", "url", link, "error", err)
		return OrganicResult{
			URL:         link,
			Title:       placeholderTitle,
			Description: placeholderDescription,
			FetchError:  err.Error(),
		}
	}

	meta, err := pageMetadata(html)
	if err != nil {
		metrics.PagesScrapedTotal.WithLabelValues("error").Inc()
		return OrganicResult{
			URL:         link,
			Title:       placeholderTitle,
			Description: placeholderDescription,
			FetchError:  err.Error(),
		}
	}

	metrics.PagesScrapedTotal.WithLabelValues("ok").Inc()
	return OrganicResult{
		URL:         link,
		Title:       meta.title,
		Description: meta.description,
		Headings:    meta.headings,
	}
}

func (e *Engine) persist(ctx context.Context, projectID string, result *Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		e.logger.Warn("encode scrape result", "error", err)
		return
	}
	rec := &storage.ScrapeRecord{
		ID:        result.ID,
		ProjectID: projectID,
		Query:     result.Query,
		Results:   payload,
		CreatedAt: result.Timestamp,
	}
	if err := e.store.SaveScrape(ctx, rec); err != nil {
		e.logger.Warn("persist scrape result", "project_id", projectID, "error", err)
	}
}
