package serp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/storage/memory"
	"github.com/serpdesk/serpdesk/pkg/ratelimit"
)

// fakeFetcher serves canned bodies per URL and records fetch order.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	visits []string
}

func (f *fakeFetcher) Fetch(_ context.Context, target string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visits = append(f.visits, target)
	if err, ok := f.errs[target]; ok {
		return nil, err
	}
	body, ok := f.pages[target]
	if !ok {
		return nil, &apperr.DownstreamError{Service: "serp", Status: 404}
	}
	return []byte(body), nil
}

func page(title, desc string, headings ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title>")
	if desc != "" {
		b.WriteString(`<meta name="description" content="` + desc + `">`)
	}
	b.WriteString("</head><body>")
	for _, h := range headings {
		b.WriteString("<h2>" + h + "</h2>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func anchor(href string) string {
	return `<div class="yuRUbf"><a href="` + href + `"><h3>r</h3></a></div>`
}

func testParams() Params {
	return Params{Query: "best coffee", CountryCode: "us", TLD: "com", Language: "en"}
}

func newTestEngine(f Fetcher, opts ...Option) *Engine {
	opts = append([]Option{WithLimiter(ratelimit.New(time.Millisecond, 0))}, opts...)
	return New(f, opts...)
}

func TestScrape_TruncatesAndExcludesSearchEngineHosts(t *testing.T) {
	var serpHTML strings.Builder
	serpHTML.WriteString("<html><body>")
	for i := 1; i <= 11; i++ {
		serpHTML.WriteString(anchor(fmt.Sprintf("https://site-%d.test/page", i)))
	}
	serpHTML.WriteString(anchor("https://www.google.com/search?q=x"))
	serpHTML.WriteString(anchor("https://www.youtube.com/watch?v=x"))
	serpHTML.WriteString(anchor("https://site-1.test/page")) // duplicate
	serpHTML.WriteString("</body></html>")

	params := testParams()
	fetcher := &fakeFetcher{pages: map[string]string{params.SearchURL(): serpHTML.String()}}
	for i := 1; i <= 11; i++ {
		u := fmt.Sprintf("https://site-%d.test/page", i)
		fetcher.pages[u] = page(fmt.Sprintf("Site %d", i), "desc")
	}

	result, err := newTestEngine(fetcher).Scrape(context.Background(), params, "")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}

	if len(result.Organic) != MaxResults {
		t.Fatalf("expected %d results, got %d", MaxResults, len(result.Organic))
	}
	for _, entry := range result.Organic {
		if strings.Contains(entry.URL, "google.") || strings.Contains(entry.URL, "youtube.com") {
			t.Errorf("search engine host leaked into results: %s", entry.URL)
		}
	}
	if result.Organic[0].URL != "https://site-1.test/page" {
		t.Errorf("expected first link first, got %s", result.Organic[0].URL)
	}
	if result.Organic[0].Position != 1 || result.Organic[9].Position != 10 {
		t.Errorf("positions not sequential: %d, %d", result.Organic[0].Position, result.Organic[9].Position)
	}
}

func TestScrape_SelectorFallbackChain(t *testing.T) {
	// No yuRUbf or div.g markup; only the bare h3 strategy matches.
	serpHTML := `<html><body><h3><a href="https://fallback.test/">r</a></h3></body></html>`

	params := testParams()
	fetcher := &fakeFetcher{pages: map[string]string{
		params.SearchURL():       serpHTML,
		"https://fallback.test/": page("Fallback", ""),
	}}

	result, err := newTestEngine(fetcher).Scrape(context.Background(), params, "")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if len(result.Organic) != 1 || result.Organic[0].Title != "Fallback" {
		t.Fatalf("unexpected results %+v", result.Organic)
	}
}

func TestScrape_EmptyResultPageIsAnError(t *testing.T) {
	// No selector strategy matches anything on this page.
	serpHTML := `<html><body><div id="consent">Before you continue</div></body></html>`

	params := testParams()
	fetcher := &fakeFetcher{pages: map[string]string{params.SearchURL(): serpHTML}}

	result, err := newTestEngine(fetcher).Scrape(context.Background(), params, "")
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("expected ErrNoResults, got result=%v err=%v", result, err)
	}
	if len(fetcher.visits) != 1 {
		t.Fatalf("expected only the result page fetch, got visits %v", fetcher.visits)
	}
}

func TestScrape_PageFailureYieldsPlaceholder(t *testing.T) {
	serpHTML := anchor("https://ok.test/") + anchor("https://broken.test/") + anchor("https://ok2.test/")

	params := testParams()
	fetcher := &fakeFetcher{
		pages: map[string]string{
			params.SearchURL(): serpHTML,
			"https://ok.test/":  page("OK", "fine"),
			"https://ok2.test/": page("OK2", "fine"),
		},
		errs: map[string]error{
			"https://broken.test/": &apperr.DownstreamError{Service: "serp", Status: 500},
		},
	}

	result, err := newTestEngine(fetcher).Scrape(context.Background(), params, "")
	if err != nil {
		t.Fatalf("scrape must survive a single page failure: %v", err)
	}
	if len(result.Organic) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(result.Organic))
	}

	broken := result.Organic[1]
	if broken.URL != "https://broken.test/" {
		t.Fatalf("expected placeholder in position 2, got %+v", broken)
	}
	if broken.Title != placeholderTitle || broken.FetchError == "" {
		t.Errorf("expected placeholder entry, got %+v", broken)
	}
	if result.Organic[0].Title != "OK" || result.Organic[2].Title != "OK2" {
		t.Errorf("neighbouring pages affected: %+v", result.Organic)
	}
}

func TestScrape_EnrichmentIsSequential(t *testing.T) {
	serpHTML := anchor("https://a.test/") + anchor("https://b.test/")

	params := testParams()
	fetcher := &fakeFetcher{pages: map[string]string{
		params.SearchURL(): serpHTML,
		"https://a.test/":  page("A", ""),
		"https://b.test/":  page("B", ""),
	}}

	if _, err := newTestEngine(fetcher).Scrape(context.Background(), params, ""); err != nil {
		t.Fatalf("scrape: %v", err)
	}

	want := []string{params.SearchURL(), "https://a.test/", "https://b.test/"}
	if len(fetcher.visits) != len(want) {
		t.Fatalf("expected visits %v, got %v", want, fetcher.visits)
	}
	for i := range want {
		if fetcher.visits[i] != want[i] {
			t.Errorf("visit %d: got %s, want %s", i, fetcher.visits[i], want[i])
		}
	}
}

func TestScrape_PersistsToProject(t *testing.T) {
	serpHTML := anchor("https://a.test/")
	params := testParams()
	fetcher := &fakeFetcher{pages: map[string]string{
		params.SearchURL(): serpHTML,
		"https://a.test/":  page("A", ""),
	}}

	store := memory.New()
	result, err := newTestEngine(fetcher, WithStore(store)).Scrape(context.Background(), params, "proj-1")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}

	scrapes, err := store.ListScrapes(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("list scrapes: %v", err)
	}
	if len(scrapes) != 1 {
		t.Fatalf("expected 1 persisted scrape, got %d", len(scrapes))
	}
	if scrapes[0].ID != result.ID || scrapes[0].Query != "best coffee" {
		t.Errorf("unexpected record %+v", scrapes[0])
	}
}

func TestScrape_ValidationCollectsAllBlanks(t *testing.T) {
	fetcher := &fakeFetcher{}
	_, err := newTestEngine(fetcher).Scrape(context.Background(), Params{}, "")

	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(ve.Messages) != 4 {
		t.Errorf("expected all 4 blank fields reported, got %v", ve.Messages)
	}
	if len(fetcher.visits) != 0 {
		t.Errorf("expected zero fetches, got %v", fetcher.visits)
	}
}

func TestSearchURL(t *testing.T) {
	p := Params{Query: "coffee shops near me", CountryCode: "de", TLD: "de", Language: "de"}
	got := p.SearchURL()
	want := "https://www.google.de/search?q=coffee+shops+near+me&hl=de&gl=de"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPageMetadata_HeadingsInDocumentOrder(t *testing.T) {
	html := `<html><head><title> Shop </title>
<meta name="description" content="Best beans in town"></head>
<body><h1>Welcome</h1><h3>Menu</h3><h2>Hours</h2><h2>  </h2></body></html>`

	meta, err := pageMetadata([]byte(html))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.title != "Shop" {
		t.Errorf("title: got %q", meta.title)
	}
	if meta.description != "Best beans in town" {
		t.Errorf("description: got %q", meta.description)
	}
	want := []Heading{{Tag: "h1", Text: "Welcome"}, {Tag: "h3", Text: "Menu"}, {Tag: "h2", Text: "Hours"}}
	if len(meta.headings) != len(want) {
		t.Fatalf("headings: got %v, want %v", meta.headings, want)
	}
	for i := range want {
		if meta.headings[i] != want[i] {
			t.Errorf("heading %d: got %+v, want %+v", i, meta.headings[i], want[i])
		}
	}
}
