package forward

import (
	"net/http"

	"github.com/serpdesk/serpdesk/internal/config"
)

// Service names as stored in the credential table.
const (
	ServiceScrapeProxy = "scrapeproxy"
	ServiceIndexCheck  = "indexcheck"
	ServiceIndexer     = "indexer"
)

// ScrapeProxyService wraps the generic web-scraping API: read-only, key as
// the api_key query parameter, target URL passed through in url=.
func ScrapeProxyService(cfg *config.Config) Service {
	return Service{
		Name:           ServiceScrapeProxy,
		BaseURL:        cfg.ScrapeProxyBaseURL,
		AllowedMethods: []string{http.MethodGet},
		KeyTestHeader:  "X-Scrapeproxy-Key-To-Test",
		KeyMode:        KeyModeQuery,
		KeyField:       "api_key",
		FallbackKey:    cfg.ScrapeProxyKey,
	}
}

// IndexCheckService wraps the index-checking API: submission method only, key
// merged into the JSON body.
func IndexCheckService(cfg *config.Config) Service {
	return Service{
		Name:           ServiceIndexCheck,
		BaseURL:        cfg.IndexCheckBaseURL,
		AllowedMethods: []string{http.MethodPost},
		KeyTestHeader:  "X-Indexcheck-Key-To-Test",
		KeyMode:        KeyModeBody,
		KeyField:       "apikey",
		FallbackKey:    cfg.IndexCheckKey,
	}
}

// IndexerService wraps the indexing/checking task API: reads and submissions,
// key sent as the Authorization header.
func IndexerService(cfg *config.Config) Service {
	return Service{
		Name:           ServiceIndexer,
		BaseURL:        cfg.IndexerBaseURL,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		KeyTestHeader:  "X-Indexer-Key-To-Test",
		KeyMode:        KeyModeHeader,
		FallbackKey:    cfg.IndexerKey,
	}
}

// KnownService reports whether name is one of the wrapped services.
func KnownService(name string) bool {
	switch name {
	case ServiceScrapeProxy, ServiceIndexCheck, ServiceIndexer:
		return true
	}
	return false
}
