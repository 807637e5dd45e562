package server

import (
	"net/http"

	"github.com/serpdesk/serpdesk/internal/auth"
	"github.com/serpdesk/serpdesk/internal/fingerprint"
	"github.com/serpdesk/serpdesk/internal/forward"
	"github.com/serpdesk/serpdesk/internal/serp"
	"github.com/serpdesk/serpdesk/pkg/ratelimit"
	"github.com/serpdesk/serpdesk/pkg/useragent"
)

type scrapeRequest struct {
	Query       string `json:"query"`
	CountryCode string `json:"country_code"`
	TLD         string `json:"tld"`
	Language    string `json:"language"`
	ProjectID   string `json:"project_id"`
}

// handleScrape runs one SERP scrape synchronously. Fetches ride the scraping
// proxy when the caller has a key for it, otherwise they go out directly with
// a browser TLS fingerprint.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req scrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	fetcher, err := s.fetcherFor(userID, r)
	if err != nil {
		writeError(w, err)
		return
	}

	engine := serp.New(fetcher,
		serp.WithLimiter(ratelimit.New(s.cfg.PageFetchInterval, s.cfg.PageFetchJitter)),
		serp.WithStore(s.store),
		serp.WithLogger(s.logger),
	)

	params := serp.Params{
		Query:       req.Query,
		CountryCode: req.CountryCode,
		TLD:         req.TLD,
		Language:    req.Language,
	}
	result, err := engine.Scrape(r.Context(), params, req.ProjectID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) fetcherFor(userID string, r *http.Request) (serp.Fetcher, error) {
	if key := s.serviceKey(r.Context(), userID, forward.ServiceScrapeProxy); key != "" {
		return &serp.ProxyFetcher{
			BaseURL: s.cfg.ScrapeProxyBaseURL,
			APIKey:  key,
			Client:  s.client,
		}, nil
	}
	return serp.NewDirectFetcher(
		fingerprint.Profile(s.cfg.FingerprintProfile),
		useragent.NewPool(nil),
		s.cfg.DownstreamTimeout,
	)
}
