package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/auth"
	"github.com/serpdesk/serpdesk/internal/forward"
	"github.com/serpdesk/serpdesk/internal/storage"
)

type putKeyRequest struct {
	APIKey string `json:"api_key"`
}

// handlePutKey validates the submitted key with a live probe before storing
// it. The probe rides through the forwarder with the key-under-test header, so
// the key follows the exact path real traffic will take and is never persisted
// on failure.
func (s *Server) handlePutKey(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	service := r.PathValue("service")
	if !forward.KnownService(service) {
		writeError(w, apperr.Validation(fmt.Sprintf("unknown service %q", service)))
		return
	}

	var req putKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.APIKey == "" {
		writeError(w, apperr.Validation("api_key is required"))
		return
	}

	if err := s.probeKey(r.Context(), userID, service, req.APIKey); err != nil {
		writeError(w, err)
		return
	}

	cred := &storage.Credential{
		UserID:    userID,
		Service:   service,
		APIKey:    req.APIKey,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.UpsertCredential(r.Context(), cred); err != nil {
		writeError(w, fmt.Errorf("store credential: %w", err))
		return
	}

	s.logger.Info("credential stored", "user_id", userID, "service", service)
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "service": service})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	service := r.PathValue("service")
	if !forward.KnownService(service) {
		writeError(w, apperr.Validation(fmt.Sprintf("unknown service %q", service)))
		return
	}

	if err := s.store.DeleteCredential(r.Context(), userID, service); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "service": service})
}

// probeRecorder captures only the response status of an in-process probe.
type probeRecorder struct {
	header http.Header
	status int
}

func newProbeRecorder() *probeRecorder {
	return &probeRecorder{header: make(http.Header), status: http.StatusOK}
}

func (p *probeRecorder) Header() http.Header         { return p.header }
func (p *probeRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (p *probeRecorder) WriteHeader(status int)      { p.status = status }

func (s *Server) probeKey(ctx context.Context, userID, service, key string) error {
	var (
		fwd    *forward.Forwarder
		svc    forward.Service
		method = http.MethodGet
		path   string
		body   io.Reader
	)

	switch service {
	case forward.ServiceScrapeProxy:
		fwd, svc, path = s.scrapeProxy, forward.ScrapeProxyService(s.cfg), "/account"
	case forward.ServiceIndexer:
		fwd, svc, path = s.indexer, forward.IndexerService(s.cfg), "/v2/account"
	case forward.ServiceIndexCheck:
		fwd, svc, path = s.indexCheck, forward.IndexCheckService(s.cfg), "/account"
		method = http.MethodPost
		body = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequestWithContext(auth.WithUserID(ctx, userID), method, "http://probe"+path, body)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set(svc.KeyTestHeader, key)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := newProbeRecorder()
	fwd.ServeHTTP(rec, req)

	if rec.status < 200 || rec.status > 299 {
		return apperr.Validation(fmt.Sprintf("api key rejected by %s (status %d)", service, rec.status))
	}
	return nil
}
