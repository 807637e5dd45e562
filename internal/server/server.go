// Package server wires the HTTP surface: the three proxy forwarder mounts,
// credential management, projects, index tasks and scrape runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/auth"
	"github.com/serpdesk/serpdesk/internal/config"
	"github.com/serpdesk/serpdesk/internal/forward"
	"github.com/serpdesk/serpdesk/internal/storage"
	"github.com/serpdesk/serpdesk/pkg/httpclient"
)

// Server holds the shared dependencies of every handler.
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	client *httpclient.Client

	scrapeProxy *forward.Forwarder
	indexCheck  *forward.Forwarder
	indexer     *forward.Forwarder

	tasks *taskRegistry
}

// New builds a Server and its forwarders.
func New(cfg *config.Config, store storage.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	client := httpclient.New(httpclient.Config{Timeout: cfg.DownstreamTimeout})

	return &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		client: client,

		scrapeProxy: forward.New(forward.ScrapeProxyService(cfg), store, client, logger),
		indexCheck:  forward.New(forward.IndexCheckService(cfg), store, client, logger),
		indexer:     forward.New(forward.IndexerService(cfg), store, client, logger),

		tasks: newTaskRegistry(),
	}
}

// Router assembles the mux. Everything under /api except the health check
// requires a bearer token.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	authed := auth.Middleware([]byte(s.cfg.AuthSecret))

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.Handle("/api/scrape-proxy/", authed(http.StripPrefix("/api/scrape-proxy", s.scrapeProxy)))
	mux.Handle("/api/indexcheck-proxy/", authed(http.StripPrefix("/api/indexcheck-proxy", s.indexCheck)))
	mux.Handle("/api/indexer-proxy/", authed(http.StripPrefix("/api/indexer-proxy", s.indexer)))

	mux.Handle("PUT /api/keys/{service}", authed(http.HandlerFunc(s.handlePutKey)))
	mux.Handle("DELETE /api/keys/{service}", authed(http.HandlerFunc(s.handleDeleteKey)))

	mux.Handle("POST /api/projects", authed(http.HandlerFunc(s.handleCreateProject)))
	mux.Handle("GET /api/projects", authed(http.HandlerFunc(s.handleListProjects)))
	mux.Handle("GET /api/projects/{id}/tasks", authed(http.HandlerFunc(s.handleProjectTasks)))
	mux.Handle("GET /api/projects/{id}/scrapes", authed(http.HandlerFunc(s.handleProjectScrapes)))
	mux.Handle("GET /api/projects/{id}/scrapes/latest/export", authed(http.HandlerFunc(s.handleExportScrape)))
	mux.Handle("GET /api/projects/{id}/scrapes/latest/summary", authed(http.HandlerFunc(s.handleScrapeSummary)))

	mux.Handle("POST /api/tasks", authed(http.HandlerFunc(s.handleCreateTask)))
	mux.Handle("GET /api/tasks/{id}", authed(http.HandlerFunc(s.handleTaskStatus)))
	mux.Handle("GET /api/tasks/{id}/summary", authed(http.HandlerFunc(s.handleTaskSummary)))

	mux.Handle("POST /api/scrape", authed(http.HandlerFunc(s.handleScrape)))

	var handler http.Handler = mux
	handler = metricsMiddleware(handler)
	handler = loggingMiddleware(s.logger, handler)
	return handler
}

// Close cancels every live task workflow.
func (s *Server) Close() {
	s.tasks.closeAll()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serviceKey resolves a stored credential for (userID, service), falling back
// to the configured process-wide key. Empty when neither exists.
func (s *Server) serviceKey(ctx context.Context, userID, service string) string {
	if cred, err := s.store.GetCredential(ctx, userID, service); err == nil {
		return cred.APIKey
	}
	switch service {
	case forward.ServiceScrapeProxy:
		return s.cfg.ScrapeProxyKey
	case forward.ServiceIndexCheck:
		return s.cfg.IndexCheckKey
	case forward.ServiceIndexer:
		return s.cfg.IndexerKey
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var de *apperr.DownstreamError
	if errors.As(err, &de) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(de.Status)
		_, _ = w.Write(de.Body)
		return
	}
	writeJSON(w, apperr.HTTPStatus(err), map[string]string{
		"error": err.Error(),
		"code":  apperr.Code(err),
	})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("request body is not valid JSON")
	}
	return nil
}
