package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/auth"
	"github.com/serpdesk/serpdesk/internal/export"
	"github.com/serpdesk/serpdesk/internal/serp"
	"github.com/serpdesk/serpdesk/internal/storage"
)

type createProjectRequest struct {
	Name string `json:"name"`
}

type projectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, apperr.Validation("name is required"))
		return
	}

	project := &storage.Project{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateProject(r.Context(), project); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, projectResponse{
		ID: project.ID, Name: project.Name, CreatedAt: project.CreatedAt,
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	projects, err := s.store.ListProjects(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectResponse{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (s *Server) handleProjectTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleProjectScrapes(w http.ResponseWriter, r *http.Request) {
	scrapes, err := s.store.ListScrapes(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	type scrapeListEntry struct {
		ID        string    `json:"id"`
		Query     string    `json:"query"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]scrapeListEntry, 0, len(scrapes))
	for _, sc := range scrapes {
		out = append(out, scrapeListEntry{ID: sc.ID, Query: sc.Query, CreatedAt: sc.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"scrapes": out})
}

// latestScrape returns the newest stored scrape of a project, decoded.
func (s *Server) latestScrape(r *http.Request) (*storage.ScrapeRecord, *serp.Result, error) {
	scrapes, err := s.store.ListScrapes(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, nil, err
	}
	if len(scrapes) == 0 {
		return nil, nil, apperr.ErrNotFound
	}

	latest := scrapes[0]
	for _, sc := range scrapes[1:] {
		if sc.CreatedAt.After(latest.CreatedAt) {
			latest = sc
		}
	}

	var result serp.Result
	if err := json.Unmarshal(latest.Results, &result); err != nil {
		return nil, nil, err
	}
	return latest, &result, nil
}

// handleExportScrape streams the newest stored scrape of a project as a
// downloadable JSON file.
func (s *Server) handleExportScrape(w http.ResponseWriter, r *http.Request) {
	latest, result, err := s.latestScrape(r)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		`attachment; filename="`+export.Filename(latest.Query, latest.CreatedAt)+`"`)
	w.WriteHeader(http.StatusOK)
	if err := export.WriteJSON(w, result); err != nil {
		s.logger.Error("render scrape export", "err", err)
	}
}

// handleScrapeSummary renders the aggregated view of a project's newest
// scrape, as JSON or as text depending on the Accept header.
func (s *Server) handleScrapeSummary(w http.ResponseWriter, r *http.Request) {
	_, result, err := s.latestScrape(r)
	if err != nil {
		writeError(w, err)
		return
	}

	summary := export.SummarizeScrape(result)
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := export.WriteScrapeText(w, summary); err != nil {
			s.logger.Error("render scrape summary", "err", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
