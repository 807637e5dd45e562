package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/auth"
	"github.com/serpdesk/serpdesk/internal/export"
	"github.com/serpdesk/serpdesk/internal/forward"
	"github.com/serpdesk/serpdesk/internal/indexing"
)

// taskRetention is how long a finished task stays retrievable after it was
// first observed in a terminal state.
const taskRetention = time.Hour

// taskRegistry tracks live task workflows by their remote task ID. Finished
// workflows are kept for taskRetention so their report can still be served,
// then dropped on the next add or get.
type taskRegistry struct {
	mu        sync.Mutex
	retention time.Duration
	clients   map[string]*taskEntry
}

type taskEntry struct {
	client *indexing.Client
	doneAt time.Time // zero until the client is observed terminal
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{retention: taskRetention, clients: make(map[string]*taskEntry)}
}

func (reg *taskRegistry) add(taskID string, c *indexing.Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.sweepLocked(time.Now())
	reg.clients[taskID] = &taskEntry{client: c}
}

func (reg *taskRegistry) get(taskID string) (*indexing.Client, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.sweepLocked(time.Now())
	e, ok := reg.clients[taskID]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// sweepLocked stamps newly terminal clients and drops the ones whose
// retention window has passed. Caller holds mu.
func (reg *taskRegistry) sweepLocked(now time.Time) {
	for taskID, e := range reg.clients {
		if e.doneAt.IsZero() {
			if e.client.State().Terminal() {
				e.doneAt = now
			}
			continue
		}
		if now.Sub(e.doneAt) >= reg.retention {
			e.client.Close()
			delete(reg.clients, taskID)
		}
	}
}

func (reg *taskRegistry) closeAll() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, e := range reg.clients {
		e.client.Close()
	}
	reg.clients = make(map[string]*taskEntry)
}

type createTaskRequest struct {
	URLs      []string `json:"urls"`
	Kind      string   `json:"kind"`
	Engine    string   `json:"engine"`
	Title     string   `json:"title"`
	ProjectID string   `json:"project_id"`
}

type taskResponse struct {
	TaskID string           `json:"task_id"`
	State  string           `json:"state"`
	Report *indexing.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func parseKind(raw string) (indexing.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "checker", "":
		return indexing.KindChecker, nil
	case "indexer":
		return indexing.KindIndexer, nil
	}
	return "", apperr.Validation(fmt.Sprintf("unknown task kind %q", raw))
}

func parseEngine(raw string) (indexing.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "google", "":
		return indexing.EngineGoogle, nil
	case "yandex":
		return indexing.EngineYandex, nil
	}
	return "", apperr.Validation(fmt.Sprintf("unknown engine %q", raw))
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	kind, err := parseKind(req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	engine, err := parseEngine(req.Engine)
	if err != nil {
		writeError(w, err)
		return
	}

	key := s.serviceKey(r.Context(), userID, forward.ServiceIndexer)
	if key == "" {
		writeError(w, fmt.Errorf("%w for service %s", apperr.ErrCredentialNotFound, forward.ServiceIndexer))
		return
	}

	api := indexing.NewHTTPAPI(s.cfg.IndexerBaseURL, key, s.client)
	client := indexing.NewClient(api,
		indexing.WithPollInterval(s.cfg.PollInterval),
		indexing.WithStore(s.store),
		indexing.WithLogger(s.logger),
	)

	if err := client.Submit(r.Context(), req.URLs, kind, engine, req.Title, req.ProjectID); err != nil {
		client.Close()
		writeError(w, err)
		return
	}

	s.tasks.add(client.TaskID(), client)
	writeJSON(w, http.StatusAccepted, taskResponse{
		TaskID: client.TaskID(),
		State:  string(client.State()),
	})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	client, ok := s.tasks.get(r.PathValue("id"))
	if !ok {
		writeError(w, apperr.ErrNotFound)
		return
	}

	resp := taskResponse{
		TaskID: client.TaskID(),
		State:  string(client.State()),
		Report: client.Report(),
	}
	if err := client.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTaskSummary renders the aggregated report of a completed check task,
// as JSON or as text depending on the Accept header.
func (s *Server) handleTaskSummary(w http.ResponseWriter, r *http.Request) {
	client, ok := s.tasks.get(r.PathValue("id"))
	if !ok {
		writeError(w, apperr.ErrNotFound)
		return
	}

	report := client.Report()
	if report == nil {
		writeError(w, apperr.Validation("task has no report yet"))
		return
	}

	summary := export.SummarizeReport(report)
	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := export.WriteReportText(w, summary); err != nil {
			s.logger.Error("render report summary", "err", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
