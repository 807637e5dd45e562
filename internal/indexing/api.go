// Package indexing implements the index-task workflow against the wrapped
// indexing service: submit a URL batch, poll for completion, retrieve the
// report. The wire types mirror the service's JSON envelope; every response
// carries a numeric code where zero means success.
package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/pkg/httpclient"
)

// Engine is the target search index.
type Engine string

const (
	EngineGoogle Engine = "google"
	EngineYandex Engine = "yandex"
)

// Kind distinguishes indexation checks from indexing submissions.
type Kind string

const (
	KindChecker Kind = "checker"
	KindIndexer Kind = "indexer"
)

// Balance is the remaining quota per task kind.
type Balance struct {
	Indexer int64 `json:"indexer"`
	Checker int64 `json:"checker"`
}

// TaskSummary is one row of the remote task list.
type TaskSummary struct {
	TaskID    string `json:"task_id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// TaskStatus is the per-task answer of a status poll.
type TaskStatus struct {
	TaskID      string `json:"task_id"`
	IsCompleted bool   `json:"is_completed"`
}

// IndexedLink is a URL the service found in the index.
type IndexedLink struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// UnindexedLink is a URL missing from the index, with the service's numeric
// error code.
type UnindexedLink struct {
	URL       string `json:"url"`
	ErrorCode int    `json:"error_code"`
}

// Report is the full result of a completed check task. Immutable once
// retrieved.
type Report struct {
	ID             string          `json:"id"`
	Size           int             `json:"size"`
	ProcessedCount int             `json:"processed_count"`
	IndexedLinks   []IndexedLink   `json:"indexed_links"`
	UnindexedLinks []UnindexedLink `json:"unindexed_links"`
	Title          string          `json:"title"`
	Type           string          `json:"type"`
	CreatedAt      string          `json:"created_at"`
}

// API is the surface of the wrapped indexing service the task client needs.
type API interface {
	CreateTask(ctx context.Context, engine Engine, kind Kind, urls []string, title string) (string, error)
	TaskStatus(ctx context.Context, engine Engine, kind Kind, taskIDs []string) ([]TaskStatus, error)
	FullReport(ctx context.Context, engine Engine, kind Kind, taskID string) (*Report, error)
	Balance(ctx context.Context) (*Balance, error)
	TaskList(ctx context.Context, engine Engine, page int) ([]TaskSummary, error)
}

// HTTPAPI talks to the service (or its forwarder mount) over HTTP. APIKey is
// sent as the Authorization header.
type HTTPAPI struct {
	BaseURL string
	APIKey  string
	Client  *httpclient.Client
}

var _ API = (*HTTPAPI)(nil)

// NewHTTPAPI builds an HTTPAPI. A nil client gets default settings.
func NewHTTPAPI(baseURL, apiKey string, client *httpclient.Client) *HTTPAPI {
	if client == nil {
		client = httpclient.New(httpclient.Config{})
	}
	return &HTTPAPI{BaseURL: baseURL, APIKey: apiKey, Client: client}
}

type createResponse struct {
	Code   int    `json:"code"`
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
	Error  string `json:"error,omitempty"`
}

type statusResponse struct {
	Code   int          `json:"code"`
	Result []TaskStatus `json:"result"`
	Error  string       `json:"error,omitempty"`
}

type reportResponse struct {
	Code   int     `json:"code"`
	Result *Report `json:"result"`
	Error  string  `json:"error,omitempty"`
}

type accountResponse struct {
	Code    int     `json:"code"`
	Balance Balance `json:"balance"`
	Error   string  `json:"error,omitempty"`
}

type listResponse struct {
	Code  int           `json:"code"`
	Tasks []TaskSummary `json:"tasks"`
	Error string        `json:"error,omitempty"`
}

func (a *HTTPAPI) CreateTask(ctx context.Context, engine Engine, kind Kind, urls []string, title string) (string, error) {
	body := map[string]any{"urls": urls}
	if title != "" {
		body["title"] = title
	}

	var out createResponse
	path := fmt.Sprintf("/v2/task/%s/%s/create", engine, kind)
	if err := a.call(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	if out.Code != 0 || out.TaskID == "" {
		return "", &apperr.DownstreamError{Service: "indexer", Status: http.StatusOK, Body: serviceErrBody(out.Code, out.Error)}
	}
	return out.TaskID, nil
}

func (a *HTTPAPI) TaskStatus(ctx context.Context, engine Engine, kind Kind, taskIDs []string) ([]TaskStatus, error) {
	var out statusResponse
	path := fmt.Sprintf("/v2/task/%s/%s/status", engine, kind)
	if err := a.call(ctx, http.MethodPost, path, map[string]any{"task_ids": taskIDs}, &out); err != nil {
		return nil, err
	}
	if out.Code != 0 {
		return nil, &apperr.DownstreamError{Service: "indexer", Status: http.StatusOK, Body: serviceErrBody(out.Code, out.Error)}
	}
	return out.Result, nil
}

func (a *HTTPAPI) FullReport(ctx context.Context, engine Engine, kind Kind, taskID string) (*Report, error) {
	var out reportResponse
	path := fmt.Sprintf("/v2/task/%s/%s/fullreport", engine, kind)
	if err := a.call(ctx, http.MethodPost, path, map[string]any{"task_id": taskID}, &out); err != nil {
		return nil, err
	}
	if out.Code != 0 || out.Result == nil {
		return nil, &apperr.DownstreamError{Service: "indexer", Status: http.StatusOK, Body: serviceErrBody(out.Code, out.Error)}
	}
	return out.Result, nil
}

func (a *HTTPAPI) Balance(ctx context.Context) (*Balance, error) {
	var out accountResponse
	if err := a.call(ctx, http.MethodGet, "/v2/account", nil, &out); err != nil {
		return nil, err
	}
	if out.Code != 0 {
		return nil, &apperr.DownstreamError{Service: "indexer", Status: http.StatusOK, Body: serviceErrBody(out.Code, out.Error)}
	}
	return &out.Balance, nil
}

func (a *HTTPAPI) TaskList(ctx context.Context, engine Engine, page int) ([]TaskSummary, error) {
	if page < 0 {
		return nil, apperr.Validation("page must be a non-negative integer")
	}

	var out listResponse
	path := fmt.Sprintf("/v2/task/%s/list/%d", engine, page)
	if err := a.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Code != 0 {
		return nil, &apperr.DownstreamError{Service: "indexer", Status: http.StatusOK, Body: serviceErrBody(out.Code, out.Error)}
	}
	return out.Tasks, nil
}

func (a *HTTPAPI) call(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	target, err := url.JoinPath(a.BaseURL, path)
	if err != nil {
		return fmt.Errorf("join url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.APIKey != "" {
		req.Header.Set("Authorization", a.APIKey)
	}

	resp, err := a.Client.Do(ctx, req)
	if err != nil {
		return &apperr.TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperr.TransportError{Op: "read response " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperr.DownstreamError{Service: "indexer", Status: resp.StatusCode, Body: raw}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &apperr.TransportError{Op: "decode response " + path, Err: err}
	}
	return nil
}

func serviceErrBody(code int, msg string) []byte {
	if msg == "" {
		msg = fmt.Sprintf("service returned code %d", code)
	}
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}
