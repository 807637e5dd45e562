package indexing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/serpdesk/serpdesk/internal/apperr"
)

func TestHTTPAPI_CreateTask(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(createResponse{Code: 0, TaskID: "T1", Type: "google/checker"})
	}))
	defer srv.Close()

	api := NewHTTPAPI(srv.URL, "key-123", nil)
	taskID, err := api.CreateTask(context.Background(), EngineGoogle, KindChecker, []string{"https://a.test"}, "batch")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if taskID != "T1" {
		t.Errorf("expected task id T1, got %q", taskID)
	}
	if gotPath != "/v2/task/google/checker/create" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "key-123" {
		t.Errorf("expected Authorization header, got %q", gotAuth)
	}
	if gotBody["title"] != "batch" {
		t.Errorf("expected title in body, got %v", gotBody)
	}
	urls, _ := gotBody["urls"].([]any)
	if len(urls) != 1 || urls[0] != "https://a.test" {
		t.Errorf("unexpected urls payload: %v", gotBody["urls"])
	}
}

func TestHTTPAPI_NonZeroCodeIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(createResponse{Code: 3, Error: "not enough balance"})
	}))
	defer srv.Close()

	api := NewHTTPAPI(srv.URL, "key-123", nil)
	_, err := api.CreateTask(context.Background(), EngineGoogle, KindIndexer, []string{"https://a.test"}, "")

	var de *apperr.DownstreamError
	if !errors.As(err, &de) {
		t.Fatalf("expected downstream error, got %v", err)
	}
	if string(de.Body) != `{"error":"not enough balance"}` {
		t.Errorf("unexpected error body %q", de.Body)
	}
}

func TestHTTPAPI_NonSuccessStatusRelaysBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":"payment required"}`))
	}))
	defer srv.Close()

	api := NewHTTPAPI(srv.URL, "key-123", nil)
	_, err := api.Balance(context.Background())

	var de *apperr.DownstreamError
	if !errors.As(err, &de) {
		t.Fatalf("expected downstream error, got %v", err)
	}
	if de.Status != http.StatusPaymentRequired {
		t.Errorf("expected status 402, got %d", de.Status)
	}
}

func TestHTTPAPI_TaskStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/task/google/checker/status" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var body map[string][]string
		json.NewDecoder(r.Body).Decode(&body)
		if len(body["task_ids"]) != 1 || body["task_ids"][0] != "T1" {
			t.Errorf("unexpected task_ids %v", body["task_ids"])
		}
		json.NewEncoder(w).Encode(statusResponse{Result: []TaskStatus{{TaskID: "T1", IsCompleted: true}}})
	}))
	defer srv.Close()

	api := NewHTTPAPI(srv.URL, "key-123", nil)
	statuses, err := api.TaskStatus(context.Background(), EngineGoogle, KindChecker, []string{"T1"})
	if err != nil {
		t.Fatalf("task status: %v", err)
	}
	if len(statuses) != 1 || !statuses[0].IsCompleted {
		t.Errorf("unexpected statuses %+v", statuses)
	}
}

func TestHTTPAPI_FullReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/task/google/checker/fullreport" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(reportResponse{Result: &Report{
			ID:             "T1",
			IndexedLinks:   []IndexedLink{{URL: "https://a.test"}},
			UnindexedLinks: []UnindexedLink{{URL: "https://b.test", ErrorCode: 404}},
		}})
	}))
	defer srv.Close()

	api := NewHTTPAPI(srv.URL, "key-123", nil)
	report, err := api.FullReport(context.Background(), EngineGoogle, KindChecker, "T1")
	if err != nil {
		t.Fatalf("full report: %v", err)
	}
	if len(report.IndexedLinks) != 1 || len(report.UnindexedLinks) != 1 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestHTTPAPI_TaskListRejectsNegativePage(t *testing.T) {
	api := NewHTTPAPI("http://unused.test", "key-123", nil)
	_, err := api.TaskList(context.Background(), EngineGoogle, -1)

	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHTTPAPI_TaskListPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/task/google/list/2" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(listResponse{Tasks: []TaskSummary{{TaskID: "T1"}}})
	}))
	defer srv.Close()

	api := NewHTTPAPI(srv.URL, "key-123", nil)
	tasks, err := api.TaskList(context.Background(), EngineGoogle, 2)
	if err != nil {
		t.Fatalf("task list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].TaskID != "T1" {
		t.Errorf("unexpected tasks %+v", tasks)
	}
}

func TestHTTPAPI_TransportErrorOnDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	api := NewHTTPAPI(srv.URL, "key-123", nil)
	_, err := api.Balance(context.Background())

	var te *apperr.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
