package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/storage"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCredential_UpsertGetDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cred := &storage.Credential{
		UserID:    "u1",
		Service:   "scrapeproxy",
		APIKey:    "key-1",
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.UpsertCredential(ctx, cred); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetCredential(ctx, "u1", "scrapeproxy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.APIKey != "key-1" {
		t.Errorf("expected key-1, got %q", got.APIKey)
	}

	// Upsert replaces the key for the same (user, service).
	cred.APIKey = "key-2"
	if err := s.UpsertCredential(ctx, cred); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = s.GetCredential(ctx, "u1", "scrapeproxy")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if got.APIKey != "key-2" {
		t.Errorf("expected key-2, got %q", got.APIKey)
	}

	if err := s.DeleteCredential(ctx, "u1", "scrapeproxy"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetCredential(ctx, "u1", "scrapeproxy"); !errors.Is(err, apperr.ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestCredential_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetCredential(ctx, "nobody", "scrapeproxy"); !errors.Is(err, apperr.ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound, got %v", err)
	}
	if err := s.DeleteCredential(ctx, "nobody", "scrapeproxy"); !errors.Is(err, apperr.ErrCredentialNotFound) {
		t.Errorf("expected ErrCredentialNotFound on delete, got %v", err)
	}
}

func TestCredential_ScopedPerUserAndService(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = s.UpsertCredential(ctx, &storage.Credential{UserID: "u1", Service: "indexer", APIKey: "a", UpdatedAt: now})
	_ = s.UpsertCredential(ctx, &storage.Credential{UserID: "u1", Service: "indexcheck", APIKey: "b", UpdatedAt: now})
	_ = s.UpsertCredential(ctx, &storage.Credential{UserID: "u2", Service: "indexer", APIKey: "c", UpdatedAt: now})

	got, err := s.GetCredential(ctx, "u1", "indexer")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.APIKey != "a" {
		t.Errorf("expected key a, got %q", got.APIKey)
	}
}

func TestTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &storage.TaskRecord{
		ID:        "local-1",
		ProjectID: "p1",
		TaskID:    "T1",
		Kind:      "checker",
		Engine:    "google",
		URLs:      []string{"https://a.test", "https://b.test"},
		Status:    "created",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.SaveTask(ctx, task); err != nil {
		t.Fatalf("save task: %v", err)
	}

	if err := s.UpdateTaskStatus(ctx, "T1", "completed"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	tasks, err := s.ListTasks(ctx, "p1")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Status != "completed" {
		t.Errorf("expected status completed, got %q", tasks[0].Status)
	}
	if len(tasks[0].URLs) != 2 || tasks[0].URLs[0] != "https://a.test" {
		t.Errorf("urls did not round-trip: %v", tasks[0].URLs)
	}
}

func TestUpdateTaskStatus_UnknownTask(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateTaskStatus(context.Background(), "missing", "completed"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProjectsAndScrapes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &storage.Project{ID: "p1", UserID: "u1", Name: "campaign", CreatedAt: time.Now().UTC()}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("create project: %v", err)
	}

	projects, err := s.ListProjects(ctx, "u1")
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "campaign" {
		t.Fatalf("unexpected projects: %+v", projects)
	}

	sc := &storage.ScrapeRecord{
		ID:        "s1",
		ProjectID: "p1",
		Query:     "best espresso",
		Results:   []byte(`{"query":"best espresso"}`),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.SaveScrape(ctx, sc); err != nil {
		t.Fatalf("save scrape: %v", err)
	}

	scrapes, err := s.ListScrapes(ctx, "p1")
	if err != nil {
		t.Fatalf("list scrapes: %v", err)
	}
	if len(scrapes) != 1 || scrapes[0].Query != "best espresso" {
		t.Fatalf("unexpected scrapes: %+v", scrapes)
	}
}
