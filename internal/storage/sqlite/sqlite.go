// Package sqlite provides a file-backed Store for single-operator setups.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/storage"
)

// ensure sqliteStore implements storage.Store
var _ storage.Store = (*sqliteStore)(nil)

type sqliteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	user_id TEXT NOT NULL,
	service_name TEXT NOT NULL,
	api_key TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, service_name)
);
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS index_tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	task_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	engine TEXT NOT NULL,
	urls TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS scrape_results (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	query TEXT NOT NULL,
	results TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

// New opens (creating if needed) a SQLite-backed Store at dsn.
func New(dsn string) (storage.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) UpsertCredential(ctx context.Context, cred *storage.Credential) error {
	query := `
	INSERT INTO api_keys (user_id, service_name, api_key, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (user_id, service_name) DO UPDATE SET api_key = excluded.api_key, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, cred.UserID, cred.Service, cred.APIKey, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetCredential(ctx context.Context, userID, service string) (*storage.Credential, error) {
	query := `SELECT user_id, service_name, api_key, updated_at FROM api_keys WHERE user_id = ? AND service_name = ?`

	cred := &storage.Credential{}
	err := s.db.QueryRowContext(ctx, query, userID, service).
		Scan(&cred.UserID, &cred.Service, &cred.APIKey, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return cred, nil
}

func (s *sqliteStore) DeleteCredential(ctx context.Context, userID, service string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id = ? AND service_name = ?`, userID, service)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrCredentialNotFound
	}
	return nil
}

func (s *sqliteStore) CreateProject(ctx context.Context, p *storage.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListProjects(ctx context.Context, userID string) ([]*storage.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, created_at FROM projects WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*storage.Project
	for rows.Next() {
		p := &storage.Project{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *sqliteStore) SaveTask(ctx context.Context, t *storage.TaskRecord) error {
	urlsJSON, err := json.Marshal(t.URLs)
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO index_tasks (id, project_id, task_id, kind, engine, urls, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.TaskID, t.Kind, t.Engine, string(urlsJSON), t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *sqliteStore) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE index_tasks SET status = ? WHERE task_id = ?`, status, taskID)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ListTasks(ctx context.Context, projectID string) ([]*storage.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, task_id, kind, engine, urls, status, created_at
		 FROM index_tasks WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*storage.TaskRecord
	for rows.Next() {
		t := &storage.TaskRecord{}
		var urlsJSON string
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.TaskID, &t.Kind, &t.Engine, &urlsJSON, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if err := json.Unmarshal([]byte(urlsJSON), &t.URLs); err != nil {
			return nil, fmt.Errorf("unmarshal urls: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *sqliteStore) SaveScrape(ctx context.Context, sc *storage.ScrapeRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_results (id, project_id, query, results, created_at) VALUES (?, ?, ?, ?, ?)`,
		sc.ID, sc.ProjectID, sc.Query, string(sc.Results), sc.CreatedAt)
	if err != nil {
		return fmt.Errorf("save scrape: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListScrapes(ctx context.Context, projectID string) ([]*storage.ScrapeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, query, results, created_at
		 FROM scrape_results WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list scrapes: %w", err)
	}
	defer rows.Close()

	var scrapes []*storage.ScrapeRecord
	for rows.Next() {
		sc := &storage.ScrapeRecord{}
		var results string
		if err := rows.Scan(&sc.ID, &sc.ProjectID, &sc.Query, &results, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scrape: %w", err)
		}
		sc.Results = []byte(results)
		scrapes = append(scrapes, sc)
	}
	return scrapes, rows.Err()
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
