// Package postgres provides the pgx-backed Store for hosted deployments.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/storage"
)

// ensure postgresStore implements storage.Store
var _ storage.Store = (*postgresStore)(nil)

type postgresStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	user_id TEXT NOT NULL,
	service_name TEXT NOT NULL,
	api_key TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, service_name)
);
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS index_tasks (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	task_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	engine TEXT NOT NULL,
	urls JSONB NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS scrape_results (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	query TEXT NOT NULL,
	results JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// New connects to Postgres at dsn and bootstraps the schema.
func New(ctx context.Context, dsn string) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) UpsertCredential(ctx context.Context, cred *storage.Credential) error {
	query := `
	INSERT INTO api_keys (user_id, service_name, api_key, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id, service_name) DO UPDATE SET api_key = EXCLUDED.api_key, updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query, cred.UserID, cred.Service, cred.APIKey, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func (s *postgresStore) GetCredential(ctx context.Context, userID, service string) (*storage.Credential, error) {
	query := `SELECT user_id, service_name, api_key, updated_at FROM api_keys WHERE user_id = $1 AND service_name = $2`

	cred := &storage.Credential{}
	err := s.pool.QueryRow(ctx, query, userID, service).
		Scan(&cred.UserID, &cred.Service, &cred.APIKey, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return cred, nil
}

func (s *postgresStore) DeleteCredential(ctx context.Context, userID, service string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM api_keys WHERE user_id = $1 AND service_name = $2`, userID, service)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrCredentialNotFound
	}
	return nil
}

func (s *postgresStore) CreateProject(ctx context.Context, p *storage.Project) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, user_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.UserID, p.Name, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *postgresStore) ListProjects(ctx context.Context, userID string) ([]*storage.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, created_at FROM projects WHERE user_id = $1 ORDER BY created_at DESC`, userID)
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

func (s *postgresStore) SaveTask(ctx context.Context, t *storage.TaskRecord) error {
	urlsJSON, err := json.Marshal(t.URLs)
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO index_tasks (id, project_id, task_id, kind, engine, urls, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.ProjectID, t.TaskID, t.Kind, t.Engine, urlsJSON, t.Status, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (s *postgresStore) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE index_tasks SET status = $1 WHERE task_id = $2`, status, taskID)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *postgresStore) ListTasks(ctx context.Context, projectID string) ([]*storage.TaskRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, task_id, kind, engine, urls, status, created_at
		 FROM index_tasks WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*storage.TaskRecord
	for rows.Next() {
		t := &storage.TaskRecord{}
		var urlsJSON []byte
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.TaskID, &t.Kind, &t.Engine, &urlsJSON, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if err := json.Unmarshal(urlsJSON, &t.URLs); err != nil {
			return nil, fmt.Errorf("unmarshal urls: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *postgresStore) SaveScrape(ctx context.Context, sc *storage.ScrapeRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_results (id, project_id, query, results, created_at) VALUES ($1, $2, $3, $4, $5)`,
		sc.ID, sc.ProjectID, sc.Query, sc.Results, sc.CreatedAt)
	if err != nil {
		return fmt.Errorf("save scrape: %w", err)
	}
	return nil
}

func (s *postgresStore) ListScrapes(ctx context.Context, projectID string) ([]*storage.ScrapeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, query, results, created_at
		 FROM scrape_results WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list scrapes: %w", err)
	}
	defer rows.Close()

	var scrapes []*storage.ScrapeRecord
	for rows.Next() {
		sc := &storage.ScrapeRecord{}
		if err := rows.Scan(&sc.ID, &sc.ProjectID, &sc.Query, &sc.Results, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scrape: %w", err)
		}
		scrapes = append(scrapes, sc)
	}
	return scrapes, rows.Err()
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
