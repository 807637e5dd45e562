// Package storage defines the persisted model of the toolbox — per-user API
// credentials, projects, submitted index tasks and saved scrape results — and
// the Store interface implemented by the postgres and sqlite backends.
package storage

import (
	"context"
	"time"
)

// Credential maps (owner, service) to a secret API key. One row per pair;
// writes are upserts.
type Credential struct {
	UserID    string
	Service   string
	APIKey    string
	UpdatedAt time.Time
}

// Project is a named grouping of scrape results and tasks, owned by a user.
type Project struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// TaskRecord is the locally persisted view of a remote index task. TaskID is
// assigned by the wrapped service and treated as opaque.
type TaskRecord struct {
	ID        string
	ProjectID string
	TaskID    string
	Kind      string // "checker" or "indexer"
	Engine    string // "google" or "yandex"
	URLs      []string
	Status    string
	CreatedAt time.Time
}

// ScrapeRecord is a persisted SERP scrape result set, serialized as JSON.
type ScrapeRecord struct {
	ID        string
	ProjectID string
	Query     string
	Results   []byte // serp.Result JSON
	CreatedAt time.Time
}

// Store is the persistence contract shared by all backends. Lookups for
// absent rows return apperr.ErrCredentialNotFound (credentials) or
// apperr.ErrNotFound (everything else).
type Store interface {
	UpsertCredential(ctx context.Context, cred *Credential) error
	GetCredential(ctx context.Context, userID, service string) (*Credential, error)
	DeleteCredential(ctx context.Context, userID, service string) error

	CreateProject(ctx context.Context, p *Project) error
	ListProjects(ctx context.Context, userID string) ([]*Project, error)

	SaveTask(ctx context.Context, t *TaskRecord) error
	UpdateTaskStatus(ctx context.Context, taskID, status string) error
	ListTasks(ctx context.Context, projectID string) ([]*TaskRecord, error)

	SaveScrape(ctx context.Context, s *ScrapeRecord) error
	ListScrapes(ctx context.Context, projectID string) ([]*ScrapeRecord, error)

	Close() error
}
