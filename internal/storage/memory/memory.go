// Package memory provides a map-backed Store used in tests and throwaway
// development runs. Data does not survive a restart.
package memory

import (
	"context"
	"sync"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/storage"
)

// ensure memStore implements storage.Store
var _ storage.Store = (*memStore)(nil)

type credKey struct {
	userID  string
	service string
}

type memStore struct {
	mu       sync.RWMutex
	creds    map[credKey]*storage.Credential
	projects []*storage.Project
	tasks    []*storage.TaskRecord
	scrapes  []*storage.ScrapeRecord
}

// New returns an empty in-memory Store.
func New() storage.Store {
	return &memStore{creds: make(map[credKey]*storage.Credential)}
}

func (s *memStore) UpsertCredential(_ context.Context, cred *storage.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cred
	s.creds[credKey{cred.UserID, cred.Service}] = &c
	return nil
}

func (s *memStore) GetCredential(_ context.Context, userID, service string) (*storage.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[credKey{userID, service}]
	if !ok {
		return nil, apperr.ErrCredentialNotFound
	}
	c := *cred
	return &c, nil
}

func (s *memStore) DeleteCredential(_ context.Context, userID, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := credKey{userID, service}
	if _, ok := s.creds[k]; !ok {
		return apperr.ErrCredentialNotFound
	}
	delete(s.creds, k)
	return nil
}

func (s *memStore) CreateProject(_ context.Context, p *storage.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.projects = append(s.projects, &cp)
	return nil
}

func (s *memStore) ListProjects(_ context.Context, userID string) ([]*storage.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*storage.Project
	for _, p := range s.projects {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) SaveTask(_ context.Context, t *storage.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ct := *t
	ct.URLs = append([]string(nil), t.URLs...)
	s.tasks = append(s.tasks, &ct)
	return nil
}

func (s *memStore) UpdateTaskStatus(_ context.Context, taskID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.TaskID == taskID {
			t.Status = status
			return nil
		}
	}
	return apperr.ErrNotFound
}

func (s *memStore) ListTasks(_ context.Context, projectID string) ([]*storage.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*storage.TaskRecord
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			ct := *t
			ct.URLs = append([]string(nil), t.URLs...)
			out = append(out, &ct)
		}
	}
	return out, nil
}

func (s *memStore) SaveScrape(_ context.Context, sc *storage.ScrapeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	csc := *sc
	csc.Results = append([]byte(nil), sc.Results...)
	s.scrapes = append(s.scrapes, &csc)
	return nil
}

func (s *memStore) ListScrapes(_ context.Context, projectID string) ([]*storage.ScrapeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*storage.ScrapeRecord
	for _, sc := range s.scrapes {
		if sc.ProjectID == projectID {
			csc := *sc
			out = append(out, &csc)
		}
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }
