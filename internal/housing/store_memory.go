package housing

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory. Used by tests and by the API
// when no Postgres DSN is configured.
type MemoryStore struct {
	mu           sync.RWMutex
	projects     map[string]Project
	applications map[string]Application
	officers     map[string]OfficerAssignment
	applicants   map[string]Applicant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:     make(map[string]Project),
		applications: make(map[string]Application),
		officers:     make(map[string]OfficerAssignment),
		applicants:   make(map[string]Applicant),
	}
}

func officerKey(project, officerID string) string { return project + "\x00" + officerID }

func (s *MemoryStore) PutApplicant(a Applicant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applicants[a.ID] = a
}

func (s *MemoryStore) LoadProjects(_ context.Context) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) LoadApplications(_ context.Context) ([]Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Application, 0, len(s.applications))
	for _, a := range s.applications {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) LoadOfficerAssignments(_ context.Context) ([]OfficerAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OfficerAssignment, 0, len(s.officers))
	for _, a := range s.officers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return officerKey(out[i].Project, out[i].OfficerID) < officerKey(out[j].Project, out[j].OfficerID)
	})
	return out, nil
}

func (s *MemoryStore) LoadApplicants(_ context.Context) ([]Applicant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Applicant, 0, len(s.applicants))
	for _, a := range s.applicants {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) PersistProject(_ context.Context, p Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.Name] = p.Clone()
	return nil
}

func (s *MemoryStore) PersistApplication(_ context.Context, a Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applications[a.ID] = a
	return nil
}

func (s *MemoryStore) PersistOfficerAssignment(_ context.Context, a OfficerAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.officers[officerKey(a.Project, a.OfficerID)] = a
	return nil
}

func (s *MemoryStore) DeleteProject(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, name)
	for k, a := range s.officers {
		if a.Project == name {
			delete(s.officers, k)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteOfficerAssignment(_ context.Context, project, officerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.officers, officerKey(project, officerID))
	return nil
}
