package housing

import (
	"context"
	"fmt"
	"sync"
)

// Store is the durable record store the allocation core loads from and
// persists to. It defines no file or table format of its own.
type Store interface {
	LoadProjects(ctx context.Context) ([]Project, error)
	LoadApplications(ctx context.Context) ([]Application, error)
	LoadOfficerAssignments(ctx context.Context) ([]OfficerAssignment, error)
	LoadApplicants(ctx context.Context) ([]Applicant, error)

	PersistProject(ctx context.Context, p Project) error
	PersistApplication(ctx context.Context, a Application) error
	PersistOfficerAssignment(ctx context.Context, a OfficerAssignment) error
	DeleteProject(ctx context.Context, name string) error
	DeleteOfficerAssignment(ctx context.Context, project, officerID string) error
}

// Snapshot is the full allocation state in plain records.
type Snapshot struct {
	Projects     []Project           `json:"projects"`
	Applications []Application       `json:"applications"`
	Officers     []OfficerAssignment `json:"officers"`
}

func LoadSnapshot(ctx context.Context, s Store) (Snapshot, error) {
	var snap Snapshot
	var err error
	if snap.Projects, err = s.LoadProjects(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load projects: %w", err)
	}
	if snap.Applications, err = s.LoadApplications(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load applications: %w", err)
	}
	if snap.Officers, err = s.LoadOfficerAssignments(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("load officer assignments: %w", err)
	}
	return snap, nil
}

// ApplicantDirectory resolves applicant profiles. Profiles belong to the
// account layer; allocation only reads them.
type ApplicantDirectory interface {
	Applicant(id string) (Applicant, bool)
}

type Directory struct {
	mu   sync.RWMutex
	byID map[string]Applicant
}

func NewDirectory(applicants ...Applicant) *Directory {
	d := &Directory{byID: make(map[string]Applicant, len(applicants))}
	for _, a := range applicants {
		d.byID[a.ID] = a
	}
	return d
}

func (d *Directory) Put(a Applicant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID[a.ID] = a
}

func (d *Directory) Applicant(id string) (Applicant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.byID[id]
	return a, ok
}
