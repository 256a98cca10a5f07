package officers

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-housing-allocation/internal/housing"
)

type roster struct {
	cap      int
	pending  map[string]housing.OfficerAssignment
	approved map[string]housing.OfficerAssignment
}

// Registry tracks, per project, which officers asked to help and which were
// approved. Approved officers never exceed the project's cap.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]*roster
	now      func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(opts ...Option) *Registry {
	r := &Registry{projects: make(map[string]*roster), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func clampCap(n int) int {
	if n <= 0 || n > housing.MaxOfficerSlots {
		return housing.MaxOfficerSlots
	}
	return n
}

// Open starts an empty roster for a project.
func (r *Registry) Open(project string, slots int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ro, ok := r.projects[project]; ok {
		ro.cap = clampCap(slots)
		return
	}
	r.projects[project] = &roster{
		cap:      clampCap(slots),
		pending:  make(map[string]housing.OfficerAssignment),
		approved: make(map[string]housing.OfficerAssignment),
	}
}

// Resize changes the slot count; it cannot drop below the approved count.
func (r *Registry) Resize(project string, slots int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ro, ok := r.projects[project]
	if !ok {
		return fmt.Errorf("%w: %s", housing.ErrNoSuchProject, project)
	}
	c := clampCap(slots)
	if c < len(ro.approved) {
		return fmt.Errorf("%w: %s already has %d approved officers", housing.ErrInvalidProject, project, len(ro.approved))
	}
	ro.cap = c
	return nil
}

func (r *Registry) Close(project string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, project)
}

// Restore loads assignments for projects already opened.
func (r *Registry) Restore(assignments []housing.OfficerAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range assignments {
		ro, ok := r.projects[a.Project]
		if !ok {
			return fmt.Errorf("%w: assignment for unknown project %s", housing.ErrInconsistentState, a.Project)
		}
		switch a.State {
		case housing.AssignmentPending:
			ro.pending[a.OfficerID] = a
		case housing.AssignmentApproved:
			if len(ro.approved) >= ro.cap {
				return fmt.Errorf("%w: %s roster over capacity", housing.ErrInconsistentState, a.Project)
			}
			ro.approved[a.OfficerID] = a
		default:
			return fmt.Errorf("%w: assignment state %q", housing.ErrInconsistentState, a.State)
		}
	}
	return nil
}

// Request puts the officer on the project's pending list. Asking again while
// pending or approved changes nothing; created reports whether a new entry
// was made.
func (r *Registry) Request(officerID, project string) (a housing.OfficerAssignment, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ro, ok := r.projects[project]
	if !ok {
		return housing.OfficerAssignment{}, false, fmt.Errorf("%w: %s", housing.ErrNoSuchProject, project)
	}
	if cur, ok := ro.approved[officerID]; ok {
		return cur, false, nil
	}
	if cur, ok := ro.pending[officerID]; ok {
		return cur, false, nil
	}
	a = housing.OfficerAssignment{
		Project:     project,
		OfficerID:   officerID,
		State:       housing.AssignmentPending,
		RequestedAt: r.now().UTC(),
	}
	ro.pending[officerID] = a
	return a, true, nil
}

// Decide approves or rejects a pending request. Rejection removes it.
func (r *Registry) Decide(officerID, project string, approve bool) (housing.OfficerAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ro, ok := r.projects[project]
	if !ok {
		return housing.OfficerAssignment{}, fmt.Errorf("%w: %s", housing.ErrNoSuchProject, project)
	}
	a, ok := ro.pending[officerID]
	if !ok {
		return housing.OfficerAssignment{}, fmt.Errorf("%w: officer %s has no pending request for %s", housing.ErrInvalidTransition, officerID, project)
	}
	if !approve {
		delete(ro.pending, officerID)
		return a, nil
	}
	if len(ro.approved) >= ro.cap {
		return housing.OfficerAssignment{}, fmt.Errorf("%w: %s has %d of %d slots filled", housing.ErrRosterFull, project, len(ro.approved), ro.cap)
	}
	now := r.now().UTC()
	a.State = housing.AssignmentApproved
	a.DecidedAt = &now
	delete(ro.pending, officerID)
	ro.approved[officerID] = a
	return a, nil
}

func (r *Registry) IsApproved(officerID, project string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ro, ok := r.projects[project]
	if !ok {
		return false
	}
	_, ok = ro.approved[officerID]
	return ok
}

func (r *Registry) Roster(project string) []housing.OfficerAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ro, ok := r.projects[project]
	if !ok {
		return nil
	}
	return sorted(ro.approved)
}

func (r *Registry) Pending(project string) []housing.OfficerAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ro, ok := r.projects[project]
	if !ok {
		return nil
	}
	return sorted(ro.pending)
}

// AssignmentsFor returns every pending or approved entry of one officer.
func (r *Registry) AssignmentsFor(officerID string) []housing.OfficerAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []housing.OfficerAssignment
	for _, ro := range r.projects {
		if a, ok := ro.approved[officerID]; ok {
			out = append(out, a)
		}
		if a, ok := ro.pending[officerID]; ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Project < out[j].Project })
	return out
}

func (r *Registry) All() []housing.OfficerAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []housing.OfficerAssignment
	for _, ro := range r.projects {
		out = append(out, sorted(ro.approved)...)
		out = append(out, sorted(ro.pending)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Project < out[j].Project })
	return out
}

func sorted(m map[string]housing.OfficerAssignment) []housing.OfficerAssignment {
	out := make([]housing.OfficerAssignment, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfficerID < out[j].OfficerID })
	return out
}
