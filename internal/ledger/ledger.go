package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-housing-allocation/internal/housing"
)

// Ledger stores every application record, keyed by id, with a per-applicant
// history index. Status changes happen in place on the single record; views
// by status are derived by filtering.
type Ledger struct {
	mu          sync.RWMutex
	byID        map[string]*housing.Application
	byApplicant map[string][]string // record ids, oldest first
	now         func() time.Time
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		byID:        make(map[string]*housing.Application),
		byApplicant: make(map[string][]string),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Restore loads records from a snapshot. Loading fails if any applicant ends
// up with more than one active record.
func (l *Ledger) Restore(records []housing.Application) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range records {
		if r.ID == "" || !r.Status.Valid() || r.Status == housing.StatusNone {
			return fmt.Errorf("%w: application %q has status %q", housing.ErrInconsistentState, r.ID, r.Status)
		}
		if _, dup := l.byID[r.ID]; dup {
			return fmt.Errorf("%w: duplicate application %s", housing.ErrInconsistentState, r.ID)
		}
		if r.Status.Active() && l.activeLocked(r.ApplicantID) != nil {
			return fmt.Errorf("%w: applicant %s has more than one active application", housing.ErrInconsistentState, r.ApplicantID)
		}
		rec := r
		l.byID[r.ID] = &rec
		l.byApplicant[r.ApplicantID] = append(l.byApplicant[r.ApplicantID], r.ID)
	}
	return nil
}

func (l *Ledger) activeLocked(applicantID string) *housing.Application {
	for _, id := range l.byApplicant[applicantID] {
		if r := l.byID[id]; r.Status.Active() {
			return r
		}
	}
	return nil
}

// Begin opens a PENDING application for the applicant.
func (l *Ledger) Begin(applicantID, project string, u housing.UnitType) (housing.Application, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur := l.activeLocked(applicantID); cur != nil {
		return housing.Application{}, fmt.Errorf("%w: %s holds %s application for %s",
			housing.ErrAlreadyApplied, applicantID, cur.Status, cur.Project)
	}
	now := l.now().UTC()
	rec := &housing.Application{
		ID:          uuid.NewString(),
		ApplicantID: applicantID,
		Project:     project,
		UnitType:    u,
		Status:      housing.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	l.byID[rec.ID] = rec
	l.byApplicant[applicantID] = append(l.byApplicant[applicantID], rec.ID)
	return *rec, nil
}

// Current returns the applicant's most recent record, active or not.
func (l *Ledger) Current(applicantID string) (housing.Application, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.byApplicant[applicantID]
	if len(ids) == 0 {
		return housing.Application{}, false
	}
	return *l.byID[ids[len(ids)-1]], true
}

func (l *Ledger) Active(applicantID string) (housing.Application, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if r := l.activeLocked(applicantID); r != nil {
		return *r, true
	}
	return housing.Application{}, false
}

// Update replaces the stored record with rec. Identity fields cannot change.
func (l *Ledger) Update(rec housing.Application) (housing.Application, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.byID[rec.ID]
	if !ok {
		return housing.Application{}, fmt.Errorf("%w: %s", housing.ErrNoSuchApplication, rec.ID)
	}
	if cur.ApplicantID != rec.ApplicantID || cur.Project != rec.Project || cur.UnitType != rec.UnitType {
		return housing.Application{}, fmt.Errorf("%w: application %s identity changed", housing.ErrInvalidTransition, rec.ID)
	}
	if cur.Status != rec.Status && !housing.CanTransition(cur.Status, rec.Status) {
		return housing.Application{}, fmt.Errorf("%w: %s -> %s", housing.ErrInvalidTransition, cur.Status, rec.Status)
	}
	if rec.Status.Active() {
		if other := l.activeLocked(rec.ApplicantID); other != nil && other.ID != rec.ID {
			return housing.Application{}, fmt.Errorf("%w: %s", housing.ErrAlreadyApplied, rec.ApplicantID)
		}
	}
	rec.CreatedAt = cur.CreatedAt
	rec.UpdatedAt = l.now().UTC()
	*cur = rec
	return rec, nil
}

// ByProject lists the project's records, optionally limited to the given
// statuses, oldest first.
func (l *Ledger) ByProject(project string, statuses ...housing.Status) []housing.Application {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []housing.Application
	for _, r := range l.byID {
		if r.Project != project || !matches(r.Status, statuses) {
			continue
		}
		out = append(out, *r)
	}
	sortByCreated(out)
	return out
}

func (l *Ledger) All() []housing.Application {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]housing.Application, 0, len(l.byID))
	for _, r := range l.byID {
		out = append(out, *r)
	}
	sortByCreated(out)
	return out
}

// CountActive counts active records for the project.
func (l *Ledger) CountActive(project string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, r := range l.byID {
		if r.Project == project && r.Status.Active() {
			n++
		}
	}
	return n
}

func matches(s housing.Status, filter []housing.Status) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if s == f {
			return true
		}
	}
	return false
}

func sortByCreated(rs []housing.Application) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}
