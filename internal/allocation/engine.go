package allocation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ariefcatur/go-housing-allocation/internal/catalog"
	"github.com/ariefcatur/go-housing-allocation/internal/housing"
	"github.com/ariefcatur/go-housing-allocation/internal/inventory"
	"github.com/ariefcatur/go-housing-allocation/internal/ledger"
	"github.com/ariefcatur/go-housing-allocation/internal/officers"
)

// Engine is the allocation state machine. It owns the catalog, inventory,
// ledger and officer registry and is the only caller that mutates them.
//
// Locking: project lifecycle changes take lifecycle exclusively, every other
// operation takes it shared. Transitions on one person's records are
// serialised by a per-person lock, taken before any inventory counter lock.
type Engine struct {
	lifecycle sync.RWMutex
	people    *keyedMutex

	catalog    *catalog.Catalog
	inventory  *inventory.Manager
	ledger     *ledger.Ledger
	officers   *officers.Registry
	applicants housing.ApplicantDirectory

	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// EligibleProject is a visible project and the unit types a profile may
// apply for in it.
type EligibleProject struct {
	Project   housing.Project    `json:"project"`
	UnitTypes []housing.UnitType `json:"unit_types"`
}

// NewEngine rebuilds the allocation state from snap. The snapshot must hold
// every invariant the engine maintains, otherwise ErrInconsistentState.
func NewEngine(snap housing.Snapshot, applicants housing.ApplicantDirectory, opts ...Option) (*Engine, error) {
	e := &Engine{
		people:     newKeyedMutex(),
		catalog:    catalog.New(),
		inventory:  inventory.NewManager(),
		applicants: applicants,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ledger = ledger.New(ledger.WithClock(e.now))
	e.officers = officers.New(officers.WithClock(e.now))

	if err := e.catalog.Restore(snap.Projects); err != nil {
		return nil, err
	}
	for _, p := range snap.Projects {
		if err := e.inventory.Register(p.Name, p.Units); err != nil {
			return nil, fmt.Errorf("%w: %w", housing.ErrInconsistentState, err)
		}
		e.officers.Open(p.Name, p.OfficerSlots)
	}
	if err := e.officers.Restore(snap.Officers); err != nil {
		return nil, err
	}
	if err := e.ledger.Restore(snap.Applications); err != nil {
		return nil, err
	}
	if err := e.checkBookedWithinSupply(); err != nil {
		return nil, err
	}
	return e, nil
}

// checkBookedWithinSupply verifies available + booked <= total per counter.
func (e *Engine) checkBookedWithinSupply() error {
	booked := make(map[string]map[housing.UnitType]int)
	for _, a := range e.ledger.All() {
		if a.Status != housing.StatusBooked {
			continue
		}
		if booked[a.Project] == nil {
			booked[a.Project] = make(map[housing.UnitType]int)
		}
		booked[a.Project][a.UnitType]++
	}
	for project, byUnit := range booked {
		units, err := e.inventory.Units(project)
		if err != nil {
			return fmt.Errorf("%w: booked application for unknown project %s", housing.ErrInconsistentState, project)
		}
		for u, n := range byUnit {
			if units[u].Available+n > units[u].Total {
				return fmt.Errorf("%w: %s %s has %d booked and %d available of %d",
					housing.ErrInconsistentState, project, u, n, units[u].Available, units[u].Total)
			}
		}
	}
	return nil
}

func (e *Engine) withUnits(p housing.Project) housing.Project {
	units, err := e.inventory.Units(p.Name)
	if err != nil {
		units = map[housing.UnitType]housing.Units{}
	}
	p.Units = units
	return p
}

// Project returns the project with its current stock.
func (e *Engine) Project(name string) (housing.Project, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	p, err := e.catalog.Get(name)
	if err != nil {
		return housing.Project{}, err
	}
	return e.withUnits(p), nil
}

func (e *Engine) Projects() []housing.Project {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	ps := e.catalog.List()
	for i := range ps {
		ps[i] = e.withUnits(ps[i])
	}
	return ps
}

// ProjectsByManager returns the projects a manager owns, with current stock.
func (e *Engine) ProjectsByManager(managerID string) []housing.Project {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	ps := e.catalog.ListByManager(managerID)
	for i := range ps {
		ps[i] = e.withUnits(ps[i])
	}
	return ps
}

// ListEligibleProjects returns the visible projects in which the profile has
// at least one unit type it may apply for with stock left.
func (e *Engine) ListEligibleProjects(profile housing.Applicant) []EligibleProject {
	var out []EligibleProject
	for _, p := range e.Projects() {
		if units := housing.EligibleUnitTypes(profile.Age, profile.Marital, p); len(units) > 0 {
			out = append(out, EligibleProject{Project: p, UnitTypes: units})
		}
	}
	return out
}

// EligibleProjectsFor resolves the applicant's profile and lists the
// projects open to it.
func (e *Engine) EligibleProjectsFor(applicantID string) ([]EligibleProject, error) {
	profile, ok := e.applicants.Applicant(applicantID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", housing.ErrUnknownApplicant, applicantID)
	}
	return e.ListEligibleProjects(profile), nil
}

// Application returns the applicant's most recent record.
func (e *Engine) Application(applicantID string) (housing.Application, error) {
	a, ok := e.ledger.Current(applicantID)
	if !ok {
		return housing.Application{}, fmt.Errorf("%w: applicant %s", housing.ErrNoSuchApplication, applicantID)
	}
	return a, nil
}

func (e *Engine) ApplicationsByProject(project string, statuses ...housing.Status) []housing.Application {
	return e.ledger.ByProject(project, statuses...)
}

func (e *Engine) Roster(project string) []housing.OfficerAssignment {
	return e.officers.Roster(project)
}

func (e *Engine) PendingOfficers(project string) []housing.OfficerAssignment {
	return e.officers.Pending(project)
}

// Apply opens a PENDING application. Guards, in order: known applicant and
// project, no active application, visible project, unit type allowed for the
// profile, no officer role on the project, stock left.
func (e *Engine) Apply(applicantID, projectName string, u housing.UnitType) (housing.Application, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	unlock := e.people.Lock(applicantID)
	defer unlock()

	profile, ok := e.applicants.Applicant(applicantID)
	if !ok {
		return housing.Application{}, fmt.Errorf("%w: %s", housing.ErrUnknownApplicant, applicantID)
	}
	if _, err := housing.ParseUnitType(string(u)); err != nil {
		return housing.Application{}, err
	}
	p, err := e.catalog.Get(projectName)
	if err != nil {
		return housing.Application{}, err
	}
	if cur, ok := e.ledger.Active(applicantID); ok {
		return housing.Application{}, fmt.Errorf("%w: %s holds %s application for %s",
			housing.ErrAlreadyApplied, applicantID, cur.Status, cur.Project)
	}
	if !p.Visible {
		return housing.Application{}, fmt.Errorf("%w: project %s is not open to applicants", housing.ErrNotEligible, projectName)
	}
	if !housing.IsAllowed(profile.Age, profile.Marital, u) {
		return housing.Application{}, fmt.Errorf("%w: %s aged %d may not apply for %s",
			housing.ErrNotEligible, profile.Marital, profile.Age, u)
	}
	for _, a := range e.officers.AssignmentsFor(applicantID) {
		if a.Project == projectName {
			return housing.Application{}, fmt.Errorf("%w: %s is an officer of %s", housing.ErrRoleConflict, applicantID, projectName)
		}
	}

	var rec housing.Application
	err = e.inventory.Guard(projectName, u, func(available int) error {
		if available <= 0 {
			return fmt.Errorf("%w: %s %s", housing.ErrNoUnitsLeft, projectName, u)
		}
		var err error
		rec, err = e.ledger.Begin(applicantID, projectName, u)
		return err
	})
	if err != nil {
		return housing.Application{}, err
	}
	e.logger.Info("application submitted", "applicant", applicantID, "project", projectName, "unit_type", u)
	return rec, nil
}

// current loads the applicant's latest record for a transition. Caller holds
// the applicant lock.
func (e *Engine) current(applicantID string) (housing.Application, error) {
	rec, ok := e.ledger.Current(applicantID)
	if !ok {
		return housing.Application{}, fmt.Errorf("%w: applicant %s", housing.ErrNoSuchApplication, applicantID)
	}
	return rec, nil
}

func invalid(rec housing.Application, event string) error {
	if rec.WithdrawalRequested {
		return fmt.Errorf("%w: %s on %s application with withdrawal pending", housing.ErrInvalidTransition, event, rec.Status)
	}
	return fmt.Errorf("%w: %s on %s application", housing.ErrInvalidTransition, event, rec.Status)
}

// DecideApplication moves a PENDING application to SUCCESSFUL or
// UNSUCCESSFUL. Acceptance needs stock at decision time but reserves
// nothing; units are only taken at booking.
func (e *Engine) DecideApplication(managerID, applicantID string, accept bool) (housing.Application, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	unlock := e.people.Lock(applicantID)
	defer unlock()

	rec, err := e.current(applicantID)
	if err != nil {
		return housing.Application{}, err
	}
	if _, err := e.catalog.Owned(managerID, rec.Project); err != nil {
		return housing.Application{}, err
	}
	if rec.Status != housing.StatusPending {
		return housing.Application{}, invalid(rec, "decide application")
	}

	if !accept {
		rec.Status = housing.StatusUnsuccessful
		return e.ledger.Update(rec)
	}

	var out housing.Application
	err = e.inventory.Guard(rec.Project, rec.UnitType, func(available int) error {
		if available <= 0 {
			return fmt.Errorf("%w: %s %s", housing.ErrNoUnitsLeft, rec.Project, rec.UnitType)
		}
		rec.Status = housing.StatusSuccessful
		var err error
		out, err = e.ledger.Update(rec)
		return err
	})
	if err != nil {
		return housing.Application{}, err
	}
	return out, nil
}

// RequestBooking flags a SUCCESSFUL application as waiting for an officer.
// Asking again is a no-op.
func (e *Engine) RequestBooking(applicantID string) (housing.Application, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	unlock := e.people.Lock(applicantID)
	defer unlock()

	rec, err := e.current(applicantID)
	if err != nil {
		return housing.Application{}, err
	}
	if rec.Status != housing.StatusSuccessful || rec.WithdrawalRequested {
		return housing.Application{}, invalid(rec, "request booking")
	}
	if rec.BookingRequested {
		return rec, nil
	}
	rec.BookingRequested = true
	return e.ledger.Update(rec)
}

// ConfirmBooking books the unit for a SUCCESSFUL application. The unit is
// taken from inventory here and only here.
func (e *Engine) ConfirmBooking(officerID, applicantID string) (housing.Application, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	unlock := e.people.Lock(applicantID)
	defer unlock()

	rec, err := e.current(applicantID)
	if err != nil {
		return housing.Application{}, err
	}
	if rec.Status != housing.StatusSuccessful || rec.WithdrawalRequested {
		return housing.Application{}, invalid(rec, "confirm booking")
	}
	if !e.officers.IsApproved(officerID, rec.Project) {
		return housing.Application{}, fmt.Errorf("%w: %s on %s", housing.ErrNotAssigned, officerID, rec.Project)
	}

	left, err := e.inventory.TryReserve(rec.Project, rec.UnitType)
	if err != nil {
		return housing.Application{}, err
	}
	rec.Status = housing.StatusBooked
	rec.BookingRequested = false
	out, err := e.ledger.Update(rec)
	if err != nil {
		if _, rerr := e.inventory.Release(rec.Project, rec.UnitType); rerr != nil {
			e.logger.Error("rollback of booking reservation failed", "applicant", applicantID, "project", rec.Project, "error", rerr)
		}
		return housing.Application{}, err
	}
	e.logger.Info("booking confirmed", "applicant", applicantID, "project", rec.Project,
		"unit_type", rec.UnitType, "officer", officerID, "available", left)
	return out, nil
}

// RequestWithdrawal marks a SUCCESSFUL or BOOKED application for a manager's
// withdrawal decision.
func (e *Engine) RequestWithdrawal(applicantID string) (housing.Application, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	unlock := e.people.Lock(applicantID)
	defer unlock()

	rec, err := e.current(applicantID)
	if err != nil {
		return housing.Application{}, err
	}
	if rec.Status != housing.StatusSuccessful && rec.Status != housing.StatusBooked {
		return housing.Application{}, invalid(rec, "request withdrawal")
	}
	if rec.WithdrawalRequested {
		return housing.Application{}, fmt.Errorf("%w: applicant %s", housing.ErrAlreadyWithdrawing, applicantID)
	}
	rec.WithdrawalRequested = true
	return e.ledger.Update(rec)
}

// DecideWithdrawal settles a pending withdrawal. Accepting a BOOKED
// application returns its unit to stock; accepting a SUCCESSFUL one changes
// no stock because none was taken. Rejecting clears the flag and keeps the
// status.
func (e *Engine) DecideWithdrawal(managerID, applicantID string, accept bool) (housing.Application, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	unlock := e.people.Lock(applicantID)
	defer unlock()

	rec, err := e.current(applicantID)
	if err != nil {
		return housing.Application{}, err
	}
	if !rec.WithdrawalRequested {
		return housing.Application{}, invalid(rec, "decide withdrawal")
	}
	if _, err := e.catalog.Owned(managerID, rec.Project); err != nil {
		return housing.Application{}, err
	}

	if !accept {
		rec.WithdrawalRequested = false
		return e.ledger.Update(rec)
	}

	prior := rec.Status
	released := false
	switch prior {
	case housing.StatusBooked:
		if _, err := e.inventory.Release(rec.Project, rec.UnitType); err != nil {
			if errors.Is(err, housing.ErrInventoryOverflow) {
				e.logger.Error("inventory consistency violated", "applicant", applicantID, "project", rec.Project, "unit_type", rec.UnitType, "error", err)
			}
			return housing.Application{}, err
		}
		released = true
	case housing.StatusSuccessful:
	default:
		return housing.Application{}, invalid(rec, "decide withdrawal")
	}

	rec.Status = housing.StatusWithdrawn
	rec.WithdrawalRequested = false
	rec.BookingRequested = false
	out, err := e.ledger.Update(rec)
	if err != nil {
		if released {
			if _, rerr := e.inventory.TryReserve(rec.Project, rec.UnitType); rerr != nil {
				e.logger.Error("rollback of withdrawal release failed", "applicant", applicantID, "project", rec.Project, "error", rerr)
			}
		}
		return housing.Application{}, err
	}
	e.logger.Info("withdrawal accepted", "applicant", applicantID, "project", rec.Project, "prior_status", prior)
	return out, nil
}

// conflictingApproval returns an approved assignment of officerID on another
// project whose application period intersects p's.
func (e *Engine) conflictingApproval(officerID string, p housing.Project) (string, bool) {
	for _, a := range e.officers.AssignmentsFor(officerID) {
		if a.Project == p.Name || a.State != housing.AssignmentApproved {
			continue
		}
		other, err := e.catalog.Get(a.Project)
		if err == nil && other.Overlaps(p) {
			return other.Name, true
		}
	}
	return "", false
}

// RequestOfficerAssignment registers an officer's interest in a project.
func (e *Engine) RequestOfficerAssignment(officerID, projectName string) (housing.OfficerAssignment, bool, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	unlock := e.people.Lock(officerID)
	defer unlock()

	p, err := e.catalog.Get(projectName)
	if err != nil {
		return housing.OfficerAssignment{}, false, err
	}
	if p.ManagerID == officerID {
		return housing.OfficerAssignment{}, false, fmt.Errorf("%w: %s manages %s", housing.ErrRoleConflict, officerID, projectName)
	}
	if cur, ok := e.ledger.Active(officerID); ok && cur.Project == projectName {
		return housing.OfficerAssignment{}, false, fmt.Errorf("%w: %s has an application for %s", housing.ErrRoleConflict, officerID, projectName)
	}
	if other, ok := e.conflictingApproval(officerID, p); ok {
		return housing.OfficerAssignment{}, false, fmt.Errorf("%w: %s already handles %s in the same period", housing.ErrRoleConflict, officerID, other)
	}
	return e.officers.Request(officerID, projectName)
}

// DecideOfficerAssignment approves or rejects a pending officer request as
// the project's manager.
func (e *Engine) DecideOfficerAssignment(managerID, officerID, projectName string, accept bool) (housing.OfficerAssignment, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	unlock := e.people.Lock(officerID)
	defer unlock()

	p, err := e.catalog.Owned(managerID, projectName)
	if err != nil {
		return housing.OfficerAssignment{}, err
	}
	if accept {
		if other, ok := e.conflictingApproval(officerID, p); ok {
			return housing.OfficerAssignment{}, fmt.Errorf("%w: %s already handles %s in the same period", housing.ErrRoleConflict, officerID, other)
		}
	}
	a, err := e.officers.Decide(officerID, projectName, accept)
	if err != nil {
		return housing.OfficerAssignment{}, err
	}
	e.logger.Info("officer assignment decided", "officer", officerID, "project", projectName, "approved", accept)
	return a, nil
}

// ProjectChange is a manager's edit of a project. Unit totals resize the
// declared supply; units already booked are kept.
type ProjectChange struct {
	catalog.Patch
	UnitTotals map[housing.UnitType]int
}

// CreateProject adds a project with its initial stock. Available counts left
// at zero start equal to the totals.
func (e *Engine) CreateProject(p housing.Project) (housing.Project, error) {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	units := make(map[housing.UnitType]housing.Units, len(housing.UnitTypes))
	for _, u := range housing.UnitTypes {
		s := p.Units[u]
		if s.Available == 0 {
			s.Available = s.Total
		}
		units[u] = s
	}
	for u := range p.Units {
		if _, err := housing.ParseUnitType(string(u)); err != nil {
			return housing.Project{}, err
		}
	}

	// Applications are keyed by project name and outlive the project, so a
	// name with history is never handed out again.
	if n := len(e.ledger.ByProject(p.Name)); n > 0 {
		return housing.Project{}, fmt.Errorf("%w: %s has %d applications on record", housing.ErrProjectExists, p.Name, n)
	}
	created, err := e.catalog.Create(p)
	if err != nil {
		return housing.Project{}, err
	}
	if err := e.inventory.Register(created.Name, units); err != nil {
		_ = e.catalog.Delete(created.ManagerID, created.Name)
		return housing.Project{}, err
	}
	e.officers.Open(created.Name, created.OfficerSlots)
	e.logger.Info("project created", "project", created.Name, "manager", created.ManagerID)
	return e.withUnits(created), nil
}

// UpdateProject applies a manager's change. Every part is validated before
// anything is written, so a rejected change leaves the project as it was.
func (e *Engine) UpdateProject(managerID, name string, change ProjectChange) (housing.Project, error) {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	before, err := e.catalog.Owned(managerID, name)
	if err != nil {
		return housing.Project{}, err
	}
	units, err := e.inventory.Units(name)
	if err != nil {
		return housing.Project{}, err
	}
	for u, total := range change.UnitTotals {
		if _, err := housing.ParseUnitType(string(u)); err != nil {
			return housing.Project{}, err
		}
		issued := units[u].Total - units[u].Available
		if total < issued {
			return housing.Project{}, fmt.Errorf("%w: %s %s has %d units issued", housing.ErrInvalidProject, name, u, issued)
		}
	}
	if change.OfficerSlots != nil && *change.OfficerSlots < len(e.officers.Roster(name)) {
		return housing.Project{}, fmt.Errorf("%w: %s already has %d approved officers", housing.ErrInvalidProject, name, len(e.officers.Roster(name)))
	}

	updated, err := e.catalog.Update(managerID, name, change.Patch)
	if err != nil {
		return housing.Project{}, err
	}
	// Lifecycle is held exclusively, so the checks above still hold.
	for u, total := range change.UnitTotals {
		if err := e.inventory.Resize(name, u, total); err != nil {
			return housing.Project{}, err
		}
	}
	if updated.OfficerSlots != before.OfficerSlots {
		if err := e.officers.Resize(name, updated.OfficerSlots); err != nil {
			return housing.Project{}, err
		}
	}
	return e.withUnits(updated), nil
}

func (e *Engine) SetVisibility(managerID, name string, visible bool) (housing.Project, error) {
	return e.UpdateProject(managerID, name, ProjectChange{Patch: catalog.Patch{Visible: &visible}})
}

// DeleteProject removes a project that no active application refers to.
// Terminal applications stay in the ledger as history.
func (e *Engine) DeleteProject(managerID, name string) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if _, err := e.catalog.Owned(managerID, name); err != nil {
		return err
	}
	if n := e.ledger.CountActive(name); n > 0 {
		return fmt.Errorf("%w: %s has %d", housing.ErrProjectInUse, name, n)
	}
	if err := e.catalog.Delete(managerID, name); err != nil {
		return err
	}
	e.inventory.Unregister(name)
	e.officers.Close(name)
	e.logger.Info("project deleted", "project", name, "manager", managerID)
	return nil
}

// Snapshot returns the full state. It waits for in-flight transitions, so the
// inventory and the ledger agree in the result.
func (e *Engine) Snapshot() housing.Snapshot {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	var snap housing.Snapshot
	for _, p := range e.catalog.List() {
		snap.Projects = append(snap.Projects, e.withUnits(p))
	}
	snap.Applications = e.ledger.All()
	snap.Officers = e.officers.All()
	return snap
}
