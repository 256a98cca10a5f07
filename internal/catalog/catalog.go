package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-housing-allocation/internal/housing"
)

// Catalog holds the identity and visibility of every project. Stock is kept
// by the inventory manager and rosters by the officer registry; the Units
// field of stored projects is always nil.
type Catalog struct {
	mu       sync.RWMutex
	projects map[string]housing.Project
}

func New() *Catalog {
	return &Catalog{projects: make(map[string]housing.Project)}
}

// Patch lists the fields a manager may change. Nil means unchanged.
type Patch struct {
	Neighbourhood *string
	OpenDate      *time.Time
	CloseDate     *time.Time
	OfficerSlots  *int
	Visible       *bool
}

func validate(p housing.Project) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name required", housing.ErrInvalidProject)
	case strings.TrimSpace(p.ManagerID) == "":
		return fmt.Errorf("%w: manager required", housing.ErrInvalidProject)
	case p.OpenDate.IsZero() || p.CloseDate.IsZero():
		return fmt.Errorf("%w: application period required", housing.ErrInvalidProject)
	case p.CloseDate.Before(p.OpenDate):
		return fmt.Errorf("%w: close date before open date", housing.ErrInvalidProject)
	case p.OfficerSlots < 1 || p.OfficerSlots > housing.MaxOfficerSlots:
		return fmt.Errorf("%w: officer slots must be 1..%d", housing.ErrInvalidProject, housing.MaxOfficerSlots)
	}
	return nil
}

// overlapLocked returns the first other project of the same manager whose
// period intersects p.
func (c *Catalog) overlapLocked(p housing.Project) (string, bool) {
	for name, other := range c.projects {
		if name == p.Name || other.ManagerID != p.ManagerID {
			continue
		}
		if p.Overlaps(other) {
			return name, true
		}
	}
	return "", false
}

func (c *Catalog) Create(p housing.Project) (housing.Project, error) {
	if p.OfficerSlots == 0 {
		p.OfficerSlots = housing.MaxOfficerSlots
	}
	if err := validate(p); err != nil {
		return housing.Project{}, err
	}
	p.Units = nil

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.projects[p.Name]; ok {
		return housing.Project{}, fmt.Errorf("%w: %s", housing.ErrProjectExists, p.Name)
	}
	if other, ok := c.overlapLocked(p); ok {
		return housing.Project{}, fmt.Errorf("%w: %s", housing.ErrPeriodOverlap, other)
	}
	c.projects[p.Name] = p
	return p, nil
}

// Restore loads projects without the one-period-per-manager check, which is
// a creation rule. Identity is still validated.
func (c *Catalog) Restore(ps []housing.Project) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range ps {
		if p.OfficerSlots == 0 {
			p.OfficerSlots = housing.MaxOfficerSlots
		}
		if err := validate(p); err != nil {
			return err
		}
		if _, ok := c.projects[p.Name]; ok {
			return fmt.Errorf("%w: duplicate project %s", housing.ErrInconsistentState, p.Name)
		}
		p.Units = nil
		c.projects[p.Name] = p
	}
	return nil
}

func (c *Catalog) Get(name string) (housing.Project, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.projects[name]
	if !ok {
		return housing.Project{}, fmt.Errorf("%w: %s", housing.ErrNoSuchProject, name)
	}
	return p, nil
}

// Owned returns the project if managerID owns it.
func (c *Catalog) Owned(managerID, name string) (housing.Project, error) {
	p, err := c.Get(name)
	if err != nil {
		return housing.Project{}, err
	}
	if p.ManagerID != managerID {
		return housing.Project{}, fmt.Errorf("%w: %s", housing.ErrNotOwner, name)
	}
	return p, nil
}

// Update applies patch as the owning manager. The result is validated as a
// whole before it replaces the stored project.
func (c *Catalog) Update(managerID, name string, patch Patch) (housing.Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.projects[name]
	if !ok {
		return housing.Project{}, fmt.Errorf("%w: %s", housing.ErrNoSuchProject, name)
	}
	if p.ManagerID != managerID {
		return housing.Project{}, fmt.Errorf("%w: %s", housing.ErrNotOwner, name)
	}
	if patch.Neighbourhood != nil {
		p.Neighbourhood = *patch.Neighbourhood
	}
	if patch.OpenDate != nil {
		p.OpenDate = *patch.OpenDate
	}
	if patch.CloseDate != nil {
		p.CloseDate = *patch.CloseDate
	}
	if patch.OfficerSlots != nil {
		p.OfficerSlots = *patch.OfficerSlots
	}
	if patch.Visible != nil {
		p.Visible = *patch.Visible
	}
	if err := validate(p); err != nil {
		return housing.Project{}, err
	}
	if other, ok := c.overlapLocked(p); ok {
		return housing.Project{}, fmt.Errorf("%w: %s", housing.ErrPeriodOverlap, other)
	}
	c.projects[name] = p
	return p, nil
}

func (c *Catalog) Delete(managerID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.projects[name]
	if !ok {
		return fmt.Errorf("%w: %s", housing.ErrNoSuchProject, name)
	}
	if p.ManagerID != managerID {
		return fmt.Errorf("%w: %s", housing.ErrNotOwner, name)
	}
	delete(c.projects, name)
	return nil
}

// List returns every project sorted by name.
func (c *Catalog) List() []housing.Project {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]housing.Project, 0, len(c.projects))
	for _, p := range c.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) ListByManager(managerID string) []housing.Project {
	var out []housing.Project
	for _, p := range c.List() {
		if p.ManagerID == managerID {
			out = append(out, p)
		}
	}
	return out
}
