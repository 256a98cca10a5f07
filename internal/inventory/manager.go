package inventory

import (
	"fmt"
	"sync"

	"github.com/ariefcatur/go-housing-allocation/internal/housing"
)

type counterKey struct {
	project string
	unit    housing.UnitType
}

// counter is one project's stock of one unit type. Every read or write of
// total/available happens under mu.
type counter struct {
	mu        sync.Mutex
	total     int
	available int
}

// Manager holds the per-project, per-unit-type room counters. TryReserve and
// Release are the only allocation-time mutators.
type Manager struct {
	mu       sync.RWMutex
	counters map[counterKey]*counter
}

func NewManager() *Manager {
	return &Manager{counters: make(map[counterKey]*counter)}
}

func (m *Manager) get(project string, u housing.UnitType) (*counter, error) {
	m.mu.RLock()
	c, ok := m.counters[counterKey{project, u}]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", housing.ErrNoSuchProject, project)
	}
	return c, nil
}

// Register creates the counters of a project. Stock must satisfy
// 0 <= available <= total for every unit type.
func (m *Manager) Register(project string, units map[housing.UnitType]housing.Units) error {
	for _, u := range housing.UnitTypes {
		s := units[u]
		if s.Total < 0 || s.Available < 0 || s.Available > s.Total {
			return fmt.Errorf("%w: %s %s total=%d available=%d", housing.ErrInvalidProject, project, u, s.Total, s.Available)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counters[counterKey{project, housing.TwoRoom}]; ok {
		return fmt.Errorf("%w: %s", housing.ErrProjectExists, project)
	}
	for _, u := range housing.UnitTypes {
		s := units[u]
		m.counters[counterKey{project, u}] = &counter{total: s.Total, available: s.Available}
	}
	return nil
}

func (m *Manager) Unregister(project string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range housing.UnitTypes {
		delete(m.counters, counterKey{project, u})
	}
}

// TryReserve takes one unit if any is left.
func (m *Manager) TryReserve(project string, u housing.UnitType) (available int, err error) {
	c, err := m.get(project, u)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.available <= 0 {
		return 0, fmt.Errorf("%w: %s %s", housing.ErrNoUnitsLeft, project, u)
	}
	c.available--
	return c.available, nil
}

// Release returns one unit. Going above total means a unit was released that
// was never reserved.
func (m *Manager) Release(project string, u housing.UnitType) (available int, err error) {
	c, err := m.get(project, u)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.available >= c.total {
		return c.available, fmt.Errorf("%w: %s %s available=%d total=%d", housing.ErrInventoryOverflow, project, u, c.available, c.total)
	}
	c.available++
	return c.available, nil
}

// Guard runs fn with the current available count while holding the counter
// lock, so a decision based on stock cannot interleave with a reservation.
func (m *Manager) Guard(project string, u housing.UnitType, fn func(available int) error) error {
	c, err := m.get(project, u)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.available)
}

// Resize changes the declared supply, keeping issued units fixed. It fails if
// more units are already issued than the new total.
func (m *Manager) Resize(project string, u housing.UnitType, total int) error {
	c, err := m.get(project, u)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	issued := c.total - c.available
	if total < issued {
		return fmt.Errorf("%w: %s %s has %d units issued, cannot shrink to %d", housing.ErrInvalidProject, project, u, issued, total)
	}
	c.total = total
	c.available = total - issued
	return nil
}

func (m *Manager) Units(project string) (map[housing.UnitType]housing.Units, error) {
	out := make(map[housing.UnitType]housing.Units, len(housing.UnitTypes))
	for _, u := range housing.UnitTypes {
		c, err := m.get(project, u)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		out[u] = housing.Units{Total: c.total, Available: c.available}
		c.mu.Unlock()
	}
	return out, nil
}
