package inventory

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ariefcatur/go-housing-allocation/internal/housing"
)

type ManagerSuite struct {
	suite.Suite
	m *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.m = NewManager()
	s.Require().NoError(s.m.Register("Acacia", map[housing.UnitType]housing.Units{
		housing.TwoRoom:   {Total: 2, Available: 2},
		housing.ThreeRoom: {Total: 1, Available: 0},
	}))
}

func (s *ManagerSuite) TestRegister() {
	s.Run("duplicate project rejected", func() {
		err := s.m.Register("Acacia", nil)
		s.ErrorIs(err, housing.ErrProjectExists)
	})

	s.Run("available above total rejected", func() {
		err := s.m.Register("Bad", map[housing.UnitType]housing.Units{
			housing.TwoRoom: {Total: 1, Available: 2},
		})
		s.ErrorIs(err, housing.ErrInvalidProject)
	})

	s.Run("missing unit types start empty", func() {
		s.Require().NoError(s.m.Register("Bare", nil))
		units, err := s.m.Units("Bare")
		s.Require().NoError(err)
		s.Equal(housing.Units{}, units[housing.ThreeRoom])
	})
}

func (s *ManagerSuite) TestTryReserve() {
	left, err := s.m.TryReserve("Acacia", housing.TwoRoom)
	s.Require().NoError(err)
	s.Equal(1, left)

	left, err = s.m.TryReserve("Acacia", housing.TwoRoom)
	s.Require().NoError(err)
	s.Equal(0, left)

	_, err = s.m.TryReserve("Acacia", housing.TwoRoom)
	s.ErrorIs(err, housing.ErrNoUnitsLeft)

	_, err = s.m.TryReserve("Acacia", housing.ThreeRoom)
	s.ErrorIs(err, housing.ErrNoUnitsLeft)

	_, err = s.m.TryReserve("Nowhere", housing.TwoRoom)
	s.ErrorIs(err, housing.ErrNoSuchProject)
}

func (s *ManagerSuite) TestRelease() {
	s.Run("release beyond total is an overflow and changes nothing", func() {
		_, err := s.m.Release("Acacia", housing.TwoRoom)
		s.ErrorIs(err, housing.ErrInventoryOverflow)
		units, _ := s.m.Units("Acacia")
		s.Equal(2, units[housing.TwoRoom].Available)
	})

	s.Run("release after reserve restores the unit", func() {
		_, err := s.m.TryReserve("Acacia", housing.TwoRoom)
		s.Require().NoError(err)
		left, err := s.m.Release("Acacia", housing.TwoRoom)
		s.Require().NoError(err)
		s.Equal(2, left)
	})
}

func (s *ManagerSuite) TestResize() {
	_, err := s.m.TryReserve("Acacia", housing.TwoRoom)
	s.Require().NoError(err)

	s.Require().NoError(s.m.Resize("Acacia", housing.TwoRoom, 5))
	units, _ := s.m.Units("Acacia")
	s.Equal(housing.Units{Total: 5, Available: 4}, units[housing.TwoRoom])

	s.ErrorIs(s.m.Resize("Acacia", housing.TwoRoom, 0), housing.ErrInvalidProject)
	s.Require().NoError(s.m.Resize("Acacia", housing.TwoRoom, 1))
	units, _ = s.m.Units("Acacia")
	s.Equal(housing.Units{Total: 1, Available: 0}, units[housing.TwoRoom])
}

func (s *ManagerSuite) TestGuardSeesStock() {
	var seen int
	err := s.m.Guard("Acacia", housing.TwoRoom, func(available int) error {
		seen = available
		return nil
	})
	s.Require().NoError(err)
	s.Equal(2, seen)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register("Birch", map[housing.UnitType]housing.Units{
		housing.TwoRoom: {Total: 5, Available: 5},
	}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.TryReserve("Birch", housing.TwoRoom); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), wins.Load())
	units, err := m.Units("Birch")
	require.NoError(t, err)
	assert.Equal(t, housing.Units{Total: 5, Available: 0}, units[housing.TwoRoom])
}
