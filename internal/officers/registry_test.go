package officers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ariefcatur/go-housing-allocation/internal/housing"
)

type RegistrySuite struct {
	suite.Suite
	r *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.r = New()
	s.r.Open("Acacia", housing.MaxOfficerSlots)
}

func (s *RegistrySuite) TestRequestIsIdempotent() {
	a, created, err := s.r.Request("T100", "Acacia")
	s.Require().NoError(err)
	s.True(created)
	s.Equal(housing.AssignmentPending, a.State)

	_, created, err = s.r.Request("T100", "Acacia")
	s.Require().NoError(err)
	s.False(created)
	s.Len(s.r.Pending("Acacia"), 1)

	_, _, err = s.r.Request("T100", "Nowhere")
	s.ErrorIs(err, housing.ErrNoSuchProject)
}

func (s *RegistrySuite) TestApproveTwiceFails() {
	_, _, err := s.r.Request("T100", "Acacia")
	s.Require().NoError(err)

	a, err := s.r.Decide("T100", "Acacia", true)
	s.Require().NoError(err)
	s.Equal(housing.AssignmentApproved, a.State)
	s.NotNil(a.DecidedAt)

	_, err = s.r.Decide("T100", "Acacia", true)
	s.ErrorIs(err, housing.ErrInvalidTransition)
	s.Len(s.r.Roster("Acacia"), 1)
	s.True(s.r.IsApproved("T100", "Acacia"))

	_, created, err := s.r.Request("T100", "Acacia")
	s.Require().NoError(err)
	s.False(created, "approved officer is not re-queued")
	s.Empty(s.r.Pending("Acacia"))
}

func (s *RegistrySuite) TestRejectRemovesFromPending() {
	_, _, err := s.r.Request("T100", "Acacia")
	s.Require().NoError(err)
	_, err = s.r.Decide("T100", "Acacia", false)
	s.Require().NoError(err)
	s.Empty(s.r.Pending("Acacia"))
	s.Empty(s.r.Roster("Acacia"))
	s.Empty(s.r.AssignmentsFor("T100"))
}

func (s *RegistrySuite) TestRosterFull() {
	for i := range housing.MaxOfficerSlots {
		id := fmt.Sprintf("T%03d", i)
		_, _, err := s.r.Request(id, "Acacia")
		s.Require().NoError(err)
		_, err = s.r.Decide(id, "Acacia", true)
		s.Require().NoError(err)
	}

	_, _, err := s.r.Request("T999", "Acacia")
	s.Require().NoError(err)
	_, err = s.r.Decide("T999", "Acacia", true)
	s.ErrorIs(err, housing.ErrRosterFull)
	s.Len(s.r.Roster("Acacia"), housing.MaxOfficerSlots)
	s.False(s.r.IsApproved("T999", "Acacia"))
	s.Len(s.r.Pending("Acacia"), 1)
}

func (s *RegistrySuite) TestSmallerCapAndResize() {
	s.r.Open("Birch", 1)
	_, _, _ = s.r.Request("T1", "Birch")
	_, _, _ = s.r.Request("T2", "Birch")
	_, err := s.r.Decide("T1", "Birch", true)
	s.Require().NoError(err)
	_, err = s.r.Decide("T2", "Birch", true)
	s.ErrorIs(err, housing.ErrRosterFull)

	s.Require().NoError(s.r.Resize("Birch", 2))
	_, err = s.r.Decide("T2", "Birch", true)
	s.Require().NoError(err)
	s.ErrorIs(s.r.Resize("Birch", 1), housing.ErrInvalidProject)
}

func (s *RegistrySuite) TestRestore() {
	err := s.r.Restore([]housing.OfficerAssignment{
		{Project: "Acacia", OfficerID: "T1", State: housing.AssignmentApproved},
		{Project: "Acacia", OfficerID: "T2", State: housing.AssignmentPending},
	})
	s.Require().NoError(err)
	s.True(s.r.IsApproved("T1", "Acacia"))
	s.Len(s.r.All(), 2)

	err = s.r.Restore([]housing.OfficerAssignment{{Project: "Ghost", OfficerID: "T3", State: housing.AssignmentPending}})
	s.ErrorIs(err, housing.ErrInconsistentState)
}
