package housing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func stocked(two, three int) Project {
	return Project{
		Name:    "Acacia",
		Visible: true,
		Units: map[UnitType]Units{
			TwoRoom:   {Total: two, Available: two},
			ThreeRoom: {Total: three, Available: three},
		},
	}
}

func TestEligibleUnitTypes(t *testing.T) {
	cases := []struct {
		name    string
		age     int
		marital MaritalStatus
		project Project
		want    []UnitType
	}{
		{"single at 35", 35, Single, stocked(1, 1), []UnitType{TwoRoom}},
		{"single at 34", 34, Single, stocked(1, 1), nil},
		{"single without 2-room stock", 50, Single, stocked(0, 4), nil},
		{"married at 21", 21, Married, stocked(1, 1), []UnitType{TwoRoom, ThreeRoom}},
		{"married at 20", 20, Married, stocked(1, 1), nil},
		{"married only 3-room left", 30, Married, stocked(0, 2), []UnitType{ThreeRoom}},
		{"unknown marital status", 60, MaritalStatus("Widowed"), stocked(1, 1), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EligibleUnitTypes(tc.age, tc.marital, tc.project))
		})
	}

	t.Run("hidden project", func(t *testing.T) {
		p := stocked(3, 3)
		p.Visible = false
		assert.Empty(t, EligibleUnitTypes(40, Married, p))
	})
}

func TestIsAllowedIgnoresStock(t *testing.T) {
	assert.True(t, IsAllowed(35, Single, TwoRoom))
	assert.False(t, IsAllowed(35, Single, ThreeRoom))
	assert.True(t, IsAllowed(21, Married, ThreeRoom))
	assert.False(t, IsAllowed(20, Married, TwoRoom))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusSuccessful))
	assert.True(t, CanTransition(StatusBooked, StatusWithdrawn))
	assert.False(t, CanTransition(StatusPending, StatusBooked))
	assert.False(t, CanTransition(StatusWithdrawn, StatusPending))
	assert.False(t, CanTransition(StatusUnsuccessful, StatusSuccessful))

	for _, s := range []Status{StatusPending, StatusSuccessful, StatusBooked} {
		assert.True(t, s.Active(), s)
	}
	for _, s := range []Status{StatusNone, StatusUnsuccessful, StatusWithdrawn} {
		assert.False(t, s.Active(), s)
	}
}

func TestOverlaps(t *testing.T) {
	a := Project{OpenDate: mustDate("2025-01-01"), CloseDate: mustDate("2025-01-31")}
	b := Project{OpenDate: mustDate("2025-01-31"), CloseDate: mustDate("2025-02-10")}
	c := Project{OpenDate: mustDate("2025-02-01"), CloseDate: mustDate("2025-02-10")}
	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c))
	assert.False(t, c.Overlaps(a))
}
