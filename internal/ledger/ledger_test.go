package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-housing-allocation/internal/housing"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestBeginEnforcesSingleActiveApplication(t *testing.T) {
	l := New(WithClock(fixedClock()))

	rec, err := l.Begin("S1234567A", "Acacia", housing.TwoRoom)
	require.NoError(t, err)
	assert.Equal(t, housing.StatusPending, rec.Status)
	assert.NotEmpty(t, rec.ID)

	_, err = l.Begin("S1234567A", "Birch", housing.ThreeRoom)
	assert.ErrorIs(t, err, housing.ErrAlreadyApplied)

	cur, ok := l.Current("S1234567A")
	require.True(t, ok)
	assert.Equal(t, rec.ID, cur.ID)
}

func TestReapplyAfterTerminalStatus(t *testing.T) {
	l := New(WithClock(fixedClock()))
	rec, err := l.Begin("S1", "Acacia", housing.TwoRoom)
	require.NoError(t, err)

	rec.Status = housing.StatusUnsuccessful
	_, err = l.Update(rec)
	require.NoError(t, err)

	_, ok := l.Active("S1")
	assert.False(t, ok)

	next, err := l.Begin("S1", "Birch", housing.TwoRoom)
	require.NoError(t, err)

	cur, _ := l.Current("S1")
	assert.Equal(t, next.ID, cur.ID)
	assert.Len(t, l.All(), 2, "terminal records are retained")
}

func TestUpdate(t *testing.T) {
	l := New(WithClock(fixedClock()))
	rec, err := l.Begin("S1", "Acacia", housing.TwoRoom)
	require.NoError(t, err)

	t.Run("unknown record", func(t *testing.T) {
		_, err := l.Update(housing.Application{ID: "missing"})
		assert.ErrorIs(t, err, housing.ErrNoSuchApplication)
	})

	t.Run("illegal status jump", func(t *testing.T) {
		bad := rec
		bad.Status = housing.StatusBooked
		_, err := l.Update(bad)
		assert.ErrorIs(t, err, housing.ErrInvalidTransition)
		cur, _ := l.Current("S1")
		assert.Equal(t, housing.StatusPending, cur.Status)
	})

	t.Run("identity fields are immutable", func(t *testing.T) {
		bad := rec
		bad.UnitType = housing.ThreeRoom
		_, err := l.Update(bad)
		assert.ErrorIs(t, err, housing.ErrInvalidTransition)
	})

	t.Run("flag change keeps status", func(t *testing.T) {
		next := rec
		next.Status = housing.StatusSuccessful
		got, err := l.Update(next)
		require.NoError(t, err)
		got.WithdrawalRequested = true
		got, err = l.Update(got)
		require.NoError(t, err)
		assert.True(t, got.WithdrawalRequested)
		assert.Equal(t, rec.CreatedAt, got.CreatedAt)
		assert.True(t, got.UpdatedAt.After(rec.UpdatedAt))
	})
}

func TestByProjectFilters(t *testing.T) {
	l := New(WithClock(fixedClock()))
	a, _ := l.Begin("S1", "Acacia", housing.TwoRoom)
	_, _ = l.Begin("S2", "Acacia", housing.ThreeRoom)
	_, _ = l.Begin("S3", "Birch", housing.TwoRoom)

	a.Status = housing.StatusSuccessful
	_, err := l.Update(a)
	require.NoError(t, err)

	assert.Len(t, l.ByProject("Acacia"), 2)
	succ := l.ByProject("Acacia", housing.StatusSuccessful)
	require.Len(t, succ, 1)
	assert.Equal(t, "S1", succ[0].ApplicantID)
	assert.Equal(t, 2, l.CountActive("Acacia"))
	assert.Empty(t, l.ByProject("Acacia", housing.StatusBooked))
}

func TestRestoreRejectsTwoActiveRecords(t *testing.T) {
	l := New()
	err := l.Restore([]housing.Application{
		{ID: "a", ApplicantID: "S1", Project: "Acacia", UnitType: housing.TwoRoom, Status: housing.StatusBooked},
		{ID: "b", ApplicantID: "S1", Project: "Birch", UnitType: housing.TwoRoom, Status: housing.StatusPending},
	})
	assert.ErrorIs(t, err, housing.ErrInconsistentState)
}

func TestRestoreKeepsHistory(t *testing.T) {
	l := New()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.Restore([]housing.Application{
		{ID: "a", ApplicantID: "S1", Project: "Acacia", UnitType: housing.TwoRoom, Status: housing.StatusWithdrawn, CreatedAt: t0},
		{ID: "b", ApplicantID: "S1", Project: "Birch", UnitType: housing.TwoRoom, Status: housing.StatusPending, CreatedAt: t0.Add(time.Hour)},
	}))
	cur, ok := l.Current("S1")
	require.True(t, ok)
	assert.Equal(t, "b", cur.ID)
}
