package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestUnitsGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetUnits("Acacia", "2-room", 4, 3)
	m.SetUnits("Acacia", "3-room", 2, 2)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.UnitsAvailable.WithLabelValues("Acacia", "2-room")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.UnitsTotal.WithLabelValues("Acacia", "2-room")))

	m.DropProject("Acacia", "2-room", "3-room")
	assert.Equal(t, 0, testutil.CollectAndCount(m.UnitsAvailable))
	assert.Equal(t, 0, testutil.CollectAndCount(m.UnitsTotal))
}

func TestObserveTransition(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveTransition("apply", "ok")
	m.ObserveTransition("apply", "ok")
	m.ObserveTransition("apply", "no_units_left")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("apply", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("apply", "no_units_left")))
}
