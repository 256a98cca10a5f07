package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the allocation service.
type Metrics struct {
	Transitions    *prometheus.CounterVec
	UnitsAvailable *prometheus.GaugeVec
	UnitsTotal     *prometheus.GaugeVec
	PersistErrors  prometheus.Counter
	EventsConsumed *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "housing_allocation_transitions_total",
			Help: "Allocation operations by name and outcome (ok or the error kind)",
		}, []string{"operation", "outcome"}),
		UnitsAvailable: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "housing_units_available",
			Help: "Bookable units per project and unit type",
		}, []string{"project", "unit_type"}),
		UnitsTotal: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "housing_units_total",
			Help: "Declared units per project and unit type",
		}, []string{"project", "unit_type"}),
		PersistErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "housing_persist_errors_total",
			Help: "Committed transitions whose write to the record store failed",
		}),
		EventsConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "housing_events_consumed_total",
			Help: "Allocation events handled by the projector, by type",
		}, []string{"event_type"}),
	}
}

func (m *Metrics) ObserveTransition(operation, outcome string) {
	m.Transitions.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) SetUnits(project, unitType string, total, available int) {
	m.UnitsTotal.WithLabelValues(project, unitType).Set(float64(total))
	m.UnitsAvailable.WithLabelValues(project, unitType).Set(float64(available))
}

func (m *Metrics) DropProject(project string, unitTypes ...string) {
	for _, u := range unitTypes {
		m.UnitsTotal.DeleteLabelValues(project, u)
		m.UnitsAvailable.DeleteLabelValues(project, u)
	}
}
