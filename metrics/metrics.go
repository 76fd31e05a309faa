// Package metrics exposes Prometheus counters/gauges for the engine's
// ticks, states, pobs, and propagations.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every gauge/counter the engine reports to, directly from
// Engine.Step and through its hub observer adapter.
type Metrics struct {
	StatesAdded       prometheus.Counter
	StatesRemoved     prometheus.Counter
	PobsOpen          prometheus.Gauge
	PropagationsTotal prometheus.Counter
	TicksTotal        *prometheus.CounterVec
}

// New registers a fresh Metrics set on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StatesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bisym_states_added_total",
			Help: "Total execution states created.",
		}),
		StatesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bisym_states_removed_total",
			Help: "Total execution states removed (terminated or pruned).",
		}),
		PobsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bisym_pobs_open",
			Help: "Proof obligations currently open in the hub.",
		}),
		PropagationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bisym_propagations_total",
			Help: "Total propagations recorded across all proof obligations.",
		}),
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bisym_ticks_total",
			Help: "Scheduler ticks, partitioned by slot.",
		}, []string{"slot"}),
	}

	reg.MustRegister(m.StatesAdded, m.StatesRemoved, m.PobsOpen, m.PropagationsTotal, m.TicksTotal)
	return m
}

// ObserveStates updates the state counters from a hub StateEvent-shaped delta.
func (m *Metrics) ObserveStates(added, removed int) {
	m.StatesAdded.Add(float64(added))
	m.StatesRemoved.Add(float64(removed))
}

// ObserveTick records a scheduler step for slot.
func (m *Metrics) ObserveTick(slot string) {
	m.TicksTotal.WithLabelValues(slot).Inc()
}

// SetPobsOpen sets the current open-pob gauge.
func (m *Metrics) SetPobsOpen(n int) {
	m.PobsOpen.Set(float64(n))
}

// ObservePropagation records one propagation.
func (m *Metrics) ObservePropagation() {
	m.PropagationsTotal.Inc()
}
