package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Plan metrics
	PlansTotal       *prometheus.CounterVec
	PlanDuration     *prometheus.HistogramVec
	PlanErrors       *prometheus.CounterVec
	PlanContacts     *prometheus.HistogramVec
	InsufficientLive *prometheus.CounterVec
	PendingPlans     *prometheus.CounterVec
	RangeMerges      *prometheus.CounterVec

	// Topology metrics
	TopologyEpoch   prometheus.Gauge
	NodesRegistered prometheus.Gauge
	NodesAlive      prometheus.Gauge
}

// NewMetrics creates metrics registered with the default registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates metrics registered with reg
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PlansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placement_plans_total",
				Help: "Total number of replica plans built",
			},
			[]string{"operation", "consistency"},
		),

		PlanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "placement_plan_duration_seconds",
				Help:    "Duration of replica plan computation",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"operation"},
		),

		PlanErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placement_plan_errors_total",
				Help: "Total number of plans that could not be built",
			},
			[]string{"operation", "error_code"},
		),

		PlanContacts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "placement_plan_contacts",
				Help:    "Number of replicas a plan contacts",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 9, 12},
			},
			[]string{"operation"},
		),

		InsufficientLive: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placement_insufficient_live_total",
				Help: "Total number of plans built with too few live replicas",
			},
			[]string{"operation", "consistency"},
		),

		PendingPlans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placement_pending_plans_total",
				Help: "Total number of plans that include pending replicas",
			},
			[]string{"operation"},
		),

		RangeMerges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placement_range_merges_total",
				Help: "Total number of adjacent range plan merge attempts",
			},
			[]string{"result"},
		),

		TopologyEpoch: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "placement_topology_epoch",
				Help: "Epoch of the published topology snapshot",
			},
		),

		NodesRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "placement_nodes_registered",
				Help: "Number of nodes in the published topology",
			},
		),

		NodesAlive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "placement_nodes_alive",
				Help: "Number of registered nodes the failure detector reports alive",
			},
		),
	}
}

// RecordPlan records a successfully built plan
func (m *Metrics) RecordPlan(operation, consistency string, contacts int, sufficient, hasPending bool, duration float64) {
	m.PlansTotal.WithLabelValues(operation, consistency).Inc()
	m.PlanDuration.WithLabelValues(operation).Observe(duration)
	m.PlanContacts.WithLabelValues(operation).Observe(float64(contacts))
	if !sufficient {
		m.InsufficientLive.WithLabelValues(operation, consistency).Inc()
	}
	if hasPending {
		m.PendingPlans.WithLabelValues(operation).Inc()
	}
}

// RecordError records a plan that failed
func (m *Metrics) RecordError(operation, errorCode string) {
	m.PlanErrors.WithLabelValues(operation, errorCode).Inc()
}

// RecordRangeMerge records the outcome of a range merge attempt
func (m *Metrics) RecordRangeMerge(merged bool) {
	result := "rejected"
	if merged {
		result = "merged"
	}
	m.RangeMerges.WithLabelValues(result).Inc()
}

// UpdateTopology updates the topology gauges
func (m *Metrics) UpdateTopology(epoch uint64, registered, alive int) {
	m.TopologyEpoch.Set(float64(epoch))
	m.NodesRegistered.Set(float64(registered))
	m.NodesAlive.Set(float64(alive))
}
