package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordPlan(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	m.RecordPlan("write", "QUORUM", 3, true, false, 0.0001)
	m.RecordPlan("write", "QUORUM", 1, false, true, 0.0001)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PlansTotal.WithLabelValues("write", "QUORUM")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InsufficientLive.WithLabelValues("write", "QUORUM")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PendingPlans.WithLabelValues("write")))
}

func TestMetrics_Topology(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	m.UpdateTopology(7, 6, 5)
	m.RecordRangeMerge(true)
	m.RecordRangeMerge(false)
	m.RecordError("read", "UNAVAILABLE")

	assert.Equal(t, 7.0, testutil.ToFloat64(m.TopologyEpoch))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.NodesAlive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RangeMerges.WithLabelValues("merged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlanErrors.WithLabelValues("read", "UNAVAILABLE")))
}
