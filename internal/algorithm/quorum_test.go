package algorithm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	planerrors "github.com/devrev/pairdb/placement/internal/errors"
	"github.com/devrev/pairdb/placement/internal/model"
)

func TestCalculateQuorum(t *testing.T) {
	q := NewQuorumCalculator(nil)

	tests := []struct {
		replicas int
		want     int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
		{6, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, q.CalculateQuorum(tt.replicas), "quorum of %d", tt.replicas)
	}
}

func TestEvaluate_BlockFor(t *testing.T) {
	q := NewQuorumCalculator(nil)
	topo := twoDCTopology()
	allFull := []model.Replica{full(ep1), full(ep2), full(ep3)}
	withTransient := []model.Replica{full(ep1), full(ep2), trans(ep3)}

	tests := []struct {
		name    string
		level   model.ConsistencyLevel
		natural []model.Replica
		want    int
	}{
		{"any", model.Any, allFull, 1},
		{"one", model.One, allFull, 1},
		{"two", model.Two, allFull, 2},
		{"three", model.Three, allFull, 3},
		{"quorum", model.Quorum, allFull, 2},
		{"all", model.All, allFull, 3},
		{"quorum counts full only", model.Quorum, withTransient, 2},
		{"all counts full only", model.All, withTransient, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := q.Evaluate(tt.level, model.Simple(rf(3, 0)), tt.natural, nil, topo, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.BlockFor)
		})
	}
}

func TestEvaluate_PendingFullReplicasRaiseBlockFor(t *testing.T) {
	q := NewQuorumCalculator(nil)
	natural := []model.Replica{full(ep1), full(ep2), full(ep3)}

	req, err := q.Evaluate(model.Quorum, model.Simple(rf(3, 0)), natural, []model.Replica{full(ep4)}, twoDCTopology(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, req.BlockFor)

	req, err = q.Evaluate(model.Quorum, model.Simple(rf(3, 0)), natural, []model.Replica{trans(ep4)}, twoDCTopology(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, req.BlockFor)
}

func TestEvaluate_LocalQuorum(t *testing.T) {
	q := NewQuorumCalculator(nil)
	params := model.NetworkTopology(map[string]model.ReplicationFactor{"DC1": rf(3, 0), "DC2": rf(2, 0)})
	natural := []model.Replica{full(ep1), full(ep2), full(ep3), full(ep4), full(ep5)}

	req, err := q.Evaluate(model.LocalQuorum, params, natural, nil, twoDCTopology(), "DC1")
	require.NoError(t, err)
	assert.Equal(t, 2, req.BlockFor)
	assert.Equal(t, "DC1", req.LocalDatacenter)

	req, err = q.Evaluate(model.LocalQuorum, params, natural, nil, twoDCTopology(), "DC2")
	require.NoError(t, err)
	assert.Equal(t, 2, req.BlockFor)

	_, err = q.Evaluate(model.LocalOne, params, natural, nil, twoDCTopology(), "")
	assert.True(t, errors.Is(err, planerrors.ErrUnsupportedConsistencyLevel))
}

func TestEvaluate_EachQuorum(t *testing.T) {
	q := NewQuorumCalculator(nil)
	params := model.NetworkTopology(map[string]model.ReplicationFactor{"DC1": rf(3, 1), "DC2": rf(3, 0)})
	natural := []model.Replica{full(ep1), full(ep2), trans(ep3), full(ep4), full(ep5), full(ep6)}

	req, err := q.Evaluate(model.EachQuorum, params, natural, nil, twoDCTopology(), "DC1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"DC1": 2, "DC2": 2}, req.PerDatacenter)
	assert.Equal(t, 4, req.BlockFor)

	_, err = q.Evaluate(model.EachQuorum, model.Simple(rf(3, 0)), natural, nil, twoDCTopology(), "DC1")
	assert.True(t, errors.Is(err, planerrors.ErrUnsupportedConsistencyLevel))
}

func TestEvaluate_EmptyNatural(t *testing.T) {
	q := NewQuorumCalculator(nil)
	_, err := q.Evaluate(model.One, model.Simple(rf(3, 0)), nil, nil, twoDCTopology(), "")
	assert.True(t, errors.Is(err, planerrors.ErrEmptyReplicaSet))
	assert.False(t, planerrors.IsRetryable(err))
}

func TestRequirement_IsSatisfiedBy(t *testing.T) {
	q := NewQuorumCalculator(nil)
	topo := twoDCTopology()
	natural := []model.Replica{full(ep1), full(ep2), trans(ep3)}
	req, err := q.Evaluate(model.Quorum, model.Simple(rf(3, 1)), natural, nil, topo, "")
	require.NoError(t, err)

	assert.True(t, req.IsSatisfiedBy([]model.Replica{full(ep1), full(ep2)}, topo))
	assert.True(t, req.IsSatisfiedBy([]model.Replica{full(ep1), trans(ep3)}, topo))
	assert.False(t, req.IsSatisfiedBy([]model.Replica{full(ep1)}, topo))

	// A transient replica alone never vouches for complete data
	one, err := q.Evaluate(model.One, model.Simple(rf(3, 1)), natural, nil, topo, "")
	require.NoError(t, err)
	assert.False(t, one.IsSatisfiedBy([]model.Replica{trans(ep3)}, topo))
	assert.True(t, one.IsSatisfiedBy([]model.Replica{full(ep2)}, topo))
}

func TestRequirement_AnyIsAlwaysSatisfied(t *testing.T) {
	q := NewQuorumCalculator(nil)
	req, err := q.Evaluate(model.Any, model.Simple(rf(3, 0)), []model.Replica{full(ep1)}, nil, twoDCTopology(), "")
	require.NoError(t, err)
	assert.True(t, req.IsSatisfiedBy(nil, twoDCTopology()))
}

func TestRequirement_NeverPolicyIgnoresTransient(t *testing.T) {
	q := NewQuorumCalculator(model.TransientPolicies{model.Quorum: model.TransientNever})
	topo := twoDCTopology()
	natural := []model.Replica{full(ep1), full(ep2), trans(ep3)}

	req, err := q.Evaluate(model.Quorum, model.Simple(rf(3, 1)), natural, nil, topo, "")
	require.NoError(t, err)
	assert.Equal(t, model.TransientNever, req.Policy)
	assert.False(t, req.CountsTowards(trans(ep3), topo))
	assert.False(t, req.IsSatisfiedBy([]model.Replica{full(ep1), trans(ep3)}, topo))
}

func TestRequirement_ShortfallPerDatacenter(t *testing.T) {
	q := NewQuorumCalculator(nil)
	topo := twoDCTopology()
	params := model.NetworkTopology(map[string]model.ReplicationFactor{"DC1": rf(3, 1), "DC2": rf(3, 1)})
	natural := []model.Replica{full(ep1), full(ep2), trans(ep3), full(ep4), full(ep5), trans(ep6)}

	req, err := q.Evaluate(model.EachQuorum, params, natural, nil, topo, "")
	require.NoError(t, err)

	short := req.Shortfall([]model.Replica{full(ep1), full(ep4), full(ep5)}, topo)
	assert.Equal(t, map[string]int{"DC1": 1}, short)

	err = req.Unavailable([]model.Replica{full(ep1), full(ep4), full(ep5)}, topo)
	require.True(t, errors.Is(err, planerrors.ErrUnavailable))
	var pe *planerrors.PlanError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 4, pe.Details["required"])
	assert.Equal(t, 3, pe.Details["alive"])
	assert.Equal(t, map[string][2]int{"DC1": {2, 1}, "DC2": {2, 2}}, pe.Details["per_datacenter"])
}
