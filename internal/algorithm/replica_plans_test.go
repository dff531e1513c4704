package algorithm

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	planerrors "github.com/devrev/pairdb/placement/internal/errors"
	"github.com/devrev/pairdb/placement/internal/model"
)

func simpleKeyspace(factor model.ReplicationFactor) model.Keyspace {
	return model.Keyspace{Name: "ks", Replication: model.Simple(factor)}
}

func ntsKeyspace(factors map[string]model.ReplicationFactor) model.Keyspace {
	return model.Keyspace{Name: "ks", Replication: model.NetworkTopology(factors)}
}

func endpointsOf[S model.Scope](e model.Endpoints[S]) []model.Endpoint {
	return e.EndpointList()
}

func TestForWrite_AllFullContactsEveryLiveReplica(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")
	topo := twoDCTopology()

	plan, err := planner.ForWrite(topo, simpleKeyspace(rf(3, 0)), model.Quorum,
		forToken(full(ep1), full(ep2), full(ep3)), nil, model.EpochEmpty, AlwaysAlive, WriteNormal)
	require.NoError(t, err)

	assert.Equal(t, 2, plan.BlockFor())
	assert.Equal(t, model.EpochFirst, plan.Epoch())
	assert.Equal(t, []model.Endpoint{ep1, ep2, ep3}, endpointsOf(plan.Contacts()))
	assert.True(t, plan.Contacts().Equal(plan.NaturalAndPending()))
	assert.NoError(t, plan.AssureSufficientLive())
}

func TestForWrite_EachQuorumSkipsTransientWhenFullSuffice(t *testing.T) {
	planner := NewReplicaPlanner(nil, "DC1")
	ks := ntsKeyspace(map[string]model.ReplicationFactor{"DC1": rf(3, 1), "DC2": rf(3, 1)})
	natural := forToken(full(ep1), full(ep2), trans(ep3), full(ep4), full(ep5), trans(ep6))

	plan, err := planner.ForWrite(twoDCTopology(), ks, model.EachQuorum, natural, nil, model.EpochEmpty, AlwaysAlive, WriteNormal)
	require.NoError(t, err)

	assert.Equal(t, 4, plan.BlockFor())
	assert.Equal(t, map[string]int{"DC1": 2, "DC2": 2}, plan.Requirement().PerDatacenter)
	assert.Equal(t, []model.Endpoint{ep1, ep2, ep4, ep5}, endpointsOf(plan.Contacts()))
	assert.Equal(t, 6, plan.Live().Size())
}

func TestForWrite_EachQuorumFillsShortDatacenterWithTransient(t *testing.T) {
	planner := NewReplicaPlanner(nil, "DC1")
	ks := ntsKeyspace(map[string]model.ReplicationFactor{"DC1": rf(3, 1), "DC2": rf(3, 1)})
	natural := forToken(full(ep1), full(ep2), trans(ep3), full(ep4), full(ep5), trans(ep6))

	plan, err := planner.ForWrite(twoDCTopology(), ks, model.EachQuorum, natural, nil, model.EpochEmpty, down(ep2), WriteNormal)
	require.NoError(t, err)

	// DC2 is already satisfied by full replicas so ep6 stays out
	assert.Equal(t, []model.Endpoint{ep1, ep3, ep4, ep5}, endpointsOf(plan.Contacts()))
	assert.True(t, plan.IsSufficientLive())
}

func TestForWrite_TransientPolicies(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")
	ks := simpleKeyspace(rf(3, 1))
	natural := forToken(full(ep1), full(ep2), trans(ep3))

	t.Run("all never contacts transient", func(t *testing.T) {
		plan, err := planner.ForWrite(twoDCTopology(), ks, model.All, natural, nil, model.EpochEmpty, AlwaysAlive, WriteNormal)
		require.NoError(t, err)
		assert.Equal(t, 2, plan.BlockFor())
		assert.Equal(t, []model.Endpoint{ep1, ep2}, endpointsOf(plan.Contacts()))
	})

	t.Run("any contacts every live replica", func(t *testing.T) {
		plan, err := planner.ForWrite(twoDCTopology(), ks, model.Any, natural, nil, model.EpochEmpty, down(ep1), WriteNormal)
		require.NoError(t, err)
		assert.Equal(t, []model.Endpoint{ep2, ep3}, endpointsOf(plan.Contacts()))
		assert.NoError(t, plan.AssureSufficientLive())
	})

	t.Run("quorum fills shortfall", func(t *testing.T) {
		plan, err := planner.ForWrite(twoDCTopology(), ks, model.Quorum, natural, nil, model.EpochEmpty, down(ep1), WriteNormal)
		require.NoError(t, err)
		assert.Equal(t, []model.Endpoint{ep2, ep3}, endpointsOf(plan.Contacts()))
		assert.NoError(t, plan.AssureSufficientLive())
	})

	t.Run("write all selector", func(t *testing.T) {
		plan, err := planner.ForWrite(twoDCTopology(), ks, model.Quorum, natural, nil, model.EpochEmpty, AlwaysAlive, WriteAll)
		require.NoError(t, err)
		assert.Equal(t, "all", plan.Selector())
		assert.Equal(t, []model.Endpoint{ep1, ep2, ep3}, endpointsOf(plan.Contacts()))
	})
}

func TestForWrite_PendingReplicasAlwaysContacted(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")
	pending := forToken(full(ep4))

	plan, err := planner.ForWrite(twoDCTopology(), simpleKeyspace(rf(3, 0)), model.One,
		forToken(full(ep1), full(ep2), full(ep3)), pending, model.EpochEmpty, AlwaysAlive, WriteNormal)
	require.NoError(t, err)

	assert.Equal(t, []model.Endpoint{ep1, ep2, ep3, ep4}, endpointsOf(plan.Contacts()))
	assert.Equal(t, []model.Endpoint{ep4}, endpointsOf(plan.Pending()))
	assert.Equal(t, 1, plan.BlockFor())

	quorum, err := planner.ForWrite(twoDCTopology(), simpleKeyspace(rf(3, 0)), model.Quorum,
		forToken(full(ep1), full(ep2), full(ep3)), pending, model.EpochEmpty, AlwaysAlive, WriteNormal)
	require.NoError(t, err)
	assert.Equal(t, 3, quorum.BlockFor())
}

func TestForWrite_TransientPromotionCountsOnce(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")

	plan, err := planner.ForWrite(twoDCTopology(), simpleKeyspace(rf(3, 1)), model.Quorum,
		forToken(full(ep1), full(ep2), trans(ep3)), forToken(full(ep3)), model.EpochEmpty, AlwaysAlive, WriteNormal)
	require.NoError(t, err)

	assert.True(t, plan.Pending().IsEmpty())
	assert.Equal(t, 3, plan.NaturalAndPending().CountFull())
	assert.Equal(t, 2, plan.BlockFor())
	assert.Equal(t, []model.Endpoint{ep1, ep2, ep3}, endpointsOf(plan.Contacts()))
}

func TestForWrite_InsufficientLiveIsReportedNotFailed(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")

	plan, err := planner.ForWrite(twoDCTopology(), simpleKeyspace(rf(3, 0)), model.Quorum,
		forToken(full(ep1), full(ep2), full(ep3)), nil, model.EpochEmpty, down(ep2, ep3), WriteNormal)
	require.NoError(t, err)

	assert.Equal(t, []model.Endpoint{ep1}, endpointsOf(plan.Contacts()))
	assert.False(t, plan.IsSufficientLive())

	err = plan.AssureSufficientLive()
	require.Error(t, err)
	assert.True(t, errors.Is(err, planerrors.ErrUnavailable))
	assert.True(t, planerrors.IsRetryable(err))
}

func TestForWrite_OnlyTransientAliveIsInsufficient(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")

	plan, err := planner.ForWrite(twoDCTopology(), simpleKeyspace(rf(3, 1)), model.One,
		forToken(full(ep1), full(ep2), trans(ep3)), nil, model.EpochEmpty, down(ep1, ep2), WriteNormal)
	require.NoError(t, err)
	assert.False(t, plan.IsSufficientLive())
}

func TestForWrite_ConfigurationErrors(t *testing.T) {
	topo := twoDCTopology()

	_, err := NewReplicaPlanner(nil, "").ForWrite(topo, simpleKeyspace(rf(3, 0)), model.One,
		forToken(), nil, model.EpochEmpty, AlwaysAlive, WriteNormal)
	assert.True(t, errors.Is(err, planerrors.ErrEmptyReplicaSet))

	_, err = NewReplicaPlanner(nil, "").ForWrite(topo, simpleKeyspace(rf(3, 0)), model.LocalQuorum,
		forToken(full(ep1)), nil, model.EpochEmpty, AlwaysAlive, WriteNormal)
	assert.True(t, errors.Is(err, planerrors.ErrUnsupportedConsistencyLevel))

	_, err = NewReplicaPlanner(nil, "DC1").ForWrite(topo, simpleKeyspace(rf(3, 0)), model.EachQuorum,
		forToken(full(ep1)), nil, model.EpochEmpty, AlwaysAlive, WriteNormal)
	assert.True(t, errors.Is(err, planerrors.ErrUnsupportedConsistencyLevel))
	assert.False(t, planerrors.IsRetryable(err))

	_, err = NewReplicaPlanner(nil, "").ForWrite(topo, simpleKeyspace(rf(3, 0)), model.One,
		forToken(full(ep1)), nil, model.Epoch(7), AlwaysAlive, WriteNormal)
	assert.Equal(t, planerrors.ErrCodeInvalidArgument, planerrors.GetCode(err))

	_, err = NewReplicaPlanner(nil, "").ForWrite(topo, simpleKeyspace(rf(3, 0)), model.One,
		forToken(full(ep1), full(ep1)), nil, model.EpochEmpty, AlwaysAlive, WriteNormal)
	assert.True(t, errors.Is(err, planerrors.ErrDuplicateEndpoint))
}

func TestForWrite_Deterministic(t *testing.T) {
	planner := NewReplicaPlanner(nil, "DC1")
	ks := ntsKeyspace(map[string]model.ReplicationFactor{"DC1": rf(3, 1), "DC2": rf(3, 1)})
	natural := forToken(full(ep1), full(ep2), trans(ep3), full(ep4), full(ep5), trans(ep6))

	a, err := planner.ForWrite(twoDCTopology(), ks, model.LocalQuorum, natural, nil, model.EpochFirst, down(ep1), WriteNormal)
	require.NoError(t, err)
	b, err := planner.ForWrite(twoDCTopology(), ks, model.LocalQuorum, natural, nil, model.EpochFirst, down(ep1), WriteNormal)
	require.NoError(t, err)

	assert.True(t, a.Equal(&b.Plan))
	if diff := cmp.Diff(endpointsOf(a.Contacts()), endpointsOf(b.Contacts())); diff != "" {
		t.Errorf("contacts differ (-a +b):\n%s", diff)
	}
}

func TestForWrite_ContactsWithinLiveWithinNatural(t *testing.T) {
	planner := NewReplicaPlanner(nil, "DC1")
	ks := ntsKeyspace(map[string]model.ReplicationFactor{"DC1": rf(3, 1), "DC2": rf(3, 1)})
	natural := forToken(full(ep1), full(ep2), trans(ep3), full(ep4), trans(ep6))
	pending := forToken(full(ep5))
	all := []model.Endpoint{ep1, ep2, ep3, ep4, ep5, ep6}

	for _, level := range model.ConsistencyLevels {
		for mask := 0; mask < 1<<len(all); mask++ {
			var dead []model.Endpoint
			for i, ep := range all {
				if mask&(1<<i) != 0 {
					dead = append(dead, ep)
				}
			}
			plan, err := planner.ForWrite(twoDCTopology(), ks, level, natural, pending, model.EpochEmpty, down(dead...), WriteNormal)
			require.NoError(t, err, "level %s mask %b", level, mask)

			live := plan.Live().Endpoints()
			assert.True(t, plan.NaturalAndPending().Endpoints().IsSuperset(live), "live ⊆ naturalAndPending for %s", level)
			assert.True(t, live.IsSuperset(plan.Contacts().Endpoints()), "contacts ⊆ live for %s", level)
			for _, r := range plan.Pending().Replicas() {
				if live.Has(string(r.Endpoint())) {
					assert.True(t, plan.Contacts().Contains(r.Endpoint()), "live pending contacted for %s", level)
				}
			}
			for _, r := range plan.Live().Full().Replicas() {
				assert.True(t, plan.Contacts().Contains(r.Endpoint()), "live full contacted for %s", level)
			}
			if level == model.EachQuorum && plan.IsSufficientLive() {
				perDC := make(map[string]int)
				for _, ep := range plan.Contacts().EndpointList() {
					perDC[twoDCTopology().Datacenter(ep)]++
				}
				for dc, want := range plan.Requirement().PerDatacenter {
					assert.GreaterOrEqual(t, perDC[dc], want, "contacts in %s for mask %b", dc, mask)
				}
			}
		}
	}
}

func TestForTokenRead_MinimalContactsByProximity(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")
	natural := forToken(full(ep1), full(ep2), full(ep3))

	plan, err := planner.ForTokenRead(twoDCTopology(), simpleKeyspace(rf(3, 0)), model.Quorum, natural, nil,
		AlwaysAlive, ReadPolicy{Proximity: PreferEndpoint(ep3, "")})
	require.NoError(t, err)

	assert.Equal(t, []model.Endpoint{ep3, ep1, ep2}, endpointsOf(plan.Candidates()))
	assert.Equal(t, []model.Endpoint{ep1, ep3}, endpointsOf(plan.Contacts()))
	assert.Equal(t, []model.Endpoint{ep2}, endpointsOf(plan.SpeculativeCandidates()))

	extra, err := planner.ForTokenRead(twoDCTopology(), simpleKeyspace(rf(3, 0)), model.Quorum, natural, nil,
		AlwaysAlive, ReadPolicy{SpeculativeExtras: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, extra.Contacts().Size())
	assert.True(t, extra.SpeculativeCandidates().IsEmpty())
}

func TestForTokenRead_LocalOneStaysLocal(t *testing.T) {
	planner := NewReplicaPlanner(nil, "DC2")
	ks := ntsKeyspace(map[string]model.ReplicationFactor{"DC1": rf(3, 0), "DC2": rf(3, 0)})
	natural := forToken(full(ep1), full(ep2), full(ep3), full(ep4), full(ep5), full(ep6))

	plan, err := planner.ForTokenRead(twoDCTopology(), ks, model.LocalOne, natural, nil, AlwaysAlive, DefaultReadPolicy())
	require.NoError(t, err)
	assert.Equal(t, []model.Endpoint{ep4}, endpointsOf(plan.Contacts()))
	assert.Equal(t, []model.Endpoint{ep1, ep2, ep3, ep5, ep6}, endpointsOf(plan.SpeculativeCandidates()))

	near, err := planner.ForTokenRead(twoDCTopology(), ks, model.LocalOne, natural, nil, down(ep4),
		ReadPolicy{Proximity: PreferDatacenter("DC2")})
	require.NoError(t, err)
	assert.Equal(t, []model.Endpoint{ep5}, endpointsOf(near.Contacts()))
	assert.Equal(t, []model.Endpoint{ep6, ep1, ep2, ep3}, endpointsOf(near.SpeculativeCandidates()))
}

func TestForTokenRead_PendingExcludedUnlessRequested(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")
	natural := forToken(full(ep1), full(ep2), full(ep3))
	pending := forToken(full(ep4))

	plan, err := planner.ForTokenRead(twoDCTopology(), simpleKeyspace(rf(3, 0)), model.One, natural, pending, AlwaysAlive, DefaultReadPolicy())
	require.NoError(t, err)
	assert.Equal(t, 3, plan.NaturalAndPending().Size())
	assert.False(t, plan.Live().Contains(ep4))

	catchUp, err := planner.ForTokenRead(twoDCTopology(), simpleKeyspace(rf(3, 0)), model.One, natural, pending, AlwaysAlive,
		ReadPolicy{IncludePending: true})
	require.NoError(t, err)
	assert.Equal(t, 4, catchUp.NaturalAndPending().Size())
	assert.True(t, catchUp.Live().Contains(ep4))
}

func TestForTokenRead_Transient(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")
	ks := simpleKeyspace(rf(3, 1))
	natural := forToken(full(ep1), full(ep2), trans(ep3))

	all, err := planner.ForTokenRead(twoDCTopology(), ks, model.All, natural, nil, AlwaysAlive, DefaultReadPolicy())
	require.NoError(t, err)
	assert.Equal(t, []model.Endpoint{ep1, ep2}, endpointsOf(all.Contacts()))

	quorum, err := planner.ForTokenRead(twoDCTopology(), ks, model.Quorum, natural, nil, down(ep1), DefaultReadPolicy())
	require.NoError(t, err)
	assert.Equal(t, []model.Endpoint{ep2, ep3}, endpointsOf(quorum.Contacts()))
	assert.NoError(t, quorum.AssureSufficientLive())
}

func TestForTokenRead_AnyIsRejected(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")
	_, err := planner.ForTokenRead(twoDCTopology(), simpleKeyspace(rf(3, 0)), model.Any,
		forToken(full(ep1)), nil, AlwaysAlive, DefaultReadPolicy())
	assert.True(t, errors.Is(err, planerrors.ErrUnsupportedConsistencyLevel))
}

func TestForCounterWrite_PicksLocalLeader(t *testing.T) {
	planner := NewReplicaPlanner(nil, "DC2")
	ks := ntsKeyspace(map[string]model.ReplicationFactor{"DC1": rf(3, 0), "DC2": rf(3, 1)})
	natural := forToken(full(ep1), full(ep2), full(ep3), full(ep4), full(ep5), trans(ep6))

	plan, err := planner.ForCounterWrite(twoDCTopology(), ks, model.One, natural, down(ep4), nil)
	require.NoError(t, err)
	assert.Equal(t, []model.Endpoint{ep5}, endpointsOf(plan.Contacts()))

	remote, err := planner.ForCounterWrite(twoDCTopology(), ks, model.One, natural, down(ep4, ep5, ep6), nil)
	require.NoError(t, err)
	assert.Equal(t, []model.Endpoint{ep1}, endpointsOf(remote.Contacts()))

	local, err := planner.ForCounterWrite(twoDCTopology(), ks, model.LocalOne, natural, down(ep4, ep5), nil)
	require.NoError(t, err)
	assert.True(t, local.Contacts().IsEmpty())
	assert.Error(t, local.AssureSufficientLive())
}

func TestMergeRangeReads(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")
	ks := simpleKeyspace(rf(3, 0))
	left := model.TokenRange{Start: 0, End: 50}
	right := model.TokenRange{Start: 50, End: 100}
	replicas := []model.Replica{full(ep1), full(ep2), full(ep3)}

	build := func(rng model.TokenRange, isAlive LivenessFunc) *ForRangeRead {
		plan, err := planner.ForRangeRead(twoDCTopology(), ks, model.Quorum, forRange(rng, replicas...), nil, isAlive, DefaultReadPolicy())
		require.NoError(t, err)
		return plan
	}

	t.Run("adjacent ranges merge", func(t *testing.T) {
		merged, ok, err := planner.MergeRangeReads(build(left, AlwaysAlive), build(right, down(ep1)), nil, DefaultReadPolicy())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, model.TokenRange{Start: 0, End: 100}, merged.NaturalAndPending().Scope())
		assert.Equal(t, []model.Endpoint{ep2, ep3}, endpointsOf(merged.Live()))
		assert.Equal(t, 2, merged.Contacts().Size())
	})

	t.Run("insufficient intersection stays split", func(t *testing.T) {
		_, ok, err := planner.MergeRangeReads(build(left, down(ep3)), build(right, down(ep1)), nil, DefaultReadPolicy())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("gap stays split", func(t *testing.T) {
		_, ok, err := planner.MergeRangeReads(build(left, AlwaysAlive), build(model.TokenRange{Start: 60, End: 100}, AlwaysAlive), nil, DefaultReadPolicy())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMergeRangeReads_DifferentReplicaSets(t *testing.T) {
	planner := NewReplicaPlanner(nil, "")
	left := model.TokenRange{Start: 0, End: 50}
	right := model.TokenRange{Start: 50, End: 100}

	build := func(ks model.Keyspace, level model.ConsistencyLevel, rng model.TokenRange, endpoints ...model.Endpoint) *ForRangeRead {
		replicas := make([]model.Replica, 0, len(endpoints))
		for _, ep := range endpoints {
			replicas = append(replicas, full(ep))
		}
		plan, err := planner.ForRangeRead(twoDCTopology(), ks, level, forRange(rng, replicas...), nil, AlwaysAlive, DefaultReadPolicy())
		require.NoError(t, err)
		return plan
	}

	t.Run("ALL needs every replica of both ranges", func(t *testing.T) {
		ks := simpleKeyspace(rf(3, 0))
		l := build(ks, model.All, left, ep1, ep2, ep3)
		r := build(ks, model.All, right, ep2, ep3, ep4)
		require.Equal(t, 3, l.BlockFor())
		require.Equal(t, 3, r.BlockFor())

		_, ok, err := planner.MergeRangeReads(l, r, nil, DefaultReadPolicy())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("QUORUM of four with two shared stays split", func(t *testing.T) {
		ks := simpleKeyspace(rf(4, 0))
		l := build(ks, model.Quorum, left, ep1, ep2, ep3, ep4)
		r := build(ks, model.Quorum, right, ep3, ep4, ep5, ep6)
		require.Equal(t, 3, l.BlockFor())

		_, ok, err := planner.MergeRangeReads(l, r, nil, DefaultReadPolicy())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("QUORUM of four with three shared merges", func(t *testing.T) {
		ks := simpleKeyspace(rf(4, 0))
		l := build(ks, model.Quorum, left, ep1, ep2, ep3, ep4)
		r := build(ks, model.Quorum, right, ep2, ep3, ep4, ep5)

		merged, ok, err := planner.MergeRangeReads(l, r, nil, DefaultReadPolicy())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 3, merged.BlockFor())
		assert.Equal(t, model.TokenRange{Start: 0, End: 100}, merged.NaturalAndPending().Scope())
		assert.Equal(t, []model.Endpoint{ep1, ep2, ep3, ep4, ep5}, endpointsOf(merged.NaturalAndPending()))
		assert.Equal(t, []model.Endpoint{ep2, ep3, ep4}, endpointsOf(merged.Live()))
		assert.Equal(t, []model.Endpoint{ep2, ep3, ep4}, endpointsOf(merged.Contacts()))
		assert.True(t, merged.IsSufficientLive())
	})
}

func TestStricterRequirement(t *testing.T) {
	a := Requirement{Level: model.EachQuorum, BlockFor: 3, PerDatacenter: map[string]int{"DC1": 2, "DC2": 1}}
	b := Requirement{Level: model.EachQuorum, BlockFor: 3, PerDatacenter: map[string]int{"DC1": 1, "DC2": 2}}

	got := stricter(a, b)
	assert.Equal(t, map[string]int{"DC1": 2, "DC2": 2}, got.PerDatacenter)
	assert.Equal(t, 4, got.BlockFor)
	assert.Equal(t, map[string]int{"DC1": 2, "DC2": 1}, a.PerDatacenter)

	q := stricter(Requirement{Level: model.Quorum, BlockFor: 2}, Requirement{Level: model.Quorum, BlockFor: 3})
	assert.Equal(t, 3, q.BlockFor)
}

func TestMergeRangeReads_AvoidsNewRemoteTraffic(t *testing.T) {
	planner := NewReplicaPlanner(nil, "DC1")
	ks := ntsKeyspace(map[string]model.ReplicationFactor{"DC1": rf(3, 0), "DC2": rf(1, 0)})
	left := model.TokenRange{Start: 0, End: 50}
	right := model.TokenRange{Start: 50, End: 100}
	replicas := []model.Replica{full(ep1), full(ep2), full(ep3), full(ep4)}
	policy := ReadPolicy{Proximity: PreferDatacenter("DC1")}

	build := func(rng model.TokenRange, isAlive LivenessFunc) *ForRangeRead {
		plan, err := planner.ForRangeRead(twoDCTopology(), ks, model.Two, forRange(rng, replicas...), nil, isAlive, policy)
		require.NoError(t, err)
		return plan
	}

	// both sides stay in DC1 but only ep3 is local and live on both
	l, r := build(left, down(ep1)), build(right, down(ep2))
	require.Equal(t, []model.Endpoint{ep2, ep3}, endpointsOf(l.Contacts()))
	require.Equal(t, []model.Endpoint{ep1, ep3}, endpointsOf(r.Contacts()))
	_, ok, err := planner.MergeRangeReads(l, r, nil, policy)
	require.NoError(t, err)
	assert.False(t, ok)

	// a side that already reaches DC2 lets the merge do the same
	l, r = build(left, down(ep1, ep2)), build(right, down(ep2))
	require.True(t, l.Contacts().Contains(ep4))
	merged, ok, err := planner.MergeRangeReads(l, r, nil, policy)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []model.Endpoint{ep3, ep4}, endpointsOf(merged.Contacts()))
}
