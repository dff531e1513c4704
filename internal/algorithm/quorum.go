package algorithm

import (
	"sort"

	planerrors "github.com/devrev/pairdb/placement/internal/errors"
	"github.com/devrev/pairdb/placement/internal/model"
)

// QuorumCalculator calculates how many acknowledgments a consistency level
// requires for a replica set
type QuorumCalculator struct {
	policies model.TransientPolicies
}

// NewQuorumCalculator creates a new quorum calculator. A nil policies map
// uses the built-in transient policy of every level.
func NewQuorumCalculator(policies model.TransientPolicies) *QuorumCalculator {
	if policies == nil {
		policies = model.DefaultTransientPolicies()
	}
	return &QuorumCalculator{policies: policies}
}

// CalculateQuorum returns the number of replicas required for quorum
func (q *QuorumCalculator) CalculateQuorum(totalReplicas int) int {
	return (totalReplicas / 2) + 1
}

// TransientPolicy returns the policy applied to level
func (q *QuorumCalculator) TransientPolicy(level model.ConsistencyLevel) model.TransientPolicy {
	return q.policies.For(level)
}

// Evaluate computes the requirement of level over the natural and pending
// replicas of one token or range. Only full replicas enter blockFor.
func (q *QuorumCalculator) Evaluate(
	level model.ConsistencyLevel,
	params model.ReplicationParams,
	natural, pending []model.Replica,
	topo Topology,
	localDC string,
) (Requirement, error) {
	if len(natural) == 0 {
		return Requirement{}, planerrors.EmptyReplicaSet("consistency evaluation")
	}

	req := Requirement{
		Level:  level,
		Policy: q.policies.For(level),
	}

	full := make([]model.Replica, 0, len(natural)+len(pending))
	for _, r := range natural {
		if r.IsFull() {
			full = append(full, r)
		}
	}
	for _, r := range pending {
		if r.IsFull() {
			full = append(full, r)
		}
	}

	switch level {
	case model.Any, model.One:
		req.BlockFor = 1
	case model.Two:
		req.BlockFor = 2
	case model.Three:
		req.BlockFor = 3
	case model.Quorum:
		req.BlockFor = q.CalculateQuorum(len(full))
	case model.All:
		req.BlockFor = len(full)
	case model.LocalOne, model.LocalQuorum:
		if localDC == "" {
			return Requirement{}, planerrors.UnsupportedConsistencyLevel(level.String(), "local datacenter is unknown")
		}
		req.LocalDatacenter = localDC
		if level == model.LocalOne {
			req.BlockFor = 1
			break
		}
		local := 0
		for _, r := range full {
			if topo.Datacenter(r.Endpoint()) == localDC {
				local++
			}
		}
		req.BlockFor = q.CalculateQuorum(local)
	case model.EachQuorum:
		if !params.IsDatacenterAware() {
			return Requirement{}, planerrors.UnsupportedConsistencyLevel(level.String(),
				"replication class "+string(params.Class)+" is not datacenter aware")
		}
		fullPerDC := make(map[string]int)
		for _, r := range natural {
			dc := topo.Datacenter(r.Endpoint())
			if _, ok := fullPerDC[dc]; !ok {
				fullPerDC[dc] = 0
			}
		}
		for _, r := range full {
			dc := topo.Datacenter(r.Endpoint())
			if _, hasNatural := fullPerDC[dc]; hasNatural {
				fullPerDC[dc]++
			}
		}
		req.PerDatacenter = make(map[string]int, len(fullPerDC))
		for dc, n := range fullPerDC {
			req.PerDatacenter[dc] = q.CalculateQuorum(n)
			req.BlockFor += req.PerDatacenter[dc]
		}
	default:
		return Requirement{}, planerrors.UnsupportedConsistencyLevel(level.String(), "unknown level")
	}

	return req, nil
}

// globalGroup is the single group of levels counted over the whole replica set
const globalGroup = ""

// Requirement is the acknowledgment requirement of a consistency level for
// one replica set. Replicas are partitioned into groups: one global group,
// the local datacenter, or one group per datacenter for EACH_QUORUM.
type Requirement struct {
	Level           model.ConsistencyLevel
	BlockFor        int
	PerDatacenter   map[string]int
	LocalDatacenter string
	Policy          model.TransientPolicy
}

// group returns the group a replica counts towards, if any
func (r Requirement) group(replica model.Replica, topo Topology) (string, bool) {
	switch {
	case r.Level.IsPerDatacenter():
		dc := topo.Datacenter(replica.Endpoint())
		_, ok := r.PerDatacenter[dc]
		return dc, ok
	case r.Level.IsDatacenterLocal():
		dc := topo.Datacenter(replica.Endpoint())
		return dc, dc == r.LocalDatacenter
	default:
		return globalGroup, true
	}
}

// required returns the acknowledgments needed from group
func (r Requirement) required(group string) int {
	if r.Level.IsPerDatacenter() {
		return r.PerDatacenter[group]
	}
	return r.BlockFor
}

// groups lists the groups in deterministic order
func (r Requirement) groups() []string {
	switch {
	case r.Level.IsPerDatacenter():
		dcs := make([]string, 0, len(r.PerDatacenter))
		for dc := range r.PerDatacenter {
			dcs = append(dcs, dc)
		}
		sort.Strings(dcs)
		return dcs
	case r.Level.IsDatacenterLocal():
		return []string{r.LocalDatacenter}
	default:
		return []string{globalGroup}
	}
}

// CountsTowards reports whether an acknowledgment from replica can count
// towards the requirement, ignoring how many are already counted
func (r Requirement) CountsTowards(replica model.Replica, topo Topology) bool {
	if _, ok := r.group(replica, topo); !ok {
		return false
	}
	return replica.IsFull() || r.Policy != model.TransientNever
}

// tally counts full and transient replicas per group
type tally struct {
	full      map[string]int
	transient map[string]int
}

func (r Requirement) tally(replicas []model.Replica, topo Topology) tally {
	t := tally{full: make(map[string]int), transient: make(map[string]int)}
	for _, replica := range replicas {
		g, ok := r.group(replica, topo)
		if !ok {
			continue
		}
		if replica.IsFull() {
			t.full[g]++
		} else if r.Policy != model.TransientNever {
			t.transient[g]++
		}
	}
	return t
}

// IsSatisfiedBy reports whether the live replicas can meet the requirement.
// Every group must be met on its own, and at least one counted replica must
// be full since transient replicas cannot vouch for complete data.
func (r Requirement) IsSatisfiedBy(live []model.Replica, topo Topology) bool {
	if r.Level == model.Any {
		return true
	}
	t := r.tally(live, topo)
	anyFull := false
	for _, g := range r.groups() {
		if t.full[g]+t.transient[g] < r.required(g) {
			return false
		}
		if t.full[g] > 0 {
			anyFull = true
		}
	}
	return anyFull
}

// Shortfall returns, per group, how many more counted replicas are needed
// beyond those in have. Groups already satisfied are omitted.
func (r Requirement) Shortfall(have []model.Replica, topo Topology) map[string]int {
	t := r.tally(have, topo)
	out := make(map[string]int)
	for _, g := range r.groups() {
		if missing := r.required(g) - t.full[g] - t.transient[g]; missing > 0 {
			out[g] = missing
		}
	}
	return out
}

// Unavailable builds the availability error describing why live falls short
func (r Requirement) Unavailable(live []model.Replica, topo Topology) error {
	t := r.tally(live, topo)
	alive := 0
	for _, g := range r.groups() {
		alive += t.full[g] + t.transient[g]
	}
	var perDC map[string][2]int
	if r.Level.IsPerDatacenter() {
		perDC = make(map[string][2]int, len(r.PerDatacenter))
		for _, dc := range r.groups() {
			perDC[dc] = [2]int{r.PerDatacenter[dc], t.full[dc] + t.transient[dc]}
		}
	}
	return planerrors.Unavailable(r.Level.String(), r.BlockFor, alive, perDC)
}
