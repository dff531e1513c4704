package algorithm

import (
	"github.com/scylladb/go-set/strset"

	"github.com/devrev/pairdb/placement/internal/model"
)

// WriteSelector chooses which live replicas receive a write
type WriteSelector interface {
	Name() string
	// Select returns the contacts, a subset of live in live's order.
	// pending holds the pending replicas of the plan.
	Select(req Requirement, topo Topology, pending, live model.EndpointsForToken) model.EndpointsForToken
}

// WriteNormal contacts every live full replica and every live pending
// replica, then adds live transient replicas only while some group of the
// requirement is still short.
var WriteNormal WriteSelector = writeNormal{}

// WriteAll contacts every live replica
var WriteAll WriteSelector = writeAll{}

type writeNormal struct{}

func (writeNormal) Name() string { return "normal" }

func (writeNormal) Select(req Requirement, topo Topology, pending, live model.EndpointsForToken) model.EndpointsForToken {
	if !live.Any(model.Replica.IsTransient) || req.Policy == model.TransientAlways {
		return live
	}

	chosen := strset.New()
	for _, r := range live.Replicas() {
		if r.IsFull() || pending.Contains(r.Endpoint()) {
			chosen.Add(string(r.Endpoint()))
		}
	}
	if req.Policy == model.TransientNever {
		return live.Keep(chosen)
	}

	need := req.Shortfall(live.Keep(chosen).Replicas(), topo)
	for _, r := range live.Replicas() {
		if r.IsFull() || chosen.Has(string(r.Endpoint())) {
			continue
		}
		g, ok := req.group(r, topo)
		if !ok || need[g] <= 0 {
			continue
		}
		chosen.Add(string(r.Endpoint()))
		need[g]--
	}
	return live.Keep(chosen)
}

type writeAll struct{}

func (writeAll) Name() string { return "all" }

func (writeAll) Select(_ Requirement, _ Topology, _, live model.EndpointsForToken) model.EndpointsForToken {
	return live
}

// ProximitySorter ranks replicas for reads; lower ranks are contacted first.
// Replicas of equal rank keep their topology snapshot order.
type ProximitySorter interface {
	Rank(topo Topology, replica model.Replica) int
}

type insertionOrder struct{}

func (insertionOrder) Rank(Topology, model.Replica) int { return 0 }

// InsertionOrder keeps the topology snapshot order
func InsertionOrder() ProximitySorter { return insertionOrder{} }

type preferDatacenter struct{ dc string }

func (p preferDatacenter) Rank(topo Topology, r model.Replica) int {
	if topo.Datacenter(r.Endpoint()) == p.dc {
		return 0
	}
	return 1
}

// PreferDatacenter ranks replicas of dc ahead of remote ones
func PreferDatacenter(dc string) ProximitySorter { return preferDatacenter{dc: dc} }

type preferEndpoint struct {
	endpoint model.Endpoint
	dc       string
}

func (p preferEndpoint) Rank(topo Topology, r model.Replica) int {
	switch {
	case r.Endpoint() == p.endpoint:
		return 0
	case p.dc != "" && topo.Datacenter(r.Endpoint()) == p.dc:
		return 1
	default:
		return 2
	}
}

// PreferEndpoint ranks a direct candidate first, then replicas of dc. An
// empty endpoint falls back to datacenter preference.
func PreferEndpoint(endpoint model.Endpoint, dc string) ProximitySorter {
	return preferEndpoint{endpoint: endpoint, dc: dc}
}

// ReadPolicy controls how read plans pick their contacts
type ReadPolicy struct {
	// IncludePending adds pending replicas as read targets, for catch-up
	// reads during a range movement
	IncludePending bool
	// SpeculativeExtras is the number of replicas contacted beyond blockFor
	SpeculativeExtras int
	// Proximity orders candidates; nil keeps snapshot order
	Proximity ProximitySorter
}

// DefaultReadPolicy reads from the minimal sufficient set in snapshot order
func DefaultReadPolicy() ReadPolicy {
	return ReadPolicy{Proximity: InsertionOrder()}
}

func (p ReadPolicy) sorter() ProximitySorter {
	if p.Proximity == nil {
		return InsertionOrder()
	}
	return p.Proximity
}

// sortByProximity orders replicas by rank, keeping snapshot order on ties
func sortByProximity[S model.Scope](e model.Endpoints[S], topo Topology, sorter ProximitySorter) model.Endpoints[S] {
	return e.SortedStable(func(a, b model.Replica) bool {
		return sorter.Rank(topo, a) < sorter.Rank(topo, b)
	})
}

// contactForRead picks the read contacts from candidates, which must
// already be filtered to the level's datacenters and sorted by proximity.
// Full replicas are taken first; transient ones only fill a shortfall the
// policy allows. Extras are added from what remains, full first.
func contactForRead[S model.Scope](req Requirement, topo Topology, candidates model.Endpoints[S], extras int) model.Endpoints[S] {
	if req.Level == model.All {
		if req.Policy == model.TransientNever {
			return candidates.Full()
		}
		return candidates
	}

	chosen := strset.New()
	need := make(map[string]int)
	for _, g := range req.groups() {
		need[g] = req.required(g)
	}
	take := func(r model.Replica) {
		g, ok := req.group(r, topo)
		if !ok || need[g] <= 0 || chosen.Has(string(r.Endpoint())) {
			return
		}
		chosen.Add(string(r.Endpoint()))
		need[g]--
	}

	for _, r := range candidates.Replicas() {
		if r.IsFull() {
			take(r)
		}
	}
	if req.Policy != model.TransientNever {
		for _, r := range candidates.Replicas() {
			if r.IsTransient() {
				take(r)
			}
		}
	}

	for _, fullPass := range []bool{true, false} {
		for _, r := range candidates.Replicas() {
			if extras <= 0 {
				break
			}
			if r.IsFull() != fullPass || chosen.Has(string(r.Endpoint())) {
				continue
			}
			if r.IsTransient() && req.Policy == model.TransientNever {
				continue
			}
			chosen.Add(string(r.Endpoint()))
			extras--
		}
	}

	return candidates.Keep(chosen)
}
