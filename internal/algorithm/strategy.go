package algorithm

import (
	"fmt"
	"sort"

	"github.com/devrev/pairdb/placement/internal/model"
)

// Topology is the read-only, epoch-scoped view of cluster placement that
// strategies and plans are computed against.
type Topology interface {
	Epoch() model.Epoch
	Datacenter(endpoint model.Endpoint) string
	Rack(endpoint model.Endpoint) string
}

// ReplicationStrategy computes the natural replicas of a token on a ring
type ReplicationStrategy interface {
	// NaturalReplicas returns the ordered replicas of the ring range
	// containing token, scoped to that range
	NaturalReplicas(ring *TokenRing, token model.Token, topo Topology) model.EndpointsForRange
}

// NewReplicationStrategy returns the strategy for params
func NewReplicationStrategy(params model.ReplicationParams) (ReplicationStrategy, error) {
	switch params.Class {
	case model.SimpleStrategy:
		return &SimpleStrategy{rf: params.Factors[model.SimpleStrategyKey]}, nil
	case model.NetworkTopologyStrategy:
		return &NetworkTopologyStrategy{factors: params.Factors}, nil
	default:
		return nil, fmt.Errorf("unknown replication class %q", params.Class)
	}
}

// SimpleStrategy places RF replicas on consecutive distinct endpoints clockwise.
// The last Transient of them are transient.
type SimpleStrategy struct {
	rf model.ReplicationFactor
}

// NaturalReplicas implements ReplicationStrategy
func (s *SimpleStrategy) NaturalReplicas(ring *TokenRing, token model.Token, topo Topology) model.EndpointsForRange {
	rng := ring.RangeFor(token)
	replicas := make([]model.Replica, 0, s.rf.All)
	seen := make(map[model.Endpoint]bool)

	ring.Walk(token, func(_ model.Token, owner model.Endpoint) bool {
		if seen[owner] {
			return true
		}
		seen[owner] = true
		if len(replicas) < s.rf.Full() {
			replicas = append(replicas, model.FullReplica(owner, rng))
		} else {
			replicas = append(replicas, model.TransientReplica(owner, rng))
		}
		return len(replicas) < s.rf.All
	})

	return model.MustNewEndpoints(rng, replicas...)
}

// NetworkTopologyStrategy places each datacenter's RF independently, spreading
// replicas over distinct racks before repeating one. Within a datacenter the
// first Full() replicas found are full and the rest transient.
type NetworkTopologyStrategy struct {
	factors map[string]model.ReplicationFactor
}

// dcPlacement tracks one datacenter's progress during a ring walk
type dcPlacement struct {
	rf              model.ReplicationFactor
	placed          int
	racks           map[string]bool
	rackRepeatsLeft int
	skipped         []model.Endpoint
}

func (d *dcPlacement) done() bool {
	return d.placed >= d.rf.All
}

// NaturalReplicas implements ReplicationStrategy
func (s *NetworkTopologyStrategy) NaturalReplicas(ring *TokenRing, token model.Token, topo Topology) model.EndpointsForRange {
	rng := ring.RangeFor(token)

	// Count racks per datacenter so a datacenter with fewer racks than RF
	// accepts repeats instead of stalling.
	racksPerDC := make(map[string]map[string]bool)
	for ep := range ring.Assignments() {
		dc := topo.Datacenter(ep)
		if racksPerDC[dc] == nil {
			racksPerDC[dc] = make(map[string]bool)
		}
		racksPerDC[dc][topo.Rack(ep)] = true
	}

	dcs := make(map[string]*dcPlacement)
	for dc, rf := range s.factors {
		if rf.All == 0 || racksPerDC[dc] == nil {
			continue
		}
		repeats := rf.All - len(racksPerDC[dc])
		if repeats < 0 {
			repeats = 0
		}
		dcs[dc] = &dcPlacement{rf: rf, racks: make(map[string]bool), rackRepeatsLeft: repeats}
	}

	replicas := make([]model.Replica, 0)
	seen := make(map[model.Endpoint]bool)
	add := func(d *dcPlacement, ep model.Endpoint) {
		if d.placed < d.rf.Full() {
			replicas = append(replicas, model.FullReplica(ep, rng))
		} else {
			replicas = append(replicas, model.TransientReplica(ep, rng))
		}
		seen[ep] = true
		d.placed++
	}
	allDone := func() bool {
		for _, d := range dcs {
			if !d.done() {
				return false
			}
		}
		return true
	}

	ring.Walk(token, func(_ model.Token, owner model.Endpoint) bool {
		if seen[owner] {
			return !allDone()
		}
		d, ok := dcs[topo.Datacenter(owner)]
		if !ok || d.done() {
			return !allDone()
		}
		rack := topo.Rack(owner)
		if !d.racks[rack] {
			d.racks[rack] = true
			add(d, owner)
		} else if d.rackRepeatsLeft > 0 {
			d.rackRepeatsLeft--
			add(d, owner)
		} else {
			d.skipped = append(d.skipped, owner)
		}
		return !allDone()
	})

	// Endpoints passed over for rack diversity fill any remaining slots, in
	// ring order, once every rack has been used.
	names := make([]string, 0, len(dcs))
	for dc := range dcs {
		names = append(names, dc)
	}
	sort.Strings(names)
	for _, dc := range names {
		d := dcs[dc]
		for _, ep := range d.skipped {
			if d.done() {
				break
			}
			if !seen[ep] {
				add(d, ep)
			}
		}
	}

	return model.MustNewEndpoints(rng, replicas...)
}
