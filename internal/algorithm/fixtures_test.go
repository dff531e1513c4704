package algorithm

import (
	"github.com/devrev/pairdb/placement/internal/model"
)

// fakeTopology is a fixed epoch plus endpoint locations
type fakeTopology struct {
	epoch     model.Epoch
	locations map[model.Endpoint]model.Location
}

func newFakeTopology(epoch model.Epoch) *fakeTopology {
	return &fakeTopology{epoch: epoch, locations: make(map[model.Endpoint]model.Location)}
}

func (f *fakeTopology) place(dc, rack string, endpoints ...model.Endpoint) *fakeTopology {
	for _, ep := range endpoints {
		f.locations[ep] = model.Location{Datacenter: dc, Rack: rack}
	}
	return f
}

func (f *fakeTopology) Epoch() model.Epoch { return f.epoch }

func (f *fakeTopology) Datacenter(ep model.Endpoint) string { return f.locations[ep].Datacenter }

func (f *fakeTopology) Rack(ep model.Endpoint) string { return f.locations[ep].Rack }

const (
	ep1 model.Endpoint = "10.0.1.1:9042"
	ep2 model.Endpoint = "10.0.1.2:9042"
	ep3 model.Endpoint = "10.0.1.3:9042"
	ep4 model.Endpoint = "10.0.2.4:9042"
	ep5 model.Endpoint = "10.0.2.5:9042"
	ep6 model.Endpoint = "10.0.2.6:9042"
)

var (
	testRange = model.TokenRange{Start: 0, End: 100}
	testToken = model.Token(10)
)

func full(ep model.Endpoint) model.Replica { return model.FullReplica(ep, testRange) }

func trans(ep model.Endpoint) model.Replica { return model.TransientReplica(ep, testRange) }

func forToken(replicas ...model.Replica) EndpointsFunc {
	return func(Topology) (model.EndpointsForToken, error) {
		return model.ForToken(testToken, replicas...)
	}
}

func forRange(rng model.TokenRange, replicas ...model.Replica) RangeEndpointsFunc {
	return func(Topology) (model.EndpointsForRange, error) {
		rebound := make([]model.Replica, 0, len(replicas))
		for _, r := range replicas {
			rebound = append(rebound, r.WithRange(rng))
		}
		return model.ForRange(rng, rebound...)
	}
}

func down(endpoints ...model.Endpoint) LivenessFunc {
	dead := make(map[model.Endpoint]bool, len(endpoints))
	for _, ep := range endpoints {
		dead[ep] = true
	}
	return func(ep model.Endpoint) bool { return !dead[ep] }
}

func rf(all, transient int) model.ReplicationFactor {
	return model.ReplicationFactor{All: all, Transient: transient}
}

func twoDCTopology() *fakeTopology {
	return newFakeTopology(model.EpochFirst).
		place("DC1", "r1", ep1).
		place("DC1", "r2", ep2).
		place("DC1", "r3", ep3).
		place("DC2", "r1", ep4).
		place("DC2", "r2", ep5).
		place("DC2", "r3", ep6)
}
