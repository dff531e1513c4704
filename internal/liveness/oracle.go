package liveness

import (
	"sort"
	"sync"

	"github.com/scylladb/go-set/strset"

	"github.com/devrev/pairdb/placement/internal/model"
)

// Oracle answers whether an endpoint is currently believed to be up. Answers
// may change between calls; plans use a Snapshot instead.
type Oracle interface {
	IsAlive(endpoint model.Endpoint) bool
}

// OracleFunc adapts a function to Oracle
type OracleFunc func(endpoint model.Endpoint) bool

// IsAlive implements Oracle
func (f OracleFunc) IsAlive(endpoint model.Endpoint) bool { return f(endpoint) }

// Snapshot is an immutable liveness sample of a fixed set of endpoints.
// Endpoints outside the sample are down.
type Snapshot struct {
	alive *strset.Set
}

// Sample asks oracle about each endpoint exactly once
func Sample(oracle Oracle, endpoints []model.Endpoint) Snapshot {
	alive := strset.NewWithSize(len(endpoints))
	for _, ep := range endpoints {
		if oracle.IsAlive(ep) {
			alive.Add(string(ep))
		}
	}
	return Snapshot{alive: alive}
}

// IsAlive reports the sampled state. Its method value is usable as an
// algorithm.LivenessFunc.
func (s Snapshot) IsAlive(endpoint model.Endpoint) bool {
	return s.alive != nil && s.alive.Has(string(endpoint))
}

// Alive returns the sampled live endpoints in order
func (s Snapshot) Alive() []model.Endpoint {
	if s.alive == nil {
		return nil
	}
	list := s.alive.List()
	sort.Strings(list)
	out := make([]model.Endpoint, len(list))
	for i, ep := range list {
		out[i] = model.Endpoint(ep)
	}
	return out
}

// Size returns the number of live endpoints in the sample
func (s Snapshot) Size() int {
	if s.alive == nil {
		return 0
	}
	return s.alive.Size()
}

// Static is an Oracle driven by explicit marks. Every endpoint is alive
// until marked down.
type Static struct {
	mu   sync.RWMutex
	down map[model.Endpoint]bool
}

// NewStatic creates an oracle with the given endpoints down
func NewStatic(down ...model.Endpoint) *Static {
	s := &Static{down: make(map[model.Endpoint]bool, len(down))}
	for _, ep := range down {
		s.down[ep] = true
	}
	return s
}

// IsAlive implements Oracle
func (s *Static) IsAlive(endpoint model.Endpoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.down[endpoint]
}

// MarkDown marks endpoint as down
func (s *Static) MarkDown(endpoint model.Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down[endpoint] = true
}

// MarkUp marks endpoint as alive
func (s *Static) MarkUp(endpoint model.Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.down, endpoint)
}

// AllOf is alive only when every oracle agrees
func AllOf(oracles ...Oracle) Oracle {
	return OracleFunc(func(endpoint model.Endpoint) bool {
		for _, o := range oracles {
			if !o.IsAlive(endpoint) {
				return false
			}
		}
		return true
	})
}
