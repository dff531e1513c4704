package cluster

import (
	"fmt"
	"sort"

	"github.com/devrev/pairdb/placement/internal/algorithm"
	planerrors "github.com/devrev/pairdb/placement/internal/errors"
	"github.com/devrev/pairdb/placement/internal/model"
)

// Metadata is an immutable snapshot of cluster topology at one epoch: nodes,
// their locations and tokens, and keyspace replication. It implements
// algorithm.Topology so plans built from it stay pinned to its epoch.
//
// Two rings are kept. The current ring holds the tokens of every node that
// owns data now; the future ring is what the ring becomes once in-flight
// movements finish (bootstrapping nodes added, leaving nodes removed).
// Pending replicas are the difference between the two.
type Metadata struct {
	epoch      model.Epoch
	nodes      map[model.Endpoint]model.Node
	seeded     map[model.Endpoint]model.Location
	keyspaces  map[string]model.Keyspace
	strategies map[string]algorithm.ReplicationStrategy
	ring       *algorithm.TokenRing
	futureRing *algorithm.TokenRing
	moving     bool
	changes    map[model.Endpoint]*model.PendingChange
}

// NewMetadata builds a snapshot. Keyspaces with an unknown replication class
// are rejected.
func NewMetadata(epoch model.Epoch, nodes []model.Node, keyspaces []model.Keyspace) (*Metadata, error) {
	m := &Metadata{
		epoch:      epoch,
		nodes:      make(map[model.Endpoint]model.Node, len(nodes)),
		seeded:     make(map[model.Endpoint]model.Location),
		keyspaces:  make(map[string]model.Keyspace, len(keyspaces)),
		strategies: make(map[string]algorithm.ReplicationStrategy, len(keyspaces)),
		changes:    make(map[model.Endpoint]*model.PendingChange),
	}
	for _, n := range nodes {
		n.Tokens = append([]model.Token(nil), n.Tokens...)
		m.nodes[n.Endpoint] = n
	}
	for _, ks := range keyspaces {
		if err := m.addKeyspace(ks); err != nil {
			return nil, err
		}
	}
	m.buildRings()
	return m, nil
}

// EmptyMetadata is the snapshot of a cluster with nothing published
func EmptyMetadata() *Metadata {
	m, _ := NewMetadata(model.EpochEmpty, nil, nil)
	return m
}

func (m *Metadata) addKeyspace(ks model.Keyspace) error {
	strategy, err := algorithm.NewReplicationStrategy(ks.Replication)
	if err != nil {
		return fmt.Errorf("keyspace %s: %w", ks.Name, err)
	}
	m.keyspaces[ks.Name] = ks
	m.strategies[ks.Name] = strategy
	return nil
}

func (m *Metadata) buildRings() {
	current := make(map[model.Endpoint][]model.Token)
	future := make(map[model.Endpoint][]model.Token)
	m.moving = false
	for ep, n := range m.nodes {
		if n.State.OwnsTokens() {
			current[ep] = n.Tokens
		}
		switch n.State {
		case model.NodeStateLeaving:
			m.moving = true
		case model.NodeStateBootstrapping:
			m.moving = true
			future[ep] = n.Tokens
		default:
			future[ep] = n.Tokens
		}
	}
	m.ring = algorithm.NewTokenRing(current)
	m.futureRing = algorithm.NewTokenRing(future)
}

// clone copies the snapshot at the next epoch
func (m *Metadata) clone() *Metadata {
	c := &Metadata{
		epoch:      m.epoch.Next(),
		nodes:      make(map[model.Endpoint]model.Node, len(m.nodes)),
		seeded:     make(map[model.Endpoint]model.Location, len(m.seeded)),
		keyspaces:  make(map[string]model.Keyspace, len(m.keyspaces)),
		strategies: make(map[string]algorithm.ReplicationStrategy, len(m.strategies)),
		changes:    make(map[model.Endpoint]*model.PendingChange, len(m.changes)),
	}
	for k, v := range m.nodes {
		c.nodes[k] = v
	}
	for k, v := range m.seeded {
		c.seeded[k] = v
	}
	for k, v := range m.keyspaces {
		c.keyspaces[k] = v
	}
	for k, v := range m.strategies {
		c.strategies[k] = v
	}
	for k, v := range m.changes {
		c.changes[k] = v
	}
	return c
}

// Epoch returns the snapshot epoch
func (m *Metadata) Epoch() model.Epoch { return m.epoch }

// Datacenter returns the datacenter of endpoint, or "" when unknown
func (m *Metadata) Datacenter(endpoint model.Endpoint) string {
	return m.Location(endpoint).Datacenter
}

// Rack returns the rack of endpoint, or "" when unknown
func (m *Metadata) Rack(endpoint model.Endpoint) string {
	return m.Location(endpoint).Rack
}

// Location returns where endpoint lives. Registered nodes win over seeded
// locations.
func (m *Metadata) Location(endpoint model.Endpoint) model.Location {
	if n, ok := m.nodes[endpoint]; ok && n.Datacenter != "" {
		return n.Location()
	}
	return m.seeded[endpoint]
}

// Node returns a registered node
func (m *Metadata) Node(endpoint model.Endpoint) (model.Node, bool) {
	n, ok := m.nodes[endpoint]
	return n, ok
}

// Nodes returns every registered node ordered by endpoint
func (m *Metadata) Nodes() []model.Node {
	out := make([]model.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// Endpoints returns every registered endpoint in order
func (m *Metadata) Endpoints() []model.Endpoint {
	nodes := m.Nodes()
	out := make([]model.Endpoint, len(nodes))
	for i, n := range nodes {
		out[i] = n.Endpoint
	}
	return out
}

// Keyspace returns a keyspace by name
func (m *Metadata) Keyspace(name string) (model.Keyspace, error) {
	ks, ok := m.keyspaces[name]
	if !ok {
		return model.Keyspace{}, planerrors.UnknownKeyspace(name)
	}
	return ks, nil
}

// Keyspaces returns every keyspace ordered by name
func (m *Metadata) Keyspaces() []model.Keyspace {
	out := make([]model.Keyspace, 0, len(m.keyspaces))
	for _, ks := range m.keyspaces {
		out = append(out, ks)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ring returns the current token ring
func (m *Metadata) Ring() *algorithm.TokenRing { return m.ring }

// HasPendingMovements reports whether any node is bootstrapping or leaving
func (m *Metadata) HasPendingMovements() bool { return m.moving }

// Movement is a node whose tokens are moving, with the recorded change that
// started it, if any
type Movement struct {
	Endpoint model.Endpoint
	State    model.NodeState
	Change   *model.PendingChange
}

// Confirmed reports whether an in-progress change of the matching type,
// started no later than the snapshot, accounts for the movement
func (mv Movement) Confirmed(epoch model.Epoch) bool {
	if mv.Change == nil || mv.Change.StartEpoch.IsAfter(epoch) {
		return false
	}
	switch mv.State {
	case model.NodeStateBootstrapping:
		return mv.Change.Type == model.ChangeTypeBootstrap
	case model.NodeStateLeaving:
		return mv.Change.Type == model.ChangeTypeDecommission
	default:
		return false
	}
}

// Movements lists bootstrapping and leaving nodes in endpoint order
func (m *Metadata) Movements() []Movement {
	var out []Movement
	for ep, n := range m.nodes {
		if n.State != model.NodeStateBootstrapping && n.State != model.NodeStateLeaving {
			continue
		}
		out = append(out, Movement{Endpoint: ep, State: n.State, Change: m.changes[ep]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// OrphanedChanges lists in-progress changes whose node is not moving, in
// endpoint order. They usually belong to a change that finished without its
// record being closed.
func (m *Metadata) OrphanedChanges() []*model.PendingChange {
	var out []*model.PendingChange
	for ep, change := range m.changes {
		n, ok := m.nodes[ep]
		if ok && (n.State == model.NodeStateBootstrapping || n.State == model.NodeStateLeaving) {
			continue
		}
		out = append(out, change)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

func (m *Metadata) strategy(keyspace string) (algorithm.ReplicationStrategy, error) {
	s, ok := m.strategies[keyspace]
	if !ok {
		return nil, planerrors.UnknownKeyspace(keyspace)
	}
	return s, nil
}

// NaturalReplicas returns the replicas of token under the current ring
func (m *Metadata) NaturalReplicas(keyspace string, token model.Token) (model.EndpointsForToken, error) {
	strategy, err := m.strategy(keyspace)
	if err != nil {
		return model.EndpointsForToken{}, err
	}
	return model.WithScope(strategy.NaturalReplicas(m.ring, token, m), token)
}

// PendingReplicas returns the replicas that will own token once in-flight
// movements complete and do not own it now. A replica moving from transient
// to full is pending as a full replica.
func (m *Metadata) PendingReplicas(keyspace string, token model.Token) (model.EndpointsForToken, error) {
	strategy, err := m.strategy(keyspace)
	if err != nil {
		return model.EndpointsForToken{}, err
	}
	if !m.moving {
		return model.EmptyEndpoints(token), nil
	}
	current := strategy.NaturalReplicas(m.ring, token, m)
	future := strategy.NaturalReplicas(m.futureRing, token, m)
	return model.WithScope(pendingOf(current, future), token)
}

// NaturalReplicasForRange returns the replicas of rng, which must not cross
// a boundary of the current ring. Use SplitRange first.
func (m *Metadata) NaturalReplicasForRange(keyspace string, rng model.TokenRange) (model.EndpointsForRange, error) {
	strategy, err := m.strategy(keyspace)
	if err != nil {
		return model.EndpointsForRange{}, err
	}
	return model.WithScope(strategy.NaturalReplicas(m.ring, rng.End, m), rng)
}

// PendingReplicasForRange returns the pending replicas of rng, which must
// not cross a boundary of either ring
func (m *Metadata) PendingReplicasForRange(keyspace string, rng model.TokenRange) (model.EndpointsForRange, error) {
	strategy, err := m.strategy(keyspace)
	if err != nil {
		return model.EndpointsForRange{}, err
	}
	if !m.moving {
		return model.EmptyEndpoints(rng), nil
	}
	current := strategy.NaturalReplicas(m.ring, rng.End, m)
	future := strategy.NaturalReplicas(m.futureRing, rng.End, m)
	return model.WithScope(pendingOf(current, future), rng)
}

func pendingOf(current, future model.EndpointsForRange) model.EndpointsForRange {
	return future.Filter(func(r model.Replica) bool {
		now, ok := current.Get(r.Endpoint())
		return !ok || (r.IsFull() && now.IsTransient())
	})
}

// SplitRange cuts rng at every token of the current and future rings so each
// piece is owned by a single range in both. Pieces are returned in ring order
// starting from rng.Start.
func (m *Metadata) SplitRange(rng model.TokenRange) []model.TokenRange {
	cuts := make(map[model.Token]bool)
	for _, t := range m.ring.Tokens() {
		cuts[t] = true
	}
	for _, t := range m.futureRing.Tokens() {
		cuts[t] = true
	}

	tokens := make([]model.Token, 0, len(cuts))
	for t := range cuts {
		if t != rng.End && (rng.IsFullRing() || rng.Contains(t)) {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return []model.TokenRange{rng}
	}
	// order tokens clockwise from rng.Start
	sort.Slice(tokens, func(i, j int) bool {
		return clockwise(rng.Start, tokens[i]) < clockwise(rng.Start, tokens[j])
	})

	pieces := make([]model.TokenRange, 0, len(tokens)+1)
	start := rng.Start
	for _, t := range tokens {
		if t == start {
			continue
		}
		pieces = append(pieces, model.TokenRange{Start: start, End: t})
		start = t
	}
	return append(pieces, model.TokenRange{Start: start, End: rng.End})
}

// clockwise is the unsigned distance from start to t going clockwise
func clockwise(start, t model.Token) uint64 {
	return uint64(t) - uint64(start)
}

// WithNode returns a snapshot at the next epoch with node added or replaced
func (m *Metadata) WithNode(node model.Node) *Metadata {
	c := m.clone()
	node.Tokens = append([]model.Token(nil), node.Tokens...)
	c.nodes[node.Endpoint] = node
	c.buildRings()
	return c
}

// WithNodeState returns a snapshot at the next epoch with endpoint's state
// changed
func (m *Metadata) WithNodeState(endpoint model.Endpoint, state model.NodeState) (*Metadata, error) {
	n, ok := m.nodes[endpoint]
	if !ok {
		return nil, planerrors.InvalidArgument(fmt.Sprintf("unknown node %s", endpoint), nil)
	}
	n.State = state
	return m.WithNode(n), nil
}

// WithoutNode returns a snapshot at the next epoch with endpoint removed
func (m *Metadata) WithoutNode(endpoint model.Endpoint) *Metadata {
	c := m.clone()
	delete(c.nodes, endpoint)
	c.buildRings()
	return c
}

// WithKeyspace returns a snapshot at the next epoch with keyspace added or
// replaced
func (m *Metadata) WithKeyspace(keyspace model.Keyspace) (*Metadata, error) {
	c := m.clone()
	if err := c.addKeyspace(keyspace); err != nil {
		return nil, err
	}
	c.buildRings()
	return c, nil
}

// WithPendingChanges returns a snapshot at the same epoch carrying the
// in-progress changes among changes. Later records for an endpoint replace
// earlier ones.
func (m *Metadata) WithPendingChanges(changes []*model.PendingChange) *Metadata {
	c := m.clone()
	c.epoch = m.epoch
	c.changes = make(map[model.Endpoint]*model.PendingChange, len(changes))
	for _, change := range changes {
		if change != nil && change.IsInProgress() {
			c.changes[change.Endpoint] = change
		}
	}
	c.buildRings()
	return c
}

// WithSeededLocations returns a snapshot at the same epoch that also knows
// the location of endpoints not registered as nodes. Locations are local
// knowledge and do not change placement of registered nodes.
func (m *Metadata) WithSeededLocations(locations map[model.Endpoint]model.Location) *Metadata {
	c := m.clone()
	c.epoch = m.epoch
	for ep, loc := range locations {
		c.seeded[ep] = loc
	}
	c.buildRings()
	return c
}
