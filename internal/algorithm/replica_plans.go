package algorithm

import (
	"fmt"

	planerrors "github.com/devrev/pairdb/placement/internal/errors"
	"github.com/devrev/pairdb/placement/internal/model"
)

// EndpointsFunc resolves the natural or pending replicas of a token against a
// topology snapshot
type EndpointsFunc func(topo Topology) (model.EndpointsForToken, error)

// RangeEndpointsFunc resolves the natural or pending replicas of a range
type RangeEndpointsFunc func(topo Topology) (model.EndpointsForRange, error)

// LivenessFunc reports whether an endpoint is alive. It must be backed by a
// liveness snapshot that does not change while a plan is built.
type LivenessFunc func(endpoint model.Endpoint) bool

// AlwaysAlive treats every endpoint as alive
func AlwaysAlive(model.Endpoint) bool { return true }

// Plan is the replica selection for one operation attempt, pinned to the
// topology epoch it was built from. contacts ⊆ live ⊆ naturalAndPending.
type Plan[S model.Scope] struct {
	keyspace          model.Keyspace
	requirement       Requirement
	epoch             model.Epoch
	topology          Topology
	naturalAndPending model.Endpoints[S]
	pending           model.Endpoints[S]
	live              model.Endpoints[S]
	contacts          model.Endpoints[S]
}

// Keyspace returns the keyspace the plan was built for
func (p *Plan[S]) Keyspace() model.Keyspace { return p.keyspace }

// ConsistencyLevel returns the requested level
func (p *Plan[S]) ConsistencyLevel() model.ConsistencyLevel { return p.requirement.Level }

// Requirement returns the evaluated acknowledgment requirement
func (p *Plan[S]) Requirement() Requirement { return p.requirement }

// BlockFor returns the acknowledgments required for success
func (p *Plan[S]) BlockFor() int { return p.requirement.BlockFor }

// Epoch returns the topology epoch the plan is pinned to
func (p *Plan[S]) Epoch() model.Epoch { return p.epoch }

// Topology returns the snapshot the plan was built against
func (p *Plan[S]) Topology() Topology { return p.topology }

// NaturalAndPending returns every replica, live or down
func (p *Plan[S]) NaturalAndPending() model.Endpoints[S] { return p.naturalAndPending }

// Pending returns the pending replicas
func (p *Plan[S]) Pending() model.Endpoints[S] { return p.pending }

// Live returns the replicas that were alive when the plan was built
func (p *Plan[S]) Live() model.Endpoints[S] { return p.live }

// Contacts returns the replicas the operation is sent to
func (p *Plan[S]) Contacts() model.Endpoints[S] { return p.contacts }

// IsSufficientLive reports whether the live replicas can meet the level
func (p *Plan[S]) IsSufficientLive() bool {
	return p.requirement.IsSatisfiedBy(p.live.Replicas(), p.topology)
}

// AssureSufficientLive returns an availability error when the live replicas
// cannot meet the level. Callers check this at send time.
func (p *Plan[S]) AssureSufficientLive() error {
	if p.IsSufficientLive() {
		return nil
	}
	return p.requirement.Unavailable(p.live.Replicas(), p.topology)
}

// Equal reports whether two plans select the same replicas for the same
// requirement at the same epoch
func (p *Plan[S]) Equal(other *Plan[S]) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.keyspace.Name == other.keyspace.Name &&
		p.epoch == other.epoch &&
		p.requirement.Level == other.requirement.Level &&
		p.requirement.BlockFor == other.requirement.BlockFor &&
		p.naturalAndPending.Equal(other.naturalAndPending) &&
		p.pending.Equal(other.pending) &&
		p.live.Equal(other.live) &&
		p.contacts.Equal(other.contacts)
}

// String summarizes the plan for logs
func (p *Plan[S]) String() string {
	return fmt.Sprintf("Plan{keyspace=%s, level=%s, blockFor=%d, epoch=%d, contacts=%s}",
		p.keyspace.Name, p.requirement.Level, p.requirement.BlockFor, p.epoch, p.contacts)
}

// ForWrite is a write plan for one token
type ForWrite struct {
	Plan[model.Token]
	selector string
}

// Selector returns the name of the write selector used
func (p *ForWrite) Selector() string { return p.selector }

// ForRead is a read plan. Candidates are the live replicas eligible for the
// level, sorted by proximity with snapshot order as tie-break.
type ForRead[S model.Scope] struct {
	Plan[S]
	candidates  model.Endpoints[S]
	speculative model.Endpoints[S]
}

// ForTokenRead is a single-partition read plan
type ForTokenRead = ForRead[model.Token]

// ForRangeRead is a range scan plan over one ring range
type ForRangeRead = ForRead[model.TokenRange]

// Candidates returns the eligible live replicas in proximity order
func (p *ForRead[S]) Candidates() model.Endpoints[S] { return p.candidates }

// SpeculativeCandidates returns live − contacts in proximity order, snapshot
// order breaking ties, as the pool for speculative retries
func (p *ForRead[S]) SpeculativeCandidates() model.Endpoints[S] {
	return p.speculative
}

// ReplicaPlanner assembles replica plans. It holds no mutable state and may
// be shared between goroutines.
type ReplicaPlanner struct {
	quorum          *QuorumCalculator
	localDatacenter string
}

// NewReplicaPlanner creates a planner for a coordinator in localDatacenter
func NewReplicaPlanner(quorum *QuorumCalculator, localDatacenter string) *ReplicaPlanner {
	if quorum == nil {
		quorum = NewQuorumCalculator(nil)
	}
	return &ReplicaPlanner{quorum: quorum, localDatacenter: localDatacenter}
}

// LocalDatacenter returns the datacenter used by datacenter-local levels
func (p *ReplicaPlanner) LocalDatacenter() string { return p.localDatacenter }

// resolveConflicts reconciles a replica present in both natural and pending,
// which happens while a transient replica is being promoted to full. The full
// pending replica replaces the transient natural one so it is counted once,
// and pending keeps only endpoints absent from natural.
func resolveConflicts[S model.Scope](natural, pending model.Endpoints[S]) (model.Endpoints[S], model.Endpoints[S], error) {
	if pending.IsEmpty() {
		return natural, pending, nil
	}
	resolved := make([]model.Replica, 0, natural.Size())
	for _, r := range natural.Replicas() {
		if conflict, ok := pending.Get(r.Endpoint()); ok && r.IsTransient() && conflict.IsFull() {
			resolved = append(resolved, conflict)
			continue
		}
		resolved = append(resolved, r)
	}
	reconciled, err := model.NewEndpoints(natural.Scope(), resolved...)
	if err != nil {
		return model.Endpoints[S]{}, model.Endpoints[S]{}, err
	}
	return reconciled, pending.Subtract(reconciled), nil
}

// pinEpoch checks that the snapshot matches a requested epoch. EpochEmpty
// accepts the snapshot's own epoch.
func pinEpoch(topo Topology, epoch model.Epoch) (model.Epoch, error) {
	if epoch == model.EpochEmpty {
		return topo.Epoch(), nil
	}
	if topo.Epoch() != epoch {
		return 0, planerrors.InvalidArgument(
			fmt.Sprintf("topology snapshot is at epoch %d, plan requested for epoch %d", topo.Epoch(), epoch), nil)
	}
	return epoch, nil
}

// ForWrite builds a write plan. Pending replicas are always write targets so
// data written during a range movement reaches old and new owners. Liveness
// is sampled once; the plan is returned even when too few replicas are alive.
func (p *ReplicaPlanner) ForWrite(
	topo Topology,
	keyspace model.Keyspace,
	level model.ConsistencyLevel,
	naturalFn, pendingFn EndpointsFunc,
	epoch model.Epoch,
	isAlive LivenessFunc,
	selector WriteSelector,
) (*ForWrite, error) {
	pinned, err := pinEpoch(topo, epoch)
	if err != nil {
		return nil, err
	}
	natural, err := naturalFn(topo)
	if err != nil {
		return nil, err
	}
	if natural.IsEmpty() {
		return nil, planerrors.EmptyReplicaSet(fmt.Sprintf("token %d in keyspace %s", int64(natural.Scope()), keyspace.Name))
	}
	pending := model.EmptyEndpoints(natural.Scope())
	if pendingFn != nil {
		if pending, err = pendingFn(topo); err != nil {
			return nil, err
		}
	}
	natural, pending, err = resolveConflicts(natural, pending)
	if err != nil {
		return nil, err
	}

	req, err := p.quorum.Evaluate(level, keyspace.Replication, natural.Replicas(), pending.Replicas(), topo, p.localDatacenter)
	if err != nil {
		return nil, err
	}

	if isAlive == nil {
		isAlive = AlwaysAlive
	}
	if selector == nil {
		selector = WriteNormal
	}
	all := natural.Union(pending)
	live := all.Filter(func(r model.Replica) bool { return isAlive(r.Endpoint()) })
	contacts := selector.Select(req, topo, pending, live)

	return &ForWrite{
		Plan: Plan[model.Token]{
			keyspace:          keyspace,
			requirement:       req,
			epoch:             pinned,
			topology:          topo,
			naturalAndPending: all,
			pending:           pending,
			live:              live,
			contacts:          contacts,
		},
		selector: selector.Name(),
	}, nil
}

// ForCounterWrite builds the plan for forwarding a counter update to a single
// leader: the closest live full replica, preferring the local datacenter.
// Datacenter-local levels never pick a remote leader. When no leader
// qualifies, contacts is empty and AssureSufficientLive reports it.
func (p *ReplicaPlanner) ForCounterWrite(
	topo Topology,
	keyspace model.Keyspace,
	level model.ConsistencyLevel,
	naturalFn EndpointsFunc,
	isAlive LivenessFunc,
	proximity ProximitySorter,
) (*ForWrite, error) {
	natural, err := naturalFn(topo)
	if err != nil {
		return nil, err
	}
	if natural.IsEmpty() {
		return nil, planerrors.EmptyReplicaSet(fmt.Sprintf("token %d in keyspace %s", int64(natural.Scope()), keyspace.Name))
	}
	req, err := p.quorum.Evaluate(level, keyspace.Replication, natural.Replicas(), nil, topo, p.localDatacenter)
	if err != nil {
		return nil, err
	}
	if isAlive == nil {
		isAlive = AlwaysAlive
	}
	if proximity == nil {
		proximity = PreferDatacenter(p.localDatacenter)
	}

	live := natural.Filter(func(r model.Replica) bool { return isAlive(r.Endpoint()) })
	eligible := live.Full()
	local := eligible.Filter(func(r model.Replica) bool {
		return p.localDatacenter != "" && topo.Datacenter(r.Endpoint()) == p.localDatacenter
	})
	switch {
	case !local.IsEmpty():
		eligible = local
	case level.IsDatacenterLocal():
		eligible = model.EmptyEndpoints(natural.Scope())
	}
	leader := sortByProximity(eligible, topo, proximity).Take(1)

	return &ForWrite{
		Plan: Plan[model.Token]{
			keyspace:          keyspace,
			requirement:       req,
			epoch:             topo.Epoch(),
			topology:          topo,
			naturalAndPending: natural,
			pending:           model.EmptyEndpoints(natural.Scope()),
			live:              live,
			contacts:          leader,
		},
		selector: "counter_leader",
	}, nil
}

// ForTokenRead builds a single-partition read plan. Pending replicas are left
// out unless the policy opts in.
func (p *ReplicaPlanner) ForTokenRead(
	topo Topology,
	keyspace model.Keyspace,
	level model.ConsistencyLevel,
	naturalFn, pendingFn EndpointsFunc,
	isAlive LivenessFunc,
	policy ReadPolicy,
) (*ForTokenRead, error) {
	natural, err := naturalFn(topo)
	if err != nil {
		return nil, err
	}
	var pending model.EndpointsForToken
	if policy.IncludePending && pendingFn != nil {
		if pending, err = pendingFn(topo); err != nil {
			return nil, err
		}
	}
	return forRead(p, topo, keyspace, level, natural, pending, isAlive, policy)
}

// ForRangeRead builds a read plan for a range that lies inside one ring range
func (p *ReplicaPlanner) ForRangeRead(
	topo Topology,
	keyspace model.Keyspace,
	level model.ConsistencyLevel,
	naturalFn, pendingFn RangeEndpointsFunc,
	isAlive LivenessFunc,
	policy ReadPolicy,
) (*ForRangeRead, error) {
	natural, err := naturalFn(topo)
	if err != nil {
		return nil, err
	}
	var pending model.EndpointsForRange
	if policy.IncludePending && pendingFn != nil {
		if pending, err = pendingFn(topo); err != nil {
			return nil, err
		}
	}
	return forRead(p, topo, keyspace, level, natural, pending, isAlive, policy)
}

func forRead[S model.Scope](
	p *ReplicaPlanner,
	topo Topology,
	keyspace model.Keyspace,
	level model.ConsistencyLevel,
	natural, pending model.Endpoints[S],
	isAlive LivenessFunc,
	policy ReadPolicy,
) (*ForRead[S], error) {
	if level == model.Any {
		return nil, planerrors.UnsupportedConsistencyLevel(level.String(), "only supported for writes")
	}
	if natural.IsEmpty() {
		return nil, planerrors.EmptyReplicaSet(fmt.Sprintf("%v in keyspace %s", natural.Scope(), keyspace.Name))
	}
	if pending.Size() == 0 {
		pending = model.EmptyEndpoints(natural.Scope())
	}
	natural, pending, err := resolveConflicts(natural, pending)
	if err != nil {
		return nil, err
	}

	req, err := p.quorum.Evaluate(level, keyspace.Replication, natural.Replicas(), pending.Replicas(), topo, p.localDatacenter)
	if err != nil {
		return nil, err
	}
	if isAlive == nil {
		isAlive = AlwaysAlive
	}

	all := natural.Union(pending)
	live := all.Filter(func(r model.Replica) bool { return isAlive(r.Endpoint()) })
	byProximity := sortByProximity(live, topo, policy.sorter())
	candidates := byProximity.Filter(func(r model.Replica) bool { return req.CountsTowards(r, topo) })
	contacts := contactForRead(req, topo, candidates, policy.SpeculativeExtras)

	// Contacts are reported in snapshot order; candidates keep proximity order.
	contacts = live.Keep(contacts.Endpoints())

	return &ForRead[S]{
		Plan: Plan[S]{
			keyspace:          keyspace,
			requirement:       req,
			epoch:             topo.Epoch(),
			topology:          topo,
			naturalAndPending: all,
			pending:           pending,
			live:              live,
			contacts:          contacts,
		},
		candidates:  candidates,
		speculative: byProximity.Subtract(contacts),
	}, nil
}

// MergeRangeReads fuses two plans over adjacent ranges into one plan over
// their span. Each side keeps the requirement of its own replica set: the
// merged contacts are drawn from replicas live for both ranges and must meet
// both requirements, and the merged plan blocks for the stricter of the two.
// Its replica set is every replica owning part of the span. It returns false
// when the plans should stay separate.
func (p *ReplicaPlanner) MergeRangeReads(left, right *ForRangeRead, isAlive LivenessFunc, policy ReadPolicy) (*ForRangeRead, bool, error) {
	if left.keyspace.Name != right.keyspace.Name ||
		left.requirement.Level != right.requirement.Level ||
		left.epoch != right.epoch ||
		!left.naturalAndPending.Scope().Adjacent(right.naturalAndPending.Scope()) {
		return nil, false, nil
	}
	span := left.naturalAndPending.Scope().Span(right.naturalAndPending.Scope())
	topo := left.topology

	all, err := spanUnion(span, left.naturalAndPending, right.naturalAndPending)
	if err != nil {
		return nil, false, err
	}
	// pending on the span means natural for neither side
	pending := all.Filter(func(r model.Replica) bool {
		for _, side := range []*ForRangeRead{left, right} {
			if side.naturalAndPending.Contains(r.Endpoint()) && !side.pending.Contains(r.Endpoint()) {
				return false
			}
		}
		return true
	})

	if isAlive == nil {
		isAlive = AlwaysAlive
	}
	live, err := spanShared(span, left.live, right.live, isAlive)
	if err != nil {
		return nil, false, err
	}
	if live.IsEmpty() {
		return nil, false, nil
	}

	req := stricter(left.requirement, right.requirement)
	byProximity := sortByProximity(live, topo, policy.sorter())
	candidates := byProximity.Filter(func(r model.Replica) bool { return req.CountsTowards(r, topo) })
	contacts := live.Keep(contactForRead(req, topo, candidates, policy.SpeculativeExtras).Endpoints())

	for _, side := range []Requirement{left.requirement, right.requirement} {
		if !side.IsSatisfiedBy(contacts.Replicas(), topo) {
			return nil, false, nil
		}
	}
	if !p.worthMerging(topo, contacts, left.contacts, right.contacts) {
		return nil, false, nil
	}

	return &ForRangeRead{
		Plan: Plan[model.TokenRange]{
			keyspace:          left.keyspace,
			requirement:       req,
			epoch:             left.epoch,
			topology:          topo,
			naturalAndPending: all,
			pending:           pending,
			live:              live,
			contacts:          contacts,
		},
		candidates:  candidates,
		speculative: byProximity.Subtract(contacts),
	}, true, nil
}

// spanUnion rescopes the replicas of both sides to span. A replica is full
// only if it is full on every side holding it.
func spanUnion(span model.TokenRange, l, r model.EndpointsForRange) (model.EndpointsForRange, error) {
	out := make([]model.Replica, 0, l.Size()+r.Size())
	for _, lr := range l.Replicas() {
		isFull := lr.IsFull()
		if rr, ok := r.Get(lr.Endpoint()); ok {
			isFull = isFull && rr.IsFull()
		}
		out = append(out, rescope(lr.Endpoint(), span, isFull))
	}
	for _, rr := range r.Replicas() {
		if !l.Contains(rr.Endpoint()) {
			out = append(out, rescope(rr.Endpoint(), span, rr.IsFull()))
		}
	}
	return model.ForRange(span, out...)
}

// spanShared keeps the replicas present on both sides and alive, rescoped
// to span. A replica is full only if it is full on both sides.
func spanShared(span model.TokenRange, l, r model.EndpointsForRange, isAlive LivenessFunc) (model.EndpointsForRange, error) {
	out := make([]model.Replica, 0, l.Size())
	for _, lr := range l.Replicas() {
		rr, ok := r.Get(lr.Endpoint())
		if !ok || !isAlive(lr.Endpoint()) {
			continue
		}
		out = append(out, rescope(lr.Endpoint(), span, lr.IsFull() && rr.IsFull()))
	}
	return model.ForRange(span, out...)
}

func rescope(ep model.Endpoint, span model.TokenRange, isFull bool) model.Replica {
	if isFull {
		return model.FullReplica(ep, span)
	}
	return model.TransientReplica(ep, span)
}

// stricter combines two requirements of the same level, taking the larger
// count of every group
func stricter(a, b Requirement) Requirement {
	out := a
	if b.BlockFor > out.BlockFor {
		out.BlockFor = b.BlockFor
	}
	if a.Level.IsPerDatacenter() {
		out.PerDatacenter = make(map[string]int, len(a.PerDatacenter)+len(b.PerDatacenter))
		out.BlockFor = 0
		for _, per := range []map[string]int{a.PerDatacenter, b.PerDatacenter} {
			for dc, n := range per {
				if n > out.PerDatacenter[dc] {
					out.PerDatacenter[dc] = n
				}
			}
		}
		for _, n := range out.PerDatacenter {
			out.BlockFor += n
		}
	}
	return out
}

// worthMerging rejects a merge whose contacts reach a remote datacenter when
// neither input plan did
func (p *ReplicaPlanner) worthMerging(topo Topology, merged, left, right model.EndpointsForRange) bool {
	if p.localDatacenter == "" {
		return true
	}
	remote := func(r model.Replica) bool { return topo.Datacenter(r.Endpoint()) != p.localDatacenter }
	if !merged.Any(remote) {
		return true
	}
	return left.Any(remote) || right.Any(remote)
}
