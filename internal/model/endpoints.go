package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/scylladb/go-set/strset"

	planerrors "github.com/devrev/pairdb/placement/internal/errors"
)

// Scope is what a replica collection is bound to: a single token or a range
type Scope interface {
	Token | TokenRange
}

// Endpoints is an ordered replica collection holding at most one replica per
// endpoint. Order is insertion order from the topology snapshot, never address
// order. A collection is never modified after construction; every operation
// returns a new collection.
type Endpoints[S Scope] struct {
	scope S
	byEP  *linkedhashmap.Map // Endpoint -> Replica, insertion ordered
}

// EndpointsForToken is a replica collection scoped to a single token
type EndpointsForToken = Endpoints[Token]

// EndpointsForRange is a replica collection scoped to a token range
type EndpointsForRange = Endpoints[TokenRange]

// NewEndpoints builds a collection, rejecting duplicate endpoints and replicas
// whose range does not cover scope.
func NewEndpoints[S Scope](scope S, replicas ...Replica) (Endpoints[S], error) {
	m := linkedhashmap.New()
	for _, r := range replicas {
		if !covers(r, scope) {
			return Endpoints[S]{}, planerrors.ReplicaOutOfScope(r.String(), scopeString(scope))
		}
		if _, found := m.Get(r.endpoint); found {
			return Endpoints[S]{}, planerrors.DuplicateEndpoint(string(r.endpoint), scopeString(scope))
		}
		m.Put(r.endpoint, r)
	}
	return Endpoints[S]{scope: scope, byEP: m}, nil
}

// MustNewEndpoints is NewEndpoints for static fixtures; it panics on error
func MustNewEndpoints[S Scope](scope S, replicas ...Replica) Endpoints[S] {
	e, err := NewEndpoints(scope, replicas...)
	if err != nil {
		panic(err)
	}
	return e
}

// ForToken builds a token-scoped collection
func ForToken(token Token, replicas ...Replica) (EndpointsForToken, error) {
	return NewEndpoints(token, replicas...)
}

// ForRange builds a range-scoped collection
func ForRange(rng TokenRange, replicas ...Replica) (EndpointsForRange, error) {
	return NewEndpoints(rng, replicas...)
}

// EmptyEndpoints returns a collection with no replicas
func EmptyEndpoints[S Scope](scope S) Endpoints[S] {
	return Endpoints[S]{scope: scope, byEP: linkedhashmap.New()}
}

// unchecked builds a collection from replicas already known to be distinct
// and in scope.
func unchecked[S Scope](scope S, replicas []Replica) Endpoints[S] {
	m := linkedhashmap.New()
	for _, r := range replicas {
		m.Put(r.endpoint, r)
	}
	return Endpoints[S]{scope: scope, byEP: m}
}

func covers[S Scope](r Replica, scope S) bool {
	switch s := any(scope).(type) {
	case Token:
		return r.rng.Contains(s)
	case TokenRange:
		return r.rng.ContainsRange(s)
	}
	return false
}

func scopeString[S Scope](scope S) string {
	switch s := any(scope).(type) {
	case Token:
		return fmt.Sprintf("token %d", int64(s))
	case TokenRange:
		return "range " + s.String()
	}
	return fmt.Sprint(scope)
}

// Scope returns the token or range the collection is bound to
func (e Endpoints[S]) Scope() S { return e.scope }

// Size returns the number of replicas
func (e Endpoints[S]) Size() int {
	if e.byEP == nil {
		return 0
	}
	return e.byEP.Size()
}

// IsEmpty reports whether the collection has no replicas
func (e Endpoints[S]) IsEmpty() bool { return e.Size() == 0 }

// Replicas returns the replicas in collection order. The slice is a copy.
func (e Endpoints[S]) Replicas() []Replica {
	if e.byEP == nil {
		return nil
	}
	out := make([]Replica, 0, e.byEP.Size())
	it := e.byEP.Iterator()
	for it.Next() {
		out = append(out, it.Value().(Replica))
	}
	return out
}

// Endpoints returns the set of endpoint identities
func (e Endpoints[S]) Endpoints() *strset.Set {
	set := strset.NewWithSize(e.Size())
	for _, r := range e.Replicas() {
		set.Add(string(r.endpoint))
	}
	return set
}

// EndpointList returns the endpoints in collection order
func (e Endpoints[S]) EndpointList() []Endpoint {
	out := make([]Endpoint, 0, e.Size())
	for _, r := range e.Replicas() {
		out = append(out, r.endpoint)
	}
	return out
}

// Contains reports whether a replica for endpoint exists
func (e Endpoints[S]) Contains(endpoint Endpoint) bool {
	_, ok := e.Get(endpoint)
	return ok
}

// Get returns the replica for endpoint
func (e Endpoints[S]) Get(endpoint Endpoint) (Replica, bool) {
	if e.byEP == nil {
		return Replica{}, false
	}
	v, found := e.byEP.Get(endpoint)
	if !found {
		return Replica{}, false
	}
	return v.(Replica), true
}

// Filter keeps the replicas matching pred, in order
func (e Endpoints[S]) Filter(pred func(Replica) bool) Endpoints[S] {
	kept := make([]Replica, 0, e.Size())
	for _, r := range e.Replicas() {
		if pred(r) {
			kept = append(kept, r)
		}
	}
	return unchecked(e.scope, kept)
}

// Count returns the number of replicas matching pred
func (e Endpoints[S]) Count(pred func(Replica) bool) int {
	n := 0
	for _, r := range e.Replicas() {
		if pred(r) {
			n++
		}
	}
	return n
}

// Any reports whether any replica matches pred
func (e Endpoints[S]) Any(pred func(Replica) bool) bool {
	for _, r := range e.Replicas() {
		if pred(r) {
			return true
		}
	}
	return false
}

// Union keeps every replica of e in order, then appends replicas of other
// whose endpoint e does not already hold, in other's order. On conflict the
// replica from e wins.
func (e Endpoints[S]) Union(other Endpoints[S]) Endpoints[S] {
	merged := e.Replicas()
	for _, r := range other.Replicas() {
		if !e.Contains(r.endpoint) {
			merged = append(merged, r)
		}
	}
	return unchecked(e.scope, merged)
}

// Subtract removes every replica whose endpoint appears in other
func (e Endpoints[S]) Subtract(other Endpoints[S]) Endpoints[S] {
	return e.Filter(func(r Replica) bool { return !other.Contains(r.endpoint) })
}

// Without removes the replicas of the given endpoints
func (e Endpoints[S]) Without(endpoints *strset.Set) Endpoints[S] {
	return e.Filter(func(r Replica) bool { return !endpoints.Has(string(r.endpoint)) })
}

// Keep retains only the replicas of the given endpoints
func (e Endpoints[S]) Keep(endpoints *strset.Set) Endpoints[S] {
	return e.Filter(func(r Replica) bool { return endpoints.Has(string(r.endpoint)) })
}

// Full returns the full replicas
func (e Endpoints[S]) Full() Endpoints[S] {
	return e.Filter(Replica.IsFull)
}

// Transient returns the transient replicas
func (e Endpoints[S]) Transient() Endpoints[S] {
	return e.Filter(Replica.IsTransient)
}

// CountFull returns the number of full replicas
func (e Endpoints[S]) CountFull() int {
	return e.Count(Replica.IsFull)
}

// Take returns the first n replicas
func (e Endpoints[S]) Take(n int) Endpoints[S] {
	all := e.Replicas()
	if n < len(all) {
		all = all[:n]
	}
	return unchecked(e.scope, all)
}

// SortedStable returns the replicas reordered by less. Replicas that compare
// equal keep their collection order.
func (e Endpoints[S]) SortedStable(less func(a, b Replica) bool) Endpoints[S] {
	all := e.Replicas()
	sort.SliceStable(all, func(i, j int) bool { return less(all[i], all[j]) })
	return unchecked(e.scope, all)
}

// WithScope rebinds the replicas to a narrower scope, keeping order
func WithScope[S, T Scope](e Endpoints[S], scope T) (Endpoints[T], error) {
	return NewEndpoints(scope, e.Replicas()...)
}

// Equal reports whether both collections have the same scope and the same
// replicas in the same order.
func (e Endpoints[S]) Equal(other Endpoints[S]) bool {
	if e.scope != other.scope || e.Size() != other.Size() {
		return false
	}
	a, b := e.Replicas(), other.Replicas()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders the replicas in order
func (e Endpoints[S]) String() string {
	parts := make([]string, 0, e.Size())
	for _, r := range e.Replicas() {
		parts = append(parts, r.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
