package algorithm

import (
	"sort"

	"github.com/devrev/pairdb/placement/internal/model"
)

// TokenRing is an immutable sorted map of ring tokens to their owning endpoint.
// Each token t owns the range (predecessor(t), t].
type TokenRing struct {
	ring    []model.Token                  // Sorted tokens
	owners  map[model.Token]model.Endpoint // Token -> owner
	byOwner map[model.Endpoint][]model.Token
}

// NewTokenRing builds a ring from endpoint -> tokens assignments. A token
// claimed by two endpoints keeps the first claimant in sorted endpoint order.
func NewTokenRing(assignments map[model.Endpoint][]model.Token) *TokenRing {
	endpoints := make([]model.Endpoint, 0, len(assignments))
	for ep := range assignments {
		endpoints = append(endpoints, ep)
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i] < endpoints[j] })

	tr := &TokenRing{
		ring:    make([]model.Token, 0),
		owners:  make(map[model.Token]model.Endpoint),
		byOwner: make(map[model.Endpoint][]model.Token),
	}
	for _, ep := range endpoints {
		for _, t := range assignments[ep] {
			if _, taken := tr.owners[t]; taken {
				continue
			}
			tr.owners[t] = ep
			tr.ring = append(tr.ring, t)
			tr.byOwner[ep] = append(tr.byOwner[ep], t)
		}
	}
	sort.Slice(tr.ring, func(i, j int) bool { return tr.ring[i] < tr.ring[j] })
	return tr
}

// Assignments returns a copy of the endpoint -> tokens map
func (tr *TokenRing) Assignments() map[model.Endpoint][]model.Token {
	out := make(map[model.Endpoint][]model.Token, len(tr.byOwner))
	for ep, tokens := range tr.byOwner {
		out[ep] = append([]model.Token(nil), tokens...)
	}
	return out
}

// WithTokens returns a new ring where endpoint additionally owns tokens
func (tr *TokenRing) WithTokens(endpoint model.Endpoint, tokens []model.Token) *TokenRing {
	assignments := tr.Assignments()
	assignments[endpoint] = append(assignments[endpoint], tokens...)
	return NewTokenRing(assignments)
}

// WithoutEndpoint returns a new ring with every token of endpoint removed
func (tr *TokenRing) WithoutEndpoint(endpoint model.Endpoint) *TokenRing {
	assignments := tr.Assignments()
	delete(assignments, endpoint)
	return NewTokenRing(assignments)
}

// IsEmpty reports whether the ring has no tokens
func (tr *TokenRing) IsEmpty() bool {
	return len(tr.ring) == 0
}

// Tokens returns the sorted ring tokens
func (tr *TokenRing) Tokens() []model.Token {
	return append([]model.Token(nil), tr.ring...)
}

// Endpoints returns the number of distinct owners
func (tr *TokenRing) Endpoints() int {
	return len(tr.byOwner)
}

// Owner returns the owner of a ring token
func (tr *TokenRing) Owner(t model.Token) (model.Endpoint, bool) {
	ep, ok := tr.owners[t]
	return ep, ok
}

// index returns the position of the ring token owning t
func (tr *TokenRing) index(t model.Token) int {
	idx := sort.Search(len(tr.ring), func(i int) bool {
		return tr.ring[i] >= t
	})
	// Wrap around if necessary
	if idx >= len(tr.ring) {
		idx = 0
	}
	return idx
}

// RangeFor returns the ring range containing t
func (tr *TokenRing) RangeFor(t model.Token) model.TokenRange {
	if len(tr.ring) == 0 {
		return model.FullRing()
	}
	idx := tr.index(t)
	if len(tr.ring) == 1 {
		return model.TokenRange{Start: tr.ring[0], End: tr.ring[0]}
	}
	prev := (idx - 1 + len(tr.ring)) % len(tr.ring)
	return model.TokenRange{Start: tr.ring[prev], End: tr.ring[idx]}
}

// Ranges returns every ring range in token order
func (tr *TokenRing) Ranges() []model.TokenRange {
	out := make([]model.TokenRange, 0, len(tr.ring))
	for _, t := range tr.ring {
		out = append(out, tr.RangeFor(t))
	}
	return out
}

// Walk visits ring tokens clockwise starting with the owner of t, until
// visit returns false or every token has been visited once.
func (tr *TokenRing) Walk(t model.Token, visit func(token model.Token, owner model.Endpoint) bool) {
	if len(tr.ring) == 0 {
		return
	}
	start := tr.index(t)
	for i := 0; i < len(tr.ring); i++ {
		token := tr.ring[(start+i)%len(tr.ring)]
		if !visit(token, tr.owners[token]) {
			return
		}
	}
}
