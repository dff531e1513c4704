package model

import "fmt"

// Replica is a node serving a token range, either as a full or a transient copy.
// Replicas are values; the zero value is not a valid replica.
type Replica struct {
	endpoint Endpoint
	rng      TokenRange
	full     bool
}

// FullReplica creates a replica holding complete data for rng
func FullReplica(endpoint Endpoint, rng TokenRange) Replica {
	return Replica{endpoint: endpoint, rng: rng, full: true}
}

// TransientReplica creates a replica holding only unrepaired data for rng
func TransientReplica(endpoint Endpoint, rng TokenRange) Replica {
	return Replica{endpoint: endpoint, rng: rng, full: false}
}

// Endpoint returns the node address
func (r Replica) Endpoint() Endpoint { return r.endpoint }

// Range returns the token range served
func (r Replica) Range() TokenRange { return r.rng }

// IsFull reports whether the replica holds complete data
func (r Replica) IsFull() bool { return r.full }

// IsTransient reports whether the replica is transient
func (r Replica) IsTransient() bool { return !r.full }

// WithRange returns a copy of the replica scoped to rng
func (r Replica) WithRange(rng TokenRange) Replica {
	r.rng = rng
	return r
}

// String renders the replica as Full(endpoint,range) or Transient(endpoint,range)
func (r Replica) String() string {
	kind := "Transient"
	if r.full {
		kind = "Full"
	}
	return fmt.Sprintf("%s(%s,%s)", kind, r.endpoint, r.rng)
}
