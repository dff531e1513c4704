package model

import (
	"fmt"
	"strings"
)

// ConsistencyLevel describes how many acknowledgments, and from where, an
// operation needs before it counts as successful.
type ConsistencyLevel int

const (
	// Any succeeds once the mutation is accepted anywhere, hints included
	Any ConsistencyLevel = iota
	// One requires a single replica
	One
	// Two requires two replicas
	Two
	// Three requires three replicas
	Three
	// Quorum requires a majority of all replicas
	Quorum
	// All requires every replica
	All
	// LocalOne requires a single replica in the local datacenter
	LocalOne
	// LocalQuorum requires a majority of the local datacenter's replicas
	LocalQuorum
	// EachQuorum requires a majority in every datacenter
	EachQuorum
)

// ConsistencyLevels lists every level, in declaration order
var ConsistencyLevels = []ConsistencyLevel{Any, One, Two, Three, Quorum, All, LocalOne, LocalQuorum, EachQuorum}

// String returns the canonical upper-case name
func (cl ConsistencyLevel) String() string {
	switch cl {
	case Any:
		return "ANY"
	case One:
		return "ONE"
	case Two:
		return "TWO"
	case Three:
		return "THREE"
	case Quorum:
		return "QUORUM"
	case All:
		return "ALL"
	case LocalOne:
		return "LOCAL_ONE"
	case LocalQuorum:
		return "LOCAL_QUORUM"
	case EachQuorum:
		return "EACH_QUORUM"
	default:
		return fmt.Sprintf("ConsistencyLevel(%d)", int(cl))
	}
}

// ParseConsistencyLevel parses a level name, case-insensitively
func ParseConsistencyLevel(s string) (ConsistencyLevel, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, cl := range ConsistencyLevels {
		if cl.String() == name {
			return cl, nil
		}
	}
	return 0, fmt.Errorf("invalid consistency level %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (cl ConsistencyLevel) MarshalText() ([]byte, error) {
	return []byte(cl.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (cl *ConsistencyLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseConsistencyLevel(string(text))
	if err != nil {
		return err
	}
	*cl = parsed
	return nil
}

// IsDatacenterLocal reports whether only the local datacenter is counted
func (cl ConsistencyLevel) IsDatacenterLocal() bool {
	return cl == LocalOne || cl == LocalQuorum
}

// IsPerDatacenter reports whether every datacenter must be satisfied on its own
func (cl ConsistencyLevel) IsPerDatacenter() bool {
	return cl == EachQuorum
}

// TransientPolicy decides how transient replicas take part in satisfying a level
type TransientPolicy int

const (
	// TransientNever excludes transient replicas from contacts and counts
	TransientNever TransientPolicy = iota
	// TransientFillShortfall lets live transient replicas stand in for full
	// replicas only while the full replicas alone fall short of blockFor
	TransientFillShortfall
	// TransientAlways treats transient replicas like full ones
	TransientAlways
)

// String returns the configuration name of the policy
func (p TransientPolicy) String() string {
	switch p {
	case TransientNever:
		return "never"
	case TransientFillShortfall:
		return "fill_shortfall"
	case TransientAlways:
		return "always"
	default:
		return fmt.Sprintf("TransientPolicy(%d)", int(p))
	}
}

// ParseTransientPolicy parses a policy configuration name
func ParseTransientPolicy(s string) (TransientPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never":
		return TransientNever, nil
	case "fill_shortfall":
		return TransientFillShortfall, nil
	case "always":
		return TransientAlways, nil
	default:
		return 0, fmt.Errorf("invalid transient policy %q", s)
	}
}

// TransientPolicies maps each level to its transient policy
type TransientPolicies map[ConsistencyLevel]TransientPolicy

// DefaultTransientPolicies returns the built-in policy for every level.
// ALL needs every full replica, so transients cannot substitute; ANY accepts
// any acknowledgment at all.
func DefaultTransientPolicies() TransientPolicies {
	policies := make(TransientPolicies, len(ConsistencyLevels))
	for _, cl := range ConsistencyLevels {
		policies[cl] = defaultTransientPolicy(cl)
	}
	return policies
}

func defaultTransientPolicy(cl ConsistencyLevel) TransientPolicy {
	switch cl {
	case All:
		return TransientNever
	case Any:
		return TransientAlways
	case One, Two, Three, Quorum, LocalOne, LocalQuorum, EachQuorum:
		return TransientFillShortfall
	default:
		return TransientNever
	}
}

// For returns the policy for cl, falling back to the built-in default
func (p TransientPolicies) For(cl ConsistencyLevel) TransientPolicy {
	if policy, ok := p[cl]; ok {
		return policy
	}
	return defaultTransientPolicy(cl)
}
