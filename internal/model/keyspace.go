package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ReplicationClass names a replication strategy
type ReplicationClass string

const (
	// SimpleStrategy places RF replicas clockwise, ignoring datacenters
	SimpleStrategy ReplicationClass = "SimpleStrategy"
	// NetworkTopologyStrategy places a configured RF in each datacenter
	NetworkTopologyStrategy ReplicationClass = "NetworkTopologyStrategy"
)

// SimpleStrategyKey is the factor key used by SimpleStrategy
const SimpleStrategyKey = "replication_factor"

// ReplicationFactor is a total replica count, of which Transient are transient
type ReplicationFactor struct {
	All       int `json:"all"`
	Transient int `json:"transient"`
}

// Full returns the number of full replicas
func (rf ReplicationFactor) Full() int {
	return rf.All - rf.Transient
}

// String renders the factor as "3" or "3/1"
func (rf ReplicationFactor) String() string {
	if rf.Transient == 0 {
		return strconv.Itoa(rf.All)
	}
	return fmt.Sprintf("%d/%d", rf.All, rf.Transient)
}

// ParseReplicationFactor parses "3" or "3/1" (three replicas, one transient)
func ParseReplicationFactor(s string) (ReplicationFactor, error) {
	s = strings.TrimSpace(s)
	allPart, transientPart, hasTransient := strings.Cut(s, "/")
	all, err := strconv.Atoi(allPart)
	if err != nil {
		return ReplicationFactor{}, fmt.Errorf("invalid replication factor %q: %w", s, err)
	}
	rf := ReplicationFactor{All: all}
	if hasTransient {
		transient, err := strconv.Atoi(transientPart)
		if err != nil {
			return ReplicationFactor{}, fmt.Errorf("invalid transient replica count %q: %w", s, err)
		}
		rf.Transient = transient
	}
	if rf.All < 0 || rf.Transient < 0 {
		return ReplicationFactor{}, fmt.Errorf("replication factor %q must not be negative", s)
	}
	if rf.Transient > 0 && rf.Full() < 1 {
		return ReplicationFactor{}, fmt.Errorf("replication factor %q needs at least one full replica", s)
	}
	return rf, nil
}

// ReplicationParams is a keyspace's replication configuration
type ReplicationParams struct {
	Class   ReplicationClass             `json:"class"`
	Factors map[string]ReplicationFactor `json:"factors"`
}

// NewReplicationParams parses Cassandra-style options such as
// {"class": "NetworkTopologyStrategy", "DC1": "3", "DC2": "3/1"}.
func NewReplicationParams(options map[string]string) (ReplicationParams, error) {
	params := ReplicationParams{
		Class:   ReplicationClass(options["class"]),
		Factors: make(map[string]ReplicationFactor),
	}
	switch params.Class {
	case SimpleStrategy, NetworkTopologyStrategy:
	default:
		return ReplicationParams{}, fmt.Errorf("unknown replication class %q", options["class"])
	}
	for key, value := range options {
		if key == "class" {
			continue
		}
		if params.Class == SimpleStrategy && key != SimpleStrategyKey {
			return ReplicationParams{}, fmt.Errorf("SimpleStrategy does not accept option %q", key)
		}
		rf, err := ParseReplicationFactor(value)
		if err != nil {
			return ReplicationParams{}, err
		}
		params.Factors[key] = rf
	}
	if params.Class == SimpleStrategy {
		if _, ok := params.Factors[SimpleStrategyKey]; !ok {
			return ReplicationParams{}, fmt.Errorf("SimpleStrategy requires %s", SimpleStrategyKey)
		}
	}
	return params, nil
}

// Simple returns SimpleStrategy params with the given factor
func Simple(rf ReplicationFactor) ReplicationParams {
	return ReplicationParams{Class: SimpleStrategy, Factors: map[string]ReplicationFactor{SimpleStrategyKey: rf}}
}

// NetworkTopology returns NetworkTopologyStrategy params with per-datacenter factors
func NetworkTopology(factors map[string]ReplicationFactor) ReplicationParams {
	copied := make(map[string]ReplicationFactor, len(factors))
	for dc, rf := range factors {
		copied[dc] = rf
	}
	return ReplicationParams{Class: NetworkTopologyStrategy, Factors: copied}
}

// IsDatacenterAware reports whether replica counts are configured per datacenter
func (p ReplicationParams) IsDatacenterAware() bool {
	return p.Class == NetworkTopologyStrategy
}

// Datacenters returns the configured datacenters in sorted order
func (p ReplicationParams) Datacenters() []string {
	if !p.IsDatacenterAware() {
		return nil
	}
	dcs := make([]string, 0, len(p.Factors))
	for dc := range p.Factors {
		dcs = append(dcs, dc)
	}
	sort.Strings(dcs)
	return dcs
}

// Total returns the summed replication factor across datacenters
func (p ReplicationParams) Total() ReplicationFactor {
	var total ReplicationFactor
	for _, rf := range p.Factors {
		total.All += rf.All
		total.Transient += rf.Transient
	}
	return total
}

// HasTransient reports whether any datacenter is configured with transient replicas
func (p ReplicationParams) HasTransient() bool {
	return p.Total().Transient > 0
}

// Keyspace is a named replication domain
type Keyspace struct {
	Name        string            `json:"name"`
	Replication ReplicationParams `json:"replication"`
}
