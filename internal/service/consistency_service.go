package service

import (
	"github.com/devrev/pairdb/placement/internal/algorithm"
	planerrors "github.com/devrev/pairdb/placement/internal/errors"
	"github.com/devrev/pairdb/placement/internal/model"
)

// ConsistencyService manages consistency levels and their replica
// requirements as configured, before topology and liveness are known
type ConsistencyService struct {
	defaultLevel model.ConsistencyLevel
	quorum       *algorithm.QuorumCalculator
}

// NewConsistencyService creates a new consistency service. A nil quorum uses
// the built-in transient policies.
func NewConsistencyService(defaultLevel model.ConsistencyLevel, quorum *algorithm.QuorumCalculator) *ConsistencyService {
	if quorum == nil {
		quorum = algorithm.NewQuorumCalculator(nil)
	}
	return &ConsistencyService{
		defaultLevel: defaultLevel,
		quorum:       quorum,
	}
}

// GetDefaultLevel returns the default consistency level
func (s *ConsistencyService) GetDefaultLevel() model.ConsistencyLevel {
	return s.defaultLevel
}

// Quorum returns the calculator plans are evaluated with
func (s *ConsistencyService) Quorum() *algorithm.QuorumCalculator {
	return s.quorum
}

// ValidateConsistencyLevel validates if a consistency level name is valid
func (s *ConsistencyService) ValidateConsistencyLevel(level string) bool {
	_, err := model.ParseConsistencyLevel(level)
	return err == nil
}

// NormalizeConsistencyLevel returns the consistency level to use, defaulting if empty
func (s *ConsistencyService) NormalizeConsistencyLevel(level string) (model.ConsistencyLevel, error) {
	if level == "" {
		return s.defaultLevel, nil
	}
	parsed, err := model.ParseConsistencyLevel(level)
	if err != nil {
		return 0, planerrors.InvalidArgument(err.Error(), err)
	}
	return parsed, nil
}

// CheckSupported reports configuration errors of level against a keyspace
// without building a plan
func (s *ConsistencyService) CheckSupported(level model.ConsistencyLevel, keyspace model.Keyspace, localDC string) error {
	switch {
	case level.IsDatacenterLocal() && localDC == "":
		return planerrors.UnsupportedConsistencyLevel(level.String(), "local datacenter is unknown")
	case level.IsPerDatacenter() && !keyspace.Replication.IsDatacenterAware():
		return planerrors.UnsupportedConsistencyLevel(level.String(),
			"replication class "+string(keyspace.Replication.Class)+" is not datacenter aware")
	}
	return nil
}

// GetRequiredReplicas returns blockFor of level for the configured
// replication, assuming every configured replica is placed. Only full
// replicas count.
func (s *ConsistencyService) GetRequiredReplicas(level model.ConsistencyLevel, params model.ReplicationParams, localDC string) int {
	full := params.Total().Full()
	switch level {
	case model.Any, model.One, model.LocalOne:
		return 1
	case model.Two:
		return 2
	case model.Three:
		return 3
	case model.Quorum:
		return s.quorum.CalculateQuorum(full)
	case model.All:
		return full
	case model.LocalQuorum:
		if params.IsDatacenterAware() {
			return s.quorum.CalculateQuorum(params.Factors[localDC].Full())
		}
		return s.quorum.CalculateQuorum(full)
	case model.EachQuorum:
		total := 0
		for _, dc := range params.Datacenters() {
			total += s.quorum.CalculateQuorum(params.Factors[dc].Full())
		}
		return total
	default:
		return full
	}
}

// IsQuorumReached checks if acks satisfy level for the configured replication
func (s *ConsistencyService) IsQuorumReached(acks int, level model.ConsistencyLevel, params model.ReplicationParams, localDC string) bool {
	return acks >= s.GetRequiredReplicas(level, params, localDC)
}
