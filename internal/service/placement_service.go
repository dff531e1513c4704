package service

import (
	"context"
	"time"

	"github.com/scylladb/go-set/strset"
	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/algorithm"
	"github.com/devrev/pairdb/placement/internal/cluster"
	planerrors "github.com/devrev/pairdb/placement/internal/errors"
	"github.com/devrev/pairdb/placement/internal/liveness"
	"github.com/devrev/pairdb/placement/internal/metrics"
	"github.com/devrev/pairdb/placement/internal/model"
	"github.com/devrev/pairdb/placement/internal/validation"
)

// Operation names used in logs and metrics
const (
	OpWrite        = "write"
	OpCounterWrite = "counter_write"
	OpRead         = "read"
	OpRangeRead    = "range_read"
)

// TopologySource hands out the current topology snapshot
type TopologySource interface {
	Snapshot() *cluster.Metadata
}

// PlacementConfig holds the local node's identity and read tuning
type PlacementConfig struct {
	// Endpoint is this coordinator's own endpoint, preferred for reads
	Endpoint          model.Endpoint
	LocalDatacenter   string
	SpeculativeExtras int
	ReadPending       bool
}

// PlacementService builds replica plans. Each plan is computed against one
// topology snapshot and one liveness sample taken together at the start of
// the call, so the plan is internally consistent even while both change.
type PlacementService struct {
	topology    TopologySource
	oracle      liveness.Oracle
	consistency *ConsistencyService
	planner     *algorithm.ReplicaPlanner
	partitioner algorithm.Partitioner
	validator   *validation.Validator
	cfg         PlacementConfig
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewPlacementService creates a new placement service. metrics may be nil.
func NewPlacementService(
	topology TopologySource,
	oracle liveness.Oracle,
	consistency *ConsistencyService,
	cfg PlacementConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PlacementService {
	return &PlacementService{
		topology:    topology,
		oracle:      oracle,
		consistency: consistency,
		planner:     algorithm.NewReplicaPlanner(consistency.Quorum(), cfg.LocalDatacenter),
		partitioner: algorithm.NewMurmur3Partitioner(),
		validator:   validation.NewValidator(),
		cfg:         cfg,
		metrics:     m,
		logger:      logger,
	}
}

// Token returns the ring token of a partition key
func (s *PlacementService) Token(key []byte) model.Token {
	return s.partitioner.Token(key)
}

func (s *PlacementService) readPolicy() algorithm.ReadPolicy {
	return algorithm.ReadPolicy{
		IncludePending:    s.cfg.ReadPending,
		SpeculativeExtras: s.cfg.SpeculativeExtras,
		Proximity:         algorithm.PreferEndpoint(s.cfg.Endpoint, s.cfg.LocalDatacenter),
	}
}

// resolve takes the snapshot and validates the keyspace and level
func (s *PlacementService) resolve(keyspace, level string) (*cluster.Metadata, model.Keyspace, model.ConsistencyLevel, error) {
	if err := s.validator.ValidateKeyspace(keyspace); err != nil {
		return nil, model.Keyspace{}, 0, err
	}
	cl, err := s.consistency.NormalizeConsistencyLevel(level)
	if err != nil {
		return nil, model.Keyspace{}, 0, err
	}
	snapshot := s.topology.Snapshot()
	ks, err := snapshot.Keyspace(keyspace)
	if err != nil {
		return nil, model.Keyspace{}, 0, err
	}
	if err := s.consistency.CheckSupported(cl, ks, s.cfg.LocalDatacenter); err != nil {
		return nil, model.Keyspace{}, 0, err
	}
	return snapshot, ks, cl, nil
}

// sample takes one liveness sample of every endpoint in sets
func sample[S model.Scope](oracle liveness.Oracle, sets ...model.Endpoints[S]) liveness.Snapshot {
	endpoints := strset.New()
	for _, set := range sets {
		endpoints.Merge(set.Endpoints())
	}
	list := make([]model.Endpoint, 0, endpoints.Size())
	endpoints.Each(func(ep string) bool {
		list = append(list, model.Endpoint(ep))
		return true
	})
	return liveness.Sample(oracle, list)
}

func fixed[S model.Scope](e model.Endpoints[S]) func(algorithm.Topology) (model.Endpoints[S], error) {
	return func(algorithm.Topology) (model.Endpoints[S], error) { return e, nil }
}

// PlanWrite builds the write plan for key at the current epoch
func (s *PlacementService) PlanWrite(ctx context.Context, keyspace string, key []byte, level string) (*algorithm.ForWrite, error) {
	return s.PlanWriteAt(ctx, keyspace, key, level, model.EpochEmpty)
}

// PlanWriteAt builds the write plan for key, failing when the current
// topology is not at epoch. EpochEmpty accepts any epoch.
func (s *PlacementService) PlanWriteAt(ctx context.Context, keyspace string, key []byte, level string, epoch model.Epoch) (*algorithm.ForWrite, error) {
	start := time.Now()
	token := s.Token(key)

	plan, err := func() (*algorithm.ForWrite, error) {
		if err := s.validator.ValidateKey(key); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snapshot, ks, cl, err := s.resolve(keyspace, level)
		if err != nil {
			return nil, err
		}
		natural, err := snapshot.NaturalReplicas(keyspace, token)
		if err != nil {
			return nil, err
		}
		pending, err := snapshot.PendingReplicas(keyspace, token)
		if err != nil {
			return nil, err
		}
		live := sample(s.oracle, natural, pending)
		return s.planner.ForWrite(snapshot, ks, cl, fixed(natural), fixed(pending), epoch, live.IsAlive, algorithm.WriteNormal)
	}()
	if err != nil {
		s.recordError(OpWrite, keyspace, err)
		return nil, err
	}

	recordPlan(s.metrics, OpWrite, &plan.Plan, time.Since(start))
	s.logger.Debug("Write plan built",
		zap.String("keyspace", keyspace),
		zap.Int64("token", int64(token)),
		zap.Stringer("consistency", plan.ConsistencyLevel()),
		zap.Uint64("epoch", uint64(plan.Epoch())),
		zap.Int("block_for", plan.BlockFor()),
		zap.Strings("contacts", endpointStrings(plan.Contacts())),
		zap.Int("pending", plan.Pending().Size()),
		zap.Bool("sufficient", plan.IsSufficientLive()))
	return plan, nil
}

// PlanCounterWrite builds the plan forwarding a counter update to its leader
func (s *PlacementService) PlanCounterWrite(ctx context.Context, keyspace string, key []byte, level string) (*algorithm.ForWrite, error) {
	start := time.Now()
	token := s.Token(key)

	plan, err := func() (*algorithm.ForWrite, error) {
		if err := s.validator.ValidateKey(key); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snapshot, ks, cl, err := s.resolve(keyspace, level)
		if err != nil {
			return nil, err
		}
		natural, err := snapshot.NaturalReplicas(keyspace, token)
		if err != nil {
			return nil, err
		}
		live := sample(s.oracle, natural)
		return s.planner.ForCounterWrite(snapshot, ks, cl, fixed(natural), live.IsAlive,
			algorithm.PreferEndpoint(s.cfg.Endpoint, s.cfg.LocalDatacenter))
	}()
	if err != nil {
		s.recordError(OpCounterWrite, keyspace, err)
		return nil, err
	}

	recordPlan(s.metrics, OpCounterWrite, &plan.Plan, time.Since(start))
	s.logger.Debug("Counter write plan built",
		zap.String("keyspace", keyspace),
		zap.Int64("token", int64(token)),
		zap.Stringer("consistency", plan.ConsistencyLevel()),
		zap.Strings("leader", endpointStrings(plan.Contacts())))
	return plan, nil
}

// PlanRead builds the single-partition read plan for key
func (s *PlacementService) PlanRead(ctx context.Context, keyspace string, key []byte, level string) (*algorithm.ForTokenRead, error) {
	start := time.Now()
	token := s.Token(key)
	policy := s.readPolicy()

	plan, err := func() (*algorithm.ForTokenRead, error) {
		if err := s.validator.ValidateKey(key); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snapshot, ks, cl, err := s.resolve(keyspace, level)
		if err != nil {
			return nil, err
		}
		natural, err := snapshot.NaturalReplicas(keyspace, token)
		if err != nil {
			return nil, err
		}
		pending := model.EmptyEndpoints(token)
		if policy.IncludePending {
			if pending, err = snapshot.PendingReplicas(keyspace, token); err != nil {
				return nil, err
			}
		}
		live := sample(s.oracle, natural, pending)
		return s.planner.ForTokenRead(snapshot, ks, cl, fixed(natural), fixed(pending), live.IsAlive, policy)
	}()
	if err != nil {
		s.recordError(OpRead, keyspace, err)
		return nil, err
	}

	recordPlan(s.metrics, OpRead, &plan.Plan, time.Since(start))
	s.logger.Debug("Read plan built",
		zap.String("keyspace", keyspace),
		zap.Int64("token", int64(token)),
		zap.Stringer("consistency", plan.ConsistencyLevel()),
		zap.Uint64("epoch", uint64(plan.Epoch())),
		zap.Strings("contacts", endpointStrings(plan.Contacts())),
		zap.Int("speculative", plan.SpeculativeCandidates().Size()),
		zap.Bool("sufficient", plan.IsSufficientLive()))
	return plan, nil
}

// PlanRangeRead builds read plans covering rng. The range is split at ring
// boundaries and adjacent pieces are merged wherever one plan can serve
// both, so the result is the fewest plans that still meet the level.
func (s *PlacementService) PlanRangeRead(ctx context.Context, keyspace string, rng model.TokenRange, level string) ([]*algorithm.ForRangeRead, error) {
	start := time.Now()
	policy := s.readPolicy()

	plans, err := func() ([]*algorithm.ForRangeRead, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snapshot, ks, cl, err := s.resolve(keyspace, level)
		if err != nil {
			return nil, err
		}

		pieces := snapshot.SplitRange(rng)
		naturals := make([]model.EndpointsForRange, len(pieces))
		pendings := make([]model.EndpointsForRange, len(pieces))
		for i, piece := range pieces {
			if naturals[i], err = snapshot.NaturalReplicasForRange(keyspace, piece); err != nil {
				return nil, err
			}
			pendings[i] = model.EmptyEndpoints(piece)
			if policy.IncludePending {
				if pendings[i], err = snapshot.PendingReplicasForRange(keyspace, piece); err != nil {
					return nil, err
				}
			}
		}
		live := sample(s.oracle, append(naturals, pendings...)...)

		var out []*algorithm.ForRangeRead
		for i := range pieces {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			plan, err := s.planner.ForRangeRead(snapshot, ks, cl, fixed(naturals[i]), fixed(pendings[i]), live.IsAlive, policy)
			if err != nil {
				return nil, err
			}
			if len(out) > 0 {
				merged, ok, err := s.planner.MergeRangeReads(out[len(out)-1], plan, live.IsAlive, policy)
				if err != nil {
					return nil, err
				}
				if s.metrics != nil {
					s.metrics.RecordRangeMerge(ok)
				}
				if ok {
					out[len(out)-1] = merged
					continue
				}
			}
			out = append(out, plan)
		}
		return out, nil
	}()
	if err != nil {
		s.recordError(OpRangeRead, keyspace, err)
		return nil, err
	}

	elapsed := time.Since(start)
	for _, plan := range plans {
		recordPlan(s.metrics, OpRangeRead, &plan.Plan, elapsed)
	}
	s.logger.Debug("Range read plans built",
		zap.String("keyspace", keyspace),
		zap.Stringer("range", rng),
		zap.Int("plans", len(plans)))
	return plans, nil
}

// ReportTopology refreshes the topology gauges
func (s *PlacementService) ReportTopology() {
	if s.metrics == nil {
		return
	}
	snapshot := s.topology.Snapshot()
	live := liveness.Sample(s.oracle, snapshot.Endpoints())
	s.metrics.UpdateTopology(uint64(snapshot.Epoch()), len(snapshot.Endpoints()), live.Size())
}

func recordPlan[S model.Scope](m *metrics.Metrics, operation string, plan *algorithm.Plan[S], elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RecordPlan(operation, plan.ConsistencyLevel().String(), plan.Contacts().Size(),
		plan.IsSufficientLive(), !plan.Pending().IsEmpty(), elapsed.Seconds())
}

func (s *PlacementService) recordError(operation, keyspace string, err error) {
	s.logger.Debug("Plan failed",
		zap.String("operation", operation),
		zap.String("keyspace", keyspace),
		zap.Error(err))
	if s.metrics != nil {
		s.metrics.RecordError(operation, planerrors.GetCode(err).String())
	}
}

func endpointStrings[S model.Scope](e model.Endpoints[S]) []string {
	out := make([]string, 0, e.Size())
	for _, ep := range e.EndpointList() {
		out = append(out, string(ep))
	}
	return out
}
