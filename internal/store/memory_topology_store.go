package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/model"
)

// MemoryTopologyStore implements TopologyStore in process memory. It is used
// for single-node development and tests.
type MemoryTopologyStore struct {
	mu        sync.RWMutex
	epoch     model.Epoch
	nodes     map[model.Endpoint]model.Node
	keyspaces map[string]model.Keyspace
	changes   map[string]*model.PendingChange
	logger    *zap.Logger
}

// NewMemoryTopologyStore creates an empty in-memory store
func NewMemoryTopologyStore(logger *zap.Logger) *MemoryTopologyStore {
	return &MemoryTopologyStore{
		epoch:     model.EpochEmpty,
		nodes:     make(map[model.Endpoint]model.Node),
		keyspaces: make(map[string]model.Keyspace),
		changes:   make(map[string]*model.PendingChange),
		logger:    logger,
	}
}

// bump advances the epoch; callers hold mu
func (s *MemoryTopologyStore) bump() {
	s.epoch = s.epoch.Next()
}

// ListNodes returns every node ordered by endpoint
func (s *MemoryTopologyStore) ListNodes(ctx context.Context) ([]model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]model.Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		node.Tokens = append([]model.Token(nil), node.Tokens...)
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Endpoint < nodes[j].Endpoint })
	return nodes, nil
}

// GetNode returns a single node
func (s *MemoryTopologyStore) GetNode(ctx context.Context, endpoint model.Endpoint) (*model.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[endpoint]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", endpoint, ErrNotFound)
	}
	node.Tokens = append([]model.Token(nil), node.Tokens...)
	return &node, nil
}

// UpsertNode registers or replaces a node
func (s *MemoryTopologyStore) UpsertNode(ctx context.Context, node model.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node.Tokens = append([]model.Token(nil), node.Tokens...)
	s.nodes[node.Endpoint] = node
	s.bump()

	s.logger.Debug("Upserted node",
		zap.String("endpoint", string(node.Endpoint)),
		zap.String("state", string(node.State)),
		zap.Uint64("epoch", uint64(s.epoch)))
	return nil
}

// UpdateNodeState changes a node's lifecycle state
func (s *MemoryTopologyStore) UpdateNodeState(ctx context.Context, endpoint model.Endpoint, state model.NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[endpoint]
	if !ok {
		return fmt.Errorf("node %s: %w", endpoint, ErrNotFound)
	}
	node.State = state
	s.nodes[endpoint] = node
	s.bump()
	return nil
}

// RemoveNode deletes a node
func (s *MemoryTopologyStore) RemoveNode(ctx context.Context, endpoint model.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[endpoint]; !ok {
		return fmt.Errorf("node %s: %w", endpoint, ErrNotFound)
	}
	delete(s.nodes, endpoint)
	s.bump()
	return nil
}

// ListKeyspaces returns every keyspace ordered by name
func (s *MemoryTopologyStore) ListKeyspaces(ctx context.Context) ([]model.Keyspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keyspaces := make([]model.Keyspace, 0, len(s.keyspaces))
	for _, ks := range s.keyspaces {
		keyspaces = append(keyspaces, ks)
	}
	sort.Slice(keyspaces, func(i, j int) bool { return keyspaces[i].Name < keyspaces[j].Name })
	return keyspaces, nil
}

// GetKeyspace returns a single keyspace
func (s *MemoryTopologyStore) GetKeyspace(ctx context.Context, name string) (*model.Keyspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ks, ok := s.keyspaces[name]
	if !ok {
		return nil, fmt.Errorf("keyspace %s: %w", name, ErrNotFound)
	}
	return &ks, nil
}

// UpsertKeyspace creates or replaces a keyspace
func (s *MemoryTopologyStore) UpsertKeyspace(ctx context.Context, keyspace model.Keyspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyspace.Replication = model.ReplicationParams{
		Class:   keyspace.Replication.Class,
		Factors: copyFactors(keyspace.Replication.Factors),
	}
	s.keyspaces[keyspace.Name] = keyspace
	s.bump()
	return nil
}

// CreatePendingChange records a new topology change
func (s *MemoryTopologyStore) CreatePendingChange(ctx context.Context, change *model.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.changes[change.ChangeID]; exists {
		return fmt.Errorf("pending change %s already exists", change.ChangeID)
	}
	copied := *change
	s.changes[change.ChangeID] = &copied
	s.bump()
	return nil
}

// UpdatePendingChange replaces a recorded topology change
func (s *MemoryTopologyStore) UpdatePendingChange(ctx context.Context, change *model.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.changes[change.ChangeID]; !exists {
		return fmt.Errorf("pending change %s: %w", change.ChangeID, ErrNotFound)
	}
	copied := *change
	s.changes[change.ChangeID] = &copied
	s.bump()
	return nil
}

// ListPendingChanges returns every recorded change ordered by start time
func (s *MemoryTopologyStore) ListPendingChanges(ctx context.Context) ([]*model.PendingChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes := make([]*model.PendingChange, 0, len(s.changes))
	for _, change := range s.changes {
		copied := *change
		changes = append(changes, &copied)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].StartTime.Before(changes[j].StartTime) })
	return changes, nil
}

// CurrentEpoch returns the epoch of the latest mutation
func (s *MemoryTopologyStore) CurrentEpoch(ctx context.Context) (model.Epoch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch, nil
}

// Ping always succeeds
func (s *MemoryTopologyStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryTopologyStore) Close() error {
	return nil
}

func copyFactors(factors map[string]model.ReplicationFactor) map[string]model.ReplicationFactor {
	out := make(map[string]model.ReplicationFactor, len(factors))
	for k, v := range factors {
		out[k] = v
	}
	return out
}
