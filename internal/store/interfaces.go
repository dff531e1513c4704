package store

import (
	"context"
	"errors"
	"time"

	"github.com/devrev/pairdb/placement/internal/model"
)

// ErrNotFound is returned when a node, keyspace or change does not exist
var ErrNotFound = errors.New("not found")

// TopologyStore persists cluster membership, keyspace schema and topology
// changes. Every mutation advances the store epoch so coordinators can tell
// whether their snapshot is stale.
type TopologyStore interface {
	// Node operations
	ListNodes(ctx context.Context) ([]model.Node, error)
	GetNode(ctx context.Context, endpoint model.Endpoint) (*model.Node, error)
	UpsertNode(ctx context.Context, node model.Node) error
	UpdateNodeState(ctx context.Context, endpoint model.Endpoint, state model.NodeState) error
	RemoveNode(ctx context.Context, endpoint model.Endpoint) error

	// Keyspace operations
	ListKeyspaces(ctx context.Context) ([]model.Keyspace, error)
	GetKeyspace(ctx context.Context, name string) (*model.Keyspace, error)
	UpsertKeyspace(ctx context.Context, keyspace model.Keyspace) error

	// Topology change operations
	CreatePendingChange(ctx context.Context, change *model.PendingChange) error
	UpdatePendingChange(ctx context.Context, change *model.PendingChange) error
	ListPendingChanges(ctx context.Context) ([]*model.PendingChange, error)

	// CurrentEpoch returns the epoch of the latest mutation
	CurrentEpoch(ctx context.Context) (model.Epoch, error)

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// HeartbeatStore records the last time each node reported in
type HeartbeatStore interface {
	RecordHeartbeat(ctx context.Context, endpoint model.Endpoint, at time.Time) error
	// LastHeartbeats returns the last heartbeat of every endpoint that has one
	// that has not expired
	LastHeartbeats(ctx context.Context, endpoints []model.Endpoint) (map[model.Endpoint]time.Time, error)
	Ping(ctx context.Context) error
	Close() error
}
