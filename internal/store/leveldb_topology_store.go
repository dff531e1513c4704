package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/model"
)

// Key layout. Records are JSON; the epoch is a big-endian uint64.
const (
	levelDBEpochKey       = "epoch"
	levelDBNodePrefix     = "node/"
	levelDBKeyspacePrefix = "keyspace/"
	levelDBChangePrefix   = "change/"
)

// LevelDBTopologyStore implements TopologyStore on a local LevelDB database.
// It gives a single coordinator durable topology without an external
// database. Every mutation and its epoch bump are written in one batch.
type LevelDBTopologyStore struct {
	db     *leveldb.DB
	mu     sync.Mutex // serialises read-modify-write of the epoch
	logger *zap.Logger
}

// OpenLevelDBTopologyStore opens or creates the database at path
func OpenLevelDBTopologyStore(path string, logger *zap.Logger) (*LevelDBTopologyStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return NewLevelDBTopologyStore(db, logger), nil
}

// NewLevelDBTopologyStore wraps an open database
func NewLevelDBTopologyStore(db *leveldb.DB, logger *zap.Logger) *LevelDBTopologyStore {
	return &LevelDBTopologyStore{db: db, logger: logger}
}

func (s *LevelDBTopologyStore) readEpoch() (model.Epoch, error) {
	raw, err := s.db.Get([]byte(levelDBEpochKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return model.EpochEmpty, nil
	}
	if err != nil {
		return model.EpochEmpty, fmt.Errorf("failed to read epoch: %w", err)
	}
	return model.Epoch(binary.BigEndian.Uint64(raw)), nil
}

// write applies batch together with the next epoch
func (s *LevelDBTopologyStore) write(batch *leveldb.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	epoch, err := s.readEpoch()
	if err != nil {
		return err
	}
	next := epoch.Next()
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, uint64(next))
	batch.Put([]byte(levelDBEpochKey), raw)

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("failed to write batch: %w", err)
	}
	s.logger.Debug("Topology epoch advanced", zap.Uint64("epoch", uint64(next)))
	return nil
}

func (s *LevelDBTopologyStore) put(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte(key), data)
	return s.write(batch)
}

func (s *LevelDBTopologyStore) get(key string, out interface{}) error {
	data, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// scan decodes every record under prefix, in key order
func scan[T any](db *leveldb.DB, prefix string) ([]T, error) {
	it := db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()

	out := make([]T, 0)
	for it.Next() {
		var v T
		if err := json.Unmarshal(it.Value(), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", it.Key(), err)
		}
		out = append(out, v)
	}
	return out, it.Error()
}

// ListNodes returns every node ordered by endpoint
func (s *LevelDBTopologyStore) ListNodes(ctx context.Context) ([]model.Node, error) {
	return scan[model.Node](s.db, levelDBNodePrefix)
}

// GetNode returns a single node
func (s *LevelDBTopologyStore) GetNode(ctx context.Context, endpoint model.Endpoint) (*model.Node, error) {
	var node model.Node
	if err := s.get(levelDBNodePrefix+string(endpoint), &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// UpsertNode registers or replaces a node
func (s *LevelDBTopologyStore) UpsertNode(ctx context.Context, node model.Node) error {
	return s.put(levelDBNodePrefix+string(node.Endpoint), node)
}

// UpdateNodeState changes a node's lifecycle state
func (s *LevelDBTopologyStore) UpdateNodeState(ctx context.Context, endpoint model.Endpoint, state model.NodeState) error {
	node, err := s.GetNode(ctx, endpoint)
	if err != nil {
		return err
	}
	node.State = state
	return s.put(levelDBNodePrefix+string(endpoint), node)
}

// RemoveNode deletes a node
func (s *LevelDBTopologyStore) RemoveNode(ctx context.Context, endpoint model.Endpoint) error {
	if _, err := s.GetNode(ctx, endpoint); err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte(levelDBNodePrefix + string(endpoint)))
	return s.write(batch)
}

// ListKeyspaces returns every keyspace ordered by name
func (s *LevelDBTopologyStore) ListKeyspaces(ctx context.Context) ([]model.Keyspace, error) {
	return scan[model.Keyspace](s.db, levelDBKeyspacePrefix)
}

// GetKeyspace returns a single keyspace
func (s *LevelDBTopologyStore) GetKeyspace(ctx context.Context, name string) (*model.Keyspace, error) {
	var ks model.Keyspace
	if err := s.get(levelDBKeyspacePrefix+name, &ks); err != nil {
		return nil, err
	}
	return &ks, nil
}

// UpsertKeyspace creates or replaces a keyspace
func (s *LevelDBTopologyStore) UpsertKeyspace(ctx context.Context, keyspace model.Keyspace) error {
	return s.put(levelDBKeyspacePrefix+keyspace.Name, keyspace)
}

// CreatePendingChange records a new topology change
func (s *LevelDBTopologyStore) CreatePendingChange(ctx context.Context, change *model.PendingChange) error {
	key := levelDBChangePrefix + change.ChangeID
	if ok, err := s.db.Has([]byte(key), nil); err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	} else if ok {
		return fmt.Errorf("pending change %s already exists", change.ChangeID)
	}
	return s.put(key, change)
}

// UpdatePendingChange replaces a recorded topology change
func (s *LevelDBTopologyStore) UpdatePendingChange(ctx context.Context, change *model.PendingChange) error {
	key := levelDBChangePrefix + change.ChangeID
	if ok, err := s.db.Has([]byte(key), nil); err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	} else if !ok {
		return fmt.Errorf("pending change %s: %w", change.ChangeID, ErrNotFound)
	}
	return s.put(key, change)
}

// ListPendingChanges returns every recorded change ordered by start time
func (s *LevelDBTopologyStore) ListPendingChanges(ctx context.Context) ([]*model.PendingChange, error) {
	changes, err := scan[*model.PendingChange](s.db, levelDBChangePrefix)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].StartTime.Before(changes[j].StartTime) })
	return changes, nil
}

// CurrentEpoch returns the epoch of the latest mutation
func (s *LevelDBTopologyStore) CurrentEpoch(ctx context.Context) (model.Epoch, error) {
	return s.readEpoch()
}

// Ping reads the epoch key to check the database is usable
func (s *LevelDBTopologyStore) Ping(ctx context.Context) error {
	_, err := s.readEpoch()
	return err
}

// Close closes the database
func (s *LevelDBTopologyStore) Close() error {
	return s.db.Close()
}
