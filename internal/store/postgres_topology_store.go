package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/model"
)

// Schema creates the tables used by PostgresTopologyStore
const Schema = `
CREATE TABLE IF NOT EXISTS topology_epoch (
	id    SMALLINT PRIMARY KEY CHECK (id = 1),
	epoch BIGINT NOT NULL
);
INSERT INTO topology_epoch (id, epoch) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS nodes (
	endpoint   TEXT PRIMARY KEY,
	datacenter TEXT NOT NULL,
	rack       TEXT NOT NULL,
	tokens     BIGINT[] NOT NULL,
	state      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS keyspaces (
	name              TEXT PRIMARY KEY,
	replication_class TEXT NOT NULL,
	factors           JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_changes (
	change_id    TEXT PRIMARY KEY,
	change_type  TEXT NOT NULL,
	endpoint     TEXT NOT NULL,
	start_epoch  BIGINT NOT NULL,
	status       TEXT NOT NULL,
	start_time   TIMESTAMPTZ NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
`

// PostgresTopologyStore implements TopologyStore for PostgreSQL
type PostgresTopologyStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresTopologyStore creates a new PostgreSQL topology store
func NewPostgresTopologyStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresTopologyStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresTopologyStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// EnsureSchema creates missing tables
func (s *PostgresTopologyStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// mutate runs fn in a transaction that also advances the topology epoch
func (s *PostgresTopologyStore) mutate(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	var epoch int64
	if err := tx.QueryRow(ctx, `UPDATE topology_epoch SET epoch = epoch + 1 WHERE id = 1 RETURNING epoch`).Scan(&epoch); err != nil {
		return fmt.Errorf("failed to advance epoch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Debug("Topology epoch advanced", zap.Int64("epoch", epoch))
	return nil
}

// ListNodes retrieves all nodes
func (s *PostgresTopologyStore) ListNodes(ctx context.Context) ([]model.Node, error) {
	query := `
		SELECT endpoint, datacenter, rack, tokens, state
		FROM nodes
		ORDER BY endpoint
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]model.Node, 0)
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	return nodes, rows.Err()
}

// GetNode retrieves a single node
func (s *PostgresTopologyStore) GetNode(ctx context.Context, endpoint model.Endpoint) (*model.Node, error) {
	query := `
		SELECT endpoint, datacenter, rack, tokens, state
		FROM nodes
		WHERE endpoint = $1
	`

	node, err := scanNode(s.pool.QueryRow(ctx, query, string(endpoint)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", endpoint, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func scanNode(row pgx.Row) (model.Node, error) {
	var (
		node     model.Node
		endpoint string
		state    string
		tokens   []int64
	)
	if err := row.Scan(&endpoint, &node.Datacenter, &node.Rack, &tokens, &state); err != nil {
		return model.Node{}, fmt.Errorf("failed to scan node: %w", err)
	}
	node.Endpoint = model.Endpoint(endpoint)
	node.State = model.NodeState(state)
	node.Tokens = make([]model.Token, len(tokens))
	for i, t := range tokens {
		node.Tokens[i] = model.Token(t)
	}
	return node, nil
}

// UpsertNode registers or replaces a node
func (s *PostgresTopologyStore) UpsertNode(ctx context.Context, node model.Node) error {
	query := `
		INSERT INTO nodes (endpoint, datacenter, rack, tokens, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE
		SET datacenter = EXCLUDED.datacenter, rack = EXCLUDED.rack,
		    tokens = EXCLUDED.tokens, state = EXCLUDED.state
	`

	tokens := make([]int64, len(node.Tokens))
	for i, t := range node.Tokens {
		tokens[i] = int64(t)
	}

	return s.mutate(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query, string(node.Endpoint), node.Datacenter, node.Rack, tokens, string(node.State))
		if err != nil {
			return fmt.Errorf("failed to upsert node: %w", err)
		}
		return nil
	})
}

// UpdateNodeState changes a node's lifecycle state
func (s *PostgresTopologyStore) UpdateNodeState(ctx context.Context, endpoint model.Endpoint, state model.NodeState) error {
	query := `UPDATE nodes SET state = $2 WHERE endpoint = $1`

	return s.mutate(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query, string(endpoint), string(state))
		if err != nil {
			return fmt.Errorf("failed to update node state: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("node %s: %w", endpoint, ErrNotFound)
		}
		return nil
	})
}

// RemoveNode deletes a node
func (s *PostgresTopologyStore) RemoveNode(ctx context.Context, endpoint model.Endpoint) error {
	query := `DELETE FROM nodes WHERE endpoint = $1`

	return s.mutate(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query, string(endpoint))
		if err != nil {
			return fmt.Errorf("failed to remove node: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("node %s: %w", endpoint, ErrNotFound)
		}
		return nil
	})
}

// ListKeyspaces retrieves all keyspaces
func (s *PostgresTopologyStore) ListKeyspaces(ctx context.Context) ([]model.Keyspace, error) {
	query := `
		SELECT name, replication_class, factors
		FROM keyspaces
		ORDER BY name
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list keyspaces: %w", err)
	}
	defer rows.Close()

	keyspaces := make([]model.Keyspace, 0)
	for rows.Next() {
		ks, err := scanKeyspace(rows)
		if err != nil {
			return nil, err
		}
		keyspaces = append(keyspaces, ks)
	}

	return keyspaces, rows.Err()
}

// GetKeyspace retrieves a single keyspace
func (s *PostgresTopologyStore) GetKeyspace(ctx context.Context, name string) (*model.Keyspace, error) {
	query := `
		SELECT name, replication_class, factors
		FROM keyspaces
		WHERE name = $1
	`

	ks, err := scanKeyspace(s.pool.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("keyspace %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ks, nil
}

func scanKeyspace(row pgx.Row) (model.Keyspace, error) {
	var (
		ks      model.Keyspace
		class   string
		factors []byte
	)
	if err := row.Scan(&ks.Name, &class, &factors); err != nil {
		return model.Keyspace{}, fmt.Errorf("failed to scan keyspace: %w", err)
	}
	ks.Replication.Class = model.ReplicationClass(class)
	if err := json.Unmarshal(factors, &ks.Replication.Factors); err != nil {
		return model.Keyspace{}, fmt.Errorf("failed to unmarshal replication factors of %s: %w", ks.Name, err)
	}
	return ks, nil
}

// UpsertKeyspace creates or replaces a keyspace
func (s *PostgresTopologyStore) UpsertKeyspace(ctx context.Context, keyspace model.Keyspace) error {
	query := `
		INSERT INTO keyspaces (name, replication_class, factors)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET replication_class = EXCLUDED.replication_class, factors = EXCLUDED.factors
	`

	factors, err := json.Marshal(keyspace.Replication.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal replication factors: %w", err)
	}

	return s.mutate(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, keyspace.Name, string(keyspace.Replication.Class), factors); err != nil {
			return fmt.Errorf("failed to upsert keyspace: %w", err)
		}
		return nil
	})
}

// CreatePendingChange records a new topology change
func (s *PostgresTopologyStore) CreatePendingChange(ctx context.Context, change *model.PendingChange) error {
	query := `
		INSERT INTO pending_changes (change_id, change_type, endpoint, start_epoch, status, start_time, last_updated, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	return s.mutate(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, query,
			change.ChangeID,
			string(change.Type),
			string(change.Endpoint),
			int64(change.StartEpoch),
			string(change.Status),
			change.StartTime,
			change.LastUpdated,
			nullableTime(change.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to create pending change: %w", err)
		}
		return nil
	})
}

// UpdatePendingChange updates the status of a recorded topology change
func (s *PostgresTopologyStore) UpdatePendingChange(ctx context.Context, change *model.PendingChange) error {
	query := `
		UPDATE pending_changes
		SET status = $2, last_updated = $3, completed_at = $4
		WHERE change_id = $1
	`

	return s.mutate(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, query,
			change.ChangeID,
			string(change.Status),
			change.LastUpdated,
			nullableTime(change.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to update pending change: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("pending change %s: %w", change.ChangeID, ErrNotFound)
		}
		return nil
	})
}

// ListPendingChanges retrieves every recorded change ordered by start time
func (s *PostgresTopologyStore) ListPendingChanges(ctx context.Context) ([]*model.PendingChange, error) {
	query := `
		SELECT change_id, change_type, endpoint, start_epoch, status, start_time, last_updated, completed_at
		FROM pending_changes
		ORDER BY start_time
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	defer rows.Close()

	changes := make([]*model.PendingChange, 0)
	for rows.Next() {
		var (
			change      model.PendingChange
			changeType  string
			endpoint    string
			startEpoch  int64
			status      string
			completedAt *time.Time
		)
		if err := rows.Scan(&change.ChangeID, &changeType, &endpoint, &startEpoch, &status,
			&change.StartTime, &change.LastUpdated, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending change: %w", err)
		}
		change.Type = model.ChangeType(changeType)
		change.Endpoint = model.Endpoint(endpoint)
		change.StartEpoch = model.Epoch(startEpoch)
		change.Status = model.PendingChangeStatus(status)
		if completedAt != nil {
			change.CompletedAt = *completedAt
		}
		changes = append(changes, &change)
	}

	return changes, rows.Err()
}

// CurrentEpoch returns the epoch of the latest mutation
func (s *PostgresTopologyStore) CurrentEpoch(ctx context.Context) (model.Epoch, error) {
	var epoch int64
	if err := s.pool.QueryRow(ctx, `SELECT epoch FROM topology_epoch WHERE id = 1`).Scan(&epoch); err != nil {
		return model.EpochEmpty, fmt.Errorf("failed to read epoch: %w", err)
	}
	return model.Epoch(epoch), nil
}

// Ping checks the database connection
func (s *PostgresTopologyStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresTopologyStore) Close() error {
	s.pool.Close()
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
