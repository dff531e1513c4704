package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/model"
)

const heartbeatKeyPrefix = "placement:heartbeat:"

// RedisHeartbeatStore implements HeartbeatStore for Redis. Each heartbeat is
// a key holding a unix-nano timestamp that expires after ttl, so a node that
// stops reporting disappears on its own.
type RedisHeartbeatStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisHeartbeatStore creates a new Redis heartbeat store
func NewRedisHeartbeatStore(host string, port int, password string, db int, ttl time.Duration, logger *zap.Logger) (*RedisHeartbeatStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisHeartbeatStoreWithClient(client, ttl, logger), nil
}

// NewRedisHeartbeatStoreWithClient wraps an existing client
func NewRedisHeartbeatStoreWithClient(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisHeartbeatStore {
	return &RedisHeartbeatStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func heartbeatKey(endpoint model.Endpoint) string {
	return heartbeatKeyPrefix + string(endpoint)
}

// RecordHeartbeat stores the heartbeat with the configured TTL
func (s *RedisHeartbeatStore) RecordHeartbeat(ctx context.Context, endpoint model.Endpoint, at time.Time) error {
	value := strconv.FormatInt(at.UnixNano(), 10)
	if err := s.client.Set(ctx, heartbeatKey(endpoint), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record heartbeat for %s: %w", endpoint, err)
	}
	return nil
}

// LastHeartbeats reads the heartbeats of endpoints in one round trip
func (s *RedisHeartbeatStore) LastHeartbeats(ctx context.Context, endpoints []model.Endpoint) (map[model.Endpoint]time.Time, error) {
	out := make(map[model.Endpoint]time.Time, len(endpoints))
	if len(endpoints) == 0 {
		return out, nil
	}

	keys := make([]string, len(endpoints))
	for i, ep := range endpoints {
		keys[i] = heartbeatKey(ep)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read heartbeats: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.logger.Warn("Ignoring malformed heartbeat",
				zap.String("endpoint", string(endpoints[i])),
				zap.String("value", raw))
			continue
		}
		out[endpoints[i]] = time.Unix(0, nanos)
	}
	return out, nil
}

// Ping checks the Redis connection
func (s *RedisHeartbeatStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisHeartbeatStore) Close() error {
	return s.client.Close()
}
