package store

import (
	"context"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"

	"github.com/devrev/pairdb/placement/internal/model"
)

// MemoryHeartbeatStore implements HeartbeatStore in process memory
type MemoryHeartbeatStore struct {
	mu         sync.RWMutex
	heartbeats map[model.Endpoint]time.Time
	ttl        time.Duration
	clk        clock.Clock
}

// NewMemoryHeartbeatStore creates a store whose heartbeats expire after ttl
// as measured by clk
func NewMemoryHeartbeatStore(ttl time.Duration, clk clock.Clock) *MemoryHeartbeatStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryHeartbeatStore{
		heartbeats: make(map[model.Endpoint]time.Time),
		ttl:        ttl,
		clk:        clk,
	}
}

// RecordHeartbeat stores the heartbeat
func (s *MemoryHeartbeatStore) RecordHeartbeat(ctx context.Context, endpoint model.Endpoint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats[endpoint] = at
	return nil
}

// LastHeartbeats returns the unexpired heartbeats of endpoints
func (s *MemoryHeartbeatStore) LastHeartbeats(ctx context.Context, endpoints []model.Endpoint) (map[model.Endpoint]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clk.Now()
	out := make(map[model.Endpoint]time.Time, len(endpoints))
	for _, ep := range endpoints {
		at, ok := s.heartbeats[ep]
		if !ok || now.Sub(at) > s.ttl {
			continue
		}
		out[ep] = at
	}
	return out, nil
}

// Ping always succeeds
func (s *MemoryHeartbeatStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (s *MemoryHeartbeatStore) Close() error { return nil }
