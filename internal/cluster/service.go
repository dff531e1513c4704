package cluster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andres-erbsen/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devrev/pairdb/placement/internal/model"
	"github.com/devrev/pairdb/placement/internal/store"
)

// maxRefreshAttempts bounds retries when the store epoch moves mid-load
const maxRefreshAttempts = 3

// MetadataService publishes the current cluster Metadata. Readers take a
// snapshot with Snapshot and never see a partially built one; the service
// refreshes it from the topology store in the background.
type MetadataService struct {
	store    store.TopologyStore
	current  atomic.Pointer[Metadata]
	interval time.Duration
	clk      clock.Clock

	mu     sync.Mutex // guards seeded and publication ordering
	seeded map[model.Endpoint]model.Location

	started  atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewMetadataService creates a service that refreshes from topologyStore
// every interval. A nil clk uses the wall clock.
func NewMetadataService(
	topologyStore store.TopologyStore,
	interval time.Duration,
	clk clock.Clock,
	logger *zap.Logger,
) *MetadataService {
	if clk == nil {
		clk = clock.New()
	}
	s := &MetadataService{
		store:    topologyStore,
		interval: interval,
		clk:      clk,
		seeded:   make(map[model.Endpoint]model.Location),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
	s.current.Store(EmptyMetadata())
	return s
}

// Start loads the first snapshot and starts the background refresher. The
// service keeps running on an initial load failure and retries on the next
// tick.
func (s *MetadataService) Start(ctx context.Context) error {
	err := s.Refresh(ctx)
	if err != nil {
		s.logger.Error("Failed initial topology load", zap.Error(err))
	}
	if s.started.CompareAndSwap(false, true) {
		go s.refreshLoop()
	}
	return err
}

func (s *MetadataService) refreshLoop() {
	defer close(s.doneCh)
	ticker := s.clk.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if err := s.Refresh(ctx); err != nil {
				s.logger.Error("Failed to refresh topology", zap.Error(err))
			}
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

// Refresh reloads topology from the store and publishes it when the store
// epoch is newer than the current snapshot.
func (s *MetadataService) Refresh(ctx context.Context) error {
	for attempt := 1; attempt <= maxRefreshAttempts; attempt++ {
		before, err := s.store.CurrentEpoch(ctx)
		if err != nil {
			return fmt.Errorf("failed to read topology epoch: %w", err)
		}
		if !before.IsAfter(s.CurrentEpoch()) {
			return nil
		}

		var (
			nodes     []model.Node
			keyspaces []model.Keyspace
			changes   []*model.PendingChange
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			nodes, err = s.store.ListNodes(gctx)
			if err != nil {
				return fmt.Errorf("failed to list nodes: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			keyspaces, err = s.store.ListKeyspaces(gctx)
			if err != nil {
				return fmt.Errorf("failed to list keyspaces: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			changes, err = s.store.ListPendingChanges(gctx)
			if err != nil {
				return fmt.Errorf("failed to list pending changes: %w", err)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return err
		}

		after, err := s.store.CurrentEpoch(ctx)
		if err != nil {
			return fmt.Errorf("failed to read topology epoch: %w", err)
		}
		if after != before {
			s.logger.Debug("Topology changed during refresh, retrying",
				zap.Uint64("before", uint64(before)),
				zap.Uint64("after", uint64(after)),
				zap.Int("attempt", attempt))
			continue
		}

		m, err := NewMetadata(after, nodes, keyspaces)
		if err != nil {
			return fmt.Errorf("failed to build topology at epoch %d: %w", after, err)
		}
		m = m.WithPendingChanges(changes)
		s.checkMovements(m)
		s.Publish(m)
		return nil
	}
	return fmt.Errorf("topology kept changing during refresh after %d attempts", maxRefreshAttempts)
}

// checkMovements warns about movements derived from node states that no
// recorded change accounts for, and about changes left open after their
// node stopped moving
func (s *MetadataService) checkMovements(m *Metadata) {
	for _, mv := range m.Movements() {
		if !mv.Confirmed(m.Epoch()) {
			s.logger.Warn("Node is moving without a matching topology change",
				zap.String("endpoint", string(mv.Endpoint)),
				zap.String("state", string(mv.State)),
				zap.Uint64("epoch", uint64(m.Epoch())))
		}
	}
	for _, change := range m.OrphanedChanges() {
		s.logger.Warn("Topology change is in progress but its node is not moving",
			zap.String("change_id", change.ChangeID),
			zap.String("endpoint", string(change.Endpoint)),
			zap.String("type", string(change.Type)),
			zap.Uint64("start_epoch", uint64(change.StartEpoch)))
	}
}

// Publish installs m as the current snapshot unless a newer one is already
// published. Seeded locations are applied to m.
func (s *MetadataService) Publish(m *Metadata) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current.Load()
	if current.Epoch() != model.EpochEmpty && !m.Epoch().IsAfter(current.Epoch()) {
		return false
	}
	if len(s.seeded) > 0 {
		m = m.WithSeededLocations(s.seeded)
	}
	s.current.Store(m)

	s.logger.Info("Topology published",
		zap.Uint64("epoch", uint64(m.Epoch())),
		zap.Int("nodes", len(m.nodes)),
		zap.Int("keyspaces", len(m.keyspaces)),
		zap.Bool("pending_movements", m.HasPendingMovements()))
	return true
}

// SeedLocations records datacenter and rack for endpoints the store may not
// know about, such as those from a property file. The current snapshot is
// republished at the same epoch.
func (s *MetadataService) SeedLocations(locations map[model.Endpoint]model.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ep, loc := range locations {
		s.seeded[ep] = loc
	}
	s.current.Store(s.current.Load().WithSeededLocations(locations))
}

// Snapshot returns the current topology. The result never changes; take one
// per plan.
func (s *MetadataService) Snapshot() *Metadata {
	return s.current.Load()
}

// CurrentEpoch returns the epoch of the current snapshot
func (s *MetadataService) CurrentEpoch() model.Epoch {
	return s.current.Load().Epoch()
}

// Stop stops the background refresher and waits for it to exit
func (s *MetadataService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if s.started.Load() {
		<-s.doneCh
	}
	s.logger.Info("Metadata service stopped")
}
