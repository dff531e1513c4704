package liveness

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andres-erbsen/clock"
	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/model"
	"github.com/devrev/pairdb/placement/internal/store"
)

// EndpointSource lists the endpoints whose heartbeats should be watched
type EndpointSource func() []model.Endpoint

// HeartbeatConfig holds heartbeat failure detector configuration
type HeartbeatConfig struct {
	// PollInterval is how often heartbeats are read from the store
	PollInterval time.Duration
	// Timeout is how old a heartbeat may be before its node is down
	Timeout time.Duration
}

// HeartbeatDetector is an Oracle fed by heartbeats nodes write to a shared
// store. The view is refreshed by polling; IsAlive never touches the store.
type HeartbeatDetector struct {
	store    store.HeartbeatStore
	source   EndpointSource
	cfg      HeartbeatConfig
	clk      clock.Clock
	mu       sync.RWMutex
	last     map[model.Endpoint]time.Time
	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *zap.Logger
}

// NewHeartbeatDetector creates a detector. A nil clk uses the wall clock.
func NewHeartbeatDetector(
	heartbeats store.HeartbeatStore,
	source EndpointSource,
	cfg HeartbeatConfig,
	clk clock.Clock,
	logger *zap.Logger,
) *HeartbeatDetector {
	if clk == nil {
		clk = clock.New()
	}
	return &HeartbeatDetector{
		store:  heartbeats,
		source: source,
		cfg:    cfg,
		clk:    clk,
		last:   make(map[model.Endpoint]time.Time),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
}

// IsAlive implements Oracle
func (d *HeartbeatDetector) IsAlive(endpoint model.Endpoint) bool {
	d.mu.RLock()
	at, ok := d.last[endpoint]
	d.mu.RUnlock()
	return ok && d.clk.Now().Sub(at) <= d.cfg.Timeout
}

// Report records a heartbeat for endpoint at the current time
func (d *HeartbeatDetector) Report(ctx context.Context, endpoint model.Endpoint) error {
	if err := d.store.RecordHeartbeat(ctx, endpoint, d.clk.Now()); err != nil {
		return fmt.Errorf("failed to record heartbeat for %s: %w", endpoint, err)
	}
	return nil
}

// Poll reads the latest heartbeats of every watched endpoint
func (d *HeartbeatDetector) Poll(ctx context.Context) error {
	endpoints := d.source()
	beats, err := d.store.LastHeartbeats(ctx, endpoints)
	if err != nil {
		return fmt.Errorf("failed to read heartbeats: %w", err)
	}

	d.mu.Lock()
	d.last = beats
	d.mu.Unlock()

	d.logger.Debug("Heartbeats polled",
		zap.Int("watched", len(endpoints)),
		zap.Int("reporting", len(beats)))
	return nil
}

// Start polls once and then keeps polling in the background. When self is
// set the detector also reports a heartbeat for it on every tick.
func (d *HeartbeatDetector) Start(ctx context.Context, self model.Endpoint) error {
	if self != "" {
		if err := d.Report(ctx, self); err != nil {
			d.logger.Warn("Failed to report heartbeat", zap.Error(err))
		}
	}
	err := d.Poll(ctx)
	if d.started.CompareAndSwap(false, true) {
		go d.pollLoop(self)
	}
	return err
}

func (d *HeartbeatDetector) pollLoop(self model.Endpoint) {
	defer close(d.doneCh)
	ticker := d.clk.Ticker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PollInterval)
			if self != "" {
				if err := d.Report(ctx, self); err != nil {
					d.logger.Warn("Failed to report heartbeat", zap.Error(err))
				}
			}
			if err := d.Poll(ctx); err != nil {
				d.logger.Error("Failed to poll heartbeats", zap.Error(err))
			}
			cancel()
		case <-d.stopCh:
			return
		}
	}
}

// Stop stops background polling. It is safe to call more than once.
func (d *HeartbeatDetector) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	if d.started.Load() {
		<-d.doneCh
	}
}
