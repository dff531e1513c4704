package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/model"
	"github.com/devrev/pairdb/placement/internal/store"
)

// EpochSource reports the epoch of the published topology
type EpochSource interface {
	CurrentEpoch() model.Epoch
}

// HealthChecker provides health check endpoints
type HealthChecker struct {
	topologyStore  store.TopologyStore
	heartbeatStore store.HeartbeatStore
	topology       EpochSource
	logger         *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Epoch     uint64            `json:"epoch,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker. heartbeatStore may be nil.
func NewHealthChecker(
	topologyStore store.TopologyStore,
	heartbeatStore store.HeartbeatStore,
	topology EpochSource,
	logger *zap.Logger,
) *HealthChecker {
	return &HealthChecker{
		topologyStore:  topologyStore,
		heartbeatStore: heartbeatStore,
		topology:       topology,
		logger:         logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests. The service is ready
// once a topology has been published and its stores answer.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkTopologyStore(ctx); err != nil {
		h.logger.Error("Topology store health check failed", zap.Error(err))
		checks["topology_store"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["topology_store"] = "healthy"
	}

	if h.heartbeatStore != nil {
		if err := h.heartbeatStore.Ping(ctx); err != nil {
			h.logger.Error("Heartbeat store health check failed", zap.Error(err))
			checks["heartbeat_store"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["heartbeat_store"] = "healthy"
		}
	}

	epoch := model.EpochEmpty
	if h.topology != nil {
		epoch = h.topology.CurrentEpoch()
	}
	if epoch == model.EpochEmpty {
		checks["topology"] = "not published"
		allHealthy = false
	} else {
		checks["topology"] = "published"
	}

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Epoch:     uint64(epoch),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")

	if allHealthy {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}

func (h *HealthChecker) checkTopologyStore(ctx context.Context) error {
	if h.topologyStore == nil {
		return nil
	}
	return h.topologyStore.Ping(ctx)
}
