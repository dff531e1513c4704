package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/liveness"
	"github.com/devrev/pairdb/placement/internal/model"
	"github.com/devrev/pairdb/placement/internal/service"
)

// NodeView is the JSON form of a registered node
type NodeView struct {
	Endpoint   model.Endpoint  `json:"endpoint"`
	Datacenter string          `json:"datacenter"`
	Rack       string          `json:"rack"`
	State      model.NodeState `json:"state"`
	Tokens     []model.Token   `json:"tokens"`
	Alive      bool            `json:"alive"`
}

// KeyspaceView is the JSON form of a keyspace
type KeyspaceView struct {
	Name        string            `json:"name"`
	Class       string            `json:"class"`
	Replication map[string]string `json:"replication"`
}

// MovementView is a moving node and the change record behind it
type MovementView struct {
	Endpoint   model.Endpoint   `json:"endpoint"`
	State      model.NodeState  `json:"state"`
	ChangeID   string           `json:"change_id,omitempty"`
	ChangeType model.ChangeType `json:"change_type,omitempty"`
	StartEpoch uint64           `json:"start_epoch,omitempty"`
	Confirmed  bool             `json:"confirmed"`
}

// ChangeView is an in-progress change whose node is not moving
type ChangeView struct {
	ChangeID   string           `json:"change_id"`
	Endpoint   model.Endpoint   `json:"endpoint"`
	ChangeType model.ChangeType `json:"change_type"`
	StartEpoch uint64           `json:"start_epoch"`
}

// TopologyResponse describes the current topology snapshot
type TopologyResponse struct {
	Epoch           uint64         `json:"epoch"`
	Moving          bool           `json:"moving"`
	Nodes           []NodeView     `json:"nodes"`
	Keyspaces       []KeyspaceView `json:"keyspaces"`
	Movements       []MovementView `json:"movements,omitempty"`
	OrphanedChanges []ChangeView   `json:"orphaned_changes,omitempty"`
}

// RingRangeView lists the replicas of one ring range
type RingRangeView struct {
	Range   model.TokenRange `json:"range"`
	Natural []ReplicaView    `json:"natural"`
	Pending []ReplicaView    `json:"pending,omitempty"`
}

// TopologyHandler serves the topology snapshot the plans are built from
type TopologyHandler struct {
	topology service.TopologySource
	oracle   liveness.Oracle
	errors   *ErrorWriter
	logger   *zap.Logger
}

// NewTopologyHandler creates a new topology handler
func NewTopologyHandler(topology service.TopologySource, oracle liveness.Oracle, errors *ErrorWriter, logger *zap.Logger) *TopologyHandler {
	return &TopologyHandler{
		topology: topology,
		oracle:   oracle,
		errors:   errors,
		logger:   logger,
	}
}

// RegisterRoutes registers the topology routes on router
func (h *TopologyHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/topology", h.GetTopology).Methods(http.MethodGet)
	router.HandleFunc("/v1/keyspaces/{keyspace}/ring", h.GetRing).Methods(http.MethodGet)
}

// GetTopology handles GET /v1/topology
func (h *TopologyHandler) GetTopology(w http.ResponseWriter, r *http.Request) {
	snapshot := h.topology.Snapshot()
	live := liveness.Sample(h.oracle, snapshot.Endpoints())

	resp := TopologyResponse{
		Epoch:  uint64(snapshot.Epoch()),
		Moving: snapshot.HasPendingMovements(),
	}
	for _, node := range snapshot.Nodes() {
		resp.Nodes = append(resp.Nodes, NodeView{
			Endpoint:   node.Endpoint,
			Datacenter: node.Datacenter,
			Rack:       node.Rack,
			State:      node.State,
			Tokens:     node.Tokens,
			Alive:      live.IsAlive(node.Endpoint),
		})
	}
	for _, ks := range snapshot.Keyspaces() {
		view := KeyspaceView{
			Name:        ks.Name,
			Class:       string(ks.Replication.Class),
			Replication: make(map[string]string, len(ks.Replication.Factors)),
		}
		for dc, rf := range ks.Replication.Factors {
			view.Replication[dc] = rf.String()
		}
		resp.Keyspaces = append(resp.Keyspaces, view)
	}
	for _, mv := range snapshot.Movements() {
		view := MovementView{
			Endpoint:  mv.Endpoint,
			State:     mv.State,
			Confirmed: mv.Confirmed(snapshot.Epoch()),
		}
		if mv.Change != nil {
			view.ChangeID = mv.Change.ChangeID
			view.ChangeType = mv.Change.Type
			view.StartEpoch = uint64(mv.Change.StartEpoch)
		}
		resp.Movements = append(resp.Movements, view)
	}
	for _, change := range snapshot.OrphanedChanges() {
		resp.OrphanedChanges = append(resp.OrphanedChanges, ChangeView{
			ChangeID:   change.ChangeID,
			Endpoint:   change.Endpoint,
			ChangeType: change.Type,
			StartEpoch: uint64(change.StartEpoch),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRing handles GET /v1/keyspaces/{keyspace}/ring. It lists every range of
// the current and future rings with its natural and pending replicas.
func (h *TopologyHandler) GetRing(w http.ResponseWriter, r *http.Request) {
	keyspace := mux.Vars(r)["keyspace"]
	snapshot := h.topology.Snapshot()
	if _, err := snapshot.Keyspace(keyspace); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	ranges := make([]RingRangeView, 0)
	for _, rng := range snapshot.SplitRange(model.FullRing()) {
		natural, err := snapshot.NaturalReplicasForRange(keyspace, rng)
		if err != nil {
			h.errors.HandleError(w, r, err)
			return
		}
		pending, err := snapshot.PendingReplicasForRange(keyspace, rng)
		if err != nil {
			h.errors.HandleError(w, r, err)
			return
		}
		ranges = append(ranges, RingRangeView{
			Range:   rng,
			Natural: replicaViews(snapshot, natural),
			Pending: replicaViews(snapshot, pending),
		})
	}
	writeJSON(w, http.StatusOK, ranges)
}
