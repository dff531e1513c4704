package model

import "time"

// NodeState represents the lifecycle state of a storage node
type NodeState string

const (
	// NodeStateNormal indicates a fully operational node owning its tokens
	NodeStateNormal NodeState = "NORMAL"
	// NodeStateBootstrapping indicates a node receiving data for tokens it will own
	NodeStateBootstrapping NodeState = "BOOTSTRAPPING"
	// NodeStateLeaving indicates a node transferring its ranges before removal
	NodeStateLeaving NodeState = "LEAVING"
	// NodeStateDown indicates a node that is registered but administratively down
	NodeStateDown NodeState = "DOWN"
)

// OwnsTokens reports whether the node's tokens count in the current ring.
// Bootstrapping nodes only appear in the future ring.
func (s NodeState) OwnsTokens() bool {
	return s == NodeStateNormal || s == NodeStateLeaving || s == NodeStateDown
}

// Location places an endpoint in a datacenter and rack
type Location struct {
	Datacenter string `json:"datacenter" yaml:"datacenter"`
	Rack       string `json:"rack" yaml:"rack"`
}

// Node is a storage node registered in the cluster metadata
type Node struct {
	Endpoint   Endpoint  `json:"endpoint"`
	Datacenter string    `json:"datacenter"`
	Rack       string    `json:"rack"`
	Tokens     []Token   `json:"tokens"`
	State      NodeState `json:"state"`
}

// Location returns the node's datacenter and rack
func (n Node) Location() Location {
	return Location{Datacenter: n.Datacenter, Rack: n.Rack}
}

// ChangeType is the kind of topology movement
type ChangeType string

const (
	// ChangeTypeBootstrap adds a node and its tokens
	ChangeTypeBootstrap ChangeType = "bootstrap"
	// ChangeTypeDecommission removes a node
	ChangeTypeDecommission ChangeType = "decommission"
)

// PendingChangeStatus tracks the lifecycle of topology changes
type PendingChangeStatus string

const (
	// PendingChangeInProgress indicates ongoing topology change
	PendingChangeInProgress PendingChangeStatus = "in_progress"
	// PendingChangeCompleted indicates successfully completed change
	PendingChangeCompleted PendingChangeStatus = "completed"
	// PendingChangeFailed indicates failed topology change
	PendingChangeFailed PendingChangeStatus = "failed"
	// PendingChangeRolledBack indicates reverted topology change
	PendingChangeRolledBack PendingChangeStatus = "rolled_back"
)

// PendingChange tracks an ongoing topology movement (bootstrap or decommission).
// Stored in the metadata store so that every coordinator derives the same
// pending replicas for the epoch in which it started.
type PendingChange struct {
	ChangeID    string              `json:"change_id"`
	Type        ChangeType          `json:"type"`
	Endpoint    Endpoint            `json:"endpoint"`
	StartEpoch  Epoch               `json:"start_epoch"`
	Status      PendingChangeStatus `json:"status"`
	StartTime   time.Time           `json:"start_time"`
	LastUpdated time.Time           `json:"last_updated"`
	CompletedAt time.Time           `json:"completed_at,omitempty"`
}

// IsCompleted checks if a pending change has completed
func (pc *PendingChange) IsCompleted() bool {
	return pc.Status == PendingChangeCompleted
}

// IsInProgress checks if a pending change is still ongoing
func (pc *PendingChange) IsInProgress() bool {
	return pc.Status == PendingChangeInProgress
}
