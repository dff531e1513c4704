package liveness

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/model"
)

// GossipConfig holds gossip failure detector configuration
type GossipConfig struct {
	NodeName       string
	BindAddr       string
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// NodeMeta is what each member advertises about itself
type NodeMeta struct {
	Endpoint   model.Endpoint `json:"endpoint"`
	Datacenter string         `json:"datacenter"`
	Rack       string         `json:"rack"`
}

// GossipDetector is an Oracle fed by memberlist membership. A member is
// alive from join until leave or failure.
type GossipDetector struct {
	memberlist *memberlist.Memberlist
	local      NodeMeta
	mu         sync.RWMutex
	alive      map[model.Endpoint]bool
	locations  map[model.Endpoint]model.Location
	byName     map[string]model.Endpoint
	logger     *zap.Logger
}

// NewGossipDetector creates the detector and joins the seed nodes. Failing
// to reach seeds is logged, not fatal.
func NewGossipDetector(cfg GossipConfig, local NodeMeta, logger *zap.Logger) (*GossipDetector, error) {
	d := newGossipDetector(local, logger)

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeName
	if mlConfig.Name == "" {
		mlConfig.Name = string(local.Endpoint)
	}
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
	}
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Delegate = d
	mlConfig.Events = d
	mlConfig.LogOutput = zap.NewStdLog(logger).Writer()

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	d.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}
	return d, nil
}

func newGossipDetector(local NodeMeta, logger *zap.Logger) *GossipDetector {
	return &GossipDetector{
		local:     local,
		alive:     make(map[model.Endpoint]bool),
		locations: make(map[model.Endpoint]model.Location),
		byName:    make(map[string]model.Endpoint),
		logger:    logger,
	}
}

// IsAlive implements Oracle
func (d *GossipDetector) IsAlive(endpoint model.Endpoint) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.alive[endpoint]
}

// Locations returns the datacenter and rack every member advertised
func (d *GossipDetector) Locations() map[model.Endpoint]model.Location {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[model.Endpoint]model.Location, len(d.locations))
	for ep, loc := range d.locations {
		out[ep] = loc
	}
	return out
}

// Members returns the number of live members
func (d *GossipDetector) Members() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, up := range d.alive {
		if up {
			n++
		}
	}
	return n
}

// endpointOf resolves a member to its endpoint. Members without metadata are
// known by name.
func (d *GossipDetector) endpointOf(node *memberlist.Node) (model.Endpoint, *NodeMeta) {
	var meta NodeMeta
	if len(node.Meta) > 0 {
		if err := json.Unmarshal(node.Meta, &meta); err != nil {
			d.logger.Warn("Failed to unmarshal member metadata",
				zap.String("node", node.Name), zap.Error(err))
		} else if meta.Endpoint != "" {
			return meta.Endpoint, &meta
		}
	}
	if ep, ok := d.byName[node.Name]; ok {
		return ep, nil
	}
	return model.Endpoint(node.Name), nil
}

func (d *GossipDetector) markAlive(node *memberlist.Node) model.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	ep, meta := d.endpointOf(node)
	d.byName[node.Name] = ep
	d.alive[ep] = true
	if meta != nil && meta.Datacenter != "" {
		d.locations[ep] = model.Location{Datacenter: meta.Datacenter, Rack: meta.Rack}
	}
	return ep
}

// NotifyJoin implements memberlist.EventDelegate
func (d *GossipDetector) NotifyJoin(node *memberlist.Node) {
	ep := d.markAlive(node)
	d.logger.Info("Node joined",
		zap.String("node", node.Name),
		zap.String("endpoint", string(ep)))
}

// NotifyUpdate implements memberlist.EventDelegate
func (d *GossipDetector) NotifyUpdate(node *memberlist.Node) {
	ep := d.markAlive(node)
	d.logger.Debug("Node updated",
		zap.String("node", node.Name),
		zap.String("endpoint", string(ep)))
}

// NotifyLeave implements memberlist.EventDelegate. memberlist reports both
// graceful leaves and failed probes here.
func (d *GossipDetector) NotifyLeave(node *memberlist.Node) {
	d.mu.Lock()
	ep, _ := d.endpointOf(node)
	d.alive[ep] = false
	d.mu.Unlock()

	d.logger.Info("Node left",
		zap.String("node", node.Name),
		zap.String("endpoint", string(ep)))
}

// NodeMeta implements memberlist.Delegate
func (d *GossipDetector) NodeMeta(limit int) []byte {
	data, err := json.Marshal(d.local)
	if err != nil || len(data) > limit {
		d.logger.Warn("Member metadata does not fit", zap.Int("limit", limit))
		return nil
	}
	return data
}

// NotifyMsg implements memberlist.Delegate
func (d *GossipDetector) NotifyMsg([]byte) {}

// GetBroadcasts implements memberlist.Delegate
func (d *GossipDetector) GetBroadcasts(overhead, limit int) [][]byte { return nil }

// LocalState implements memberlist.Delegate
func (d *GossipDetector) LocalState(join bool) []byte { return nil }

// MergeRemoteState implements memberlist.Delegate
func (d *GossipDetector) MergeRemoteState(buf []byte, join bool) {}

// Shutdown leaves the cluster and stops gossiping
func (d *GossipDetector) Shutdown() error {
	if d.memberlist == nil {
		return nil
	}
	if err := d.memberlist.Leave(time.Second); err != nil {
		d.logger.Warn("Failed to leave gossip cluster", zap.Error(err))
	}
	return d.memberlist.Shutdown()
}
