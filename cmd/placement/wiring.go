package main

import (
	"context"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devrev/pairdb/placement/internal/cluster"
	"github.com/devrev/pairdb/placement/internal/config"
	"github.com/devrev/pairdb/placement/internal/liveness"
	"github.com/devrev/pairdb/placement/internal/locator"
	"github.com/devrev/pairdb/placement/internal/model"
	"github.com/devrev/pairdb/placement/internal/store"
)

// initLogger builds the zap logger from logging configuration
func initLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		// Fallback to basic logger
		logger, _ = zap.NewProduction()
	}
	return logger
}

// openTopologyStore opens the configured topology backend
func openTopologyStore(cfg *config.Config, logger *zap.Logger) (store.TopologyStore, error) {
	switch cfg.Store.Type {
	case config.StorePostgres:
		pg, err := store.NewPostgresTopologyStore(
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.Database,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.MaxConnections,
			cfg.Database.MinConnections,
			logger,
		)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.StoreLevelDB:
		db, err := leveldb.OpenFile(cfg.Store.LevelDBPath, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open leveldb at %s: %w", cfg.Store.LevelDBPath, err)
		}
		return store.NewLevelDBTopologyStore(db, logger), nil
	default:
		return store.NewMemoryTopologyStore(logger), nil
	}
}

// newLocator creates the configured locator
func newLocator(cfg *config.Config, logger *zap.Logger) (locator.Locator, error) {
	switch cfg.Locator.Type {
	case config.LocatorPropertyFile:
		pf, err := locator.LoadPropertyFile(cfg.Locator.PropertyFile)
		if err != nil {
			return nil, err
		}
		return pf, nil
	case config.LocatorGoogleCloud:
		return locator.NewGoogleCloud(locator.GoogleCloudConfig{
			MetadataURL:      cfg.Locator.MetadataURL,
			DatacenterSuffix: cfg.Locator.DatacenterSuffix,
		}, logger), nil
	default:
		return locator.NewStatic(cfg.Locator.Datacenter, cfg.Locator.Rack), nil
	}
}

// seedLocations tells the metadata service where this coordinator and any
// endpoints known to the locator live
func seedLocations(topology *cluster.MetadataService, loc locator.Locator, local model.Location, self model.Endpoint) {
	seeds := make(map[model.Endpoint]model.Location)
	if el, ok := loc.(locator.EndpointLocator); ok {
		for ep, l := range el.Endpoints() {
			seeds[ep] = l
		}
	}
	if self != "" {
		seeds[self] = local
	}
	if len(seeds) > 0 {
		topology.SeedLocations(seeds)
	}
}

// detectorSet is the liveness source chosen by configuration
type detectorSet struct {
	oracle     liveness.Oracle
	gossip     *liveness.GossipDetector
	heartbeat  *liveness.HeartbeatDetector
	heartbeats store.HeartbeatStore
}

func (d *detectorSet) stop() {
	if d.heartbeat != nil {
		d.heartbeat.Stop()
	}
	if d.gossip != nil {
		d.gossip.Shutdown()
	}
}

// newLiveness starts the configured failure detector. Endpoints listed as
// down in configuration stay down whatever the detector says.
func newLiveness(ctx context.Context, cfg *config.Config, topology *cluster.MetadataService, local model.Location, logger *zap.Logger) (*detectorSet, error) {
	down := make([]model.Endpoint, 0, len(cfg.Liveness.Down))
	for _, ep := range cfg.Liveness.Down {
		down = append(down, model.Endpoint(ep))
	}
	static := liveness.NewStatic(down...)
	self := model.Endpoint(cfg.Server.Endpoint)

	switch cfg.Liveness.Source {
	case config.LivenessGossip:
		gossip, err := liveness.NewGossipDetector(liveness.GossipConfig{
			NodeName:       cfg.Server.NodeID,
			BindAddr:       cfg.Liveness.GossipBindAddr,
			BindPort:       cfg.Liveness.GossipBindPort,
			SeedNodes:      cfg.Liveness.GossipSeeds,
			GossipInterval: cfg.Liveness.GossipInterval,
			ProbeInterval:  cfg.Liveness.ProbeInterval,
			ProbeTimeout:   cfg.Liveness.ProbeTimeout,
		}, liveness.NodeMeta{
			Endpoint:   self,
			Datacenter: local.Datacenter,
			Rack:       local.Rack,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &detectorSet{oracle: liveness.AllOf(static, gossip), gossip: gossip}, nil

	case config.LivenessHeartbeat:
		heartbeats, err := store.NewRedisHeartbeatStore(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.HeartbeatTTL,
			logger,
		)
		if err != nil {
			return nil, err
		}
		detector := liveness.NewHeartbeatDetector(heartbeats,
			func() []model.Endpoint { return topology.Snapshot().Endpoints() },
			liveness.HeartbeatConfig{
				PollInterval: cfg.Liveness.HeartbeatInterval,
				Timeout:      cfg.Liveness.HeartbeatTimeout,
			}, nil, logger)
		if err := detector.Start(ctx, self); err != nil {
			logger.Warn("Initial heartbeat poll failed", zap.Error(err))
		}
		return &detectorSet{
			oracle:     liveness.AllOf(static, detector),
			heartbeat:  detector,
			heartbeats: heartbeats,
		}, nil

	default:
		return &detectorSet{oracle: static}, nil
	}
}
