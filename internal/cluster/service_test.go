package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/devrev/pairdb/placement/internal/model"
	"github.com/devrev/pairdb/placement/internal/store"
)

func seedStore(t *testing.T, s store.TopologyStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.UpsertNode(ctx, node(nodeA, "r1", model.NodeStateNormal, 10)))
	require.NoError(t, s.UpsertNode(ctx, node(nodeB, "r2", model.NodeStateNormal, 20)))
	require.NoError(t, s.UpsertNode(ctx, node(nodeC, "r3", model.NodeStateNormal, 30)))
	require.NoError(t, s.UpsertKeyspace(ctx, model.Keyspace{
		Name:        "users",
		Replication: model.NetworkTopology(map[string]model.ReplicationFactor{"DC1": {All: 3}}),
	}))
}

func TestMetadataService_Refresh(t *testing.T) {
	ctx := context.Background()
	topologyStore := store.NewMemoryTopologyStore(zap.NewNop())
	svc := NewMetadataService(topologyStore, time.Minute, clock.NewMock(), zap.NewNop())

	assert.Equal(t, model.EpochEmpty, svc.CurrentEpoch())
	require.NoError(t, svc.Refresh(ctx))
	assert.Equal(t, model.EpochEmpty, svc.CurrentEpoch())

	seedStore(t, topologyStore)
	require.NoError(t, svc.Refresh(ctx))
	assert.Equal(t, model.Epoch(4), svc.CurrentEpoch())

	before := svc.Snapshot()
	require.NoError(t, topologyStore.UpdateNodeState(ctx, nodeC, model.NodeStateLeaving))
	require.NoError(t, svc.Refresh(ctx))

	after := svc.Snapshot()
	assert.Equal(t, model.Epoch(5), after.Epoch())
	assert.True(t, after.HasPendingMovements())
	// earlier snapshots are untouched
	assert.False(t, before.HasPendingMovements())
}

func TestMetadataService_RefreshLoadsPendingChanges(t *testing.T) {
	ctx := context.Background()
	topologyStore := store.NewMemoryTopologyStore(zap.NewNop())
	core, logs := observer.New(zapcore.WarnLevel)
	svc := NewMetadataService(topologyStore, time.Minute, clock.NewMock(), zap.New(core))

	seedStore(t, topologyStore)
	require.NoError(t, topologyStore.UpdateNodeState(ctx, nodeC, model.NodeStateLeaving))
	require.NoError(t, topologyStore.CreatePendingChange(ctx, &model.PendingChange{
		ChangeID:   "decommission-c",
		Type:       model.ChangeTypeDecommission,
		Endpoint:   nodeC,
		StartEpoch: 5,
		Status:     model.PendingChangeInProgress,
		StartTime:  time.Now(),
	}))
	require.NoError(t, topologyStore.CreatePendingChange(ctx, &model.PendingChange{
		ChangeID:   "bootstrap-a",
		Type:       model.ChangeTypeBootstrap,
		Endpoint:   nodeA,
		StartEpoch: 1,
		Status:     model.PendingChangeCompleted,
		StartTime:  time.Now(),
	}))
	require.NoError(t, svc.Refresh(ctx))

	snapshot := svc.Snapshot()
	movements := snapshot.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, nodeC, movements[0].Endpoint)
	require.NotNil(t, movements[0].Change)
	assert.Equal(t, "decommission-c", movements[0].Change.ChangeID)
	assert.True(t, movements[0].Confirmed(snapshot.Epoch()))
	assert.Empty(t, snapshot.OrphanedChanges())
	assert.Zero(t, logs.Len())

	// an open bootstrap record for a node that is not bootstrapping
	require.NoError(t, topologyStore.CreatePendingChange(ctx, &model.PendingChange{
		ChangeID:   "bootstrap-b",
		Type:       model.ChangeTypeBootstrap,
		Endpoint:   nodeB,
		StartEpoch: 7,
		Status:     model.PendingChangeInProgress,
		StartTime:  time.Now(),
	}))
	require.NoError(t, svc.Refresh(ctx))

	orphaned := svc.Snapshot().OrphanedChanges()
	require.Len(t, orphaned, 1)
	assert.Equal(t, nodeB, orphaned[0].Endpoint)
	assert.Equal(t, 1, logs.FilterMessage("Topology change is in progress but its node is not moving").Len())
}

func TestMetadataService_PublishIsMonotonic(t *testing.T) {
	svc := NewMetadataService(store.NewMemoryTopologyStore(zap.NewNop()), time.Minute, nil, zap.NewNop())

	m := threeNodeMetadata(t)
	assert.True(t, svc.Publish(m.WithoutNode(nodeC)))
	assert.False(t, svc.Publish(m))
	assert.Equal(t, model.Epoch(2), svc.CurrentEpoch())
}

func TestMetadataService_SeedLocations(t *testing.T) {
	svc := NewMetadataService(store.NewMemoryTopologyStore(zap.NewNop()), time.Minute, nil, zap.NewNop())
	svc.Publish(threeNodeMetadata(t))

	svc.SeedLocations(map[model.Endpoint]model.Location{"10.0.2.1:9042": {Datacenter: "DC2", Rack: "r1"}})
	assert.Equal(t, "DC2", svc.Snapshot().Datacenter("10.0.2.1:9042"))
	assert.Equal(t, model.EpochFirst, svc.CurrentEpoch())

	// seeds survive later publications
	svc.Publish(svc.Snapshot().WithoutNode(nodeC))
	assert.Equal(t, "DC2", svc.Snapshot().Datacenter("10.0.2.1:9042"))
}

func TestMetadataService_BackgroundRefresh(t *testing.T) {
	ctx := context.Background()
	topologyStore := store.NewMemoryTopologyStore(zap.NewNop())
	clk := clock.NewMock()
	svc := NewMetadataService(topologyStore, time.Second, clk, zap.NewNop())

	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	seedStore(t, topologyStore)
	assert.Eventually(t, func() bool {
		clk.Add(time.Second)
		return svc.CurrentEpoch() == model.Epoch(4)
	}, 5*time.Second, 10*time.Millisecond)

	natural, err := svc.Snapshot().NaturalReplicas("users", 15)
	require.NoError(t, err)
	assert.Equal(t, 3, natural.CountFull())
}
