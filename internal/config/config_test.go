package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/pairdb/placement/internal/model"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, model.LocalQuorum, cfg.Consistency.Level())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	cfg.Store.Type = "cassandra"
	cfg.Liveness.Source = "ouija"
	cfg.Consistency.DefaultLevel = "MOST"

	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 4)
}

func TestValidate_BackendRequirements(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"leveldb without path", func(c *Config) { c.Store.Type = StoreLevelDB; c.Store.LevelDBPath = "" }},
		{"postgres without host", func(c *Config) { c.Store.Type = StorePostgres; c.Database.Host = "" }},
		{"gossip without endpoint", func(c *Config) { c.Liveness.Source = LivenessGossip }},
		{"heartbeat timeout below interval", func(c *Config) {
			c.Liveness.Source = LivenessHeartbeat
			c.Liveness.HeartbeatTimeout = time.Second
		}},
		{"property file without path", func(c *Config) { c.Locator.Type = LocatorPropertyFile }},
		{"bad transient policy", func(c *Config) { c.Consistency.TransientPolicies = map[string]string{"quorum": "sometimes"} }},
		{"rate limit without burst", func(c *Config) { c.RateLimit.Burst = 0 }},
		{"rate limit without client cap", func(c *Config) { c.RateLimit.MaxClients = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConsistencyConfig_Policies(t *testing.T) {
	c := ConsistencyConfig{TransientPolicies: map[string]string{"all": "fill_shortfall", "local_one": "never"}}
	policies, err := c.Policies()
	require.NoError(t, err)

	assert.Equal(t, model.TransientFillShortfall, policies.For(model.All))
	assert.Equal(t, model.TransientNever, policies.For(model.LocalOne))
	assert.Equal(t, model.TransientAlways, policies.For(model.Any))
}

const configFile = `
server:
  port: 8181
  node_id: placement-test
store:
  type: leveldb
  leveldb_path: /tmp/topology
  refresh_interval: 3s
consistency:
  default_level: quorum
  transient_policies:
    all: fill_shortfall
locator:
  type: static
  datacenter: us-east1
  rack: b
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "placement.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configFile), 0o600))
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PLACEMENT_RACK", "c")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, StoreLevelDB, cfg.Store.Type)
	assert.Equal(t, 3*time.Second, cfg.Store.RefreshInterval)
	assert.Equal(t, model.Quorum, cfg.Consistency.Level())
	assert.Equal(t, "us-east1", cfg.Locator.Datacenter)
	assert.Equal(t, "c", cfg.Locator.Rack)
	assert.Equal(t, "debug", cfg.Logging.Level)

	policies, err := cfg.Consistency.Policies()
	require.NoError(t, err)
	assert.Equal(t, model.TransientFillShortfall, policies.For(model.All))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Type)
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("STORE_TYPE", "cassandra")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
