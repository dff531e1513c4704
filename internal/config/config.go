package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/devrev/pairdb/placement/internal/model"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreLevelDB  = "leveldb"
)

// Liveness sources
const (
	LivenessStatic    = "static"
	LivenessGossip    = "gossip"
	LivenessHeartbeat = "heartbeat"
)

// Locator types
const (
	LocatorStatic       = "static"
	LocatorPropertyFile = "property_file"
	LocatorGoogleCloud  = "gce"
)

// Config represents the placement service configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Store       StoreConfig       `mapstructure:"store"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Liveness    LivenessConfig    `mapstructure:"liveness"`
	Locator     LocatorConfig     `mapstructure:"locator"`
	Consistency ConsistencyConfig `mapstructure:"consistency"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents the HTTP plan API configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	NodeID          string        `mapstructure:"node_id"`
	Endpoint        string        `mapstructure:"endpoint"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RateLimitConfig represents per-client request limits on the plan API
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxClients        int     `mapstructure:"max_clients"`
}

// StoreConfig selects where topology is persisted
type StoreConfig struct {
	Type            string        `mapstructure:"type"`
	LevelDBPath     string        `mapstructure:"leveldb_path"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// DatabaseConfig represents PostgreSQL topology store configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// RedisConfig represents Redis heartbeat store configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	HeartbeatTTL time.Duration `mapstructure:"heartbeat_ttl"`
}

// LivenessConfig selects and tunes the failure detector
type LivenessConfig struct {
	Source            string        `mapstructure:"source"`
	Down              []string      `mapstructure:"down"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	GossipBindAddr    string        `mapstructure:"gossip_bind_addr"`
	GossipBindPort    int           `mapstructure:"gossip_bind_port"`
	GossipSeeds       []string      `mapstructure:"gossip_seeds"`
	GossipInterval    time.Duration `mapstructure:"gossip_interval"`
	ProbeInterval     time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout"`
}

// LocatorConfig selects how the local datacenter and rack are found
type LocatorConfig struct {
	Type             string `mapstructure:"type"`
	Datacenter       string `mapstructure:"datacenter"`
	Rack             string `mapstructure:"rack"`
	PropertyFile     string `mapstructure:"property_file"`
	MetadataURL      string `mapstructure:"metadata_url"`
	DatacenterSuffix string `mapstructure:"datacenter_suffix"`
}

// ConsistencyConfig represents consistency level configuration
type ConsistencyConfig struct {
	DefaultLevel      string            `mapstructure:"default_level"`
	TransientPolicies map[string]string `mapstructure:"transient_policies"`
	SpeculativeExtras int               `mapstructure:"speculative_extras"`
	ReadPending       bool              `mapstructure:"read_pending"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks the configuration and reports every problem at once
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.Host == "" {
		result = multierror.Append(result, fmt.Errorf("server.host is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port must be between 1 and 65535"))
	}
	if c.Server.NodeID == "" {
		result = multierror.Append(result, fmt.Errorf("server.node_id is required"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		result = multierror.Append(result, fmt.Errorf("rate_limit.requests_per_second and rate_limit.burst must be positive"))
	}
	if c.RateLimit.Enabled && c.RateLimit.MaxClients <= 0 {
		result = multierror.Append(result, fmt.Errorf("rate_limit.max_clients must be positive"))
	}

	switch c.Store.Type {
	case StoreMemory:
	case StorePostgres:
		if c.Database.Host == "" || c.Database.Database == "" || c.Database.User == "" {
			result = multierror.Append(result, fmt.Errorf("database.host, database.database and database.user are required for the postgres store"))
		}
	case StoreLevelDB:
		if c.Store.LevelDBPath == "" {
			result = multierror.Append(result, fmt.Errorf("store.leveldb_path is required for the leveldb store"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("store.type must be one of: memory, postgres, leveldb"))
	}
	if c.Store.RefreshInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("store.refresh_interval must be positive"))
	}

	switch c.Liveness.Source {
	case LivenessStatic:
	case LivenessGossip:
		if c.Server.Endpoint == "" {
			result = multierror.Append(result, fmt.Errorf("server.endpoint is required for gossip liveness"))
		}
	case LivenessHeartbeat:
		if c.Redis.Host == "" {
			result = multierror.Append(result, fmt.Errorf("redis.host is required for heartbeat liveness"))
		}
		if c.Liveness.HeartbeatInterval <= 0 || c.Liveness.HeartbeatTimeout < c.Liveness.HeartbeatInterval {
			result = multierror.Append(result, fmt.Errorf("liveness.heartbeat_timeout must be at least liveness.heartbeat_interval"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("liveness.source must be one of: static, gossip, heartbeat"))
	}

	switch c.Locator.Type {
	case LocatorStatic:
		if c.Locator.Datacenter == "" {
			result = multierror.Append(result, fmt.Errorf("locator.datacenter is required for the static locator"))
		}
	case LocatorPropertyFile:
		if c.Locator.PropertyFile == "" {
			result = multierror.Append(result, fmt.Errorf("locator.property_file is required"))
		}
	case LocatorGoogleCloud:
	default:
		result = multierror.Append(result, fmt.Errorf("locator.type must be one of: static, property_file, gce"))
	}

	if c.Consistency.DefaultLevel == "" {
		c.Consistency.DefaultLevel = "LOCAL_QUORUM"
	}
	if _, err := model.ParseConsistencyLevel(c.Consistency.DefaultLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("consistency.default_level: %w", err))
	}
	if _, err := c.Consistency.Policies(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Consistency.SpeculativeExtras < 0 {
		result = multierror.Append(result, fmt.Errorf("consistency.speculative_extras must not be negative"))
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return result.ErrorOrNil()
}

// Level returns the parsed default consistency level
func (c ConsistencyConfig) Level() model.ConsistencyLevel {
	level, err := model.ParseConsistencyLevel(c.DefaultLevel)
	if err != nil {
		return model.LocalQuorum
	}
	return level
}

// Policies returns the built-in transient policies with configured overrides
func (c ConsistencyConfig) Policies() (model.TransientPolicies, error) {
	policies := model.DefaultTransientPolicies()
	for name, value := range c.TransientPolicies {
		level, err := model.ParseConsistencyLevel(name)
		if err != nil {
			return nil, fmt.Errorf("consistency.transient_policies: %w", err)
		}
		policy, err := model.ParseTransientPolicy(value)
		if err != nil {
			return nil, fmt.Errorf("consistency.transient_policies.%s: %w", strings.ToLower(name), err)
		}
		policies[level] = policy
	}
	return policies, nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			NodeID:          "placement-1",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 1000,
			Burst:             2000,
			MaxClients:        10000,
		},
		Store: StoreConfig{
			Type:            StoreMemory,
			LevelDBPath:     "/var/lib/placement/topology",
			RefreshInterval: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "pairdb_metadata",
			User:           "placement",
			MaxConnections: 10,
			MinConnections: 2,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			DB:           0,
			HeartbeatTTL: time.Minute,
		},
		Liveness: LivenessConfig{
			Source:            LivenessStatic,
			HeartbeatInterval: 2 * time.Second,
			HeartbeatTimeout:  10 * time.Second,
			GossipBindPort:    7946,
			GossipInterval:    200 * time.Millisecond,
			ProbeInterval:     time.Second,
			ProbeTimeout:      500 * time.Millisecond,
		},
		Locator: LocatorConfig{
			Type:       LocatorStatic,
			Datacenter: "dc1",
			Rack:       "rack1",
		},
		Consistency: ConsistencyConfig{
			DefaultLevel: "LOCAL_QUORUM",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
