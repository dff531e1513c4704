package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables. A missing
// file is not an error; defaults and the environment still apply.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not read config file %s: %v. Using defaults and environment variables.\n", configPath, err)
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Environment variables take precedence over the file
	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	// Server configuration
	if nodeID := os.Getenv("PLACEMENT_NODE_ID"); nodeID != "" {
		cfg.Server.NodeID = nodeID
	}
	if endpoint := os.Getenv("PLACEMENT_ENDPOINT"); endpoint != "" {
		cfg.Server.Endpoint = endpoint
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	// Store configuration
	if storeType := os.Getenv("STORE_TYPE"); storeType != "" {
		cfg.Store.Type = storeType
	}
	if path := os.Getenv("STORE_LEVELDB_PATH"); path != "" {
		cfg.Store.LevelDBPath = path
	}

	// Database configuration
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DATABASE_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = p
		}
	}
	if dbName := os.Getenv("DATABASE_NAME"); dbName != "" {
		cfg.Database.Database = dbName
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DATABASE_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}

	// Redis configuration
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		cfg.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			cfg.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}

	// Liveness and location
	if source := os.Getenv("LIVENESS_SOURCE"); source != "" {
		cfg.Liveness.Source = source
	}
	if seeds := os.Getenv("GOSSIP_SEEDS"); seeds != "" {
		cfg.Liveness.GossipSeeds = strings.Split(seeds, ",")
	}
	if dc := os.Getenv("PLACEMENT_DATACENTER"); dc != "" {
		cfg.Locator.Datacenter = dc
	}
	if rack := os.Getenv("PLACEMENT_RACK"); rack != "" {
		cfg.Locator.Rack = rack
	}

	// Consistency
	if level := os.Getenv("CONSISTENCY_DEFAULT_LEVEL"); level != "" {
		cfg.Consistency.DefaultLevel = level
	}

	// Logging configuration
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
