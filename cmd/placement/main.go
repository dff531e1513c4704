package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/devrev/pairdb/placement/internal/algorithm"
	"github.com/devrev/pairdb/placement/internal/cluster"
	"github.com/devrev/pairdb/placement/internal/config"
	"github.com/devrev/pairdb/placement/internal/handler"
	"github.com/devrev/pairdb/placement/internal/health"
	"github.com/devrev/pairdb/placement/internal/metrics"
	"github.com/devrev/pairdb/placement/internal/middleware"
	"github.com/devrev/pairdb/placement/internal/model"
	"github.com/devrev/pairdb/placement/internal/service"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("Starting placement service",
		zap.String("node_id", cfg.Server.NodeID),
		zap.String("endpoint", cfg.Server.Endpoint),
		zap.String("store", cfg.Store.Type),
		zap.String("liveness", cfg.Liveness.Source),
		zap.String("locator", cfg.Locator.Type))

	ctx := context.Background()

	// Initialize metrics
	m := metrics.NewMetrics()

	// Initialize topology store
	topologyStore, err := openTopologyStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize topology store", zap.Error(err))
	}
	logger.Info("Topology store initialized", zap.String("type", cfg.Store.Type))

	// Find where this coordinator runs
	loc, err := newLocator(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize locator", zap.Error(err))
	}
	local, err := loc.Locate(ctx)
	if err != nil {
		logger.Fatal("Failed to determine local datacenter", zap.Error(err))
	}
	logger.Info("Local location resolved",
		zap.String("datacenter", local.Datacenter),
		zap.String("rack", local.Rack))

	// Start topology metadata service
	topology := cluster.NewMetadataService(topologyStore, cfg.Store.RefreshInterval, nil, logger)
	seedLocations(topology, loc, local, model.Endpoint(cfg.Server.Endpoint))
	if err := topology.Start(ctx); err != nil {
		logger.Warn("Topology not loaded yet; serving empty topology until the next refresh", zap.Error(err))
	}

	// Initialize failure detection
	detector, err := newLiveness(ctx, cfg, topology, local, logger)
	if err != nil {
		logger.Fatal("Failed to initialize liveness source", zap.Error(err))
	}

	// Initialize services
	policies, err := cfg.Consistency.Policies()
	if err != nil {
		logger.Fatal("Invalid transient policies", zap.Error(err))
	}
	consistencyService := service.NewConsistencyService(cfg.Consistency.Level(), algorithm.NewQuorumCalculator(policies))
	placementService := service.NewPlacementService(
		topology,
		detector.oracle,
		consistencyService,
		service.PlacementConfig{
			Endpoint:          model.Endpoint(cfg.Server.Endpoint),
			LocalDatacenter:   local.Datacenter,
			SpeculativeExtras: cfg.Consistency.SpeculativeExtras,
			ReadPending:       cfg.Consistency.ReadPending,
		},
		m,
		logger,
	)
	logger.Info("All services initialized",
		zap.String("default_consistency", consistencyService.GetDefaultLevel().String()))

	// Initialize handlers
	errorWriter := handler.NewErrorWriter(logger)
	healthChecker := health.NewHealthChecker(topologyStore, detector.heartbeats, topology, logger)

	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Timeout(cfg.Server.WriteTimeout),
	}
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.MaxClients, logger)
		middlewareChain = append(middlewareChain, limiter.Limit)
	}
	router := handler.NewRouter(
		handler.NewPlanHandler(placementService, errorWriter, cfg.Server.WriteTimeout, logger),
		handler.NewTopologyHandler(topology, detector.oracle, errorWriter, logger),
		healthChecker,
		errorWriter,
		middlewareChain...,
	)

	// Start metrics server
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			logger.Info("Starting metrics server", zap.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Keep topology gauges and gossip-learned locations current
	reportDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.Store.RefreshInterval)
		defer ticker.Stop()
		for {
			placementService.ReportTopology()
			if detector.gossip != nil {
				topology.SeedLocations(detector.gossip.Locations())
			}
			select {
			case <-ticker.C:
			case <-reportDone:
				return
			}
		}
	}()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down metrics server", zap.Error(err))
		}
	}

	// Stop services
	close(reportDone)
	detector.stop()
	topology.Stop()

	// Close stores
	if detector.heartbeats != nil {
		detector.heartbeats.Close()
	}
	topologyStore.Close()

	logger.Info("Placement service stopped")
}
