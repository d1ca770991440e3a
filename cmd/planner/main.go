// Command planner implements the shiftcast workforce planner.
//
// The planner runs a continuous planning loop that:
//  1. Fetches the contact volume forecast from a source (HTTP, file,
//     Prometheus or VictoriaMetrics)
//  2. Computes per-interval agent requirements with Erlang C
//  3. Chooses the cheapest set of shift instances covering each day
//  4. Stores plan snapshots and serves them via HTTP at /plan/current
//
// The planner serves an HTTP API on port 8082 (configurable) providing:
//   - GET /plan/current?site=<name> - Retrieve latest plan snapshot
//   - POST /plan - Plan a forecast posted in the body
//   - GET /plan/sites - Sites with a stored plan
//   - GET /shifts - Loaded shift catalog
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// and a gRPC health service (with reflection) on port 50052.
//
// Usage:
//
//	planner \
//	  -site=paris \
//	  -source=http \
//	  -shifts-file=shifts.yaml \
//	  -aht=5m -interval-length=30m \
//	  -service-target=80/20 -shrinkage=0.3
//
// Environment variables:
//
//	SITE            - Site name (required)
//	SOURCE          - Forecast source: http, file, prometheus, victoriametrics (required)
//	SOURCE_*        - Source settings, e.g. SOURCE_URL, SOURCE_VOLUME_PATH
//	SHIFTS_FILE     - Shift catalog YAML (default: shifts.yaml)
//	AHT             - Average handle time (default: 5m)
//	INTERVAL_LENGTH - Forecast interval length (default: 30m)
//	SERVICE_TARGET  - Service level target (default: 80/20)
//	SHRINKAGE       - Shrinkage fraction in [0,1) (default: 0)
//	MAX_INSTANCES   - Per-template instance cap (default: 0, unbounded)
//	SOLVER_TIMEOUT  - Coverage solver timeout per day (default: 30s)
//	HORIZON         - Planning horizon from today's midnight (default: 24h)
//	INTERVAL        - Planning loop interval (default: 15m)
//	TIMEZONE        - Timezone defining calendar days (default: UTC)
//	STORAGE         - memory or redis (default: memory)
//	MEMORY_TTL      - Drop in-memory plans older than this (default: 0, keep)
//	LOG_LEVEL       - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT      - Logging format: text, json (default: text)
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/shiftcast/cmd/planner/config"
	"github.com/HatiCode/shiftcast/cmd/planner/logger"
	"github.com/HatiCode/shiftcast/cmd/planner/metrics"
	"github.com/HatiCode/shiftcast/cmd/planner/router"
	"github.com/HatiCode/shiftcast/pkg/adapters"
	"github.com/HatiCode/shiftcast/pkg/coverage"
	"github.com/HatiCode/shiftcast/pkg/httpx"
	"github.com/HatiCode/shiftcast/pkg/ilp"
	"github.com/HatiCode/shiftcast/pkg/planning"
	"github.com/HatiCode/shiftcast/pkg/shifts"
	"github.com/HatiCode/shiftcast/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

// healthService is the gRPC health service name reported alongside "".
const healthService = "shiftcast.Planner"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting shiftcast planner",
		"version", version,
		"site", cfg.Site,
		"source", cfg.Source,
	)

	params, err := cfg.Params()
	if err != nil {
		fatal(log, "invalid staffing parameters", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		fatal(log, "invalid timezone", err)
	}

	templates, err := config.LoadShifts(cfg.ShiftsFile)
	if err != nil {
		fatal(log, "failed to load shift catalog", err)
	}
	log.Info("loaded shift catalog", "file", cfg.ShiftsFile, "shifts", len(templates))

	source, err := newSource(cfg)
	if err != nil {
		fatal(log, "failed to create forecast source", err)
	}

	store, check, closeStore, err := newStore(cfg)
	if err != nil {
		fatal(log, "failed to create store", err)
	}
	defer closeStore(log)

	pipeline := &planning.Pipeline{
		Optimizer: coverage.New(
			ilp.BranchAndBound{MaxNodes: cfg.SolverMaxNodes},
			coverage.WithTimeout(cfg.SolverTimeout),
			coverage.WithMaxInstances(cfg.MaxInstances),
		),
		Masks:        shifts.NewCache(),
		Location:     loc,
		MaxInstances: cfg.MaxInstances,
		Logger:       log,
	}

	m := metrics.New(cfg.Site, source.Name())
	p := NewPlanner(
		cfg.Site,
		source,
		pipeline,
		store,
		params,
		templates,
		cfg.Horizon,
		loc,
		log,
		m,
	)

	mux := router.SetupRoutes(router.Deps{
		Store:     store,
		Pipeline:  pipeline,
		Site:      cfg.Site,
		Params:    params,
		Templates: templates,
		// Plan is stale if older than 2x the interval
		StaleAfter: 2 * cfg.Interval,
		Check:      check,
		Metrics:    m,
		Logger:     log,
	})
	handler := httpx.RecoveryMiddleware(log)(httpx.LoggingMiddleware(log)(mux))
	httpServer := httpx.NewServer(cfg.Listen, handler, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := p.Run(ctx, cfg.Interval); err != nil && err != context.Canceled {
			log.Error("planning loop failed", "error", err)
		}
	}()

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()

	var grpcServer *grpc.Server
	var healthServer *health.Server
	if cfg.GRPCListen != "" {
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)
		reflection.Register(grpcServer)

		lis, err := net.Listen("tcp", cfg.GRPCListen)
		if err != nil {
			fatal(log, "failed to listen for grpc", err)
		}
		go func() {
			log.Info("grpc health server listening", "address", cfg.GRPCListen)
			serverErr <- grpcServer.Serve(lis)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")
	cancel()

	if grpcServer != nil {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}

	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

// newSource builds the configured forecast source and gives HTTP-backed
// sources a pooled client.
func newSource(cfg *config.Config) (adapters.Source, error) {
	src, err := adapters.New(cfg.Source, cfg.SourceConfig)
	if err != nil {
		return nil, err
	}
	client := httpx.NewClient(30 * time.Second)
	switch s := src.(type) {
	case *adapters.HTTPSource:
		s.HTTPClient = client
	case *adapters.PrometheusSource:
		s.HTTPClient = client
	}
	return src, nil
}

// newStore builds the snapshot store with its health check and closer.
func newStore(cfg *config.Config) (storage.Store, func() error, func(*slog.Logger), error) {
	noop := func(*slog.Logger) {}

	switch cfg.Storage {
	case "redis":
		rs, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, nil, noop, err
		}
		check := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return rs.Ping(ctx)
		}
		closer := func(log *slog.Logger) {
			if err := rs.Close(); err != nil {
				log.Error("failed to close store", "error", err)
			}
		}
		return rs, check, closer, nil

	default:
		if cfg.MemoryTTL <= 0 {
			return storage.NewMemoryStore(), nil, noop, nil
		}
		ms, err := storage.NewMemoryStoreWithTTL(cfg.MemoryTTL, cfg.MemoryTTL/4)
		if err != nil {
			return nil, nil, noop, err
		}
		return ms, nil, func(*slog.Logger) { ms.Stop() }, nil
	}
}
