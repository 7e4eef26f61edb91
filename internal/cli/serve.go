// internal/cli/serve.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	http_api "periodic-engine/internal/api/http"
	"periodic-engine/internal/config"
	"periodic-engine/internal/domain"
	"periodic-engine/internal/engine"
	"periodic-engine/internal/infra"
	"periodic-engine/internal/infra/etcd"
	"periodic-engine/internal/infra/memory"
	"periodic-engine/internal/pool"
	"periodic-engine/internal/scheduler"
	"periodic-engine/internal/tracing"
	"periodic-engine/internal/usecase"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the job API, the cron scheduler and the engine",
		Example: `  # In-memory node
  periodic serve

  # Clustered node backed by etcd
  PERIODIC_ETCD_ENDPOINTS=127.0.0.1:2379 periodic serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), a.cfg)
		},
	}
}

// corsMiddleware wraps an http.Handler with CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		// Handle pre-flight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backend is the storage and coordination a node runs on.
type backend struct {
	etcd     *clientv3.Client
	jobRepo  domain.JobRepository
	execRepo domain.ExecutionRepository
	locker   domain.Locker
	leader   domain.LeaderElectionManager
	members  domain.Membership
}

func newBackend(cfg *config.Config, nodeID string, logger *slog.Logger) (*backend, error) {
	if !cfg.UsesEtcd() {
		logger.Warn("no etcd endpoints configured, using in-memory storage")
		return &backend{
			jobRepo:  memory.NewJobRepository(),
			execRepo: memory.NewExecutionRepository(),
			locker:   memory.NewLocker(),
			leader:   memory.NewSoleLeader(),
			members:  memory.NewMembership(),
		}, nil
	}

	client, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to etcd", "endpoints", cfg.EtcdEndpoints)
	return &backend{
		etcd:     client,
		jobRepo:  etcd.NewEtcdJobRepository(client, logger),
		execRepo: etcd.NewEtcdExecutionRepository(client, logger),
		locker:   etcd.NewEtcdLocker(client, cfg.LockTTL),
		leader:   etcd.NewEtcdLeaderElectionManager(client, nodeID, cfg.LeaderElectionTTL, logger),
		members:  etcd.NewEtcdMembership(client, cfg.LeaderElectionTTL, logger),
	}, nil
}

func (b *backend) Close() error {
	if b.etcd == nil {
		return nil
	}
	return b.etcd.Close()
}

func serve(ctx context.Context, cfg *config.Config) error {
	// 1. Initialize logger and tracer
	logger, err := newLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("periodic-engine", cfg.TraceExporter, os.Stderr, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.New().String()
	}
	logger = logger.With("node_id", nodeID)
	logger.Info("starting periodic engine node")

	// 2. Root context for lifecycle management
	rootCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Storage and coordination
	b, err := newBackend(cfg, nodeID, logger)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}
	defer b.Close()

	// 4. Engine and use cases
	pools := pool.NewRegistry(cfg.DefaultPoolSize, cfg.Pools, logger)
	eng := engine.New(pools, logger)
	factory := infra.NewFactory(b.etcd, &http.Client{Timeout: time.Minute}, logger)
	runner := usecase.NewRunner(eng, factory, usecase.NewStatementValidator(), b.execRepo, b.locker, logger)
	cronScheduler := scheduler.NewCronScheduler(runner, logger)
	jobService := usecase.NewJobService(b.jobRepo, b.execRepo, cronScheduler, runner, logger)
	schedulerService := usecase.NewSchedularService(b.leader, cronScheduler, b.jobRepo, nodeID, logger)

	// 5. Register routes and metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	http_api.NewJobHandler(jobService, runner, pools, logger).RegisterRoutes(mux)
	http_api.NewClusterHandler(nodeID, b.members, b.leader).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.HttpListenAddr,
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := b.members.Join(rootCtx, domain.Node{
		ID:        nodeID,
		HttpAddr:  cfg.HttpListenAddr,
		GrpcAddr:  cfg.GrpcListenAddr,
		StartedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to join cluster: %w", err)
	}

	// 6. gRPC health endpoint
	healthServer := health.NewServer()
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	var lis net.Listener
	if cfg.GrpcListenAddr != "" {
		lis, err = net.Listen("tcp", cfg.GrpcListenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GrpcListenAddr, err)
		}
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	g, gctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		b.members.Watch(gctx)
		return nil
	})

	g.Go(func() error {
		err := schedulerService.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info("starting HTTP API server", "addr", cfg.HttpListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if lis != nil {
		g.Go(func() error {
			logger.Info("starting gRPC health server", "addr", cfg.GrpcListenAddr)
			return grpcServer.Serve(lis)
		})
	}

	// 7. Block until shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", "error", err)
		}
		grpcServer.GracefulStop()
		if err := runner.Close(shutdownCtx); err != nil {
			logger.Warn("running jobs did not drain before shutdown", "error", err)
		}
		if err := b.members.Leave(shutdownCtx); err != nil {
			logger.Warn("failed to leave cluster", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("node shut down")
	return err
}
