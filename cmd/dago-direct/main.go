package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/dago-direct/internal/application/orchestrator"
	"github.com/aescanero/dago-direct/internal/config"
	"github.com/aescanero/dago-direct/pkg/adapters/events"
	"github.com/aescanero/dago-direct/pkg/adapters/events/memory"
	"github.com/aescanero/dago-direct/pkg/adapters/events/redis"
	"github.com/aescanero/dago-direct/pkg/adapters/metrics/prometheus"
	memstorage "github.com/aescanero/dago-direct/pkg/adapters/storage/memory"
	redisstorage "github.com/aescanero/dago-direct/pkg/adapters/storage/redis"
	"github.com/aescanero/dago-direct/pkg/api/grpc"
	"github.com/aescanero/dago-direct/pkg/api/http"
	"github.com/aescanero/dago-direct/pkg/api/websocket"
	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/aescanero/dago-direct/pkg/ports"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

const demoSize = 100

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting direct engine",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize adapters
	memoryBus := memory.NewInMemoryEventBus(cfg.Events.BufferSize, logger)
	var eventBus ports.EventBus = memoryBus
	var reports ports.ReportStore = memstorage.NewInMemoryReportStore()

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		// Test Redis connection
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

		streams, err := redis.NewStreamsEventBus(
			redisClient,
			"dago-direct",
			fmt.Sprintf("dago-direct-%d", os.Getpid()),
			10000,
			logger,
		)
		if err != nil {
			logger.Fatal("failed to create event bus", zap.Error(err))
		}
		eventBus = events.NewTeeEventBus(memoryBus, streams)
		reports = redisstorage.NewReportStore(redisClient, cfg.Redis.ReportTTL, logger)
	}

	registry := promclient.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsCollector := prometheus.NewCollector(registry)

	// Initialize the engine
	graph, roots, sink, err := demoPipeline(demoSize)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	scheduler := orchestrator.NewScheduler(graph, roots, cfg.Engine(), orchestrator.Dependencies{
		EventBus: eventBus,
		Reports:  reports,
		Metrics:  metricsCollector,
	}, logger)

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:     cfg.HTTPPort,
		Engine:   scheduler,
		Reports:  reports,
		Gatherer: registry,
		Logger:   logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(eventBus, cfg.Events.BufferSize, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Engine: scheduler,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	go grpcServer.Track(ctx)

	logger.Info("direct engine started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	// Run the demo pipeline once
	if err := scheduler.Start(ctx, graph.Roots()); err != nil {
		logger.Fatal("failed to start pipeline", zap.Error(err))
	}
	if err := scheduler.AwaitCompletion(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("pipeline failed", zap.Error(err))
		}
	} else {
		logger.Info("pipeline completed",
			zap.Any("result", sink.Values()),
			zap.String("watermark", scheduler.Watermark("sink").String()))
	}

	// Wait for interrupt signal
	<-ctx.Done()

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if scheduler.State() == domain.RunStateRunning {
		if err := scheduler.Stop(); err != nil {
			logger.Error("engine stop error", zap.Error(err))
		}
		if err := scheduler.AwaitCompletion(shutdownCtx); err != nil {
			logger.Error("engine shutdown error", zap.Error(err))
		}
	}

	// Shutdown components
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("direct engine shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
