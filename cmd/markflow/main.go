package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aescanero/markflow/internal/application/engine"
	"github.com/aescanero/markflow/internal/application/orchestrator"
	"github.com/aescanero/markflow/internal/application/workers"
	"github.com/aescanero/markflow/internal/config"
	"github.com/aescanero/markflow/internal/resolvers"
	eventsmemory "github.com/aescanero/markflow/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/markflow/pkg/adapters/events/redis"
	filesmemory "github.com/aescanero/markflow/pkg/adapters/files/memory"
	filesredis "github.com/aescanero/markflow/pkg/adapters/files/redis"
	"github.com/aescanero/markflow/pkg/adapters/llm"
	"github.com/aescanero/markflow/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/markflow/pkg/adapters/render/chromedp"
	storagememory "github.com/aescanero/markflow/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/markflow/pkg/adapters/storage/redis"
	workflowsmemory "github.com/aescanero/markflow/pkg/adapters/workflows/memory"
	workflowsredis "github.com/aescanero/markflow/pkg/adapters/workflows/redis"
	"github.com/aescanero/markflow/pkg/adapters/workflows/yamldir"
	"github.com/aescanero/markflow/pkg/api/grpc"
	"github.com/aescanero/markflow/pkg/api/http"
	"github.com/aescanero/markflow/pkg/api/websocket"
	"github.com/aescanero/markflow/pkg/domain"
	"github.com/aescanero/markflow/pkg/ports"

	"github.com/go-resty/resty/v2"
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

// backends groups the adapters selected by STORAGE_BACKEND
type backends struct {
	workflows ports.WorkflowStore
	files     ports.FileStore
	storage   ports.StateStorage
	// eventBus carries run events to every subscriber
	eventBus ports.EventBus
	// auditBus shares delivery among instances; same as eventBus in memory mode
	auditBus ports.EventBus
	close    func() error
}

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

	logger.Info("starting markflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Metrics
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := prometheus.NewCollector(registry)

	b, err := newBackends(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}

	if cfg.Storage.WorkflowsDir != "" {
		n, err := yamldir.Seed(ctx, cfg.Storage.WorkflowsDir, b.workflows, logger)
		if err != nil {
			logger.Fatal("failed to load workflows", zap.String("dir", cfg.Storage.WorkflowsDir), zap.Error(err))
		}
		logger.Info("workflows loaded", zap.Int("count", n), zap.String("dir", cfg.Storage.WorkflowsDir))
	}

	if err := b.auditBus.Subscribe(ctx, domain.TopicRuns, auditRuns(logger)); err != nil {
		logger.Fatal("failed to subscribe to run events", zap.Error(err))
	}

	// Model client
	var llmClient ports.LLMClient
	if cfg.LLM.Provider != config.ProviderNone {
		model := cfg.LLM.DefaultModel
		if cfg.LLM.Provider == config.ProviderAnthropic && !strings.HasPrefix(model, "claude") {
			model = ""
		}
		llmClient, err = llm.NewClient(&llm.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
			Model:    model,
			Timeout:  cfg.LLM.RequestTimeout,
			Metrics:  metricsCollector,
			Logger:   logger,
		})
		if err != nil {
			logger.Fatal("failed to create LLM client", zap.Error(err))
		}
	} else {
		logger.Warn("no LLM provider configured, model resolvers will fail")
	}

	var renderer ports.PDFRenderer
	if cfg.Assets.RenderEnabled {
		renderer = chromedp.NewRenderer(cfg.Assets.ChromePath, cfg.Assets.RenderTimeout, logger)
	}

	resolverRegistry, err := resolvers.NewRegistry(resolvers.Deps{
		LLM:       llmClient,
		Files:     b.files,
		Renderer:  renderer,
		HTTP:      resty.New().SetTimeout(cfg.Assets.DownloadTimeout),
		Metrics:   metricsCollector,
		Logger:    logger,
		Model:     cfg.LLM.DefaultModel,
		MaxTokens: cfg.LLM.DefaultMaxTokens,
		Grading:   cfg.GradingBounds(),
		TempDir:   cfg.Assets.TempDir,
		PublicDir: cfg.Assets.PublicDir,
	})
	if err != nil {
		logger.Fatal("failed to register resolvers", zap.Error(err))
	}

	// Initialize application components
	orchestratorMgr := orchestrator.NewManager(
		b.workflows,
		b.storage,
		b.eventBus,
		metricsCollector,
		resolverRegistry,
		engine.NewBinder(logger, os.LookupEnv),
		logger,
		cfg.Timeouts.GraphExecutionTimeout,
	)
	orchestratorMgr.SetMaxConcurrency(cfg.Engine.MaxConcurrency)

	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		cfg.Workers.QueueSize,
		orchestratorMgr,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)
	orchestratorMgr.SetDispatcher(workerPool)

	// Start worker pool
	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: orchestratorMgr,
		Health:       workerPool.Health(),
		Gatherer:     registry,
		APIToken:     cfg.APIToken,
		Logger:       logger,
	})

	// Add WebSocket handler to HTTP server
	httpServer.SetupWebSocket(websocket.NewHandler(b.eventBus, logger))

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:          cfg.GRPCPort,
		Pool:          workerPool.Health(),
		CheckInterval: cfg.Workers.HealthCheckInterval,
		Logger:        logger,
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

	logger.Info("markflow started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := orchestratorMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	stop()
	if err := b.close(); err != nil {
		logger.Error("storage close error", zap.Error(err))
	}

	logger.Info("markflow shut down complete")
}

// newBackends builds the stores and event buses for the configured backend
func newBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	if cfg.Storage.Backend == config.StorageMemory {
		workflows, err := workflowsmemory.NewInMemoryWorkflowStore()
		if err != nil {
			return nil, err
		}
		bus := eventsmemory.NewInMemoryEventBus()
		logger.Info("using in-memory storage")
		return &backends{
			workflows: workflows,
			files:     filesmemory.NewInMemoryFileStore(),
			storage:   storagememory.NewInMemoryStateStorage(),
			eventBus:  bus,
			auditBus:  bus,
			close:     bus.Close,
		}, nil
	}

	redisClient := goredis.NewClient(&goredis.Options{
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
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	consumer := fmt.Sprintf("markflow-%d", os.Getpid())
	return &backends{
		workflows: workflowsredis.NewWorkflowStore(redisClient, logger),
		files:     filesredis.NewFileStore(redisClient),
		storage:   storageredis.NewStateStorage(redisClient, cfg.Storage.RunTTL, logger),
		eventBus:  eventsredis.NewStreamsEventBus(redisClient, "", consumer, cfg.Redis.StreamMaxLen, logger),
		auditBus:  eventsredis.NewStreamsEventBus(redisClient, cfg.Redis.ConsumerGroup, consumer, cfg.Redis.StreamMaxLen, logger),
		close:     redisClient.Close,
	}, nil
}

// auditRuns logs the outcome of every finished run once per deployment
func auditRuns(logger *zap.Logger) ports.EventHandler {
	return func(_ context.Context, event domain.Event) error {
		switch event.Type {
		case domain.EventTypeRunCompleted, domain.EventTypeRunFailed, domain.EventTypeRunCancelled:
			logger.Info("run finished",
				zap.String("run_id", event.RunID),
				zap.String("outcome", string(event.Type)),
				zap.Any("data", event.Data))
		}
		return nil
	}
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
