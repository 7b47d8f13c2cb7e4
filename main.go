package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/insights-engine/pkg/config"
	"github.com/ekaya-inc/insights-engine/pkg/database"
	"github.com/ekaya-inc/insights-engine/pkg/handlers"
	"github.com/ekaya-inc/insights-engine/pkg/llm"
	"github.com/ekaya-inc/insights-engine/pkg/logging"
	"github.com/ekaya-inc/insights-engine/pkg/metrics"
	"github.com/ekaya-inc/insights-engine/pkg/middleware"
	"github.com/ekaya-inc/insights-engine/pkg/prompts"
	"github.com/ekaya-inc/insights-engine/pkg/repositories"
	"github.com/ekaya-inc/insights-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.BuildInfo.WithLabelValues(cfg.Version).Set(1)

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("listen_addr", cfg.ListenAddr()),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Int("max_retries", cfg.Pipeline.MaxRetries),
		zap.Duration("schema_cache_ttl", cfg.Pipeline.SchemaCacheTTL),
		zap.Bool("usage_log_enabled", cfg.UsageLog.Enabled))

	// Generated SQL only ever runs on the read-only pool.
	analyticsDB, err := database.NewConnection(ctx, &database.Config{
		URL:              cfg.Database.ConnectionString(),
		MaxConnections:   cfg.Database.MaxConnections,
		StatementTimeout: cfg.Database.StatementTimeout,
		ReadOnly:         true,
		ApplicationName:  "insights-engine",
	})
	if err != nil {
		return fmt.Errorf("connect analytics database: %w", err)
	}
	defer analyticsDB.Close()

	var usageRepo repositories.UsageLogRepository
	if cfg.UsageLog.Enabled {
		usageDB, err := database.NewConnection(ctx, &database.Config{
			URL:             cfg.UsageLogConnectionString(),
			MaxConnections:  4,
			ApplicationName: "insights-engine-usage",
		})
		if err != nil {
			return fmt.Errorf("connect usage log database: %w", err)
		}
		defer usageDB.Close()

		if cfg.Pipeline.RunMigrations {
			if err := database.RunMigrations(stdlib.OpenDBFromPool(usageDB.Pool), logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		usageRepo = repositories.NewUsageLogRepository(usageDB.Pool)
	} else {
		logger.Info("Usage logging disabled")
	}

	oracle, err := llm.NewClientFromConfig(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	profile, err := prompts.LoadProfile(cfg.Pipeline.ProfilePath)
	if err != nil {
		return err
	}

	discoverer := postgres.NewSchemaDiscoverer(analyticsDB.Pool, cfg.Pipeline.SchemaNamespace, logger)
	executor := postgres.NewQueryExecutor(analyticsDB.Pool, cfg.Database.QueryTimeout, logger)

	schemaCache := services.NewSchemaCache(discoverer.DiscoverSchema, cfg.Pipeline.SchemaCacheTTL, clockwork.NewRealClock(), logger)
	generator := services.NewSQLGenerator(oracle, profile, logger)
	loop := services.NewQueryLoop(generator, executor, services.QueryLoopConfig{
		MaxRetries: cfg.Pipeline.MaxRetries,
		RowLimit:   cfg.Pipeline.DefaultRowLimit,
	}, logger)
	usageService := services.NewUsageService(usageRepo, cfg.UsageLog.WriteTimeout, logger)

	chatService := services.NewChatService(services.ChatDeps{
		Schema:     schemaCache,
		Classifier: services.NewQuestionClassifier(oracle, logger),
		Loop:       loop,
		Executor:   executor,
		Assets:     services.NewAssetExtractor(),
		Explainer:  services.NewResultExplainer(oracle, logger),
		Usage:      usageService,
		Model:      oracle.GetModel(),
	}, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, analyticsDB.Pool, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(chatService, logger).RegisterRoutes(mux)
	handlers.NewUsageHandler(usageService, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Generation, execution and explanation may each take the full LLM or query timeout.
	writeTimeout := cfg.Database.QueryTimeout*time.Duration(cfg.Pipeline.MaxRetries+1) + 3*cfg.LLM.Timeout
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting insights-engine", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
