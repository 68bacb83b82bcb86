package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/datapad/notebook-agent/internal/config"
	"github.com/datapad/notebook-agent/internal/logging"
	"github.com/datapad/notebook-agent/internal/oracle"
	"github.com/datapad/notebook-agent/internal/policy"
	"github.com/datapad/notebook-agent/internal/sandbox"
	"github.com/datapad/notebook-agent/internal/schema"
	"github.com/datapad/notebook-agent/internal/session"
	"github.com/datapad/notebook-agent/internal/store"
	transport "github.com/datapad/notebook-agent/internal/transport/http"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel, cfg.LogFile)
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting notebook agent",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("database", cfg.DatabaseURL),
		zap.String("data_dir", cfg.DataDir),
		zap.Int("max_steps", cfg.MaxSteps))

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	defer db.Close()

	// Initialize planning oracle
	planner, err := oracle.New(cfg.OracleURL, cfg.OracleAPIKey, cfg.OracleModel, cfg.OracleTimeout, logger)
	if err != nil {
		logger.Fatal("failed to initialize oracle", zap.Error(err))
	}

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		logger.Fatal("failed to initialize policy engine", zap.Error(err))
	}

	// Session registry; eviction tears down the session's sandbox.
	registry := session.NewRegistry(cfg.SessionTTL)

	// Each session gets its own sandbox namespace and schema view.
	factory := func(sessionID string) *session.Controller {
		return session.New(sessionID, session.Options{
			Oracle: planner,
			Runner: sandbox.NewKernel(sandbox.KernelOptions{
				WorkerPath:  cfg.WorkerPath,
				DataDir:     cfg.DataDir,
				OutputLimit: cfg.OutputLimit,
				Logger:      logger,
			}),
			Schema:         schema.NewProvider(cfg.DataDir),
			Policy:         policyEngine,
			Journal:        db,
			Logger:         logger,
			MaxSteps:       cfg.MaxSteps,
			AxisValidation: cfg.AxisValidation,
		})
	}

	server := transport.NewServer(cfg, registry, db, factory, planner, logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("notebook agent started", zap.Int("port", cfg.HTTPPort))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down notebook agent")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server gracefully", zap.Error(err))
	}

	logger.Info("notebook agent stopped")
}
