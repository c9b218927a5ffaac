package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ductran/service-agent/internal/api/handler"
	"github.com/ductran/service-agent/internal/api/router"
	"github.com/ductran/service-agent/internal/config"
	"github.com/ductran/service-agent/internal/dispatch"
	"github.com/ductran/service-agent/internal/job/storage"
	"github.com/ductran/service-agent/internal/scheduler"
	"github.com/ductran/service-agent/shared/kafka"
	"github.com/ductran/service-agent/shared/logger"
	"github.com/ductran/service-agent/shared/postgresql"
	"github.com/ductran/service-agent/shared/retry"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("AGENT_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/agent-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAgentConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting agent service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	kafkaClient, err := kafka.NewClient(&kafka.Config{
		Brokers:  cfg.Kafka.Brokers,
		ClientID: cfg.Kafka.ClientID,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize kafka client: %w", err)
	}

	jobStorage := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)

	dispatcher := dispatch.NewDispatcher(
		jobStorage,
		dispatch.NewHTTPExecutor(appLogger.Logger),
		dispatch.NewMessagingExecutor(kafkaClient, appLogger.Logger),
		appLogger.Logger,
	)

	jobScheduler := scheduler.New(jobStorage, dispatcher, cfg.Scheduler.Cron, appLogger.Logger)

	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:     appLogger.Logger,
		Store:      jobStorage,
		Dispatcher: dispatcher,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Agent service is running",
		slog.String("address", addr),
	)

	// Verify the bus with bounded retry before enabling the scheduler. On
	// exhaustion the service keeps running degraded: the API and the store
	// stay available, scheduled jobs are not promoted.
	bootCtx, bootCancel := context.WithCancel(context.Background())
	defer bootCancel()

	schedulerStarted := make(chan bool, 1)
	go func() {
		policy := retry.Policy{
			MaxAttempts: cfg.Kafka.Connection.RetryAttempts,
			Delay:       cfg.Kafka.Connection.RetryInterval.Std(),
		}

		if err := policy.Do(bootCtx, appLogger.Logger, "kafka connection check", kafkaClient.Ping); err != nil {
			appLogger.Warn("Could not connect to Kafka, continuing without scheduler",
				slog.Any("error", err),
			)
			schedulerStarted <- false
			return
		}

		if err := jobScheduler.Start(); err != nil {
			appLogger.Error("Failed to start scheduler",
				slog.Any("error", err),
			)
			schedulerStarted <- false
			return
		}
		schedulerStarted <- true
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	bootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	select {
	case started := <-schedulerStarted:
		if started {
			jobScheduler.Stop()
		}
	default:
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
		ConnMaxIdleTime: cfg.ConnMaxIdleTime.Std(),
	}, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
