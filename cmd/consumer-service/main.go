package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ductran/service-agent/internal/config"
	"github.com/ductran/service-agent/internal/consumer"
	"github.com/ductran/service-agent/shared/kafka"
	"github.com/ductran/service-agent/shared/logger"
	"github.com/ductran/service-agent/shared/retry"
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

	defaultConfigPath := os.Getenv("CONSUMER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/consumer-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateConsumerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting consumer service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	kafkaClient, err := kafka.NewClient(&kafka.Config{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      cfg.Kafka.ClientID,
		GroupID:       cfg.Kafka.GroupID,
		FromBeginning: cfg.Kafka.FromBeginning,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize kafka client: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	policy := retry.Policy{
		MaxAttempts: cfg.Kafka.Connection.RetryAttempts,
		Delay:       cfg.Kafka.Connection.RetryInterval.Std(),
	}
	if err := policy.Do(ctx, appLogger.Logger, "kafka connection check", kafkaClient.Ping); err != nil {
		return fmt.Errorf("could not connect to kafka: %w", err)
	}

	topicConsumer := consumer.New(&consumer.Config{
		Bus:               kafkaClient,
		Logger:            appLogger.Logger,
		DiscoveryInterval: cfg.Consumer.DiscoveryInterval.Std(),
	})

	appLogger.Info("Consumer connected and listening for messages")

	if err := topicConsumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	appLogger.Info("Consumer service shutdown complete")
	return nil
}
