package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/app"
	"github.com/romariotrain/media-pipeline/internal/config"
	"github.com/romariotrain/media-pipeline/internal/logging"
	"github.com/romariotrain/media-pipeline/internal/media/kafka"
	"github.com/romariotrain/media-pipeline/internal/media/outbox"
	pg "github.com/romariotrain/media-pipeline/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load(os.Getenv("MEDIA_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	code := app.Run("publish", logger, func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	})
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if err := cfg.ValidatePublisher(); err != nil {
		return err
	}

	db, err := pg.Connect(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		MaxRetries:   cfg.Kafka.MaxRetries,
		WriteTimeout: cfg.Kafka.Timeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer producer.Close()

	if err := producer.HealthCheck(ctx); err != nil {
		logger.Warn().Err(err).Msg("kafka not reachable yet, publisher will keep retrying")
	}

	publisher, err := outbox.NewPublisher(outbox.PublisherConfig{
		Store:     pg.NewOutboxRepo(db),
		Producer:  producer,
		Interval:  cfg.Outbox.Interval,
		BatchSize: cfg.Outbox.BatchSize,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if err := publisher.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
