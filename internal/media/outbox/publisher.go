package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/storage/postgres"
)

type Store interface {
	Pending(ctx context.Context, limit int) ([]postgres.StatusChange, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, cause error) error
}

type EventProducer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Publisher ships status changes to Kafka. Delivery is at-least-once: a
// row published but not marked is published again on the next tick. Once
// a change of a record fails, the record's later changes wait for the next
// tick so consumers see them in order.
type Publisher struct {
	store     Store
	producer  EventProducer
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger
}

type PublisherConfig struct {
	Store     Store
	Producer  EventProducer
	Interval  time.Duration
	BatchSize int
	Logger    zerolog.Logger
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("outbox store is required")
	}
	if cfg.Producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got: %v", cfg.Interval)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got: %d", cfg.BatchSize)
	}

	return &Publisher{
		store:     cfg.Store,
		producer:  cfg.Producer,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger.With().Str("component", "outbox_publisher").Logger(),
	}, nil
}

// Start polls the outbox every interval until ctx is cancelled. Failures
// of a single batch are logged and retried on the next tick.
func (p *Publisher) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().
		Dur("interval", p.interval).
		Int("batch_size", p.batchSize).
		Msg("outbox publisher started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().
				Err(ctx.Err()).
				Msg("outbox publisher stopped")
			return ctx.Err()

		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				p.logger.Error().
					Err(err).
					Msg("failed to publish batch")
			}
		}
	}
}

// PublishBatch handles one batch of pending changes and returns how many
// were published.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	changes, err := p.store.Pending(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending changes: %w", err)
	}

	if len(changes) == 0 {
		p.logger.Debug().Msg("no pending status changes")
		return 0, nil
	}

	var (
		published int
		failed    int
		held      int
		marked    int
	)
	blocked := make(map[string]struct{})

	for _, change := range changes {
		if ctx.Err() != nil {
			break
		}
		if _, ok := blocked[change.MediaID]; ok {
			held++
			continue
		}
		eventLogger := p.logger.With().
			Str("event_id", change.EventID).
			Str("media_id", change.MediaID).
			Str("from", string(change.From)).
			Str("to", string(change.To)).
			Int64("outbox_id", change.ID).
			Logger()

		// keyed by media id so one record's changes stay ordered in a partition
		if err := p.producer.Publish(ctx, change.MediaID, change.Payload); err != nil {
			eventLogger.Error().
				Err(err).
				Int("attempt", change.Attempts+1).
				Msg("failed to publish status change")
			failed++
			blocked[change.MediaID] = struct{}{}
			if change.Attempts+1 >= postgres.MaxPublishAttempts {
				eventLogger.Error().Msg("status change parked after too many attempts")
			}
			if err := p.store.MarkFailed(ctx, change.ID, err); err != nil {
				eventLogger.Warn().Err(err).Msg("failed to record publish failure")
			}
			continue
		}
		published++

		if err := p.store.MarkPublished(ctx, change.ID); err != nil {
			// consumers must tolerate the duplicate this causes
			eventLogger.Warn().
				Err(err).
				Msg("failed to mark status change as published")
		} else {
			marked++
		}
	}

	p.logger.Info().
		Int("total", len(changes)).
		Int("published", published).
		Int("failed", failed).
		Int("held", held).
		Int("marked", marked).
		Msg("batch processing completed")

	if err := ctx.Err(); err != nil {
		return published, err
	}
	if published == 0 && failed > 0 {
		return 0, fmt.Errorf("all %d attempted status changes failed to publish", failed)
	}
	return published, nil
}
