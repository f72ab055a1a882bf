package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 100 * time.Millisecond
	defaultWriteTimeout = 10 * time.Second
	defaultBatchSize    = 100
)

// ProducerConfig configures a Producer. Zero values get defaults.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	MaxRetries   int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
	BatchSize    int
	Async        bool
	Logger       zerolog.Logger
}

type Message struct {
	Key   string
	Value []byte
}

type metrics struct {
	MessagesPublished atomic.Int64
	MessagesFailed    atomic.Int64
	RetriesTotal      atomic.Int64
	// PublishDuration is the sum of successful publish latencies in ns.
	PublishDuration atomic.Int64
}

type Metrics struct {
	MessagesPublished int64
	MessagesFailed    int64
	RetriesTotal      int64
	AvgPublishTime    time.Duration
}

// Producer writes record-change events to one topic, retrying transient
// broker errors.
type Producer struct {
	writer  *kafkago.Writer
	config  ProducerConfig
	logger  zerolog.Logger
	metrics metrics
	closed  atomic.Bool
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid producer config: %w", err)
	}
	setDefaults(&cfg)

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchSize:    cfg.BatchSize,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafkago.RequireAll,
		Async:        cfg.Async,
		// retries are handled here so they can be counted
		MaxAttempts: 1,
	}

	return &Producer{
		writer: writer,
		config: cfg,
		logger: cfg.Logger.With().Str("component", "kafka_producer").Str("topic", cfg.Topic).Logger(),
	}, nil
}

func validateConfig(cfg *ProducerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("brokers list is empty")
	}
	if cfg.Topic == "" {
		return errors.New("topic is empty")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("max_retries cannot be negative")
	}
	if cfg.RetryBackoff < 0 {
		return errors.New("retry_backoff cannot be negative")
	}
	if cfg.WriteTimeout < 0 {
		return errors.New("write_timeout cannot be negative")
	}
	return nil
}

func setDefaults(cfg *ProducerConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
}

func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	return p.PublishBatch(ctx, []Message{{Key: key, Value: value}})
}

// PublishBatch writes all messages or returns the last error after
// exhausting retries. Delivery is at-least-once.
func (p *Producer) PublishBatch(ctx context.Context, messages []Message) error {
	if p.closed.Load() {
		return errors.New("producer is closed")
	}
	if len(messages) == 0 {
		return nil
	}

	msgs := make([]kafkago.Message, len(messages))
	for i, m := range messages {
		msgs[i] = kafkago.Message{Key: []byte(m.Key), Value: m.Value}
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.metrics.RetriesTotal.Add(1)
			backoff := p.config.RetryBackoff * time.Duration(attempt)
			p.logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying publish")
			select {
			case <-ctx.Done():
				p.metrics.MessagesFailed.Add(int64(len(messages)))
				return fmt.Errorf("kafka publish: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = p.writer.WriteMessages(ctx, msgs...)
		if lastErr == nil {
			p.metrics.MessagesPublished.Add(int64(len(messages)))
			p.metrics.PublishDuration.Add(int64(time.Since(start)))
			return nil
		}
		if !isRetriableError(lastErr) {
			break
		}
	}

	p.metrics.MessagesFailed.Add(int64(len(messages)))
	p.logger.Error().Err(lastErr).Int("messages", len(messages)).Msg("publish failed")
	return fmt.Errorf("kafka publish: %w", lastErr)
}

// HealthCheck dials the brokers until one answers.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return errors.New("producer is closed")
	}

	var lastErr error
	for _, broker := range p.config.Brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (p *Producer) GetMetrics() Metrics {
	published := p.metrics.MessagesPublished.Load()
	var avg time.Duration
	if published > 0 {
		avg = time.Duration(p.metrics.PublishDuration.Load() / published)
	}
	return Metrics{
		MessagesPublished: published,
		MessagesFailed:    p.metrics.MessagesFailed.Load(),
		RetriesTotal:      p.metrics.RetriesTotal.Load(),
		AvgPublishTime:    avg,
	}
}

func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return errors.New("producer already closed")
	}
	m := p.GetMetrics()
	p.logger.Info().
		Int64("published", m.MessagesPublished).
		Int64("failed", m.MessagesFailed).
		Int64("retries", m.RetriesTotal).
		Msg("kafka producer closed")
	return p.writer.Close()
}

func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var kerr kafkago.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, permanent := range []string{"invalid message", "message too large", "authorization failed", "unauthorized"} {
		if strings.Contains(msg, permanent) {
			return false
		}
	}
	return true
}
