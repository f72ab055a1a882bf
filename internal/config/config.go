// Package config loads service configuration from an optional YAML file,
// an optional .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	PurgeNone   = "none"
	PurgeMemory = "memory"
	PurgeS3     = "s3"
)

type Config struct {
	Env        string           `yaml:"env"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Transcoder TranscoderConfig `yaml:"transcoder"`
	Uploads    UploadsConfig    `yaml:"uploads"`
	Purge      PurgeConfig      `yaml:"purge"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Outbox     OutboxConfig     `yaml:"outbox"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	Migrate     bool   `yaml:"migrate"`
}

type TranscoderConfig struct {
	BaseURL          string        `yaml:"base_url"`
	TokenID          string        `yaml:"token_id"`
	TokenSecret      string        `yaml:"token_secret"`
	WebhookSecret    string        `yaml:"webhook_secret"`
	WebhookTolerance time.Duration `yaml:"webhook_tolerance"`
}

type UploadsConfig struct {
	DefaultOrigin  string   `yaml:"default_origin"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type PurgeConfig struct {
	Driver        string        `yaml:"driver"`
	Bucket        string        `yaml:"bucket"`
	PublicBaseURL string        `yaml:"public_base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	Endpoint      string        `yaml:"endpoint"`
	Region        string        `yaml:"region"`
	AccessKey     string        `yaml:"access_key"`
	SecretKey     string        `yaml:"secret_key"`
	UseSSL        bool          `yaml:"use_ssl"`
}

type KafkaConfig struct {
	Brokers    []string      `yaml:"brokers"`
	Topic      string        `yaml:"topic"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"write_timeout"`
}

type OutboxConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

func Default() Config {
	return Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8081",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			Heartbeat:         15 * time.Second,
		},
		Log:   LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{Driver: StoreMemory, Migrate: true},
		Transcoder: TranscoderConfig{
			BaseURL:          "https://api.mux.com",
			WebhookTolerance: 5 * time.Minute,
		},
		Purge: PurgeConfig{Driver: PurgeNone, Timeout: 10 * time.Second, Region: "us-east-1", UseSSL: true},
		Kafka: KafkaConfig{Topic: "media.events", MaxRetries: 3, Timeout: 10 * time.Second},
		Outbox: OutboxConfig{
			Interval:  time.Second,
			BatchSize: 100,
		},
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error. A missing .env file is not.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks the settings needed by the HTTP service.
func (c Config) Validate() error {
	var problems []string

	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr is required")
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}
	if c.Transcoder.TokenID == "" || c.Transcoder.TokenSecret == "" {
		problems = append(problems, "transcoder token id and secret are required")
	}
	if c.Transcoder.WebhookSecret == "" {
		problems = append(problems, "transcoder.webhook_secret is required")
	}
	switch c.Purge.Driver {
	case PurgeNone, PurgeMemory:
	case PurgeS3:
		if c.Purge.Bucket == "" || c.Purge.Endpoint == "" {
			problems = append(problems, "purge.bucket and purge.endpoint are required for the s3 purger")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown purge driver %q", c.Purge.Driver))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidatePublisher checks the settings needed by the outbox publisher.
func (c Config) ValidatePublisher() error {
	var problems []string
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers is required")
	}
	if c.Kafka.Topic == "" {
		problems = append(problems, "kafka.topic is required")
	}
	if c.Outbox.Interval <= 0 || c.Outbox.BatchSize <= 0 {
		problems = append(problems, "outbox interval and batch size must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Env, "MEDIA_ENV")
	setString(&cfg.HTTP.Addr, "MEDIA_HTTP_ADDR")
	setString(&cfg.Log.Level, "MEDIA_LOG_LEVEL")
	setString(&cfg.Log.Format, "MEDIA_LOG_FORMAT")

	setString(&cfg.Store.Driver, "MEDIA_STORE")
	setString(&cfg.Store.DatabaseURL, "DATABASE_URL")
	if cfg.Store.DatabaseURL != "" && os.Getenv("MEDIA_STORE") == "" && cfg.Store.Driver == StoreMemory {
		cfg.Store.Driver = StorePostgres
	}

	setString(&cfg.Transcoder.BaseURL, "MEDIA_TRANSCODER_BASE_URL")
	setString(&cfg.Transcoder.TokenID, "MEDIA_TRANSCODER_TOKEN_ID")
	setString(&cfg.Transcoder.TokenSecret, "MEDIA_TRANSCODER_TOKEN_SECRET")
	setString(&cfg.Transcoder.WebhookSecret, "MEDIA_WEBHOOK_SECRET")

	setString(&cfg.Uploads.DefaultOrigin, "MEDIA_UPLOAD_DEFAULT_ORIGIN")
	setList(&cfg.Uploads.AllowedOrigins, "MEDIA_ALLOWED_ORIGINS")

	setString(&cfg.Purge.Driver, "MEDIA_PURGE_DRIVER")
	setString(&cfg.Purge.Bucket, "MEDIA_PURGE_BUCKET")
	setString(&cfg.Purge.PublicBaseURL, "MEDIA_PURGE_PUBLIC_BASE_URL")
	setString(&cfg.Purge.Endpoint, "MEDIA_S3_ENDPOINT")
	setString(&cfg.Purge.Region, "MEDIA_S3_REGION")
	setString(&cfg.Purge.AccessKey, "MEDIA_S3_ACCESS_KEY")
	setString(&cfg.Purge.SecretKey, "MEDIA_S3_SECRET_KEY")

	setList(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&cfg.Transcoder.WebhookTolerance, "MEDIA_WEBHOOK_TOLERANCE"},
		{&cfg.HTTP.Heartbeat, "MEDIA_SSE_HEARTBEAT"},
		{&cfg.Purge.Timeout, "MEDIA_PURGE_TIMEOUT"},
		{&cfg.Outbox.Interval, "OUTBOX_INTERVAL"},
	}
	for _, d := range durations {
		if v := strings.TrimSpace(os.Getenv(d.key)); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	if v := strings.TrimSpace(os.Getenv("OUTBOX_BATCH_SIZE")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse OUTBOX_BATCH_SIZE: %w", err)
		}
		cfg.Outbox.BatchSize = parsed
	}
	if v := strings.TrimSpace(os.Getenv("MEDIA_S3_USE_SSL")); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse MEDIA_S3_USE_SSL: %w", err)
		}
		cfg.Purge.UseSSL = parsed
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}
