package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/config"
	"github.com/romariotrain/media-pipeline/internal/logging"
	"github.com/romariotrain/media-pipeline/internal/media/httpapi"
	"github.com/romariotrain/media-pipeline/internal/media/purge"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
	"github.com/romariotrain/media-pipeline/internal/media/service"
	"github.com/romariotrain/media-pipeline/internal/media/transcoder"
	"github.com/romariotrain/media-pipeline/internal/media/uploads"
	"github.com/romariotrain/media-pipeline/internal/media/webhook"
	pg "github.com/romariotrain/media-pipeline/internal/storage/postgres"
)

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	repo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Dependencies
	client, err := transcoder.NewClient(transcoder.ClientConfig{
		BaseURL:     cfg.Transcoder.BaseURL,
		TokenID:     cfg.Transcoder.TokenID,
		TokenSecret: cfg.Transcoder.TokenSecret,
	})
	if err != nil {
		return fmt.Errorf("transcoder client: %w", err)
	}
	issuer, err := uploads.NewIssuer(uploads.Config{
		Uploads:        client,
		DefaultOrigin:  cfg.Uploads.DefaultOrigin,
		AllowedOrigins: cfg.Uploads.AllowedOrigins,
		TestMode:       !cfg.Production(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("upload issuer: %w", err)
	}

	verifier, err := transcoder.NewVerifier(cfg.Transcoder.WebhookSecret, cfg.Transcoder.WebhookTolerance)
	if err != nil {
		return fmt.Errorf("webhook verifier: %w", err)
	}
	deleter, err := openDeleter(cfg.Purge)
	if err != nil {
		return err
	}
	receiver, err := webhook.NewReceiver(webhook.Config{
		Verifier: verifier,
		Store:    repo,
		Purger: purge.New(purge.Config{
			Deleter:       deleter,
			Bucket:        cfg.Purge.Bucket,
			PublicBaseURL: cfg.Purge.PublicBaseURL,
			Timeout:       cfg.Purge.Timeout,
			Logger:        logger,
		}),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("webhook receiver: %w", err)
	}

	h := httpapi.New(httpapi.Config{
		Service:   service.New(repo),
		Issuer:    issuer,
		Receiver:  receiver,
		Logger:    logger,
		Heartbeat: cfg.HTTP.Heartbeat,
	})
	policy, err := httpapi.NewCORSPolicy(cfg.Uploads.AllowedOrigins)
	if err != nil {
		return fmt.Errorf("cors policy: %w", err)
	}
	handler := logging.Middleware(logger, httpapi.NewServerHandler(h, policy, logger))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Str("store", cfg.Store.Driver).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil

	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen and serve: %w", err)
	}
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (repository.MediaRepository, func(), error) {
	if cfg.Store.Driver != config.StorePostgres {
		return repository.NewMemoryRepository(), func() {}, nil
	}

	db, err := pg.Connect(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.Store.Migrate {
		if err := pg.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}

	repo := pg.NewMediaRepo(db, logger)
	listenCtx, stopListen := context.WithCancel(ctx)
	go func() {
		if err := repo.Listen(listenCtx, cfg.Store.DatabaseURL); err != nil {
			logger.Error().Err(err).Msg("record listener stopped")
		}
	}()

	return repo, func() {
		stopListen()
		_ = db.Close()
	}, nil
}

func openDeleter(cfg config.PurgeConfig) (purge.ObjectDeleter, error) {
	switch cfg.Driver {
	case config.PurgeS3:
		d, err := purge.NewS3Deleter(purge.S3Config{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Timeout:   cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 deleter: %w", err)
		}
		return d, nil
	case config.PurgeMemory:
		return purge.NewMemoryDeleter(), nil
	default:
		return nil, nil
	}
}
