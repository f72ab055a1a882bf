package main

import (
	"context"
	"fmt"
	"os"

	"github.com/romariotrain/media-pipeline/internal/app"
	"github.com/romariotrain/media-pipeline/internal/config"
	"github.com/romariotrain/media-pipeline/internal/logging"
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

	code := app.Run("media", logger, func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	})
	os.Exit(code)
}
