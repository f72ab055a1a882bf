package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

type Runner func(ctx context.Context) error

// gracePeriod is how long Run waits for the runner to return after a
// shutdown signal.
const gracePeriod = 15 * time.Second

// Run executes run until it returns or the process is signalled, and
// returns the exit code.
func Run(serviceName string, logger zerolog.Logger, run Runner) int {
	log := logger.With().Str("service", serviceName).Logger()
	log.Info().Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("failed")
			return 1
		}
		log.Info().Msg("stopped")
		return 0
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("shutdown with error")
			return 1
		}
		return 0
	case <-time.After(gracePeriod):
		log.Warn().Dur("grace_period", gracePeriod).Msg("shutdown timed out")
		return 1
	}
}
