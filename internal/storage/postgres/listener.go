package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const listenRetryDelay = 2 * time.Second

// Listen holds a dedicated connection on NotifyChannel and pushes fresh
// snapshots to subscribers until ctx is done. A dropped connection is
// re-established and every watched record is refreshed, since
// notifications sent while disconnected are lost.
func (r *MediaRepo) Listen(ctx context.Context, dsn string) error {
	for {
		err := r.listenOnce(ctx, dsn)
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Warn().Err(err).Dur("retry_in", listenRetryDelay).Msg("listener disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(listenRetryDelay):
		}
	}
}

func (r *MediaRepo) listenOnce(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("listener connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	r.logger.Info().Str("channel", NotifyChannel).Msg("listening for record changes")

	for _, id := range r.hub.Watched() {
		r.refresh(ctx, id)
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		if r.hub.Subscribers(n.Payload) == 0 {
			continue
		}
		r.refresh(ctx, n.Payload)
	}
}

func (r *MediaRepo) refresh(ctx context.Context, id string) {
	snap, err := r.snapshot(ctx, id)
	if err != nil {
		r.logger.Error().Err(err).Str("media_id", id).Msg("refresh snapshot")
		return
	}
	r.hub.Publish(id, snap)
}
