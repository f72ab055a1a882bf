package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

// MaxPublishAttempts parks an outbox row after this many failed sends. A
// parked row stays in the table for an operator and no longer holds back
// later changes of the same record.
const MaxPublishAttempts = 10

// StatusChange is an unpublished row of media_status_outbox.
type StatusChange struct {
	ID         int64         `db:"id"`
	EventID    string        `db:"event_id"`
	MediaID    string        `db:"media_id"`
	From       models.Status `db:"from_status"`
	To         models.Status `db:"to_status"`
	Payload    []byte        `db:"payload"`
	OccurredAt time.Time     `db:"occurred_at"`
	Attempts   int           `db:"attempts"`
	LastError  string        `db:"last_error"`
}

// OutboxRepo stores status changes next to the record write that caused
// them. cmd/publish drains it into Kafka.
type OutboxRepo struct {
	db *sqlx.DB
}

func NewOutboxRepo(db *sqlx.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// Append must run in the transaction that changed the status.
func (r *OutboxRepo) Append(ctx context.Context, tx *sqlx.Tx, e *models.MediaStatusChanged) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("outbox append %s: %w", e.AggregateID(), err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO media_status_outbox (event_id, media_id, from_status, to_status, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.EventID().String(), e.AggregateID(), string(e.From()), string(e.To()), payload, e.OccurredAt())
	if err != nil {
		return fmt.Errorf("outbox append %s: %w", e.AggregateID(), err)
	}
	return nil
}

// Pending lists unpublished, unparked changes in commit order.
func (r *OutboxRepo) Pending(ctx context.Context, limit int) ([]StatusChange, error) {
	var changes []StatusChange
	err := r.db.SelectContext(ctx, &changes, `
		SELECT id, event_id::text AS event_id, media_id, from_status, to_status,
			payload::text AS payload, occurred_at, attempts, last_error
		FROM media_status_outbox
		WHERE published_at IS NULL AND attempts < $1
		ORDER BY id
		LIMIT $2`, MaxPublishAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox pending: %w", err)
	}
	return changes, nil
}

func (r *OutboxRepo) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE media_status_outbox SET published_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("outbox mark published %d: %w", id, err)
	}
	return nil
}

// MarkFailed counts a failed send and keeps the last cause.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE media_status_outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("outbox mark failed %d: %w", id, err)
	}
	return nil
}
