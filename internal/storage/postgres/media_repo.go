package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
)

// NotifyChannel carries the id of every changed media record.
const NotifyChannel = "media_items"

const uniqueViolation = "23505"

// MediaRepo is the Postgres record store. Every write runs in a transaction
// that also appends an outbox row on status change and notifies listeners.
type MediaRepo struct {
	db     *sqlx.DB
	outbox *OutboxRepo
	hub    *repository.Hub
	clock  func() time.Time
	logger zerolog.Logger
}

func NewMediaRepo(db *sqlx.DB, logger zerolog.Logger) *MediaRepo {
	return &MediaRepo{
		db:     db,
		outbox: NewOutboxRepo(db),
		hub:    repository.NewHub(),
		clock:  time.Now,
		logger: logger.With().Str("component", "media_repo").Logger(),
	}
}

func (r *MediaRepo) Create(ctx context.Context, m *models.MediaItem) error {
	if m == nil || m.ID == "" {
		return models.ErrInvalidArgument
	}

	q := fmt.Sprintf(`INSERT INTO media_items (%s)
		VALUES (:id, :owner_id, :status, :stage, :media_kind, :transform_mode, :caption,
			:external_asset_playback_id, :external_asset_id, :external_upload_session_id,
			:origin_locator, :origin_locator_audit, :origin_purged, :origin_purged_at, :origin_purge_error,
			:created_at, :updated_at)`, mediaColumns)

	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, q, m); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return models.ErrConflict
			}
			return fmt.Errorf("media create: %w", err)
		}
		if err := r.outbox.Append(ctx, tx, models.NewMediaStatusChanged(m.ID, "", m.Status, m.CreatedAt)); err != nil {
			return err
		}
		return notify(ctx, tx, m.ID)
	})
}

func (r *MediaRepo) GetByID(ctx context.Context, id string) (*models.MediaItem, error) {
	if id == "" {
		return nil, models.ErrInvalidArgument
	}

	q := fmt.Sprintf(`SELECT %s FROM media_items WHERE id = $1`, mediaColumns)

	var m models.MediaItem
	if err := r.db.GetContext(ctx, &m, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("media get by id: %w", err)
	}
	return &m, nil
}

// Merge writes only the patched columns. The current status is read under
// a row lock, so the patch preconditions and the outbox from/to pair both
// see the row the write lands on.
func (r *MediaRepo) Merge(ctx context.Context, id string, p models.Patch) (*models.MediaItem, error) {
	if id == "" {
		return nil, models.ErrInvalidArgument
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = r.clock().UTC()
	}

	var merged models.MediaItem
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		var from models.Status
		err := tx.GetContext(ctx, &from, `SELECT status FROM media_items WHERE id = $1 FOR UPDATE`, id)
		existed := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("media merge: lock: %w", err)
		}

		var current *models.MediaItem
		if existed {
			current = &models.MediaItem{ID: id, Status: from}
		}
		if err := p.Check(current); err != nil {
			return err
		}

		q, args := buildMerge(id, p)
		if err := tx.GetContext(ctx, &merged, q, args...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrInvalidTransition
			}
			return fmt.Errorf("media merge: %w", err)
		}

		if !existed {
			r.logger.Warn().Str("media_id", id).Msg("merge created missing record")
		}
		if merged.Status != from {
			event := models.NewMediaStatusChanged(id, from, merged.Status, p.UpdatedAt)
			if err := r.outbox.Append(ctx, tx, event); err != nil {
				return err
			}
		}
		return notify(ctx, tx, id)
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

func (r *MediaRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return models.ErrInvalidArgument
	}

	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		var from models.Status
		err := tx.GetContext(ctx, &from, `DELETE FROM media_items WHERE id = $1 RETURNING status`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("media delete: %w", err)
		}
		event := models.NewMediaStatusChanged(id, from, models.DeletedStatus, r.clock().UTC())
		if err := r.outbox.Append(ctx, tx, event); err != nil {
			return err
		}
		return notify(ctx, tx, id)
	})
}

// Subscribe registers for changes to one record. Updates are only
// delivered while Listen is running.
func (r *MediaRepo) Subscribe(ctx context.Context, id string) (<-chan models.Snapshot, error) {
	if id == "" {
		return nil, models.ErrInvalidArgument
	}

	ch := r.hub.Add(id)
	seq := r.hub.Seq(id)
	snap, err := r.snapshot(ctx, id)
	if err != nil {
		r.hub.Remove(id, ch)
		return nil, err
	}
	// the listener may have pushed a newer state while this one loaded
	r.hub.PublishSince(id, seq, snap)

	go func() {
		<-ctx.Done()
		r.hub.Remove(id, ch)
	}()
	return ch, nil
}

func (r *MediaRepo) snapshot(ctx context.Context, id string) (models.Snapshot, error) {
	m, err := r.GetByID(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return models.Snapshot{Exists: false}, nil
	case err != nil:
		return models.Snapshot{}, err
	}
	return models.Snapshot{Item: m, Exists: true}, nil
}

func (r *MediaRepo) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notify(ctx context.Context, tx *sqlx.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
