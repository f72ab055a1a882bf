// Package webhook reconciles transcoding-service completion events with
// the canonical media record.
//
// Deliveries are at-least-once and may arrive out of order or concurrently
// with owner edits and deletes. The receiver takes no locks; each step is
// idempotent and the final write is a field-level merge.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/media/correlation"
	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/purge"
	"github.com/romariotrain/media-pipeline/internal/media/transcoder"
)

var (
	// ErrAuthentication rejects the delivery; the sender retries.
	ErrAuthentication = errors.New("webhook authentication failed")
	// ErrMalformedEvent is a signed body we could not parse.
	ErrMalformedEvent = errors.New("malformed webhook event")
	// ErrStore wraps record store failures; the sender retries.
	ErrStore = errors.New("record store failure")
)

type Outcome string

const (
	// OutcomeProcessed means the record was merged to ready.
	OutcomeProcessed Outcome = "processed"
	// OutcomeNoop means the event was valid but could not be routed to a
	// record. Acknowledged so the sender stops retrying.
	OutcomeNoop Outcome = "noop"
	// OutcomeIgnored is any event type this receiver does not act on.
	OutcomeIgnored Outcome = "ignored"
)

type SignatureVerifier interface {
	Verify(rawBody []byte, header string) error
}

type OriginPurger interface {
	Purge(ctx context.Context, locator string) purge.Result
}

type RecordStore interface {
	GetByID(ctx context.Context, id string) (*models.MediaItem, error)
	Merge(ctx context.Context, id string, p models.Patch) (*models.MediaItem, error)
}

type Result struct {
	Outcome    Outcome
	EventType  string
	ItemID     string
	PlaybackID string
	Mode       models.TransformMode
	Purge      purge.Result
	Transition domain.Transition
	Record     *models.MediaItem
}

type Config struct {
	Verifier SignatureVerifier
	Store    RecordStore
	Purger   OriginPurger
	Clock    func() time.Time
	Logger   zerolog.Logger
}

type Receiver struct {
	verifier SignatureVerifier
	store    RecordStore
	purger   OriginPurger
	clock    func() time.Time
	logger   zerolog.Logger
}

func NewReceiver(cfg Config) (*Receiver, error) {
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("signature verifier is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if cfg.Purger == nil {
		return nil, fmt.Errorf("origin purger is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Receiver{
		verifier: cfg.Verifier,
		store:    cfg.Store,
		purger:   cfg.Purger,
		clock:    clock,
		logger:   cfg.Logger.With().Str("component", "webhook").Logger(),
	}, nil
}

// Handle runs one delivery through verify, decode, load, purge and merge.
// rawBody must be the exact bytes received.
func (r *Receiver) Handle(ctx context.Context, rawBody []byte, signature string) (Result, error) {
	if err := r.verifier.Verify(rawBody, signature); err != nil {
		r.logger.Warn().Err(err).Msg("rejected webhook delivery")
		return Result{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	ev, err := transcoder.ParseEvent(rawBody)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	log := r.logger.With().Str("event_type", ev.Type).Str("event_id", ev.ID).Logger()

	if ev.Type != transcoder.EventAssetReady {
		log.Debug().Msg("event acknowledged without action")
		return Result{Outcome: OutcomeIgnored, EventType: ev.Type}, nil
	}

	asset, err := ev.Asset()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	payload := correlation.Decode(asset.Passthrough)
	playbackID := asset.FirstPlaybackID()
	if !payload.Valid() || playbackID == "" {
		log.Info().
			Str("asset_id", asset.ID).
			Str("correlation", payload.Kind.String()).
			Bool("has_playback_id", playbackID != "").
			Msg("unroutable asset ready event")
		return Result{Outcome: OutcomeNoop, EventType: ev.Type, ItemID: payload.ItemID, PlaybackID: playbackID}, nil
	}

	itemID := payload.ItemID
	log = log.With().Str("media_id", itemID).Str("playback_id", playbackID).Logger()

	existing, err := r.store.GetByID(ctx, itemID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		existing = nil
	case err != nil:
		log.Error().Err(err).Msg("failed to load record")
		return Result{}, fmt.Errorf("%w: load %s: %v", ErrStore, itemID, err)
	}

	var from models.Status
	if existing != nil {
		from = existing.Status
	}
	transition := domain.Apply(from, existing != nil, domain.TriggerWebhookReady)
	if transition.Anomaly != domain.AnomalyNone {
		log.Warn().Str("anomaly", string(transition.Anomaly)).Str("from", string(from)).Msg("applying ready event to unexpected record state")
	}
	if existing != nil && existing.ExternalAssetPlaybackID != "" && existing.ExternalAssetPlaybackID != playbackID {
		log.Warn().Str("current_playback_id", existing.ExternalAssetPlaybackID).Msg("record already bound to another playback id")
	}

	mode := transformMode(existing)
	purgeResult := r.purgeOrigin(ctx, existing, log)
	now := r.clock().UTC()

	patch := models.Patch{
		Status:                  models.Ptr(models.ReadyStatus),
		ExternalAssetPlaybackID: models.Ptr(playbackID),
		UpgradeMediaKind:        mode == models.ModePhotoToVideo,
		UpdatedAt:               now,
	}
	if asset.ID != "" {
		patch.ExternalAssetID = models.Ptr(asset.ID)
	}
	if asset.UploadID != "" {
		patch.ExternalUploadSessionID = models.Ptr(asset.UploadID)
	}
	switch purgeResult.Outcome {
	case purge.Purged:
		patch.OriginPurged = models.Ptr(true)
		patch.OriginPurgedAt = models.Ptr(now)
		patch.OriginPurgeError = models.Ptr(false)
		patch.OriginLocatorAudit = models.Ptr(existing.OriginLocator)
		patch.ClearOriginLocator = true
	case purge.Failed:
		// the store ignores these on a record another delivery already purged
		patch.OriginPurged = models.Ptr(false)
		patch.OriginPurgedAt = models.Ptr(now)
		patch.OriginPurgeError = models.Ptr(true)
		patch.OriginLocatorAudit = models.Ptr(existing.OriginLocator)
	}

	record, err := r.store.Merge(ctx, itemID, patch)
	if err != nil {
		log.Error().Err(err).Msg("failed to merge ready state")
		return Result{}, fmt.Errorf("%w: merge %s: %v", ErrStore, itemID, err)
	}

	log.Info().
		Str("from", string(from)).
		Str("mode", string(mode)).
		Str("purge", string(purgeResult.Outcome)).
		Bool("created", existing == nil).
		Msg("media ready")

	return Result{
		Outcome:    OutcomeProcessed,
		EventType:  ev.Type,
		ItemID:     itemID,
		PlaybackID: playbackID,
		Mode:       mode,
		Purge:      purgeResult,
		Transition: transition,
		Record:     record,
	}, nil
}

// purgeOrigin deletes the original upload at most once: a record already
// marked purged is never sent to storage again.
func (r *Receiver) purgeOrigin(ctx context.Context, existing *models.MediaItem, log zerolog.Logger) purge.Result {
	if existing == nil || existing.OriginLocator == "" {
		return purge.Result{Outcome: purge.NotAttempted}
	}
	if existing.OriginPurged {
		log.Debug().Msg("origin already purged")
		return purge.Result{Outcome: purge.NotAttempted}
	}
	return r.purger.Purge(ctx, existing.OriginLocator)
}

func transformMode(m *models.MediaItem) models.TransformMode {
	if m == nil {
		return models.ModePassthrough
	}
	if m.TransformMode != models.ModeUnset {
		return m.TransformMode
	}
	if m.MediaKind == models.Photo {
		return models.ModePhotoToVideo
	}
	return models.ModePassthrough
}
