package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
)

type Service struct {
	repo  repository.MediaRepository
	clock func() time.Time
	idGen func() string
}

func New(repo repository.MediaRepository) *Service {
	return &Service{
		repo:  repo,
		clock: time.Now,
		idGen: func() string { return uuid.New().String() },
	}
}

type CreateInput struct {
	OwnerID       string
	MediaKind     models.MediaKind
	TransformMode models.TransformMode
	Caption       string
	OriginLocator string
}

// GetItem returns the record by id. Domain errors (e.g. models.ErrNotFound)
// pass through so the transport layer can map them to HTTP.
func (s *Service) GetItem(ctx context.Context, id string) (*models.MediaItem, error) {
	if strings.TrimSpace(id) == "" {
		return nil, models.ErrInvalidArgument
	}
	return s.repo.GetByID(ctx, id)
}

// CreateItem persists a new record in processing status.
// Service owns invariants: id, initial status, timestamps, basic validation.
func (s *Service) CreateItem(ctx context.Context, in CreateInput) (*models.MediaItem, error) {
	kind := in.MediaKind
	if kind == "" {
		kind = models.Video
	}
	if !kind.Valid() {
		return nil, models.ErrInvalidArgument
	}
	switch in.TransformMode {
	case models.ModeUnset, models.ModePassthrough, models.ModePhotoToVideo:
	default:
		return nil, models.ErrInvalidArgument
	}

	now := s.clock().UTC()

	m := &models.MediaItem{
		ID:            s.idGen(),
		OwnerID:       in.OwnerID,
		Status:        models.ProcessingStatus,
		MediaKind:     kind,
		TransformMode: in.TransformMode,
		Caption:       in.Caption,
		OriginLocator: in.OriginLocator,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}

	return m, nil
}

// AdvanceStage records pipeline progress. Ready is reserved for the
// webhook, which carries the playback id; deletion goes through DeleteItem.
func (s *Service) AdvanceStage(ctx context.Context, id string, to models.Status, stage string) (*models.MediaItem, error) {
	if strings.TrimSpace(id) == "" || !to.Valid() {
		return nil, models.ErrInvalidArgument
	}
	if to == models.ReadyStatus || to == models.DeletedStatus {
		return nil, fmt.Errorf("%w: %s is not set by stage updates", models.ErrInvalidTransition, to)
	}

	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(m.Status, to); err != nil {
		return nil, err
	}

	// The transition was checked against m.Status; the store refuses the
	// write if a webhook or a delete moved the record since.
	return s.repo.Merge(ctx, id, models.Patch{
		Status:       models.Ptr(to),
		Stage:        models.Ptr(stage),
		ExpectStatus: models.Ptr(m.Status),
		MustExist:    true,
		UpdatedAt:    s.clock().UTC(),
	})
}

// UpdateCaption edits the owner-controlled caption. Only the caption
// column is written, so a concurrent webhook merge is never undone, and a
// deleted record is not recreated.
func (s *Service) UpdateCaption(ctx context.Context, id, caption string) (*models.MediaItem, error) {
	if strings.TrimSpace(id) == "" {
		return nil, models.ErrInvalidArgument
	}
	return s.repo.Merge(ctx, id, models.Patch{
		Caption:   models.Ptr(caption),
		MustExist: true,
		UpdatedAt: s.clock().UTC(),
	})
}

// DeleteItem removes the record. The origin blob is left alone; a webhook
// that arrives afterwards will recreate a stub record.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return models.ErrInvalidArgument
	}
	return s.repo.Delete(ctx, id)
}

// Watch streams snapshots of one record until ctx is done.
func (s *Service) Watch(ctx context.Context, id string) (<-chan models.Snapshot, error) {
	if strings.TrimSpace(id) == "" {
		return nil, models.ErrInvalidArgument
	}
	return s.repo.Subscribe(ctx, id)
}
