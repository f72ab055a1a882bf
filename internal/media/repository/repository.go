package repository

import (
	"context"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

// MediaRepository is the canonical record store. Every writer goes through
// Merge; there is no full-document overwrite.
type MediaRepository interface {
	Create(ctx context.Context, m *models.MediaItem) error
	GetByID(ctx context.Context, id string) (*models.MediaItem, error)
	// Merge applies p field by field. A missing record is created with only
	// the patched fields, unless p is conditional: then Merge fails with
	// ErrNotFound, or ErrInvalidTransition when p.ExpectStatus no longer
	// matches.
	Merge(ctx context.Context, id string, p models.Patch) (*models.MediaItem, error)
	Delete(ctx context.Context, id string) error
	// Subscribe delivers the current snapshot right away and then one on
	// every change until ctx is done. Slow readers only see the latest.
	Subscribe(ctx context.Context, id string) (<-chan models.Snapshot, error)
}
