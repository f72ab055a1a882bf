package repository

import (
	"context"
	"sync"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string]*models.MediaItem
	hub  *Hub
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		data: make(map[string]*models.MediaItem),
		hub:  NewHub(),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, m *models.MediaItem) error {
	if m == nil || m.ID == "" {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[m.ID]; exists {
		return models.ErrConflict
	}

	r.data[m.ID] = m.Clone()
	r.publishLocked(m.ID)
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.MediaItem, error) {
	if id == "" {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.data[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m.Clone(), nil
}

func (r *MemoryRepository) Merge(ctx context.Context, id string, p models.Patch) (*models.MediaItem, error) {
	if id == "" {
		return nil, models.ErrInvalidArgument
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.data[id]
	if err := p.Check(current); err != nil {
		return nil, err
	}
	merged := p.Apply(id, current)
	r.data[id] = merged
	r.publishLocked(id)
	return merged.Clone(), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.data, id)
	r.publishLocked(id)
	return nil
}

func (r *MemoryRepository) Subscribe(ctx context.Context, id string) (<-chan models.Snapshot, error) {
	if id == "" {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	ch := r.hub.Add(id)
	r.hub.Publish(id, r.snapshotLocked(id))
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.hub.Remove(id, ch)
	}()

	return ch, nil
}

func (r *MemoryRepository) snapshotLocked(id string) models.Snapshot {
	m, ok := r.data[id]
	if !ok {
		return models.Snapshot{Exists: false}
	}
	return models.Snapshot{Item: m.Clone(), Exists: true}
}

// publishLocked must be called with r.mu held for writing so subscribers
// observe changes in commit order.
func (r *MemoryRepository) publishLocked(id string) {
	r.hub.Publish(id, r.snapshotLocked(id))
}
