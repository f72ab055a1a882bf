package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Create(ctx context.Context, media *models.MediaItem) error {
	args := m.Called(ctx, media)
	return args.Error(0)
}

func (m *StoreMock) GetByID(ctx context.Context, id string) (*models.MediaItem, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.MediaItem), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) Merge(ctx context.Context, id string, p models.Patch) (*models.MediaItem, error) {
	args := m.Called(ctx, id, p)
	if v := args.Get(0); v != nil {
		return v.(*models.MediaItem), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *StoreMock) Subscribe(ctx context.Context, id string) (<-chan models.Snapshot, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(<-chan models.Snapshot), args.Error(1)
	}
	return nil, args.Error(1)
}
