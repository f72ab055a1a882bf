package outbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/storage/postgres"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Pending(ctx context.Context, limit int) ([]postgres.StatusChange, error) {
	args := m.Called(ctx, limit)
	if v := args.Get(0); v != nil {
		return v.([]postgres.StatusChange), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) MarkPublished(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *StoreMock) MarkFailed(ctx context.Context, id int64, cause error) error {
	return m.Called(ctx, id, cause).Error(0)
}

type ProducerMock struct {
	mock.Mock
}

func (m *ProducerMock) Publish(ctx context.Context, key string, value []byte) error {
	return m.Called(ctx, key, value).Error(0)
}

func newPublisher(t *testing.T, st Store, pr EventProducer) *Publisher {
	t.Helper()
	p, err := NewPublisher(PublisherConfig{
		Store:     st,
		Producer:  pr,
		Interval:  10 * time.Millisecond,
		BatchSize: 10,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return p
}

func TestNewPublisher_Validation(t *testing.T) {
	_, err := NewPublisher(PublisherConfig{Producer: new(ProducerMock), Interval: time.Second, BatchSize: 1})
	require.Error(t, err)
	_, err = NewPublisher(PublisherConfig{Store: new(StoreMock), Interval: time.Second, BatchSize: 1})
	require.Error(t, err)
	_, err = NewPublisher(PublisherConfig{Store: new(StoreMock), Producer: new(ProducerMock), BatchSize: 1})
	require.Error(t, err)
	_, err = NewPublisher(PublisherConfig{Store: new(StoreMock), Producer: new(ProducerMock), Interval: time.Second})
	require.Error(t, err)
}

func change(id int64, mediaID string, from, to models.Status) postgres.StatusChange {
	return postgres.StatusChange{
		ID:      id,
		EventID: fmt.Sprintf("e%d", id),
		MediaID: mediaID,
		From:    from,
		To:      to,
		Payload: []byte(fmt.Sprintf(`{"media_id":%q,"to":%q}`, mediaID, to)),
	}
}

func TestPublishBatch(t *testing.T) {
	st := new(StoreMock)
	pr := new(ProducerMock)
	p := newPublisher(t, st, pr)

	changes := []postgres.StatusChange{
		change(1, "item-1", models.UploadingStatus, models.ProcessingStatus),
		change(2, "item-2", models.MixingStatus, models.ReadyStatus),
		change(3, "item-3", models.UploadingStatus, models.FailedStatus),
	}
	st.On("Pending", mock.Anything, 10).Return(changes, nil).Once()

	brokerDown := errors.New("broker down")
	pr.On("Publish", mock.Anything, "item-1", changes[0].Payload).Return(nil).Once()
	pr.On("Publish", mock.Anything, "item-2", changes[1].Payload).Return(brokerDown).Once()
	pr.On("Publish", mock.Anything, "item-3", changes[2].Payload).Return(nil).Once()
	st.On("MarkPublished", mock.Anything, int64(1)).Return(nil).Once()
	st.On("MarkFailed", mock.Anything, int64(2), brokerDown).Return(nil).Once()
	st.On("MarkPublished", mock.Anything, int64(3)).Return(errors.New("db gone")).Once()

	published, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	st.AssertExpectations(t)
	pr.AssertExpectations(t)
	st.AssertNotCalled(t, "MarkPublished", mock.Anything, int64(2))
}

func TestPublishBatch_HoldsLaterChangesOfFailedRecord(t *testing.T) {
	st := new(StoreMock)
	pr := new(ProducerMock)
	p := newPublisher(t, st, pr)

	changes := []postgres.StatusChange{
		change(1, "item-1", models.UploadingStatus, models.ProcessingStatus),
		change(2, "item-2", "", models.UploadingStatus),
		change(3, "item-1", models.ProcessingStatus, models.ReadyStatus),
	}
	st.On("Pending", mock.Anything, 10).Return(changes, nil).Once()
	pr.On("Publish", mock.Anything, "item-1", changes[0].Payload).Return(errors.New("timeout")).Once()
	pr.On("Publish", mock.Anything, "item-2", changes[1].Payload).Return(nil).Once()
	st.On("MarkFailed", mock.Anything, int64(1), mock.Anything).Return(nil).Once()
	st.On("MarkPublished", mock.Anything, int64(2)).Return(nil).Once()

	published, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	// ready must not overtake the processing change that failed
	pr.AssertNotCalled(t, "Publish", mock.Anything, "item-1", changes[2].Payload)
	st.AssertNotCalled(t, "MarkFailed", mock.Anything, int64(3), mock.Anything)
	st.AssertExpectations(t)
}

func TestPublishBatch_Empty(t *testing.T) {
	st := new(StoreMock)
	pr := new(ProducerMock)
	p := newPublisher(t, st, pr)
	st.On("Pending", mock.Anything, 10).Return([]postgres.StatusChange{}, nil).Once()

	published, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
	pr.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishBatch_StoreError(t *testing.T) {
	st := new(StoreMock)
	p := newPublisher(t, st, new(ProducerMock))
	st.On("Pending", mock.Anything, 10).Return(nil, errors.New("timeout")).Once()

	_, err := p.PublishBatch(context.Background())
	require.Error(t, err)
}

func TestStart_StopsOnCancel(t *testing.T) {
	st := new(StoreMock)
	p := newPublisher(t, st, new(ProducerMock))
	st.On("Pending", mock.Anything, 10).Return([]postgres.StatusChange{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Start(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	st.AssertCalled(t, "Pending", mock.Anything, 10)
}

func TestPublishBatch_AllFailed(t *testing.T) {
	st := new(StoreMock)
	pr := new(ProducerMock)
	p := newPublisher(t, st, pr)

	changes := []postgres.StatusChange{
		change(1, "item-1", models.UploadingStatus, models.ProcessingStatus),
		change(2, "item-2", models.UploadingStatus, models.ProcessingStatus),
	}
	st.On("Pending", mock.Anything, 10).Return(changes, nil).Once()
	pr.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Twice()
	st.On("MarkFailed", mock.Anything, int64(1), mock.Anything).Return(nil).Once()
	st.On("MarkFailed", mock.Anything, int64(2), mock.Anything).Return(errors.New("db gone")).Once()

	published, err := p.PublishBatch(context.Background())
	require.Error(t, err)
	assert.Zero(t, published)
	st.AssertNotCalled(t, "MarkPublished", mock.Anything, mock.Anything)
	st.AssertExpectations(t)
}

func TestPublishBatch_StopsWhenCancelled(t *testing.T) {
	st := new(StoreMock)
	pr := new(ProducerMock)
	p := newPublisher(t, st, pr)

	ctx, cancel := context.WithCancel(context.Background())
	changes := []postgres.StatusChange{
		change(1, "item-1", models.UploadingStatus, models.ProcessingStatus),
		change(2, "item-2", models.UploadingStatus, models.ProcessingStatus),
	}
	st.On("Pending", mock.Anything, 10).Return(changes, nil).Once()
	pr.On("Publish", mock.Anything, "item-1", mock.Anything).Return(nil).Once().Run(func(mock.Arguments) { cancel() })
	st.On("MarkPublished", mock.Anything, int64(1)).Return(nil).Once()

	published, err := p.PublishBatch(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, published)
	pr.AssertNotCalled(t, "Publish", mock.Anything, "item-2", mock.Anything)
}
