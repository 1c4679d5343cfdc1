package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"licensewatch/pkg/trace"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) GetPendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	args := m.Called(ctx, limit)
	events, _ := args.Get(0).([]*Event)
	return events, args.Error(1)
}

func (m *mockStore) MarkAsSent(ctx context.Context, eventID int64) error {
	return m.Called(ctx, eventID).Error(0)
}

func (m *mockStore) MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) error {
	return m.Called(ctx, eventID, maxRetries).Error(0)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	return m.Called(ctx, routingKey, payload).Error(0)
}

func TestDispatcher_ProcessPendingEvents(t *testing.T) {
	sent, err := NewEvent("digest", nil, "license.digest.sent", map[string]interface{}{"recipient": "a@x.com", "trace_id": "t-1"})
	assert.NoError(t, err)
	sent.ID = 1
	failed, err := NewEvent("digest", nil, "license.digest.failed", map[string]interface{}{"recipient": "b@x.com"})
	assert.NoError(t, err)
	failed.ID = 2

	store := &mockStore{}
	pub := &mockPublisher{}

	store.On("GetPendingEvents", mock.Anything, 100).Return([]*Event{sent, failed}, nil)
	pub.On("PublishWithContext", mock.MatchedBy(func(ctx context.Context) bool {
		return trace.FromContext(ctx) == "t-1"
	}), "license.digest.sent", mock.Anything).Return(nil)
	pub.On("PublishWithContext", mock.Anything, "license.digest.failed", mock.Anything).Return(errors.New("channel closed"))
	store.On("MarkAsSent", mock.Anything, int64(1)).Return(nil)
	store.On("MarkAsFailed", mock.Anything, int64(2), 5).Return(nil)

	NewDispatcher(store, pub, zap.NewNop()).ProcessPendingEvents(context.Background())

	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestDispatcher_Options(t *testing.T) {
	failed, err := NewEvent("digest", nil, "license.digest.failed", map[string]interface{}{"recipient": "b@x.com"})
	assert.NoError(t, err)
	failed.ID = 7

	store := &mockStore{}
	pub := &mockPublisher{}
	store.On("GetPendingEvents", mock.Anything, 25).Return([]*Event{failed}, nil)
	pub.On("PublishWithContext", mock.Anything, "license.digest.failed", mock.Anything).Return(errors.New("channel closed"))
	store.On("MarkAsFailed", mock.Anything, int64(7), 2).Return(nil)

	d := NewDispatcher(store, pub, zap.NewNop()).
		WithBatchSize(25).
		WithMaxRetries(2).
		WithInterval(0)
	assert.Equal(t, time.Second, d.interval)

	d.ProcessPendingEvents(context.Background())

	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	status, next := nextAttempt(2, 5, now)
	assert.Equal(t, StatusPending, status)
	assert.Equal(t, now.Add(10*time.Second), *next)

	status, next = nextAttempt(5, 5, now)
	assert.Equal(t, StatusFailed, status)
	assert.Nil(t, next)
}
