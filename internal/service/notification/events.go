package notification

import (
	"context"

	"licensewatch/pkg/outbox"
)

// OutboxRecorder writes delivery events to outbox_events for the dispatcher.
type OutboxRecorder struct {
	repo *outbox.Repository
}

func NewOutboxRecorder(repo *outbox.Repository) *OutboxRecorder {
	return &OutboxRecorder{repo: repo}
}

func (r *OutboxRecorder) Record(ctx context.Context, routingKey string, aggregateID *int64, payload any) error {
	event, err := outbox.NewEvent("license_digest", aggregateID, routingKey, payload)
	if err != nil {
		return err
	}
	return r.repo.Insert(ctx, nil, event)
}
