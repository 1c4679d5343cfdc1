package notification

import (
	"context"
	"time"

	"licensewatch/internal/model"
)

type LicenseStore interface {
	ListExpiringCandidates(ctx context.Context, cutoff time.Time, activeOnly, unnotifiedOnly bool) ([]model.License, error)
	MarkNotified(ctx context.Context, licenseID int64) error
}

type UserStore interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

type SettingsStore interface {
	GetNotificationSettings(ctx context.Context, userID int64) (*model.NotificationSettings, error)
}

// EventRecorder receives delivery outcomes (the outbox in production).
type EventRecorder interface {
	Record(ctx context.Context, routingKey string, aggregateID *int64, payload any) error
}
