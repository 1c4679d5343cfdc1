package notification

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"licensewatch/internal/mailer"
	"licensewatch/internal/model"
)

type mockLicenseStore struct{ mock.Mock }

func (m *mockLicenseStore) ListExpiringCandidates(ctx context.Context, cutoff time.Time, activeOnly, unnotifiedOnly bool) ([]model.License, error) {
	args := m.Called(ctx, cutoff, activeOnly, unnotifiedOnly)
	rows, _ := args.Get(0).([]model.License)
	return rows, args.Error(1)
}

func (m *mockLicenseStore) MarkNotified(ctx context.Context, licenseID int64) error {
	return m.Called(ctx, licenseID).Error(0)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

type mockSettingsStore struct{ mock.Mock }

func (m *mockSettingsStore) GetNotificationSettings(ctx context.Context, userID int64) (*model.NotificationSettings, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).(*model.NotificationSettings)
	return s, args.Error(1)
}

type mockTransport struct {
	mock.Mock
	sent []*mailer.Message
}

func (m *mockTransport) Send(ctx context.Context, msg *mailer.Message) (string, error) {
	m.sent = append(m.sent, msg)
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) Record(ctx context.Context, routingKey string, aggregateID *int64, payload any) error {
	return m.Called(ctx, routingKey, aggregateID, payload).Error(0)
}

var fixedToday = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func newTestSelector(store LicenseStore, skipNotified bool) *Selector {
	s := NewSelector(store, time.UTC, skipNotified)
	s.now = func() time.Time { return fixedToday.Add(14 * time.Hour) }
	return s
}

func license(id int64, name string, offsetDays int, active bool) model.License {
	return model.License{
		ID:             id,
		Name:           name,
		VendorName:     "Acme",
		CustomerName:   "Contoso",
		ExpirationDate: fixedToday.AddDate(0, 0, offsetDays),
		IsActive:       active,
	}
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }
