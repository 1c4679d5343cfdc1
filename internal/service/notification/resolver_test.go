package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"licensewatch/internal/model"
	"licensewatch/internal/repository"
)

func TestResolver_AdminFallback(t *testing.T) {
	r := NewResolver(&mockUserStore{}, &mockSettingsStore{}, " admin@x.com ")

	rcpt, err := r.Resolve(context.Background(), model.ExpiringLicense{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "admin@x.com", rcpt.Address)
	assert.Equal(t, SourceAdmin, rcpt.Source)
	assert.Nil(t, rcpt.UserID)
}

func TestResolver_AdminFallbackMissing(t *testing.T) {
	_, err := NewResolver(&mockUserStore{}, &mockSettingsStore{}, "").Resolve(context.Background(), model.ExpiringLicense{}, nil)
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestResolver_UserScoped(t *testing.T) {
	tests := []struct {
		name       string
		settings   *model.NotificationSettings
		user       *model.User
		userErr    error
		wantAddr   string
		wantSource string
		wantErr    error
	}{
		{
			name:       "override address wins",
			settings:   &model.NotificationSettings{UserID: 1, EmailAddress: strPtr("u@x.com")},
			wantAddr:   "u@x.com",
			wantSource: SourceOverride,
		},
		{
			name:       "blank override falls back to login email",
			settings:   &model.NotificationSettings{UserID: 1, EmailAddress: strPtr("  ")},
			user:       &model.User{ID: 1, Email: "login@x.com", IsActive: true},
			wantAddr:   "login@x.com",
			wantSource: SourceLogin,
		},
		{
			name:       "no settings row uses login email",
			user:       &model.User{ID: 1, Email: "login@x.com", IsActive: true},
			wantAddr:   "login@x.com",
			wantSource: SourceLogin,
		},
		{
			name:    "no email anywhere",
			user:    &model.User{ID: 1, IsActive: true},
			wantErr: ErrNoRecipient,
		},
		{
			name:    "unknown user",
			userErr: repository.ErrUserNotFound,
			wantErr: ErrNoRecipient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserStore{}
			settings := &mockSettingsStore{}
			settings.On("GetNotificationSettings", mock.Anything, int64(1)).Return(tt.settings, nil)
			users.On("GetUser", mock.Anything, int64(1)).Return(tt.user, tt.userErr).Maybe()

			rcpt, err := NewResolver(users, settings, "admin@x.com").Resolve(context.Background(), model.ExpiringLicense{}, int64Ptr(1))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, rcpt.Address)
			assert.Equal(t, tt.wantSource, rcpt.Source)
			require.NotNil(t, rcpt.UserID)
			assert.Equal(t, int64(1), *rcpt.UserID)
		})
	}
}

func TestResolver_MemoizesPerUser(t *testing.T) {
	users := &mockUserStore{}
	settings := &mockSettingsStore{}
	settings.On("GetNotificationSettings", mock.Anything, int64(7)).Return(nil, nil).Once()
	users.On("GetUser", mock.Anything, int64(7)).Return(&model.User{ID: 7, Email: "seven@x.com"}, nil).Once()

	r := NewResolver(users, settings, "")
	for i := 0; i < 3; i++ {
		rcpt, err := r.Resolve(context.Background(), model.ExpiringLicense{License: model.License{ID: int64(i)}}, int64Ptr(7))
		require.NoError(t, err)
		assert.Equal(t, "seven@x.com", rcpt.Address)
	}

	settings.AssertNumberOfCalls(t, "GetNotificationSettings", 1)
	users.AssertNumberOfCalls(t, "GetUser", 1)
}

func TestResolver_StoreErrorNotMemoized(t *testing.T) {
	settings := &mockSettingsStore{}
	settings.On("GetNotificationSettings", mock.Anything, int64(3)).Return(nil, errors.New("conn reset")).Once()
	settings.On("GetNotificationSettings", mock.Anything, int64(3)).Return(&model.NotificationSettings{EmailAddress: strPtr("o@x.com")}, nil).Once()

	r := NewResolver(&mockUserStore{}, settings, "")
	_, err := r.Resolve(context.Background(), model.ExpiringLicense{}, int64Ptr(3))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRecipient)

	rcpt, err := r.Resolve(context.Background(), model.ExpiringLicense{}, int64Ptr(3))
	require.NoError(t, err)
	assert.Equal(t, "o@x.com", rcpt.Address)
}
