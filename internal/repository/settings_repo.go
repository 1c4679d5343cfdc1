package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"licensewatch/internal/model"
	"licensewatch/pkg/otel"
)

type SettingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const settingsColumns = `
        user_id,
        days_before_expiration,
        send_to_email,
        TO_CHAR(notification_time, 'HH24:MI'),
        email_address,
        include_inactive,
        updated_at
`

func scanSettings(row pgx.Row) (*model.NotificationSettings, error) {
	var s model.NotificationSettings
	err := row.Scan(
		&s.UserID,
		&s.DaysBeforeExpiration,
		&s.SendToEmail,
		&s.NotificationTime,
		&s.EmailAddress,
		&s.IncludeInactive,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetNotificationSettings returns nil, nil when the user has no settings row.
func (r *SettingsRepository) GetNotificationSettings(ctx context.Context, userID int64) (*model.NotificationSettings, error) {
	query := `SELECT ` + settingsColumns + ` FROM user_notification_settings WHERE user_id = $1`

	var settings *model.NotificationSettings
	err := otel.WithDBSpan(ctx, "SELECT", "user_notification_settings", func(ctx context.Context) error {
		var err error
		settings, err = scanSettings(r.db.QueryRow(ctx, query, userID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification settings for user %d: %w", userID, err)
	}
	return settings, nil
}

// UpsertNotificationSettings writes the row for settings.UserID and returns it as stored.
func (r *SettingsRepository) UpsertNotificationSettings(ctx context.Context, settings *model.NotificationSettings) (*model.NotificationSettings, error) {
	query := `
        INSERT INTO user_notification_settings
            (user_id, days_before_expiration, send_to_email, notification_time, email_address, include_inactive, updated_at)
        VALUES ($1, $2, $3, $4::time, NULLIF(TRIM($5::text), ''), $6, NOW())
        ON CONFLICT (user_id) DO UPDATE SET
            days_before_expiration = EXCLUDED.days_before_expiration,
            send_to_email          = EXCLUDED.send_to_email,
            notification_time      = EXCLUDED.notification_time,
            email_address          = EXCLUDED.email_address,
            include_inactive       = EXCLUDED.include_inactive,
            updated_at             = NOW()
        RETURNING ` + settingsColumns

	var stored *model.NotificationSettings
	err := otel.WithDBSpan(ctx, "UPSERT", "user_notification_settings", func(ctx context.Context) error {
		var err error
		stored, err = scanSettings(r.db.QueryRow(ctx, query,
			settings.UserID,
			settings.DaysBeforeExpiration,
			settings.SendToEmail,
			settings.NotificationTime,
			settings.EmailAddress,
			settings.IncludeInactive,
		))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert notification settings for user %d: %w", settings.UserID, err)
	}
	return stored, nil
}
