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

type UserRepository struct {
	db          *pgxpool.Pool
	defaultDays int
	defaultTime string
}

// NewUserRepository uses defaultDays/defaultTime for users without a settings row.
func NewUserRepository(db *pgxpool.Pool, defaultDays int, defaultTime string) *UserRepository {
	if defaultDays <= 0 {
		defaultDays = model.DefaultDaysBeforeExpiration
	}
	if defaultTime == "" {
		defaultTime = model.DefaultNotificationTime
	}
	return &UserRepository{db: db, defaultDays: defaultDays, defaultTime: defaultTime}
}

// GetUser returns ErrUserNotFound when no row matches.
func (r *UserRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	query := `
        SELECT id, COALESCE(email, ''), is_active
        FROM users
        WHERE id = $1
    `
	var u model.User
	err := otel.WithDBSpan(ctx, "SELECT", "users", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.Email, &u.IsActive)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &u, nil
}

// ListUsersWithEmailNotificationsEnabled returns active users whose effective
// send_to_email is true. Users without a settings row count as enabled.
func (r *UserRepository) ListUsersWithEmailNotificationsEnabled(ctx context.Context) ([]model.UserSchedule, error) {
	query := `
        SELECT u.id,
               COALESCE(u.email, ''),
               COALESCE(TO_CHAR(s.notification_time, 'HH24:MI'), $1),
               COALESCE(s.days_before_expiration, $2),
               COALESCE(s.include_inactive, FALSE),
               s.email_address
        FROM users u
        LEFT JOIN user_notification_settings s ON s.user_id = u.id
        WHERE u.is_active = TRUE
          AND COALESCE(s.send_to_email, TRUE) = TRUE
        ORDER BY u.id
    `
	var users []model.UserSchedule
	err := otel.WithDBSpan(ctx, "SELECT", "users", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, r.defaultTime, r.defaultDays)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s model.UserSchedule
			if err := rows.Scan(
				&s.UserID,
				&s.Email,
				&s.NotificationTime,
				&s.DaysBeforeExpiration,
				&s.IncludeInactive,
				&s.EmailAddress,
			); err != nil {
				return err
			}
			users = append(users, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users with notifications enabled: %w", err)
	}
	return users, nil
}
