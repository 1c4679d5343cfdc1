package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultDaysBeforeExpiration = 30
	DefaultNotificationTime     = "09:00"
)

var ErrInvalidNotificationTime = errors.New("invalid notification time")

type NotificationSettings struct {
	UserID               int64
	DaysBeforeExpiration int
	SendToEmail          bool
	NotificationTime     string // HH:MM
	EmailAddress         *string
	IncludeInactive      bool
	UpdatedAt            time.Time
}

// DefaultNotificationSettings is what a user without a settings row gets.
func DefaultNotificationSettings(userID int64, days int, notificationTime string) *NotificationSettings {
	if days <= 0 {
		days = DefaultDaysBeforeExpiration
	}
	if notificationTime == "" {
		notificationTime = DefaultNotificationTime
	}
	return &NotificationSettings{
		UserID:               userID,
		DaysBeforeExpiration: days,
		SendToEmail:          true,
		NotificationTime:     notificationTime,
	}
}

// OverrideAddress returns the trimmed override, "" when unset or blank.
func (s *NotificationSettings) OverrideAddress() string {
	if s == nil || s.EmailAddress == nil {
		return ""
	}
	return strings.TrimSpace(*s.EmailAddress)
}

func (s *NotificationSettings) Validate() error {
	if s.DaysBeforeExpiration <= 0 {
		return fmt.Errorf("days_before_expiration must be positive, got %d", s.DaysBeforeExpiration)
	}
	if _, _, err := ParseNotificationTime(s.NotificationTime); err != nil {
		return err
	}
	if addr := s.OverrideAddress(); addr != "" && !strings.Contains(addr, "@") {
		return fmt.Errorf("invalid email_address %q", addr)
	}
	return nil
}

// ParseNotificationTime parses "HH:MM" (24h). "9:05" is accepted.
func ParseNotificationTime(v string) (hour, minute int, err error) {
	t, perr := time.Parse("15:04", strings.TrimSpace(v))
	if perr != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidNotificationTime, v)
	}
	return t.Hour(), t.Minute(), nil
}

// UserSchedule is one row of ListUsersWithEmailNotificationsEnabled.
type UserSchedule struct {
	UserID               int64
	Email                string
	NotificationTime     string
	DaysBeforeExpiration int
	IncludeInactive      bool
	EmailAddress         *string
}
