package mq

import "time"

const (
	RoutingKeyDigestSent      = "license.digest.sent"
	RoutingKeyDigestFailed    = "license.digest.failed"
	RoutingKeySettingsUpdated = "notification_settings.updated"
)

type DigestSentPayload struct {
	Recipient  string    `json:"recipient"`
	UserID     *int64    `json:"user_id,omitempty"`
	LicenseIDs []int64   `json:"license_ids"`
	MessageID  string    `json:"message_id"`
	SentAt     time.Time `json:"sent_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}

type DigestFailedPayload struct {
	Recipient  string  `json:"recipient"`
	UserID     *int64  `json:"user_id,omitempty"`
	LicenseIDs []int64 `json:"license_ids"`
	Kind       string  `json:"kind"`
	Error      string  `json:"error"`
	TraceID    string  `json:"trace_id,omitempty"`
}

// SettingsUpdatedPayload is published by the CRUD application after a
// user_notification_settings change.
type SettingsUpdatedPayload struct {
	UserID int64 `json:"user_id"`
}
