package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "licensewatch/contracts/mq"
	"licensewatch/pkg/logger"
	"licensewatch/pkg/util"
)

type ScheduleRefresher interface {
	RefreshUser(ctx context.Context, userID int64) error
}

// SettingsUpdatedHandler reschedules a user after the CRUD application
// publishes notification_settings.updated.
type SettingsUpdatedHandler struct {
	refresher ScheduleRefresher
	logger    *zap.Logger
}

func NewSettingsUpdatedHandler(refresher ScheduleRefresher, logger *zap.Logger) *SettingsUpdatedHandler {
	return &SettingsUpdatedHandler{
		refresher: refresher,
		logger:    logger,
	}
}

// Handle returns an error only for failures worth a redelivery; malformed
// payloads are logged and acked.
func (h *SettingsUpdatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.SettingsUpdatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal SettingsUpdatedPayload", zap.Error(err))
		return nil
	}
	if p.UserID <= 0 {
		log.Warn("Ignoring notification_settings.updated without user_id")
		return nil
	}

	log.Info("Handling notification_settings.updated event", zap.Int64("user_id", p.UserID))

	if err := h.refresher.RefreshUser(ctx, p.UserID); err != nil {
		retryable, errType := util.IsRetryableError(err)
		log.Error("Failed to refresh schedule",
			zap.Int64("user_id", p.UserID),
			zap.String("error_type", errType),
			zap.Bool("retryable", retryable),
			zap.Error(err),
		)
		if retryable {
			return fmt.Errorf("refresh schedule for user %d: %w", p.UserID, err)
		}
	}
	return nil
}
