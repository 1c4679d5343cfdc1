package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"licensewatch/internal/mailer"
	"licensewatch/internal/model"
	"licensewatch/internal/scheduler"
	"licensewatch/internal/service/notification"
	"licensewatch/pkg/logger"
	"licensewatch/pkg/rbac"
)

type NotificationService interface {
	EffectiveSettings(ctx context.Context, userID int64) (*model.NotificationSettings, error)
	SendTestNotification(ctx context.Context, userID int64) (*notification.TestResult, error)
}

type SettingsWriter interface {
	UpsertNotificationSettings(ctx context.Context, settings *model.NotificationSettings) (*model.NotificationSettings, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

type ScheduleManager interface {
	RefreshUser(ctx context.Context, userID int64) error
	Status(userID int64) scheduler.Status
	RunAdminNow(ctx context.Context) (*notification.RunReport, error)
}

type ExpiringSelector interface {
	SelectExpiring(ctx context.Context, daysAhead int, includeInactive bool) ([]model.ExpiringLicense, error)
}

type NotificationHandler struct {
	service     NotificationService
	settings    SettingsWriter
	users       UserLookup
	schedules   ScheduleManager
	selector    ExpiringSelector
	defaultDays int
	logger      *zap.Logger
}

func NewNotificationHandler(service NotificationService, settings SettingsWriter, users UserLookup, schedules ScheduleManager, selector ExpiringSelector, defaultDays int, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		service:     service,
		settings:    settings,
		users:       users,
		schedules:   schedules,
		selector:    selector,
		defaultDays: defaultDays,
		logger:      logger,
	}
}

type settingsResponse struct {
	DaysBeforeExpiration int     `json:"days_before_expiration"`
	SendToEmail          bool    `json:"send_to_email"`
	NotificationTime     string  `json:"notification_time"`
	EmailAddress         *string `json:"email_address"`
	IncludeInactive      bool    `json:"include_inactive"`
}

func toSettingsResponse(s *model.NotificationSettings) settingsResponse {
	return settingsResponse{
		DaysBeforeExpiration: s.DaysBeforeExpiration,
		SendToEmail:          s.SendToEmail,
		NotificationTime:     s.NotificationTime,
		EmailAddress:         s.EmailAddress,
		IncludeInactive:      s.IncludeInactive,
	}
}

// updateSettingsRequest fields left out keep their current value.
type updateSettingsRequest struct {
	DaysBeforeExpiration *int    `json:"days_before_expiration"`
	SendToEmail          *bool   `json:"send_to_email"`
	NotificationTime     *string `json:"notification_time"`
	EmailAddress         *string `json:"email_address"`
	IncludeInactive      *bool   `json:"include_inactive"`
}

// GetSettings handles GET /notifications/settings
func (h *NotificationHandler) GetSettings(c *gin.Context) {
	userID, _ := currentUserID(c)

	settings, err := h.service.EffectiveSettings(c.Request.Context(), userID)
	if err != nil {
		h.internalError(c, "failed to load settings", err)
		return
	}
	c.JSON(http.StatusOK, toSettingsResponse(settings))
}

// UpdateSettings handles PUT /notifications/settings and reschedules the user.
func (h *NotificationHandler) UpdateSettings(c *gin.Context) {
	userID, _ := currentUserID(c)
	ctx := c.Request.Context()

	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	// settings rows reference users(id)
	if _, err := h.users.GetUser(ctx, userID); err != nil {
		if notification.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.internalError(c, "failed to load user", err)
		return
	}

	current, err := h.service.EffectiveSettings(ctx, userID)
	if err != nil {
		h.internalError(c, "failed to load settings", err)
		return
	}

	next := *current
	next.UserID = userID
	if req.DaysBeforeExpiration != nil {
		next.DaysBeforeExpiration = *req.DaysBeforeExpiration
	}
	if req.SendToEmail != nil {
		next.SendToEmail = *req.SendToEmail
	}
	if req.NotificationTime != nil {
		next.NotificationTime = strings.TrimSpace(*req.NotificationTime)
	}
	if req.EmailAddress != nil {
		if addr := strings.TrimSpace(*req.EmailAddress); addr != "" {
			next.EmailAddress = &addr
		} else {
			next.EmailAddress = nil
		}
	}
	if req.IncludeInactive != nil {
		next.IncludeInactive = *req.IncludeInactive
	}

	if err := next.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if hour, minute, err := model.ParseNotificationTime(next.NotificationTime); err == nil {
		next.NotificationTime = fmt.Sprintf("%02d:%02d", hour, minute)
	}

	stored, err := h.settings.UpsertNotificationSettings(ctx, &next)
	if err != nil {
		h.internalError(c, "failed to save settings", err)
		return
	}

	if err := h.schedules.RefreshUser(ctx, userID); err != nil {
		logger.WithTrace(ctx, h.logger).Error("Failed to refresh schedule after settings update",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"settings": toSettingsResponse(stored),
		"schedule": h.schedules.Status(userID),
	})
}

// SendTest handles POST /notifications/test
func (h *NotificationHandler) SendTest(c *gin.Context) {
	userID, _ := currentUserID(c)

	res, err := h.service.SendTestNotification(c.Request.Context(), userID)
	if err != nil {
		if notification.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		var sendErr *mailer.SendError
		if errors.As(err, &sendErr) {
			status, code := sendErrorStatus(sendErr.Kind)
			c.JSON(status, gin.H{"error": sendErr.Error(), "code": code})
			return
		}
		h.internalError(c, "failed to send test notification", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// sendErrorStatus maps a delivery failure onto an HTTP status and error code.
func sendErrorStatus(kind mailer.Kind) (int, string) {
	switch kind {
	case mailer.KindAuth:
		return http.StatusBadGateway, "smtp_auth_failed"
	case mailer.KindTimeout:
		return http.StatusGatewayTimeout, "smtp_timeout"
	case mailer.KindRejected:
		return http.StatusBadGateway, "smtp_rejected"
	case mailer.KindUnavailable:
		return http.StatusServiceUnavailable, "smtp_unavailable"
	case mailer.KindNoRecipient:
		return http.StatusUnprocessableEntity, "no_recipient"
	default:
		return http.StatusBadGateway, "smtp_error"
	}
}

// GetSchedule handles GET /notifications/schedule
func (h *NotificationHandler) GetSchedule(c *gin.Context) {
	userID, _ := currentUserID(c)
	c.JSON(http.StatusOK, h.schedules.Status(userID))
}

// RefreshSchedule handles POST /notifications/schedule/refresh[?user_id=]
func (h *NotificationHandler) RefreshSchedule(c *gin.Context) {
	callerID, _ := currentUserID(c)
	target := callerID

	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		if id != callerID {
			if err := rbac.CheckPermission(callerID, c.GetString(ctxRole), rbac.PermissionRefreshAnySchedule); err != nil {
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
				return
			}
		}
		target = id
	}

	if err := h.schedules.RefreshUser(c.Request.Context(), target); err != nil {
		h.internalError(c, "failed to refresh schedule", err)
		return
	}
	c.JSON(http.StatusOK, h.schedules.Status(target))
}

type expiringItem struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Vendor          string `json:"vendor"`
	Customer        string `json:"customer"`
	ExpirationDate  string `json:"expiration_date"`
	DaysUntilExpiry int    `json:"days_until_expiry"`
	Label           string `json:"label"`
	Urgency         string `json:"urgency"`
	IsActive        bool   `json:"is_active"`
}

// PreviewExpiring handles GET /admin/licenses/expiring?days=&include_inactive=
func (h *NotificationHandler) PreviewExpiring(c *gin.Context) {
	days := h.defaultDays
	if raw := c.Query("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
		days = v
	}
	includeInactive, _ := strconv.ParseBool(c.DefaultQuery("include_inactive", "false"))

	items, err := h.selector.SelectExpiring(c.Request.Context(), days, includeInactive)
	if err != nil {
		if errors.Is(err, notification.ErrInvalidLookahead) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.internalError(c, "failed to select expiring licenses", err)
		return
	}

	out := make([]expiringItem, 0, len(items))
	for _, it := range items {
		out = append(out, expiringItem{
			ID:              it.ID,
			Name:            it.Name,
			Vendor:          it.VendorName,
			Customer:        it.CustomerName,
			ExpirationDate:  it.ExpirationDate.Format("2006-01-02"),
			DaysUntilExpiry: it.DaysUntilExpiry,
			Label:           mailer.Label(it.DaysUntilExpiry),
			Urgency:         mailer.Urgency(it.DaysUntilExpiry),
			IsActive:        it.IsActive,
		})
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "count": len(out), "licenses": out})
}

// RunAdminSweep handles POST /admin/notifications/run
func (h *NotificationHandler) RunAdminSweep(c *gin.Context) {
	report, err := h.schedules.RunAdminNow(c.Request.Context())
	if err != nil {
		h.internalError(c, "admin run failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *NotificationHandler) internalError(c *gin.Context, msg string, err error) {
	logger.WithTrace(c.Request.Context(), h.logger).Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
