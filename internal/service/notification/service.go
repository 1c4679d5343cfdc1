package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"licensewatch/internal/mailer"
	"licensewatch/internal/model"
	"licensewatch/internal/repository"
	"licensewatch/pkg/logger"
	"licensewatch/pkg/metrics"
	"licensewatch/pkg/trace"
)

const (
	ScopeUser  = "user"
	ScopeAdmin = "admin"
)

type Config struct {
	AdminEmail  string
	DefaultDays int
	DefaultTime string
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID    string  `json:"run_id"`
	Scope    string  `json:"scope"`
	UserID   *int64  `json:"user_id,omitempty"`
	Selected int     `json:"selected"`
	Skipped  int     `json:"skipped"`
	Digests  int     `json:"digests"`
	Sent     int     `json:"sent"`
	Failed   int     `json:"failed"`
	Disabled bool    `json:"disabled,omitempty"`
	Duration float64 `json:"duration_seconds"`
}

type TestResult struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	MessageID string `json:"message_id"`
}

// Service runs the select, resolve, aggregate, send pipeline.
type Service struct {
	selector *Selector
	users    UserStore
	settings SettingsStore
	sender   *Sender
	cfg      Config
	logger   *zap.Logger
}

func NewService(selector *Selector, users UserStore, settings SettingsStore, sender *Sender, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultDays <= 0 {
		cfg.DefaultDays = model.DefaultDaysBeforeExpiration
	}
	if cfg.DefaultTime == "" {
		cfg.DefaultTime = model.DefaultNotificationTime
	}
	return &Service{
		selector: selector,
		users:    users,
		settings: settings,
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *Service) Selector() *Selector {
	return s.selector
}

// EffectiveSettings returns the user's settings row, or the defaults when none exists.
func (s *Service) EffectiveSettings(ctx context.Context, userID int64) (*model.NotificationSettings, error) {
	settings, err := s.settings.GetNotificationSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return model.DefaultNotificationSettings(userID, s.cfg.DefaultDays, s.cfg.DefaultTime), nil
	}
	return settings, nil
}

// RunForUser runs the pipeline with the user's current settings. A user who
// is inactive or has email disabled gets a report with Disabled set.
func (s *Service) RunForUser(ctx context.Context, userID int64) (*RunReport, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	settings, err := s.EffectiveSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	uid := userID
	if !user.IsActive || !settings.SendToEmail {
		return &RunReport{
			RunID:    trace.FromContext(ctx),
			Scope:    ScopeUser,
			UserID:   &uid,
			Disabled: true,
		}, nil
	}
	return s.run(ctx, ScopeUser, &uid, settings.DaysBeforeExpiration, settings.IncludeInactive)
}

// RunAdmin runs the unscoped pipeline to the admin address with default lookahead.
func (s *Service) RunAdmin(ctx context.Context) (*RunReport, error) {
	return s.run(ctx, ScopeAdmin, nil, s.cfg.DefaultDays, false)
}

func (s *Service) run(ctx context.Context, scope string, userID *int64, daysAhead int, includeInactive bool) (report *RunReport, err error) {
	ctx = trace.EnsureContext(ctx)
	start := time.Now()
	report = &RunReport{RunID: trace.FromContext(ctx), Scope: scope, UserID: userID}

	log := logger.WithTrace(ctx, s.logger).With(zap.String("scope", scope))
	if userID != nil {
		log = log.With(zap.Int64("user_id", *userID))
	}

	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		} else if report.Failed > 0 {
			status = "partial"
		}
		report.Duration = time.Since(start).Seconds()
		metrics.RecordPipelineRun(scope, status, time.Since(start))
	}()

	items, err := s.selector.SelectExpiring(ctx, daysAhead, includeInactive)
	if err != nil {
		log.Error("Failed to select expiring licenses", zap.Error(err))
		return report, fmt.Errorf("select expiring licenses: %w", err)
	}
	report.Selected = len(items)
	if len(items) == 0 {
		log.Info("No expiring licenses", zap.Int("days_ahead", daysAhead))
		return report, nil
	}

	resolver := NewResolver(s.users, s.settings, s.cfg.AdminEmail)
	digests, skipped := Aggregate(ctx, items, func(ctx context.Context, it model.ExpiringLicense) (Recipient, error) {
		return resolver.Resolve(ctx, it, userID)
	}, log)
	report.Skipped = skipped
	report.Digests = len(digests)

	for _, d := range digests {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if _, err := s.sender.Deliver(ctx, d); err != nil {
			report.Failed++
			continue
		}
		report.Sent++
	}

	log.Info("Notification run finished",
		zap.Int("selected", report.Selected),
		zap.Int("skipped", report.Skipped),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// SendTestNotification mails one synthetic license to the user's resolved
// address. Nothing is marked notified.
func (s *Service) SendTestNotification(ctx context.Context, userID int64) (*TestResult, error) {
	ctx = trace.EnsureContext(ctx)
	log := logger.WithTrace(ctx, s.logger).With(zap.Int64("user_id", userID))

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	sample := s.sampleLicense()
	uid := userID
	rcpt, err := NewResolver(s.users, s.settings, s.cfg.AdminEmail).Resolve(ctx, sample, &uid)
	if err != nil {
		if errors.Is(err, ErrNoRecipient) {
			return nil, &mailer.SendError{Kind: mailer.KindNoRecipient, Err: err}
		}
		return nil, err
	}

	msg, messageID, err := s.sender.SendTest(ctx, rcpt.Address, []model.ExpiringLicense{sample})
	if err != nil {
		log.Warn("Test notification failed", zap.String("recipient", rcpt.Address), zap.Error(err))
		return nil, err
	}

	log.Info("Test notification sent", zap.String("recipient", rcpt.Address), zap.String("message_id", messageID))
	return &TestResult{Recipient: rcpt.Address, Subject: msg.Subject, MessageID: messageID}, nil
}

func (s *Service) sampleLicense() model.ExpiringLicense {
	today := s.selector.Today()
	return model.ExpiringLicense{
		License: model.License{
			Name:           "Sample License",
			VendorName:     "Sample Vendor",
			CustomerName:   "Sample Customer",
			ExpirationDate: today.AddDate(0, 0, s.cfg.DefaultDays),
			IsActive:       true,
		},
		DaysUntilExpiry: s.cfg.DefaultDays,
	}
}

// IsNotFound reports whether err means the user does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrUserNotFound)
}
