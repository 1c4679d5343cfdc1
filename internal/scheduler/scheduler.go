package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"licensewatch/internal/model"
	"licensewatch/internal/repository"
	"licensewatch/internal/service/notification"
	"licensewatch/pkg/metrics"
	"licensewatch/pkg/trace"
	"licensewatch/pkg/util"
)

// Pipeline is the notification service as seen by the scheduler.
type Pipeline interface {
	RunForUser(ctx context.Context, userID int64) (*notification.RunReport, error)
	RunAdmin(ctx context.Context) (*notification.RunReport, error)
	EffectiveSettings(ctx context.Context, userID int64) (*model.NotificationSettings, error)
}

type UserSource interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListUsersWithEmailNotificationsEnabled(ctx context.Context) ([]model.UserSchedule, error)
}

type Config struct {
	Location     *time.Location
	DefaultTime  string
	AdminDigest  bool
	RunOnStartup bool
	// JobTimeout bounds one firing; 0 means no limit.
	JobTimeout time.Duration
}

// Status is what the API reports for one user.
type Status struct {
	UserID           int64      `json:"user_id"`
	Scheduled        bool       `json:"scheduled"`
	NotificationTime string     `json:"notification_time,omitempty"`
	NextRun          *time.Time `json:"next_run,omitempty"`
	Timezone         string     `json:"timezone"`
}

// Scheduler keeps one daily cron entry per user with email notifications enabled.
type Scheduler struct {
	cron     *cron.Cron
	registry *Registry
	pipeline Pipeline
	users    UserSource
	deduper  *util.Deduper
	cfg      Config
	logger   *zap.Logger

	mu         sync.Mutex
	baseCtx    context.Context
	adminEntry cron.EntryID
}

// New builds a stopped scheduler. deduper may be nil.
func New(pipeline Pipeline, users UserSource, registry *Registry, deduper *util.Deduper, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultTime == "" {
		cfg.DefaultTime = model.DefaultNotificationTime
	}
	if registry == nil {
		registry = NewRegistry()
	}
	cl := newCronLogger(logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		registry: registry,
		pipeline: pipeline,
		users:    users,
		deduper:  deduper,
		cfg:      cfg,
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

// DailySpec converts "HH:MM" to a cron spec firing once a day.
func DailySpec(notificationTime string) (string, error) {
	hour, minute, err := model.ParseNotificationTime(notificationTime)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// InstallOrReplace cancels the user's current trigger, if any, and installs
// a new one at user.NotificationTime.
func (s *Scheduler) InstallOrReplace(user model.UserSchedule) error {
	notificationTime := user.NotificationTime
	if notificationTime == "" {
		notificationTime = s.cfg.DefaultTime
	}
	spec, err := DailySpec(notificationTime)
	if err != nil {
		return fmt.Errorf("user %d: %w", user.UserID, err)
	}

	userID := user.UserID
	err = s.registry.Update(userID, func(prev Entry, exists bool) (Entry, bool, error) {
		if exists {
			s.cron.Remove(prev.ID)
		}
		id, err := s.cron.AddFunc(spec, func() { s.runUser(userID) })
		if err != nil {
			return Entry{}, false, fmt.Errorf("failed to add cron entry for user %d: %w", userID, err)
		}
		return Entry{ID: id, NotificationTime: notificationTime}, true, nil
	})
	if err != nil {
		return err
	}

	metrics.ScheduledUsers.Set(float64(s.registry.Len()))
	s.logger.Info("Notification schedule installed",
		zap.Int64("user_id", userID),
		zap.String("notification_time", notificationTime),
		zap.String("timezone", s.cfg.Location.String()),
	)
	return nil
}

// RemoveSchedule cancels the user's trigger. Unknown users are a no-op.
func (s *Scheduler) RemoveSchedule(userID int64) {
	removed := false
	_ = s.registry.Update(userID, func(prev Entry, exists bool) (Entry, bool, error) {
		if exists {
			s.cron.Remove(prev.ID)
			removed = true
		}
		return Entry{}, false, nil
	})
	metrics.ScheduledUsers.Set(float64(s.registry.Len()))
	if removed {
		s.logger.Info("Notification schedule removed", zap.Int64("user_id", userID))
	}
}

// RefreshUser re-reads the user's settings and installs or removes the trigger.
func (s *Scheduler) RefreshUser(ctx context.Context, userID int64) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if notification.IsNotFound(err) {
			s.RemoveSchedule(userID)
			return nil
		}
		return fmt.Errorf("refresh schedule for user %d: %w", userID, err)
	}
	if !user.IsActive {
		s.RemoveSchedule(userID)
		return nil
	}

	settings, err := s.pipeline.EffectiveSettings(ctx, userID)
	if err != nil {
		return fmt.Errorf("refresh schedule for user %d: %w", userID, err)
	}
	if !settings.SendToEmail {
		s.RemoveSchedule(userID)
		return nil
	}

	return s.InstallOrReplace(model.UserSchedule{
		UserID:               userID,
		Email:                user.Email,
		NotificationTime:     settings.NotificationTime,
		DaysBeforeExpiration: settings.DaysBeforeExpiration,
		IncludeInactive:      settings.IncludeInactive,
		EmailAddress:         settings.EmailAddress,
	})
}

// Start installs a trigger for every enabled user and starts the cron loop.
// Jobs are canceled when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	users, err := s.users.ListUsersWithEmailNotificationsEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load users with notifications enabled: %w", err)
	}

	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	installed := 0
	for _, u := range users {
		if err := s.InstallOrReplace(u); err != nil {
			s.logger.Error("Failed to install notification schedule",
				zap.Int64("user_id", u.UserID),
				zap.Error(err),
			)
			continue
		}
		installed++
	}

	if s.cfg.AdminDigest {
		spec, err := DailySpec(s.cfg.DefaultTime)
		if err != nil {
			return err
		}
		id, err := s.cron.AddFunc(spec, func() { s.runAdmin() })
		if err != nil {
			return fmt.Errorf("failed to add admin digest entry: %w", err)
		}
		s.mu.Lock()
		s.adminEntry = id
		s.mu.Unlock()
	}

	s.cron.Start()
	s.logger.Info("Notification scheduler started",
		zap.Int("users", installed),
		zap.Bool("admin_digest", s.cfg.AdminDigest),
		zap.String("timezone", s.cfg.Location.String()),
	)

	if s.cfg.RunOnStartup {
		go s.runAdmin()
	}
	return nil
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Notification scheduler stopped")
}

// Status reports the user's trigger and its next fire time.
func (s *Scheduler) Status(userID int64) Status {
	st := Status{UserID: userID, Timezone: s.cfg.Location.String()}
	e, ok := s.registry.Get(userID)
	if !ok {
		return st
	}
	st.Scheduled = true
	st.NotificationTime = e.NotificationTime
	if next, ok := s.nextRun(e.ID); ok {
		st.NextRun = &next
	}
	return st
}

func (s *Scheduler) nextRun(id cron.EntryID) (time.Time, bool) {
	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return time.Time{}, false
	}
	if !entry.Next.IsZero() {
		return entry.Next, true
	}
	return entry.Schedule.Next(time.Now().In(s.cfg.Location)), true
}

// RunAdminNow runs the admin sweep synchronously.
func (s *Scheduler) RunAdminNow(ctx context.Context) (*notification.RunReport, error) {
	return s.pipeline.RunAdmin(trace.EnsureContext(ctx))
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()

	ctx := trace.WithContext(base, trace.GenerateTraceID())
	if s.cfg.JobTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.JobTimeout)
	}
	return context.WithCancel(ctx)
}

// runUser is the cron job for one user. It never panics and never removes
// the user's entry.
func (s *Scheduler) runUser(userID int64) {
	ctx, cancel := s.jobContext()
	defer cancel()

	log := s.logger.With(zap.Int64("user_id", userID), zap.String("trace_id", trace.FromContext(ctx)))
	defer func() {
		if r := recover(); r != nil {
			log.Error("Notification job panicked", zap.Any("panic", r))
		}
	}()

	slot := time.Now().In(s.cfg.Location).Format("2006-01-02T15:04")
	if !s.deduper.AcquireOnce(ctx, "scheduler.user", fmt.Sprintf("%d:%s", userID, slot)) {
		return
	}

	report, err := s.pipeline.RunForUser(ctx, userID)
	if err != nil {
		if notification.IsNotFound(err) {
			log.Warn("Scheduled user no longer exists, removing schedule")
			s.RemoveSchedule(userID)
			return
		}
		log.Error("Notification job failed", zap.Error(err))
		return
	}
	if report.Disabled {
		log.Info("Notifications disabled for user, removing schedule")
		s.RemoveSchedule(userID)
	}
}

func (s *Scheduler) runAdmin() {
	ctx, cancel := s.jobContext()
	defer cancel()

	log := s.logger.With(zap.String("scope", notification.ScopeAdmin), zap.String("trace_id", trace.FromContext(ctx)))
	defer func() {
		if r := recover(); r != nil {
			log.Error("Admin digest job panicked", zap.Any("panic", r))
		}
	}()

	slot := time.Now().In(s.cfg.Location).Format("2006-01-02T15:04")
	if !s.deduper.AcquireOnce(ctx, "scheduler.admin", slot) {
		return
	}
	if _, err := s.pipeline.RunAdmin(ctx); err != nil {
		log.Error("Admin digest job failed", zap.Error(err))
	}
}

// Registry exposes the scheduler's registry.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

var _ UserSource = (*repository.UserRepository)(nil)
