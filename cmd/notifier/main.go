package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "licensewatch/contracts/mq"
	"licensewatch/internal/config"
	"licensewatch/internal/httpserver"
	"licensewatch/internal/mailer"
	"licensewatch/internal/mqhandler"
	"licensewatch/internal/repository"
	"licensewatch/internal/scheduler"
	"licensewatch/internal/service/notification"
	"licensewatch/pkg/circuitbreaker"
	"licensewatch/pkg/db"
	"licensewatch/pkg/logger"
	"licensewatch/pkg/mq"
	"licensewatch/pkg/otel"
	"licensewatch/pkg/outbox"
	"licensewatch/pkg/redis"
	"licensewatch/pkg/util"
)

const settingsQueue = "licensewatch.settings.q"

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting licensewatch notifier...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("smtp_host", cfg.SMTP.Host),
		zap.String("timezone", cfg.Notification.Timezone),
		zap.Bool("mq_enabled", cfg.MQ.Enabled),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := otel.Init(cfg.Otel, log)
	if err != nil {
		log.Warn("Failed to init tracing, continuing without it", zap.Error(err))
		shutdownTracing = func() {}
	}
	defer shutdownTracing()

	// SMTP: refuse to start without credentials
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig())
	transport, err := mailer.NewSMTPTransport(cfg.SMTP, breaker, log)
	if err != nil {
		log.Fatal("SMTP transport not configured", zap.Error(err))
	}

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis (optional)
	rdb, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, scheduler dedup disabled", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}
	deduper := util.NewDeduper(rdb, cfg.DedupTTL(), log)

	// Repositories
	userRepo := repository.NewUserRepository(dbConn, cfg.Notification.DefaultDays, cfg.Notification.DefaultTime)
	settingsRepo := repository.NewSettingsRepository(dbConn)
	licenseRepo := repository.NewLicenseRepository(dbConn)

	// MQ (optional): digest events go through the outbox
	var events notification.EventRecorder
	if cfg.MQ.Enabled {
		publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()

		outboxRepo := outbox.NewRepository(dbConn)
		events = notification.NewOutboxRecorder(outboxRepo)

		dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
			WithInterval(cfg.MQ.OutboxInterval()).
			WithBatchSize(cfg.MQ.OutboxBatchSize).
			WithMaxRetries(cfg.MQ.OutboxMaxRetries)
		go dispatcher.Start(ctx)
	}

	// Pipeline
	selector := notification.NewSelector(licenseRepo, cfg.Location(), cfg.Notification.SkipAlreadyNotified)
	sender := notification.NewSender(mailer.NewComposer(), transport, licenseRepo, events, log)
	service := notification.NewService(selector, userRepo, settingsRepo, sender, notification.Config{
		AdminEmail:  cfg.Notification.AdminEmail,
		DefaultDays: cfg.Notification.DefaultDays,
		DefaultTime: cfg.Notification.DefaultTime,
	}, log)

	// Scheduler
	sched := scheduler.New(service, userRepo, scheduler.NewRegistry(), deduper, scheduler.Config{
		Location:     cfg.Location(),
		DefaultTime:  cfg.Notification.DefaultTime,
		AdminDigest:  cfg.Notification.AdminDigestEnabled,
		RunOnStartup: cfg.Notification.RunOnStartup,
		JobTimeout:   cfg.JobTimeout(),
	}, log)
	if err := sched.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Settings changes made by the CRUD application
	if cfg.MQ.Enabled {
		consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.Exchange, settingsQueue, mqcontracts.RoutingKeySettingsUpdated, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.Error(err))
		}
		defer consumer.Close()

		consumer.SetHandler(mqhandler.NewSettingsUpdatedHandler(sched, log).Handle)
		go func() {
			if err := consumer.StartConsuming(ctx); err != nil {
				log.Error("Settings consumer stopped", zap.Error(err))
			}
		}()
	}

	// HTTP
	handler := httpserver.NewNotificationHandler(service, settingsRepo, userRepo, sched, selector, cfg.Notification.DefaultDays, log)
	router := httpserver.NewRouter(handler, cfg.JWT.Secret, dbConn, log)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("licensewatch notifier is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down licensewatch notifier gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	cancel()
	sched.Stop()

	log.Info("licensewatch notifier shutdown complete")
}
