package main

import (
	"context"
	"database/sql"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/Dan9191/advance-service/internal/events"
	"github.com/Dan9191/advance-service/internal/integrations/mpesa"
	"github.com/Dan9191/advance-service/internal/notification"
	"github.com/Dan9191/advance-service/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// startNotifications subscribes the dispatcher to bus. SMS and email are optional: when a channel
// cannot be reached the dispatcher still stores in-app notifications. The returned func flushes
// pending deliveries and closes connections.
func startNotifications(cfg *config.Config, db *sql.DB, bus *events.Bus, logger *logrus.Logger) func() {
	var sms notification.SMSSender
	queue, err := notification.ConnectSMSQueue(cfg.NATSURL, cfg.SMSSubject)
	if err != nil {
		logger.Warnf("SMS delivery disabled: %v", err)
	} else {
		sms = queue
	}

	var mail notification.EmailQueue
	var sender *notification.EmailSender
	if cfg.SMTPHost != "" {
		sender = notification.NewEmailSender(cfg, logger)
		mail = sender
	} else {
		logger.Warn("Email delivery disabled: SMTP_HOST is empty")
	}

	dispatcher := notification.NewDispatcher(
		repository.NewNotificationRepository(db),
		repository.NewUserRepository(db),
		sms,
		mail,
		logger,
	)
	dispatcher.Register(bus)

	return func() {
		if sender != nil {
			sender.Wait()
		}
		if queue != nil {
			queue.Close()
		}
	}
}

// newTokenStore shares gateway tokens through Redis when it is configured
func newTokenStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (mpesa.TokenStore, func()) {
	if cfg.Redis.Addr == "" {
		return mpesa.NewMemoryTokenStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnf("Redis unavailable, caching gateway token in process: %v", err)
		client.Close()
		return mpesa.NewMemoryTokenStore(), func() {}
	}
	return mpesa.NewRedisTokenStore(client, cfg.Mpesa.ShortCode), func() { client.Close() }
}
