package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	config "github.com/anjiri1684/mentor_payouts/configs"
	"github.com/anjiri1684/mentor_payouts/database"
	"github.com/anjiri1684/mentor_payouts/events"
	"github.com/anjiri1684/mentor_payouts/handlers"
	"github.com/anjiri1684/mentor_payouts/jobs"
	"github.com/anjiri1684/mentor_payouts/logging"
	"github.com/anjiri1684/mentor_payouts/notifications"
	"github.com/anjiri1684/mentor_payouts/payments"
	"github.com/anjiri1684/mentor_payouts/services"
	"github.com/anjiri1684/mentor_payouts/websocket"
)

// store is everything the application needs from persistence. Both
// database.GormStore and database.MemoryStore satisfy it.
type store interface {
	handlers.Store
	services.LedgerStore
	services.AuditEventStore
	database.UserStore
	jobs.SessionSource
}

// app holds the wired components shared by every command.
type app struct {
	cfg       config.AppConfig
	logger    logging.Logger
	store     store
	hub       *websocket.Hub
	scheduler *jobs.SettlementScheduler
	handler   *handlers.Handler
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openStore(cfg config.AppConfig, logger logging.Logger) (store, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "memory":
		logger.Warn("Using in-memory store, data is lost on restart")
		return database.NewMemoryStore(), nil
	case "postgres", "":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
		db, err := database.ConnectDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		return database.NewGormStore(db), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func newTransfer(cfg config.AppConfig, logger logging.Logger) (payments.BankTransfer, error) {
	var provider payments.BankTransfer
	switch strings.ToLower(cfg.TransferProvider) {
	case "paypal":
		if cfg.PayPalClientID == "" || cfg.PayPalClientSecret == "" {
			return nil, fmt.Errorf("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required for the paypal provider")
		}
		provider = payments.NewPayPalPayouts(cfg.PayPalAPIBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret, &http.Client{})
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required for the stripe provider")
		}
		provider = payments.NewStripeTransfer(cfg.StripeSecretKey)
	case "simulated", "":
		logger.Warn("Using simulated bank transfers")
		provider = &payments.SimulatedTransfer{}
	default:
		return nil, fmt.Errorf("unknown TRANSFER_PROVIDER %q", cfg.TransferProvider)
	}
	return payments.NewResilientTransfer(provider, payments.ResilientConfig{
		Timeout: cfg.TransferTimeout,
		Logger:  logger,
	}), nil
}

func newMailer(cfg config.AppConfig, logger logging.Logger) notifications.Mailer {
	brevo := notifications.NewBrevoMailer(notifications.BrevoConfig{
		APIKey:      cfg.BrevoAPIKey,
		SenderEmail: cfg.EmailSender,
		SenderName:  cfg.EmailSenderName,
		Logger:      logger,
	})
	if brevo == nil {
		logger.Warn("BREVO_API_KEY or EMAIL_SENDER not set, emails will only be logged")
		return &notifications.LogMailer{Logger: logger}
	}
	return brevo
}

func newLocker(ctx context.Context, cfg config.AppConfig, logger logging.Logger) (database.MentorLocker, func(), error) {
	if cfg.RedisURL == "" {
		return database.NewLocalMentorLocker(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	logger.Info("Using redis mentor locks")
	return database.NewRedisMentorLocker(client, "payouts"), func() { _ = client.Close() }, nil
}

func buildApp(ctx context.Context, cfg config.AppConfig, logger logging.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	st, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = st

	if err := database.SeedAdmin(ctx, st, cfg.AdminFullName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return nil, err
	}

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLocker)

	a.hub = websocket.NewHub(logger)
	go a.hub.Run()
	a.closers = append(a.closers, a.hub.Stop)

	audit := services.NewAuditService(logger, cfg.StoreTimeout, services.NewStoreAuditSink(st), a.hub)
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := events.NewKafkaAuditSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return nil, err
		}
		audit.AddSink(sink)
		a.closers = append(a.closers, sink.Close)
	}

	ledger := services.NewPayoutLedger(services.LedgerConfig{
		Store:        st,
		Locker:       locker,
		Machine:      services.NewStatusMachine(cfg.ReviewThreshold),
		Currency:     cfg.Currency,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger,
	})

	transfer, err := newTransfer(cfg, logger)
	if err != nil {
		return nil, err
	}

	settlement := services.NewSettlementService(services.SettlementConfig{
		Ledger:       ledger,
		Transfer:     transfer,
		Mailer:       newMailer(cfg, logger),
		Audit:        audit,
		Mentors:      st,
		EmailTimeout: cfg.EmailTimeout,
		Logger:       logger,
	})

	var uploader services.DocumentUploader
	cld, err := services.NewCloudinaryUploader(cfg.CloudinaryURL, "payout_receipts")
	if err != nil {
		return nil, fmt.Errorf("invalid CLOUDINARY_URL: %w", err)
	}
	if cld != nil {
		uploader = cld
	}
	documents := services.NewReceiptDocumentService(st, services.ChromePDFRenderer{}, uploader, audit, logger)

	a.scheduler = jobs.NewSettlementScheduler(jobs.SchedulerConfig{
		Schedule:    cfg.SettlementSchedule,
		Window:      cfg.SettlementWindow,
		Concurrency: cfg.SettlementConcurrency,
		Sessions:    st,
		Ledger:      ledger,
		Settlement:  settlement,
		Audit:       audit,
		Logger:      logger,
	})

	a.handler = &handlers.Handler{
		Store:      st,
		Ledger:     ledger,
		Settlement: settlement,
		Audit:      audit,
		Documents:  documents,
		Automation: a.scheduler,
		Hub:        a.hub,
		JWTSecret:  cfg.JWTSecret,
		Logger:     logger,
	}

	ok = true
	return a, nil
}
