// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"umuhanda-backend/internal/config"
	"umuhanda-backend/internal/domain/ports/adapter"
	"umuhanda-backend/internal/infra/adapters/notify"
	payAdapters "umuhanda-backend/internal/infra/adapters/payment"
	"umuhanda-backend/internal/infra/api"
	pg "umuhanda-backend/internal/infra/db/postgres"
	"umuhanda-backend/internal/infra/i18n"
	"umuhanda-backend/internal/infra/logging"
	"umuhanda-backend/internal/infra/metrics"
	red "umuhanda-backend/internal/infra/redis"
	"umuhanda-backend/internal/infra/sched"
	"umuhanda-backend/internal/infra/worker"
	"umuhanda-backend/internal/usecase"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, log-only notifications when unconfigured)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("service stopped with error")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	resetCodes := red.NewResetCodeStore(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepo(pool)
	subRepo := pg.NewSubscriptionRepoCacheDecorator(pg.NewSubscriptionRepo(pool), redisClient, logger)
	grantRepo := pg.NewGrantRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)

	// ---- Payment gateway ----
	irembo := cfg.Payment.IremboPay
	gateway, err := payAdapters.NewIremboPayGateway(payAdapters.IremboPayOptions{
		BaseURL:        irembo.BaseURL,
		AuthURL:        irembo.AuthURL,
		ClientID:       irembo.ClientID,
		SecretKey:      irembo.SecretKey,
		PaymentAccount: irembo.PaymentAccount,
		Timeout:        cfg.Payment.Timeout,
	})
	if err != nil {
		return fmt.Errorf("irembopay gateway: %w", err)
	}
	if irembo.WebhookSecret == "" {
		logger.Warn().Msg("dev mode without payment.irembopay.webhook_secret; callback signatures are NOT verified")
	}

	// ---- Notifications ----
	emailSender, smsSender, err := buildSenders(cfg.Notification, logger)
	if err != nil {
		return fmt.Errorf("notifications: %w", err)
	}
	bundle, err := i18n.NewBundle(i18n.LocalesFS, "rw", "en", "fr", "rw")
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}
	workers := worker.NewPool(cfg.Notification.Workers, logger)
	// Not tied to ctx: Stop drains queued notifications on shutdown.
	workers.Start(context.Background())
	defer workers.Stop()

	// ---- Use cases ----
	auth := api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.SecureCookie, cfg.Auth.TokenTTL).WithAdmins(cfg.Auth.AdminEmails)
	notifUC := usecase.NewNotificationUseCase(emailSender, smsSender, workers, bundle, cfg.Notification.RetryDelay, logger)
	userUC := usecase.NewUserUseCase(userRepo, grantRepo, tm, auth, notifUC, logger)
	resetUC := usecase.NewPasswordResetUseCase(userRepo, resetCodes, rateLimiter, notifUC, cfg.Auth.ResetCodeTTL, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, grantRepo, userRepo, tm, logger)
	payUC := usecase.NewPaymentUseCase(userRepo, subRepo, grantRepo, payRepo, tm, gateway, notifUC, usecase.PaymentOptions{
		Currency:      cfg.Payment.Currency,
		ProductCode:   irembo.ProductCode,
		GazettePrice:  cfg.Payment.GazettePrice,
		InvoiceExpiry: cfg.Payment.InvoiceExpiry,
	}, logger)

	// ---- Schedulers ----
	scheduler := sched.NewScheduler(locker, logger)
	if err := scheduler.Add(cfg.Scheduler.ReconcileCron, sched.NewPaymentReconciler(payUC, cfg.Scheduler.ReconcileAfter, logger), 2*time.Minute); err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}
	if err := scheduler.Add(cfg.Scheduler.ExpiryCron, sched.NewExpiryWorker(subUC, logger), 5*time.Minute); err != nil {
		return fmt.Errorf("schedule expiry: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// ---- HTTP API ----
	srv := api.NewServer(api.Deps{
		Users:         userUC,
		Resets:        resetUC,
		Subscriptions: subUC,
		Payments:      payUC,
		Auth:          auth,
		Limiter:       rateLimiter,
		WebhookSecret: irembo.WebhookSecret,
	}, api.Options{
		AllowedOrigin:  cfg.Server.AllowedOrigin,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger)

	// Blocks until SIGINT/SIGTERM.
	return srv.ListenAndServe(ctx, cfg.Server.Port)
}

// buildSenders picks real SMTP/SMS transports when configured and falls back
// to log-only senders otherwise.
func buildSenders(cfg config.NotificationConfig, logger *zerolog.Logger) (adapter.EmailSender, adapter.SMSSender, error) {
	logSender := notify.NewLogSender(logger)

	var email adapter.EmailSender = logSender
	if cfg.SMTP.Host != "" {
		s, err := notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
		if err != nil {
			return nil, nil, err
		}
		email = s
	} else {
		logger.Warn().Msg("notification.smtp.host not set; e-mails are only logged")
	}

	var sms adapter.SMSSender = logSender.SMS()
	if cfg.SMS.BaseURL != "" {
		s, err := notify.NewHTTPSMSSender(cfg.SMS.BaseURL, cfg.SMS.APIKey, cfg.SMS.Sender)
		if err != nil {
			return nil, nil, err
		}
		sms = s
	} else {
		logger.Warn().Msg("notification.sms.base_url not set; SMS are only logged")
	}
	return email, sms, nil
}
