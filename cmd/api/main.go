package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tastykitchen/server/internal/auth"
	"github.com/tastykitchen/server/internal/config"
	"github.com/tastykitchen/server/internal/db"
	"github.com/tastykitchen/server/internal/events"
	httphandler "github.com/tastykitchen/server/internal/http"
	"github.com/tastykitchen/server/internal/http/handlers"
	"github.com/tastykitchen/server/internal/logging"
	"github.com/tastykitchen/server/internal/mailer"
	"github.com/tastykitchen/server/internal/middleware"
)

const (
	requestOTPWindow = 10 * time.Minute
	requestOTPMax    = 10
	verifyWindow     = 10 * time.Minute
	verifyMax        = 20
)

func main() {
	// Load .env from CWD or server/ so it works from repo root or server/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.Production)
	ctx := context.Background()

	store := db.OpenAccounts(ctx, cfg, logger)

	passwords, err := auth.NewPasswords(cfg.PasswordScheme)
	if err != nil {
		logger.Error("invalid password scheme", "error", err)
		os.Exit(1)
	}
	logger.Info("password hashing configured", "scheme", passwords.Scheme())
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	mailSender, devOutbox := newMailer(cfg, logger)
	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	var identity auth.IdentityProvider = auth.UnavailableIdentityProvider{}
	if cfg.GoogleClientID != "" {
		identity = auth.NewGoogleIdentityProvider(cfg.GoogleClientID)
	} else {
		logger.Warn("GOOGLE_CLIENT_ID not set; google sign-in disabled")
	}

	authService := auth.NewAuthService(store.Accounts, passwords, jwtService,
		auth.WithMailer(mailSender),
		auth.WithPhoneSender(auth.LogPhoneSender{Logger: logger}),
		auth.WithIdentityProvider(identity),
		auth.WithPublisher(publisher),
		auth.WithLogger(logger),
		auth.WithProduction(cfg.Production),
	)

	requestLimiter, verifyLimiter, closeLimiters := newLimiters(cfg, logger)
	defer closeLimiters()

	authHandler := handlers.NewAuthHandler(authService, logger)

	router := httphandler.NewRouter(httphandler.RouterDeps{
		AuthHandler:    authHandler,
		AuthService:    authService,
		JWTService:     jwtService,
		StoreKind:      store.Accounts.Kind(),
		RequestLimiter: requestLimiter,
		VerifyLimiter:  verifyLimiter,
		DevOutbox:      devOutbox,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", store.Accounts.Kind())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Warn("failed to close account store", "error", err)
	}

	logger.Info("server exited")
}

// newMailer picks MailerSend, then SMTP, then the dev outbox. The dev outbox is
// returned separately so its preview route can be mounted outside production.
func newMailer(cfg *config.Config, logger *slog.Logger) (mailer.Mailer, *mailer.DevMailer) {
	from := mailAddress(cfg.SMTPFrom)
	switch {
	case cfg.MailerSendAPIKey != "":
		logger.Info("using MailerSend for email")
		return mailer.NewMailerSend(cfg.MailerSendAPIKey, cfg.MailFromName, from), nil
	case cfg.SMTPHost != "":
		logger.Info("using SMTP for email", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
		return mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS), nil
	}

	if cfg.Production {
		logger.Warn("no mail transport configured; OTP emails are only logged")
	}
	dev := mailer.NewDevMailer(cfg.PublicBaseURL, logger)
	if cfg.Production {
		return dev, nil
	}
	return dev, dev
}

func newPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if cfg.NATSURL == "" {
		return events.NopPublisher{}
	}
	p, err := events.NewNATSPublisher(cfg.NATSURL, logger)
	if err != nil {
		logger.Warn("NATS unavailable; account events disabled", "error", err)
		return events.NopPublisher{}
	}
	return p
}

func newLimiters(cfg *config.Config, logger *slog.Logger) (middleware.Limiter, middleware.Limiter, func()) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err == nil {
			client := redis.NewClient(opts)
			logger.Info("using redis rate limiter")
			return middleware.NewRedisLimiter(client, "ratelimit:otp", requestOTPWindow, requestOTPMax, logger),
				middleware.NewRedisLimiter(client, "ratelimit:verify", verifyWindow, verifyMax, logger),
				func() { _ = client.Close() }
		}
		logger.Warn("invalid REDIS_URL; using in-memory rate limiter", "error", err)
	}

	requestLimiter := middleware.NewRateLimiter(requestOTPWindow, requestOTPMax)
	verifyLimiter := middleware.NewRateLimiter(verifyWindow, verifyMax)
	return requestLimiter, verifyLimiter, func() {
		requestLimiter.Stop()
		verifyLimiter.Stop()
	}
}

// mailAddress extracts the bare address from a "Name <addr>" sender
func mailAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return from
}
