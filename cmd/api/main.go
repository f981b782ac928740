package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/audit"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/auth"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/calls"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/config"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/httpapi"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/notify"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/phoneconfig"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/reporting"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/templates"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/users"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/webhook"
	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	} else {
		log.Warn("redis disabled; email dedupe and send cap are off")
	}

	mailer, err := newDispatcher(rootCtx, cfg.Email, rdb)
	if err != nil {
		log.Error("email transport init failed", "err", err)
		os.Exit(1)
	}

	templateSvc := templates.NewService(templates.NewPostgresRepo(db))
	phoneSvc := phoneconfig.NewService(phoneconfig.NewPostgresRepo(db))
	userSvc := users.NewService(users.NewPostgresRepo(db))

	reconciler := calls.NewService(calls.NewPostgresStore(db), calls.Options{
		CorrelationWindow: cfg.Webhook.CorrelationWindow,
		Templates:         templateSvc,
		Mailer:            mailer,
		Directory:         phoneSvc,
	})

	if err := userSvc.EnsureBootstrapAdmin(logger.With(rootCtx, log), cfg.Admin.Username, cfg.Admin.Password); err != nil {
		log.Error("bootstrap admin failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.NoMethod(webhook.MethodNotAllowed)
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		Webhook: webhook.Handlers{Reconciler: reconciler},
		Secret: webhook.SecretPolicy{
			Secret:        cfg.Webhook.SharedSecret,
			AllowUnsigned: cfg.WebhookAllowsUnsigned(),
		},
		Admin: httpapi.Handlers{
			Auth:        authManager,
			Users:       userSvc,
			Reporting:   reporting.NewService(reporting.NewPostgresRepo(db)),
			Templates:   templateSvc,
			PhoneConfig: phoneSvc,
			Audit:       audit.NewService(audit.NewPostgresRepo(db)),
		},
		Ready: func(ctx context.Context) error {
			return utils.HealthCheck(ctx, db, 2*time.Second)
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

func newDispatcher(ctx context.Context, cfg config.EmailConfig, rdb *redis.Client) (*notify.Dispatcher, error) {
	var transport notify.Transport
	switch cfg.Transport {
	case config.EmailTransportSES:
		t, err := notify.NewSESTransport(ctx, notify.SESConfig{
			Region:    cfg.AWSRegion,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
		})
		if err != nil {
			return nil, err
		}
		transport = t
	default:
		transport = notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			UseTLS:   cfg.SMTPUseTLS,
		})
	}

	var guard *notify.Guard
	if rdb != nil {
		guard = notify.NewGuard(rdb, notify.GuardOptions{
			DedupeWindow:  cfg.DedupeWindow,
			MaxConcurrent: cfg.MaxConcurrent,
			SlotTTL:       2 * cfg.SendTimeout,
		})
	}

	return notify.NewDispatcher(transport, notify.Options{
		From:     cfg.FromAddress,
		StubMode: cfg.StubMode,
		Timeout:  cfg.SendTimeout,
		Guard:    guard,
	}), nil
}
