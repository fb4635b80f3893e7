package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/parcel-bookings/internal/http/router"
	"github.com/diagnosis/parcel-bookings/internal/migrations"
	"github.com/diagnosis/parcel-bookings/internal/platform/cache"
	"github.com/diagnosis/parcel-bookings/internal/platform/mailer"
	"github.com/diagnosis/parcel-bookings/internal/platform/payments"
	"github.com/diagnosis/parcel-bookings/internal/repo/postgres"
	"github.com/diagnosis/parcel-bookings/internal/service"
	"github.com/diagnosis/parcel-bookings/pkg/auth"
	"github.com/diagnosis/parcel-bookings/pkg/config"
	"github.com/diagnosis/parcel-bookings/pkg/database"
	"github.com/diagnosis/parcel-bookings/pkg/events"
	"github.com/diagnosis/parcel-bookings/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		logger.Error("parcel-bookings exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Database.MigrateOnStartup {
		if err := database.Migrate(ctx, pool, migrations.FS); err != nil {
			return err
		}
		logger.Info("Database migrations applied")
	}

	// Connect to event bus
	var pub events.Publisher = events.NopPublisher{}
	if cfg.NATS.Enabled {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			return err
		}
		pub = bus
	}
	defer pub.Close()

	sender, err := mailer.NewSender(cfg.Email)
	if err != nil {
		return err
	}
	notifier := mailer.NewNotifier(sender, mailer.Links{
		APIURL:          cfg.App.APIURL,
		FrontendURL:     cfg.App.FrontendURL,
		ContactInbox:    cfg.Email.ContactInbox,
		VerificationTTL: cfg.Auth.VerificationTTL,
		ResetTTL:        cfg.Auth.ResetTTL,
	})

	var pay payments.Provider = payments.Nop{}
	if cfg.PaymentsEnabled() {
		pay = payments.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.Currency, nil)
	}

	tokens := auth.NewTokenManager(
		auth.Keys{
			Session:      []byte(cfg.Auth.SessionSecret),
			Verification: []byte(cfg.Auth.VerificationSecret),
			Reset:        []byte(cfg.Auth.ResetSecret),
		},
		auth.TTLs{
			Session:      cfg.Auth.SessionTTL,
			Verification: cfg.Auth.VerificationTTL,
			Reset:        cfg.Auth.ResetTTL,
		},
	)

	proxies, err := cfg.Server.ProxyPrefixes()
	if err != nil {
		return err
	}

	store := postgres.NewStore(pool)
	deps := router.Deps{
		Accounts:       service.NewAccountService(store, tokens, notifier, pub),
		Reservations:   service.NewReservationService(store, pay, pub),
		Tokens:         tokens,
		FrontendURL:    cfg.App.FrontendURL,
		AllowedOrigins: []string{cfg.App.FrontendURL},
		TrustedProxies: proxies,
	}

	// Redis only backs rate limits and idempotency; the API still serves
	// without it.
	if rdb, err := cache.NewClient(ctx, cfg.Redis.URL); err != nil {
		logger.Warn("Redis unavailable, rate limiting and idempotency disabled", "error", err)
	} else {
		defer rdb.Close()
		deps.Limiter = cache.NewRateLimiter(rdb, "")
		deps.Idempotency = cache.NewIdempotencyStore(rdb)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting parcel-bookings API", "port", cfg.Server.Port, "payments", cfg.PaymentsEnabled(), "email", cfg.Email.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down parcel-bookings API...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
