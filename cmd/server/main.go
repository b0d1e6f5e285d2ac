package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"                   // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // Echo's built-in middleware
	"golang.org/x/sync/errgroup"                    // runs the server and the background workers together

	"github.com/iliyamo/limited-seats/internal/config"     // Internal config loader
	"github.com/iliyamo/limited-seats/internal/database"   // MySQL pool and schema
	"github.com/iliyamo/limited-seats/internal/gateway"    // hosted payment client
	"github.com/iliyamo/limited-seats/internal/handler"    // HTTP handlers
	"github.com/iliyamo/limited-seats/internal/logger"     // zap logger
	"github.com/iliyamo/limited-seats/internal/metrics"    // Prometheus collectors
	"github.com/iliyamo/limited-seats/internal/middleware" // JWT, rate limit, cache, request log
	"github.com/iliyamo/limited-seats/internal/pricing"    // tier prices
	"github.com/iliyamo/limited-seats/internal/queue"      // RabbitMQ events
	"github.com/iliyamo/limited-seats/internal/repository" // MySQL stores
	"github.com/iliyamo/limited-seats/internal/router"     // Internal router setup
	"github.com/iliyamo/limited-seats/internal/service"    // business logic
)

func main() {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		logger.New(logger.ZapConfig{Level: "info"}).Fatalf(context.Background(), "config: %v", err)
	}
	l := logger.New(logger.ZapConfig{Level: cfg.Log.Level, Mode: cfg.Log.Mode, Encoding: cfg.Log.Encoding})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		l.Fatalf(ctx, "database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		l.Fatalf(ctx, "migrate: %v", err)
	}

	// Redis is optional: cache and rate limiter turn into pass-throughs
	// without it.
	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		l.Warnf(ctx, "redis disabled: %v", err)
	} else {
		defer rdb.Close()
	}

	var events service.EventPublisher = queue.NopPublisher{}
	var pub *queue.Publisher
	if cfg.RabbitMQURL != "" {
		pub = queue.NewPublisher(cfg.RabbitMQURL, l) // drained by pub.Run below
		events = pub
	}

	tx := repository.NewTxManager(db)
	deps := service.Deps{
		Tx:           tx,
		Ledger:       repository.NewLedgerRepo(db, tx),
		Reservations: repository.NewReservationRepo(db),
		Promos:       repository.NewPromoRepo(db),
		Gifts:        repository.NewGiftRepo(db),
		Events:       events,
		Clock:        service.SystemClock,
		Log:          l,
	}

	reservations := service.NewReservationService(deps, pricing.NewPolicy(cfg.Tiers()...), service.ReservationConfig{
		HoldTTL:      cfg.Reservation.HoldTTL,
		DepositTTL:   cfg.Reservation.DepositTTL,
		DepositCents: cfg.Reservation.DepositCents,
	})
	gw := gateway.NewHostedClient(gateway.Config{
		URL:        cfg.Gateway.URL,
		MerchantID: cfg.Gateway.MerchantID,
		Secret:     cfg.Gateway.Secret,
		Timeout:    cfg.Gateway.Timeout,
		ReturnURL:  cfg.Gateway.ReturnURL,
		CancelURL:  cfg.Gateway.CancelURL,
		NotifyURL:  cfg.Gateway.NotifyURL,
	})
	payments := service.NewPaymentOrchestrator(deps, gw, service.PaymentConfig{
		DepositCents: cfg.Reservation.DepositCents,
		Timeout:      cfg.Gateway.Timeout,
	})
	promos := service.NewPromoRegistry(deps)
	gifts := service.NewGiftResolver(deps)
	sweeper := service.NewSweeper(deps, service.SweeperConfig{Interval: cfg.Sweep.Interval, Batch: cfg.Sweep.Batch})

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(middleware.RequestLog(l))
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, db, metrics.Handler()) // Register application routes
	router.RegisterPublic(e,
		handler.NewSeatHandler(reservations, payments, l),
		cfg.AuthJWTSecret,
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, l),
	)
	router.RegisterBuyer(e,
		handler.NewSeatHandler(reservations, payments, l),
		handler.NewRedeemHandler(promos, gifts, l),
		cfg.AuthJWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, l),
	)
	router.RegisterWebhook(e, handler.NewWebhookHandler(payments, cfg.Gateway.Secret, l))
	router.RegisterAdmin(e, handler.NewAdminHandler(reservations, promos, sweeper, l), cfg.AuthJWTSecret)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		l.Infof(gctx, "listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return sweeper.Stop()
	})
	if pub != nil {
		g.Go(func() error { return pub.Run(gctx) })
		g.Go(func() error {
			return queue.NewAuditConsumer(cfg.RabbitMQURL, os.Getenv("AUDIT_LOG_PATH"), l).Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Errorf(context.Background(), "server stopped: %v", err)
		os.Exit(1)
	}
	l.Info(context.Background(), "server stopped")
}
