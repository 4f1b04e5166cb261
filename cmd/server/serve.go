package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sudo-init-do/agrihub/internal/alerts"
	"github.com/sudo-init-do/agrihub/internal/config"
	"github.com/sudo-init-do/agrihub/internal/db"
	"github.com/sudo-init-do/agrihub/internal/escrow"
	"github.com/sudo-init-do/agrihub/internal/logger"
	"github.com/sudo-init-do/agrihub/internal/marketplace"
	"github.com/sudo-init-do/agrihub/internal/messaging"
	"github.com/sudo-init-do/agrihub/internal/metrics"
	"github.com/sudo-init-do/agrihub/internal/middleware"
	"github.com/sudo-init-do/agrihub/internal/negotiation"
	"github.com/sudo-init-do/agrihub/internal/store"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

func init() {
	RootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the negotiation, payment and notification API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(ctx, conf)
	},
}

// backend holds what the configured store backend opened.
type backend struct {
	records store.Store
	items   workitem.Source
	inbox   alerts.Inbox
	pool    *pgxpool.Pool
	closers []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend opens the record store. Work items and notifications live in
// Postgres for both the postgres and redis backends.
func openBackend(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*backend, error) {
	b := &backend{}
	if cfg.Store.Backend == config.StoreMemory {
		var items []workitem.WorkItem
		if cfg.Store.SeedFile != "" {
			var err error
			if items, err = workitem.LoadSeedFile(cfg.Store.SeedFile); err != nil {
				return nil, err
			}
		}
		log.WithField("items", len(items)).Warn("Using in-memory store, records are lost on restart")
		b.records = store.NewMemory()
		b.items = workitem.NewMemory(items...)
		b.inbox = alerts.NewMemoryInbox()
		return b, nil
	}

	pool, err := db.Init(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	b.pool = pool
	b.closers = append(b.closers, pool.Close)
	b.items = workitem.NewPostgres(pool)
	b.inbox = alerts.NewPostgresInbox(pool)

	switch cfg.Store.Backend {
	case config.StorePostgres:
		b.records = store.NewPostgres(pool)
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		b.records = store.NewRedis(client)
	}
	return b, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.NewSublogger("server")
	if cfg.JWTSecret == "" {
		return errors.New("JWTSecret is not configured, set AGRIHUB_JWT_SECRET")
	}

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	// Notifications go through asynq when enabled, straight to the inbox otherwise
	var notifier alerts.Notifier = alerts.NewInline(b.inbox)
	if cfg.Alerts.Enabled {
		addr := cfg.Alerts.RedisAddr
		if addr == "" {
			addr = cfg.Redis.Addr
		}
		queue := alerts.NewQueue(addr)
		defer queue.Close()
		processor := alerts.NewProcessor(addr, cfg.Alerts.Concurrency, b.inbox)
		if err := processor.Start(); err != nil {
			return err
		}
		defer processor.Shutdown()
		notifier = queue
	}

	m := metrics.New()
	hub := messaging.NewHub(b.items)
	svc := marketplace.NewService(b.records, b.items,
		marketplace.WithNotifier(notifier),
		marketplace.WithBroadcaster(hub),
		marketplace.WithMetrics(m),
		marketplace.WithConflictRetries(cfg.Store.ConflictRetries, 20*time.Millisecond),
		marketplace.WithNegotiationPolicy(negotiation.Policy{
			MaxRounds:    cfg.Negotiation.MaxRounds,
			ExpiryWindow: cfg.Negotiation.ExpiryWindow,
			FairLow:      cfg.Negotiation.FairLow,
			FairHigh:     cfg.Negotiation.FairHigh,
		}),
		marketplace.WithPaymentPolicy(escrow.Policy{
			AdvanceFraction: cfg.Payment.AdvanceFraction,
			DepositFraction: cfg.Payment.DepositFraction,
		}),
	)

	e := newEcho(cfg, b, m, hub, svc)

	errs := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.ListenAddress, "store": cfg.Store.Backend}).Info("Listening")
		errs <- e.Start(cfg.ListenAddress)
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newEcho(cfg *config.Config, b *backend, m *metrics.Metrics, hub *messaging.Hub, svc *marketplace.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "agrihub"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if b.pool == nil {
			return c.JSON(http.StatusOK, echo.Map{"status": "ready", "store": cfg.Store.Backend})
		}
		if err := b.pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready", "store": cfg.Store.Backend})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	// Protected routes, rate limited per client IP
	api := e.Group("/api",
		echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(20)),
		middleware.JWT([]byte(cfg.JWTSecret)),
	)
	admin := api.Group("/admin", middleware.AdminGuard)
	marketplace.NewHandler(svc).Register(api, admin)

	notifications := alerts.NewHandler(b.inbox)
	api.GET("/notifications", notifications.ListNotifications)
	api.POST("/notifications/:id/read", notifications.MarkNotificationRead)

	api.GET("/ws/:category/:id", hub.WorkItemWS)
	return e
}
