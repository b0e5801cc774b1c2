package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thejerf/suture/v4"

	"deliverycart/internal/checkout"
	"deliverycart/internal/config"
	"deliverycart/internal/database"
	"deliverycart/internal/events"
	"deliverycart/internal/flagstore"
	"deliverycart/internal/logging"
	"deliverycart/internal/notify"
	"deliverycart/internal/retry"
	"deliverycart/internal/service"
	"deliverycart/internal/worker"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("deliverycart stopped")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("load time zone: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(ctx, cfg.DatabaseURI)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.CloseDB(db)

	if err := database.InitSchema(ctx, db); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	flags, err := openFlagStore(cfg.FlagStore)
	if err != nil {
		return err
	}
	if c, ok := flags.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logging.Error().Err(err).Msg("close flag store")
			}
		}()
	}

	bus := events.NewBus()
	defer bus.Close()

	var sender notify.Sender = notify.Noop{}
	if cfg.Webhook.URL != "" {
		sender = notify.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Timeout)
	} else {
		logging.Warn().Msg("webhook url not set, customer notifications are disabled")
	}

	svc := newServices(db, loc)
	mgr := checkout.NewManager(checkout.Deps{
		Store:    flags,
		Config:   svc.settings,
		Products: svc.catalog,
		Coupons:  svc.coupons,
		Orders:   svc.orders,
		Notifier: sender,
		Events:   bus,
		Retry: retry.Policy{
			Attempts: cfg.Retry.Attempts,
			Timeout:  cfg.Retry.Timeout,
			Step:     cfg.Retry.Step,
		},
		NotifyWait:    cfg.Webhook.Wait,
		NotifyTimeout: cfg.Webhook.Timeout,
		Location:      loc,
	})

	srv := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           newRouter(cfg, loc, svc, mgr, bus),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	root := suture.New("deliverycart", suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn().Fields(e.Map()).Msg(e.String())
		},
		Timeout: 15 * time.Second,
	})
	root.Add(&httpService{server: srv, shutdownTimeout: 10 * time.Second})
	root.Add(worker.NewStatusWorker(svc.orders, sender, cfg.Worker.Interval, cfg.Worker.BatchSize))
	root.Add(mgr)

	logging.Info().Str("addr", cfg.RunAddress).Str("flag_store", cfg.FlagStore.Backend).Msg("starting server")
	if err := root.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("server stopped")
	return nil
}

type services struct {
	auth     *service.AuthService
	catalog  *service.CatalogService
	coupons  *service.CouponService
	orders   *service.OrderService
	settings *service.SettingsService
}

func newServices(db *sql.DB, loc *time.Location) services {
	return services{
		auth:     service.NewAuthService(db),
		catalog:  service.NewCatalogService(db),
		coupons:  service.NewCouponService(db, loc),
		orders:   service.NewOrderService(db),
		settings: service.NewSettingsService(db),
	}
}

func openFlagStore(cfg config.FlagStoreConfig) (flagstore.Store, error) {
	switch cfg.Backend {
	case config.StoreBadger:
		s, err := flagstore.OpenBadger(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open flag store at %s: %w", cfg.Path, err)
		}
		return s, nil
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return flagstore.NewRedis(rdb, cfg.TTL), nil
	case config.StoreMemory:
		logging.Warn().Msg("payment flags are kept in memory and will not survive a restart")
		return flagstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown flag store backend %q", cfg.Backend)
	}
}

// httpService runs an http.Server under the supervisor.
type httpService struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

func (h *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return ctx.Err()
	}
}

func (h *httpService) String() string { return "http-server" }
