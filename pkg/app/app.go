package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	stdhttp "net/http"
	"time"

	"shortlinks/pkg/assets"
	"shortlinks/pkg/cache"
	"shortlinks/pkg/config"
	httphandler "shortlinks/pkg/http"
	"shortlinks/pkg/logging"
	"shortlinks/pkg/middleware"
	"shortlinks/pkg/qrcode"
	"shortlinks/pkg/service"
	"shortlinks/pkg/storage"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// App wires configuration, storage, the link service and HTTP handlers.
type App struct {
	Cfg     *config.Config
	Logger  *logging.Logger
	Service *service.LinkService
	Clicks  *service.ClickRecorder
	Handler *httphandler.Handler

	closers []func() error
}

type backends struct {
	links  storage.LinkStorage
	ledger storage.ClickLedger
}

// New builds a fully wired application. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	a := &App{Cfg: cfg, Logger: logger}

	b, err := a.openStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	linkCache, err := a.openCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	assetStore, err := assets.NewFileStore(cfg.Assets.Dir, cfg.Assets.BaseURL)
	if err != nil {
		a.Close()
		return nil, err
	}
	issuer := qrcode.NewIssuer(&stdhttp.Client{}, assetStore, logger, qrcode.Config{
		Endpoint: cfg.QR.Endpoint,
		Size:     cfg.QR.Size,
		Timeout:  cfg.QR.Timeout,
	})

	a.Clicks = service.NewClickRecorder(b.ledger, logger, service.ClickRecorderConfig{
		Workers:    cfg.Clicks.Workers,
		QueueSize:  cfg.Clicks.QueueSize,
		MaxElapsed: cfg.Clicks.MaxElapsed,
		Location:   cfg.Location(),
	})

	gen := service.NewGenerator(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), cfg.Code.Length, cfg.Code.MaxAttempts)
	a.Service = service.NewLinkService(b.links, b.ledger, linkCache, gen, a.Clicks, logger, service.LinkServiceConfig{
		BaseURL:   cfg.BaseURL,
		Location:  cfg.Location(),
		QR:        issuer,
		QRTimeout: cfg.QR.Timeout,

		BlockPrivateHosts: cfg.URLs.BlockPrivate,
	})
	a.Handler = httphandler.NewHandler(a.Service, logger, assetStore.Dir())
	return a, nil
}

func (a *App) openStorage(ctx context.Context) (backends, error) {
	switch a.Cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := connectPostgres(ctx, a.Cfg.Database.URL)
		if err != nil {
			return backends{}, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := storage.MigratePostgres(ctx, pool); err != nil {
			return backends{}, fmt.Errorf("migrate postgres: %w", err)
		}
		a.Logger.Info(ctx, "storage ready", "driver", config.DriverPostgres)
		return backends{
			links:  storage.NewPostgresLinkStorage(pool),
			ledger: storage.NewPostgresClickLedger(pool),
		}, nil
	case config.DriverSQLite:
		db, err := storage.OpenSQLite(a.Cfg.SQLite.Path)
		if err != nil {
			return backends{}, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.Logger.Info(ctx, "storage ready", "driver", config.DriverSQLite, "path", a.Cfg.SQLite.Path)
		return backends{links: db, ledger: db}, nil
	case config.DriverMemory:
		m := storage.NewMemoryStorage()
		a.Logger.Warn(ctx, "using in-memory storage; data is lost on exit")
		return backends{links: m, ledger: m}, nil
	default:
		return backends{}, fmt.Errorf("unknown storage driver %q", a.Cfg.Storage.Driver)
	}
}

// connectPostgres retries the first ping so the service can start alongside its database.
func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(func() error { return pool.Ping(ctx) }, backoff.WithContext(b, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (a *App) openCache(ctx context.Context) (cache.LinkCacheInterface, error) {
	if a.Cfg.Redis.URL == "" {
		return cache.NopCache{}, nil
	}
	opt, err := redis.ParseURL(a.Cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	a.closers = append(a.closers, client.Close)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	a.Logger.Info(ctx, "link cache enabled", "ttl", a.Cfg.Redis.TTL.String())
	return cache.NewLinkCache(client, a.Cfg.Redis.TTL), nil
}

// Router returns the full API router, or only the redirect routes.
func (a *App) Router(redirectOnly bool) *chi.Mux {
	r := httphandler.NewRouter(middleware.NewRequestLogger(a.Logger))
	if redirectOnly {
		httphandler.SetupRedirectRoutes(r, a.Handler)
	} else {
		httphandler.SetupRoutes(r, a.Handler)
	}
	return r
}

// Serve runs the HTTP server and click recorder until ctx is cancelled, then
// shuts both down within the configured timeout.
func (a *App) Serve(ctx context.Context, addr string, handler stdhttp.Handler) error {
	srv := &stdhttp.Server{
		Addr:              addr,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 3 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	a.Clicks.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info(gctx, "http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info(context.Background(), "shutting down", "addr", addr)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), a.Clicks.Close(shutdownCtx))
	})
	return g.Wait()
}

// Close releases storage and cache connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
