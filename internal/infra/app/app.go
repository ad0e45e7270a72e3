package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-offline/internal/core/domain"
	"github.com/arklim/social-platform-offline/internal/core/port"
	"github.com/arklim/social-platform-offline/internal/infra/config"
	"github.com/arklim/social-platform-offline/internal/infra/connectivity"
	kafkainfra "github.com/arklim/social-platform-offline/internal/infra/kafka"
	"github.com/arklim/social-platform-offline/internal/infra/logger"
	redisinfra "github.com/arklim/social-platform-offline/internal/infra/redis"
	"github.com/arklim/social-platform-offline/internal/infra/telemetry"
	memoryrepo "github.com/arklim/social-platform-offline/internal/repository/memory"
	postgresrepo "github.com/arklim/social-platform-offline/internal/repository/postgres"
	redisrepo "github.com/arklim/social-platform-offline/internal/repository/redis"
	sqliterepo "github.com/arklim/social-platform-offline/internal/repository/sqlite"
	"github.com/arklim/social-platform-offline/internal/transport/http/routes"
	"github.com/arklim/social-platform-offline/internal/usecase"
)

// Application hosts the resilience services, their maintenance loops and the
// local diagnostics endpoint.
type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	monitor *connectivity.Monitor
	limiter *usecase.AttemptLimiter
	cache   *usecase.CacheManager
	queue   *usecase.SyncQueue
	applier port.Applier
	cleanup []func()
}

// New wires the application from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics := telemetry.Attach(cfg.Telemetry.Namespace)

	app := &Application{cfg: cfg, logger: log}

	store, err := app.openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	probe := httpProbe(cfg.Connectivity.ProbeURL)
	app.monitor = connectivity.NewMonitor(probe, cfg.Connectivity.ProbeInterval, cfg.Connectivity.ProbeTimeout, log)

	prefix := cfg.App.KeyPrefix
	app.limiter = usecase.NewAttemptLimiter(store, log).
		WithPrefix(prefix).
		WithMetrics(metrics)
	app.cache = usecase.NewCacheManager(store, log).
		WithPrefix(prefix).
		WithDefaultMaxAge(cfg.Cache.DefaultMaxAge).
		WithMetrics(metrics)
	app.queue = usecase.NewSyncQueue(store, log).
		WithPrefix(prefix).
		WithMaxAttempts(cfg.Sync.MaxAttempts).
		WithApplyTimeout(cfg.Sync.ApplyTimeout).
		WithMetrics(metrics)

	if len(cfg.Kafka.Brokers) > 0 {
		applier, err := kafkainfra.NewApplier(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka applier, using stub applier", zap.Error(err))
			app.applier = kafkainfra.NewStubApplier(log)
		} else {
			app.applier = applier
			app.cleanup = append(app.cleanup, func() { _ = applier.Close() })
		}
	} else {
		log.Info("kafka brokers not configured, using stub applier")
		app.applier = kafkainfra.NewStubApplier(log)
	}

	app.engine = routes.Register(routes.Dependencies{
		Config:  cfg,
		Logger:  log,
		Cache:   app.cache,
		Queue:   app.queue,
		Limiter: app.limiter,
		Applier: app.applier,
		Monitor: app.monitor,
	})

	return app, nil
}

// Run starts the diagnostics server and maintenance loops, blocking until ctx
// is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		for _, fn := range a.cleanup {
			fn()
		}
	}()

	a.monitor.Start(ctx)
	defer a.monitor.Close()

	unsubscribe := a.monitor.Subscribe(func(online bool) {
		if online {
			go a.drainWithBackoff(ctx)
		}
	})
	defer unsubscribe()

	go a.drainLoop(ctx)
	go a.sweepLoop(ctx)

	addr := net.JoinHostPort(a.cfg.App.Host, fmt.Sprintf("%d", a.cfg.App.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           a.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("diagnostics server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("diagnostics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown diagnostics server: %w", err)
	}
	return nil
}

// drainLoop drains the queue on a fixed interval while online.
func (a *Application) drainLoop(ctx context.Context) {
	interval := a.cfg.Sync.DrainInterval
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.drainOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// drainWithBackoff retries failed drain passes with exponential backoff after
// connectivity returns, so a flapping link does not hammer the remote.
func (a *Application) drainWithBackoff(ctx context.Context) {
	operation := func() (domain.DrainSummary, error) {
		summary, err := a.queue.Drain(ctx, a.applier, func() bool { return a.monitor.Online(ctx) })
		if errors.Is(err, usecase.ErrDrainInProgress) {
			return summary, backoff.Permanent(err)
		}
		return summary, err
	}

	if _, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
	); err != nil && !errors.Is(err, usecase.ErrDrainInProgress) {
		a.logger.Warn("drain after reconnect failed", zap.Error(err))
	}
}

func (a *Application) drainOnce(ctx context.Context) {
	summary, err := a.queue.Drain(ctx, a.applier, func() bool { return a.monitor.Online(ctx) })
	if err != nil && !errors.Is(err, usecase.ErrDrainInProgress) {
		a.logger.Warn("scheduled drain failed", zap.Error(err))
		return
	}
	if summary.Skipped {
		return
	}
}

// sweepLoop clears attempt records past the retention floor on an interval.
func (a *Application) sweepLoop(ctx context.Context) {
	interval := a.cfg.RateLimit.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	retention := a.cfg.RateLimit.RetentionPeriod
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := a.limiter.ClearExpired(ctx, retention); err != nil {
				a.logger.Warn("retention sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// openStore builds the configured key-value backend.
func (a *Application) openStore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (port.KeyValueStore, error) {
	switch cfg.Store.Backend {
	case "memory":
		log.Warn("using in-memory store; state will not survive restarts")
		return memoryrepo.NewStore(), nil

	case "sqlite", "":
		store, err := sqliterepo.Open(cfg.Sqlite.Path, cfg.Sqlite.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		a.cleanup = append(a.cleanup, func() { _ = store.Close() })
		log.Info("sqlite store opened", zap.String("path", cfg.Sqlite.Path))
		return store, nil

	case "redis":
		client, err := redisinfra.NewClient(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.cleanup = append(a.cleanup, func() { _ = client.Close() })
		return redisrepo.NewStore(client.Client()), nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("init postgres pool: %w", err)
		}
		store := postgresrepo.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		a.cleanup = append(a.cleanup, pool.Close)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// httpProbe returns a reachability probe for url, or nil when no URL is
// configured (the monitor then stays online unless told otherwise).
func httpProbe(url string) connectivity.Probe {
	if url == "" {
		return nil
	}

	client := &http.Client{}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("probe status %d", resp.StatusCode)
		}
		return nil
	}
}
