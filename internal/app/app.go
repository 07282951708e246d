// Package app builds the web server's long-lived services and runs them until
// shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/minhd-vu/webserver/internal/api"
	"github.com/minhd-vu/webserver/internal/config"
	"github.com/minhd-vu/webserver/internal/listener"
	"github.com/minhd-vu/webserver/internal/logging"
	"github.com/minhd-vu/webserver/internal/metrics"
	"github.com/minhd-vu/webserver/internal/progress"
	progresssinks "github.com/minhd-vu/webserver/internal/progress/sinks"
	"github.com/minhd-vu/webserver/internal/storage/memory"
	pgstore "github.com/minhd-vu/webserver/internal/storage/postgres"
	"github.com/minhd-vu/webserver/internal/store"
	"github.com/minhd-vu/webserver/internal/threadpool"
)

const shutdownTimeout = 30 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	hub      *progress.Hub
	runs     store.JobRunRepository
	pgRuns   *pgstore.JobRunStore
	pool     *threadpool.Pool
	listener *listener.Listener
	admin    *http.Server
	adminLn  net.Listener

	shutdownTimeout time.Duration
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	sleeper    listener.Sleeper
}

// WithLogger skips building a logger from config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// WithRegisterer registers the progress collectors somewhere other than the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *buildOptions) {
		o.registerer = reg
	}
}

// WithSleeper replaces the clock used by the /sleep route.
func WithSleeper(s listener.Sleeper) Option {
	return func(o *buildOptions) {
		o.sleeper = s
	}
}

// Build creates the application's dependencies in start order: logger,
// metrics, progress hub and sinks, thread pool, listener, admin server.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	a := &App{cfg: cfg, logger: logger, shutdownTimeout: shutdownTimeout}
	logger.Info("building application",
		zap.String("listen_addr", cfg.ListenAddr()),
		zap.Int("pool_size", cfg.Pool.Size),
		zap.Bool("admin_enabled", cfg.Admin.Enabled),
	)

	metrics.Init()

	if err := a.setupProgress(ctx, o.registerer); err != nil {
		a.closeInfrastructure(context.Background())
		return nil, err
	}

	pool, err := threadpool.Build(cfg.Pool.Size,
		threadpool.WithQueueDepth(cfg.Pool.QueueDepth),
		threadpool.WithLogger(logger.Named("pool")),
		threadpool.WithEmitter(a.hub),
	)
	if err != nil {
		a.closeInfrastructure(context.Background())
		return nil, fmt.Errorf("thread pool init failed: %w", err)
	}
	a.pool = pool

	l, err := listener.Listen(cfg.ListenAddr(), pool, listener.Config{
		SleepDelay:     cfg.SleepDelay(),
		ReadTimeout:    cfg.ReadTimeout(),
		SubmitTimeout:  cfg.SubmitTimeout(),
		StaticDir:      cfg.Listener.StaticDir,
		MaxConnections: cfg.Listener.MaxConnections,
		Logger:         logger.Named("listener"),
		Sleeper:        o.sleeper,
	})
	if err != nil {
		pool.Shutdown()
		a.closeInfrastructure(context.Background())
		return nil, fmt.Errorf("listener init failed: %w", err)
	}
	a.listener = l

	if cfg.Admin.Enabled {
		if err := a.setupAdmin(); err != nil {
			_ = l.Close()
			pool.Shutdown()
			a.closeInfrastructure(context.Background())
			return nil, err
		}
	}
	return a, nil
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer) error {
	if a.cfg.Progress.PostgresDSN != "" {
		pg, err := pgstore.NewJobRunStore(ctx, pgstore.Config{
			DSN:   a.cfg.Progress.PostgresDSN,
			Table: a.cfg.Progress.PostgresTable,
		})
		if err != nil {
			return fmt.Errorf("job run store init failed: %w", err)
		}
		a.pgRuns = pg
		a.runs = pg
		a.logger.Info("persisting job runs to postgres", zap.String("table", a.cfg.Progress.PostgresTable))
	} else {
		a.runs = memory.NewJobRunStore(a.cfg.Progress.MemoryRetention)
	}

	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinks := []progress.Sink{
		promSink,
		progresssinks.NewStoreSink(a.runs, a.logger.Named("store_sink")),
	}
	if a.cfg.Progress.LogEvents {
		sinks = append(sinks, progresssinks.NewLogSink(a.logger.Named("events")))
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.BatchWait(),
		Logger:         a.logger.Named("progress"),
	}, sinks...)
	return nil
}

func (a *App) setupAdmin() error {
	ln, err := net.Listen("tcp", a.cfg.AdminAddr())
	if err != nil {
		return fmt.Errorf("admin listen on %s: %w", a.cfg.AdminAddr(), err)
	}
	srv := api.NewServer(api.Options{
		Pool:    a.pool,
		Runs:    a.runs,
		Dropped: a.hub.Dropped,
		Logger:  a.logger.Named("api"),
	})
	a.adminLn = ln
	a.admin = &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// ListenerAddr is the address the TCP listener is bound to.
func (a *App) ListenerAddr() net.Addr {
	return a.listener.Addr()
}

// AdminAddr is the address of the admin API, or nil when it is disabled.
func (a *App) AdminAddr() net.Addr {
	if a.adminLn == nil {
		return nil
	}
	return a.adminLn.Addr()
}

// Run serves until ctx is canceled, SIGINT/SIGTERM arrives, or the listener
// stops on its own, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.admin != nil {
		go func() {
			a.logger.Info("admin server started", zap.Stringer("addr", a.adminLn.Addr()))
			if err := a.admin.Serve(a.adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("admin server error", zap.Error(err))
				stop()
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.listener.Serve(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown initiated")
		runErr = <-serveErr
	case runErr = <-serveErr:
		a.logger.Info("listener stopped; shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Close stops the listener, drains the pool, then releases the admin server,
// progress hub, and job-run store in that order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.listener != nil {
		if err := a.listener.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.logger.Info("draining thread pool", zap.Int("queued", a.pool.QueueLen()))
		if err := a.pool.ShutdownContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.admin != nil {
		if err := a.admin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
		}
		// Serve may never have run; the listener is then still open.
		_ = a.adminLn.Close()
	}
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pgRuns != nil {
		a.pgRuns.Close()
	}
}
