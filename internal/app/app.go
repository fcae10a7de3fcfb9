// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-finder/internal/cache"
	"github.com/JakeFAU/community-finder/internal/config"
	"github.com/JakeFAU/community-finder/internal/logging"
	"github.com/JakeFAU/community-finder/internal/metrics"
	"github.com/JakeFAU/community-finder/internal/progress"
	"github.com/JakeFAU/community-finder/internal/progress/sinks"
	"github.com/JakeFAU/community-finder/internal/scrape"
	"github.com/JakeFAU/community-finder/internal/session"
	"github.com/JakeFAU/community-finder/internal/session/headless"
	"github.com/JakeFAU/community-finder/internal/session/static"
	"github.com/JakeFAU/community-finder/internal/storage/local"
	"github.com/JakeFAU/community-finder/internal/storage/memory"
	"github.com/JakeFAU/community-finder/internal/storage/redis"
)

const shutdownTimeout = 5 * time.Second

// App holds all the shared, long-lived services for the application.
// It is built once per command invocation and closed when the command ends.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	cache        *cache.Store
	orchestrator *scrape.Orchestrator
	progress     *progress.Hub
	metricsSrv   *http.Server
	metricsAddr  string
	closers      []func() error
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetCache exposes the loaded cache store.
func (a *App) GetCache() *cache.Store {
	return a.cache
}

// GetOrchestrator returns the scrape orchestrator.
func (a *App) GetOrchestrator() *scrape.Orchestrator {
	return a.orchestrator
}

// GetConfig returns the configuration the app was built from.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// New creates and initializes the application services from cfg. It fails
// fast on configuration errors; a cache backend that cannot be reached or
// read only leaves the run with an empty in-memory cache.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewWithLogger(ctx, cfg, logger)
}

// NewWithLogger is New with an injected logger.
func NewWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger}

	persister, err := a.buildPersister()
	if err != nil {
		logger.Warn("cache backend unavailable, results will not be kept between runs",
			zap.String("backend", a.cfg.Cache.Backend),
			zap.Error(err),
		)
		persister = memory.New()
	}
	a.cache = cache.New(persister, cache.WithLogger(logger.Named("cache")))
	a.cache.Load(ctx)

	provider, err := a.buildProvider()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.progress = a.buildProgress()
	a.orchestrator, err = scrape.NewOrchestrator(a.cache, provider, ScrapeConfig(cfg.Scrape),
		scrape.WithLogger(logger.Named("scrape")),
		scrape.WithEmitter(a.progress),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	if cfg.Metrics.ListenAddr != "" {
		if err := a.startMetrics(cfg.Metrics.ListenAddr); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// ScrapeConfig converts the loaded settings into orchestrator settings.
func ScrapeConfig(c config.ScrapeConfig) scrape.Config {
	return scrape.Config{
		Workers:            c.Workers,
		TaskTimeout:        c.TaskTimeout(),
		RevealWait:         c.RevealWait(),
		PollInterval:       c.PollInterval(),
		PageLoadTimeout:    c.PageLoadTimeout(),
		ReleaseGrace:       c.ReleaseGrace(),
		CacheEmpty:         c.CacheEmptyResults,
		NavigationQPS:      c.NavigationQPS,
		ProfileURLTemplate: c.ProfileURLTemplate,
	}
}

func (a *App) buildPersister() (cache.Persister, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheFile:
		store, err := local.New(local.Config{Path: a.cfg.Cache.Path})
		if err != nil {
			return nil, fmt.Errorf("init file cache: %w", err)
		}
		a.logger.Debug("using file cache", zap.String("path", store.Path()))
		return store, nil
	case config.CacheRedis:
		store, err := redis.New(redis.Config{
			Address:  a.cfg.Cache.Redis.Address,
			Password: a.cfg.Cache.Redis.Password,
			DB:       a.cfg.Cache.Redis.DB,
			Key:      a.cfg.Cache.Redis.Key,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.logger.Debug("using redis cache", zap.String("address", a.cfg.Cache.Redis.Address))
		return store, nil
	case config.CacheMemory:
		a.logger.Debug("using in-memory cache; results are not kept between runs")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", a.cfg.Cache.Backend)
	}
}

func (a *App) buildProvider() (session.Provider, error) {
	switch a.cfg.Session.Backend {
	case config.BackendChromedp:
		provider, err := headless.New(headless.Config{
			ExecPath:      a.cfg.Session.ChromePath,
			UserAgent:     a.cfg.Session.UserAgent,
			WindowWidth:   a.cfg.Session.WindowWidth,
			WindowHeight:  a.cfg.Session.WindowHeight,
			DisableImages: a.cfg.Session.DisableImages,
		}, a.logger.Named("chromedp"))
		if err != nil {
			return nil, fmt.Errorf("init chromedp sessions: %w", err)
		}
		return provider, nil
	case config.BackendStatic:
		return static.New(static.Config{
			UserAgent: a.cfg.Session.UserAgent,
			Timeout:   a.cfg.Scrape.PageLoadTimeout(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %s", a.cfg.Session.Backend)
	}
}

func (a *App) buildProgress() *progress.Hub {
	hubSinks := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress"))}
	if a.cfg.Progress.Console {
		hubSinks = append(hubSinks, sinks.NewWriterSink(os.Stderr))
	}
	return progress.NewHub(progress.Config{
		BufferSize: a.cfg.Progress.BufferSize,
		Logger:     a.logger.Named("progress"),
	}, hubSinks...)
}

func (a *App) startMetrics(addr string) error {
	metrics.Init()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics on %s: %w", addr, err)
	}
	a.metricsSrv = &http.Server{Handler: metricsRouter(), ReadHeaderTimeout: 5 * time.Second}
	a.metricsAddr = ln.Addr().String()

	a.logger.Info("metrics server listening", zap.String("addr", a.metricsAddr))
	go func() {
		if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return nil
}

func metricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (a *App) MetricsAddr() string {
	return a.metricsAddr
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	if a.progress != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.progress.Close(ctx); err != nil {
			a.logger.Warn("error flushing progress events", zap.Error(err))
		}
		cancel()
		if stats := a.progress.Stats(); stats.Dropped > 0 {
			a.logger.Debug("progress events dropped", zap.Int64("dropped", stats.Dropped), zap.Int64("emitted", stats.Emitted))
		}
	}
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.logger.Warn("error shutting down metrics server", zap.Error(err))
		}
		cancel()
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
