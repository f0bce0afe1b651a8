package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/placeharvest/internal/adapters/browser"
	"github.com/manthysbr/placeharvest/internal/adapters/duckdb"
	"github.com/manthysbr/placeharvest/internal/adapters/geonames"
	"github.com/manthysbr/placeharvest/internal/config"
	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/ports"
	"github.com/manthysbr/placeharvest/internal/core/services"
	"github.com/manthysbr/placeharvest/internal/logging"
)

// app holds the process-wide adapters and services shared by commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	repo    *duckdb.Repository
	bus     *services.EventBus
	metrics *services.Metrics

	campaigns *services.CampaignService

	lock      *flock.Flock
	logCloser io.Closer
	group     *errgroup.Group
	cancel    context.CancelFunc
	docker    *browser.DockerHost
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, logCloser := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	// DuckDB allows a single writing process per file.
	lock := flock.New(cfg.DatabasePath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("failed to lock database: %w", err)
	}
	if !locked {
		_ = logCloser.Close()
		return nil, fmt.Errorf("database %s is in use by another process", cfg.DatabasePath)
	}

	repo, err := duckdb.NewRepository(cfg.DatabasePath)
	if err != nil {
		_ = lock.Unlock()
		_ = logCloser.Close()
		return nil, fmt.Errorf("failed to init repository: %w", err)
	}

	bus := services.NewEventBus(logger)
	metrics := services.NewMetrics()
	geo := geonames.NewClient(logger, cfg.Geonames.URL, cfg.Geonames.Timeout)
	selection := services.NewGeonameSelectionService(logger, geo)

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		repo:      repo,
		bus:       bus,
		metrics:   metrics,
		campaigns: services.NewCampaignService(logger, repo, repo, selection, bus),
		lock:      lock,
		logCloser: logCloser,
		group:     g,
		cancel:    cancel,
	}

	g.Go(func() error { a.logEvents(gctx); return nil })
	if cfg.MetricsAddr != "" {
		a.serveMetrics(gctx, cfg.MetricsAddr)
	}
	return a, nil
}

func (a *app) close() {
	a.cancel()
	if err := a.group.Wait(); err != nil {
		a.logger.Error("background task failed", "error", err)
	}
	if a.docker != nil {
		_ = a.docker.Close()
	}
	if err := a.repo.Close(); err != nil {
		a.logger.Error("failed to close repository", "error", err)
	}
	_ = a.lock.Unlock()
	_ = a.logCloser.Close()
}

// logEvents mirrors every bus event into the log until ctx ends.
func (a *app) logEvents(ctx context.Context) {
	events, unsubscribe := a.bus.SubscribeGlobal()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			a.logger.Debug("event", "topic", ev.Topic, "kind", ev.Kind, "data", ev.Data)
		}
	}
}

func (a *app) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	a.group.Go(func() error {
		a.logger.Info("starting metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	a.group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// browserFactory attaches to the configured endpoint, or runs one local
// container per bot. Containers left by a crashed run are pruned first;
// the database lock guarantees none of them is still in use.
func (a *app) browserFactory(ctx context.Context) (ports.BrowserDriverFactory, error) {
	if a.cfg.Browser.Endpoint != "" {
		return browser.NewRemoteFactory(a.logger, a.cfg.Browser.Endpoint), nil
	}
	if a.docker == nil {
		host, err := browser.NewDockerHost(a.logger, a.cfg.Browser.Image)
		if err != nil {
			return nil, err
		}
		a.docker = host
		if n, err := host.PruneStale(ctx, 0); err != nil {
			a.logger.Warn("failed to prune stale browser containers", "error", err)
		} else if n > 0 {
			a.logger.Info("pruned stale browser containers", "count", n)
		}
	}
	return browser.NewDockerFactory(a.logger, a.docker), nil
}

func (a *app) botPool(ctx context.Context, campaign *domain.Campaign) (*services.BotPoolManager, error) {
	factory, err := a.browserFactory(ctx)
	if err != nil {
		return nil, err
	}
	return services.NewBotPoolManager(a.logger, factory, a.bus, a.metrics, ports.BrowserConfig{
		Headless: a.cfg.Browser.Headless,
		Timeout:  a.cfg.Browser.Timeout,
		Locale:   campaign.Config.Locale,
	}), nil
}

func (a *app) taskRunner(pool *services.BotPoolManager) *services.TaskRunner {
	return services.NewTaskRunner(a.logger, pool, a.bus, a.campaigns, a.metrics, services.RunnerConfig{
		SettleDelay:      a.cfg.Runner.SettleDelay,
		SnapshotInterval: a.cfg.Runner.SnapshotInterval,
		MaxSnapshots:     a.cfg.Runner.MaxSnapshots,
	})
}

func (a *app) stagger() services.StaggerRange {
	return services.StaggerRange{Min: a.cfg.Pool.StaggerMin, Max: a.cfg.Pool.StaggerMax}
}
