// Package app builds the crawler's long-lived services from configuration
// and runs crawls with them.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/silkcrawl/internal/api"
	"github.com/JakeFAU/silkcrawl/internal/clock/system"
	"github.com/JakeFAU/silkcrawl/internal/config"
	"github.com/JakeFAU/silkcrawl/internal/crawler"
	"github.com/JakeFAU/silkcrawl/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/silkcrawl/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/silkcrawl/internal/fetcher/headless"
	"github.com/JakeFAU/silkcrawl/internal/hash/sha256"
	"github.com/JakeFAU/silkcrawl/internal/id/uuid"
	"github.com/JakeFAU/silkcrawl/internal/pipeline"
	"github.com/JakeFAU/silkcrawl/internal/sink"
	"github.com/JakeFAU/silkcrawl/internal/storage"
	"github.com/JakeFAU/silkcrawl/internal/worker"
)

// ErrNoTargets is returned by Crawl when neither seeds nor URLs were given.
var ErrNoTargets = errors.New("no crawl targets")

// Option customizes how the App builds its services.
type Option func(*options)

type options struct {
	launcher headlessfetcher.Launcher
	gcsOpts  []option.ClientOption
}

// WithLauncher replaces the Chrome launcher used by the dynamic tier.
func WithLauncher(l headlessfetcher.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithGCSOptions passes client options to the GCS store.
func WithGCSOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.gcsOpts = append(o.gcsOpts, opts...) }
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	pipeline  crawler.Fetcher
	dispatch  *dispatcher.Dispatcher
	store     storage.Store
	apiServer *api.Server
}

// New wires fetchers, pipeline, storage and coordinators from cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	pool, err := cfg.ProxyPool()
	if err != nil {
		return nil, err
	}
	clock := system.New()

	a := &App{cfg: cfg, logger: logger}

	a.store, err = storage.Open(ctx, storage.Config{
		LocalDir:  cfg.Storage.LocalDir,
		GCSBucket: cfg.Storage.GCSBucket,
	}, o.gcsOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	hook := crawler.LogPage(logger.Named("pages"))
	if a.store != nil {
		pageSink := sink.New(a.store, sha256.New(), cfg.Storage.Prefix, logger.Named("sink"))
		hook = crawler.Chain(hook, pageSink.Hook(context.WithoutCancel(ctx)))
		logger.Info("page storage enabled",
			zap.String("local_dir", cfg.Storage.LocalDir),
			zap.String("gcs_bucket", cfg.Storage.GCSBucket),
			zap.String("prefix", cfg.Storage.Prefix),
		)
	}

	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.RequestTimeout(),
		MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
	},
		collyfetcher.WithProxies(pool),
		collyfetcher.WithClock(clock),
		collyfetcher.WithLogger(logger.Named("static")),
	)
	logger.Info("using colly static fetcher",
		zap.String("user_agent", cfg.Crawler.UserAgent),
		zap.Int("proxies", pool.Len()),
	)

	var dynamic crawler.Fetcher
	if cfg.Headless.Enabled {
		headlessOpts := []headlessfetcher.Option{
			headlessfetcher.WithProxies(pool),
			headlessfetcher.WithClock(clock),
			headlessfetcher.WithLogger(logger.Named("dynamic")),
		}
		if o.launcher != nil {
			headlessOpts = append(headlessOpts, headlessfetcher.WithLauncher(o.launcher))
		}
		dynamic = headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			ExecPath:          cfg.Headless.ExecPath,
		}, headlessOpts...)
		logger.Info("using headless fetcher", zap.Duration("nav_timeout", cfg.NavTimeout()))
	} else {
		dynamic = headlessfetcher.NewNoop()
		logger.Info("headless fetcher disabled")
	}

	a.pipeline, err = pipeline.Select(cfg.Mode(), static, dynamic,
		pipeline.WithOnSuccess(hook),
		pipeline.WithLogger(logger.Named("pipeline")),
	)
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	a.dispatch, err = dispatcher.NewPool(cfg.Crawler.Workers, a.pipeline,
		worker.WithLogger(logger.Named("worker")),
		worker.WithIDGenerator(uuid.New()),
	)
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("dispatcher init failed: %w", err)
	}
	logger.Info("pipeline ready",
		zap.String("mode", string(cfg.Mode())),
		zap.Int("workers", a.dispatch.Size()),
	)

	if cfg.Metrics.Addr != "" {
		a.apiServer = api.NewServer(a.dispatch, logger.Named("api"))
	}
	return a, nil
}

// Pipeline returns the configured fetch pipeline.
func (a *App) Pipeline() crawler.Fetcher {
	return a.pipeline
}

// Dispatcher returns the coordinator pool.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatch
}

// Fetch runs a single URL through the pipeline.
func (a *App) Fetch(ctx context.Context, rawURL string) (*crawler.Page, error) {
	return a.pipeline.Fetch(ctx, crawler.URLTarget(rawURL))
}

// Crawl enqueues the configured seeds plus urls and drains them. Canceling
// ctx stops the coordinators once their in-flight fetches finish; Crawl then
// returns normally with the remaining targets left queued.
func (a *App) Crawl(ctx context.Context, urls ...string) error {
	raws := make([]string, 0, len(a.cfg.Crawler.Seeds)+len(urls))
	raws = append(raws, a.cfg.Crawler.Seeds...)
	raws = append(raws, urls...)
	if len(raws) == 0 {
		return ErrNoTargets
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl not started: %w", err)
	}
	a.dispatch.Enqueue(crawler.URLTargets(raws...)...)

	runCtx := context.WithoutCancel(ctx)
	stopOnCancel := context.AfterFunc(ctx, func() {
		a.logger.Info("shutdown initiated", zap.Int("pending", a.dispatch.Pending()))
		a.dispatch.Stop()
	})
	defer stopOnCancel()

	serverDone := make(chan struct{})
	serverCtx, cancelServer := context.WithCancel(runCtx)
	defer cancelServer()
	if a.apiServer != nil {
		go func() {
			defer close(serverDone)
			if err := a.apiServer.ListenAndServe(serverCtx, a.cfg.Metrics.Addr); err != nil {
				a.logger.Error("http server error", zap.Error(err))
			}
		}()
	} else {
		close(serverDone)
	}

	a.logger.Info("crawl started", zap.Int("targets", len(raws)))
	err := a.dispatch.Run(runCtx)
	cancelServer()
	<-serverDone
	if err != nil {
		return err
	}
	a.logger.Info("crawl finished", zap.Int("pending", a.dispatch.Pending()))
	return nil
}

// Close releases storage clients and flushes the logger.
func (a *App) Close() error {
	err := a.closeStore()
	//nolint:errcheck // Sync fails on non-file outputs such as a terminal.
	_ = a.logger.Sync()
	return err
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("storage close failed", zap.Error(err))
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}
