// Package headless contains the dynamic fetch tier, which renders pages in a
// headless browser before capturing their markup.
package headless

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/silkcrawl/internal/clock/system"
	"github.com/JakeFAU/silkcrawl/internal/crawler"
	"github.com/JakeFAU/silkcrawl/internal/proxy"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	ExecPath          string
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithProxies attaches a proxy picked at random from pool to each browser.
func WithProxies(pool *proxy.Pool) Option {
	return func(f *Fetcher) { f.proxies = pool }
}

// WithClock overrides the clock used to stamp pages.
func WithClock(clock crawler.Clock) Option {
	return func(f *Fetcher) { f.clock = clock }
}

// WithOnSuccess sets the hook invoked after each successful render.
func WithOnSuccess(fn crawler.SuccessFunc) Option {
	return func(f *Fetcher) { f.onSuccess = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithLauncher replaces the chromedp launcher.
func WithLauncher(l Launcher) Option {
	return func(f *Fetcher) { f.launcher = l }
}

// Fetcher implements crawler.Fetcher by rendering each page in its own
// headless browser.
type Fetcher struct {
	cfg       Config
	proxies   *proxy.Pool
	clock     crawler.Clock
	onSuccess crawler.SuccessFunc
	logger    *zap.Logger
	launcher  Launcher
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:      cfg,
		clock:    system.Default,
		logger:   zap.NewNop(),
		launcher: ChromeLauncher{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.clock == nil {
		f.clock = system.Default
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.launcher == nil {
		f.launcher = ChromeLauncher{}
	}
	return f
}

// Fetch launches a browser, navigates to the target, waits for the network to
// go idle, and populates the page with the rendered DOM. The browser is closed
// before Fetch returns.
func (f *Fetcher) Fetch(ctx context.Context, target crawler.Target) (*crawler.Page, error) {
	page, err := target.Resolve()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.navTimeout())
	defer cancel()

	opts := LaunchOptions{UserAgent: f.cfg.UserAgent, ExecPath: f.cfg.ExecPath}
	if p, ok := f.proxies.Pick(); ok {
		opts.Proxy = &p
	}

	session, err := f.launcher.Launch(ctx, opts)
	if err != nil {
		return nil, crawler.NewFetchError(crawler.TierDynamic, page.URL(), fmt.Errorf("launch browser: %w", err))
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			f.logger.Debug("browser close failed", zap.String("url", page.URL()), zap.Error(cerr))
		}
	}()

	nav, err := session.Navigate(ctx, page.URL())
	if err != nil {
		return nil, crawler.NewFetchError(crawler.TierDynamic, page.URL(), fmt.Errorf("navigate: %w", err))
	}
	html, err := session.Content(ctx)
	if err != nil {
		return nil, crawler.NewFetchError(crawler.TierDynamic, page.URL(), fmt.Errorf("read content: %w", err))
	}

	page.Populate(crawler.Snapshot{
		Content:     html,
		ContentType: nav.Headers.Get("Content-Type"),
		Status:      nav.Status,
		LoadedAt:    f.clock.Now(),
		Headers:     nav.Headers,
		Rendered:    true,
	})
	f.logger.Debug("dynamic fetch succeeded",
		zap.String("url", page.URL()),
		zap.String("final_url", nav.URL),
		zap.Int("status", page.Status),
		zap.Int("bytes", len(page.Content)),
		zap.Bool("proxied", opts.Proxy != nil),
	)
	f.onSuccess.Notify(page)
	return page, nil
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}
