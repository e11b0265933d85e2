// Package collyfetcher implements the static fetch tier using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/silkcrawl/internal/clock/system"
	"github.com/JakeFAU/silkcrawl/internal/crawler"
	"github.com/JakeFAU/silkcrawl/internal/proxy"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithProxies routes each request through a proxy picked at random from pool.
func WithProxies(pool *proxy.Pool) Option {
	return func(f *Fetcher) { f.proxies = pool }
}

// WithClock overrides the clock used to stamp pages.
func WithClock(clock crawler.Clock) Option {
	return func(f *Fetcher) { f.clock = clock }
}

// WithOnSuccess sets the hook invoked after each successful fetch.
func WithOnSuccess(fn crawler.SuccessFunc) Option {
	return func(f *Fetcher) { f.onSuccess = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	proxies       *proxy.Pool
	clock         crawler.Clock
	onSuccess     crawler.SuccessFunc
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	f := &Fetcher{
		cfg:    cfg,
		clock:  system.Default,
		logger: zap.NewNop(),
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

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(newHTTPTransport())
	if f.proxies.Len() > 0 {
		c.SetProxyFunc(f.pickProxy)
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.SetRequestTimeout(f.timeout())

	f.baseCollector = c
	return f
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, target crawler.Target) (*crawler.Page, error) {
	page, err := target.Resolve()
	if err != nil {
		return nil, err
	}

	var (
		snap     crawler.Snapshot
		received bool
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &snap, &received, &fetchErr)

	if err := f.runCollector(ctx, collector, page.URL(), &fetchErr); err != nil {
		f.logger.Debug("static fetch failed", zap.String("url", page.URL()), zap.Error(err))
		return nil, crawler.NewFetchError(crawler.TierStatic, page.URL(), err)
	}
	if !received {
		return nil, crawler.NewFetchError(crawler.TierStatic, page.URL(), errors.New("colly fetch produced no result"))
	}

	page.Populate(snap)
	f.logger.Debug("static fetch succeeded",
		zap.String("url", page.URL()),
		zap.Int("status", page.Status),
		zap.Int("bytes", len(page.Content)),
	)
	f.onSuccess.Notify(page)
	return page, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	snap *crawler.Snapshot,
	received *bool,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*snap = crawler.Snapshot{
			Content:     string(r.Body),
			ContentType: headers.Get("Content-Type"),
			Status:      r.StatusCode,
			LoadedAt:    f.clock.Now(),
			Headers:     headers,
		}
		*received = true
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) pickProxy(_ *http.Request) (*url.URL, error) {
	p, ok := f.proxies.Pick()
	if !ok {
		return nil, nil
	}
	return p.URL(), nil
}

func (f *Fetcher) timeout() time.Duration {
	if f.cfg.Timeout > 0 {
		return f.cfg.Timeout
	}
	return defaultTimeout
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
