package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/silkcrawl/internal/crawler"
	"github.com/JakeFAU/silkcrawl/internal/proxy"
)

var renderedAt = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

type fakeSession struct {
	nav        Navigation
	navErr     error
	html       string
	contentErr error

	navigated []string
	closed    int
}

func (s *fakeSession) Navigate(_ context.Context, url string) (Navigation, error) {
	s.navigated = append(s.navigated, url)
	return s.nav, s.navErr
}

func (s *fakeSession) Content(context.Context) (string, error) {
	return s.html, s.contentErr
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeLauncher struct {
	session   *fakeSession
	err       error
	launches  int
	lastOpts  LaunchOptions
	hadBudget bool
}

func (l *fakeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	l.launches++
	l.lastOpts = opts
	_, l.hadBudget = ctx.Deadline()
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

func newTestFetcher(l Launcher, opts ...Option) *Fetcher {
	base := []Option{
		WithLauncher(l),
		WithClock(crawler.ClockFunc(func() time.Time { return renderedAt })),
	}
	return NewChromedp(Config{UserAgent: "silk-agent"}, append(base, opts...)...)
}

func TestFetchRendersPage(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		nav: Navigation{
			Status:  http.StatusAccepted,
			Headers: http.Header{"Content-Type": {"text/html"}},
			URL:     "https://example.com/app/",
		},
		html: "<html><body><div id=\"app\">rendered</div></body></html>",
	}
	launcher := &fakeLauncher{session: session}
	var hooked []*crawler.Page
	f := newTestFetcher(launcher, WithOnSuccess(func(p *crawler.Page) { hooked = append(hooked, p) }))

	page, err := f.Fetch(context.Background(), crawler.URLTarget("https://Example.com/app"))
	require.NoError(t, err)
	require.Equal(t, "https://example.com/app", page.URL())
	require.Equal(t, session.html, page.Content)
	require.Equal(t, http.StatusAccepted, page.Status)
	require.Equal(t, "text/html", page.ContentType)
	require.Equal(t, renderedAt, page.LastLoaded)
	require.True(t, page.Rendered)

	require.Equal(t, []string{"https://example.com/app"}, session.navigated)
	require.Equal(t, 1, session.closed)
	require.Equal(t, 1, launcher.launches)
	require.True(t, launcher.hadBudget)
	require.Equal(t, "silk-agent", launcher.lastOpts.UserAgent)
	require.Nil(t, launcher.lastOpts.Proxy)
	require.Len(t, hooked, 1)
}

func TestFetchOverwritesSuppliedPage(t *testing.T) {
	t.Parallel()

	p := crawler.MustPage("https://example.com/")
	p.Populate(crawler.Snapshot{Content: "<div id=root></div>", Status: 200})

	session := &fakeSession{nav: Navigation{Status: 200}, html: "<html>full</html>"}
	got, err := newTestFetcher(&fakeLauncher{session: session}).Fetch(context.Background(), crawler.PageTarget(p))
	require.NoError(t, err)
	require.Same(t, p, got)
	require.Equal(t, "<html>full</html>", p.Content)
}

func TestFetchPassesProxyToLauncher(t *testing.T) {
	t.Parallel()

	pool, err := proxy.ParseAll([]string{"10.0.0.1:3128:user:pass"})
	require.NoError(t, err)

	launcher := &fakeLauncher{session: &fakeSession{nav: Navigation{Status: 200}}}
	_, err = newTestFetcher(launcher, WithProxies(pool)).Fetch(context.Background(), crawler.URLTarget("https://example.com"))
	require.NoError(t, err)
	require.NotNil(t, launcher.lastOpts.Proxy)
	require.Equal(t, "http://10.0.0.1:3128", launcher.lastOpts.Proxy.Server())
	require.Equal(t, "user", launcher.lastOpts.Proxy.Username)
}

func TestFetchLaunchFailure(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{err: errors.New("chrome not found")}
	called := false
	f := newTestFetcher(launcher, WithOnSuccess(func(*crawler.Page) { called = true }))

	_, err := f.Fetch(context.Background(), crawler.URLTarget("https://example.com"))
	require.ErrorIs(t, err, crawler.ErrFetchFailed)
	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, crawler.TierDynamic, fe.Tier)
	require.Contains(t, err.Error(), "chrome not found")
	require.False(t, called)
}

func TestFetchNavigationFailureClosesBrowser(t *testing.T) {
	t.Parallel()

	session := &fakeSession{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	_, err := newTestFetcher(&fakeLauncher{session: session}).Fetch(context.Background(), crawler.URLTarget("https://nowhere.invalid"))
	require.ErrorIs(t, err, crawler.ErrFetchFailed)
	require.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
	require.Equal(t, 1, session.closed)
}

func TestFetchContentFailureClosesBrowser(t *testing.T) {
	t.Parallel()

	session := &fakeSession{nav: Navigation{Status: 200}, contentErr: errors.New("target crashed")}
	_, err := newTestFetcher(&fakeLauncher{session: session}).Fetch(context.Background(), crawler.URLTarget("https://example.com"))
	require.ErrorIs(t, err, crawler.ErrFetchFailed)
	require.Equal(t, 1, session.closed)
}

func TestFetchInvalidURLSkipsLaunch(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{session: &fakeSession{}}
	_, err := newTestFetcher(launcher).Fetch(context.Background(), crawler.URLTarget("ftp://example.com"))
	require.ErrorIs(t, err, crawler.ErrInvalidURL)
	require.Zero(t, launcher.launches)
}

func TestFetcherNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	f := NewChromedp(Config{})
	require.Equal(t, defaultNavigationTimeout, f.navTimeout())
	f.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, f.navTimeout())
}

func TestNoopFetcher(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Fetch(context.Background(), crawler.URLTarget("https://example.com"))
	require.ErrorIs(t, err, ErrHeadlessDisabled)
	require.ErrorIs(t, err, crawler.ErrFetchFailed)
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.track("main")
	meta.capture(&network.EventResponseReceived{
		Type:    network.ResourceTypeScript,
		FrameID: "main",
		Response: &network.Response{
			Status: 500,
			URL:    "https://example.com/app.js",
		},
	})
	meta.capture(&network.EventResponseReceived{
		Type:    network.ResourceTypeDocument,
		FrameID: "main",
		Response: &network.Response{
			Status:  404,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc", "Vary": []any{"a", "b"}},
		},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 404, status)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, []string{"a", "b"}, headers.Values("Vary"))
	require.Equal(t, "https://example.com/rendered", url)

	status, _, url = newResponseMeta().snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)

	_, _, url = newResponseMeta().snapshotWithFallbacks("https://req", "")
	require.Equal(t, "https://req", url)
}

func TestResponseMetaIgnoresIframeDocuments(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.track("main")
	meta.capture(&network.EventResponseReceived{
		Type:    network.ResourceTypeDocument,
		FrameID: "main",
		Response: &network.Response{
			Status:  200,
			URL:     "https://example.com/",
			Headers: network.Headers{"Content-Type": "text/html"},
		},
	})
	meta.capture(&network.EventResponseReceived{
		Type:    network.ResourceTypeDocument,
		FrameID: "ad-slot",
		Response: &network.Response{
			Status:  404,
			URL:     "https://ads.example/slot",
			Headers: network.Headers{"Content-Type": "text/plain"},
		},
	})

	status, headers, url := meta.snapshotWithFallbacks("https://example.com/", "")
	require.Equal(t, 200, status)
	require.Equal(t, "text/html", headers.Get("Content-Type"))
	require.Equal(t, "https://example.com/", url)
}

func TestResponseMetaTrackResets(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		FrameID:  "main",
		Response: &network.Response{Status: 500, URL: "https://early.example/"},
	})
	status, _, _ := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, http.StatusOK, status)

	meta.track("main")
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		FrameID:  "main",
		Response: &network.Response{Status: 503, URL: "https://example.com/"},
	})
	meta.track("main")
	status, _, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://req", url)
}

func TestIdleWatcherRequiresFreshLifecycle(t *testing.T) {
	t.Parallel()

	main := cdp.FrameID("main")
	w := newIdleWatcher()

	// Events before arm are ignored.
	w.observe(&page.EventLifecycleEvent{FrameID: main, Name: lifecycleInit})
	done := w.arm(main)

	// Stale idle from the blank page.
	w.observe(&page.EventLifecycleEvent{FrameID: main, Name: lifecycleNetworkIdle})
	requireOpen(t, done)

	w.observe(&page.EventLifecycleEvent{FrameID: "child", Name: lifecycleInit})
	w.observe(&page.EventLifecycleEvent{FrameID: "child", Name: lifecycleNetworkIdle})
	requireOpen(t, done)

	w.observe(&page.EventLifecycleEvent{FrameID: main, Name: lifecycleInit})
	w.observe(&page.EventLifecycleEvent{FrameID: main, Name: "load"})
	requireOpen(t, done)

	w.observe(&page.EventLifecycleEvent{FrameID: main, Name: lifecycleNetworkIdle})
	select {
	case <-done:
	default:
		t.Fatal("expected idle signal")
	}

	// A second idle must not close the channel twice.
	w.observe(&page.EventLifecycleEvent{FrameID: main, Name: lifecycleInit})
	w.observe(&page.EventLifecycleEvent{FrameID: main, Name: lifecycleNetworkIdle})
}

func requireOpen(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("idle signaled too early")
	default:
	}
}
