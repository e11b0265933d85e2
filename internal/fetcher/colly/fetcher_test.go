package collyfetcher

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/silkcrawl/internal/crawler"
	"github.com/JakeFAU/silkcrawl/internal/proxy"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func fixedClock() crawler.Clock {
	return crawler.ClockFunc(func() time.Time { return fixedNow })
}

func TestFetchPopulatesPage(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Origin", "test")
		_, _ = w.Write([]byte("<html><body><p>hello</p></body></html>"))
	}))
	t.Cleanup(srv.Close)

	var hookCalls []*crawler.Page
	f := New(Config{UserAgent: "silk-agent", Timeout: time.Second},
		WithClock(fixedClock()),
		WithOnSuccess(func(p *crawler.Page) { hookCalls = append(hookCalls, p) }),
	)

	page, err := f.Fetch(context.Background(), crawler.URLTarget(srv.URL+"/index"))
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/index", page.URL())
	require.Equal(t, http.StatusOK, page.Status)
	require.Equal(t, "<html><body><p>hello</p></body></html>", page.Content)
	require.Equal(t, "text/html; charset=utf-8", page.ContentType)
	require.Equal(t, "test", page.Headers.Get("X-Origin"))
	require.Equal(t, fixedNow, page.LastLoaded)
	require.False(t, page.Rendered)
	require.Equal(t, "silk-agent", gotUA)
	require.Len(t, hookCalls, 1)
	require.Same(t, page, hookCalls[0])
}

func TestFetchMutatesProvidedPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ip":"203.0.113.7"}`))
	}))
	t.Cleanup(srv.Close)

	page := crawler.MustPage(srv.URL + "/location")
	got, err := New(Config{}).Fetch(context.Background(), crawler.PageTarget(page))
	require.NoError(t, err)
	require.Same(t, page, got)
	require.Equal(t, `{"ip":"203.0.113.7"}`, page.Content)
	require.False(t, page.IsMarkup())
}

func TestFetchCanBeRepeated(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{})
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), crawler.URLTarget(srv.URL))
		require.NoError(t, err)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, hits)
}

func TestFetchNon2xxFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	called := false
	f := New(Config{}, WithOnSuccess(func(*crawler.Page) { called = true }))
	_, err := f.Fetch(context.Background(), crawler.URLTarget(srv.URL+"/404"))
	require.ErrorIs(t, err, crawler.ErrFetchFailed)

	var fe *crawler.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, crawler.TierStatic, fe.Tier)
	require.Equal(t, srv.URL+"/404", fe.URL)
	require.Contains(t, err.Error(), "status 404")
	require.False(t, called)
}

func TestFetchConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), crawler.URLTarget(addr))
	require.ErrorIs(t, err, crawler.ErrFetchFailed)
}

func TestFetchInvalidURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}).Fetch(context.Background(), crawler.URLTarget("not-absolute"))
	require.ErrorIs(t, err, crawler.ErrInvalidURL)
	require.NotErrorIs(t, err, crawler.ErrFetchFailed)
}

func TestFetchContextCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: 5 * time.Second}).Fetch(ctx, crawler.URLTarget(srv.URL))
	require.ErrorIs(t, err, crawler.ErrFetchFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchRoutesThroughProxy(t *testing.T) {
	t.Parallel()

	type seen struct {
		target string
		auth   string
	}
	requests := make(chan seen, 1)
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- seen{target: r.URL.String(), auth: r.Header.Get("Proxy-Authorization")}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("via proxy"))
	}))
	t.Cleanup(proxySrv.Close)

	u, err := url.Parse(proxySrv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	p, err := proxy.Parse(host + ":" + port + ":alice:s3cret")
	require.NoError(t, err)

	f := New(Config{Timeout: time.Second}, WithProxies(proxy.NewPool(p)))
	page, err := f.Fetch(context.Background(), crawler.URLTarget("http://origin.example/page"))
	require.NoError(t, err)
	require.Equal(t, "via proxy", page.Content)

	got := <-requests
	require.Equal(t, "http://origin.example/page", got.target)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:s3cret"))
	require.Equal(t, want, got.auth)
}

func TestPickProxyWithoutPool(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	u, err := f.pickProxy(nil)
	require.NoError(t, err)
	require.Nil(t, u)
	require.Equal(t, defaultTimeout, f.timeout())
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, WithClock(fixedClock()))
	var (
		snap     crawler.Snapshot
		received bool
		fetchErr error
	)
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &snap, &received, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"text/plain"}},
	})
	require.True(t, received)
	require.Equal(t, http.StatusCreated, snap.Status)
	require.Equal(t, "body", snap.Content)
	require.Equal(t, "text/plain", snap.ContentType)
	require.Equal(t, fixedNow, snap.LoadedAt)

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	require.EqualError(t, fetchErr, "status 502: Bad Gateway")

	hooks.onError(nil, nil)
	require.EqualError(t, fetchErr, "unknown colly error")
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
