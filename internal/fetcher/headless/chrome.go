package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	lifecycleInit        = "init"
	lifecycleNetworkIdle = "networkIdle"
)

// ChromeLauncher starts a fresh headless Chrome process per session.
type ChromeLauncher struct{}

// Launch starts an isolated browser. The returned session owns the process
// and must be closed by the caller.
func (ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Proxy != nil {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy.Server()))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		meta: newResponseMeta(),
		idle: newIdleWatcher(),
	}
	setup := []chromedp.Action{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
	}
	if opts.Proxy != nil && opts.Proxy.Authenticated() {
		s.proxyUser = opts.Proxy.Username
		s.proxyPass = opts.Proxy.Password
		s.interceptAuth = true
		setup = append(setup, fetch.Enable().WithHandleAuthRequests(true))
	}
	chromedp.ListenTarget(browserCtx, s.handleEvent)

	if err := chromedp.Run(browserCtx, setup...); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	meta *responseMeta
	idle *idleWatcher

	interceptAuth bool
	proxyUser     string
	proxyPass     string

	closeOnce sync.Once
	closeErr  error
}

func (s *chromeSession) Navigate(ctx context.Context, url string) (Navigation, error) {
	runCtx, cancel := s.bind(ctx)
	defer cancel()

	var (
		idle     <-chan struct{}
		finalURL string
	)
	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("frame tree: %w", err)
			}
			s.meta.track(tree.Frame.ID)
			idle = s.idle.arm(tree.Frame.ID)
			return nil
		}),
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			select {
			case <-idle:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("wait for network idle: %w", ctx.Err())
			}
		}),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return Navigation{}, err
	}
	status, headers, resolved := s.meta.snapshotWithFallbacks(url, finalURL)
	return Navigation{Status: status, Headers: headers, URL: resolved}, nil
}

func (s *chromeSession) Content(ctx context.Context) (string, error) {
	runCtx, cancel := s.bind(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		err := chromedp.Cancel(s.ctx)
		s.cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// bind derives a run context from the browser context that also ends when ctx
// does.
func (s *chromeSession) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) handleEvent(ev any) {
	switch ev := ev.(type) {
	case *network.EventResponseReceived:
		s.meta.capture(ev)
	case *page.EventLifecycleEvent:
		s.idle.observe(ev)
	case *fetch.EventRequestPaused:
		if !s.interceptAuth {
			return
		}
		go func() {
			_ = chromedp.Run(s.ctx, fetch.ContinueRequest(ev.RequestID))
		}()
	case *fetch.EventAuthRequired:
		if !s.interceptAuth {
			return
		}
		resp := &fetch.AuthChallengeResponse{Response: fetch.AuthChallengeResponseResponseDefault}
		if ev.AuthChallenge != nil && ev.AuthChallenge.Source == fetch.AuthChallengeSourceProxy {
			resp = &fetch.AuthChallengeResponse{
				Response: fetch.AuthChallengeResponseResponseProvideCredentials,
				Username: s.proxyUser,
				Password: s.proxyPass,
			}
		}
		go func() {
			_ = chromedp.Run(s.ctx, fetch.ContinueWithAuth(ev.RequestID, resp))
		}()
	}
}

// idleWatcher signals once the main frame reports networkIdle for a
// navigation that started after arm was called.
type idleWatcher struct {
	mu       sync.Mutex
	frame    cdp.FrameID
	armed    bool
	seenInit bool
	fired    bool
	done     chan struct{}
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{done: make(chan struct{})}
}

func (w *idleWatcher) arm(frame cdp.FrameID) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frame = frame
	w.armed = true
	w.seenInit = false
	w.fired = false
	w.done = make(chan struct{})
	return w.done
}

func (w *idleWatcher) observe(ev *page.EventLifecycleEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed || w.fired || ev.FrameID != w.frame {
		return
	}
	switch ev.Name {
	case lifecycleInit:
		// Redirects and client-side reloads restart the lifecycle.
		w.seenInit = true
	case lifecycleNetworkIdle:
		if w.seenInit {
			w.fired = true
			close(w.done)
		}
	}
}

// responseMeta records the document response of the tracked main frame.
// Iframe documents are ignored.
type responseMeta struct {
	mu      sync.RWMutex
	frame   cdp.FrameID
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

// track resets the record and follows frame from now on.
func (m *responseMeta) track(frame cdp.FrameID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = frame
	m.status = 0
	m.headers = http.Header{}
	m.url = ""
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.RLock()
	frame := m.frame
	m.mu.RUnlock()
	if frame == "" || event.FrameID != frame {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

// snapshotWithFallbacks reports the last document response. Navigations that
// never produced one (cached or synthetic documents) read as 200.
func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, m.headers.Clone(), m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}
