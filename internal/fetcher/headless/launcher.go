package headless

import (
	"context"
	"net/http"
	"time"

	"github.com/JakeFAU/silkcrawl/internal/proxy"
)

// LaunchOptions describes one isolated browser instance.
type LaunchOptions struct {
	UserAgent string
	ExecPath  string
	// Proxy is attached to the whole browser context, not to a single request.
	Proxy *proxy.Proxy
}

// Navigation is the document response observed by a navigation.
type Navigation struct {
	Status  int
	Headers http.Header
	URL     string
}

// Session is a launched browser owned by exactly one fetch.
type Session interface {
	// Navigate loads url and returns once the network has gone idle.
	Navigate(ctx context.Context, url string) (Navigation, error)
	// Content returns the rendered document markup.
	Content(ctx context.Context) (string, error)
	// Close tears the browser down. It is safe to call more than once.
	Close() error
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, opts LaunchOptions) (Session, error)

// Launch calls fn.
func (fn LauncherFunc) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	return fn(ctx, opts)
}

const defaultNavigationTimeout = 45 * time.Second
