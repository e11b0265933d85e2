package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/silkcrawl/internal/crawler"
)

// ErrHeadlessDisabled is returned by Noop for every fetch.
var ErrHeadlessDisabled = errors.New("headless fetcher not configured")

// Noop implements crawler.Fetcher but always fails, for deployments where no
// browser is available.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch reports a dynamic-tier failure wrapping ErrHeadlessDisabled.
func (Noop) Fetch(_ context.Context, target crawler.Target) (*crawler.Page, error) {
	page, err := target.Resolve()
	if err != nil {
		return nil, err
	}
	return nil, crawler.NewFetchError(crawler.TierDynamic, page.URL(), ErrHeadlessDisabled)
}
