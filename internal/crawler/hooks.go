package crawler

import (
	"time"

	"go.uber.org/zap"
)

// SuccessFunc is invoked after a terminal successful fetch.
type SuccessFunc func(*Page)

// LogPage returns a SuccessFunc that logs the URL, load time and status.
func LogPage(logger *zap.Logger) SuccessFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(p *Page) {
		logger.Info("page loaded",
			zap.String("url", p.URL()),
			zap.Time("last_loaded", p.LastLoaded.UTC().Truncate(time.Millisecond)),
			zap.Int("status", p.Status),
			zap.Bool("rendered", p.Rendered),
		)
	}
}

// Chain combines hooks into one, skipping nil entries.
func Chain(hooks ...SuccessFunc) SuccessFunc {
	var active []SuccessFunc
	for _, h := range hooks {
		if h != nil {
			active = append(active, h)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	}
	return func(p *Page) {
		for _, h := range active {
			h(p)
		}
	}
}

// Notify calls fn with p when fn is set.
func (fn SuccessFunc) Notify(p *Page) {
	if fn != nil {
		fn(p)
	}
}
