// Package pipeline composes the static and dynamic fetch tiers into a single
// crawler.Fetcher that renders pages in a browser only when their static
// markup looks like a client-rendered application.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/silkcrawl/internal/crawler"
	"github.com/JakeFAU/silkcrawl/internal/headless/detector"
	"github.com/JakeFAU/silkcrawl/internal/metrics"
)

// Mode selects which tiers a pipeline uses.
type Mode string

// Supported modes.
const (
	ModeStatic   Mode = "static"
	ModeDynamic  Mode = "dynamic"
	ModeEscalate Mode = "escalate"
)

// ParseMode validates a mode name. The empty string selects ModeEscalate.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeEscalate, nil
	case ModeStatic, ModeDynamic, ModeEscalate:
		return m, nil
	default:
		return "", fmt.Errorf("unknown pipeline mode %q", s)
	}
}

// Classifier scores fetched markup.
type Classifier interface {
	Classify(page *crawler.Page) detector.Result
}

type settings struct {
	classifier Classifier
	onSuccess  crawler.SuccessFunc
	logger     *zap.Logger
}

// Option customizes a pipeline.
type Option func(*settings)

// WithClassifier replaces the default heuristic classifier.
func WithClassifier(c Classifier) Option {
	return func(s *settings) { s.classifier = c }
}

// WithOnSuccess sets the hook invoked once per successful pipeline run.
func WithOnSuccess(fn crawler.SuccessFunc) Option {
	return func(s *settings) { s.onSuccess = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func newSettings(opts []Option) settings {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.classifier == nil {
		s.classifier = detector.NewHeuristic()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Escalating fetches statically first and re-fetches the same page with the
// dynamic tier when the classifier asks for it.
type Escalating struct {
	static  crawler.Fetcher
	dynamic crawler.Fetcher
	settings
}

// NewEscalating builds an escalating pipeline. The inner fetchers should not
// carry their own success hooks; the pipeline reports the final page.
func NewEscalating(static, dynamic crawler.Fetcher, opts ...Option) *Escalating {
	return &Escalating{static: static, dynamic: dynamic, settings: newSettings(opts)}
}

// Fetch runs the static tier, classifies the result and escalates if needed.
// A failure in either tier fails the whole run.
func (p *Escalating) Fetch(ctx context.Context, target crawler.Target) (*crawler.Page, error) {
	page, err := p.static.Fetch(ctx, target)
	observe(target, crawler.TierStatic, page, err)
	if err != nil {
		return nil, err
	}

	if !page.IsMarkup() {
		p.logger.Debug("skipping classification for structured content",
			zap.String("url", page.URL()),
			zap.String("content_type", page.ContentType),
		)
		return p.finish(page), nil
	}

	result := p.classifier.Classify(page)
	metrics.ObserveScore(result.Score)
	if !result.Escalate {
		p.logger.Debug("static content accepted",
			zap.String("url", page.URL()),
			zap.Int("score", result.Score),
		)
		return p.finish(page), nil
	}

	p.logger.Info("escalating to browser render",
		zap.String("url", page.URL()),
		zap.Int("score", result.Score),
		zap.Int("text_length", result.TextLength),
		zap.Strings("signals", result.Triggered()),
	)
	metrics.ObserveEscalation(page.URL())

	rendered, err := p.dynamic.Fetch(ctx, crawler.PageTarget(page))
	observe(target, crawler.TierDynamic, rendered, err)
	if err != nil {
		return nil, err
	}
	return p.finish(rendered), nil
}

func (p *Escalating) finish(page *crawler.Page) *crawler.Page {
	p.onSuccess.Notify(page)
	return page
}

// Single runs exactly one tier.
type Single struct {
	fetcher crawler.Fetcher
	tier    string
	settings
}

// NewStatic wraps a static fetcher as a pipeline.
func NewStatic(f crawler.Fetcher, opts ...Option) *Single {
	return &Single{fetcher: f, tier: crawler.TierStatic, settings: newSettings(opts)}
}

// NewDynamic wraps a dynamic fetcher as a pipeline.
func NewDynamic(f crawler.Fetcher, opts ...Option) *Single {
	return &Single{fetcher: f, tier: crawler.TierDynamic, settings: newSettings(opts)}
}

// Fetch delegates to the wrapped tier.
func (p *Single) Fetch(ctx context.Context, target crawler.Target) (*crawler.Page, error) {
	page, err := p.fetcher.Fetch(ctx, target)
	observe(target, p.tier, page, err)
	if err != nil {
		return nil, err
	}
	p.onSuccess.Notify(page)
	return page, nil
}

// Select builds the pipeline for mode.
func Select(mode Mode, static, dynamic crawler.Fetcher, opts ...Option) (crawler.Fetcher, error) {
	switch mode {
	case ModeStatic:
		return NewStatic(static, opts...), nil
	case ModeDynamic:
		return NewDynamic(dynamic, opts...), nil
	case ModeEscalate, "":
		return NewEscalating(static, dynamic, opts...), nil
	default:
		return nil, fmt.Errorf("unknown pipeline mode %q", mode)
	}
}

func observe(target crawler.Target, tier string, page *crawler.Page, err error) {
	if err != nil {
		metrics.ObserveFetch(target.String(), tier, metrics.OutcomeFailure, 0)
		return
	}
	metrics.ObserveFetch(page.URL(), tier, metrics.OutcomeSuccess, len(page.Content))
}
