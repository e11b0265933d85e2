// Package worker drives a backlog of fetch targets through a pipeline.
//
// A Coordinator processes strictly one target at a time. Stop only prevents
// the next dequeue; a fetch already in flight always runs to completion.
// Callers that want parallelism run several coordinators (see the dispatcher
// package).
package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/silkcrawl/internal/crawler"
	"github.com/JakeFAU/silkcrawl/internal/id/uuid"
	"github.com/JakeFAU/silkcrawl/internal/metrics"
	"github.com/JakeFAU/silkcrawl/internal/queue"
	"github.com/JakeFAU/silkcrawl/internal/queue/memory"
)

// Item status labels.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithBacklog replaces the in-memory backlog.
func WithBacklog(b queue.Backlog) Option {
	return func(c *Coordinator) { c.backlog = b }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithIDGenerator sets the generator used for run IDs.
func WithIDGenerator(ids crawler.IDGenerator) Option {
	return func(c *Coordinator) { c.ids = ids }
}

// Coordinator owns a backlog and drains it through a fetcher.
type Coordinator struct {
	fetcher crawler.Fetcher
	backlog queue.Backlog
	ids     crawler.IDGenerator
	logger  *zap.Logger

	mu       sync.Mutex
	running  bool
	stopping bool
	halted   func() bool
}

// New constructs a Coordinator around fetcher, which is usually a pipeline.
func New(fetcher crawler.Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher: fetcher,
		backlog: memory.NewQueue(),
		ids:     uuid.New(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Enqueue appends targets to the back of the backlog. It is safe to call
// while Start is draining.
func (c *Coordinator) Enqueue(targets ...crawler.Target) {
	c.backlog.Enqueue(targets...)
}

// EnqueueURLs appends raw URLs. They are validated when dequeued.
func (c *Coordinator) EnqueueURLs(raws ...string) {
	c.backlog.Enqueue(crawler.URLTargets(raws...)...)
}

// Pending reports how many targets are waiting.
func (c *Coordinator) Pending() int {
	return c.backlog.Len()
}

// Running reports whether a drain is active and has not been asked to stop.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && !c.stopping
}

// Stop asks the active drain to finish after the current fetch.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.stopping = true
	}
}

// Start drains the backlog until it is empty, Stop is called, or ctx ends.
// Fetch failures are logged and skipped. A call made while another drain is
// active withdraws any pending stop request, so that drain keeps going, and
// returns nil immediately. Start returns ctx.Err() wrapped when the context
// ended the drain.
func (c *Coordinator) Start(ctx context.Context) error {
	return c.StartUntil(ctx, nil)
}

// StartUntil is Start with an extra stop condition: halted is consulted
// before every dequeue, alongside Stop. It lets an owner stop a drain that
// had not begun when the owner decided to stop.
func (c *Coordinator) StartUntil(ctx context.Context, halted func() bool) error {
	c.mu.Lock()
	if c.running {
		c.stopping = false
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stopping = false
	c.halted = halted
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.stopping = false
		c.halted = nil
		c.mu.Unlock()
	}()

	metrics.IncActiveCoordinators()
	defer metrics.DecActiveCoordinators()

	logger := c.logger.With(zap.String("run_id", c.runID()))
	logger.Info("coordinator started", zap.Int("pending", c.Pending()))

	var processed, failed int
	for {
		if err := ctx.Err(); err != nil {
			logger.Warn("coordinator canceled",
				zap.Int("processed", processed),
				zap.Int("failed", failed),
				zap.Int("pending", c.Pending()),
			)
			return fmt.Errorf("coordinator canceled: %w", err)
		}

		target, ok := c.next()
		if !ok {
			break
		}

		page, err := c.fetcher.Fetch(ctx, target)
		if err != nil {
			failed++
			metrics.ObserveItem(StatusFailed)
			logger.Warn("fetch failed", zap.String("url", target.String()), zap.Error(err))
			continue
		}
		processed++
		metrics.ObserveItem(StatusProcessed)
		logger.Debug("fetch completed",
			zap.String("url", page.URL()),
			zap.Int("status", page.Status),
			zap.Bool("rendered", page.Rendered),
		)
	}

	logger.Info("coordinator stopped",
		zap.Int("processed", processed),
		zap.Int("failed", failed),
		zap.Int("pending", c.Pending()),
	)
	return nil
}

// next dequeues under the lock so Stop and dequeue never interleave.
func (c *Coordinator) next() (crawler.Target, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping || (c.halted != nil && c.halted()) {
		return crawler.Target{}, false
	}
	return c.backlog.Dequeue()
}

func (c *Coordinator) runID() string {
	if c.ids == nil {
		return ""
	}
	id, err := c.ids.NewID()
	if err != nil {
		c.logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}
