// Package dispatcher fans a crawl out over several independent coordinators.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/silkcrawl/internal/crawler"
	"github.com/JakeFAU/silkcrawl/internal/worker"
)

// Dispatcher distributes targets round-robin across coordinators and drains
// them concurrently. Each coordinator remains strictly sequential.
//
// While Run is active, targets only go to coordinators that are still
// draining, and a coordinator that finds new work after its drain ends is
// started again. Run returns once every coordinator is idle with an empty
// backlog, or after Stop.
type Dispatcher struct {
	coordinators []*worker.Coordinator

	mu      sync.Mutex
	next    int
	running bool
	active  []bool

	stopped atomic.Bool
}

// New creates a Dispatcher.
func New(coordinators []*worker.Coordinator) (*Dispatcher, error) {
	if len(coordinators) == 0 {
		return nil, errors.New("dispatcher needs at least one coordinator")
	}
	return &Dispatcher{
		coordinators: coordinators,
		active:       make([]bool, len(coordinators)),
	}, nil
}

// NewPool builds n coordinators that share fetcher.
func NewPool(n int, fetcher crawler.Fetcher, opts ...worker.Option) (*Dispatcher, error) {
	if n < 1 {
		return nil, fmt.Errorf("coordinator count must be >= 1, got %d", n)
	}
	coordinators := make([]*worker.Coordinator, 0, n)
	for i := 0; i < n; i++ {
		coordinators = append(coordinators, worker.New(fetcher, opts...))
	}
	return New(coordinators)
}

// Enqueue assigns each target to the next coordinator in turn. During Run,
// coordinators that already finished are skipped. When none is left the
// targets stay queued for the next Run.
func (d *Dispatcher) Enqueue(targets ...crawler.Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range targets {
		d.coordinators[d.pick()].Enqueue(t)
	}
}

// pick must be called with d.mu held.
func (d *Dispatcher) pick() int {
	n := len(d.coordinators)
	for k := 0; k < n; k++ {
		i := (d.next + k) % n
		if !d.running || d.active[i] {
			d.next = (i + 1) % n
			return i
		}
	}
	i := d.next
	d.next = (d.next + 1) % n
	return i
}

// Run starts every coordinator and blocks until all of them are done. A Stop
// issued before Run makes it return without fetching anything. A second
// concurrent Run returns nil immediately.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	for i := range d.active {
		d.active[i] = true
	}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		clear(d.active)
		d.mu.Unlock()
		d.stopped.Store(false)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range d.coordinators {
		g.Go(func() error {
			return d.drain(gctx, i, c)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatcher run: %w", err)
	}
	return nil
}

// drain restarts c until it finishes with nothing queued. The pending check
// and the retirement happen under d.mu so Enqueue never hands a target to a
// coordinator that is about to retire.
func (d *Dispatcher) drain(ctx context.Context, i int, c *worker.Coordinator) error {
	for {
		err := c.StartUntil(ctx, d.stopped.Load)

		d.mu.Lock()
		if err != nil || d.stopped.Load() || c.Pending() == 0 {
			d.active[i] = false
			d.mu.Unlock()
			return err
		}
		d.mu.Unlock()
	}
}

// Stop asks every coordinator to stop after its current fetch. Coordinators
// that have not started yet never dequeue. The request lasts until the
// current or next Run returns.
func (d *Dispatcher) Stop() {
	d.stopped.Store(true)
	for _, c := range d.coordinators {
		c.Stop()
	}
}

// Pending sums the backlog across coordinators.
func (d *Dispatcher) Pending() int {
	total := 0
	for _, c := range d.coordinators {
		total += c.Pending()
	}
	return total
}

// Size reports the number of coordinators.
func (d *Dispatcher) Size() int {
	return len(d.coordinators)
}
