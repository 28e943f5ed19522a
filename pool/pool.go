// Package pool implements a bounded pool of reusable resources. Items are
// created on demand by a Factory, checked out by at most one holder at a
// time and evicted after sitting idle.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shrek82/persist/logger"
)

var (
	// ErrResourceExhausted is returned when no item became available before
	// the acquire deadline.
	ErrResourceExhausted = errors.New("pool: resource exhausted")
	// ErrClosed is returned by Acquire once the pool has been drained.
	ErrClosed = errors.New("pool: closed")
	// ErrUnknownItem is returned when releasing an item the pool did not hand out.
	ErrUnknownItem = errors.New("pool: item is not checked out")
)

// Factory creates and disposes of pooled items.
type Factory[T any] interface {
	Create(ctx context.Context) (T, error)
	Destroy(item T) error
	Validate(ctx context.Context, item T) error
}

// Options defines the sizing and eviction policy.
type Options struct {
	Min int
	Max int
	// IdleTimeout is how long an item may sit idle before eviction. Zero
	// keeps idle items forever.
	IdleTimeout time.Duration
	// EvictionInterval is the period of the eviction sweep. Zero disables it.
	EvictionInterval time.Duration
	// TestOnBorrow validates idle items before handing them out.
	TestOnBorrow bool
	// AcquireTimeout bounds how long Acquire waits. Zero waits for the
	// caller's context only.
	AcquireTimeout time.Duration
	Logger         logger.Logger
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Size    int
	Idle    int
	InUse   int
	Waiting int
}

type idleItem[T any] struct {
	item     T
	released time.Time
}

// Pool hands out at most Max items at a time.
type Pool[T comparable] struct {
	factory Factory[T]
	opts    Options
	log     logger.Logger
	sem     *semaphore.Weighted

	mu      sync.Mutex
	idle    []idleItem[T] // oldest first
	inUse   map[T]struct{}
	// pending counts items held by a permit holder that are neither idle
	// nor checked out yet: factory calls in flight and idle items under
	// validation. They count toward the pool size.
	pending int
	waiting int
	closed  bool
	drained chan struct{}

	stopEvict chan struct{}
	wg        sync.WaitGroup
}

// New creates a pool and starts its eviction sweep. No item is created
// until the first Acquire or an explicit Start.
func New[T comparable](factory Factory[T], opts Options) (*Pool[T], error) {
	if factory == nil {
		return nil, errors.New("pool: factory is required")
	}
	if opts.Max < 1 {
		return nil, fmt.Errorf("pool: max must be positive, got %d", opts.Max)
	}
	if opts.Min < 0 || opts.Min > opts.Max {
		return nil, fmt.Errorf("pool: min must be within [0, %d], got %d", opts.Max, opts.Min)
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	p := &Pool[T]{
		factory:   factory,
		opts:      opts,
		log:       log,
		sem:       semaphore.NewWeighted(int64(opts.Max)),
		inUse:     make(map[T]struct{}),
		stopEvict: make(chan struct{}),
	}
	if opts.EvictionInterval > 0 && opts.IdleTimeout > 0 {
		p.wg.Add(1)
		go p.evictLoop()
	}
	return p, nil
}

// Start creates items until the pool holds Min of them.
func (p *Pool[T]) Start(ctx context.Context) error {
	for {
		p.mu.Lock()
		closed, full := p.closed, p.size() >= p.opts.Min
		p.mu.Unlock()
		if closed {
			return ErrClosed
		}
		if full {
			return nil
		}

		if err := p.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		// An Acquire may have created or released items while we waited.
		p.mu.Lock()
		if p.closed || p.size() >= p.opts.Min {
			p.mu.Unlock()
			p.sem.Release(1)
			continue
		}
		p.pending++
		p.mu.Unlock()

		item, err := p.factory.Create(ctx)
		if err != nil {
			return p.abandon(fmt.Errorf("pool: create: %w", err))
		}
		if _, err := p.settle(item, func(item T) {
			p.idle = append(p.idle, idleItem[T]{item: item, released: time.Now()})
		}); err != nil {
			return err
		}
		p.sem.Release(1)
	}
}

// Acquire checks out an item, reusing the most recently released one or
// creating a new one. It blocks while Max items are checked out.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T
	if p.isClosed() {
		return zero, ErrClosed
	}
	if p.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.AcquireTimeout)
		defer cancel()
	}

	p.mu.Lock()
	p.waiting++
	p.mu.Unlock()
	err := p.sem.Acquire(ctx, 1)
	p.mu.Lock()
	p.waiting--
	p.mu.Unlock()
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrResourceExhausted, err)
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.sem.Release(1)
			return zero, ErrClosed
		}
		p.pending++
		n := len(p.idle)
		if n == 0 {
			p.mu.Unlock()
			item, err := p.factory.Create(ctx)
			if err != nil {
				return zero, p.abandon(fmt.Errorf("pool: create: %w", err))
			}
			return p.settle(item, func(item T) { p.inUse[item] = struct{}{} })
		}
		it := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		if p.opts.TestOnBorrow {
			if err := p.factory.Validate(ctx, it.item); err != nil {
				p.log.Warn("Discarding item that failed validation: %v", err)
				_ = p.destroy(it.item)
				p.mu.Lock()
				p.pending--
				p.signalDrained()
				p.mu.Unlock()
				continue
			}
		}
		return p.settle(it.item, func(item T) { p.inUse[item] = struct{}{} })
	}
}

// settle hands a pending item to keep under mu, leaving the caller with
// its permit. When the pool was drained meanwhile the item is destroyed
// and the permit released instead.
func (p *Pool[T]) settle(item T, keep func(T)) (T, error) {
	p.mu.Lock()
	if !p.closed {
		p.pending--
		keep(item)
		p.mu.Unlock()
		return item, nil
	}
	p.mu.Unlock()
	_ = p.destroy(item)
	var zero T
	return zero, p.abandon(ErrClosed)
}

// abandon drops a pending slot and its permit, returning err.
func (p *Pool[T]) abandon(err error) error {
	p.mu.Lock()
	p.pending--
	p.signalDrained()
	p.mu.Unlock()
	p.sem.Release(1)
	return err
}

// Release returns a checked-out item to the idle set. After Drain the
// item is destroyed instead.
func (p *Pool[T]) Release(item T) error {
	p.mu.Lock()
	if _, ok := p.inUse[item]; !ok {
		p.mu.Unlock()
		return ErrUnknownItem
	}
	if p.closed {
		p.mu.Unlock()
		return p.Destroy(item)
	}
	delete(p.inUse, item)
	p.idle = append(p.idle, idleItem[T]{item: item, released: time.Now()})
	p.mu.Unlock()
	p.sem.Release(1)
	return nil
}

// Destroy removes a checked-out item from the pool and disposes of it.
func (p *Pool[T]) Destroy(item T) error {
	p.mu.Lock()
	_, ok := p.inUse[item]
	p.mu.Unlock()
	if !ok {
		return ErrUnknownItem
	}
	// The item stays accounted for until it is gone, so Drain cannot
	// return while a destroy is in flight.
	err := p.destroy(item)
	p.mu.Lock()
	delete(p.inUse, item)
	p.signalDrained()
	p.mu.Unlock()
	p.sem.Release(1)
	return err
}

// Drain closes the pool: new acquisitions fail, idle items are destroyed
// and Drain waits until every checked-out or pending item has come back
// or been destroyed. Calling it again waits for the same condition.
func (p *Pool[T]) Drain(ctx context.Context) error {
	p.mu.Lock()
	first := !p.closed
	p.closed = true
	idle := p.idle
	p.idle = nil
	var done chan struct{}
	if len(p.inUse) > 0 || p.pending > 0 {
		if p.drained == nil {
			p.drained = make(chan struct{})
		}
		done = p.drained
	}
	p.mu.Unlock()

	if first {
		close(p.stopEvict)
	}
	var errs []error
	for _, it := range idle {
		if err := p.destroy(it.item); err != nil {
			errs = append(errs, err)
		}
	}
	if done != nil {
		p.log.Debug("Waiting for checked-out items before draining")
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("pool: drain: %w", ctx.Err()))
		}
	}
	p.wg.Wait()
	return errors.Join(errs...)
}

// Stats reports current counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Size:    p.size(),
		Idle:    len(p.idle),
		InUse:   len(p.inUse),
		Waiting: p.waiting,
	}
}

func (p *Pool[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// size counts idle, checked-out and in-flight items. mu must be held.
func (p *Pool[T]) size() int {
	return len(p.idle) + len(p.inUse) + p.pending
}

// signalDrained must be called with mu held.
func (p *Pool[T]) signalDrained() {
	if p.closed && len(p.inUse) == 0 && p.pending == 0 && p.drained != nil {
		close(p.drained)
		p.drained = nil
	}
}

func (p *Pool[T]) destroy(item T) error {
	if err := p.factory.Destroy(item); err != nil {
		p.log.Warn("Failed to destroy pooled item: %v", err)
		return err
	}
	return nil
}

func (p *Pool[T]) evictLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopEvict:
			return
		case <-ticker.C:
			p.evict(time.Now())
		}
	}
}

// evict destroys items idle longer than IdleTimeout, oldest first, while
// the pool holds more than Min items.
func (p *Pool[T]) evict(now time.Time) int {
	p.mu.Lock()
	total := p.size()
	var victims []T
	keep := p.idle[:0]
	for _, it := range p.idle {
		if total > p.opts.Min && now.Sub(it.released) > p.opts.IdleTimeout {
			victims = append(victims, it.item)
			total--
			continue
		}
		keep = append(keep, it)
	}
	clear(p.idle[len(keep):])
	p.idle = keep
	p.mu.Unlock()

	for _, item := range victims {
		_ = p.destroy(item)
	}
	if len(victims) > 0 {
		p.log.Debug("Evicted %d idle items", len(victims))
	}
	return len(victims)
}
