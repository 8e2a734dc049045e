package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Common errors returned by the coordinator.
var (
	// ErrQueueFull is returned by Add when the queue has reached
	// MaxQueueSize.
	ErrQueueFull = errors.New("batch: queue full")

	// ErrClosed is returned by Add after Close.
	ErrClosed = errors.New("batch: coordinator closed")

	// ErrBatchFailed is the rejection delivered to every pending
	// caller when a batch's transaction fails as a whole. Callers are
	// expected to retry at a higher level; the coordinator does not
	// retry internally.
	ErrBatchFailed = errors.New("batch: batch failed")
)

// Priority orders queued operations. Lower values flush first; within
// one priority, operations flush in enqueue order.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// IsValid returns true if the priority is one of the defined levels.
func (p Priority) IsValid() bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Handler executes one batch of operations, transactionally. It
// returns per-operation errors (len must equal len(ops); nil entries
// mean success) plus an overall error. A non-nil overall error means
// the transaction rolled back and every operation in the batch failed.
type Handler func(ctx context.Context, ops []any) ([]error, error)

// Config tunes a Coordinator.
type Config struct {
	// MinBatchSize is the smallest batch the timer trigger will
	// flush. Size and explicit triggers ignore it. Default 1.
	MinBatchSize int `yaml:"min_batch_size"`

	// MaxBatchSize caps how many operations one flush takes off the
	// queue. Reaching it also triggers a flush. Default 100.
	MaxBatchSize int `yaml:"max_batch_size"`

	// FlushInterval is the timer trigger period. Default 1s.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// MaxQueueSize bounds the pending queue; Add fails with
	// ErrQueueFull beyond it. Default 10000.
	MaxQueueSize int `yaml:"max_queue_size"`
}

// DefaultConfig returns the baseline coordinator configuration.
func DefaultConfig() Config {
	return Config{
		MinBatchSize:  1,
		MaxBatchSize:  100,
		FlushInterval: time.Second,
		MaxQueueSize:  10000,
	}
}

func (c Config) withDefaults() Config {
	if c.MinBatchSize <= 0 {
		c.MinBatchSize = 1
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 10000
	}
	return c
}

// Stats is a snapshot of coordinator counters.
type Stats struct {
	Enqueued     uint64 `json:"enqueued"`
	Flushes      uint64 `json:"flushes"`
	Flushed      uint64 `json:"flushed"`
	ItemFailures uint64 `json:"item_failures"`
	BatchFaults  uint64 `json:"batch_faults"`
	Pending      int    `json:"pending"`
}

// item wraps a pending operation with its ordering tags and the
// caller's completion channel.
type item struct {
	op       any
	priority Priority
	seq      uint64
	done     chan error
}

// Coordinator accumulates operations and flushes them in priority
// order through its Handler. Construct with New; the zero value is not
// usable.
type Coordinator struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger

	mu     sync.Mutex
	queue  []*item
	seq    uint64
	closed bool

	// flushMu serializes flushes: the timer and size triggers try the
	// lock and defer when a flush is already running; explicit Flush
	// waits for it.
	flushMu sync.Mutex

	enqueued     atomic.Uint64
	flushes      atomic.Uint64
	flushed      atomic.Uint64
	itemFailures atomic.Uint64
	batchFaults  atomic.Uint64

	stop chan struct{}
	done chan struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger. Nil selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Coordinator and starts its timer loop. Callers must
// Close it to stop the loop and drain pending operations.
func New(cfg Config, handler Handler, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:     cfg.withDefaults(),
		handler: handler,
		logger:  slog.Default(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.timerLoop()
	return c
}

// Add enqueues an operation and returns a channel that resolves — with
// nil on success or the item's error — once the batch containing the
// operation has committed. Callers needing durability must receive
// from the channel before proceeding.
func (c *Coordinator) Add(ctx context.Context, op any, priority Priority) (<-chan error, error) {
	if !priority.IsValid() {
		return nil, fmt.Errorf("batch: invalid priority %d", int(priority))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if len(c.queue) >= c.cfg.MaxQueueSize {
		c.mu.Unlock()
		return nil, ErrQueueFull
	}

	c.seq++
	it := &item{
		op:       op,
		priority: priority,
		seq:      c.seq,
		done:     make(chan error, 1),
	}
	c.insertLocked(it)
	full := len(c.queue) >= c.cfg.MaxBatchSize
	c.mu.Unlock()

	c.enqueued.Add(1)

	if full {
		// Size trigger. Deferred if a flush is already running; the
		// items stay queued for the next trigger.
		go c.tryFlush(context.WithoutCancel(ctx))
	}
	return it.done, nil
}

// AddWait enqueues an operation and blocks until its batch commits or
// the context expires. The operation stays queued on context expiry;
// only its await is abandoned.
func (c *Coordinator) AddWait(ctx context.Context, op any, priority Priority) error {
	done, err := c.Add(ctx, op, priority)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush drains the queue, waiting for any in-flight flush first. It
// returns the first batch-level failure encountered, after attempting
// the full drain.
func (c *Coordinator) Flush(ctx context.Context) error {
	var firstErr error
	for {
		c.mu.Lock()
		pending := len(c.queue)
		c.mu.Unlock()
		if pending == 0 {
			return firstErr
		}
		if err := c.flushOnce(ctx, 1); err != nil && firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Close stops the timer loop, drains the queue, and rejects subsequent
// Adds with ErrClosed. Safe to call more than once.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	return c.Flush(context.Background())
}

// Stats returns a snapshot of the coordinator's counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	pending := len(c.queue)
	c.mu.Unlock()
	return Stats{
		Enqueued:     c.enqueued.Load(),
		Flushes:      c.flushes.Load(),
		Flushed:      c.flushed.Load(),
		ItemFailures: c.itemFailures.Load(),
		BatchFaults:  c.batchFaults.Load(),
		Pending:      pending,
	}
}

// insertLocked keeps the queue sorted by (priority, seq).
func (c *Coordinator) insertLocked(it *item) {
	idx := sort.Search(len(c.queue), func(i int) bool {
		q := c.queue[i]
		if q.priority != it.priority {
			return q.priority > it.priority
		}
		return q.seq > it.seq
	})
	c.queue = append(c.queue, nil)
	copy(c.queue[idx+1:], c.queue[idx:])
	c.queue[idx] = it
}

func (c *Coordinator) timerLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.tryFlush(context.Background())
		case <-c.stop:
			return
		}
	}
}

// tryFlush runs one flush cycle unless a flush is already in progress,
// honoring the timer trigger's MinBatchSize floor.
func (c *Coordinator) tryFlush(ctx context.Context) {
	if !c.flushMu.TryLock() {
		return
	}
	defer c.flushMu.Unlock()

	if err := c.flushBatchLocked(ctx, c.cfg.MinBatchSize); err != nil {
		c.logger.Warn("batch flush failed", "error", err)
	}
}

// flushOnce runs one flush cycle, waiting for any in-flight flush.
func (c *Coordinator) flushOnce(ctx context.Context, minSize int) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.flushBatchLocked(ctx, minSize)
}

// flushBatchLocked takes up to MaxBatchSize items off the front of the
// queue and runs the handler. Callers must hold flushMu.
func (c *Coordinator) flushBatchLocked(ctx context.Context, minSize int) error {
	c.mu.Lock()
	if len(c.queue) < minSize || len(c.queue) == 0 {
		c.mu.Unlock()
		return nil
	}
	n := len(c.queue)
	if n > c.cfg.MaxBatchSize {
		n = c.cfg.MaxBatchSize
	}
	items := c.queue[:n]
	c.queue = append([]*item(nil), c.queue[n:]...)
	c.mu.Unlock()

	c.flushes.Add(1)

	ops := make([]any, len(items))
	for i, it := range items {
		ops[i] = it.op
	}

	itemErrs, err := c.handler(ctx, ops)
	if err != nil {
		// Transaction-level failure: every caller in the batch gets a
		// distinguishable rejection.
		c.batchFaults.Add(1)
		for _, it := range items {
			it.done <- fmt.Errorf("%w: %v", ErrBatchFailed, err)
		}
		return err
	}

	for i, it := range items {
		var itemErr error
		if i < len(itemErrs) {
			itemErr = itemErrs[i]
		}
		if itemErr != nil {
			c.itemFailures.Add(1)
		}
		it.done <- itemErr
	}
	c.flushed.Add(uint64(len(items)))
	return nil
}
