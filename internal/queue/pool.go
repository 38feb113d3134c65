// Package queue — pool.go
//
// Generic bounded job queue and worker pool shared by every stage of the
// ingestion pipeline (error-processing, aggregation, sourcemap,
// alert-notification, optional AI-diagnosis). Each stage gets its own
// Pool with independently configured concurrency; within a pool, jobs are
// consumed in FIFO enqueue order but workers may finish out of order.
//
// Backpressure: Enqueue never blocks. When the channel buffer is full the
// job is dropped and droppedTotal is incremented — the caller (typically
// the intake handler) observes this via TryEnqueue's bool return and
// surfaces 429 to the client.
//
// Retries: a failing Handler is retried up to maxRetries times with
// exponential backoff (2^attempt * baseDelay). After the final attempt the
// job is hand to the DeadLetter sink and logged.

package queue

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Handler processes one job. A non-nil error triggers the retry policy.
type Handler[T any] func(ctx context.Context, job T) error

// DeadLetter receives jobs that exhausted their retry budget.
type DeadLetter[T any] func(job T, lastErr error)

// Metrics is the subset of observability the pool reports through.
// Implementations with no metrics wired may pass NopMetrics{}.
type Metrics interface {
	SetDepth(queue string, depth float64)
	IncProcessed(queue string)
	IncDropped(queue string)
	IncRetried(queue string)
	IncDeadLettered(queue string)
}

// NopMetrics discards every call. Useful in tests.
type NopMetrics struct{}

func (NopMetrics) SetDepth(string, float64)   {}
func (NopMetrics) IncProcessed(string)        {}
func (NopMetrics) IncDropped(string)          {}
func (NopMetrics) IncRetried(string)          {}
func (NopMetrics) IncDeadLettered(string)     {}

// Config controls a Pool's concurrency and retry policy.
type Config struct {
	Name        string
	Capacity    int
	Concurrency int
	MaxRetries  int
	BaseDelay   time.Duration
}

// DefaultConfig returns the standard pool defaults (maxRetries=3, baseDelay=2s).
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		Capacity:    1024,
		Concurrency: 4,
		MaxRetries:  3,
		BaseDelay:   2 * time.Second,
	}
}

type job[T any] struct {
	payload T
	attempt int
}

// Pool is a bounded, multi-worker FIFO job queue for a single pipeline stage.
type Pool[T any] struct {
	cfg     Config
	ch      chan job[T]
	handler Handler[T]
	deadLtr DeadLetter[T]
	metrics Metrics
	log     *zap.Logger
	paused  atomic.Bool
}

// New creates a Pool. handler is invoked by each worker goroutine; deadLtr
// (may be nil) is invoked once per job that exhausts its retries.
func New[T any](cfg Config, handler Handler[T], deadLtr DeadLetter[T], metrics Metrics, log *zap.Logger) *Pool[T] {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	return &Pool[T]{
		cfg:     cfg,
		ch:      make(chan job[T], cfg.Capacity),
		handler: handler,
		deadLtr: deadLtr,
		metrics: metrics,
		log:     log,
	}
}

// TryEnqueue adds a job at attempt 0. Returns false if the queue is full.
func (p *Pool[T]) TryEnqueue(payload T) bool {
	select {
	case p.ch <- job[T]{payload: payload}:
		p.metrics.SetDepth(p.cfg.Name, float64(len(p.ch)))
		return true
	default:
		p.metrics.IncDropped(p.cfg.Name)
		return false
	}
}

// Run starts cfg.Concurrency worker goroutines, blocking until ctx is
// cancelled and all in-flight jobs have been handled.
func (p *Pool[T]) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < p.cfg.Concurrency; i++ {
		go p.worker(ctx, done)
	}
	<-ctx.Done()
	for i := 0; i < p.cfg.Concurrency; i++ {
		<-done
	}
}

func (p *Pool[T]) worker(ctx context.Context, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.paused.Load() {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				continue
			}
		}
		select {
		case <-ctx.Done():
			return
		case j := <-p.ch:
			p.metrics.SetDepth(p.cfg.Name, float64(len(p.ch)))
			p.process(ctx, j)
		}
	}
}

// Pause stops workers from consuming new jobs; TryEnqueue keeps accepting
// until the queue fills. Used by the admin control surface to freeze a
// misbehaving pipeline stage without losing its backlog.
func (p *Pool[T]) Pause() { p.paused.Store(true) }

// Resume undoes Pause.
func (p *Pool[T]) Resume() { p.paused.Store(false) }

// Paused reports whether the pool is currently paused.
func (p *Pool[T]) Paused() bool { return p.paused.Load() }

// SetDeadLetter installs dl as the pool's dead-letter sink after
// construction, so a DeadLetterStore (which itself wraps the pool it
// reports on) can be wired in once the pool exists.
func (p *Pool[T]) SetDeadLetter(dl DeadLetter[T]) { p.deadLtr = dl }

func (p *Pool[T]) process(ctx context.Context, j job[T]) {
	err := p.runHandler(ctx, j.payload)
	if err == nil {
		p.metrics.IncProcessed(p.cfg.Name)
		return
	}

	if j.attempt >= p.cfg.MaxRetries {
		p.metrics.IncDeadLettered(p.cfg.Name)
		if p.log != nil {
			p.log.Error("job dead-lettered after exhausting retries",
				zap.String("queue", p.cfg.Name), zap.Int("attempts", j.attempt+1), zap.Error(err))
		}
		if p.deadLtr != nil {
			p.deadLtr(j.payload, err)
		}
		return
	}

	p.metrics.IncRetried(p.cfg.Name)
	delay := time.Duration(math.Pow(2, float64(j.attempt))) * p.cfg.BaseDelay
	if p.log != nil {
		p.log.Warn("job failed, retrying",
			zap.String("queue", p.cfg.Name), zap.Int("attempt", j.attempt+1), zap.Duration("delay", delay), zap.Error(err))
	}
	next := job[T]{payload: j.payload, attempt: j.attempt + 1}
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		select {
		case p.ch <- next:
		default:
			p.metrics.IncDropped(p.cfg.Name)
		}
	}()
}

// runHandler recovers a panic inside handler, treating it as a normal
// failure so the retry/dead-letter policy applies uniformly.
func (p *Pool[T]) runHandler(ctx context.Context, payload T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return p.handler(ctx, payload)
}

// Depth returns the current number of jobs buffered (not counting jobs
// currently being processed by a worker).
func (p *Pool[T]) Depth() int {
	return len(p.ch)
}
