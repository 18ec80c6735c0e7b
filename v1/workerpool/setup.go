package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Aleph-Alpha/sqlexec/v1/observability"
)

// Logger is the logging contract used by this package.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Debug(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	Fatal(msg string, err error, fields ...map[string]interface{})
}

// Task is a unit of work. It receives the context it was submitted with.
type Task func(ctx context.Context)

// Pool runs submitted tasks on at most Size concurrent goroutines.
//
// Tasks run to completion; there is no ordering between tasks. A panicking task
// is recovered and logged so it cannot take the process down. Pool is safe for
// concurrent use.
type Pool struct {
	cfg      Config
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	inFlight atomic.Int64

	mu     sync.RWMutex
	closed bool

	// stopCtx is cancelled by Shutdown to release submitters waiting for a slot.
	stopCtx context.Context
	stop    context.CancelFunc

	logger   Logger
	observer observability.Observer
}

// New creates a pool. A non-positive Size falls back to DefaultSize and an
// empty Policy to PolicyBlock.
func New(cfg Config) *Pool {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyBlock
	}
	stopCtx, stop := context.WithCancel(context.Background())
	return &Pool{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Size)),
		stopCtx: stopCtx,
		stop:    stop,
	}
}

// WithLogger sets the logger used for recovered panics and lifecycle events.
func (p *Pool) WithLogger(logger Logger) *Pool {
	p.logger = logger
	return p
}

// WithObserver sets the observer notified for every task run and rejection.
func (p *Pool) WithObserver(observer observability.Observer) *Pool {
	p.observer = observer
	return p
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.cfg.Size
}

// InFlight returns the number of tasks currently running.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Submit schedules task. Under PolicyBlock it waits for a free slot until ctx
// is done or the pool shuts down; under PolicyReject it behaves like TrySubmit.
//
// A nil error means the task has been accepted and will run.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if p.cfg.Policy == PolicyReject {
		return p.TrySubmit(ctx, task)
	}
	return p.submit(ctx, task, true)
}

// TrySubmit schedules task only if a slot is free right now.
func (p *Pool) TrySubmit(ctx context.Context, task Task) error {
	return p.submit(ctx, task, false)
}

func (p *Pool) submit(ctx context.Context, task Task, wait bool) error {
	if task == nil {
		return fmt.Errorf("workerpool: nil task")
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.observeReject(ErrPoolClosed)
		return ErrPoolClosed
	}
	// Reserve a place in the wait group while the pool is known to be open so
	// Shutdown cannot start waiting before this task is accounted for.
	p.wg.Add(1)
	p.mu.RUnlock()

	if err := p.acquire(ctx, wait); err != nil {
		p.wg.Done()
		p.observeReject(err)
		return err
	}

	go p.run(ctx, task)
	return nil
}

func (p *Pool) acquire(ctx context.Context, wait bool) error {
	if !wait {
		if p.sem.TryAcquire(1) {
			return nil
		}
		return ErrPoolSaturated
	}

	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatch := context.AfterFunc(p.stopCtx, cancel)
	defer stopWatch()

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if p.stopCtx.Err() != nil {
			return ErrPoolClosed
		}
		return fmt.Errorf("workerpool: waiting for a slot: %w", err)
	}
	// Acquire may win the race against a concurrent Shutdown.
	if p.stopCtx.Err() != nil {
		p.sem.Release(1)
		return ErrPoolClosed
	}
	return nil
}

func (p *Pool) run(ctx context.Context, task Task) {
	start := time.Now()
	inFlight := int(p.inFlight.Add(1))
	var panicErr error

	defer func() {
		if r := recover(); r != nil {
			panicErr = fmt.Errorf("workerpool: task panicked: %v", r)
			if p.logger != nil {
				p.logger.Error("Recovered panic in worker pool task", panicErr, nil)
			}
		}
		remaining := int(p.inFlight.Add(-1))
		p.sem.Release(1)
		p.observe("run", time.Since(start), panicErr, remaining)
		p.wg.Done()
	}()

	p.observe("start", 0, nil, inFlight)
	task(ctx)
}

// Shutdown stops accepting tasks, releases submitters still waiting for a slot
// with ErrPoolClosed, and waits for running tasks until ctx is done.
// It is safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	first := !p.closed
	p.closed = true
	p.mu.Unlock()
	p.stop()

	if first && p.logger != nil {
		p.logger.Info("Shutting down worker pool", nil, map[string]interface{}{
			"in_flight": p.InFlight(),
		})
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workerpool: shutdown interrupted with %d tasks running: %w", p.InFlight(), ctx.Err())
	}
}

func (p *Pool) observe(operation string, duration time.Duration, err error, inFlight int) {
	if p.observer == nil {
		return
	}
	p.observer.ObserveOperation(observability.OperationContext{
		Component: "workerpool",
		Operation: operation,
		Duration:  duration,
		Error:     err,
		Metadata:  map[string]interface{}{"in_flight": inFlight},
	})
}

func (p *Pool) observeReject(err error) {
	if p.observer == nil {
		return
	}
	p.observer.ObserveOperation(observability.OperationContext{
		Component: "workerpool",
		Operation: "reject",
		Error:     err,
	})
}

// IsDispatchError reports whether err came from a pool refusing a task.
func IsDispatchError(err error) bool {
	return errors.Is(err, ErrPoolClosed) || errors.Is(err, ErrPoolSaturated)
}
