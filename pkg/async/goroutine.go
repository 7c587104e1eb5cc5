package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// ErrPoolClosed is returned by Submit after Shutdown
var ErrPoolClosed = errors.New("worker pool shut down")

// SafeGo runs fn in a goroutine bounded by timeout. Panics and errors are
// logged through the logger carried by parentCtx.
//
// Example:
//
//	SafeGo(ctx, 30*time.Second, "seed reload", func(ctx context.Context) error {
//	    return loader.Apply(ctx, file)
//	})
//
// A zero timeout means the task lives as long as parentCtx.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := taskContext(parentCtx, timeout)
		defer cancel()

		report(observability.FromContext(parentCtx).WithField("task", taskName), taskName, call(ctx, fn))
	}()
}

// call runs fn and turns a panic into an *observability.PanicError
func call(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = observability.NewPanicError(r)
		}
	}()
	return fn(ctx)
}

func report(logger *observability.Logger, taskName string, err error) {
	if err == nil {
		return
	}
	var perr *observability.PanicError
	if errors.As(err, &perr) {
		observability.LogPanic(logger, taskName, perr)
		return
	}
	logger.WithError(err).Error("background task failed")
}

func taskContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// WorkerPool runs submitted tasks on a fixed number of goroutines. Each task
// gets its own timeout; task errors are collected and panics are logged.
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	logger   *observability.Logger

	tasks  chan func(context.Context) error
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	errs  []error
}

// NewWorkerPool starts workers goroutines that live until Shutdown or until ctx ends.
//
// Example:
//
//	pool := NewWorkerPool(ctx, 2, "audit webhook", time.Minute)
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//	    return deliver(ctx, event)
//	})
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	p := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		logger:   observability.FromContext(ctx).WithField("task", taskName),
		tasks:    make(chan func(context.Context) error, workers*2),
		ctx:      ctx,
		cancel:   cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Submit queues fn, blocking while the queue is full. It fails once the pool
// is shut down or its context has ended.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}

	select {
	case p.tasks <- fn:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits up to timeout for queued ones to
// finish. Workers still running after the timeout have their context cancelled.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.close()
	defer p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker pool %q shutdown timed out after %v", p.taskName, timeout)
	}
}

// Errors returns the errors returned by tasks so far
func (p *WorkerPool) Errors() []error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return append([]error(nil), p.errs...)
}

func (p *WorkerPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case fn, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(fn)
		}
	}
}

func (p *WorkerPool) run(fn func(context.Context) error) {
	ctx, cancel := taskContext(p.ctx, p.timeout)
	defer cancel()

	err := call(ctx, fn)
	if err == nil {
		return
	}

	var perr *observability.PanicError
	if errors.As(err, &perr) {
		observability.LogPanic(p.logger, p.taskName, perr)
	}
	p.errMu.Lock()
	p.errs = append(p.errs, err)
	p.errMu.Unlock()
}

// Batch runs fn for every item on a temporary pool and returns the errors.
// Items not yet submitted when ctx ends are skipped and ctx.Err() is reported.
//
// Example:
//
//	errs := Batch(ctx, subjects, 4, "subject sync", 10*time.Second, func(ctx context.Context, s SubjectSeed) error {
//	    return apply(ctx, s)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, workers, taskName, timeout)

	var submitErr error
	for _, item := range items {
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			submitErr = err
			break
		}
	}

	pool.close()
	pool.wg.Wait()
	pool.cancel()

	errs := pool.Errors()
	if submitErr != nil {
		errs = append(errs, submitErr)
	}
	return errs
}
