// Package workpool runs jobs on a fixed set of long-lived goroutines.
//
// A Pool knows nothing about the jobs it runs. Submit never blocks past a
// single internal channel send: jobs land in an unbounded backlog owned by a
// dispatcher goroutine, and workers pull from it as they become free. Job
// execution order across workers is not guaranteed; use a Lane when a caller
// needs its own jobs to run one at a time in submission order.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the pool size used when none is given.
const DefaultWorkers = 4

var ErrClosed = errors.New("work pool is closed")

// Job is a unit of work. It must capture everything it needs.
type Job func()

// PanicHandler is called with the recovered value when a job panics.
type PanicHandler func(recovered any)

type Option func(*Pool)

// WithLogger sets the logger used to report recovered panics.
func WithLogger(log *zap.Logger) Option {
	if log == nil {
		panic("logger can't be nil")
	}
	return func(p *Pool) {
		p.log = log
	}
}

// WithPanicHandler registers a hook invoked after a job panic is recovered.
func WithPanicHandler(h PanicHandler) Option {
	return func(p *Pool) {
		p.onPanic = h
	}
}

// Pool is a fixed-size worker pool with an unbounded job backlog.
type Pool struct {
	log     *zap.Logger
	onPanic PanicHandler
	workers int

	mu     sync.RWMutex
	closed bool

	submit chan Job
	work   chan Job

	backlog atomic.Int64
	running atomic.Int64
	panics  atomic.Uint64

	group *errgroup.Group
}

// New starts a pool with the given number of workers. A non-positive count
// selects DefaultWorkers.
func New(workers int, options ...Option) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	p := &Pool{
		log:     zap.NewNop(),
		workers: workers,
		submit:  make(chan Job),
		work:    make(chan Job),
		group:   new(errgroup.Group),
	}
	for _, opt := range options {
		opt(p)
	}

	p.group.Go(p.dispatch)
	for id := range workers {
		p.group.Go(func() error {
			return p.worker(id)
		})
	}

	return p
}

// Submit hands a job to the pool. It returns ErrClosed once Close was called.
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return fmt.Errorf("submit: nil job")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	p.backlog.Add(1)
	p.submit <- job
	return nil
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Pending returns the number of submitted jobs that have not started yet.
func (p *Pool) Pending() int {
	return int(p.backlog.Load())
}

// Running returns the number of jobs currently executing.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Panics returns how many jobs have panicked since the pool started.
func (p *Pool) Panics() uint64 {
	return p.panics.Load()
}

// Close stops accepting jobs, runs everything already submitted and waits
// for the workers to exit. Calling Close more than once returns ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.submit)
	p.mu.Unlock()

	return p.group.Wait()
}

// Shutdown is Close bounded by ctx. Workers keep draining in the background
// if ctx expires first.
func (p *Pool) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- p.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) dispatch() error {
	defer close(p.work)

	var backlog []Job
	submit := p.submit
	for {
		var (
			out  chan Job
			next Job
		)
		if len(backlog) > 0 {
			out = p.work
			next = backlog[0]
		} else if submit == nil {
			return nil
		}

		select {
		case job, ok := <-submit:
			if !ok {
				// Intake closed; keep handing out what is left.
				submit = nil
				continue
			}
			backlog = append(backlog, job)
		case out <- next:
			backlog[0] = nil
			backlog = backlog[1:]
		}
	}
}

func (p *Pool) worker(id int) error {
	for job := range p.work {
		p.backlog.Add(-1)
		p.run(id, job)
	}
	return nil
}

func (p *Pool) run(id int, job Job) {
	p.running.Add(1)
	defer p.running.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.log.Error("job panicked",
				zap.Int("worker", id),
				zap.Any("panic", r),
			)
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
	}()

	job()
}
