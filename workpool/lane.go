package workpool

import (
	"fmt"
	"sync"
)

// Lane serializes a caller's jobs on a shared Pool: jobs submitted to the
// same Lane run one at a time, in submission order, while other lanes keep
// using the remaining workers.
type Lane struct {
	pool *Pool

	mu      sync.Mutex
	queue   []laneJob
	running bool
}

type laneJob struct {
	run  Job
	drop func(error)
}

// NewLane returns a Lane that executes on pool.
func NewLane(pool *Pool) *Lane {
	if pool == nil {
		panic("pool can't be nil")
	}
	return &Lane{pool: pool}
}

// Submit appends job to the lane. It returns ErrClosed if the pool no longer
// accepts work; the job is not queued in that case.
func (l *Lane) Submit(job Job) error {
	return l.SubmitOrDrop(job, nil)
}

// SubmitOrDrop is Submit with a hook for the case where job was queued behind
// a running job and the pool closed before it could start. drop then
// receives ErrClosed instead of job running. drop is called without the lane
// lock held.
func (l *Lane) SubmitOrDrop(job Job, drop func(error)) error {
	if job == nil {
		return fmt.Errorf("submit: nil job")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		l.queue = append(l.queue, laneJob{run: job, drop: drop})
		return nil
	}

	if err := l.pool.Submit(l.step(job)); err != nil {
		return err
	}
	l.running = true
	return nil
}

// Len returns the number of jobs submitted to the lane that have not
// finished, including the one currently running.
func (l *Lane) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.queue)
	if l.running {
		n++
	}
	return n
}

// step wraps job so that, once it returns (or panics), the next queued job
// is handed to the pool.
func (l *Lane) step(job Job) Job {
	return func() {
		defer l.advance()
		job()
	}
}

func (l *Lane) advance() {
	for _, job := range l.next() {
		if job.drop != nil {
			job.drop(ErrClosed)
		}
	}
}

// next hands the next queued job to the pool. If the pool is closed it
// empties the lane and returns the jobs that will never run.
func (l *Lane) next() []laneJob {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		l.running = false
		return nil
	}

	job := l.queue[0]
	l.queue[0] = laneJob{}
	l.queue = l.queue[1:]
	if err := l.pool.Submit(l.step(job.run)); err == nil {
		return nil
	}

	dropped := append([]laneJob{job}, l.queue...)
	l.queue = nil
	l.running = false
	return dropped
}
