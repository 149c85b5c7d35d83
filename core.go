package webcodecs

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thesyncim/webcodecs/workpool"
	"go.uber.org/zap"
)

// ErrorCallback receives job failures and the synchronous failures of
// decode, encode, flush and reset.
type ErrorCallback func(*CodecError)

// codecCore is the machinery shared by AudioDecoder and AudioEncoder: the
// state, the control queue, the backend slot and the job plumbing. The
// facades add the job bodies.
type codecCore[B io.Closer] struct {
	name        string // "decoder" or "encoder", used in logs and metrics
	log         *zap.Logger
	metrics     *Metrics
	registry    *Registry
	onError     ErrorCallback
	onDequeue   func()
	maxInFlight int

	pool     *workpool.Pool
	ownsPool bool
	lane     *workpool.Lane

	slot backendSlot[B]

	mu        sync.Mutex
	state     CodecState
	queue     controlQueue
	queueSize int                        // Accepted decode/encode requests not yet completed
	inFlight  int                        // Dispatched decode/encode jobs not yet finished
	flushes   map[*flushRequest]struct{} // Dispatched flushes not yet finished

	// Notifications gathered under mu and delivered by unlock.
	deferred []*CodecError
	dequeues int
}

func newCodecCore[B io.Closer](name string, onError ErrorCallback, opts []Option) *codecCore[B] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &codecCore[B]{
		name:        name,
		log:         o.log.With(zap.String("component", name), zap.String("instance", uuid.NewString())),
		metrics:     o.metrics,
		registry:    o.registry,
		onError:     onError,
		onDequeue:   o.onDequeue,
		maxInFlight: o.maxInFlight,
		pool:        o.pool,
		flushes:     make(map[*flushRequest]struct{}),
	}
	if c.pool == nil {
		c.pool = workpool.New(o.workers,
			workpool.WithLogger(c.log),
			workpool.WithPanicHandler(func(any) { c.metrics.panicRecovered() }),
		)
		c.ownsPool = true
	}
	c.lane = workpool.NewLane(c.pool)
	return c
}

// unlock releases mu, then delivers the errors and dequeue events recorded
// while it was held. Callbacks never run under mu.
func (c *codecCore[B]) unlock() {
	errs, dequeues := c.deferred, c.dequeues
	c.deferred, c.dequeues = nil, 0
	c.mu.Unlock()

	for _, err := range errs {
		c.report(err)
	}
	if c.onDequeue != nil {
		for range dequeues {
			c.onDequeue()
		}
	}
}

func (c *codecCore[B]) deferError(err *CodecError) {
	c.deferred = append(c.deferred, err)
}

func (c *codecCore[B]) report(err *CodecError) {
	c.metrics.errorReported(c.name, err.Kind)
	c.log.Debug("codec error", zap.Error(err))
	if c.onError != nil {
		c.onError(err)
	}
}

// fail reports a job failure unless the job's generation is stale.
func (c *codecCore[B]) fail(gen uint64, err *CodecError) {
	if c.live(gen) {
		c.report(err)
	}
}

func (c *codecCore[B]) live(gen uint64) bool {
	return c.slot.current() == gen
}

func (c *codecCore[B]) currentState() CodecState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *codecCore[B]) currentQueueSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueSize
}

// requireConfigured returns, and schedules for the error callback, an
// InvalidStateError unless the instance is configured.
func (c *codecCore[B]) requireConfigured(op string) *CodecError {
	if c.state == StateConfigured {
		return nil
	}
	err := errorf(InvalidStateError, op, "%s is %s", c.name, c.state)
	c.deferError(err)
	return err
}

func (c *codecCore[B]) enqueueLocked(m *controlMessage) {
	m.generation = c.slot.current()
	if m.kind == messageDecode || m.kind == messageEncode {
		c.queueSize++
		c.metrics.queueSizeChanged(c.name, 1)
	}
	c.metrics.messageEnqueued(c.name, m.kind)
	c.queue.enqueue(m)
}

// dispatch hands m to the lane. It is the body of every message handler and
// runs with mu held.
func (c *codecCore[B]) dispatch(m *controlMessage, body func()) outcome {
	throttled := m.kind == messageDecode || m.kind == messageEncode
	if throttled && c.maxInFlight > 0 && c.inFlight >= c.maxInFlight {
		return notProcessed
	}

	err := c.lane.SubmitOrDrop(func() { c.runJob(m, body) }, func(err error) { c.abandon(m, err) })
	if err != nil {
		c.log.Error("dispatching job", zap.Stringer("message", m.kind), zap.Error(err))
		failure := newError(InternalError, m.kind.String(), err)
		if m.flush != nil {
			m.flush.complete(failure)
		}
		c.deferError(failure)
		c.completeLocked(m)
		return processed
	}

	switch {
	case throttled:
		c.inFlight++
	case m.kind == messageConfigure:
		c.queue.blocked = true
	case m.flush != nil:
		c.flushes[m.flush] = struct{}{}
	}
	c.metrics.messageDispatched(c.name, m.kind)
	return processed
}

// runJob executes body on a worker. A panic becomes an InternalError.
func (c *codecCore[B]) runJob(m *controlMessage, body func()) {
	start := time.Now()
	defer c.finish(m, start)
	defer func() {
		if r := recover(); r != nil {
			c.metrics.panicRecovered()
			c.log.Error("job panicked", zap.Stringer("message", m.kind), zap.Any("panic", r))
			err := errorf(InternalError, m.kind.String(), "panic: %v", r)
			if m.flush != nil {
				m.flush.complete(err)
			}
			c.fail(m.generation, err)
		}
	}()

	body()
}

// finish updates the bookkeeping for a finished job and drains whatever it
// was holding back.
func (c *codecCore[B]) finish(m *controlMessage, start time.Time) {
	c.metrics.jobFinished(c.name, m.kind, time.Since(start))

	c.mu.Lock()
	switch {
	case m.kind == messageDecode || m.kind == messageEncode:
		c.inFlight--
		c.completeLocked(m)
	case m.kind == messageConfigure:
		if c.live(m.generation) {
			c.queue.blocked = false
		}
	case m.flush != nil:
		delete(c.flushes, m.flush)
	}
	c.queue.process()
	c.unlock()
}

// abandon settles a dispatched message whose job will never run because the
// pool closed while it waited on the lane.
func (c *codecCore[B]) abandon(m *controlMessage, err error) {
	c.log.Error("job dropped", zap.Stringer("message", m.kind), zap.Error(err))
	failure := newError(InternalError, m.kind.String(), err)

	c.mu.Lock()
	switch {
	case m.kind == messageDecode || m.kind == messageEncode:
		c.inFlight--
	case m.kind == messageConfigure:
		if c.live(m.generation) {
			c.queue.blocked = false
		}
	case m.flush != nil:
		delete(c.flushes, m.flush)
		m.flush.complete(failure)
	}
	if c.live(m.generation) {
		c.deferError(failure)
	}
	c.completeLocked(m)
	c.queue.process()
	c.unlock()
}

// completeLocked takes a decode or encode request off the queue size.
// Requests from before a reset were already zeroed out.
func (c *codecCore[B]) completeLocked(m *controlMessage) {
	if m.kind != messageDecode && m.kind != messageEncode {
		return
	}
	if !c.live(m.generation) || c.queueSize == 0 {
		return
	}
	c.queueSize--
	c.dequeues++
	c.metrics.queueSizeChanged(c.name, -1)
}

// install stores a freshly created backend for gen, or closes it if gen is
// stale.
func (c *codecCore[B]) install(gen uint64, backend B) {
	ok, err := c.slot.store(gen, backend)
	if !ok {
		if err := backend.Close(); err != nil {
			c.log.Warn("closing stale backend", zap.Error(err))
		}
		c.log.Debug("discarded backend of a stale configuration")
		return
	}
	if err != nil {
		c.log.Warn("closing previous backend", zap.Error(err))
	}
	c.log.Info("configured")
}

// configureFailed drops any previous backend and reports err.
func (c *codecCore[B]) configureFailed(gen uint64, err *CodecError) {
	if cerr := c.slot.release(gen); cerr != nil {
		c.log.Warn("closing previous backend", zap.Error(cerr))
	}
	c.log.Warn("configure failed", zap.Error(err))
	c.fail(gen, err)
}

// completeFlush finishes a flush job. Flushes overtaken by a reset abort.
// A missing backend is only reported to the waiter.
func (c *codecCore[B]) completeFlush(m *controlMessage, failure *CodecError) {
	switch {
	case !c.live(m.generation):
		m.flush.complete(newError(AbortError, "flush", nil))
	case failure != nil:
		if failure.Kind != InvalidStateError {
			c.report(failure)
		}
		m.flush.complete(failure)
	default:
		m.flush.complete(nil)
	}
}

// resetLocked drops pending work and the backend, and returns to
// StateUnconfigured.
func (c *codecCore[B]) resetLocked(op string) {
	for _, m := range c.queue.clear() {
		if m.flush != nil {
			m.flush.complete(newError(AbortError, op, nil))
		}
	}
	c.queue.blocked = false

	for f := range c.flushes {
		f.complete(newError(AbortError, op, nil))
	}
	clear(c.flushes)

	if c.queueSize > 0 {
		c.metrics.queueSizeChanged(c.name, -float64(c.queueSize))
		c.queueSize = 0
		c.dequeues++
	}

	if _, err := c.slot.clear(); err != nil {
		c.log.Warn("closing backend", zap.Error(err))
	}
	c.state = StateUnconfigured
}

func (c *codecCore[B]) reset() error {
	c.mu.Lock()
	defer c.unlock()

	if c.state == StateClosed {
		err := errorf(InvalidStateError, "reset", "%s is closed", c.name)
		c.deferError(err)
		return err
	}
	c.resetLocked("reset")
	c.log.Debug("reset")
	return nil
}

func (c *codecCore[B]) close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.resetLocked("close")
	c.state = StateClosed
	c.unlock()

	c.log.Debug("closed")
	if c.ownsPool {
		// Close may run on one of the pool's own workers.
		go func() {
			if err := c.pool.Close(); err != nil && !errors.Is(err, workpool.ErrClosed) {
				c.log.Warn("closing work pool", zap.Error(err))
			}
		}()
	}
	return nil
}

// receiveAll drains a backend until it reports ErrNoMoreUnits.
func receiveAll[T any](receive func() (T, error)) ([]T, error) {
	var out []T
	for {
		v, err := receive()
		if errors.Is(err, ErrNoMoreUnits) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// flush enqueues a flush message and waits for its job or ctx.
func (c *codecCore[B]) flush(ctx context.Context, rearm func()) error {
	c.mu.Lock()
	if err := c.requireConfigured("flush"); err != nil {
		c.unlock()
		return err
	}
	if rearm != nil {
		rearm()
	}
	req := newFlushRequest()
	c.enqueueLocked(&controlMessage{kind: messageFlush, flush: req})
	c.unlock()

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
