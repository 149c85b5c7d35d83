package webcodecs

import (
	"github.com/thesyncim/webcodecs/workpool"
	"go.uber.org/zap"
)

// Option configures an AudioDecoder or AudioEncoder.
type Option func(*options)

type options struct {
	pool        *workpool.Pool
	workers     int
	registry    *Registry
	log         *zap.Logger
	metrics     *Metrics
	maxInFlight int
	onDequeue   func()
}

func defaultOptions() options {
	return options{
		workers:  workpool.DefaultWorkers,
		registry: DefaultRegistry(),
		log:      zap.NewNop(),
	}
}

// WithWorkPool runs the instance's jobs on a shared pool. The instance does
// not close a pool it was given.
func WithWorkPool(pool *workpool.Pool) Option {
	if pool == nil {
		panic("pool can't be nil")
	}
	return func(o *options) {
		o.pool = pool
	}
}

// WithWorkers sets the size of the private pool used when no pool is
// injected.
func WithWorkers(workers int) Option {
	if workers < 1 {
		panic("workers can't be < 1")
	}
	return func(o *options) {
		o.workers = workers
	}
}

// WithRegistry looks backends up in registry instead of DefaultRegistry.
func WithRegistry(registry *Registry) Option {
	if registry == nil {
		panic("registry can't be nil")
	}
	return func(o *options) {
		o.registry = registry
	}
}

func WithLogger(log *zap.Logger) Option {
	if log == nil {
		panic("logger can't be nil")
	}
	return func(o *options) {
		o.log = log
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithMaxInFlight limits how many decode or encode jobs may be dispatched
// and unfinished at once. Further messages wait in the control queue.
// Zero means unlimited.
func WithMaxInFlight(n int) Option {
	if n < 0 {
		panic("max in flight can't be < 0")
	}
	return func(o *options) {
		o.maxInFlight = n
	}
}

// WithDequeueCallback is called, outside any internal lock, every time the
// queue size drops.
func WithDequeueCallback(fn func()) Option {
	return func(o *options) {
		o.onDequeue = fn
	}
}
