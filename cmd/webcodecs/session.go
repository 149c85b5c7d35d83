package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"github.com/thesyncim/webcodecs"
	"github.com/thesyncim/webcodecs/workpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// maxQueued bounds how many requests a command keeps queued in a codec
	// before it waits for the codec to catch up.
	maxQueued           = 64
	poolShutdownTimeout = 10 * time.Second
)

// session is what a decode or encode run shares: the work pool, the metrics
// and the optional endpoint serving them.
type session struct {
	log         *zap.Logger
	pool        *workpool.Pool
	metrics     *webcodecs.Metrics
	registry    *prometheus.Registry
	metricsAddr string

	dequeued chan struct{}
	errs     firstError
}

func newSession(ctx context.Context, v *viper.Viper) *session {
	log := logger(ctx)
	s := &session{
		log:         log,
		pool:        workpool.New(v.GetInt("workers"), workpool.WithLogger(log)),
		metricsAddr: v.GetString("metrics-addr"),
		dequeued:    make(chan struct{}, 1),
	}
	if s.metricsAddr != "" {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.metrics = webcodecs.NewMetrics(s.registry, "webcodecs", "")
	}
	return s
}

// options returns the codec options every instance of the session uses.
func (s *session) options() []webcodecs.Option {
	return []webcodecs.Option{
		webcodecs.WithWorkPool(s.pool),
		webcodecs.WithLogger(s.log),
		webcodecs.WithMetrics(s.metrics),
		webcodecs.WithDequeueCallback(func() {
			select {
			case s.dequeued <- struct{}{}:
			default:
			}
		}),
	}
}

// onError records the first codec error and logs the rest.
func (s *session) onError(err *webcodecs.CodecError) {
	s.log.Warn("codec error", zap.Error(err))
	s.errs.set(err)
}

// wait blocks while queued() is at the limit.
func (s *session) wait(ctx context.Context, queued func() int) error {
	for queued() >= maxQueued {
		select {
		case <-s.dequeued:
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// run executes fn, serving metrics until it returns, then stops the pool.
func (s *session) run(ctx context.Context, fn func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.metricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, s.log, s.metricsAddr, s.registry)
		})
	}
	g.Go(func() error {
		defer cancel()
		return fn(ctx)
	})

	err := g.Wait()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), poolShutdownTimeout)
	defer cancelShutdown()
	if cerr := s.pool.Shutdown(shutdownCtx); cerr != nil && !errors.Is(cerr, workpool.ErrClosed) {
		s.log.Warn("closing work pool",
			zap.Error(cerr),
			zap.Int("pending", s.pool.Pending()),
			zap.Int("running", s.pool.Running()),
		)
	}
	if err != nil {
		return err
	}
	return s.errs.get()
}

func serveMetrics(ctx context.Context, log *zap.Logger, addr string, registry *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()
	log.Info("serving metrics", zap.String("addr", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// firstError keeps the first error it is given.
type firstError struct {
	mu  sync.Mutex
	err error
}

func (f *firstError) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *firstError) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
