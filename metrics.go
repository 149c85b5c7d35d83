package webcodecs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors shared by every codec instance
// created with WithMetrics. A nil *Metrics records nothing.
type Metrics struct {
	messages    *prometheus.CounterVec
	dispatched  *prometheus.CounterVec
	queueSize   *prometheus.GaugeVec
	outputs     *prometheus.CounterVec
	errors      *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	panics      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with registerer when
// it is non-nil.
func NewMetrics(registerer prometheus.Registerer, namespace, subsystem string) *Metrics {
	if registerer != nil {
		registerer = prometheus.WrapRegistererWith(
			prometheus.Labels{"component": "webcodecs"},
			registerer,
		)
	}

	m := Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages",
			Help:      "Number of control messages enqueued",
		}, []string{"codec", "message"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatched",
			Help:      "Number of control messages handed to the work pool",
		}, []string{"codec", "message"}),
		queueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_size",
			Help:      "Number of accepted decode or encode requests not yet completed",
		}, []string{"codec"}),
		outputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outputs",
			Help:      "Number of units delivered to output callbacks",
		}, []string{"codec"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors",
			Help:      "Number of errors delivered to error callbacks",
		}, []string{"codec", "kind"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "job_duration_seconds",
			Help:      "Duration of codec jobs",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"codec", "message"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "panics",
			Help:      "Number of panics recovered from codec jobs",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.messages,
			m.dispatched,
			m.queueSize,
			m.outputs,
			m.errors,
			m.jobDuration,
			m.panics,
		)
	}

	return &m
}

func (m *Metrics) messageEnqueued(codec string, kind messageKind) {
	if m != nil {
		m.messages.WithLabelValues(codec, kind.String()).Inc()
	}
}

func (m *Metrics) messageDispatched(codec string, kind messageKind) {
	if m != nil {
		m.dispatched.WithLabelValues(codec, kind.String()).Inc()
	}
}

func (m *Metrics) queueSizeChanged(codec string, delta float64) {
	if m != nil {
		m.queueSize.WithLabelValues(codec).Add(delta)
	}
}

func (m *Metrics) outputDelivered(codec string) {
	if m != nil {
		m.outputs.WithLabelValues(codec).Inc()
	}
}

func (m *Metrics) errorReported(codec string, kind ErrorKind) {
	if m != nil {
		m.errors.WithLabelValues(codec, kind.String()).Inc()
	}
}

func (m *Metrics) jobFinished(codec string, kind messageKind, elapsed time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(codec, kind.String()).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) panicRecovered() {
	if m != nil {
		m.panics.Inc()
	}
}
