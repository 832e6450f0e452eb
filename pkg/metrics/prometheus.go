package metrics

import (
	"FinFeed/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	providerCalls *prometheus.CounterVec
	providerTime  *prometheus.HistogramVec
	fallbacks     *prometheus.CounterVec
	staleServed   *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	activeLoops   prometheus.Gauge
	subscribers   *prometheus.GaugeVec
	connected     prometheus.Gauge
	messagesSent  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a Recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a Recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		providerCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfeed_provider_calls_total",
				Help: "Adapter calls by source, operation and result",
			},
			[]string{"source", "op", "result"},
		),
		providerTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finfeed_provider_call_seconds",
				Help:    "Adapter call duration including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source", "op"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfeed_fallbacks_total",
				Help: "Requests answered by a source other than the first in priority",
			},
			[]string{"op", "source"},
		),
		staleServed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfeed_stale_served_total",
				Help: "Cached values served after every source failed",
			},
			[]string{"op"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfeed_cache_lookups_total",
				Help: "Fresh cache lookups by result",
			},
			[]string{"op", "result"},
		),
		activeLoops: f.NewGauge(prometheus.GaugeOpts{
			Name: "finfeed_poll_loops_active",
			Help: "Symbols currently being polled",
		}),
		subscribers: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finfeed_subscribers",
				Help: "Subscribers per symbol",
			},
			[]string{"symbol"},
		),
		connected: f.NewGauge(prometheus.GaugeOpts{
			Name: "finfeed_connected",
			Help: "1 when the last heartbeat reached a source",
		}),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfeed_messages_sent_total",
				Help: "Total number of quotes sent to a sink backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finfeed_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finfeed_last_price",
				Help: "Last accepted price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finfeed_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordProviderCall records one adapter call outcome.
func (r *Recorder) RecordProviderCall(source string, op models.Operation, result string, seconds float64) {
	r.providerCalls.WithLabelValues(source, string(op), result).Inc()
	r.providerTime.WithLabelValues(source, string(op)).Observe(seconds)
}

func (r *Recorder) RecordFallback(op models.Operation, source string) {
	r.fallbacks.WithLabelValues(string(op), source).Inc()
}

func (r *Recorder) RecordStaleServed(op models.Operation) {
	r.staleServed.WithLabelValues(string(op)).Inc()
}

func (r *Recorder) RecordCache(op models.Operation, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(string(op), result).Inc()
}

func (r *Recorder) SetActiveLoops(n int) { r.activeLoops.Set(float64(n)) }

func (r *Recorder) SetSubscribers(symbol string, n int) {
	if n == 0 {
		r.subscribers.DeleteLabelValues(symbol)
		return
	}
	r.subscribers.WithLabelValues(symbol).Set(float64(n))
}

func (r *Recorder) RecordConnection(connected bool) {
	if connected {
		r.connected.Set(1)
		return
	}
	r.connected.Set(0)
}

// RecordMessageSent records a quote sent to a sink backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
