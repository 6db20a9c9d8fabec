// Package metrics exposes Prometheus instruments for cache hits, misses and
// upstream fetches. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mirror_cache"

// Recorder holds the registered instruments.
type Recorder struct {
	gatherer prometheus.Gatherer

	requestsTotal         *prometheus.CounterVec
	servedBytesTotal      *prometheus.CounterVec
	upstreamFetchesTotal  *prometheus.CounterVec
	upstreamFetchDuration *prometheus.HistogramVec
	storeWritesTotal      *prometheus.CounterVec
}

// New registers the instruments on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		gatherer: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Proxied requests by method, cache status and response code.",
		}, []string{"method", "cache", "code"}),
		servedBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "served_bytes_total",
			Help:      "Body bytes written to clients by cache status.",
		}, []string{"cache"}),
		upstreamFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_fetches_total",
			Help:      "Upstream fetch attempts by method and result.",
		}, []string{"method", "result"}),
		upstreamFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_fetch_duration_seconds",
			Help:      "Upstream fetch latency including body transfer.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"method"}),
		storeWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Cache store writes by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		r.requestsTotal,
		r.servedBytesTotal,
		r.upstreamFetchesTotal,
		r.upstreamFetchDuration,
		r.storeWritesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler returns the /metrics exposition handler.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest counts a finished client request.
func (r *Recorder) ObserveRequest(method, cacheStatus string, code int, bodyBytes int) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(method, cacheStatus, strconv.Itoa(code)).Inc()
	if bodyBytes > 0 {
		r.servedBytesTotal.WithLabelValues(cacheStatus).Add(float64(bodyBytes))
	}
}

// ObserveFetch records one upstream fetch and its outcome
// ("ok", "status", "unreachable", "error").
func (r *Recorder) ObserveFetch(method, result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.upstreamFetchesTotal.WithLabelValues(method, result).Inc()
	r.upstreamFetchDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveStoreWrite records a cache write attempt.
func (r *Recorder) ObserveStoreWrite(err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.storeWritesTotal.WithLabelValues(result).Inc()
}
