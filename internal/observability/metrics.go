package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_gate_requests_total",
			Help: "Total API requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "promo_gate_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "promo_gate_in_flight",
		Help: "In-flight HTTP requests",
	})

	// UpstreamFetches counts backend calls by endpoint and outcome
	// (ok, transport, status, decode, unavailable, rejected).
	UpstreamFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_gate_upstream_fetches_total",
			Help: "Upstream fetches by endpoint and outcome",
		}, []string{"endpoint", "outcome"},
	)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_gate_cache_lookups_total",
			Help: "Staleness cache lookups by cache and result",
		}, []string{"cache", "result"},
	)
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "promo_gate_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"},
	)
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "promo_gate_sessions_active",
		Help: "Mounted presentation sessions",
	})
	PopupsPresented = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_gate_popups_presented_total",
			Help: "Popups presented by trigger (auto, manual)",
		}, []string{"trigger"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal, Latency, InFlight,
		UpstreamFetches, CacheLookups, BreakerState,
		SessionsActive, PopupsPresented,
	)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

// CacheResult records a staleness cache hit or miss.
func CacheResult(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
