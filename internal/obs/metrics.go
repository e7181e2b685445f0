package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Client-side HTTP metrics. Labels use the logical endpoint name rather than
// the raw path so job IDs and tokens never become label values.
var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "client_requests_total",
			Help: "Total number of backend requests issued by the client.",
		},
		[]string{"endpoint", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "client_request_duration_seconds",
			Help:    "Backend request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	refreshInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "client_token_refresh_in_flight",
		Help: "Whether a token refresh is currently in flight (0 or 1).",
	})

	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "client_token_refresh_total",
			Help: "Token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	refreshQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "client_refresh_queue_depth",
		Help: "Requests currently parked behind an in-flight token refresh.",
	})

	pollTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "client_job_poll_ticks_total",
			Help: "Job status poll ticks by result.",
		},
		[]string{"result"},
	)
)

// Init registers all client metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		requestsTotal,
		requestDuration,
		refreshInFlight,
		refreshTotal,
		refreshQueueDepth,
		pollTicks,
	)
}

// Handler exposes the default registry for embedding applications.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one completed backend request.
func ObserveRequest(endpoint string, statusCode int, d time.Duration) {
	status := strconv.Itoa(statusCode)
	requestsTotal.WithLabelValues(endpoint, status).Inc()
	requestDuration.WithLabelValues(endpoint, status).Observe(d.Seconds())
}

// RefreshStarted marks a token refresh as in flight.
func RefreshStarted() { refreshInFlight.Set(1) }

// RefreshFinished clears the in-flight marker and records the outcome.
func RefreshFinished(outcome string) {
	refreshInFlight.Set(0)
	refreshTotal.WithLabelValues(outcome).Inc()
}

// RefreshQueueDepth reports the current number of parked requests.
func RefreshQueueDepth(n int) { refreshQueueDepth.Set(float64(n)) }

// PollTick records one poll tick with its result
// (progress, completed, failed, error, stale).
func PollTick(result string) { pollTicks.WithLabelValues(result).Inc() }
