package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)
	SlowRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_slow_requests_total",
			Help: "Requests slower than the configured threshold",
		},
		[]string{"route"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Provider attempts by provider, model and result",
		},
		[]string{"provider", "model", "result"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Provider attempt duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider"},
	)
	PromptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_prompt_tokens",
			Help:    "Estimated prompt tokens sent per attempt",
			Buckets: prometheus.ExponentialBuckets(32, 2, 10),
		},
		[]string{"provider"},
	)
	DispatchOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_outcomes_total",
			Help: "Dispatch results; kind is success or the failure kind",
		},
		[]string{"kind"},
	)

	ChatErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_errors_total",
			Help: "Error events delivered by the error pipeline",
		},
		[]string{"kind"},
	)
	ErrorEventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "error_events_dropped_total",
			Help: "Error events dropped because the buffer was full or closed",
		},
	)
	MessagesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_created_total",
			Help: "Messages persisted by role",
		},
		[]string{"role"},
	)
)

var initOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to
// call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			SlowRequestsTotal,
			AIRequestsTotal,
			AIRequestDuration,
			PromptTokens,
			DispatchOutcomesTotal,
			ChatErrorsTotal,
			ErrorEventsDroppedTotal,
			MessagesCreatedTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := RoutePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// RoutePattern returns the matched chi pattern, or the raw path outside chi.
func RoutePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// ObserveAIRequest records one provider attempt.
func ObserveAIRequest(provider, model, result string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, model, result).Inc()
	AIRequestDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObservePromptTokens records the estimated prompt size of an attempt.
func ObservePromptTokens(provider string, n int) {
	PromptTokens.WithLabelValues(provider).Observe(float64(n))
}

// ObserveDispatch records a final dispatch result.
func ObserveDispatch(kind string) {
	DispatchOutcomesTotal.WithLabelValues(kind).Inc()
}

// MessageCreated counts a persisted message.
func MessageCreated(role string) {
	MessagesCreatedTotal.WithLabelValues(role).Inc()
}

// SlowRequest counts a request that exceeded the slow threshold.
func SlowRequest(route string) {
	SlowRequestsTotal.WithLabelValues(route).Inc()
}
