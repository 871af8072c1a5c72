package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lifelog",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by method, route pattern and status.",
	}, []string{"method", "route", "status"})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lifelog",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	authAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lifelog",
		Subsystem: "auth",
		Name:      "attempts_total",
		Help:      "Registration and login attempts by outcome.",
	}, []string{"action", "outcome"})
	activityWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lifelog",
		Subsystem: "activities",
		Name:      "writes_total",
		Help:      "Activity mutations by kind.",
	}, []string{"kind"})
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lifelog",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Activity change events handed to the message backend, by outcome.",
	}, []string{"outcome"})
	exportsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lifelog",
		Subsystem: "exports",
		Name:      "created_total",
		Help:      "Activity exports written to object storage, by format.",
	}, []string{"format"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, authAttempts, activityWrites, eventsPublished, exportsCreated)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by the matched chi
// route pattern, so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func RecordAuthAttempt(action string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	authAttempts.WithLabelValues(action, outcome).Inc()
}

func RecordActivityWrite(kind string) {
	activityWrites.WithLabelValues(kind).Inc()
}

func RecordEventPublished(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	eventsPublished.WithLabelValues(outcome).Inc()
}

func RecordExport(format string) {
	exportsCreated.WithLabelValues(format).Inc()
}
