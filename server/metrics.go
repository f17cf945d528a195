package server

import (
	"net/http"
	"strconv"
	"sync"
	"testing"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	metricsOnce     sync.Once
)

func initMetrics() {
	metricsOnce.Do(func() {
		var registry prometheus.Registerer = prometheus.DefaultRegisterer
		if testing.Testing() {
			registry = prometheus.NewRegistry()
		}

		requestCount = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitecheck",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP API requests by route and status code.",
		}, []string{"route", "code"})

		requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitecheck",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"})

		registry.MustRegister(requestCount, requestDuration)
	})
}

// routeLabel keeps label cardinality bound to the registered routes.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "other"
}

func withRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		route := routeLabel(r)
		requestCount.WithLabelValues(route, strconv.Itoa(m.Code)).Inc()
		requestDuration.WithLabelValues(route).Observe(m.Duration.Seconds())
		log.Infof("%s %s (status=%d dt=%s ua=%q)", r.Method, r.URL, m.Code, m.Duration, r.UserAgent())
	})
}
