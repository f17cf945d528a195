package compat

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "sitecheck"
	subsystem = "compat"
)

var (
	checksTotal        *prometheus.CounterVec
	checkDuration      *prometheus.HistogramVec
	hostnameRejections *prometheus.CounterVec
	metricsOnce        sync.Once
)

func initMetrics() {
	metricsOnce.Do(func() {
		var registry prometheus.Registerer = prometheus.DefaultRegisterer
		if testing.Testing() {
			registry = prometheus.NewRegistry()
		}

		checksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checks_total",
			Help:      "Compatibility checks run, by check and result code (\"pass\" on success).",
		}, []string{"check", "result"})

		checkDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "check_duration_seconds",
			Help:      "Time spent in each compatibility check.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"check"})

		hostnameRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hostname_rejections_total",
			Help:      "Hostnames refused by the hostname gate, by reason.",
		}, []string{"reason"})

		registry.MustRegister(checksTotal, checkDuration, hostnameRejections)
	})
}

func observeCheck(name string, d time.Duration, err error) {
	if checksTotal == nil {
		return
	}
	result := "pass"
	if err != nil {
		result = string(CodeFetchFailed)
		if code, ok := CodeOf(err); ok {
			result = string(code)
		}
	}
	checksTotal.WithLabelValues(name, result).Inc()
	checkDuration.WithLabelValues(name).Observe(d.Seconds())
}

func observeRejection(reason string) {
	if hostnameRejections != nil {
		hostnameRejections.WithLabelValues(reason).Inc()
	}
}
