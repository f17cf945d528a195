package denylist

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "sitecheck"
	subsystem = "denylist"

	// reasons on reserved_matches_total
	reasonRange  = "range"
	reasonSuffix = "suffix"

	sourceFile = "file"
	sourceFeed = "feed"
)

var (
	listMatches     *prometheus.CounterVec
	reservedMatches *prometheus.CounterVec
	listEntries     *prometheus.GaugeVec
	listLoaded      *prometheus.GaugeVec
	metricsOnce     sync.Once
)

// initMetrics registers the gate metrics once. Tests get an isolated
// registry so parallel packages do not collide on the default one.
func initMetrics() {
	metricsOnce.Do(func() {
		var registry prometheus.Registerer = prometheus.DefaultRegisterer
		if testing.Testing() {
			registry = prometheus.NewRegistry()
		}

		listMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "list_matches_total",
			Help:      "Hostname addresses matched by an operator list, by list and decision (allow or deny).",
		}, []string{"list", "decision"})

		reservedMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reserved_matches_total",
			Help:      "Hostnames matched by the reserved list, by reason (range or suffix) and the matching entry.",
		}, []string{"reason", "match"})

		listEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "list_entries",
			Help:      "Prefixes loaded into each operator list.",
		}, []string{"list", "type", "source"})

		listLoaded = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "list_loaded_timestamp_seconds",
			Help:      "Unix time each operator list was last loaded from its file or feed.",
		}, []string{"list", "source"})

		registry.MustRegister(listMatches, reservedMatches, listEntries, listLoaded)
	})
}

func observeListMatch(list string, lt listType) {
	if listMatches != nil {
		listMatches.WithLabelValues(list, string(lt)).Inc()
	}
}

func observeReserved(reason, match string) {
	if reservedMatches != nil {
		reservedMatches.WithLabelValues(reason, match).Inc()
	}
}

// observeLoad records a successful (re)load of a file or feed list.
func observeLoad(list string, lt listType, source string, entries int, unix int64) {
	if listEntries == nil {
		return
	}
	listEntries.WithLabelValues(list, string(lt), source).Set(float64(entries))
	listLoaded.WithLabelValues(list, source).Set(float64(unix))
}
