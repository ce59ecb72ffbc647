package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counters and gauges for the capture-to-mitigation path. Everything is
// registered on the default registry and served through Handler.
var (
	PacketsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowsentry",
		Name:      "packets_processed_total",
		Help:      "Packets successfully parsed and fed to the flow table.",
	})

	ParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowsentry",
		Name:      "packet_parse_errors_total",
		Help:      "Packets skipped because they could not be decoded.",
	})

	ActiveFlows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowsentry",
		Name:      "active_flows",
		Help:      "Flows currently tracked in the flow table.",
	})

	FlowEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowsentry",
		Name:      "flow_evictions_total",
		Help:      "Flows evicted early because the table hit its capacity.",
	})

	FlowsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowsentry",
		Name:      "flows_completed_total",
		Help:      "Flows handed to the detection stage, by completion reason.",
	}, []string{"reason"}) // teardown, timeout, evicted, flush

	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowsentry",
		Name:      "classifications_total",
		Help:      "Classifier verdicts received, by label.",
	}, []string{"label"})

	ClassifyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowsentry",
		Name:      "classify_errors_total",
		Help:      "Classification attempts that failed and were skipped.",
	})

	ClassifyTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowsentry",
		Name:      "classify_timeouts_total",
		Help:      "Classification attempts that exceeded the deadline.",
	})

	ClassifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flowsentry",
		Name:      "classify_duration_seconds",
		Help:      "Latency of classifier round trips.",
		Buckets:   prometheus.DefBuckets,
	})

	BlockedSources = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowsentry",
		Name:      "blocked_sources",
		Help:      "Source IPs currently blocked at the XDP layer.",
	})

	BlockFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowsentry",
		Name:      "block_failures_total",
		Help:      "Block commands that failed against the external filter.",
	})

	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flowsentry",
		Name:      "audit_records_dropped_total",
		Help:      "Audit records dropped because the write buffer was full.",
	})
)

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
