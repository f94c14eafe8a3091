package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTP surface
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetgw_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetgw_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

// LedgerCalls counts contract reads and writes by ABI method and result (ok/error)
var LedgerCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "assetgw_ledger_calls_total",
		Help: "Total number of contract calls sent to the node",
	},
	[]string{"method", "result"},
)

// LedgerCallLatency records node round-trip latency per ABI method
var LedgerCallLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "assetgw_ledger_call_latency_seconds",
		Help:    "Latency in seconds of contract calls",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"method"},
)

// Mutation lifecycle
var (
	MutationsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetgw_mutations_submitted_total",
			Help: "Total number of transactions submitted by mutation kind",
		},
		[]string{"kind"},
	)

	MutationsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetgw_mutations_finished_total",
			Help: "Total number of tracked mutations by kind and final status",
		},
		[]string{"kind", "status"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
	prometheus.MustRegister(LedgerCalls, LedgerCallLatency)
	prometheus.MustRegister(MutationsSubmitted, MutationsFinished)
}

// ObserveLedgerCall records one contract call started at start.
func ObserveLedgerCall(method string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	LedgerCalls.WithLabelValues(method, result).Inc()
	LedgerCallLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
