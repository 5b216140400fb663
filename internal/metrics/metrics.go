package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Ledger
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Total committed transactions",
		},
		[]string{"type"}, // tip|deposit|withdrawal
	)
	TransactionsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_failed_total",
			Help: "Total rejected money movements",
		},
		[]string{"type", "reason"},
	)
	TransactionVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transaction_volume_cents_total",
			Help: "Sum of committed amounts in minor units",
		},
		[]string{"type"},
	)

	initOnce sync.Once
)

// Handler serves /metrics
var Handler = promhttp.Handler

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestsTotal)
		prometheus.MustRegister(RequestLatency)
		prometheus.MustRegister(TransactionsTotal)
		prometheus.MustRegister(TransactionsFailed)
		prometheus.MustRegister(TransactionVolume)
	})
}
