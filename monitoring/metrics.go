package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// WebhookEventsTotal counts payment webhooks by outcome
	// (activated, duplicate, underpaid, unknown_reference, ignored, invalid_signature, error).
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paystack_webhook_events_total",
			Help: "Payment webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Ledger transactions written, by type and status",
		},
		[]string{"type", "status"},
	)

	PaymentSweepTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sweep_results_total",
			Help: "Pending payments processed by the reconciliation sweep",
		},
		[]string{"result"},
	)

	PendingPayments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payments_pending",
		Help: "Activation payments awaiting confirmation",
	})

	PendingWithdrawals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "withdrawals_pending",
		Help: "Withdrawal requests awaiting settlement",
	})
)
