package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "altcoin_orders_placed_total",
			Help: "Orders accepted by order intake.",
		},
		[]string{"side", "pair"},
	)

	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "altcoin_orders_rejected_total",
			Help: "Orders rejected by order intake, by reason.",
		},
		[]string{"reason"},
	)

	MatchesExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "altcoin_matches_executed_total",
			Help: "Committed match iterations.",
		},
		[]string{"pair", "settlement"},
	)

	MatchedVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "altcoin_matched_volume_total",
			Help: "Base currency volume matched.",
		},
		[]string{"pair"},
	)

	MatchRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "altcoin_match_run_duration_seconds",
			Help:    "Duration of one matching run for a pair.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pair"},
	)

	LedgerEntriesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "altcoin_ledger_entries_applied_total",
			Help: "Ledger entries consumed by the reconciler, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	WorkerRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "altcoin_worker_retries_total",
			Help: "Transient failures retried by dispatcher workers.",
		},
		[]string{"worker"},
	)

	HaltedWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "altcoin_halted_workers",
			Help: "Workers stopped on an invariant violation.",
		},
	)

	NotificationsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "altcoin_notifications_received_total",
			Help: "Row change notifications seen by the dispatcher.",
		},
		[]string{"table", "op"},
	)

	TradeFeedFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "altcoin_trade_feed_failures_total",
			Help: "Trade events the Kafka writer failed to deliver.",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersPlaced, OrdersRejected)
	prometheus.MustRegister(MatchesExecuted, MatchedVolume, MatchRunDuration)
	prometheus.MustRegister(LedgerEntriesApplied, WorkerRetries, HaltedWorkers, NotificationsReceived)
	prometheus.MustRegister(TradeFeedFailures)
}
