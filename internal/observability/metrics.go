package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wr_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	EnterTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wr_enter_total",
			Help: "Total number of tokens issued",
		},
	)

	AdmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wr_admitted_total",
			Help: "Total number of tokens admitted",
		},
		[]string{"event"},
	)

	StaleDiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wr_stale_discarded_total",
			Help: "Popped ledger entries discarded because the token had expired",
		},
		[]string{"event"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wr_sweep_duration_seconds",
			Help:    "Duration of admission sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweepSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wr_sweep_skipped_total",
			Help: "Admission ticks skipped",
		},
		[]string{"reason"},
	)

	RedeemTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wr_redeem_total",
			Help: "Exchange token redemptions by result",
		},
		[]string{"result"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wr_queue_depth",
			Help: "Waiting tokens per event as seen by the last sweep",
		},
		[]string{"event"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wr_outbox_lag_seconds",
			Help: "Age of the oldest outbox row relayed in the last batch",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wr_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
