package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Indexer metrics
var (
	IndexerCursor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_cursor_block",
		Help: "Last block fully committed by the indexer",
	})

	IndexerHead = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_chain_head_block",
		Help: "Chain head observed in the last indexer cycle",
	})

	IndexerLag = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_lag_blocks",
		Help: "Blocks between the chain head and the committed cursor",
	})

	IndexerEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexer_events_total",
		Help: "IntentSubmitted events folded into the leaderboard",
	})

	IndexerScanErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_scan_errors_total",
		Help: "Indexer cycles that failed, by stage",
	}, []string{"stage"})

	IndexerScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "indexer_scan_duration_seconds",
		Help:    "Time taken by one indexer cycle",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	IndexerAddresses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexer_leaderboard_addresses",
		Help: "Distinct senders on the leaderboard",
	})
)

// Relayer metrics
var (
	RelayerLastBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_last_block",
		Help: "Last block the relayer has processed",
	})

	RelayerIntentsObserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_intents_observed_total",
		Help: "IntentSubmitted events observed by the relayer",
	})

	RelayerFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_finalize_total",
		Help: "Finalize attempts by status",
	}, []string{"status"})

	RelayerFinalizeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_finalize_errors_total",
		Help: "Failed execute or finalize attempts by error type",
	}, []string{"error_type"})

	RelayerPolicySkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_policy_skipped_total",
		Help: "Intents the policy declined to finalize",
	})

	RelayerDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_duplicates_total",
		Help: "Intent ids seen more than once",
	})

	RelayerPollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_poll_errors_total",
		Help: "Relayer cycles that failed, by stage",
	}, []string{"stage"})

	RelayerProcessingTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relayer_intent_processing_seconds",
		Help:    "Time taken to execute and finalize one intent",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

// RPC metrics
var (
	GasPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rpc_gas_price_gwei",
		Help: "Gas price used for the last finalize transaction in gwei",
	})

	GasUsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rpc_finalize_gas_used",
		Help:    "Gas used by mined finalize transactions",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 10),
	})

	RPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rpc_errors_total",
		Help: "RPC call failures by method",
	}, []string{"method"})

	CircuitBreakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpc_circuit_breaker_open",
		Help: "1 when the worker's RPC circuit breaker is open",
	}, []string{"component"})
)
