// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Upstream subscription metrics
	NotificationsReceived prometheus.Counter
	NotificationsDropped  *prometheus.CounterVec
	UpstreamReconnects    prometheus.Counter
	UpstreamConnected     prometheus.Gauge
	LastSlotSeen          prometheus.Gauge

	// Fetch and reconstruction metrics
	Fetches             *prometheus.CounterVec
	FetchPoolRunning    prometheus.Gauge
	TradesReconstructed *prometheus.CounterVec
	TradesRejected      prometheus.Counter
	PricesReplaced      prometheus.Counter

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec
	OracleLatency  prometheus.Histogram

	// Storage and sink metrics
	TradesStored    prometheus.Counter
	StoreErrors     *prometheus.CounterVec
	SinkErrors      *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec

	// Broadcast metrics
	Broadcasts       *prometheus.CounterVec
	BroadcastDropped prometheus.Counter
	ClientsConnected prometheus.Gauge
	PairSelections   *prometheus.CounterVec

	// Oracle metrics
	OracleRequests *prometheus.CounterVec

	// Health metrics
	LastTradeTimestamp prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dex_trade_stream"
	}

	return &Metrics{
		NotificationsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "notifications_received_total",
			Help:      "Total number of log notifications received",
		}),
		NotificationsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "notifications_dropped_total",
			Help:      "Total number of log notifications dropped by reason",
		}, []string{"reason"}),
		UpstreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "reconnects_total",
			Help:      "Total number of upstream subscription restarts",
		}),
		UpstreamConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "connected",
			Help:      "1 while the upstream subscription socket is open",
		}),
		LastSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "last_slot_seen",
			Help:      "Slot of the most recent log notification",
		}),

		Fetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetches_total",
			Help:      "Total number of transaction fetches by outcome",
		}, []string{"outcome"}),
		FetchPoolRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_pool_running",
			Help:      "Number of transaction fetches in flight",
		}),
		TradesReconstructed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_reconstructed_total",
			Help:      "Total number of trades reconstructed by venue",
		}, []string{"dex"}),
		TradesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "trades_rejected_total",
			Help:      "Total number of transactions that did not yield a trade",
		}),
		PricesReplaced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "prices_replaced_total",
			Help:      "Total number of trades whose price was replaced by the oracle price",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		OracleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "request_latency_seconds",
			Help:      "Price oracle request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		TradesStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "trades_stored_total",
			Help:      "Total number of trades stored",
		}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total number of storage errors by operation",
		}, []string{"operation"}),
		SinkErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Total number of downstream sink errors by sink",
		}, []string{"sink"}),
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Storage query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),

		Broadcasts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcast messages by side",
		}, []string{"side"}),
		BroadcastDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "lagged_drops_total",
			Help:      "Total number of messages dropped for lagging clients",
		}),
		ClientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "clients_connected",
			Help:      "Number of registered client connections",
		}),
		PairSelections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "pair_selections_total",
			Help:      "Total number of pair selections by pair",
		}, []string{"pair"}),

		OracleRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "requests_total",
			Help:      "Total number of price oracle lookups by outcome",
		}, []string{"outcome"}),

		LastTradeTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_trade_timestamp",
			Help:      "Unix timestamp of the last broadcast trade",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordNotification increments the received notifications counter.
func RecordNotification(slot int64) {
	DefaultMetrics.NotificationsReceived.Inc()
	if slot > 0 {
		DefaultMetrics.LastSlotSeen.Set(float64(slot))
	}
}

// RecordNotificationDropped records a notification dropped before fetch.
func RecordNotificationDropped(reason string) {
	DefaultMetrics.NotificationsDropped.WithLabelValues(reason).Inc()
}

// RecordReconnect increments the upstream reconnect counter.
func RecordReconnect() {
	DefaultMetrics.UpstreamReconnects.Inc()
}

// SetUpstreamConnected flips the upstream connected gauge.
func SetUpstreamConnected(connected bool) {
	if connected {
		DefaultMetrics.UpstreamConnected.Set(1)
		return
	}
	DefaultMetrics.UpstreamConnected.Set(0)
}

// RecordFetch records a transaction fetch outcome (ok, absent, error).
func RecordFetch(outcome string) {
	DefaultMetrics.Fetches.WithLabelValues(outcome).Inc()
}

// SetFetchPoolRunning updates the fetch pool gauge.
func SetFetchPoolRunning(n int) {
	DefaultMetrics.FetchPoolRunning.Set(float64(n))
}

// RecordReconstruction records the result of reconstructing one transaction.
func RecordReconstruction(dex string, ok bool) {
	if !ok {
		DefaultMetrics.TradesRejected.Inc()
		return
	}
	DefaultMetrics.TradesReconstructed.WithLabelValues(dex).Inc()
}

// RecordPriceReplaced increments the replaced price counter.
func RecordPriceReplaced() {
	DefaultMetrics.PricesReplaced.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordOracle records an oracle lookup.
func RecordOracle(seconds float64, err error) {
	DefaultMetrics.OracleLatency.Observe(seconds)
	if err != nil {
		DefaultMetrics.OracleRequests.WithLabelValues("error").Inc()
		return
	}
	DefaultMetrics.OracleRequests.WithLabelValues("ok").Inc()
}

// RecordStore records a trade storage attempt.
func RecordStore(err error) {
	if err != nil {
		DefaultMetrics.StoreErrors.WithLabelValues("store_trade").Inc()
		return
	}
	DefaultMetrics.TradesStored.Inc()
}

// RecordStoreError records a failed storage operation.
func RecordStoreError(operation string) {
	DefaultMetrics.StoreErrors.WithLabelValues(operation).Inc()
}

// RecordSinkError records a failed downstream sink delivery.
func RecordSinkError(sink string) {
	DefaultMetrics.SinkErrors.WithLabelValues(sink).Inc()
}

// RecordDBQuery records storage query duration.
func RecordDBQuery(backend, operation string, seconds float64) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(backend, operation).Observe(seconds)
}

// RecordBroadcast records a broadcast message and its side.
func RecordBroadcast(side string) {
	DefaultMetrics.Broadcasts.WithLabelValues(side).Inc()
}

// RecordLaggedDrop records a message dropped for a lagging client.
func RecordLaggedDrop() {
	DefaultMetrics.BroadcastDropped.Inc()
}

// SetClientsConnected updates the connected clients gauge.
func SetClientsConnected(n int) {
	DefaultMetrics.ClientsConnected.Set(float64(n))
}

// RecordPairSelection records a client pair selection.
func RecordPairSelection(pair string) {
	DefaultMetrics.PairSelections.WithLabelValues(pair).Inc()
}

// RecordTradeBroadcast updates the last trade timestamp gauge.
func RecordTradeBroadcast(unix int64) {
	DefaultMetrics.LastTradeTimestamp.Set(float64(unix))
}
