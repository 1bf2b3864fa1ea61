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
	// Intake metrics
	WebhookRequests    *prometheus.CounterVec
	RecordsProcessed   prometheus.Counter
	RecordsDuplicate   prometheus.Counter
	WebhookBatchSize   prometheus.Histogram
	NormalizeDrops     *prometheus.CounterVec
	EventsNormalized   *prometheus.CounterVec

	// Enrichment metrics
	EnrichmentRequests *prometheus.CounterVec
	EnrichmentLatency  prometheus.Histogram

	// Signal metrics
	SignalsGenerated  prometheus.Counter
	SignalsClosed     *prometheus.CounterVec
	FilterRejections  *prometheus.CounterVec
	PendingSignals    prometheus.Gauge
	UnrealizedPnLPct  prometheus.Histogram
	RealizedPnLPct    prometheus.Histogram
	LateMigrations    prometheus.Counter
	TransitionRaces   prometheus.Counter

	// Notification metrics
	NotificationsSent *prometheus.CounterVec

	// Archive metrics
	TradesArchived prometheus.Counter
	ArchiveDropped prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastWebhookReceived prometheus.Gauge
	FeedReconnects      prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "launch_signals"
	}

	return &Metrics{
		// Intake metrics
		WebhookRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "webhook_requests_total",
			Help:      "Total number of webhook requests by result",
		}, []string{"result"}),
		RecordsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "records_processed_total",
			Help:      "Total number of transaction records admitted for processing",
		}),
		RecordsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "records_duplicate_total",
			Help:      "Total number of transaction records rejected as redelivered",
		}),
		WebhookBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "webhook_batch_size",
			Help:      "Number of records per webhook delivery",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		NormalizeDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "drops_total",
			Help:      "Total number of records dropped during normalization by reason",
		}, []string{"reason"}),
		EventsNormalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "events_total",
			Help:      "Total number of normalized events by type",
		}, []string{"event_type"}),

		// Enrichment metrics
		EnrichmentRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "requests_total",
			Help:      "Total number of enrichment lookups by outcome",
		}, []string{"outcome"}),
		EnrichmentLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "lookup_latency_seconds",
			Help:      "Enrichment lookup latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Signal metrics
		SignalsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "generated_total",
			Help:      "Total number of signals created",
		}),
		SignalsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "closed_total",
			Help:      "Total number of signals closed by terminal status",
		}, []string{"status"}),
		FilterRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "filter_rejections_total",
			Help:      "Total number of events rejected by the filter chain, by filter",
		}, []string{"filter"}),
		PendingSignals: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "pending",
			Help:      "Current number of pending signals",
		}),
		UnrealizedPnLPct: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "unrealized_pnl_pct",
			Help:      "Unrealized PnL observed on curve trades for open signals",
			Buckets:   []float64{-90, -50, -25, -10, 0, 10, 25, 50, 100, 250, 500},
		}),
		RealizedPnLPct: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "realized_pnl_pct",
			Help:      "Realized PnL of migrated signals",
			Buckets:   []float64{-90, -50, -25, -10, 0, 10, 25, 50, 100, 250, 500},
		}),
		LateMigrations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "late_migrations_total",
			Help:      "Migrations observed for tokens whose signal had already reached a terminal state",
		}),
		TransitionRaces: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "transition_races_total",
			Help:      "State transitions abandoned because the expected status no longer matched",
		}),

		// Notification metrics
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total number of notifications by sink and result",
		}, []string{"sink", "result"}),

		// Archive metrics
		TradesArchived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "trades_total",
			Help:      "Total number of trade observations written to the archive",
		}),
		ArchiveDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "dropped_total",
			Help:      "Total number of trade observations dropped because the archive queue was full",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastWebhookReceived: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_webhook_received_timestamp",
			Help:      "Unix timestamp of last webhook delivery",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "feed_reconnects_total",
			Help:      "Total number of live feed reconnects",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordWebhookRequest records a webhook request by result ("ok", "bad_request", "storage_error").
func RecordWebhookRequest(result string) {
	DefaultMetrics.WebhookRequests.WithLabelValues(result).Inc()
	DefaultMetrics.LastWebhookReceived.SetToCurrentTime()
}

// RecordBatch records the per-delivery record counts.
func RecordBatch(total, processed, duplicates int) {
	DefaultMetrics.WebhookBatchSize.Observe(float64(total))
	DefaultMetrics.RecordsProcessed.Add(float64(processed))
	DefaultMetrics.RecordsDuplicate.Add(float64(duplicates))
}

// RecordNormalizeDrop records a record dropped during normalization.
func RecordNormalizeDrop(reason string) {
	DefaultMetrics.NormalizeDrops.WithLabelValues(reason).Inc()
}

// RecordEventNormalized records a successfully normalized event.
func RecordEventNormalized(eventType string) {
	DefaultMetrics.EventsNormalized.WithLabelValues(eventType).Inc()
}

// RecordEnrichment records an enrichment lookup ("hit", "unavailable", "error").
func RecordEnrichment(outcome string, seconds float64) {
	DefaultMetrics.EnrichmentRequests.WithLabelValues(outcome).Inc()
	DefaultMetrics.EnrichmentLatency.Observe(seconds)
}

// RecordSignalGenerated increments the generated signal counter.
func RecordSignalGenerated() {
	DefaultMetrics.SignalsGenerated.Inc()
}

// RecordSignalClosed records a terminal transition.
func RecordSignalClosed(status string) {
	DefaultMetrics.SignalsClosed.WithLabelValues(status).Inc()
}

// RecordFilterRejection records a filter chain rejection.
func RecordFilterRejection(filter string) {
	DefaultMetrics.FilterRejections.WithLabelValues(filter).Inc()
}

// SetPendingSignals updates the pending signal gauge.
func SetPendingSignals(n int64) {
	DefaultMetrics.PendingSignals.Set(float64(n))
}

// RecordUnrealizedPnL observes unrealized PnL for an open signal.
func RecordUnrealizedPnL(pct float64) {
	DefaultMetrics.UnrealizedPnLPct.Observe(pct)
}

// RecordRealizedPnL observes realized PnL for a migrated signal.
func RecordRealizedPnL(pct float64) {
	DefaultMetrics.RealizedPnLPct.Observe(pct)
}

// RecordLateMigration counts a migration for an already-closed signal.
func RecordLateMigration() {
	DefaultMetrics.LateMigrations.Inc()
}

// RecordTransitionRace counts an abandoned compare-and-swap.
func RecordTransitionRace() {
	DefaultMetrics.TransitionRaces.Inc()
}

// RecordNotification records a notification attempt.
func RecordNotification(sink, result string) {
	DefaultMetrics.NotificationsSent.WithLabelValues(sink, result).Inc()
}

// RecordTradesArchived counts archived trade observations.
func RecordTradesArchived(n int) {
	DefaultMetrics.TradesArchived.Add(float64(n))
}

// RecordArchiveDropped counts dropped trade observations.
func RecordArchiveDropped(n int) {
	DefaultMetrics.ArchiveDropped.Add(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordFeedReconnect counts a live feed reconnect.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}
