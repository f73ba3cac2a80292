package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event pipeline metrics
	eventsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_indexer_events_decoded_total",
			Help: "Total number of contract events decoded",
		},
		[]string{"chain", "event"},
	)

	eventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_indexer_events_processed_total",
			Help: "Total number of events applied to the gateway store",
		},
		[]string{"chain", "event"},
	)

	duplicateEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_indexer_duplicate_events_total",
			Help: "Total number of events dropped as already-recorded duplicates",
		},
		[]string{"chain"},
	)

	decodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_indexer_decode_errors_total",
			Help: "Total number of logs that failed to decode",
		},
		[]string{"chain"},
	)

	unknownInvoices = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_indexer_unknown_invoice_events_total",
			Help: "Total number of payment events referencing a missing invoice",
		},
		[]string{"chain"},
	)

	// Watcher metrics
	LastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_indexer_last_processed_block",
			Help: "The highest block fully processed by the backfill loop",
		},
		[]string{"chain"},
	)

	watcherRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_indexer_watcher_running",
			Help: "Watcher state (1=running, 0=stopped)",
		},
		[]string{"chain"},
	)

	backfillTickTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_indexer_backfill_tick_duration_seconds",
			Help:    "Time taken by one backfill tick",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)

	subscriptionDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_indexer_subscription_drops_total",
			Help: "Total number of live subscription failures",
		},
		[]string{"chain"},
	)

	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_indexer_rpc_retries_total",
			Help: "Total number of retried RPC calls",
		},
		[]string{"chain", "operation"},
	)

	// Maintenance metrics
	maintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_indexer_maintenance_runs_total",
			Help: "Total number of store maintenance operations by outcome",
		},
		[]string{"status"},
	)

	maintenanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_indexer_maintenance_duration_seconds",
			Help:    "Duration of store maintenance operations",
			Buckets: prometheus.DefBuckets,
		},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_indexer_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_indexer_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_indexer_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func EventDecodedInc(chain string, event string) {
	eventsDecoded.WithLabelValues(chain, event).Inc()
}

func EventProcessedInc(chain string, event string) {
	eventsProcessed.WithLabelValues(chain, event).Inc()
}

func DuplicateEventInc(chain string) {
	duplicateEvents.WithLabelValues(chain).Inc()
}

func DecodeErrorInc(chain string) {
	decodeErrors.WithLabelValues(chain).Inc()
}

func UnknownInvoiceInc(chain string) {
	unknownInvoices.WithLabelValues(chain).Inc()
}

func LastProcessedBlockSet(chain string, blockNum uint64) {
	LastProcessedBlock.WithLabelValues(chain).Set(float64(blockNum))
}

func WatcherRunningSet(chain string, running bool) {
	boolAsFloat := float64(1)
	if !running {
		boolAsFloat = 0
	}

	watcherRunning.WithLabelValues(chain).Set(boolAsFloat)
}

func BackfillTickDuration(chain string, duration time.Duration) {
	backfillTickTime.WithLabelValues(chain).Observe(duration.Seconds())
}

func SubscriptionDropInc(chain string) {
	subscriptionDrops.WithLabelValues(chain).Inc()
}

func RPCRetryInc(chain string, operation string) {
	rpcRetries.WithLabelValues(chain, operation).Inc()
}

func MaintenanceRunLog(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	maintenanceRuns.WithLabelValues(status).Inc()
	maintenanceDuration.Observe(duration.Seconds())
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
