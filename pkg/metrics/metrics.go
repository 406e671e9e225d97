package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Compilation and execution metrics
var (
	CompileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svbin_compile_total",
			Help: "Total number of script compilations",
		},
		[]string{"result"}, // result: "success", "syntax_error", "validation_error", "error"
	)

	CompileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "svbin_compile_duration_seconds",
			Help:    "Duration of script compilations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	ExecuteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svbin_execute_total",
			Help: "Total number of program runs by resulting action",
		},
		[]string{"result"}, // result: an action name, "error" or "limit"
	)

	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svbin_decode_errors_total",
			Help: "Total number of corrupt or unreadable programs encountered",
		},
		[]string{"phase"}, // phase: "load", "execute", "dump"
	)

	InstructionsPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "svbin_instructions_per_run",
			Help:    "Number of instructions executed per program run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
)

// Program cache and store metrics
var (
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svbin_cache_operations_total",
			Help: "Total number of compiled program cache operations",
		},
		[]string{"operation", "result"}, // operation: "get", "put", "evict"; result: "hit", "miss", "expired", "ok"
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "svbin_cache_entries",
			Help: "Number of compiled programs held in the cache",
		},
	)

	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "svbin_store_operations_total",
			Help: "Total number of compiled program store operations",
		},
		[]string{"operation", "status"}, // operation: "get", "put", "delete"; status: "success", "not_found", "failure"
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "svbin_store_operation_duration_seconds",
			Help:    "Duration of compiled program store operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		},
		[]string{"operation", "driver"},
	)
)

// WriteTextfile writes every registered metric to path in the text
// exposition format, for collection by the node exporter.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
