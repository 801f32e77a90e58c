package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Data-quality engine metrics for production monitoring
var (
	// Detection metrics
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridata_detections_total",
			Help: "Total number of detection passes",
		},
		[]string{"data_source", "status"},
	)

	DetectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veridata_detection_duration_seconds",
			Help:    "Detection pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"data_source"},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridata_anomalies_detected_total",
			Help: "Total anomalies detected by kind and severity",
		},
		[]string{"kind", "severity"},
	)

	DetectorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridata_detector_failures_total",
			Help: "Total detector failures absorbed during detection passes",
		},
		[]string{"detector"},
	)

	// Repair metrics
	RepairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridata_repairs_total",
			Help: "Total repair attempts by action and outcome",
		},
		[]string{"action", "status"}, // status: success/failure/skipped
	)

	RepairDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veridata_repair_duration_seconds",
			Help:    "Repair execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"action"},
	)

	// Persistence metrics
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridata_store_errors_total",
			Help: "Total persistence failures (best-effort writes)",
		},
		[]string{"operation"},
	)

	RetentionRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridata_retention_removed_total",
			Help: "Total records removed by retention sweeps",
		},
		[]string{"location"}, // location: memory/store
	)

	// Engine state
	TrackedAnomalies = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "veridata_tracked_anomalies",
			Help: "Current number of anomaly records held in memory",
		},
	)

	ModelBundles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "veridata_model_bundles",
			Help: "Current number of per-stream model bundles",
		},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "veridata_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridata_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)
)
