package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors named in spec §6, plus the
// suggested additions (actions_total, telemetry_ingest_total,
// engine_decision_latency_seconds). Each Engine owns its own registry
// rather than registering to prometheus.DefaultRegisterer, so multiple
// Engines (as in tests) can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	DiscoverScansTotal          prometheus.Counter
	DiscoverDevicesFoundTotal   prometheus.Counter
	DiscoverDevicesApprovedTotal prometheus.Counter
	DiscoverDurationSeconds     prometheus.Histogram

	ActionsTotal              *prometheus.CounterVec
	TelemetryIngestTotal      prometheus.Counter
	DecisionLatencySeconds    prometheus.Histogram
}

// NewMetrics builds and registers a fresh collector set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		DiscoverScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discover_scans_total",
			Help: "Total number of discovery scans started.",
		}),
		DiscoverDevicesFoundTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discover_devices_found_total",
			Help: "Total number of devices reported by discover/results.",
		}),
		DiscoverDevicesApprovedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discover_devices_approved_total",
			Help: "Total number of devices approved into the registry.",
		}),
		DiscoverDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "discover_duration_seconds",
			Help:    "Observed duration of completed discovery scans.",
			Buckets: prometheus.DefBuckets,
		}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actions_total",
			Help: "Total number of actions emitted, by status.",
		}, []string{"status"}),
		TelemetryIngestTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_ingest_total",
			Help: "Total number of telemetry points ingested.",
		}),
		DecisionLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_decision_latency_seconds",
			Help:    "Wall time spent in one telemetry decision cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.DiscoverScansTotal,
		m.DiscoverDevicesFoundTotal,
		m.DiscoverDevicesApprovedTotal,
		m.DiscoverDurationSeconds,
		m.ActionsTotal,
		m.TelemetryIngestTotal,
		m.DecisionLatencySeconds,
	)

	return m
}
