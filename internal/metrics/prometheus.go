package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ChrisB0-2/purge/internal/core"
)

const namespace = "purge"

// Prometheus implements core.Metrics using Prometheus client.
type Prometheus struct {
	// Scanning metrics
	candidatesDiscovered *prometheus.CounterVec
	policyDecisions      *prometheus.CounterVec
	scanDuration         *prometheus.HistogramVec
	scannerErrors        *prometheus.CounterVec
	bytesReclaimable     prometheus.Gauge
	itemsReclaimable     prometheus.Gauge

	// Cleanup metrics
	itemsRemoved     *prometheus.CounterVec
	bytesFreed       prometheus.Counter
	removeErrors     *prometheus.CounterVec
	snapshotDuration prometheus.Histogram
	openHandles      prometheus.Gauge
}

// NewPrometheus creates a new Prometheus metrics collector.
// All metrics are registered with the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Prometheus{
		candidatesDiscovered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "candidates_discovered_total",
			Help:      "Raw candidates emitted by each scanner before filtering",
		}, []string{"scanner"}),

		policyDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "policy_decisions_total",
			Help:      "Filtering decisions by reason and outcome",
		}, []string{"reason", "allowed"}),

		scanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Time spent in one scanner's discovery pass",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}, []string{"scanner"}),

		scannerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "errors_total",
			Help:      "Scanner runs that ended in an error or panic",
		}, []string{"scanner"}),

		bytesReclaimable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "bytes_reclaimable",
			Help:      "Total bytes of admitted items in the latest scan",
		}),

		itemsReclaimable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "items_reclaimable",
			Help:      "Number of admitted items in the latest scan",
		}),

		itemsRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "items_removed_total",
			Help:      "Items removed, by owning scanner",
		}, []string{"scanner"}),

		bytesFreed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "bytes_freed_total",
			Help:      "Total bytes freed by removals",
		}),

		removeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "remove_errors_total",
			Help:      "Failed removals by reason",
		}, []string{"reason"}),

		snapshotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "handle_snapshot_duration_seconds",
			Help:      "Time spent enumerating open file handles",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),

		openHandles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "open_handles",
			Help:      "Distinct open paths seen in the latest handle snapshot",
		}),
	}
}

// Scanning metrics

func (p *Prometheus) IncCandidatesDiscovered(scanner string) {
	p.candidatesDiscovered.WithLabelValues(scanner).Inc()
}

func (p *Prometheus) IncPolicyDecision(reason string, allowed bool) {
	p.policyDecisions.WithLabelValues(reason, boolStr(allowed)).Inc()
}

func (p *Prometheus) ObserveScanDuration(scanner string, duration time.Duration) {
	p.scanDuration.WithLabelValues(scanner).Observe(duration.Seconds())
}

func (p *Prometheus) IncScannerErrors(scanner string) {
	p.scannerErrors.WithLabelValues(scanner).Inc()
}

func (p *Prometheus) SetBytesReclaimable(bytes int64) {
	p.bytesReclaimable.Set(float64(bytes))
}

func (p *Prometheus) SetItemsReclaimable(count int) {
	p.itemsReclaimable.Set(float64(count))
}

// Cleanup metrics

func (p *Prometheus) IncItemsRemoved(scanner string) {
	p.itemsRemoved.WithLabelValues(scanner).Inc()
}

func (p *Prometheus) AddBytesFreed(bytes int64) {
	p.bytesFreed.Add(float64(bytes))
}

func (p *Prometheus) IncRemoveErrors(reason string) {
	p.removeErrors.WithLabelValues(reason).Inc()
}

func (p *Prometheus) ObserveHandleSnapshot(duration time.Duration, handles int) {
	p.snapshotDuration.Observe(duration.Seconds())
	p.openHandles.Set(float64(handles))
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Ensure Prometheus implements core.Metrics
var _ core.Metrics = (*Prometheus)(nil)
