package inference

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Detection stages reported by the detections counter.
const (
	StageRaw    = "raw"
	StageKept   = "kept"
	StageMerged = "merged"
)

// Metrics contains the Prometheus metrics of sliced prediction.
type Metrics struct {
	Tiles          prometheus.Counter
	SkippedTiles   prometheus.Counter
	Batches        prometheus.Counter
	BatchErrors    prometheus.Counter
	Detections     *prometheus.CounterVec
	DetectDuration prometheus.Histogram
}

// NewMetrics creates the engine metrics and registers them with the registerer.
//
// Arguments:
//   - reg: The registerer, usually a *prometheus.Registry.
//
// Returns:
//   - *Metrics: The registered metrics.
//   - error: An error if registration fails.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Tiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sahi_tiles_total",
			Help: "Total number of tiles sent to the detector.",
		}),
		SkippedTiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sahi_skipped_tiles_total",
			Help: "Total number of tiles skipped because they carry no signal.",
		}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sahi_batches_total",
			Help: "Total number of detector batches.",
		}),
		BatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sahi_batch_errors_total",
			Help: "Total number of batches that failed.",
		}),
		Detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sahi_detections_total",
				Help: "Total number of detections partitioned by pipeline stage.",
			},
			[]string{"stage"},
		),
		DetectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sahi_detect_duration_seconds",
			Help:    "Time taken by the detector for one batch.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
	}

	if err := reg.Register(m); err != nil {
		return nil, errors.Wrap(err, "failed to register sahi metrics")
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Tiles.Describe(ch)
	m.SkippedTiles.Describe(ch)
	m.Batches.Describe(ch)
	m.BatchErrors.Describe(ch)
	m.Detections.Describe(ch)
	m.DetectDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Tiles.Collect(ch)
	m.SkippedTiles.Collect(ch)
	m.Batches.Collect(ch)
	m.BatchErrors.Collect(ch)
	m.Detections.Collect(ch)
	m.DetectDuration.Collect(ch)
}

// The helpers below are no-ops on a nil receiver so the engine can run without metrics.

func (m *Metrics) observeBatch(tiles int, seconds float64) {
	if m == nil {
		return
	}
	m.Tiles.Add(float64(tiles))
	m.Batches.Inc()
	m.DetectDuration.Observe(seconds)
}

func (m *Metrics) tileSkipped() {
	if m == nil {
		return
	}
	m.SkippedTiles.Inc()
}

func (m *Metrics) batchFailed() {
	if m == nil {
		return
	}
	m.BatchErrors.Inc()
}

func (m *Metrics) addDetections(stage string, n int) {
	if m == nil {
		return
	}
	m.Detections.WithLabelValues(stage).Add(float64(n))
}
