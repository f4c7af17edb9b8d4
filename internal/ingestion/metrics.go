package ingestion

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// IngestionMetrics is the JSON view served at /api/metrics.
type IngestionMetrics struct {
	SessionsOpened   int64 `json:"sessions_opened"`
	SamplesIngested  int64 `json:"samples_ingested"`
	FramesRendered   int64 `json:"frames_rendered"`
	FramesDropped    int64 `json:"frames_dropped"`
	ErrorCount       int64 `json:"error_count"`
	BatchesCommitted int64 `json:"batches_committed"`
	ActiveStreams    int64 `json:"active_streams"`
	Uptime           int64 `json:"uptime_seconds"`
}

// metrics keeps atomic counters for the JSON snapshot and mirrors them into a
// private Prometheus registry, so several daemons can coexist in one process.
type metrics struct {
	sessions, samples, frames, dropped, errors, batches, streams atomic.Int64

	registry     *prometheus.Registry
	sessionsVec  *prometheus.CounterVec
	samplesVec   *prometheus.CounterVec
	framesTotal  prometheus.Counter
	droppedTotal prometheus.Counter
	errorsTotal  prometheus.Counter
	batchesTotal prometheus.Counter
	streamsGauge prometheus.Gauge
	flushSeconds prometheus.Histogram
	headLag      prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		sessionsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whiptrail_sessions_opened_total",
			Help: "Pointer sessions opened, by source.",
		}, []string{"source"}),
		samplesVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "whiptrail_samples_ingested_total",
			Help: "Pointer samples accepted, by source.",
		}, []string{"source"}),
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whiptrail_frames_rendered_total",
			Help: "Trail frames streamed to websocket clients.",
		}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whiptrail_frames_dropped_total",
			Help: "Frames or frame stats dropped because a consumer fell behind.",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whiptrail_errors_total",
			Help: "Ingestion errors.",
		}),
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "whiptrail_batches_committed_total",
			Help: "Sample batches committed to the store.",
		}),
		streamsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "whiptrail_render_streams",
			Help: "Websocket clients currently receiving rendered frames.",
		}),
		flushSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "whiptrail_flush_duration_seconds",
			Help:    "Time spent committing one sample batch.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		headLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "whiptrail_head_lag_pixels",
			Help:    "Distance from the trail head to the pointer, per rendered frame.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		}),
	}
	m.registry.MustRegister(
		m.sessionsVec, m.samplesVec, m.framesTotal, m.droppedTotal,
		m.errorsTotal, m.batchesTotal, m.streamsGauge, m.flushSeconds, m.headLag,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *metrics) sessionOpened(source string) {
	if source == "" {
		source = "unknown"
	}
	m.sessions.Add(1)
	m.sessionsVec.WithLabelValues(source).Inc()
}

func (m *metrics) sampleIngested(source string) { m.samplesIngested(source, 1) }

func (m *metrics) samplesIngested(source string, n int) {
	m.samples.Add(int64(n))
	m.samplesVec.WithLabelValues(source).Add(float64(n))
}

func (m *metrics) frameRendered(headLag float64) {
	m.frames.Add(1)
	m.framesTotal.Inc()
	m.headLag.Observe(headLag)
}

func (m *metrics) frameDropped() {
	m.dropped.Add(1)
	m.droppedTotal.Inc()
}

func (m *metrics) incError() {
	m.errors.Add(1)
	m.errorsTotal.Inc()
}

func (m *metrics) batchCommitted() {
	m.batches.Add(1)
	m.batchesTotal.Inc()
}

func (m *metrics) streamStarted() {
	m.streams.Add(1)
	m.streamsGauge.Inc()
}

func (m *metrics) streamEnded() {
	m.streams.Add(-1)
	m.streamsGauge.Dec()
}

func (m *metrics) observeFlush(d time.Duration) {
	m.flushSeconds.Observe(d.Seconds())
}

func (m *metrics) snapshot(started time.Time) IngestionMetrics {
	var uptime int64
	if !started.IsZero() {
		uptime = int64(time.Since(started).Seconds())
	}
	return IngestionMetrics{
		SessionsOpened:   m.sessions.Load(),
		SamplesIngested:  m.samples.Load(),
		FramesRendered:   m.frames.Load(),
		FramesDropped:    m.dropped.Load(),
		ErrorCount:       m.errors.Load(),
		BatchesCommitted: m.batches.Load(),
		ActiveStreams:    m.streams.Load(),
		Uptime:           uptime,
	}
}
