package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the decomposition service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Job metrics
	JobsSubmittedTotal prometheus.Counter
	JobsFinishedTotal  *prometheus.CounterVec
	JobDuration        prometheus.Histogram
	JobsActive         prometheus.Gauge
	JobsQueued         prometheus.Gauge

	// Decomposition metrics
	WindowFitsTotal   prometheus.Counter
	WindowFitDuration prometheus.Histogram
	VarProIterations  prometheus.Histogram
	LevelsPerJob      prometheus.Histogram

	// Archive metrics
	ArchiveWritesTotal   prometheus.Counter
	ArchiveWriteDuration prometheus.Histogram
	ArchiveReadsTotal    prometheus.Counter
	ArchiveSizeBytes     prometheus.Histogram

	// Release metrics
	ReleaseRunsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics. A nil registerer
// uses the default registry.
func NewMetrics(instanceID string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"instance_id": instanceID}

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "scalesep",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "scalesep",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "Histogram of HTTP request durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "path"}),

		JobsSubmittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "scalesep",
			Subsystem:   "jobs",
			Name:        "submitted_total",
			Help:        "Total number of decomposition jobs submitted",
			ConstLabels: labels,
		}),
		JobsFinishedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "scalesep",
			Subsystem:   "jobs",
			Name:        "finished_total",
			Help:        "Total number of decomposition jobs finished, by status",
			ConstLabels: labels,
		}, []string{"status"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "scalesep",
			Subsystem:   "jobs",
			Name:        "duration_seconds",
			Help:        "Histogram of decomposition job durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
		}),
		JobsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "scalesep",
			Subsystem:   "jobs",
			Name:        "active",
			Help:        "Number of decomposition jobs currently running",
			ConstLabels: labels,
		}),
		JobsQueued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "scalesep",
			Subsystem:   "jobs",
			Name:        "queued",
			Help:        "Number of decomposition jobs waiting in the queue",
			ConstLabels: labels,
		}),

		WindowFitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "scalesep",
			Subsystem:   "decomposition",
			Name:        "window_fits_total",
			Help:        "Total number of window fits performed",
			ConstLabels: labels,
		}),
		WindowFitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "scalesep",
			Subsystem:   "decomposition",
			Name:        "window_fit_duration_seconds",
			Help:        "Histogram of single-window fit durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		VarProIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "scalesep",
			Subsystem:   "decomposition",
			Name:        "varpro_iterations",
			Help:        "Histogram of variable projection iteration counts per window fit",
			ConstLabels: labels,
			Buckets:     prometheus.LinearBuckets(0, 5, 10),
		}),
		LevelsPerJob: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "scalesep",
			Subsystem:   "decomposition",
			Name:        "levels_per_job",
			Help:        "Histogram of decomposition level counts per job",
			ConstLabels: labels,
			Buckets:     prometheus.LinearBuckets(1, 1, 8),
		}),

		ArchiveWritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "scalesep",
			Subsystem:   "archive",
			Name:        "writes_total",
			Help:        "Total number of archive writes",
			ConstLabels: labels,
		}),
		ArchiveWriteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "scalesep",
			Subsystem:   "archive",
			Name:        "write_duration_seconds",
			Help:        "Histogram of archive write durations",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		ArchiveReadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "scalesep",
			Subsystem:   "archive",
			Name:        "reads_total",
			Help:        "Total number of archive reads",
			ConstLabels: labels,
		}),
		ArchiveSizeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "scalesep",
			Subsystem:   "archive",
			Name:        "size_bytes",
			Help:        "Histogram of archive sizes in bytes",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),

		ReleaseRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "scalesep",
			Subsystem:   "release",
			Name:        "runs_total",
			Help:        "Total number of release tagger runs, by result",
			ConstLabels: labels,
		}, []string{"result"}),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordJobSubmitted records a submitted job
func (m *Metrics) RecordJobSubmitted() {
	m.JobsSubmittedTotal.Inc()
}

// RecordJobFinished records a finished job with its final status
func (m *Metrics) RecordJobFinished(status string, duration float64) {
	m.JobsFinishedTotal.WithLabelValues(status).Inc()
	m.JobDuration.Observe(duration)
}

// UpdateJobQueue updates the job queue gauges
func (m *Metrics) UpdateJobQueue(active, queued int) {
	m.JobsActive.Set(float64(active))
	m.JobsQueued.Set(float64(queued))
}

// RecordWindowFit records a single window fit
func (m *Metrics) RecordWindowFit(duration float64, iterations int) {
	m.WindowFitsTotal.Inc()
	m.WindowFitDuration.Observe(duration)
	m.VarProIterations.Observe(float64(iterations))
}

// RecordLevels records the level count of a finished job
func (m *Metrics) RecordLevels(levels int) {
	m.LevelsPerJob.Observe(float64(levels))
}

// RecordArchiveWrite records an archive write
func (m *Metrics) RecordArchiveWrite(duration float64, sizeBytes int64) {
	m.ArchiveWritesTotal.Inc()
	m.ArchiveWriteDuration.Observe(duration)
	m.ArchiveSizeBytes.Observe(float64(sizeBytes))
}

// RecordArchiveRead records an archive read
func (m *Metrics) RecordArchiveRead() {
	m.ArchiveReadsTotal.Inc()
}

// RecordReleaseRun records a release tagger run
func (m *Metrics) RecordReleaseRun(result string) {
	m.ReleaseRunsTotal.WithLabelValues(result).Inc()
}
