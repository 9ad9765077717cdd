package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics captures discount pipeline health signals.
type SyncMetrics struct {
	upstreamRequests   *prometheus.CounterVec
	upstreamRetries    *prometheus.CounterVec
	throttleSleeps     prometheus.Counter
	throttleSleepTime  prometheus.Histogram
	throttleAvailable  prometheus.Gauge
	classifications    *prometheus.CounterVec
	storeFailures      prometheus.Counter
	sweptDiscounts     prometheus.Counter
	backfilled         prometheus.Counter
	reprocessItems     *prometheus.CounterVec
	paginationTruncate *prometheus.CounterVec
	jobRuns            *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	jobErrors          *prometheus.CounterVec
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the process-wide pipeline metrics registered on the default registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = NewSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest resets the singleton for tests.
func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

func NewSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "promosync"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &SyncMetrics{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "promosync_upstream_requests_total",
			Help:        "Upstream GraphQL requests by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		upstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "promosync_upstream_retries_total",
			Help:        "Upstream GraphQL retries by cause.",
			ConstLabels: constLabels,
		}, []string{"cause"}),
		throttleSleeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "promosync_upstream_throttle_sleeps_total",
			Help:        "Preemptive sleeps taken because the query budget ran low.",
			ConstLabels: constLabels,
		}),
		throttleSleepTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "promosync_upstream_throttle_sleep_seconds",
			Help:        "Duration of preemptive throttle sleeps.",
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			ConstLabels: constLabels,
		}),
		throttleAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "promosync_upstream_throttle_available",
			Help:        "Last observed remaining query budget.",
			ConstLabels: constLabels,
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "promosync_classifications_total",
			Help:        "Live discount classifications by resulting status and reason.",
			ConstLabels: constLabels,
		}, []string{"status", "reason"}),
		storeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "promosync_store_failures_total",
			Help:        "Discount store transactions that failed.",
			ConstLabels: constLabels,
		}),
		sweptDiscounts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "promosync_swept_discounts_total",
			Help:        "Expired discounts removed by the cleanup sweep.",
			ConstLabels: constLabels,
		}),
		backfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "promosync_backfilled_total",
			Help:        "Live discount rows restored from stored discounts.",
			ConstLabels: constLabels,
		}),
		reprocessItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "promosync_reprocess_items_total",
			Help:        "Reprocess items by scope and outcome.",
			ConstLabels: constLabels,
		}, []string{"scope", "outcome"}),
		paginationTruncate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "promosync_pagination_truncated_total",
			Help:        "Pagination walks stopped at the safety cap.",
			ConstLabels: constLabels,
		}, []string{"resource"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "promosync_scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "promosync_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "promosync_scheduler_job_errors_total",
			Help:        "Scheduler job errors by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	registerer.MustRegister(
		m.upstreamRequests,
		m.upstreamRetries,
		m.throttleSleeps,
		m.throttleSleepTime,
		m.throttleAvailable,
		m.classifications,
		m.storeFailures,
		m.sweptDiscounts,
		m.backfilled,
		m.reprocessItems,
		m.paginationTruncate,
		m.jobRuns,
		m.jobDuration,
		m.jobErrors,
	)
	return m
}

func (m *SyncMetrics) IncUpstreamRequest(outcome string) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(outcome).Inc()
}

func (m *SyncMetrics) IncUpstreamRetry(cause string) {
	if m == nil {
		return
	}
	m.upstreamRetries.WithLabelValues(cause).Inc()
}

func (m *SyncMetrics) ObserveThrottle(available float64) {
	if m == nil {
		return
	}
	m.throttleAvailable.Set(available)
}

func (m *SyncMetrics) ObserveThrottleSleep(d time.Duration) {
	if m == nil {
		return
	}
	m.throttleSleeps.Inc()
	m.throttleSleepTime.Observe(d.Seconds())
}

func (m *SyncMetrics) IncClassification(status, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.classifications.WithLabelValues(status, reason).Inc()
}

func (m *SyncMetrics) IncStoreFailure() {
	if m == nil {
		return
	}
	m.storeFailures.Inc()
}

func (m *SyncMetrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptDiscounts.Add(float64(n))
}

func (m *SyncMetrics) AddBackfilled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.backfilled.Add(float64(n))
}

func (m *SyncMetrics) IncReprocessItem(scope, outcome string) {
	if m == nil {
		return
	}
	m.reprocessItems.WithLabelValues(scope, outcome).Inc()
}

func (m *SyncMetrics) IncPaginationTruncated(resource string) {
	if m == nil {
		return
	}
	m.paginationTruncate.WithLabelValues(resource).Inc()
}

func (m *SyncMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SyncMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SyncMetrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job).Inc()
}
