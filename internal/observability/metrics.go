// Package observability — metrics.go
//
// Prometheus metrics for the monitor ingestion server.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback only — no external exposure.
//
// Metric naming convention: monitor_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - projectId is NOT used as a label (unbounded cardinality); per-project
//     breakdowns belong in the admin read path, not Prometheus.

package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for the monitor server.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Ingestion ────────────────────────────────────────────────────────────

	// ReportsReceivedTotal counts accepted reports. Labels: type.
	ReportsReceivedTotal *prometheus.CounterVec

	// ReportsRejectedTotal counts rejected reports. Labels: reason
	// (invalid_body, unknown_project, rate_limited).
	ReportsRejectedTotal *prometheus.CounterVec

	// ─── Queues ───────────────────────────────────────────────────────────────

	// QueueDepth is the current depth of a named worker pool queue.
	// Labels: queue (error-processing, error-aggregation, sourcemap-processing,
	// email-notification, ai-diagnosis).
	QueueDepth *prometheus.GaugeVec

	// QueueJobsDeadLetteredTotal counts jobs exhausted-retried to the dead
	// letter sink. Labels: queue.
	QueueJobsDeadLetteredTotal *prometheus.CounterVec

	// QueueJobLatency records handler latency. Labels: queue.
	QueueJobLatency *prometheus.HistogramVec

	// QueueJobsProcessedTotal counts successfully handled jobs. Labels: queue.
	QueueJobsProcessedTotal *prometheus.CounterVec

	// QueueJobsDroppedTotal counts jobs rejected because the queue was
	// full. Labels: queue.
	QueueJobsDroppedTotal *prometheus.CounterVec

	// QueueJobsRetriedTotal counts retry attempts scheduled after a
	// handler error. Labels: queue.
	QueueJobsRetriedTotal *prometheus.CounterVec

	// ─── Aggregation ──────────────────────────────────────────────────────────

	// AggregationsCreatedTotal counts brand-new aggregations.
	AggregationsCreatedTotal prometheus.Counter

	// AggregationsMergedTotal counts occurrences merged via similarity search.
	AggregationsMergedTotal prometheus.Counter

	// FingerprintSimilarityDuration records banded-Jaccard search latency.
	FingerprintSimilarityDuration prometheus.Histogram

	// ─── Alerting ─────────────────────────────────────────────────────────────

	// AlertsFiredTotal counts rule firings. Labels: rule_type.
	AlertsFiredTotal *prometheus.CounterVec

	// NotificationsSentTotal counts dispatched notifications. Labels: channel,
	// status. The pipeline always records status "sent"; the delivery outcome
	// is kept on the AlertHistory entry, not here.
	NotificationsSentTotal *prometheus.CounterVec

	// ─── Storage ──────────────────────────────────────────────────────────────

	// StorageWriteLatency records bbolt write transaction latency.
	StorageWriteLatency prometheus.Histogram

	// AggregationCount is the current total number of aggregations tracked.
	AggregationCount prometheus.Gauge

	// ─── Server ───────────────────────────────────────────────────────────────

	// UptimeSeconds is the number of seconds since the server started.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all monitor-server Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		ReportsReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitor",
			Subsystem: "ingest",
			Name:      "reports_received_total",
			Help:      "Total reports accepted by the intake endpoint, by type.",
		}, []string{"type"}),

		ReportsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitor",
			Subsystem: "ingest",
			Name:      "reports_rejected_total",
			Help:      "Total reports rejected by the intake endpoint, by reason.",
		}, []string{"reason"}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "monitor",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Current depth of a named worker pool queue.",
		}, []string{"queue"}),

		QueueJobsDeadLetteredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitor",
			Subsystem: "queue",
			Name:      "dead_lettered_total",
			Help:      "Total jobs moved to the dead letter sink after exhausting retries.",
		}, []string{"queue"}),

		QueueJobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "monitor",
			Subsystem: "queue",
			Name:      "job_latency_seconds",
			Help:      "Handler latency per job, by queue.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue"}),

		QueueJobsProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitor",
			Subsystem: "queue",
			Name:      "processed_total",
			Help:      "Total jobs successfully handled, by queue.",
		}, []string{"queue"}),

		QueueJobsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitor",
			Subsystem: "queue",
			Name:      "dropped_total",
			Help:      "Total jobs rejected because the queue was full, by queue.",
		}, []string{"queue"}),

		QueueJobsRetriedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitor",
			Subsystem: "queue",
			Name:      "retried_total",
			Help:      "Total retry attempts scheduled after a handler error, by queue.",
		}, []string{"queue"}),

		AggregationsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "monitor",
			Subsystem: "aggregation",
			Name:      "created_total",
			Help:      "Total brand-new error aggregations created.",
		}),

		AggregationsMergedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "monitor",
			Subsystem: "aggregation",
			Name:      "merged_total",
			Help:      "Total occurrences merged into an existing aggregation via similarity search.",
		}),

		FingerprintSimilarityDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "monitor",
			Subsystem: "aggregation",
			Name:      "similarity_search_duration_seconds",
			Help:      "Latency of the LSH-pruned banded Jaccard similarity search.",
			Buckets:   prometheus.DefBuckets,
		}),

		AlertsFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitor",
			Subsystem: "alerting",
			Name:      "fired_total",
			Help:      "Total alert rule firings, by rule type.",
		}, []string{"rule_type"}),

		NotificationsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monitor",
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total notification dispatch attempts, by channel.",
		}, []string{"channel", "status"}),

		StorageWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "monitor",
			Subsystem: "storage",
			Name:      "write_latency_seconds",
			Help:      "bbolt write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		AggregationCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "monitor",
			Subsystem: "storage",
			Name:      "aggregation_count",
			Help:      "Current total number of aggregations tracked across all projects.",
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "monitor",
			Subsystem: "server",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the server started.",
		}),
	}

	reg.MustRegister(
		m.ReportsReceivedTotal,
		m.ReportsRejectedTotal,
		m.QueueDepth,
		m.QueueJobsDeadLetteredTotal,
		m.QueueJobLatency,
		m.QueueJobsProcessedTotal,
		m.QueueJobsDroppedTotal,
		m.QueueJobsRetriedTotal,
		m.AggregationsCreatedTotal,
		m.AggregationsMergedTotal,
		m.FingerprintSimilarityDuration,
		m.AlertsFiredTotal,
		m.NotificationsSentTotal,
		m.StorageWriteLatency,
		m.AggregationCount,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given
// address. Blocks until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// The five methods below satisfy queue.Metrics, letting every queue.Pool
// report straight into this registry without an intermediate type.

func (m *Metrics) SetDepth(queue string, depth float64)  { m.QueueDepth.WithLabelValues(queue).Set(depth) }
func (m *Metrics) IncProcessed(queue string)             { m.QueueJobsProcessedTotal.WithLabelValues(queue).Inc() }
func (m *Metrics) IncDropped(queue string)               { m.QueueJobsDroppedTotal.WithLabelValues(queue).Inc() }
func (m *Metrics) IncRetried(queue string)                { m.QueueJobsRetriedTotal.WithLabelValues(queue).Inc() }
func (m *Metrics) IncDeadLettered(queue string)           { m.QueueJobsDeadLetteredTotal.WithLabelValues(queue).Inc() }

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
