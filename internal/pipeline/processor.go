// Package pipeline — processor.go
//
// Processor owns the per-stage handler logic the ingestion queues call.
// Each method below is installed as a queue.Pool[T] Handler in
// cmd/monitor-server; they never talk to queues beyond their own
// downstream TryEnqueue hand-off.

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/lqt0707/monitor/internal/aggregation"
	"github.com/lqt0707/monitor/internal/alerting"
	"github.com/lqt0707/monitor/internal/diagnosis"
	"github.com/lqt0707/monitor/internal/fingerprint"
	"github.com/lqt0707/monitor/internal/model"
	"github.com/lqt0707/monitor/internal/notify"
	"github.com/lqt0707/monitor/internal/observability"
	"github.com/lqt0707/monitor/internal/queue"
	"github.com/lqt0707/monitor/internal/sourcemapresolver"
	"github.com/lqt0707/monitor/internal/store"
)

// Processor bundles every downstream collaborator a pipeline stage needs.
// Queues are injected as plain function values so Processor stays
// testable without constructing real queue.Pool instances.
type Processor struct {
	Projects       store.ProjectConfigRepo
	RawEvents      store.RawEventSink
	SourceArchives store.SourceArchiveRepo
	Aggregations   *aggregation.Store
	Evaluator      *alerting.Evaluator
	Dispatcher     *notify.Dispatcher
	Resolver       *sourcemapresolver.Resolver // nil disables sourcemap resolution
	Metrics        *observability.Metrics      // nil disables metrics

	EnqueueAggregation func(aggregation.Event) bool
	EnqueueSourcemap   func(SourcemapJob) bool
	EnqueueNotify      func(alerting.Notification) bool
	EnqueueDiagnosis   func(diagnosis.Request) bool // nil when diagnosis is disabled

	FingerprintK    int
	FingerprintOpts fingerprint.Options

	Log *zap.Logger
}

// errorReportTypes is the subset of ReportType values that feed the
// fingerprint/aggregation/alerting pipeline. Performance reports instead
// feed performanceReportTypes; anything else is persisted to the raw sink
// only.
var errorReportTypes = map[model.ReportType]model.ErrorType{
	model.ReportJSError:            model.ErrorTypeJS,
	model.ReportUnhandledRejection: model.ErrorTypePromise,
	model.ReportRequestError:       model.ErrorTypeHTTP,
}

// performanceReportTypes is the subset of ReportType values that carry a
// named-metric measurement for the performance alert-rule path.
var performanceReportTypes = map[model.ReportType]bool{
	model.ReportPerformanceInfoReady: true,
	model.ReportSlowHTTPRequest:      true,
}

// slowHTTPMetric is the metric name a slowHttpRequest report's Duration
// field is recorded under, so a performance rule can name it like any
// other metric in PerformanceData.Metrics.
const slowHTTPMetric = "httpRequestDuration"

// ProcessReport is the error-processing queue's handler: persists the raw
// event, and for error-shaped reports computes the MinHash fingerprint and
// hands off to the aggregation (and, if applicable, sourcemap) queues. For
// performance-shaped reports it records each named metric and runs the
// performance alert rules instead.
func (p *Processor) ProcessReport(ctx context.Context, job ReportJob) error {
	if err := p.RawEvents.Append(ctx, &model.RawEvent{
		ProjectID:  job.ProjectID,
		ReceivedAt: job.ReceivedAt,
		Report:     job.Report,
	}); err != nil {
		return fmt.Errorf("persist raw event: %w", err)
	}

	if performanceReportTypes[job.Report.Type] {
		return p.processPerformanceReport(ctx, job)
	}

	errType, isError := errorReportTypes[job.Report.Type]
	if !isError {
		return nil
	}

	input := fingerprint.Input{
		Type:    string(errType),
		Message: job.Report.ErrorMessage,
		Stack:   job.Report.ErrorStack,
		File:    job.Report.Filename,
	}
	features := fingerprint.Extract(input, p.FingerprintOpts)
	hash := fingerprint.Signature(features, p.FingerprintK)

	ev := aggregation.Event{
		ProjectID:  job.ProjectID,
		ErrorHash:  hash,
		Message:    job.Report.ErrorMessage,
		Stack:      job.Report.ErrorStack,
		ErrType:    errType,
		UserID:     job.Report.UserID,
		OccurredAt: job.ReceivedAt,
	}
	if !p.EnqueueAggregation(ev) {
		if p.Log != nil {
			p.Log.Warn("error-aggregation queue full, dropping event",
				zap.String("projectId", job.ProjectID), zap.String("errorHash", hash))
		}
		return nil
	}

	if job.Report.Filename != "" && p.Resolver != nil && p.EnqueueSourcemap != nil {
		proj, err := p.Projects.GetByID(ctx, job.ProjectID)
		if err == nil && proj != nil && proj.FeatureSourcemap {
			p.EnqueueSourcemap(SourcemapJob{
				ProjectID: job.ProjectID,
				ErrorHash: hash,
				File:      job.Report.Filename,
				Line:      job.Report.Lineno,
				Col:       job.Report.Colno,
			})
		}
	}
	return nil
}

// processPerformanceReport extracts the named metrics from a
// performanceInfoReady or slowHttpRequest report, records each one into
// the evaluator's metric window, and enqueues any notifications from
// performance rules it causes to fire. A project with no enabled
// performance rules still pays the cost of recording the sample, since
// rules can be added after the fact and the window needs the history.
func (p *Processor) processPerformanceReport(ctx context.Context, job ReportJob) error {
	if p.Evaluator == nil {
		return nil
	}
	proj, err := p.Projects.GetByID(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("lookup project %s: %w", job.ProjectID, err)
	}
	if proj == nil {
		return nil
	}

	metrics := map[string]float64{}
	if job.Report.Type == model.ReportSlowHTTPRequest && job.Report.Duration > 0 {
		metrics[slowHTTPMetric] = job.Report.Duration
	}
	if len(job.Report.PerformanceData) > 0 {
		var parsed map[string]float64
		if err := json.Unmarshal(job.Report.PerformanceData, &parsed); err != nil {
			if p.Log != nil {
				p.Log.Warn("malformed performanceData, skipping metric recording",
					zap.String("projectId", job.ProjectID), zap.Error(err))
			}
		} else {
			for name, value := range parsed {
				metrics[name] = value
			}
		}
	}

	for name, value := range metrics {
		notifications, err := p.Evaluator.EvaluateMetric(ctx, proj, name, value, job.ReceivedAt)
		if err != nil {
			return fmt.Errorf("evaluate metric %s for %s: %w", name, job.ProjectID, err)
		}
		for _, n := range notifications {
			if p.Metrics != nil {
				p.Metrics.AlertsFiredTotal.WithLabelValues(string(n.Rule.Type)).Inc()
			}
			if p.EnqueueNotify != nil && !p.EnqueueNotify(n) {
				if p.Log != nil {
					p.Log.Warn("email-notification queue full, dropping notification",
						zap.String("ruleId", n.Rule.ID), zap.String("projectId", job.ProjectID))
				}
			}
		}
	}
	return nil
}

// ProcessAggregation is the error-aggregation queue's handler: applies the
// event to the aggregation table, then evaluates alert rules and enqueues
// any notifications and (for brand-new aggregations, when enabled) an
// ai-diagnosis job.
func (p *Processor) ProcessAggregation(ctx context.Context, ev aggregation.Event) error {
	agg, created, err := p.Aggregations.Apply(ctx, ev)
	if err != nil {
		return fmt.Errorf("apply aggregation event: %w", err)
	}
	if p.Metrics != nil {
		if created {
			p.Metrics.AggregationsCreatedTotal.Inc()
		} else {
			p.Metrics.AggregationsMergedTotal.Inc()
		}
	}

	proj, err := p.Projects.GetByID(ctx, ev.ProjectID)
	if err != nil {
		return fmt.Errorf("lookup project %s: %w", ev.ProjectID, err)
	}
	if proj == nil {
		return nil
	}

	total := p.Evaluator.RecordEvent(ev.ProjectID)
	notifications, err := p.Evaluator.Evaluate(ctx, proj, agg, total)
	if err != nil {
		return fmt.Errorf("evaluate alert rules: %w", err)
	}
	for _, n := range notifications {
		if p.Metrics != nil {
			p.Metrics.AlertsFiredTotal.WithLabelValues(string(n.Rule.Type)).Inc()
		}
		if p.EnqueueNotify != nil && !p.EnqueueNotify(n) {
			if p.Log != nil {
				p.Log.Warn("email-notification queue full, dropping notification",
					zap.String("ruleId", n.Rule.ID), zap.String("projectId", ev.ProjectID))
			}
		}
	}

	if created && proj.FeatureAIDiagnosis && p.EnqueueDiagnosis != nil {
		p.EnqueueDiagnosis(diagnosis.Request{
			ProjectID:       agg.ProjectID,
			ErrorHash:       agg.ErrorHash,
			Message:         agg.Message,
			Stack:           agg.Stack,
			OccurrenceCount: agg.OccurrenceCount,
			AffectedUsers:   len(agg.AffectedUsers),
		})
	}

	if p.Metrics != nil && created {
		p.Metrics.AggregationCount.Inc()
	}
	return nil
}

// ProcessSourcemap is the sourcemap-processing queue's handler. Resolution
// failures (missing map, unparsable map, position not found) are
// swallowed by the Resolver itself and simply leave the aggregation's
// source location unset; this handler never retries or dead-letters on
// that basis.
func (p *Processor) ProcessSourcemap(ctx context.Context, job SourcemapJob) error {
	active, err := p.SourceArchives.GetActive(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("lookup active source version for %s: %w", job.ProjectID, err)
	}
	if active == nil {
		return nil
	}

	pos, err := p.Resolver.Resolve(ctx, job.ProjectID, active.Version, job.File, job.Line, job.Col)
	if err != nil {
		return fmt.Errorf("resolve source map position: %w", err)
	}
	if pos == nil {
		return nil
	}

	loc := &model.SourceLocation{
		Source:        pos.Source,
		Line:          pos.Line,
		Column:        pos.Column,
		Name:          pos.Name,
		SourceContent: pos.SourceContent,
	}
	if err := p.Aggregations.UpdateSource(ctx, job.ProjectID, job.ErrorHash, loc); err != nil {
		return fmt.Errorf("update aggregation source location: %w", err)
	}
	return nil
}

// ProcessNotification is the email-notification queue's handler.
func (p *Processor) ProcessNotification(ctx context.Context, n alerting.Notification) error {
	p.Dispatcher.Dispatch(ctx, n, n.HistoryID)
	if p.Metrics != nil {
		status := "sent"
		// Dispatcher records the terminal status itself via HistoryUpdater;
		// here we only count dispatch attempts per channel for visibility.
		for _, ch := range n.Rule.Actions {
			p.Metrics.NotificationsSentTotal.WithLabelValues(string(ch), status).Inc()
		}
	}
	return nil
}

// ApplyDiagnosis merges a completed diagnosis result into its aggregation.
// Passed to diagnosis.Client.Handler as the apply callback.
func (p *Processor) ApplyDiagnosis(ctx context.Context, req diagnosis.Request, result *diagnosis.Result) error {
	blob := map[string]model.Value{
		"summary":    model.StringValue(result.Summary),
		"confidence": model.NumberValue(result.Confidence),
	}
	for k, v := range result.Fields {
		blob[k] = model.StringValue(v)
	}
	return p.Aggregations.UpdateDiagnosis(ctx, req.ProjectID, req.ErrorHash, blob)
}

// QueueAdapter adapts a *queue.Pool[T] to the plain bool-returning
// enqueue func Processor expects, keeping Processor decoupled from the
// queue package's generic type at the field level.
func QueueAdapter[T any](pool *queue.Pool[T]) func(T) bool {
	return func(job T) bool { return pool.TryEnqueue(job) }
}
