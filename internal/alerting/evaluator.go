// Package alerting — evaluator.go
//
// Evaluator tests a project's enabled alert rules against a just-updated
// aggregation and produces notification jobs for every rule that fires
// and has not already fired for that (rule, aggregation) pair.

package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lqt0707/monitor/contrib"
	"github.com/lqt0707/monitor/internal/model"
)

// RuleRepo is the read path the evaluator needs.
type RuleRepo interface {
	ListEnabled(ctx context.Context, projectID string) ([]*model.AlertRule, error)
}

// HistoryRepo records fired alerts and answers idempotence checks.
type HistoryRepo interface {
	Append(ctx context.Context, entry *model.AlertHistory) error
	HasFired(ctx context.Context, ruleID, errorHash string) (bool, error)
}

// Notification is the payload enqueued to the email-notification queue.
// Aggregation is set for errorCount/errorRate/custom rules; Metric is set
// instead for performance rules, which have no aggregation to key off of.
type Notification struct {
	Rule           *model.AlertRule
	Project        *model.ProjectConfig
	Aggregation    *model.ErrorAggregation
	Metric         string
	TriggeredValue float64
	HistoryID      string
}

// Evaluator wires rule lookup, a total-events window for errorRate rules,
// a metric window for performance rules, and history bookkeeping together.
type Evaluator struct {
	rules     RuleRepo
	history   HistoryRepo
	totals    *SlidingWindow // per-project total event count, errorRate denominator
	metrics   *MetricWindow  // per-project, per-metric samples, performance rules
	bandEvery []int          // re-arm bands, ascending
}

// DefaultBands matches the emission-policy bands used elsewhere: an
// aggregation re-arms alerting at occurrence counts 5, 10, and every
// further multiple of 50.
var DefaultBands = []int{5, 10}

// NewEvaluator builds an Evaluator. metrics may be nil, which disables
// performance-rule evaluation (EvaluateMetric then always returns no
// notifications).
func NewEvaluator(rules RuleRepo, history HistoryRepo, totals *SlidingWindow, metrics *MetricWindow) *Evaluator {
	return &Evaluator{rules: rules, history: history, totals: totals, metrics: metrics, bandEvery: DefaultBands}
}

// RecordEvent records one occurrence for proj's total-event window and
// returns the resulting count, the errorRate rule denominator.
func (e *Evaluator) RecordEvent(projectID string) int {
	return e.totals.Record(projectID, time.Now())
}

// crossedBand reports whether count lands exactly on a re-arm boundary:
// one of the fixed bands, or a multiple of 50 beyond them.
func (e *Evaluator) crossedBand(count int) bool {
	for _, b := range e.bandEvery {
		if count == b {
			return true
		}
	}
	return count >= 50 && count%50 == 0
}

// Evaluate tests every enabled errorCount/errorRate/custom rule for proj
// against agg and returns the notifications to enqueue. Rules that fired
// previously for this aggregation and have not crossed a new count band
// are skipped. Performance rules are not evaluated here — they have no
// aggregation to key off of — see EvaluateMetric.
func (e *Evaluator) Evaluate(ctx context.Context, proj *model.ProjectConfig, agg *model.ErrorAggregation, totalProjectEvents int) ([]Notification, error) {
	rules, err := e.rules.ListEnabled(ctx, proj.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules for %s: %w", proj.ProjectID, err)
	}

	var out []Notification
	for _, rule := range rules {
		if rule.Type == model.RulePerformance {
			continue
		}
		fires, triggered, err := e.test(rule, agg, totalProjectEvents)
		if err != nil {
			return nil, fmt.Errorf("evaluate rule %s: %w", rule.ID, err)
		}
		if !fires {
			continue
		}

		fired, err := e.history.HasFired(ctx, rule.ID, agg.ErrorHash)
		if err != nil {
			return nil, fmt.Errorf("check alert history for rule %s: %w", rule.ID, err)
		}
		if fired && !e.crossedBand(agg.OccurrenceCount) {
			continue
		}

		entry := &model.AlertHistory{
			ID:             uuid.NewString(),
			RuleID:         rule.ID,
			ProjectID:      proj.ProjectID,
			ErrorHash:      agg.ErrorHash,
			TriggeredValue: triggered,
			Threshold:      rule.Threshold,
			WindowSeconds:  rule.TimeWindowSeconds,
			Message:        agg.Message,
			Timestamp:      time.Now(),
			Status:         model.AlertStatusPending,
		}
		if err := e.history.Append(ctx, entry); err != nil {
			return nil, fmt.Errorf("append alert history: %w", err)
		}

		out = append(out, Notification{Rule: rule, Project: proj, Aggregation: agg, TriggeredValue: triggered, HistoryID: entry.ID})
	}
	return out, nil
}

// EvaluateMetric records one performance-metric sample for proj and tests
// every enabled performance rule naming that metric against its trailing
// average over the rule's own TimeWindowSeconds. Since a metric sample
// has no aggregation/errorHash to dedup against, idempotence is instead
// keyed to the rule plus the current window bucket, so a sustained
// breach notifies once per window rather than once per sample, and a
// fresh window always re-arms it. A nil MetricWindow (performance
// alerting disabled) makes this a no-op.
func (e *Evaluator) EvaluateMetric(ctx context.Context, proj *model.ProjectConfig, metric string, value float64, now time.Time) ([]Notification, error) {
	if e.metrics == nil {
		return nil, nil
	}
	e.metrics.Record(proj.ProjectID, metric, value, now)

	rules, err := e.rules.ListEnabled(ctx, proj.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules for %s: %w", proj.ProjectID, err)
	}

	var out []Notification
	for _, rule := range rules {
		if rule.Type != model.RulePerformance || rule.Metric != metric {
			continue
		}

		window := time.Duration(rule.TimeWindowSeconds) * time.Second
		if window <= 0 {
			window = time.Minute
		}
		avg, ok := e.metrics.Average(proj.ProjectID, metric, window, now)
		if !ok || avg < rule.Threshold {
			continue
		}

		bucket := now.Truncate(window)
		dedupKey := fmt.Sprintf("metric:%s:%d", metric, bucket.Unix())
		fired, err := e.history.HasFired(ctx, rule.ID, dedupKey)
		if err != nil {
			return nil, fmt.Errorf("check alert history for rule %s: %w", rule.ID, err)
		}
		if fired {
			continue
		}

		entry := &model.AlertHistory{
			ID:             uuid.NewString(),
			RuleID:         rule.ID,
			ProjectID:      proj.ProjectID,
			ErrorHash:      dedupKey,
			TriggeredValue: avg,
			Threshold:      rule.Threshold,
			WindowSeconds:  rule.TimeWindowSeconds,
			Message:        fmt.Sprintf("%s averaged %.2f over the last %s", metric, avg, window),
			Timestamp:      now,
			Status:         model.AlertStatusPending,
		}
		if err := e.history.Append(ctx, entry); err != nil {
			return nil, fmt.Errorf("append alert history: %w", err)
		}

		out = append(out, Notification{Rule: rule, Project: proj, Metric: metric, TriggeredValue: avg, HistoryID: entry.ID})
	}
	return out, nil
}

func (e *Evaluator) test(rule *model.AlertRule, agg *model.ErrorAggregation, totalProjectEvents int) (fires bool, triggered float64, err error) {
	switch rule.Type {
	case model.RuleErrorCount:
		triggered = float64(agg.OccurrenceCount)
		return triggered >= rule.Threshold, triggered, nil

	case model.RuleErrorRate:
		if totalProjectEvents == 0 {
			return false, 0, nil
		}
		triggered = float64(agg.OccurrenceCount) / float64(totalProjectEvents)
		return triggered >= rule.Threshold, triggered, nil

	case model.RuleCustom:
		pred, err := contrib.GetPredicate(rule.Condition)
		if err != nil {
			return false, 0, err
		}
		ok, err := pred.Evaluate(contrib.PredicateRequest{
			ProjectID:       agg.ProjectID,
			ErrorHash:       agg.ErrorHash,
			Message:         agg.Message,
			OccurrenceCount: agg.OccurrenceCount,
			AffectedUsers:   len(agg.AffectedUsers),
			ErrorLevel:      agg.ErrorLevel,
			Metric:          rule.Metric,
			Threshold:       rule.Threshold,
		})
		return ok, rule.Threshold, err

	default:
		return false, 0, fmt.Errorf("unknown rule type %q", rule.Type)
	}
}
