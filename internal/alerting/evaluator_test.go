package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/lqt0707/monitor/internal/model"
)

type fakeRules struct {
	rules []*model.AlertRule
}

func (f *fakeRules) ListEnabled(ctx context.Context, projectID string) ([]*model.AlertRule, error) {
	return f.rules, nil
}

type fakeHistory struct {
	fired   map[string]bool
	entries []*model.AlertHistory
}

func newFakeHistory() *fakeHistory { return &fakeHistory{fired: make(map[string]bool)} }

func (f *fakeHistory) Append(ctx context.Context, entry *model.AlertHistory) error {
	f.fired[entry.RuleID+"\x00"+entry.ErrorHash] = true
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistory) HasFired(ctx context.Context, ruleID, errorHash string) (bool, error) {
	return f.fired[ruleID+"\x00"+errorHash], nil
}

func (f *fakeHistory) UpdateStatus(ctx context.Context, id string, status model.AlertHistoryStatus) error {
	return nil
}

func TestEvaluator_ErrorCountRuleFires(t *testing.T) {
	rules := &fakeRules{rules: []*model.AlertRule{
		{ID: "r1", ProjectID: "p1", Type: model.RuleErrorCount, Threshold: 10, Enabled: true},
	}}
	history := newFakeHistory()
	ev := NewEvaluator(rules, history, NewSlidingWindow(time.Minute), NewMetricWindow(time.Hour))

	agg := &model.ErrorAggregation{ProjectID: "p1", ErrorHash: "h1", OccurrenceCount: 10, ErrorLevel: 2}
	proj := &model.ProjectConfig{ProjectID: "p1"}

	notes, err := ev.Evaluate(context.Background(), proj, agg, 100)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected one notification, got %d", len(notes))
	}
}

func TestEvaluator_IdempotentUntilNewBand(t *testing.T) {
	rules := &fakeRules{rules: []*model.AlertRule{
		{ID: "r1", ProjectID: "p1", Type: model.RuleErrorCount, Threshold: 1, Enabled: true},
	}}
	history := newFakeHistory()
	ev := NewEvaluator(rules, history, NewSlidingWindow(time.Minute), NewMetricWindow(time.Hour))
	proj := &model.ProjectConfig{ProjectID: "p1"}

	agg := &model.ErrorAggregation{ProjectID: "p1", ErrorHash: "h1", OccurrenceCount: 5}
	notes, err := ev.Evaluate(context.Background(), proj, agg, 0)
	if err != nil || len(notes) != 1 {
		t.Fatalf("expected first fire, got %d notes err=%v", len(notes), err)
	}

	agg.OccurrenceCount = 6
	notes, err = ev.Evaluate(context.Background(), proj, agg, 0)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("expected no re-fire at non-band count, got %d", len(notes))
	}

	agg.OccurrenceCount = 10
	notes, err = ev.Evaluate(context.Background(), proj, agg, 0)
	if err != nil || len(notes) != 1 {
		t.Fatalf("expected re-fire at band 10, got %d notes err=%v", len(notes), err)
	}
}

func TestEvaluator_CustomRuleUsesRegisteredPredicate(t *testing.T) {
	rules := &fakeRules{rules: []*model.AlertRule{
		{ID: "r1", ProjectID: "p1", Type: model.RuleCustom, Condition: "none", Enabled: true},
	}}
	history := newFakeHistory()
	ev := NewEvaluator(rules, history, NewSlidingWindow(time.Minute), NewMetricWindow(time.Hour))
	proj := &model.ProjectConfig{ProjectID: "p1"}
	agg := &model.ErrorAggregation{ProjectID: "p1", ErrorHash: "h1", OccurrenceCount: 1}

	notes, err := ev.Evaluate(context.Background(), proj, agg, 0)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("expected the fallback predicate to never fire, got %d", len(notes))
	}
}

func TestSlidingWindow_ExpiresOldOccurrences(t *testing.T) {
	w := NewSlidingWindow(50 * time.Millisecond)
	defer w.Close()
	now := time.Now()
	if c := w.Record("k", now); c != 1 {
		t.Fatalf("expected count 1, got %d", c)
	}
	if c := w.Record("k", now.Add(10*time.Millisecond)); c != 2 {
		t.Fatalf("expected count 2, got %d", c)
	}
	if c := w.Record("k", now.Add(200*time.Millisecond)); c != 1 {
		t.Fatalf("expected window to have expired prior occurrences, got %d", c)
	}
}
