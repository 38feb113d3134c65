package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lqt0707/monitor/internal/alerting"
	"github.com/lqt0707/monitor/internal/model"
)

type fakeHistoryUpdater struct {
	statuses map[string]model.AlertHistoryStatus
}

func (f *fakeHistoryUpdater) UpdateStatus(ctx context.Context, id string, status model.AlertHistoryStatus) error {
	if f.statuses == nil {
		f.statuses = make(map[string]model.AlertHistoryStatus)
	}
	f.statuses[id] = status
	return nil
}

func TestDispatcher_WebhookSuccess(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hist := &fakeHistoryUpdater{}
	d := NewDispatcher(SMTPConfig{}, srv.Client(), NewPacer(time.Millisecond), hist, nil)

	rule := &model.AlertRule{ID: "r1", Actions: []model.ActionChannel{model.ActionWebhook}, Target: srv.URL}
	agg := &model.ErrorAggregation{ProjectID: "p1", Message: "boom", OccurrenceCount: 5, AffectedUsers: map[string]bool{"u1": true}}
	proj := &model.ProjectConfig{ProjectID: "p1"}

	d.Dispatch(context.Background(), alerting.Notification{Rule: rule, Project: proj, Aggregation: agg, TriggeredValue: 5}, "hist-1")

	if hits != 1 {
		t.Fatalf("expected 1 webhook hit, got %d", hits)
	}
	if hist.statuses["hist-1"] != model.AlertStatusSent {
		t.Fatalf("expected sent status, got %v", hist.statuses["hist-1"])
	}
}

func TestDispatcher_MissingTargetMarksFailed(t *testing.T) {
	hist := &fakeHistoryUpdater{}
	d := NewDispatcher(SMTPConfig{}, http.DefaultClient, NewPacer(time.Millisecond), hist, nil)

	rule := &model.AlertRule{ID: "r1", Actions: []model.ActionChannel{model.ActionWebhook}}
	agg := &model.ErrorAggregation{ProjectID: "p1", Message: "boom", OccurrenceCount: 1}
	proj := &model.ProjectConfig{ProjectID: "p1"}

	d.Dispatch(context.Background(), alerting.Notification{Rule: rule, Project: proj, Aggregation: agg}, "hist-2")

	if hist.statuses["hist-2"] != model.AlertStatusFailed {
		t.Fatalf("expected failed status, got %v", hist.statuses["hist-2"])
	}
}

func TestPacer_EnforcesMinimumInterval(t *testing.T) {
	p := NewPacer(30 * time.Millisecond)
	ctx := context.Background()
	start := time.Now()
	if err := p.Wait(ctx, "k"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := p.Wait(ctx, "k"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("expected pacing to enforce interval, elapsed %v", elapsed)
	}
}
