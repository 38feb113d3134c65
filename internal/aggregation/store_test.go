package aggregation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lqt0707/monitor/internal/aggregation"
	"github.com/lqt0707/monitor/internal/model"
)

type memRepo struct {
	mu   sync.Mutex
	data map[string]*model.ErrorAggregation
}

func newMemRepo() *memRepo { return &memRepo{data: map[string]*model.ErrorAggregation{}} }

func (r *memRepo) key(projectID, hash string) string { return projectID + "/" + hash }

func (r *memRepo) GetAggregation(ctx context.Context, projectID, errorHash string) (*model.ErrorAggregation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[r.key(projectID, errorHash)], nil
}

func (r *memRepo) PutAggregation(ctx context.Context, agg *model.ErrorAggregation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *agg
	r.data[r.key(agg.ProjectID, agg.ErrorHash)] = &cp
	return nil
}

func (r *memRepo) ListAggregations(ctx context.Context, projectID string) ([]*model.ErrorAggregation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ErrorAggregation
	for _, a := range r.data {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func TestStore_FirstOccurrenceCreatesAggregation(t *testing.T) {
	repo := newMemRepo()
	s := aggregation.NewStore(repo, 0.8, nil)

	agg, created, err := s.Apply(context.Background(), aggregation.Event{
		ProjectID: "p1", ErrorHash: "abc123", Message: "boom", UserID: "u1", OccurredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !created {
		t.Fatalf("expected a new aggregation to be created")
	}
	if agg.OccurrenceCount != 1 {
		t.Fatalf("occurrenceCount = %d, want 1", agg.OccurrenceCount)
	}
}

func TestStore_ExactMatchIncrementsCounter(t *testing.T) {
	repo := newMemRepo()
	s := aggregation.NewStore(repo, 0.8, nil)
	ctx := context.Background()

	ev := aggregation.Event{ProjectID: "p1", ErrorHash: "fixed-hash", Message: "boom", OccurredAt: time.Now()}
	_, _, _ = s.Apply(ctx, ev)
	agg, created, err := s.Apply(ctx, ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if created {
		t.Fatalf("second occurrence should not create a new aggregation")
	}
	if agg.OccurrenceCount != 2 {
		t.Fatalf("occurrenceCount = %d, want 2", agg.OccurrenceCount)
	}
}

func TestLevel_Thresholds(t *testing.T) {
	th := aggregation.DefaultThresholds()
	cases := []struct {
		count, users, want int
	}{
		{1, 0, 1},
		{9, 4, 1},
		{10, 0, 2},
		{0, 5, 2},
		{50, 0, 3},
		{0, 20, 3},
		{100, 0, 4},
		{0, 50, 4},
	}
	for _, c := range cases {
		if got := aggregation.Level(c.count, c.users, th); got != c.want {
			t.Errorf("Level(%d,%d) = %d, want %d", c.count, c.users, got, c.want)
		}
	}
}

// ─── Property 6: per-key serializability ───────────────────────────────────

func TestProperty6_PerKeySerializability(t *testing.T) {
	repo := newMemRepo()
	s := aggregation.NewStore(repo, 0.8, nil)
	ctx := context.Background()
	ev := aggregation.Event{ProjectID: "p1", ErrorHash: "concurrent-hash", Message: "boom", OccurredAt: time.Now()}

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.Apply(ctx, ev)
		}()
	}
	wg.Wait()

	agg, err := repo.GetAggregation(ctx, "p1", "concurrent-hash")
	if err != nil {
		t.Fatalf("GetAggregation: %v", err)
	}
	if agg.OccurrenceCount != n {
		t.Fatalf("occurrenceCount = %d, want %d", agg.OccurrenceCount, n)
	}
}
