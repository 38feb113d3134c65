package queue_test

import (
	"errors"
	"testing"
	"time"

	"github.com/lqt0707/monitor/pkg/sdk/model"
	"github.com/lqt0707/monitor/pkg/sdk/queue"
)

func ev(id string) model.MonitorData {
	return model.MonitorData{ID: id, ProjectID: "p", SessionID: "s", Kind: model.KindBehavior,
		Behavior: &model.BehaviorData{Type: model.BehaviorTypeCustom, Event: id}}
}

// ─── Property 3: queue bound ────────────────────────────────────────────────

func TestQueue_NeverExceedsMaxSize(t *testing.T) {
	q := queue.New(queue.WithMaxSize(3))
	for _, id := range []string{"e1", "e2", "e3", "e4"} {
		q.Add(ev(id))
		if q.Len() > 3 {
			t.Fatalf("queue length %d exceeds maxSize 3", q.Len())
		}
	}
}

// ─── Scenario S3: queue overflow ────────────────────────────────────────────

func TestScenario_S3_QueueOverflow(t *testing.T) {
	q := queue.New(queue.WithMaxSize(3))
	q.Add(ev("e1"))
	q.Add(ev("e2"))
	q.Add(ev("e3"))
	full := q.Add(ev("e4"))
	if !full {
		t.Fatalf("expected queueFull signal on 4th add")
	}
	batch := q.GetBatch(3)
	if len(batch) != 3 || batch[0].ID != "e2" || batch[1].ID != "e3" || batch[2].ID != "e4" {
		t.Fatalf("queue contents = %v, want [e2 e3 e4]", ids(batch))
	}
	if q.Stats().QueueFull != 1 {
		t.Fatalf("QueueFull stat = %d, want 1", q.Stats().QueueFull)
	}
}

// ─── Property 4: batch FIFO ─────────────────────────────────────────────────

func TestQueue_BatchFIFO(t *testing.T) {
	q := queue.New()
	q.Add(ev("a"))
	q.Add(ev("b"))
	batch := q.GetBatch(2)
	if len(batch) != 2 || batch[0].ID != "a" || batch[1].ID != "b" {
		t.Fatalf("getBatch(2) = %v, want [a b]", ids(batch))
	}
}

// ─── Property 5 / Scenario S4: retry preserves order ────────────────────────

func TestScenario_S4_RetryOrder(t *testing.T) {
	q := queue.New()
	q.Add(ev("a"))
	q.Add(ev("b"))
	q.Add(ev("c"))

	batch := q.GetBatch(3)
	if len(batch) != 3 {
		t.Fatalf("getBatch(3) returned %d items, want 3", len(batch))
	}

	q.OnSendError(batch, errors.New("network down"))

	next := q.GetBatch(3)
	if len(next) != 3 || next[0].ID != "a" || next[1].ID != "b" || next[2].ID != "c" {
		t.Fatalf("after onSendError, getBatch(3) = %v, want [a b c]", ids(next))
	}
}

func ids(batch []model.MonitorData) []string {
	out := make([]string, len(batch))
	for i, b := range batch {
		out[i] = b.ID
	}
	return out
}

func TestQueue_PersistenceRoundTrip(t *testing.T) {
	store := newMemPersister()
	q := queue.New(queue.WithMaxSize(10), queue.WithPersistence(store, 10), queue.WithDebounce(time.Millisecond))
	q.Add(ev("x"))
	time.Sleep(2 * time.Millisecond)
	q.Add(ev("y"))

	// A fresh queue over the same persister restores the snapshot.
	q2 := queue.New(queue.WithMaxSize(10), queue.WithPersistence(store, 10))
	if q2.Len() != 2 {
		t.Fatalf("restored queue length = %d, want 2", q2.Len())
	}
}

func TestQueue_SnapshotDebounceCoalescesRapidWrites(t *testing.T) {
	store := newMemPersister()
	q := queue.New(queue.WithMaxSize(10), queue.WithPersistence(store, 10))
	q.Add(ev("x"))
	q.Add(ev("y")) // within the 1s default debounce, so this write is skipped

	q2 := queue.New(queue.WithMaxSize(10), queue.WithPersistence(store, 10))
	if q2.Len() != 1 {
		t.Fatalf("restored queue length = %d, want 1 (second add debounced)", q2.Len())
	}
}

type memPersister struct{ data map[string][]byte }

func newMemPersister() *memPersister { return &memPersister{data: map[string][]byte{}} }

func (m *memPersister) Save(key string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.data[key] = cp
	return nil
}
func (m *memPersister) Load(key string) ([]byte, error) { return m.data[key], nil }
func (m *memPersister) Delete(key string) error          { delete(m.data, key); return nil }
