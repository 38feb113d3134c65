// Package queue — queue.go
//
// The SDK's bounded event queue. Unlike the server's channel-based worker
// queues, this one needs array semantics: batched removal from the head,
// and re-insertion at the head on send failure. The SDK runtime is
// normally single-threaded cooperative, but the mutex costs nothing and
// protects embedders that call in from more than one goroutine.

package queue

import (
	"sync"
	"time"

	"github.com/lqt0707/monitor/pkg/sdk/model"
)

const DefaultMaxSize = 500

// Stats tracks lifetime queue statistics for diagnostics.
type Stats struct {
	SuccessCount int
	FailedCount  int
	QueueFull    int
	FlushErrors  int
}

// Queue is a bounded FIFO of model.MonitorData.
type Queue struct {
	mu      sync.Mutex
	items   []model.MonitorData
	maxSize int
	stats   Stats

	persister   Persister
	cacheLimit  int
	lastSnapAt  time.Time
	debounce    time.Duration
}

// Persister is the key-value storage handle the queue debounces snapshots
// to. Implementations live in pkg/sdk/adapter (one per platform).
type Persister interface {
	Save(key string, data []byte) error
	Load(key string) ([]byte, error)
	Delete(key string) error
}

// Option configures optional behavior at construction time.
type Option func(*Queue)

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(n int) Option {
	return func(q *Queue) { q.maxSize = n }
}

// WithPersistence enables debounced snapshotting to p, retaining up to
// cacheLimit most-recent items per snapshot. The debounce interval
// defaults to one second; override it with WithDebounce.
func WithPersistence(p Persister, cacheLimit int) Option {
	return func(q *Queue) {
		q.persister = p
		q.cacheLimit = cacheLimit
		q.debounce = time.Second
	}
}

// WithDebounce overrides the snapshot debounce interval set by
// WithPersistence. Must be applied after WithPersistence in the Option
// list to take effect.
func WithDebounce(d time.Duration) Option {
	return func(q *Queue) { q.debounce = d }
}

// New creates an empty Queue. If persistence is enabled via WithPersistence,
// it immediately attempts to restore from the last snapshot, discarding one
// older than 24h.
func New(opts ...Option) *Queue {
	q := &Queue{maxSize: DefaultMaxSize}
	for _, o := range opts {
		o(q)
	}
	if q.persister != nil {
		q.restore()
	}
	return q
}

const persistKey = "monitor_sdk_queue_cache"
const maxSnapshotAge = 24 * time.Hour

type snapshot struct {
	Queue     []model.MonitorData `json:"queue"`
	Timestamp int64                `json:"timestamp"`
	Stats     Stats                `json:"stats"`
}

// Add appends item, O(1). If the queue is at capacity the oldest item is
// evicted and a queueFull signal is counted.
func (q *Queue) Add(item model.MonitorData) (queueFull bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	if len(q.items) > q.maxSize {
		q.items = q.items[1:]
		q.stats.QueueFull++
		queueFull = true
	}
	q.snapshotLocked(false)
	return queueFull
}

// GetBatch removes and returns up to n items from the head, preserving
// insertion order.
func (q *Queue) GetBatch(n int) []model.MonitorData {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]model.MonitorData, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	return batch
}

// Flush returns and clears every item currently queued.
func (q *Queue) Flush() []model.MonitorData {
	q.mu.Lock()
	defer q.mu.Unlock()

	all := q.items
	q.items = nil
	// Flush is an explicit caller action (shutdown, page unload) that must
	// not be lost to the debounce window, or restore() would replay items
	// the caller already drained.
	q.snapshotLocked(true)
	return all
}

// OnSendSuccess records stats for a successfully delivered batch. The items
// are already gone from the queue (removed by GetBatch).
func (q *Queue) OnSendSuccess(batch []model.MonitorData) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stats.SuccessCount += len(batch)
}

// OnSendError unshifts the failed batch back onto the head (oldest-first,
// so FIFO order over the combined sequence is preserved), then truncates to
// maxSize keeping the newest items, and counts a flushError in Stats.
func (q *Queue) OnSendError(batch []model.MonitorData, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stats.FailedCount += len(batch)
	q.stats.FlushErrors++

	combined := make([]model.MonitorData, 0, len(batch)+len(q.items))
	combined = append(combined, batch...)
	combined = append(combined, q.items...)
	if len(combined) > q.maxSize {
		combined = combined[len(combined)-q.maxSize:] // newest-wins
	}
	q.items = combined
	q.snapshotLocked(true)
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns a copy of the lifetime statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// snapshotLocked writes a persisted snapshot; caller must hold mu. Unless
// force is set, a write within debounce of the last one is skipped — Add
// is the hot path and a burst of rapid-fire events should cost one disk
// write, not one per event. Flush and OnSendError force the write since
// they mark a state change a skipped write would lose for good. Storage
// errors are swallowed — no exception should ever leak from queue
// operations.
func (q *Queue) snapshotLocked(force bool) {
	if q.persister == nil {
		return
	}
	now := time.Now()
	if !force && !q.lastSnapAt.IsZero() && now.Sub(q.lastSnapAt) < q.debounce {
		return
	}
	q.lastSnapAt = now

	items := q.items
	if q.cacheLimit > 0 && len(items) > q.cacheLimit {
		items = items[len(items)-q.cacheLimit:]
	}
	data, err := marshalSnapshot(snapshot{Queue: items, Timestamp: now.UnixMilli(), Stats: q.stats})
	if err != nil {
		return
	}
	_ = q.persister.Save(persistKey, data) // storage errors never propagate out of the queue
}

// restore reloads the last snapshot on construction, discarding stale or
// corrupt ones.
func (q *Queue) restore() {
	data, err := q.persister.Load(persistKey)
	if err != nil || len(data) == 0 {
		return
	}
	snap, err := unmarshalSnapshot(data)
	if err != nil {
		_ = q.persister.Delete(persistKey) // corrupt snapshot: delete, never propagate
		return
	}
	age := time.Since(time.UnixMilli(snap.Timestamp))
	if age > maxSnapshotAge {
		_ = q.persister.Delete(persistKey)
		return
	}
	q.items = snap.Queue
	q.stats = snap.Stats
}
