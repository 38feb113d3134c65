package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lqt0707/monitor/internal/queue"
)

// ─── Backpressure ───────────────────────────────────────────────────────────

func TestPool_TryEnqueue_DropsWhenFull(t *testing.T) {
	cfg := queue.Config{Name: "t", Capacity: 1, Concurrency: 1, MaxRetries: 0, BaseDelay: time.Millisecond}
	block := make(chan struct{})
	p := queue.New[int](cfg, func(ctx context.Context, j int) error {
		<-block
		return nil
	}, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	if !p.TryEnqueue(1) {
		t.Fatalf("first enqueue should succeed")
	}
	// Give the worker a moment to pick up job 1, leaving the buffer empty
	// again would make the next enqueue succeed, so fill the buffer instead.
	time.Sleep(10 * time.Millisecond)
	ok1 := p.TryEnqueue(2)
	ok2 := p.TryEnqueue(3)
	if ok1 && ok2 {
		t.Fatalf("expected at least one drop once capacity is exhausted")
	}
	close(block)
}

// ─── Retry and dead-letter ──────────────────────────────────────────────────

func TestPool_RetriesThenDeadLetters(t *testing.T) {
	var attempts int32
	var deadLettered int32
	var mu sync.Mutex
	var lastErr error

	cfg := queue.Config{Name: "t", Capacity: 8, Concurrency: 1, MaxRetries: 2, BaseDelay: time.Millisecond}
	p := queue.New[string](cfg, func(ctx context.Context, j string) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, func(job string, err error) {
		atomic.AddInt32(&deadLettered, 1)
		mu.Lock()
		lastErr = err
		mu.Unlock()
	}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go p.Run(ctx)

	p.TryEnqueue("job")

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&deadLettered) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := atomic.LoadInt32(&attempts); got != 3 { // initial + 2 retries
		t.Fatalf("attempts = %d, want 3", got)
	}
	if got := atomic.LoadInt32(&deadLettered); got != 1 {
		t.Fatalf("deadLettered = %d, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if lastErr == nil {
		t.Fatalf("expected dead-letter error to be recorded")
	}
}

func TestPool_PanicIsRecoveredAsFailure(t *testing.T) {
	var deadLettered int32
	cfg := queue.Config{Name: "t", Capacity: 8, Concurrency: 1, MaxRetries: 0, BaseDelay: time.Millisecond}
	p := queue.New[int](cfg, func(ctx context.Context, j int) error {
		panic("internal bug")
	}, func(job int, err error) {
		atomic.AddInt32(&deadLettered, 1)
	}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go p.Run(ctx)
	p.TryEnqueue(1)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && atomic.LoadInt32(&deadLettered) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&deadLettered) != 1 {
		t.Fatalf("expected the panic to be recovered and dead-lettered")
	}
}

// ─── Per-key serialization ──────────────────────────────────────────────────

func TestKeyLock_SerializesSameKey(t *testing.T) {
	kl := queue.NewKeyLock(16)
	var counter int
	var wg sync.WaitGroup
	key := queue.AggregationKey("proj", "hash")

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.With(key, func() {
				tmp := counter
				tmp++
				counter = tmp
			})
		}()
	}
	wg.Wait()
	if counter != 100 {
		t.Fatalf("counter = %d, want 100 (property 6: per-key serializability)", counter)
	}
}
