// Package manager — base.go
//
// BaseManager composes an adapter and a queue, owns the process-lifetime
// session id, and drives sampling, periodic flush, and shutdown. The
// runtime is normally single-threaded cooperative: all callback and timer
// work is expected to run sequentially, so the mutex here exists for
// safety against embedders that call in from more than one goroutine, not
// to express real parallelism.

package manager

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lqt0707/monitor/pkg/sdk/adapter"
	sdkconfig "github.com/lqt0707/monitor/pkg/sdk/config"
	"github.com/lqt0707/monitor/pkg/sdk/model"
	"github.com/lqt0707/monitor/pkg/sdk/queue"
)

// BaseManager is embedded by ErrorManager and can also be used standalone
// for performance/behavior-only reporting.
type BaseManager struct {
	mu        sync.Mutex
	cfg       sdkconfig.Config
	adapter   adapter.Adapter
	queue     *queue.Queue
	sessionID string
	enabled   bool

	stopFlush context.CancelFunc
	wg        sync.WaitGroup
}

// NewBaseManager validates cfg, decides whether telemetry is enabled for
// this process, and wires the queue. Returns an error if cfg is invalid;
// the SDK must refuse to initialize rather than run with bad config.
func NewBaseManager(cfg sdkconfig.Config, a adapter.Adapter) (*BaseManager, error) {
	if err := sdkconfig.Validate(cfg); err != nil {
		return nil, err
	}

	var qopts []queue.Option
	if cfg.Report.MaxQueueSize > 0 {
		qopts = append(qopts, queue.WithMaxSize(cfg.Report.MaxQueueSize))
	}
	if cfg.Report.EnableOfflineCache && a.Storage != nil {
		qopts = append(qopts, queue.WithPersistence(storageAdapter{a.Storage}, cfg.Report.MaxQueueSize))
	}

	m := &BaseManager{
		cfg:       cfg,
		adapter:   a,
		queue:     queue.New(qopts...),
		sessionID: uuid.NewString(),
	}
	m.enabled = m.decideEnabled()
	return m, nil
}

// decideEnabled applies the dev-mode gate and the sample-rate coin flip.
func (m *BaseManager) decideEnabled() bool {
	if m.cfg.Environment == sdkconfig.EnvDevelopment && !m.cfg.EnableInDev {
		return false
	}
	if m.cfg.SampleRate >= 1 {
		return true
	}
	return rand.Float64() <= m.cfg.SampleRate
}

// platform returns the wired adapter's declared platform, or "unknown" if
// the embedder built its Adapter literal without setting one.
func (m *BaseManager) platform() string {
	if m.adapter.Platform == "" {
		return "unknown"
	}
	return m.adapter.Platform
}

// Start begins the periodic flush timer. It wires no adapter callbacks;
// NewErrorManager registers the error-capture callback.
func (m *BaseManager) Start(ctx context.Context) {
	if !m.enabled {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.stopFlush = cancel

	interval := m.cfg.Report.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m.wg.Add(1)
	go m.flushLoop(ctx, interval)
}

func (m *BaseManager) flushLoop(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Flush(ctx)
		}
	}
}

// AddToQueue stamps the common envelope fields and enqueues item, dropping
// the oldest entry if the queue is at capacity.
func (m *BaseManager) AddToQueue(item model.MonitorData) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	item.ProjectID = m.cfg.ProjectID
	item.SessionID = m.sessionID
	item.Platform = m.platform()
	if item.Tags == nil && len(m.cfg.Tags) > 0 {
		item.Tags = m.cfg.Tags
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp == 0 {
		item.Timestamp = time.Now().UnixMilli()
	}
	if item.ProjectVersion == "" {
		item.ProjectVersion = m.cfg.ProjectVersion
	}
	if item.UserID == "" {
		item.UserID = m.cfg.UserID
	}
	m.mu.Unlock()

	m.queue.Add(item)
}

// Flush removes up to BatchSize items and delegates delivery to the
// network adapter; a failure unshifts the batch back (FIFO preserved).
func (m *BaseManager) Flush(ctx context.Context) {
	m.mu.Lock()
	batchSize := m.cfg.Report.BatchSize
	serverURL := m.cfg.ServerURL
	apiKey := m.cfg.APIKey
	timeoutMs := int(m.cfg.Report.Timeout / time.Millisecond)
	m.mu.Unlock()
	if batchSize <= 0 {
		batchSize = 20
	}

	batch := m.queue.GetBatch(batchSize)
	if len(batch) == 0 || m.adapter.Network == nil {
		return
	}

	var lastErr error
	for _, item := range batch {
		if err := m.adapter.Network.SendData(ctx, serverURL, item, adapter.SendOptions{APIKey: apiKey, Timeout: timeoutMs}); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		m.queue.OnSendError(batch, lastErr)
		return
	}
	m.queue.OnSendSuccess(batch)
}

// Destroy stops the timer, issues one final synchronous flush, and
// releases adapter listeners.
func (m *BaseManager) Destroy(ctx context.Context) {
	if m.stopFlush != nil {
		m.stopFlush()
	}
	m.wg.Wait()
	m.Flush(ctx)
	if m.adapter.Error != nil {
		m.adapter.Error.Destroy()
	}
	if m.adapter.Performance != nil {
		m.adapter.Performance.Destroy()
	}
	m.mu.Lock()
	m.enabled = false
	m.mu.Unlock()
}

// Enabled reports whether telemetry is active for this process.
func (m *BaseManager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SessionID returns the process-lifetime session identifier.
func (m *BaseManager) SessionID() string { return m.sessionID }

// Queue exposes the underlying bounded queue for callers that need direct
// access (tests, or an embedder implementing its own flush cadence).
func (m *BaseManager) Queue() *queue.Queue { return m.queue }

type storageAdapter struct{ s adapter.Storage }

func (s storageAdapter) Save(key string, data []byte) error  { return s.s.Save(key, data) }
func (s storageAdapter) Load(key string) ([]byte, error)     { return s.s.Load(key) }
func (s storageAdapter) Delete(key string) error             { return s.s.Delete(key) }
