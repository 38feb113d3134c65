// Package adapter — mock.go
//
// Mock is a test double satisfying every capability interface in-process,
// with no network or platform dependency. Used by manager tests and by
// embedders exercising the SDK outside a browser/mini-program host.

package adapter

import (
	"context"
	"sync"

	"github.com/lqt0707/monitor/pkg/sdk/model"
)

// Mock implements ErrorCapture and Network entirely in memory. Its Init has
// ErrorCapture's signature, so it does not satisfy Behavior; InitBehavior
// records a behavior callback instead.
type Mock struct {
	mu       sync.Mutex
	onError  func(ErrorEvent)
	onEvent  func(BehaviorEvent)
	Sent     []model.MonitorData
	SendErr  error
	destroyed bool
}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Init(onError func(ErrorEvent)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = onError
	return nil
}

func (m *Mock) Capture(err error, extra map[string]model.Value) {
	m.mu.Lock()
	cb := m.onError
	m.mu.Unlock()
	if cb != nil && err != nil {
		cb(ErrorEvent{Type: model.ErrorTypeCustom, Message: err.Error(), Extra: extra})
	}
}

func (m *Mock) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	m.onError = nil
	m.onEvent = nil
}

// FireError lets a test synthesize an uncaught error as if the platform had
// raised one.
func (m *Mock) FireError(ev ErrorEvent) {
	m.mu.Lock()
	cb := m.onError
	m.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

func (m *Mock) InitBehavior(onEvent func(BehaviorEvent)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvent = onEvent
	return nil
}

func (m *Mock) SendData(ctx context.Context, url string, record model.MonitorData, opts SendOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, record)
	return nil
}

// MemStorage is an in-memory Storage implementation for tests.
type MemStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemStorage() *MemStorage { return &MemStorage{data: map[string][]byte{}} }

func (s *MemStorage) Save(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = map[string][]byte{}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[key] = cp
	return nil
}

func (s *MemStorage) Load(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *MemStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
