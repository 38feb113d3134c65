// Package adapter — adapter.go
//
// The platform adapter contract. Each capability is its own interface so
// a Web, mini-program, or test double can implement only what it
// supports. The core SDK (pkg/sdk/manager) depends on these interfaces,
// never on a concrete platform.

package adapter

import (
	"context"

	"github.com/lqt0707/monitor/pkg/sdk/model"
)

// ErrorEvent is what a capture source hands the SDK before fingerprinting.
type ErrorEvent struct {
	Type     model.ErrorType
	Message  string
	Stack    string
	Filename string
	Lineno   int
	Colno    int
	Extra    map[string]model.Value
}

// ErrorCapture subscribes to uncaught errors, unhandled promise rejections,
// and (Web) resource-load errors, synthesizing an ErrorEvent for each.
type ErrorCapture interface {
	Init(onError func(ErrorEvent)) error
	Capture(err error, extra map[string]model.Value)
	Destroy()
}

// HTTPCall is one observed outbound HTTP request, timed end to end.
type HTTPCall struct {
	URL      string
	Method   string
	Status   int
	Duration float64
	Success  bool
}

// HTTPClient is the platform's raw HTTP transport capability. Performance
// wraps it with a decorator; Network holds the undecorated reference for
// uploads so there's a single registration point and no global mutation.
type HTTPClient interface {
	Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (status int, respBody []byte, err error)
}

// Performance decorates an HTTPClient to record call metrics and exposes
// whatever page/navigation timing the platform can supply.
type Performance interface {
	Init(client HTTPClient, onSample func(HTTPCall)) HTTPClient
	PagePerformance() (map[string]float64, bool)
	Destroy()
}

// BehaviorEvent is one breadcrumb.
type BehaviorEvent struct {
	Type   model.BehaviorType
	Event  string
	Target string
	XPath  string
	Data   map[string]model.Value
}

// Behavior subscribes to clicks, page views, and route changes.
type Behavior interface {
	Init(onEvent func(BehaviorEvent)) error
	Destroy()
}

// Network is the sole component permitted to issue the telemetry upload.
// It must be constructed with the original, undecorated HTTPClient so its
// own traffic is never observed by Performance's decorator.
type Network interface {
	SendData(ctx context.Context, url string, record model.MonitorData, opts SendOptions) error
}

// SendOptions configures one upload call.
type SendOptions struct {
	APIKey  string
	Timeout int // milliseconds
}

// Storage is a key-value persistence handle for the optional offline cache.
type Storage interface {
	Save(key string, data []byte) error
	Load(key string) ([]byte, error)
	Delete(key string) error
}

// Adapter bundles every capability a platform must, or may, supply.
// Performance, Behavior, and Storage are optional (nil if unsupported).
// Platform identifies which concrete adapter this bundle came from (e.g.
// "web", "mock") and is stamped onto every outgoing MonitorData; an
// embedder assembling its own Adapter literal should set it alongside the
// capabilities, or events report "unknown".
type Adapter struct {
	Platform    string
	Error       ErrorCapture
	Performance Performance
	Behavior    Behavior
	Network     Network
	Storage     Storage
}
