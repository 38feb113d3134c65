package manager_test

import (
	"testing"

	"github.com/lqt0707/monitor/pkg/sdk/adapter"
	sdkconfig "github.com/lqt0707/monitor/pkg/sdk/config"
	"github.com/lqt0707/monitor/pkg/sdk/manager"
	"github.com/lqt0707/monitor/pkg/sdk/model"
)

func newTestManager(t *testing.T) (*manager.ErrorManager, *adapter.Mock) {
	t.Helper()
	mock := adapter.NewMock()
	cfg := sdkconfig.Defaults()
	cfg.ProjectID = "proj"
	cfg.ServerURL = "https://example.test/api/monitor/report"
	cfg.SampleRate = 1

	a := adapter.Adapter{Error: mock, Network: mock}
	base, err := manager.NewBaseManager(cfg, a)
	if err != nil {
		t.Fatalf("NewBaseManager: %v", err)
	}
	em, err := manager.NewErrorManager(base, nil, 1, a)
	if err != nil {
		t.Fatalf("NewErrorManager: %v", err)
	}
	return em, mock
}

// ─── Property 7: SDK self-filter ────────────────────────────────────────────

func TestProperty_SelfFilterDropsSDKInternalErrors(t *testing.T) {
	em, _ := newTestManager(t)
	em.Capture(adapter.ErrorEvent{
		Type:    model.ErrorTypeCustom,
		Message: "TypeError inside MonitorSDK.sendData",
	})
	if got := em.Queue().Len(); got != 0 {
		t.Fatalf("self-referential error should be dropped, queue length = %d", got)
	}
}

// ─── Emission policy: {1,5,10, mod 50} ──────────────────────────────────────

func TestErrorManager_EmissionPolicy(t *testing.T) {
	em, _ := newTestManager(t)
	for i := 0; i < 12; i++ {
		em.Capture(adapter.ErrorEvent{Type: model.ErrorTypeJS, Message: "boom", Stack: "at f (/a.js:1:1)"})
	}
	if got := em.Queue().Len(); got != 3 {
		t.Fatalf("queued emissions = %d, want 3 (counts 1, 5, 10 out of 12)", got)
	}
}

func TestErrorManager_EmissionAtFifty(t *testing.T) {
	em, _ := newTestManager(t)
	for i := 0; i < 50; i++ {
		em.Capture(adapter.ErrorEvent{Type: model.ErrorTypeJS, Message: "recurring", Stack: "at g (/b.js:2:2)"})
	}
	// Emissions at counts 1, 5, 10, 50 -> 4.
	if got := em.Queue().Len(); got != 4 {
		t.Fatalf("queued emissions = %d, want 4 (counts 1, 5, 10, 50)", got)
	}
}

func TestErrorManager_DistinctFingerprintsTrackedSeparately(t *testing.T) {
	em, _ := newTestManager(t)
	em.Capture(adapter.ErrorEvent{Type: model.ErrorTypeJS, Message: "first kind of failure", Stack: "at a (/a.js:1:1)"})
	em.Capture(adapter.ErrorEvent{Type: model.ErrorTypeJS, Message: "totally unrelated syntax problem", Stack: "at z (/z.js:9:9)"})
	if got := em.Queue().Len(); got != 2 {
		t.Fatalf("queued emissions = %d, want 2 (both are first occurrences)", got)
	}
}
