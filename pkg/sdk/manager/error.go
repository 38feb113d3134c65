// Package manager — error.go
//
// ErrorManager sits in front of BaseManager's queue for error events: it
// filters, samples, fingerprints, aggregates in-memory, and decides when
// to actually emit.

package manager

import (
	"regexp"
	"sync"
	"time"

	"github.com/lqt0707/monitor/internal/fingerprint"
	"github.com/lqt0707/monitor/pkg/sdk/adapter"
	"github.com/lqt0707/monitor/pkg/sdk/model"
)

const (
	defaultMaxAggregations = 1000
	defaultMaxRecentErrors = 20
)

// aggregate is the in-memory entry for one fingerprint.
type aggregate struct {
	count         int
	firstSeen     time.Time
	lastSeen      time.Time
	level         int
	affectedUsers map[string]struct{}
	recent        []model.MonitorData // ring buffer, bounded to maxRecentErrors
}

// ErrorManager wraps a BaseManager with client-side deduplication so
// recurring errors don't flood the outgoing queue before the server ever
// sees them.
type ErrorManager struct {
	*BaseManager

	mu     sync.Mutex
	aggs   map[string]*aggregate
	order  []string // fingerprint insertion/touch order, for LRU eviction

	negations       []*regexp.Regexp
	sampleRate      float64
	maxAggregations int
	maxRecentErrors int
	fpOptions       fingerprint.Options
	fpK             int
}

// NewErrorManager constructs an ErrorManager over an already-started base
// manager, wiring the adapter's error capture to the in-memory pipeline.
func NewErrorManager(base *BaseManager, filters []*regexp.Regexp, sampleRate float64, a adapter.Adapter) (*ErrorManager, error) {
	em := &ErrorManager{
		BaseManager:     base,
		aggs:            make(map[string]*aggregate),
		negations:       filters,
		sampleRate:      sampleRate,
		maxAggregations: defaultMaxAggregations,
		maxRecentErrors: defaultMaxRecentErrors,
		fpOptions:       fingerprint.DefaultOptions(),
		fpK:             fingerprint.DefaultK,
	}
	if a.Error != nil {
		if err := a.Error.Init(em.onErrorEvent); err != nil {
			return nil, err
		}
	}
	return em, nil
}

func (em *ErrorManager) onErrorEvent(ev adapter.ErrorEvent) {
	em.Capture(ev)
}

// Capture runs one error event through filter -> sample -> fingerprint ->
// aggregate -> emission-policy.
func (em *ErrorManager) Capture(ev adapter.ErrorEvent) {
	if !em.Enabled() {
		return
	}
	if em.isFiltered(ev) {
		return
	}
	if !em.passesSample() {
		return
	}

	fp := fingerprint.Fingerprint(fingerprint.Input{
		Type:    string(ev.Type),
		Message: ev.Message,
		Stack:   ev.Stack,
		File:    ev.Filename,
	}, em.fpOptions, em.fpK)

	userID := ""
	if ev.Extra != nil {
		if v, ok := ev.Extra["userId"]; ok {
			userID = v.Str
		}
	}

	data := em.toMonitorData(ev, fp)

	count, affected, shouldEmit := em.touch(fp, userID, data)
	if !shouldEmit {
		return
	}

	if data.Tags == nil {
		data.Tags = map[string]string{}
	}
	data.Tags["aggregation_fingerprint"] = fp
	data.Tags["aggregation_count"] = itoa(count)
	data.Tags["affected_users"] = itoa(affected)

	em.AddToQueue(data)
}

func (em *ErrorManager) isFiltered(ev adapter.ErrorEvent) bool {
	if adapter.IsSelfError(ev.Message, ev.Stack) {
		return true
	}
	for _, re := range em.negations {
		if re.MatchString(ev.Message) {
			return true
		}
	}
	return false
}

func (em *ErrorManager) passesSample() bool {
	if em.sampleRate >= 1 {
		return true
	}
	return sampleCoin() <= em.sampleRate
}

// touch updates (or creates) the in-memory aggregate for fp and decides
// whether this occurrence should be emitted per the {1,5,10, mod 50}
// policy.
func (em *ErrorManager) touch(fp, userID string, data model.MonitorData) (count, affectedUsers int, shouldEmit bool) {
	em.mu.Lock()
	defer em.mu.Unlock()

	now := time.Now()
	a, ok := em.aggs[fp]
	if !ok {
		a = &aggregate{
			firstSeen:     now,
			affectedUsers: make(map[string]struct{}),
		}
		em.aggs[fp] = a
		em.evictIfNeededLocked()
	}
	a.count++
	a.lastSeen = now
	if userID != "" {
		a.affectedUsers[userID] = struct{}{}
	}
	a.recent = append(a.recent, data)
	if len(a.recent) > em.maxRecentErrors {
		a.recent = a.recent[len(a.recent)-em.maxRecentErrors:]
	}
	em.touchOrderLocked(fp)

	shouldEmit = a.count == 1 || a.count == 5 || a.count == 10 || a.count%50 == 0
	return a.count, len(a.affectedUsers), shouldEmit
}

func (em *ErrorManager) touchOrderLocked(fp string) {
	for i, f := range em.order {
		if f == fp {
			em.order = append(em.order[:i], em.order[i+1:]...)
			break
		}
	}
	em.order = append(em.order, fp)
}

// evictIfNeededLocked drops the oldest-by-lastSeen aggregate once the
// table exceeds maxAggregations. Caller must hold mu.
func (em *ErrorManager) evictIfNeededLocked() {
	for len(em.aggs) > em.maxAggregations && len(em.order) > 0 {
		oldest := em.order[0]
		em.order = em.order[1:]
		delete(em.aggs, oldest)
	}
}

func (em *ErrorManager) toMonitorData(ev adapter.ErrorEvent, fp string) model.MonitorData {
	_ = fp
	return model.MonitorData{
		Kind: model.KindError,
		Error: &model.ErrorData{
			Type:     ev.Type,
			Message:  ev.Message,
			Stack:    ev.Stack,
			Filename: ev.Filename,
			Lineno:   ev.Lineno,
			Colno:    ev.Colno,
		},
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
