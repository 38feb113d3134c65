// Package contrib — customrules.go
//
// Plugin interface for custom alert-rule predicates.
//
// An AlertRule of type "custom" carries a Condition string naming a
// registered predicate plus, optionally, a Metric and Threshold the
// predicate may consult. Built-in predicates cover the common cases;
// deployments that need a bespoke condition register their own via
// RegisterPredicate() from an init() function in a sibling package,
// mirroring how community scorers were wired into the anomaly pipeline.
//
// Plugin contract:
//   - Evaluate() must be goroutine-safe (the shared error-aggregation
//     worker pool evaluates rules from several goroutines at once).
//   - Evaluate() must not perform blocking I/O.
//   - Evaluate() must not panic.
//   - Name() must return a stable, unique string (the Condition value).
//
// Example plugin:
//
//	package burstrate
//
//	import "github.com/lqt0707/monitor/contrib"
//
//	func init() {
//	  contrib.RegisterPredicate(&BurstRate{})
//	}
//
//	type BurstRate struct{}
//
//	func (b *BurstRate) Name() string { return "burst-rate" }
//
//	func (b *BurstRate) Evaluate(req contrib.PredicateRequest) (bool, error) {
//	  return req.OccurrenceCount > 0 && req.AffectedUsers > 0 &&
//	    float64(req.OccurrenceCount)/float64(req.AffectedUsers) > req.Threshold, nil
//	}

package contrib

import (
	"fmt"
	"sync"
)

// PredicateRequest is the input to a custom AlertPredicate.
type PredicateRequest struct {
	ProjectID       string
	ErrorHash       string
	Message         string
	OccurrenceCount int
	AffectedUsers   int
	ErrorLevel      int
	Metric          string
	Threshold       float64
}

// AlertPredicate is the interface custom alert-rule conditions implement.
type AlertPredicate interface {
	// Name returns the unique identifier used as an AlertRule's Condition
	// value for type "custom".
	Name() string

	// Evaluate reports whether req should fire the rule.
	Evaluate(req PredicateRequest) (bool, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AlertPredicate)
)

// RegisterPredicate registers a custom alert predicate. Panics if a
// predicate with the same name is already registered. Call from init().
func RegisterPredicate(p AlertPredicate) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[p.Name()]; exists {
		panic(fmt.Sprintf("contrib: predicate %q already registered", p.Name()))
	}
	registry[p.Name()] = p
}

// GetPredicate returns the registered predicate with the given name.
func GetPredicate(name string) (AlertPredicate, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("contrib: no predicate registered as %q", name)
	}
	return p, nil
}

func init() {
	RegisterPredicate(&alwaysFalse{})
}

// alwaysFalse is registered as "none": a custom rule whose Condition is
// "none" never fires. It is not a fallback for unknown names; GetPredicate
// returns an error for those, and the evaluator returns that error,
// which ends evaluation of the remaining rules for that event.
type alwaysFalse struct{}

func (alwaysFalse) Name() string { return "none" }

func (alwaysFalse) Evaluate(PredicateRequest) (bool, error) { return false, nil }
