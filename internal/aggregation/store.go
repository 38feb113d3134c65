// Package aggregation — store.go
//
// Store holds the live, in-process aggregation table for a project set,
// backed by a durable repository for persistence across restarts. Writes
// are serialized per (projectID, errorHash) via the queue package's
// striped lock table; the per-project LSH index map is guarded by the
// Store's own mutex (indexMu), held only briefly.
//
// This is the server-side analogue of the SDK's in-memory aggregate table,
// generalized from a single-PID mutex-protected state cell into a
// per-fingerprint one, durable, and similarity-merge aware.

package aggregation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lqt0707/monitor/internal/fingerprint"
	"github.com/lqt0707/monitor/internal/model"
	"github.com/lqt0707/monitor/internal/queue"
)

// Repository is the durable backing store for aggregations (internal/store
// implements this against bbolt).
type Repository interface {
	GetAggregation(ctx context.Context, projectID, errorHash string) (*model.ErrorAggregation, error)
	PutAggregation(ctx context.Context, agg *model.ErrorAggregation) error
	ListAggregations(ctx context.Context, projectID string) ([]*model.ErrorAggregation, error)
}

// Store coordinates fingerprint lookup, similarity merge, and durable
// persistence for one process's worth of projects.
type Store struct {
	repo       Repository
	locks      *queue.KeyLock
	thresholds Thresholds
	similarity float64

	indexMu sync.Mutex
	indexes map[string]*fingerprint.Index // projectID -> LSH index, built lazily

	log *zap.Logger
}

// NewStore builds a Store over repo. similarityThreshold is the banded
// Jaccard cutoff above which a new event merges into an existing
// aggregation instead of creating a new one (default 0.8).
func NewStore(repo Repository, similarityThreshold float64, log *zap.Logger) *Store {
	if similarityThreshold <= 0 {
		similarityThreshold = fingerprint.DefaultSimilarityThreshold
	}
	return &Store{
		repo:       repo,
		locks:      queue.NewKeyLock(256),
		thresholds: DefaultThresholds(),
		similarity: similarityThreshold,
		indexes:    make(map[string]*fingerprint.Index),
		log:        log,
	}
}

// Event is the minimal shape the aggregation worker needs about one
// fingerprinted occurrence.
type Event struct {
	ProjectID   string
	ErrorHash   string
	Message     string
	Stack       string
	Source      *model.SourceLocation
	ErrType     model.ErrorType
	UserID      string
	OccurredAt  time.Time
}

// maxMergeAttempts bounds the retry loop in Apply against the rare race
// where a similarity candidate is deleted or merged away between
// findSimilar's unlocked read and the re-check under its own stripe.
const maxMergeAttempts = 3

// Apply performs the full read-modify-write for one event: exact match,
// else similarity search via the project's LSH index, else create.
// Returns the resulting aggregation and whether it was newly created.
//
// Serialization is keyed on the aggregation actually being written, not
// on ev's own hash: two events with different fingerprints that both
// resolve to the same existing aggregation must take the same lock
// stripe, or one's increment is lost to the other's concurrent
// read-modify-write. The exact-match and create paths use ev's own hash
// (that is the aggregation's key in those cases); the similarity-merge
// path re-locks on the candidate's own hash and re-verifies it still
// exists before merging.
func (s *Store) Apply(ctx context.Context, ev Event) (*model.ErrorAggregation, bool, error) {
	if agg, created, ok, err := s.applyExact(ctx, ev); err != nil || ok {
		return agg, created, err
	}

	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		best, _, ok, err := s.findSimilar(ctx, ev)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		if agg, merged, err := s.applyMerge(ctx, ev, best.ErrorHash); err != nil {
			return nil, false, err
		} else if merged {
			return agg, false, nil
		}
		// best vanished (collapsed into another aggregation concurrently)
		// between findSimilar and the re-lock; search again.
	}

	return s.applyCreate(ctx, ev)
}

// applyExact locks on ev's own hash and merges into an aggregation keyed
// by that exact hash, if one exists. ok is false if no exact match was
// found, in which case the caller should fall through to similarity
// search.
func (s *Store) applyExact(ctx context.Context, ev Event) (agg *model.ErrorAggregation, created, ok bool, applyErr error) {
	key := queue.AggregationKey(ev.ProjectID, ev.ErrorHash)
	s.locks.With(key, func() {
		existing, err := s.repo.GetAggregation(ctx, ev.ProjectID, ev.ErrorHash)
		if err != nil {
			applyErr = fmt.Errorf("aggregation lookup: %w", err)
			return
		}
		if existing == nil {
			return
		}
		s.mergeOccurrence(existing, ev)
		if err := s.repo.PutAggregation(ctx, existing); err != nil {
			applyErr = fmt.Errorf("aggregation persist: %w", err)
			return
		}
		s.indexFor(ev.ProjectID).Add(existing.ErrorHash, ev.ErrorHash)
		agg, ok = existing, true
	})
	return agg, false, ok, applyErr
}

// applyMerge locks on targetHash — the candidate aggregation's own hash,
// not ev's — re-fetches it under that lock, and merges ev into it. merged
// is false if the candidate no longer exists, meaning the caller should
// retry findSimilar rather than assume success.
func (s *Store) applyMerge(ctx context.Context, ev Event, targetHash string) (agg *model.ErrorAggregation, merged bool, applyErr error) {
	key := queue.AggregationKey(ev.ProjectID, targetHash)
	s.locks.With(key, func() {
		existing, err := s.repo.GetAggregation(ctx, ev.ProjectID, targetHash)
		if err != nil {
			applyErr = fmt.Errorf("aggregation lookup: %w", err)
			return
		}
		if existing == nil {
			return
		}
		s.mergeOccurrence(existing, ev)
		if err := s.repo.PutAggregation(ctx, existing); err != nil {
			applyErr = fmt.Errorf("aggregation persist: %w", err)
			return
		}
		s.indexFor(ev.ProjectID).Add(existing.ErrorHash, ev.ErrorHash)
		agg, merged = existing, true
	})
	return agg, merged, applyErr
}

// applyCreate locks on ev's own hash and creates a new aggregation,
// re-checking first in case a concurrent applyExact beat it to the same
// hash while this event was off doing similarity search.
func (s *Store) applyCreate(ctx context.Context, ev Event) (*model.ErrorAggregation, bool, error) {
	var result *model.ErrorAggregation
	var created bool
	var applyErr error

	key := queue.AggregationKey(ev.ProjectID, ev.ErrorHash)
	s.locks.With(key, func() {
		existing, err := s.repo.GetAggregation(ctx, ev.ProjectID, ev.ErrorHash)
		if err != nil {
			applyErr = fmt.Errorf("aggregation lookup: %w", err)
			return
		}
		if existing != nil {
			s.mergeOccurrence(existing, ev)
			if err := s.repo.PutAggregation(ctx, existing); err != nil {
				applyErr = fmt.Errorf("aggregation persist: %w", err)
				return
			}
			s.indexFor(ev.ProjectID).Add(existing.ErrorHash, ev.ErrorHash)
			result = existing
			return
		}

		agg := model.NewErrorAggregation(ev.ProjectID, ev.ErrorHash, ev.Message, ev.Stack, ev.ErrType, ev.UserID, ev.OccurredAt)
		if ev.Source != nil {
			agg.Source = ev.Source
		}
		if err := s.repo.PutAggregation(ctx, agg); err != nil {
			applyErr = fmt.Errorf("aggregation persist: %w", err)
			return
		}
		s.indexFor(ev.ProjectID).Add(agg.ErrorHash, ev.ErrorHash)
		result, created = agg, true
	})
	return result, created, applyErr
}

// findSimilar scans the project's known aggregation fingerprints (pruned
// by the LSH index) for the best banded-Jaccard match above threshold.
func (s *Store) findSimilar(ctx context.Context, ev Event) (*model.ErrorAggregation, string, bool, error) {
	idx := s.indexFor(ev.ProjectID)
	candidates := idx.Candidates(ev.ErrorHash)
	if len(candidates) == 0 {
		return nil, "", false, nil
	}

	var best *model.ErrorAggregation
	var bestScore float64
	var bestSig string
	for _, hash := range candidates {
		sig, ok := idx.Signature(hash)
		if !ok {
			continue
		}
		score := fingerprint.Similarity(ev.ErrorHash, sig)
		if score > bestScore {
			agg, err := s.repo.GetAggregation(ctx, ev.ProjectID, hash)
			if err != nil || agg == nil {
				continue
			}
			bestScore = score
			best = agg
			bestSig = sig
		}
	}
	if best != nil && bestScore > s.similarity {
		return best, bestSig, true, nil
	}
	return nil, "", false, nil
}

func (s *Store) mergeOccurrence(agg *model.ErrorAggregation, ev Event) {
	agg.OccurrenceCount++
	agg.LastSeen = ev.OccurredAt
	if ev.UserID != "" {
		if agg.AffectedUsers == nil {
			agg.AffectedUsers = make(map[string]bool)
		}
		agg.AffectedUsers[ev.UserID] = true
	}
	agg.ErrorLevel = Level(agg.OccurrenceCount, len(agg.AffectedUsers), s.thresholds)
}

func (s *Store) indexFor(projectID string) *fingerprint.Index {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if idx, ok := s.indexes[projectID]; ok {
		return idx
	}
	idx := fingerprint.NewIndex(fingerprint.DefaultBandSize)
	s.indexes[projectID] = idx
	return idx
}

// Warm loads every existing aggregation for projectID into the LSH index,
// so similarity search also covers aggregations persisted before a
// restart. Without it the index holds only hashes applied since the
// Store was built. cmd/monitor-server does not call it.
func (s *Store) Warm(ctx context.Context, projectID string) error {
	aggs, err := s.repo.ListAggregations(ctx, projectID)
	if err != nil {
		return fmt.Errorf("warm aggregation index for %s: %w", projectID, err)
	}
	idx := s.indexFor(projectID)
	for _, a := range aggs {
		idx.Add(a.ErrorHash, a.ErrorHash)
	}
	if s.log != nil {
		s.log.Info("aggregation index warmed", zap.String("project_id", projectID), zap.Int("count", len(aggs)))
	}
	return nil
}

// UpdateSource sets an aggregation's representative resolved source
// location, called by the source-map worker once resolution completes.
// Does not touch occurrenceCount or lastSeen. A no-op if the aggregation
// no longer exists (e.g. collapsed into another by a concurrent merge).
func (s *Store) UpdateSource(ctx context.Context, projectID, errorHash string, source *model.SourceLocation) error {
	var updateErr error
	key := queue.AggregationKey(projectID, errorHash)
	s.locks.With(key, func() {
		agg, err := s.repo.GetAggregation(ctx, projectID, errorHash)
		if err != nil {
			updateErr = fmt.Errorf("update source lookup: %w", err)
			return
		}
		if agg == nil {
			return
		}
		agg.Source = source
		updateErr = s.repo.PutAggregation(ctx, agg)
	})
	return updateErr
}

// UpdateDiagnosis merges the optional LLM diagnosis result into an
// aggregation, called by the ai-diagnosis worker. A no-op if the
// aggregation no longer exists.
func (s *Store) UpdateDiagnosis(ctx context.Context, projectID, errorHash string, diagnosis map[string]model.Value) error {
	var updateErr error
	key := queue.AggregationKey(projectID, errorHash)
	s.locks.With(key, func() {
		agg, err := s.repo.GetAggregation(ctx, projectID, errorHash)
		if err != nil {
			updateErr = fmt.Errorf("update diagnosis lookup: %w", err)
			return
		}
		if agg == nil {
			return
		}
		agg.AIDiagnosis = diagnosis
		updateErr = s.repo.PutAggregation(ctx, agg)
	})
	return updateErr
}
