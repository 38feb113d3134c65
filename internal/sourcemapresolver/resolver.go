// Package sourcemapresolver — resolver.go
//
// Resolver is the sourcemap-processing queue's worker dependency: a bounded
// cache of parsed Consumers keyed by (projectId, minifiedFilename), with
// construction deduplicated via singleflight so a burst of events for the
// same file only parses the map once.

package sourcemapresolver

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FileOpener opens a file under a project's configured sourcemap
// directory, relative to that directory. Implemented by internal/store's
// BlobStore in production, faked in tests.
type FileOpener interface {
	Open(projectID, version, relPath string) (io.ReadCloser, error)
}

type cacheKey struct {
	projectID string
	file      string
}

type entry struct {
	consumer  *Consumer
	expiresAt time.Time
}

// Resolver caches parsed Consumers and answers Resolve queries.
type Resolver struct {
	opener FileOpener
	ttl    time.Duration
	log    *zap.Logger

	mu    sync.Mutex
	cache *lru.Cache[cacheKey, entry]
	group singleflight.Group
}

// DefaultTTL is the default cache lifetime.
const DefaultTTL = 24 * time.Hour

// DefaultCacheSize bounds the number of distinct (project, file) consumers
// held at once.
const DefaultCacheSize = 256

func New(opener FileOpener, ttl time.Duration, size int, log *zap.Logger) (*Resolver, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[cacheKey, entry](size)
	if err != nil {
		return nil, fmt.Errorf("create sourcemap cache: %w", err)
	}
	return &Resolver{opener: opener, ttl: ttl, log: log, cache: c}, nil
}

// candidateNames returns the filename heuristics tried in order for a
// minified source file path.
func candidateNames(file string) []string {
	base := filepath.Base(file)
	baseNoExt := strings.TrimSuffix(base, filepath.Ext(base))
	seen := make(map[string]bool)
	var out []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	add(file + ".map")
	add(base + ".map")
	add(baseNoExt + ".js.map")
	add(base + ".js.map")
	return out
}

// Resolve looks up the original position for (file, line, col) in
// projectId's active version. Returns nil, nil on any miss (missing map,
// unparsable map, position not found) — those are logged at debug and
// never retried, per spec.
func (r *Resolver) Resolve(ctx context.Context, projectID, version, file string, line, col int) (*Position, error) {
	key := cacheKey{projectID: projectID, file: file}

	r.mu.Lock()
	if e, ok := r.cache.Get(key); ok {
		r.mu.Unlock()
		if time.Now().Before(e.expiresAt) {
			return e.consumer.Resolve(line, col), nil
		}
		r.mu.Lock()
		r.cache.Remove(key)
	}
	r.mu.Unlock()

	groupKey := projectID + "\x00" + version + "\x00" + file
	res, err, _ := r.group.Do(groupKey, func() (interface{}, error) {
		return r.load(projectID, version, file)
	})
	if err != nil {
		if r.log != nil {
			r.log.Debug("sourcemap load failed",
				zap.String("projectId", projectID), zap.String("file", file), zap.Error(err))
		}
		return nil, nil
	}

	c := res.(*Consumer)
	r.mu.Lock()
	r.cache.Add(key, entry{consumer: c, expiresAt: time.Now().Add(r.ttl)})
	r.mu.Unlock()

	return c.Resolve(line, col), nil
}

func (r *Resolver) load(projectID, version, file string) (*Consumer, error) {
	var lastErr error
	for _, name := range candidateNames(file) {
		rc, err := r.opener.Open(projectID, version, name)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			lastErr = err
			continue
		}
		c, err := Parse(data)
		if err != nil {
			lastErr = err
			continue
		}
		return c, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no source map candidate found for %s", file)
	}
	return nil, lastErr
}

// Purge drops every cached consumer for a project, used when a new
// version is uploaded and old maps must not answer stale lookups.
func (r *Resolver) Purge(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range r.cache.Keys() {
		if key.projectID == projectID {
			r.cache.Remove(key)
		}
	}
}
