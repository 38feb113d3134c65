// Package auth resolves the API-key header on intake requests to a
// ProjectConfig, backed by a short-TTL cache so a sustained stream of
// reports from one SDK instance does not hit the project repository on
// every request. Cache entries are also representable as a signed JWT
// so a verified lookup can be handed back to the caller and replayed
// across server replicas that share the signing secret, without either
// side needing a shared cache store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/lqt0707/monitor/internal/model"
	"github.com/lqt0707/monitor/internal/store"
)

var ErrInvalidToken = errors.New("auth: invalid or expired cache token")

// cacheClaims identifies a project a cache token vouches for.
type cacheClaims struct {
	ProjectID string `json:"projectId"`
	jwt.RegisteredClaims
}

type entry struct {
	project   *model.ProjectConfig
	expiresAt time.Time
}

// Cache resolves API keys to ProjectConfigs, short-circuiting the
// backing repository lookup within TTL.
type Cache struct {
	repo   store.ProjectConfigRepo
	ttl    time.Duration
	secret []byte

	mu      sync.RWMutex
	byKey   map[string]entry
}

func NewCache(repo store.ProjectConfigRepo, ttl time.Duration, signingSecret []byte) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{repo: repo, ttl: ttl, secret: signingSecret, byKey: make(map[string]entry)}
}

// Resolve returns the project for apiKey, consulting the in-process
// cache before the repository, and mints a fresh cache token alongside
// the result for the caller to hand back on the next request.
func (c *Cache) Resolve(ctx context.Context, apiKey string) (*model.ProjectConfig, string, error) {
	if apiKey == "" {
		return nil, "", fmt.Errorf("auth: empty api key")
	}

	c.mu.RLock()
	e, ok := c.byKey[apiKey]
	c.mu.RUnlock()
	if ok && time.Now().Before(e.expiresAt) {
		token, err := c.sign(e.project.ProjectID, e.expiresAt)
		return e.project, token, err
	}

	proj, err := c.repo.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, "", fmt.Errorf("lookup project by api key: %w", err)
	}
	if proj == nil {
		return nil, "", nil
	}

	expiresAt := time.Now().Add(c.ttl)
	c.mu.Lock()
	c.byKey[apiKey] = entry{project: proj, expiresAt: expiresAt}
	c.mu.Unlock()

	token, err := c.sign(proj.ProjectID, expiresAt)
	return proj, token, err
}

// VerifyToken validates a previously issued cache token and returns the
// project id it vouches for, without touching the repository.
func (c *Cache) VerifyToken(token string) (string, error) {
	claims := &cacheClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	return claims.ProjectID, nil
}

func (c *Cache) sign(projectID string, expiresAt time.Time) (string, error) {
	if len(c.secret) == 0 {
		return "", nil
	}
	claims := cacheClaims{
		ProjectID: projectID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}
