package ingest

import (
	"context"
	"net/http"

	"github.com/lqt0707/monitor/internal/ingest/auth"
	"github.com/lqt0707/monitor/internal/model"
)

func newAuthCache(deps Deps) *auth.Cache {
	return auth.NewCache(deps.Projects, deps.Config.ProjectCacheTTL, []byte(deps.Config.AuthSecret))
}

type contextKey int

const projectContextKey contextKey = iota

// projectFromContext returns the authenticated project previously
// attached by requireAPIKey, panicking is never the failure mode here:
// a nil return means the middleware did not run, a handler bug.
func projectFromContext(ctx context.Context) *model.ProjectConfig {
	proj, _ := ctx.Value(projectContextKey).(*model.ProjectConfig)
	return proj
}

const (
	apiKeyHeader     = "X-API-Key"
	cacheTokenHeader = "X-Project-Cache-Token"
)

// requireAPIKey resolves the caller's project from the X-API-Key header
// (or a previously issued cache token) and rejects the request with 401
// if neither resolves to a known project.
func (h *handlers) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := r.Header.Get(cacheTokenHeader); token != "" {
			if projectID, err := h.auth.VerifyToken(token); err == nil {
				proj, err := h.deps.Projects.GetByID(r.Context(), projectID)
				if err == nil && proj != nil {
					ctx := context.WithValue(r.Context(), projectContextKey, proj)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
		}

		apiKey := r.Header.Get(apiKeyHeader)
		var proj *model.ProjectConfig
		var token string
		var err error
		if apiKey != "" {
			proj, token, err = h.auth.Resolve(r.Context(), apiKey)
		}
		if err != nil {
			h.reject(w, http.StatusInternalServerError, "invalid_body")
			return
		}
		if proj == nil {
			if h.deps.Metrics != nil {
				h.deps.Metrics.ReportsRejectedTotal.WithLabelValues("unknown_project").Inc()
			}
			h.reject(w, http.StatusUnauthorized, "unknown_project")
			return
		}
		if token != "" {
			w.Header().Set(cacheTokenHeader, token)
		}

		ctx := context.WithValue(r.Context(), projectContextKey, proj)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
